package main

import (
	"testing"

	"edge-viewer-go/internal/codec"
	"edge-viewer-go/internal/page"
)

func TestSurfaceUpdateSkipsEmptyCanvas(t *testing.T) {
	canvas := page.NewCanvas("frameCanvas")
	ctx, err := canvas.Context2D()
	if err != nil {
		t.Fatalf("context: %v", err)
	}
	ctx.ClearRect(0, 0, 0, 0)

	if _, ok, err := surfaceUpdate(canvas); ok || err != nil {
		t.Fatalf("expected no update for empty canvas, got ok=%v err=%v", ok, err)
	}
}

func TestSurfaceUpdateEncodesClearedCanvas(t *testing.T) {
	canvas := page.NewCanvas("frameCanvas")
	canvas.Resize(3, 2)
	ctx, _ := canvas.Context2D()
	ctx.ClearRect(0, 0, 3, 2)

	update, ok, err := surfaceUpdate(canvas)
	if err != nil || !ok {
		t.Fatalf("surfaceUpdate: ok=%v err=%v", ok, err)
	}
	if update.Type != "frame" || update.Width != 3 || update.Height != 2 {
		t.Fatalf("unexpected update %+v", update)
	}
	img, err := codec.DecodeImage(update.Image)
	if err != nil {
		t.Fatalf("decode pushed frame: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 3 || b.Dy() != 2 {
		t.Fatalf("unexpected pushed bounds %v", b)
	}
}
