package ingest

import (
	"strings"
	"testing"

	"github.com/fxamacker/cbor/v2"

	"edge-viewer-go/internal/codec"
)

func TestDecodeMessageImage(t *testing.T) {
	_, png, err := codec.ParseDataURL(codec.SamplePayload)
	if err != nil {
		t.Fatalf("parse sample: %v", err)
	}
	msg := map[string]any{
		"type":       "frame",
		"frame_id":   7,
		"image":      png,
		"fps":        14.5,
		"resolution": "640x480",
	}

	payload, err := cbor.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal error: %v", err)
	}

	frame, ok := decodeMessage(payload, 1)
	if !ok {
		t.Fatalf("decodeMessage returned ok=false")
	}
	if frame.FrameID != 7 {
		t.Fatalf("unexpected frame_id: %d", frame.FrameID)
	}
	if frame.Image != codec.SamplePayload {
		t.Fatalf("unexpected image: %q", frame.Image)
	}
	if frame.FPS == nil || *frame.FPS != 14.5 {
		t.Fatalf("unexpected fps: %v", frame.FPS)
	}
	if frame.Resolution == nil || *frame.Resolution != "640x480" {
		t.Fatalf("unexpected resolution: %v", frame.Resolution)
	}
	if frame.TraceID == "" {
		t.Fatalf("missing trace id")
	}
}

func TestDecodeMessagePixels(t *testing.T) {
	msg := map[string]any{
		"type":     "frame",
		"frame_id": 1,
		"pixels": cbor.Tag{
			Number: tagMultiDimArray,
			Content: []any{
				[]any{1, 2},
				cbor.Tag{
					Number:  tagUint8,
					Content: []byte{10, 20},
				},
			},
		},
	}

	payload, err := cbor.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal error: %v", err)
	}

	frame, ok := decodeMessage(payload, 1)
	if !ok {
		t.Fatalf("decodeMessage returned ok=false")
	}
	if !frame.IsRaw() {
		t.Fatalf("expected raw frame")
	}
	if frame.Width != 2 || frame.Height != 1 {
		t.Fatalf("unexpected shape %dx%d", frame.Width, frame.Height)
	}
	if len(frame.Pixels) != 8 || frame.Pixels[4] != 20 {
		t.Fatalf("unexpected pixels %v", frame.Pixels)
	}
	if frame.FPS != nil {
		t.Fatalf("fps should be absent")
	}
}

func TestDecodeMessageRejects(t *testing.T) {
	before := DecodeFailures()
	if _, ok := decodeMessage([]byte{0xff, 0x00}, 1); ok {
		t.Fatalf("accepted invalid CBOR")
	}
	other, _ := cbor.Marshal(map[string]any{"type": "status"})
	if _, ok := decodeMessage(other, 1); ok {
		t.Fatalf("accepted non-frame message")
	}
	empty, _ := cbor.Marshal(map[string]any{"type": "frame"})
	if _, ok := decodeMessage(empty, 1); ok {
		t.Fatalf("accepted frame without image")
	}
	if DecodeFailures() < before+2 {
		t.Fatalf("decode failures not counted")
	}
}

func TestDecodeJSONMessage(t *testing.T) {
	msg := `{"type":"frame","frame_id":3,"image":"` + codec.SamplePayload + `","fps":15}`
	frame, ok := decodeJSONMessage([]byte(msg), 1)
	if !ok {
		t.Fatalf("decodeJSONMessage returned ok=false")
	}
	if frame.FrameID != 3 || *frame.FPS != 15 || frame.Resolution != nil {
		t.Fatalf("unexpected frame %+v", frame)
	}
	if !strings.HasPrefix(frame.Image, "data:image/png") {
		t.Fatalf("unexpected image %q", frame.Image)
	}

	if _, ok := decodeJSONMessage([]byte(`{"type":"frame","pixels":[1,2]}`), 1); ok {
		t.Fatalf("accepted JSON pixels")
	}
}
