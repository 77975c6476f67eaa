package ingest

import (
	"reflect"
	"testing"

	"github.com/fxamacker/cbor/v2"
)

func TestDecodePixelArrayGray(t *testing.T) {
	value := cbor.Tag{
		Number: tagMultiDimArray,
		Content: []any{
			[]any{uint64(2), uint64(1)},
			cbor.Tag{
				Number:  tagUint8,
				Content: []byte{10, 20},
			},
		},
	}

	pix, w, h, err := decodePixelArray(value)
	if err != nil {
		t.Fatalf("decodePixelArray error: %v", err)
	}
	if w != 1 || h != 2 {
		t.Fatalf("unexpected shape %dx%d", w, h)
	}
	want := []uint8{10, 10, 10, 255, 20, 20, 20, 255}
	if !reflect.DeepEqual(pix, want) {
		t.Fatalf("decodePixelArray mismatch: got %v want %v", pix, want)
	}
}

func TestDecodePixelArrayUint16RGB(t *testing.T) {
	value := cbor.Tag{
		Number: tagMultiDimArray,
		Content: []any{
			[]any{uint64(1), uint64(1), uint64(3)},
			cbor.Tag{
				Number:  tagUint16LE,
				Content: []byte{0x00, 0xff, 0x00, 0x80, 0xff, 0x00},
			},
		},
	}

	pix, w, h, err := decodePixelArray(value)
	if err != nil {
		t.Fatalf("decodePixelArray error: %v", err)
	}
	if w != 1 || h != 1 {
		t.Fatalf("unexpected shape %dx%d", w, h)
	}
	want := []uint8{0xff, 0x80, 0x00, 0xff}
	if !reflect.DeepEqual(pix, want) {
		t.Fatalf("got %v want %v", pix, want)
	}
}

func TestDecodePixelArrayMismatch(t *testing.T) {
	value := cbor.Tag{
		Number: tagMultiDimArray,
		Content: []any{
			[]any{uint64(2), uint64(2)},
			cbor.Tag{Number: tagUint8, Content: []byte{1, 2, 3}},
		},
	}
	if _, _, _, err := decodePixelArray(value); err == nil {
		t.Fatalf("expected dimension mismatch")
	}
}

func TestDecodePixelArrayRejectsOverflowingDims(t *testing.T) {
	value := cbor.Tag{
		Number: tagMultiDimArray,
		Content: []any{
			[]any{uint64(1<<62 + 1), uint64(1), uint64(4)},
			cbor.Tag{Number: tagUint8, Content: []byte{1, 2, 3, 4}},
		},
	}
	if _, _, _, err := decodePixelArray(value); err == nil {
		t.Fatalf("expected oversized frame to be rejected")
	}
}
