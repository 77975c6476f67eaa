package ingest

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"edge-viewer-go/internal/processing"
	"edge-viewer-go/internal/types"
)

const (
	tagMultiDimArray = 40
	tagUint8         = 64
	tagUint16LE      = 69
)

// decodePixelArray turns a tag-40 array into RGBA pixels.
// Accepted shapes are [rows, cols] (gray), [rows, cols, 3] (RGB) and
// [rows, cols, 4] (RGBA). uint16 samples are reduced to their high byte.
func decodePixelArray(value any) ([]uint8, int, int, error) {
	tag, ok := value.(cbor.Tag)
	if !ok || tag.Number != tagMultiDimArray {
		return nil, 0, 0, fmt.Errorf("expected multidim tag 40")
	}

	items, ok := tag.Content.([]any)
	if !ok || len(items) != 2 {
		return nil, 0, 0, fmt.Errorf("invalid multidim array content")
	}

	dimsRaw, ok := items[0].([]any)
	if !ok || len(dimsRaw) < 2 || len(dimsRaw) > 3 {
		return nil, 0, 0, fmt.Errorf("invalid multidim dimensions")
	}
	dims := make([]int, len(dimsRaw))
	for i, d := range dimsRaw {
		n, err := toInt(d)
		if err != nil {
			return nil, 0, 0, err
		}
		if n < 1 {
			return nil, 0, 0, fmt.Errorf("invalid dimension %d", n)
		}
		dims[i] = n
	}
	rows, cols := dims[0], dims[1]
	if !types.ValidDims(cols, rows) {
		return nil, 0, 0, fmt.Errorf("frame %dx%d exceeds %d per side", cols, rows, types.MaxFrameDim)
	}
	channels := 1
	if len(dims) == 3 {
		channels = dims[2]
	}
	if channels != 1 && channels != 3 && channels != 4 {
		return nil, 0, 0, fmt.Errorf("unsupported channel count %d", channels)
	}

	samples, err := decodeTypedArray(items[1])
	if err != nil {
		return nil, 0, 0, err
	}
	if len(samples) != rows*cols*channels {
		return nil, 0, 0, errors.New("dimension mismatch")
	}
	return toRGBA(samples, channels), cols, rows, nil
}

func decodeTypedArray(value any) ([]uint8, error) {
	tag, ok := value.(cbor.Tag)
	if !ok {
		return nil, fmt.Errorf("expected typed array tag")
	}
	data, ok := tag.Content.([]byte)
	if !ok {
		return nil, fmt.Errorf("unsupported typed array content %T", tag.Content)
	}

	switch tag.Number {
	case tagUint8:
		return data, nil
	case tagUint16LE:
		out := make([]uint8, len(data)/2)
		for i := range out {
			out[i] = uint8(binary.LittleEndian.Uint16(data[i*2:i*2+2]) >> 8)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported typed array tag %d", tag.Number)
	}
}

func toRGBA(samples []uint8, channels int) []uint8 {
	switch channels {
	case 1:
		return processing.GrayToRGBA(samples)
	case 4:
		out := make([]uint8, len(samples))
		copy(out, samples)
		return out
	}
	pixels := len(samples) / 3
	out := make([]uint8, 4*pixels)
	for i := 0; i < pixels; i++ {
		out[4*i] = samples[3*i]
		out[4*i+1] = samples[3*i+1]
		out[4*i+2] = samples[3*i+2]
		out[4*i+3] = 0xff
	}
	return out
}
