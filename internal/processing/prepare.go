package processing

import (
	"fmt"

	"edge-viewer-go/internal/types"
)

// Request is a frame ready to hand to the viewer.
type Request struct {
	TraceID string
	FrameID int
	Payload string
	Pixels  []uint8
	Width   int
	Height  int
	Stats   types.StatsPatch
}

func (r Request) IsRaw() bool {
	return r.Payload == "" && len(r.Pixels) > 0
}

// Prepare validates msg and fills in metadata the producer left out.
// meter may be nil, in which case a missing fps stays missing.
func Prepare(msg types.FrameMessage, meter *FPSMeter) (Request, bool) {
	if msg.Image == "" && len(msg.Pixels) == 0 {
		return Request{}, false
	}
	if msg.IsRaw() {
		if !types.ValidDims(msg.Width, msg.Height) || len(msg.Pixels) != 4*msg.Width*msg.Height {
			return Request{}, false
		}
	}

	req := Request{
		TraceID: msg.TraceID,
		FrameID: msg.FrameID,
		Payload: msg.Image,
		Width:   msg.Width,
		Height:  msg.Height,
		Stats: types.StatsPatch{
			FPS:        msg.FPS,
			Resolution: msg.Resolution,
		},
	}
	if msg.IsRaw() {
		req.Pixels = msg.Pixels
	}

	if meter != nil {
		fps := meter.Tick()
		if req.Stats.FPS == nil {
			req.Stats.FPS = types.Float(fps)
		}
	}
	if req.Stats.Resolution == nil && msg.Width > 0 && msg.Height > 0 {
		req.Stats.Resolution = types.String(fmt.Sprintf("%dx%d", msg.Width, msg.Height))
	}
	return req, true
}

// GrayToRGBA expands an 8-bit grayscale buffer to opaque RGBA.
func GrayToRGBA(gray []uint8) []uint8 {
	out := make([]uint8, 4*len(gray))
	for i, v := range gray {
		out[4*i] = v
		out[4*i+1] = v
		out[4*i+2] = v
		out[4*i+3] = 0xff
	}
	return out
}
