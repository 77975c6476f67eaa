package simulator

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"log"
	"time"

	"github.com/google/uuid"

	"edge-viewer-go/internal/codec"
	"edge-viewer-go/internal/types"
)

// Stream emits synthetic edge maps: white outlines of a square that drifts
// across a black field. fps is left for the consumer to measure.
func Stream(ctx context.Context, width, height int, acqRate float64) <-chan types.FrameMessage {
	out := make(chan types.FrameMessage)
	go func() {
		defer close(out)

		frameInterval := time.Duration(float64(time.Second) / acqRate)
		ticker := time.NewTicker(frameInterval)
		defer ticker.Stop()

		resolution := fmt.Sprintf("%dx%d", width, height)
		frameID := 0

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				payload, err := codec.EncodePNGDataURL(Frame(width, height, frameID))
				if err != nil {
					log.Printf("simulator encode failed: %v", err)
					continue
				}
				frame := types.FrameMessage{
					TraceID:    uuid.NewString(),
					FrameID:    frameID,
					Image:      payload,
					Resolution: types.String(resolution),
				}
				select {
				case <-ctx.Done():
					return
				case out <- frame:
				}
				frameID++
			}
		}
	}()

	return out
}

// Frame renders frame n of the synthetic sequence.
func Frame(width, height, n int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, width, height))
	side := height / 3
	if w := width / 3; w < side {
		side = w
	}
	if side < 2 {
		return img
	}
	span := width - side
	if span < 1 {
		span = 1
	}
	x0 := n % span
	y0 := (height - side) / 2
	edge := color.Gray{Y: 0xff}
	for i := 0; i < side; i++ {
		img.SetGray(x0+i, y0, edge)
		img.SetGray(x0+i, y0+side-1, edge)
		img.SetGray(x0, y0+i, edge)
		img.SetGray(x0+side-1, y0+i, edge)
	}
	return img
}
