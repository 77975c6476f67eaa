package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/pebbe/zmq4"

	"edge-viewer-go/internal/codec"
	"edge-viewer-go/internal/types"
)

// RawRecorder receives every raw message before it is decoded.
type RawRecorder interface {
	Record(payload []byte) error
}

var (
	decodeFailures atomic.Uint64
	logCounter     atomic.Uint64
)

func DecodeFailures() uint64 {
	return decodeFailures.Load()
}

// StreamWithLogEveryAndRecorder returns a channel of frames from a ZMQ PULL
// socket. Expects CBOR messages shaped like:
// { "type": "frame", "frame_id": <int>, "image": <bytes|data url>, "fps": <float>, "resolution": "WxH" }
// Raw frames carry "pixels" as a tag-40 array instead of "image".
// Every raw message goes to recorder when it is non-nil.
func StreamWithLogEveryAndRecorder(ctx context.Context, endpoint string, logEvery int, recorder RawRecorder) (<-chan types.FrameMessage, error) {
	if logEvery < 1 {
		logEvery = 1
	}
	socket, err := zmq4.NewSocket(zmq4.PULL)
	if err != nil {
		return nil, err
	}
	if err := socket.SetRcvtimeo(500 * time.Millisecond); err != nil {
		_ = socket.Close()
		return nil, err
	}
	if err := socket.Connect(endpoint); err != nil {
		_ = socket.Close()
		return nil, err
	}

	out := make(chan types.FrameMessage, 16)
	go func() {
		defer close(out)
		defer socket.Close()

		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			msg, err := socket.RecvBytes(0)
			if err != nil {
				if zmq4.AsErrno(err) == zmq4.Errno(syscall.EAGAIN) {
					continue
				}
				logEveryN(logEvery, "ingest recv error: %v", err)
				continue
			}
			if recorder != nil {
				if err := recorder.Record(msg); err != nil {
					logEveryN(logEvery, "raw log write failed: %v", err)
				}
			}

			frame, ok := decodeMessage(msg, logEvery)
			if !ok {
				continue
			}

			select {
			case <-ctx.Done():
				return
			case out <- frame:
			}
		}
	}()

	return out, nil
}

func decodeMessage(msg []byte, logEvery int) (types.FrameMessage, bool) {
	var payload map[string]any
	if err := cbor.Unmarshal(msg, &payload); err != nil {
		decodeFailures.Add(1)
		logEveryN(logEvery, "ingest CBOR decode error: %v", err)
		return types.FrameMessage{}, false
	}
	return frameFromMap(payload, logEvery)
}

func frameFromMap(payload map[string]any, logEvery int) (types.FrameMessage, bool) {
	msgType, _ := payload["type"].(string)
	if msgType != "frame" {
		logEveryN(logEvery, "ingest ignoring message type %q", msgType)
		return types.FrameMessage{}, false
	}

	frame := types.FrameMessage{TraceID: uuid.NewString()}
	if raw, ok := payload["frame_id"]; ok {
		id, err := toInt(raw)
		if err != nil {
			logEveryN(logEvery, "ingest invalid frame_id: %v", err)
		} else {
			frame.FrameID = id
		}
	}

	switch image := payload["image"].(type) {
	case string:
		frame.Image = image
	case []byte:
		frame.Image = codec.DataURL(http.DetectContentType(image), image)
	case nil:
	default:
		decodeFailures.Add(1)
		logEveryN(logEvery, "ingest invalid image field %T", image)
		return types.FrameMessage{}, false
	}

	if frame.Image == "" {
		raw, ok := payload["pixels"]
		if !ok {
			decodeFailures.Add(1)
			logEveryN(logEvery, "ingest message had neither image nor pixels")
			return types.FrameMessage{}, false
		}
		pix, w, h, err := decodePixelArray(raw)
		if err != nil {
			decodeFailures.Add(1)
			logEveryN(logEvery, "ingest invalid pixels: %v", err)
			return types.FrameMessage{}, false
		}
		frame.Pixels, frame.Width, frame.Height = pix, w, h
	}

	if raw, ok := payload["fps"]; ok {
		fps, err := toFloat(raw)
		if err != nil || fps < 0 {
			logEveryN(logEvery, "ingest invalid fps %v", raw)
		} else {
			frame.FPS = types.Float(fps)
		}
	}
	if res, ok := payload["resolution"].(string); ok && res != "" {
		frame.Resolution = types.String(res)
	}
	return frame, true
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case uint64:
		return int(n), nil
	case uint32:
		return int(n), nil
	case float64:
		return int(n), nil
	default:
		return 0, fmt.Errorf("unsupported int type %T", v)
	}
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	default:
		return 0, errors.New("unsupported float type")
	}
}

func logEveryN(n int, format string, args ...any) {
	if logCounter.Add(1)%uint64(n) == 0 {
		log.Printf(format, args...)
	}
}
