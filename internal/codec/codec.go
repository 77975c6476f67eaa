package codec

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"edge-viewer-go/internal/types"
)

// SamplePayload is a 1x1 PNG used by the load-sample control.
const SamplePayload = "data:image/png;base64,iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNk+M9QDwADhgGAWjR9awAAAABJRU5ErkJggg=="

var (
	ErrUnsupportedPayload = errors.New("unsupported payload")
	ErrImageTooLarge      = errors.New("image too large")
)

// ParseDataURL splits a data URL of the form data:<type>;base64,<data>.
// A bare base64 string is accepted and reported with an empty media type.
func ParseDataURL(s string) (string, []byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil, fmt.Errorf("empty payload: %w", ErrUnsupportedPayload)
	}
	if !strings.HasPrefix(s, "data:") {
		data, err := decodeBase64(s)
		return "", data, err
	}

	header, body, ok := strings.Cut(s[len("data:"):], ",")
	if !ok {
		return "", nil, fmt.Errorf("data url without comma: %w", ErrUnsupportedPayload)
	}
	mediaType, params, _ := strings.Cut(header, ";")
	if !strings.Contains(";"+params+";", ";base64;") {
		return "", nil, fmt.Errorf("data url is not base64 encoded: %w", ErrUnsupportedPayload)
	}
	data, err := decodeBase64(body)
	if err != nil {
		return "", nil, err
	}
	return mediaType, data, nil
}

func decodeBase64(s string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(s)
	if err == nil {
		return data, nil
	}
	if raw, rawErr := base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "=")); rawErr == nil {
		return raw, nil
	}
	return nil, fmt.Errorf("decode base64: %w", err)
}

// DecodeImage decodes a base64 image payload into a bitmap.
func DecodeImage(payload string) (image.Image, error) {
	mediaType, data, err := ParseDataURL(payload)
	if err != nil {
		return nil, err
	}
	if mediaType != "" && !strings.HasPrefix(mediaType, "image/") {
		return nil, fmt.Errorf("media type %q: %w", mediaType, ErrUnsupportedPayload)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	if !types.ValidDims(cfg.Width, cfg.Height) {
		return nil, fmt.Errorf("%dx%d exceeds %d per side: %w", cfg.Width, cfg.Height, types.MaxFrameDim, ErrImageTooLarge)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// DecodeImageContext is DecodeImage that gives up once ctx is done.
func DecodeImageContext(ctx context.Context, payload string) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	img, err := DecodeImage(payload)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return img, nil
}

func ArrayBufferToBase64(buf []byte) string {
	return base64.StdEncoding.EncodeToString(buf)
}

func DataURL(mediaType string, data []byte) string {
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}
	return "data:" + mediaType + ";base64," + ArrayBufferToBase64(data)
}

func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func EncodePNGDataURL(img image.Image) (string, error) {
	data, err := EncodePNG(img)
	if err != nil {
		return "", err
	}
	return DataURL("image/png", data), nil
}
