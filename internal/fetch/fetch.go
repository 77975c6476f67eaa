package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"mime"
	"net/http"
	"time"

	"edge-viewer-go/internal/codec"
)

const maxBody = 32 << 20

var ErrFetch = errors.New("fetch failed")

var defaultClient = &http.Client{Timeout: 10 * time.Second}

// LoadSampleFrame fetches url and returns the body as a base64 data URL.
func LoadSampleFrame(ctx context.Context, client *http.Client, url string) (string, error) {
	data, err := loadSampleFrame(ctx, client, url)
	if err != nil {
		log.Printf("failed to load sample frame: %v", err)
		return "", err
	}
	return data, nil
}

func loadSampleFrame(ctx context.Context, client *http.Client, url string) (string, error) {
	if client == nil {
		client = defaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFetch, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFetch, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return "", fmt.Errorf("%w: %s returned http_%d", ErrFetch, url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody+1))
	if err != nil {
		return "", fmt.Errorf("%w: read body: %v", ErrFetch, err)
	}
	if len(body) > maxBody {
		return "", fmt.Errorf("%w: body exceeds %d bytes", ErrFetch, maxBody)
	}

	return codec.DataURL(mediaType(resp.Header.Get("Content-Type"), body), body), nil
}

func mediaType(header string, body []byte) string {
	if header != "" {
		if mt, _, err := mime.ParseMediaType(header); err == nil {
			return mt
		}
	}
	mt, _, _ := mime.ParseMediaType(http.DetectContentType(body))
	return mt
}
