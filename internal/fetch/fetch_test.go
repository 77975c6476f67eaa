package fetch

import (
	"bytes"
	"context"
	"errors"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"edge-viewer-go/internal/codec"
)

func TestLoadSampleFrame(t *testing.T) {
	_, png, err := codec.ParseDataURL(codec.SamplePayload)
	if err != nil {
		t.Fatalf("parse sample: %v", err)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(png)
	}))
	defer srv.Close()

	got, err := LoadSampleFrame(context.Background(), srv.Client(), srv.URL)
	if err != nil {
		t.Fatalf("LoadSampleFrame: %v", err)
	}
	if got != codec.SamplePayload {
		t.Fatalf("unexpected data url %q", got)
	}
}

func TestLoadSampleFrameSniffsType(t *testing.T) {
	_, png, _ := codec.ParseDataURL(codec.SamplePayload)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header()["Content-Type"] = nil
		_, _ = w.Write(png)
	}))
	defer srv.Close()

	got, err := LoadSampleFrame(context.Background(), srv.Client(), srv.URL)
	if err != nil {
		t.Fatalf("LoadSampleFrame: %v", err)
	}
	if !strings.HasPrefix(got, "data:image/png;base64,") {
		t.Fatalf("unexpected prefix %q", got)
	}
}

func TestLoadSampleFrameHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	var logs bytes.Buffer
	log.SetOutput(&logs)
	defer log.SetOutput(os.Stderr)

	_, err := LoadSampleFrame(context.Background(), srv.Client(), srv.URL)
	if !errors.Is(err, ErrFetch) {
		t.Fatalf("expected ErrFetch, got %v", err)
	}
	if n := strings.Count(logs.String(), "failed to load sample frame"); n != 1 {
		t.Fatalf("expected one failure log line, got %d: %q", n, logs.String())
	}
}

func TestLoadSampleFrameUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	if _, err := LoadSampleFrame(context.Background(), nil, url); !errors.Is(err, ErrFetch) {
		t.Fatalf("expected ErrFetch, got %v", err)
	}
}
