package app

import (
	"bytes"
	"context"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"edge-viewer-go/internal/codec"
	"edge-viewer-go/internal/config"
	"edge-viewer-go/internal/page"
	"edge-viewer-go/internal/types"
	"edge-viewer-go/internal/viewer"
)

type fixture struct {
	app    *App
	doc    *page.Document
	viewer *viewer.Viewer
	logs   *bytes.Buffer

	mu     sync.Mutex
	alerts []types.Alert
}

func newFixture(t *testing.T, cfg config.AppConfig) *fixture {
	t.Helper()
	f := &fixture{doc: page.NewViewerPage("frameCanvas"), logs: &bytes.Buffer{}}
	logger := log.New(f.logs, "", 0)
	v, err := viewer.FromDocument(f.doc, "frameCanvas", "statsContainer", viewer.WithLogger(logger))
	if err != nil {
		t.Fatalf("FromDocument: %v", err)
	}
	f.viewer = v
	f.app = New(cfg, v, fieldsOf(f.doc), WithLogger(logger), WithNotifier(func(msg any) {
		if alert, ok := msg.(types.Alert); ok {
			f.mu.Lock()
			f.alerts = append(f.alerts, alert)
			f.mu.Unlock()
		}
	}))
	return f
}

func fieldsOf(doc *page.Document) viewer.Fields {
	fps, _ := doc.Text(page.FPSValueID)
	res, _ := doc.Text(page.ResolutionValueID)
	ts, _ := doc.Text(page.TimestampValueID)
	return viewer.Fields{FPS: fps, Resolution: res, Timestamp: ts}
}

func (f *fixture) text(id string) string {
	n, _ := f.doc.Text(id)
	return n.Text()
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestLoadSampleDisplaysPlaceholder(t *testing.T) {
	f := newFixture(t, config.Default())
	if err := f.app.LoadSample(context.Background()); err != nil {
		t.Fatalf("LoadSample: %v", err)
	}
	waitFor(t, func() bool { return f.viewer.Stats().FPS == 15 })

	stats := f.viewer.Stats()
	if stats.Resolution != "640x480" {
		t.Fatalf("unexpected resolution %q", stats.Resolution)
	}
	if w, h := f.viewer.Canvas().Size(); w != 1 || h != 1 {
		t.Fatalf("unexpected surface size %dx%d", w, h)
	}
	if f.text(page.FPSValueID) != "15.0" {
		t.Fatalf("unexpected fps text %q", f.text(page.FPSValueID))
	}
}

func TestLoadSampleFromURLFailureAlerts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := config.Default()
	cfg.SampleURL = srv.URL
	f := newFixture(t, cfg)
	f.app.client = srv.Client()

	if err := f.app.LoadSample(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
	if len(f.alerts) != 1 || !strings.Contains(f.alerts[0].Message, "Failed to load sample frame") {
		t.Fatalf("unexpected alerts %#v", f.alerts)
	}
	if strings.Contains(f.logs.String(), "failed to load sample frame") {
		t.Fatalf("failure logged again by the app: %q", f.logs.String())
	}
}

func TestLoadSampleFromURL(t *testing.T) {
	_, png, _ := codec.ParseDataURL(codec.SamplePayload)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(png)
	}))
	defer srv.Close()

	cfg := config.Default()
	cfg.SampleURL = srv.URL
	f := newFixture(t, cfg)
	f.app.client = srv.Client()

	if err := f.app.LoadSample(context.Background()); err != nil {
		t.Fatalf("LoadSample: %v", err)
	}
	waitFor(t, func() bool { return f.viewer.Stats().FPS == 15 })
}

func TestClearResetsTextButNotStats(t *testing.T) {
	f := newFixture(t, config.Default())
	f.viewer.ApplyStats(types.StatsPatch{FPS: types.Float(30), Resolution: types.String("1920x1080")})

	f.app.Clear()

	if f.text(page.FPSValueID) != ClearedFPS || f.text(page.ResolutionValueID) != ClearedResolution || f.text(page.TimestampValueID) != ClearedTimestamp {
		t.Fatalf("text not reset: %q %q %q", f.text(page.FPSValueID), f.text(page.ResolutionValueID), f.text(page.TimestampValueID))
	}
	if stats := f.viewer.Stats(); stats.FPS != 30 || stats.Resolution != "1920x1080" {
		t.Fatalf("stats should stay stale: %+v", stats)
	}
}

func TestClearResetsStatsWhenConfigured(t *testing.T) {
	cfg := config.Default()
	cfg.ClearResetsStats = true
	f := newFixture(t, cfg)
	f.viewer.ApplyStats(types.StatsPatch{FPS: types.Float(30)})

	f.app.Clear()

	if f.viewer.Stats().FPS != 0 {
		t.Fatalf("stats not reset")
	}
	if f.text(page.TimestampValueID) != ClearedTimestamp {
		t.Fatalf("timestamp text not reset: %q", f.text(page.TimestampValueID))
	}
}

func TestDiagnoseLogsOnlyWithPositiveFPS(t *testing.T) {
	f := newFixture(t, config.Default())
	f.app.diagnose(1)
	if f.logs.Len() != 0 {
		t.Fatalf("logged with zero fps: %q", f.logs.String())
	}
	f.viewer.ApplyStats(types.StatsPatch{FPS: types.Float(12.5), Resolution: types.String("320x240")})
	f.app.diagnose(2)
	if !strings.Contains(f.logs.String(), "frame 2 - fps: 12.5, resolution: 320x240") {
		t.Fatalf("unexpected diagnostic output: %q", f.logs.String())
	}
}

func TestRunDiagnosticsStops(t *testing.T) {
	f := newFixture(t, config.Default())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.app.RunDiagnostics(ctx, time.Millisecond)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("RunDiagnostics did not stop")
	}
}

func TestConsumeDisplaysFrames(t *testing.T) {
	f := newFixture(t, config.Default())
	frames := make(chan types.FrameMessage, 2)
	frames <- types.FrameMessage{FrameID: 1, Pixels: make([]uint8, 4*2*2), Width: 2, Height: 2, FPS: types.Float(9)}
	frames <- types.FrameMessage{FrameID: 2}
	close(frames)

	f.app.Consume(context.Background(), frames)

	if w, h := f.viewer.Canvas().Size(); w != 2 || h != 2 {
		t.Fatalf("raw frame not displayed: %dx%d", w, h)
	}
	stats := f.viewer.Stats()
	if stats.FPS != 9 || stats.Resolution != "2x2" {
		t.Fatalf("unexpected stats %+v", stats)
	}
	m := f.app.Metrics()
	if m["frames_total"].(uint64) != 1 || m["frames_rejected_total"].(uint64) != 1 {
		t.Fatalf("unexpected metrics %v", m)
	}
}

func TestDisplayRejectsOversizedRawFrame(t *testing.T) {
	f := newFixture(t, config.Default())
	if f.app.Display(types.FrameMessage{Pixels: []uint8{1, 2, 3, 4}, Width: 1, Height: 1<<62 + 1}) {
		t.Fatalf("oversized raw frame displayed")
	}
	if w, h := f.viewer.Canvas().Size(); w != 0 || h != 0 {
		t.Fatalf("surface resized to %dx%d", w, h)
	}
}

func TestHandleCommand(t *testing.T) {
	f := newFixture(t, config.Default())
	f.app.log = log.New(io.Discard, "", 0)
	if err := f.app.HandleCommand(context.Background(), types.Command{Type: "clear"}); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if err := f.app.HandleCommand(context.Background(), types.Command{Type: "reboot"}); err == nil {
		t.Fatalf("expected error for unknown command")
	}
}
