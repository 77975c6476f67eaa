package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"edge-viewer-go/internal/codec"
	"edge-viewer-go/internal/config"
	"edge-viewer-go/internal/fetch"
	"edge-viewer-go/internal/processing"
	"edge-viewer-go/internal/types"
	"edge-viewer-go/internal/viewer"
)

const sampleAlert = "Failed to load sample frame. Please ensure you have a processed frame from the pipeline."

// Stats shown by the page after Clear.
const (
	ClearedFPS        = "0.0"
	ClearedResolution = "0x0"
	ClearedTimestamp  = "--"
)

// Notifier delivers messages to the page, e.g. alerts.
type Notifier func(message any)

type App struct {
	cfg      config.AppConfig
	viewer   *viewer.Viewer
	fields   viewer.Fields
	client   *http.Client
	notify   Notifier
	log      *log.Logger
	meter    *processing.FPSMeter
	frames   atomic.Uint64
	rejected atomic.Uint64
}

type Option func(*App)

func WithHTTPClient(c *http.Client) Option { return func(a *App) { a.client = c } }

func WithNotifier(n Notifier) Option { return func(a *App) { a.notify = n } }

func WithLogger(l *log.Logger) Option {
	return func(a *App) {
		if l != nil {
			a.log = l
		}
	}
}

func New(cfg config.AppConfig, v *viewer.Viewer, fields viewer.Fields, opts ...Option) *App {
	a := &App{
		cfg:    cfg,
		viewer: v,
		fields: fields,
		log:    log.New(os.Stderr, "", log.LstdFlags),
		meter:  processing.NewFPSMeter(nil),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// LoadSample shows the sample frame with fixed demo stats.
func (a *App) LoadSample(ctx context.Context) error {
	payload := codec.SamplePayload
	if a.cfg.SampleURL != "" {
		fetched, err := fetch.LoadSampleFrame(ctx, a.client, a.cfg.SampleURL)
		if err != nil {
			a.alert(sampleAlert)
			return err
		}
		payload = fetched
	}
	a.viewer.DisplayFrame(payload, &types.StatsPatch{
		FPS:        types.Float(15.0),
		Resolution: types.String("640x480"),
	})
	return nil
}

// Clear erases the surface and resets the displayed metadata text.
// Viewer stats are kept unless ClearResetsStats is set.
func (a *App) Clear() {
	a.viewer.Clear()
	if a.cfg.ClearResetsStats {
		a.viewer.ResetStats()
	}
	setText(a.fields.FPS, ClearedFPS)
	setText(a.fields.Resolution, ClearedResolution)
	setText(a.fields.Timestamp, ClearedTimestamp)
}

func setText(sink viewer.TextSink, text string) {
	if sink != nil {
		sink.SetText(text)
	}
}

// RunDiagnostics logs the viewer stats every interval while fps is positive.
func (a *App) RunDiagnostics(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	counter := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			counter++
			a.diagnose(counter)
		}
	}
}

func (a *App) diagnose(counter int) {
	stats := a.viewer.Stats()
	if stats.FPS > 0 {
		a.log.Printf("frame %d - fps: %.1f, resolution: %s", counter, stats.FPS, stats.Resolution)
	}
}

// Consume displays frames from an external producer until frames closes.
func (a *App) Consume(ctx context.Context, frames <-chan types.FrameMessage) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-frames:
			if !ok {
				return
			}
			a.Display(msg)
		}
	}
}

// Display hands one producer frame to the viewer.
func (a *App) Display(msg types.FrameMessage) bool {
	req, ok := processing.Prepare(msg, a.meter)
	if !ok {
		a.rejected.Add(1)
		a.log.Printf("rejected frame %d (trace %s)", msg.FrameID, msg.TraceID)
		return false
	}
	a.frames.Add(1)
	if req.IsRaw() {
		err := a.viewer.DisplayImageData(viewer.ImageData{Width: req.Width, Height: req.Height, Pix: req.Pixels})
		if err != nil {
			return false
		}
		a.viewer.ApplyStats(req.Stats)
		return true
	}
	stats := req.Stats
	a.viewer.DisplayFrame(req.Payload, &stats)
	return true
}

// HandleCommand runs a command sent by the page.
func (a *App) HandleCommand(ctx context.Context, cmd types.Command) error {
	switch cmd.Type {
	case "load_sample":
		return a.LoadSample(ctx)
	case "clear":
		a.Clear()
		return nil
	default:
		return fmt.Errorf("unknown command %q", cmd.Type)
	}
}

func (a *App) Metrics() map[string]any {
	return map[string]any{
		"frames_total":          a.frames.Load(),
		"frames_rejected_total": a.rejected.Load(),
		"ingest_fps":            a.meter.Current(),
	}
}

func (a *App) alert(message string) {
	if a.notify == nil {
		return
	}
	a.notify(types.Alert{Type: "alert", Message: message})
}
