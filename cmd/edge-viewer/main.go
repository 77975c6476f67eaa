package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"edge-viewer-go/internal/app"
	"edge-viewer-go/internal/codec"
	"edge-viewer-go/internal/config"
	"edge-viewer-go/internal/ingest"
	"edge-viewer-go/internal/output"
	"edge-viewer-go/internal/page"
	"edge-viewer-go/internal/server"
	"edge-viewer-go/internal/simulator"
	"edge-viewer-go/internal/types"
	"edge-viewer-go/internal/viewer"
)

type metrics struct {
	uiMessages     atomic.Uint64
	uiDropped      atomic.Uint64
	surfacePushes  atomic.Uint64
	encodeFailures atomic.Uint64
	ingestRestarts atomic.Uint64
}

func (m *metrics) snapshot() map[string]any {
	return map[string]any{
		"ui_messages_total":     m.uiMessages.Load(),
		"ui_dropped_total":      m.uiDropped.Load(),
		"surface_pushes_total":  m.surfacePushes.Load(),
		"encode_failures_total": m.encodeFailures.Load(),
		"ingest_restarts_total": m.ingestRestarts.Load(),
	}
}

func main() {
	defaults := config.Default()
	var (
		configPath     = flag.String("config", "", "Optional YAML config file; explicit flags override it")
		port           = flag.Int("port", defaults.Port, "HTTP port for the web UI")
		source         = flag.String("source", defaults.Source, "Frame source: zmq, mqtt or none")
		endpoint       = flag.String("endpoint", defaults.Endpoint, "ZMQ endpoint of the frame producer")
		mqttBroker     = flag.String("mqtt-broker", defaults.MQTTBroker, "MQTT broker URL, e.g. tcp://localhost:1883")
		mqttTopic      = flag.String("mqtt-topic", defaults.MQTTTopic, "MQTT topic carrying frames")
		mqttClientID   = flag.String("mqtt-client-id", defaults.MQTTClientID, "MQTT client id")
		canvasID       = flag.String("canvas-id", defaults.CanvasID, "Id of the drawing surface")
		sampleURL      = flag.String("sample-url", defaults.SampleURL, "Fetch the sample frame from this URL instead of the placeholder")
		diagInterval   = flag.Duration("diag-interval", defaults.DiagInterval, "Interval of the diagnostic stats log")
		uiRate         = flag.Duration("ui-rate", defaults.UIRate, "Minimum interval between surface pushes to websocket clients")
		debug          = flag.Bool("debug", defaults.Debug, "Run with simulated frames")
		debugAcqRate   = flag.Float64("debug-acq-rate", defaults.DebugAcqRate, "Simulated frame rate (frames/sec)")
		debugWidth     = flag.Int("debug-width", defaults.DebugWidth, "Simulated frame width")
		debugHeight    = flag.Int("debug-height", defaults.DebugHeight, "Simulated frame height")
		rawLogEnabled  = flag.Bool("raw-log", defaults.RawLogEnabled, "Write raw ingest messages to disk")
		rawLogDir      = flag.String("raw-log-dir", defaults.RawLogDir, "Directory for raw ingest logs")
		ingestLogEvery = flag.Int("ingest-log-every", defaults.IngestLogEvery, "Log every Nth ingest error")
		ingestFallback = flag.Bool("ingest-fallback", defaults.IngestFallback, "Fall back to simulator when ingest fails")
		clearResets    = flag.Bool("clear-resets-stats", defaults.ClearResetsStats, "Also reset viewer stats when the page is cleared")
	)
	flag.Parse()

	cfg := defaults
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
		cfg = loaded
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			cfg.Port = *port
		case "source":
			cfg.Source = *source
		case "endpoint":
			cfg.Endpoint = *endpoint
		case "mqtt-broker":
			cfg.MQTTBroker = *mqttBroker
		case "mqtt-topic":
			cfg.MQTTTopic = *mqttTopic
		case "mqtt-client-id":
			cfg.MQTTClientID = *mqttClientID
		case "canvas-id":
			cfg.CanvasID = *canvasID
		case "sample-url":
			cfg.SampleURL = *sampleURL
		case "diag-interval":
			cfg.DiagInterval = *diagInterval
		case "ui-rate":
			cfg.UIRate = *uiRate
		case "debug":
			cfg.Debug = *debug
		case "debug-acq-rate":
			cfg.DebugAcqRate = *debugAcqRate
		case "debug-width":
			cfg.DebugWidth = *debugWidth
		case "debug-height":
			cfg.DebugHeight = *debugHeight
		case "raw-log":
			cfg.RawLogEnabled = *rawLogEnabled
		case "raw-log-dir":
			cfg.RawLogDir = *rawLogDir
		case "ingest-log-every":
			cfg.IngestLogEvery = *ingestLogEvery
		case "ingest-fallback":
			cfg.IngestFallback = *ingestFallback
		case "clear-resets-stats":
			cfg.ClearResetsStats = *clearResets
		}
	})
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var counters metrics
	uiMessages := make(chan any, 16)
	push := func(message any) {
		select {
		case uiMessages <- message:
			counters.uiMessages.Add(1)
		default:
			counters.uiDropped.Add(1)
		}
	}

	doc := page.NewViewerPage(cfg.CanvasID)
	v, err := viewer.FromDocument(doc, cfg.CanvasID, cfg.StatsID)
	if err != nil {
		log.Fatalf("failed to create viewer: %v", err)
	}
	canvas, err := doc.Canvas(cfg.CanvasID)
	if err != nil {
		log.Fatalf("failed to create viewer: %v", err)
	}

	var fields viewer.Fields
	for _, id := range []string{page.FPSValueID, page.ResolutionValueID, page.TimestampValueID} {
		node, ok := doc.Text(id)
		if !ok {
			continue
		}
		node.OnChange(func(id, text string) {
			push(types.TextUpdate{Type: "text", ID: id, Text: text})
		})
		switch id {
		case page.FPSValueID:
			fields.FPS = node
		case page.ResolutionValueID:
			fields.Resolution = node
		case page.TimestampValueID:
			fields.Timestamp = node
		}
	}

	var surfaceDirty atomic.Bool
	canvas.OnChange(func(*page.Canvas) { surfaceDirty.Store(true) })

	viewerApp := app.New(cfg, v, fields,
		app.WithNotifier(push),
		app.WithHTTPClient(&http.Client{Timeout: 10 * time.Second}),
	)

	frames := startSource(ctx, cfg, &counters)
	if frames != nil {
		go viewerApp.Consume(ctx, frames)
	}
	go viewerApp.RunDiagnostics(ctx, cfg.DiagInterval)

	go func() {
		ticker := time.NewTicker(cfg.UIRate)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !surfaceDirty.Swap(false) {
					continue
				}
				update, ok, err := surfaceUpdate(canvas)
				if err != nil {
					counters.encodeFailures.Add(1)
					log.Printf("surface encode failed: %v", err)
					continue
				}
				if !ok {
					continue
				}
				push(update)
				counters.surfacePushes.Add(1)
			}
		}
	}()

	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m := viewerApp.Metrics()
				log.Printf("ingest stats: frames=%v rejected=%v decode_failures=%v ui_dropped=%v",
					m["frames_total"],
					m["frames_rejected_total"],
					ingest.DecodeFailures(),
					counters.uiDropped.Load(),
				)
			}
		}
	}()

	handlers := server.Handlers{
		Status: func() map[string]any {
			metricsPayload := counters.snapshot()
			for k, val := range viewerApp.Metrics() {
				metricsPayload[k] = val
			}
			metricsPayload["ingest_decode_failures_total"] = ingest.DecodeFailures()
			w, h := canvas.Size()
			return map[string]any{
				"source":  sourceName(cfg),
				"stats":   v.Stats(),
				"surface": viewer.FormatResolution(w, h),
				"metrics": metricsPayload,
			}
		},
		Snapshot: func() []any {
			var out []any
			if update, ok, err := surfaceUpdate(canvas); ok && err == nil {
				out = append(out, update)
			}
			for _, t := range doc.Texts() {
				out = append(out, types.TextUpdate{Type: "text", ID: t.ID, Text: t.Text})
			}
			return out
		},
		Stats:   v.Stats,
		Command: viewerApp.HandleCommand,
		Display: func(payload string, patch *types.StatsPatch) {
			v.DisplayFrame(payload, patch)
		},
		FramePNG: func() ([]byte, error) {
			if w, h := canvas.Size(); w == 0 || h == 0 {
				return nil, errors.New("surface is empty")
			}
			return codec.EncodePNG(canvas.Snapshot())
		},
	}

	log.Printf("Starting web UI at http://localhost:%d\n", cfg.Port)
	if err := server.Run(ctx, cfg, uiMessages, handlers); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Printf("server stopped: %v", err)
	}
}

// surfaceUpdate encodes the canvas for websocket clients. ok is false for a
// surface that has never been sized, which has nothing to show.
func surfaceUpdate(canvas *page.Canvas) (types.FrameUpdate, bool, error) {
	snapshot := canvas.Snapshot()
	b := snapshot.Bounds()
	if b.Empty() {
		return types.FrameUpdate{}, false, nil
	}
	url, err := codec.EncodePNGDataURL(snapshot)
	if err != nil {
		return types.FrameUpdate{}, false, err
	}
	return types.FrameUpdate{Type: "frame", Image: url, Width: b.Dx(), Height: b.Dy()}, true, nil
}

func sourceName(cfg config.AppConfig) string {
	if cfg.Debug {
		return "simulator"
	}
	return cfg.Source
}

// startSource returns the producer frame stream, restarting the ingest
// when it closes and falling back to the simulator when it cannot start.
func startSource(ctx context.Context, cfg config.AppConfig, m *metrics) <-chan types.FrameMessage {
	if cfg.Debug {
		return simulator.Stream(ctx, cfg.DebugWidth, cfg.DebugHeight, cfg.DebugAcqRate)
	}
	if cfg.Source == "none" {
		return nil
	}

	var recorder ingest.RawRecorder
	if cfg.RawLogEnabled {
		writer, err := output.NewRawLogWriter(cfg.RawLogDir, "raw_"+cfg.Source)
		if err != nil {
			log.Fatalf("failed to start raw log: %v", err)
		}
		log.Printf("recording raw ingest to %s", writer.Path())
		recorder = writer
		go func() {
			<-ctx.Done()
			if err := writer.Close(); err != nil {
				log.Printf("raw log close failed: %v", err)
			}
		}()
	}

	open := func(ctx context.Context) (<-chan types.FrameMessage, error) {
		if cfg.Source == "mqtt" {
			return ingest.StreamMQTT(ctx, cfg.MQTTBroker, cfg.MQTTTopic, cfg.MQTTClientID, cfg.IngestLogEvery, recorder)
		}
		return ingest.StreamWithLogEveryAndRecorder(ctx, cfg.Endpoint, cfg.IngestLogEvery, recorder)
	}

	out := make(chan types.FrameMessage, 16)
	go func() {
		defer close(out)
		var ingestCancel context.CancelFunc
		var ingestCh <-chan types.FrameMessage
		startIngest := func() {
			if ingestCancel != nil {
				ingestCancel()
			}
			ingestCtx, cancel := context.WithCancel(ctx)
			ingestCancel = cancel
			frames, err := open(ingestCtx)
			if err != nil {
				if !cfg.IngestFallback {
					log.Fatalf("failed to start ingest: %v", err)
				}
				log.Printf("failed to start ingest: %v; falling back to simulator", err)
				ingestCh = simulator.Stream(ingestCtx, cfg.DebugWidth, cfg.DebugHeight, cfg.DebugAcqRate)
				return
			}
			ingestCh = frames
		}
		startIngest()
		for {
			select {
			case <-ctx.Done():
				if ingestCancel != nil {
					ingestCancel()
				}
				return
			case msg, ok := <-ingestCh:
				if !ok {
					if ctx.Err() != nil {
						return
					}
					m.ingestRestarts.Add(1)
					time.Sleep(time.Second)
					startIngest()
					continue
				}
				select {
				case <-ctx.Done():
					return
				case out <- msg:
				}
			}
		}
	}()
	return out
}
