package viewer

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"os"
	"sync"
	"time"

	"edge-viewer-go/internal/codec"
	"edge-viewer-go/internal/page"
	"edge-viewer-go/internal/types"
)

var ErrInvalidImageData = errors.New("invalid image data")

// Surface is the drawing surface a Viewer renders into.
type Surface interface {
	Context2D() (page.Context2D, error)
	Resize(w, h int)
	Size() (int, int)
}

// TextSink is anything holding settable text.
type TextSink interface {
	SetText(string)
}

// Fields are the metadata outputs. A nil sink is skipped.
type Fields struct {
	FPS        TextSink
	Resolution TextSink
	Timestamp  TextSink
}

// ImageData is a raw RGBA pixel buffer, 4 bytes per pixel, row-major.
type ImageData struct {
	Width  int
	Height int
	Pix    []uint8
}

type DecodeFunc func(ctx context.Context, payload string) (image.Image, error)

type Option func(*Viewer)

func WithFields(f Fields) Option { return func(v *Viewer) { v.fields = f } }

func WithLogger(l *log.Logger) Option {
	return func(v *Viewer) {
		if l != nil {
			v.log = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(v *Viewer) {
		if now != nil {
			v.now = now
		}
	}
}

func WithDecoder(fn DecodeFunc) Option {
	return func(v *Viewer) {
		if fn != nil {
			v.decode = fn
		}
	}
}

type Viewer struct {
	surface Surface
	ctx2d   page.Context2D
	fields  Fields
	log     *log.Logger
	now     func() time.Time
	decode  DecodeFunc

	mu         sync.Mutex
	stats      types.FrameStats
	generation uint64
	cancel     context.CancelFunc
}

func New(surface Surface, opts ...Option) *Viewer {
	v := &Viewer{
		surface: surface,
		log:     log.New(os.Stderr, "", log.LstdFlags),
		now:     time.Now,
		decode:  codec.DecodeImageContext,
	}
	for _, opt := range opts {
		opt(v)
	}
	ctx2d, err := surface.Context2D()
	if err != nil {
		v.log.Printf("viewer: %v", err)
	} else {
		v.ctx2d = ctx2d
	}
	v.stats = initialStats(v.now())
	return v
}

// FromDocument looks up the canvas and the metadata nodes by their fixed ids.
// statsID is accepted for compatibility and is not checked.
func FromDocument(doc *page.Document, canvasID string, statsID string, opts ...Option) (*Viewer, error) {
	canvas, err := doc.Canvas(canvasID)
	if err != nil {
		return nil, err
	}
	var fields Fields
	if n, ok := doc.Text(page.FPSValueID); ok {
		fields.FPS = n
	}
	if n, ok := doc.Text(page.ResolutionValueID); ok {
		fields.Resolution = n
	}
	if n, ok := doc.Text(page.TimestampValueID); ok {
		fields.Timestamp = n
	}
	return New(canvas, append([]Option{WithFields(fields)}, opts...)...), nil
}

func initialStats(now time.Time) types.FrameStats {
	return types.FrameStats{
		FPS:        0,
		Resolution: "0x0",
		Timestamp:  now.UnixMilli(),
	}
}

// DisplayFrame decodes payload in the background and draws it when done.
// A later call supersedes any decode still in flight. Decode errors are
// logged and reported on the returned Task, never to the caller directly.
func (v *Viewer) DisplayFrame(payload string, patch *types.StatsPatch) *Task {
	task := newTask()
	if v.ctx2d == nil {
		v.log.Printf("viewer: %v", page.ErrContextUnavailable)
		task.resolve(Failed, page.ErrContextUnavailable)
		return task
	}

	ctx, cancel := context.WithCancel(context.Background())
	v.mu.Lock()
	if v.cancel != nil {
		v.cancel()
	}
	v.generation++
	gen := v.generation
	v.cancel = cancel
	v.mu.Unlock()

	var p *types.StatsPatch
	if patch != nil {
		cp := *patch
		p = &cp
	}

	go func() {
		defer cancel()
		img, err := v.decode(ctx, payload)

		v.mu.Lock()
		defer v.mu.Unlock()
		if gen != v.generation {
			task.resolve(Superseded, nil)
			return
		}
		v.cancel = nil
		if err != nil {
			v.log.Printf("failed to load image: %v", err)
			task.resolve(Failed, err)
			return
		}

		b := img.Bounds()
		v.surface.Resize(b.Dx(), b.Dy())
		v.ctx2d.DrawImage(img, 0, 0)

		if p != nil {
			stats := p.Apply(v.stats)
			stats.Timestamp = v.now().UnixMilli()
			v.setStatsLocked(stats)
		}
		task.resolve(Displayed, nil)
	}()
	return task
}

// DisplayImageData blits raw pixels synchronously. Stats are not touched.
func (v *Viewer) DisplayImageData(data ImageData) error {
	if v.ctx2d == nil {
		v.log.Printf("viewer: %v", page.ErrContextUnavailable)
		return page.ErrContextUnavailable
	}
	if data.Width < 0 || data.Height < 0 ||
		data.Width > types.MaxFrameDim || data.Height > types.MaxFrameDim ||
		len(data.Pix) != 4*data.Width*data.Height {
		err := fmt.Errorf("%w: %dx%d with %d bytes", ErrInvalidImageData, data.Width, data.Height, len(data.Pix))
		v.log.Printf("viewer: %v", err)
		return err
	}

	img := &image.RGBA{
		Pix:    data.Pix,
		Stride: 4 * data.Width,
		Rect:   image.Rect(0, 0, data.Width, data.Height),
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	// Raw frames win over a decode still in flight.
	v.supersedeLocked()
	v.surface.Resize(data.Width, data.Height)
	v.ctx2d.PutImageData(img, 0, 0)
	return nil
}

// ApplyStats merges patch into the current stats with a fresh timestamp.
func (v *Viewer) ApplyStats(patch types.StatsPatch) {
	v.mu.Lock()
	defer v.mu.Unlock()
	stats := patch.Apply(v.stats)
	stats.Timestamp = v.now().UnixMilli()
	v.setStatsLocked(stats)
}

// Clear erases the surface. Stats are left as they are.
func (v *Viewer) Clear() {
	if v.ctx2d == nil {
		v.log.Printf("viewer: %v", page.ErrContextUnavailable)
		return
	}
	w, h := v.surface.Size()
	v.ctx2d.ClearRect(0, 0, w, h)
}

// ResetStats restores the initial stats and refreshes the metadata text.
func (v *Viewer) ResetStats() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.setStatsLocked(initialStats(v.now()))
}

func (v *Viewer) Stats() types.FrameStats {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.stats
}

func (v *Viewer) Canvas() Surface {
	return v.surface
}

func (v *Viewer) supersedeLocked() {
	if v.cancel != nil {
		v.cancel()
		v.cancel = nil
	}
	v.generation++
}

func (v *Viewer) setStatsLocked(stats types.FrameStats) {
	v.stats = stats
	if v.fields.FPS != nil {
		v.fields.FPS.SetText(FormatFPS(stats.FPS))
	}
	if v.fields.Resolution != nil {
		v.fields.Resolution.SetText(stats.Resolution)
	}
	if v.fields.Timestamp != nil {
		v.fields.Timestamp.SetText(FormatTimestamp(stats.Timestamp))
	}
}

func FormatFPS(fps float64) string {
	return fmt.Sprintf("%.1f", fps)
}

func FormatTimestamp(ms int64) string {
	return time.UnixMilli(ms).Format("15:04:05")
}

func FormatResolution(w, h int) string {
	return fmt.Sprintf("%dx%d", w, h)
}
