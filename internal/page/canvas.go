package page

import (
	"errors"
	"fmt"
	"image"
	"slices"
	"sync"

	"golang.org/x/image/draw"
)

var (
	ErrElementNotFound    = errors.New("element not found")
	ErrContextUnavailable = errors.New("canvas context not available")
)

// Context2D is the drawing context of a Canvas.
type Context2D interface {
	DrawImage(img image.Image, x, y int)
	PutImageData(img *image.RGBA, x, y int)
	ClearRect(x, y, w, h int)
}

// Canvas is an in-memory raster drawing surface.
type Canvas struct {
	id       string
	detached bool

	mu       sync.Mutex
	img      *image.RGBA
	onChange []func(*Canvas)
}

func NewCanvas(id string) *Canvas {
	return &Canvas{
		id:  id,
		img: image.NewRGBA(image.Rect(0, 0, 0, 0)),
	}
}

// NewDetachedCanvas returns a canvas without 2D support; Context2D always fails.
func NewDetachedCanvas(id string) *Canvas {
	c := NewCanvas(id)
	c.detached = true
	return c
}

func (c *Canvas) ID() string { return c.id }

func (c *Canvas) Context2D() (Context2D, error) {
	if c.detached {
		return nil, fmt.Errorf("canvas %q: %w", c.id, ErrContextUnavailable)
	}
	return &context2D{canvas: c}, nil
}

// Resize reallocates the backing store. Existing content is discarded.
func (c *Canvas) Resize(w, h int) {
	if w < 0 {
		w = 0
	}
	if h < 0 {
		h = 0
	}
	c.mu.Lock()
	c.img = image.NewRGBA(image.Rect(0, 0, w, h))
	c.mu.Unlock()
	c.notify()
}

func (c *Canvas) Size() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b := c.img.Bounds()
	return b.Dx(), b.Dy()
}

// Snapshot returns a copy of the current pixels.
func (c *Canvas) Snapshot() *image.RGBA {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := image.NewRGBA(c.img.Bounds())
	copy(out.Pix, c.img.Pix)
	return out
}

func (c *Canvas) OnChange(fn func(*Canvas)) {
	if fn == nil {
		return
	}
	c.mu.Lock()
	c.onChange = append(c.onChange, fn)
	c.mu.Unlock()
}

func (c *Canvas) notify() {
	c.mu.Lock()
	observers := slices.Clone(c.onChange)
	c.mu.Unlock()
	for _, fn := range observers {
		fn(c)
	}
}

type context2D struct {
	canvas *Canvas
}

func (x *context2D) DrawImage(img image.Image, dx, dy int) {
	if img == nil {
		return
	}
	c := x.canvas
	c.mu.Lock()
	b := img.Bounds()
	r := image.Rect(dx, dy, dx+b.Dx(), dy+b.Dy())
	draw.Draw(c.img, r, img, b.Min, draw.Over)
	c.mu.Unlock()
	c.notify()
}

func (x *context2D) PutImageData(img *image.RGBA, dx, dy int) {
	if img == nil {
		return
	}
	c := x.canvas
	c.mu.Lock()
	b := img.Bounds()
	r := image.Rect(dx, dy, dx+b.Dx(), dy+b.Dy())
	draw.Draw(c.img, r, img, b.Min, draw.Src)
	c.mu.Unlock()
	c.notify()
}

func (x *context2D) ClearRect(rx, ry, w, h int) {
	c := x.canvas
	c.mu.Lock()
	r := image.Rect(rx, ry, rx+w, ry+h).Intersect(c.img.Bounds())
	draw.Draw(c.img, r, image.Transparent, image.Point{}, draw.Src)
	c.mu.Unlock()
	c.notify()
}
