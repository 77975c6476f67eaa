package page

import (
	"fmt"
	"slices"
	"sort"
	"sync"
)

const (
	FPSValueID        = "fpsValue"
	ResolutionValueID = "resolutionValue"
	TimestampValueID  = "timestampValue"
)

// TextNode is an element holding a single line of text.
type TextNode struct {
	id string

	mu       sync.Mutex
	text     string
	onChange []func(id, text string)
}

func NewTextNode(id, text string) *TextNode {
	return &TextNode{id: id, text: text}
}

func (n *TextNode) ID() string { return n.id }

func (n *TextNode) SetText(text string) {
	n.mu.Lock()
	n.text = text
	observers := slices.Clone(n.onChange)
	n.mu.Unlock()
	for _, fn := range observers {
		fn(n.id, text)
	}
}

func (n *TextNode) Text() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.text
}

func (n *TextNode) OnChange(fn func(id, text string)) {
	if fn == nil {
		return
	}
	n.mu.Lock()
	n.onChange = append(n.onChange, fn)
	n.mu.Unlock()
}

// Document is the set of elements a viewer page exposes, looked up by id.
type Document struct {
	mu       sync.RWMutex
	canvases map[string]*Canvas
	texts    map[string]*TextNode
}

func NewDocument() *Document {
	return &Document{
		canvases: make(map[string]*Canvas),
		texts:    make(map[string]*TextNode),
	}
}

// NewViewerPage builds a document with a canvas and the three metadata nodes.
func NewViewerPage(canvasID string) *Document {
	doc := NewDocument()
	doc.AddCanvas(NewCanvas(canvasID))
	doc.AddText(NewTextNode(FPSValueID, "0.0"))
	doc.AddText(NewTextNode(ResolutionValueID, "0x0"))
	doc.AddText(NewTextNode(TimestampValueID, "--"))
	return doc
}

func (d *Document) AddCanvas(c *Canvas) {
	d.mu.Lock()
	d.canvases[c.ID()] = c
	d.mu.Unlock()
}

func (d *Document) AddText(n *TextNode) {
	d.mu.Lock()
	d.texts[n.ID()] = n
	d.mu.Unlock()
}

func (d *Document) Canvas(id string) (*Canvas, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.canvases[id]
	if !ok {
		return nil, fmt.Errorf("canvas element with id %q: %w", id, ErrElementNotFound)
	}
	return c, nil
}

func (d *Document) Text(id string) (*TextNode, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	n, ok := d.texts[id]
	return n, ok
}

type TextState struct {
	ID   string
	Text string
}

// Texts returns every text node's current value, ordered by id.
func (d *Document) Texts() []TextState {
	d.mu.RLock()
	nodes := make([]*TextNode, 0, len(d.texts))
	for _, n := range d.texts {
		nodes = append(nodes, n)
	}
	d.mu.RUnlock()
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID() < nodes[j].ID() })
	out := make([]TextState, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, TextState{ID: n.ID(), Text: n.Text()})
	}
	return out
}
