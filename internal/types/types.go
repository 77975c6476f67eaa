package types

// FrameStats describes the most recently displayed frame.
// Timestamp is in milliseconds since the epoch.
type FrameStats struct {
	FPS        float64 `json:"fps"`
	Resolution string  `json:"resolution"`
	Timestamp  int64   `json:"timestamp"`
}

// StatsPatch is a partial FrameStats. Nil fields keep their previous value.
// There is no timestamp: it is always taken at display time.
type StatsPatch struct {
	FPS        *float64 `json:"fps,omitempty"`
	Resolution *string  `json:"resolution,omitempty"`
}

func (p StatsPatch) Apply(current FrameStats) FrameStats {
	if p.FPS != nil {
		current.FPS = *p.FPS
	}
	if p.Resolution != nil {
		current.Resolution = *p.Resolution
	}
	return current
}

func Float(v float64) *float64 { return &v }

func String(v string) *string { return &v }

// FrameMessage is one frame delivered by an external producer.
// Either Image (an encoded payload) or Pixels (raw RGBA) is set.
type FrameMessage struct {
	TraceID    string
	FrameID    int
	Image      string
	Pixels     []uint8
	Width      int
	Height     int
	FPS        *float64
	Resolution *string
}

func (m FrameMessage) IsRaw() bool {
	return m.Image == "" && len(m.Pixels) > 0
}

// MaxFrameDim bounds each side of a displayed frame.
const MaxFrameDim = 8192

// ValidDims reports whether w x h is a drawable, non-empty frame size.
// Checking it before multiplying keeps buffer-size arithmetic from overflowing.
func ValidDims(w, h int) bool {
	return w > 0 && h > 0 && w <= MaxFrameDim && h <= MaxFrameDim
}
