package levelmap

// Frames cycles the visual layers of a level. The server never draws them;
// it only keeps the frame index so clients joining late can sync.
type Frames struct {
	names      []string
	current    int
	frameCount int
	frameTime  int
}

func NewFrames() *Frames {
	return &Frames{}
}

// Add appends a frame.
func (f *Frames) Add(name string) {
	f.names = append(f.names, name)
}

// SetFrameRate sets how many frames per second to cycle, assuming a 60 Hz
// update.
func (f *Frames) SetFrameRate(fps int) {
	if fps <= 0 {
		f.frameTime = 0
		return
	}
	f.frameTime = 60 / fps
}

// Update advances the frame counter by one tick.
func (f *Frames) Update() {
	if len(f.names) == 0 || f.frameTime == 0 {
		return
	}
	if f.frameCount == f.frameTime {
		f.frameCount = 0
		f.current = (f.current + 1) % len(f.names)
	}
	f.frameCount++
}

// Current returns the active frame name, or "" with no frames.
func (f *Frames) Current() string {
	if len(f.names) == 0 {
		return ""
	}
	return f.names[f.current]
}

// Index returns the active frame index.
func (f *Frames) Index() int {
	return f.current
}
