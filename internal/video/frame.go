package video

import (
	"image"
	"sync"
)

// Frame is an opaque decoded or raw video frame. Width and Height are zero
// when the source yields undecoded payloads.
type Frame struct {
	Width  int
	Height int
	Data   []byte
}

// Empty reports whether the frame carries no pixel data.
func (f Frame) Empty() bool {
	return len(f.Data) == 0
}

// Clone returns an independent copy of the frame, so a later overwrite of
// the buffer cannot corrupt data already handed out.
func (f Frame) Clone() Frame {
	c := f
	c.Data = make([]byte, len(f.Data))
	copy(c.Data, f.Data)
	return c
}

// RGBA reinterprets the frame as an RGBA image when the dimensions match
// the payload. Returns nil for raw/undecoded frames.
func (f Frame) RGBA() *image.RGBA {
	if f.Width <= 0 || f.Height <= 0 || len(f.Data) != f.Width*f.Height*4 {
		return nil
	}
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	copy(img.Pix, f.Data)
	return img
}

// frameBuffer is the single-slot, overwrite-on-write holder for the most
// recent frame. The writer replaces wholesale; readers copy out. No
// back-pressure: the oldest unread frame is silently dropped.
type frameBuffer struct {
	mu    sync.Mutex
	frame Frame
	set   bool
}

func (b *frameBuffer) store(f Frame) {
	b.mu.Lock()
	b.frame = f
	b.set = true
	b.mu.Unlock()
}

func (b *frameBuffer) load() (Frame, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.set {
		return Frame{}, false
	}
	return b.frame.Clone(), true
}

func (b *frameBuffer) clear() {
	b.mu.Lock()
	b.frame = Frame{}
	b.set = false
	b.mu.Unlock()
}
