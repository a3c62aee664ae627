package video

import (
	"bytes"
	"image"
	"image/jpeg"
	"sync"
	"time"
)

// FrameSink receives decoded frames.
type FrameSink interface {
	PushFrame(img image.Image)
}

// FrameBuffer keeps the most recently decoded frame for screenshot readback
// and fans each frame out to an optional callback for live viewers.
type FrameBuffer struct {
	mu      sync.Mutex
	img     image.Image
	seq     uint64
	updated chan struct{}
	onFrame func(img image.Image)
}

// NewFrameBuffer creates an empty frame buffer.
func NewFrameBuffer() *FrameBuffer {
	return &FrameBuffer{updated: make(chan struct{})}
}

// OnFrame registers a callback invoked outside the lock for every frame.
func (b *FrameBuffer) OnFrame(fn func(img image.Image)) {
	b.mu.Lock()
	b.onFrame = fn
	b.mu.Unlock()
}

// PushFrame stores the frame and wakes any waiters.
func (b *FrameBuffer) PushFrame(img image.Image) {
	b.mu.Lock()
	b.img = img
	b.seq++
	close(b.updated)
	b.updated = make(chan struct{})
	fn := b.onFrame
	b.mu.Unlock()
	if fn != nil {
		fn(img)
	}
}

// Latest returns the most recent frame and its sequence number. The frame
// is nil until the first push.
func (b *FrameBuffer) Latest() (image.Image, uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.img, b.seq
}

// Wait returns the latest frame, blocking up to timeout when none has
// arrived yet. Nil means the stream produced nothing in time.
func (b *FrameBuffer) Wait(timeout time.Duration) image.Image {
	b.mu.Lock()
	img := b.img
	ch := b.updated
	b.mu.Unlock()
	if img != nil {
		return img
	}
	select {
	case <-ch:
		latest, _ := b.Latest()
		return latest
	case <-time.After(timeout):
		return nil
	}
}

// EncodeJPEG renders an image to JPEG at the given quality (1-100).
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
