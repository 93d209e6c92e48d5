// Package fake provides a recording actuator link for tests.
package fake

import (
	"context"
	"sync"

	"github.com/yannnico/rc-car-project/internal/actuator"
	"github.com/yannnico/rc-car-project/internal/codec"
)

// Link records every frame it is asked to send.
type Link struct {
	mu     sync.Mutex
	frames []codec.Frame
	err    error
	closed bool

	// Sent receives a copy of each frame when non-nil. Sends never block on it.
	Sent chan codec.Frame
}

var _ actuator.Link = (*Link)(nil)

// NewLink creates a fake link with a buffered Sent channel.
func NewLink() *Link {
	return &Link{Sent: make(chan codec.Frame, 256)}
}

// Send records frame, or returns the injected error.
func (l *Link) Send(ctx context.Context, frame codec.Frame) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return actuator.Normalize("send", actuator.ErrUnavailable)
	}
	if l.err != nil {
		err := l.err
		l.mu.Unlock()
		return err
	}
	l.frames = append(l.frames, frame)
	l.mu.Unlock()

	if l.Sent != nil {
		select {
		case l.Sent <- frame:
		default:
		}
	}
	return nil
}

// Addr returns a fixed placeholder address.
func (l *Link) Addr() string { return "fake:0" }

// Close marks the link closed.
func (l *Link) Close() error {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	return nil
}

// SetError makes subsequent sends fail with err. Pass nil to clear.
func (l *Link) SetError(err error) {
	l.mu.Lock()
	l.err = err
	l.mu.Unlock()
}

// Frames returns a copy of everything sent so far.
func (l *Link) Frames() []codec.Frame {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]codec.Frame, len(l.frames))
	copy(out, l.frames)
	return out
}

// Last returns the most recent frame and whether any was sent.
func (l *Link) Last() (codec.Frame, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.frames) == 0 {
		return codec.Frame{}, false
	}
	return l.frames[len(l.frames)-1], true
}

// Reset forgets recorded frames.
func (l *Link) Reset() {
	l.mu.Lock()
	l.frames = nil
	l.mu.Unlock()
}
