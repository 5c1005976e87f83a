// Package fake provides a recording renderer for session tests.
package fake

import (
	"context"
	"sync"
	"time"

	"github.com/kansoai/interviewkit/pkg/playback"
)

// Renderer records every reply it is asked to render and holds the
// floor for a configurable duration, simulating speech of that length.
type Renderer struct {
	mu         sync.Mutex
	rendered   []playback.Response
	renderTime time.Duration
	renderErr  error
	active     int
	maxActive  int
	closed     bool
}

// NewRenderer creates a recording renderer. renderTime is how long each
// Render call blocks.
func NewRenderer(renderTime time.Duration) *Renderer {
	return &Renderer{renderTime: renderTime}
}

// SetError makes subsequent Render calls return err after blocking.
func (r *Renderer) SetError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.renderErr = err
}

// Rendered returns the replies rendered so far.
func (r *Renderer) Rendered() []playback.Response {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]playback.Response, len(r.rendered))
	copy(out, r.rendered)
	return out
}

// Texts returns just the reply texts, in order.
func (r *Renderer) Texts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	texts := make([]string, len(r.rendered))
	for i, resp := range r.rendered {
		texts[i] = resp.Text
	}
	return texts
}

// MaxConcurrent reports the most Render calls ever in flight at once.
// The half-duplex invariant requires this to stay at 1.
func (r *Renderer) MaxConcurrent() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.maxActive
}

// Closed reports whether Close was called.
func (r *Renderer) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *Renderer) Render(ctx context.Context, resp playback.Response) error {
	r.mu.Lock()
	r.rendered = append(r.rendered, resp)
	r.active++
	if r.active > r.maxActive {
		r.maxActive = r.active
	}
	hold := r.renderTime
	err := r.renderErr
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.active--
		r.mu.Unlock()
	}()

	if hold > 0 {
		select {
		case <-time.After(hold):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (r *Renderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}
