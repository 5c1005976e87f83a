// Package fake provides scripted capture sources for tests.
package fake

import (
	"context"
	"sync"
	"time"

	"github.com/kansoai/interviewkit/pkg/capture"
	"github.com/kansoai/interviewkit/pkg/media"
)

// Step is one scripted recognition event, emitted after its delay.
type Step struct {
	Delay time.Duration
	Event capture.Event
}

// Fragment is a convenience constructor for a final-fragment step.
func Fragment(delay time.Duration, text string) Step {
	return Step{Delay: delay, Event: capture.Event{Type: capture.EventFinal, Text: text}}
}

// Recognizer is a scripted RecognizingCapture. Each call to Start plays
// the next script in order; restarts after a no-speech event play the
// following script, which is how session restart behavior is exercised.
type Recognizer struct {
	mu       sync.Mutex
	scripts  [][]Step
	next     int
	startErr error
	muted    bool
	starts   int
	stops    int
	closes   int

	events    chan capture.Event
	closeOnce sync.Once
	done      chan struct{}
}

// NewRecognizer creates a scripted recognizer. Scripts are consumed one
// per Start call.
func NewRecognizer(scripts ...[]Step) *Recognizer {
	return &Recognizer{
		scripts: scripts,
		events:  make(chan capture.Event, 32),
		done:    make(chan struct{}),
	}
}

// FailStart makes every subsequent Start return err.
func (r *Recognizer) FailStart(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.startErr = err
}

// Starts reports how many times Start was called.
func (r *Recognizer) Starts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.starts
}

// Stops reports how many times Stop was called.
func (r *Recognizer) Stops() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stops
}

// Closes reports how many times Close was called.
func (r *Recognizer) Closes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closes
}

func (r *Recognizer) Start(ctx context.Context) error {
	r.mu.Lock()
	r.starts++
	if r.startErr != nil {
		err := r.startErr
		r.mu.Unlock()
		return err
	}
	var script []Step
	if r.next < len(r.scripts) {
		script = r.scripts[r.next]
		r.next++
	}
	r.mu.Unlock()

	go r.play(ctx, script)
	return nil
}

func (r *Recognizer) play(ctx context.Context, script []Step) {
	for _, step := range script {
		select {
		case <-time.After(step.Delay):
		case <-ctx.Done():
			return
		case <-r.done:
			return
		}

		r.mu.Lock()
		muted := r.muted
		r.mu.Unlock()
		if muted && step.Event.Type != capture.EventError {
			continue
		}

		ev := step.Event
		if ev.At.IsZero() {
			ev.At = time.Now()
		}
		select {
		case r.events <- ev:
		case <-ctx.Done():
			return
		case <-r.done:
			return
		}
	}
}

func (r *Recognizer) Events() <-chan capture.Event {
	return r.events
}

func (r *Recognizer) SetMuted(muted bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.muted = muted
}

func (r *Recognizer) Muted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.muted
}

func (r *Recognizer) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stops++
	return nil
}

func (r *Recognizer) Close() error {
	r.mu.Lock()
	r.closes++
	r.mu.Unlock()
	r.closeOnce.Do(func() { close(r.done) })
	return nil
}

// FrameSource is a scripted StreamingCapture emitting a fixed sequence
// of frames as fast as the consumer accepts them.
type FrameSource struct {
	frames    []media.Frame
	out       chan media.Frame
	muted     sync.Mutex
	isMuted   bool
	closeOnce sync.Once
	done      chan struct{}
}

// NewFrameSource creates a frame source that will emit frames then
// close its channel.
func NewFrameSource(frames []media.Frame) *FrameSource {
	return &FrameSource{
		frames: frames,
		out:    make(chan media.Frame, 16),
		done:   make(chan struct{}),
	}
}

func (s *FrameSource) Start(ctx context.Context) error {
	go func() {
		defer close(s.out)
		for _, frame := range s.frames {
			s.muted.Lock()
			muted := s.isMuted
			s.muted.Unlock()
			if muted {
				continue
			}
			select {
			case s.out <- frame:
			case <-ctx.Done():
				return
			case <-s.done:
				return
			}
		}
	}()
	return nil
}

func (s *FrameSource) Frames() <-chan media.Frame {
	return s.out
}

func (s *FrameSource) SetMuted(muted bool) {
	s.muted.Lock()
	defer s.muted.Unlock()
	s.isMuted = muted
}

func (s *FrameSource) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	return nil
}
