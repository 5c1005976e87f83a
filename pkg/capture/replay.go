package capture

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kansoai/interviewkit/pkg/media"
	"github.com/kansoai/interviewkit/pkg/media/wav"
)

// Replay is a StreamingCapture that plays a prerecorded WAV file as if
// it were live microphone input. Frames are paced in real time by
// default so downstream quiet detection behaves as it would live.
type Replay struct {
	filename string
	realtime bool

	frames    chan media.Frame
	muted     atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
}

// NewReplay creates a replay source for filename. When realtime is
// false, frames are emitted as fast as the consumer accepts them.
func NewReplay(filename string, realtime bool) *Replay {
	return &Replay{
		filename: filename,
		realtime: realtime,
		frames:   make(chan media.Frame, 16),
		done:     make(chan struct{}),
	}
}

// Start reads the file and begins emitting frames. A missing or
// malformed file maps to ErrUnavailable.
func (r *Replay) Start(ctx context.Context) error {
	reader, err := wav.Open(r.filename)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	frames, err := reader.ReadFrames()
	reader.Close()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	go r.emit(ctx, frames)
	return nil
}

func (r *Replay) emit(ctx context.Context, frames []media.Frame) {
	defer close(r.frames)

	var ticker *time.Ticker
	if r.realtime {
		ticker = time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
	}

	for _, frame := range frames {
		if ticker != nil {
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			case <-r.done:
				return
			}
		}
		if r.muted.Load() {
			continue
		}
		select {
		case r.frames <- frame:
		case <-ctx.Done():
			return
		case <-r.done:
			return
		}
	}
}

// Frames returns the frame channel; it closes when the recording ends.
func (r *Replay) Frames() <-chan media.Frame {
	return r.frames
}

// SetMuted drops frames while muted without stopping playback progress.
func (r *Replay) SetMuted(muted bool) {
	r.muted.Store(muted)
}

// Close stops emission early.
func (r *Replay) Close() error {
	r.closeOnce.Do(func() { close(r.done) })
	return nil
}
