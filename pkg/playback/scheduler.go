package playback

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kansoai/interviewkit/pkg/media"
)

// Sink is the audio output a Scheduler schedules onto.
type Sink interface {
	// PlayAt queues pcm to begin at the given time. It must not block
	// for the duration of the audio.
	PlayAt(pcm []byte, at time.Time, duration time.Duration) error
}

// Scheduler renders streamed-audio replies. Each chunk is scheduled at
// max(now, end of previous chunk), so chunks never overlap and
// back-to-back chunks are gapless. When the stream stalls long enough
// for the previous end time to fall into the past, the next chunk is
// clamped to now instead of being scheduled retroactively.
type Scheduler struct {
	sink   Sink
	clock  Clock
	logger *slog.Logger

	mu        sync.Mutex
	nextStart time.Time
}

// NewScheduler creates a chunk scheduler. A nil clock uses the wall
// clock.
func NewScheduler(sink Sink, clock Clock, logger *slog.Logger) *Scheduler {
	if clock == nil {
		clock = SystemClock
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{sink: sink, clock: clock, logger: logger}
}

// Enqueue schedules one chunk and returns its start time.
func (s *Scheduler) Enqueue(frame media.Frame) (time.Time, error) {
	if frame.SampleRate != media.PlaybackRate {
		return time.Time{}, fmt.Errorf("scheduler: expected %d Hz chunk, got %d", media.PlaybackRate, frame.SampleRate)
	}

	duration := frame.Duration()

	s.mu.Lock()
	start := s.clock.Now()
	if s.nextStart.After(start) {
		start = s.nextStart
	}
	s.nextStart = start.Add(duration)
	s.mu.Unlock()

	if err := s.sink.PlayAt(frame.Data, start, duration); err != nil {
		return start, fmt.Errorf("scheduler: sink rejected chunk: %w", err)
	}
	return start, nil
}

// Render consumes the reply's audio stream, then waits for the last
// scheduled chunk to finish before returning the floor.
func (s *Scheduler) Render(ctx context.Context, resp Response) error {
	if resp.Audio == nil {
		return nil
	}

	var firstErr error
	for {
		select {
		case frame, ok := <-resp.Audio:
			if !ok {
				return s.drain(ctx, firstErr)
			}
			if _, err := s.Enqueue(frame); err != nil && firstErr == nil {
				firstErr = err
				s.logger.Warn("chunk dropped", "error", err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// drain blocks until the schedule is exhausted.
func (s *Scheduler) drain(ctx context.Context, firstErr error) error {
	s.mu.Lock()
	remaining := s.nextStart.Sub(s.clock.Now())
	s.mu.Unlock()

	if remaining > 0 {
		select {
		case <-time.After(remaining):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return firstErr
}

// Close implements Renderer. The sink owns device teardown.
func (s *Scheduler) Close() error { return nil }
