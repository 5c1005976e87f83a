// Package capture defines the audio capture side of an interview
// session. Two capability levels exist: a StreamingCapture produces raw
// audio frames, and a RecognizingCapture produces recognized speech
// fragments. Recognizers are usually built on top of a frame source
// (see pkg/providers/openai).
package capture

import (
	"context"
	"errors"
	"time"

	"github.com/kansoai/interviewkit/pkg/media"
)

// Acquisition errors. Sources wrap these so callers can classify a
// failed Start with errors.Is.
var (
	// ErrPermissionDenied means the user or OS refused microphone access.
	ErrPermissionDenied = errors.New("capture: permission denied")

	// ErrUnavailable means no capture device or source could be acquired.
	ErrUnavailable = errors.New("capture: source unavailable")
)

// EventType classifies a recognition event.
type EventType int

const (
	// EventInterim is a partial transcription that may still change.
	EventInterim EventType = iota
	// EventFinal is a committed speech fragment.
	EventFinal
	// EventNoSpeech means recognition ended without hearing anything.
	EventNoSpeech
	// EventError carries a recognition failure.
	EventError
)

func (t EventType) String() string {
	switch t {
	case EventInterim:
		return "interim"
	case EventFinal:
		return "final"
	case EventNoSpeech:
		return "no-speech"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is one recognition result from a RecognizingCapture.
type Event struct {
	Type EventType
	Text string // empty except for interim/final
	At   time.Time
	Err  error // set only for EventError
}

// RecognizingCapture turns microphone audio into speech fragments.
//
// Start acquires the underlying source and begins recognition; it
// returns an error wrapping ErrPermissionDenied or ErrUnavailable when
// acquisition fails. Events is closed when recognition stops for good.
// Mute suppresses fragment emission without releasing the source, so
// unmuting resumes instantly.
type RecognizingCapture interface {
	Start(ctx context.Context) error
	Events() <-chan Event
	SetMuted(muted bool)
	Muted() bool

	// Stop halts recognition but keeps the source acquired, allowing a
	// restart. Close releases everything; both are idempotent.
	Stop() error
	Close() error
}

// StreamingCapture produces raw audio frames at media.CaptureRate.
// Frames is closed when the source is exhausted or closed.
type StreamingCapture interface {
	Start(ctx context.Context) error
	Frames() <-chan media.Frame
	SetMuted(muted bool)
	Close() error
}
