package session

import (
	"errors"
	"fmt"

	"github.com/kansoai/interviewkit/pkg/capture"
)

// Terminal error classes. Every way a session can end abnormally maps
// onto exactly one of these, and each carries a human-readable reason
// suitable for a status line.
var (
	// ErrPermissionDenied means microphone access was refused.
	ErrPermissionDenied = errors.New("microphone permission denied")

	// ErrCaptureUnavailable means no capture source could be acquired.
	ErrCaptureUnavailable = errors.New("microphone unavailable")

	// ErrConnectionFailed means the interview endpoint could not be
	// reached or rejected the handshake.
	ErrConnectionFailed = errors.New("could not reach the interview service")

	// ErrRemoteError means the backend reported a failure mid-session.
	ErrRemoteError = errors.New("the interview service reported an error")

	// ErrUnexpectedClose means the connection dropped without either
	// side asking for it.
	ErrUnexpectedClose = errors.New("connection to the interview service was lost")
)

// classifyCaptureErr maps a capture acquisition failure onto the
// session taxonomy.
func classifyCaptureErr(err error) error {
	switch {
	case errors.Is(err, capture.ErrPermissionDenied):
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	case errors.Is(err, capture.ErrUnavailable):
		return fmt.Errorf("%w: %v", ErrCaptureUnavailable, err)
	default:
		return fmt.Errorf("%w: %v", ErrCaptureUnavailable, err)
	}
}

// reason renders a terminal error as a short user-facing phrase.
func reason(err error) string {
	if err == nil {
		return "interview complete"
	}
	for _, class := range []error{
		ErrPermissionDenied,
		ErrCaptureUnavailable,
		ErrConnectionFailed,
		ErrRemoteError,
		ErrUnexpectedClose,
	} {
		if errors.Is(err, class) {
			return class.Error()
		}
	}
	return err.Error()
}
