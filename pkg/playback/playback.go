// Package playback renders interviewer replies. A reply is either plain
// text, synthesized to speech locally, or a stream of 24 kHz PCM chunks
// scheduled gaplessly. Both paths satisfy the Renderer contract: Render
// blocks while the interviewer holds the floor and always returns, so
// the session can rely on the floor coming back.
package playback

import (
	"context"
	"time"

	"github.com/kansoai/interviewkit/pkg/media"
)

// Response is one interviewer reply handed to a renderer. Audio is nil
// for text-only replies; when set, it carries streamed playback-rate
// PCM chunks and closes when the reply is complete.
type Response struct {
	Text  string
	Audio <-chan media.Frame
}

// Renderer plays a reply. Render blocks until playback finishes or
// fails; it must return in every case so the caller can reopen the
// floor.
type Renderer interface {
	Render(ctx context.Context, resp Response) error
	Close() error
}

// Clock abstracts time for the scheduler so tests can control it.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// SystemClock is the wall clock.
var SystemClock Clock = realClock{}
