package playback

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Synthesizer converts reply text to playback-rate PCM.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Player is the blocking audio output behind a SpeechRenderer.
type Player interface {
	// Play blocks until the audio has been played or ctx is canceled.
	Play(ctx context.Context, pcm []byte) error

	// Resume nudges a playback pipeline that has silently paused.
	// Some output stacks stall partway through long utterances; the
	// renderer calls this periodically while playing. Harmless when
	// playback is healthy.
	Resume() error

	Close() error
}

// defaultResumeInterval is how often the stall watchdog pokes the
// player during playback.
const defaultResumeInterval = 250 * time.Millisecond

// SpeechRenderer renders text replies by synthesizing speech and
// playing it. Starting a new reply cancels any reply still playing, so
// at most one utterance holds the floor.
type SpeechRenderer struct {
	synth  Synthesizer
	player Player
	logger *slog.Logger

	// ResumeInterval overrides the stall-watchdog period; zero means
	// the default.
	ResumeInterval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewSpeechRenderer creates a renderer over a synthesizer and a player.
func NewSpeechRenderer(synth Synthesizer, player Player, logger *slog.Logger) *SpeechRenderer {
	if logger == nil {
		logger = slog.Default()
	}
	return &SpeechRenderer{synth: synth, player: player, logger: logger}
}

// Render synthesizes and plays resp.Text. It returns once playback
// completes, fails, or is superseded by a newer Render call.
func (r *SpeechRenderer) Render(ctx context.Context, resp Response) error {
	if resp.Text == "" {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
	}
	r.cancel = cancel
	r.mu.Unlock()
	defer cancel()

	pcm, err := r.synth.Synthesize(ctx, resp.Text)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("synthesis failed: %w", err)
	}

	interval := r.ResumeInterval
	if interval <= 0 {
		interval = defaultResumeInterval
	}
	watchdogDone := make(chan struct{})
	go r.watchdog(ctx, interval, watchdogDone)
	defer func() { <-watchdogDone }()

	if err := r.player.Play(ctx, pcm); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("playback failed: %w", err)
	}
	return nil
}

// watchdog pokes the player until ctx ends.
func (r *SpeechRenderer) watchdog(ctx context.Context, interval time.Duration, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.player.Resume(); err != nil {
				r.logger.Debug("resume poke failed", "error", err)
			}
		}
	}
}

// Close cancels any active utterance and releases the player.
func (r *SpeechRenderer) Close() error {
	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
	}
	r.mu.Unlock()
	return r.player.Close()
}
