// Package turn decides when the candidate's turn is over: a debounced
// silence-commit timer, optionally sharpened by a model-based
// end-of-utterance detector.
package turn

import (
	"sync"
	"time"
)

// CommitTimer fires once after a quiet interval with no new speech.
// Every Touch re-arms it, so the callback only runs after a strictly
// quiet stretch. The callback runs on a timer goroutine; callers are
// expected to post it onto their own event queue.
type CommitTimer struct {
	quiet time.Duration
	fire  func()

	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

// NewCommitTimer creates a disarmed timer. quiet is the configured
// silence interval; fire is invoked when it elapses untouched.
func NewCommitTimer(quiet time.Duration, fire func()) *CommitTimer {
	return &CommitTimer{quiet: quiet, fire: fire}
}

// Touch arms the timer, or re-arms it if already pending.
func (t *CommitTimer) Touch() {
	t.TouchAfter(t.quiet)
}

// TouchAfter arms the timer with an explicit delay. Used to shorten the
// wait when an end-of-utterance detector is confident the turn is done.
func (t *CommitTimer) TouchAfter(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return
	}
	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = time.AfterFunc(d, t.fire)
}

// Disarm cancels a pending fire without affecting future touches.
func (t *CommitTimer) Disarm() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

// Stop disarms the timer permanently. Safe to call more than once.
func (t *CommitTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopped = true
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}
