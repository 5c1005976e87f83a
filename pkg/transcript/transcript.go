// Package transcript accumulates the speaker-tagged utterance log of an
// interview session. Entries are immutable once appended and ordered by
// the moment their turn was finalized, not by network arrival order.
package transcript

import (
	"strings"
	"time"
)

// Speaker identifies who owned a turn.
type Speaker string

const (
	SpeakerCandidate   Speaker = "candidate"
	SpeakerInterviewer Speaker = "interviewer"
)

// Entry is one finalized utterance.
type Entry struct {
	Speaker Speaker
	Text    string
	At      time.Time
}

// Log is an append-only utterance log. It is mutated only by the session
// event loop, so it needs no locking of its own.
type Log struct {
	entries []Entry
}

// New returns an empty log.
func New() *Log {
	return &Log{}
}

// Append records a finalized utterance. Empty text is dropped.
func (l *Log) Append(speaker Speaker, text string, at time.Time) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	l.entries = append(l.entries, Entry{Speaker: speaker, Text: text, At: at})
}

// Entries returns a copy of the log in finalization order.
func (l *Log) Entries() []Entry {
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of finalized utterances.
func (l *Log) Len() int {
	return len(l.entries)
}

// Render produces the plain-text transcript handed to the feedback
// service, one line per utterance.
func (l *Log) Render() string {
	var b strings.Builder
	for i, e := range l.entries {
		if i > 0 {
			b.WriteString("\n")
		}
		switch e.Speaker {
		case SpeakerCandidate:
			b.WriteString("You: ")
		case SpeakerInterviewer:
			b.WriteString("Interviewer: ")
		}
		b.WriteString(e.Text)
	}
	return b.String()
}
