package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/matryer/is"

	"github.com/kansoai/interviewkit/internal/transport"
	"github.com/kansoai/interviewkit/pkg/capture"
	capfake "github.com/kansoai/interviewkit/pkg/capture/fake"
	playfake "github.com/kansoai/interviewkit/pkg/playback/fake"
	"github.com/kansoai/interviewkit/pkg/transcript"
	turnfake "github.com/kansoai/interviewkit/pkg/turn/fake"
)

type fakeTransport struct {
	mu      sync.Mutex
	msgs    chan transport.Message
	sent    []string
	sendErr error
	closes  int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{msgs: make(chan transport.Message, 32)}
}

func (t *fakeTransport) Messages() <-chan transport.Message { return t.msgs }

func (t *fakeTransport) SendTranscript(text string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sendErr != nil {
		return t.sendErr
	}
	t.sent = append(t.sent, text)
	return nil
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closes++
	return nil
}

func (t *fakeTransport) sentTranscripts() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.sent))
	copy(out, t.sent)
	return out
}

func (t *fakeTransport) closeCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closes
}

func (t *fakeTransport) push(msg transport.Message) {
	t.msgs <- msg
}

const testGreeting = "Thanks for joining, let's begin."

// startActive builds a session over the fakes, drives it to Active, and
// delivers the opening greeting so the floor is open on return.
func startActive(t *testing.T, rec capture.RecognizingCapture, renderer *playfake.Renderer, config Config) (*Session, *fakeTransport) {
	t.Helper()

	tr := newFakeTransport()
	dial := func(ctx context.Context) (Transport, error) { return tr, nil }

	s := New(dial, rec, renderer, config)
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(s.End)

	tr.push(transport.Message{Type: transport.MessageConnected})
	waitFor(t, func() bool { return s.Status() == StatusActive })
	tr.push(transport.Message{Type: transport.MessageReply, Text: testGreeting})
	waitFor(t, func() bool { return s.StatusLine() == "listening" })
	return s, tr
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never satisfied")
}

func TestFragmentsWithinQuietIntervalCommitOnce(t *testing.T) {
	is := is.New(t)

	rec := capfake.NewRecognizer([]capfake.Step{
		capfake.Fragment(150*time.Millisecond, "I led"),
		capfake.Fragment(30*time.Millisecond, "the migration"),
		capfake.Fragment(30*time.Millisecond, "of our"),
		capfake.Fragment(30*time.Millisecond, "billing system"),
		capfake.Fragment(30*time.Millisecond, "to Go"),
	})
	s, tr := startActive(t, rec, playfake.NewRenderer(0), Config{QuietInterval: 250 * time.Millisecond})

	waitFor(t, func() bool { return len(tr.sentTranscripts()) == 1 })
	is.Equal(tr.sentTranscripts(), []string{"I led the migration of our billing system to Go"})

	// No second commit appears after a further quiet stretch.
	time.Sleep(400 * time.Millisecond)
	is.Equal(len(tr.sentTranscripts()), 1)

	entries := s.Transcript().Entries()
	is.Equal(len(entries), 2)
	is.Equal(entries[0].Speaker, transcript.SpeakerInterviewer) // greeting
	is.Equal(entries[1].Speaker, transcript.SpeakerCandidate)
}

func TestFragmentsWhileInterviewerSpeaksAreDiscarded(t *testing.T) {
	is := is.New(t)

	rec := capfake.NewRecognizer([]capfake.Step{
		capfake.Fragment(100*time.Millisecond, "sorry to interrupt"),
	})
	renderer := playfake.NewRenderer(400 * time.Millisecond)
	s, tr := startActive(t, rec, renderer, Config{QuietInterval: 150 * time.Millisecond})

	tr.push(transport.Message{Type: transport.MessageReply, Text: "Walk me through your resume."})
	waitFor(t, func() bool { return len(renderer.Texts()) == 2 })

	// The fragment lands mid-render and must never commit.
	time.Sleep(600 * time.Millisecond)
	is.Equal(len(tr.sentTranscripts()), 0)
	is.Equal(renderer.MaxConcurrent(), 1)

	entries := s.Transcript().Entries()
	is.Equal(len(entries), 2)
	is.Equal(entries[0].Speaker, transcript.SpeakerInterviewer)
	is.Equal(entries[1].Speaker, transcript.SpeakerInterviewer)
}

func TestCommitOutstandingIgnoresNewFragments(t *testing.T) {
	is := is.New(t)

	rec := capfake.NewRecognizer([]capfake.Step{
		capfake.Fragment(150*time.Millisecond, "first answer"),
		capfake.Fragment(400*time.Millisecond, "stray speech"),
	})
	_, tr := startActive(t, rec, playfake.NewRenderer(0), Config{QuietInterval: 150 * time.Millisecond})

	waitFor(t, func() bool { return len(tr.sentTranscripts()) == 1 })

	// The second fragment arrives while the first commit awaits its
	// reply; it must not produce a second commit.
	time.Sleep(800 * time.Millisecond)
	is.Equal(tr.sentTranscripts(), []string{"first answer"})
}

func TestReplyReopensTheFloor(t *testing.T) {
	is := is.New(t)

	rec := capfake.NewRecognizer(
		[]capfake.Step{capfake.Fragment(150*time.Millisecond, "first answer")},
	)
	s, tr := startActive(t, rec, playfake.NewRenderer(0), Config{QuietInterval: 100 * time.Millisecond})

	waitFor(t, func() bool { return len(tr.sentTranscripts()) == 1 })
	tr.push(transport.Message{Type: transport.MessageReply, Text: "Interesting. Why Go?"})

	waitFor(t, func() bool { return s.StatusLine() == "listening" })

	entries := s.Transcript().Entries()
	is.Equal(len(entries), 3)
	is.Equal(entries[0].Speaker, transcript.SpeakerInterviewer) // greeting
	is.Equal(entries[1].Speaker, transcript.SpeakerCandidate)
	is.Equal(entries[2].Speaker, transcript.SpeakerInterviewer)
}

func TestSpeechBeforeGreetingNeverCommits(t *testing.T) {
	is := is.New(t)

	rec := capfake.NewRecognizer([]capfake.Step{
		capfake.Fragment(20*time.Millisecond, "hello is anyone there"),
	})
	tr := newFakeTransport()
	dial := func(ctx context.Context) (Transport, error) { return tr, nil }

	s := New(dial, rec, playfake.NewRenderer(0), Config{QuietInterval: 100 * time.Millisecond})
	is.NoErr(s.Start(context.Background()))
	t.Cleanup(s.End)

	tr.push(transport.Message{Type: transport.MessageConnected})
	waitFor(t, func() bool { return s.Status() == StatusActive })

	// The greeting is still being generated. Speech in this window must
	// not commit, even after the quiet interval elapses.
	time.Sleep(300 * time.Millisecond)
	is.Equal(len(tr.sentTranscripts()), 0)
	is.Equal(s.StatusLine(), "interviewer speaking")

	// Once the greeting has rendered, the floor opens as usual.
	tr.push(transport.Message{Type: transport.MessageReply, Text: testGreeting})
	waitFor(t, func() bool { return s.StatusLine() == "listening" })
}

func TestUnexpectedCloseEndsAndReleasesEverything(t *testing.T) {
	is := is.New(t)

	rec := capfake.NewRecognizer()
	renderer := playfake.NewRenderer(0)
	s, tr := startActive(t, rec, renderer, Config{})

	tr.push(transport.Message{Type: transport.MessageClosed, Err: errors.New("broken pipe")})

	<-s.Done()
	is.Equal(s.Status(), StatusEnded)
	is.True(errors.Is(s.Err(), ErrUnexpectedClose))
	is.Equal(rec.Closes(), 1)
	is.True(renderer.Closed())
	is.Equal(tr.closeCount(), 1)
}

func TestPermissionDeniedEndsWithoutDialing(t *testing.T) {
	is := is.New(t)

	rec := capfake.NewRecognizer()
	rec.FailStart(fmt.Errorf("device: %w", capture.ErrPermissionDenied))

	dialed := false
	dial := func(ctx context.Context) (Transport, error) {
		dialed = true
		return newFakeTransport(), nil
	}

	s := New(dial, rec, playfake.NewRenderer(0), Config{})
	err := s.Start(context.Background())

	is.True(errors.Is(err, ErrPermissionDenied))
	is.Equal(s.Status(), StatusEnded)
	is.True(!dialed)
	is.True(errors.Is(s.Err(), ErrPermissionDenied))
}

func TestDialFailureEndsAsConnectionFailed(t *testing.T) {
	is := is.New(t)

	dial := func(ctx context.Context) (Transport, error) {
		return nil, errors.New("connection refused")
	}
	rec := capfake.NewRecognizer()
	s := New(dial, rec, playfake.NewRenderer(0), Config{})

	err := s.Start(context.Background())
	is.True(errors.Is(err, ErrConnectionFailed))
	is.Equal(s.Status(), StatusEnded)
	is.Equal(rec.Closes(), 1) // acquired capture is released
}

func TestDoubleEndTearsDownOnce(t *testing.T) {
	is := is.New(t)

	rec := capfake.NewRecognizer()
	s, tr := startActive(t, rec, playfake.NewRenderer(0), Config{})

	s.End()
	s.End()
	<-s.Done()
	s.End() // after Done, still safe

	is.Equal(s.Status(), StatusEnded)
	is.Equal(s.Err(), nil)
	is.Equal(rec.Closes(), 1)
	is.Equal(tr.closeCount(), 1)
}

func TestBackendInterviewEndIsClean(t *testing.T) {
	is := is.New(t)

	s, tr := startActive(t, capfake.NewRecognizer(), playfake.NewRenderer(0), Config{})
	tr.push(transport.Message{Type: transport.MessageInterviewEnd, Text: "time is up"})

	<-s.Done()
	is.Equal(s.Err(), nil)
	is.Equal(s.StatusLine(), "ended: interview complete")
}

func TestBackendErrorEndsAsRemoteError(t *testing.T) {
	is := is.New(t)

	s, tr := startActive(t, capfake.NewRecognizer(), playfake.NewRenderer(0), Config{})
	tr.push(transport.Message{Type: transport.MessageError, Text: "model overloaded"})

	<-s.Done()
	is.True(errors.Is(s.Err(), ErrRemoteError))
}

func TestMuteGatesCaptureWithoutReleasingIt(t *testing.T) {
	is := is.New(t)

	rec := capfake.NewRecognizer()
	s, _ := startActive(t, rec, playfake.NewRenderer(0), Config{})

	s.SetMuted(true)
	is.True(rec.Muted())
	is.Equal(rec.Closes(), 0)
	is.Equal(s.StatusLine(), "muted")

	s.SetMuted(false)
	is.True(!rec.Muted())
	is.Equal(s.StatusLine(), "listening")
}

func TestNoSpeechRestartsCaptureTransparently(t *testing.T) {
	is := is.New(t)

	rec := capfake.NewRecognizer(
		[]capfake.Step{{Delay: 20 * time.Millisecond, Event: capture.Event{Type: capture.EventNoSpeech}}},
		[]capfake.Step{capfake.Fragment(150*time.Millisecond, "hello again")},
	)
	s, tr := startActive(t, rec, playfake.NewRenderer(0), Config{QuietInterval: 100 * time.Millisecond})

	// The restart consumes the second script and its fragment commits.
	waitFor(t, func() bool { return len(tr.sentTranscripts()) == 1 })
	is.Equal(tr.sentTranscripts(), []string{"hello again"})
	is.True(rec.Starts() >= 2)
	is.Equal(s.Status(), StatusActive)
}

func TestRecognitionErrorRestartsAfterBackoff(t *testing.T) {
	is := is.New(t)

	rec := capfake.NewRecognizer(
		[]capfake.Step{{Delay: 10 * time.Millisecond, Event: capture.Event{
			Type: capture.EventError, Err: errors.New("stream reset"),
		}}},
		[]capfake.Step{capfake.Fragment(150*time.Millisecond, "recovered")},
	)
	s, tr := startActive(t, rec, playfake.NewRenderer(0), Config{
		QuietInterval:  100 * time.Millisecond,
		RestartBackoff: 50 * time.Millisecond,
	})

	waitFor(t, func() bool { return len(tr.sentTranscripts()) == 1 })
	is.Equal(tr.sentTranscripts(), []string{"recovered"})
	is.Equal(s.Status(), StatusActive)
}

func TestDetectorShortensCommitDelay(t *testing.T) {
	is := is.New(t)

	rec := capfake.NewRecognizer([]capfake.Step{
		capfake.Fragment(150*time.Millisecond, "that is my final answer"),
	})
	_, tr := startActive(t, rec, playfake.NewRenderer(0), Config{
		QuietInterval:    2 * time.Second,
		EarlyCommitDelay: 50 * time.Millisecond,
		Detector:         turnfake.NewDetectorWithValues(0.95, 0.85),
	})

	start := time.Now()
	waitFor(t, func() bool { return len(tr.sentTranscripts()) == 1 })
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("commit took %v despite confident detector", elapsed)
	}
	is.Equal(tr.sentTranscripts(), []string{"that is my final answer"})
}

func TestContextCancellationTearsDown(t *testing.T) {
	is := is.New(t)

	rec := capfake.NewRecognizer()
	tr := newFakeTransport()
	dial := func(ctx context.Context) (Transport, error) { return tr, nil }

	ctx, cancel := context.WithCancel(context.Background())
	s := New(dial, rec, playfake.NewRenderer(0), Config{})
	is.NoErr(s.Start(ctx))

	cancel()
	select {
	case <-s.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("session never ended after cancellation")
	}
	is.Equal(rec.Closes(), 1)
}

func TestStreamedAudioReplyRendersOnce(t *testing.T) {
	is := is.New(t)

	renderer := playfake.NewRenderer(0)
	s, tr := startActive(t, capfake.NewRecognizer(), renderer, Config{})

	tr.push(transport.Message{Type: transport.MessageAudio, Audio: make([]byte, 480)})
	tr.push(transport.Message{Type: transport.MessageAudio, Audio: make([]byte, 480)})
	tr.push(transport.Message{Type: transport.MessageTurnComplete})

	// The greeting render comes first; both audio chunks share one pass.
	waitFor(t, func() bool {
		return len(renderer.Rendered()) == 2 && s.StatusLine() == "listening"
	})
	rendered := renderer.Rendered()
	is.True(rendered[1].Audio != nil)
	is.Equal(renderer.MaxConcurrent(), 1)
}
