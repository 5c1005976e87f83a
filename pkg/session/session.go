// Package session implements the voice interview session: a turn
// controller that owns capture, half-duplex turn-taking against the
// interview backend, reply rendering, and deterministic teardown.
//
// All state transitions run on a single event-loop goroutine. Every
// input source, including transport messages, speech fragments, timer
// fires, render completions, and user actions, posts onto one
// serialized queue, so no two transitions ever race.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kansoai/interviewkit/internal/transport"
	"github.com/kansoai/interviewkit/pkg/capture"
	"github.com/kansoai/interviewkit/pkg/media"
	"github.com/kansoai/interviewkit/pkg/playback"
	"github.com/kansoai/interviewkit/pkg/transcript"
	"github.com/kansoai/interviewkit/pkg/turn"
)

// Status is the session lifecycle state.
type Status int

const (
	// StatusConnecting covers acquisition and handshake.
	StatusConnecting Status = iota
	// StatusActive means the interview is running.
	StatusActive
	// StatusEnded is terminal.
	StatusEnded
)

func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusActive:
		return "active"
	case StatusEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// Transport is the session's view of the interview connection.
type Transport interface {
	Messages() <-chan transport.Message
	SendTranscript(transcript string) error
	Close() error
}

// DialFunc establishes the transport. It is called only after capture
// has been acquired successfully.
type DialFunc func(ctx context.Context) (Transport, error)

// Config tunes turn-taking. Zero values get defaults.
type Config struct {
	// QuietInterval is how long recognition must stay quiet before the
	// buffered utterance is committed.
	QuietInterval time.Duration

	// EarlyCommitDelay replaces the remaining quiet wait once the
	// end-of-utterance detector is confident the turn is over.
	EarlyCommitDelay time.Duration

	// RestartBackoff is the wait before restarting recognition after a
	// recognition error.
	RestartBackoff time.Duration

	// Language is passed to the detector.
	Language string

	// Detector optionally shortens the commit delay. Nil disables
	// model-based end-of-utterance prediction.
	Detector turn.Detector

	Logger *slog.Logger
}

func (c *Config) applyDefaults() {
	if c.QuietInterval <= 0 {
		c.QuietInterval = 1500 * time.Millisecond
	}
	if c.EarlyCommitDelay <= 0 {
		c.EarlyCommitDelay = 250 * time.Millisecond
	}
	if c.RestartBackoff <= 0 {
		c.RestartBackoff = time.Second
	}
	if c.Language == "" {
		c.Language = "en"
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Update is a best-effort notification for UIs. Slow consumers miss
// updates rather than stalling the session.
type Update struct {
	Status    Status
	Line      string // current status line
	Reply     string // interviewer reply text, when one arrived
	Committed string // candidate utterance, when one was committed
}

// Session is one voice interview. Create with New, drive with Start,
// observe through Status, Updates and Done.
type Session struct {
	id       string
	config   Config
	dial     DialFunc
	capture  capture.RecognizingCapture
	renderer playback.Renderer
	logger   *slog.Logger

	events  chan func()
	done    chan struct{}
	updates chan Update

	timer *turn.CommitTimer

	mu      sync.Mutex
	status  Status
	endErr  error
	muted   bool
	elapsed time.Duration

	// loop-owned state, touched only from run()
	transport         Transport
	pending           []string
	pendingGen        int
	commitOutstanding bool
	agentSpeaking     bool
	audioStream       chan media.Frame

	log *transcript.Log

	loopCancel   context.CancelFunc
	teardownOnce sync.Once
}

// New creates a session in StatusConnecting. Nothing is acquired until
// Start.
func New(dial DialFunc, cap capture.RecognizingCapture, renderer playback.Renderer, config Config) *Session {
	config.applyDefaults()
	id := uuid.NewString()
	s := &Session{
		id:       id,
		config:   config,
		dial:     dial,
		capture:  cap,
		renderer: renderer,
		logger:   config.Logger.With("session", id[:8]),
		events:   make(chan func(), 64),
		done:     make(chan struct{}),
		updates:  make(chan Update, 16),
		log:      transcript.New(),
	}
	s.timer = turn.NewCommitTimer(config.QuietInterval, func() {
		s.post(s.onCommitTimer)
	})
	return s
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// Start acquires capture, dials the backend, and launches the event
// loop. On failure the session ends with the mapped terminal error and
// nothing leaks; capture failure means no dial is ever attempted.
func (s *Session) Start(ctx context.Context) error {
	loopCtx, cancel := context.WithCancel(ctx)
	s.loopCancel = cancel

	if err := s.capture.Start(loopCtx); err != nil {
		classified := classifyCaptureErr(err)
		s.fail(classified)
		return classified
	}

	conn, err := s.dial(loopCtx)
	if err != nil {
		classified := fmt.Errorf("%w: %v", ErrConnectionFailed, err)
		s.fail(classified)
		return classified
	}
	s.transport = conn

	go s.run(loopCtx)
	go s.forwardTransport(loopCtx, conn)
	go s.forwardCapture(loopCtx)
	go s.tick(loopCtx)

	s.logger.Info("session starting")
	return nil
}

// End finishes the interview deliberately. Safe to call any number of
// times, from any goroutine, in any state.
func (s *Session) End() {
	select {
	case <-s.done:
		return
	default:
	}
	s.post(func() { s.finish(nil) })
}

// SetMuted gates capture without releasing it; unmuting resumes
// listening instantly. The pending utterance survives a mute toggle.
func (s *Session) SetMuted(muted bool) {
	s.mu.Lock()
	s.muted = muted
	s.mu.Unlock()
	s.capture.SetMuted(muted)
	s.notify(Update{})
}

// Muted reports the mute state.
func (s *Session) Muted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.muted
}

// Status returns the lifecycle state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Err returns the terminal error, nil for a deliberate or clean end.
// Meaningful once Done is closed.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endErr
}

// Elapsed returns how long the session has been active. It stops
// advancing when the session ends.
func (s *Session) Elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.elapsed
}

// Done is closed when the session reaches StatusEnded.
func (s *Session) Done() <-chan struct{} { return s.done }

// Transcript returns the conversation log. Stable once Done is closed.
func (s *Session) Transcript() *transcript.Log { return s.log }

// Updates returns the best-effort UI notification channel.
func (s *Session) Updates() <-chan Update { return s.updates }

// StatusLine renders the current state as a short phrase.
func (s *Session) StatusLine() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.status {
	case StatusConnecting:
		return "connecting..."
	case StatusEnded:
		return "ended: " + reason(s.endErr)
	}
	if s.muted {
		return "muted"
	}
	return s.activeLine()
}

// activeLine is called with s.mu held.
func (s *Session) activeLine() string {
	if s.agentSpeaking {
		return "interviewer speaking"
	}
	if s.commitOutstanding {
		return "processing your answer"
	}
	return "listening"
}

// post queues fn onto the event loop. Posts after the session ended are
// dropped.
func (s *Session) post(fn func()) {
	select {
	case s.events <- fn:
	case <-s.done:
	}
}

func (s *Session) run(ctx context.Context) {
	for {
		select {
		case fn := <-s.events:
			fn()
		case <-s.done:
			return
		case <-ctx.Done():
			// Caller canceled; tear down from the loop itself so no
			// queued event runs afterwards.
			s.finish(nil)
			return
		}
	}
}

// forwardTransport pumps backend messages onto the event queue.
func (s *Session) forwardTransport(ctx context.Context, conn Transport) {
	for {
		select {
		case msg, ok := <-conn.Messages():
			if !ok {
				return
			}
			s.post(func() { s.onTransportMessage(msg) })
		case <-ctx.Done():
			return
		case <-s.done:
			return
		}
	}
}

// forwardCapture pumps recognition events onto the event queue.
func (s *Session) forwardCapture(ctx context.Context) {
	for {
		select {
		case ev, ok := <-s.capture.Events():
			if !ok {
				return
			}
			s.post(func() { s.onCaptureEvent(ev) })
		case <-ctx.Done():
			return
		case <-s.done:
			return
		}
	}
}

// tick advances the elapsed clock once per second while active.
func (s *Session) tick(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.mu.Lock()
			if s.status == StatusActive {
				s.elapsed += time.Second
			}
			s.mu.Unlock()
		case <-ctx.Done():
			return
		case <-s.done:
			return
		}
	}
}

// --- event handlers, loop goroutine only ---

func (s *Session) onTransportMessage(msg transport.Message) {
	switch msg.Type {
	case transport.MessageConnected:
		s.setStatus(StatusActive)
		// The interviewer opens with a greeting; hold the floor until it
		// arrives so early speech cannot commit ahead of it.
		s.setAgentSpeaking(true)
		s.logger.Info("interview connected")

	case transport.MessageReply:
		s.onReply(msg)

	case transport.MessageAudio:
		s.onAudioChunk(msg.Audio)

	case transport.MessageTurnComplete:
		s.closeAudioStream()

	case transport.MessageInterviewEnd:
		s.logger.Info("interview ended by backend", "detail", msg.Text)
		s.finish(nil)

	case transport.MessageError:
		s.finish(fmt.Errorf("%w: %s", ErrRemoteError, msg.Text))

	case transport.MessageClosed:
		if msg.Deliberate {
			s.finish(nil)
		} else {
			s.finish(fmt.Errorf("%w: %v", ErrUnexpectedClose, msg.Err))
		}
	}
}

// onReply renders interviewer text. The floor closes for the duration
// of the render; any committed answer has been answered.
func (s *Session) onReply(msg transport.Message) {
	s.setCommitOutstanding(false)
	s.log.Append(transcript.SpeakerInterviewer, msg.Text, time.Now())
	s.notify(Update{Reply: msg.Text})

	s.setAgentSpeaking(true)
	// Speech heard before the reply belongs to the previous turn.
	s.dropPending()

	go func() {
		if err := s.renderer.Render(context.Background(), playback.Response{Text: msg.Text}); err != nil {
			s.logger.Warn("render failed", "error", err)
		}
		s.post(s.onRenderDone)
	}()
}

// onAudioChunk feeds streamed reply audio into a renderer pass, opening
// one on the first chunk of a turn.
func (s *Session) onAudioChunk(pcm []byte) {
	s.setCommitOutstanding(false)

	if s.audioStream == nil {
		stream := make(chan media.Frame, 64)
		s.audioStream = stream
		s.setAgentSpeaking(true)
		s.dropPending()

		go func() {
			if err := s.renderer.Render(context.Background(), playback.Response{Audio: stream}); err != nil {
				s.logger.Warn("render failed", "error", err)
			}
			s.post(s.onRenderDone)
		}()
	}

	frame := media.Frame{
		Data:              pcm,
		SampleRate:        media.PlaybackRate,
		SamplesPerChannel: len(pcm) / 2,
		NumChannels:       1,
	}
	select {
	case s.audioStream <- frame:
	default:
		s.logger.Warn("dropping audio chunk, renderer backlogged")
	}
}

func (s *Session) closeAudioStream() {
	if s.audioStream != nil {
		close(s.audioStream)
		s.audioStream = nil
	}
}

// onRenderDone reopens the floor.
func (s *Session) onRenderDone() {
	s.setAgentSpeaking(false)
	s.notify(Update{})
}

func (s *Session) onCaptureEvent(ev capture.Event) {
	switch ev.Type {
	case capture.EventInterim, capture.EventFinal:
		s.onFragment(ev)
	case capture.EventNoSpeech:
		// Nothing was heard; restart recognition transparently.
		s.restartCapture(0)
	case capture.EventError:
		s.logger.Warn("recognition error", "error", ev.Err)
		s.restartCapture(s.config.RestartBackoff)
	}
}

// onFragment buffers candidate speech and re-arms the silence-commit
// timer. Fragments are discarded while the interviewer holds the floor
// and while a commit awaits its reply.
func (s *Session) onFragment(ev capture.Event) {
	if s.Status() != StatusActive {
		return
	}
	if s.agentSpeaking || s.commitOutstanding {
		return
	}
	if ev.Type == capture.EventInterim {
		// Interim results only prove the candidate is still talking.
		s.timer.Touch()
		return
	}

	s.pending = append(s.pending, ev.Text)
	s.pendingGen++
	s.timer.Touch()

	if s.config.Detector != nil {
		s.predictEarlyCommit(s.pendingGen)
	}
}

// predictEarlyCommit asks the detector whether the turn is already
// over; if so the remaining quiet wait shrinks to EarlyCommitDelay.
func (s *Session) predictEarlyCommit(gen int) {
	detector := s.config.Detector
	lang := s.config.Language
	if !detector.SupportsLanguage(lang) {
		return
	}

	convo := s.detectorContext()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		prob, err := detector.PredictEndOfTurn(ctx, convo)
		if err != nil {
			s.logger.Debug("end-of-turn prediction failed", "error", err)
			return
		}
		threshold, err := detector.UnlikelyThreshold(lang)
		if err != nil || prob < threshold {
			return
		}
		s.post(func() {
			// Only shorten if no fragment arrived since the prediction.
			if gen == s.pendingGen && len(s.pending) > 0 && !s.commitOutstanding {
				s.timer.TouchAfter(s.config.EarlyCommitDelay)
			}
		})
	}()
}

// detectorContext builds the recent-conversation window, ending with
// the in-progress utterance. Loop goroutine only.
func (s *Session) detectorContext() turn.Context {
	var messages []turn.Message
	for _, entry := range s.log.Entries() {
		role := turn.RoleCandidate
		if entry.Speaker == transcript.SpeakerInterviewer {
			role = turn.RoleInterviewer
		}
		messages = append(messages, turn.Message{Role: role, Content: entry.Text})
	}
	messages = append(messages, turn.Message{
		Role:    turn.RoleCandidate,
		Content: strings.Join(s.pending, " "),
	})
	return turn.Context{Messages: messages, Language: s.config.Language}
}

// onCommitTimer fires after the quiet interval: the buffered fragments
// become one committed utterance.
func (s *Session) onCommitTimer() {
	if s.Status() != StatusActive || s.agentSpeaking || s.commitOutstanding {
		return
	}
	if len(s.pending) == 0 {
		return
	}

	utterance := strings.Join(s.pending, " ")
	s.pending = nil
	s.pendingGen++
	s.setCommitOutstanding(true)

	s.log.Append(transcript.SpeakerCandidate, utterance, time.Now())
	s.notify(Update{Committed: utterance})
	s.logger.Debug("utterance committed", "chars", len(utterance))

	if err := s.transport.SendTranscript(utterance); err != nil {
		s.finish(fmt.Errorf("%w: %v", ErrUnexpectedClose, err))
	}
}

func (s *Session) dropPending() {
	s.pending = nil
	s.pendingGen++
	s.timer.Disarm()
}

// restartCapture stops and restarts recognition, after an optional
// backoff. Only while active with no commit in flight.
func (s *Session) restartCapture(backoff time.Duration) {
	if s.Status() != StatusActive || s.commitOutstanding {
		return
	}

	restart := func() {
		s.post(func() {
			if s.Status() != StatusActive || s.commitOutstanding {
				return
			}
			s.capture.Stop()
			if err := s.capture.Start(context.Background()); err != nil {
				s.finish(classifyCaptureErr(err))
			}
		})
	}

	if backoff <= 0 {
		restart()
		return
	}
	time.AfterFunc(backoff, func() {
		select {
		case <-s.done:
		default:
			restart()
		}
	})
}

// setAgentSpeaking flips the half-duplex gate. Loop goroutine only;
// the mutex is for concurrent StatusLine readers.
func (s *Session) setAgentSpeaking(speaking bool) {
	s.mu.Lock()
	s.agentSpeaking = speaking
	s.mu.Unlock()
	if speaking {
		s.timer.Disarm()
	}
}

// setCommitOutstanding flips the awaiting-reply flag. Loop goroutine
// only.
func (s *Session) setCommitOutstanding(outstanding bool) {
	s.mu.Lock()
	s.commitOutstanding = outstanding
	s.mu.Unlock()
}

func (s *Session) setStatus(status Status) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
	s.notify(Update{})
}

// fail ends the session from outside the loop, before it exists.
func (s *Session) fail(err error) {
	s.teardown(err)
}

// finish ends the session from the loop. err nil means deliberate or
// clean completion.
func (s *Session) finish(err error) {
	s.closeAudioStream()
	s.teardown(err)
}

// teardown releases everything exactly once and is safe to call from
// any goroutine, any number of times, in any state. Resources that were
// never acquired are skipped.
func (s *Session) teardown(err error) {
	s.teardownOnce.Do(func() {
		s.mu.Lock()
		s.status = StatusEnded
		s.endErr = err
		s.mu.Unlock()

		s.timer.Stop()
		if s.capture != nil {
			if cerr := s.capture.Close(); cerr != nil {
				s.logger.Debug("capture close", "error", cerr)
			}
		}
		if s.renderer != nil {
			if rerr := s.renderer.Close(); rerr != nil {
				s.logger.Debug("renderer close", "error", rerr)
			}
		}
		if s.transport != nil {
			if terr := s.transport.Close(); terr != nil {
				s.logger.Debug("transport close", "error", terr)
			}
		}
		if s.loopCancel != nil {
			s.loopCancel()
		}

		if err != nil {
			s.logger.Warn("session ended", "reason", reason(err))
		} else {
			s.logger.Info("session ended", "reason", reason(nil))
		}

		close(s.done)
		s.notify(Update{})
	})
}

// notify publishes a best-effort update.
func (s *Session) notify(update Update) {
	s.mu.Lock()
	update.Status = s.status
	s.mu.Unlock()
	update.Line = s.StatusLine()

	select {
	case s.updates <- update:
	default:
	}
}
