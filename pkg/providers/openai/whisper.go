// Package openai provides the OpenAI-backed capture and playback
// providers: Whisper speech recognition over a raw frame source, and
// TTS speech synthesis at the playback rate.
package openai

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/kansoai/interviewkit/pkg/capture"
	"github.com/kansoai/interviewkit/pkg/media"
	"github.com/kansoai/interviewkit/pkg/media/wav"
)

// RecognizerConfig tunes utterance segmentation and transcription.
type RecognizerConfig struct {
	// Model defaults to whisper-1.
	Model string
	// Language hints the transcription language; empty means
	// autodetect.
	Language string
	// QuietThreshold is the normalized RMS below which a frame counts
	// as silence.
	QuietThreshold float64
	// QuietWindow is how much trailing silence ends an utterance.
	QuietWindow time.Duration
	// MinSpeech is the least buffered speech worth transcribing;
	// shorter bursts are discarded as noise.
	MinSpeech time.Duration
}

func (c *RecognizerConfig) applyDefaults() {
	if c.Model == "" {
		c.Model = openai.Whisper1
	}
	if c.QuietThreshold <= 0 {
		c.QuietThreshold = 0.015
	}
	if c.QuietWindow <= 0 {
		c.QuietWindow = 600 * time.Millisecond
	}
	if c.MinSpeech <= 0 {
		c.MinSpeech = 200 * time.Millisecond
	}
}

// Recognizer is a RecognizingCapture that segments a raw capture-rate
// frame stream on trailing silence and transcribes each utterance with
// Whisper.
type Recognizer struct {
	client *openai.Client
	source capture.StreamingCapture
	config RecognizerConfig
	logger *slog.Logger

	events chan capture.Event

	mu      sync.Mutex
	muted   bool
	stop    context.CancelFunc
	stopped chan struct{}

	closeOnce sync.Once
}

// NewRecognizer builds a recognizer over source. The source must
// produce capture-rate mono frames.
func NewRecognizer(client *openai.Client, source capture.StreamingCapture, config RecognizerConfig, logger *slog.Logger) *Recognizer {
	if logger == nil {
		logger = slog.Default()
	}
	config.applyDefaults()
	return &Recognizer{
		client: client,
		source: source,
		config: config,
		logger: logger,
		events: make(chan capture.Event, 16),
	}
}

// Start acquires the frame source and begins segmenting.
func (r *Recognizer) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)

	if err := r.source.Start(runCtx); err != nil {
		cancel()
		return err
	}

	stopped := make(chan struct{})
	r.mu.Lock()
	r.stop = cancel
	r.stopped = stopped
	r.mu.Unlock()

	go r.run(runCtx, stopped)
	return nil
}

// run consumes frames, buffering speech and flushing an utterance once
// the trailing quiet window elapses.
func (r *Recognizer) run(ctx context.Context, stopped chan struct{}) {
	defer close(stopped)

	quietFrames := int(r.config.QuietWindow / (10 * time.Millisecond))
	minSpeechFrames := int(r.config.MinSpeech / (10 * time.Millisecond))

	var buffer bytes.Buffer
	speechFrames := 0
	silentRun := 0
	heardAnything := false

	flush := func() {
		if speechFrames >= minSpeechFrames {
			r.transcribe(ctx, buffer.Bytes())
			heardAnything = true
		}
		buffer.Reset()
		speechFrames = 0
		silentRun = 0
	}

	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-r.source.Frames():
			if !ok {
				flush()
				if !heardAnything {
					r.emit(ctx, capture.Event{Type: capture.EventNoSpeech, At: time.Now()})
				}
				return
			}

			if r.Muted() {
				continue
			}

			loud := frame.RMS() >= r.config.QuietThreshold
			if loud {
				silentRun = 0
				speechFrames++
				buffer.Write(frame.Data)
				continue
			}

			if speechFrames == 0 {
				continue // leading silence
			}
			buffer.Write(frame.Data)
			silentRun++
			if silentRun >= quietFrames {
				flush()
			}
		}
	}
}

// transcribe ships one utterance to Whisper and emits the result.
func (r *Recognizer) transcribe(ctx context.Context, pcm []byte) {
	req := openai.AudioRequest{
		Model:    r.config.Model,
		Language: r.config.Language,
		Format:   openai.AudioResponseFormatJSON,
		Reader:   bytes.NewReader(wav.Encode(pcm, media.CaptureRate, 1)),
		FilePath: "utterance.wav", // the API requires a filename for the multipart part
	}

	resp, err := r.client.CreateTranscription(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		r.emit(ctx, capture.Event{
			Type: capture.EventError,
			At:   time.Now(),
			Err:  fmt.Errorf("transcription failed: %w", err),
		})
		return
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		r.emit(ctx, capture.Event{Type: capture.EventNoSpeech, At: time.Now()})
		return
	}

	r.logger.Debug("utterance transcribed", "chars", len(text))
	r.emit(ctx, capture.Event{Type: capture.EventFinal, Text: text, At: time.Now()})
}

func (r *Recognizer) emit(ctx context.Context, ev capture.Event) {
	select {
	case r.events <- ev:
	case <-ctx.Done():
	}
}

// Events returns the recognition event channel.
func (r *Recognizer) Events() <-chan capture.Event {
	return r.events
}

// SetMuted pauses segmentation without releasing the source.
func (r *Recognizer) SetMuted(muted bool) {
	r.mu.Lock()
	r.muted = muted
	r.mu.Unlock()
	r.source.SetMuted(muted)
}

// Muted reports the mute state.
func (r *Recognizer) Muted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.muted
}

// Stop halts segmentation but keeps this recognizer restartable.
func (r *Recognizer) Stop() error {
	r.mu.Lock()
	stop := r.stop
	stopped := r.stopped
	r.stop = nil
	r.mu.Unlock()

	if stop != nil {
		stop()
		<-stopped
	}
	return nil
}

// Close stops segmentation and releases the frame source.
func (r *Recognizer) Close() error {
	r.Stop()
	var err error
	r.closeOnce.Do(func() {
		err = r.source.Close()
	})
	return err
}
