package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	openaiapi "github.com/sashabaranov/go-openai"
	"github.com/spf13/cobra"

	"github.com/kansoai/interviewkit/internal/transport"
	"github.com/kansoai/interviewkit/pkg/capture"
	"github.com/kansoai/interviewkit/pkg/media"
	"github.com/kansoai/interviewkit/pkg/media/wav"
	"github.com/kansoai/interviewkit/pkg/playback"
	provider "github.com/kansoai/interviewkit/pkg/providers/openai"
	"github.com/kansoai/interviewkit/pkg/session"
	"github.com/kansoai/interviewkit/pkg/turn"
)

var interviewCmd = &cobra.Command{
	Use:   "interview <application-id>",
	Short: "Run a voice practice interview in the terminal",
	Long: `Run a practice interview for one of your applications.

Modes:
  typed   answer by typing; each line is one utterance (default)
  mic     answer by dropping WAV recordings into the watch directory
  replay  answer from a prerecorded WAV file

In typed mode, /mute toggles the microphone and /end finishes the
interview. Recognized speech in mic and replay modes goes through
Whisper and needs OPENAI_API_KEY.`,
	Args: cobra.ExactArgs(1),
	RunE: runInterview,
}

func init() {
	interviewCmd.Flags().String("user", "", "user id, required to submit the transcript for feedback")
	interviewCmd.Flags().String("mode", "typed", "capture mode: typed, mic or replay")
	interviewCmd.Flags().String("watch-dir", "./recordings", "drop folder for mic mode")
	interviewCmd.Flags().String("wav", "", "recording to replay in replay mode")
	interviewCmd.Flags().Duration("quiet", 1500*time.Millisecond, "silence before an answer is committed")
	interviewCmd.Flags().String("detector", "off", "end-of-utterance model: off, english or multilingual")
	interviewCmd.Flags().String("voice-out", "", "directory for synthesized interviewer audio; empty disables synthesis")
}

func runInterview(cmd *cobra.Command, args []string) error {
	appID := args[0]
	userID, _ := cmd.Flags().GetString("user")
	mode, _ := cmd.Flags().GetString("mode")
	watchDir, _ := cmd.Flags().GetString("watch-dir")
	wavFile, _ := cmd.Flags().GetString("wav")
	quiet, _ := cmd.Flags().GetDuration("quiet")
	detectorName, _ := cmd.Flags().GetString("detector")
	voiceOut, _ := cmd.Flags().GetString("voice-out")

	logger := setupLogger()
	client := apiClient()
	ctx := cmd.Context()

	app, err := client.Application(ctx, appID)
	if err != nil {
		return fmt.Errorf("could not load application: %w", err)
	}

	hrName := "KansoAI Recruiter"
	if personality, err := client.HRPersonality(ctx, app.Company); err == nil && personality != nil {
		hrName = personality.HRName
	}

	setup := transport.Setup{
		JobTitle:    app.JobTitle,
		Company:     app.Company,
		Description: app.Description,
		HRName:      hrName,
	}

	rec, typed, err := buildCapture(mode, watchDir, wavFile, logger)
	if err != nil {
		return err
	}

	renderer, err := buildRenderer(voiceOut, logger)
	if err != nil {
		return err
	}

	config := session.Config{
		QuietInterval: quiet,
		Logger:        logger,
	}
	if detectorName != "off" && detectorName != "" {
		detector, err := turn.NewDetector(turn.DetectorConfig{Model: detectorName})
		if err != nil {
			return fmt.Errorf("detector: %w", err)
		}
		config.Detector = detector
	}

	dial := func(ctx context.Context) (session.Transport, error) {
		return transport.Dial(ctx, client.InterviewURL(appID), setup, logger)
	}

	s := session.New(dial, rec, renderer, config)

	fmt.Printf("Practice interview for %q at %s with %s\n", app.JobTitle, app.Company, hrName)
	if err := s.Start(ctx); err != nil {
		return err
	}

	go printUpdates(s)
	if typed != nil {
		go handleCommands(typed, s)
	}

	<-s.Done()
	fmt.Printf("\n%s (%s)\n", s.StatusLine(), s.Elapsed().Round(time.Second))

	if userID == "" {
		fmt.Println("No --user given; skipping feedback.")
		return nil
	}

	// The session context may already be canceled after Ctrl-C; give
	// the feedback upload its own short deadline.
	fbCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	fb, err := client.SubmitFeedback(fbCtx, appID, userID, s.Transcript().Render(), s.Elapsed())
	if err != nil {
		return fmt.Errorf("feedback: %w", err)
	}
	fmt.Println()
	printFeedback(*fb)
	return nil
}

func buildCapture(mode, watchDir, wavFile string, logger *slog.Logger) (capture.RecognizingCapture, *typedCapture, error) {
	switch mode {
	case "typed":
		typed := newTypedCapture(os.Stdin)
		return typed, typed, nil

	case "mic":
		client, err := openaiClient()
		if err != nil {
			return nil, nil, err
		}
		src, err := capture.NewWatchDir(watchDir, logger)
		if err != nil {
			return nil, nil, err
		}
		fmt.Printf("Drop WAV recordings into %s to speak.\n", watchDir)
		return provider.NewRecognizer(client, src, provider.RecognizerConfig{}, logger), nil, nil

	case "replay":
		if wavFile == "" {
			return nil, nil, fmt.Errorf("replay mode needs --wav")
		}
		client, err := openaiClient()
		if err != nil {
			return nil, nil, err
		}
		src := capture.NewReplay(wavFile, true)
		return provider.NewRecognizer(client, src, provider.RecognizerConfig{}, logger), nil, nil

	default:
		return nil, nil, fmt.Errorf("unknown mode %q", mode)
	}
}

func buildRenderer(voiceOut string, logger *slog.Logger) (playback.Renderer, error) {
	if voiceOut == "" {
		return newConsoleRenderer(os.Stdout), nil
	}
	client, err := openaiClient()
	if err != nil {
		return nil, err
	}
	player, err := newWAVPlayer(voiceOut)
	if err != nil {
		return nil, err
	}
	synth := provider.NewSynthesizer(client, provider.SynthesizerConfig{}, logger)
	return playback.NewSpeechRenderer(synth, player, logger), nil
}

func openaiClient() (*openaiapi.Client, error) {
	key := os.Getenv("OPENAI_API_KEY")
	if key == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is not set")
	}
	return openaiapi.NewClient(key), nil
}

func printUpdates(s *session.Session) {
	lastLine := ""
	for update := range s.Updates() {
		if update.Reply != "" {
			fmt.Printf("\nInterviewer: %s\n", update.Reply)
		}
		if update.Committed != "" {
			fmt.Printf("You: %s\n", update.Committed)
		}
		if update.Line != lastLine {
			lastLine = update.Line
			fmt.Printf("[%s]\n", update.Line)
		}
	}
}

func handleCommands(typed *typedCapture, s *session.Session) {
	for cmd := range typed.Commands() {
		switch cmd {
		case "mute":
			s.SetMuted(!s.Muted())
		case "end":
			s.End()
		default:
			fmt.Printf("unknown command /%s (try /mute or /end)\n", cmd)
		}
	}
}

// typedCapture turns stdin lines into final speech fragments. Lines
// starting with "/" are commands, not speech.
type typedCapture struct {
	in       io.Reader
	events   chan capture.Event
	commands chan string
	muted    atomic.Bool

	startOnce sync.Once
	closeOnce sync.Once
	done      chan struct{}
}

func newTypedCapture(in io.Reader) *typedCapture {
	return &typedCapture{
		in:       in,
		events:   make(chan capture.Event, 16),
		commands: make(chan string, 4),
		done:     make(chan struct{}),
	}
}

func (c *typedCapture) Start(ctx context.Context) error {
	c.startOnce.Do(func() {
		go c.readLines(ctx)
	})
	return nil
}

func (c *typedCapture) readLines(ctx context.Context) {
	scanner := bufio.NewScanner(c.in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if cmd, ok := strings.CutPrefix(line, "/"); ok {
			select {
			case c.commands <- cmd:
			case <-c.done:
				return
			}
			continue
		}
		if c.muted.Load() {
			continue
		}
		select {
		case c.events <- capture.Event{Type: capture.EventFinal, Text: line, At: time.Now()}:
		case <-ctx.Done():
			return
		case <-c.done:
			return
		}
	}
}

func (c *typedCapture) Events() <-chan capture.Event { return c.events }
func (c *typedCapture) Commands() <-chan string      { return c.commands }
func (c *typedCapture) SetMuted(muted bool)          { c.muted.Store(muted) }
func (c *typedCapture) Muted() bool                  { return c.muted.Load() }
func (c *typedCapture) Stop() error                  { return nil }

func (c *typedCapture) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

// consoleRenderer prints replies and holds the floor roughly as long as
// speaking them would take.
type consoleRenderer struct {
	out io.Writer
}

func newConsoleRenderer(out io.Writer) *consoleRenderer {
	return &consoleRenderer{out: out}
}

func (r *consoleRenderer) Render(ctx context.Context, resp playback.Response) error {
	if resp.Audio != nil {
		// Streamed audio has nowhere to go in console mode; drain it so
		// the turn completes.
		var total time.Duration
		for frame := range resp.Audio {
			total += frame.Duration()
		}
		return sleepFor(ctx, total)
	}
	if resp.Text == "" {
		return nil
	}

	words := len(strings.Fields(resp.Text))
	hold := time.Duration(words) * 320 * time.Millisecond
	if hold > 20*time.Second {
		hold = 20 * time.Second
	}
	return sleepFor(ctx, hold)
}

func (r *consoleRenderer) Close() error { return nil }

func sleepFor(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// wavPlayer writes synthesized interviewer audio to WAV files and
// blocks for the audio's duration, standing in for a real output
// device.
type wavPlayer struct {
	dir string
	seq atomic.Int32
}

func newWAVPlayer(dir string) (*wavPlayer, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &wavPlayer{dir: dir}, nil
}

func (p *wavPlayer) Play(ctx context.Context, pcm []byte) error {
	name := filepath.Join(p.dir, fmt.Sprintf("interviewer-%03d.wav", p.seq.Add(1)))
	writer, err := wav.NewWriter(name, media.PlaybackRate, 1)
	if err != nil {
		return err
	}

	frameBytes := media.PlaybackRate / 100 * 2 // 10ms of 16-bit mono
	for off := 0; off < len(pcm); off += frameBytes {
		end := off + frameBytes
		if end > len(pcm) {
			break // drop the trailing partial frame
		}
		frame, err := media.NewFrame(pcm[off:end], media.PlaybackRate, 1, 0)
		if err != nil {
			writer.Close()
			return err
		}
		if err := writer.WriteFrame(*frame); err != nil {
			writer.Close()
			return err
		}
	}
	if err := writer.Close(); err != nil {
		return err
	}

	samples := len(pcm) / 2
	duration := time.Duration(samples) * time.Second / media.PlaybackRate
	fmt.Printf("[interviewer audio written to %s]\n", name)
	return sleepFor(ctx, duration)
}

func (p *wavPlayer) Resume() error { return nil }
func (p *wavPlayer) Close() error  { return nil }
