package openai

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"
)

// SynthesizerConfig selects the TTS model and voice.
type SynthesizerConfig struct {
	// Model defaults to tts-1.
	Model openai.SpeechModel
	// Voice defaults to nova.
	Voice openai.SpeechVoice
	// Speed defaults to 1.0.
	Speed float64
}

// Synthesizer converts interviewer reply text to playback-rate PCM
// using the OpenAI TTS endpoint. The PCM response format is 24 kHz
// 16-bit mono, which matches media.PlaybackRate directly.
type Synthesizer struct {
	client *openai.Client
	config SynthesizerConfig
	logger *slog.Logger
}

// NewSynthesizer creates a TTS synthesizer.
func NewSynthesizer(client *openai.Client, config SynthesizerConfig, logger *slog.Logger) *Synthesizer {
	if logger == nil {
		logger = slog.Default()
	}
	if config.Model == "" {
		config.Model = openai.TTSModel1
	}
	if config.Voice == "" {
		config.Voice = openai.VoiceNova
	}
	if config.Speed == 0 {
		config.Speed = 1.0
	}
	return &Synthesizer{client: client, config: config, logger: logger}
}

// Synthesize returns raw PCM for text.
func (s *Synthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	resp, err := s.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          s.config.Model,
		Input:          text,
		Voice:          s.config.Voice,
		ResponseFormat: openai.SpeechResponseFormatPcm,
		Speed:          s.config.Speed,
	})
	if err != nil {
		return nil, fmt.Errorf("speech synthesis failed: %w", err)
	}
	defer resp.Close()

	pcm, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to read synthesized audio: %w", err)
	}

	s.logger.Debug("synthesized reply", "chars", len(text), "bytes", len(pcm))
	return pcm, nil
}
