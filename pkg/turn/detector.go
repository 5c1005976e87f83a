package turn

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Role tags a message in the detector's conversation context.
type Role string

const (
	RoleCandidate   Role = "user"
	RoleInterviewer Role = "assistant"
)

// Message is one exchange in the recent conversation.
type Message struct {
	Role    Role
	Content string
}

// Context is the conversation window handed to a detector, newest last.
// The final message is the candidate's in-progress utterance.
type Context struct {
	Messages []Message
	Language string
}

// Detector predicts whether the candidate has finished speaking, letting
// the session commit before the full silence interval has elapsed.
type Detector interface {
	// UnlikelyThreshold returns the tuned threshold for the language;
	// probabilities at or above it mean "turn is over".
	UnlikelyThreshold(language string) (float64, error)

	// SupportsLanguage reports whether the detector has a tuned
	// threshold for this language.
	SupportsLanguage(language string) bool

	// PredictEndOfTurn returns the probability (0-1) that the candidate
	// has finished speaking given the recent conversation.
	PredictEndOfTurn(ctx context.Context, convo Context) (float64, error)
}

// DetectorConfig selects and locates a detector model.
type DetectorConfig struct {
	Model     string // "english" or "multilingual"
	ModelPath string // model file location, default if empty
}

// NewDetector builds an ONNX-backed detector from config.
func NewDetector(config DetectorConfig) (Detector, error) {
	if config.Model == "" {
		config.Model = "english"
	}

	switch config.Model {
	case "english", "multilingual":
	default:
		return nil, fmt.Errorf("invalid model name: %s (supported: english|multilingual)", config.Model)
	}

	return NewONNXDetector(config.Model, config.ModelPath)
}

// defaultModelPath returns where detector models are stored unless
// overridden with KANSO_MODEL_PATH.
func defaultModelPath() string {
	if path := os.Getenv("KANSO_MODEL_PATH"); path != "" {
		return path
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "/tmp/kanso-models"
	}
	return filepath.Join(homeDir, ".kanso", "models")
}
