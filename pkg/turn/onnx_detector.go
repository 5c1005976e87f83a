package turn

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"sync"

	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/kansoai/interviewkit/pkg/turn/internal"
)

// modelFileRel is the relative path to the ONNX model within a revision.
const modelFileRel = "onnx/model_q8.onnx"

// maxContextTokens is the model's input window; longer conversations are
// left-truncated.
const maxContextTokens = 128

// contextWindow limits how many recent messages are fed to the model.
const contextWindow = 6

// ONNXDetector runs a quantized end-of-utterance model locally.
type ONNXDetector struct {
	modelInfo internal.ModelInfo
	modelPath string

	tokenizer     *tokenizer.Tokenizer
	tokenizerOnce sync.Once
	tokenizerErr  error

	languages     map[string]float64
	languagesOnce sync.Once
	languagesErr  error
}

// NewONNXDetector creates a detector for the named model. The model
// files must already be present (see Downloader).
func NewONNXDetector(modelName, modelPath string) (*ONNXDetector, error) {
	var modelInfo internal.ModelInfo
	found := false
	for _, model := range internal.AllModels {
		if model.Name == modelName {
			modelInfo = model
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("unknown model: %s", modelName)
	}

	if modelPath == "" {
		modelPath = defaultModelPath()
	}

	return &ONNXDetector{
		modelInfo: modelInfo,
		modelPath: modelPath,
	}, nil
}

// UnlikelyThreshold returns the language-specific commit threshold.
func (d *ONNXDetector) UnlikelyThreshold(language string) (float64, error) {
	if err := d.loadLanguages(); err != nil {
		return 0, err
	}
	threshold, exists := d.languages[language]
	if !exists {
		return 0, fmt.Errorf("unsupported language: %s", language)
	}
	return threshold, nil
}

// SupportsLanguage reports whether a tuned threshold exists for language.
func (d *ONNXDetector) SupportsLanguage(language string) bool {
	if err := d.loadLanguages(); err != nil {
		return false
	}
	_, exists := d.languages[language]
	return exists
}

// PredictEndOfTurn returns the probability that the candidate finished
// speaking, given the recent conversation.
func (d *ONNXDetector) PredictEndOfTurn(ctx context.Context, convo Context) (float64, error) {
	if err := ensureOrtEnv(); err != nil {
		return 0, fmt.Errorf("failed to initialize ONNX runtime: %w", err)
	}
	if err := d.loadTokenizer(); err != nil {
		return 0, err
	}

	tokens, err := d.tokenize(convo)
	if err != nil {
		return 0, fmt.Errorf("tokenization failed: %w", err)
	}

	return d.infer(ctx, tokens)
}

func (d *ONNXDetector) loadTokenizer() error {
	d.tokenizerOnce.Do(func() {
		tokenizerFile := internal.ModelFile(d.modelPath, d.modelInfo.Revision, "tokenizer.json")
		if _, err := os.Stat(tokenizerFile); os.IsNotExist(err) {
			d.tokenizerErr = fmt.Errorf("tokenizer file not found: %s (run 'kanso models download' first)", tokenizerFile)
			return
		}

		tk, err := pretrained.FromFile(tokenizerFile)
		if err != nil {
			d.tokenizerErr = fmt.Errorf("failed to load tokenizer: %w", err)
			return
		}
		d.tokenizer = tk
	})
	return d.tokenizerErr
}

func (d *ONNXDetector) loadLanguages() error {
	d.languagesOnce.Do(func() {
		langFile := internal.ModelFile(d.modelPath, d.modelInfo.Revision, "languages.json")
		file, err := os.Open(langFile)
		if err != nil {
			d.languagesErr = fmt.Errorf("failed to open languages.json: %w", err)
			return
		}
		defer file.Close()

		var cfg map[string]float64
		if err := json.NewDecoder(file).Decode(&cfg); err != nil {
			d.languagesErr = fmt.Errorf("failed to decode languages.json: %w", err)
			return
		}
		d.languages = cfg
	})
	return d.languagesErr
}

// tokenize applies the model's chat template and left-truncates to the
// input window.
func (d *ONNXDetector) tokenize(convo Context) ([]int32, error) {
	recent := convo.Messages
	if len(recent) > contextWindow {
		recent = recent[len(recent)-contextWindow:]
	}

	var formatted string
	for _, msg := range recent {
		// Template from the model config:
		// <|im_start|><|role|>content<|im_end|>
		formatted += fmt.Sprintf("<|im_start|><|%s|>%s<|im_end|>", string(msg.Role), msg.Content)
	}

	encoding, err := d.tokenizer.EncodeSingle(formatted, false)
	if err != nil {
		return nil, err
	}

	ids := encoding.GetIds()
	if len(ids) > maxContextTokens {
		ids = ids[len(ids)-maxContextTokens:]
	}

	result := make([]int32, len(ids))
	for i, id := range ids {
		result[i] = int32(id)
	}
	return result, nil
}

// infer runs the model. Sessions are created per call: input length is
// dynamic and the fixed-tensor Session API cannot be reused across
// different sequence lengths.
func (d *ONNXDetector) infer(ctx context.Context, tokens []int32) (float64, error) {
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	default:
	}

	if len(tokens) == 0 {
		return 0.5, nil // neutral for empty input
	}

	inputData := make([]float32, len(tokens))
	for i, token := range tokens {
		inputData[i] = float32(token)
	}

	inputShape := ort.NewShape(1, int64(len(tokens)))
	inputTensor, err := ort.NewTensor(inputShape, inputData)
	if err != nil {
		return 0, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer inputTensor.Destroy()

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 1))
	if err != nil {
		return 0, fmt.Errorf("failed to create output tensor: %w", err)
	}
	defer outputTensor.Destroy()

	options, err := ort.NewSessionOptions()
	if err != nil {
		return 0, fmt.Errorf("failed to create session options: %w", err)
	}
	defer options.Destroy()

	if err := options.SetIntraOpNumThreads(max(1, runtime.NumCPU()/2)); err != nil {
		return 0, fmt.Errorf("failed to set intra-op threads: %w", err)
	}
	if err := options.SetInterOpNumThreads(1); err != nil {
		return 0, fmt.Errorf("failed to set inter-op threads: %w", err)
	}

	modelFile := internal.ModelFile(d.modelPath, d.modelInfo.Revision, modelFileRel)
	if _, err := os.Stat(modelFile); os.IsNotExist(err) {
		return 0, fmt.Errorf("model file not found: %s (run 'kanso models download' first)", modelFile)
	}

	session, err := ort.NewSession[float32](
		modelFile,
		[]string{"input_ids"},
		[]string{"logits"},
		[]*ort.Tensor[float32]{inputTensor},
		[]*ort.Tensor[float32]{outputTensor},
	)
	if err != nil {
		return 0, fmt.Errorf("failed to create ONNX session: %w", err)
	}
	defer session.Destroy()

	if err := session.Run(); err != nil {
		return 0, fmt.Errorf("ONNX inference failed: %w", err)
	}

	output := outputTensor.GetData()
	if len(output) == 0 {
		return 0, fmt.Errorf("empty output tensor")
	}

	prob := float64(output[0])
	if prob < 0 {
		prob = 0
	} else if prob > 1 {
		prob = 1
	}
	return prob, nil
}
