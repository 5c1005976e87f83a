package internal

import "path/filepath"

// ModelInfo holds metadata for an end-of-utterance model revision.
type ModelInfo struct {
	Name     string // "english", "multilingual"
	Repo     string
	Revision string
	Size     int64
	Files    []string
	// Hashes maps a file in Files to its expected SHA-256. Files
	// without an entry are only checked for existence.
	Hashes map[string]string
}

var (
	EnglishModel = ModelInfo{
		Name:     "english",
		Repo:     "livekit/turn-detector",
		Revision: "v1.2.2-en",
		Size:     66 * 1024 * 1024,
		Files: []string{
			"onnx/model_q8.onnx",
			"tokenizer.json",
			"languages.json",
		},
		Hashes: map[string]string{
			"onnx/model_q8.onnx": "fdd695a99bda01155fb0b5ce71d34cb9fd3902c62496db7a6c2c7bdeac310ac7",
		},
	}

	MultilingualModel = ModelInfo{
		Name:     "multilingual",
		Repo:     "livekit/turn-detector",
		Revision: "v0.3.0-intl",
		Size:     281 * 1024 * 1024,
		Files: []string{
			"onnx/model_q8.onnx",
			"tokenizer.json",
			"languages.json",
		},
	}

	// AllModels enumerates every model the downloader must handle.
	AllModels = []ModelInfo{EnglishModel, MultilingualModel}
)

// ModelDir returns the directory where a revision is stored.
func ModelDir(basePath, revision string) string {
	return filepath.Join(basePath, "eou", revision)
}

// ModelFile returns the absolute path to a specific file for a revision.
func ModelFile(basePath, revision, filename string) string {
	return filepath.Join(ModelDir(basePath, revision), filename)
}
