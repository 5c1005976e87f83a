package turn

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/kansoai/interviewkit/pkg/turn/internal"
)

// Downloader fetches end-of-utterance model files from the Hugging Face
// hub into the local model directory.
type Downloader struct {
	modelPath string
	client    *http.Client
}

// NewDownloader creates a downloader rooted at modelPath. An empty path
// uses the default model directory.
func NewDownloader(modelPath string) *Downloader {
	if modelPath == "" {
		modelPath = defaultModelPath()
	}
	return &Downloader{
		modelPath: modelPath,
		client:    &http.Client{},
	}
}

// DownloadAll fetches every known model.
func (d *Downloader) DownloadAll(ctx context.Context) error {
	for _, model := range internal.AllModels {
		if err := d.DownloadModel(ctx, model); err != nil {
			return fmt.Errorf("failed to download model %s: %w", model.Name, err)
		}
	}
	return nil
}

// DownloadModel fetches a single model and its associated files,
// skipping files that are already present and valid.
func (d *Downloader) DownloadModel(ctx context.Context, model internal.ModelInfo) error {
	modelDir := internal.ModelDir(d.modelPath, model.Revision)
	if err := os.MkdirAll(modelDir, 0755); err != nil {
		return fmt.Errorf("failed to create model directory: %w", err)
	}

	for _, filename := range model.Files {
		filePath := filepath.Join(modelDir, filename)
		if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
			return fmt.Errorf("failed to create directories for %s: %w", filename, err)
		}

		if d.isValidFile(filePath, model.Hashes[filename]) {
			fmt.Printf("✓ %s already exists\n", filename)
			continue
		}

		fmt.Printf("Downloading %s...\n", filename)
		if err := d.downloadFile(ctx, model, filename, filePath); err != nil {
			os.Remove(filePath)
			return fmt.Errorf("failed to download %s: %w", filename, err)
		}
		fmt.Printf("✓ Downloaded %s\n", filename)
	}

	fmt.Printf("✓ Model '%s' ready\n", model.Name)
	return nil
}

// Status reports which models are fully downloaded.
func (d *Downloader) Status() map[string]bool {
	status := make(map[string]bool)
	for _, model := range internal.AllModels {
		complete := true
		for _, filename := range model.Files {
			filePath := internal.ModelFile(d.modelPath, model.Revision, filename)
			if !d.isValidFile(filePath, model.Hashes[filename]) {
				complete = false
				break
			}
		}
		status[model.Name] = complete
	}
	return status
}

func (d *Downloader) downloadFile(ctx context.Context, model internal.ModelInfo, filename, destination string) error {
	url := fmt.Sprintf("https://huggingface.co/%s/resolve/%s/%s",
		model.Repo, model.Revision, filename)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	file, err := os.Create(destination)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	if _, err := io.Copy(file, resp.Body); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

// isValidFile checks existence and, when a hash is known, integrity.
func (d *Downloader) isValidFile(filePath, expectedHash string) bool {
	info, err := os.Stat(filePath)
	if err != nil || info.Size() == 0 {
		return false
	}
	if expectedHash == "" {
		return true
	}
	return d.verifyFileHash(filePath, expectedHash)
}

func (d *Downloader) verifyFileHash(filePath, expectedHash string) bool {
	file, err := os.Open(filePath)
	if err != nil {
		return false
	}
	defer file.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return false
	}
	return fmt.Sprintf("%x", hasher.Sum(nil)) == expectedHash
}
