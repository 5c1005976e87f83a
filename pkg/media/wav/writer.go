package wav

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/kansoai/interviewkit/pkg/media"
)

// Writer writes 16-bit PCM frames to a WAV file. Used by console mode to
// record the candidate side of a session for later review.
type Writer struct {
	file           *os.File
	sampleRate     uint32
	numChannels    uint16
	samplesWritten uint32
}

// NewWriter creates a WAV file and writes a provisional header. The
// header sizes are fixed up on Close.
func NewWriter(filename string, sampleRate uint32, numChannels uint16) (*Writer, error) {
	file, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create WAV file: %w", err)
	}

	w := &Writer{
		file:        file,
		sampleRate:  sampleRate,
		numChannels: numChannels,
	}

	if err := w.writeHeader(); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to write WAV header: %w", err)
	}

	return w, nil
}

// WriteFrame appends one frame of audio. The frame must match the
// writer's sample rate and channel count.
func (w *Writer) WriteFrame(frame media.Frame) error {
	if frame.SampleRate != int(w.sampleRate) {
		return fmt.Errorf("frame rate %dHz does not match writer rate %dHz", frame.SampleRate, w.sampleRate)
	}
	if frame.NumChannels != int(w.numChannels) {
		return fmt.Errorf("frame has %d channels, writer expects %d", frame.NumChannels, w.numChannels)
	}

	if _, err := w.file.Write(frame.Data); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}

	w.samplesWritten += uint32(frame.SamplesPerChannel)
	return nil
}

// Close fixes up the header sizes and closes the file. Safe to call twice.
func (w *Writer) Close() error {
	if w.file == nil {
		return nil
	}

	dataSize := w.samplesWritten * uint32(w.numChannels) * 2
	chunkSize := dataSize + 36

	if _, err := w.file.Seek(4, 0); err != nil {
		return fmt.Errorf("failed to seek to chunk size: %w", err)
	}
	if err := binary.Write(w.file, binary.LittleEndian, chunkSize); err != nil {
		return fmt.Errorf("failed to write chunk size: %w", err)
	}

	if _, err := w.file.Seek(40, 0); err != nil {
		return fmt.Errorf("failed to seek to data size: %w", err)
	}
	if err := binary.Write(w.file, binary.LittleEndian, dataSize); err != nil {
		return fmt.Errorf("failed to write data size: %w", err)
	}

	err := w.file.Close()
	w.file = nil
	return err
}

func (w *Writer) writeHeader() error {
	header := Encode(nil, int(w.sampleRate), int(w.numChannels))
	if _, err := w.file.Write(header); err != nil {
		return err
	}
	return nil
}
