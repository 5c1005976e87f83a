// Package media provides the PCM audio frame type shared by capture,
// recognition, synthesis and playback.
package media

import (
	"fmt"
	"math"
	"time"
)

// Standard rates used across the session. The microphone side of the
// pipeline runs at 16 kHz mono; synthesized and streamed agent audio
// arrives at 24 kHz mono.
const (
	CaptureRate  = 16000
	PlaybackRate = 24000
)

// Frame represents exactly 10 ms of 16-bit little-endian PCM audio.
// len(Data) == SamplesPerChannel * NumChannels * 2.
//
// A zero Timestamp means "live"; otherwise it is the offset from the
// start of the stream the frame belongs to.
type Frame struct {
	Data              []byte
	SampleRate        int
	SamplesPerChannel int // SampleRate / 100
	NumChannels       int // 1 or 2
	Timestamp         time.Duration
}

// NewFrame creates a Frame and validates that data holds exactly 10 ms
// of audio for the given rate and channel count.
func NewFrame(data []byte, sampleRate, numChannels int, timestamp time.Duration) (*Frame, error) {
	samplesPerChannel := sampleRate / 100
	expected := samplesPerChannel * numChannels * 2

	if len(data) != expected {
		return nil, fmt.Errorf("frame data length mismatch: got %d bytes, expected %d for %dHz %d-channel 10ms audio",
			len(data), expected, sampleRate, numChannels)
	}

	return &Frame{
		Data:              data,
		SampleRate:        sampleRate,
		SamplesPerChannel: samplesPerChannel,
		NumChannels:       numChannels,
		Timestamp:         timestamp,
	}, nil
}

// Clone returns a deep copy of the frame.
func (f *Frame) Clone() *Frame {
	data := make([]byte, len(f.Data))
	copy(data, f.Data)

	return &Frame{
		Data:              data,
		SampleRate:        f.SampleRate,
		SamplesPerChannel: f.SamplesPerChannel,
		NumChannels:       f.NumChannels,
		Timestamp:         f.Timestamp,
	}
}

// Duration returns the duration represented by this frame, computed
// from its sample count. Frames built with NewFrame are always 10ms;
// frames wrapping raw network chunks can be longer.
func (f *Frame) Duration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(f.SamplesPerChannel) * time.Second / time.Duration(f.SampleRate)
}

// RMS returns the root-mean-square amplitude of the frame normalized to
// [0, 1]. Used by recognizers to detect quiet stretches worth flushing.
func (f *Frame) RMS() float64 {
	if len(f.Data) < 2 {
		return 0
	}

	var sum float64
	n := len(f.Data) / 2
	for i := 0; i < n; i++ {
		s := int16(uint16(f.Data[i*2]) | uint16(f.Data[i*2+1])<<8)
		v := float64(s) / 32768.0
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}
