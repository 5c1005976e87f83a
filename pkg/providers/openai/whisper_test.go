package openai

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/kansoai/interviewkit/pkg/capture"
	"github.com/kansoai/interviewkit/pkg/capture/fake"
	"github.com/kansoai/interviewkit/pkg/media"
)

// testClient returns a client pointed at a stub transcription server.
func testClient(t *testing.T, handler http.HandlerFunc) *openai.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cfg := openai.DefaultConfig("test-key")
	cfg.BaseURL = srv.URL + "/v1"
	return openai.NewClientWithConfig(cfg)
}

func toneFrames(t *testing.T, n int, amplitude float64) []media.Frame {
	t.Helper()
	samples := media.CaptureRate / 100
	frames := make([]media.Frame, n)
	for i := range frames {
		data := make([]byte, samples*2)
		for s := 0; s < samples; s++ {
			v := int16(amplitude * 32767 * math.Sin(2*math.Pi*300*float64(i*samples+s)/media.CaptureRate))
			binary.LittleEndian.PutUint16(data[s*2:], uint16(v))
		}
		frame, err := media.NewFrame(data, media.CaptureRate, 1, time.Duration(i)*10*time.Millisecond)
		if err != nil {
			t.Fatal(err)
		}
		frames[i] = *frame
	}
	return frames
}

func silenceFrames(t *testing.T, n int) []media.Frame {
	return toneFrames(t, n, 0)
}

func waitEvent(t *testing.T, r *Recognizer) capture.Event {
	t.Helper()
	select {
	case ev := <-r.Events():
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return capture.Event{}
}

func TestRecognizerTranscribesUtterance(t *testing.T) {
	requests := 0
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		requests++
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			t.Errorf("bad multipart request: %v", err)
		}
		if _, _, err := r.FormFile("file"); err != nil {
			t.Errorf("missing audio file: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]string{"text": "I enjoy solving distributed systems problems."})
	})

	// 50 speech frames, then enough silence to close the utterance.
	script := append(toneFrames(t, 50, 0.5), silenceFrames(t, 70)...)
	source := fake.NewFrameSource(script)

	rec := NewRecognizer(client, source, RecognizerConfig{}, nil)
	defer rec.Close()

	if err := rec.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	ev := waitEvent(t, rec)
	if ev.Type != capture.EventFinal {
		t.Fatalf("got %v event, want final", ev.Type)
	}
	if ev.Text != "I enjoy solving distributed systems problems." {
		t.Fatalf("unexpected transcript %q", ev.Text)
	}
	if requests != 1 {
		t.Fatalf("expected one transcription request, got %d", requests)
	}
}

func TestRecognizerSilenceOnlyEmitsNoSpeech(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("silence should never reach the API")
	})

	source := fake.NewFrameSource(silenceFrames(t, 100))
	rec := NewRecognizer(client, source, RecognizerConfig{}, nil)
	defer rec.Close()

	if err := rec.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	ev := waitEvent(t, rec)
	if ev.Type != capture.EventNoSpeech {
		t.Fatalf("got %v event, want no-speech", ev.Type)
	}
}

func TestRecognizerBlankTranscriptIsNoSpeech(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"text": "  "})
	})

	script := append(toneFrames(t, 50, 0.5), silenceFrames(t, 70)...)
	rec := NewRecognizer(client, fake.NewFrameSource(script), RecognizerConfig{}, nil)
	defer rec.Close()

	if err := rec.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	ev := waitEvent(t, rec)
	if ev.Type != capture.EventNoSpeech {
		t.Fatalf("got %v event, want no-speech", ev.Type)
	}
}

func TestRecognizerAPIFailureEmitsError(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"rate limited"}}`, http.StatusTooManyRequests)
	})

	script := append(toneFrames(t, 50, 0.5), silenceFrames(t, 70)...)
	rec := NewRecognizer(client, fake.NewFrameSource(script), RecognizerConfig{}, nil)
	defer rec.Close()

	if err := rec.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	ev := waitEvent(t, rec)
	if ev.Type != capture.EventError {
		t.Fatalf("got %v event, want error", ev.Type)
	}
	if ev.Err == nil {
		t.Fatal("error event without error")
	}
}

func TestRecognizerShortBurstIsDiscarded(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("sub-minimum burst should never reach the API")
	})

	// A 50ms pop, below the default 200ms minimum.
	script := append(toneFrames(t, 5, 0.5), silenceFrames(t, 70)...)
	rec := NewRecognizer(client, fake.NewFrameSource(script), RecognizerConfig{}, nil)
	defer rec.Close()

	if err := rec.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	ev := waitEvent(t, rec)
	if ev.Type != capture.EventNoSpeech {
		t.Fatalf("got %v event, want no-speech", ev.Type)
	}
}
