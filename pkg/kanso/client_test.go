package kanso

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/matryer/is"
)

func testServer(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL)
}

func TestLoginUnknownEmailIsNotFound(t *testing.T) {
	is := is.New(t)

	client := testServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"detail": "No account with that email. Please register first."})
	}))

	_, err := client.Login(context.Background(), "nobody@example.com")
	is.True(err != nil)
	is.True(IsNotFound(err))

	var apiErr *APIError
	is.True(errors.As(err, &apiErr))
	is.Equal(apiErr.Detail, "No account with that email. Please register first.")
}

func TestRegisterRoundTrip(t *testing.T) {
	is := is.New(t)

	client := testServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		is.Equal(r.Method, http.MethodPost)
		is.Equal(r.URL.Path, "/auth/register")

		var body map[string]string
		is.NoErr(json.NewDecoder(r.Body).Decode(&body))
		is.Equal(body["role"], "user") // empty role defaults

		json.NewEncoder(w).Encode(User{ID: "u1", Name: body["name"], Email: body["email"], Role: "user"})
	}))

	user, err := client.Register(context.Background(), "Dana", "dana@example.com", "")
	is.NoErr(err)
	is.Equal(user.ID, "u1")
	is.Equal(user.Name, "Dana")
}

func TestSwipeRightPayload(t *testing.T) {
	is := is.New(t)

	client := testServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		is.Equal(r.URL.Path, "/swipe-right")
		var body map[string]string
		is.NoErr(json.NewDecoder(r.Body).Decode(&body))
		is.Equal(body["user_id"], "u1")
		is.Equal(body["job_id"], "j1")
		is.Equal(body["job_title"], "Backend Engineer")
		json.NewEncoder(w).Encode(map[string]string{"message": "Job saved!"})
	}))

	err := client.SwipeRight(context.Background(), "u1", Job{
		ID: "j1", Title: "Backend Engineer", Description: "Go services",
	})
	is.NoErr(err)
}

func TestSetApplicationStatusUsesQueryParam(t *testing.T) {
	is := is.New(t)

	client := testServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		is.Equal(r.Method, http.MethodPatch)
		is.Equal(r.URL.Path, "/application/a1/status")
		is.Equal(r.URL.Query().Get("status"), StatusApplied)
		json.NewEncoder(w).Encode(map[string]string{"message": "ok"})
	}))

	is.NoErr(client.SetApplicationStatus(context.Background(), "a1", StatusApplied))
}

func TestWaitForResumePollsUntilReady(t *testing.T) {
	is := is.New(t)

	var calls atomic.Int32
	client := testServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		status := StatusProcessing
		if calls.Add(1) >= 3 {
			status = StatusReady
		}
		json.NewEncoder(w).Encode(Application{ID: "a1", Status: status, TailoredResume: "\\documentclass..."})
	}))

	app, err := client.WaitForResume(context.Background(), "a1", 10*time.Millisecond)
	is.NoErr(err)
	is.Equal(app.Status, StatusReady)
	is.True(calls.Load() >= 3)
}

func TestWaitForResumeHonorsCancellation(t *testing.T) {
	client := testServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Application{ID: "a1", Status: StatusProcessing})
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.WaitForResume(ctx, "a1", 10*time.Millisecond)
	if err == nil {
		t.Fatal("expected cancellation error")
	}
}

func TestSubmitFeedbackPayloadAndDecode(t *testing.T) {
	is := is.New(t)

	client := testServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		is.NoErr(json.NewDecoder(r.Body).Decode(&body))
		is.Equal(body["application_id"], "a1")
		is.Equal(body["duration_seconds"], float64(185))

		json.NewEncoder(w).Encode(Feedback{
			ID:           "f1",
			Score:        "7/10",
			Summary:      "Solid answers, could be more concise.",
			Strengths:    []string{"clear structure"},
			Improvements: []string{"shorter answers"},
		})
	}))

	fb, err := client.SubmitFeedback(context.Background(), "a1", "u1",
		"You: hello\nInterviewer: welcome", 185*time.Second)
	is.NoErr(err)
	is.Equal(fb.Score, "7/10")
	is.Equal(fb.Strengths, []string{"clear structure"})
}

func TestHRPersonalityNullMeansNone(t *testing.T) {
	is := is.New(t)

	client := testServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("null"))
	}))

	p, err := client.HRPersonality(context.Background(), "Unknown Co")
	is.NoErr(err)
	is.True(p == nil)
}

func TestResumePDFReturnsRawBytes(t *testing.T) {
	is := is.New(t)

	pdf := []byte("%PDF-1.4 fake")
	client := testServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		is.Equal(r.URL.Path, "/application/a1/resume-pdf")
		w.Header().Set("Content-Type", "application/pdf")
		w.Write(pdf)
	}))

	got, err := client.ResumePDF(context.Background(), "a1")
	is.NoErr(err)
	is.Equal(got, pdf)
}

func TestInterviewURL(t *testing.T) {
	is := is.New(t)
	client := New("http://api.kanso.example")
	is.Equal(client.InterviewURL("app-42"), "ws://api.kanso.example/ws/interview/app-42")

	secure := New("https://api.kanso.example/")
	is.Equal(secure.InterviewURL("app-42"), "wss://api.kanso.example/ws/interview/app-42")
}
