package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/matryer/is"
)

var upgrader = websocket.Upgrader{}

// interviewServer runs handler for each connection and returns a ws://
// URL for it.
func interviewServer(t *testing.T, handler func(*websocket.Conn)) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handler(conn)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func recv(t *testing.T, c *Conn) Message {
	t.Helper()
	select {
	case msg, ok := <-c.Messages():
		if !ok {
			t.Fatal("messages channel closed early")
		}
		return msg
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for message")
	}
	return Message{}
}

func TestDialSendsSetupPayload(t *testing.T) {
	is := is.New(t)

	got := make(chan Setup, 1)
	url := interviewServer(t, func(conn *websocket.Conn) {
		var setup Setup
		if err := conn.ReadJSON(&setup); err != nil {
			t.Error(err)
			return
		}
		got <- setup
		conn.WriteJSON(map[string]any{"type": "connected"})
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	})

	setup := Setup{
		JobTitle:    "Backend Engineer",
		Company:     "Acme",
		Description: "Go services",
		HRName:      "Sarah",
	}
	c, err := Dial(context.Background(), url, setup, nil)
	is.NoErr(err)
	defer c.Close()

	select {
	case received := <-got:
		is.Equal(received, setup)
	case <-time.After(3 * time.Second):
		t.Fatal("server never received setup")
	}

	is.Equal(recv(t, c).Type, MessageConnected)
}

func TestInboundMessageDispatch(t *testing.T) {
	is := is.New(t)

	pcm := []byte{1, 2, 3, 4}
	url := interviewServer(t, func(conn *websocket.Conn) {
		var setup Setup
		conn.ReadJSON(&setup)
		conn.WriteJSON(map[string]any{"type": "connected"})
		conn.WriteJSON(map[string]any{"type": "ai_response", "text": "Welcome! Tell me about yourself.", "turn_complete": true})
		conn.WriteMessage(websocket.BinaryMessage, pcm)
		conn.WriteJSON(map[string]any{"type": "turn_complete"})
		conn.WriteJSON(map[string]any{"type": "interview_end", "message": "time is up"})
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	})

	c, err := Dial(context.Background(), url, Setup{}, nil)
	is.NoErr(err)
	defer c.Close()

	is.Equal(recv(t, c).Type, MessageConnected)

	reply := recv(t, c)
	is.Equal(reply.Type, MessageReply)
	is.Equal(reply.Text, "Welcome! Tell me about yourself.")
	is.True(reply.TurnComplete)

	audio := recv(t, c)
	is.Equal(audio.Type, MessageAudio)
	is.Equal(audio.Audio, pcm)

	is.Equal(recv(t, c).Type, MessageTurnComplete)

	end := recv(t, c)
	is.Equal(end.Type, MessageInterviewEnd)
	is.Equal(end.Text, "time is up")

	closed := recv(t, c)
	is.Equal(closed.Type, MessageClosed)
	is.True(closed.Deliberate) // orderly server close
}

func TestSendTranscript(t *testing.T) {
	is := is.New(t)

	got := make(chan string, 1)
	url := interviewServer(t, func(conn *websocket.Conn) {
		var setup Setup
		conn.ReadJSON(&setup)
		var msg struct {
			Type       string `json:"type"`
			Transcript string `json:"transcript"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			t.Error(err)
			return
		}
		if msg.Type != "user_transcript" {
			t.Errorf("unexpected type %q", msg.Type)
		}
		got <- msg.Transcript
	})

	c, err := Dial(context.Background(), url, Setup{}, nil)
	is.NoErr(err)
	defer c.Close()

	is.NoErr(c.SendTranscript("I have five years of Go experience."))

	select {
	case transcript := <-got:
		is.Equal(transcript, "I have five years of Go experience.")
	case <-time.After(3 * time.Second):
		t.Fatal("server never received transcript")
	}
}

func TestUnexpectedCloseIsNotDeliberate(t *testing.T) {
	is := is.New(t)

	url := interviewServer(t, func(conn *websocket.Conn) {
		var setup Setup
		conn.ReadJSON(&setup)
		// Drop the connection without a close handshake.
		conn.Close()
	})

	c, err := Dial(context.Background(), url, Setup{}, nil)
	is.NoErr(err)
	defer c.Close()

	closed := recv(t, c)
	is.Equal(closed.Type, MessageClosed)
	is.True(!closed.Deliberate)
	is.True(closed.Err != nil)
}

func TestLocalCloseIsDeliberateAndIdempotent(t *testing.T) {
	is := is.New(t)

	url := interviewServer(t, func(conn *websocket.Conn) {
		var setup Setup
		conn.ReadJSON(&setup)
		// Hold the connection open until the client closes it.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	c, err := Dial(context.Background(), url, Setup{}, nil)
	is.NoErr(err)

	is.NoErr(c.Close())
	is.NoErr(c.Close())

	closed := recv(t, c)
	is.Equal(closed.Type, MessageClosed)
	is.True(closed.Deliberate)

	if _, ok := <-c.Messages(); ok {
		t.Fatal("messages channel not closed after terminal message")
	}
}

func TestCloseUnblocksReadLoopWithBackloggedFrames(t *testing.T) {
	served := make(chan struct{})
	url := interviewServer(t, func(conn *websocket.Conn) {
		var setup Setup
		conn.ReadJSON(&setup)
		// Far more audio frames than the message buffer holds, with
		// nobody consuming them on the client side.
		for i := 0; i < 100; i++ {
			if err := conn.WriteMessage(websocket.BinaryMessage, make([]byte, 480)); err != nil {
				break
			}
		}
		close(served)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	c, err := Dial(context.Background(), url, Setup{}, nil)
	if err != nil {
		t.Fatal(err)
	}

	select {
	case <-served:
	case <-time.After(3 * time.Second):
		t.Fatal("server never finished writing")
	}

	// The consumer never drained a single message. Close must still let
	// the read loop finish and close the channel.
	c.Close()

	deadline := time.After(3 * time.Second)
	for {
		select {
		case _, ok := <-c.Messages():
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("read loop still wedged after Close")
		}
	}
}

func TestDialFailureReturnsError(t *testing.T) {
	_, err := Dial(context.Background(), "ws://127.0.0.1:1/interview", Setup{}, nil)
	if err == nil {
		t.Fatal("expected dial error")
	}
}

func TestMalformedAndUnknownFramesAreSkipped(t *testing.T) {
	is := is.New(t)

	url := interviewServer(t, func(conn *websocket.Conn) {
		var setup Setup
		conn.ReadJSON(&setup)
		conn.WriteMessage(websocket.TextMessage, []byte("{not json"))
		conn.WriteJSON(map[string]any{"type": "heartbeat"})
		conn.WriteJSON(map[string]any{"type": "ai_response", "text": "still here"})
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	})

	c, err := Dial(context.Background(), url, Setup{}, nil)
	is.NoErr(err)
	defer c.Close()

	msg := recv(t, c)
	is.Equal(msg.Type, MessageReply)
	is.Equal(msg.Text, "still here")
}
