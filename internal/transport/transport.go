// Package transport is the websocket adapter between a session and the
// interview backend. One JSON control channel plus binary PCM audio
// chunks share a single connection.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Setup is the handshake payload sent immediately after connecting. It
// tells the backend which role play to run.
type Setup struct {
	JobTitle    string `json:"job_title"`
	Company     string `json:"company"`
	Description string `json:"description"`
	HRName      string `json:"hr_name"`
}

// MessageType discriminates inbound transport messages.
type MessageType int

const (
	// MessageConnected confirms the backend accepted the handshake.
	MessageConnected MessageType = iota
	// MessageReply carries interviewer reply text.
	MessageReply
	// MessageAudio carries one binary chunk of playback-rate PCM.
	MessageAudio
	// MessageTurnComplete means the interviewer finished its turn.
	MessageTurnComplete
	// MessageInterviewEnd means the backend ended the interview.
	MessageInterviewEnd
	// MessageError carries a backend-reported error.
	MessageError
	// MessageClosed is terminal: the connection is gone. Deliberate
	// distinguishes a locally requested close from an unexpected one.
	MessageClosed
)

func (t MessageType) String() string {
	switch t {
	case MessageConnected:
		return "connected"
	case MessageReply:
		return "reply"
	case MessageAudio:
		return "audio"
	case MessageTurnComplete:
		return "turn_complete"
	case MessageInterviewEnd:
		return "interview_end"
	case MessageError:
		return "error"
	case MessageClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Message is one inbound event from the backend.
type Message struct {
	Type         MessageType
	Text         string // reply text, or error/end detail
	TurnComplete bool   // set on MessageReply when the reply ends the turn
	Audio        []byte // PCM chunk for MessageAudio
	Deliberate   bool   // set on MessageClosed after a local Close
	Err          error  // set on MessageClosed for unexpected closes
}

// controlMessage is the wire shape of JSON control frames.
type controlMessage struct {
	Type         string `json:"type"`
	Text         string `json:"text,omitempty"`
	TurnComplete bool   `json:"turn_complete,omitempty"`
	Message      string `json:"message,omitempty"`
	Transcript   string `json:"transcript,omitempty"`
}

// Conn is an established interview connection. Messages delivers every
// inbound event and always terminates with exactly one MessageClosed.
type Conn struct {
	conn   *websocket.Conn
	logger *slog.Logger

	messages chan Message
	done     chan struct{}

	writeMu   sync.Mutex
	requested atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// Dial connects to the interview endpoint and sends the setup payload.
// The returned Conn is already reading; consume Messages promptly.
func Dial(ctx context.Context, url string, setup Setup, logger *slog.Logger) (*Conn, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second

	logger.Debug("dialing interview endpoint", "url", url)
	wsConn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	if err := wsConn.WriteJSON(setup); err != nil {
		wsConn.Close()
		return nil, fmt.Errorf("failed to send setup: %w", err)
	}

	c := &Conn{
		conn:     wsConn,
		logger:   logger,
		messages: make(chan Message, 32),
		done:     make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Messages returns the inbound message channel. It is closed after the
// terminal MessageClosed is delivered.
func (c *Conn) Messages() <-chan Message {
	return c.messages
}

// SendTranscript sends one committed candidate utterance.
func (c *Conn) SendTranscript(transcript string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	err := c.conn.WriteJSON(controlMessage{Type: "user_transcript", Transcript: transcript})
	if err != nil {
		return fmt.Errorf("failed to send transcript: %w", err)
	}
	return nil
}

// Close shuts the connection down deliberately. Safe to call more than
// once and concurrently with inbound traffic.
func (c *Conn) Close() error {
	c.requested.Store(true)
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		deadline := time.Now().Add(time.Second)
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		c.writeMu.Unlock()
		c.closeErr = c.conn.Close()
		// Unblock readLoop if the session stopped draining Messages
		// with frames still in flight.
		close(c.done)
	})
	return c.closeErr
}

func (c *Conn) readLoop() {
	defer close(c.messages)

	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			c.deliver(c.closedMessage(err))
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			if !c.deliver(Message{Type: MessageAudio, Audio: data}) {
				return
			}
		case websocket.TextMessage:
			msg, ok := c.decodeControl(data)
			if !ok {
				continue
			}
			if !c.deliver(msg) {
				return
			}
		}
	}
}

// deliver hands a message to the consumer. When the buffer is full it
// gives up once Close has run, so a consumer that stopped draining
// cannot wedge the loop. A buffered send still goes through after Close
// so the terminal MessageClosed is not lost.
func (c *Conn) deliver(msg Message) bool {
	select {
	case c.messages <- msg:
		return true
	default:
	}
	select {
	case c.messages <- msg:
		return true
	case <-c.done:
		return false
	}
}

func (c *Conn) decodeControl(data []byte) (Message, bool) {
	var ctrl controlMessage
	if err := json.Unmarshal(data, &ctrl); err != nil {
		c.logger.Warn("discarding malformed control frame", "error", err)
		return Message{}, false
	}

	switch ctrl.Type {
	case "connected":
		return Message{Type: MessageConnected, Text: ctrl.Message}, true
	case "ai_response":
		return Message{Type: MessageReply, Text: ctrl.Text, TurnComplete: ctrl.TurnComplete}, true
	case "turn_complete", "turn_end":
		return Message{Type: MessageTurnComplete}, true
	case "interview_end":
		return Message{Type: MessageInterviewEnd, Text: ctrl.Message}, true
	case "error":
		return Message{Type: MessageError, Text: ctrl.Message}, true
	default:
		c.logger.Warn("discarding unknown control frame", "type", ctrl.Type)
		return Message{}, false
	}
}

// closedMessage classifies the read error that ended the loop.
func (c *Conn) closedMessage(err error) Message {
	if c.requested.Load() {
		return Message{Type: MessageClosed, Deliberate: true}
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		// Server-initiated orderly close, e.g. after interview_end.
		return Message{Type: MessageClosed, Deliberate: true}
	}
	c.logger.Warn("connection lost", "error", err)
	return Message{Type: MessageClosed, Err: err}
}
