package realtime

import (
	"encoding/json"
	"time"

	"github.com/gogotex/collabdocs/internal/document"
)

type MessageType string

const (
	// TypeHello is the first message on every connection.
	TypeHello     MessageType = "hello"
	TypeCommitted MessageType = "committed"
	// TypeDeleted is the last message before the server closes the socket.
	TypeDeleted MessageType = "deleted"
	TypePing    MessageType = "ping"
	TypePong    MessageType = "pong"
)

type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

type HelloPayload struct {
	DocumentID document.ID `json:"documentId"`
	Version    int64       `json:"version"`
}

// CommittedPayload tells clients to fetch steps or the snapshot up to Version.
type CommittedPayload struct {
	DocumentID document.ID `json:"documentId"`
	Version    int64       `json:"version"`
	Kind       string      `json:"kind"`
	Author     string      `json:"author"`
}

type DeletedPayload struct {
	DocumentID document.ID `json:"documentId"`
}

func encode(t MessageType, payload interface{}, at time.Time) ([]byte, error) {
	msg := Message{Type: t, Timestamp: at.UTC()}
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		msg.Payload = b
	}
	return json.Marshal(msg)
}
