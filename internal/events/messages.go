package events

import (
	"encoding/json"
	"errors"
	"time"
)

// LedgerChanged is published after a successful mutation of a user's ledger.
const LedgerChanged = "ledger.changed"

// Message is the envelope exchanged between instances. It carries only the
// principal key; receivers refetch whatever they need.
type Message struct {
	Type      string    `json:"type"`
	Principal string    `json:"principal"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
}

// NewLedgerChanged creates a ledger.changed message for principal
func NewLedgerChanged(principal, source string) *Message {
	return &Message{
		Type:      LedgerChanged,
		Principal: principal,
		Source:    source,
		Timestamp: time.Now().UTC(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *Message) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// MessageFromJSON decodes and validates a message
func MessageFromJSON(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Type == "" || msg.Principal == "" {
		return nil, errors.New("message missing type or principal")
	}
	return &msg, nil
}
