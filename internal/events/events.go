// Package events fans ledger change notifications out to every UI instance so
// each can drop its cached reads for the affected user.
package events

import (
	"context"

	"gastos/internal/log"
)

// Publisher announces ledger changes.
type Publisher interface {
	Publish(ctx context.Context, msg *Message) error
}

// Handler reacts to a received message. A returned error requeues the delivery.
type Handler func(ctx context.Context, msg *Message) error

// Nop is the Publisher used when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, *Message) error { return nil }

// outcome is what to do with a delivery after handling it.
type outcome int

const (
	ack outcome = iota
	reject
	requeue
)

// dispatch decodes body and runs handler. Messages this instance sent itself are acknowledged unhandled.
func dispatch(ctx context.Context, logger *log.Logger, source string, body []byte, handler Handler) outcome {
	msg, err := MessageFromJSON(body)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to decode event", log.FieldError, err)
		return reject
	}
	if msg.Source == source {
		return ack
	}
	if err := handler(ctx, msg); err != nil {
		logger.ErrorContext(ctx, "Failed to handle event", log.FieldEvent, msg.Type, log.FieldError, err)
		return requeue
	}
	logger.DebugContext(ctx, "Event handled", log.FieldEvent, msg.Type)
	return ack
}
