// Package directory propagates account visibility changes to the
// contact-discovery directory service.
package directory

import (
	"context"

	"github.com/google/uuid"
)

// Action is the directory mutation carried by a queue message.
type Action string

// Directory actions understood by the reconciliation consumers.
const (
	ActionAdd    Action = "add"
	ActionDelete Action = "delete"
)

// Message is the wire document sent to the directory queue. Consumers
// are idempotent on Number; delivery is at-least-once.
type Message struct {
	Action Action `json:"action"`
	Number string `json:"number"`
	UUID   string `json:"uuid"`
}

// Queue is the at-least-once sink for directory messages.
type Queue interface {
	Enqueue(ctx context.Context, msg Message) error
}

// AddMessage builds an add message for a visible account.
func AddMessage(id uuid.UUID, number string) Message {
	return Message{Action: ActionAdd, Number: number, UUID: id.String()}
}

// DeleteMessage builds a deregistration message.
func DeleteMessage(id uuid.UUID, number string) Message {
	return Message{Action: ActionDelete, Number: number, UUID: id.String()}
}
