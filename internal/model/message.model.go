package model

import (
	"fmt"
	"time"
)

// MessageStatus is the delivery state of a single message. Transitions
// only move forward: pending -> sent -> delivered, or pending -> failed.
type MessageStatus string

const (
	MessageStatusPending   MessageStatus = "pending"
	MessageStatusSent      MessageStatus = "sent"
	MessageStatusDelivered MessageStatus = "delivered"
	MessageStatusFailed    MessageStatus = "failed"
)

type MessageDirection string

const (
	DirectionOutbound MessageDirection = "outbound"
	DirectionInbound  MessageDirection = "inbound"
)

var messageTransitions = map[MessageStatus][]MessageStatus{
	MessageStatusPending: {MessageStatusSent, MessageStatusFailed},
	MessageStatusSent:    {MessageStatusDelivered},
}

func (s MessageStatus) CanTransition(to MessageStatus) bool {
	for _, next := range messageTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether the reconciler must treat a repeated outcome
// for this message as a no-op.
func (s MessageStatus) Terminal() bool {
	switch s {
	case MessageStatusSent, MessageStatusDelivered, MessageStatusFailed:
		return true
	}
	return false
}

// Message is one row per (broadcast, recipient) pair for outbound
// traffic, or a standalone row for inbound traffic (BroadcastID empty).
type Message struct {
	ID                string           `json:"id"`
	BroadcastID       *string          `json:"broadcast_id,omitempty"`
	WorkspaceID       string           `json:"workspace_id"`
	ContactID         string           `json:"contact_id"`
	Direction         MessageDirection `json:"direction"`
	Content           string           `json:"content"`
	MediaURL          string           `json:"media_url,omitempty"`
	Status            MessageStatus    `json:"status"`
	ErrorDetail       string           `json:"error_detail,omitempty"`
	ProviderMessageID string           `json:"provider_message_id,omitempty"`
	SentAt            *time.Time       `json:"sent_at,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
}

func (m *Message) Transition(to MessageStatus) error {
	if !m.Status.CanTransition(to) {
		return fmt.Errorf("%w: message %s -> %s", ErrIllegalTransition, m.Status, to)
	}
	m.Status = to
	return nil
}

// MessageFilter controls list queries.
type MessageFilter struct {
	WorkspaceID *string
	BroadcastID *string
	ContactID   *string
	Statuses    []MessageStatus
	Direction   *MessageDirection
	From        *time.Time
	To          *time.Time
	Limit       int
	Offset      int
	Desc        bool
}
