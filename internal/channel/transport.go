package channel

import (
	"context"
	"time"
)

// SendInput is one outbound message handed to the transport. Media is
// passed by URL; the provider fetches it, the gateway never does.
type SendInput struct {
	To       string
	Content  string
	MediaURL string
}

// SendResult carries the provider-side id used to correlate receipts.
type SendResult struct {
	ProviderMessageID string
}

// Event is a protocol event surfaced by a live connection. The session
// event loop is the only consumer.
type Event interface {
	event()
}

// PairingEvent carries a fresh pairing code for the operator to scan.
type PairingEvent struct {
	Code string
}

// OpenEvent fires when the connection is authenticated. Credentials is
// the refreshed credential blob to persist for silent reconnects.
type OpenEvent struct {
	EndpointID  string
	Credentials []byte
}

// ClosedEvent fires when the connection drops. LoggedOut means the
// account was unlinked on the provider side: stored credentials are
// invalid and must not be replayed.
type ClosedEvent struct {
	LoggedOut bool
	Err       error
}

// InboundMessageEvent is a message from a contact. PushName is the
// sender's self-chosen display name and may be empty.
type InboundMessageEvent struct {
	From              string
	PushName          string
	Content           string
	ProviderMessageID string
	At                time.Time
}

// ReceiptEvent is a delivery receipt for a previously sent message.
type ReceiptEvent struct {
	ProviderMessageID string
}

func (PairingEvent) event()        {}
func (OpenEvent) event()           {}
func (ClosedEvent) event()         {}
func (InboundMessageEvent) event() {}
func (ReceiptEvent) event()        {}

// Conn is one live connection to the messaging provider. Logout
// unlinks the account on the provider side, invalidating its stored
// credentials; Close only drops the connection.
type Conn interface {
	Send(ctx context.Context, in SendInput) (*SendResult, error)
	Events() <-chan Event
	Logout(ctx context.Context) error
	Close() error
}

// Transport dials provider connections. Credentials is the blob from a
// previous OpenEvent, or nil for a fresh pairing flow.
type Transport interface {
	Dial(ctx context.Context, workspaceID string, credentials []byte) (Conn, error)
}
