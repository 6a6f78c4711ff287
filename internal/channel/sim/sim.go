// Package sim is a self-contained channel endpoint for development and
// staging. It speaks the Transport contract without any network: fresh
// dials walk the pairing flow, credentialed dials open silently, and
// sends succeed at a configurable rate with simulated latency and
// delivery receipts.
package sim

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/wavecast/broadcast-gateway/internal/channel"
	"github.com/wavecast/broadcast-gateway/pkg/logger"
)

var ErrSendRejected = errors.New("simulated send failure")

type Config struct {
	// DeliveryRate is the probability in [0,1] that a send succeeds.
	DeliveryRate float64
	MinDelay     time.Duration
	MaxDelay     time.Duration
	// PairDelay is how long the simulated operator takes to scan the
	// pairing code before the connection opens.
	PairDelay time.Duration
	// ReceiptDelay is the lag between an accepted send and its
	// delivery receipt event.
	ReceiptDelay time.Duration
}

func DefaultConfig() Config {
	return Config{
		DeliveryRate: 0.98,
		MinDelay:     50 * time.Millisecond,
		MaxDelay:     200 * time.Millisecond,
		PairDelay:    500 * time.Millisecond,
		ReceiptDelay: time.Second,
	}
}

// Transport implements channel.Transport against the in-process
// simulator.
type Transport struct {
	config Config

	mu  sync.Mutex
	rng *rand.Rand
}

func New(config Config) *Transport {
	if config.MaxDelay < config.MinDelay {
		config.MaxDelay = config.MinDelay
	}
	return &Transport{
		config: config,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (t *Transport) Dial(ctx context.Context, workspaceID string, credentials []byte) (channel.Conn, error) {
	conn := &conn{
		transport:   t,
		workspaceID: workspaceID,
		events:      make(chan channel.Event, 64),
		done:        make(chan struct{}),
	}

	go conn.open(credentials)
	return conn, nil
}

func (t *Transport) shouldSucceed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rng.Float64() < t.config.DeliveryRate
}

func (t *Transport) sendDelay() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	spread := t.config.MaxDelay - t.config.MinDelay
	if spread <= 0 {
		return t.config.MinDelay
	}
	return t.config.MinDelay + time.Duration(t.rng.Int63n(int64(spread)))
}

type conn struct {
	transport   *Transport
	workspaceID string
	events      chan channel.Event

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

// open runs the handshake: a fresh dial issues a pairing code and waits
// out the scan delay, a credentialed dial opens immediately with the
// same blob.
func (c *conn) open(credentials []byte) {
	if len(credentials) == 0 {
		code := uuid.NewString()[:8]
		if !c.emit(channel.PairingEvent{Code: code}) {
			return
		}
		select {
		case <-c.done:
			return
		case <-time.After(c.transport.config.PairDelay):
		}
		credentials = []byte(uuid.NewString())
	}

	c.emit(channel.OpenEvent{
		EndpointID:  "sim:" + c.workspaceID,
		Credentials: credentials,
	})
}

func (c *conn) Send(ctx context.Context, in channel.SendInput) (*channel.SendResult, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, errors.New("connection closed")
	case <-time.After(c.transport.sendDelay()):
	}

	if !c.transport.shouldSucceed() {
		logger.Debug("sim: rejected send", "workspace_id", c.workspaceID, "to", in.To)
		return nil, ErrSendRejected
	}

	id := uuid.NewString()
	go c.deliverReceipt(id)
	return &channel.SendResult{ProviderMessageID: id}, nil
}

func (c *conn) deliverReceipt(providerMessageID string) {
	select {
	case <-c.done:
		return
	case <-time.After(c.transport.config.ReceiptDelay):
	}
	c.emit(channel.ReceiptEvent{ProviderMessageID: providerMessageID})
}

func (c *conn) Events() <-chan channel.Event {
	return c.events
}

// Logout unlinks the simulated account. The simulator keeps no
// server-side state, so severing the connection is the whole of it;
// the gateway purges its stored credential copy.
func (c *conn) Logout(ctx context.Context) error {
	return c.Close()
}

func (c *conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.done)
	close(c.events)
	return nil
}

// emit delivers one event unless the connection is closed. The channel
// is buffered; a full buffer drops the event rather than deadlocking a
// closing session.
func (c *conn) emit(ev channel.Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.events <- ev:
		return true
	default:
		logger.Warn("sim: event buffer full, dropping event", "workspace_id", c.workspaceID)
		return false
	}
}
