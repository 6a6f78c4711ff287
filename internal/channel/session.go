package channel

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/wavecast/broadcast-gateway/internal/model"
	"github.com/wavecast/broadcast-gateway/internal/repository"
	"github.com/wavecast/broadcast-gateway/pkg/logger"
	"github.com/wavecast/broadcast-gateway/pkg/prom"
)

var (
	ErrNotConnected      = errors.New("channel is not connected")
	ErrAlreadyConnecting = errors.New("channel connection already in progress")
)

// Hooks receive protocol traffic that is not the session's own concern.
// They are called from the session event loop and must not block.
type Hooks struct {
	OnInbound func(workspaceID string, ev InboundMessageEvent)
	OnReceipt func(workspaceID string, ev ReceiptEvent)
}

// Session owns the channel connection of one workspace and drives its
// status through disconnected -> connecting -> qr_ready -> connected.
// A drop that is not a logout reconnects automatically with the stored
// credentials; a logout purges them and parks the session.
type Session struct {
	workspaceID    string
	transport      Transport
	sessions       *repository.ChannelSessionRepository
	workspaces     *repository.WorkspaceRepository
	hooks          Hooks
	reconnectDelay time.Duration

	mu          sync.RWMutex
	status      model.ChannelStatus
	pairingCode string
	endpointID  string
	conn        Conn

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewSession(
	workspaceID string,
	transport Transport,
	sessions *repository.ChannelSessionRepository,
	workspaces *repository.WorkspaceRepository,
	hooks Hooks,
	reconnectDelay time.Duration,
) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		workspaceID:    workspaceID,
		transport:      transport,
		sessions:       sessions,
		workspaces:     workspaces,
		hooks:          hooks,
		reconnectDelay: reconnectDelay,
		status:         model.ChannelStatusDisconnected,
		ctx:            ctx,
		cancel:         cancel,
	}
}

// Connect dials the provider and starts the event loop. With stored
// credentials the session goes straight to connected on OpenEvent;
// without them a PairingEvent supplies the code first.
func (s *Session) Connect(ctx context.Context) error {
	if !s.claim() {
		return ErrAlreadyConnecting
	}
	return s.dial(ctx)
}

// claim atomically moves the session out of disconnected, reserving the
// one connection attempt. The registry claims under its own lock so two
// Connect calls can never race into two dials.
func (s *Session) claim() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.Live() {
		return false
	}
	s.status = model.ChannelStatusConnecting
	return true
}

// dial performs the connection attempt for an already claimed session.
func (s *Session) dial(ctx context.Context) error {
	s.persist(ctx)

	creds := s.storedCredentials(ctx)

	conn, err := s.transport.Dial(ctx, s.workspaceID, creds)
	if err != nil {
		s.mu.Lock()
		s.status = model.ChannelStatusDisconnected
		s.mu.Unlock()
		s.persist(ctx)
		return errors.Wrap(err, "failed to dial channel")
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run(conn)
	return nil
}

func (s *Session) storedCredentials(ctx context.Context) []byte {
	stored, err := s.sessions.Get(ctx, s.workspaceID)
	if err != nil {
		if err != repository.ErrNotFound {
			logger.Error("channel: failed to load stored credentials", "workspace_id", s.workspaceID, "error", err)
		}
		return nil
	}
	return stored.Credentials
}

// run drains connection events until a terminal close or Disconnect.
func (s *Session) run(conn Conn) {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case ev, ok := <-conn.Events():
			if !ok {
				return
			}
			switch e := ev.(type) {
			case PairingEvent:
				s.onPairing(e)
			case OpenEvent:
				s.onOpen(e)
			case ClosedEvent:
				next, reconnected := s.onClosed(e)
				if !reconnected {
					return
				}
				conn = next
			case InboundMessageEvent:
				if s.hooks.OnInbound != nil {
					s.hooks.OnInbound(s.workspaceID, e)
				}
			case ReceiptEvent:
				if s.hooks.OnReceipt != nil {
					s.hooks.OnReceipt(s.workspaceID, e)
				}
			}
		}
	}
}

func (s *Session) onPairing(e PairingEvent) {
	s.mu.Lock()
	s.status = model.ChannelStatusQRReady
	s.pairingCode = e.Code
	s.mu.Unlock()

	logger.Info("channel: pairing code issued", "workspace_id", s.workspaceID)
	s.persist(s.ctx)
}

func (s *Session) onOpen(e OpenEvent) {
	now := time.Now()

	s.mu.Lock()
	s.status = model.ChannelStatusConnected
	s.pairingCode = ""
	s.endpointID = e.EndpointID
	s.mu.Unlock()

	logger.Info("channel: connected", "workspace_id", s.workspaceID, "endpoint_id", e.EndpointID)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.sessions.Upsert(ctx, &model.ChannelSession{
		WorkspaceID:     s.workspaceID,
		Status:          model.ChannelStatusConnected,
		Credentials:     e.Credentials,
		EndpointID:      e.EndpointID,
		LastConnectedAt: &now,
	}); err != nil {
		logger.Error("channel: failed to persist session", "workspace_id", s.workspaceID, "error", err)
	}
	if err := s.workspaces.SetChannelState(ctx, s.workspaceID, true, e.EndpointID); err != nil {
		logger.Error("channel: failed to flag workspace connected", "workspace_id", s.workspaceID, "error", err)
	}
	prom.SetSessionStatus(s.workspaceID, string(model.ChannelStatusConnected))
}

// onClosed handles a drop. Returns the replacement connection when the
// session reconnected, or (nil, false) when it is done.
func (s *Session) onClosed(e ClosedEvent) (Conn, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if e.LoggedOut {
		logger.Info("channel: logged out, purging credentials", "workspace_id", s.workspaceID)

		s.mu.Lock()
		s.status = model.ChannelStatusDisconnected
		s.pairingCode = ""
		s.conn = nil
		s.mu.Unlock()

		if err := s.sessions.PurgeCredentials(ctx, s.workspaceID); err != nil {
			logger.Error("channel: failed to purge credentials", "workspace_id", s.workspaceID, "error", err)
		}
		if err := s.workspaces.SetChannelState(ctx, s.workspaceID, false, ""); err != nil {
			logger.Error("channel: failed to flag workspace disconnected", "workspace_id", s.workspaceID, "error", err)
		}
		prom.SetSessionStatus(s.workspaceID, string(model.ChannelStatusDisconnected))
		return nil, false
	}

	logger.Warn("channel: connection dropped, reconnecting",
		"workspace_id", s.workspaceID,
		"delay", s.reconnectDelay.String(),
		"error", e.Err,
	)

	s.mu.Lock()
	s.status = model.ChannelStatusConnecting
	s.conn = nil
	s.mu.Unlock()
	s.persist(ctx)

	if err := s.workspaces.SetChannelState(ctx, s.workspaceID, false, ""); err != nil {
		logger.Error("channel: failed to flag workspace disconnected", "workspace_id", s.workspaceID, "error", err)
	}

	select {
	case <-s.ctx.Done():
		return nil, false
	case <-time.After(s.reconnectDelay):
	}

	dialCtx, dialCancel := context.WithTimeout(s.ctx, 30*time.Second)
	defer dialCancel()

	conn, err := s.transport.Dial(dialCtx, s.workspaceID, s.storedCredentials(dialCtx))
	if err != nil {
		logger.Error("channel: reconnect failed", "workspace_id", s.workspaceID, "error", err)
		s.mu.Lock()
		s.status = model.ChannelStatusDisconnected
		s.mu.Unlock()
		s.persist(context.Background())
		return nil, false
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	return conn, true
}

// Send routes one message through the live connection.
func (s *Session) Send(ctx context.Context, in SendInput) (*SendResult, error) {
	s.mu.RLock()
	conn := s.conn
	connected := s.status == model.ChannelStatusConnected
	s.mu.RUnlock()

	if !connected || conn == nil {
		return nil, ErrNotConnected
	}
	return conn.Send(ctx, in)
}

// Status returns a snapshot of the in-memory session state.
func (s *Session) Status() *model.ChannelSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return &model.ChannelSession{
		WorkspaceID: s.workspaceID,
		Status:      s.status,
		PairingCode: s.pairingCode,
		EndpointID:  s.endpointID,
	}
}

// Disconnect logs the account out: the provider-side link is severed
// and stored credentials are purged, so the next Connect starts a
// fresh pairing flow.
func (s *Session) Disconnect(ctx context.Context) error {
	s.cancel()

	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.status = model.ChannelStatusDisconnected
	s.pairingCode = ""
	s.endpointID = ""
	s.mu.Unlock()

	if conn != nil {
		if err := conn.Logout(ctx); err != nil {
			logger.Error("channel: logout failed", "workspace_id", s.workspaceID, "error", err)
		}
		if err := conn.Close(); err != nil {
			logger.Error("channel: close failed", "workspace_id", s.workspaceID, "error", err)
		}
	}
	s.wg.Wait()

	if err := s.sessions.PurgeCredentials(ctx, s.workspaceID); err != nil {
		logger.Error("channel: failed to purge credentials", "workspace_id", s.workspaceID, "error", err)
	}
	s.persist(ctx)
	if err := s.workspaces.SetChannelState(ctx, s.workspaceID, false, ""); err != nil {
		return err
	}
	prom.SetSessionStatus(s.workspaceID, string(model.ChannelStatusDisconnected))
	return nil
}

// persist mirrors status and pairing code to the session row without
// touching the credential blob.
func (s *Session) persist(ctx context.Context) {
	s.mu.RLock()
	snapshot := &model.ChannelSession{
		WorkspaceID: s.workspaceID,
		Status:      s.status,
		PairingCode: s.pairingCode,
		EndpointID:  s.endpointID,
		Credentials: s.storedCredentials(ctx),
	}
	s.mu.RUnlock()

	if err := s.sessions.Upsert(ctx, snapshot); err != nil {
		logger.Error("channel: failed to persist session", "workspace_id", s.workspaceID, "error", err)
	}
	prom.SetSessionStatus(s.workspaceID, string(snapshot.Status))
}
