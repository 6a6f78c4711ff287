package channel

import (
	"context"
	"sync"
	"time"

	"github.com/wavecast/broadcast-gateway/internal/model"
	"github.com/wavecast/broadcast-gateway/internal/repository"
)

// Registry holds at most one session per workspace. Connect is
// idempotent while a session is live; a parked session is replaced on
// the next Connect so its cancelled context never leaks into a fresh
// connection attempt.
type Registry struct {
	transport      Transport
	sessions       *repository.ChannelSessionRepository
	workspaces     *repository.WorkspaceRepository
	hooks          Hooks
	reconnectDelay time.Duration

	mu   sync.Mutex
	live map[string]*Session
}

func NewRegistry(
	transport Transport,
	sessions *repository.ChannelSessionRepository,
	workspaces *repository.WorkspaceRepository,
	hooks Hooks,
	reconnectDelay time.Duration,
) *Registry {
	return &Registry{
		transport:      transport,
		sessions:       sessions,
		workspaces:     workspaces,
		hooks:          hooks,
		reconnectDelay: reconnectDelay,
		live:           make(map[string]*Session),
	}
}

// Connect starts or reuses the workspace's session and reports its
// status. Concurrent calls for the same workspace share one session.
func (r *Registry) Connect(ctx context.Context, workspaceID string) (*model.ChannelSession, error) {
	r.mu.Lock()
	session, ok := r.live[workspaceID]
	if ok && session.Status().Status.Live() {
		r.mu.Unlock()
		return session.Status(), nil
	}

	session = NewSession(workspaceID, r.transport, r.sessions, r.workspaces, r.hooks, r.reconnectDelay)
	session.claim()
	r.live[workspaceID] = session
	r.mu.Unlock()

	if err := session.dial(ctx); err != nil {
		r.mu.Lock()
		if r.live[workspaceID] == session {
			delete(r.live, workspaceID)
		}
		r.mu.Unlock()
		return nil, err
	}
	return session.Status(), nil
}

// Send routes one message through the workspace's live session.
func (r *Registry) Send(ctx context.Context, workspaceID string, in SendInput) (*SendResult, error) {
	r.mu.Lock()
	session, ok := r.live[workspaceID]
	r.mu.Unlock()

	if !ok {
		return nil, ErrNotConnected
	}
	return session.Send(ctx, in)
}

// Status reports the in-memory session when one exists, falling back to
// the persisted row so the API can answer across restarts.
func (r *Registry) Status(ctx context.Context, workspaceID string) (*model.ChannelSession, error) {
	r.mu.Lock()
	session, ok := r.live[workspaceID]
	r.mu.Unlock()

	if ok {
		return session.Status(), nil
	}

	stored, err := r.sessions.Get(ctx, workspaceID)
	if err != nil {
		if err == repository.ErrNotFound {
			return &model.ChannelSession{
				WorkspaceID: workspaceID,
				Status:      model.ChannelStatusDisconnected,
			}, nil
		}
		return nil, err
	}

	// A stored live status is stale after a restart: nothing is
	// actually connected until Connect runs again.
	if stored.Status.Live() {
		stored.Status = model.ChannelStatusDisconnected
		stored.PairingCode = ""
	}
	return stored, nil
}

// Disconnect logs out and drops the workspace's session.
func (r *Registry) Disconnect(ctx context.Context, workspaceID string) error {
	r.mu.Lock()
	session, ok := r.live[workspaceID]
	delete(r.live, workspaceID)
	r.mu.Unlock()

	if !ok {
		return nil
	}
	return session.Disconnect(ctx)
}

// Shutdown disconnects every live session.
func (r *Registry) Shutdown(ctx context.Context) {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.live))
	for _, s := range r.live {
		sessions = append(sessions, s)
	}
	r.live = make(map[string]*Session)
	r.mu.Unlock()

	for _, s := range sessions {
		_ = s.Disconnect(ctx)
	}
}
