package services

import (
	"context"

	"github.com/wavecast/broadcast-gateway/internal/channel"
	"github.com/wavecast/broadcast-gateway/internal/model"
	"github.com/wavecast/broadcast-gateway/internal/repository"
)

// ChannelService fronts the session registry for the API: it validates
// the workspace before any registry call so a typo'd workspace id never
// spawns a session.
type ChannelService struct {
	workspaces WorkspaceRepository
	registry   *channel.Registry
}

func NewChannelService(workspaces WorkspaceRepository, registry *channel.Registry) *ChannelService {
	return &ChannelService{
		workspaces: workspaces,
		registry:   registry,
	}
}

func (s *ChannelService) Connect(ctx context.Context, workspaceID string) (*model.ChannelSession, error) {
	if _, err := s.workspaces.Get(ctx, workspaceID); err != nil {
		if err == repository.ErrNotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return s.registry.Connect(ctx, workspaceID)
}

func (s *ChannelService) Status(ctx context.Context, workspaceID string) (*model.ChannelSession, error) {
	if _, err := s.workspaces.Get(ctx, workspaceID); err != nil {
		if err == repository.ErrNotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return s.registry.Status(ctx, workspaceID)
}

func (s *ChannelService) Disconnect(ctx context.Context, workspaceID string) error {
	if _, err := s.workspaces.Get(ctx, workspaceID); err != nil {
		if err == repository.ErrNotFound {
			return ErrNotFound
		}
		return err
	}
	return s.registry.Disconnect(ctx, workspaceID)
}
