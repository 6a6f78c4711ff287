package services

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/wavecast/broadcast-gateway/internal/model"
	"github.com/wavecast/broadcast-gateway/internal/repository"
)

var ErrEmptyName = errors.New("workspace name cannot be empty")

type WorkspaceWriter interface {
	Create(ctx context.Context, w *model.Workspace) (*model.Workspace, error)
	Get(ctx context.Context, id string) (*model.Workspace, error)
}

type WorkspaceService struct {
	workspaces WorkspaceWriter
}

func NewWorkspaceService(workspaces WorkspaceWriter) *WorkspaceService {
	return &WorkspaceService{workspaces: workspaces}
}

func (s *WorkspaceService) Create(ctx context.Context, name string) (*model.Workspace, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyName
	}
	return s.workspaces.Create(ctx, &model.Workspace{
		ID:     uuid.NewString(),
		Name:   name,
		Active: true,
	})
}

func (s *WorkspaceService) Get(ctx context.Context, id string) (*model.Workspace, error) {
	w, err := s.workspaces.Get(ctx, id)
	if err == repository.ErrNotFound {
		return nil, ErrNotFound
	}
	return w, err
}
