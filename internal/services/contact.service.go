package services

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/wavecast/broadcast-gateway/internal/model"
	"github.com/wavecast/broadcast-gateway/internal/repository"
)

var ErrDuplicatePhone = errors.New("contact with this phone already exists")

type ContactWriter interface {
	Create(ctx context.Context, c *model.Contact) (*model.Contact, error)
	GetByPhone(ctx context.Context, workspaceID, phone string) (*model.Contact, error)
	ListByWorkspace(ctx context.Context, workspaceID string, tag string, limit, offset int) ([]*model.Contact, int64, error)
}

type ContactService struct {
	contacts   ContactWriter
	workspaces WorkspaceRepository
}

func NewContactService(contacts ContactWriter, workspaces WorkspaceRepository) *ContactService {
	return &ContactService{
		contacts:   contacts,
		workspaces: workspaces,
	}
}

func (s *ContactService) Create(ctx context.Context, p model.ContactCreateRequest) (*model.Contact, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	if _, err := s.workspaces.Get(ctx, p.WorkspaceID); err != nil {
		if err == repository.ErrNotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}

	p.Phone = strings.TrimSpace(p.Phone)
	if _, err := s.contacts.GetByPhone(ctx, p.WorkspaceID, p.Phone); err == nil {
		return nil, ErrDuplicatePhone
	} else if err != repository.ErrNotFound {
		return nil, err
	}

	return s.contacts.Create(ctx, &model.Contact{
		ID:          uuid.NewString(),
		WorkspaceID: p.WorkspaceID,
		Name:        strings.TrimSpace(p.Name),
		Phone:       p.Phone,
		Tag:         strings.TrimSpace(p.Tag),
	})
}

func (s *ContactService) List(ctx context.Context, workspaceID, tag string, limit, offset int) ([]*model.Contact, int64, error) {
	return s.contacts.ListByWorkspace(ctx, workspaceID, tag, limit, offset)
}
