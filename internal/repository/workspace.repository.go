package repository

import (
	"context"
	"errors"

	"github.com/wavecast/broadcast-gateway/internal/model"
	"github.com/wavecast/broadcast-gateway/pkg/pg"
	"gorm.io/gorm"
)

type WorkspaceRepository struct {
	*pg.DB
}

func NewWorkspaceRepository(db *pg.DB) *WorkspaceRepository {
	return &WorkspaceRepository{
		db,
	}
}

func (r *WorkspaceRepository) Create(ctx context.Context, w *model.Workspace) (*model.Workspace, error) {
	entity := toWorkspaceEntity(w)

	if err := r.Write(ctx).WithContext(ctx).Create(entity).Error; err != nil {
		return nil, err
	}

	return toWorkspaceModel(entity), nil
}

func (r *WorkspaceRepository) Get(ctx context.Context, id string) (*model.Workspace, error) {
	var entity WorkspaceEntity
	err := r.Read(ctx).WithContext(ctx).First(&entity, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return toWorkspaceModel(&entity), nil
}

// SetChannelState records whether the workspace has a live channel and
// which endpoint identity it resolved to. Written only by the channel
// session.
func (r *WorkspaceRepository) SetChannelState(ctx context.Context, id string, connected bool, endpoint string) error {
	return r.Write(ctx).WithContext(ctx).Model(&WorkspaceEntity{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"channel_connected": connected,
			"channel_endpoint":  endpoint,
		}).Error
}
