package repository

import (
	"context"
	"errors"

	"github.com/wavecast/broadcast-gateway/internal/model"
	"github.com/wavecast/broadcast-gateway/pkg/pg"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ChannelSessionRepository persists the per-workspace session mirror.
// Only the in-memory session writes here; the API layer reads for UI
// polling.
type ChannelSessionRepository struct {
	*pg.DB
}

func NewChannelSessionRepository(db *pg.DB) *ChannelSessionRepository {
	return &ChannelSessionRepository{
		db,
	}
}

func (r *ChannelSessionRepository) Get(ctx context.Context, workspaceID string) (*model.ChannelSession, error) {
	var entity ChannelSessionEntity
	err := r.Read(ctx).WithContext(ctx).First(&entity, "workspace_id = ?", workspaceID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return toChannelSessionModel(&entity), nil
}

// Upsert writes the full session record, inserting on first connect.
func (r *ChannelSessionRepository) Upsert(ctx context.Context, s *model.ChannelSession) error {
	entity := toChannelSessionEntity(s)
	return r.Write(ctx).WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "workspace_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"status", "pairing_code", "credentials", "endpoint_id", "last_connected_at", "updated_at",
			}),
		}).
		Create(entity).Error
}

// PurgeCredentials wipes credential material and the pairing code on
// logout, leaving the row behind with a disconnected status.
func (r *ChannelSessionRepository) PurgeCredentials(ctx context.Context, workspaceID string) error {
	return r.Write(ctx).WithContext(ctx).Model(&ChannelSessionEntity{}).
		Where("workspace_id = ?", workspaceID).
		Updates(map[string]interface{}{
			"status":       string(model.ChannelStatusDisconnected),
			"pairing_code": "",
			"credentials":  nil,
		}).Error
}
