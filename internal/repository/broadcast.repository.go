package repository

import (
	"context"
	"errors"
	"time"

	"github.com/wavecast/broadcast-gateway/internal/model"
	"github.com/wavecast/broadcast-gateway/pkg/pg"
	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("record not found")
)

type BroadcastRepository struct {
	*pg.DB
}

func NewBroadcastRepository(db *pg.DB) *BroadcastRepository {
	return &BroadcastRepository{
		db,
	}
}

func (r *BroadcastRepository) Create(ctx context.Context, b *model.Broadcast) (*model.Broadcast, error) {
	entity := toBroadcastEntity(b)

	if err := r.Write(ctx).WithContext(ctx).Create(entity).Error; err != nil {
		return nil, err
	}

	return toBroadcastModel(entity), nil
}

func (r *BroadcastRepository) Get(ctx context.Context, id string) (*model.Broadcast, error) {
	var entity BroadcastEntity
	err := r.Read(ctx).WithContext(ctx).First(&entity, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return toBroadcastModel(&entity), nil
}

// MarkProcessing flips a pending broadcast to processing. Already
// processing is fine (idempotent relaunch); already terminal is not.
func (r *BroadcastRepository) MarkProcessing(ctx context.Context, id string) error {
	res := r.Write(ctx).WithContext(ctx).Model(&BroadcastEntity{}).
		Where("id = ? AND status IN ?", id, []string{
			string(model.BroadcastStatusPending),
			string(model.BroadcastStatusProcessing),
		}).
		Update("status", string(model.BroadcastStatusProcessing))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetTotalContacts pins the recipient count frozen at launch.
func (r *BroadcastRepository) SetTotalContacts(ctx context.Context, id string, total int) error {
	return r.Write(ctx).WithContext(ctx).Model(&BroadcastEntity{}).
		Where("id = ?", id).
		Update("total_contacts", total).Error
}

func (r *BroadcastRepository) IncrementSent(ctx context.Context, id string) error {
	return r.Write(ctx).WithContext(ctx).Model(&BroadcastEntity{}).
		Where("id = ?", id).
		Update("sent_count", gorm.Expr("sent_count + 1")).Error
}

func (r *BroadcastRepository) IncrementDelivered(ctx context.Context, id string) error {
	return r.Write(ctx).WithContext(ctx).Model(&BroadcastEntity{}).
		Where("id = ?", id).
		Update("delivered_count", gorm.Expr("delivered_count + 1")).Error
}

func (r *BroadcastRepository) IncrementFailed(ctx context.Context, id string) error {
	return r.Write(ctx).WithContext(ctx).Model(&BroadcastEntity{}).
		Where("id = ?", id).
		Update("failed_count", gorm.Expr("failed_count + 1")).Error
}

// CompleteIfDone transitions the broadcast to completed in one guarded
// statement, exactly when every recipient has a terminal outcome.
// Returns true when this call performed the transition.
func (r *BroadcastRepository) CompleteIfDone(ctx context.Context, id string, now time.Time) (bool, error) {
	res := r.Write(ctx).WithContext(ctx).Model(&BroadcastEntity{}).
		Where("id = ? AND status IN ? AND sent_count + failed_count >= total_contacts", id, []string{
			string(model.BroadcastStatusPending),
			string(model.BroadcastStatusProcessing),
		}).
		Updates(map[string]interface{}{
			"status":       string(model.BroadcastStatusCompleted),
			"completed_at": now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *BroadcastRepository) ListByWorkspace(ctx context.Context, workspaceID string, limit, offset int) ([]*model.Broadcast, int64, error) {
	q := r.Read(ctx).WithContext(ctx).Model(&BroadcastEntity{}).
		Where("workspace_id = ?", workspaceID)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var entities []*BroadcastEntity
	if err := q.Order("created_at DESC").Limit(limit).Offset(offset).Find(&entities).Error; err != nil {
		return nil, 0, err
	}

	return toBroadcastModels(entities), total, nil
}
