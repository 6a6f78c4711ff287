package repository

import (
	"context"
	"errors"
	"time"

	"github.com/wavecast/broadcast-gateway/internal/model"
	"github.com/wavecast/broadcast-gateway/pkg/pg"
	"gorm.io/gorm"
)

type ContactRepository struct {
	*pg.DB
}

func NewContactRepository(db *pg.DB) *ContactRepository {
	return &ContactRepository{
		db,
	}
}

func (r *ContactRepository) Create(ctx context.Context, c *model.Contact) (*model.Contact, error) {
	entity := toContactEntity(c)

	if err := r.Write(ctx).WithContext(ctx).Create(entity).Error; err != nil {
		return nil, err
	}

	return toContactModel(entity), nil
}

func (r *ContactRepository) GetByPhone(ctx context.Context, workspaceID, phone string) (*model.Contact, error) {
	var entity ContactEntity
	err := r.Read(ctx).WithContext(ctx).
		Where("workspace_id = ? AND phone = ?", workspaceID, phone).
		First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return toContactModel(&entity), nil
}

func (r *ContactRepository) TouchLastMessage(ctx context.Context, id string, at time.Time) error {
	return r.Write(ctx).WithContext(ctx).Model(&ContactEntity{}).
		Where("id = ?", id).
		Update("last_message_at", at).Error
}

func (r *ContactRepository) ListByWorkspace(ctx context.Context, workspaceID string, tag string, limit, offset int) ([]*model.Contact, int64, error) {
	q := r.Read(ctx).WithContext(ctx).Model(&ContactEntity{}).
		Where("workspace_id = ?", workspaceID)
	if tag != "" {
		q = q.Where("tag = ?", tag)
	}

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

	var entities []*ContactEntity
	if err := q.Order("created_at ASC").Limit(limit).Offset(offset).Find(&entities).Error; err != nil {
		return nil, 0, err
	}

	return toContactModels(entities), total, nil
}
