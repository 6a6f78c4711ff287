package repository

import (
	"context"
	"errors"
	"time"

	"github.com/wavecast/broadcast-gateway/internal/model"
	"github.com/wavecast/broadcast-gateway/pkg/pg"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type MessageRepository struct {
	*pg.DB
}

func NewMessageRepository(db *pg.DB) *MessageRepository {
	return &MessageRepository{
		db,
	}
}

func (r *MessageRepository) Create(ctx context.Context, msg *model.Message) (*model.Message, error) {
	entity := toMessageEntity(msg)

	if err := r.Write(ctx).WithContext(ctx).Create(entity).Error; err != nil {
		return nil, err
	}

	return toMessageModel(entity), nil
}

// CreateBatch inserts the recipient rows of a launch. Conflicts on the
// (broadcast, contact) unique index are skipped so relaunching after a
// failed queue admission reuses the rows already committed.
func (r *MessageRepository) CreateBatch(ctx context.Context, msgs []*model.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	entities := make([]*MessageEntity, len(msgs))
	for i, m := range msgs {
		entities[i] = toMessageEntity(m)
	}
	return r.Write(ctx).WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(entities).Error
}

// GetOutbound fetches the one outbound message of a (broadcast,
// recipient) pair.
func (r *MessageRepository) GetOutbound(ctx context.Context, broadcastID, contactID string) (*model.Message, error) {
	var entity MessageEntity
	err := r.Read(ctx).WithContext(ctx).
		Where("broadcast_id = ? AND contact_id = ? AND direction = ?", broadcastID, contactID, string(model.DirectionOutbound)).
		First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return toMessageModel(&entity), nil
}

// MarkSent performs the guarded pending -> sent transition. The status
// predicate makes replays from the at-least-once queue no-ops: the
// update reports zero rows when the message already left pending.
func (r *MessageRepository) MarkSent(ctx context.Context, broadcastID, contactID, providerMessageID string, sentAt time.Time) (bool, error) {
	res := r.Write(ctx).WithContext(ctx).Model(&MessageEntity{}).
		Where("broadcast_id = ? AND contact_id = ? AND direction = ? AND status = ?",
			broadcastID, contactID, string(model.DirectionOutbound), string(model.MessageStatusPending)).
		Updates(map[string]interface{}{
			"status":              string(model.MessageStatusSent),
			"provider_message_id": providerMessageID,
			"sent_at":             sentAt,
			"error_detail":        "",
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// MarkFailed performs the guarded pending -> failed transition.
func (r *MessageRepository) MarkFailed(ctx context.Context, broadcastID, contactID, reason string) (bool, error) {
	res := r.Write(ctx).WithContext(ctx).Model(&MessageEntity{}).
		Where("broadcast_id = ? AND contact_id = ? AND direction = ? AND status = ?",
			broadcastID, contactID, string(model.DirectionOutbound), string(model.MessageStatusPending)).
		Updates(map[string]interface{}{
			"status":       string(model.MessageStatusFailed),
			"error_detail": reason,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// MarkDelivered performs the guarded sent -> delivered transition,
// keyed by the provider's message id from the delivery receipt.
func (r *MessageRepository) MarkDelivered(ctx context.Context, providerMessageID string) (*model.Message, bool, error) {
	var entity MessageEntity
	err := r.Read(ctx).WithContext(ctx).
		Where("provider_message_id = ? AND direction = ?", providerMessageID, string(model.DirectionOutbound)).
		First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, ErrNotFound
		}
		return nil, false, err
	}

	res := r.Write(ctx).WithContext(ctx).Model(&MessageEntity{}).
		Where("id = ? AND status = ?", entity.ID, string(model.MessageStatusSent)).
		Update("status", string(model.MessageStatusDelivered))
	if res.Error != nil {
		return nil, false, res.Error
	}
	return toMessageModel(&entity), res.RowsAffected > 0, nil
}

func (r *MessageRepository) List(ctx context.Context, f model.MessageFilter) ([]*model.Message, int64, error) {
	q := r.Read(ctx).WithContext(ctx).Model(&MessageEntity{})

	if f.WorkspaceID != nil {
		q = q.Where("workspace_id = ?", *f.WorkspaceID)
	}
	if f.BroadcastID != nil {
		q = q.Where("broadcast_id = ?", *f.BroadcastID)
	}
	if f.ContactID != nil {
		q = q.Where("contact_id = ?", *f.ContactID)
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			statuses[i] = string(s)
		}
		q = q.Where("status IN ?", statuses)
	}
	if f.Direction != nil {
		q = q.Where("direction = ?", string(*f.Direction))
	}
	if f.From != nil {
		q = q.Where("created_at >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("created_at < ?", *f.To)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	order := "created_at"
	if f.Desc {
		order += " DESC"
	} else {
		order += " ASC"
	}

	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	var entities []*MessageEntity
	if err := q.Order(order).Limit(limit).Offset(offset).Find(&entities).Error; err != nil {
		return nil, 0, err
	}

	return toMessageModels(entities), total, nil
}
