package repository

import (
	"time"

	"github.com/wavecast/broadcast-gateway/internal/model"
)

type BroadcastEntity struct {
	ID              string     `db:"id"               gorm:"primaryKey;column:id;type:uuid"`
	WorkspaceID     string     `db:"workspace_id"     gorm:"column:workspace_id;not null;index"`
	Content         string     `db:"content"          gorm:"column:content;not null"`
	MediaURL        string     `db:"media_url"        gorm:"column:media_url"`
	RecipientFilter string     `db:"recipient_filter" gorm:"column:recipient_filter"`
	Status          string     `db:"status"           gorm:"column:status;not null;default:pending;index"`
	TotalContacts   int        `db:"total_contacts"   gorm:"column:total_contacts;not null;default:0"`
	SentCount       int        `db:"sent_count"       gorm:"column:sent_count;not null;default:0"`
	DeliveredCount  int        `db:"delivered_count"  gorm:"column:delivered_count;not null;default:0"`
	FailedCount     int        `db:"failed_count"     gorm:"column:failed_count;not null;default:0"`
	CreatedAt       time.Time  `db:"created_at"       gorm:"column:created_at;autoCreateTime"`
	CompletedAt     *time.Time `db:"completed_at"     gorm:"column:completed_at"`
}

func (BroadcastEntity) TableName() string {
	return "broadcasts"
}

func toBroadcastEntity(b *model.Broadcast) *BroadcastEntity {
	if b == nil {
		return nil
	}
	return &BroadcastEntity{
		ID:              b.ID,
		WorkspaceID:     b.WorkspaceID,
		Content:         b.Content,
		MediaURL:        b.MediaURL,
		RecipientFilter: b.RecipientFilter,
		Status:          string(b.Status),
		TotalContacts:   b.TotalContacts,
		SentCount:       b.SentCount,
		DeliveredCount:  b.DeliveredCount,
		FailedCount:     b.FailedCount,
		CreatedAt:       b.CreatedAt,
		CompletedAt:     b.CompletedAt,
	}
}

func toBroadcastModel(e *BroadcastEntity) *model.Broadcast {
	if e == nil {
		return nil
	}
	return &model.Broadcast{
		ID:              e.ID,
		WorkspaceID:     e.WorkspaceID,
		Content:         e.Content,
		MediaURL:        e.MediaURL,
		RecipientFilter: e.RecipientFilter,
		Status:          model.BroadcastStatus(e.Status),
		TotalContacts:   e.TotalContacts,
		SentCount:       e.SentCount,
		DeliveredCount:  e.DeliveredCount,
		FailedCount:     e.FailedCount,
		CreatedAt:       e.CreatedAt,
		CompletedAt:     e.CompletedAt,
	}
}

func toBroadcastModels(entities []*BroadcastEntity) []*model.Broadcast {
	if entities == nil {
		return nil
	}
	models := make([]*model.Broadcast, len(entities))
	for i, e := range entities {
		models[i] = toBroadcastModel(e)
	}
	return models
}
