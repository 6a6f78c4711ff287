package repository

import (
	"time"

	"github.com/wavecast/broadcast-gateway/internal/model"
)

type MessageEntity struct {
	ID                string     `db:"id"                  gorm:"primaryKey;column:id;type:uuid"`
	BroadcastID       *string    `db:"broadcast_id"        gorm:"column:broadcast_id;uniqueIndex:idx_broadcast_contact"`
	WorkspaceID       string     `db:"workspace_id"        gorm:"column:workspace_id;not null;index"`
	ContactID         string     `db:"contact_id"          gorm:"column:contact_id;not null;uniqueIndex:idx_broadcast_contact"`
	Direction         string     `db:"direction"           gorm:"column:direction;not null;default:outbound"`
	Content           string     `db:"content"             gorm:"column:content;not null"`
	MediaURL          string     `db:"media_url"           gorm:"column:media_url"`
	Status            string     `db:"status"              gorm:"column:status;not null;default:pending;index"`
	ErrorDetail       string     `db:"error_detail"        gorm:"column:error_detail"`
	ProviderMessageID string     `db:"provider_message_id" gorm:"column:provider_message_id;index"`
	SentAt            *time.Time `db:"sent_at"             gorm:"column:sent_at"`
	CreatedAt         time.Time  `db:"created_at"          gorm:"column:created_at;autoCreateTime"`
}

func (MessageEntity) TableName() string {
	return "messages"
}

func toMessageEntity(m *model.Message) *MessageEntity {
	if m == nil {
		return nil
	}
	return &MessageEntity{
		ID:                m.ID,
		BroadcastID:       m.BroadcastID,
		WorkspaceID:       m.WorkspaceID,
		ContactID:         m.ContactID,
		Direction:         string(m.Direction),
		Content:           m.Content,
		MediaURL:          m.MediaURL,
		Status:            string(m.Status),
		ErrorDetail:       m.ErrorDetail,
		ProviderMessageID: m.ProviderMessageID,
		SentAt:            m.SentAt,
		CreatedAt:         m.CreatedAt,
	}
}

func toMessageModel(e *MessageEntity) *model.Message {
	if e == nil {
		return nil
	}
	return &model.Message{
		ID:                e.ID,
		BroadcastID:       e.BroadcastID,
		WorkspaceID:       e.WorkspaceID,
		ContactID:         e.ContactID,
		Direction:         model.MessageDirection(e.Direction),
		Content:           e.Content,
		MediaURL:          e.MediaURL,
		Status:            model.MessageStatus(e.Status),
		ErrorDetail:       e.ErrorDetail,
		ProviderMessageID: e.ProviderMessageID,
		SentAt:            e.SentAt,
		CreatedAt:         e.CreatedAt,
	}
}

func toMessageModels(entities []*MessageEntity) []*model.Message {
	if entities == nil {
		return nil
	}
	models := make([]*model.Message, len(entities))
	for i, e := range entities {
		models[i] = toMessageModel(e)
	}
	return models
}
