package repository

import (
	"time"

	"github.com/wavecast/broadcast-gateway/internal/model"
)

type ContactEntity struct {
	ID            string     `db:"id"              gorm:"primaryKey;column:id;type:uuid"`
	WorkspaceID   string     `db:"workspace_id"    gorm:"column:workspace_id;not null;uniqueIndex:idx_workspace_phone"`
	Name          string     `db:"name"            gorm:"column:name"`
	Phone         string     `db:"phone"           gorm:"column:phone;not null;uniqueIndex:idx_workspace_phone"`
	Tag           string     `db:"tag"             gorm:"column:tag"`
	LastMessageAt *time.Time `db:"last_message_at" gorm:"column:last_message_at"`
	CreatedAt     time.Time  `db:"created_at"      gorm:"column:created_at;autoCreateTime"`
}

func (ContactEntity) TableName() string {
	return "contacts"
}

func toContactEntity(c *model.Contact) *ContactEntity {
	if c == nil {
		return nil
	}
	return &ContactEntity{
		ID:            c.ID,
		WorkspaceID:   c.WorkspaceID,
		Name:          c.Name,
		Phone:         c.Phone,
		Tag:           c.Tag,
		LastMessageAt: c.LastMessageAt,
		CreatedAt:     c.CreatedAt,
	}
}

func toContactModel(e *ContactEntity) *model.Contact {
	if e == nil {
		return nil
	}
	return &model.Contact{
		ID:            e.ID,
		WorkspaceID:   e.WorkspaceID,
		Name:          e.Name,
		Phone:         e.Phone,
		Tag:           e.Tag,
		LastMessageAt: e.LastMessageAt,
		CreatedAt:     e.CreatedAt,
	}
}

func toContactModels(entities []*ContactEntity) []*model.Contact {
	if entities == nil {
		return nil
	}
	models := make([]*model.Contact, len(entities))
	for i, e := range entities {
		models[i] = toContactModel(e)
	}
	return models
}
