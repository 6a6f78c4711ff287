package repository

import (
	"time"

	"github.com/wavecast/broadcast-gateway/internal/model"
)

type WorkspaceEntity struct {
	ID               string    `db:"id"                gorm:"primaryKey;column:id;type:uuid"`
	Name             string    `db:"name"              gorm:"column:name;not null"`
	Active           bool      `db:"active"            gorm:"column:active;not null;default:true"`
	ChannelConnected bool      `db:"channel_connected" gorm:"column:channel_connected;not null;default:false"`
	ChannelEndpoint  string    `db:"channel_endpoint"  gorm:"column:channel_endpoint"`
	CreatedAt        time.Time `db:"created_at"        gorm:"column:created_at;autoCreateTime"`
}

func (WorkspaceEntity) TableName() string {
	return "workspaces"
}

func toWorkspaceEntity(w *model.Workspace) *WorkspaceEntity {
	if w == nil {
		return nil
	}
	return &WorkspaceEntity{
		ID:               w.ID,
		Name:             w.Name,
		Active:           w.Active,
		ChannelConnected: w.ChannelConnected,
		ChannelEndpoint:  w.ChannelEndpoint,
		CreatedAt:        w.CreatedAt,
	}
}

func toWorkspaceModel(e *WorkspaceEntity) *model.Workspace {
	if e == nil {
		return nil
	}
	return &model.Workspace{
		ID:               e.ID,
		Name:             e.Name,
		Active:           e.Active,
		ChannelConnected: e.ChannelConnected,
		ChannelEndpoint:  e.ChannelEndpoint,
		CreatedAt:        e.CreatedAt,
	}
}
