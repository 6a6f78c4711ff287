package repository

import (
	"time"

	"github.com/wavecast/broadcast-gateway/internal/model"
)

type ChannelSessionEntity struct {
	WorkspaceID     string     `db:"workspace_id"      gorm:"primaryKey;column:workspace_id"`
	Status          string     `db:"status"            gorm:"column:status;not null;default:disconnected"`
	PairingCode     string     `db:"pairing_code"      gorm:"column:pairing_code"`
	Credentials     []byte     `db:"credentials"       gorm:"column:credentials"`
	EndpointID      string     `db:"endpoint_id"       gorm:"column:endpoint_id"`
	LastConnectedAt *time.Time `db:"last_connected_at" gorm:"column:last_connected_at"`
	UpdatedAt       time.Time  `db:"updated_at"        gorm:"column:updated_at;autoUpdateTime"`
}

func (ChannelSessionEntity) TableName() string {
	return "channel_sessions"
}

func toChannelSessionEntity(s *model.ChannelSession) *ChannelSessionEntity {
	if s == nil {
		return nil
	}
	return &ChannelSessionEntity{
		WorkspaceID:     s.WorkspaceID,
		Status:          string(s.Status),
		PairingCode:     s.PairingCode,
		Credentials:     s.Credentials,
		EndpointID:      s.EndpointID,
		LastConnectedAt: s.LastConnectedAt,
		UpdatedAt:       s.UpdatedAt,
	}
}

func toChannelSessionModel(e *ChannelSessionEntity) *model.ChannelSession {
	if e == nil {
		return nil
	}
	return &model.ChannelSession{
		WorkspaceID:     e.WorkspaceID,
		Status:          model.ChannelStatus(e.Status),
		PairingCode:     e.PairingCode,
		Credentials:     e.Credentials,
		EndpointID:      e.EndpointID,
		LastConnectedAt: e.LastConnectedAt,
		UpdatedAt:       e.UpdatedAt,
	}
}
