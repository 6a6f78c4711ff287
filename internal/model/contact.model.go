package model

import (
	"errors"
	"time"
)

type Contact struct {
	ID            string     `json:"id"`
	WorkspaceID   string     `json:"workspace_id"`
	Name          string     `json:"name"`
	Phone         string     `json:"phone"`
	Tag           string     `json:"tag,omitempty"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

type ContactCreateRequest struct {
	WorkspaceID string
	Name        string
	Phone       string
	Tag         string
}

func (p ContactCreateRequest) Validate() error {
	if p.WorkspaceID == "" {
		return errors.New("workspace_id is required")
	}
	if p.Phone == "" {
		return errors.New("phone is required")
	}
	return nil
}
