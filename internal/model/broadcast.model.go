package model

import (
	"errors"
	"fmt"
	"time"
)

// BroadcastStatus is the lifecycle state of a broadcast campaign.
type BroadcastStatus string

const (
	BroadcastStatusPending    BroadcastStatus = "pending"
	BroadcastStatusProcessing BroadcastStatus = "processing"
	BroadcastStatusCompleted  BroadcastStatus = "completed"
	BroadcastStatusFailed     BroadcastStatus = "failed"
)

var ErrIllegalTransition = errors.New("illegal status transition")

// broadcastTransitions holds the only legal forward moves. Terminal
// statuses have no outgoing edges.
var broadcastTransitions = map[BroadcastStatus][]BroadcastStatus{
	BroadcastStatusPending:    {BroadcastStatusProcessing, BroadcastStatusCompleted, BroadcastStatusFailed},
	BroadcastStatusProcessing: {BroadcastStatusCompleted, BroadcastStatusFailed},
}

func (s BroadcastStatus) CanTransition(to BroadcastStatus) bool {
	for _, next := range broadcastTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

func (s BroadcastStatus) Terminal() bool {
	return s == BroadcastStatusCompleted || s == BroadcastStatusFailed
}

type Broadcast struct {
	ID              string          `json:"id"`
	WorkspaceID     string          `json:"workspace_id"`
	Content         string          `json:"content"`
	MediaURL        string          `json:"media_url,omitempty"`
	RecipientFilter string          `json:"recipient_filter,omitempty"`
	Status          BroadcastStatus `json:"status"`
	TotalContacts   int             `json:"total_contacts"`
	SentCount       int             `json:"sent_count"`
	DeliveredCount  int             `json:"delivered_count"`
	FailedCount     int             `json:"failed_count"`
	CreatedAt       time.Time       `json:"created_at"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
}

// Transition mutates Status after validating the move.
func (b *Broadcast) Transition(to BroadcastStatus) error {
	if !b.Status.CanTransition(to) {
		return fmt.Errorf("%w: broadcast %s -> %s", ErrIllegalTransition, b.Status, to)
	}
	b.Status = to
	return nil
}

// Accounted reports whether every recipient has reached a terminal
// message status. This is the sole completion condition: the queue's
// job count can diverge from the recipient count under retries, so the
// counters are the source of truth.
func (b *Broadcast) Accounted() bool {
	return b.SentCount+b.FailedCount >= b.TotalContacts
}

// Progress projects the counters into the API view.
func (b *Broadcast) Progress() *BroadcastProgress {
	return &BroadcastProgress{
		BroadcastID: b.ID,
		Status:      b.Status,
		Total:       b.TotalContacts,
		Sent:        b.SentCount,
		Delivered:   b.DeliveredCount,
		Failed:      b.FailedCount,
	}
}

// BroadcastProgress is the aggregate view exposed to the API layer.
type BroadcastProgress struct {
	BroadcastID string          `json:"broadcast_id"`
	Status      BroadcastStatus `json:"status"`
	Total       int             `json:"total"`
	Sent        int             `json:"sent"`
	Delivered   int             `json:"delivered"`
	Failed      int             `json:"failed"`
}

// BroadcastCreateRequest is the input for creating a campaign.
type BroadcastCreateRequest struct {
	WorkspaceID     string
	Content         string
	MediaURL        string
	RecipientFilter string
}

func (p BroadcastCreateRequest) Validate() error {
	if p.WorkspaceID == "" {
		return errors.New("workspace_id is required")
	}
	if p.Content == "" {
		return errors.New("content is required")
	}
	return nil
}
