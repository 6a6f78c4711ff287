package services

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/wavecast/broadcast-gateway/internal/model"
	"github.com/wavecast/broadcast-gateway/internal/queue"
	"github.com/wavecast/broadcast-gateway/internal/repository"
	"github.com/wavecast/broadcast-gateway/pkg/logger"
)

var (
	ErrEmptyContent      = errors.New("broadcast content cannot be empty")
	ErrContentTooLong    = errors.New("broadcast content exceeds maximum length")
	ErrNoRecipients      = errors.New("no contacts match the recipient filter")
	ErrBroadcastFinished = errors.New("broadcast already finished")
	ErrNotFound          = errors.New("error notfound")
)

const maxContentLen = 4096
const recipientPageSize = 500

type BroadcastRepository interface {
	Create(ctx context.Context, b *model.Broadcast) (*model.Broadcast, error)
	Get(ctx context.Context, id string) (*model.Broadcast, error)
	MarkProcessing(ctx context.Context, id string) error
	SetTotalContacts(ctx context.Context, id string, total int) error
	ListByWorkspace(ctx context.Context, workspaceID string, limit, offset int) ([]*model.Broadcast, int64, error)
}

type ContactRepository interface {
	ListByWorkspace(ctx context.Context, workspaceID string, tag string, limit, offset int) ([]*model.Contact, int64, error)
}

type MessageRepository interface {
	CreateBatch(ctx context.Context, msgs []*model.Message) error
}

type WorkspaceRepository interface {
	Get(ctx context.Context, id string) (*model.Workspace, error)
}

type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// BroadcastService owns the campaign lifecycle: a Create draft holds a
// recipient snapshot count, Launch freezes the recipient set into
// message rows and admits the whole job batch atomically.
type BroadcastService struct {
	tx         Transactor
	broadcasts BroadcastRepository
	contacts   ContactRepository
	messages   MessageRepository
	workspaces WorkspaceRepository
	queue      *queue.Queue
}

func NewBroadcastService(
	tx Transactor,
	broadcasts BroadcastRepository,
	contacts ContactRepository,
	messages MessageRepository,
	workspaces WorkspaceRepository,
	q *queue.Queue,
) *BroadcastService {
	return &BroadcastService{
		tx:         tx,
		broadcasts: broadcasts,
		contacts:   contacts,
		messages:   messages,
		workspaces: workspaces,
		queue:      q,
	}
}

func (s *BroadcastService) Create(ctx context.Context, p model.BroadcastCreateRequest) (*model.Broadcast, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	p.Content = strings.TrimSpace(p.Content)
	if p.Content == "" {
		return nil, ErrEmptyContent
	}
	if utf8.RuneCountInString(p.Content) > maxContentLen {
		return nil, ErrContentTooLong
	}

	if _, err := s.workspaces.Get(ctx, p.WorkspaceID); err != nil {
		if err == repository.ErrNotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}

	recipients, err := s.resolveRecipients(ctx, p.WorkspaceID, p.RecipientFilter)
	if err != nil {
		return nil, err
	}
	if len(recipients) == 0 {
		return nil, ErrNoRecipients
	}

	return s.broadcasts.Create(ctx, &model.Broadcast{
		ID:              uuid.NewString(),
		WorkspaceID:     p.WorkspaceID,
		Content:         p.Content,
		MediaURL:        p.MediaURL,
		RecipientFilter: p.RecipientFilter,
		Status:          model.BroadcastStatusPending,
		TotalContacts:   len(recipients),
	})
}

// Launch enqueues one job per recipient, all-or-nothing, and only then
// moves the broadcast to processing: a failed admission leaves it
// pending so the caller can launch again. Launching an already
// processing broadcast is a no-op: the jobs are out, admitting them
// again would double-send. A finished broadcast refuses.
func (s *BroadcastService) Launch(ctx context.Context, id string) (*model.Broadcast, error) {
	b, err := s.broadcasts.Get(ctx, id)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}

	switch b.Status {
	case model.BroadcastStatusProcessing:
		return b, nil
	case model.BroadcastStatusCompleted, model.BroadcastStatusFailed:
		return nil, ErrBroadcastFinished
	}

	// The recipient set is frozen now, not at Create: contacts added
	// since the draft still get the broadcast.
	recipients, err := s.resolveRecipients(ctx, b.WorkspaceID, b.RecipientFilter)
	if err != nil {
		return nil, err
	}
	if len(recipients) == 0 {
		return nil, ErrNoRecipients
	}

	msgs := make([]*model.Message, 0, len(recipients))
	jobs := make([]model.Job, 0, len(recipients))
	for _, c := range recipients {
		msgs = append(msgs, &model.Message{
			ID:          uuid.NewString(),
			BroadcastID: &b.ID,
			WorkspaceID: b.WorkspaceID,
			ContactID:   c.ID,
			Direction:   model.DirectionOutbound,
			Content:     b.Content,
			MediaURL:    b.MediaURL,
			Status:      model.MessageStatusPending,
		})
		jobs = append(jobs, model.Job{
			ID:          uuid.NewString(),
			BroadcastID: b.ID,
			WorkspaceID: b.WorkspaceID,
			ContactID:   c.ID,
			Phone:       c.Phone,
			Content:     b.Content,
			MediaURL:    b.MediaURL,
		})
	}

	err = s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := s.broadcasts.SetTotalContacts(ctx, b.ID, len(recipients)); err != nil {
			return err
		}
		return s.messages.CreateBatch(ctx, msgs)
	})
	if err != nil {
		return nil, err
	}

	// Admission comes before the status flip. A failed batch admits
	// nothing, the broadcast stays pending and the caller can launch
	// again; the message rows already committed are reused on retry.
	if err := s.queue.EnqueueBatch(ctx, jobs); err != nil {
		logger.Error("broadcast launch: batch admission failed", "broadcast_id", b.ID, "error", err)
		return nil, err
	}

	if err := s.broadcasts.MarkProcessing(ctx, b.ID); err != nil {
		return nil, err
	}

	logger.Info("broadcast launched",
		"broadcast_id", b.ID,
		"workspace_id", b.WorkspaceID,
		"recipients", len(recipients),
	)
	return s.broadcasts.Get(ctx, b.ID)
}

func (s *BroadcastService) Get(ctx context.Context, id string) (*model.Broadcast, error) {
	b, err := s.broadcasts.Get(ctx, id)
	if err == repository.ErrNotFound {
		return nil, ErrNotFound
	}
	return b, err
}

// Progress reads the live counters. Completion is driven entirely by
// the reconciler; this is a pure read.
func (s *BroadcastService) Progress(ctx context.Context, id string) (*model.BroadcastProgress, error) {
	b, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return b.Progress(), nil
}

func (s *BroadcastService) List(ctx context.Context, workspaceID string, limit, offset int) ([]*model.Broadcast, int64, error) {
	return s.broadcasts.ListByWorkspace(ctx, workspaceID, limit, offset)
}

func (s *BroadcastService) resolveRecipients(ctx context.Context, workspaceID, tag string) ([]*model.Contact, error) {
	var all []*model.Contact
	offset := 0
	for {
		page, _, err := s.contacts.ListByWorkspace(ctx, workspaceID, tag, recipientPageSize, offset)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < recipientPageSize {
			return all, nil
		}
		offset += recipientPageSize
	}
}
