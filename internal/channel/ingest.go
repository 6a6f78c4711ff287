package channel

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/wavecast/broadcast-gateway/internal/model"
	"github.com/wavecast/broadcast-gateway/internal/repository"
	"github.com/wavecast/broadcast-gateway/pkg/logger"
	"github.com/wavecast/broadcast-gateway/pkg/prom"
	"github.com/wavecast/broadcast-gateway/pkg/worker"
)

// DeliveryRecorder is the reconciler surface the ingestor needs.
type DeliveryRecorder interface {
	RecordDelivered(ctx context.Context, providerMessageID string) error
}

type inboundJob struct {
	workspaceID string
	event       InboundMessageEvent
}

type receiptJob struct {
	event ReceiptEvent
}

// Ingestor drains protocol events off the session event loops through a
// worker pool, so a burst of inbound traffic never stalls a connection.
// Inbound messages upsert the contact and land as inbound message rows;
// receipts feed the delivery reconciliation.
type Ingestor struct {
	contacts *repository.ContactRepository
	messages *repository.MessageRepository
	recorder DeliveryRecorder
	pool     *worker.WorkerManager
}

func NewIngestor(
	contacts *repository.ContactRepository,
	messages *repository.MessageRepository,
	recorder DeliveryRecorder,
	bufferSize, workers int,
) *Ingestor {
	ing := &Ingestor{
		contacts: contacts,
		messages: messages,
		recorder: recorder,
	}
	ing.pool = worker.NewWorkerManager(bufferSize, workers, nil)
	ing.pool.SetWorker(ing.process)
	return ing
}

// Hooks returns the session hooks feeding this ingestor.
func (i *Ingestor) Hooks() Hooks {
	return Hooks{
		OnInbound: func(workspaceID string, ev InboundMessageEvent) {
			i.pool.Enqueue(inboundJob{workspaceID: workspaceID, event: ev})
		},
		OnReceipt: func(workspaceID string, ev ReceiptEvent) {
			i.pool.Enqueue(receiptJob{event: ev})
		},
	}
}

// Start blocks until the pool is stopped.
func (i *Ingestor) Start() error {
	return i.pool.Start()
}

func (i *Ingestor) Stop() {
	i.pool.Exit()
}

func (i *Ingestor) process(workerIndex int, job interface{}) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch j := job.(type) {
	case inboundJob:
		if err := i.handleInbound(ctx, j.workspaceID, j.event); err != nil {
			logger.Error("ingest: failed to store inbound message",
				"workspace_id", j.workspaceID,
				"from", j.event.From,
				"error", err,
			)
		}
	case receiptJob:
		if err := i.recorder.RecordDelivered(ctx, j.event.ProviderMessageID); err != nil {
			logger.Error("ingest: failed to record receipt",
				"provider_message_id", j.event.ProviderMessageID,
				"error", err,
			)
		}
	}
}

// handleInbound upserts the sender as a contact and stores the message.
func (i *Ingestor) handleInbound(ctx context.Context, workspaceID string, ev InboundMessageEvent) error {
	contact, err := i.contacts.GetByPhone(ctx, workspaceID, ev.From)
	if err != nil {
		if err != repository.ErrNotFound {
			return err
		}
		name := strings.TrimSpace(ev.PushName)
		if name == "" {
			name = ev.From
		}
		contact, err = i.contacts.Create(ctx, &model.Contact{
			ID:          uuid.NewString(),
			WorkspaceID: workspaceID,
			Name:        name,
			Phone:       ev.From,
		})
		if err != nil {
			return err
		}
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}

	_, err = i.messages.Create(ctx, &model.Message{
		ID:                uuid.NewString(),
		WorkspaceID:       workspaceID,
		ContactID:         contact.ID,
		Direction:         model.DirectionInbound,
		Content:           ev.Content,
		Status:            model.MessageStatusDelivered,
		ProviderMessageID: ev.ProviderMessageID,
		CreatedAt:         at,
	})
	if err != nil {
		return err
	}

	if err := i.contacts.TouchLastMessage(ctx, contact.ID, at); err != nil {
		return err
	}

	prom.IncInbound()
	return nil
}
