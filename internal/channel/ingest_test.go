package channel

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wavecast/broadcast-gateway/internal/model"
	"github.com/wavecast/broadcast-gateway/internal/repository"
)

type fakeRecorder struct {
	mu  sync.Mutex
	ids []string
}

func (r *fakeRecorder) RecordDelivered(ctx context.Context, providerMessageID string) error {
	r.mu.Lock()
	r.ids = append(r.ids, providerMessageID)
	r.mu.Unlock()
	return nil
}

func TestIngestor_InboundMessage(t *testing.T) {
	f := setup(t, Hooks{})
	ctx := context.Background()
	workspaceID := f.createWorkspace(t)

	contacts := repository.NewContactRepository(f.db)
	messages := repository.NewMessageRepository(f.db)
	recorder := &fakeRecorder{}

	ing := NewIngestor(contacts, messages, recorder, 16, 2)
	go func() { _ = ing.Start() }()
	defer ing.Stop()

	hooks := ing.Hooks()
	hooks.OnInbound(workspaceID, InboundMessageEvent{
		From:              "15550004444",
		PushName:          "Ada",
		Content:           "hey",
		ProviderMessageID: "in-1",
		At:                time.Now(),
	})

	var contactID string
	assert.Eventually(t, func() bool {
		c, err := contacts.GetByPhone(ctx, workspaceID, "15550004444")
		if err != nil {
			return false
		}
		contactID = c.ID
		return true
	}, time.Second, 10*time.Millisecond)

	t.Run("contact takes the sender's push name", func(t *testing.T) {
		c, err := contacts.GetByPhone(ctx, workspaceID, "15550004444")
		require.NoError(t, err)
		assert.Equal(t, "Ada", c.Name)
	})

	t.Run("message row is stored inbound", func(t *testing.T) {
		direction := model.DirectionInbound
		items, total, err := messages.List(ctx, model.MessageFilter{
			WorkspaceID: &workspaceID,
			Direction:   &direction,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
		assert.Equal(t, "hey", items[0].Content)
		assert.Nil(t, items[0].BroadcastID)
		assert.Equal(t, contactID, items[0].ContactID)
	})

	t.Run("contact last message is touched", func(t *testing.T) {
		c, err := contacts.GetByPhone(ctx, workspaceID, "15550004444")
		require.NoError(t, err)
		assert.NotNil(t, c.LastMessageAt)
	})

	t.Run("second message reuses the contact", func(t *testing.T) {
		hooks.OnInbound(workspaceID, InboundMessageEvent{
			From:              "15550004444",
			Content:           "again",
			ProviderMessageID: "in-2",
			At:                time.Now(),
		})

		direction := model.DirectionInbound
		assert.Eventually(t, func() bool {
			_, total, err := messages.List(ctx, model.MessageFilter{
				WorkspaceID: &workspaceID,
				Direction:   &direction,
			})
			return err == nil && total == 2
		}, time.Second, 10*time.Millisecond)

		_, total, err := contacts.ListByWorkspace(ctx, workspaceID, "", 10, 0)
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
	})

	t.Run("missing push name falls back to the phone", func(t *testing.T) {
		hooks.OnInbound(workspaceID, InboundMessageEvent{
			From:              "15550005555",
			Content:           "yo",
			ProviderMessageID: "in-3",
			At:                time.Now(),
		})

		assert.Eventually(t, func() bool {
			c, err := contacts.GetByPhone(ctx, workspaceID, "15550005555")
			return err == nil && c.Name == "15550005555"
		}, time.Second, 10*time.Millisecond)
	})
}

func TestIngestor_Receipt(t *testing.T) {
	f := setup(t, Hooks{})
	workspaceID := f.createWorkspace(t)

	contacts := repository.NewContactRepository(f.db)
	messages := repository.NewMessageRepository(f.db)
	recorder := &fakeRecorder{}

	ing := NewIngestor(contacts, messages, recorder, 16, 2)
	go func() { _ = ing.Start() }()
	defer ing.Stop()

	ing.Hooks().OnReceipt(workspaceID, ReceiptEvent{ProviderMessageID: "prov-7"})

	assert.Eventually(t, func() bool {
		recorder.mu.Lock()
		defer recorder.mu.Unlock()
		return len(recorder.ids) == 1 && recorder.ids[0] == "prov-7"
	}, time.Second, 10*time.Millisecond)
}
