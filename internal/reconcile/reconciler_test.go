package reconcile

import (
	"context"
	"reflect"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wavecast/broadcast-gateway/internal/model"
	"github.com/wavecast/broadcast-gateway/internal/repository"
	"github.com/wavecast/broadcast-gateway/pkg/pg"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type fixture struct {
	reconciler *Reconciler
	broadcasts *repository.BroadcastRepository
	messages   *repository.MessageRepository
}

func setup(t *testing.T) *fixture {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(
		&repository.WorkspaceEntity{},
		&repository.ContactEntity{},
		&repository.BroadcastEntity{},
		&repository.MessageEntity{},
		&repository.ChannelSessionEntity{},
	)
	require.NoError(t, err)

	pgDB := &pg.DB{}
	v := reflect.ValueOf(pgDB).Elem()
	for _, name := range []string{"read", "write"} {
		f := v.FieldByName(name)
		f = reflect.NewAt(f.Type(), f.Addr().UnsafePointer()).Elem()
		f.Set(reflect.ValueOf(db))
	}

	broadcasts := repository.NewBroadcastRepository(pgDB)
	messages := repository.NewMessageRepository(pgDB)

	return &fixture{
		reconciler: New(pgDB, broadcasts, messages),
		broadcasts: broadcasts,
		messages:   messages,
	}
}

// seed creates a broadcast with n pending recipients and returns the
// broadcast id plus the contact ids in order.
func (f *fixture) seed(t *testing.T, n int) (string, []string) {
	ctx := context.Background()

	b, err := f.broadcasts.Create(ctx, &model.Broadcast{
		ID:            uuid.NewString(),
		WorkspaceID:   uuid.NewString(),
		Content:       "hello",
		Status:        model.BroadcastStatusProcessing,
		TotalContacts: n,
	})
	require.NoError(t, err)

	contacts := make([]string, 0, n)
	msgs := make([]*model.Message, 0, n)
	for i := 0; i < n; i++ {
		contactID := uuid.NewString()
		contacts = append(contacts, contactID)
		msgs = append(msgs, &model.Message{
			ID:          uuid.NewString(),
			BroadcastID: &b.ID,
			WorkspaceID: b.WorkspaceID,
			ContactID:   contactID,
			Direction:   model.DirectionOutbound,
			Content:     b.Content,
			Status:      model.MessageStatusPending,
		})
	}
	require.NoError(t, f.messages.CreateBatch(ctx, msgs))

	return b.ID, contacts
}

func TestReconciler_RecordSuccess(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	broadcastID, contacts := f.seed(t, 2)

	completed, err := f.reconciler.RecordSuccess(ctx, broadcastID, contacts[0], "prov-1")
	require.NoError(t, err)
	assert.False(t, completed)

	b, err := f.broadcasts.Get(ctx, broadcastID)
	require.NoError(t, err)
	assert.Equal(t, 1, b.SentCount)

	t.Run("replayed success counts once", func(t *testing.T) {
		completed, err := f.reconciler.RecordSuccess(ctx, broadcastID, contacts[0], "prov-1")
		require.NoError(t, err)
		assert.False(t, completed)

		b, err := f.broadcasts.Get(ctx, broadcastID)
		require.NoError(t, err)
		assert.Equal(t, 1, b.SentCount)
	})

	t.Run("last recipient completes the broadcast", func(t *testing.T) {
		completed, err := f.reconciler.RecordSuccess(ctx, broadcastID, contacts[1], "prov-2")
		require.NoError(t, err)
		assert.True(t, completed)

		b, err := f.broadcasts.Get(ctx, broadcastID)
		require.NoError(t, err)
		assert.Equal(t, model.BroadcastStatusCompleted, b.Status)
		assert.Equal(t, 2, b.SentCount)
		assert.NotNil(t, b.CompletedAt)
	})
}

func TestReconciler_RecordFailure(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	broadcastID, contacts := f.seed(t, 2)

	completed, err := f.reconciler.RecordFailure(ctx, broadcastID, contacts[0], "number unreachable")
	require.NoError(t, err)
	assert.False(t, completed)

	t.Run("failure after success is ignored", func(t *testing.T) {
		_, err := f.reconciler.RecordSuccess(ctx, broadcastID, contacts[1], "prov-3")
		require.NoError(t, err)

		_, err = f.reconciler.RecordFailure(ctx, broadcastID, contacts[1], "late failure")
		require.NoError(t, err)

		b, err := f.broadcasts.Get(ctx, broadcastID)
		require.NoError(t, err)
		assert.Equal(t, 1, b.SentCount)
		assert.Equal(t, 1, b.FailedCount)
	})

	t.Run("mixed outcomes still complete", func(t *testing.T) {
		b, err := f.broadcasts.Get(ctx, broadcastID)
		require.NoError(t, err)
		assert.Equal(t, model.BroadcastStatusCompleted, b.Status)
	})
}

func TestReconciler_RecordDelivered(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	broadcastID, contacts := f.seed(t, 1)

	t.Run("receipt before send is ignored", func(t *testing.T) {
		require.NoError(t, f.reconciler.RecordDelivered(ctx, "prov-x"))
	})

	_, err := f.reconciler.RecordSuccess(ctx, broadcastID, contacts[0], "prov-x")
	require.NoError(t, err)

	require.NoError(t, f.reconciler.RecordDelivered(ctx, "prov-x"))

	b, err := f.broadcasts.Get(ctx, broadcastID)
	require.NoError(t, err)
	assert.Equal(t, 1, b.DeliveredCount)

	t.Run("duplicate receipt counts once", func(t *testing.T) {
		require.NoError(t, f.reconciler.RecordDelivered(ctx, "prov-x"))

		b, err := f.broadcasts.Get(ctx, broadcastID)
		require.NoError(t, err)
		assert.Equal(t, 1, b.DeliveredCount)
	})
}

func TestReconciler_Progress(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	broadcastID, contacts := f.seed(t, 3)

	_, err := f.reconciler.RecordSuccess(ctx, broadcastID, contacts[0], "prov-1")
	require.NoError(t, err)
	_, err = f.reconciler.RecordFailure(ctx, broadcastID, contacts[1], "unreachable")
	require.NoError(t, err)

	p, err := f.reconciler.Progress(ctx, broadcastID)
	require.NoError(t, err)
	assert.Equal(t, 3, p.Total)
	assert.Equal(t, 1, p.Sent)
	assert.Equal(t, 1, p.Failed)
	assert.Equal(t, model.BroadcastStatusProcessing, p.Status)
}
