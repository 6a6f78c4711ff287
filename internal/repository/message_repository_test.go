package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wavecast/broadcast-gateway/internal/model"
)

func newOutboundMessage(broadcastID, contactID string) *model.Message {
	return &model.Message{
		ID:          uuid.NewString(),
		BroadcastID: &broadcastID,
		WorkspaceID: uuid.NewString(),
		ContactID:   contactID,
		Direction:   model.DirectionOutbound,
		Content:     "Hi there",
		Status:      model.MessageStatusPending,
	}
}

func TestMessageRepository_CreateBatch(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewMessageRepository(db)
	ctx := context.Background()

	broadcastID := uuid.NewString()
	msgs := []*model.Message{
		newOutboundMessage(broadcastID, uuid.NewString()),
		newOutboundMessage(broadcastID, uuid.NewString()),
		newOutboundMessage(broadcastID, uuid.NewString()),
	}
	require.NoError(t, repo.CreateBatch(ctx, msgs))

	items, total, err := repo.List(ctx, model.MessageFilter{BroadcastID: &broadcastID})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, items, 3)
}

func TestMessageRepository_MarkSent(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewMessageRepository(db)
	ctx := context.Background()

	broadcastID := uuid.NewString()
	contactID := uuid.NewString()
	_, err := repo.Create(ctx, newOutboundMessage(broadcastID, contactID))
	require.NoError(t, err)

	changed, err := repo.MarkSent(ctx, broadcastID, contactID, "prov-1", time.Now())
	require.NoError(t, err)
	assert.True(t, changed)

	t.Run("replay is a no-op", func(t *testing.T) {
		changed, err := repo.MarkSent(ctx, broadcastID, contactID, "prov-1", time.Now())
		require.NoError(t, err)
		assert.False(t, changed)
	})

	t.Run("failed cannot overwrite sent", func(t *testing.T) {
		changed, err := repo.MarkFailed(ctx, broadcastID, contactID, "too late")
		require.NoError(t, err)
		assert.False(t, changed)

		got, err := repo.GetOutbound(ctx, broadcastID, contactID)
		require.NoError(t, err)
		assert.Equal(t, model.MessageStatusSent, got.Status)
		assert.Empty(t, got.ErrorDetail)
		assert.NotNil(t, got.SentAt)
	})
}

func TestMessageRepository_MarkFailed(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewMessageRepository(db)
	ctx := context.Background()

	broadcastID := uuid.NewString()
	contactID := uuid.NewString()
	_, err := repo.Create(ctx, newOutboundMessage(broadcastID, contactID))
	require.NoError(t, err)

	changed, err := repo.MarkFailed(ctx, broadcastID, contactID, "recipient unreachable")
	require.NoError(t, err)
	assert.True(t, changed)

	got, err := repo.GetOutbound(ctx, broadcastID, contactID)
	require.NoError(t, err)
	assert.Equal(t, model.MessageStatusFailed, got.Status)
	assert.Equal(t, "recipient unreachable", got.ErrorDetail)
}

func TestMessageRepository_MarkDelivered(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewMessageRepository(db)
	ctx := context.Background()

	broadcastID := uuid.NewString()
	contactID := uuid.NewString()
	_, err := repo.Create(ctx, newOutboundMessage(broadcastID, contactID))
	require.NoError(t, err)

	t.Run("receipt for an unknown provider id", func(t *testing.T) {
		_, _, err := repo.MarkDelivered(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	_, err = repo.MarkSent(ctx, broadcastID, contactID, "prov-9", time.Now())
	require.NoError(t, err)

	msg, changed, err := repo.MarkDelivered(ctx, "prov-9")
	require.NoError(t, err)
	assert.True(t, changed)
	require.NotNil(t, msg.BroadcastID)
	assert.Equal(t, broadcastID, *msg.BroadcastID)

	t.Run("duplicate receipt is a no-op", func(t *testing.T) {
		_, changed, err := repo.MarkDelivered(ctx, "prov-9")
		require.NoError(t, err)
		assert.False(t, changed)
	})
}

func TestMessageRepository_List(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewMessageRepository(db)
	ctx := context.Background()

	broadcastID := uuid.NewString()
	for i := 0; i < 5; i++ {
		_, err := repo.Create(ctx, newOutboundMessage(broadcastID, uuid.NewString()))
		require.NoError(t, err)
	}

	t.Run("filter by status", func(t *testing.T) {
		items, total, err := repo.List(ctx, model.MessageFilter{
			BroadcastID: &broadcastID,
			Statuses:    []model.MessageStatus{model.MessageStatusPending},
		})
		require.NoError(t, err)
		assert.Equal(t, int64(5), total)
		assert.Len(t, items, 5)
	})

	t.Run("pagination", func(t *testing.T) {
		items, total, err := repo.List(ctx, model.MessageFilter{
			BroadcastID: &broadcastID,
			Limit:       2,
			Offset:      4,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(5), total)
		assert.Len(t, items, 1)
	})
}

func TestChannelSessionRepository_Upsert(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewChannelSessionRepository(db)
	ctx := context.Background()

	workspaceID := uuid.NewString()
	require.NoError(t, repo.Upsert(ctx, &model.ChannelSession{
		WorkspaceID: workspaceID,
		Status:      model.ChannelStatusQRReady,
		PairingCode: "CODE-1234",
		Credentials: []byte("creds"),
	}))

	got, err := repo.Get(ctx, workspaceID)
	require.NoError(t, err)
	assert.Equal(t, model.ChannelStatusQRReady, got.Status)
	assert.Equal(t, "CODE-1234", got.PairingCode)

	t.Run("second upsert replaces state", func(t *testing.T) {
		now := time.Now()
		require.NoError(t, repo.Upsert(ctx, &model.ChannelSession{
			WorkspaceID:     workspaceID,
			Status:          model.ChannelStatusConnected,
			Credentials:     []byte("fresh"),
			EndpointID:      "15550001111",
			LastConnectedAt: &now,
		}))

		got, err := repo.Get(ctx, workspaceID)
		require.NoError(t, err)
		assert.Equal(t, model.ChannelStatusConnected, got.Status)
		assert.Empty(t, got.PairingCode)
		assert.Equal(t, "15550001111", got.EndpointID)
	})

	t.Run("purge wipes credentials", func(t *testing.T) {
		require.NoError(t, repo.PurgeCredentials(ctx, workspaceID))

		got, err := repo.Get(ctx, workspaceID)
		require.NoError(t, err)
		assert.Equal(t, model.ChannelStatusDisconnected, got.Status)
		assert.Empty(t, got.Credentials)
	})
}
