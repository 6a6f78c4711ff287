package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcastStatus_Transitions(t *testing.T) {
	t.Run("legal forward moves", func(t *testing.T) {
		assert.True(t, BroadcastStatusPending.CanTransition(BroadcastStatusProcessing))
		assert.True(t, BroadcastStatusPending.CanTransition(BroadcastStatusCompleted))
		assert.True(t, BroadcastStatusProcessing.CanTransition(BroadcastStatusCompleted))
		assert.True(t, BroadcastStatusProcessing.CanTransition(BroadcastStatusFailed))
	})

	t.Run("terminal statuses have no outgoing edges", func(t *testing.T) {
		for _, from := range []BroadcastStatus{BroadcastStatusCompleted, BroadcastStatusFailed} {
			for _, to := range []BroadcastStatus{BroadcastStatusPending, BroadcastStatusProcessing, BroadcastStatusCompleted, BroadcastStatusFailed} {
				assert.False(t, from.CanTransition(to), "%s -> %s must be illegal", from, to)
			}
		}
	})

	t.Run("completed cannot go back to pending", func(t *testing.T) {
		b := &Broadcast{Status: BroadcastStatusCompleted}
		err := b.Transition(BroadcastStatusPending)
		require.ErrorIs(t, err, ErrIllegalTransition)
		assert.Equal(t, BroadcastStatusCompleted, b.Status, "status must not change on illegal transition")
	})
}

func TestMessageStatus_Transitions(t *testing.T) {
	t.Run("forward only", func(t *testing.T) {
		assert.True(t, MessageStatusPending.CanTransition(MessageStatusSent))
		assert.True(t, MessageStatusPending.CanTransition(MessageStatusFailed))
		assert.True(t, MessageStatusSent.CanTransition(MessageStatusDelivered))
	})

	t.Run("never backward", func(t *testing.T) {
		assert.False(t, MessageStatusSent.CanTransition(MessageStatusPending))
		assert.False(t, MessageStatusSent.CanTransition(MessageStatusFailed))
		assert.False(t, MessageStatusDelivered.CanTransition(MessageStatusSent))
		assert.False(t, MessageStatusFailed.CanTransition(MessageStatusSent))
	})

	t.Run("terminal detection", func(t *testing.T) {
		assert.False(t, MessageStatusPending.Terminal())
		assert.True(t, MessageStatusSent.Terminal())
		assert.True(t, MessageStatusDelivered.Terminal())
		assert.True(t, MessageStatusFailed.Terminal())
	})
}

func TestBroadcast_Accounted(t *testing.T) {
	b := &Broadcast{TotalContacts: 3, SentCount: 2, FailedCount: 0}
	assert.False(t, b.Accounted())

	b.FailedCount = 1
	assert.True(t, b.Accounted())
}

func TestChannelStatus_Live(t *testing.T) {
	assert.False(t, ChannelStatusDisconnected.Live())
	assert.True(t, ChannelStatusConnecting.Live())
	assert.True(t, ChannelStatusQRReady.Live())
	assert.True(t, ChannelStatusConnected.Live())
}
