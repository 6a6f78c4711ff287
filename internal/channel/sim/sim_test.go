package sim

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wavecast/broadcast-gateway/internal/channel"
)

func testConfig() Config {
	return Config{
		DeliveryRate: 1.0,
		MinDelay:     time.Millisecond,
		MaxDelay:     2 * time.Millisecond,
		PairDelay:    5 * time.Millisecond,
		ReceiptDelay: 5 * time.Millisecond,
	}
}

func nextEvent(t *testing.T, conn channel.Conn) channel.Event {
	t.Helper()
	select {
	case ev, ok := <-conn.Events():
		require.True(t, ok, "event channel closed")
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestDialWithoutCredentialsPairsFirst(t *testing.T) {
	transport := New(testConfig())

	conn, err := transport.Dial(context.Background(), "ws-1", nil)
	require.NoError(t, err)
	defer conn.Close()

	pairing, ok := nextEvent(t, conn).(channel.PairingEvent)
	require.True(t, ok, "expected pairing event first")
	assert.NotEmpty(t, pairing.Code)

	open, ok := nextEvent(t, conn).(channel.OpenEvent)
	require.True(t, ok, "expected open event after pairing")
	assert.NotEmpty(t, open.Credentials)
	assert.Equal(t, "sim:ws-1", open.EndpointID)
}

func TestDialWithCredentialsOpensSilently(t *testing.T) {
	transport := New(testConfig())

	creds := []byte("stored-creds")
	conn, err := transport.Dial(context.Background(), "ws-1", creds)
	require.NoError(t, err)
	defer conn.Close()

	open, ok := nextEvent(t, conn).(channel.OpenEvent)
	require.True(t, ok, "expected open event, no pairing")
	assert.Equal(t, creds, open.Credentials)
}

func TestSendEmitsReceipt(t *testing.T) {
	transport := New(testConfig())

	conn, err := transport.Dial(context.Background(), "ws-1", []byte("creds"))
	require.NoError(t, err)
	defer conn.Close()
	nextEvent(t, conn) // open

	res, err := conn.Send(context.Background(), channel.SendInput{To: "+15550001", Content: "hi"})
	require.NoError(t, err)
	require.NotEmpty(t, res.ProviderMessageID)

	receipt, ok := nextEvent(t, conn).(channel.ReceiptEvent)
	require.True(t, ok, "expected a delivery receipt")
	assert.Equal(t, res.ProviderMessageID, receipt.ProviderMessageID)
}

func TestSendFailsAtZeroDeliveryRate(t *testing.T) {
	cfg := testConfig()
	cfg.DeliveryRate = 0
	transport := New(cfg)

	conn, err := transport.Dial(context.Background(), "ws-1", []byte("creds"))
	require.NoError(t, err)
	defer conn.Close()
	nextEvent(t, conn)

	_, err = conn.Send(context.Background(), channel.SendInput{To: "+15550001", Content: "hi"})
	assert.ErrorIs(t, err, ErrSendRejected)
}

func TestLogoutSeversTheConnection(t *testing.T) {
	transport := New(testConfig())

	conn, err := transport.Dial(context.Background(), "ws-1", []byte("creds"))
	require.NoError(t, err)
	nextEvent(t, conn)

	require.NoError(t, conn.Logout(context.Background()))

	_, err = conn.Send(context.Background(), channel.SendInput{To: "+15550001"})
	assert.Error(t, err)
}

func TestCloseIsIdempotent(t *testing.T) {
	transport := New(testConfig())

	conn, err := transport.Dial(context.Background(), "ws-1", []byte("creds"))
	require.NoError(t, err)

	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())

	_, err = conn.Send(context.Background(), channel.SendInput{To: "+15550001"})
	assert.Error(t, err)
}
