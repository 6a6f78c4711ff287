package dispatch

import (
	"context"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wavecast/broadcast-gateway/internal/channel"
	"github.com/wavecast/broadcast-gateway/internal/model"
	"github.com/wavecast/broadcast-gateway/internal/queue"
	"github.com/wavecast/broadcast-gateway/internal/reconcile"
	"github.com/wavecast/broadcast-gateway/internal/repository"
	"github.com/wavecast/broadcast-gateway/pkg/pg"
	"github.com/wavecast/broadcast-gateway/pkg/redis"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type sendCall struct {
	to string
	at time.Time
}

type fakeSender struct {
	mu       sync.Mutex
	calls    []sendCall
	failures map[string]int // phone -> failures left before success
}

func (s *fakeSender) Send(ctx context.Context, workspaceID string, in channel.SendInput) (*channel.SendResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, sendCall{to: in.To, at: time.Now()})
	if s.failures[in.To] > 0 {
		s.failures[in.To]--
		return nil, assert.AnError
	}
	return &channel.SendResult{ProviderMessageID: "prov-" + in.To}, nil
}

func (s *fakeSender) callTimes(to string) []time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	var times []time.Time
	for _, c := range s.calls {
		if to == "" || c.to == to {
			times = append(times, c.at)
		}
	}
	return times
}

type workerFixture struct {
	db         *pg.DB
	queue      *queue.Queue
	sender     *fakeSender
	worker     *Worker
	broadcasts *repository.BroadcastRepository
	messages   *repository.MessageRepository
	workspaces *repository.WorkspaceRepository
}

func setup(t *testing.T, interval time.Duration, maxAttempts int) *workerFixture {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	adapter, err := redis.NewRedisAdapter(t.Name()+"-"+mr.Addr(), "", &goredis.UniversalOptions{
		Addrs: []string{mr.Addr()},
	})
	require.NoError(t, err)

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

	q, err := queue.New(adapter, queue.Config{
		Name:              "test:dispatch",
		ConsumerGroup:     "test-group",
		ConsumerName:      "test-consumer",
		MaxAttempts:       maxAttempts,
		RetryBackoff:      30 * time.Millisecond,
		VisibilityTimeout: 5 * time.Second,
		PollInterval:      10 * time.Millisecond,
		BatchSize:         10,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = q.Stop(time.Second) })

	broadcasts := repository.NewBroadcastRepository(pgDB)
	messages := repository.NewMessageRepository(pgDB)
	workspaces := repository.NewWorkspaceRepository(pgDB)
	sender := &fakeSender{failures: make(map[string]int)}
	recorder := reconcile.New(pgDB, broadcasts, messages)

	return &workerFixture{
		db:         pgDB,
		queue:      q,
		sender:     sender,
		worker:     New(q, workspaces, sender, recorder, interval),
		broadcasts: broadcasts,
		messages:   messages,
		workspaces: workspaces,
	}
}

// seed creates an active workspace, a processing broadcast with pending
// message rows, and enqueues one job per recipient.
func (f *workerFixture) seed(t *testing.T, active bool, phones []string) string {
	ctx := context.Background()

	w, err := f.workspaces.Create(ctx, &model.Workspace{
		ID:     uuid.NewString(),
		Name:   "acme",
		Active: active,
	})
	require.NoError(t, err)

	b, err := f.broadcasts.Create(ctx, &model.Broadcast{
		ID:            uuid.NewString(),
		WorkspaceID:   w.ID,
		Content:       "hello",
		Status:        model.BroadcastStatusProcessing,
		TotalContacts: len(phones),
	})
	require.NoError(t, err)

	jobs := make([]model.Job, 0, len(phones))
	msgs := make([]*model.Message, 0, len(phones))
	for _, phone := range phones {
		contactID := uuid.NewString()
		msgs = append(msgs, &model.Message{
			ID:          uuid.NewString(),
			BroadcastID: &b.ID,
			WorkspaceID: w.ID,
			ContactID:   contactID,
			Direction:   model.DirectionOutbound,
			Content:     b.Content,
			Status:      model.MessageStatusPending,
		})
		jobs = append(jobs, model.Job{
			ID:          uuid.NewString(),
			BroadcastID: b.ID,
			WorkspaceID: w.ID,
			ContactID:   contactID,
			Phone:       phone,
			Content:     b.Content,
		})
	}
	require.NoError(t, f.messages.CreateBatch(ctx, msgs))
	require.NoError(t, f.queue.EnqueueBatch(ctx, jobs))

	return b.ID
}

func (f *workerFixture) waitCompleted(t *testing.T, broadcastID string, within time.Duration) *model.Broadcast {
	ctx := context.Background()
	var b *model.Broadcast
	assert.Eventually(t, func() bool {
		got, err := f.broadcasts.Get(ctx, broadcastID)
		if err != nil {
			return false
		}
		b = got
		return got.Status == model.BroadcastStatusCompleted
	}, within, 20*time.Millisecond)
	require.NotNil(t, b)
	return b
}

func TestWorker_DispatchesAllRecipients(t *testing.T) {
	f := setup(t, time.Millisecond, 3)
	broadcastID := f.seed(t, true, []string{"1001", "1002", "1003"})

	require.NoError(t, f.worker.Start())
	defer f.worker.Stop()

	b := f.waitCompleted(t, broadcastID, 3*time.Second)
	assert.Equal(t, 3, b.SentCount)
	assert.Zero(t, b.FailedCount)
	assert.NotNil(t, b.CompletedAt)

	t.Run("message rows carry provider ids", func(t *testing.T) {
		items, _, err := f.messages.List(context.Background(), model.MessageFilter{BroadcastID: &broadcastID})
		require.NoError(t, err)
		for _, m := range items {
			assert.Equal(t, model.MessageStatusSent, m.Status)
			assert.Equal(t, "prov-", m.ProviderMessageID[:5])
			assert.NotNil(t, m.SentAt)
		}
	})
}

func TestWorker_PacesSends(t *testing.T) {
	interval := 100 * time.Millisecond
	f := setup(t, interval, 3)
	broadcastID := f.seed(t, true, []string{"2001", "2002", "2003"})

	require.NoError(t, f.worker.Start())
	defer f.worker.Stop()

	f.waitCompleted(t, broadcastID, 5*time.Second)

	times := f.sender.callTimes("")
	require.Len(t, times, 3)
	// N sends through a limiter of one per interval take at least
	// (N-1) intervals end to end.
	assert.GreaterOrEqual(t, times[2].Sub(times[0]), 2*interval-10*time.Millisecond)
}

func TestWorker_RetriesThenSucceeds(t *testing.T) {
	f := setup(t, time.Millisecond, 3)
	f.sender.failures["3002"] = 2 // fails twice, succeeds on the third attempt
	broadcastID := f.seed(t, true, []string{"3001", "3002", "3003"})

	require.NoError(t, f.worker.Start())
	defer f.worker.Stop()

	b := f.waitCompleted(t, broadcastID, 5*time.Second)
	assert.Equal(t, 3, b.SentCount)
	assert.Zero(t, b.FailedCount)

	t.Run("flaky recipient took three attempts", func(t *testing.T) {
		assert.Len(t, f.sender.callTimes("3002"), 3)
	})

	t.Run("attempts waited out the backoff", func(t *testing.T) {
		times := f.sender.callTimes("3002")
		require.Len(t, times, 3)
		assert.GreaterOrEqual(t, times[1].Sub(times[0]), 30*time.Millisecond)
		assert.GreaterOrEqual(t, times[2].Sub(times[1]), 60*time.Millisecond)
	})
}

func TestWorker_ExhaustedJobFails(t *testing.T) {
	f := setup(t, time.Millisecond, 3)
	f.sender.failures["4001"] = 99
	broadcastID := f.seed(t, true, []string{"4001", "4002"})

	require.NoError(t, f.worker.Start())
	defer f.worker.Stop()

	b := f.waitCompleted(t, broadcastID, 5*time.Second)
	assert.Equal(t, 1, b.SentCount)
	assert.Equal(t, 1, b.FailedCount)

	t.Run("failed message keeps the last error", func(t *testing.T) {
		items, _, err := f.messages.List(context.Background(), model.MessageFilter{
			BroadcastID: &broadcastID,
			Statuses:    []model.MessageStatus{model.MessageStatusFailed},
		})
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.NotEmpty(t, items[0].ErrorDetail)
	})

	t.Run("dead attempts stopped at the budget", func(t *testing.T) {
		assert.Len(t, f.sender.callTimes("4001"), 3)
	})
}

func TestWorker_InactiveWorkspaceDrains(t *testing.T) {
	f := setup(t, time.Millisecond, 2)
	broadcastID := f.seed(t, false, []string{"5001", "5002"})

	require.NoError(t, f.worker.Start())
	defer f.worker.Stop()

	b := f.waitCompleted(t, broadcastID, 5*time.Second)
	assert.Zero(t, b.SentCount)
	assert.Equal(t, 2, b.FailedCount)

	t.Run("nothing was handed to the channel", func(t *testing.T) {
		assert.Empty(t, f.sender.callTimes(""))
	})
}

func TestWorker_ReactivatedWorkspaceRecovers(t *testing.T) {
	f := setup(t, time.Millisecond, 3)
	broadcastID := f.seed(t, false, []string{"6001"})

	require.NoError(t, f.worker.Start())
	defer f.worker.Stop()

	// Let the first attempt bounce off the inactive gate, then
	// reactivate before the budget runs out.
	assert.Eventually(t, func() bool {
		return f.worker.metrics.Stats()["total_retried"].(int64) >= 1
	}, 2*time.Second, 10*time.Millisecond)

	ctx := context.Background()
	var entity repository.WorkspaceEntity
	b, err := f.broadcasts.Get(ctx, broadcastID)
	require.NoError(t, err)
	err = f.db.Write(ctx).Model(&entity).
		Where("id = ?", b.WorkspaceID).
		Update("active", true).Error
	require.NoError(t, err)

	got := f.waitCompleted(t, broadcastID, 5*time.Second)
	assert.Equal(t, 1, got.SentCount)
	assert.Zero(t, got.FailedCount)
}
