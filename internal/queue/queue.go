package queue

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	goredis "github.com/redis/go-redis/v9"
	"github.com/wavecast/broadcast-gateway/internal/model"
	"github.com/wavecast/broadcast-gateway/pkg/logger"
	"github.com/wavecast/broadcast-gateway/pkg/redis"
)

// Handler processes one due job. A nil return acks the job; an error
// schedules a retry until the attempt budget runs out.
type Handler func(ctx context.Context, job *Job) error

// TerminalHandler fires exactly once per job, after its last failed
// attempt, just before the job is parked in failed history.
type TerminalHandler func(ctx context.Context, job *Job, cause error)

// Job is one delivery attempt read off the stream.
type Job struct {
	ID       string
	Payload  model.Job
	Attempt  int
	Enqueued time.Time
}

type Config struct {
	Name               string
	ConsumerGroup      string
	ConsumerName       string
	MaxAttempts        int
	RetryBackoff       time.Duration
	VisibilityTimeout  time.Duration
	PollInterval       time.Duration
	BatchSize          int64
	CompletedRetention time.Duration
	FailedRetention    time.Duration
}

// Queue is a durable FIFO job queue on a single Redis stream. Failed
// attempts are parked in a retry sorted set scored by their due time,
// so a backing-off job never blocks the jobs behind it. Completed and
// terminally-failed jobs land in bounded history sorted sets.
type Queue struct {
	adapter  redis.RedisAdapter
	config   Config
	handler  Handler
	terminal TerminalHandler
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

type Stats struct {
	Waiting   int64
	Delayed   int64
	Pending   int64
	Completed int64
	Failed    int64
}

func New(adapter redis.RedisAdapter, config Config) (*Queue, error) {
	if config.Name == "" {
		return nil, errors.New("queue name is required")
	}
	if config.ConsumerGroup == "" {
		config.ConsumerGroup = "dispatchers"
	}
	if config.ConsumerName == "" {
		config.ConsumerName = "dispatcher-" + strconv.FormatInt(time.Now().UnixNano(), 10)
	}
	if config.MaxAttempts == 0 {
		config.MaxAttempts = 3
	}
	if config.RetryBackoff == 0 {
		config.RetryBackoff = 2 * time.Second
	}
	if config.VisibilityTimeout == 0 {
		config.VisibilityTimeout = 30 * time.Second
	}
	if config.PollInterval == 0 {
		config.PollInterval = 200 * time.Millisecond
	}
	if config.BatchSize == 0 {
		config.BatchSize = 10
	}
	if config.CompletedRetention == 0 {
		config.CompletedRetention = 24 * time.Hour
	}
	if config.FailedRetention == 0 {
		config.FailedRetention = 7 * 24 * time.Hour
	}

	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		adapter: adapter,
		config:  config,
		ctx:     ctx,
		cancel:  cancel,
	}

	if err := q.adapter.XGroupCreateMkStream(q.config.Name, q.config.ConsumerGroup, "0"); err != nil {
		// BUSYGROUP means the group already exists, which is fine.
		if !isBusyGroup(err) {
			return nil, errors.Wrap(err, "failed to create consumer group")
		}
	}

	return q, nil
}

func isBusyGroup(err error) bool {
	return err != nil && len(err.Error()) >= 9 && err.Error()[:9] == "BUSYGROUP"
}

func (q *Queue) retryKey() string     { return q.config.Name + ":retry" }
func (q *Queue) completedKey() string { return q.config.Name + ":completed" }
func (q *Queue) failedKey() string    { return q.config.Name + ":failed" }

// EnqueueBatch admits all jobs atomically: one XADD per job inside a
// single MULTI/EXEC, so either the whole batch lands on the stream or
// none of it does.
func (q *Queue) EnqueueBatch(ctx context.Context, jobs []model.Job) error {
	if len(jobs) == 0 {
		return nil
	}

	entries := make([]map[string]interface{}, 0, len(jobs))
	for i := range jobs {
		data, err := json.Marshal(&jobs[i])
		if err != nil {
			return errors.Wrapf(err, "failed to marshal job %s", jobs[i].ID)
		}
		entries = append(entries, map[string]interface{}{
			"job":      string(data),
			"attempt":  1,
			"enqueued": time.Now().Unix(),
		})
	}

	stream := q.adapter.Key(q.config.Name)
	_, err := q.adapter.TxPipelined(func(pipe goredis.Pipeliner) error {
		for _, values := range entries {
			pipe.XAdd(ctx, &goredis.XAddArgs{
				Stream: stream,
				ID:     "*",
				Values: values,
			})
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "failed to enqueue batch")
	}
	return nil
}

// Consume starts the single consume loop. Call at most once.
func (q *Queue) Consume(handler Handler) error {
	if handler == nil {
		return errors.New("handler is required")
	}
	q.handler = handler

	q.wg.Add(1)
	go q.consumeLoop()
	return nil
}

// OnTerminalFailure registers the callback for exhausted jobs. Must be
// called before Consume.
func (q *Queue) OnTerminalFailure(fn TerminalHandler) {
	q.terminal = fn
}

func (q *Queue) consumeLoop() {
	defer q.wg.Done()

	ticker := time.NewTicker(q.config.PollInterval)
	defer ticker.Stop()

	janitor := time.NewTicker(time.Minute)
	defer janitor.Stop()

	for {
		select {
		case <-q.ctx.Done():
			return
		case <-janitor.C:
			q.purgeHistory()
		case <-ticker.C:
			q.requeueDue()
			q.processNew()
			q.claimStuck()
		}
	}
}

// requeueDue moves jobs whose backoff has elapsed from the retry set
// back onto the stream. Re-added jobs keep their attempt count.
func (q *Queue) requeueDue() {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	members, err := q.adapter.ZRangeByScore(q.retryKey(), "-inf", now, q.config.BatchSize)
	if err != nil {
		logger.Error("queue: failed to read retry set", "error", err)
		return
	}

	stream := q.adapter.Key(q.config.Name)
	retry := q.adapter.Key(q.retryKey())
	for _, member := range members {
		var env envelope
		if err := json.Unmarshal([]byte(member), &env); err != nil {
			logger.Error("queue: dropping unreadable retry entry", "error", err)
			_ = q.adapter.ZRem(q.retryKey(), member)
			continue
		}

		// XADD and ZREM in one transaction so the job cannot be lost
		// between the two.
		_, err := q.adapter.TxPipelined(func(pipe goredis.Pipeliner) error {
			pipe.XAdd(q.ctx, &goredis.XAddArgs{
				Stream: stream,
				ID:     "*",
				Values: map[string]interface{}{
					"job":      env.Job,
					"attempt":  env.Attempt,
					"enqueued": env.Enqueued,
				},
			})
			pipe.ZRem(q.ctx, retry, member)
			return nil
		})
		if err != nil {
			logger.Error("queue: failed to requeue job", "error", err)
		}
	}
}

func (q *Queue) processNew() {
	messages, err := q.adapter.XReadGroup(
		q.config.ConsumerGroup,
		q.config.ConsumerName,
		q.config.Name,
		">",
		q.config.BatchSize,
	)
	if err != nil {
		if err != redis.NilError {
			logger.Error("queue: failed to read stream", "error", err)
		}
		return
	}

	for _, streamMsg := range messages {
		job, err := q.decode(streamMsg)
		if err != nil {
			logger.Error("queue: dropping undecodable entry", "id", streamMsg.ID, "error", err)
			q.ack(streamMsg.ID)
			continue
		}
		q.handle(job)
	}
}

// claimStuck takes over entries another consumer read but never acked,
// after they have sat idle past the visibility timeout.
func (q *Queue) claimStuck() {
	pending, err := q.adapter.XPending(q.config.Name, q.config.ConsumerGroup)
	if err != nil || pending == nil || pending.Count == 0 {
		return
	}

	pendingExt, err := q.adapter.XPendingExt(q.config.Name, q.config.ConsumerGroup, "-", "+", 100)
	if err != nil || len(pendingExt) == 0 {
		return
	}

	var stuck []string
	for _, p := range pendingExt {
		if p.Idle >= q.config.VisibilityTimeout && p.Consumer != q.config.ConsumerName {
			stuck = append(stuck, p.ID)
		}
	}
	if len(stuck) == 0 {
		return
	}

	messages, err := q.adapter.XClaim(
		q.config.Name,
		q.config.ConsumerGroup,
		q.config.ConsumerName,
		q.config.VisibilityTimeout,
		stuck...,
	)
	if err != nil {
		return
	}

	for _, streamMsg := range messages {
		job, err := q.decode(streamMsg)
		if err != nil {
			q.ack(streamMsg.ID)
			continue
		}
		q.handle(job)
	}
}

func (q *Queue) handle(job *Job) {
	ctx, cancel := context.WithTimeout(q.ctx, q.config.VisibilityTimeout)
	defer cancel()

	err := q.handler(ctx, job)
	if err == nil {
		q.complete(job)
		return
	}
	q.retryOrFail(job, err)
}

// complete acks the entry and records it in completed history.
func (q *Queue) complete(job *Job) {
	member, merr := q.historyMember(job, "")
	if merr == nil {
		_ = q.adapter.ZAdd(q.completedKey(), redis.Z{
			Score:  float64(time.Now().UnixMilli()),
			Member: member,
		})
	}
	q.ack(job.ID)
}

// retryOrFail parks the job for its next attempt, or exhausts it.
// Either way the stream entry is acked and deleted: the retry set and
// failed history are now the job's home.
func (q *Queue) retryOrFail(job *Job, cause error) {
	if job.Attempt < q.config.MaxAttempts {
		delay := q.config.RetryBackoff << (job.Attempt - 1)
		due := time.Now().Add(delay)

		env := envelope{Attempt: job.Attempt + 1, Enqueued: job.Enqueued.Unix()}
		data, err := json.Marshal(&job.Payload)
		if err == nil {
			env.Job = string(data)
			member, _ := json.Marshal(&env)
			if zerr := q.adapter.ZAdd(q.retryKey(), redis.Z{
				Score:  float64(due.UnixMilli()),
				Member: string(member),
			}); zerr != nil {
				// Leave the entry pending; the reclaim path retries it.
				logger.Error("queue: failed to schedule retry", "job", job.Payload.ID, "error", zerr)
				return
			}

			logger.Info("queue: attempt failed, retry scheduled",
				"job", job.Payload.ID,
				"attempt", job.Attempt,
				"next_in", delay.String(),
				"error", cause,
			)
			q.ack(job.ID)
			return
		}

		// A payload that cannot be re-encoded can never be parked for
		// another attempt; exhaust it rather than acking it away.
		logger.Error("queue: failed to encode retry envelope", "job", job.Payload.ID, "error", err)
	}

	q.fail(job, cause)
}

// fail records the job in failed history, acks it and fires the
// terminal callback. This is the only path out for an exhausted job.
func (q *Queue) fail(job *Job, cause error) {
	member, merr := q.historyMember(job, cause.Error())
	if merr == nil {
		_ = q.adapter.ZAdd(q.failedKey(), redis.Z{
			Score:  float64(time.Now().UnixMilli()),
			Member: member,
		})
	}
	q.ack(job.ID)

	logger.Error("queue: job exhausted all attempts",
		"job", job.Payload.ID,
		"attempts", job.Attempt,
		"error", cause,
	)

	if q.terminal != nil {
		ctx, cancel := context.WithTimeout(context.Background(), q.config.VisibilityTimeout)
		defer cancel()
		q.terminal(ctx, job, cause)
	}
}

func (q *Queue) historyMember(job *Job, failure string) (string, error) {
	data, err := json.Marshal(&job.Payload)
	if err != nil {
		return "", err
	}
	member, err := json.Marshal(&historyEntry{
		Job:      string(data),
		Attempts: job.Attempt,
		Failure:  failure,
		At:       time.Now().Unix(),
	})
	if err != nil {
		return "", err
	}
	return string(member), nil
}

func (q *Queue) ack(id string) {
	if err := q.adapter.XAck(q.config.Name, q.config.ConsumerGroup, id); err != nil {
		logger.Error("queue: failed to ack", "id", id, "error", err)
		return
	}
	_ = q.adapter.XDel(q.config.Name, id)
}

// purgeHistory drops history entries older than their retention.
func (q *Queue) purgeHistory() {
	now := time.Now()

	cutoff := strconv.FormatInt(now.Add(-q.config.CompletedRetention).UnixMilli(), 10)
	if n, err := q.adapter.ZRemRangeByScore(q.completedKey(), "-inf", cutoff); err == nil && n > 0 {
		logger.Debug("queue: purged completed history", "removed", n)
	}

	cutoff = strconv.FormatInt(now.Add(-q.config.FailedRetention).UnixMilli(), 10)
	if n, err := q.adapter.ZRemRangeByScore(q.failedKey(), "-inf", cutoff); err == nil && n > 0 {
		logger.Debug("queue: purged failed history", "removed", n)
	}
}

func (q *Queue) Stats() (*Stats, error) {
	waiting, err := q.adapter.XLen(q.config.Name)
	if err != nil {
		return nil, err
	}

	stats := &Stats{Waiting: waiting}

	if delayed, err := q.adapter.ZCard(q.retryKey()); err == nil {
		stats.Delayed = delayed
	}
	if completed, err := q.adapter.ZCard(q.completedKey()); err == nil {
		stats.Completed = completed
	}
	if failed, err := q.adapter.ZCard(q.failedKey()); err == nil {
		stats.Failed = failed
	}
	if pending, err := q.adapter.XPending(q.config.Name, q.config.ConsumerGroup); err == nil && pending != nil {
		stats.Pending = pending.Count
	}

	return stats, nil
}

func (q *Queue) Stop(timeout time.Duration) error {
	q.cancel()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return errors.New("timeout waiting for queue to stop")
	}
}

type envelope struct {
	Job      string `json:"job"`
	Attempt  int    `json:"attempt"`
	Enqueued int64  `json:"enqueued"`
}

type historyEntry struct {
	Job      string `json:"job"`
	Attempts int    `json:"attempts"`
	Failure  string `json:"failure,omitempty"`
	At       int64  `json:"at"`
}

func (q *Queue) decode(streamMsg redis.StreamMessage) (*Job, error) {
	job := &Job{ID: streamMsg.ID, Attempt: 1}

	raw, ok := streamMsg.Values["job"].(string)
	if !ok {
		return nil, errors.New("stream entry missing job payload")
	}
	if err := json.Unmarshal([]byte(raw), &job.Payload); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal job payload")
	}

	if attempt, ok := streamMsg.Values["attempt"].(string); ok {
		if n, err := strconv.Atoi(attempt); err == nil && n > 0 {
			job.Attempt = n
		}
	}
	if enqueued, ok := streamMsg.Values["enqueued"].(string); ok {
		if unix, err := strconv.ParseInt(enqueued, 10, 64); err == nil {
			job.Enqueued = time.Unix(unix, 0)
		}
	}
	if job.Enqueued.IsZero() {
		job.Enqueued = time.Now()
	}

	return job, nil
}
