package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/wavecast/broadcast-gateway/internal/channel"
	"github.com/wavecast/broadcast-gateway/internal/queue"
	"github.com/wavecast/broadcast-gateway/internal/repository"
	"github.com/wavecast/broadcast-gateway/pkg/logger"
	"github.com/wavecast/broadcast-gateway/pkg/prom"
	"golang.org/x/time/rate"
)

const ReportInterval = 30 * time.Second
const ShutdownTimeout = time.Minute

// ErrWorkspaceInactive gates dispatch for paused workspaces. It is
// retryable on purpose: a workspace reactivated within the job's
// attempt budget picks up where it left off, one deactivated for good
// drains through terminal failures.
var ErrWorkspaceInactive = errors.New("workspace is inactive")

// Sender routes one outbound message; the channel registry implements
// it in production.
type Sender interface {
	Send(ctx context.Context, workspaceID string, in channel.SendInput) (*channel.SendResult, error)
}

// Recorder is the reconciler surface the worker needs.
type Recorder interface {
	RecordSuccess(ctx context.Context, broadcastID, contactID, providerMessageID string) (bool, error)
	RecordFailure(ctx context.Context, broadcastID, contactID, reason string) (bool, error)
}

// Worker is the single dispatch consumer. One job leaves per pacing
// interval, enforced by the limiter before every send, so the provider
// sees at most one message per interval regardless of queue depth.
type Worker struct {
	queue      *queue.Queue
	workspaces *repository.WorkspaceRepository
	sender     Sender
	recorder   Recorder
	limiter    *rate.Limiter
	metrics    *Metrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(
	q *queue.Queue,
	workspaces *repository.WorkspaceRepository,
	sender Sender,
	recorder Recorder,
	interval time.Duration,
) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		queue:      q,
		workspaces: workspaces,
		sender:     sender,
		recorder:   recorder,
		limiter:    rate.NewLimiter(rate.Every(interval), 1),
		metrics:    NewMetrics(),
		ctx:        ctx,
		cancel:     cancel,
	}
}

func (w *Worker) Start() error {
	logger.Info("starting dispatch worker...")

	w.queue.OnTerminalFailure(w.onTerminalFailure)
	if err := w.queue.Consume(w.handle); err != nil {
		return errors.Wrap(err, "failed to start consumer")
	}

	w.wg.Add(1)
	go w.reporter()

	logger.Info("dispatch worker started")
	return nil
}

// handle processes one job: pace, gate, send, reconcile.
func (w *Worker) handle(ctx context.Context, job *queue.Job) error {
	if err := w.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "pacing interrupted")
	}

	workspace, err := w.workspaces.Get(ctx, job.Payload.WorkspaceID)
	if err != nil {
		return errors.Wrap(err, "failed to load workspace")
	}
	if !workspace.Active {
		w.metrics.RecordRetry()
		prom.IncJobOutcome("retry")
		prom.IncRetries()
		return ErrWorkspaceInactive
	}

	start := time.Now()
	res, err := w.sender.Send(ctx, job.Payload.WorkspaceID, channel.SendInput{
		To:       job.Payload.Phone,
		Content:  job.Payload.Content,
		MediaURL: job.Payload.MediaURL,
	})
	prom.ObserveSendDuration(time.Since(start).Seconds())

	if err != nil {
		w.metrics.RecordRetry()
		prom.IncJobOutcome("retry")
		prom.IncRetries()
		return errors.Wrap(err, "send failed")
	}

	if _, err := w.recorder.RecordSuccess(ctx, job.Payload.BroadcastID, job.Payload.ContactID, res.ProviderMessageID); err != nil {
		// The send went out but the outcome is not recorded yet. Let
		// the queue redeliver; RecordSuccess replays are no-ops.
		return errors.Wrap(err, "failed to record success")
	}

	w.metrics.RecordSent(time.Since(start))
	prom.IncJobOutcome("success")
	return nil
}

// onTerminalFailure records the recipient as failed after the job's
// last attempt. The queue guarantees a single call per job.
func (w *Worker) onTerminalFailure(ctx context.Context, job *queue.Job, cause error) {
	w.metrics.RecordFailure()
	prom.IncJobOutcome("failed")

	if _, err := w.recorder.RecordFailure(ctx, job.Payload.BroadcastID, job.Payload.ContactID, cause.Error()); err != nil {
		logger.Error("dispatch: failed to record terminal failure",
			"broadcast_id", job.Payload.BroadcastID,
			"contact_id", job.Payload.ContactID,
			"error", err,
		)
	}
}

func (w *Worker) reporter() {
	defer w.wg.Done()

	ticker := time.NewTicker(ReportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.report()
		}
	}
}

func (w *Worker) report() {
	stats := w.metrics.Stats()
	logger.Info("dispatch metrics",
		"total_sent", stats["total_sent"],
		"total_retried", stats["total_retried"],
		"total_failed", stats["total_failed"],
		"rate_per_second", stats["rate_per_second"],
		"avg_duration_ms", stats["avg_duration_ms"],
	)

	qs, err := w.queue.Stats()
	if err != nil {
		logger.Warn("dispatch: queue stats unavailable", "error", err)
		return
	}
	prom.SetQueueDepth("waiting", float64(qs.Waiting))
	prom.SetQueueDepth("delayed", float64(qs.Delayed))
	prom.SetQueueDepth("pending", float64(qs.Pending))
	logger.Info("queue stats",
		"waiting", qs.Waiting,
		"delayed", qs.Delayed,
		"pending", qs.Pending,
		"completed", qs.Completed,
		"failed", qs.Failed,
	)
}

func (w *Worker) Stop() {
	logger.Info("shutting down dispatch worker...")

	if err := w.queue.Stop(ShutdownTimeout); err != nil {
		logger.Error("dispatch: error stopping queue", "error", err)
	}

	w.cancel()
	w.wg.Wait()
	w.report()

	logger.Info("dispatch worker stopped")
}
