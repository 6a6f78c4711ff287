package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/wavecast/broadcast-gateway/internal/channel"
	"github.com/wavecast/broadcast-gateway/internal/channel/sim"
	"github.com/wavecast/broadcast-gateway/internal/config"
	"github.com/wavecast/broadcast-gateway/internal/dispatch"
	"github.com/wavecast/broadcast-gateway/internal/queue"
	"github.com/wavecast/broadcast-gateway/internal/reconcile"
	"github.com/wavecast/broadcast-gateway/internal/repository"
	"github.com/wavecast/broadcast-gateway/pkg/logger"
	"github.com/wavecast/broadcast-gateway/pkg/pg"
	"github.com/wavecast/broadcast-gateway/pkg/prom"
	"github.com/wavecast/broadcast-gateway/pkg/redis"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {

	err := config.Load(argContainsEnvPath())
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return
	}

	readConf := pg.Config{
		User:     config.Get().PostgresReadUser,
		Host:     config.Get().PostgresReadHost,
		Port:     config.Get().PostgresReadPort,
		Password: config.Get().PostgresReadPassword,
		Database: config.Get().PostgresReadDatabase,
	}
	writeConf := pg.Config{
		User:     config.Get().PostgresWriteUser,
		Host:     config.Get().PostgresWriteHost,
		Port:     config.Get().PostgresWritePort,
		Password: config.Get().PostgresWritePassword,
		Database: config.Get().PostgresWriteDatabase,
	}

	pgDebug := false
	if config.Get().AppEnv == "dev" {
		pgDebug = true
	}
	db, err := pg.CreateReadWrite(readConf, writeConf, pgDebug)
	if err != nil {
		logger.Error("failed connecting to pg", "error", err)
		return
	}

	redisAdap, err := redis.NewRedisAdapter("default", config.Get().RedisUniversalKeyPrefix, &redis.Options{
		Addrs:      []string{config.Get().RedisAddr},
		ClientName: "default",
		DB:         config.Get().RedisDatabase,
		Username:   config.Get().RedisUsername,
		Password:   config.Get().RedisPassword,
	})
	if err != nil {
		logger.Error("failed connecting to redis", "error", err)
		return
	}

	q, err := queue.New(redisAdap, queue.Config{
		Name:               config.Get().QueueName,
		ConsumerGroup:      config.Get().QueueConsumerGroup,
		ConsumerName:       config.Get().QueueConsumerName,
		MaxAttempts:        config.Get().QueueMaxAttempts,
		RetryBackoff:       config.Get().QueueRetryBackoff,
		VisibilityTimeout:  config.Get().QueueVisibilityTimeout,
		PollInterval:       config.Get().QueuePollInterval,
		BatchSize:          config.Get().QueueBatchSize,
		CompletedRetention: config.Get().QueueCompletedRetention,
		FailedRetention:    config.Get().QueueFailedRetention,
	})
	if err != nil {
		logger.Error("failed creating queue", "error", err)
		return
	}

	broadcastRepo := repository.NewBroadcastRepository(db)
	contactRepo := repository.NewContactRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	workspaceRepo := repository.NewWorkspaceRepository(db)
	sessionRepo := repository.NewChannelSessionRepository(db)

	reconciler := reconcile.New(db, broadcastRepo, messageRepo)
	ingestor := channel.NewIngestor(contactRepo, messageRepo, reconciler,
		config.Get().InboundBufferSize, config.Get().InboundWorkers)
	transport := sim.New(sim.Config{
		DeliveryRate: config.Get().SimDeliveryRate,
		MinDelay:     config.Get().SimMinDelay,
		MaxDelay:     config.Get().SimMaxDelay,
		PairDelay:    500 * time.Millisecond,
		ReceiptDelay: time.Second,
	})
	registry := channel.NewRegistry(transport, sessionRepo, workspaceRepo,
		ingestor.Hooks(), config.Get().ChannelReconnectDelay)

	go func() {
		if err := ingestor.Start(); err != nil {
			logger.Error("failed to start inbound ingestor", "error", err)
		}
	}()

	sender := &channelSender{registry: registry}
	worker := dispatch.New(q, workspaceRepo, sender, reconciler, config.Get().DispatchInterval)

	var hostname string
	hostname, err = os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	err = prom.Create(hostname, config.Get().AppEnv, config.Get().PromNamespace)
	if err != nil {
		logger.Error("failed to create prometheus metrics", "error", err)
		return
	}

	go func() {
		prom.ListenAndServer(config.Get().MetricsAddr, "/metrics")
	}()

	if err := worker.Start(); err != nil {
		logger.Error("failed to start dispatch worker", "error", err)
		return
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	select {
	case <-c:
		worker.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		registry.Shutdown(shutdownCtx)
		cancel()
		ingestor.Stop()
	}
}

// channelSender sends through the registry, dialing the workspace's
// session with stored credentials when none is live yet. A workspace
// that was never paired comes up qr_ready at best, so the send still
// fails; the queue's retry policy owns that outcome.
type channelSender struct {
	registry *channel.Registry
}

func (s *channelSender) Send(ctx context.Context, workspaceID string, in channel.SendInput) (*channel.SendResult, error) {
	res, err := s.registry.Send(ctx, workspaceID, in)
	if err != channel.ErrNotConnected {
		return res, err
	}

	if _, dialErr := s.registry.Connect(ctx, workspaceID); dialErr != nil {
		logger.Warn("dispatcher: channel dial failed", "workspace_id", workspaceID, "error", dialErr)
		return nil, err
	}
	return s.registry.Send(ctx, workspaceID, in)
}

func argContainsEnvPath() string {
	for _, v := range os.Args {
		if strings.Contains(v, "--env=") {
			s := strings.Split(v, "=")
			if _, err := os.Open(s[1]); err != nil {
				logger.Error("failed to open the passed env file, got error" + err.Error())
				return ""
			}
			return s[1]
		}
	}
	return ""
}
