package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/wavecast/broadcast-gateway/internal/config"
	"github.com/wavecast/broadcast-gateway/internal/model"
	"github.com/wavecast/broadcast-gateway/internal/queue"
	"github.com/wavecast/broadcast-gateway/internal/repository"
	"github.com/wavecast/broadcast-gateway/pkg/logger"
	"github.com/wavecast/broadcast-gateway/pkg/pg"
	"github.com/wavecast/broadcast-gateway/pkg/redis"
)

// Usage:
//
//	cli migrate --env=.env --dir=./migrations
//	cli seed    --env=.env
//	cli stats   --env=.env
func main() {
	err := config.Load(getEnvPath())
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return
	}

	switch command() {
	case "migrate":
		runMigrate()
	case "seed":
		runSeed()
	case "stats":
		runStats()
	default:
		logger.Error("unknown command, expected migrate, seed or stats")
	}
}

func runMigrate() {
	pgConf := pg.Config{
		User:     config.Get().PostgresWriteUser,
		Host:     config.Get().PostgresWriteHost,
		Port:     config.Get().PostgresWritePort,
		Password: config.Get().PostgresWritePassword,
		Database: config.Get().PostgresWriteDatabase,
	}
	err := pg.Migrate(pgConf, getMigrationPath())
	if err != nil {
		logger.Error("migration: error running migrations", "error", err)
	}
}

// runSeed creates a dev workspace with a couple of contacts so a fresh
// environment has something to broadcast to.
func runSeed() {
	db, err := connectPg()
	if err != nil {
		logger.Error("failed connecting to pg", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	workspaces := repository.NewWorkspaceRepository(db)
	contacts := repository.NewContactRepository(db)

	w := &model.Workspace{
		ID:     uuid.NewString(),
		Name:   "dev workspace",
		Active: true,
	}
	if _, err := workspaces.Create(ctx, w); err != nil {
		logger.Error("seed: failed to create workspace", "error", err)
		return
	}

	for i, phone := range []string{"+15550000001", "+15550000002", "+15550000003"} {
		c := &model.Contact{
			ID:          uuid.NewString(),
			WorkspaceID: w.ID,
			Name:        fmt.Sprintf("dev contact %d", i+1),
			Phone:       phone,
			Tag:         "dev",
		}
		if _, err := contacts.Create(ctx, c); err != nil {
			logger.Error("seed: failed to create contact", "phone", phone, "error", err)
			return
		}
	}

	logger.Info("seed: done", "workspace_id", w.ID)
	fmt.Println(w.ID)
}

func runStats() {
	redisAdap, err := redis.NewRedisAdapter("cli", config.Get().RedisUniversalKeyPrefix, &redis.Options{
		Addrs:      []string{config.Get().RedisAddr},
		ClientName: "cli",
		DB:         config.Get().RedisDatabase,
		Username:   config.Get().RedisUsername,
		Password:   config.Get().RedisPassword,
	})
	if err != nil {
		logger.Error("failed connecting to redis", "error", err)
		return
	}

	q, err := queue.New(redisAdap, queue.Config{
		Name:          config.Get().QueueName,
		ConsumerGroup: config.Get().QueueConsumerGroup,
		ConsumerName:  "cli",
	})
	if err != nil {
		logger.Error("failed creating queue", "error", err)
		return
	}

	stats, err := q.Stats()
	if err != nil {
		logger.Error("failed reading queue stats", "error", err)
		return
	}

	fmt.Printf("queue:     %s\n", config.Get().QueueName)
	fmt.Printf("waiting:   %d\n", stats.Waiting)
	fmt.Printf("delayed:   %d\n", stats.Delayed)
	fmt.Printf("pending:   %d\n", stats.Pending)
	fmt.Printf("completed: %d\n", stats.Completed)
	fmt.Printf("failed:    %d\n", stats.Failed)
}

func connectPg() (*pg.DB, error) {
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
	return pg.CreateReadWrite(readConf, writeConf, false)
}

func command() string {
	for _, v := range os.Args[1:] {
		if !strings.HasPrefix(v, "--") {
			return v
		}
	}
	return "migrate"
}

func getEnvPath() string {
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
	if _, err := os.Open(".env"); err != nil {
		return ""
	}
	return ".env"
}

func getMigrationPath() string {
	for _, v := range os.Args {
		if strings.Contains(v, "--dir=") {
			s := strings.Split(v, "=")
			if _, err := os.Open(s[1]); err != nil {
				logger.Error("failed to open the passed migration dir, got error" + err.Error())
				return ""
			}
			return s[1]
		}
	}
	if _, err := os.Open("./migrations"); err != nil {
		logger.Error("failed to open the default migration dir, got error" + err.Error())
		return ""
	}
	return "./migrations"
}
