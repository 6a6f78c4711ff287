package config

import (
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/wavecast/broadcast-gateway/pkg/logger"
)

const ConfigTagName = "env"
const ConfigDefaultTagName = "default"

var config *Config

// Config holds every runtime setting of the gateway. Only this struct
// may be used to read configuration values; no direct access to env or
// any other config source should be made elsewhere.
type Config struct {
	AppEnv   string `env:"APP_ENV" default:"dev"`
	AppName  string `env:"APP_NAME" default:"broadcast_gateway"`
	AppDebug bool   `env:"APP_DEBUG" default:"1"`

	HttpListenAddr         string `env:"HTTP_LISTEN_ADDR" validation:"mustExists"`
	HttpServerReadTimeout  int    `env:"HTTP_SERVER_READ_TIMEOUT"`
	HttpServerWriteTimeout int    `env:"HTTP_SERVER_WRITE_TIMEOUT"`

	PostgresReadHost     string `env:"POSTGRES_READ_HOST"`
	PostgresReadPort     string `env:"POSTGRES_READ_PORT"`
	PostgresReadUser     string `env:"POSTGRES_READ_USER"`
	PostgresReadPassword string `env:"POSTGRES_READ_PASSWORD"`
	PostgresReadDatabase string `env:"POSTGRES_READ_DBNAME"`

	PostgresWriteHost     string `env:"POSTGRES_WRITE_HOST"`
	PostgresWritePort     string `env:"POSTGRES_WRITE_PORT"`
	PostgresWriteUser     string `env:"POSTGRES_WRITE_USER"`
	PostgresWritePassword string `env:"POSTGRES_WRITE_PASSWORD"`
	PostgresWriteDatabase string `env:"POSTGRES_WRITE_DBNAME"`

	RedisAddr               string `env:"REDIS_ADDR"`
	RedisUsername           string `env:"REDIS_USER"`
	RedisPassword           string `env:"REDIS_PASS"`
	RedisDatabase           int    `env:"REDIS_DATABASE"`
	RedisUniversalKeyPrefix string `env:"REDIS_UNIVERSAL_KEY_PREFIX"`

	PromNamespace string `env:"PROM_NAMESPACE" default:"broadcast_gateway"`
	MetricsAddr   string `env:"METRICS_ADDR" default:":9100"`

	QueueName               string        `env:"QUEUE_NAME" default:"broadcast"`
	QueueConsumerGroup      string        `env:"QUEUE_CONSUMER_GROUP" default:"dispatch"`
	QueueConsumerName       string        `env:"QUEUE_CONSUMER_NAME" default:"dispatcher"`
	QueueMaxAttempts        int           `env:"QUEUE_MAX_ATTEMPTS" default:"3"`
	QueueRetryBackoff       time.Duration `env:"QUEUE_RETRY_BACKOFF" default:"2s"`
	QueueVisibilityTimeout  time.Duration `env:"QUEUE_VISIBILITY_TIMEOUT" default:"30s"`
	QueuePollInterval       time.Duration `env:"QUEUE_POLL_INTERVAL" default:"200ms"`
	QueueBatchSize          int64         `env:"QUEUE_BATCH_SIZE" default:"10"`
	QueueCompletedRetention time.Duration `env:"QUEUE_COMPLETED_RETENTION" default:"24h"`
	QueueFailedRetention    time.Duration `env:"QUEUE_FAILED_RETENTION" default:"168h"`

	// DispatchInterval is the hard pacing cap for the single dispatch
	// consumer: one job per interval, one in flight at a time. The
	// channel is a stateful single connection per workspace and the
	// wire protocol penalizes bursty automated traffic.
	DispatchInterval time.Duration `env:"DISPATCH_INTERVAL" default:"1s"`

	ChannelReconnectDelay time.Duration `env:"CHANNEL_RECONNECT_DELAY" default:"2s"`
	InboundWorkers        int           `env:"INBOUND_WORKERS" default:"4"`
	InboundBufferSize     int           `env:"INBOUND_BUFFER_SIZE" default:"1024"`

	SimDeliveryRate float64       `env:"SIM_DELIVERY_RATE" default:"0.98"`
	SimMinDelay     time.Duration `env:"SIM_MIN_DELAY" default:"50ms"`
	SimMaxDelay     time.Duration `env:"SIM_MAX_DELAY" default:"200ms"`
}

func Load(path string) error {
	logger.Info("loading configs..", "path", path)
	c := &Config{}
	var err error
	if path != "" {
		logger.Info("trying to publish env from file", "path", path)
		err = godotenv.Load(path)
		if err != nil {
			return errors.New("failed to load configuration file " + path + " error: " + err.Error())
		}
	}

	_, err = env.UnmarshalFromEnviron(c)
	if err != nil {
		return errors.New("failed to map env variables to Configuration object " + " error: " + err.Error())
	}

	config = c
	return nil
}

func Get() *Config {
	if config == nil {
		logger.Panic("Config is not initialized")
	}
	return config
}
