package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type (
	Config struct {
		App             App
		HTTP            HTTP
		Log             Log
		PG              PG
		AWS             AWS
		SES             SES
		SNS             SNS
		Chat            Chat
		Archive         Archive
		Channels        Channels
		Templates       Templates
		Dispatch        Dispatch
		OutboxRelay     OutboxRelay
		RetrySweep      RetrySweep
		Kafka           Kafka
		KafkaController KafkaController
		Metrics         Metrics
		Swagger         Swagger
	}

	App struct {
		Name    string `env:"APP_NAME" envDefault:"notify-router"`
		Version string `env:"APP_VERSION" envDefault:"1.0.0"`
	}

	HTTP struct {
		Port            string        `env:"HTTP_PORT,required"`
		UsePreforkMode  bool          `env:"HTTP_USE_PREFORK_MODE" envDefault:"false"`
		ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"5s"`
		WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"5s"`
		ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"3s"`
		BodyLimit       int           `env:"HTTP_BODY_LIMIT" envDefault:"1048576"`
	}

	Log struct {
		Level string `env:"LOG_LEVEL,required"`
	}

	PG struct {
		PoolMax       int    `env:"PG_POOL_MAX,required"`
		URL           string `env:"PG_URL,required"`
		MigrateOnBoot bool   `env:"PG_MIGRATE_ON_BOOT" envDefault:"false"`
	}

	AWS struct {
		Region         string        `env:"AWS_REGION" envDefault:"us-east-1"`
		Endpoint       string        `env:"AWS_ENDPOINT"`
		AccessKey      string        `env:"AWS_ACCESS_KEY_ID"`
		SecretKey      string        `env:"AWS_SECRET_ACCESS_KEY"`
		UsePathStyle   bool          `env:"AWS_S3_USE_PATH_STYLE" envDefault:"false"`
		CfgLoadTimeout time.Duration `env:"AWS_LOAD_CFG_TIMEOUT" envDefault:"10s"`
	}

	SES struct {
		From             string `env:"SES_FROM_ADDRESS,required"`
		ConfigurationSet string `env:"SES_CONFIGURATION_SET"`
	}

	SNS struct {
		Enabled  bool   `env:"SNS_ENABLED" envDefault:"true"`
		SenderID string `env:"SNS_SENDER_ID"`
	}

	Chat struct {
		Enabled bool `env:"CHAT_ENABLED" envDefault:"false"`
		// DefaultWebhookURL receives every chat delivery; empty leaves chat destinations unresolved.
		DefaultWebhookURL string        `env:"CHAT_DEFAULT_WEBHOOK_URL"`
		Timeout           time.Duration `env:"CHAT_TIMEOUT" envDefault:"10s"`
	}

	Archive struct {
		Enabled bool   `env:"ARCHIVE_ENABLED" envDefault:"false"`
		Bucket  string `env:"ARCHIVE_BUCKET"`
	}

	Channels struct {
		EmailRatePerSecond  float64       `env:"CHANNEL_EMAIL_RATE_PER_SECOND" envDefault:"14"`
		EmailBurst          int           `env:"CHANNEL_EMAIL_BURST" envDefault:"14"`
		SMSRatePerSecond    float64       `env:"CHANNEL_SMS_RATE_PER_SECOND" envDefault:"20"`
		SMSBurst            int           `env:"CHANNEL_SMS_BURST" envDefault:"20"`
		ChatRatePerSecond   float64       `env:"CHANNEL_CHAT_RATE_PER_SECOND" envDefault:"1"`
		ChatBurst           int           `env:"CHANNEL_CHAT_BURST" envDefault:"5"`
		BreakerFailures     uint32        `env:"CHANNEL_BREAKER_CONSECUTIVE_FAILURES" envDefault:"5"`
		BreakerOpenTimeout  time.Duration `env:"CHANNEL_BREAKER_OPEN_TIMEOUT" envDefault:"30s"`
		BreakerHalfOpenReqs uint32        `env:"CHANNEL_BREAKER_HALF_OPEN_REQUESTS" envDefault:"1"`
	}

	Templates struct {
		// Path to a JSON file of templates keyed by id; empty disables rendering.
		Path string `env:"TEMPLATES_PATH"`
	}

	Dispatch struct {
		Workers       int           `env:"DISPATCH_WORKERS" envDefault:"0"` // 0 - GOMAXPROCS
		UpdateTimeout time.Duration `env:"DISPATCH_UPDATE_TIMEOUT" envDefault:"5s"`
	}

	Kafka struct {
		Brokers           []string      `env:"KAFKA_BROKERS,required"`
		GroupID           string        `env:"KAFKA_GROUP_ID,required"`
		Topic             string        `env:"KAFKA_TOPIC,required"`
		ProducerBatchWait time.Duration `env:"KAFKA_PRODUCER_BATCH_TIMEOUT" envDefault:"10ms"`
		ConsumerMaxWait   time.Duration `env:"KAFKA_CONSUMER_MAX_WAIT" envDefault:"500ms"`
	}

	OutboxRelay struct {
		PollInterval        time.Duration `env:"OUTBOX_RELAY_POLL_INTERVAL" envDefault:"2s"`
		MarkFailedInterval  time.Duration `env:"OUTBOX_RELAY_MARK_FAILED_INTERVAL" envDefault:"2m"`
		CleanupInterval     time.Duration `env:"OUTBOX_RELAY_CLEANUP_INTERVAL" envDefault:"24h"`
		CleanupOlderThan    time.Duration `env:"OUTBOX_RELAY_CLEANUP_OLDER_THAN" envDefault:"168h"`
		StuckAfter          time.Duration `env:"OUTBOX_RELAY_STUCK_AFTER" envDefault:"5m"`
		ProcessBatchTimeout time.Duration `env:"OUTBOX_RELAY_PROCESS_BATCH_TIMEOUT" envDefault:"15s"`
		ShutdownTimeout     time.Duration `env:"OUTBOX_RELAY_SHUTDOWN_TIMEOUT" envDefault:"5s"`
		BatchSize           int           `env:"OUTBOX_RELAY_BATCH_SIZE" envDefault:"100"`
		MaxRetries          int           `env:"OUTBOX_RELAY_MAX_RETRIES" envDefault:"3"`
	}

	RetrySweep struct {
		Interval             time.Duration `env:"RETRY_SWEEP_INTERVAL" envDefault:"30s"`
		MaxAttempts          int           `env:"RETRY_SWEEP_MAX_ATTEMPTS" envDefault:"5"`
		BaseDelay            time.Duration `env:"RETRY_SWEEP_BASE_DELAY" envDefault:"30s"`
		MaxDelay             time.Duration `env:"RETRY_SWEEP_MAX_DELAY" envDefault:"30m"`
		RecoveryInterval     time.Duration `env:"RETRY_SWEEP_RECOVERY_INTERVAL" envDefault:"1m"`
		StuckProcessingAfter time.Duration `env:"RETRY_SWEEP_STUCK_PROCESSING_AFTER" envDefault:"10m"`
		BatchSize            int           `env:"RETRY_SWEEP_BATCH_SIZE" envDefault:"100"`
	}

	KafkaController struct {
		BatchSize          int           `env:"KAFKA_CONTROLLER_BATCH_SIZE" envDefault:"100"`
		BatchWindow        time.Duration `env:"KAFKA_CONTROLLER_BATCH_WINDOW" envDefault:"200ms"` // aggregation window per batch
		CommitTimeout      time.Duration `env:"KAFKA_CONTROLLER_COMMIT_TIMEOUT" envDefault:"2s"`
		ProcessTimeout     time.Duration `env:"KAFKA_CONTROLLER_PROCESS_TIMEOUT" envDefault:"30s"`
		RedeliveryAttempts int           `env:"KAFKA_CONTROLLER_REDELIVERY_ATTEMPTS" envDefault:"3"`
		RedeliveryInitial  time.Duration `env:"KAFKA_CONTROLLER_REDELIVERY_INITIAL" envDefault:"500ms"`
		RedeliveryMax      time.Duration `env:"KAFKA_CONTROLLER_REDELIVERY_MAX" envDefault:"10s"`
		ShutdownTimeout    time.Duration `env:"KAFKA_CONTROLLER_SHUTDOWN_TIMEOUT" envDefault:"5s"`
	}

	Metrics struct {
		Enabled bool `env:"METRICS_ENABLED" envDefault:"true"`
	}

	Swagger struct {
		Enabled bool `env:"SWAGGER_ENABLED" envDefault:"false"`
	}
)

func New() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}

	if cfg.Archive.Enabled && cfg.Archive.Bucket == "" {
		return nil, fmt.Errorf("config error: ARCHIVE_BUCKET is required when ARCHIVE_ENABLED is set")
	}

	return cfg, nil
}
