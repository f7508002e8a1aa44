package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/andreyxaxa/Notify-Router/config"
	kafkactrl "github.com/andreyxaxa/Notify-Router/internal/controller/kafka"
	"github.com/andreyxaxa/Notify-Router/internal/controller/restapi"
	"github.com/andreyxaxa/Notify-Router/internal/controller/worker/outbox"
	"github.com/andreyxaxa/Notify-Router/internal/entity"
	"github.com/andreyxaxa/Notify-Router/internal/infrastructure/channel"
	infrakafka "github.com/andreyxaxa/Notify-Router/internal/infrastructure/kafka"
	"github.com/andreyxaxa/Notify-Router/internal/infrastructure/render"
	"github.com/andreyxaxa/Notify-Router/internal/infrastructure/ses"
	"github.com/andreyxaxa/Notify-Router/internal/infrastructure/sns"
	"github.com/andreyxaxa/Notify-Router/internal/infrastructure/webhook"
	"github.com/andreyxaxa/Notify-Router/internal/metrics"
	"github.com/andreyxaxa/Notify-Router/internal/repo/persistent"
	"github.com/andreyxaxa/Notify-Router/internal/usecase/dispatch"
	"github.com/andreyxaxa/Notify-Router/internal/usecase/notification"
	outboxuc "github.com/andreyxaxa/Notify-Router/internal/usecase/outbox"
	"github.com/andreyxaxa/Notify-Router/internal/usecase/policy"
	"github.com/andreyxaxa/Notify-Router/migrations"
	"github.com/andreyxaxa/Notify-Router/pkg/awsclient"
	"github.com/andreyxaxa/Notify-Router/pkg/httpserver"
	"github.com/andreyxaxa/Notify-Router/pkg/kafka/consumer"
	"github.com/andreyxaxa/Notify-Router/pkg/kafka/producer"
	"github.com/andreyxaxa/Notify-Router/pkg/logger"
	"github.com/andreyxaxa/Notify-Router/pkg/migrator"
	"github.com/andreyxaxa/Notify-Router/pkg/postgres"
)

func Run(cfg *config.Config) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Logger
	l := logger.New(cfg.Log.Level)
	l.Info("app - Run - starting %s %s", cfg.App.Name, cfg.App.Version)

	// Metrics
	m := metrics.New(nil)

	// Repository

	// migrations
	if cfg.PG.MigrateOnBoot {
		err := migrate(ctx, cfg.PG.URL)
		if err != nil {
			l.Fatal(fmt.Errorf("app - Run - migrate: %w", err))
		}
	}

	// postgres
	pg, err := postgres.New(cfg.PG.URL, postgres.MaxPoolSize(cfg.PG.PoolMax))
	if err != nil {
		l.Fatal(fmt.Errorf("app - Run - postgres.New: %w", err))
	}
	defer pg.Close()

	eventRepo := persistent.NewEventRepo(pg)
	deliveryRepo := persistent.NewDeliveryRepo(pg)
	outboxRepo := persistent.NewOutboxRepo(pg)

	// aws
	awsCtx, awsCancel := context.WithTimeout(ctx, cfg.AWS.CfgLoadTimeout)
	defer awsCancel()
	awsc, err := awsclient.New(awsCtx,
		awsclient.Region(cfg.AWS.Region),
		awsclient.Endpoint(cfg.AWS.Endpoint),
		awsclient.StaticCredentials(cfg.AWS.AccessKey, cfg.AWS.SecretKey),
		awsclient.UsePathStyle(cfg.AWS.UsePathStyle),
	)
	if err != nil {
		l.Fatal(fmt.Errorf("app - Run - awsclient.New: %w", err))
	}

	// Channels
	dispatcher := channel.NewDispatcher(channelOptions(cfg, awsc, m)...)

	// Templates
	var renderer notification.Renderer
	if cfg.Templates.Path != "" {
		r, err := loadTemplates(cfg.Templates.Path)
		if err != nil {
			l.Fatal(fmt.Errorf("app - Run - loadTemplates: %w", err))
		}
		renderer = r
	}

	// Use-Case

	// notification use-case
	notificationUseCase := notification.New(
		eventRepo,
		persistent.NewDirectoryRepo(pg),
		deliveryRepo,
		outboxRepo,
		pg,
		policy.New(persistent.NewPolicyRepo(pg)),
		renderer,
		m,
		l,
	)

	// dispatch use-case
	dispatchOpts := []dispatch.Option{
		dispatch.WithWorkers(cfg.Dispatch.Workers),
		dispatch.WithUpdateTimeout(cfg.Dispatch.UpdateTimeout),
		dispatch.WithRetrySchedule(dispatch.RetrySchedule{
			Base: cfg.RetrySweep.BaseDelay,
			Max:  cfg.RetrySweep.MaxDelay,
		}),
	}
	if cfg.Archive.Enabled {
		dispatchOpts = append(dispatchOpts, dispatch.WithArchive(persistent.NewArchiveRepo(awsc, cfg.Archive.Bucket)))
	}
	dispatchUseCase := dispatch.New(deliveryRepo, eventRepo, dispatcher, m, l, dispatchOpts...)

	// Kafka Producer
	kafkaProducer, err := producer.New(ctx, cfg.Kafka.Brokers, producer.BatchTimeout(cfg.Kafka.ProducerBatchWait))
	if err != nil {
		l.Fatal(fmt.Errorf("app - Run - producer.New: %w", err))
	}
	dispatchProducer := infrakafka.NewDispatchProducer(kafkaProducer, cfg.Kafka.Topic)

	// outbox use-case
	outboxUseCase := outboxuc.New(outboxRepo, deliveryRepo, eventRepo, pg, dispatchProducer, m, l)

	// Outbox Relay Worker
	outboxRelayWorker := outbox.New(outboxUseCase, dispatchProducer, l, outbox.Config{
		PollInterval:         cfg.OutboxRelay.PollInterval,
		ProcessBatchTimeout:  cfg.OutboxRelay.ProcessBatchTimeout,
		BatchSize:            cfg.OutboxRelay.BatchSize,
		MaxRetries:           cfg.OutboxRelay.MaxRetries,
		MarkFailedInterval:   cfg.OutboxRelay.MarkFailedInterval,
		CleanupInterval:      cfg.OutboxRelay.CleanupInterval,
		CleanupOlderThan:     cfg.OutboxRelay.CleanupOlderThan,
		StuckAfter:           cfg.OutboxRelay.StuckAfter,
		RetrySweepInterval:   cfg.RetrySweep.Interval,
		RetryMaxAttempts:     cfg.RetrySweep.MaxAttempts,
		RecoveryInterval:     cfg.RetrySweep.RecoveryInterval,
		StuckProcessingAfter: cfg.RetrySweep.StuckProcessingAfter,
		SweepBatchSize:       cfg.RetrySweep.BatchSize,
	})

	// Kafka Consumer
	kafkaConsumer, err := consumer.New(ctx, cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.Topic,
		consumer.MaxWait(cfg.Kafka.ConsumerMaxWait))
	if err != nil {
		l.Fatal(fmt.Errorf("app - Run - consumer.New: %w", err))
	}

	// Kafka as Controller
	kafkaController := kafkactrl.New(
		dispatchUseCase,
		infrakafka.NewDispatchConsumer(kafkaConsumer),
		l,
		kafkactrl.Config{
			BatchSize:          cfg.KafkaController.BatchSize,
			BatchWindow:        cfg.KafkaController.BatchWindow,
			ProcessTimeout:     cfg.KafkaController.ProcessTimeout,
			CommitTimeout:      cfg.KafkaController.CommitTimeout,
			RedeliveryAttempts: cfg.KafkaController.RedeliveryAttempts,
			RedeliveryInitial:  cfg.KafkaController.RedeliveryInitial,
			RedeliveryMax:      cfg.KafkaController.RedeliveryMax,
		},
	)

	// HTTP Server
	httpServer := httpserver.New(l,
		httpserver.Port(cfg.HTTP.Port),
		httpserver.Prefork(cfg.HTTP.UsePreforkMode),
		httpserver.ReadTimeout(cfg.HTTP.ReadTimeout),
		httpserver.WriteTimeout(cfg.HTTP.WriteTimeout),
		httpserver.ShutdownTimeout(cfg.HTTP.ShutdownTimeout),
		httpserver.BodyLimit(cfg.HTTP.BodyLimit),
	)
	restapi.NewRouter(httpServer.App, cfg, notificationUseCase, l)

	// Start Components
	err = outboxRelayWorker.Start(ctx)
	if err != nil {
		l.Fatal(fmt.Errorf("app - Run - outboxRelayWorker.Start: %w", err))
	}
	err = kafkaController.Start(ctx)
	if err != nil {
		l.Fatal(fmt.Errorf("app - Run - kafkaController.Start: %w", err))
	}
	httpServer.Start()

	// Waiting Signal
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	select {
	case s := <-interrupt:
		l.Info("app - Run - signal: %s", s.String())
	case err = <-httpServer.Notify():
		l.Error(fmt.Errorf("app - Run - httpServer.Notify: %w", err))
	}

	// Shutdown
	err = httpServer.Shutdown()
	if err != nil {
		l.Error(fmt.Errorf("app - Run - httpServer.Shutdown: %w", err))
	}

	orlShutdownCtx, orlShutdownCancel := context.WithTimeout(ctx, cfg.OutboxRelay.ShutdownTimeout)
	defer orlShutdownCancel()
	err = outboxRelayWorker.Shutdown(orlShutdownCtx)
	if err != nil {
		l.Error(fmt.Errorf("app - Run - outboxRelayWorker.Shutdown: %w", err))
	}

	kcShutdownCtx, kcShutdownCancel := context.WithTimeout(ctx, cfg.KafkaController.ShutdownTimeout)
	defer kcShutdownCancel()
	err = kafkaController.Shutdown(kcShutdownCtx)
	if err != nil {
		l.Error(fmt.Errorf("app - Run - kafkaController.Shutdown: %w", err))
	}
}

func channelOptions(cfg *config.Config, awsc *awsclient.Client, m *metrics.Metrics) []channel.Option {
	c := cfg.Channels
	guard := func(ch entity.Channel, rps float64, burst int) *channel.Guard {
		return channel.NewGuard(channel.GuardConfig{
			Name:                string(ch),
			RatePerSecond:       rps,
			Burst:               burst,
			ConsecutiveFailures: c.BreakerFailures,
			OpenTimeout:         c.BreakerOpenTimeout,
			HalfOpenRequests:    c.BreakerHalfOpenReqs,
		}, m.BreakerState)
	}

	opts := []channel.Option{
		channel.WithEmail(
			ses.New(awsc, cfg.SES.From, cfg.SES.ConfigurationSet),
			guard(entity.ChannelEmail, c.EmailRatePerSecond, c.EmailBurst),
			m,
		),
	}

	if cfg.SNS.Enabled {
		opts = append(opts, channel.WithSMS(
			sns.New(awsc, cfg.SNS.SenderID),
			guard(entity.ChannelSMS, c.SMSRatePerSecond, c.SMSBurst),
			m,
		))
	}

	if cfg.Chat.Enabled {
		opts = append(opts, channel.WithChat(
			webhook.New(cfg.Chat.Timeout),
			channel.FixedDestination(cfg.Chat.DefaultWebhookURL),
			guard(entity.ChannelChat, c.ChatRatePerSecond, c.ChatBurst),
			m,
		))
	}

	return opts
}

func loadTemplates(path string) (*render.Renderer, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("os.ReadFile: %w", err)
	}

	r := render.New()
	if err := r.LoadJSON(raw); err != nil {
		return nil, fmt.Errorf("r.LoadJSON: %w", err)
	}

	return r, nil
}

func migrate(ctx context.Context, dsn string) error {
	mg, err := migrator.New(ctx, dsn, migrations.FS, ".")
	if err != nil {
		return err
	}
	defer mg.Close()

	return mg.Up()
}
