package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"FinMitra/internal/advisor"
	"FinMitra/internal/api"
	"FinMitra/internal/config"
	"FinMitra/internal/events"
	"FinMitra/internal/knowledge"
	"FinMitra/internal/llm/openai"
	"FinMitra/internal/observability/alerting"
	"FinMitra/internal/session"
	"FinMitra/internal/storage/mysql"
	"FinMitra/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("finmitrad failed: %v", err)
	}
}

func run(ctx context.Context) error {
	configPath := os.Getenv("FINMITRA_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("configs", "finmitra.yaml")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: cfg.Logging.OutputPaths,
		Audit: logger.AuditConfig{
			Enabled:    cfg.Logging.Audit.Enabled,
			Path:       cfg.Logging.Audit.Path,
			MaxSizeMB:  cfg.Logging.Audit.MaxSizeMB,
			MaxBackups: cfg.Logging.Audit.MaxBackups,
		},
	}); err != nil {
		return err
	}
	defer func() {
		if err := logger.Sync(); err != nil {
			log.Printf("flush logs: %v", err)
		}
	}()

	llmClient, err := openai.NewClient(openai.Config{
		APIKey:  cfg.LLM.APIKey,
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.LLM.Model,
		Timeout: time.Duration(cfg.LLM.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		return err
	}

	sessions, err := buildSessionStore(cfg)
	if err != nil {
		return err
	}
	defer sessions.Close()

	archive, err := buildArchive(ctx, cfg)
	if err != nil {
		return err
	}
	defer archive.Close()

	publisher, err := buildPublisher(cfg)
	if err != nil {
		return err
	}
	defer publisher.Close()

	var guidance knowledge.Provider
	if cfg.Knowledge.Source != "" {
		provider, err := knowledge.LoadStaticProvider(cfg.Knowledge.Source, cfg.Knowledge.MaxResults)
		if err != nil {
			return err
		}
		guidance = provider
	} else {
		guidance = knowledge.DefaultProvider(cfg.Knowledge.MaxResults)
	}

	notifiers := []alerting.Notifier{alerting.LogNotifier{}}
	if cfg.Alerting.WebhookURL != "" {
		notifiers = append(notifiers, &alerting.WebhookNotifier{URL: cfg.Alerting.WebhookURL})
	}

	adv := advisor.New(llmClient, sessions,
		advisor.WithArchive(archive),
		advisor.WithPublisher(publisher),
		advisor.WithKnowledgeProvider(guidance),
		advisor.WithAlertDispatcher(alerting.NewFanout(notifiers...)),
		advisor.WithStepTimeout(time.Duration(cfg.Advisor.StepTimeoutSec)*time.Second),
		advisor.WithMaxTipLength(cfg.Advisor.MaxTipLength),
		advisor.WithModelName(llmClient.Model()),
	)

	server := api.NewServer(cfg.Server.Address, adv,
		api.WithAllowedOrigins(cfg.Server.AllowedOrigins),
		api.WithShutdownTimeout(time.Duration(cfg.Server.ShutdownSeconds)*time.Second),
	)

	logger.L().Info("finmitrad started",
		slog.String("address", cfg.Server.Address),
		slog.String("session_driver", cfg.Session.Driver),
		slog.String("archive_driver", cfg.Archive.Driver),
		slog.String("events_driver", cfg.Events.Driver),
		slog.String("model", llmClient.Model()),
	)

	return server.Start(ctx)
}

func buildSessionStore(cfg *config.Config) (session.Store, error) {
	switch cfg.Session.Driver {
	case "", "memory":
		return session.NewMemoryStore(cfg.Session.MaxTurns), nil
	case "redis":
		return session.NewRedisStore(session.RedisConfig{
			Address:   cfg.Session.Redis.Address,
			Password:  cfg.Session.Redis.Password,
			DB:        cfg.Session.Redis.DB,
			KeyPrefix: cfg.Session.Redis.KeyPrefix,
			MaxTurns:  cfg.Session.MaxTurns,
		})
	default:
		return nil, fmt.Errorf("unknown session driver: %s", cfg.Session.Driver)
	}
}

func buildArchive(ctx context.Context, cfg *config.Config) (mysql.PlanRepository, error) {
	switch cfg.Archive.Driver {
	case "", "memory":
		return mysql.NewFileRepository(cfg.Archive.DataDir)
	case "mysql":
		return mysql.NewSQLRepository(ctx, mysql.Config{
			DSN:             cfg.Archive.MySQL.DSN,
			MaxOpenConns:    cfg.Archive.MySQL.MaxOpenConns,
			MaxIdleConns:    cfg.Archive.MySQL.MaxIdleConns,
			ConnMaxLifetime: time.Duration(cfg.Archive.MySQL.ConnMaxLifetimeSeconds) * time.Second,
			ConnMaxIdleTime: time.Duration(cfg.Archive.MySQL.ConnMaxIdleTimeSeconds) * time.Second,
		})
	default:
		return nil, fmt.Errorf("unknown archive driver: %s", cfg.Archive.Driver)
	}
}

func buildPublisher(cfg *config.Config) (events.Publisher, error) {
	switch cfg.Events.Driver {
	case "", "log":
		return events.NewLogPublisher(), nil
	case "rabbitmq":
		return events.NewRabbitMQPublisher(events.RabbitMQConfig{
			URL:        cfg.Events.RabbitMQ.URL,
			Queue:      cfg.Events.RabbitMQ.Queue,
			Durable:    cfg.Events.RabbitMQ.Durable,
			AutoDelete: cfg.Events.RabbitMQ.AutoDelete,
		})
	default:
		return nil, fmt.Errorf("unknown events driver: %s", cfg.Events.Driver)
	}
}
