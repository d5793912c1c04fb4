package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"chatpdf/internal/ai"
	appsvc "chatpdf/internal/app"
	"chatpdf/internal/cache"
	"chatpdf/internal/chunker"
	"chatpdf/internal/config"
	"chatpdf/internal/embedding"
	"chatpdf/internal/logger"
	"chatpdf/internal/model"
	mysqlClient "chatpdf/internal/platform/mysql"
	postgresClient "chatpdf/internal/platform/postgres"
	rabbitmqClient "chatpdf/internal/platform/rabbitmq"
	redisClient "chatpdf/internal/platform/redis"
	s3Client "chatpdf/internal/platform/s3"
	"chatpdf/internal/pkg/pdfextract"
	"chatpdf/internal/repository"
	"chatpdf/internal/retrieval"
	"chatpdf/internal/telemetry"
	"chatpdf/internal/vectorstore"
	"chatpdf/internal/worker"
)

type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	MySQL    *gorm.DB
	Postgres *sqlx.DB
	Redis    *redis.Client
	MQConn   *amqp.Connection
	Objects  *s3Client.Client

	Documents *appsvc.DocumentService
	Chat      *appsvc.ChatService

	IngestWorker  *worker.IngestWorker
	MessageWorker *worker.MessagePersistWorker

	StartedAt time.Time
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}

	log := logger.Init(cfg.App.GinMode).With("app", cfg.App.Name, "env", cfg.App.Env)
	metrics, err := telemetry.InitMetrics()
	if err != nil {
		return nil, fmt.Errorf("init metrics failed: %w", err)
	}

	a := &App{Config: cfg, Logger: log, StartedAt: time.Now()}
	if err := a.connect(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}

	store := vectorstore.NewPGVectorStore(a.Postgres, vectorstore.PGConfig{
		Dimension:       cfg.Embedding.Dimension,
		MaxRetries:      cfg.VectorStore.MaxRetries,
		InitialInterval: time.Duration(cfg.VectorStore.InitialBackoffMS) * time.Millisecond,
		MaxInterval:     time.Duration(cfg.VectorStore.MaxBackoffMS) * time.Millisecond,
	}, log.With("component", "vectorstore"))
	verifySchema := store.VerifyDimension
	if cfg.VectorStore.EnsureSchema {
		verifySchema = store.EnsureSchema
	}
	if err := verifySchema(ctx); err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("check vector schema failed: %w", err)
	}

	embedder := embedding.New(
		ai.NewOpenAIEmbedder(ai.EmbeddingConfig{
			BaseURL: cfg.Embedding.BaseURL,
			APIKey:  cfg.Embedding.APIKey,
			Model:   cfg.Embedding.Model,
		}),
		embedding.Config{
			Model:             cfg.Embedding.Model,
			Dimension:         cfg.Embedding.Dimension,
			BatchSize:         cfg.Embedding.BatchSize,
			Concurrency:       cfg.Embedding.Concurrency,
			RequestsPerSecond: cfg.Embedding.RequestsPerSecond,
			MaxRetries:        cfg.Embedding.MaxRetries,
			InitialInterval:   time.Duration(cfg.Embedding.InitialBackoffMS) * time.Millisecond,
			MaxInterval:       time.Duration(cfg.Embedding.MaxBackoffMS) * time.Millisecond,
			BreakerThreshold:  uint32(cfg.Embedding.BreakerThreshold),
			BreakerTimeout:    time.Duration(cfg.Embedding.BreakerTimeoutSec) * time.Second,
		},
		embedding.WithQueryCache(cache.NewEmbeddingCache(a.Redis, time.Duration(cfg.Embedding.CacheTTLSeconds)*time.Second)),
		embedding.WithLogger(log.With("component", "embedding")),
		embedding.WithMetrics(metrics),
	)
	if err := embedder.CheckDimension(ctx, store.Dimension()); err != nil {
		_ = a.Close()
		return nil, err
	}

	documentRepo := repository.NewDocumentRepository(a.MySQL)
	messageRepo := repository.NewMessageRepository(a.MySQL)
	ingestQueue := rabbitmqClient.NewIngestPublisher(a.MQConn, cfg.RabbitMQ.IngestQueue)
	messagePublisher := rabbitmqClient.NewMessagePublisher(a.MQConn, cfg.RabbitMQ.MessagePersistQueue)

	ingestService := appsvc.NewIngestService(
		documentRepo,
		a.Objects,
		pdfextract.New(),
		chunker.New(chunker.Config{
			ChunkSize:    cfg.RAG.ChunkSize,
			ChunkOverlap: cfg.RAG.ChunkOverlap,
			MaxTextBytes: cfg.RAG.MaxTextBytes,
		}),
		embedder,
		store,
		log.With("component", "ingest"),
		metrics,
	)
	a.Documents = appsvc.NewDocumentService(
		documentRepo, messageRepo, a.Objects, store, ingestQueue,
		cfg.App.MaxUploadBytes, log.With("component", "documents"),
	)
	a.Chat = appsvc.NewChatService(
		documentRepo,
		retrieval.New(embedder, store,
			retrieval.WithLogger(log.With("component", "retrieval")),
			retrieval.WithMetrics(metrics),
		),
		ai.NewOpenAICompatibleClient(ai.ChatConfig{
			BaseURL:     cfg.LLM.BaseURL,
			APIKey:      cfg.LLM.APIKey,
			Model:       cfg.LLM.Model,
			Temperature: float32(cfg.LLM.Temperature),
			MaxTokens:   cfg.LLM.MaxTokens,
		}),
		messagePublisher,
		retrieval.Options{
			TopK:             cfg.RAG.TopK,
			ScoreThreshold:   cfg.RAG.ScoreThreshold,
			MaxContextLength: cfg.RAG.MaxContextLength,
		},
		log.With("component", "chat"),
	)

	a.IngestWorker = worker.NewIngestWorker(
		a.MQConn, ingestService, cfg.RabbitMQ.IngestQueue, cfg.RabbitMQ.IngestConcurrency,
		time.Duration(cfg.RabbitMQ.IngestJobTimeoutSeconds)*time.Second, log,
	)
	if err := a.IngestWorker.Start(ctx); err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("start ingest worker failed: %w", err)
	}
	a.MessageWorker = worker.NewMessagePersistWorker(a.MQConn, messageRepo, cfg.RabbitMQ.MessagePersistQueue, log)
	if err := a.MessageWorker.Start(ctx); err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("start message worker failed: %w", err)
	}

	return a, nil
}

func (a *App) connect(ctx context.Context) error {
	cfg := a.Config
	var err error

	a.MySQL, err = mysqlClient.New(ctx, cfg.MySQLDSN(), a.Logger.With("component", "gorm"))
	if err != nil {
		return err
	}
	if err := a.MySQL.AutoMigrate(&model.Document{}, &model.Message{}); err != nil {
		return fmt.Errorf("auto migrate tables failed: %w", err)
	}

	a.Postgres, err = postgresClient.New(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxOpenConns, cfg.Postgres.MaxIdleConns)
	if err != nil {
		return err
	}

	a.Redis, err = redisClient.New(ctx, redisClient.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return err
	}

	a.MQConn, err = rabbitmqClient.New(ctx, cfg.RabbitMQ.URL, cfg.RabbitMQ.IngestQueue, cfg.RabbitMQ.MessagePersistQueue)
	if err != nil {
		return err
	}

	a.Objects, err = s3Client.New(ctx, s3Client.Config{
		Region:          cfg.S3.Region,
		Bucket:          cfg.S3.Bucket,
		Endpoint:        cfg.S3.Endpoint,
		AccessKeyID:     cfg.S3.AccessKeyID,
		SecretAccessKey: cfg.S3.SecretAccessKey,
		ForcePathStyle:  cfg.S3.ForcePathStyle,
		PublicBaseURL:   cfg.S3.PublicBaseURL,
	})
	return err
}

// Close stops the workers before the connections they consume from.
func (a *App) Close() error {
	var errs []error
	if a.IngestWorker != nil {
		a.IngestWorker.Close()
	}
	if a.MessageWorker != nil {
		a.MessageWorker.Close()
	}
	if a.MQConn != nil && !a.MQConn.IsClosed() {
		errs = append(errs, a.MQConn.Close())
	}
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	if a.Postgres != nil {
		errs = append(errs, a.Postgres.Close())
	}
	if a.MySQL != nil {
		if sqlDB, err := a.MySQL.DB(); err == nil {
			errs = append(errs, sqlDB.Close())
		}
	}
	return errors.Join(errs...)
}

// HealthChecks returns one probe per external dependency.
func (a *App) HealthChecks() map[string]func(context.Context) error {
	return map[string]func(context.Context) error{
		"mysql": func(ctx context.Context) error { return mysqlClient.Ping(ctx, a.MySQL) },
		"postgres": func(ctx context.Context) error {
			return a.Postgres.PingContext(ctx)
		},
		"redis": func(ctx context.Context) error { return redisClient.Ping(ctx, a.Redis) },
		"rabbitmq": func(context.Context) error {
			if a.MQConn == nil || a.MQConn.IsClosed() {
				return errors.New("connection closed")
			}
			return nil
		},
		"s3": a.Objects.Ping,
	}
}
