package vectorstore

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/pgvector/pgvector-go"

	"chatpdf/internal/logger"
)

const (
	createExtensionSQL = `CREATE EXTENSION IF NOT EXISTS vector`

	createTableSQL = `
		CREATE TABLE IF NOT EXISTS vector_records (
			namespace   TEXT NOT NULL,
			id          TEXT NOT NULL,
			embedding   vector(%d) NOT NULL,
			text        TEXT NOT NULL,
			page_number INTEGER NOT NULL DEFAULT 0,
			updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (namespace, id)
		)`

	// Search is an exact scan of one namespace through the primary key. The
	// table-wide HNSW index of older schemas filters after the index scan
	// and misses small namespaces, so it is dropped.
	dropANNIndexSQL = `DROP INDEX IF EXISTS vector_records_embedding_idx`

	columnDimensionSQL = `
		SELECT atttypmod FROM pg_attribute
		WHERE attrelid = 'vector_records'::regclass AND attname = 'embedding'`

	upsertSQL = `
		INSERT INTO vector_records (namespace, id, embedding, text, page_number, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (namespace, id) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			text = EXCLUDED.text,
			page_number = EXCLUDED.page_number,
			updated_at = now()`

	searchSQL = `
		SELECT id, text, page_number, 1 - (embedding <=> $2) AS score
		FROM vector_records
		WHERE namespace = $1 AND 1 - (embedding <=> $2) > $3
		ORDER BY embedding <=> $2
		LIMIT $4`

	deleteNamespaceSQL = `DELETE FROM vector_records WHERE namespace = $1`
)

type PGConfig struct {
	Dimension       int
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// PGVectorStore keeps every namespace in one pgvector table keyed by
// (namespace, id).
type PGVectorStore struct {
	db     *sqlx.DB
	cfg    PGConfig
	logger *slog.Logger
}

func NewPGVectorStore(db *sqlx.DB, cfg PGConfig, log *slog.Logger) *PGVectorStore {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = 200 * time.Millisecond
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = 5 * time.Second
	}
	if log == nil {
		log = logger.Nop()
	}
	return &PGVectorStore{db: db, cfg: cfg, logger: log}
}

func (s *PGVectorStore) Dimension() int { return s.cfg.Dimension }

// EnsureSchema creates the table if needed and then runs VerifyDimension.
func (s *PGVectorStore) EnsureSchema(ctx context.Context) error {
	if s.cfg.Dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive, got %d", ErrDimensionMismatch, s.cfg.Dimension)
	}
	stmts := []string{
		createExtensionSQL,
		fmt.Sprintf(createTableSQL, s.cfg.Dimension),
		dropANNIndexSQL,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure vector schema failed: %w", err)
		}
	}
	return s.VerifyDimension(ctx)
}

// VerifyDimension fails with ErrDimensionMismatch when the embedding column
// was built for a different dimension than the store is configured for.
func (s *PGVectorStore) VerifyDimension(ctx context.Context) error {
	if s.cfg.Dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive, got %d", ErrDimensionMismatch, s.cfg.Dimension)
	}
	var dim int
	if err := s.db.GetContext(ctx, &dim, columnDimensionSQL); err != nil {
		return fmt.Errorf("read vector column dimension failed: %w", err)
	}
	if dim != s.cfg.Dimension {
		return fmt.Errorf("%w: vector_records.embedding is vector(%d), configured %d", ErrDimensionMismatch, dim, s.cfg.Dimension)
	}
	return nil
}

// Upsert writes all records in one transaction. Re-upserting an id overwrites it.
func (s *PGVectorStore) Upsert(ctx context.Context, namespace string, records []Record) error {
	if namespace == "" {
		return opErr("upsert", namespace, ErrInvalidNamespace)
	}
	if err := validateRecords(s.cfg.Dimension, records); err != nil {
		return opErr("upsert", namespace, err)
	}
	if len(records) == 0 {
		return nil
	}

	err := s.retry(ctx, "upsert", namespace, func() error {
		tx, err := s.db.BeginTxx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		for _, r := range records {
			if _, err := tx.ExecContext(ctx, upsertSQL,
				namespace,
				r.ID,
				pgvector.NewVector(r.Values),
				r.Metadata.Text,
				r.Metadata.PageNumber,
			); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
	return opErr("upsert", namespace, err)
}

type matchRow struct {
	ID         string  `db:"id"`
	Text       string  `db:"text"`
	PageNumber int     `db:"page_number"`
	Score      float64 `db:"score"`
}

func (s *PGVectorStore) Search(ctx context.Context, namespace string, vector []float32, topK int, threshold float64) ([]Match, error) {
	if namespace == "" {
		return nil, opErr("search", namespace, ErrInvalidNamespace)
	}
	if err := validateQuery(s.cfg.Dimension, vector, topK); err != nil {
		return nil, opErr("search", namespace, err)
	}

	var rows []matchRow
	err := s.retry(ctx, "search", namespace, func() error {
		rows = rows[:0]
		return s.db.SelectContext(ctx, &rows, searchSQL, namespace, pgvector.NewVector(vector), threshold, topK)
	})
	if err != nil {
		return nil, opErr("search", namespace, err)
	}

	matches := make([]Match, 0, len(rows))
	for _, r := range rows {
		matches = append(matches, Match{
			ID:       r.ID,
			Score:    r.Score,
			Metadata: Metadata{Text: r.Text, PageNumber: r.PageNumber},
		})
	}
	return matches, nil
}

func (s *PGVectorStore) DeleteNamespace(ctx context.Context, namespace string) error {
	if namespace == "" {
		return opErr("delete", namespace, ErrInvalidNamespace)
	}
	err := s.retry(ctx, "delete", namespace, func() error {
		_, err := s.db.ExecContext(ctx, deleteNamespaceSQL, namespace)
		return err
	})
	return opErr("delete", namespace, err)
}

func (s *PGVectorStore) retry(ctx context.Context, op, namespace string, fn func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.cfg.InitialInterval
	b.MaxInterval = s.cfg.MaxInterval
	b.MaxElapsedTime = 0

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := fn()
		if err == nil {
			return nil
		}
		if !isTransient(err) {
			return backoff.Permanent(err)
		}
		s.logger.Warn("vector store call failed, retrying",
			"op", op,
			"namespace", namespace,
			"attempt", attempt,
			"error", err,
		)
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(b, uint64(s.cfg.MaxRetries)), ctx))
}

// isTransient reports connection-level failures and serialization conflicts.
func isTransient(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || pgconn.SafeToRetry(err) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return strings.HasPrefix(pgErr.Code, "08") ||
			pgErr.Code == "40001" ||
			pgErr.Code == "40P01" ||
			pgErr.Code == "57P03"
	}
	return false
}
