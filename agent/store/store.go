// Package store persists raw messages, leads, process logs, and feedback
// records through bun. The write path and the agent's read-only path open
// separate connections so a reasoning error can never reach ledger state.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	contractx "github.com/leadloop-ai/leadloop/agent/contract"
)

type Config struct {
	// DSN is the read-write connection used by the ledger.
	DSN string `envconfig:"DSN" split_words:"true" required:"true"`
	// ReadOnlyDSN should point at a privilege-separated user for the query
	// agent. Falls back to DSN when empty.
	ReadOnlyDSN  string        `envconfig:"READ_ONLY_DSN" split_words:"true"`
	MaxOpenConns int           `envconfig:"MAX_OPEN_CONNS" split_words:"true" default:"8"`
	QueryTimeout time.Duration `envconfig:"QUERY_TIMEOUT" split_words:"true" default:"10s"`
}

// Store is the write-side persistence handle.
type Store struct {
	db *bun.DB
}

// Open connects the write path over pgdriver and ensures the schema.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	db, err := connect(cfg.DSN, cfg.MaxOpenConns)
	if err != nil {
		return nil, fmt.Errorf("open write store: %w", err)
	}
	s := New(db)
	if err := s.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing bun handle. Tests use this with an in-memory
// SQLite database.
func New(db *bun.DB) *Store {
	return &Store{db: db}
}

func (s *Store) DB() *bun.DB { return s.db }

func (s *Store) Close() error { return s.db.Close() }

func connect(dsn string, maxOpen int) (*bun.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("%w: store dsn is required", contractx.ErrValidation)
	}
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	if maxOpen > 0 {
		sqldb.SetMaxOpenConns(maxOpen)
	}
	return bun.NewDB(sqldb, pgdialect.New()), nil
}

// EnsureSchema creates the record collections when absent.
func (s *Store) EnsureSchema(ctx context.Context) error {
	models := []any{
		(*rawMessageRow)(nil),
		(*leadRow)(nil),
		(*processLogRow)(nil),
		(*feedbackRow)(nil),
	}
	for _, model := range models {
		if _, err := s.db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
