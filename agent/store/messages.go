package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	contractx "github.com/leadloop-ai/leadloop/agent/contract"
)

var _ contractx.MessageStore = (*Store)(nil)

// Ingest writes the message once per unique id. Duplicate deliveries hit the
// conflict clause and come back with IsNew=false and the previously stored
// row, so retries are idempotent.
func (s *Store) Ingest(ctx context.Context, msg contractx.RawMessage) (contractx.IngestResult, error) {
	if msg.ID == "" {
		return contractx.IngestResult{}, fmt.Errorf("%w: message id is required", contractx.ErrValidation)
	}
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = time.Now().UTC()
	}

	row := rawRowFrom(msg)
	res, err := s.db.NewInsert().
		Model(&row).
		On("CONFLICT (id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return contractx.IngestResult{}, fmt.Errorf("%w: %v", contractx.ErrIngestion, err)
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		return contractx.IngestResult{}, fmt.Errorf("%w: %v", contractx.ErrIngestion, err)
	}
	if inserted > 0 {
		return contractx.IngestResult{IsNew: true, Stored: row.toMessage()}, nil
	}

	var stored rawMessageRow
	err = s.db.NewSelect().Model(&stored).Where("id = ?", msg.ID).Scan(ctx)
	if err != nil {
		return contractx.IngestResult{}, fmt.Errorf("%w: %v", contractx.ErrIngestion, err)
	}
	return contractx.IngestResult{IsNew: false, Stored: stored.toMessage()}, nil
}

// Exists reports whether a raw message with the id was ever ingested.
func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	exists, err := s.db.NewSelect().
		Model((*rawMessageRow)(nil)).
		Where("id = ?", id).
		Exists(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("%w: %v", contractx.ErrIngestion, err)
	}
	return exists, nil
}
