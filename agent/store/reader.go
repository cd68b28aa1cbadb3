package store

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	contractx "github.com/leadloop-ai/leadloop/agent/contract"
)

// SchemaDescription is handed to the reasoning capability so generated
// queries use real table and column names.
const SchemaDescription = `Tables available for read-only queries:

1. raw_messages — inbound group-chat messages
   id (text, primary key), group_id, group_name, sender, text, received_at (timestamp)

2. leads — tracked contacts
   code (text, primary key), display_name, phone,
   status (one of: unset/pending/partner-following/sales-following/closed/churned),
   updated_at (timestamp), version

3. process_logs — one row per applied classification (audit trail)
   id, lead_code, category (new-contact/phone-completion/partner-handoff/abandoned/
   sales-handoff/sales-takeover/feedback/deal-closed/churned),
   raw_message_id, operator, notes, applied_at (timestamp)

4. feedback_records — follow-up feedback
   id, lead_code, raw_message_id, feedback_type, content, recorded_at (timestamp)`

// Reader is the query agent's privilege-separated read path.
type Reader struct {
	db      *bun.DB
	timeout time.Duration
}

var _ contractx.ReadOnlyQuerier = (*Reader)(nil)

// OpenReader connects the read-only path. It prefers ReadOnlyDSN so the
// agent can run as a user without write grants.
func OpenReader(cfg Config) (*Reader, error) {
	dsn := cfg.ReadOnlyDSN
	if dsn == "" {
		dsn = cfg.DSN
	}
	db, err := connect(dsn, cfg.MaxOpenConns)
	if err != nil {
		return nil, fmt.Errorf("open read store: %w", err)
	}
	return NewReader(db, cfg.QueryTimeout), nil
}

func NewReader(db *bun.DB, timeout time.Duration) *Reader {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Reader{db: db, timeout: timeout}
}

func (r *Reader) Close() error { return r.db.Close() }

// Query executes an already-guarded statement and returns at most maxRows
// rows. It reads one row past the cap to learn whether the result was
// truncated without draining an unbounded result set.
func (r *Reader) Query(ctx context.Context, sqlText string, maxRows int) ([]map[string]any, bool, error) {
	if maxRows <= 0 {
		maxRows = 50
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, sqlText)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", contractx.ErrQueryExecution, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", contractx.ErrQueryExecution, err)
	}

	out := make([]map[string]any, 0, maxRows)
	truncated := false
	for rows.Next() {
		if len(out) == maxRows {
			truncated = true
			break
		}
		values := make([]any, len(columns))
		pointers := make([]any, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, false, fmt.Errorf("%w: %v", contractx.ErrQueryExecution, err)
		}
		record := make(map[string]any, len(columns))
		for i, col := range columns {
			record[col] = normalizeValue(values[i])
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("%w: %v", contractx.ErrQueryExecution, err)
	}

	return out, truncated, nil
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case []byte:
		return string(t)
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	default:
		return v
	}
}
