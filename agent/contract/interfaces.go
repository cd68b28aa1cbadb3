package contract

import "context"

// MessageStore owns RawMessage persistence. Ingest is idempotent on the
// message id: a second call with the same id is a no-op returning
// IsNew=false.
type MessageStore interface {
	Ingest(ctx context.Context, msg RawMessage) (IngestResult, error)
	Exists(ctx context.Context, id string) (bool, error)
}

// LeadStore is the ledger's persistence boundary. UpdateLead performs a
// compare-and-swap on Lead.Version and returns ErrLedgerConflict when the
// row moved underneath the caller.
type LeadStore interface {
	GetLead(ctx context.Context, code string) (*Lead, error)
	CreateLead(ctx context.Context, lead *Lead) error
	UpdateLead(ctx context.Context, lead *Lead) error
	AppendProcessLog(ctx context.Context, entry *ProcessLogEntry) error
	AppendFeedback(ctx context.Context, rec *FeedbackRecord) error
	// HasProcessLog reports whether a raw message already produced an audit
	// entry. Distinguishes a truly processed redelivery from one whose
	// first attempt died before the ledger write.
	HasProcessLog(ctx context.Context, rawMessageID string) (bool, error)
}

// Classifier maps a stored message to exactly one template category or the
// unclassified sentinel. Deterministic for a fixed message and ledger
// snapshot.
type Classifier interface {
	Classify(ctx context.Context, msg RawMessage) Classification
}

// Ledger applies a matched classification: resolve or create the lead,
// update its status, append the process log entry (and feedback record for
// the feedback category).
type Ledger interface {
	Apply(ctx context.Context, c Classification, msg RawMessage) (*ProcessLogEntry, error)
	// Applied reports whether the raw message was already applied.
	Applied(ctx context.Context, rawMessageID string) (bool, error)
}

// Translator is the opaque reasoning capability: given the question and the
// trace so far, it proposes the next action.
type Translator interface {
	Propose(ctx context.Context, req TranslateRequest) (Action, error)
}

// Summarizer turns a capped result set into a natural-language answer.
type Summarizer interface {
	Summarize(ctx context.Context, req SummarizeRequest) (string, error)
}

// ReadOnlyQuerier executes an already-guarded query with a hard row cap.
// truncated is true when the underlying result exceeded maxRows.
type ReadOnlyQuerier interface {
	Query(ctx context.Context, sql string, maxRows int) (rows []map[string]any, truncated bool, err error)
}

// QueryAgent answers a free-text question with a bounded reasoning loop.
type QueryAgent interface {
	Answer(ctx context.Context, question string) (Answer, error)
}

// Deliverer pushes a reply to the originating group. Transport (TLS, retry)
// belongs to the implementation, not the core.
type Deliverer interface {
	SendGroupText(ctx context.Context, group string, text string) error
}
