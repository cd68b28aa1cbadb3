package contract

import (
	"strings"
	"time"
)

// TemplateCategory is the closed set of recognized business intents.
type TemplateCategory string

const (
	CategoryNewContact      TemplateCategory = "new-contact"
	CategoryPhoneCompletion TemplateCategory = "phone-completion"
	CategoryPartnerHandoff  TemplateCategory = "partner-handoff"
	CategoryAbandoned       TemplateCategory = "abandoned"
	CategorySalesHandoff    TemplateCategory = "sales-handoff"
	CategorySalesTakeover   TemplateCategory = "sales-takeover"
	CategoryFeedback        TemplateCategory = "feedback"
	CategoryDealClosed      TemplateCategory = "deal-closed"
	CategoryChurned         TemplateCategory = "churned"
)

// LeadStatus is the lifecycle state of a tracked lead. StatusUnset is the
// neutral marker: a lead row never stores an empty string or free text in
// its status column.
type LeadStatus string

const (
	StatusUnset            LeadStatus = "unset"
	StatusPending          LeadStatus = "pending"
	StatusPartnerFollowing LeadStatus = "partner-following"
	StatusSalesFollowing   LeadStatus = "sales-following"
	StatusClosed           LeadStatus = "closed"
	StatusChurned          LeadStatus = "churned"
)

// NormalizeStatus maps any user-facing "no status" choice to StatusUnset and
// rejects values outside the enumeration.
func NormalizeStatus(s LeadStatus) LeadStatus {
	switch s {
	case StatusPending, StatusPartnerFollowing, StatusSalesFollowing, StatusClosed, StatusChurned:
		return s
	default:
		return StatusUnset
	}
}

// InboundMessage is what the webhook boundary hands to the core.
type InboundMessage struct {
	MessageID  string    `json:"message_id" validate:"omitempty,max=128"`
	GroupID    string    `json:"group_id" validate:"required,max=128"`
	GroupName  string    `json:"group_name" validate:"omitempty,max=256"`
	Sender     string    `json:"sender" validate:"required,max=128"`
	Text       string    `json:"text"`
	ReceivedAt time.Time `json:"received_at"`
	AtBot      bool      `json:"at_bot"`
}

// RawMessage is the immutable, deduplicated form persisted by the message
// store. ID is the dedup key.
type RawMessage struct {
	ID         string
	GroupID    string
	GroupName  string
	Sender     string
	Text       string
	ReceivedAt time.Time
}

// IngestResult reports whether the message was new and the stored row.
type IngestResult struct {
	IsNew  bool
	Stored RawMessage
}

// Classification is the outcome of the rule engine: exactly one category, or
// the unclassified sentinel (empty Category) for query candidates.
type Classification struct {
	Category TemplateCategory
	// Fields holds category-specific extracted values keyed by internal
	// field names (lead_code, phone, contact, assignee, ...).
	Fields map[string]string
}

// Unclassified reports whether no template rule matched.
func (c Classification) Unclassified() bool {
	return c.Category == ""
}

// Field returns a trimmed extracted field, or "".
func (c Classification) Field(key string) string {
	return strings.TrimSpace(c.Fields[key])
}

// Lead is a tracked contact progressing through the business lifecycle.
type Lead struct {
	Code        string
	DisplayName string
	Phone       string
	Status      LeadStatus
	UpdatedAt   time.Time
	// Version supports optimistic concurrency on the lead row.
	Version int64
}

// ProcessLogEntry is the append-only audit record for one applied
// classification.
type ProcessLogEntry struct {
	ID           int64
	LeadCode     string
	Category     TemplateCategory
	RawMessageID string
	Operator     string
	Notes        string
	AppliedAt    time.Time
}

// FeedbackRecord is written only for the feedback category.
type FeedbackRecord struct {
	ID           int64
	LeadCode     string
	RawMessageID string
	FeedbackType string
	Content      string
	RecordedAt   time.Time
}

// ActionKind is what the reasoning step proposes next.
type ActionKind string

const (
	ActionSQL     ActionKind = "sql"
	ActionFinal   ActionKind = "final"
	ActionClarify ActionKind = "clarify"
)

// Action is one proposed step of the query agent.
type Action struct {
	Kind ActionKind `json:"kind"`
	SQL  string     `json:"sql,omitempty"`
	Text string     `json:"text,omitempty"`
}

// TraceStep pairs an action with the observation it produced.
type TraceStep struct {
	Action      Action `json:"action"`
	Observation string `json:"observation"`
}

// QueryTrace records one query-agent invocation. It is ephemeral: it lives
// only for the duration of the request and is never persisted.
type QueryTrace struct {
	ID        string           `json:"id"`
	Question  string           `json:"question"`
	Steps     []TraceStep      `json:"steps"`
	FinalSQL  string           `json:"final_sql,omitempty"`
	Rows      []map[string]any `json:"rows,omitempty"`
	Truncated bool             `json:"truncated"`
	Summary   string           `json:"summary"`
}

// Answer is the query agent's result for one question.
type Answer struct {
	Summary string
	Trace   QueryTrace
}

// TranslateRequest asks the opaque reasoning capability for the next action.
type TranslateRequest struct {
	Question string      `json:"question"`
	Schema   string      `json:"schema"`
	Steps    []TraceStep `json:"steps,omitempty"`
}

// SummarizeRequest asks for a natural-language summary of a capped result
// set. Returned counts the rows actually carried, not the full result size;
// Truncated marks that the underlying result was larger.
type SummarizeRequest struct {
	Question  string           `json:"question"`
	SQL       string           `json:"sql"`
	Rows      []map[string]any `json:"rows"`
	Returned  int              `json:"returned"`
	Truncated bool             `json:"truncated"`
}
