package contract

import "errors"

var (
	// ErrValidation marks malformed input or state.
	ErrValidation = errors.New("validation failed")
	// ErrModelInvoke marks a failed call to the reasoning capability.
	ErrModelInvoke = errors.New("model invoke failed")
	// ErrSchemaViolation marks a model response outside the expected shape.
	ErrSchemaViolation = errors.New("model response violates schema")

	// ErrIngestion marks a storage fault during message ingest. Retryable:
	// the caller acks the webhook and lets the upstream redeliver.
	ErrIngestion = errors.New("message ingestion failed")
	// ErrLeadNotFound marks a classification referencing an unknown lead.
	ErrLeadNotFound = errors.New("lead not found")
	// ErrLedgerConflict marks a lost optimistic-update race on a lead row
	// after the single retry.
	ErrLedgerConflict = errors.New("ledger write conflict")

	// ErrQueryRejected marks a proposed statement that violates the
	// read-only policy. Recovered inside the agent loop.
	ErrQueryRejected = errors.New("query rejected by read-only policy")
	// ErrQueryExecution marks a malformed or failing query. Recovered
	// inside the agent loop.
	ErrQueryExecution = errors.New("query execution failed")
	// ErrAgentCeiling is terminal: the iteration ceiling was reached
	// without a final answer.
	ErrAgentCeiling = errors.New("agent iteration ceiling reached")
	// ErrAgentTimeout is terminal: the loop deadline elapsed.
	ErrAgentTimeout = errors.New("agent deadline exceeded")
	// ErrEmptyQuestion marks a blank question handed to the agent.
	ErrEmptyQuestion = errors.New("question is empty")
)
