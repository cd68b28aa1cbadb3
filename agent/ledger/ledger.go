// Package ledger applies classified messages to lead state. All writes for a
// given lead are serialized here, and the process log gets exactly one entry
// per applied classification.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	contractx "github.com/leadloop-ai/leadloop/agent/contract"
)

// Ledger coordinates lead mutations on top of a LeadStore.
type Ledger struct {
	store contractx.LeadStore

	// locks holds one mutex per lead code so concurrent messages about the
	// same lead apply one at a time. Entries are never evicted; the lead
	// population is small enough that this is fine.
	locks sync.Map

	now func() time.Time
}

var _ contractx.Ledger = (*Ledger)(nil)

func New(store contractx.LeadStore) *Ledger {
	return &Ledger{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// Apply resolves the lead named by the classification, mutates it according
// to the category, and appends the audit entry. The feedback category also
// appends a FeedbackRecord.
func (l *Ledger) Apply(ctx context.Context, c contractx.Classification, msg contractx.RawMessage) (*contractx.ProcessLogEntry, error) {
	if c.Unclassified() {
		return nil, fmt.Errorf("%w: cannot apply an unclassified message", contractx.ErrValidation)
	}

	code := c.Field("lead_code")
	if code == "" {
		if c.Category != contractx.CategoryNewContact {
			return nil, fmt.Errorf("%w: category %s needs a lead code", contractx.ErrValidation, c.Category)
		}
		code = synthesizeCode()
	}

	unlock := l.lock(code)
	defer unlock()

	lead, err := l.resolve(ctx, code, c)
	if err != nil {
		return nil, err
	}

	if err := l.mutate(ctx, lead, c); err != nil {
		return nil, err
	}

	entry := &contractx.ProcessLogEntry{
		LeadCode:     lead.Code,
		Category:     c.Category,
		RawMessageID: msg.ID,
		Operator:     msg.Sender,
		Notes:        noteFor(c),
		AppliedAt:    l.now(),
	}
	if err := l.store.AppendProcessLog(ctx, entry); err != nil {
		return nil, err
	}

	if c.Category == contractx.CategoryFeedback {
		rec := &contractx.FeedbackRecord{
			LeadCode:     lead.Code,
			RawMessageID: msg.ID,
			FeedbackType: c.Field("feedback_type"),
			Content:      c.Field("feedback_content"),
			RecordedAt:   entry.AppliedAt,
		}
		if err := l.store.AppendFeedback(ctx, rec); err != nil {
			return nil, err
		}
	}

	log.Debug().
		Str("lead", lead.Code).
		Str("category", string(c.Category)).
		Str("status", string(lead.Status)).
		Msg("classification applied")

	return entry, nil
}

// Applied reports whether the raw message already produced a process log
// entry. A stored message without one was interrupted mid-apply and may be
// applied again.
func (l *Ledger) Applied(ctx context.Context, rawMessageID string) (bool, error) {
	return l.store.HasProcessLog(ctx, rawMessageID)
}

func (l *Ledger) lock(code string) func() {
	v, _ := l.locks.LoadOrStore(code, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// resolve loads the lead, creating it first when the category introduces a
// new contact. A new-contact message about an already known code is treated
// as an update, not an error, so redelivered messages stay harmless.
func (l *Ledger) resolve(ctx context.Context, code string, c contractx.Classification) (*contractx.Lead, error) {
	lead, err := l.store.GetLead(ctx, code)
	if err == nil {
		return lead, nil
	}
	if !errors.Is(err, contractx.ErrLeadNotFound) {
		return nil, err
	}
	if c.Category != contractx.CategoryNewContact {
		return nil, err
	}

	lead = &contractx.Lead{
		Code:        code,
		DisplayName: c.Field("wechat_nickname"),
		Phone:       c.Field("phone"),
		Status:      contractx.StatusPending,
		UpdatedAt:   l.now(),
	}
	if err := l.store.CreateLead(ctx, lead); err != nil {
		return nil, err
	}
	return lead, nil
}

// mutate applies the category's effect and writes it back. A lost
// compare-and-swap is retried exactly once against a reloaded row.
func (l *Ledger) mutate(ctx context.Context, lead *contractx.Lead, c contractx.Classification) error {
	apply := func(target *contractx.Lead) {
		if phone := c.Field("phone"); phone != "" {
			target.Phone = phone
		}
		if name := c.Field("wechat_nickname"); name != "" && target.DisplayName == "" {
			target.DisplayName = name
		}
		if next, ok := statusFor(c.Category); ok {
			target.Status = next
		}
	}

	apply(lead)
	err := l.store.UpdateLead(ctx, lead)
	if err == nil {
		return nil
	}
	if !errors.Is(err, contractx.ErrLedgerConflict) {
		return err
	}

	reloaded, rerr := l.store.GetLead(ctx, lead.Code)
	if rerr != nil {
		return rerr
	}
	apply(reloaded)
	if err := l.store.UpdateLead(ctx, reloaded); err != nil {
		return err
	}
	*lead = *reloaded
	return nil
}

// statusFor maps a category to the lead status it moves the lead into.
// Phone completion and feedback leave the status untouched.
func statusFor(cat contractx.TemplateCategory) (contractx.LeadStatus, bool) {
	switch cat {
	case contractx.CategoryNewContact:
		return contractx.StatusPending, true
	case contractx.CategoryPartnerHandoff:
		return contractx.StatusPartnerFollowing, true
	case contractx.CategoryAbandoned:
		// An abandoned lead returns to the shared pool.
		return contractx.StatusPending, true
	case contractx.CategorySalesHandoff:
		return contractx.StatusPending, true
	case contractx.CategorySalesTakeover:
		return contractx.StatusSalesFollowing, true
	case contractx.CategoryDealClosed:
		return contractx.StatusClosed, true
	case contractx.CategoryChurned:
		return contractx.StatusChurned, true
	default:
		return "", false
	}
}

func noteFor(c contractx.Classification) string {
	if n := c.Field("notes"); n != "" {
		return n
	}
	if n := c.Field("feedback_content"); n != "" {
		return n
	}
	var parts []string
	for _, key := range []string{"source", "service_category", "assignee", "amount", "reason"} {
		if v := c.Field(key); v != "" {
			parts = append(parts, key+"="+v)
		}
	}
	return strings.Join(parts, " ")
}

// synthesizeCode mints a lead code when a new-contact message carries none.
func synthesizeCode() string {
	return "P" + strings.ToUpper(uuid.NewString()[:8])
}
