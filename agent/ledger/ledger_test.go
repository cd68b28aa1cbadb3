package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	contractx "github.com/leadloop-ai/leadloop/agent/contract"
)

type fakeLeadStore struct {
	mu        sync.Mutex
	leads     map[string]contractx.Lead
	logs      []contractx.ProcessLogEntry
	feedback  []contractx.FeedbackRecord
	conflicts int
}

func newFakeLeadStore() *fakeLeadStore {
	return &fakeLeadStore{leads: map[string]contractx.Lead{}}
}

func (f *fakeLeadStore) GetLead(_ context.Context, code string) (*contractx.Lead, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	lead, ok := f.leads[code]
	if !ok {
		return nil, fmt.Errorf("%w: code=%s", contractx.ErrLeadNotFound, code)
	}
	out := lead
	return &out, nil
}

func (f *fakeLeadStore) CreateLead(_ context.Context, lead *contractx.Lead) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	lead.Version = 1
	lead.Status = contractx.NormalizeStatus(lead.Status)
	f.leads[lead.Code] = *lead
	return nil
}

func (f *fakeLeadStore) UpdateLead(_ context.Context, lead *contractx.Lead) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conflicts > 0 {
		f.conflicts--
		// Simulate a concurrent writer that bumped the row.
		cur := f.leads[lead.Code]
		cur.Version++
		f.leads[lead.Code] = cur
		return fmt.Errorf("%w: code=%s", contractx.ErrLedgerConflict, lead.Code)
	}
	cur, ok := f.leads[lead.Code]
	if !ok {
		return fmt.Errorf("%w: code=%s", contractx.ErrLeadNotFound, lead.Code)
	}
	if cur.Version != lead.Version {
		return fmt.Errorf("%w: code=%s", contractx.ErrLedgerConflict, lead.Code)
	}
	lead.Version++
	lead.UpdatedAt = time.Now().UTC()
	f.leads[lead.Code] = *lead
	return nil
}

func (f *fakeLeadStore) AppendProcessLog(_ context.Context, entry *contractx.ProcessLogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry.ID = int64(len(f.logs) + 1)
	f.logs = append(f.logs, *entry)
	return nil
}

func (f *fakeLeadStore) AppendFeedback(_ context.Context, rec *contractx.FeedbackRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec.ID = int64(len(f.feedback) + 1)
	f.feedback = append(f.feedback, *rec)
	return nil
}

func (f *fakeLeadStore) HasProcessLog(_ context.Context, rawMessageID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.logs {
		if e.RawMessageID == rawMessageID {
			return true, nil
		}
	}
	return false, nil
}

func classification(cat contractx.TemplateCategory, fields map[string]string) contractx.Classification {
	return contractx.Classification{Category: cat, Fields: fields}
}

func message(id string) contractx.RawMessage {
	return contractx.RawMessage{ID: id, GroupID: "g-1", Sender: "HP_合伙人A", ReceivedAt: time.Now().UTC()}
}

func TestApplyNewContactCreatesLead(t *testing.T) {
	t.Parallel()

	store := newFakeLeadStore()
	l := New(store)

	entry, err := l.Apply(context.Background(), classification(contractx.CategoryNewContact, map[string]string{
		"lead_code": "P1001",
		"phone":     "13800000000",
		"source":    "抖音",
	}), message("m-1"))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	lead := store.leads["P1001"]
	if lead.Status != contractx.StatusPending {
		t.Fatalf("status = %s", lead.Status)
	}
	if lead.Phone != "13800000000" {
		t.Fatalf("phone = %s", lead.Phone)
	}
	if entry.Category != contractx.CategoryNewContact || entry.Operator != "HP_合伙人A" {
		t.Fatalf("entry = %+v", entry)
	}
	if !strings.Contains(entry.Notes, "source=抖音") {
		t.Fatalf("notes = %q", entry.Notes)
	}
}

func TestApplyNewContactWithoutCodeSynthesizesOne(t *testing.T) {
	t.Parallel()

	store := newFakeLeadStore()
	l := New(store)

	entry, err := l.Apply(context.Background(), classification(contractx.CategoryNewContact, map[string]string{
		"phone": "13911112222",
	}), message("m-2"))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !strings.HasPrefix(entry.LeadCode, "P") || len(entry.LeadCode) < 5 {
		t.Fatalf("synthesized code = %q", entry.LeadCode)
	}
	if _, ok := store.leads[entry.LeadCode]; !ok {
		t.Fatal("lead not created under synthesized code")
	}
}

func TestApplyStatusTransitions(t *testing.T) {
	t.Parallel()

	cases := []struct {
		category contractx.TemplateCategory
		want     contractx.LeadStatus
	}{
		{contractx.CategoryPartnerHandoff, contractx.StatusPartnerFollowing},
		{contractx.CategorySalesTakeover, contractx.StatusSalesFollowing},
		{contractx.CategoryDealClosed, contractx.StatusClosed},
		{contractx.CategoryChurned, contractx.StatusChurned},
		{contractx.CategoryAbandoned, contractx.StatusPending},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(string(tc.category), func(t *testing.T) {
			t.Parallel()

			store := newFakeLeadStore()
			store.leads["P2002"] = contractx.Lead{Code: "P2002", Status: contractx.StatusPartnerFollowing, Version: 1}

			l := New(store)
			_, err := l.Apply(context.Background(), classification(tc.category, map[string]string{
				"lead_code": "P2002",
			}), message("m-"+string(tc.category)))
			if err != nil {
				t.Fatalf("apply: %v", err)
			}
			if got := store.leads["P2002"].Status; got != tc.want {
				t.Fatalf("status = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestApplyPhoneCompletionKeepsStatus(t *testing.T) {
	t.Parallel()

	store := newFakeLeadStore()
	store.leads["P3003"] = contractx.Lead{Code: "P3003", Status: contractx.StatusSalesFollowing, Version: 1}

	l := New(store)
	_, err := l.Apply(context.Background(), classification(contractx.CategoryPhoneCompletion, map[string]string{
		"lead_code": "P3003",
		"phone":     "13733334444",
	}), message("m-3"))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	lead := store.leads["P3003"]
	if lead.Status != contractx.StatusSalesFollowing {
		t.Fatalf("status changed to %s", lead.Status)
	}
	if lead.Phone != "13733334444" {
		t.Fatalf("phone = %s", lead.Phone)
	}
}

func TestApplyFeedbackAppendsRecord(t *testing.T) {
	t.Parallel()

	store := newFakeLeadStore()
	store.leads["P4004"] = contractx.Lead{Code: "P4004", Status: contractx.StatusSalesFollowing, Version: 1}

	l := New(store)
	_, err := l.Apply(context.Background(), classification(contractx.CategoryFeedback, map[string]string{
		"lead_code":        "P4004",
		"feedback_type":    "当日",
		"feedback_content": "已联系，约好周六试听",
	}), message("m-4"))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	if len(store.feedback) != 1 {
		t.Fatalf("feedback records = %d", len(store.feedback))
	}
	rec := store.feedback[0]
	if rec.FeedbackType != "当日" || rec.Content != "已联系，约好周六试听" {
		t.Fatalf("rec = %+v", rec)
	}
	if store.leads["P4004"].Status != contractx.StatusSalesFollowing {
		t.Fatal("feedback must not change lead status")
	}
}

func TestApplyRetriesConflictOnce(t *testing.T) {
	t.Parallel()

	store := newFakeLeadStore()
	store.leads["P5005"] = contractx.Lead{Code: "P5005", Status: contractx.StatusPending, Version: 1}
	store.conflicts = 1

	l := New(store)
	_, err := l.Apply(context.Background(), classification(contractx.CategoryDealClosed, map[string]string{
		"lead_code": "P5005",
	}), message("m-5"))
	if err != nil {
		t.Fatalf("apply after one conflict should succeed, got %v", err)
	}
	if store.leads["P5005"].Status != contractx.StatusClosed {
		t.Fatalf("status = %s", store.leads["P5005"].Status)
	}
}

func TestApplyGivesUpAfterSecondConflict(t *testing.T) {
	t.Parallel()

	store := newFakeLeadStore()
	store.leads["P6006"] = contractx.Lead{Code: "P6006", Status: contractx.StatusPending, Version: 1}
	store.conflicts = 2

	l := New(store)
	_, err := l.Apply(context.Background(), classification(contractx.CategoryDealClosed, map[string]string{
		"lead_code": "P6006",
	}), message("m-6"))
	if !errors.Is(err, contractx.ErrLedgerConflict) {
		t.Fatalf("err = %v, want ErrLedgerConflict", err)
	}
	if len(store.logs) != 0 {
		t.Fatal("no process log entry may be written on failure")
	}
}

func TestApplyUnknownLeadFails(t *testing.T) {
	t.Parallel()

	l := New(newFakeLeadStore())
	_, err := l.Apply(context.Background(), classification(contractx.CategorySalesTakeover, map[string]string{
		"lead_code": "P-nope",
	}), message("m-7"))
	if !errors.Is(err, contractx.ErrLeadNotFound) {
		t.Fatalf("err = %v, want ErrLeadNotFound", err)
	}
}

func TestApplyMissingCodeFails(t *testing.T) {
	t.Parallel()

	l := New(newFakeLeadStore())
	_, err := l.Apply(context.Background(), classification(contractx.CategoryFeedback, nil), message("m-8"))
	if !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestAppliedTracksProcessLog(t *testing.T) {
	t.Parallel()

	store := newFakeLeadStore()
	store.leads["P8008"] = contractx.Lead{Code: "P8008", Status: contractx.StatusPending, Version: 1}
	l := New(store)

	if ok, err := l.Applied(context.Background(), "m-9"); err != nil || ok {
		t.Fatalf("before apply: ok=%v err=%v", ok, err)
	}

	_, err := l.Apply(context.Background(), classification(contractx.CategoryDealClosed, map[string]string{
		"lead_code": "P8008",
	}), message("m-9"))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	if ok, err := l.Applied(context.Background(), "m-9"); err != nil || !ok {
		t.Fatalf("after apply: ok=%v err=%v", ok, err)
	}
}

func TestApplySerializesPerLead(t *testing.T) {
	t.Parallel()

	store := newFakeLeadStore()
	store.leads["P7007"] = contractx.Lead{Code: "P7007", Status: contractx.StatusPending, Version: 1}

	l := New(store)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := l.Apply(context.Background(), classification(contractx.CategoryFeedback, map[string]string{
				"lead_code":        "P7007",
				"feedback_content": fmt.Sprintf("第%d次跟进", i),
			}), message(fmt.Sprintf("m-c%d", i)))
			if err != nil {
				t.Errorf("apply %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	if len(store.logs) != 8 {
		t.Fatalf("process log entries = %d, want 8", len(store.logs))
	}
}
