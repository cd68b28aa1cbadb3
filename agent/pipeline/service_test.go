package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	contractx "github.com/leadloop-ai/leadloop/agent/contract"
)

type fakeMessages struct {
	mu     sync.Mutex
	stored map[string]contractx.RawMessage
}

func newFakeMessages() *fakeMessages {
	return &fakeMessages{stored: map[string]contractx.RawMessage{}}
}

func (f *fakeMessages) Ingest(_ context.Context, msg contractx.RawMessage) (contractx.IngestResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if prev, ok := f.stored[msg.ID]; ok {
		return contractx.IngestResult{IsNew: false, Stored: prev}, nil
	}
	f.stored[msg.ID] = msg
	return contractx.IngestResult{IsNew: true, Stored: msg}, nil
}

func (f *fakeMessages) Exists(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.stored[id]
	return ok, nil
}

type fakeClassifier struct{}

func (fakeClassifier) Classify(_ context.Context, msg contractx.RawMessage) contractx.Classification {
	if strings.HasPrefix(msg.Text, "新家长") {
		return contractx.Classification{
			Category: contractx.CategoryNewContact,
			Fields:   map[string]string{"lead_code": "P1001"},
		}
	}
	return contractx.Classification{}
}

type fakeLedger struct {
	mu       sync.Mutex
	applied  []contractx.TemplateCategory
	logged   map[string]bool
	failures int
}

func (f *fakeLedger) Apply(_ context.Context, c contractx.Classification, msg contractx.RawMessage) (*contractx.ProcessLogEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return nil, fmt.Errorf("ledger store unavailable")
	}
	f.applied = append(f.applied, c.Category)
	if f.logged == nil {
		f.logged = map[string]bool{}
	}
	f.logged[msg.ID] = true
	return &contractx.ProcessLogEntry{
		ID:           int64(len(f.applied)),
		LeadCode:     c.Field("lead_code"),
		Category:     c.Category,
		RawMessageID: msg.ID,
	}, nil
}

func (f *fakeLedger) Applied(_ context.Context, rawMessageID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logged[rawMessageID], nil
}

type fakeQueryAgent struct {
	mu        sync.Mutex
	questions []string
	summary   string
}

func (f *fakeQueryAgent) Answer(_ context.Context, question string) (contractx.Answer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.questions = append(f.questions, question)
	return contractx.Answer{Summary: f.summary}, nil
}

func newTestPipeline(t *testing.T) (*Pipeline, *fakeMessages, *fakeLedger, *fakeQueryAgent) {
	t.Helper()
	messages := newFakeMessages()
	ledger := &fakeLedger{}
	agent := &fakeQueryAgent{summary: "上周新增 12 位家长。"}
	p, err := New(messages, fakeClassifier{}, ledger, agent)
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	return p, messages, ledger, agent
}

func inbound(id, text string) contractx.InboundMessage {
	return contractx.InboundMessage{
		MessageID:  id,
		GroupID:    "g-1",
		Sender:     "SM_小赵",
		Text:       text,
		ReceivedAt: time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC),
	}
}

func TestHandleMessageTemplateFlow(t *testing.T) {
	t.Parallel()

	p, messages, ledger, _ := newTestPipeline(t)
	res, err := p.HandleMessage(context.Background(), inbound("m-1", "新家长，孩子叫小明"))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if !strings.Contains(res.Reply, "新家长登记") || !strings.Contains(res.Reply, "P1001") {
		t.Fatalf("reply = %q", res.Reply)
	}
	if res.GroupID != "g-1" {
		t.Fatalf("group = %q", res.GroupID)
	}
	if len(ledger.applied) != 1 {
		t.Fatalf("ledger applications = %d", len(ledger.applied))
	}
	if ok, _ := messages.Exists(context.Background(), "m-1"); !ok {
		t.Fatal("message not stored")
	}
}

func TestHandleMessageDuplicateHasNoSideEffects(t *testing.T) {
	t.Parallel()

	p, _, ledger, _ := newTestPipeline(t)
	ctx := context.Background()

	if _, err := p.HandleMessage(ctx, inbound("m-42", "新家长，孩子叫小明")); err != nil {
		t.Fatalf("first: %v", err)
	}
	res, err := p.HandleMessage(ctx, inbound("m-42", "新家长，孩子叫小明"))
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if len(ledger.applied) != 1 {
		t.Fatalf("ledger applications = %d, duplicate must not reapply", len(ledger.applied))
	}
	if !strings.Contains(res.Reply, "已处理过") {
		t.Fatalf("reply = %q", res.Reply)
	}
}

func TestHandleMessageRedeliveryAfterFailureReapplies(t *testing.T) {
	t.Parallel()

	p, _, ledger, _ := newTestPipeline(t)
	ctx := context.Background()
	ledger.failures = 1

	if _, err := p.HandleMessage(ctx, inbound("m-50", "新家长，孩子叫小明")); err == nil {
		t.Fatal("first delivery should surface the ledger failure")
	}

	// The provider redelivers. The message is stored but never applied, so
	// this delivery must finish the work instead of acking a duplicate.
	res, err := p.HandleMessage(ctx, inbound("m-50", "新家长，孩子叫小明"))
	if err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if len(ledger.applied) != 1 {
		t.Fatalf("ledger applications = %d, want 1", len(ledger.applied))
	}
	if strings.Contains(res.Reply, "已处理过") {
		t.Fatalf("reply = %q, must not ack an unapplied message as duplicate", res.Reply)
	}
	if !strings.Contains(res.Reply, "P1001") {
		t.Fatalf("reply = %q, want registration confirmation", res.Reply)
	}

	// A third delivery is now a true duplicate.
	res, err = p.HandleMessage(ctx, inbound("m-50", "新家长，孩子叫小明"))
	if err != nil {
		t.Fatalf("third: %v", err)
	}
	if len(ledger.applied) != 1 || !strings.Contains(res.Reply, "已处理过") {
		t.Fatalf("applications = %d reply = %q", len(ledger.applied), res.Reply)
	}
}

func TestHandleMessageQueryFlow(t *testing.T) {
	t.Parallel()

	p, _, ledger, agent := newTestPipeline(t)
	res, err := p.HandleMessage(context.Background(), inbound("m-2", "@机器人 上周新增了多少家长？"))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if res.Reply != "上周新增 12 位家长。" {
		t.Fatalf("reply = %q", res.Reply)
	}
	if len(agent.questions) != 1 || strings.Contains(agent.questions[0], "@机器人") {
		t.Fatalf("questions = %v", agent.questions)
	}
	if len(ledger.applied) != 0 {
		t.Fatal("query must not touch the ledger")
	}
}

func TestHandleMessageChatterIsSilent(t *testing.T) {
	t.Parallel()

	p, messages, ledger, agent := newTestPipeline(t)
	res, err := p.HandleMessage(context.Background(), inbound("m-3", "今天天气不错"))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if res.Reply != "" {
		t.Fatalf("reply = %q, want empty", res.Reply)
	}
	if ok, _ := messages.Exists(context.Background(), "m-3"); !ok {
		t.Fatal("chatter must still be stored")
	}
	if len(ledger.applied) != 0 || len(agent.questions) != 0 {
		t.Fatal("chatter must not reach ledger or agent")
	}
}

func TestHandleMessageSynthesizesDedupKey(t *testing.T) {
	t.Parallel()

	p, _, ledger, _ := newTestPipeline(t)
	ctx := context.Background()

	msg := inbound("", "新家长，孩子叫小明")
	if _, err := p.HandleMessage(ctx, msg); err != nil {
		t.Fatalf("first: %v", err)
	}
	// Same content and timestamp: the derived key collapses the redelivery.
	if _, err := p.HandleMessage(ctx, msg); err != nil {
		t.Fatalf("second: %v", err)
	}
	if len(ledger.applied) != 1 {
		t.Fatalf("ledger applications = %d", len(ledger.applied))
	}
}

func TestHandleMessageRejectsMissingGroup(t *testing.T) {
	t.Parallel()

	p, _, _, _ := newTestPipeline(t)
	msg := contractx.InboundMessage{Sender: "SM_小赵", Text: "hi"}
	if _, err := p.HandleMessage(context.Background(), msg); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestHandleMessageConcurrentGroups(t *testing.T) {
	t.Parallel()

	p, _, ledger, _ := newTestPipeline(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			msg := inbound(fmt.Sprintf("m-c%d", i), "新家长，孩子叫小明")
			msg.GroupID = fmt.Sprintf("g-%d", i%3)
			if _, err := p.HandleMessage(ctx, msg); err != nil {
				t.Errorf("handle %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	if len(ledger.applied) != 10 {
		t.Fatalf("ledger applications = %d", len(ledger.applied))
	}
}
