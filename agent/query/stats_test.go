package query

import (
	"context"
	"strings"
	"testing"
)

type scriptedQuerier struct {
	results [][]map[string]any
	calls   int
	queries []string
}

func (s *scriptedQuerier) Query(_ context.Context, sql string, _ int) ([]map[string]any, bool, error) {
	s.queries = append(s.queries, sql)
	if s.calls >= len(s.results) {
		return nil, false, nil
	}
	rows := s.results[s.calls]
	s.calls++
	return rows, false, nil
}

func TestIsQuickStats(t *testing.T) {
	t.Parallel()

	yes := []string{"统计", "数据统计", "概览", "数据概览", "stats", " 统计 "}
	for _, q := range yes {
		if !isQuickStats(q) {
			t.Errorf("isQuickStats(%q) = false", q)
		}
	}
	no := []string{"上周新增了多少家长？", "统计一下上周的数据", ""}
	for _, q := range no {
		if isQuickStats(q) {
			t.Errorf("isQuickStats(%q) = true", q)
		}
	}
}

func TestQuickStatsSkipsModel(t *testing.T) {
	t.Parallel()

	q := &scriptedQuerier{results: [][]map[string]any{
		{{"total": int64(25)}},
		{{"total": int64(3)}},
		{
			{"status": "pending", "total": int64(12)},
			{"status": "sales-following", "total": int64(8)},
			{"status": "closed", "total": int64(5)},
		},
	}}
	tr := &scriptedTranslator{}
	agent := newAgent(tr, staticSummarizer{}, q)

	ans, err := agent.Answer(context.Background(), "统计")
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	if tr.calls != 0 {
		t.Fatalf("translator calls = %d, quick stats must not use the model", tr.calls)
	}
	if len(q.queries) != 3 {
		t.Fatalf("queries = %v", q.queries)
	}
	for _, stmt := range q.queries {
		if Guard(stmt) != nil {
			t.Fatalf("canned statement fails its own guard: %q", stmt)
		}
	}

	for _, want := range []string{"家长总数：25", "今日新增：3", "待跟进 12", "已成交 5"} {
		if !strings.Contains(ans.Summary, want) {
			t.Fatalf("summary missing %q: %q", want, ans.Summary)
		}
	}
	if len(ans.Trace.Steps) != 3 {
		t.Fatalf("trace steps = %d", len(ans.Trace.Steps))
	}
}

func TestQuickStatsQueryFailureFallsBack(t *testing.T) {
	t.Parallel()

	failing := &fakeQuerier{err: context.DeadlineExceeded}
	agent := newAgent(&scriptedTranslator{}, staticSummarizer{}, failing)

	ans, err := agent.Answer(context.Background(), "数据概览")
	if err == nil {
		t.Fatal("expected error")
	}
	if ans.Summary != FallbackSummary {
		t.Fatalf("summary = %q", ans.Summary)
	}
}
