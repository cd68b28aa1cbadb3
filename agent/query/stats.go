package query

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	contractx "github.com/leadloop-ai/leadloop/agent/contract"
)

// Canned aggregates answered without the reasoning loop. Cheap, frequent
// questions should not burn model calls.
var quickStatsPattern = regexp.MustCompile(`^(数据)?(统计|概览)$|^(?i:stats)$`)

var statusLabels = map[string]string{
	string(contractx.StatusUnset):            "未设置",
	string(contractx.StatusPending):          "待跟进",
	string(contractx.StatusPartnerFollowing): "合伙人跟进中",
	string(contractx.StatusSalesFollowing):   "销售跟进中",
	string(contractx.StatusClosed):           "已成交",
	string(contractx.StatusChurned):          "已流失",
}

const (
	statsTotalSQL    = "SELECT COUNT(*) AS total FROM leads"
	statsTodaySQL    = "SELECT COUNT(*) AS total FROM process_logs WHERE category = 'new-contact' AND applied_at >= CURRENT_DATE"
	statsByStatusSQL = "SELECT status, COUNT(*) AS total FROM leads GROUP BY status ORDER BY total DESC"
)

func isQuickStats(question string) bool {
	return quickStatsPattern.MatchString(strings.TrimSpace(question))
}

// quickStats runs the canned aggregates through the same guarded read path
// the loop uses and formats a fixed-shape summary.
func (a *Agent) quickStats(ctx context.Context, trace contractx.QueryTrace) (contractx.Answer, error) {
	total, err := a.statCount(ctx, &trace, statsTotalSQL)
	if err != nil {
		return a.fallback(trace), err
	}
	today, err := a.statCount(ctx, &trace, statsTodaySQL)
	if err != nil {
		return a.fallback(trace), err
	}
	byStatus, err := a.statRows(ctx, &trace, statsByStatusSQL)
	if err != nil {
		return a.fallback(trace), err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "家长总数：%d\n今日新增：%d", total, today)
	if len(byStatus) > 0 {
		b.WriteString("\n状态分布：")
		parts := make([]string, 0, len(byStatus))
		for _, row := range byStatus {
			label := statusLabels[fmt.Sprint(row["status"])]
			if label == "" {
				label = fmt.Sprint(row["status"])
			}
			parts = append(parts, fmt.Sprintf("%s %s", label, fmt.Sprint(row["total"])))
		}
		b.WriteString(strings.Join(parts, "、"))
	}

	trace.Summary = b.String()
	return contractx.Answer{Summary: trace.Summary, Trace: trace}, nil
}

func (a *Agent) statCount(ctx context.Context, trace *contractx.QueryTrace, sqlText string) (int64, error) {
	rows, err := a.statRows(ctx, trace, sqlText)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return asInt64(rows[0]["total"]), nil
}

func (a *Agent) statRows(ctx context.Context, trace *contractx.QueryTrace, sqlText string) ([]map[string]any, error) {
	if err := Guard(sqlText); err != nil {
		return nil, err
	}
	rows, truncated, err := a.querier.Query(ctx, sqlText, a.cfg.MaxRows)
	if err != nil {
		return nil, err
	}
	trace.Steps = append(trace.Steps, contractx.TraceStep{
		Action:      contractx.Action{Kind: contractx.ActionSQL, SQL: sqlText},
		Observation: fmt.Sprintf("%d row(s), truncated=%t", len(rows), truncated),
	})
	return rows, nil
}

func asInt64(v any) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	case string:
		var n int64
		fmt.Sscan(t, &n)
		return n
	default:
		return 0
	}
}
