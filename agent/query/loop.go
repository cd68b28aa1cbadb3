// Package query answers free-text questions about ledger data with a
// bounded think/act/observe loop. The loop is an explicit for statement so
// the iteration ceiling and deadline are visible in one place.
package query

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	contractx "github.com/leadloop-ai/leadloop/agent/contract"
)

// FallbackSummary is returned when the loop hits its ceiling or deadline
// without a final answer.
const FallbackSummary = "暂时没有查到结果，请稍后再试或换个问法。"

type Config struct {
	MaxIterations int           `envconfig:"MAX_ITERATIONS" split_words:"true" default:"6"`
	LoopTimeout   time.Duration `envconfig:"LOOP_TIMEOUT" split_words:"true" default:"25s"`
	CallTimeout   time.Duration `envconfig:"CALL_TIMEOUT" split_words:"true" default:"15s"`
	MaxRows       int           `envconfig:"MAX_ROWS" split_words:"true" default:"50"`
}

func (c *Config) setDefaults() {
	if c.MaxIterations <= 0 {
		c.MaxIterations = 6
	}
	if c.LoopTimeout <= 0 {
		c.LoopTimeout = 25 * time.Second
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 15 * time.Second
	}
	if c.MaxRows <= 0 {
		c.MaxRows = 50
	}
}

// Agent wires the reasoning capability to the guarded read path.
type Agent struct {
	cfg        Config
	translator contractx.Translator
	summarizer contractx.Summarizer
	querier    contractx.ReadOnlyQuerier
	schema     string
}

var _ contractx.QueryAgent = (*Agent)(nil)

func NewAgent(cfg Config, tr contractx.Translator, sm contractx.Summarizer, q contractx.ReadOnlyQuerier, schema string) *Agent {
	cfg.setDefaults()
	return &Agent{cfg: cfg, translator: tr, summarizer: sm, querier: q, schema: schema}
}

// Answer runs the loop until a final answer, the iteration ceiling, or the
// deadline. Rejected and failing queries are fed back as observations so
// the next proposal can correct course; only ceiling, deadline, and model
// faults are terminal.
func (a *Agent) Answer(ctx context.Context, question string) (contractx.Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return contractx.Answer{}, contractx.ErrEmptyQuestion
	}

	trace := contractx.QueryTrace{
		ID:       uuid.NewString(),
		Question: question,
	}

	ctx, cancel := context.WithTimeout(ctx, a.cfg.LoopTimeout)
	defer cancel()

	if isQuickStats(question) {
		return a.quickStats(ctx, trace)
	}

	for i := 0; i < a.cfg.MaxIterations; i++ {
		if err := ctx.Err(); err != nil {
			return a.fallback(trace), fmt.Errorf("%w: after %d steps", contractx.ErrAgentTimeout, i)
		}

		action, err := a.propose(ctx, trace)
		if err != nil {
			if ctx.Err() != nil {
				return a.fallback(trace), fmt.Errorf("%w: %v", contractx.ErrAgentTimeout, err)
			}
			return a.fallback(trace), err
		}

		switch action.Kind {
		case contractx.ActionFinal, contractx.ActionClarify:
			trace.Steps = append(trace.Steps, contractx.TraceStep{Action: action})
			trace.Summary = action.Text
			return contractx.Answer{Summary: action.Text, Trace: trace}, nil

		case contractx.ActionSQL:
			step := contractx.TraceStep{Action: action}
			answer, done, err := a.runSQL(ctx, &trace, &step, action.SQL)
			trace.Steps = append(trace.Steps, step)
			if done || err != nil {
				return answer, err
			}

		default:
			trace.Steps = append(trace.Steps, contractx.TraceStep{
				Action:      action,
				Observation: fmt.Sprintf("unknown action kind %q", action.Kind),
			})
		}
	}

	log.Warn().Str("trace", trace.ID).Str("question", question).Msg("query loop hit iteration ceiling")
	return a.fallback(trace), fmt.Errorf("%w: %d iterations", contractx.ErrAgentCeiling, a.cfg.MaxIterations)
}

func (a *Agent) propose(ctx context.Context, trace contractx.QueryTrace) (contractx.Action, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.CallTimeout)
	defer cancel()
	return a.translator.Propose(ctx, contractx.TranslateRequest{
		Question: trace.Question,
		Schema:   a.schema,
		Steps:    trace.Steps,
	})
}

// runSQL guards and executes one proposed statement. Guard rejections and
// execution failures become observations and the loop continues; a
// successful execution is summarized and ends the loop.
func (a *Agent) runSQL(ctx context.Context, trace *contractx.QueryTrace, step *contractx.TraceStep, sqlText string) (contractx.Answer, bool, error) {
	if err := Guard(sqlText); err != nil {
		step.Observation = "not permitted: " + err.Error()
		return contractx.Answer{}, false, nil
	}

	rows, truncated, err := a.querier.Query(ctx, sqlText, a.cfg.MaxRows)
	if err != nil {
		if ctx.Err() != nil {
			return a.fallback(*trace), true, fmt.Errorf("%w: %v", contractx.ErrAgentTimeout, err)
		}
		step.Observation = "query failed: " + err.Error()
		return contractx.Answer{}, false, nil
	}

	step.Observation = fmt.Sprintf("%d row(s), truncated=%t", len(rows), truncated)
	trace.FinalSQL = sqlText
	trace.Rows = rows
	trace.Truncated = truncated

	summary, err := a.summarize(ctx, *trace, sqlText, rows, truncated)
	if err != nil {
		if ctx.Err() != nil {
			return a.fallback(*trace), true, fmt.Errorf("%w: %v", contractx.ErrAgentTimeout, err)
		}
		return a.fallback(*trace), true, err
	}
	if truncated {
		summary += fmt.Sprintf("\n（结果超过 %d 行，已截断）", a.cfg.MaxRows)
	}
	trace.Summary = summary
	return contractx.Answer{Summary: summary, Trace: *trace}, true, nil
}

func (a *Agent) summarize(ctx context.Context, trace contractx.QueryTrace, sqlText string, rows []map[string]any, truncated bool) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.CallTimeout)
	defer cancel()
	return a.summarizer.Summarize(ctx, contractx.SummarizeRequest{
		Question:  trace.Question,
		SQL:       sqlText,
		Rows:      rows,
		Returned:  len(rows),
		Truncated: truncated,
	})
}

func (a *Agent) fallback(trace contractx.QueryTrace) contractx.Answer {
	trace.Summary = FallbackSummary
	return contractx.Answer{Summary: FallbackSummary, Trace: trace}
}

// IsTerminal reports whether an Answer error means the reply should be the
// fallback text rather than a retry.
func IsTerminal(err error) bool {
	return errors.Is(err, contractx.ErrAgentCeiling) ||
		errors.Is(err, contractx.ErrAgentTimeout) ||
		errors.Is(err, contractx.ErrModelInvoke) ||
		errors.Is(err, contractx.ErrSchemaViolation)
}
