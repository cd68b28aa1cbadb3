package pipelinenode

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	classifyx "github.com/leadloop-ai/leadloop/agent/classify"
	contractx "github.com/leadloop-ai/leadloop/agent/contract"
	queryx "github.com/leadloop-ai/leadloop/agent/query"
	replyx "github.com/leadloop-ai/leadloop/agent/reply"
)

// DispatchIntent routes the message to the ledger or the query agent.
// Redelivered templates are acknowledged as duplicates only when their first
// delivery actually reached the process log; otherwise the apply runs again.
func DispatchIntent(ctx context.Context, in *GraphState, ledger contractx.Ledger, agent contractx.QueryAgent) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	if !in.Classification.Unclassified() {
		return dispatchTemplate(ctx, in, ledger)
	}

	if !in.IsNew {
		// Redelivered chatter or question: already answered or ignored.
		return in, nil
	}

	if strings.TrimSpace(in.Raw.Text) == "模板帮助" {
		in.AnswerText = replyx.TemplateHelp
		in.ReplyKind = replyx.KindAnswer
		return in, nil
	}

	if in.Inbound.AtBot || classifyx.IsBotMention(in.Raw.Text) {
		question := classifyx.StripBotMention(in.Raw.Text)
		if question == "" {
			in.AnswerText = "请问想查询什么？"
			in.ReplyKind = replyx.KindAnswer
			return in, nil
		}
		ans, err := agent.Answer(ctx, question)
		if err != nil && !queryx.IsTerminal(err) {
			return nil, err
		}
		if err != nil {
			// Terminal loop outcomes still carry the fallback summary.
			log.Warn().Err(err).Str("group", in.Raw.GroupID).Msg("query agent gave up")
		}
		in.AnswerText = ans.Summary
		in.ReplyKind = replyx.KindAnswer
		return in, nil
	}

	// Plain chatter: stored, no reply.
	return in, nil
}

func dispatchTemplate(ctx context.Context, in *GraphState, ledger contractx.Ledger) (*GraphState, error) {
	if !in.IsNew {
		applied, err := ledger.Applied(ctx, in.Raw.ID)
		if err != nil {
			return nil, err
		}
		if applied {
			in.ReplyKind = replyx.KindDuplicate
			return in, nil
		}
		// Stored but never applied: the first delivery died before the
		// ledger write, so this one finishes the job.
	}

	entry, err := ledger.Apply(ctx, in.Classification, in.Raw)
	switch {
	case errors.Is(err, contractx.ErrLedgerConflict):
		// Lost the race twice. Soft failure: tell the group to resend
		// rather than bouncing the webhook.
		log.Warn().Err(err).Str("group", in.Raw.GroupID).Msg("ledger conflict after retry")
		in.AnswerText = "刚才有并发修改，这条没有记上，请重发一次。"
		in.ReplyKind = replyx.KindAnswer
		return in, nil
	case errors.Is(err, contractx.ErrLeadNotFound):
		in.AnswerText = "没有找到对应的家长编号，请核对后重发。"
		in.ReplyKind = replyx.KindAnswer
		return in, nil
	case errors.Is(err, contractx.ErrValidation):
		in.AnswerText = validationHint(in.Classification.Category)
		in.ReplyKind = replyx.KindAnswer
		return in, nil
	case err != nil:
		return nil, err
	}

	in.Entry = entry
	in.ReplyKind = replyx.KindTemplate
	return in, nil
}

// validationHint names what the template was missing instead of staying
// silent, so the sender can fix and resend.
func validationHint(cat contractx.TemplateCategory) string {
	if label := replyx.CategoryLabel(cat); label != "" {
		return fmt.Sprintf("%s缺少家长编号，请补全后重发。发送「模板帮助」查看格式。", label)
	}
	return "消息格式不完整，发送「模板帮助」查看格式。"
}
