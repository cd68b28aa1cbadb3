// Package classify maps inbound group-chat messages to template categories
// with an ordered, first-match-wins rule list. Unmatched messages are query
// candidates for the agent.
package classify

import (
	"context"
	"regexp"
	"strings"

	contractx "github.com/leadloop-ai/leadloop/agent/contract"
)

// LeadLookup exposes the ledger snapshot the rules may consult. A fixed
// snapshot plus a fixed message yields a fixed classification.
type LeadLookup interface {
	StatusOf(ctx context.Context, code string) (contractx.LeadStatus, bool)
}

// A message that @-mentions the bot is always treated as a query candidate,
// even when it carries template markup.
var botMentionPattern = regexp.MustCompile(`(?i)@(机器人|robot|智能助手|助手|小助手)`)

type rule struct {
	category contractx.TemplateCategory
	tag      string
	// barePrefix also matches the tag word at the start of the message,
	// without the 【】 markup. Only the new-contact announcement is spoken
	// that loosely in practice; every other tag word doubles as ordinary
	// chatter (放弃/成交/流失...), so those require explicit markup.
	barePrefix bool
	// withLedger gates the rule on current ledger state.
	withLedger func(e *Engine, ctx context.Context, fields map[string]string) bool
}

// Rule order is fixed. Longer sales tags sit before shorter ones so a prefix
// match never picks the wrong category.
var orderedRules = []rule{
	{category: contractx.CategoryNewContact, tag: "新家长", barePrefix: true},
	{category: contractx.CategoryPhoneCompletion, tag: "补全微信号"},
	{category: contractx.CategoryPartnerHandoff, tag: "合伙人接手"},
	{category: contractx.CategoryAbandoned, tag: "放弃"},
	{category: contractx.CategorySalesHandoff, tag: "转销售"},
	{category: contractx.CategorySalesTakeover, tag: "销售接手"},
	{category: contractx.CategoryFeedback, tag: "反馈", withLedger: (*Engine).feedbackApplies},
	{category: contractx.CategoryDealClosed, tag: "成交"},
	{category: contractx.CategoryChurned, tag: "流失"},
}

// Engine is the deterministic rule engine.
type Engine struct {
	leads LeadLookup
}

func NewEngine(leads LeadLookup) *Engine {
	return &Engine{leads: leads}
}

var _ contractx.Classifier = (*Engine)(nil)

// Classify evaluates the ordered rules against the message text and the
// ledger snapshot. Empty or whitespace-only text is unclassified.
func (e *Engine) Classify(ctx context.Context, msg contractx.RawMessage) contractx.Classification {
	raw := strings.TrimSpace(msg.Text)
	if raw == "" {
		return contractx.Classification{}
	}
	if botMentionPattern.MatchString(raw) {
		return contractx.Classification{}
	}

	for _, r := range orderedRules {
		if !matchesTag(raw, r.tag, r.barePrefix) {
			continue
		}
		fields := extractFields(stripTag(raw, r.tag))
		if r.category == contractx.CategoryNewContact && fields["phone"] == "" {
			if phone := extractPhone(raw); phone != "" {
				fields["phone"] = phone
			}
		}
		if r.withLedger != nil && !r.withLedger(e, ctx, fields) {
			continue
		}
		return contractx.Classification{Category: r.category, Fields: fields}
	}

	return contractx.Classification{}
}

// matchesTag accepts the bracketed template tag anywhere, and for rules
// that allow it, the bare tag word at the start of the message.
func matchesTag(text, tag string, allowBare bool) bool {
	if strings.Contains(text, "【"+tag+"】") {
		return true
	}
	return allowBare && strings.HasPrefix(text, tag)
}

func stripTag(text, tag string) string {
	if body := strings.Replace(text, "【"+tag+"】", "\n", 1); body != text {
		return body
	}
	return strings.TrimPrefix(text, tag)
}

// IsBotMention reports whether the text addresses the bot directly. Such
// messages route to the query agent regardless of template markup.
func IsBotMention(text string) bool {
	return botMentionPattern.MatchString(text)
}

// StripBotMention removes the bot mention so the remaining text reads as a
// bare question.
func StripBotMention(text string) string {
	return strings.TrimSpace(botMentionPattern.ReplaceAllString(text, ""))
}

// feedbackApplies holds the feedback rule to leads already being followed
// up. Anything else falls through to later rules or the query path.
func (e *Engine) feedbackApplies(ctx context.Context, fields map[string]string) bool {
	code := strings.TrimSpace(fields["lead_code"])
	if code == "" || e.leads == nil {
		return false
	}
	status, ok := e.leads.StatusOf(ctx, code)
	if !ok {
		return false
	}
	return status == contractx.StatusPartnerFollowing || status == contractx.StatusSalesFollowing
}
