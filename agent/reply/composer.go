// Package reply renders the outbound group message for one processed
// inbound message. Compose is pure: same input, same output, no I/O.
package reply

import (
	"fmt"
	"strings"
	"unicode"

	contractx "github.com/leadloop-ai/leadloop/agent/contract"
)

// MaxRunes bounds every outbound message. Push channels reject oversized
// payloads, so the bound is enforced here rather than at the transport.
const MaxRunes = 2000

// Kind is the processing outcome being announced.
type Kind string

const (
	// KindTemplate confirms an applied classification.
	KindTemplate Kind = "template"
	// KindAnswer relays a query agent answer.
	KindAnswer Kind = "answer"
	// KindDuplicate acknowledges a redelivered message without repeating
	// its side effects.
	KindDuplicate Kind = "duplicate"
	// KindNone produces no reply. Unrecognized chatter is ignored.
	KindNone Kind = "none"
)

// Input is everything Compose may draw on.
type Input struct {
	Kind     Kind
	Category contractx.TemplateCategory
	LeadCode string
	Answer   string
}

var categoryLabels = map[contractx.TemplateCategory]string{
	contractx.CategoryNewContact:      "新家长登记",
	contractx.CategoryPhoneCompletion: "微信号补全",
	contractx.CategoryPartnerHandoff:  "合伙人接手",
	contractx.CategoryAbandoned:       "放弃跟进",
	contractx.CategorySalesHandoff:    "转交销售",
	contractx.CategorySalesTakeover:   "销售接手",
	contractx.CategoryFeedback:        "跟进反馈",
	contractx.CategoryDealClosed:      "成交登记",
	contractx.CategoryChurned:         "流失登记",
}

// TemplateHelp lists every registration template. Sent verbatim when the
// group asks for 模板帮助 or a template fails validation.
const TemplateHelp = "模板格式：\n" +
	"【新家长】微信昵称、电话，可附 平台来源 / 需求 / 分配给\n" +
	"【补全微信号】家长编号: Pxxxx\n微信号: xxx\n" +
	"【合伙人接手】家长编号: Pxxxx\n" +
	"【放弃】家长编号: Pxxxx\n原因: xxx\n" +
	"【转销售】家长编号: Pxxxx\n分配给: @销售\n" +
	"【销售接手】家长编号: Pxxxx\n" +
	"【反馈】家长编号: Pxxxx\n反馈类型: 当日或3天内\n内容: xxx\n" +
	"【成交】家长编号: Pxxxx\n金额: xxx\n" +
	"【流失】家长编号: Pxxxx\n原因: xxx\n" +
	"查询请 @机器人 提问。"

// CategoryLabel returns the human label for a category, or "" when the
// category is unknown.
func CategoryLabel(cat contractx.TemplateCategory) string {
	return categoryLabels[cat]
}

// Compose renders the reply text. An empty result means no message should
// be sent.
func Compose(in Input) string {
	var text string
	switch in.Kind {
	case KindTemplate:
		label, ok := categoryLabels[in.Category]
		if !ok {
			return ""
		}
		if in.LeadCode != "" {
			text = fmt.Sprintf("已记录：%s（编号 %s）", label, in.LeadCode)
		} else {
			text = "已记录：" + label
		}
	case KindAnswer:
		text = in.Answer
	case KindDuplicate:
		text = "该消息已处理过，无需重复登记。"
	default:
		return ""
	}
	return bound(sanitize(text))
}

// sanitize drops control characters that break push payloads. Newlines and
// tabs carry formatting and stay.
func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}

// bound truncates on a rune boundary so multi-byte text is never split.
func bound(s string) string {
	runes := []rune(strings.TrimSpace(s))
	if len(runes) <= MaxRunes {
		return string(runes)
	}
	return string(runes[:MaxRunes-1]) + "…"
}
