package classify

import (
	"regexp"
	"sort"
	"strings"
)

// Template bodies are `键: 值` lines below the `【标签】` tag. Keys may carry a
// role prefix (SM_/HP_/XS_) and either colon style; values run until the
// next recognized key.
var keyMappings = map[string]string{
	"家长编号":   "lead_code",
	"线索编号":   "lead_code",
	"备注":     "notes",
	"来源":     "source",
	"平台来源":   "source",
	"业务类型":   "service_category",
	"联系方式":   "contact",
	"联系方式类别": "contact_type",
	"需求":     "requirement",
	"分配给":    "assignee",
	"意向度":    "intent_level",
	"添加微信":   "is_added_wechat",
	"是否加微":   "is_added_wechat",
	"微信昵称":   "wechat_nickname",
	"微信号":    "wechat_id",
	"反馈类型":   "feedback_type",
	"跟进阶段":   "followup_stage",
	"内容":     "feedback_content",
	"金额":     "amount",
	"成交金额":   "amount",
	"团队":     "sales_team",
	"原因":     "reason",
}

var rolePrefixes = []string{"SM_", "HP_", "XS_"}

var (
	phonePattern   = regexp.MustCompile(`1[3-9]\d{9}`)
	mentionPattern = regexp.MustCompile(`@([^\s@]+)`)
	colonReplacer  = strings.NewReplacer("：", ":")
	spaceRemover   = strings.NewReplacer(" ", "", "\n", "", "\t", "", "\r", "")
)

type keyPosition struct {
	start int
	key   string
	field string
}

// extractFields scans the template body for `key:` markers anchored at line
// starts and pulls the text between consecutive keys. Sorting by position
// keeps extraction stable regardless of map iteration order.
func extractFields(body string) map[string]string {
	normalized := colonReplacer.Replace(body)

	var positions []keyPosition
	for key, field := range keyMappings {
		for _, variant := range keyVariants(key) {
			pattern := regexp.MustCompile(`(?m)^[ \t]*` + regexp.QuoteMeta(variant) + `[ \t]*:`)
			for _, loc := range pattern.FindAllStringIndex(normalized, -1) {
				segment := normalized[loc[0]:loc[1]]
				offset := len(segment) - len(strings.TrimLeft(segment, " \t"))
				positions = append(positions, keyPosition{
					start: loc[0] + offset,
					key:   variant,
					field: field,
				})
			}
		}
	}

	sort.Slice(positions, func(i, j int) bool { return positions[i].start < positions[j].start })

	fields := make(map[string]string, len(positions))
	for i, pos := range positions {
		valueStart := pos.start + len(pos.key) + 1
		valueEnd := len(normalized)
		if i+1 < len(positions) {
			valueEnd = positions[i+1].start
		}
		if valueStart > valueEnd {
			continue
		}
		raw := normalized[valueStart:valueEnd]
		value := spaceRemover.Replace(raw)
		if value == "" {
			continue
		}
		switch pos.field {
		case "lead_code":
			// First whitespace-separated token of the first line only, so
			// trailing unknown keys never glue onto the code.
			firstLine := strings.SplitN(strings.TrimSpace(raw), "\n", 2)[0]
			token := strings.Fields(firstLine)
			if len(token) > 0 {
				value = token[0]
			}
		case "assignee", "wechat_nickname":
			value = normalizeMention(value)
		}
		fields[pos.field] = value
	}

	// A split "联系方式类别 / 联系方式" pair collapses to "type:value".
	if contact, ok := fields["contact"]; ok && !strings.Contains(contact, ":") {
		if ct := fields["contact_type"]; ct != "" {
			fields["contact"] = ct + ":" + contact
		}
	}

	return fields
}

func keyVariants(key string) []string {
	variants := make([]string, 0, len(rolePrefixes)+1)
	variants = append(variants, key)
	for _, prefix := range rolePrefixes {
		variants = append(variants, prefix+key)
	}
	return variants
}

func normalizeMention(value string) string {
	if !strings.Contains(value, "@") {
		return value
	}
	if m := mentionPattern.FindStringSubmatch(value); len(m) == 2 {
		return m[1]
	}
	return strings.TrimSpace(strings.TrimPrefix(value, "@"))
}

// extractPhone pulls the first mainland mobile number from free text.
func extractPhone(text string) string {
	return phonePattern.FindString(text)
}
