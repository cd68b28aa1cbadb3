package query

import (
	"fmt"
	"regexp"
	"strings"

	contractx "github.com/leadloop-ai/leadloop/agent/contract"
)

// writeKeywords matches anything that could mutate state or escape the
// read path. Word boundaries keep column names like "created_at" from
// tripping the check.
var writeKeywords = regexp.MustCompile(`(?i)\b(insert|update|delete|drop|alter|create|truncate|replace|merge|grant|revoke|attach|detach|vacuum|pragma|copy|call|do|execute|set)\b`)

var readPrefix = regexp.MustCompile(`(?i)^\s*(select|with)\b`)

// Guard admits exactly one read-only statement. Everything else comes back
// as ErrQueryRejected with the reason in the message.
func Guard(sqlText string) error {
	stmt := strings.TrimSpace(sqlText)
	if stmt == "" {
		return fmt.Errorf("%w: empty statement", contractx.ErrQueryRejected)
	}

	stmt = strings.TrimSuffix(stmt, ";")
	if strings.Contains(stmt, ";") {
		return fmt.Errorf("%w: multiple statements", contractx.ErrQueryRejected)
	}
	if strings.Contains(stmt, "--") || strings.Contains(stmt, "/*") {
		return fmt.Errorf("%w: comments are not allowed", contractx.ErrQueryRejected)
	}
	if !readPrefix.MatchString(stmt) {
		return fmt.Errorf("%w: statement must start with SELECT or WITH", contractx.ErrQueryRejected)
	}
	if m := writeKeywords.FindString(stmt); m != "" {
		return fmt.Errorf("%w: keyword %s", contractx.ErrQueryRejected, strings.ToUpper(m))
	}
	return nil
}
