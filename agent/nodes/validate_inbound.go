// Package pipelinenode holds the steps of the message handling graph. Each
// node takes the shared GraphState, does one thing, and hands the state on.
package pipelinenode

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	contractx "github.com/leadloop-ai/leadloop/agent/contract"
	replyx "github.com/leadloop-ai/leadloop/agent/reply"
)

type GraphInput struct {
	Message contractx.InboundMessage
}

type GraphOutput struct {
	// Reply is the outbound text. Empty means nothing should be sent.
	Reply   string
	GroupID string
}

type GraphState struct {
	Inbound contractx.InboundMessage
	Raw     contractx.RawMessage
	Now     time.Time

	IsNew          bool
	Classification contractx.Classification
	Entry          *contractx.ProcessLogEntry
	AnswerText     string
	ReplyKind      replyx.Kind
}

// ValidateInbound checks the webhook payload and derives the stored form.
// A missing provider message id gets a content-derived dedup key so
// redeliveries of the same event still collapse.
func ValidateInbound(in GraphInput, validate *validator.Validate, nowFn func() time.Time) (*GraphState, error) {
	msg := in.Message
	msg.GroupID = strings.TrimSpace(msg.GroupID)
	msg.Sender = strings.TrimSpace(msg.Sender)

	if err := validate.Struct(msg); err != nil {
		return nil, fmt.Errorf("%w: %v", contractx.ErrValidation, err)
	}

	now := nowFn().UTC()
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = now
	}
	if msg.MessageID == "" {
		msg.MessageID = dedupKey(msg)
	}

	return &GraphState{
		Inbound: msg,
		Raw: contractx.RawMessage{
			ID:         msg.MessageID,
			GroupID:    msg.GroupID,
			GroupName:  msg.GroupName,
			Sender:     msg.Sender,
			Text:       msg.Text,
			ReceivedAt: msg.ReceivedAt,
		},
		Now:       now,
		ReplyKind: replyx.KindNone,
	}, nil
}

// dedupKey collapses provider redeliveries that arrive without an id. The
// second granularity matches upstream retry behavior: retries resend the
// original timestamp.
func dedupKey(msg contractx.InboundMessage) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%d", msg.GroupID, msg.Sender, msg.Text, msg.ReceivedAt.Unix())
	return "sha-" + hex.EncodeToString(h.Sum(nil))[:24]
}
