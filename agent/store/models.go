package store

import (
	"time"

	"github.com/uptrace/bun"

	contractx "github.com/leadloop-ai/leadloop/agent/contract"
)

type rawMessageRow struct {
	bun.BaseModel `bun:"table:raw_messages"`

	ID         string    `bun:"id,pk"`
	GroupID    string    `bun:"group_id,notnull"`
	GroupName  string    `bun:"group_name"`
	Sender     string    `bun:"sender,notnull"`
	Text       string    `bun:"text"`
	ReceivedAt time.Time `bun:"received_at,notnull"`
}

type leadRow struct {
	bun.BaseModel `bun:"table:leads"`

	Code        string    `bun:"code,pk"`
	DisplayName string    `bun:"display_name"`
	Phone       string    `bun:"phone"`
	Status      string    `bun:"status,notnull"`
	UpdatedAt   time.Time `bun:"updated_at,notnull"`
	Version     int64     `bun:"version,notnull"`
}

type processLogRow struct {
	bun.BaseModel `bun:"table:process_logs"`

	ID           int64     `bun:"id,pk,autoincrement"`
	LeadCode     string    `bun:"lead_code,notnull"`
	Category     string    `bun:"category,notnull"`
	RawMessageID string    `bun:"raw_message_id,notnull"`
	Operator     string    `bun:"operator"`
	Notes        string    `bun:"notes"`
	AppliedAt    time.Time `bun:"applied_at,notnull"`
}

type feedbackRow struct {
	bun.BaseModel `bun:"table:feedback_records"`

	ID           int64     `bun:"id,pk,autoincrement"`
	LeadCode     string    `bun:"lead_code,notnull"`
	RawMessageID string    `bun:"raw_message_id,notnull"`
	FeedbackType string    `bun:"feedback_type"`
	Content      string    `bun:"content,notnull,default:''"`
	RecordedAt   time.Time `bun:"recorded_at,notnull"`
}

func rawRowFrom(msg contractx.RawMessage) rawMessageRow {
	return rawMessageRow{
		ID:         msg.ID,
		GroupID:    msg.GroupID,
		GroupName:  msg.GroupName,
		Sender:     msg.Sender,
		Text:       msg.Text,
		ReceivedAt: msg.ReceivedAt.UTC(),
	}
}

func (r rawMessageRow) toMessage() contractx.RawMessage {
	return contractx.RawMessage{
		ID:         r.ID,
		GroupID:    r.GroupID,
		GroupName:  r.GroupName,
		Sender:     r.Sender,
		Text:       r.Text,
		ReceivedAt: r.ReceivedAt,
	}
}

func leadRowFrom(lead *contractx.Lead) leadRow {
	return leadRow{
		Code:        lead.Code,
		DisplayName: lead.DisplayName,
		Phone:       lead.Phone,
		Status:      string(contractx.NormalizeStatus(lead.Status)),
		UpdatedAt:   lead.UpdatedAt.UTC(),
		Version:     lead.Version,
	}
}

func (r leadRow) toLead() *contractx.Lead {
	return &contractx.Lead{
		Code:        r.Code,
		DisplayName: r.DisplayName,
		Phone:       r.Phone,
		Status:      contractx.NormalizeStatus(contractx.LeadStatus(r.Status)),
		UpdatedAt:   r.UpdatedAt,
		Version:     r.Version,
	}
}
