package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	contractx "github.com/leadloop-ai/leadloop/agent/contract"
)

var _ contractx.LeadStore = (*Store)(nil)

func (s *Store) GetLead(ctx context.Context, code string) (*contractx.Lead, error) {
	var row leadRow
	err := s.db.NewSelect().Model(&row).Where("code = ?", code).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: code=%s", contractx.ErrLeadNotFound, code)
	}
	if err != nil {
		return nil, fmt.Errorf("load lead %s: %w", code, err)
	}
	return row.toLead(), nil
}

func (s *Store) CreateLead(ctx context.Context, lead *contractx.Lead) error {
	if lead == nil || lead.Code == "" {
		return fmt.Errorf("%w: lead code is required", contractx.ErrValidation)
	}
	if lead.UpdatedAt.IsZero() {
		lead.UpdatedAt = time.Now().UTC()
	}
	lead.Version = 1
	lead.Status = contractx.NormalizeStatus(lead.Status)

	row := leadRowFrom(lead)
	if _, err := s.db.NewInsert().Model(&row).Exec(ctx); err != nil {
		return fmt.Errorf("create lead %s: %w", lead.Code, err)
	}
	return nil
}

// UpdateLead is a compare-and-swap on the version column. Zero rows touched
// means someone else won the race; the caller reloads and retries once.
func (s *Store) UpdateLead(ctx context.Context, lead *contractx.Lead) error {
	if lead == nil || lead.Code == "" {
		return fmt.Errorf("%w: lead code is required", contractx.ErrValidation)
	}

	row := leadRowFrom(lead)
	row.Version = lead.Version + 1
	row.UpdatedAt = time.Now().UTC()

	res, err := s.db.NewUpdate().
		Model(&row).
		Where("code = ?", lead.Code).
		Where("version = ?", lead.Version).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update lead %s: %w", lead.Code, err)
	}
	touched, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update lead %s: %w", lead.Code, err)
	}
	if touched == 0 {
		return fmt.Errorf("%w: code=%s version=%d", contractx.ErrLedgerConflict, lead.Code, lead.Version)
	}

	lead.Version = row.Version
	lead.UpdatedAt = row.UpdatedAt
	return nil
}

// AppendProcessLog refuses dangling references: both the lead and the raw
// message must exist at write time.
func (s *Store) AppendProcessLog(ctx context.Context, entry *contractx.ProcessLogEntry) error {
	if entry == nil || entry.LeadCode == "" || entry.RawMessageID == "" {
		return fmt.Errorf("%w: process log needs lead and raw message references", contractx.ErrValidation)
	}
	if err := s.checkReferences(ctx, entry.LeadCode, entry.RawMessageID); err != nil {
		return err
	}
	if entry.AppliedAt.IsZero() {
		entry.AppliedAt = time.Now().UTC()
	}

	row := processLogRow{
		LeadCode:     entry.LeadCode,
		Category:     string(entry.Category),
		RawMessageID: entry.RawMessageID,
		Operator:     entry.Operator,
		Notes:        entry.Notes,
		AppliedAt:    entry.AppliedAt.UTC(),
	}
	if _, err := s.db.NewInsert().Model(&row).Exec(ctx); err != nil {
		return fmt.Errorf("append process log for %s: %w", entry.LeadCode, err)
	}
	entry.ID = row.ID
	return nil
}

func (s *Store) AppendFeedback(ctx context.Context, rec *contractx.FeedbackRecord) error {
	if rec == nil || rec.LeadCode == "" || rec.RawMessageID == "" {
		return fmt.Errorf("%w: feedback needs lead and raw message references", contractx.ErrValidation)
	}
	if err := s.checkReferences(ctx, rec.LeadCode, rec.RawMessageID); err != nil {
		return err
	}
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now().UTC()
	}

	row := feedbackRow{
		LeadCode:     rec.LeadCode,
		RawMessageID: rec.RawMessageID,
		FeedbackType: rec.FeedbackType,
		Content:      rec.Content,
		RecordedAt:   rec.RecordedAt.UTC(),
	}
	if _, err := s.db.NewInsert().Model(&row).Exec(ctx); err != nil {
		return fmt.Errorf("append feedback for %s: %w", rec.LeadCode, err)
	}
	rec.ID = row.ID
	return nil
}

func (s *Store) checkReferences(ctx context.Context, leadCode, rawMessageID string) error {
	leadExists, err := s.db.NewSelect().
		Model((*leadRow)(nil)).
		Where("code = ?", leadCode).
		Exists(ctx)
	if err != nil {
		return fmt.Errorf("check lead %s: %w", leadCode, err)
	}
	if !leadExists {
		return fmt.Errorf("%w: code=%s", contractx.ErrLeadNotFound, leadCode)
	}

	msgExists, err := s.Exists(ctx, rawMessageID)
	if err != nil {
		return err
	}
	if !msgExists {
		return fmt.Errorf("%w: raw message %s is not stored", contractx.ErrValidation, rawMessageID)
	}
	return nil
}

// HasProcessLog reports whether the raw message already has an audit entry.
// Redelivery handling keys on this rather than on message storage alone, so
// a delivery that died between ingest and apply gets a second chance.
func (s *Store) HasProcessLog(ctx context.Context, rawMessageID string) (bool, error) {
	exists, err := s.db.NewSelect().
		Model((*processLogRow)(nil)).
		Where("raw_message_id = ?", rawMessageID).
		Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("check process log for %s: %w", rawMessageID, err)
	}
	return exists, nil
}

// StatusOf implements the classifier's ledger snapshot lookup.
func (s *Store) StatusOf(ctx context.Context, code string) (contractx.LeadStatus, bool) {
	lead, err := s.GetLead(ctx, code)
	if err != nil {
		return contractx.StatusUnset, false
	}
	return lead.Status, true
}
