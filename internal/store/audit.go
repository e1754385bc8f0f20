package store

import (
	"context"
	"fmt"
)

// RecordAudit stores one approver decision.
func (s *Store) RecordAudit(ctx context.Context, record *AuditRecord) error {
	now := timestamp()
	var id int64
	err := s.q.QueryRowxContext(ctx, s.rebind(
		`INSERT INTO audit_records (identity_id, approver_id, action, reason, created_at)
        VALUES (?, ?, ?, ?, ?) RETURNING id`),
		record.IdentityID,
		nullableID(record.ApproverID),
		record.Action,
		nullableString(record.Reason),
		now,
	).Scan(&id)
	if err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	record.ID = id
	record.CreatedAt = parseTime(now)
	return nil
}

// AuditHistory returns the decisions recorded for an identity, newest first.
func (s *Store) AuditHistory(ctx context.Context, identityID int64) ([]AuditRecord, error) {
	var rows []auditRow
	err := s.q.SelectContext(ctx, &rows, s.rebind(
		"SELECT id, identity_id, approver_id, action, reason, created_at FROM audit_records WHERE identity_id = ? ORDER BY id DESC"),
		identityID)
	if err != nil {
		return nil, fmt.Errorf("list audit records: %w", err)
	}
	out := make([]AuditRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, AuditRecord{
			ID:         row.ID,
			IdentityID: row.IdentityID,
			ApproverID: row.ApproverID.Int64,
			Action:     row.Action,
			Reason:     row.Reason.String,
			CreatedAt:  parseTime(row.CreatedAt),
		})
	}
	return out, nil
}

// RecordOperation stores one superuser change.
func (s *Store) RecordOperation(ctx context.Context, entry *OperationLog) error {
	now := timestamp()
	var id int64
	err := s.q.QueryRowxContext(ctx, s.rebind(
		`INSERT INTO operation_logs (operator_id, target_id, operation, before_json, after_json, created_at)
        VALUES (?, ?, ?, ?, ?, ?) RETURNING id`),
		nullableID(entry.OperatorID),
		nullableID(entry.TargetID),
		entry.Operation,
		nullableString(entry.Before),
		nullableString(entry.After),
		now,
	).Scan(&id)
	if err != nil {
		return fmt.Errorf("insert operation log: %w", err)
	}
	entry.ID = id
	entry.CreatedAt = parseTime(now)
	return nil
}

// OperationLogs returns the most recent superuser changes.
func (s *Store) OperationLogs(ctx context.Context, limit int) ([]OperationLog, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []operationRow
	err := s.q.SelectContext(ctx, &rows, s.rebind(
		"SELECT id, operator_id, target_id, operation, before_json, after_json, created_at FROM operation_logs ORDER BY id DESC LIMIT ?"),
		limit)
	if err != nil {
		return nil, fmt.Errorf("list operation logs: %w", err)
	}
	out := make([]OperationLog, 0, len(rows))
	for _, row := range rows {
		out = append(out, OperationLog{
			ID:         row.ID,
			OperatorID: row.OperatorID.Int64,
			TargetID:   row.TargetID.Int64,
			Operation:  row.Operation,
			Before:     row.Before.String,
			After:      row.After.String,
			CreatedAt:  parseTime(row.CreatedAt),
		})
	}
	return out, nil
}
