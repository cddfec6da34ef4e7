package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// DecisionRecord is one persisted refund decision.
type DecisionRecord struct {
	ID          int64
	SessionID   string
	Status      string
	RefundID    string
	Amount      float64
	Reason      string
	Email       string
	Last4       string
	OrderNumber int
	CreatedAt   time.Time
}

// RecordDecision appends a decision to the history.
func (s *Store) RecordDecision(ctx context.Context, rec DecisionRecord) error {
	if s.readOnly {
		return fmt.Errorf("config: record decision: store opened read-only")
	}
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
        INSERT INTO decisions
            (instance_name, session_id, status, refund_id, amount, reason, email, last4, order_number, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `, s.instanceName, rec.SessionID, rec.Status, rec.RefundID, rec.Amount,
		rec.Reason, rec.Email, rec.Last4, rec.OrderNumber, createdAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("config: record decision for session %s: %w", rec.SessionID, err)
	}
	return nil
}

const decisionColumns = `id, session_id, status, refund_id, amount, reason, email, last4, order_number, created_at`

func scanDecision(row interface{ Scan(dest ...any) error }) (DecisionRecord, error) {
	var rec DecisionRecord
	var createdAt string
	err := row.Scan(&rec.ID, &rec.SessionID, &rec.Status, &rec.RefundID, &rec.Amount,
		&rec.Reason, &rec.Email, &rec.Last4, &rec.OrderNumber, &createdAt)
	if err != nil {
		return DecisionRecord{}, err
	}
	if ts, perr := time.Parse(time.RFC3339Nano, createdAt); perr == nil {
		rec.CreatedAt = ts
	}
	return rec, nil
}

// ListDecisions returns decisions newest first. limit <= 0 returns all.
func (s *Store) ListDecisions(ctx context.Context, limit int) ([]DecisionRecord, error) {
	query := fmt.Sprintf(`
        SELECT %s FROM decisions
        WHERE instance_name = ?
        ORDER BY id DESC
    `, decisionColumns)
	args := []any{s.instanceName}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("config: list decisions: %w", err)
	}
	defer rows.Close()

	var result []DecisionRecord
	for rows.Next() {
		rec, err := scanDecision(rows)
		if err != nil {
			return nil, fmt.Errorf("config: scan decision row: %w", err)
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("config: iterate decision rows: %w", err)
	}
	return result, nil
}

// LatestDecision returns the most recent decision, or NotFoundError when the
// history is empty.
func (s *Store) LatestDecision(ctx context.Context) (DecisionRecord, error) {
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(`
        SELECT %s FROM decisions
        WHERE instance_name = ?
        ORDER BY id DESC
        LIMIT 1
    `, decisionColumns), s.instanceName)

	rec, err := scanDecision(row)
	if err == sql.ErrNoRows {
		return DecisionRecord{}, NotFoundError{Entity: "decision"}
	}
	if err != nil {
		return DecisionRecord{}, fmt.Errorf("config: latest decision: %w", err)
	}
	return rec, nil
}

// CountDecisionsByStatus returns decision totals keyed by status.
func (s *Store) CountDecisionsByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT status, COUNT(*) FROM decisions
        WHERE instance_name = ?
        GROUP BY status
    `, s.instanceName)
	if err != nil {
		return nil, fmt.Errorf("config: count decisions: %w", err)
	}
	defer rows.Close()

	result := make(map[string]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("config: scan decision count: %w", err)
		}
		result[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("config: iterate decision counts: %w", err)
	}
	return result, nil
}
