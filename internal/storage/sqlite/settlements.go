package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/splitton/internal/models"
)

// CreateSettlement persists a settlement attempt.
func (s *SQLiteStore) CreateSettlement(ctx context.Context, rec *models.SettlementRecord) error {
	// Generate ID if not set
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt == 0 {
		rec.CreatedAt = time.Now().UnixMilli()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settlements (id, event_id, from_id, to_id, amount, currency, unit_amount, unit, tx_ref, status, error, created_at, created_by)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.EventID, rec.FromID, rec.ToID, rec.Amount.String(), rec.Currency,
		rec.UnitAmount.String(), rec.Unit, nullable(rec.TxRef), rec.Status, nullable(rec.Error),
		rec.CreatedAt, rec.CreatedBy,
	)
	if err != nil {
		return fmt.Errorf("failed to insert settlement: %w", err)
	}

	return nil
}

// ListSettlements retrieves all settlement attempts for an event, newest first.
func (s *SQLiteStore) ListSettlements(ctx context.Context, eventID string) ([]*models.SettlementRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, event_id, from_id, to_id, amount, currency, unit_amount, unit, tx_ref, status, error, created_at, created_by
		 FROM settlements WHERE event_id = ? ORDER BY created_at DESC, rowid DESC`,
		eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list settlements: %w", err)
	}
	defer rows.Close()

	var records []*models.SettlementRecord
	for rows.Next() {
		rec := &models.SettlementRecord{}
		var txRef, errMsg sql.NullString

		if err := rows.Scan(&rec.ID, &rec.EventID, &rec.FromID, &rec.ToID, &rec.Amount, &rec.Currency,
			&rec.UnitAmount, &rec.Unit, &txRef, &rec.Status, &errMsg, &rec.CreatedAt, &rec.CreatedBy); err != nil {
			return nil, fmt.Errorf("failed to scan settlement: %w", err)
		}
		rec.TxRef = txRef.String
		rec.Error = errMsg.String

		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate settlements: %w", err)
	}

	return records, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
