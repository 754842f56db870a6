// Package sqlite provides a SQLite-backed implementation of the storage interfaces.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/mmynk/splitton/internal/models"
	"github.com/mmynk/splitton/internal/storage"
)

// Ensure SQLiteStore implements the storage interfaces
var (
	_ storage.Store           = (*SQLiteStore)(nil)
	_ storage.SettlementStore = (*SQLiteStore)(nil)
	_ storage.UserStore       = (*SQLiteStore)(nil)
)

// SQLiteStore implements storage.Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New creates a new SQLiteStore with the given database path.
// It creates the parent directories and runs migrations automatically.
func New(dbPath string) (*SQLiteStore, error) {
	// Create parent directory if it doesn't exist
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer at a time; foreign_keys is a per-connection pragma.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveEvent writes the event and replaces its roster and expenses in one
// transaction.
func (s *SQLiteStore) SaveEvent(ctx context.Context, ev *models.Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO events (id, name, description, currency, created_by, created_at, last_modified, is_active)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   name = excluded.name,
		   description = excluded.description,
		   currency = excluded.currency,
		   created_by = excluded.created_by,
		   last_modified = excluded.last_modified,
		   is_active = excluded.is_active`,
		ev.ID, ev.Name, ev.Description, ev.Currency, ev.CreatedBy, ev.CreatedAt, ev.LastModified, ev.IsActive,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert event: %w", err)
	}

	// Children are rewritten wholesale; expense_beneficiaries cascade from expenses.
	if _, err := tx.ExecContext(ctx, "DELETE FROM participants WHERE event_id = ?", ev.ID); err != nil {
		return fmt.Errorf("failed to clear participants: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM expenses WHERE event_id = ?", ev.ID); err != nil {
		return fmt.Errorf("failed to clear expenses: %w", err)
	}

	for i, p := range ev.Participants {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO participants (event_id, id, position, display_name, username, wallet_address, joined_at, is_active)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			ev.ID, p.ID, i, p.DisplayName, p.Username, p.WalletAddress, p.JoinedAt, p.IsActive,
		)
		if err != nil {
			return fmt.Errorf("failed to insert participant: %w", err)
		}
	}

	for i, e := range ev.Expenses {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO expenses (event_id, id, position, description, amount, currency, paid_by, category, created_at, last_modified, deleted)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			ev.ID, e.ID, i, e.Description, e.Amount.String(), e.Currency, e.PaidBy, e.Category,
			e.CreatedAt, e.LastModified, e.Deleted,
		)
		if err != nil {
			return fmt.Errorf("failed to insert expense: %w", err)
		}

		for j, pid := range e.SharedBy {
			_, err = tx.ExecContext(ctx,
				`INSERT INTO expense_beneficiaries (event_id, expense_id, participant_id, position)
				 VALUES (?, ?, ?, ?)`,
				ev.ID, e.ID, pid, j,
			)
			if err != nil {
				return fmt.Errorf("failed to insert expense beneficiary: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetEvent retrieves an event by ID, including its roster and expenses.
// Returns nil, nil if the event does not exist.
func (s *SQLiteStore) GetEvent(ctx context.Context, eventID string) (*models.Event, error) {
	ev := &models.Event{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, description, currency, created_by, created_at, last_modified, is_active
		 FROM events WHERE id = ?`,
		eventID,
	).Scan(&ev.ID, &ev.Name, &ev.Description, &ev.Currency, &ev.CreatedBy, &ev.CreatedAt, &ev.LastModified, &ev.IsActive)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}

	if ev.Participants, err = s.getParticipants(ctx, eventID); err != nil {
		return nil, err
	}
	if ev.Expenses, err = s.getExpenses(ctx, eventID); err != nil {
		return nil, err
	}
	return ev, nil
}

func (s *SQLiteStore) getParticipants(ctx context.Context, eventID string) ([]models.Participant, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, display_name, username, wallet_address, joined_at, is_active
		 FROM participants WHERE event_id = ? ORDER BY position`,
		eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get participants: %w", err)
	}
	defer rows.Close()

	participants := []models.Participant{}
	for rows.Next() {
		var p models.Participant
		if err := rows.Scan(&p.ID, &p.DisplayName, &p.Username, &p.WalletAddress, &p.JoinedAt, &p.IsActive); err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		participants = append(participants, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate participants: %w", err)
	}
	return participants, nil
}

func (s *SQLiteStore) getExpenses(ctx context.Context, eventID string) ([]models.Expense, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, description, amount, currency, paid_by, category, created_at, last_modified, deleted
		 FROM expenses WHERE event_id = ? ORDER BY position`,
		eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get expenses: %w", err)
	}

	expenses := []models.Expense{}
	index := make(map[string]int)
	for rows.Next() {
		var e models.Expense
		if err := rows.Scan(&e.ID, &e.Description, &e.Amount, &e.Currency, &e.PaidBy, &e.Category,
			&e.CreatedAt, &e.LastModified, &e.Deleted); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan expense: %w", err)
		}
		index[e.ID] = len(expenses)
		expenses = append(expenses, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate expenses: %w", err)
	}

	// The pool holds a single connection, so beneficiaries are read after the
	// expense cursor is closed.
	benRows, err := s.db.QueryContext(ctx,
		`SELECT expense_id, participant_id FROM expense_beneficiaries
		 WHERE event_id = ? ORDER BY expense_id, position`,
		eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get expense beneficiaries: %w", err)
	}
	defer benRows.Close()

	for benRows.Next() {
		var expenseID, participantID string
		if err := benRows.Scan(&expenseID, &participantID); err != nil {
			return nil, fmt.Errorf("failed to scan expense beneficiary: %w", err)
		}
		if i, ok := index[expenseID]; ok {
			expenses[i].SharedBy = append(expenses[i].SharedBy, participantID)
		}
	}
	if err := benRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate expense beneficiaries: %w", err)
	}
	return expenses, nil
}

// DeleteEvent removes an event and, via cascade, its roster and expenses.
func (s *SQLiteStore) DeleteEvent(ctx context.Context, eventID string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM events WHERE id = ?", eventID); err != nil {
		return fmt.Errorf("failed to delete event: %w", err)
	}
	return nil
}

// ListEventIDs returns every stored event ID.
func (s *SQLiteStore) ListEventIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id FROM events ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan event id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}
	return ids, nil
}
