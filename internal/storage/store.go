// Package storage provides abstractions for persistent data storage.
package storage

import (
	"context"

	"github.com/mmynk/splitton/internal/models"
)

// Store defines the persistence boundary for events.
// This abstraction allows swapping storage backends (SQLite, in-memory,
// remote) without changing the ledger.
type Store interface {
	// GetEvent retrieves an event with its roster and expenses.
	// Returns nil, nil if the event is unknown.
	GetEvent(ctx context.Context, eventID string) (*models.Event, error)

	// SaveEvent writes the full event, replacing any previous version.
	// Saving the same event twice is harmless.
	SaveEvent(ctx context.Context, event *models.Event) error

	// DeleteEvent removes an event. Deleting an unknown event is not an error.
	DeleteEvent(ctx context.Context, eventID string) error

	// ListEventIDs returns the IDs of every stored event.
	ListEventIDs(ctx context.Context) ([]string, error)

	// Close releases any resources held by the store.
	Close() error
}

// SettlementStore persists settlement execution history.
type SettlementStore interface {
	// CreateSettlement records a transfer attempt; ID and CreatedAt are
	// filled in when empty.
	CreateSettlement(ctx context.Context, rec *models.SettlementRecord) error

	// ListSettlements returns an event's records, newest first.
	ListSettlements(ctx context.Context, eventID string) ([]*models.SettlementRecord, error)
}

// UserStore persists registered accounts.
type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error

	// GetUserByID returns nil, nil when the user does not exist.
	GetUserByID(ctx context.Context, id string) (*models.User, error)

	UpdateUser(ctx context.Context, user *models.User) error
}
