package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/mmynk/splitton/internal/models"
)

var _ Store = (*Fallback)(nil)

// Fallback reads from a primary store and falls back to a secondary one when
// the primary misses or fails. Writes go to both; they succeed when at least
// one store accepted them. A primary hit is served as is, even when the
// secondary holds a newer copy.
type Fallback struct {
	primary   Store
	secondary Store
	skipWarm  func(eventID string) bool
}

// FallbackOption configures a Fallback.
type FallbackOption func(*Fallback)

// SkipWarm stops secondary hits for matching events from being copied into
// the primary.
func SkipWarm(skip func(eventID string) bool) FallbackOption {
	return func(f *Fallback) { f.skipWarm = skip }
}

// NewFallback composes primary and secondary.
func NewFallback(primary, secondary Store, opts ...FallbackOption) *Fallback {
	f := &Fallback{primary: primary, secondary: secondary}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Fallback) GetEvent(ctx context.Context, eventID string) (*models.Event, error) {
	ev, perr := f.primary.GetEvent(ctx, eventID)
	if perr == nil && ev != nil {
		return ev, nil
	}
	if perr != nil {
		slog.Warn("Primary store read failed, trying secondary", "event_id", eventID, "error", perr)
	}

	ev, serr := f.secondary.GetEvent(ctx, eventID)
	if serr != nil {
		if perr != nil {
			return nil, errors.Join(perr, serr)
		}
		return nil, serr
	}
	if ev != nil && perr == nil && (f.skipWarm == nil || !f.skipWarm(eventID)) {
		// Warm the primary so the next read is served locally.
		if err := f.primary.SaveEvent(ctx, ev); err != nil {
			slog.Warn("Failed to warm primary store", "event_id", eventID, "error", err)
		}
	}
	return ev, nil
}

func (f *Fallback) SaveEvent(ctx context.Context, event *models.Event) error {
	return f.both("save", event.ID, func(s Store) error { return s.SaveEvent(ctx, event) })
}

func (f *Fallback) DeleteEvent(ctx context.Context, eventID string) error {
	return f.both("delete", eventID, func(s Store) error { return s.DeleteEvent(ctx, eventID) })
}

// ListEventIDs merges both stores' listings.
func (f *Fallback) ListEventIDs(ctx context.Context) ([]string, error) {
	pids, perr := f.primary.ListEventIDs(ctx)
	sids, serr := f.secondary.ListEventIDs(ctx)
	if perr != nil && serr != nil {
		return nil, errors.Join(perr, serr)
	}
	ids := append(pids, sids...)
	slices.Sort(ids)
	return slices.Compact(ids), nil
}

func (f *Fallback) Close() error {
	return errors.Join(f.primary.Close(), f.secondary.Close())
}

func (f *Fallback) both(op, eventID string, fn func(Store) error) error {
	perr := fn(f.primary)
	serr := fn(f.secondary)
	switch {
	case perr != nil && serr != nil:
		return fmt.Errorf("%s event %s failed on both stores: %w", op, eventID, errors.Join(perr, serr))
	case perr != nil:
		slog.Warn("Primary store write failed", "op", op, "event_id", eventID, "error", perr)
	case serr != nil:
		slog.Warn("Secondary store write failed", "op", op, "event_id", eventID, "error", serr)
	}
	return nil
}
