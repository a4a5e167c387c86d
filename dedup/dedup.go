// Package dedup suppresses repeat notifications for the same logical deal
// within a per-source cool-down window.
package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/aluiziolira/price-sentinel/kv"
	"github.com/aluiziolira/price-sentinel/models"
)

// Deduper is a TTL-keyed suppression cache over the ephemeral store.
// ShouldNotify never mutates state; callers mark only after the
// notification send succeeded, so a failed send stays eligible for the
// next cycle.
type Deduper struct {
	store kv.Store
}

// New builds a Deduper on the shared ephemeral store.
func New(store kv.Store) *Deduper {
	return &Deduper{store: store}
}

// ShouldNotify reports whether no unexpired mark exists for the deal.
func (d *Deduper) ShouldNotify(ctx context.Context, source models.Source, dedupKey string) (bool, error) {
	exists, err := d.store.Exists(ctx, Key(source, dedupKey))
	if err != nil {
		return false, fmt.Errorf("check dedup mark: %w", err)
	}
	return !exists, nil
}

// MarkNotified records that the deal was alerted, suppressing it for ttl.
// Once the mark expires the same drop may be alerted exactly once more.
func (d *Deduper) MarkNotified(ctx context.Context, source models.Source, dedupKey string, ttl time.Duration) error {
	if err := d.store.SetMark(ctx, Key(source, dedupKey), ttl); err != nil {
		return fmt.Errorf("set dedup mark: %w", err)
	}
	return nil
}

// Key is the ephemeral-store key for one (source, deal) pair.
func Key(source models.Source, dedupKey string) string {
	return fmt.Sprintf("alerted:%s:%s", source, dedupKey)
}
