// Package store persists the price baselines that drop detection compares
// against. One row per tracked item, identified by URL and, when the
// marketplace exposes one, a SKU.
package store

import (
	"context"

	"github.com/aluiziolira/price-sentinel/models"
)

// priceEpsilon absorbs floating-point noise: stored prices are only
// overwritten when the observed price moves by more than this.
const priceEpsilon = 0.1

// Outcome reports what an upsert did.
type Outcome int

const (
	OutcomeCreated Outcome = iota
	OutcomeUpdated
)

// Store is the baseline store contract. Find must be called before Upsert
// when the caller needs the prior price: Upsert overwrites it.
type Store interface {
	// Find returns the tracked product matching the SKU or URL, nil when
	// neither is known. An empty sku matches nothing.
	Find(ctx context.Context, sku, url string) (*models.TrackedProduct, error)

	// Upsert records an observation. First sighting inserts the observed
	// price as the baseline; later sightings overwrite the price only when
	// it moved by more than the epsilon, and always refresh last_checked.
	Upsert(ctx context.Context, obs models.Observation) (Outcome, error)

	// ListBySKUPrefix returns all products whose SKU starts with prefix.
	ListBySKUPrefix(ctx context.Context, prefix string) ([]models.TrackedProduct, error)

	// Count returns the number of tracked products.
	Count(ctx context.Context) (int64, error)

	// WithTx runs fn against a transactional view of the store, committing
	// on success and rolling the whole batch back on error.
	WithTx(ctx context.Context, fn func(Store) error) error
}
