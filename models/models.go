// Package models defines the data structures shared across the monitor.
package models

import "time"

// Source identifies one external marketplace or deal feed.
type Source string

const (
	SourceAmazon          Source = "amazon"
	SourcePromoDescuentos Source = "promodescuentos"
	SourceOfficeDepot     Source = "officedepot"
	SourceMercadoLibre    Source = "mercadolibre"
	SourceWalmart         Source = "walmart"
)

// TrackedProduct is one durable row in the baseline store. The identity is
// the URL, plus the SKU when the marketplace exposes one.
type TrackedProduct struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	URL           string    `json:"url"`
	SKU           string    `json:"sku,omitempty"`
	CurrentPrice  float64   `json:"current_price"`
	OriginalPrice float64   `json:"original_price,omitempty"`
	LastChecked   time.Time `json:"last_checked"`
}

// Observation is a freshly scraped sighting of a product, before it is
// reconciled against the baseline store.
type Observation struct {
	Name          string
	URL           string
	SKU           string
	Price         float64
	OriginalPrice float64
}

// CanonicalDeal is the pipeline-internal representation every source's raw
// record is normalized into. PreviousPrice is zero when the source provides
// no reference price of its own.
type CanonicalDeal struct {
	Source        Source
	Title         string
	Price         float64
	PreviousPrice float64
	DiscountPct   int
	URL           string
	DedupKey      string
	Metadata      map[string]string
}

// HealthStatus is derived from the two health counters, never stored.
type HealthStatus string

const (
	StatusOK       HealthStatus = "ok"
	StatusWarning  HealthStatus = "warning"
	StatusCritical HealthStatus = "critical"
)

// HealthState is the per-source view reported by the status surface.
type HealthState struct {
	Failures         int64        `json:"failures"`
	ConsecutiveEmpty int64        `json:"consecutive_empty"`
	Status           HealthStatus `json:"status"`
}
