package store

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aluiziolira/price-sentinel/models"
)

// Memory is an in-process Store used by tests and by dry runs without a
// database. WithTx is best-effort: mutations apply immediately.
type Memory struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]*models.TrackedProduct
}

// NewMemory builds an empty store.
func NewMemory() *Memory {
	return &Memory{rows: make(map[int64]*models.TrackedProduct)}
}

func (m *Memory) Find(_ context.Context, sku, url string) (*models.TrackedProduct, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row := m.findLocked(sku, url)
	if row == nil {
		return nil, nil
	}
	clone := *row
	return &clone, nil
}

func (m *Memory) findLocked(sku, url string) *models.TrackedProduct {
	for _, row := range m.rows {
		if sku != "" && row.SKU == sku {
			return row
		}
		if row.URL == url {
			return row
		}
	}
	return nil
}

func (m *Memory) Upsert(_ context.Context, obs models.Observation) (Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	if row := m.findLocked(obs.SKU, obs.URL); row != nil {
		if obs.Price > 0 && math.Abs(obs.Price-row.CurrentPrice) > priceEpsilon {
			row.CurrentPrice = obs.Price
		}
		if row.SKU == "" {
			row.SKU = obs.SKU
		}
		row.LastChecked = now
		return OutcomeUpdated, nil
	}

	m.nextID++
	m.rows[m.nextID] = &models.TrackedProduct{
		ID:            m.nextID,
		Name:          obs.Name,
		URL:           obs.URL,
		SKU:           obs.SKU,
		CurrentPrice:  obs.Price,
		OriginalPrice: obs.OriginalPrice,
		LastChecked:   now,
	}
	return OutcomeCreated, nil
}

func (m *Memory) ListBySKUPrefix(_ context.Context, prefix string) ([]models.TrackedProduct, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.TrackedProduct
	for _, row := range m.rows {
		if row.SKU != "" && strings.HasPrefix(row.SKU, prefix) {
			out = append(out, *row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) Count(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.rows)), nil
}

func (m *Memory) WithTx(_ context.Context, fn func(Store) error) error {
	return fn(m)
}
