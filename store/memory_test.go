package store

import (
	"context"
	"testing"

	"github.com/aluiziolira/price-sentinel/models"
)

func TestMemoryUpsertCreatesOnFirstSighting(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	outcome, err := m.Upsert(ctx, models.Observation{
		Name:  "Laptop",
		URL:   "http://example.test/laptop",
		SKU:   "MLM123",
		Price: 1000,
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if outcome != OutcomeCreated {
		t.Fatalf("outcome = %v, want created", outcome)
	}

	if n, _ := m.Count(ctx); n != 1 {
		t.Fatalf("count = %d, want 1", n)
	}

	product, err := m.Find(ctx, "MLM123", "")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if product == nil || product.CurrentPrice != 1000 {
		t.Fatalf("first sighting should establish the observed price as baseline, got %+v", product)
	}
}

func TestMemoryUpsertEpsilon(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	obs := models.Observation{Name: "Chair", URL: "http://example.test/chair", Price: 500}
	if _, err := m.Upsert(ctx, obs); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	// Within epsilon: price untouched, last_checked still refreshed.
	before, _ := m.Find(ctx, "", obs.URL)
	obs.Price = 500.05
	outcome, err := m.Upsert(ctx, obs)
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if outcome != OutcomeUpdated {
		t.Fatalf("outcome = %v, want updated", outcome)
	}
	after, _ := m.Find(ctx, "", obs.URL)
	if after.CurrentPrice != 500 {
		t.Fatalf("price within epsilon should not overwrite, got %v", after.CurrentPrice)
	}
	if after.LastChecked.Before(before.LastChecked) {
		t.Fatalf("last_checked should always move forward")
	}

	obs.Price = 400
	if _, err := m.Upsert(ctx, obs); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	final, _ := m.Find(ctx, "", obs.URL)
	if final.CurrentPrice != 400 {
		t.Fatalf("price beyond epsilon should overwrite, got %v", final.CurrentPrice)
	}
}

func TestMemoryListBySKUPrefix(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	items := []models.Observation{
		{Name: "A", URL: "http://example.test/a", SKU: "MLM1", Price: 10},
		{Name: "B", URL: "http://example.test/b", SKU: "MLM2", Price: 20},
		{Name: "C", URL: "http://example.test/c", SKU: "OD9", Price: 30},
	}
	for _, obs := range items {
		if _, err := m.Upsert(ctx, obs); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}

	got, err := m.ListBySKUPrefix(ctx, "MLM")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("listed %d products, want 2", len(got))
	}
	if got[0].SKU != "MLM1" || got[1].SKU != "MLM2" {
		t.Fatalf("unexpected order: %v, %v", got[0].SKU, got[1].SKU)
	}
}
