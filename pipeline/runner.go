// Package pipeline orchestrates one scan cycle per source: fetch raw
// records, normalize, reconcile against the baseline store, qualify drops,
// dedupe and notify, and finally record the run's health outcome.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/aluiziolira/price-sentinel/config"
	"github.com/aluiziolira/price-sentinel/dedup"
	"github.com/aluiziolira/price-sentinel/detect"
	"github.com/aluiziolira/price-sentinel/fetch"
	"github.com/aluiziolira/price-sentinel/health"
	"github.com/aluiziolira/price-sentinel/models"
	"github.com/aluiziolira/price-sentinel/normalize"
	"github.com/aluiziolira/price-sentinel/store"
)

// Fetcher pulls one source's raw records.
type Fetcher interface {
	Source() models.Source
	Fetch(ctx context.Context) ([]models.RawRecord, error)
}

// Notifier delivers product-drop alerts.
type Notifier interface {
	SendDeal(ctx context.Context, deal models.CanonicalDeal) error
}

// Runner executes scan cycles. One Runner serves every source; per-source
// policy comes from the configuration at run time.
type Runner struct {
	cfg      *config.Config
	store    store.Store
	deduper  *dedup.Deduper
	health   *health.Monitor
	notifier Notifier
	metrics  *Metrics
	logger   *slog.Logger
}

// NewRunner wires the pipeline. metrics may be nil in tests.
func NewRunner(cfg *config.Config, st store.Store, deduper *dedup.Deduper, monitor *health.Monitor, notifier Notifier, metrics *Metrics, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		cfg:      cfg,
		store:    st,
		deduper:  deduper,
		health:   monitor,
		notifier: notifier,
		metrics:  metrics,
		logger:   logger,
	}
}

// Run executes one scan cycle for the fetcher's source. A fetch or persist
// error records a failure; a clean run records found or empty depending on
// whether any drop qualified, regardless of how many alerts survived the
// cool-down.
func (r *Runner) Run(ctx context.Context, fetcher Fetcher) error {
	source := fetcher.Source()
	sc := r.cfg.Source(source)
	logger := r.logger.With(slog.String("source", string(source)))

	start := time.Now()
	records, err := fetcher.Fetch(ctx)
	r.metrics.ObserveFetch(source, time.Since(start))
	if err != nil {
		r.metrics.IncScan(source, "failure")
		r.metrics.IncFetchError(source, string(fetch.KindOf(err)))
		r.health.RecordFailure(ctx, source, err.Error())
		return fmt.Errorf("fetch %s: %w", source, err)
	}

	deals, err := r.collect(ctx, source, sc, records, logger)
	if err != nil {
		r.metrics.IncScan(source, "failure")
		r.health.RecordFailure(ctx, source, err.Error())
		return fmt.Errorf("process %s: %w", source, err)
	}
	r.metrics.AddDeals(source, len(deals))

	sent := r.notify(ctx, source, sc, capByDiscount(deals, sc.MaxAlertsPerScan), logger)

	// Health tracks detection, not delivery: a run whose every alert was
	// deduped still proves the source works.
	if len(deals) > 0 {
		r.metrics.IncScan(source, "found")
		r.health.RecordFoundResults(ctx, source)
	} else {
		r.metrics.IncScan(source, "empty")
		r.health.RecordEmptyResult(ctx, source)
	}

	logger.Info("scan complete",
		slog.Int("records", len(records)),
		slog.Int("deals", len(deals)),
		slog.Int("alerts_sent", sent),
		slog.Duration("elapsed", time.Since(start)),
	)
	return nil
}

// collect turns raw records into qualifying deals. Feed-backed records
// carry their own reference price; baseline-backed records are reconciled
// against the store before its baseline is overwritten.
func (r *Runner) collect(ctx context.Context, source models.Source, sc config.SourceConfig, records []models.RawRecord, logger *slog.Logger) ([]models.CanonicalDeal, error) {
	var feed, tracked []models.RawRecord
	for _, rec := range records {
		if _, ok := observationOf(rec); ok {
			tracked = append(tracked, rec)
		} else {
			feed = append(feed, rec)
		}
	}

	deals := r.collectFeed(source, sc, feed, logger)

	baseline, err := r.collectBaseline(ctx, source, sc, tracked, logger)
	if err != nil {
		return nil, err
	}
	return append(deals, baseline...), nil
}

func (r *Runner) collectFeed(source models.Source, sc config.SourceConfig, records []models.RawRecord, logger *slog.Logger) []models.CanonicalDeal {
	var deals []models.CanonicalDeal
	for _, rec := range records {
		deal, err := normalize.Deal(rec)
		if err != nil {
			r.metrics.IncNormalizeError(source)
			logger.Debug("record rejected", slog.Any("error", err))
			continue
		}
		if sc.MinPrice > 0 && deal.Price < sc.MinPrice {
			continue
		}
		if sc.MaxPrice > 0 && deal.Price > sc.MaxPrice {
			continue
		}
		if float64(deal.DiscountPct) < sc.MinDropPct {
			continue
		}
		if excludedByKeyword(deal.Title, sc.ExcludedKeywords) {
			continue
		}
		if thread, ok := rec.(models.PromoThread); ok && sc.MinTemperature > 0 && thread.Temperature < sc.MinTemperature {
			continue
		}
		deals = append(deals, deal)
	}
	return deals
}

// collectBaseline runs Find, Evaluate, Upsert per record, batched into
// transactions so a mid-run crash loses at most one batch of baselines.
func (r *Runner) collectBaseline(ctx context.Context, source models.Source, sc config.SourceConfig, records []models.RawRecord, logger *slog.Logger) ([]models.CanonicalDeal, error) {
	policy := detect.Policy{MinDropPct: sc.MinDropPct, MinDropAmount: sc.MinDropAmount}
	batch := r.cfg.CommitBatch

	var deals []models.CanonicalDeal
	for from := 0; from < len(records); from += batch {
		to := from + batch
		if to > len(records) {
			to = len(records)
		}

		err := r.store.WithTx(ctx, func(st store.Store) error {
			for _, rec := range records[from:to] {
				obs, _ := observationOf(rec)
				if obs.Price <= 0 {
					r.metrics.IncNormalizeError(source)
					continue
				}
				prev, err := st.Find(ctx, obs.SKU, obs.URL)
				if err != nil {
					return fmt.Errorf("find %q: %w", obs.URL, err)
				}

				drop, qualifies := detect.Evaluate(prev, obs.Price, policy)
				if qualifies && sc.MinPrice > 0 && obs.Price < sc.MinPrice {
					// Below the price floor the item stays tracked but
					// never alerts.
					qualifies = false
				}

				if _, err := st.Upsert(ctx, obs); err != nil {
					return fmt.Errorf("upsert %q: %w", obs.URL, err)
				}

				if !qualifies {
					continue
				}
				deal, err := normalize.Deal(rec)
				if err != nil {
					r.metrics.IncNormalizeError(source)
					logger.Debug("record rejected", slog.Any("error", err))
					continue
				}
				deal.PreviousPrice = drop.PreviousPrice
				deal.DiscountPct = drop.DiscountPct
				deals = append(deals, deal)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return deals, nil
}

// notify runs the dedup gate and delivers the survivors. Marking happens
// only after a successful send, so a failed delivery retries next cycle.
func (r *Runner) notify(ctx context.Context, source models.Source, sc config.SourceConfig, deals []models.CanonicalDeal, logger *slog.Logger) int {
	sent := 0
	for _, deal := range deals {
		ok, err := r.deduper.ShouldNotify(ctx, source, deal.DedupKey)
		if err != nil {
			logger.Error("dedup check failed, suppressing alert",
				slog.String("dedup_key", deal.DedupKey),
				slog.Any("error", err),
			)
			continue
		}
		if !ok {
			r.metrics.IncAlertSuppressed(source)
			continue
		}

		if err := r.notifier.SendDeal(ctx, deal); err != nil {
			logger.Error("alert delivery failed",
				slog.String("dedup_key", deal.DedupKey),
				slog.Any("error", err),
			)
			continue
		}
		sent++
		r.metrics.IncAlertSent(source)

		if err := r.deduper.MarkNotified(ctx, source, deal.DedupKey, sc.AlertTTL); err != nil {
			// Worst case the same deal alerts again next cycle.
			logger.Error("mark notified failed",
				slog.String("dedup_key", deal.DedupKey),
				slog.Any("error", err),
			)
		}
	}
	return sent
}

// excludedByKeyword reports whether the title matches one of the configured
// keyword filters, case-insensitively.
func excludedByKeyword(title string, keywords []string) bool {
	if len(keywords) == 0 {
		return false
	}
	lowered := strings.ToLower(title)
	for _, keyword := range keywords {
		if strings.Contains(lowered, strings.ToLower(keyword)) {
			return true
		}
	}
	return false
}

// capByDiscount keeps the n deepest discounts, ties broken by price so the
// order is stable across runs.
func capByDiscount(deals []models.CanonicalDeal, n int) []models.CanonicalDeal {
	if n <= 0 || len(deals) <= n {
		return deals
	}
	sorted := make([]models.CanonicalDeal, len(deals))
	copy(sorted, deals)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].DiscountPct != sorted[j].DiscountPct {
			return sorted[i].DiscountPct > sorted[j].DiscountPct
		}
		return sorted[i].Price < sorted[j].Price
	})
	return sorted[:n]
}

// observationOf maps a baseline-backed record to the store's observation
// shape. Feed-backed records return false: their reference price comes from
// the feed itself, not from the store.
func observationOf(rec models.RawRecord) (models.Observation, bool) {
	switch v := rec.(type) {
	case models.StoreListing:
		return models.Observation{
			Name:  v.Name,
			URL:   v.URL,
			SKU:   v.SKU,
			Price: v.Price,
		}, true
	case models.WalmartListing:
		return models.Observation{
			Name:  v.Name,
			URL:   v.URL,
			SKU:   v.SKU,
			Price: v.Price,
		}, true
	case models.TrackedUpdate:
		return models.Observation{
			Name:          v.Name,
			URL:           v.URL,
			SKU:           v.SKU,
			Price:         v.Price,
			OriginalPrice: v.OriginalPrice,
		}, true
	default:
		return models.Observation{}, false
	}
}
