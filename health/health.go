// Package health tracks whether each source is healthy enough to trust.
// Two independent counters per source distinguish "crashed" from "ran but
// found nothing"; escalations fire only on sustained anomalies.
package health

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aluiziolira/price-sentinel/kv"
	"github.com/aluiziolira/price-sentinel/models"
)

// reminderEvery spaces out repeat escalations after the failure threshold
// has been crossed.
const reminderEvery = 10

// Thresholds configures when a source's counters escalate.
type Thresholds struct {
	Failures int64
	Empty    int64
}

// Escalator delivers operator-facing system alerts, distinct from product
// price alerts.
type Escalator interface {
	SendSystemAlert(ctx context.Context, title, message string) error
}

// Monitor maintains the per-source failure and empty counters in the
// ephemeral store. Counter updates are atomic store operations, so
// overlapping runs of one source cannot corrupt the counts.
type Monitor struct {
	store      kv.Store
	escalator  Escalator
	thresholds map[models.Source]Thresholds
	logger     *slog.Logger
}

// NewMonitor builds a Monitor. A nil logger falls back to slog.Default.
func NewMonitor(store kv.Store, escalator Escalator, thresholds map[models.Source]Thresholds, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		store:      store,
		escalator:  escalator,
		thresholds: thresholds,
		logger:     logger,
	}
}

func failuresKey(source models.Source) string {
	return fmt.Sprintf("monitor:%s:failures", source)
}

func emptyKey(source models.Source) string {
	return fmt.Sprintf("monitor:%s:empty", source)
}

func (m *Monitor) threshold(source models.Source) Thresholds {
	if t, ok := m.thresholds[source]; ok {
		return t
	}
	return Thresholds{Failures: 3, Empty: 20}
}

// RecordFailure increments the failure counter. At exactly the threshold it
// emits one escalation; past it, a reminder fires every ten further
// failures. The empty counter is untouched.
func (m *Monitor) RecordFailure(ctx context.Context, source models.Source, errMsg string) {
	count, err := m.store.Incr(ctx, failuresKey(source))
	if err != nil {
		m.logger.Error("record failure", slog.String("source", string(source)), slog.Any("error", err))
		return
	}

	limit := m.threshold(source).Failures
	m.logger.Warn("source scan failed",
		slog.String("source", string(source)),
		slog.Int64("count", count),
		slog.Int64("limit", limit),
		slog.String("cause", errMsg),
	)

	switch {
	case count == limit:
		m.escalate(ctx,
			fmt.Sprintf("Repeated failures in %s", source),
			fmt.Sprintf("The source has failed %d consecutive times.\nLatest error: %s", count, errMsg),
		)
	case count > limit && (count-limit)%reminderEvery == 0:
		m.escalate(ctx,
			fmt.Sprintf("Failures persist in %s", source),
			fmt.Sprintf("The source is at %d consecutive failures. Check the logs.", count),
		)
	}
}

// RecordEmptyResult registers a run that completed without crashing but
// yielded nothing. Completing clears the failure counter; the empty counter
// escalates once at its threshold and, unlike failures, never reminds.
func (m *Monitor) RecordEmptyResult(ctx context.Context, source models.Source) {
	if err := m.store.Del(ctx, failuresKey(source)); err != nil {
		m.logger.Error("clear failure counter", slog.String("source", string(source)), slog.Any("error", err))
	}

	count, err := m.store.Incr(ctx, emptyKey(source))
	if err != nil {
		m.logger.Error("record empty result", slog.String("source", string(source)), slog.Any("error", err))
		return
	}

	if count == m.threshold(source).Empty {
		m.escalate(ctx,
			fmt.Sprintf("No results from %s", source),
			fmt.Sprintf("The source has completed %d runs without finding anything.\nPossible layout change, block, or banned IP.", count),
		)
	}
}

// RecordFoundResults clears both counters: a productive run is evidence the
// source is fully healthy.
func (m *Monitor) RecordFoundResults(ctx context.Context, source models.Source) {
	failures, err := m.store.GetInt(ctx, failuresKey(source))
	if err == nil && failures > 0 {
		m.logger.Info("source recovered",
			slog.String("source", string(source)),
			slog.Int64("previous_failures", failures),
		)
	}
	if err := m.store.Del(ctx, failuresKey(source), emptyKey(source)); err != nil {
		m.logger.Error("clear health counters", slog.String("source", string(source)), slog.Any("error", err))
	}
}

// State derives the current health of one source from its counters.
func (m *Monitor) State(ctx context.Context, source models.Source) (models.HealthState, error) {
	failures, err := m.store.GetInt(ctx, failuresKey(source))
	if err != nil {
		return models.HealthState{}, fmt.Errorf("read failure counter: %w", err)
	}
	empty, err := m.store.GetInt(ctx, emptyKey(source))
	if err != nil {
		return models.HealthState{}, fmt.Errorf("read empty counter: %w", err)
	}

	t := m.threshold(source)
	state := models.HealthState{
		Failures:         failures,
		ConsecutiveEmpty: empty,
		Status:           models.StatusOK,
	}
	switch {
	case failures >= t.Failures || empty >= t.Empty:
		state.Status = models.StatusCritical
	case failures > 0 || empty > 0:
		state.Status = models.StatusWarning
	}
	return state, nil
}

// Snapshot reports the health of every configured source.
func (m *Monitor) Snapshot(ctx context.Context) (map[models.Source]models.HealthState, error) {
	out := make(map[models.Source]models.HealthState, len(m.thresholds))
	for source := range m.thresholds {
		state, err := m.State(ctx, source)
		if err != nil {
			return nil, err
		}
		out[source] = state
	}
	return out, nil
}

func (m *Monitor) escalate(ctx context.Context, title, message string) {
	if m.escalator == nil {
		m.logger.Error("no escalator configured, dropping system alert", slog.String("title", title))
		return
	}
	if err := m.escalator.SendSystemAlert(ctx, title, message); err != nil {
		m.logger.Error("send system alert", slog.String("title", title), slog.Any("error", err))
	}
}
