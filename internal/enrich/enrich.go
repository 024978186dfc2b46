// Package enrich adds contact details to discovered businesses through the
// Place Details endpoint.
package enrich

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/vindloodgieter/discovery/internal/discovery"
	"github.com/vindloodgieter/discovery/internal/metrics"
	"github.com/vindloodgieter/discovery/internal/places"
)

// DefaultLimit bounds a run when no limit is given.
const DefaultLimit = 100

// DetailsFetcher looks up contact fields for one place.
type DetailsFetcher interface {
	Details(ctx context.Context, externalID string) (places.Details, error)
}

// Summary reports the outcome of an enrichment pass.
type Summary struct {
	Candidates int `json:"candidates"`
	Enriched   int `json:"enriched"`
	Failed     int `json:"failed"`
}

// Enricher promotes discovered businesses to enriched.
type Enricher struct {
	details DetailsFetcher
	store   discovery.BusinessStore
	clock   discovery.Clock
	logger  *zap.Logger
}

// New builds an Enricher.
func New(details DetailsFetcher, store discovery.BusinessStore, clock discovery.Clock, logger *zap.Logger) *Enricher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Enricher{details: details, store: store, clock: clock, logger: logger}
}

// Run enriches up to limit discovered businesses. Per-record failures are
// logged and counted; only a cancelled context or a failed listing aborts.
func (e *Enricher) Run(ctx context.Context, filter discovery.ListFilter) (Summary, error) {
	filter.Status = discovery.StatusDiscovered
	if filter.Limit <= 0 {
		filter.Limit = DefaultLimit
	}
	candidates, err := e.store.ListBusinesses(ctx, filter)
	if err != nil {
		return Summary{}, fmt.Errorf("list discovered businesses: %w", err)
	}

	summary := Summary{Candidates: len(candidates)}
	for _, b := range candidates {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		logger := e.logger.With(zap.String("slug", b.Slug), zap.String("external_id", b.ExternalID))
		d, err := e.details.Details(ctx, b.ExternalID)
		if err != nil {
			if places.IsCanceled(err) {
				return summary, err
			}
			summary.Failed++
			logger.Warn("details lookup failed", zap.Error(err), zap.Bool("retryable", places.Retryable(err)))
			continue
		}

		update := b
		update.Phone = d.Phone
		update.Website = d.Website
		update.Status = discovery.StatusEnriched
		update.UpdatedAt = e.clock.Now()
		res, err := e.store.UpsertBusiness(ctx, update)
		if err != nil {
			summary.Failed++
			metrics.ObserveRecord("failed")
			logger.Error("persist enrichment failed", zap.Error(err))
			continue
		}
		metrics.ObserveRecord(string(res.Outcome))
		summary.Enriched++
		logger.Debug("business enriched", zap.Bool("phone", d.Phone != ""), zap.Bool("website", d.Website != ""))
	}

	e.logger.Info("enrichment finished",
		zap.Int("candidates", summary.Candidates),
		zap.Int("enriched", summary.Enriched),
		zap.Int("failed", summary.Failed),
	)
	return summary, nil
}
