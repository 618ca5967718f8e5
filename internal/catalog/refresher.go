package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/soniam4/carbonfootprint-tracker/internal/domain"
	"github.com/soniam4/carbonfootprint-tracker/internal/observability"
)

// FactorSource reads the emission factors of the applied catalog.
type FactorSource interface {
	CatalogVersion(ctx context.Context) (string, error)
	ListEmissionFactors(ctx context.Context) ([]domain.EmissionFactor, error)
}

// Refresher rebuilds the emission factor table from storage on an interval and
// swaps it in atomically. Lookups never block on a refresh.
type Refresher struct {
	source   FactorSource
	interval time.Duration
	table    atomic.Pointer[domain.FactorTable]
	logger   zerolog.Logger
	done     chan struct{}
}

// RefresherOption configures a Refresher.
type RefresherOption func(*Refresher)

// WithLogger sets the refresher logger.
func WithLogger(logger zerolog.Logger) RefresherOption {
	return func(r *Refresher) {
		r.logger = logger
	}
}

// NewRefresher constructs a Refresher. Until the first Refresh every lookup misses.
func NewRefresher(source FactorSource, interval time.Duration, opts ...RefresherOption) *Refresher {
	r := &Refresher{
		source:   source,
		interval: interval,
		logger:   zerolog.Nop(),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.table.Store(domain.NewFactorTable("", nil))
	return r
}

// Refresh reloads the table once. The previous table stays in place on error.
func (r *Refresher) Refresh(ctx context.Context) error {
	version, err := r.source.CatalogVersion(ctx)
	if err != nil {
		return fmt.Errorf("catalog version: %w", err)
	}
	factors, err := r.source.ListEmissionFactors(ctx)
	if err != nil {
		return fmt.Errorf("list emission factors: %w", err)
	}

	next := domain.NewFactorTable(version, factors)
	prev := r.table.Swap(next)
	observability.RecordCatalogLoaded(next.Version(), next.Len())
	if prev.Version() != next.Version() {
		r.logger.Info().
			Str("version", next.Version()).
			Str("previous", prev.Version()).
			Int("keys", next.Len()).
			Msg("emission factor table loaded")
	}
	return nil
}

// Start refreshes on every tick until ctx is cancelled. It should be called in a goroutine.
func (r *Refresher) Start(ctx context.Context) {
	defer close(r.done)
	if r.interval <= 0 {
		return
	}
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if err := r.Refresh(ctx); err != nil && !errors.Is(err, context.Canceled) {
			r.logger.Warn().Err(err).Msg("emission factor refresh failed")
		}
	}
}

// Wait blocks until Start returns.
func (r *Refresher) Wait() {
	<-r.done
}

// Table returns the table currently in use.
func (r *Refresher) Table() *domain.FactorTable {
	return r.table.Load()
}

// LookupFactor implements domain.FactorLookup against the current table.
func (r *Refresher) LookupFactor(activityType string, categoryID int64, unit string) (domain.EmissionFactor, bool) {
	return r.table.Load().LookupFactor(activityType, categoryID, unit)
}
