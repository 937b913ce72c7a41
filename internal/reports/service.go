package reports

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/schoolbooks/internal/billing"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	ListBookRows(ctx context.Context, filter Filter) ([]Row, error)
	ListSchoolIDs(ctx context.Context) ([]string, error)
}

// MetricsPort records cache effectiveness.
type MetricsPort interface {
	ObserveReportCache(hit bool)
}

// Service builds billing reports on top of the rollup engine.
type Service struct {
	repo    RepositoryPort
	cache   *Cache
	metrics MetricsPort
	flights singleflight.Group
}

// NewService constructs the report service. cache and metrics may be nil.
func NewService(repo RepositoryPort, cache *Cache, metrics MetricsPort) *Service {
	return &Service{repo: repo, cache: cache, metrics: metrics}
}

// Report returns the rollup for filter. Identical concurrent requests share one load.
func (s *Service) Report(ctx context.Context, filter Filter) (billing.Report, error) {
	if err := filter.Validate(); err != nil {
		return billing.Report{}, err
	}
	key, err := s.cache.BuildKey(ctx, filter.cacheParts()...)
	if err != nil {
		return billing.Report{}, fmt.Errorf("reports: cache key: %w", err)
	}

	ch := s.flights.DoChan(key, func() (any, error) {
		// Detached so one caller's cancellation does not fail everyone sharing the flight.
		flightCtx := context.WithoutCancel(ctx)
		var report billing.Report
		hit, err := s.cache.FetchJSON(flightCtx, key, &report, func(ctx context.Context) (any, error) {
			return s.build(ctx, filter)
		})
		if err != nil {
			return nil, err
		}
		if s.metrics != nil {
			s.metrics.ObserveReportCache(hit)
		}
		return report, nil
	})
	select {
	case <-ctx.Done():
		return billing.Report{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return billing.Report{}, res.Err
		}
		return res.Val.(billing.Report), nil
	}
}

func (s *Service) build(ctx context.Context, filter Filter) (billing.Report, error) {
	rows, err := s.repo.ListBookRows(ctx, filter)
	if err != nil {
		return billing.Report{}, fmt.Errorf("reports: load rows: %w", err)
	}
	bookRows := make([]billing.BookRow, 0, len(rows))
	for _, r := range rows {
		bookRows = append(bookRows, r.BookRow())
	}
	return billing.Rollup(bookRows), nil
}

// Warmup precomputes the unfiltered report for one school, or for every school when
// schoolID is blank. It returns how many reports were built.
func (s *Service) Warmup(ctx context.Context, schoolID string) (int, error) {
	ids := []string{strings.TrimSpace(schoolID)}
	if ids[0] == "" {
		var err error
		ids, err = s.repo.ListSchoolIDs(ctx)
		if err != nil {
			return 0, fmt.Errorf("reports: list schools: %w", err)
		}
	}
	warmed := 0
	for _, id := range ids {
		if _, err := s.Report(ctx, Filter{SchoolID: id}); err != nil {
			return warmed, fmt.Errorf("reports: warm %s: %w", id, err)
		}
		warmed++
	}
	return warmed, nil
}

// Invalidate drops every cached report.
func (s *Service) Invalidate(ctx context.Context) error {
	return s.cache.Bump(ctx)
}
