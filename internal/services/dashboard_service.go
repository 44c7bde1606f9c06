// Package services – DashboardService
//
// This file implements dashboard metrics. Each (clinic, timeframe) summary is
// computed from the relational store and cached for the cache's TTL; at most
// one computation per key runs at a time. When the request names no
// timeframe, the user's saved dashboard preference is used.
package services

import (
	"context"
	"fmt"
	"slices"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/facecloud/internal/domain"
	"github.com/tbourn/facecloud/internal/metricscache"
	"github.com/tbourn/facecloud/internal/repo"
)

// PreferenceReader supplies a user's saved timeframe.
type PreferenceReader interface {
	Get(ctx context.Context, userID string) (domain.Preferences, error)
}

// DashboardService serves cached clinic metrics.
type DashboardService struct {
	DB      *gorm.DB
	Clinics ClinicRepo
	Cache   *metricscache.Cache[domain.Metrics]
	Prefs   PreferenceReader
	Clock   clockwork.Clock
}

// NewDashboardService constructs a DashboardService on real time.
func NewDashboardService(db *gorm.DB, clinics ClinicRepo, cache *metricscache.Cache[domain.Metrics], prefs PreferenceReader) *DashboardService {
	return &DashboardService{DB: db, Clinics: clinics, Cache: cache, Prefs: prefs, Clock: clockwork.NewRealClock()}
}

// Metrics returns the summary for clinicID over timeframe. An empty clinicID
// selects the owner's first clinic; an empty timeframe selects the saved
// preference.
func (s *DashboardService) Metrics(ctx context.Context, ownerID, clinicID, timeframe string) (domain.Metrics, error) {
	ctx, span := otel.Tracer("services/DashboardService").Start(ctx, "Metrics",
		trace.WithAttributes(attribute.String("clinic.id", clinicID)))
	defer span.End()

	ids, err := s.Clinics.ListClinicIDs(ctx, s.DB, ownerID)
	if err != nil {
		return domain.Metrics{}, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	switch {
	case len(ids) == 0:
		return domain.Metrics{}, ErrClinicNotFound
	case clinicID == "":
		clinicID = ids[0]
	case !slices.Contains(ids, clinicID):
		return domain.Metrics{}, ErrClinicNotFound
	}

	if timeframe == "" && s.Prefs != nil {
		p, err := s.Prefs.Get(ctx, ownerID)
		if err != nil {
			return domain.Metrics{}, fmt.Errorf("%w: %v", ErrFetchFailed, err)
		}
		timeframe = string(p.Timeframe)
	}
	if timeframe == "" {
		timeframe = string(domain.TimeframeWeek)
	}
	tf, err := domain.ParseTimeframe(timeframe)
	if err != nil {
		return domain.Metrics{}, ErrInvalidTimeframe
	}
	span.SetAttributes(attribute.String("timeframe", string(tf)))

	m, err := s.Cache.GetOrFetch(ctx, clinicID, string(tf), func(ctx context.Context) (domain.Metrics, error) {
		now := s.Clock.Now().UTC()
		m, err := repo.ClinicMetrics(ctx, s.DB, clinicID, tf.Since(now))
		if err != nil {
			return m, err
		}
		m.Timeframe = tf
		m.GeneratedAt = now
		return m, nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return domain.Metrics{}, ctx.Err()
		}
		span.RecordError(err)
		return domain.Metrics{}, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	return m, nil
}

// Refresh drops the cached summaries of clinicID so the next request
// recomputes them.
func (s *DashboardService) Refresh(clinicID string) {
	s.Cache.Invalidate(clinicID)
}
