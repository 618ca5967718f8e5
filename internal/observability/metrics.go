// Package observability exposes Prometheus instruments for the domain layer.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	activityPersistGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "carbon_tracker",
		Subsystem: "activities",
		Name:      "last_activity_persisted_timestamp_seconds",
		Help:      "Unix timestamp of the most recent activity persisted.",
	})

	activitiesRecorded = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "carbon_tracker",
		Subsystem: "activities",
		Name:      "recorded_total",
		Help:      "Number of activities recorded.",
	})

	co2Recorded = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "carbon_tracker",
		Subsystem: "activities",
		Name:      "co2_recorded_kg_total",
		Help:      "Kilograms of CO2 attributed to recorded activities.",
	})

	factorLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "carbon_tracker",
		Subsystem: "emission_factors",
		Name:      "lookups_total",
		Help:      "Emission factor lookups by result (matched or default).",
	}, []string{"result"})

	hookFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "carbon_tracker",
		Subsystem: "activities",
		Name:      "hook_failures_total",
		Help:      "Post-commit hook failures swallowed after an activity was recorded.",
	}, []string{"hook"})

	recommendationRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "carbon_tracker",
		Subsystem: "recommendations",
		Name:      "assignment_runs_total",
		Help:      "Recommendation assignment runs by outcome.",
	}, []string{"outcome"})

	recommendationsAssigned = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "carbon_tracker",
		Subsystem: "recommendations",
		Name:      "assigned_total",
		Help:      "Number of recommendations linked to users.",
	})

	catalogVersion = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "carbon_tracker",
		Subsystem: "catalog",
		Name:      "loaded_info",
		Help:      "Reference catalog currently loaded; value is the number of emission factor keys.",
	}, []string{"version"})
)

func init() {
	prometheus.MustRegister(
		activityPersistGauge,
		activitiesRecorded,
		co2Recorded,
		factorLookups,
		hookFailures,
		recommendationRuns,
		recommendationsAssigned,
		catalogVersion,
	)
}

// RecordActivityPersisted updates activity counters and the persistence watermark gauge.
func RecordActivityPersisted(ts time.Time, co2 float64) {
	activitiesRecorded.Inc()
	if co2 > 0 {
		co2Recorded.Add(co2)
	}
	if ts.IsZero() {
		return
	}
	activityPersistGauge.Set(float64(ts.Unix()))
}

// RecordFactorLookup counts whether an emission factor matched or the default was used.
func RecordFactorLookup(matched bool) {
	if matched {
		factorLookups.WithLabelValues("matched").Inc()
		return
	}
	factorLookups.WithLabelValues("default").Inc()
}

// RecordHookFailure counts a swallowed post-commit hook failure.
func RecordHookFailure(hook string) {
	hookFailures.WithLabelValues(hook).Inc()
}

// RecordRecommendationRun counts one assignment run and the rows it created.
func RecordRecommendationRun(outcome string, assigned int) {
	recommendationRuns.WithLabelValues(outcome).Inc()
	if assigned > 0 {
		recommendationsAssigned.Add(float64(assigned))
	}
}

// RecordCatalogLoaded publishes the catalog version currently in use.
func RecordCatalogLoaded(version string, factorKeys int) {
	catalogVersion.Reset()
	catalogVersion.WithLabelValues(version).Set(float64(factorKeys))
}
