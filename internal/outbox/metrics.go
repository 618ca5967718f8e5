package outbox

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// DLQ entry outcomes reported by the DLQ manager.
const (
	dlqOutcomeRequeued       = "requeued"
	dlqOutcomeRetryScheduled = "retry_scheduled"
	dlqOutcomeQuarantined    = "quarantined"
)

var (
	deliveredCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "carbon_tracker",
		Subsystem: "outbox",
		Name:      "events_delivered_total",
		Help:      "Carbon tracker events published to Kafka, by event type.",
	}, []string{"event_type"})

	failedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "carbon_tracker",
		Subsystem: "outbox",
		Name:      "events_failed_total",
		Help:      "Carbon tracker events that failed to publish and were routed to the DLQ, by event type.",
	}, []string{"event_type"})

	batchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "carbon_tracker",
		Subsystem: "outbox",
		Name:      "batch_duration_seconds",
		Help:      "Time spent fetching, delivering, and marking outbox batches.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
	})

	dlqTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "carbon_tracker",
		Subsystem: "outbox",
		Name:      "dlq_transitions_total",
		Help:      "DLQ entries handled by the DLQ manager, by event type and outcome.",
	}, []string{"event_type", "outcome"})

	dlqBacklog = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "carbon_tracker",
		Subsystem: "outbox",
		Name:      "dlq_backlog_events",
		Help:      "Unquarantined DLQ entries awaiting replay, by event type.",
	}, []string{"event_type"})
)

func init() {
	prometheus.MustRegister(deliveredCounter, failedCounter, batchDuration, dlqTransitions, dlqBacklog)
}

func recordDelivered(messages []Message) {
	for _, msg := range messages {
		deliveredCounter.WithLabelValues(msg.EventType).Inc()
	}
}

func recordFailed(messages []Message) {
	for _, msg := range messages {
		failedCounter.WithLabelValues(msg.EventType).Inc()
	}
}

func recordDLQTransition(entry dlqEntry, outcome string) {
	dlqTransitions.WithLabelValues(entry.EventType, outcome).Inc()
}

// setDLQBacklog publishes counts per event type. Known event types without
// entries report zero.
func setDLQBacklog(counts map[string]int) {
	dlqBacklog.Reset()
	for eventType := range schemaCatalog {
		dlqBacklog.WithLabelValues(eventType).Set(0)
	}
	for eventType, n := range counts {
		dlqBacklog.WithLabelValues(eventType).Set(float64(n))
	}
}

func refreshDLQBacklog(ctx context.Context, pool *pgxpool.Pool) error {
	rows, err := pool.Query(ctx,
		`SELECT event_type, COUNT(*) FROM outbox_dlq WHERE quarantined_at IS NULL GROUP BY event_type`)
	if err != nil {
		return err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			eventType string
			n         int
		)
		if err := rows.Scan(&eventType, &n); err != nil {
			return err
		}
		counts[eventType] = n
	}
	if err := rows.Err(); err != nil {
		return err
	}
	setDLQBacklog(counts)
	return nil
}
