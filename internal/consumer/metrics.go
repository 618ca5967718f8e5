package consumer

import (
	"encoding/json"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/soniam4/carbonfootprint-tracker/pkg/events"
)

var (
	processedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "carbon_tracker",
		Subsystem: "consumer",
		Name:      "events_processed_total",
		Help:      "Carbon tracker events stored in the event log, by topic and event type.",
	}, []string{"topic", "event_type"})

	handlerErrorCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "carbon_tracker",
		Subsystem: "consumer",
		Name:      "handler_errors_total",
		Help:      "Events left uncommitted after a handler error, by event type.",
	}, []string{"event_type"})

	decodeErrorCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "carbon_tracker",
		Subsystem: "consumer",
		Name:      "decode_errors_total",
		Help:      "Records skipped because they were not framed carbon tracker events, by topic.",
	}, []string{"topic"})

	co2ObservedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "carbon_tracker",
		Subsystem: "consumer",
		Name:      "co2_observed_kg_total",
		Help:      "Kilograms of CO2 carried by consumed activity.recorded events.",
	})

	assignmentsObservedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "carbon_tracker",
		Subsystem: "consumer",
		Name:      "recommendations_observed_total",
		Help:      "Consumed recommendation.assigned events, by recommendation category.",
	}, []string{"category"})

	lastEventGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "carbon_tracker",
		Subsystem: "consumer",
		Name:      "last_event_timestamp_seconds",
		Help:      "Unix timestamp of the most recent stored event, by event type.",
	}, []string{"event_type"})
)

func init() {
	prometheus.MustRegister(processedCounter, handlerErrorCounter, decodeErrorCounter,
		co2ObservedCounter, assignmentsObservedCounter, lastEventGauge)
}

// recordProcessed updates counters for a stored event. Payload fields feed the
// domain counters; a payload that does not match its event type only counts
// as processed.
func recordProcessed(msg Message) {
	processedCounter.WithLabelValues(msg.Topic, msg.EventType).Inc()
	if !msg.Timestamp.IsZero() {
		lastEventGauge.WithLabelValues(msg.EventType).Set(float64(msg.Timestamp.Unix()))
	}

	switch msg.EventType {
	case events.TypeActivityRecorded:
		var recorded events.ActivityRecorded
		if json.Unmarshal(msg.Payload, &recorded) == nil && recorded.CalculatedCO2 > 0 {
			co2ObservedCounter.Add(recorded.CalculatedCO2)
		}
	case events.TypeRecommendationAssigned:
		var assigned events.RecommendationAssigned
		if json.Unmarshal(msg.Payload, &assigned) == nil && assigned.Category != "" {
			assignmentsObservedCounter.WithLabelValues(assigned.Category).Inc()
		}
	}
}

func recordHandlerError(msg Message) {
	handlerErrorCounter.WithLabelValues(msg.EventType).Inc()
}

func recordDecodeError(topic string) {
	decodeErrorCounter.WithLabelValues(topic).Inc()
}
