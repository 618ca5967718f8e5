package events

// Event types written to the outbox.
const (
	TypeActivityRecorded       = "activity.recorded"
	TypeActivityDeleted        = "activity.deleted"
	TypeRecommendationAssigned = "recommendation.assigned"
)

// Kafka topics the outbox publishes to.
const (
	TopicActivityEvents       = "carbon.activity_events"
	TopicRecommendationEvents = "carbon.recommendation_events"
)

// SchemaSubject returns the Schema Registry value subject for topic.
func SchemaSubject(topic string) string {
	return topic + "-value"
}

// Kafka header keys set on every published event.
const (
	HeaderEventType     = "event_type"
	HeaderSchemaSubject = "schema_subject"
	HeaderAggregateID   = "aggregate_id"
	HeaderEventID       = "event_id"
)

// Topics lists every topic the outbox publishes to.
func Topics() []string {
	return []string{TopicActivityEvents, TopicRecommendationEvents}
}

// TopicFor returns the topic eventType is routed to.
func TopicFor(eventType string) (string, bool) {
	switch eventType {
	case TypeActivityRecorded, TypeActivityDeleted:
		return TopicActivityEvents, true
	case TypeRecommendationAssigned:
		return TopicRecommendationEvents, true
	default:
		return "", false
	}
}
