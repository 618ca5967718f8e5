package outbox

import "github.com/soniam4/carbonfootprint-tracker/pkg/events"

// SchemaCatalogEntry is the JSON schema of one event type and the topic it is published to.
type SchemaCatalogEntry struct {
	Topic  string
	Schema string
}

// Subject returns the Schema Registry subject the entry is registered under.
func (e SchemaCatalogEntry) Subject() string {
	return events.SchemaSubject(e.Topic)
}

var schemaCatalog = map[string]SchemaCatalogEntry{
	events.TypeActivityRecorded:       {Topic: events.TopicActivityEvents, Schema: activityRecordedSchema},
	events.TypeActivityDeleted:        {Topic: events.TopicActivityEvents, Schema: activityDeletedSchema},
	events.TypeRecommendationAssigned: {Topic: events.TopicRecommendationEvents, Schema: recommendationAssignedSchema},
}

const activityRecordedSchema = `{
  "type": "object",
  "title": "ActivityRecorded",
  "properties": {
    "activity_id": {"type": "string"},
    "user_id": {"type": "string"},
    "category_id": {"type": "integer"},
    "activity_type": {"type": "string"},
    "quantity": {"type": "number", "exclusiveMinimum": 0},
    "unit": {"type": "string"},
    "date": {"type": "string", "format": "date"},
    "calculated_co2": {"type": "number"},
    "factor_id": {"type": "integer"},
    "recorded_at": {"type": "string", "format": "date-time"}
  },
  "required": ["activity_id", "user_id", "category_id", "activity_type", "quantity", "unit", "date", "calculated_co2", "recorded_at"],
  "additionalProperties": false
}`

const activityDeletedSchema = `{
  "type": "object",
  "title": "ActivityDeleted",
  "properties": {
    "activity_id": {"type": "string"},
    "user_id": {"type": "string"},
    "deleted_at": {"type": "string", "format": "date-time"}
  },
  "required": ["activity_id", "user_id", "deleted_at"],
  "additionalProperties": false
}`

const recommendationAssignedSchema = `{
  "type": "object",
  "title": "RecommendationAssigned",
  "properties": {
    "user_recommendation_id": {"type": "string"},
    "user_id": {"type": "string"},
    "recommendation_id": {"type": "integer"},
    "category": {"type": "string", "enum": ["transport", "food", "energy", "shopping", "general"]},
    "reason": {"type": "string"},
    "assigned_at": {"type": "string", "format": "date-time"}
  },
  "required": ["user_recommendation_id", "user_id", "recommendation_id", "category", "reason", "assigned_at"],
  "additionalProperties": false
}`
