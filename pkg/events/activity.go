// Package events defines the payloads published to Kafka through the outbox.
package events

import "time"

// ActivityRecorded is emitted once a user activity and its CO₂ estimate are stored.
type ActivityRecorded struct {
	ActivityID    string    `json:"activity_id"`
	UserID        string    `json:"user_id"`
	CategoryID    int64     `json:"category_id"`
	ActivityType  string    `json:"activity_type"`
	Quantity      float64   `json:"quantity"`
	Unit          string    `json:"unit"`
	Date          string    `json:"date"`
	CalculatedCO2 float64   `json:"calculated_co2"`
	FactorID      *int64    `json:"factor_id,omitempty"`
	RecordedAt    time.Time `json:"recorded_at"`
}

// ActivityDeleted is emitted when an owner removes one of their activities.
type ActivityDeleted struct {
	ActivityID string    `json:"activity_id"`
	UserID     string    `json:"user_id"`
	DeletedAt  time.Time `json:"deleted_at"`
}
