package events

import "time"

// RecommendationAssigned is emitted for every recommendation linked to a user.
type RecommendationAssigned struct {
	UserRecommendationID string    `json:"user_recommendation_id"`
	UserID               string    `json:"user_id"`
	RecommendationID     int64     `json:"recommendation_id"`
	Category             string    `json:"category"`
	Reason               string    `json:"reason"`
	AssignedAt           time.Time `json:"assigned_at"`
}
