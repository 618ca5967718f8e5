// Package domain holds the carbon tracking business logic: emission factor
// resolution, activity recording, dashboard aggregation and recommendation
// assignment.
package domain

import (
	"fmt"
	"time"
)

// ActivityCategory groups activities (transport, food, energy) and is managed
// as reference data.
type ActivityCategory struct {
	ID                   int64  `json:"id"`
	Name                 string `json:"name"`
	Description          string `json:"description"`
	Icon                 string `json:"icon"`
	EmissionFactorSource string `json:"emission_factor_source"`
}

// EmissionFactor converts one unit of an activity into kilograms of CO₂.
type EmissionFactor struct {
	ID           int64   `json:"id"`
	ActivityType string  `json:"activity_type"`
	CategoryID   int64   `json:"category_id"`
	CO2PerUnit   float64 `json:"co2_per_unit"`
	Unit         string  `json:"unit"`
	Region       string  `json:"region"`
	Source       string  `json:"source"`
}

// Activity is a single user-logged event and its CO₂ estimate.
type Activity struct {
	ID            string
	UserID        string
	CategoryID    int64
	CategoryName  string
	ActivityType  string
	Quantity      float64
	Unit          string
	Date          time.Time
	CalculatedCO2 float64
	FactorID      *int64
	Notes         string
	CreatedAt     time.Time
}

// RecommendationCategory is the closed vocabulary recommendations are tagged with.
type RecommendationCategory string

const (
	RecommendationTransport RecommendationCategory = "transport"
	RecommendationFood      RecommendationCategory = "food"
	RecommendationEnergy    RecommendationCategory = "energy"
	RecommendationShopping  RecommendationCategory = "shopping"
	RecommendationGeneral   RecommendationCategory = "general"
)

// RecommendationCategories lists the vocabulary in display order.
var RecommendationCategories = []RecommendationCategory{
	RecommendationTransport,
	RecommendationFood,
	RecommendationEnergy,
	RecommendationShopping,
	RecommendationGeneral,
}

// Valid reports whether c belongs to the vocabulary.
func (c RecommendationCategory) Valid() bool {
	for _, known := range RecommendationCategories {
		if c == known {
			return true
		}
	}
	return false
}

// ParseRecommendationCategory validates a raw category tag.
func ParseRecommendationCategory(raw string) (RecommendationCategory, error) {
	c := RecommendationCategory(raw)
	if !c.Valid() {
		return "", fmt.Errorf("unknown recommendation category %q", raw)
	}
	return c, nil
}

// Difficulty grades how hard a recommendation is to apply.
type Difficulty string

const (
	DifficultyHigh   Difficulty = "high"
	DifficultyMedium Difficulty = "medium"
	DifficultyLow    Difficulty = "low"
)

// Valid reports whether d is a known difficulty.
func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyHigh, DifficultyMedium, DifficultyLow:
		return true
	}
	return false
}

// Recommendation is a catalog entry describing a way to cut emissions.
type Recommendation struct {
	ID          int64                  `json:"id"`
	Title       string                 `json:"title"`
	Description string                 `json:"description"`
	Category    RecommendationCategory `json:"category"`
	CO2Saving   float64                `json:"co2_saving"`
	Difficulty  Difficulty             `json:"difficulty"`
	Icon        string                 `json:"icon"`
	IsActive    bool                   `json:"is_active"`
}

// UserRecommendation links a user to a recommendation and tracks whether it
// was viewed or applied.
type UserRecommendation struct {
	ID             string
	UserID         string
	Recommendation Recommendation
	IsViewed       bool
	IsApplied      bool
	CreatedAt      time.Time
}

// RecommendationFlag selects which boolean of a UserRecommendation to set.
type RecommendationFlag int

const (
	FlagViewed RecommendationFlag = iota
	FlagApplied
)

// CategoryTotal is the summed CO₂ of one user's activities in a category.
type CategoryTotal struct {
	CategoryID   int64
	CategoryName string
	TotalCO2     float64
}

// Cursor models the pagination token for activity listings.
type Cursor struct {
	CreatedAt time.Time
	ID        string
}

// Day truncates t to its calendar date, expressed at UTC midnight.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
