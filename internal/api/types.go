package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"time"

	"github.com/soniam4/carbonfootprint-tracker/internal/domain"
)

// FormValue accepts a JSON string or number and keeps its text, so numeric
// parsing and its error messages stay in the domain layer.
type FormValue string

// UnmarshalJSON implements json.Unmarshaler.
func (v *FormValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*v = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = FormValue(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected string or number: %w", err)
	}
	*v = FormValue(n.String())
	return nil
}

// CreateActivityRequest is the payload for POST /v1/activities. Form-encoded
// bodies with the same field names are accepted too.
type CreateActivityRequest struct {
	CategoryID   FormValue `json:"category"`
	ActivityType string    `json:"activity_type"`
	Quantity     FormValue `json:"quantity"`
	Unit         string    `json:"unit"`
	Notes        string    `json:"notes"`
}

func decodeCreateActivity(r *http.Request) (CreateActivityRequest, error) {
	var req CreateActivityRequest
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/x-www-form-urlencoded" {
		if err := r.ParseForm(); err != nil {
			return req, err
		}
		req.CategoryID = FormValue(r.PostForm.Get("category"))
		req.ActivityType = r.PostForm.Get("activity_type")
		req.Quantity = FormValue(r.PostForm.Get("quantity"))
		req.Unit = r.PostForm.Get("unit")
		req.Notes = r.PostForm.Get("notes")
		return req, nil
	}
	err := json.NewDecoder(r.Body).Decode(&req)
	return req, err
}

// ActivityView exposes full details about an activity.
type ActivityView struct {
	ActivityID    string    `json:"activity_id"`
	CategoryID    int64     `json:"category_id"`
	CategoryName  string    `json:"category_name"`
	ActivityType  string    `json:"activity_type"`
	Quantity      float64   `json:"quantity"`
	Unit          string    `json:"unit"`
	Date          string    `json:"date"`
	CalculatedCO2 float64   `json:"calculated_co2"`
	FactorID      *int64    `json:"emission_factor_id,omitempty"`
	Notes         string    `json:"notes,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// ListActivitiesResponse packages list results.
type ListActivitiesResponse struct {
	Items      []ActivityView `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// ListCategoriesResponse lists activity categories for the entry form.
type ListCategoriesResponse struct {
	Items []domain.ActivityCategory `json:"items"`
}

// DashboardResponse is the aggregated footprint with recent activities.
type DashboardResponse struct {
	domain.Dashboard
	Recent []ActivityView `json:"recent_activities"`
}

// CalculatorRequest is the payload for POST /v1/calculator.
type CalculatorRequest struct {
	Category     string    `json:"category"`
	ActivityType string    `json:"activity_type"`
	Quantity     FormValue `json:"quantity"`
	Unit         string    `json:"unit"`
	Save         bool      `json:"save"`
}

// CalculatorResponse carries the estimate and, when saved, the stored activity.
type CalculatorResponse struct {
	Estimate domain.Estimate `json:"estimate"`
	Activity *ActivityView   `json:"activity,omitempty"`
}

// UserRecommendationView is a recommendation assigned to the caller.
type UserRecommendationView struct {
	ID             string                `json:"id"`
	Recommendation domain.Recommendation `json:"recommendation"`
	IsViewed       bool                  `json:"is_viewed"`
	IsApplied      bool                  `json:"is_applied"`
	CreatedAt      time.Time             `json:"created_at"`
}

// ListRecommendationsResponse lists the caller's recommendations, newest first.
type ListRecommendationsResponse struct {
	Items []UserRecommendationView `json:"items"`
}

// RecommendationCatalogResponse lists active recommendations by category.
type RecommendationCatalogResponse struct {
	Groups []domain.RecommendationGroup `json:"groups"`
}

// ValidationErrorResponse lists every invalid field.
type ValidationErrorResponse struct {
	Type   string   `json:"type"`
	Detail string   `json:"detail"`
	Errors []string `json:"errors"`
}

func toActivityView(a domain.Activity) ActivityView {
	return ActivityView{
		ActivityID:    a.ID,
		CategoryID:    a.CategoryID,
		CategoryName:  a.CategoryName,
		ActivityType:  a.ActivityType,
		Quantity:      a.Quantity,
		Unit:          a.Unit,
		Date:          a.Date.Format(time.DateOnly),
		CalculatedCO2: a.CalculatedCO2,
		FactorID:      a.FactorID,
		Notes:         a.Notes,
		CreatedAt:     a.CreatedAt,
	}
}

func toUserRecommendationView(ur domain.UserRecommendation) UserRecommendationView {
	return UserRecommendationView{
		ID:             ur.ID,
		Recommendation: ur.Recommendation,
		IsViewed:       ur.IsViewed,
		IsApplied:      ur.IsApplied,
		CreatedAt:      ur.CreatedAt,
	}
}
