package domain

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/soniam4/carbonfootprint-tracker/internal/observability"
)

// ActivityRepository captures activity persistence operations. Lookups return
// (nil, nil) when the row does not exist or is not owned by userID.
type ActivityRepository interface {
	CreateActivity(ctx context.Context, activity Activity) error
	GetActivity(ctx context.Context, userID, activityID string) (*Activity, error)
	DeleteActivity(ctx context.Context, userID, activityID string) (bool, error)
	ListActivities(ctx context.Context, userID string, cursor *Cursor, limit int) ([]Activity, *Cursor, error)
	AllActivities(ctx context.Context, userID string) ([]Activity, error)
}

// CategoryRepository reads activity categories.
type CategoryRepository interface {
	ListCategories(ctx context.Context) ([]ActivityCategory, error)
	GetCategory(ctx context.Context, id int64) (*ActivityCategory, error)
}

// RecommendationStore is the storage the recommendation engine needs.
type RecommendationStore interface {
	ListRecommendations(ctx context.Context, activeOnly bool) ([]Recommendation, error)
	ListUserRecommendations(ctx context.Context, userID string) ([]UserRecommendation, error)
	AssignRecommendations(ctx context.Context, userID string, recs []Recommendation, reason string, at time.Time) ([]UserRecommendation, error)
	CategoryTotalsSince(ctx context.Context, userID string, since time.Time) ([]CategoryTotal, error)
	ListUserIDs(ctx context.Context) ([]string, error)
}

// Repository is the full storage contract of the service.
type Repository interface {
	ActivityRepository
	CategoryRepository
	RecommendationStore
	GetUserRecommendation(ctx context.Context, userID, id string) (*UserRecommendation, error)
	MarkUserRecommendation(ctx context.Context, userID, id string, flag RecommendationFlag) (bool, error)
}

// ActivityHook runs after an activity has been committed. Errors are logged
// and counted by the Service and never reach the caller of RecordActivity.
type ActivityHook interface {
	AfterActivityRecorded(ctx context.Context, activity Activity) error
}

// HookFunc adapts a function to ActivityHook.
type HookFunc func(ctx context.Context, activity Activity) error

// AfterActivityRecorded calls f.
func (f HookFunc) AfterActivityRecorded(ctx context.Context, activity Activity) error {
	return f(ctx, activity)
}

type namedHook struct {
	name string
	hook ActivityHook
}

// Service orchestrates activity workflows.
type Service struct {
	repo    Repository
	factors FactorLookup
	hooks   []namedHook
	now     func() time.Time
	logger  zerolog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithLogger sets the logger used to report swallowed hook failures.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithHook registers a post-commit hook under name.
func WithHook(name string, hook ActivityHook) Option {
	return func(s *Service) {
		s.hooks = append(s.hooks, namedHook{name: name, hook: hook})
	}
}

// NewService constructs a Service.
func NewService(repo Repository, factors FactorLookup, opts ...Option) *Service {
	s := &Service{
		repo:    repo,
		factors: factors,
		now:     time.Now,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RecordActivityInput captures the raw form values from the API layer.
type RecordActivityInput struct {
	UserID       string
	CategoryID   string
	ActivityType string
	Quantity     string
	Unit         string
	Notes        string
}

// RecordActivity validates the input, computes the CO₂ estimate and persists
// the activity. All validation problems are returned together in a
// *ValidationError.
func (s *Service) RecordActivity(ctx context.Context, input RecordActivityInput) (*Activity, error) {
	var problems []string

	category, problem, err := s.resolveCategory(ctx, input.CategoryID)
	if err != nil {
		return nil, err
	}
	if problem != "" {
		problems = append(problems, problem)
	}

	activityType := strings.TrimSpace(input.ActivityType)
	if activityType == "" {
		problems = append(problems, "activity_type is required")
	}

	quantity, problem := parseQuantity(input.Quantity)
	if problem != "" {
		problems = append(problems, problem)
	}

	unit := strings.TrimSpace(input.Unit)
	if unit == "" {
		problems = append(problems, "unit is required")
	}

	if err := validationError(problems); err != nil {
		return nil, err
	}

	factor, found := s.factors.LookupFactor(activityType, category.ID, unit)
	observability.RecordFactorLookup(found)

	now := s.now().UTC()
	activity := Activity{
		ID:            uuid.NewString(),
		UserID:        input.UserID,
		CategoryID:    category.ID,
		CategoryName:  category.Name,
		ActivityType:  activityType,
		Quantity:      quantity,
		Unit:          unit,
		Date:          Day(now),
		CalculatedCO2: CalculateCO2(quantity, factor, found),
		Notes:         strings.TrimSpace(input.Notes),
		CreatedAt:     now,
	}
	if found {
		id := factor.ID
		activity.FactorID = &id
	}

	if err := s.repo.CreateActivity(ctx, activity); err != nil {
		return nil, fmt.Errorf("persist activity: %w", err)
	}
	observability.RecordActivityPersisted(activity.CreatedAt, activity.CalculatedCO2)

	s.runHooks(ctx, activity)
	return &activity, nil
}

func (s *Service) resolveCategory(ctx context.Context, raw string) (ActivityCategory, string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ActivityCategory{}, "category is required", nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return ActivityCategory{}, "category is invalid", nil
	}
	category, err := s.repo.GetCategory(ctx, id)
	if err != nil {
		return ActivityCategory{}, "", fmt.Errorf("load category: %w", err)
	}
	if category == nil {
		return ActivityCategory{}, "selected category does not exist", nil
	}
	return *category, "", nil
}

// parseQuantity accepts a decimal comma as well as a point.
func parseQuantity(raw string) (float64, string) {
	raw = strings.ReplaceAll(strings.TrimSpace(raw), ",", ".")
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, "quantity must be a number"
	}
	if value <= 0 {
		return 0, "quantity must be greater than 0"
	}
	return value, ""
}

func (s *Service) runHooks(ctx context.Context, activity Activity) {
	for _, h := range s.hooks {
		if err := s.runHook(ctx, h, activity); err != nil {
			observability.RecordHookFailure(h.name)
			s.logger.Warn().
				Err(err).
				Str("hook", h.name).
				Str("activity_id", activity.ID).
				Str("user_id", activity.UserID).
				Msg("post-commit hook failed")
		}
	}
}

func (s *Service) runHook(ctx context.Context, h namedHook, activity Activity) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("hook panicked: %v", r)
		}
	}()
	return h.hook.AfterActivityRecorded(ctx, activity)
}

// GetActivity fetches one of the user's activities.
func (s *Service) GetActivity(ctx context.Context, userID, activityID string) (*Activity, error) {
	activity, err := s.repo.GetActivity(ctx, userID, activityID)
	if err != nil {
		return nil, err
	}
	if activity == nil {
		return nil, ErrActivityNotFound
	}
	return activity, nil
}

// DeleteActivity removes an activity owned by userID.
func (s *Service) DeleteActivity(ctx context.Context, userID, activityID string) error {
	deleted, err := s.repo.DeleteActivity(ctx, userID, activityID)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrActivityNotFound
	}
	return nil
}

// ListActivities fetches the user's activities, newest first, with cursor pagination.
func (s *Service) ListActivities(ctx context.Context, userID string, cursor *Cursor, limit int) ([]Activity, *Cursor, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	return s.repo.ListActivities(ctx, userID, cursor, limit)
}

// ListCategories returns every activity category ordered by name.
func (s *Service) ListCategories(ctx context.Context) ([]ActivityCategory, error) {
	return s.repo.ListCategories(ctx)
}

// Dashboard aggregates the user's full activity history.
func (s *Service) Dashboard(ctx context.Context, userID string) (Dashboard, error) {
	activities, err := s.repo.AllActivities(ctx, userID)
	if err != nil {
		return Dashboard{}, fmt.Errorf("load activities: %w", err)
	}
	categories, err := s.repo.ListCategories(ctx)
	if err != nil {
		return Dashboard{}, fmt.Errorf("load categories: %w", err)
	}
	return BuildDashboard(activities, categories, s.now().UTC()), nil
}

// ListUserRecommendations returns the user's assigned recommendations, newest first.
func (s *Service) ListUserRecommendations(ctx context.Context, userID string) ([]UserRecommendation, error) {
	return s.repo.ListUserRecommendations(ctx, userID)
}

// GetUserRecommendation fetches one of the user's assigned recommendations.
func (s *Service) GetUserRecommendation(ctx context.Context, userID, id string) (*UserRecommendation, error) {
	rec, err := s.repo.GetUserRecommendation(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrRecommendationNotFound
	}
	return rec, nil
}

// MarkRecommendation sets the viewed or applied flag and returns the updated row.
// Applying a recommendation also marks it viewed.
func (s *Service) MarkRecommendation(ctx context.Context, userID, id string, flag RecommendationFlag) (*UserRecommendation, error) {
	updated, err := s.repo.MarkUserRecommendation(ctx, userID, id, flag)
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, ErrRecommendationNotFound
	}
	return s.GetUserRecommendation(ctx, userID, id)
}

// RecommendationCatalog returns active recommendations grouped by category in
// vocabulary order. Empty groups are omitted.
func (s *Service) RecommendationCatalog(ctx context.Context) ([]RecommendationGroup, error) {
	recs, err := s.repo.ListRecommendations(ctx, true)
	if err != nil {
		return nil, err
	}
	byCategory := make(map[RecommendationCategory][]Recommendation)
	for _, rec := range recs {
		byCategory[rec.Category] = append(byCategory[rec.Category], rec)
	}
	groups := make([]RecommendationGroup, 0, len(byCategory))
	for _, category := range RecommendationCategories {
		if items := byCategory[category]; len(items) > 0 {
			groups = append(groups, RecommendationGroup{Category: category, Items: items})
		}
	}
	return groups, nil
}

// RecommendationGroup is one section of the catalog listing.
type RecommendationGroup struct {
	Category RecommendationCategory `json:"category"`
	Items    []Recommendation       `json:"items"`
}

// CalculateAndRecord runs the calculator and, for authenticated callers who
// asked for it, records the activity through RecordActivity so the stored
// estimate follows the emission factor table.
func (s *Service) CalculateAndRecord(ctx context.Context, userID string, input CalculatorInput) (Estimate, *Activity, error) {
	estimate, err := Calculate(input)
	if err != nil {
		return Estimate{}, nil, err
	}
	if userID == "" {
		return estimate, nil, nil
	}

	categories, err := s.repo.ListCategories(ctx)
	if err != nil {
		return Estimate{}, nil, fmt.Errorf("load categories: %w", err)
	}
	var match *ActivityCategory
	for i := range categories {
		if MapCategory(categories[i].Name) == estimate.RecommendationCategory() {
			match = &categories[i]
			break
		}
	}
	if match == nil {
		return Estimate{}, nil, &ValidationError{Problems: []string{
			fmt.Sprintf("no activity category matches calculator category %q", estimate.Category),
		}}
	}

	activity, err := s.RecordActivity(ctx, RecordActivityInput{
		UserID:       userID,
		CategoryID:   strconv.FormatInt(match.ID, 10),
		ActivityType: estimate.ActivityType,
		Quantity:     strconv.FormatFloat(estimate.Quantity, 'f', -1, 64),
		Unit:         estimate.Unit,
	})
	if err != nil {
		return Estimate{}, nil, err
	}
	return estimate, activity, nil
}
