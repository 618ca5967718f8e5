package domain

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/soniam4/carbonfootprint-tracker/internal/observability"
)

// AssignmentOutcome describes what one assignment run did for a user.
type AssignmentOutcome string

const (
	OutcomeStarter   AssignmentOutcome = "starter"
	OutcomeUpdated   AssignmentOutcome = "updated"
	OutcomeCooldown  AssignmentOutcome = "cooldown"
	OutcomeUnchanged AssignmentOutcome = "unchanged"
)

// ReasonStarter tags the starter set; update reasons use ReasonTopCategory.
const ReasonStarter = "starter"

// ReasonTopCategory tags an update driven by the user's highest-emission category.
func ReasonTopCategory(c RecommendationCategory) string {
	return "top_category:" + string(c)
}

// RecommenderConfig tunes the assignment state machine.
type RecommenderConfig struct {
	// InitialThreshold is the number of assignments below which a user still
	// receives the starter set.
	InitialThreshold int
	StarterSetSize   int
	// Cooldown is the minimum age of the newest assignment before an update.
	Cooldown     time.Duration
	UpdateWindow time.Duration
	UpdateBatch  int
}

// DefaultRecommenderConfig returns the production tuning.
func DefaultRecommenderConfig() RecommenderConfig {
	return RecommenderConfig{
		InitialThreshold: 4,
		StarterSetSize:   5,
		Cooldown:         7 * 24 * time.Hour,
		UpdateWindow:     30 * 24 * time.Hour,
		UpdateBatch:      2,
	}
}

// AssignmentResult reports one user's run.
type AssignmentResult struct {
	UserID   string
	Outcome  AssignmentOutcome
	Reason   string
	Assigned []UserRecommendation
}

// Recommender assigns catalog recommendations to users.
type Recommender struct {
	store   RecommendationStore
	cfg     RecommenderConfig
	now     func() time.Time
	shuffle func(n int, swap func(i, j int))
	logger  zerolog.Logger
}

// RecommenderOption configures a Recommender.
type RecommenderOption func(*Recommender)

// WithRecommenderClock overrides the time source.
func WithRecommenderClock(now func() time.Time) RecommenderOption {
	return func(r *Recommender) {
		r.now = now
	}
}

// WithShuffle overrides the permutation used to draw the starter set.
func WithShuffle(shuffle func(n int, swap func(i, j int))) RecommenderOption {
	return func(r *Recommender) {
		r.shuffle = shuffle
	}
}

// WithRecommenderLogger sets the logger.
func WithRecommenderLogger(logger zerolog.Logger) RecommenderOption {
	return func(r *Recommender) {
		r.logger = logger
	}
}

// NewRecommender constructs a Recommender. Zero config fields take their defaults.
func NewRecommender(store RecommendationStore, cfg RecommenderConfig, opts ...RecommenderOption) *Recommender {
	defaults := DefaultRecommenderConfig()
	if cfg.InitialThreshold <= 0 {
		cfg.InitialThreshold = defaults.InitialThreshold
	}
	if cfg.StarterSetSize <= 0 {
		cfg.StarterSetSize = defaults.StarterSetSize
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = defaults.Cooldown
	}
	if cfg.UpdateWindow <= 0 {
		cfg.UpdateWindow = defaults.UpdateWindow
	}
	if cfg.UpdateBatch <= 0 {
		cfg.UpdateBatch = defaults.UpdateBatch
	}
	r := &Recommender{
		store:   store,
		cfg:     cfg,
		now:     time.Now,
		shuffle: rand.Shuffle,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Config returns the effective configuration.
func (r *Recommender) Config() RecommenderConfig {
	return r.cfg
}

// AfterActivityRecorded runs an assignment for the activity's owner.
func (r *Recommender) AfterActivityRecorded(ctx context.Context, activity Activity) error {
	_, err := r.Assign(ctx, activity.UserID)
	return err
}

// Assign advances the user's state machine once.
func (r *Recommender) Assign(ctx context.Context, userID string) (AssignmentResult, error) {
	result, err := r.assign(ctx, userID)
	if err != nil {
		return AssignmentResult{UserID: userID}, err
	}
	observability.RecordRecommendationRun(string(result.Outcome), len(result.Assigned))
	r.logger.Debug().
		Str("user_id", userID).
		Str("outcome", string(result.Outcome)).
		Int("assigned", len(result.Assigned)).
		Msg("recommendation assignment")
	return result, nil
}

func (r *Recommender) assign(ctx context.Context, userID string) (AssignmentResult, error) {
	result := AssignmentResult{UserID: userID, Outcome: OutcomeUnchanged}

	existing, err := r.store.ListUserRecommendations(ctx, userID)
	if err != nil {
		return result, fmt.Errorf("list user recommendations: %w", err)
	}
	owned := make(map[int64]struct{}, len(existing))
	var newest time.Time
	for _, ur := range existing {
		owned[ur.Recommendation.ID] = struct{}{}
		if ur.CreatedAt.After(newest) {
			newest = ur.CreatedAt
		}
	}

	now := r.now().UTC()
	if len(existing) < r.cfg.InitialThreshold {
		return r.assignStarter(ctx, result, owned, now)
	}
	if now.Sub(newest) < r.cfg.Cooldown {
		result.Outcome = OutcomeCooldown
		return result, nil
	}
	return r.assignUpdate(ctx, result, owned, now)
}

func (r *Recommender) assignStarter(ctx context.Context, result AssignmentResult, owned map[int64]struct{}, now time.Time) (AssignmentResult, error) {
	candidates, err := r.candidates(ctx, owned, func(Recommendation) bool { return true })
	if err != nil {
		return result, err
	}
	if len(candidates) == 0 {
		return result, nil
	}
	r.shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})
	if len(candidates) > r.cfg.StarterSetSize {
		candidates = candidates[:r.cfg.StarterSetSize]
	}

	assigned, err := r.store.AssignRecommendations(ctx, result.UserID, candidates, ReasonStarter, now)
	if err != nil {
		return result, fmt.Errorf("assign starter set: %w", err)
	}
	result.Outcome = OutcomeStarter
	result.Reason = ReasonStarter
	result.Assigned = assigned
	return result, nil
}

func (r *Recommender) assignUpdate(ctx context.Context, result AssignmentResult, owned map[int64]struct{}, now time.Time) (AssignmentResult, error) {
	totals, err := r.store.CategoryTotalsSince(ctx, result.UserID, now.Add(-r.cfg.UpdateWindow))
	if err != nil {
		return result, fmt.Errorf("category totals: %w", err)
	}
	top, ok := topCategory(totals)
	if !ok {
		return result, nil
	}
	target := MapCategory(top.CategoryName)

	candidates, err := r.candidates(ctx, owned, func(rec Recommendation) bool { return rec.Category == target })
	if err != nil {
		return result, err
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].CO2Saving != candidates[j].CO2Saving {
			return candidates[i].CO2Saving > candidates[j].CO2Saving
		}
		return candidates[i].ID < candidates[j].ID
	})
	if len(candidates) > r.cfg.UpdateBatch {
		candidates = candidates[:r.cfg.UpdateBatch]
	}
	if len(candidates) == 0 {
		return result, nil
	}

	reason := ReasonTopCategory(target)
	assigned, err := r.store.AssignRecommendations(ctx, result.UserID, candidates, reason, now)
	if err != nil {
		return result, fmt.Errorf("assign update: %w", err)
	}
	if len(assigned) == 0 {
		return result, nil
	}
	result.Outcome = OutcomeUpdated
	result.Reason = reason
	result.Assigned = assigned
	return result, nil
}

// candidates returns active recommendations the user does not own that pass keep.
func (r *Recommender) candidates(ctx context.Context, owned map[int64]struct{}, keep func(Recommendation) bool) ([]Recommendation, error) {
	active, err := r.store.ListRecommendations(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("list recommendations: %w", err)
	}
	out := make([]Recommendation, 0, len(active))
	for _, rec := range active {
		if _, ok := owned[rec.ID]; ok || !rec.IsActive || !keep(rec) {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// topCategory picks the highest positive total; ties go to the lower category id.
func topCategory(totals []CategoryTotal) (CategoryTotal, bool) {
	var (
		top   CategoryTotal
		found bool
	)
	for _, t := range totals {
		if t.TotalCO2 <= 0 {
			continue
		}
		if !found || t.TotalCO2 > top.TotalCO2 || (t.TotalCO2 == top.TotalCO2 && t.CategoryID < top.CategoryID) {
			top = t
			found = true
		}
	}
	return top, found
}

// RefreshReport summarises a maintenance run over all users.
type RefreshReport struct {
	Users    int
	Assigned int
	Outcomes map[AssignmentOutcome]int
	Failed   int
}

// RefreshAll runs Assign for every known user. A failure for one user is
// collected and does not stop the others.
func (r *Recommender) RefreshAll(ctx context.Context) (RefreshReport, error) {
	report := RefreshReport{Outcomes: make(map[AssignmentOutcome]int)}
	userIDs, err := r.store.ListUserIDs(ctx)
	if err != nil {
		return report, fmt.Errorf("list users: %w", err)
	}

	var errs []error
	for _, userID := range userIDs {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		report.Users++
		result, err := r.Assign(ctx, userID)
		if err != nil {
			report.Failed++
			errs = append(errs, fmt.Errorf("user %s: %w", userID, err))
			r.logger.Warn().Err(err).Str("user_id", userID).Msg("recommendation refresh failed")
			continue
		}
		report.Outcomes[result.Outcome]++
		report.Assigned += len(result.Assigned)
	}
	return report, errors.Join(errs...)
}
