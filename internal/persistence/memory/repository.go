// Package memory provides an in-process repository for local development and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/soniam4/carbonfootprint-tracker/internal/catalog"
	"github.com/soniam4/carbonfootprint-tracker/internal/domain"
)

type pairKey struct {
	userID           string
	recommendationID int64
}

// Repository stores everything in maps guarded by a single RWMutex.
type Repository struct {
	mu              sync.RWMutex
	version         string
	categories      map[int64]domain.ActivityCategory
	factors         []domain.EmissionFactor
	recommendations map[int64]domain.Recommendation
	activities      map[string]domain.Activity
	assignments     map[string]domain.UserRecommendation
	pairs           map[pairKey]struct{}
	nextCategoryID  int64
	nextFactorID    int64
	nextRecID       int64
}

// NewRepository constructs an empty repository.
func NewRepository() *Repository {
	return &Repository{
		categories:      make(map[int64]domain.ActivityCategory),
		recommendations: make(map[int64]domain.Recommendation),
		activities:      make(map[string]domain.Activity),
		assignments:     make(map[string]domain.UserRecommendation),
		pairs:           make(map[pairKey]struct{}),
	}
}

// NewSeededRepository constructs a repository loaded with the embedded catalog.
func NewSeededRepository() (*Repository, error) {
	c, err := catalog.Default()
	if err != nil {
		return nil, err
	}
	repo := NewRepository()
	if err := repo.ApplyCatalog(context.Background(), c); err != nil {
		return nil, err
	}
	return repo, nil
}

// ApplyCatalog upserts categories and recommendations by name/title,
// replaces the emission factor set and deactivates recommendations the
// catalog no longer lists.
func (r *Repository) ApplyCatalog(ctx context.Context, c *catalog.Catalog) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	byName := make(map[string]int64, len(r.categories))
	for id, cat := range r.categories {
		byName[cat.Name] = id
	}
	factors := make([]domain.EmissionFactor, 0, c.FactorCount())
	for _, entry := range c.Categories {
		id, ok := byName[entry.Name]
		if !ok {
			r.nextCategoryID++
			id = r.nextCategoryID
		}
		r.categories[id] = domain.ActivityCategory{
			ID:                   id,
			Name:                 entry.Name,
			Description:          entry.Description,
			Icon:                 entry.Icon,
			EmissionFactorSource: entry.EmissionFactorSource,
		}
		for _, f := range entry.Factors {
			r.nextFactorID++
			factors = append(factors, domain.EmissionFactor{
				ID:           r.nextFactorID,
				ActivityType: f.ActivityType,
				CategoryID:   id,
				CO2PerUnit:   f.CO2PerUnit,
				Unit:         f.Unit,
				Region:       f.Region,
				Source:       f.Source,
			})
		}
	}
	r.factors = factors

	byTitle := make(map[string]int64, len(r.recommendations))
	for id, rec := range r.recommendations {
		byTitle[rec.Title] = id
	}
	applied := make(map[int64]struct{}, len(c.Recommendations))
	for _, entry := range c.Recommendations {
		id, ok := byTitle[entry.Title]
		if !ok {
			r.nextRecID++
			id = r.nextRecID
		}
		r.recommendations[id] = entry.DomainRecommendation(id)
		applied[id] = struct{}{}
	}
	for id, rec := range r.recommendations {
		if _, ok := applied[id]; !ok && rec.IsActive {
			rec.IsActive = false
			r.recommendations[id] = rec
		}
	}
	r.version = c.Version
	return nil
}

// CatalogVersion implements catalog.FactorSource.
func (r *Repository) CatalogVersion(ctx context.Context) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version, nil
}

// ListEmissionFactors implements catalog.FactorSource.
func (r *Repository) ListEmissionFactors(ctx context.Context) ([]domain.EmissionFactor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.EmissionFactor, len(r.factors))
	copy(out, r.factors)
	return out, nil
}

// AddEmissionFactor appends a factor and returns its id.
func (r *Repository) AddEmissionFactor(f domain.EmissionFactor) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextFactorID++
	f.ID = r.nextFactorID
	r.factors = append(r.factors, f)
	return f.ID
}

// ListCategories implements domain.CategoryRepository.
func (r *Repository) ListCategories(ctx context.Context) ([]domain.ActivityCategory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.ActivityCategory, 0, len(r.categories))
	for _, c := range r.categories {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// GetCategory implements domain.CategoryRepository.
func (r *Repository) GetCategory(ctx context.Context, id int64) (*domain.ActivityCategory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.categories[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

// CreateActivity implements domain.ActivityRepository.
func (r *Repository) CreateActivity(ctx context.Context, activity domain.Activity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if activity.ID == "" {
		activity.ID = uuid.NewString()
	}
	r.activities[activity.ID] = activity
	return nil
}

// GetActivity implements domain.ActivityRepository.
func (r *Repository) GetActivity(ctx context.Context, userID, activityID string) (*domain.Activity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.activities[activityID]
	if !ok || a.UserID != userID {
		return nil, nil
	}
	return &a, nil
}

// DeleteActivity implements domain.ActivityRepository.
func (r *Repository) DeleteActivity(ctx context.Context, userID, activityID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.activities[activityID]
	if !ok || a.UserID != userID {
		return false, nil
	}
	delete(r.activities, activityID)
	return true, nil
}

// ListActivities implements domain.ActivityRepository, newest first.
func (r *Repository) ListActivities(ctx context.Context, userID string, cursor *domain.Cursor, limit int) ([]domain.Activity, *domain.Cursor, error) {
	r.mu.RLock()
	all := r.userActivitiesLocked(userID)
	r.mu.RUnlock()

	results := make([]domain.Activity, 0, limit)
	for _, a := range all {
		if cursor != nil && !before(a, *cursor) {
			continue
		}
		results = append(results, a)
		if len(results) == limit {
			break
		}
	}

	var next *domain.Cursor
	if limit > 0 && len(results) == limit {
		last := results[len(results)-1]
		next = &domain.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}
	}
	return results, next, nil
}

// AllActivities implements domain.ActivityRepository.
func (r *Repository) AllActivities(ctx context.Context, userID string) ([]domain.Activity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.userActivitiesLocked(userID), nil
}

func (r *Repository) userActivitiesLocked(userID string) []domain.Activity {
	out := make([]domain.Activity, 0)
	for _, a := range r.activities {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

// before reports whether a sorts after the cursor in newest-first order.
func before(a domain.Activity, c domain.Cursor) bool {
	if a.CreatedAt.Equal(c.CreatedAt) {
		return a.ID < c.ID
	}
	return a.CreatedAt.Before(c.CreatedAt)
}

// ListRecommendations implements domain.RecommendationStore, highest saving first.
func (r *Repository) ListRecommendations(ctx context.Context, activeOnly bool) ([]domain.Recommendation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Recommendation, 0, len(r.recommendations))
	for _, rec := range r.recommendations {
		if activeOnly && !rec.IsActive {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CO2Saving != out[j].CO2Saving {
			return out[i].CO2Saving > out[j].CO2Saving
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// ListUserRecommendations implements domain.RecommendationStore, newest first.
func (r *Repository) ListUserRecommendations(ctx context.Context, userID string) ([]domain.UserRecommendation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.UserRecommendation, 0)
	for _, ur := range r.assignments {
		if ur.UserID == userID {
			ur.Recommendation = r.recommendations[ur.Recommendation.ID]
			out = append(out, ur)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// AssignRecommendations implements domain.RecommendationStore. Pairs the user
// already has are skipped.
func (r *Repository) AssignRecommendations(ctx context.Context, userID string, recs []domain.Recommendation, reason string, at time.Time) ([]domain.UserRecommendation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	created := make([]domain.UserRecommendation, 0, len(recs))
	for _, rec := range recs {
		key := pairKey{userID: userID, recommendationID: rec.ID}
		if _, exists := r.pairs[key]; exists {
			continue
		}
		ur := domain.UserRecommendation{
			ID:             uuid.NewString(),
			UserID:         userID,
			Recommendation: rec,
			CreatedAt:      at,
		}
		r.pairs[key] = struct{}{}
		r.assignments[ur.ID] = ur
		created = append(created, ur)
	}
	return created, nil
}

// CategoryTotalsSince implements domain.RecommendationStore. Activities dated
// on or after since's calendar day are included.
func (r *Repository) CategoryTotalsSince(ctx context.Context, userID string, since time.Time) ([]domain.CategoryTotal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	from := domain.Day(since)
	sums := make(map[int64]*domain.CategoryTotal)
	for _, a := range r.activities {
		if a.UserID != userID || a.Date.Before(from) {
			continue
		}
		t, ok := sums[a.CategoryID]
		if !ok {
			name := a.CategoryName
			if c, found := r.categories[a.CategoryID]; found {
				name = c.Name
			}
			t = &domain.CategoryTotal{CategoryID: a.CategoryID, CategoryName: name}
			sums[a.CategoryID] = t
		}
		t.TotalCO2 += a.CalculatedCO2
	}
	out := make([]domain.CategoryTotal, 0, len(sums))
	for _, t := range sums {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CategoryID < out[j].CategoryID })
	return out, nil
}

// ListUserIDs implements domain.RecommendationStore.
func (r *Repository) ListUserIDs(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]struct{})
	for _, a := range r.activities {
		seen[a.UserID] = struct{}{}
	}
	for _, ur := range r.assignments {
		seen[ur.UserID] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

// GetUserRecommendation implements domain.Repository.
func (r *Repository) GetUserRecommendation(ctx context.Context, userID, id string) (*domain.UserRecommendation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ur, ok := r.assignments[id]
	if !ok || ur.UserID != userID {
		return nil, nil
	}
	ur.Recommendation = r.recommendations[ur.Recommendation.ID]
	return &ur, nil
}

// MarkUserRecommendation implements domain.Repository.
func (r *Repository) MarkUserRecommendation(ctx context.Context, userID, id string, flag domain.RecommendationFlag) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ur, ok := r.assignments[id]
	if !ok || ur.UserID != userID {
		return false, nil
	}
	switch flag {
	case domain.FlagApplied:
		ur.IsApplied = true
		ur.IsViewed = true
	default:
		ur.IsViewed = true
	}
	r.assignments[id] = ur
	return true, nil
}
