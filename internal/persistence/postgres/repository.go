// Package postgres provides Postgres-backed persistence for the carbon tracker.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/soniam4/carbonfootprint-tracker/internal/catalog"
	"github.com/soniam4/carbonfootprint-tracker/internal/domain"
	"github.com/soniam4/carbonfootprint-tracker/pkg/events"
)

// Repository provides Postgres-backed persistence for activities, reference
// data and outbox events.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const activityColumns = `a.activity_id::text, a.user_id, a.category_id, c.name, a.activity_type, a.quantity, a.unit,
        a.activity_date, a.calculated_co2, a.emission_factor_id, a.notes, a.created_at`

const activityFrom = `FROM user_activities a JOIN activity_categories c ON c.category_id = a.category_id`

func scanActivity(row pgx.Row) (domain.Activity, error) {
	var a domain.Activity
	err := row.Scan(&a.ID, &a.UserID, &a.CategoryID, &a.CategoryName, &a.ActivityType, &a.Quantity, &a.Unit,
		&a.Date, &a.CalculatedCO2, &a.FactorID, &a.Notes, &a.CreatedAt)
	a.Date = domain.Day(a.Date)
	a.CreatedAt = a.CreatedAt.UTC()
	return a, err
}

// ApplyCatalog upserts categories, factors and recommendations from c in a
// single transaction. Factors that are no longer listed are removed;
// recommendations that are no longer listed are deactivated since
// assignments still reference them.
func (r *Repository) ApplyCatalog(ctx context.Context, c *catalog.Catalog) (err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	keep := make([]int64, 0, c.FactorCount())
	for _, entry := range c.Categories {
		var categoryID int64
		err = tx.QueryRow(ctx,
			`INSERT INTO activity_categories (name, description, icon, emission_factor_source)
             VALUES ($1,$2,$3,$4)
             ON CONFLICT (name) DO UPDATE
                SET description = EXCLUDED.description,
                    icon = EXCLUDED.icon,
                    emission_factor_source = EXCLUDED.emission_factor_source
             RETURNING category_id`,
			entry.Name, entry.Description, entry.Icon, entry.EmissionFactorSource,
		).Scan(&categoryID)
		if err != nil {
			return fmt.Errorf("upsert category %q: %w", entry.Name, err)
		}

		for _, f := range entry.Factors {
			var factorID int64
			err = tx.QueryRow(ctx,
				`INSERT INTO emission_factors (activity_type, category_id, co2_per_unit, unit, region, source)
                 VALUES ($1,$2,$3,$4,$5,$6)
                 ON CONFLICT (activity_type, category_id, unit, region) DO UPDATE
                    SET co2_per_unit = EXCLUDED.co2_per_unit,
                        source = EXCLUDED.source
                 RETURNING factor_id`,
				f.ActivityType, categoryID, f.CO2PerUnit, f.Unit, f.Region, f.Source,
			).Scan(&factorID)
			if err != nil {
				return fmt.Errorf("upsert factor %q: %w", f.ActivityType, err)
			}
			keep = append(keep, factorID)
		}
	}

	if _, err = tx.Exec(ctx, `DELETE FROM emission_factors WHERE NOT (factor_id = ANY($1))`, keep); err != nil {
		return fmt.Errorf("prune factors: %w", err)
	}

	titles := make([]string, 0, len(c.Recommendations))
	for _, rec := range c.Recommendations {
		titles = append(titles, rec.Title)
		_, err = tx.Exec(ctx,
			`INSERT INTO recommendations (title, description, category, co2_saving, difficulty, icon, is_active)
             VALUES ($1,$2,$3,$4,$5,$6,$7)
             ON CONFLICT (title) DO UPDATE
                SET description = EXCLUDED.description,
                    category = EXCLUDED.category,
                    co2_saving = EXCLUDED.co2_saving,
                    difficulty = EXCLUDED.difficulty,
                    icon = EXCLUDED.icon,
                    is_active = EXCLUDED.is_active`,
			rec.Title, rec.Description, rec.Category, rec.CO2Saving, rec.Difficulty, rec.Icon, rec.IsActive(),
		)
		if err != nil {
			return fmt.Errorf("upsert recommendation %q: %w", rec.Title, err)
		}
	}

	if _, err = tx.Exec(ctx,
		`UPDATE recommendations SET is_active = FALSE WHERE is_active AND NOT (title = ANY($1))`, titles); err != nil {
		return fmt.Errorf("retire recommendations: %w", err)
	}

	if _, err = tx.Exec(ctx,
		`INSERT INTO catalog_versions (version) VALUES ($1)
         ON CONFLICT (version) DO UPDATE SET applied_at = NOW()`, c.Version); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// CatalogVersion returns the most recently applied catalog version, or "" when
// none has been applied.
func (r *Repository) CatalogVersion(ctx context.Context) (string, error) {
	var version string
	err := r.pool.QueryRow(ctx, `SELECT version FROM catalog_versions ORDER BY applied_at DESC LIMIT 1`).Scan(&version)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	return version, err
}

// ListEmissionFactors returns every stored factor ordered by id.
func (r *Repository) ListEmissionFactors(ctx context.Context) ([]domain.EmissionFactor, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT factor_id, activity_type, category_id, co2_per_unit, unit, region, source
           FROM emission_factors ORDER BY factor_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.EmissionFactor
	for rows.Next() {
		var f domain.EmissionFactor
		if err := rows.Scan(&f.ID, &f.ActivityType, &f.CategoryID, &f.CO2PerUnit, &f.Unit, &f.Region, &f.Source); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// ListCategories returns categories ordered by name.
func (r *Repository) ListCategories(ctx context.Context) ([]domain.ActivityCategory, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT category_id, name, description, icon, emission_factor_source
           FROM activity_categories ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.ActivityCategory, 0)
	for rows.Next() {
		var c domain.ActivityCategory
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.Icon, &c.EmissionFactorSource); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetCategory returns (nil, nil) when the category does not exist.
func (r *Repository) GetCategory(ctx context.Context, id int64) (*domain.ActivityCategory, error) {
	var c domain.ActivityCategory
	err := r.pool.QueryRow(ctx,
		`SELECT category_id, name, description, icon, emission_factor_source
           FROM activity_categories WHERE category_id = $1`, id,
	).Scan(&c.ID, &c.Name, &c.Description, &c.Icon, &c.EmissionFactorSource)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// CreateActivity persists the activity and its activity.recorded outbox event
// inside a single transaction.
func (r *Repository) CreateActivity(ctx context.Context, activity domain.Activity) (err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	_, err = tx.Exec(ctx,
		`INSERT INTO user_activities (activity_id, user_id, category_id, activity_type, quantity, unit, activity_date, calculated_co2, emission_factor_id, notes, created_at)
         VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		activity.ID,
		activity.UserID,
		activity.CategoryID,
		activity.ActivityType,
		activity.Quantity,
		activity.Unit,
		activity.Date,
		activity.CalculatedCO2,
		activity.FactorID,
		activity.Notes,
		activity.CreatedAt,
	)
	if err != nil {
		return err
	}

	err = insertOutbox(ctx, tx, outboxRecord{
		aggregateType: "activity",
		aggregateID:   activity.ID,
		userID:        activity.UserID,
		eventType:     events.TypeActivityRecorded,
	}, events.ActivityRecorded{
		ActivityID:    activity.ID,
		UserID:        activity.UserID,
		CategoryID:    activity.CategoryID,
		ActivityType:  activity.ActivityType,
		Quantity:      activity.Quantity,
		Unit:          activity.Unit,
		Date:          activity.Date.Format(time.DateOnly),
		CalculatedCO2: activity.CalculatedCO2,
		FactorID:      activity.FactorID,
		RecordedAt:    activity.CreatedAt,
	})
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// GetActivity returns (nil, nil) when the activity does not exist or belongs
// to another user.
func (r *Repository) GetActivity(ctx context.Context, userID, activityID string) (*domain.Activity, error) {
	if _, err := uuid.Parse(activityID); err != nil {
		return nil, nil
	}
	row := r.pool.QueryRow(ctx,
		`SELECT `+activityColumns+` `+activityFrom+` WHERE a.user_id = $1 AND a.activity_id = $2`,
		userID, activityID)
	a, err := scanActivity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// DeleteActivity removes an owned activity and records activity.deleted.
func (r *Repository) DeleteActivity(ctx context.Context, userID, activityID string) (deleted bool, err error) {
	if _, parseErr := uuid.Parse(activityID); parseErr != nil {
		return false, nil
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer func() {
		if err != nil || !deleted {
			tx.Rollback(ctx)
		}
	}()

	tag, err := tx.Exec(ctx, `DELETE FROM user_activities WHERE user_id = $1 AND activity_id = $2`, userID, activityID)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	err = insertOutbox(ctx, tx, outboxRecord{
		aggregateType: "activity",
		aggregateID:   activityID,
		userID:        userID,
		eventType:     events.TypeActivityDeleted,
	}, events.ActivityDeleted{
		ActivityID: activityID,
		UserID:     userID,
		DeletedAt:  time.Now().UTC(),
	})
	if err != nil {
		return false, err
	}

	if err = tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// ListActivities returns the user's activities newest first.
func (r *Repository) ListActivities(ctx context.Context, userID string, cursor *domain.Cursor, limit int) ([]domain.Activity, *domain.Cursor, error) {
	args := []interface{}{userID, limit}
	query := `SELECT ` + activityColumns + ` ` + activityFrom + ` WHERE a.user_id = $1`

	if cursor != nil {
		query += ` AND (a.created_at, a.activity_id) < ($3, $4::uuid)`
		args = append(args, cursor.CreatedAt, cursor.ID)
	}

	query += ` ORDER BY a.created_at DESC, a.activity_id DESC LIMIT $2`

	results, err := r.queryActivities(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}

	var nextCursor *domain.Cursor
	if limit > 0 && len(results) == limit {
		last := results[len(results)-1]
		nextCursor = &domain.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}
	}
	return results, nextCursor, nil
}

// AllActivities returns every activity of the user, newest first.
func (r *Repository) AllActivities(ctx context.Context, userID string) ([]domain.Activity, error) {
	return r.queryActivities(ctx,
		`SELECT `+activityColumns+` `+activityFrom+` WHERE a.user_id = $1 ORDER BY a.created_at DESC, a.activity_id DESC`,
		userID)
}

func (r *Repository) queryActivities(ctx context.Context, query string, args ...interface{}) ([]domain.Activity, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]domain.Activity, 0)
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, a)
	}
	return results, rows.Err()
}

const recommendationColumns = `r.recommendation_id, r.title, r.description, r.category, r.co2_saving, r.difficulty, r.icon, r.is_active`

func scanRecommendationInto(rec *domain.Recommendation) []any {
	return []any{&rec.ID, &rec.Title, &rec.Description, &rec.Category, &rec.CO2Saving, &rec.Difficulty, &rec.Icon, &rec.IsActive}
}

// ListRecommendations returns catalog entries with the highest saving first.
func (r *Repository) ListRecommendations(ctx context.Context, activeOnly bool) ([]domain.Recommendation, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+recommendationColumns+` FROM recommendations r
          WHERE ($1 = FALSE OR r.is_active)
          ORDER BY r.co2_saving DESC, r.recommendation_id`, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Recommendation, 0)
	for rows.Next() {
		var rec domain.Recommendation
		if err := rows.Scan(scanRecommendationInto(&rec)...); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

const userRecommendationQuery = `SELECT ur.user_recommendation_id::text, ur.user_id, ur.is_viewed, ur.is_applied, ur.created_at, ` + recommendationColumns + `
       FROM user_recommendations ur JOIN recommendations r ON r.recommendation_id = ur.recommendation_id`

func scanUserRecommendation(row pgx.Row) (domain.UserRecommendation, error) {
	var ur domain.UserRecommendation
	dest := append([]any{&ur.ID, &ur.UserID, &ur.IsViewed, &ur.IsApplied, &ur.CreatedAt}, scanRecommendationInto(&ur.Recommendation)...)
	err := row.Scan(dest...)
	ur.CreatedAt = ur.CreatedAt.UTC()
	return ur, err
}

// ListUserRecommendations returns the user's assignments newest first.
func (r *Repository) ListUserRecommendations(ctx context.Context, userID string) ([]domain.UserRecommendation, error) {
	rows, err := r.pool.Query(ctx,
		userRecommendationQuery+` WHERE ur.user_id = $1 ORDER BY ur.created_at DESC, ur.user_recommendation_id DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.UserRecommendation, 0)
	for rows.Next() {
		ur, err := scanUserRecommendation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ur)
	}
	return out, rows.Err()
}

// GetUserRecommendation returns (nil, nil) when the assignment does not exist
// or belongs to another user.
func (r *Repository) GetUserRecommendation(ctx context.Context, userID, id string) (*domain.UserRecommendation, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}
	ur, err := scanUserRecommendation(r.pool.QueryRow(ctx,
		userRecommendationQuery+` WHERE ur.user_id = $1 AND ur.user_recommendation_id = $2`, userID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ur, nil
}

// AssignRecommendations links recs to the user. Pairs the user already has are
// skipped; one recommendation.assigned event is written per new link.
func (r *Repository) AssignRecommendations(ctx context.Context, userID string, recs []domain.Recommendation, reason string, at time.Time) (created []domain.UserRecommendation, err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	created = make([]domain.UserRecommendation, 0, len(recs))
	for _, rec := range recs {
		id := uuid.NewString()
		var inserted string
		err = tx.QueryRow(ctx,
			`INSERT INTO user_recommendations (user_recommendation_id, user_id, recommendation_id, reason, created_at)
             VALUES ($1,$2,$3,$4,$5)
             ON CONFLICT (user_id, recommendation_id) DO NOTHING
             RETURNING user_recommendation_id::text`,
			id, userID, rec.ID, reason, at,
		).Scan(&inserted)
		if errors.Is(err, pgx.ErrNoRows) {
			err = nil
			continue
		}
		if err != nil {
			return nil, err
		}

		err = insertOutbox(ctx, tx, outboxRecord{
			aggregateType: "user_recommendation",
			aggregateID:   inserted,
			userID:        userID,
			eventType:     events.TypeRecommendationAssigned,
		}, events.RecommendationAssigned{
			UserRecommendationID: inserted,
			UserID:               userID,
			RecommendationID:     rec.ID,
			Category:             string(rec.Category),
			Reason:               reason,
			AssignedAt:           at,
		})
		if err != nil {
			return nil, err
		}

		created = append(created, domain.UserRecommendation{
			ID:             inserted,
			UserID:         userID,
			Recommendation: rec,
			CreatedAt:      at,
		})
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, err
	}
	return created, nil
}

// CategoryTotalsSince sums the user's CO₂ per category for activities dated on
// or after since's calendar day.
func (r *Repository) CategoryTotalsSince(ctx context.Context, userID string, since time.Time) ([]domain.CategoryTotal, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT a.category_id, c.name, SUM(a.calculated_co2)
           FROM user_activities a JOIN activity_categories c ON c.category_id = a.category_id
          WHERE a.user_id = $1 AND a.activity_date >= $2
          GROUP BY a.category_id, c.name
          ORDER BY a.category_id`,
		userID, domain.Day(since))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.CategoryTotal, 0)
	for rows.Next() {
		var t domain.CategoryTotal
		if err := rows.Scan(&t.CategoryID, &t.CategoryName, &t.TotalCO2); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListUserIDs returns every user with activities or assignments.
func (r *Repository) ListUserIDs(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT user_id FROM user_activities
         UNION
         SELECT user_id FROM user_recommendations
         ORDER BY 1`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// MarkUserRecommendation sets the viewed or applied flag. Applied implies viewed.
func (r *Repository) MarkUserRecommendation(ctx context.Context, userID, id string, flag domain.RecommendationFlag) (bool, error) {
	if _, err := uuid.Parse(id); err != nil {
		return false, nil
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE user_recommendations
            SET is_viewed = TRUE,
                is_applied = is_applied OR $3
          WHERE user_id = $1 AND user_recommendation_id = $2`,
		userID, id, flag == domain.FlagApplied)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// outboxRecord identifies an event row. Events are keyed by user so one
// user's events stay ordered within a partition.
type outboxRecord struct {
	aggregateType string
	aggregateID   string
	userID        string
	eventType     string
}

func insertOutbox(ctx context.Context, tx pgx.Tx, rec outboxRecord, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	topic, ok := events.TopicFor(rec.eventType)
	if !ok {
		return fmt.Errorf("unknown event type: %s", rec.eventType)
	}

	dedupeKey := fmt.Sprintf("%s:%s", rec.aggregateID, rec.eventType)

	const stmt = `INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`

	_, err = tx.Exec(ctx, stmt,
		rec.aggregateType,
		rec.aggregateID,
		rec.eventType,
		topic,
		events.SchemaSubject(topic),
		rec.userID,
		body,
		dedupeKey,
	)
	return err
}
