package repository

import (
	"context"
	"errors"
	"fmt"

	"talk-trainer-server/internal/model"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const (
	getCriteriaSetQuery = `
        SELECT id, name FROM evaluation_criteria_sets WHERE name = $1
    `
	getCriteriaDimensionsQuery = `
        SELECT key, name, description, weight, min_score, max_score, rubric, instructions
        FROM evaluation_dimensions
        WHERE set_id = $1
        ORDER BY position
    `
)

// PgCriteriaRepository resolves admin-configured evaluation criteria sets.
type PgCriteriaRepository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewPgCriteriaRepository(pool *pgxpool.Pool, logger *zap.Logger) *PgCriteriaRepository {
	return &PgCriteriaRepository{
		pool:   pool,
		logger: logger.Named("CriteriaRepo"),
	}
}

// GetSet resolves a criteria set by name. A missing or empty set resolves to
// the built-in default rather than failing: an evaluation must always have a
// rubric to run against.
func (r *PgCriteriaRepository) GetSet(ctx context.Context, name string) (model.EvaluationCriteriaSet, error) {
	if name == "" {
		return model.DefaultCriteriaSet(), nil
	}
	log := r.logger.With(zap.String("criteriaSet", name))

	var set model.EvaluationCriteriaSet
	err := pgxscan.Get(ctx, r.pool, &set, getCriteriaSetQuery, name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			log.Warn("Criteria set not found, using default")
			return model.DefaultCriteriaSet(), nil
		}
		log.Error("Error getting criteria set", zap.Error(err))
		return model.EvaluationCriteriaSet{}, fmt.Errorf("failed to get criteria set %s: %w", name, err)
	}

	err = pgxscan.Select(ctx, r.pool, &set.Dimensions, getCriteriaDimensionsQuery, set.ID)
	if err != nil {
		log.Error("Error getting criteria dimensions", zap.Error(err))
		return model.EvaluationCriteriaSet{}, fmt.Errorf("failed to get dimensions for criteria set %s: %w", name, err)
	}
	if len(set.Dimensions) == 0 {
		log.Warn("Criteria set has no dimensions, using default")
		return model.DefaultCriteriaSet(), nil
	}
	return set, nil
}
