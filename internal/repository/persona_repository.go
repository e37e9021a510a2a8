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

const listPersonasQuery = `
    SELECT ref, name, traits, communication_style, motivations, fears, speech_patterns
    FROM personas
    ORDER BY ref
`

// PgPersonaRepository reads the base persona records the cache preloads.
type PgPersonaRepository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewPgPersonaRepository(pool *pgxpool.Pool, logger *zap.Logger) *PgPersonaRepository {
	return &PgPersonaRepository{
		pool:   pool,
		logger: logger.Named("PersonaRepo"),
	}
}

// ListAll returns every base persona record. An empty table is not an error.
func (r *PgPersonaRepository) ListAll(ctx context.Context) ([]model.PersonaRecord, error) {
	var records []model.PersonaRecord
	err := pgxscan.Select(ctx, r.pool, &records, listPersonasQuery)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.Warn("No personas found, returning empty list")
			return []model.PersonaRecord{}, nil
		}
		r.logger.Error("Error listing personas", zap.Error(err))
		return nil, fmt.Errorf("failed to list personas: %w", err)
	}
	return records, nil
}
