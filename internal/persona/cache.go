// Package persona owns the in-memory persona data served to the AI backend.
//
// The base tier is preloaded once at bootstrap and never evicted: the persona
// set is small and fixed at deployment. The enriched tier is computed lazily;
// the merge is pure and deterministic, so concurrent misses on the same key are
// benign: whichever write lands last overwrites with an equal value.
package persona

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"talk-trainer-server/internal/model"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	cacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trainer_persona_cache_requests_total",
			Help: "Enriched persona cache requests, partitioned by outcome.",
		},
		[]string{"outcome"}, // hit|miss
	)
)

// Repository supplies the base persona records at bootstrap.
type Repository interface {
	ListAll(ctx context.Context) ([]model.PersonaRecord, error)
}

type loadState int32

const (
	stateNotLoaded loadState = iota
	stateLoading
	stateLoaded
)

type enrichedKey struct {
	scenarioID string
	personaID  string
	baseRef    string
}

// Cache is the two-tier persona cache. Construct with NewCache, call Init
// before serving traffic.
type Cache struct {
	repo   Repository
	logger *zap.Logger

	mu       sync.RWMutex
	state    loadState
	base     map[string]model.PersonaRecord
	enriched map[enrichedKey]model.EnrichedPersona

	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewCache creates an empty, not-yet-loaded cache.
func NewCache(repo Repository, logger *zap.Logger) *Cache {
	return &Cache{
		repo:     repo,
		logger:   logger.Named("PersonaCache"),
		base:     make(map[string]model.PersonaRecord),
		enriched: make(map[enrichedKey]model.EnrichedPersona),
	}
}

// Init bulk-loads every base persona record. It must complete before the
// process accepts traffic; reads before that return ErrPersonaCacheNotLoaded.
func (c *Cache) Init(ctx context.Context) error {
	c.mu.Lock()
	if c.state == stateLoaded {
		c.mu.Unlock()
		return nil
	}
	c.state = stateLoading
	c.mu.Unlock()

	records, err := c.repo.ListAll(ctx)
	if err != nil {
		c.mu.Lock()
		c.state = stateNotLoaded
		c.mu.Unlock()
		return fmt.Errorf("failed to preload personas: %w", err)
	}

	base := make(map[string]model.PersonaRecord, len(records))
	for _, rec := range records {
		base[rec.Ref] = rec
	}

	c.mu.Lock()
	c.base = base
	c.state = stateLoaded
	c.mu.Unlock()

	c.logger.Info("Persona cache loaded", zap.Int("count", len(base)))
	return nil
}

// Clear resets both tiers to the not-loaded state.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = stateNotLoaded
	c.base = make(map[string]model.PersonaRecord)
	c.enriched = make(map[enrichedKey]model.EnrichedPersona)
	c.hits.Store(0)
	c.misses.Store(0)
}

// Base returns the immutable base record for ref.
func (c *Cache) Base(ref string) (model.PersonaRecord, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state != stateLoaded {
		return model.PersonaRecord{}, model.ErrPersonaCacheNotLoaded
	}
	rec, ok := c.base[ref]
	if !ok {
		return model.PersonaRecord{}, fmt.Errorf("%w: %s", model.ErrPersonaNotFound, ref)
	}
	return rec, nil
}

// Enriched returns the scenario-merged view of a persona, computing and caching
// it on first use. The computation is idempotent, so no per-key locking is
// needed: concurrent misses compute equal values and the last write wins.
func (c *Cache) Enriched(scenarioID, personaID string, overlay model.ScenarioPersonaOverlay) (model.EnrichedPersona, error) {
	key := enrichedKey{scenarioID: scenarioID, personaID: personaID, baseRef: overlay.PersonaRef}

	c.mu.RLock()
	if c.state != stateLoaded {
		c.mu.RUnlock()
		return model.EnrichedPersona{}, model.ErrPersonaCacheNotLoaded
	}
	if cached, ok := c.enriched[key]; ok {
		c.mu.RUnlock()
		c.hits.Add(1)
		cacheHits.With(prometheus.Labels{"outcome": "hit"}).Inc()
		return cached, nil
	}
	c.mu.RUnlock()

	base, err := c.Base(overlay.PersonaRef)
	if err != nil {
		return model.EnrichedPersona{}, err
	}
	enriched := merge(base, scenarioID, overlay)

	c.mu.Lock()
	c.enriched[key] = enriched
	c.mu.Unlock()

	c.misses.Add(1)
	cacheHits.With(prometheus.Labels{"outcome": "miss"}).Inc()
	return enriched, nil
}

// Stats reports hit/miss counters. They exist for observability and tests;
// correctness never depends on them.
func (c *Cache) Stats() (hits, misses uint64) {
	return c.hits.Load(), c.misses.Load()
}

// merge is the pure enrichment: base record plus scenario overlay.
func merge(base model.PersonaRecord, scenarioID string, overlay model.ScenarioPersonaOverlay) model.EnrichedPersona {
	return model.EnrichedPersona{
		PersonaRecord:   base,
		ScenarioID:      scenarioID,
		RoleTitle:       overlay.RoleTitle,
		Stance:          overlay.Stance,
		Goal:            overlay.Goal,
		NegotiableRange: overlay.NegotiableRange,
	}
}
