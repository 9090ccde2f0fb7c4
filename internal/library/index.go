// Package library maintains an in-memory index of spectra supporting
// insertion, removal and nearest-match retrieval.
package library

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/specmatch/specmatch/internal/binning"
	"github.com/specmatch/specmatch/internal/cache"
	"github.com/specmatch/specmatch/internal/similarity"
	"github.com/specmatch/specmatch/internal/spectrum"
)

// DuplicateIDError reports an insert with an identifier already present.
type DuplicateIDError struct {
	ID string
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("spectrum %q already in index", e.ID)
}

// NotFoundError reports an operation on an absent identifier.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("spectrum %q not found", e.ID)
}

// InvalidArgumentError reports a bad query argument.
type InvalidArgumentError struct {
	Message string
}

func (e *InvalidArgumentError) Error() string {
	return "invalid argument: " + e.Message
}

type entry struct {
	spec *spectrum.Spectrum
	// vectors caches binned representations per config key. Owned by the
	// index, dropped when the entry is removed.
	vectors map[string]*binning.Vector
}

// Index is a queryable collection of spectra. Reads may run concurrently;
// mutations are serialized by the internal lock.
type Index struct {
	mu      sync.RWMutex
	name    string
	entries map[string]*entry
	scorer  *similarity.Scorer
	shared  *cache.VectorCache // optional redis tier, may be nil
	logger  *zap.Logger
}

// Match is one ranked library hit.
type Match struct {
	ID    string           `json:"id"`
	Score similarity.Score `json:"score"`
}

// New creates an empty index. The shared cache is optional and may be nil.
func New(name string, scorer *similarity.Scorer, shared *cache.VectorCache, logger *zap.Logger) *Index {
	return &Index{
		name:    name,
		entries: make(map[string]*entry),
		scorer:  scorer,
		shared:  shared,
		logger:  logger,
	}
}

// Name returns the library name.
func (ix *Index) Name() string {
	return ix.name
}

// Len returns the number of spectra in the index.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.entries)
}

// IDs returns all identifiers in ascending order.
func (ix *Index) IDs() []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	ids := make([]string, 0, len(ix.entries))
	for id := range ix.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Get returns the spectrum with the given identifier.
func (ix *Index) Get(id string) (*spectrum.Spectrum, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	e, ok := ix.entries[id]
	if !ok {
		return nil, &NotFoundError{ID: id}
	}
	return e.spec, nil
}

// Insert adds a spectrum. It fails with *DuplicateIDError if the identifier
// is already present; use InsertReplace to overwrite.
func (ix *Index) Insert(s *spectrum.Spectrum) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if _, ok := ix.entries[s.ID()]; ok {
		return &DuplicateIDError{ID: s.ID()}
	}
	ix.entries[s.ID()] = &entry{spec: s, vectors: make(map[string]*binning.Vector)}
	return nil
}

// InsertReplace adds a spectrum, replacing any existing entry with the same
// identifier. The prior entry's cached vectors are invalidated.
func (ix *Index) InsertReplace(ctx context.Context, s *spectrum.Spectrum) error {
	ix.mu.Lock()
	replaced := false
	if _, ok := ix.entries[s.ID()]; ok {
		replaced = true
	}
	ix.entries[s.ID()] = &entry{spec: s, vectors: make(map[string]*binning.Vector)}
	ix.mu.Unlock()

	if replaced && ix.shared != nil {
		if err := ix.shared.Delete(ctx, s.ID()); err != nil {
			ix.logger.Warn("Failed to invalidate shared cache entry",
				zap.String("spectrum_id", s.ID()),
				zap.Error(err))
		}
	}
	return nil
}

// Remove deletes a spectrum and its cached vectors. It fails with
// *NotFoundError if the identifier is absent; the index is unchanged in
// that case.
func (ix *Index) Remove(ctx context.Context, id string) error {
	ix.mu.Lock()
	if _, ok := ix.entries[id]; !ok {
		ix.mu.Unlock()
		return &NotFoundError{ID: id}
	}
	delete(ix.entries, id)
	ix.mu.Unlock()

	if ix.shared != nil {
		if err := ix.shared.Delete(ctx, id); err != nil {
			ix.logger.Warn("Failed to invalidate shared cache entry",
				zap.String("spectrum_id", id),
				zap.Error(err))
		}
	}
	return nil
}

// InvalidateConfig drops every cached vector produced under the given
// configuration, locally and in the shared tier.
func (ix *Index) InvalidateConfig(ctx context.Context, cfg binning.Config) error {
	key := cfg.Key()

	ix.mu.Lock()
	for _, e := range ix.entries {
		delete(e.vectors, key)
	}
	ix.mu.Unlock()

	if ix.shared != nil {
		return ix.shared.InvalidateConfig(ctx, key)
	}
	return nil
}

// Vector returns the binned vector for a member spectrum, computing and
// caching it if needed.
func (ix *Index) Vector(ctx context.Context, id string, cfg binning.Config) (*binning.Vector, error) {
	ix.mu.RLock()
	e, ok := ix.entries[id]
	var cached *binning.Vector
	if ok {
		cached = e.vectors[cfg.Key()]
	}
	ix.mu.RUnlock()

	if !ok {
		return nil, &NotFoundError{ID: id}
	}
	if cached != nil {
		return cached, nil
	}

	// Shared tier before recomputing; binning is the expensive step.
	if ix.shared != nil {
		vec, err := ix.shared.Get(ctx, cfg.Key(), id)
		if err != nil {
			ix.logger.Warn("Shared cache read failed", zap.String("spectrum_id", id), zap.Error(err))
		} else if vec != nil {
			ix.storeVector(id, cfg, vec)
			return vec, nil
		}
	}

	vec, err := binning.Bin(e.spec, cfg)
	if err != nil {
		return nil, err
	}
	ix.storeVector(id, cfg, vec)

	if ix.shared != nil {
		if err := ix.shared.Set(ctx, vec); err != nil {
			ix.logger.Warn("Shared cache write failed", zap.String("spectrum_id", id), zap.Error(err))
		}
	}
	return vec, nil
}

func (ix *Index) storeVector(id string, cfg binning.Config, vec *binning.Vector) {
	ix.mu.Lock()
	if e, ok := ix.entries[id]; ok {
		e.vectors[cfg.Key()] = vec
	}
	ix.mu.Unlock()
}

// FindBestMatches bins the query under cfg, scores it against every member
// of the index under the same configuration and returns the topK matches in
// descending score order, ties broken by ascending identifier.
func (ix *Index) FindBestMatches(ctx context.Context, query *spectrum.Spectrum, cfg binning.Config, topK int) ([]Match, error) {
	if topK <= 0 {
		return nil, &InvalidArgumentError{Message: fmt.Sprintf("top_k must be positive, got %d", topK)}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Empty spectra are excluded from similarity ranking.
	if query.Empty() {
		return []Match{}, nil
	}

	queryVec, err := binning.Bin(query, cfg)
	if err != nil {
		return nil, err
	}

	ids := ix.IDs()
	candidates := make([]similarity.Candidate, 0, len(ids))
	for _, id := range ids {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		vec, err := ix.Vector(ctx, id, cfg)
		if err != nil {
			// Entry removed between snapshot and binning; skip it.
			if _, ok := err.(*NotFoundError); ok {
				continue
			}
			return nil, fmt.Errorf("binning library member %q: %w", id, err)
		}
		candidates = append(candidates, similarity.Candidate{ID: id, Vector: vec})
	}

	ranked, err := ix.scorer.Rank(queryVec, candidates)
	if err != nil {
		return nil, err
	}
	if topK < len(ranked) {
		ranked = ranked[:topK]
	}

	matches := make([]Match, len(ranked))
	for i, r := range ranked {
		matches[i] = Match{ID: r.ID, Score: r.Score}
	}
	return matches, nil
}
