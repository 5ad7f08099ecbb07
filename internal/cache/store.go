package cache

import (
	"context"
	"encoding/json"
	"slices"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"

	apperrors "github.com/anime-shed/content-analyzer-go/internal/errors"
	"github.com/anime-shed/content-analyzer-go/pkg/models"
)

const (
	DefaultSize      = 10000
	DefaultTTL       = 24 * time.Hour
	DefaultThreshold = 0.95
)

// Entry is a cached analysis result
type Entry struct {
	Key         string
	ContentHash string
	OptionsKey  string
	Result      models.AnalysisResult
	Embedding   []float32
	TokenCost   int64
	CreatedAt   time.Time

	lastAccess atomic.Int64
	hits       atomic.Int64
}

// HitCount returns how many lookups this entry has served
func (e *Entry) HitCount() int64 { return e.hits.Load() }

// LastAccess returns the time of the most recent hit, or creation
func (e *Entry) LastAccess() time.Time { return time.Unix(0, e.lastAccess.Load()) }

func (e *Entry) touch(now time.Time) {
	e.hits.Add(1)
	e.lastAccess.Store(now.UnixNano())
}

// LookupOptions controls the semantic fallback
type LookupOptions struct {
	UseSemantic bool
	Threshold   float64
	Embedding   []float32
	OptionsKey  string
}

// Options configures a Store
type Options struct {
	Size    int
	TTL     time.Duration
	Backing Backing
	Logger  *logrus.Logger
}

// Store is a two-level cache: an expirable LRU in memory and an optional persistent backing.
// Backing failures degrade to misses.
type Store struct {
	lru     *expirable.LRU[string, *Entry]
	backing Backing
	ttl     time.Duration
	logger  *logrus.Logger
	now     func() time.Time

	hits         atomic.Int64
	semanticHits atomic.Int64
	misses       atomic.Int64
	tokensSaved  atomic.Int64
}

// New creates a Store
func New(opts Options) *Store {
	if opts.Size <= 0 {
		opts.Size = DefaultSize
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	s := &Store{backing: opts.Backing, ttl: opts.TTL, logger: opts.Logger, now: time.Now}
	s.lru = expirable.NewLRU[string, *Entry](opts.Size, func(key string, _ *Entry) {
		s.logger.WithField("cache_key", key).Debug("Cache entry evicted")
	}, opts.TTL)
	return s
}

// Lookup tries the exact key first, then the backing store, then the most similar entry
// with the same options whose similarity reaches the threshold. An exact hit must match
// both the content hash and the options key. The returned entry holds a private copy of
// the result.
func (s *Store) Lookup(ctx context.Context, key, hash string, q LookupOptions) (*Entry, bool) {
	if entry, ok := s.lru.Get(key); ok && entry.matches(hash, q.OptionsKey) {
		return s.hit(entry, false), true
	}

	if entry, err := s.loadFromBacking(ctx, key); err != nil {
		s.logger.WithError(err).WithField("cache_key", key).Warn("Cache backing lookup failed, treating as miss")
	} else if entry != nil && entry.matches(hash, q.OptionsKey) {
		s.lru.Add(key, entry)
		return s.hit(entry, false), true
	}

	if q.UseSemantic && len(q.Embedding) > 0 {
		threshold := q.Threshold
		if threshold <= 0 {
			threshold = DefaultThreshold
		}
		var best *Entry
		bestScore := -1.0
		for _, entry := range s.lru.Values() {
			if entry.OptionsKey != q.OptionsKey || len(entry.Embedding) == 0 {
				continue
			}
			if score := CosineSimilarity(q.Embedding, entry.Embedding); score > bestScore {
				best, bestScore = entry, score
			}
		}
		if best != nil && bestScore >= threshold {
			s.logger.WithFields(logrus.Fields{
				"cache_key":  best.Key,
				"similarity": bestScore,
			}).Debug("Semantic cache hit")
			return s.hit(best, true), true
		}
	}

	s.misses.Add(1)
	return nil, false
}

func (e *Entry) matches(hash, optionsKey string) bool {
	return e.ContentHash == hash && e.OptionsKey == optionsKey
}

func (s *Store) hit(entry *Entry, semantic bool) *Entry {
	entry.touch(s.now())
	s.hits.Add(1)
	if semantic {
		s.semanticHits.Add(1)
	}
	s.tokensSaved.Add(entry.TokenCost)

	out := &Entry{
		Key:         entry.Key,
		ContentHash: entry.ContentHash,
		OptionsKey:  entry.OptionsKey,
		Result:      entry.Result.Clone(),
		Embedding:   slices.Clone(entry.Embedding),
		TokenCost:   entry.TokenCost,
		CreatedAt:   entry.CreatedAt,
	}
	out.hits.Store(entry.hits.Load())
	out.lastAccess.Store(entry.lastAccess.Load())
	return out
}

// Store records a successful result. Backing write failures are logged.
func (s *Store) Store(ctx context.Context, key, hash, optionsKey string, result models.AnalysisResult, tokenCost int64, embedding []float32) {
	now := s.now()
	entry := &Entry{
		Key:         key,
		ContentHash: hash,
		OptionsKey:  optionsKey,
		Result:      result.Clone(),
		Embedding:   slices.Clone(embedding),
		TokenCost:   tokenCost,
		CreatedAt:   now,
	}
	entry.lastAccess.Store(now.UnixNano())
	s.lru.Add(key, entry)

	if s.backing == nil {
		return
	}
	payload, err := json.Marshal(result)
	if err != nil {
		s.logger.WithError(err).WithField("cache_key", key).Warn("Failed to encode cache entry")
		return
	}
	record := Record{
		Key:         key,
		ContentHash: hash,
		OptionsKey:  optionsKey,
		Result:      payload,
		Embedding:   embedding,
		TokenCost:   tokenCost,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.ttl),
	}
	if err := s.backing.Put(ctx, record); err != nil {
		s.logger.WithError(apperrors.NewCacheError("cache backing write failed", err)).
			WithField("cache_key", key).Warn("Cache entry kept in memory only")
	}
}

func (s *Store) loadFromBacking(ctx context.Context, key string) (*Entry, error) {
	if s.backing == nil {
		return nil, nil
	}
	record, err := s.backing.Get(ctx, key)
	if err != nil {
		return nil, apperrors.NewCacheError("cache backing read failed", err)
	}
	if record == nil || !record.ExpiresAt.After(s.now()) {
		return nil, nil
	}
	var result models.AnalysisResult
	if err := json.Unmarshal(record.Result, &result); err != nil {
		return nil, apperrors.NewCacheError("cache backing entry is corrupt", err)
	}
	entry := &Entry{
		Key:         record.Key,
		ContentHash: record.ContentHash,
		OptionsKey:  record.OptionsKey,
		Result:      result,
		Embedding:   record.Embedding,
		TokenCost:   record.TokenCost,
		CreatedAt:   record.CreatedAt,
	}
	entry.lastAccess.Store(record.CreatedAt.UnixNano())
	return entry, nil
}

// Stats reports hit/miss counters
func (s *Store) Stats() models.CacheStats {
	hits := s.hits.Load()
	misses := s.misses.Load()
	stats := models.CacheStats{
		Hits:         hits,
		SemanticHits: s.semanticHits.Load(),
		Misses:       misses,
		Entries:      s.lru.Len(),
		TokensSaved:  s.tokensSaved.Load(),
	}
	if total := hits + misses; total > 0 {
		stats.HitRate = float64(hits) / float64(total)
	}
	return stats
}

// Close releases the backing store
func (s *Store) Close() error {
	s.lru.Purge()
	if s.backing == nil {
		return nil
	}
	return s.backing.Close()
}
