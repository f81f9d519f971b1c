// Package cache holds read-through caches in front of Postgres.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/wwfm-inc/wwfm-engine/pkg/models"
)

// Generation is the invalidation state a cache read observed. Set only
// stores a summary when no Invalidate happened after that read, so a summary
// built from data that a concurrent recompute has since replaced is dropped
// instead of being cached until the TTL runs out.
type Generation string

// SummaryCache stores rendered pair summaries. Entries are keyed by pair and
// display limit; Invalidate drops every limit for a pair at once.
type SummaryCache interface {
	// Get returns the cached summary, or nil on a miss, together with the
	// generation to pass to Set.
	Get(ctx context.Context, pair models.PairKey, limit int) (*models.PairSummary, Generation, error)
	// Set reports false when the pair was invalidated after gen was read.
	Set(ctx context.Context, pair models.PairKey, limit int, gen Generation, summary *models.PairSummary) (bool, error)
	Invalidate(ctx context.Context, pair models.PairKey) error
}

// NewSummaryCache returns a Redis-backed cache, or a no-op cache when client
// is nil so callers never need to branch on whether Redis is configured.
func NewSummaryCache(client *redis.Client, prefix string, ttl time.Duration, logger *zap.Logger) SummaryCache {
	if client == nil {
		return NoopSummaryCache{}
	}
	return &redisSummaryCache{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		logger: logger.Named("summary-cache"),
	}
}

type redisSummaryCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

var _ SummaryCache = (*redisSummaryCache)(nil)

// generationField holds the pair's generation token next to the per-limit
// entries. Limits are numeric so the names never collide.
const generationField = "gen"

// setIfGeneration writes one entry only while the stored generation still
// matches the one the caller read. A missing token reads as "".
var setIfGeneration = redis.NewScript(`
	local current = redis.call('HGET', KEYS[1], ARGV[1]) or ''
	if current ~= ARGV[2] then
		return 0
	end
	redis.call('HSET', KEYS[1], ARGV[3], ARGV[4])
	local ttl = tonumber(ARGV[5])
	if ttl > 0 then
		redis.call('PEXPIRE', KEYS[1], ttl)
	end
	return 1
`)

// invalidate replaces the pair's hash with a fresh generation token.
var invalidate = redis.NewScript(`
	redis.call('DEL', KEYS[1])
	redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
	local ttl = tonumber(ARGV[3])
	if ttl > 0 then
		redis.call('PEXPIRE', KEYS[1], ttl)
	end
	return 1
`)

// Each pair is one hash; hash fields are display limits plus the generation.
func (c *redisSummaryCache) key(pair models.PairKey) string {
	return fmt.Sprintf("%ssummary:%s:%s", c.prefix, pair.GoalID, pair.VariantID)
}

func (c *redisSummaryCache) Get(ctx context.Context, pair models.PairKey, limit int) (*models.PairSummary, Generation, error) {
	vals, err := c.client.HMGet(ctx, c.key(pair), strconv.Itoa(limit), generationField).Result()
	if err != nil {
		return nil, "", fmt.Errorf("failed to read summary cache: %w", err)
	}

	var gen Generation
	if s, ok := vals[1].(string); ok {
		gen = Generation(s)
	}
	raw, ok := vals[0].(string)
	if !ok {
		return nil, gen, nil
	}

	var summary models.PairSummary
	if err := json.Unmarshal([]byte(raw), &summary); err != nil {
		// A corrupt entry is treated as a miss and overwritten on the next Set.
		c.logger.Warn("Discarding unreadable cached summary",
			zap.String("goal_id", pair.GoalID.String()),
			zap.String("variant_id", pair.VariantID.String()),
			zap.Error(err))
		return nil, gen, nil
	}
	return &summary, gen, nil
}

func (c *redisSummaryCache) Set(ctx context.Context, pair models.PairKey, limit int, gen Generation, summary *models.PairSummary) (bool, error) {
	raw, err := json.Marshal(summary)
	if err != nil {
		return false, fmt.Errorf("failed to marshal summary: %w", err)
	}

	stored, err := setIfGeneration.Run(ctx, c.client, []string{c.key(pair)},
		generationField, string(gen), strconv.Itoa(limit), raw, c.ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("failed to write summary cache: %w", err)
	}
	return stored == 1, nil
}

func (c *redisSummaryCache) Invalidate(ctx context.Context, pair models.PairKey) error {
	err := invalidate.Run(ctx, c.client, []string{c.key(pair)},
		generationField, uuid.NewString(), c.ttl.Milliseconds()).Err()
	if err != nil {
		return fmt.Errorf("failed to invalidate summary cache: %w", err)
	}
	return nil
}

// NoopSummaryCache never stores anything.
type NoopSummaryCache struct{}

var _ SummaryCache = NoopSummaryCache{}

func (NoopSummaryCache) Get(context.Context, models.PairKey, int) (*models.PairSummary, Generation, error) {
	return nil, "", nil
}

func (NoopSummaryCache) Set(context.Context, models.PairKey, int, Generation, *models.PairSummary) (bool, error) {
	return false, nil
}

func (NoopSummaryCache) Invalidate(context.Context, models.PairKey) error {
	return nil
}
