package semcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fitforge/fitforge/internal/models"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	recordKeyPrefix  = "plancache:rec:"
	fieldRecord      = "record"
	fieldAccessCount = "access_count"
	fieldLastUsedAt  = "last_used_at"
)

// Store is the persisted repository of previously generated plans, keyed by
// fingerprint and indexed by (goal, diet) for candidate lookup. Access-count
// increments use HIncrBy so concurrent reads never lose an increment.
type Store struct {
	client *redis.Client
	logger *zap.Logger
	ttl    time.Duration
}

// NewStore creates a cache store on an existing Redis client. ttl of zero
// means records never expire.
func NewStore(client *redis.Client, logger *zap.Logger, ttl time.Duration) *Store {
	return &Store{client: client, logger: logger, ttl: ttl}
}

// Match is a cache candidate scored against a requested context.
type Match struct {
	Record     *models.CachedPlanRecord
	Similarity Similarity
}

// Put writes a record through to the cache, replacing any record with the
// same fingerprint, and registers it in the (goal, diet) index.
func (s *Store) Put(ctx context.Context, record *models.CachedPlanRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal cache record: %w", err)
	}

	key := recordKeyPrefix + record.Fingerprint.Key()
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, fieldRecord, payload)
	pipe.HSetNX(ctx, key, fieldAccessCount, 0)
	pipe.HSet(ctx, key, fieldLastUsedAt, record.LastUsedAt.UTC().Format(time.RFC3339))
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	pipe.SAdd(ctx, indexKey(record.Fingerprint.Goal, record.Fingerprint.Diet), record.Fingerprint.Key())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to write cache record: %w", err)
	}
	return nil
}

// BestMatch scores every candidate sharing the requested goal and diet and
// returns the highest-similarity one, or nil when the cache has no candidate.
func (s *Store) BestMatch(ctx context.Context, requested *models.PlanningContext) (*Match, error) {
	members, err := s.client.SMembers(ctx, indexKey(requested.Goal, requested.Nutrition.Diet)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read cache index: %w", err)
	}

	var best *Match
	for _, fpKey := range members {
		record, err := s.get(ctx, fpKey)
		if errors.Is(err, redis.Nil) || record == nil {
			// Expired record still referenced by the index
			s.client.SRem(ctx, indexKey(requested.Goal, requested.Nutrition.Diet), fpKey)
			continue
		}
		if err != nil {
			return nil, err
		}
		sim := Compare(requested, &record.Context)
		if best == nil || sim.Score > best.Similarity.Score {
			best = &Match{Record: record, Similarity: sim}
		}
	}
	return best, nil
}

// Touch atomically increments the access count and stamps last-used time.
func (s *Store) Touch(ctx context.Context, fp models.SemanticFingerprint) (int64, error) {
	key := recordKeyPrefix + fp.Key()
	count, err := s.client.HIncrBy(ctx, key, fieldAccessCount, 1).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment access count: %w", err)
	}
	if err := s.client.HSet(ctx, key, fieldLastUsedAt, time.Now().UTC().Format(time.RFC3339)).Err(); err != nil {
		// The increment already landed; a stale last-used stamp is tolerable.
		if s.logger != nil {
			s.logger.Warn("cache_touch_timestamp_failed", zap.Error(err), zap.String("fingerprint", fp.Key()))
		}
	}
	return count, nil
}

// Stats summarizes the cache population for the telemetry surface.
type Stats struct {
	Records     int64 `json:"records"`
	TotalHits   int64 `json:"total_hits"`
}

// Stats scans the record keyspace and aggregates counts.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	var stats Stats
	iter := s.client.Scan(ctx, 0, recordKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		stats.Records++
		count, err := s.client.HGet(ctx, iter.Val(), fieldAccessCount).Int64()
		if err == nil {
			stats.TotalHits += count
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan cache: %w", err)
	}
	return &stats, nil
}

// Purge removes every cached record and index entry.
func (s *Store) Purge(ctx context.Context) (int64, error) {
	var removed int64
	for _, pattern := range []string{recordKeyPrefix + "*", "plancache:index:*"} {
		iter := s.client.Scan(ctx, 0, pattern, 0).Iterator()
		for iter.Next(ctx) {
			if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
				return removed, fmt.Errorf("failed to delete %s: %w", iter.Val(), err)
			}
			removed++
		}
		if err := iter.Err(); err != nil {
			return removed, fmt.Errorf("failed to scan cache: %w", err)
		}
	}
	return removed, nil
}

func (s *Store) get(ctx context.Context, fpKey string) (*models.CachedPlanRecord, error) {
	vals, err := s.client.HMGet(ctx, recordKeyPrefix+fpKey, fieldRecord, fieldAccessCount).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read cache record: %w", err)
	}
	raw, ok := vals[0].(string)
	if !ok || raw == "" {
		return nil, redis.Nil
	}
	var record models.CachedPlanRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cache record: %w", err)
	}
	if countStr, ok := vals[1].(string); ok {
		var count int64
		if _, err := fmt.Sscanf(countStr, "%d", &count); err == nil {
			record.AccessCount = count
		}
	}
	return &record, nil
}
