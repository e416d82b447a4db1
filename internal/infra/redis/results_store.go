package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"quizroom/internal/domain"

	"github.com/redis/go-redis/v9"
)

// ResultsStore persists final leaderboards in Redis: a sorted set of scores
// for ranged reads plus the full JSON blob for exact reconstruction.
// Keys:
//
//	HSET-free layout, per session:
//	  quiz:results:{code}        -> leaderboard JSON
//	  quiz:results:{code}:scores -> ZSET nickname -> score
type ResultsStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewResultsStore(client *redis.Client, ttl time.Duration) *ResultsStore {
	return &ResultsStore{client: client, ttl: ttl}
}

func (s *ResultsStore) PersistFinalResults(ctx context.Context, sessionCode string, leaderboard domain.Leaderboard) error {
	raw, err := json.Marshal(leaderboard)
	if err != nil {
		return fmt.Errorf("marshal leaderboard: %w", err)
	}

	blobKey := s.blobKey(sessionCode)
	scoresKey := s.scoresKey(sessionCode)

	pipe := s.client.Pipeline()
	pipe.Set(ctx, blobKey, raw, s.ttl)
	for _, entry := range leaderboard.Entries {
		pipe.ZAdd(ctx, scoresKey, redis.Z{Score: float64(entry.Score), Member: entry.Nickname})
	}
	if s.ttl > 0 {
		pipe.Expire(ctx, scoresKey, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("persist results for %s: %w", sessionCode, err)
	}
	return nil
}

// Load reads back a persisted leaderboard.
func (s *ResultsStore) Load(ctx context.Context, sessionCode string) (domain.Leaderboard, error) {
	raw, err := s.client.Get(ctx, s.blobKey(sessionCode)).Bytes()
	if err != nil {
		return domain.Leaderboard{}, fmt.Errorf("load results for %s: %w", sessionCode, err)
	}
	var lb domain.Leaderboard
	if err := json.Unmarshal(raw, &lb); err != nil {
		return domain.Leaderboard{}, fmt.Errorf("unmarshal results for %s: %w", sessionCode, err)
	}
	return lb, nil
}

func (s *ResultsStore) blobKey(code string) string {
	return "quiz:results:" + code
}

func (s *ResultsStore) scoresKey(code string) string {
	return "quiz:results:" + code + ":scores"
}
