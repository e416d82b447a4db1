package memory

import (
	"context"
	"sync"

	"quizroom/internal/domain"
)

// ResultsStore keeps final leaderboards in memory. Used when no durable sink
// is configured; results then live only as long as the process.
type ResultsStore struct {
	mu      sync.RWMutex
	results map[string]domain.Leaderboard
}

func NewResultsStore() *ResultsStore {
	return &ResultsStore{results: make(map[string]domain.Leaderboard)}
}

func (s *ResultsStore) PersistFinalResults(_ context.Context, sessionCode string, leaderboard domain.Leaderboard) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[sessionCode] = leaderboard
	return nil
}

// Get returns the stored final leaderboard for a session, if any.
func (s *ResultsStore) Get(sessionCode string) (domain.Leaderboard, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lb, ok := s.results[sessionCode]
	return lb, ok
}
