package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"quizroom/internal/domain"

	"github.com/jackc/pgx/v4/pgxpool"
)

// ResultsWriter persists final leaderboards to the session_results table.
type ResultsWriter struct {
	pool *pgxpool.Pool
}

func NewResultsWriter(pool *pgxpool.Pool) *ResultsWriter {
	return &ResultsWriter{pool: pool}
}

func (w *ResultsWriter) PersistFinalResults(ctx context.Context, sessionCode string, leaderboard domain.Leaderboard) error {
	raw, err := json.Marshal(leaderboard)
	if err != nil {
		return fmt.Errorf("marshal leaderboard: %w", err)
	}
	_, err = w.pool.Exec(ctx,
		`INSERT INTO session_results (session_code, leaderboard, ended_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (session_code) DO UPDATE SET leaderboard = EXCLUDED.leaderboard, ended_at = EXCLUDED.ended_at`,
		sessionCode, raw, leaderboard.UpdatedAt)
	if err != nil {
		return fmt.Errorf("persist results for %s: %w", sessionCode, err)
	}
	return nil
}
