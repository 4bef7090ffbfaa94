package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/igrek51/connect4solver/internal/game"
)

// SQLiteStore keeps games and solutions in a local file when no
// Postgres is configured.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite %s: %w", path, err)
	}
	// sqlite allows one writer at a time
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("opening sqlite %s: %w", path, err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) EnsureTables(ctx context.Context) error {
	for _, stmt := range []string{
		`CREATE TABLE IF NOT EXISTS games (
	id TEXT PRIMARY KEY,
	winner TEXT,
	status TEXT,
	started_at TIMESTAMP,
	ended_at TIMESTAMP
)`,
		`CREATE TABLE IF NOT EXISTS solutions (
	key TEXT PRIMARY KEY,
	layout TEXT NOT NULL,
	win_length INTEGER NOT NULL,
	perspective TEXT NOT NULL,
	mover TEXT NOT NULL,
	outcomes TEXT NOT NULL,
	nodes INTEGER NOT NULL,
	solved_at TIMESTAMP NOT NULL
)`,
	} {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) SaveGame(ctx context.Context, g CompletedGame) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO games (id, winner, status, started_at, ended_at)
VALUES (?,?,?,?,?)`, g.ID, g.Winner, g.Status, g.StartedAt.UTC(), g.EndedAt.UTC())
	if err != nil {
		log.Err(err).Str("game", g.ID).Msg("save-game-failed")
	}
	return err
}

func (s *SQLiteStore) GetLeaderboard(ctx context.Context, limit int) ([]LeaderboardRow, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT winner, COUNT(*) AS wins
FROM games
WHERE winner IS NOT NULL AND winner <> ''
GROUP BY winner
ORDER BY wins DESC, winner
LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []LeaderboardRow
	for rows.Next() {
		var row LeaderboardRow
		if err := rows.Scan(&row.Username, &row.Wins); err != nil {
			return nil, err
		}
		res = append(res, row)
	}
	return res, rows.Err()
}

func (s *SQLiteStore) SaveSolution(ctx context.Context, sol Solution) error {
	outcomes, err := encodeOutcomes(sol.Outcomes)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT OR IGNORE INTO solutions
(key, layout, win_length, perspective, mover, outcomes, nodes, solved_at)
VALUES (?,?,?,?,?,?,?,?)`,
		sol.Key, sol.Layout, sol.WinLength, sol.Perspective.String(), sol.Mover.String(),
		outcomes, int64(sol.Nodes), sol.SolvedAt.UTC())
	return err
}

func (s *SQLiteStore) LoadSolution(ctx context.Context, b *game.Board, perspective, mover game.Player) (Solution, error) {
	key := SolutionKey(b, perspective, mover)
	var (
		sol                 = Solution{Key: key}
		persp, mv, outcomes string
		nodes               int64
		solvedAt            time.Time
	)
	err := s.db.QueryRowContext(ctx, `SELECT layout, win_length, perspective, mover, outcomes, nodes, solved_at
FROM solutions WHERE key = ?`, key).
		Scan(&sol.Layout, &sol.WinLength, &persp, &mv, &outcomes, &nodes, &solvedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Solution{}, ErrNotFound
	}
	if err != nil {
		return Solution{}, err
	}
	sol.SolvedAt = solvedAt
	if sol, err = fillSolution(sol, persp, mv, outcomes, nodes); err != nil {
		return Solution{}, err
	}
	return verify(sol, b, perspective, mover)
}
