package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/igrek51/connect4solver/internal/game"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to url, retrying while the database comes up.
func NewPostgresStore(ctx context.Context, url string) (*PostgresStore, error) {
	pool, err := retry.DoWithData(
		func() (*pgxpool.Pool, error) {
			pool, err := pgxpool.New(ctx, url)
			if err != nil {
				return nil, err
			}
			if err := pool.Ping(ctx); err != nil {
				pool.Close()
				return nil, err
			}
			return pool, nil
		},
		retry.Context(ctx),
		retry.Attempts(5),
		retry.Delay(500*time.Millisecond),
		retry.DelayType(func(n uint, err error, config *retry.Config) time.Duration {
			log.Warn().Err(err).Uint("n", n).Msg("postgres-connect-retry")
			return retry.BackOffDelay(n, err, config)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (p *PostgresStore) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

func (p *PostgresStore) EnsureTables(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS games (
	id TEXT PRIMARY KEY,
	winner TEXT,
	status TEXT,
	started_at TIMESTAMP,
	ended_at TIMESTAMP
);
CREATE TABLE IF NOT EXISTS solutions (
	key TEXT PRIMARY KEY,
	layout TEXT NOT NULL,
	win_length INT NOT NULL,
	perspective TEXT NOT NULL,
	mover TEXT NOT NULL,
	outcomes TEXT NOT NULL,
	nodes BIGINT NOT NULL,
	solved_at TIMESTAMP NOT NULL
);
`)
	return err
}

func (p *PostgresStore) SaveGame(ctx context.Context, g CompletedGame) error {
	if p == nil || p.pool == nil {
		return nil
	}
	_, err := p.pool.Exec(ctx, `INSERT INTO games (id, winner, status, started_at, ended_at)
VALUES ($1,$2,$3,$4,$5) ON CONFLICT (id) DO NOTHING`, g.ID, g.Winner, g.Status, g.StartedAt, g.EndedAt)
	if err != nil {
		log.Err(err).Str("game", g.ID).Msg("save-game-failed")
	}
	return err
}

func (p *PostgresStore) GetLeaderboard(ctx context.Context, limit int) ([]LeaderboardRow, error) {
	rows, err := p.pool.Query(ctx, `
SELECT winner, COUNT(*) as wins
FROM games
WHERE winner IS NOT NULL AND winner <> ''
GROUP BY winner
ORDER BY wins DESC
LIMIT $1`, limit)
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

func (p *PostgresStore) SaveSolution(ctx context.Context, sol Solution) error {
	outcomes, err := encodeOutcomes(sol.Outcomes)
	if err != nil {
		return err
	}
	_, err = p.pool.Exec(ctx, `INSERT INTO solutions
(key, layout, win_length, perspective, mover, outcomes, nodes, solved_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) ON CONFLICT (key) DO NOTHING`,
		sol.Key, sol.Layout, sol.WinLength, sol.Perspective.String(), sol.Mover.String(),
		outcomes, int64(sol.Nodes), sol.SolvedAt)
	return err
}

func (p *PostgresStore) LoadSolution(ctx context.Context, b *game.Board, perspective, mover game.Player) (Solution, error) {
	key := SolutionKey(b, perspective, mover)
	var (
		sol                 = Solution{Key: key}
		persp, mv, outcomes string
		nodes               int64
	)
	err := p.pool.QueryRow(ctx, `SELECT layout, win_length, perspective, mover, outcomes, nodes, solved_at
FROM solutions WHERE key = $1`, key).
		Scan(&sol.Layout, &sol.WinLength, &persp, &mv, &outcomes, &nodes, &sol.SolvedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Solution{}, ErrNotFound
	}
	if err != nil {
		return Solution{}, err
	}
	if sol, err = fillSolution(sol, persp, mv, outcomes, nodes); err != nil {
		return Solution{}, err
	}
	return verify(sol, b, perspective, mover)
}

func fillSolution(sol Solution, persp, mover, outcomes string, nodes int64) (Solution, error) {
	var err error
	if sol.Perspective, err = game.ParsePlayer(persp); err != nil {
		return Solution{}, err
	}
	if sol.Mover, err = game.ParsePlayer(mover); err != nil {
		return Solution{}, err
	}
	if sol.Outcomes, err = decodeOutcomes(outcomes); err != nil {
		return Solution{}, err
	}
	sol.Nodes = uint64(nodes)
	return sol, nil
}
