package solver

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/igrek51/connect4solver/internal/game"
)

// ParallelBestResultForEachMove solves every open column in its own
// goroutine, each with a fresh Solver and cache. workers <= 0 means one
// goroutine per column. A WithMaxCacheEntries bound is the total over
// all shards. The context is only checked before a column starts; a
// running column search is not interrupted.
func ParallelBestResultForEachMove(ctx context.Context, b *game.Board, perspective, mover game.Player,
	workers int, opts ...Option) ([]Outcome, Stats, error) {

	if !perspective.Valid() {
		return nil, Stats{}, ErrInvalidPerspective
	}
	if !mover.Valid() {
		return nil, Stats{}, fmt.Errorf("%w: mover %d", game.ErrInvalidPlayer, mover)
	}

	start := time.Now()
	out := make([]Outcome, b.Width())
	shardStats := make([]Stats, b.Width())

	var base Solver
	for _, opt := range opts {
		opt(&base)
	}
	open := 0
	for x := 0; x < b.Width(); x++ {
		if b.CanMove(x) {
			open++
		}
	}
	budgets := shardBudgets(base.maxEntries, open)

	g, ctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	shard := 0
	for x := 0; x < b.Width(); x++ {
		if !b.CanMove(x) {
			continue
		}
		// shards never share a cache and split the entry budget
		shardOpts := append(append([]Option{}, opts...),
			WithCache(nil), WithMaxCacheEntries(budgets[shard]))
		shard++
		x := x
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			s, err := New(perspective, shardOpts...)
			if err != nil {
				return err
			}
			began := time.Now()
			out[x] = s.move(b, x, mover)
			s.elapsed = time.Since(began)
			shardStats[x] = s.Stats()
			log.Debug().Int("column", x).
				Str("outcome", out[x].String()).
				Uint64("nodes", s.nodes).
				Dur("elapsed", s.elapsed).
				Msg("shard-solved")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, Stats{}, err
	}

	var total Stats
	for _, st := range shardStats {
		total = total.add(st)
	}
	total.Elapsed = time.Since(start)
	return out, total, nil
}

// shardBudgets splits total cache entries over n shards. Every shard
// keeps at least one entry; 0 stays unbounded.
func shardBudgets(total, n int) []int {
	out := make([]int, n)
	if total <= 0 {
		return out
	}
	for i := range out {
		out[i] = total / n
		if i < total%n {
			out[i]++
		}
		out[i] = max(out[i], 1)
	}
	return out
}
