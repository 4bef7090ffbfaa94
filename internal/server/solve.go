package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/igrek51/connect4solver/internal/analytics"
	"github.com/igrek51/connect4solver/internal/game"
	"github.com/igrek51/connect4solver/internal/solver"
	"github.com/igrek51/connect4solver/internal/storage"
)

type solveRequest struct {
	Board       string `json:"board" binding:"required"`
	WinLength   int    `json:"winLength"`
	Perspective string `json:"perspective"`
	Mover       string `json:"mover"`
}

type solveResponse struct {
	ID       string           `json:"id"`
	Outcomes []solver.Outcome `json:"outcomes"`
	Best     int              `json:"best"`
	Board    string           `json:"board"`
	Nodes    uint64           `json:"nodes"`
	Cached   bool             `json:"cached"`
}

// position parses the request. The mover defaults to A and the
// perspective to the mover.
func (r solveRequest) position() (*game.Board, game.Player, game.Player, error) {
	k := r.WinLength
	if k == 0 {
		k = game.DefaultWinLength
	}
	b, err := game.Parse(r.Board, k)
	if err != nil {
		return nil, game.None, game.None, err
	}
	mover := game.PlayerA
	if r.Mover != "" {
		if mover, err = game.ParsePlayer(r.Mover); err != nil {
			return nil, game.None, game.None, fmt.Errorf("mover: %w", err)
		}
	}
	perspective := mover
	if r.Perspective != "" {
		if perspective, err = game.ParsePlayer(r.Perspective); err != nil {
			return nil, game.None, game.None, fmt.Errorf("perspective: %w", err)
		}
	}
	return b, perspective, mover, nil
}

func (s *Server) handleSolve(c *gin.Context) {
	var req solveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	b, perspective, mover, err := req.position()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if s.solveMaxEmpties > 0 && b.Empties() > s.solveMaxEmpties {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error": fmt.Sprintf("board has %d empty cells, at most %d are solved", b.Empties(), s.solveMaxEmpties),
		})
		return
	}

	ctx := c.Request.Context()
	id := uuid.NewString()
	logger := log.With().Str("solve", id).Logger()
	start := time.Now()

	sol, cached := s.lookupSolution(ctx, b, perspective, mover)
	if !cached {
		outcomes, stats, err := s.solve(ctx, b, perspective, mover, logger)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				status = http.StatusServiceUnavailable
			}
			logger.Err(err).Msg("solve-failed")
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
		sol = storage.NewSolution(b, perspective, mover, outcomes, stats.Nodes)
		s.saveSolution(ctx, sol)
	}

	resp := solveResponse{
		ID:       id,
		Outcomes: sol.Outcomes,
		Best:     solver.BestColumn(sol.Outcomes),
		Board:    b.Render(),
		Nodes:    sol.Nodes,
		Cached:   cached,
	}
	logger.Info().
		Str("perspective", perspective.String()).
		Str("mover", mover.String()).
		Int("best", resp.Best).
		Uint64("nodes", resp.Nodes).
		Bool("cached", cached).
		Dur("elapsed", time.Since(start)).
		Msg("position-solved")

	s.analytics.PositionSolved(ctx, analytics.SolvePayload{
		ID:          id,
		Layout:      sol.Layout,
		Perspective: perspective.String(),
		Mover:       mover.String(),
		Outcomes:    lo.Map(sol.Outcomes, func(o solver.Outcome, _ int) string { return o.String() }),
		Best:        resp.Best,
		Nodes:       sol.Nodes,
		Cached:      cached,
		Elapsed:     time.Since(start),
	})
	c.JSON(http.StatusOK, resp)
}

// solve waits for a free solve slot, so the caches of concurrent requests
// stay within the configured total.
func (s *Server) solve(ctx context.Context, b *game.Board, perspective, mover game.Player, logger zerolog.Logger) ([]solver.Outcome, solver.Stats, error) {
	if err := s.solveSlots.Acquire(ctx, 1); err != nil {
		return nil, solver.Stats{}, err
	}
	defer s.solveSlots.Release(1)
	return solver.ParallelBestResultForEachMove(ctx, b, perspective, mover,
		s.solverWorkers, solver.WithMaxCacheEntries(s.cacheMaxEntries), solver.WithLogger(logger))
}

// lookupSolution tries the result cache, then the store. A store hit is
// copied into the result cache.
func (s *Server) lookupSolution(ctx context.Context, b *game.Board, perspective, mover game.Player) (storage.Solution, bool) {
	sol, ok, err := s.resultCache.Get(ctx, b, perspective, mover)
	if err != nil {
		log.Err(err).Msg("result-cache-get-failed")
	}
	if ok {
		return sol, true
	}
	if s.store == nil {
		return storage.Solution{}, false
	}
	sol, err = s.store.LoadSolution(ctx, b, perspective, mover)
	switch {
	case err == nil:
		if err := s.resultCache.Set(ctx, sol); err != nil {
			log.Err(err).Msg("result-cache-set-failed")
		}
		return sol, true
	case errors.Is(err, storage.ErrNotFound):
	case errors.Is(err, storage.ErrLayoutMismatch):
		log.Warn().Err(err).Msg("stored-solution-mismatch")
	default:
		log.Err(err).Msg("load-solution-failed")
	}
	return storage.Solution{}, false
}

func (s *Server) saveSolution(ctx context.Context, sol storage.Solution) {
	if s.store != nil {
		if err := s.store.SaveSolution(ctx, sol); err != nil {
			log.Err(err).Str("key", sol.Key).Msg("save-solution-failed")
		}
	}
	if err := s.resultCache.Set(ctx, sol); err != nil {
		log.Err(err).Str("key", sol.Key).Msg("result-cache-set-failed")
	}
}
