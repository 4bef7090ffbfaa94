package server

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/igrek51/connect4solver/internal/analytics"
	"github.com/igrek51/connect4solver/internal/match"
	"github.com/igrek51/connect4solver/internal/resultcache"
	"github.com/igrek51/connect4solver/internal/storage"
)

const leaderboardSize = 10

type Server struct {
	router       *gin.Engine
	manager      *match.Manager
	store        storage.Store
	analytics    *analytics.Producer
	resultCache  *resultcache.Redis
	inMemoryWins map[string]int
	winMu        sync.Mutex
	connections  map[string]*wsClient
	connMu       sync.RWMutex
	botDelay     time.Duration

	solverWorkers   int
	cacheMaxEntries int
	solveMaxEmpties int
	solveSlots      *semaphore.Weighted
}

type Config struct {
	Match            match.Settings
	BotFallbackAfter time.Duration
	// Store, Analytics and ResultCache are optional.
	Store       storage.Store
	Analytics   *analytics.Producer
	ResultCache *resultcache.Redis

	SolverWorkers int
	// CacheMaxEntries bounds the cache entries of all running solves
	// together. Each of the SolveConcurrency slots gets an equal share.
	CacheMaxEntries  int
	SolveConcurrency int
	// SolveMaxEmpties rejects /solve boards with more empty cells; 0
	// accepts any board.
	SolveMaxEmpties int
}

func New(cfg Config) (*Server, error) {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	slots := max(cfg.SolveConcurrency, 1)
	router.Use(gin.Recovery(), requestLogger())
	s := &Server{
		router:          router,
		store:           cfg.Store,
		analytics:       cfg.Analytics,
		resultCache:     cfg.ResultCache,
		inMemoryWins:    make(map[string]int),
		connections:     make(map[string]*wsClient),
		botDelay:        cfg.BotFallbackAfter,
		solverWorkers:   cfg.SolverWorkers,
		cacheMaxEntries: slotBudget(cfg.CacheMaxEntries, slots),
		solveMaxEmpties: cfg.SolveMaxEmpties,
		solveSlots:      semaphore.NewWeighted(int64(slots)),
	}
	manager, err := match.NewManager(cfg.Match, s.onFinish)
	if err != nil {
		return nil, err
	}
	s.manager = manager

	router.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	router.GET("/leaderboard", s.handleLeaderboard)
	router.POST("/solve", s.handleSolve)
	router.GET("/ws", s.handleWS)
	return s, nil
}

// slotBudget is one solve slot's share of total cache entries; 0 stays
// unbounded.
func slotBudget(total, slots int) int {
	if total <= 0 {
		return 0
	}
	return max(total/slots, 1)
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.router}
	go s.sweeper(ctx)

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("server-listening")
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) sweeper(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.manager.SweepDisconnects()
		}
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	}
}

func (s *Server) handleLeaderboard(c *gin.Context) {
	ctx := c.Request.Context()
	if s.store != nil {
		rows, err := s.store.GetLeaderboard(ctx, leaderboardSize)
		if err == nil {
			if rows == nil {
				rows = []storage.LeaderboardRow{}
			}
			c.JSON(http.StatusOK, rows)
			return
		}
		log.Err(err).Msg("leaderboard-db-error")
	}
	c.JSON(http.StatusOK, s.memoryLeaderboard())
}

func (s *Server) memoryLeaderboard() []storage.LeaderboardRow {
	s.winMu.Lock()
	res := make([]storage.LeaderboardRow, 0, len(s.inMemoryWins))
	for k, v := range s.inMemoryWins {
		res = append(res, storage.LeaderboardRow{Username: k, Wins: v})
	}
	s.winMu.Unlock()
	sort.Slice(res, func(i, j int) bool {
		if res[i].Wins != res[j].Wins {
			return res[i].Wins > res[j].Wins
		}
		return res[i].Username < res[j].Username
	})
	if len(res) > leaderboardSize {
		res = res[:leaderboardSize]
	}
	return res
}

func (s *Server) onFinish(g *match.GameState) {
	if g.Winner != "" && g.Winner != match.BotName {
		s.winMu.Lock()
		s.inMemoryWins[g.Winner]++
		s.winMu.Unlock()
	}
	ctx := context.Background()
	if s.store != nil {
		_ = s.store.SaveGame(ctx, storage.CompletedGame{
			ID:        g.ID,
			Winner:    g.Winner,
			Status:    g.Status,
			StartedAt: g.StartedAt,
			EndedAt:   g.EndedAt,
		})
	}
	players := make([]string, 0, len(g.Players))
	for uname := range g.Players {
		players = append(players, uname)
	}
	sort.Strings(players)
	s.analytics.Publish(ctx, analytics.EventGameFinished, map[string]any{
		"gameId":    g.ID,
		"winner":    g.Winner,
		"status":    g.Status,
		"players":   players,
		"duration":  g.EndedAt.Sub(g.StartedAt).Seconds(),
		"startedAt": g.StartedAt,
		"endedAt":   g.EndedAt,
	})
}
