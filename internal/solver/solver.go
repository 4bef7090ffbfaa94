package solver

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/igrek51/connect4solver/internal/game"
)

var (
	ErrInvalidPerspective  = errors.New("perspective must be player A or B")
	ErrPerspectiveMismatch = errors.New("cache belongs to the other perspective")
)

// Stats are per-run diagnostics. They never influence results.
type Stats struct {
	Nodes     uint64        `json:"nodes"`
	Cache     CacheStats    `json:"cache"`
	CacheSize int           `json:"cacheSize"`
	Elapsed   time.Duration `json:"elapsed"`
}

func (s Stats) add(o Stats) Stats {
	s.Nodes += o.Nodes
	s.Cache.Hits += o.Cache.Hits
	s.Cache.Misses += o.Cache.Misses
	s.Cache.Stores += o.Cache.Stores
	s.Cache.Skipped += o.Cache.Skipped
	s.CacheSize += o.CacheSize
	return s
}

// Solver runs an exhaustive depth-first search of a connect game with a
// transposition cache. Every outcome is relative to the perspective
// player fixed at construction. A Solver must not be used from more than
// one goroutine.
type Solver struct {
	perspective game.Player
	cache       *Cache
	maxEntries  int
	logger      zerolog.Logger

	nodes   uint64
	elapsed time.Duration
}

type Option func(*Solver)

// WithCache reuses a cache, e.g. one warmed by an earlier run for the same
// perspective.
func WithCache(c *Cache) Option {
	return func(s *Solver) { s.cache = c }
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Solver) { s.logger = l }
}

// WithMaxCacheEntries bounds the cache the Solver creates for itself.
func WithMaxCacheEntries(n int) Option {
	return func(s *Solver) { s.maxEntries = n }
}

func New(perspective game.Player, opts ...Option) (*Solver, error) {
	if !perspective.Valid() {
		return nil, ErrInvalidPerspective
	}
	s := &Solver{
		perspective: perspective,
		logger:      log.Logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cache == nil {
		s.cache = NewCache(perspective, s.maxEntries)
	}
	if s.cache.Perspective() != perspective {
		return nil, fmt.Errorf("%w: cache is for %s, solver for %s",
			ErrPerspectiveMismatch, s.cache.Perspective(), perspective)
	}
	return s, nil
}

func (s *Solver) Perspective() game.Player { return s.perspective }

func (s *Solver) Cache() *Cache { return s.cache }

func (s *Solver) Stats() Stats {
	return Stats{
		Nodes:     s.nodes,
		Cache:     s.cache.Stats(),
		CacheSize: s.cache.Len(),
		Elapsed:   s.elapsed,
	}
}

// Solve returns the outcome of the position with mover to play.
func (s *Solver) Solve(b *game.Board, mover game.Player) (Outcome, error) {
	if !mover.Valid() {
		return NoOutcome, fmt.Errorf("%w: mover %d", game.ErrInvalidPlayer, mover)
	}
	start := time.Now()
	o := s.search(b, mover)
	s.elapsed += time.Since(start)
	return o, nil
}

// BestResultForEachMove returns, for every column, the outcome of mover
// dropping a piece there. Full columns get NoOutcome.
func (s *Solver) BestResultForEachMove(b *game.Board, mover game.Player) ([]Outcome, error) {
	if !mover.Valid() {
		return nil, fmt.Errorf("%w: mover %d", game.ErrInvalidPlayer, mover)
	}
	start := time.Now()
	out := make([]Outcome, b.Width())
	for x := range out {
		if b.CanMove(x) {
			out[x] = s.move(b, x, mover)
		}
	}
	s.elapsed += time.Since(start)
	s.logger.Debug().
		Str("perspective", s.perspective.String()).
		Str("mover", mover.String()).
		Uint64("nodes", s.nodes).
		Int("cache-size", s.cache.Len()).
		Dur("elapsed", s.elapsed).
		Msg("solved-position")
	return out, nil
}

// BestResultForEachMove runs a fresh Solver over b.
func BestResultForEachMove(b *game.Board, perspective, mover game.Player) ([]Outcome, error) {
	s, err := New(perspective)
	if err != nil {
		return nil, err
	}
	return s.BestResultForEachMove(b, mover)
}

func (s *Solver) search(b *game.Board, mover game.Player) Outcome {
	s.nodes++
	if winner, ok := game.Winner(b); ok {
		if winner == s.perspective {
			return Win
		}
		return Lose
	}

	mine := mover == s.perspective
	best := NoOutcome
	for x := 0; x < b.Width(); x++ {
		if !b.CanMove(x) {
			continue
		}
		o := s.move(b, x, mover)
		if mine {
			if o == Win {
				return Win
			}
			best = Better(best, o)
		} else {
			if o == Lose {
				return Lose
			}
			best = Worse(best, o)
		}
	}
	if best == NoOutcome {
		// no open column and no winner
		return Tie
	}
	return best
}

// move evaluates mover dropping into column x of b.
func (s *Solver) move(b *game.Board, x int, mover game.Player) Outcome {
	child, err := b.Dropped(x, mover)
	if err != nil {
		return NoOutcome
	}
	next := mover.Opposite()
	key := positionKey(child, next)
	if o, ok := s.cache.Lookup(key); ok {
		return o
	}
	o := s.search(child, next)
	s.cache.Store(key, o)
	return o
}
