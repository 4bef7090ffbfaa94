package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/igrek51/connect4solver/internal/game"
	"github.com/igrek51/connect4solver/internal/solver"
)

var (
	ErrNotFound       = errors.New("solution not found")
	ErrLayoutMismatch = errors.New("stored layout does not match")
)

type CompletedGame struct {
	ID        string
	Winner    string
	Status    string
	StartedAt time.Time
	EndedAt   time.Time
}

type LeaderboardRow struct {
	Username string `json:"username"`
	Wins     int    `json:"wins"`
}

// Solution is a solved top-level position. Layout is kept next to the
// digest so a lookup can tell a digest collision from a hit.
type Solution struct {
	Key         string           `json:"key"`
	Layout      string           `json:"layout"`
	WinLength   int              `json:"winLength"`
	Perspective game.Player      `json:"perspective"`
	Mover       game.Player      `json:"mover"`
	Outcomes    []solver.Outcome `json:"outcomes"`
	Nodes       uint64           `json:"nodes"`
	SolvedAt    time.Time        `json:"solvedAt"`
}

type Store interface {
	SaveGame(ctx context.Context, game CompletedGame) error
	GetLeaderboard(ctx context.Context, limit int) ([]LeaderboardRow, error)
	SaveSolution(ctx context.Context, sol Solution) error
	// LoadSolution returns ErrNotFound when nothing matching the
	// position is stored.
	LoadSolution(ctx context.Context, b *game.Board, perspective, mover game.Player) (Solution, error)
}

// SolutionKey is a short stable digest of a position and the question
// asked about it.
func SolutionKey(b *game.Board, perspective, mover game.Player) string {
	d := xxhash.New()
	_, _ = d.WriteString(b.Key())
	_, _ = d.Write([]byte{byte(perspective), byte(mover)})
	return strconv.FormatUint(d.Sum64(), 16)
}

// NewSolution describes the answer for b ready to be saved.
func NewSolution(b *game.Board, perspective, mover game.Player, outcomes []solver.Outcome, nodes uint64) Solution {
	return Solution{
		Key:         SolutionKey(b, perspective, mover),
		Layout:      b.String(),
		WinLength:   b.WinLength(),
		Perspective: perspective,
		Mover:       mover,
		Outcomes:    outcomes,
		Nodes:       nodes,
		SolvedAt:    time.Now().UTC(),
	}
}

// Matches reports whether sol answers exactly the question asked for b.
func (sol Solution) Matches(b *game.Board, perspective, mover game.Player) bool {
	return sol.Layout == b.String() &&
		sol.WinLength == b.WinLength() &&
		sol.Perspective == perspective &&
		sol.Mover == mover &&
		len(sol.Outcomes) == b.Width()
}

func encodeOutcomes(outcomes []solver.Outcome) (string, error) {
	data, err := json.Marshal(outcomes)
	if err != nil {
		return "", fmt.Errorf("encoding outcomes: %w", err)
	}
	return string(data), nil
}

func decodeOutcomes(raw string) ([]solver.Outcome, error) {
	var outcomes []solver.Outcome
	if err := json.Unmarshal([]byte(raw), &outcomes); err != nil {
		return nil, fmt.Errorf("decoding outcomes: %w", err)
	}
	return outcomes, nil
}

// verify checks a row read back for key against the requested position.
func verify(sol Solution, b *game.Board, perspective, mover game.Player) (Solution, error) {
	if !sol.Matches(b, perspective, mover) {
		return Solution{}, fmt.Errorf("%w: key %s", ErrLayoutMismatch, sol.Key)
	}
	return sol, nil
}
