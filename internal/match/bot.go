package match

import (
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/igrek51/connect4solver/internal/game"
	"github.com/igrek51/connect4solver/internal/solver"
)

// Bot takes a win, then blocks, then plays perfectly once few enough
// cells are left for an exhaustive search, and otherwise favors center
// columns.
type Bot struct {
	Player     game.Player
	SolveBelow int
}

func NewBot(player game.Player, solveBelow int) *Bot {
	return &Bot{Player: player, SolveBelow: solveBelow}
}

// ChooseMove returns the column to play, or -1 if the board is full.
func (b *Bot) ChooseMove(board *game.Board) int {
	if move, ok := findImmediate(board, b.Player); ok {
		return move
	}
	if move, ok := findImmediate(board, b.Player.Opposite()); ok {
		return move
	}
	if board.Empties() <= b.SolveBelow {
		if move, ok := b.solve(board); ok {
			return move
		}
	}
	for _, col := range preferredColumns(board.Width()) {
		if board.CanMove(col) {
			return col
		}
	}
	return -1
}

// solve picks the column with the best proven outcome, center first
// among equals.
func (b *Bot) solve(board *game.Board) (int, bool) {
	s, err := solver.New(b.Player)
	if err != nil {
		return -1, false
	}
	outcomes, err := s.BestResultForEachMove(board, b.Player)
	if err != nil {
		log.Warn().Err(err).Msg("bot-solve-failed")
		return -1, false
	}
	open := lo.Filter(preferredColumns(board.Width()), func(col int, _ int) bool {
		return outcomes[col].Valid()
	})
	if len(open) == 0 {
		return -1, false
	}
	best := lo.MaxBy(open, func(a, c int) bool {
		return outcomes[a] > outcomes[c]
	})
	log.Debug().Int("column", best).
		Str("outcome", outcomes[best].String()).
		Uint64("nodes", s.Stats().Nodes).
		Msg("bot-solved")
	return best, true
}

func findImmediate(board *game.Board, player game.Player) (int, bool) {
	for col := 0; col < board.Width(); col++ {
		next, err := board.Dropped(col, player)
		if err != nil {
			continue
		}
		if winner, ok := game.Winner(next); ok && winner == player {
			return col, true
		}
	}
	return -1, false
}

// preferredColumns orders columns from the center outwards, left first.
func preferredColumns(width int) []int {
	mid := (width - 1) / 2
	cols := []int{mid}
	for d := 1; len(cols) < width; d++ {
		if mid-d >= 0 {
			cols = append(cols, mid-d)
		}
		if mid+d < width {
			cols = append(cols, mid+d)
		}
	}
	return cols
}
