package solver

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/matryer/is"
	"github.com/rs/zerolog"

	"github.com/igrek51/connect4solver/internal/game"
)

func TestMain(m *testing.M) {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	os.Exit(m.Run())
}

func mustParse(t *testing.T, layout string, k int) *game.Board {
	t.Helper()
	b, err := game.Parse(layout, k)
	if err != nil {
		t.Fatalf("parse %q: %v", layout, err)
	}
	return b
}

func emptyBoard(t *testing.T, w, h, k int) *game.Board {
	t.Helper()
	b, err := game.NewBoard(w, h, k)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestStackedColumns(t *testing.T) {
	is := is.New(t)
	// Columns 0 and 2 hold three A, columns 1 and 3 three B.
	b := mustParse(t, "....\nABAB\nABAB\nABAB", 4)

	res, err := BestResultForEachMove(b, game.PlayerA, game.PlayerA)
	is.NoErr(err)
	is.Equal(res, []Outcome{Win, Lose, Win, Lose})
}

func TestTicTacToeShapeTies(t *testing.T) {
	is := is.New(t)
	res, err := BestResultForEachMove(emptyBoard(t, 3, 3, 3), game.PlayerA, game.PlayerA)
	is.NoErr(err)
	is.Equal(res, []Outcome{Tie, Tie, Tie})
}

func TestTwoInARow(t *testing.T) {
	is := is.New(t)
	b := emptyBoard(t, 3, 3, 2)

	res, err := BestResultForEachMove(b, game.PlayerA, game.PlayerA)
	is.NoErr(err)
	is.Equal(res, []Outcome{Win, Win, Win})

	res, err = BestResultForEachMove(b, game.PlayerA, game.PlayerB)
	is.NoErr(err)
	is.Equal(res, []Outcome{Lose, Lose, Lose})
}

func TestFourByFour(t *testing.T) {
	is := is.New(t)
	b := emptyBoard(t, 4, 4, 4)
	res, err := BestResultForEachMove(b, game.PlayerA, game.PlayerA)
	is.NoErr(err)
	is.Equal(res, []Outcome{Tie, Tie, Tie, Tie})

	b = emptyBoard(t, 4, 4, 3)
	res, err = BestResultForEachMove(b, game.PlayerA, game.PlayerA)
	is.NoErr(err)
	is.Equal(res, []Outcome{Win, Win, Win, Win})
}

func TestFullColumnHasNoOutcome(t *testing.T) {
	is := is.New(t)
	b := mustParse(t, "A..\nB..\nA..", 3)
	is.True(!b.CanMove(0))

	res, err := BestResultForEachMove(b, game.PlayerB, game.PlayerB)
	is.NoErr(err)
	is.Equal(len(res), 3)
	is.Equal(res[0], NoOutcome)
	is.True(res[1].Valid())
	is.True(res[2].Valid())
}

func TestFullBoardWithoutWinnerIsTie(t *testing.T) {
	is := is.New(t)
	b := mustParse(t, "ABA\nABA\nBAB", 3)
	_, won := game.Winner(b)
	is.True(!won)

	s, err := New(game.PlayerA)
	is.NoErr(err)
	o, err := s.Solve(b, game.PlayerB)
	is.NoErr(err)
	is.Equal(o, Tie)

	res, err := s.BestResultForEachMove(b, game.PlayerA)
	is.NoErr(err)
	is.Equal(res, []Outcome{NoOutcome, NoOutcome, NoOutcome})
}

func TestDecidedBoardIsNotExpanded(t *testing.T) {
	is := is.New(t)
	b := mustParse(t, "...\nB..\nAAA", 3)

	for _, tc := range []struct {
		perspective game.Player
		want        Outcome
	}{
		{game.PlayerA, Win},
		{game.PlayerB, Lose},
	} {
		s, err := New(tc.perspective)
		is.NoErr(err)
		o, err := s.Solve(b, game.PlayerB)
		is.NoErr(err)
		is.Equal(o, tc.want)
		is.Equal(s.Stats().Nodes, uint64(1))
		is.Equal(s.Cache().Len(), 0)
	}
}

func TestIdempotent(t *testing.T) {
	is := is.New(t)
	b := mustParse(t, "....\n....\n.B..\nAA.B", 4)
	first, err := BestResultForEachMove(b, game.PlayerA, game.PlayerA)
	is.NoErr(err)
	second, err := BestResultForEachMove(b, game.PlayerA, game.PlayerA)
	is.NoErr(err)
	is.Equal(first, second)
}

func TestPerspectivesNeverBothWin(t *testing.T) {
	is := is.New(t)
	boards := []*game.Board{
		emptyBoard(t, 3, 3, 3),
		emptyBoard(t, 3, 3, 2),
		emptyBoard(t, 4, 3, 3),
		mustParse(t, "....\nABAB\nABAB\nABAB", 4),
		mustParse(t, "....\n....\n.B..\nAA.B", 4),
	}
	for _, b := range boards {
		for _, mover := range []game.Player{game.PlayerA, game.PlayerB} {
			forA, err := BestResultForEachMove(b, game.PlayerA, mover)
			is.NoErr(err)
			forB, err := BestResultForEachMove(b, game.PlayerB, mover)
			is.NoErr(err)
			for x := range forA {
				is.True(!(forA[x] == Win && forB[x] == Win))
				is.Equal(forA[x], forB[x].Flip())
			}
		}
	}
}

func TestWarmCacheGivesSameResults(t *testing.T) {
	is := is.New(t)
	b := emptyBoard(t, 4, 3, 3)

	cold, err := New(game.PlayerB)
	is.NoErr(err)
	want, err := cold.BestResultForEachMove(b, game.PlayerA)
	is.NoErr(err)
	coldNodes := cold.Stats().Nodes

	warm, err := New(game.PlayerB, WithCache(cold.Cache()))
	is.NoErr(err)
	got, err := warm.BestResultForEachMove(b, game.PlayerA)
	is.NoErr(err)
	is.Equal(got, want)
	is.True(warm.Stats().Nodes < coldNodes)
	is.True(warm.Stats().Cache.Hits > 0)
}

func TestBoundedCacheGivesSameResults(t *testing.T) {
	is := is.New(t)
	b := mustParse(t, "....\n....\n.B..\nAA.B", 4)

	want, err := BestResultForEachMove(b, game.PlayerA, game.PlayerA)
	is.NoErr(err)

	s, err := New(game.PlayerA, WithMaxCacheEntries(16))
	is.NoErr(err)
	got, err := s.BestResultForEachMove(b, game.PlayerA)
	is.NoErr(err)
	is.Equal(got, want)
	is.Equal(s.Cache().Len(), 16)
	is.True(s.Stats().Cache.Skipped > 0)
}

func TestCacheForOtherPerspectiveIsRejected(t *testing.T) {
	is := is.New(t)
	_, err := New(game.PlayerA, WithCache(NewCache(game.PlayerB, 0)))
	is.True(err != nil)
	is.True(errors.Is(err, ErrPerspectiveMismatch))

	_, err = New(game.None)
	is.Equal(err, ErrInvalidPerspective)
}

func TestInvalidMover(t *testing.T) {
	is := is.New(t)
	_, err := BestResultForEachMove(emptyBoard(t, 3, 3, 3), game.PlayerA, game.None)
	is.True(errors.Is(err, game.ErrInvalidPlayer))
}

func TestSearchLeavesBoardUntouched(t *testing.T) {
	is := is.New(t)
	b := mustParse(t, "....\n....\n.B..\nAA.B", 4)
	before := b.Key()
	_, err := BestResultForEachMove(b, game.PlayerA, game.PlayerA)
	is.NoErr(err)
	is.Equal(b.Key(), before)
}

func TestImmediateWinShortCircuits(t *testing.T) {
	is := is.New(t)
	// A completes column 0 at once; searching from A's
	// perspective stops at the first winning column.
	b := mustParse(t, "....\nA...\nA..B\nA.BB", 4)
	s, err := New(game.PlayerA)
	is.NoErr(err)
	o, err := s.Solve(b, game.PlayerA)
	is.NoErr(err)
	is.Equal(o, Win)
	// the root plus the winning child
	is.Equal(s.Stats().Nodes, uint64(2))
}

func TestOpponentImmediateWinShortCircuits(t *testing.T) {
	is := is.New(t)
	// B to move completes column 0; from A's perspective the first
	// losing reply ends the search.
	b := mustParse(t, "....\nB...\nB..A\nBAAA", 4)
	_, won := game.Winner(b)
	is.True(!won)

	s, err := New(game.PlayerA)
	is.NoErr(err)
	o, err := s.Solve(b, game.PlayerB)
	is.NoErr(err)
	is.Equal(o, Lose)
	is.Equal(s.Stats().Nodes, uint64(2))
}

func TestParallelMatchesSequential(t *testing.T) {
	is := is.New(t)
	boards := []*game.Board{
		emptyBoard(t, 3, 3, 3),
		emptyBoard(t, 4, 3, 3),
		mustParse(t, "....\nABAB\nABAB\nABAB", 4),
		mustParse(t, "A..\nB..\nA..", 3),
	}
	for _, b := range boards {
		want, err := BestResultForEachMove(b, game.PlayerA, game.PlayerB)
		is.NoErr(err)
		got, stats, err := ParallelBestResultForEachMove(context.Background(), b, game.PlayerA, game.PlayerB, 2)
		is.NoErr(err)
		is.Equal(got, want)
		is.True(stats.Nodes > 0)
	}
}

func TestParallelHonoursCancelledContext(t *testing.T) {
	is := is.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := ParallelBestResultForEachMove(ctx, emptyBoard(t, 3, 3, 3), game.PlayerA, game.PlayerA, 0)
	is.True(errors.Is(err, context.Canceled))
}

func TestParallelSplitsCacheBudget(t *testing.T) {
	is := is.New(t)
	b := mustParse(t, "....\n....\n.B..\nAA.B", 4)
	want, err := BestResultForEachMove(b, game.PlayerA, game.PlayerA)
	is.NoErr(err)

	for _, bound := range []int{16, 6, 2} {
		got, stats, err := ParallelBestResultForEachMove(context.Background(), b,
			game.PlayerA, game.PlayerA, 0, WithMaxCacheEntries(bound))
		is.NoErr(err)
		is.Equal(got, want)
		is.True(stats.CacheSize <= max(bound, b.Width()))
		if bound >= b.Width() {
			is.True(stats.CacheSize <= bound)
		}
	}
}

func TestShardBudgets(t *testing.T) {
	is := is.New(t)
	is.Equal(shardBudgets(0, 3), []int{0, 0, 0})
	is.Equal(shardBudgets(16, 4), []int{4, 4, 4, 4})
	is.Equal(shardBudgets(10, 4), []int{3, 3, 2, 2})
	// every shard keeps one entry so none becomes unbounded
	is.Equal(shardBudgets(2, 4), []int{1, 1, 1, 1})
	is.Equal(shardBudgets(5, 0), []int{})
}
