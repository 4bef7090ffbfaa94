// Command solve prints the perfect-play outcome of every move for a
// board read from a file or stdin.
//
//	echo -e "....\nABAB\nABAB\nABAB" | solve --player A
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/igrek51/connect4solver/internal/config"
	"github.com/igrek51/connect4solver/internal/game"
	"github.com/igrek51/connect4solver/internal/solver"
)

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

type options struct {
	file      string
	winLength int
	player    game.Player
	mover     game.Player
	workers   int
	memory    float64
	debug     bool
}

func parseOptions(args []string) (options, error) {
	fs := pflag.NewFlagSet("solve", pflag.ContinueOnError)
	fs.StringP("file", "f", "", "board file, stdin when empty")
	fs.IntP("win-length", "k", game.DefaultWinLength, "pieces in a row needed to win")
	fs.StringP("player", "p", "A", "perspective player the outcomes are for")
	fs.StringP("mover", "m", "", "player to move, defaults to --player")
	fs.IntP("workers", "w", 0, "solve columns in parallel with this many workers; 0 solves sequentially")
	fs.Float64("cache-memory-fraction", 0, "bound the transposition cache to this fraction of system memory")
	fs.Bool("debug", false, "log search statistics")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	v := viper.New()
	v.SetEnvPrefix("C4")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return options{}, err
	}

	opts := options{
		file:      v.GetString("file"),
		winLength: v.GetInt("win-length"),
		workers:   v.GetInt("workers"),
		memory:    v.GetFloat64("cache-memory-fraction"),
		debug:     v.GetBool("debug"),
	}
	var err error
	if opts.player, err = game.ParsePlayer(v.GetString("player")); err != nil {
		return options{}, fmt.Errorf("--player: %w", err)
	}
	opts.mover = opts.player
	if m := v.GetString("mover"); m != "" {
		if opts.mover, err = game.ParsePlayer(m); err != nil {
			return options{}, fmt.Errorf("--mover: %w", err)
		}
	}
	return opts, nil
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	opts, err := parseOptions(args)
	if err != nil {
		return err
	}
	config.SetupLogging(opts.debug)

	var in io.Reader = stdin
	if opts.file != "" {
		f, err := os.Open(opts.file)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}
	text, err := io.ReadAll(in)
	if err != nil {
		return err
	}
	b, err := game.Parse(string(text), opts.winLength)
	if err != nil {
		return err
	}

	maxEntries := solver.MaxEntriesForMemory(opts.memory)
	var (
		outcomes []solver.Outcome
		stats    solver.Stats
	)
	if opts.workers > 0 {
		outcomes, stats, err = solver.ParallelBestResultForEachMove(ctx, b, opts.player, opts.mover,
			opts.workers, solver.WithMaxCacheEntries(maxEntries))
	} else {
		var s *solver.Solver
		if s, err = solver.New(opts.player, solver.WithMaxCacheEntries(maxEntries)); err != nil {
			return err
		}
		outcomes, err = s.BestResultForEachMove(b, opts.mover)
		stats = s.Stats()
	}
	if err != nil {
		return err
	}
	log.Debug().
		Uint64("nodes", stats.Nodes).
		Int("cache-size", stats.CacheSize).
		Uint64("cache-hits", stats.Cache.Hits).
		Dur("elapsed", stats.Elapsed).
		Msg("search-stats")

	fmt.Fprint(stdout, b.Render())
	fmt.Fprintf(stdout, "%s to move, outcomes for %s:\n", opts.mover, opts.player)
	for x, o := range outcomes {
		label := o.String()
		if !o.Valid() {
			label = "full"
		}
		fmt.Fprintf(stdout, "  %d: %s\n", x, label)
	}
	if best := solver.BestColumn(outcomes); best >= 0 {
		fmt.Fprintf(stdout, "best: %d\n", best)
	}
	return nil
}
