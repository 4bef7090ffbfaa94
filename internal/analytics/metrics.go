package analytics

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/igrek51/connect4solver/internal/match"
)

// Metrics aggregates the events read back from the topic.
type Metrics struct {
	mu sync.Mutex

	totalGames    int
	winnerCounts  map[string]int
	gameDurations []float64
	gamesPerDay   map[string]int
	gamesPerHour  map[string]int
	userGames     map[string]int
	moves         int

	solves       int
	cachedSolves int
	solveNodes   uint64
	bestOutcomes map[string]int
}

func NewMetrics() *Metrics {
	return &Metrics{
		winnerCounts: make(map[string]int),
		gamesPerDay:  make(map[string]int),
		gamesPerHour: make(map[string]int),
		userGames:    make(map[string]int),
		bestOutcomes: make(map[string]int),
	}
}

func (m *Metrics) Record(e Event) {
	switch e.Event {
	case EventGameFinished:
		m.recordGameFinished(e.Payload, e.Timestamp)
	case EventPositionSolved:
		m.recordPositionSolved(e.Payload)
	case EventMovePlayed:
		m.mu.Lock()
		m.moves++
		m.mu.Unlock()
	}
}

func (m *Metrics) recordGameFinished(payload map[string]any, timestamp time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.totalGames++
	if winner, ok := payload["winner"].(string); ok && winner != "" && winner != match.BotName {
		m.winnerCounts[winner]++
	}
	if duration, ok := payload["duration"].(float64); ok {
		m.gameDurations = append(m.gameDurations, duration)
	}
	m.gamesPerDay[timestamp.Format("2006-01-02")]++
	m.gamesPerHour[timestamp.Format("2006-01-02 15:00")]++

	if players, ok := payload["players"].([]any); ok {
		for _, p := range players {
			if username, ok := p.(string); ok && username != match.BotName {
				m.userGames[username]++
			}
		}
	}
}

// recordPositionSolved counts the outcome of the best column for each
// solve, "none" when no column was open.
func (m *Metrics) recordPositionSolved(payload map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.solves++
	if cached, _ := payload["cached"].(bool); cached {
		m.cachedSolves++
	} else if nodes, ok := payload["nodes"].(float64); ok {
		m.solveNodes += uint64(nodes)
	}
	best := "none"
	if col, ok := payload["best"].(float64); ok && col >= 0 {
		if outcomes, ok := payload["outcomes"].([]any); ok && int(col) < len(outcomes) {
			if o, ok := outcomes[int(col)].(string); ok && o != "" {
				best = o
			}
		}
	}
	m.bestOutcomes[best]++
}

type Summary struct {
	TotalGames      int
	AverageDuration float64
	WinnerCounts    map[string]int
	GamesPerDay     map[string]int
	GamesPerHour    map[string]int
	UserGames       map[string]int
	Moves           int
	Solves          int
	CachedSolves    int
	AverageNodes    float64
	BestOutcomes    map[string]int
}

func (m *Metrics) Summary() Summary {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Summary{
		TotalGames:   m.totalGames,
		WinnerCounts: copyCounts(m.winnerCounts),
		GamesPerDay:  copyCounts(m.gamesPerDay),
		GamesPerHour: copyCounts(m.gamesPerHour),
		UserGames:    copyCounts(m.userGames),
		Moves:        m.moves,
		Solves:       m.solves,
		CachedSolves: m.cachedSolves,
		BestOutcomes: copyCounts(m.bestOutcomes),
	}
	if len(m.gameDurations) > 0 {
		s.AverageDuration = lo.Sum(m.gameDurations) / float64(len(m.gameDurations))
	}
	if computed := m.solves - m.cachedSolves; computed > 0 {
		s.AverageNodes = float64(m.solveNodes) / float64(computed)
	}
	return s
}

func (s Summary) Log(logger zerolog.Logger) {
	logger.Info().
		Int("total-games", s.TotalGames).
		Float64("avg-duration-s", s.AverageDuration).
		Interface("winners", s.WinnerCounts).
		Interface("games-per-day", s.GamesPerDay).
		Interface("games-per-hour", s.GamesPerHour).
		Interface("user-games", s.UserGames).
		Int("moves", s.Moves).
		Msg("game-metrics")
	logger.Info().
		Int("solves", s.Solves).
		Int("cached", s.CachedSolves).
		Float64("avg-nodes", s.AverageNodes).
		Interface("best-outcomes", s.BestOutcomes).
		Msg("solve-metrics")
}

func copyCounts(in map[string]int) map[string]int {
	return lo.Assign(in)
}
