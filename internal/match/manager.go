package match

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/igrek51/connect4solver/internal/game"
)

const (
	StatusWaiting  = "waiting"
	StatusActive   = "active"
	StatusFinished = "finished"
)

const BotName = "bot"

var (
	ErrInvalidTurn  = errors.New("not your turn")
	ErrGameFinished = errors.New("game already finished")
	ErrUnknownGame  = errors.New("unknown game")
)

type GameState struct {
	ID         string
	Board      *game.Board
	Status     string
	Winner     string
	StartedAt  time.Time
	EndedAt    time.Time
	Turn       game.Player
	LastMoveAt time.Time
	Players    map[string]*Player
	Bot        *Bot
}

type Player struct {
	Username string
	Slot     game.Player
	IsBot    bool
}

type Move struct {
	Username string
	GameID   string
	Column   int
}

// MoveResult is a snapshot of the board after a move.
type MoveResult struct {
	Board  *game.Board
	Column int
	Winner game.Player
	IsDraw bool
}

type Settings struct {
	Width           int
	Height          int
	WinLength       int
	ReconnectWindow time.Duration
	BotSolveBelow   int
}

type Manager struct {
	mu         sync.RWMutex
	settings   Settings
	waiting    *Player
	games      map[string]*GameState
	userToGame map[string]string
	onFinish   func(*GameState)
}

func NewManager(settings Settings, onFinish func(*GameState)) (*Manager, error) {
	if _, err := game.NewBoard(settings.Width, settings.Height, settings.WinLength); err != nil {
		return nil, err
	}
	return &Manager{
		settings:   settings,
		games:      make(map[string]*GameState),
		userToGame: make(map[string]string),
		onFinish:   onFinish,
	}, nil
}

func (m *Manager) newGame(players map[string]*Player) *GameState {
	board, _ := game.NewBoard(m.settings.Width, m.settings.Height, m.settings.WinLength)
	now := time.Now()
	return &GameState{
		ID:         uuid.NewString(),
		Board:      board,
		Status:     StatusActive,
		Turn:       game.PlayerA,
		StartedAt:  now,
		LastMoveAt: now,
		Players:    players,
	}
}

// AssignPlayer rejoins a running game, parks the user as the waiting
// player, or pairs them with the one already waiting.
func (m *Manager) AssignPlayer(username string) (*GameState, *Player, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if g := m.activeGame(username); g != nil {
		return g, g.Players[username], false
	}

	if m.waiting == nil || m.waiting.Username == username {
		m.waiting = &Player{Username: username, Slot: game.PlayerA}
		return nil, m.waiting, true
	}

	opponent := m.waiting
	m.waiting = nil
	g := m.newGame(map[string]*Player{
		opponent.Username: opponent,
		username:          {Username: username, Slot: game.PlayerB},
	})
	m.games[g.ID] = g
	m.userToGame[username] = g.ID
	m.userToGame[opponent.Username] = g.ID
	log.Info().Str("game", g.ID).Str("a", opponent.Username).Str("b", username).Msg("game-started")
	return g, g.Players[username], false
}

// StartBotGame pairs a waiting human with the solver-backed bot.
func (m *Manager) StartBotGame(human string) *GameState {
	m.mu.Lock()
	defer m.mu.Unlock()

	if g := m.activeGame(human); g != nil {
		return g
	}
	if m.waiting != nil && m.waiting.Username == human {
		m.waiting = nil
	}

	g := m.newGame(map[string]*Player{
		human:   {Username: human, Slot: game.PlayerA},
		BotName: {Username: BotName, Slot: game.PlayerB, IsBot: true},
	})
	g.Bot = NewBot(game.PlayerB, m.settings.BotSolveBelow)
	m.games[g.ID] = g
	m.userToGame[human] = g.ID
	log.Info().Str("game", g.ID).Str("a", human).Msg("bot-game-started")
	return g
}

func (m *Manager) HandleMove(move Move) (MoveResult, *GameState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	g, ok := m.games[move.GameID]
	if !ok {
		return MoveResult{}, nil, ErrUnknownGame
	}
	if g.Status == StatusFinished {
		return MoveResult{}, g, ErrGameFinished
	}
	player, ok := g.Players[move.Username]
	if !ok || g.Turn != player.Slot {
		return MoveResult{}, g, ErrInvalidTurn
	}
	if err := g.Board.Drop(move.Column, player.Slot); err != nil {
		return MoveResult{}, g, err
	}
	g.LastMoveAt = time.Now()

	res := MoveResult{Board: g.Board.Clone(), Column: move.Column}
	if winner, won := game.Winner(g.Board); won {
		res.Winner = winner
		m.finish(g, move.Username)
	} else if g.Board.Full() {
		res.IsDraw = true
		m.finish(g, "")
	} else {
		g.Turn = g.Turn.Opposite()
	}
	return res, g, nil
}

// finish marks g as over. The caller holds m.mu.
func (m *Manager) finish(g *GameState, winner string) {
	g.Status = StatusFinished
	g.Winner = winner
	g.EndedAt = time.Now()
	log.Info().Str("game", g.ID).Str("winner", winner).Msg("game-finished")
	if m.onFinish != nil {
		go m.onFinish(g)
	}
}

func (m *Manager) GetGame(gameID string) (*GameState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.games[gameID]
	return g, ok
}

// GameForUser returns the active game id for a username or fallback.
func (m *Manager) GameForUser(username, fallback string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if id, ok := m.userToGame[username]; ok {
		return id
	}
	return fallback
}

// GetGameByUser returns the user's unfinished game.
func (m *Manager) GetGameByUser(username string) (*GameState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g := m.activeGame(username)
	return g, g != nil
}

// activeGame needs m.mu held.
func (m *Manager) activeGame(username string) *GameState {
	if id, ok := m.userToGame[username]; ok {
		if g, exists := m.games[id]; exists && g.Status != StatusFinished {
			return g
		}
	}
	return nil
}

// IsWaiting reports whether username is parked waiting for an opponent.
func (m *Manager) IsWaiting(username string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.waiting != nil && m.waiting.Username == username
}

// Snapshot copies the mutable parts of a game under the manager lock.
func (m *Manager) Snapshot(g *GameState) GameState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap := *g
	snap.Board = g.Board.Clone()
	return snap
}

// Abandon forgets a user who left without an unfinished game, so nobody
// gets paired with them. Users still in a game are left to the reconnect
// window and Abandon reports false.
func (m *Manager) Abandon(username string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.activeGame(username) != nil {
		return false
	}
	delete(m.userToGame, username)
	if m.waiting != nil && m.waiting.Username == username {
		m.waiting = nil
	}
	return true
}

// MarkDisconnected restarts the reconnect window for the user's game.
func (m *Manager) MarkDisconnected(username string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.userToGame[username]; ok {
		if g, exists := m.games[id]; exists {
			g.LastMoveAt = time.Now()
		}
	}
}

// SweepDisconnects forfeits games idle past the reconnect window.
func (m *Manager) SweepDisconnects() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	for id, g := range m.games {
		if g.Status != StatusFinished && now.Sub(g.LastMoveAt) > m.settings.ReconnectWindow {
			m.finish(g, remainingPlayer(g))
			log.Info().Str("game", id).Msg("game-forfeited")
		}
	}
}

// remainingPlayer picks the player not on turn, the one still waiting
// for a move.
func remainingPlayer(g *GameState) string {
	for name, p := range g.Players {
		if p.Slot != g.Turn {
			return name
		}
	}
	return BotName
}
