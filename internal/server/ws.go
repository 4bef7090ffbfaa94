package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/igrek51/connect4solver/internal/analytics"
	"github.com/igrek51/connect4solver/internal/game"
	"github.com/igrek51/connect4solver/internal/match"
)

type wsClient struct {
	username string
	conn     *websocket.Conn
	send     chan []byte
	server   *Server
	gameID   string
}

// clientMessage is what the browser sends; only "move" is acted on.
type clientMessage struct {
	Type   string `json:"type"`
	Column *int   `json:"column"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func (s *Server) handleWS(c *gin.Context) {
	username := c.Query("username")
	requestGameID := c.Query("gameId")
	if username == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username required"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Err(err).Str("user", username).Msg("ws-upgrade-failed")
		return
	}
	client := &wsClient{
		username: username,
		conn:     conn,
		send:     make(chan []byte, 8),
		server:   s,
		gameID:   requestGameID,
	}
	s.register(client)

	go client.writePump()
	go client.readPump()
}

func (s *Server) register(c *wsClient) {
	s.connMu.Lock()
	if old, ok := s.connections[c.username]; ok {
		close(old.send)
	}
	s.connections[c.username] = c
	s.connMu.Unlock()
}

func (s *Server) unregister(c *wsClient) {
	s.connMu.Lock()
	if s.connections[c.username] == c {
		delete(s.connections, c.username)
		close(c.send)
	}
	s.connMu.Unlock()
	c.conn.Close()
}

func (s *Server) online(username string) bool {
	s.connMu.RLock()
	defer s.connMu.RUnlock()
	_, ok := s.connections[username]
	return ok
}

// disconnected drops a waiting user right away; a user in a game keeps
// the reconnect window. A client replaced by a newer connection of the
// same user changes nothing.
func (s *Server) disconnected(c *wsClient) {
	s.connMu.RLock()
	current := s.connections[c.username] == c
	s.connMu.RUnlock()
	if !current {
		return
	}
	if s.manager.Abandon(c.username) {
		log.Debug().Str("user", c.username).Msg("waiting-user-left")
		return
	}
	s.manager.MarkDisconnected(c.username)
}

func (c *wsClient) writePump() {
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			log.Debug().Err(err).Str("user", c.username).Msg("ws-write-failed")
		}
	}
}

func (c *wsClient) readPump() {
	defer c.server.unregister(c)
	s := c.server

	if !s.rejoin(c) {
		s.join(c)
	}

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			s.disconnected(c)
			return
		}
		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil || msg.Type != "move" || msg.Column == nil {
			continue
		}
		move := match.Move{
			Username: c.username,
			GameID:   s.manager.GameForUser(c.username, c.gameID),
			Column:   *msg.Column,
		}
		res, g, err := s.manager.HandleMove(move)
		if err != nil {
			s.sendToUser(c.username, map[string]any{"type": "error", "message": err.Error()})
			continue
		}
		s.broadcastState(g, res)
		s.maybePlayBot(g)
	}
}

// rejoin reattaches c to the game named in the request, if c plays in it.
func (s *Server) rejoin(c *wsClient) bool {
	if c.gameID == "" {
		return false
	}
	g, ok := s.manager.GetGame(c.gameID)
	if !ok {
		return false
	}
	if _, exists := g.Players[c.username]; !exists {
		return false
	}
	s.pushInit(g, c.username)
	s.pushState(g)
	return true
}

func (s *Server) join(c *wsClient) {
	g, _, waiting := s.manager.AssignPlayer(c.username)
	if waiting {
		s.sendToUser(c.username, map[string]any{"type": "waiting", "message": "waiting for opponent"})
		time.AfterFunc(s.botDelay, func() {
			// only if still unpaired and connected
			if !s.manager.IsWaiting(c.username) {
				return
			}
			g := s.manager.StartBotGame(c.username)
			s.pushInit(g, c.username)
			s.maybePlayBot(g)
		})
		return
	}
	s.pushInit(g, c.username)
	for uname, pl := range g.Players {
		if uname == c.username || pl.IsBot {
			continue
		}
		if s.online(uname) {
			s.pushInit(g, uname)
		}
	}
}

func (s *Server) pushInit(g *match.GameState, username string) {
	snap := s.manager.Snapshot(g)
	slot := game.None
	if p, ok := snap.Players[username]; ok {
		slot = p.Slot
	}
	payload := map[string]any{
		"type":      "init",
		"gameId":    snap.ID,
		"board":     snap.Board.String(),
		"width":     snap.Board.Width(),
		"height":    snap.Board.Rows(),
		"winLength": snap.Board.WinLength(),
		"turn":      snap.Turn,
		"you":       username,
		"slot":      slot,
		"opponent":  findOpponent(&snap, username),
		"status":    snap.Status,
		"winner":    snap.Winner,
		"timestamp": time.Now().UTC(),
	}
	s.sendToUser(username, payload)
}

func (s *Server) pushState(g *match.GameState) {
	snap := s.manager.Snapshot(g)
	s.broadcastState(g, match.MoveResult{Board: snap.Board, Column: -1})
}

func (s *Server) broadcastState(g *match.GameState, res match.MoveResult) {
	snap := s.manager.Snapshot(g)
	payload := map[string]any{
		"type":   "state",
		"board":  res.Board.String(),
		"column": res.Column,
		"turn":   snap.Turn,
		"status": snap.Status,
		"winner": snap.Winner,
		"draw":   res.IsDraw,
	}
	players := make([]string, 0, len(snap.Players))
	for uname, p := range snap.Players {
		if p.IsBot {
			continue
		}
		players = append(players, uname)
		s.sendToUser(uname, payload)
	}
	if res.Column >= 0 {
		s.analytics.Publish(context.Background(), analytics.EventMovePlayed, map[string]any{
			"gameId":  snap.ID,
			"column":  res.Column,
			"status":  snap.Status,
			"winner":  snap.Winner,
			"players": players,
		})
	}
}

// maybePlayBot plays the bot's reply when it is the bot's turn.
func (s *Server) maybePlayBot(g *match.GameState) {
	snap := s.manager.Snapshot(g)
	if snap.Bot == nil || snap.Status != match.StatusActive || snap.Turn != snap.Bot.Player {
		return
	}
	col := snap.Bot.ChooseMove(snap.Board)
	if col < 0 {
		return
	}
	res, g, err := s.manager.HandleMove(match.Move{Username: match.BotName, GameID: snap.ID, Column: col})
	if err != nil {
		log.Err(err).Str("game", snap.ID).Msg("bot-move-failed")
		return
	}
	s.broadcastState(g, res)
}

func (s *Server) sendToUser(username string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Err(err).Msg("ws-encode-failed")
		return
	}
	s.connMu.RLock()
	defer s.connMu.RUnlock()
	client, ok := s.connections[username]
	if !ok {
		return
	}
	select {
	case client.send <- data:
	default:
	}
}

func findOpponent(g *match.GameState, username string) string {
	for name, p := range g.Players {
		if name != username && !p.IsBot {
			return name
		}
	}
	if g.Bot != nil {
		return match.BotName
	}
	return ""
}
