package game

import (
	"fmt"
	"strings"
)

// Player is a piece owner. None doubles as an empty cell.
type Player uint8

const (
	None Player = iota
	PlayerA
	PlayerB
)

func (p Player) Valid() bool {
	return p == PlayerA || p == PlayerB
}

// Opposite swaps A and B. None stays None.
func (p Player) Opposite() Player {
	switch p {
	case PlayerA:
		return PlayerB
	case PlayerB:
		return PlayerA
	}
	return None
}

func (p Player) Rune() rune {
	switch p {
	case PlayerA:
		return 'A'
	case PlayerB:
		return 'B'
	}
	return '.'
}

func (p Player) String() string {
	if !p.Valid() {
		return ""
	}
	return string(p.Rune())
}

func PlayerFromRune(r rune) Player {
	switch r {
	case 'A':
		return PlayerA
	case 'B':
		return PlayerB
	}
	return None
}

// ParsePlayer accepts "A" or "B", case-insensitive.
func ParsePlayer(s string) (Player, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "A":
		return PlayerA, nil
	case "B":
		return PlayerB, nil
	}
	return None, fmt.Errorf("%w: %q", ErrInvalidPlayer, s)
}

func (p Player) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Player) UnmarshalText(text []byte) error {
	parsed, err := ParsePlayer(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
