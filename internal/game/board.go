package game

import (
	"errors"
	"fmt"
	"strings"
)

const (
	Columns          = 7
	Rows             = 6
	DefaultWinLength = 4
)

// MaxDimension bounds width and height so Key can encode them in a byte.
const MaxDimension = 64

var (
	ErrColumnFull        = errors.New("column is full")
	ErrInvalidCol        = errors.New("invalid column")
	ErrInvalidPlayer     = errors.New("invalid player")
	ErrInvalidDimensions = errors.New("invalid board dimensions")
	ErrMalformedLayout   = errors.New("malformed board layout")
)

// Board is a grid of columns, each filled bottom-up.
type Board struct {
	width     int
	height    int
	winLength int
	columns   [][]Player

	// shared between clones, never written after construction
	lines []line
}

func NewBoard(width, height, winLength int) (*Board, error) {
	if width <= 0 || height <= 0 || width > MaxDimension || height > MaxDimension {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, width, height)
	}
	if winLength <= 0 || winLength > max(width, height) {
		return nil, fmt.Errorf("%w: win length %d does not fit %dx%d",
			ErrInvalidDimensions, winLength, width, height)
	}
	b := &Board{
		width:     width,
		height:    height,
		winLength: winLength,
		columns:   make([][]Player, width),
		lines:     winLines(width, height, winLength),
	}
	for x := range b.columns {
		b.columns[x] = make([]Player, 0, height)
	}
	return b, nil
}

// NewStandardBoard returns an empty 7x6 connect four board.
func NewStandardBoard() *Board {
	b, _ := NewBoard(Columns, Rows, DefaultWinLength)
	return b
}

func (b *Board) Width() int     { return b.width }
func (b *Board) Rows() int      { return b.height }
func (b *Board) WinLength() int { return b.winLength }

// Height returns how many pieces column x holds.
func (b *Board) Height(x int) int {
	if x < 0 || x >= b.width {
		return 0
	}
	return len(b.columns[x])
}

func (b *Board) Get(x, y int) Player {
	if x < 0 || x >= b.width || y < 0 || y >= len(b.columns[x]) {
		return None
	}
	return b.columns[x][y]
}

func (b *Board) CanMove(x int) bool {
	return x >= 0 && x < b.width && len(b.columns[x]) < b.height
}

// Drop places player on top of column x in place.
func (b *Board) Drop(x int, player Player) error {
	if x < 0 || x >= b.width {
		return fmt.Errorf("%w: %d", ErrInvalidCol, x)
	}
	if !player.Valid() {
		return ErrInvalidPlayer
	}
	if len(b.columns[x]) >= b.height {
		return fmt.Errorf("%w: %d", ErrColumnFull, x)
	}
	b.columns[x] = append(b.columns[x], player)
	return nil
}

// Dropped returns a copy of the board with player dropped into column x.
// The receiver is left untouched.
func (b *Board) Dropped(x int, player Player) (*Board, error) {
	child := b.Clone()
	if err := child.Drop(x, player); err != nil {
		return nil, err
	}
	return child, nil
}

func (b *Board) Clone() *Board {
	dest := &Board{
		width:     b.width,
		height:    b.height,
		winLength: b.winLength,
		columns:   make([][]Player, b.width),
		lines:     b.lines,
	}
	for x, col := range b.columns {
		dest.columns[x] = make([]Player, len(col), b.height)
		copy(dest.columns[x], col)
	}
	return dest
}

// Full reports whether no column accepts another piece.
func (b *Board) Full() bool {
	for x := range b.columns {
		if b.CanMove(x) {
			return false
		}
	}
	return true
}

// Empties counts the cells still open.
func (b *Board) Empties() int {
	n := b.width * b.height
	for _, col := range b.columns {
		n -= len(col)
	}
	return n
}

// Key is a collision-free encoding of the board: width, height and win
// length followed by two bits per cell, column by column.
func (b *Board) Key() string {
	cells := b.width * b.height
	buf := make([]byte, 3+(cells+3)/4)
	buf[0] = byte(b.width)
	buf[1] = byte(b.height)
	buf[2] = byte(b.winLength)
	i := 0
	for _, col := range b.columns {
		for y := 0; y < b.height; y++ {
			if y < len(col) {
				buf[3+i/4] |= byte(col[y]) << (2 * (i % 4))
			}
			i++
		}
	}
	return string(buf)
}

// Parse reads a layout written top row first, one character per cell.
// 'A' and 'B' are pieces, anything else is empty.
func Parse(text string, winLength int) (*Board, error) {
	lines := strings.Split(strings.ReplaceAll(text, "\r", ""), "\n")
	for len(lines) > 0 && strings.TrimSpace(lines[0]) == "" {
		lines = lines[1:]
	}
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: empty layout", ErrMalformedLayout)
	}
	rows := make([][]rune, len(lines))
	for i, line := range lines {
		rows[i] = []rune(line)
		if len(rows[i]) != len(rows[0]) {
			return nil, fmt.Errorf("%w: row %d has %d cells, want %d",
				ErrMalformedLayout, i, len(rows[i]), len(rows[0]))
		}
	}
	b, err := NewBoard(len(rows[0]), len(rows), winLength)
	if err != nil {
		return nil, err
	}
	for x := 0; x < b.width; x++ {
		gap := false
		for y := 0; y < b.height; y++ {
			p := PlayerFromRune(rows[b.height-1-y][x])
			if p == None {
				gap = true
				continue
			}
			if gap {
				return nil, fmt.Errorf("%w: floating piece at column %d row %d",
					ErrMalformedLayout, x, y)
			}
			b.columns[x] = append(b.columns[x], p)
		}
	}
	return b, nil
}

// String is the inverse of Parse.
func (b *Board) String() string {
	var sb strings.Builder
	for y := b.height - 1; y >= 0; y-- {
		for x := 0; x < b.width; x++ {
			sb.WriteRune(b.Get(x, y).Rune())
		}
		if y > 0 {
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

// Render draws the board in a frame with column numbers underneath.
func (b *Board) Render() string {
	var sb strings.Builder
	border := "+" + strings.Repeat("-", 2*b.width+1) + "+\n"
	sb.WriteString(border)
	for y := b.height - 1; y >= 0; y-- {
		sb.WriteString("|")
		for x := 0; x < b.width; x++ {
			sb.WriteByte(' ')
			sb.WriteRune(b.Get(x, y).Rune())
		}
		sb.WriteString(" |\n")
	}
	sb.WriteString(border)
	sb.WriteString("|")
	for x := 0; x < b.width; x++ {
		fmt.Fprintf(&sb, " %d", x%10)
	}
	sb.WriteString(" |\n")
	return sb.String()
}
