package game

// line is a straight run of cells starting at (x, y) and stepping by (dx, dy).
type line struct {
	x, y, dx, dy, length int
}

// Winner reports the owner of the first run of WinLength identical pieces,
// looking at rows, then columns, then "/" and "\" diagonals.
func Winner(b *Board) (Player, bool) {
	for _, l := range b.lines {
		if p, ok := b.scan(l); ok {
			return p, true
		}
	}
	return None, false
}

func (b *Board) scan(l line) (Player, bool) {
	run := 0
	prev := None
	x, y := l.x, l.y
	for i := 0; i < l.length; i++ {
		cell := b.Get(x, y)
		switch {
		case cell == None:
			run = 0
		case cell == prev:
			run++
		default:
			run = 1
		}
		prev = cell
		if run >= b.winLength {
			return cell, true
		}
		x += l.dx
		y += l.dy
	}
	return None, false
}

// winLines lists every line long enough to hold a win, in scan order.
func winLines(w, h, k int) []line {
	var out []line
	if w >= k {
		for y := 0; y < h; y++ {
			out = append(out, line{x: 0, y: y, dx: 1, dy: 0, length: w})
		}
	}
	if h >= k {
		for x := 0; x < w; x++ {
			out = append(out, line{x: x, y: 0, dx: 0, dy: 1, length: h})
		}
	}
	// "/" diagonals start on the left edge or the bottom edge.
	for y := h - 1; y >= 0; y-- {
		if n := min(w, h-y); n >= k {
			out = append(out, line{x: 0, y: y, dx: 1, dy: 1, length: n})
		}
	}
	for x := 1; x < w; x++ {
		if n := min(w-x, h); n >= k {
			out = append(out, line{x: x, y: 0, dx: 1, dy: 1, length: n})
		}
	}
	// "\" diagonals start on the left edge or the top edge.
	for y := 0; y < h; y++ {
		if n := min(w, y+1); n >= k {
			out = append(out, line{x: 0, y: y, dx: 1, dy: -1, length: n})
		}
	}
	for x := 1; x < w; x++ {
		if n := min(w-x, h); n >= k {
			out = append(out, line{x: x, y: h - 1, dx: 1, dy: -1, length: n})
		}
	}
	return out
}
