package game

import (
	"fmt"
	"strings"
)

// Cell is the state of one board position.
type Cell int

const (
	Empty Cell = iota
	Head
	Segment
	Gem
	// Unbounded is returned for coordinates outside the board. It is never stored.
	Unbounded
)

func (c Cell) String() string {
	switch c {
	case Empty:
		return "Empty"
	case Head:
		return "Head"
	case Segment:
		return "Segment"
	case Gem:
		return "Gem"
	case Unbounded:
		return "Unbounded"
	}
	return fmt.Sprintf("Cell(%d)", int(c))
}

func (c Cell) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Cell) UnmarshalText(b []byte) error {
	for v := Empty; v <= Unbounded; v++ {
		if v.String() == string(b) {
			*c = v
			return nil
		}
	}
	return fmt.Errorf("unknown cell %q", string(b))
}

// Rune is the single-character form used by text dumps.
func (c Cell) Rune() rune {
	switch c {
	case Head:
		return 'H'
	case Segment:
		return 'o'
	case Gem:
		return '*'
	case Unbounded:
		return '#'
	}
	return '.'
}

// Occupied reports whether the cell holds a live segment.
func (c Cell) Occupied() bool {
	return c == Head || c == Segment
}

// PrimaryBody is the owner id Place uses when recording a Head.
const PrimaryBody = 0

// CellChange is a cell written since the last call to Board.Changes.
type CellChange struct {
	Point Point `json:"point"`
	Cell  Cell  `json:"cell"`
}

// Board is a width x height grid of cells.
//
// The board remembers where each body's head is so that recording a new Head
// demotes the previous one to Segment. Callers never have to fix up the old head.
type Board struct {
	width  int
	height int
	cells  []Cell
	heads  map[int]Point

	dirty     []bool
	dirtyList []int
}

func NewBoard(width, height int) *Board {
	if width <= 0 || height <= 0 {
		panic(fmt.Sprintf("game: invalid board size %dx%d", width, height))
	}
	n := width * height
	return &Board{
		width:  width,
		height: height,
		cells:  make([]Cell, n),
		heads:  make(map[int]Point, 1),
		dirty:  make([]bool, n),
	}
}

func (b *Board) Width() int  { return b.width }
func (b *Board) Height() int { return b.height }

func (b *Board) InBounds(p Point) bool {
	return p.Row >= 0 && p.Row < b.height && p.Col >= 0 && p.Col < b.width
}

func (b *Board) index(p Point) int {
	return p.Row*b.width + p.Col
}

// Classify returns the stored state at p, or Unbounded when p is off the board.
func (b *Board) Classify(p Point) Cell {
	if !b.InBounds(p) {
		return Unbounded
	}
	return b.cells[b.index(p)]
}

// Place records c at p and returns what was there before.
// Placing a Head is equivalent to PlaceHead(PrimaryBody, p).
// Out-of-bounds placements, and placing Unbounded or an unknown cell, do
// nothing and return Unbounded.
func (b *Board) Place(c Cell, p Point) Cell {
	if c < Empty || c >= Unbounded {
		return Unbounded
	}
	if c == Head {
		return b.PlaceHead(PrimaryBody, p)
	}
	if !b.InBounds(p) {
		return Unbounded
	}
	return b.set(p, c)
}

// PlaceHead records the head of body owner at p, demoting that owner's previous
// head (if any, and if still a Head) to Segment first.
func (b *Board) PlaceHead(owner int, p Point) Cell {
	if !b.InBounds(p) {
		return Unbounded
	}
	if old, ok := b.heads[owner]; ok && old != p && b.cells[b.index(old)] == Head {
		b.set(old, Segment)
	}
	prev := b.set(p, Head)
	b.heads[owner] = p
	return prev
}

// Clear empties p. Clearing a tracked head forgets it.
func (b *Board) Clear(p Point) {
	if !b.InBounds(p) {
		return
	}
	b.set(p, Empty)
	for owner, h := range b.heads {
		if h == p {
			delete(b.heads, owner)
		}
	}
}

// PlaceGemAt puts a gem on p only if p is Empty.
func (b *Board) PlaceGemAt(p Point) bool {
	if b.Classify(p) != Empty {
		return false
	}
	b.set(p, Gem)
	return true
}

// HeadOf returns the tracked head position for owner.
func (b *Board) HeadOf(owner int) (Point, bool) {
	p, ok := b.heads[owner]
	return p, ok
}

// Head returns the primary body's head.
func (b *Board) Head() (Point, bool) {
	return b.HeadOf(PrimaryBody)
}

func (b *Board) Count(c Cell) int {
	n := 0
	for _, v := range b.cells {
		if v == c {
			n++
		}
	}
	return n
}

// EmptyCells lists every Empty position in row-major order.
func (b *Board) EmptyCells() []Point {
	out := make([]Point, 0, len(b.cells))
	for i, v := range b.cells {
		if v == Empty {
			out = append(out, Point{Row: i / b.width, Col: i % b.width})
		}
	}
	return out
}

// Changes returns the current state of every cell written since the previous
// call, in first-write order, and resets the change set.
func (b *Board) Changes() []CellChange {
	if len(b.dirtyList) == 0 {
		return nil
	}
	out := make([]CellChange, 0, len(b.dirtyList))
	for _, i := range b.dirtyList {
		out = append(out, CellChange{
			Point: Point{Row: i / b.width, Col: i % b.width},
			Cell:  b.cells[i],
		})
		b.dirty[i] = false
	}
	b.dirtyList = b.dirtyList[:0]
	return out
}

// Cells returns a row-major copy of the grid.
func (b *Board) Cells() [][]Cell {
	out := make([][]Cell, b.height)
	for r := range out {
		out[r] = make([]Cell, b.width)
		copy(out[r], b.cells[r*b.width:(r+1)*b.width])
	}
	return out
}

// Clone performs a deep copy of the board. Pending changes are not carried over.
func (b *Board) Clone() *Board {
	if b == nil {
		return nil
	}
	out := NewBoard(b.width, b.height)
	copy(out.cells, b.cells)
	for owner, p := range b.heads {
		out.heads[owner] = p
	}
	return out
}

func (b *Board) String() string {
	var sb strings.Builder
	sb.Grow((b.width + 1) * b.height)
	for r := 0; r < b.height; r++ {
		for c := 0; c < b.width; c++ {
			sb.WriteRune(b.cells[r*b.width+c].Rune())
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

func (b *Board) set(p Point, c Cell) Cell {
	i := b.index(p)
	prev := b.cells[i]
	b.cells[i] = c
	if !b.dirty[i] {
		b.dirty[i] = true
		b.dirtyList = append(b.dirtyList, i)
	}
	return prev
}
