// Package game defines the board, body and coordinate types for a round of snake.
//
// These types hold the minimal state needed by the tick rules. The Board is the
// authoritative record of what occupies every cell; Bodies track segment order
// and steering. Both are cheap to clone so a round can be snapshotted whole.
package game

import (
	"fmt"
	"strings"
)

// Point is a board coordinate.
// (0,0) is the top-left cell; rows grow downward, columns grow rightward.
type Point struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

func (p Point) Translate(d Direction) Point {
	delta := d.Delta()
	return Point{Row: p.Row + delta.Row, Col: p.Col + delta.Col}
}

func (p Point) Equal(other Point) bool {
	return p == other
}

func (p Point) String() string {
	return fmt.Sprintf("(%d,%d)", p.Row, p.Col)
}

// Direction is a heading. Values match the move numbering used across the
// codebase: 0=Up, 1=Down, 2=Left, 3=Right.
type Direction int

const (
	Up Direction = iota
	Down
	Left
	Right
)

var directionNames = [...]string{"Up", "Down", "Left", "Right"}

// Directions lists every heading in numeric order.
var Directions = []Direction{Up, Down, Left, Right}

func (d Direction) Valid() bool {
	return d >= Up && d <= Right
}

// Delta is the unit step applied by Translate.
func (d Direction) Delta() Point {
	switch d {
	case Up:
		return Point{Row: -1}
	case Down:
		return Point{Row: 1}
	case Left:
		return Point{Col: -1}
	case Right:
		return Point{Col: 1}
	}
	return Point{}
}

func (d Direction) Opposite() Direction {
	switch d {
	case Up:
		return Down
	case Down:
		return Up
	case Left:
		return Right
	case Right:
		return Left
	}
	return d
}

func (d Direction) String() string {
	if !d.Valid() {
		return fmt.Sprintf("Direction(%d)", int(d))
	}
	return directionNames[d]
}

func (d Direction) MarshalText() ([]byte, error) {
	if !d.Valid() {
		return nil, fmt.Errorf("invalid direction %d", int(d))
	}
	return []byte(d.String()), nil
}

func (d *Direction) UnmarshalText(b []byte) error {
	v, err := ParseDirection(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// ParseDirection accepts names case-insensitively ("up", "Left", ...).
func ParseDirection(s string) (Direction, error) {
	for i, name := range directionNames {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return Direction(i), nil
		}
	}
	return 0, fmt.Errorf("unknown direction %q", s)
}
