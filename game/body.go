package game

import "fmt"

// Body is one snake: an ordered list of segments stored tail-first, head-last,
// plus the steering state.
//
// previous is the direction of the last committed move. Direction changes are
// checked against it rather than against current, so several key presses
// between two ticks still cannot turn the head back onto its own neck.
type Body struct {
	id       int
	segments []Point
	current  Direction
	previous Direction
}

// NewBody creates a length-1 body at start heading dir.
func NewBody(id int, start Point, dir Direction) *Body {
	return &Body{
		id:       id,
		segments: []Point{start},
		current:  dir,
		previous: dir,
	}
}

// RestoreBody rebuilds a body from saved segments (tail-first).
func RestoreBody(id int, segments []Point, current, previous Direction) (*Body, error) {
	if len(segments) == 0 {
		return nil, fmt.Errorf("body %d: no segments", id)
	}
	if !current.Valid() || !previous.Valid() {
		return nil, fmt.Errorf("body %d: invalid direction %d/%d", id, current, previous)
	}
	segs := make([]Point, len(segments))
	copy(segs, segments)
	return &Body{id: id, segments: segs, current: current, previous: previous}, nil
}

func (b *Body) ID() int                      { return b.id }
func (b *Body) Len() int                     { return len(b.segments) }
func (b *Body) Head() Point                  { return b.segments[len(b.segments)-1] }
func (b *Body) Tail() Point                  { return b.segments[0] }
func (b *Body) Direction() Direction         { return b.current }
func (b *Body) PreviousDirection() Direction { return b.previous }

// Segments returns a copy of the segments, tail first.
func (b *Body) Segments() []Point {
	out := make([]Point, len(b.segments))
	copy(out, b.segments)
	return out
}

// Contains reports whether p is any segment of the body.
func (b *Body) Contains(p Point) bool {
	for _, s := range b.segments {
		if s == p {
			return true
		}
	}
	return false
}

// ProposeNextHead is where the head would go on the next move. No state changes.
func (b *Body) ProposeNextHead() Point {
	return b.Head().Translate(b.current)
}

// CommitMove appends newHead and records the direction that produced it.
// The tail is left alone; shrinking is the caller's decision.
func (b *Body) CommitMove(newHead Point) {
	b.segments = append(b.segments, newHead)
	b.previous = b.current
}

// RemoveTail pops the oldest segment. A body can never become empty, so
// calling this on a length-1 body is a bug in the caller and panics.
func (b *Body) RemoveTail() Point {
	if len(b.segments) <= 1 {
		panic(fmt.Sprintf("game: RemoveTail on body %d with %d segment(s)", b.id, len(b.segments)))
	}
	tail := b.segments[0]
	b.segments[0] = Point{}
	b.segments = b.segments[1:]
	return tail
}

// SetDirection steers the body. A request for the exact reverse of the last
// committed move is ignored. It reports whether the direction was accepted.
func (b *Body) SetDirection(d Direction) bool {
	if !d.Valid() || d == b.previous.Opposite() {
		return false
	}
	b.current = d
	return true
}

// Clone performs a deep copy of the body.
func (b *Body) Clone() *Body {
	if b == nil {
		return nil
	}
	return &Body{
		id:       b.id,
		segments: b.Segments(),
		current:  b.current,
		previous: b.previous,
	}
}
