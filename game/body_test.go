package game

import "testing"

func TestPoint_Translate(t *testing.T) {
	p := Point{Row: 2, Col: 2}
	cases := map[Direction]Point{
		Up:    {Row: 1, Col: 2},
		Down:  {Row: 3, Col: 2},
		Left:  {Row: 2, Col: 1},
		Right: {Row: 2, Col: 3},
	}
	for d, want := range cases {
		if got := p.Translate(d); !got.Equal(want) {
			t.Fatalf("%v.Translate(%v)=%v want=%v", p, d, got, want)
		}
	}
}

func TestParseDirection(t *testing.T) {
	for _, d := range Directions {
		got, err := ParseDirection(d.String())
		if err != nil || got != d {
			t.Fatalf("parse %q=%v err=%v", d.String(), got, err)
		}
	}
	if _, err := ParseDirection("sideways"); err == nil {
		t.Fatalf("expected error for unknown direction")
	}
}

func TestBody_ProposeNextHeadIsPure(t *testing.T) {
	b := NewBody(0, Point{Row: 2, Col: 2}, Right)
	next := b.ProposeNextHead()
	if next != (Point{Row: 2, Col: 3}) {
		t.Fatalf("next=%v want=(2,3)", next)
	}
	if b.Head() != (Point{Row: 2, Col: 2}) || b.Len() != 1 {
		t.Fatalf("propose mutated body: head=%v len=%d", b.Head(), b.Len())
	}
}

func TestBody_CommitMoveAndRemoveTail(t *testing.T) {
	b := NewBody(0, Point{Row: 0, Col: 0}, Right)
	b.CommitMove(b.ProposeNextHead())
	b.CommitMove(b.ProposeNextHead())

	if b.Len() != 3 {
		t.Fatalf("len=%d want=3", b.Len())
	}
	if b.Head() != (Point{Row: 0, Col: 2}) {
		t.Fatalf("head=%v want=(0,2)", b.Head())
	}
	if tail := b.RemoveTail(); tail != (Point{Row: 0, Col: 0}) {
		t.Fatalf("tail=%v want=(0,0)", tail)
	}
	if b.Tail() != (Point{Row: 0, Col: 1}) {
		t.Fatalf("new tail=%v want=(0,1)", b.Tail())
	}
}

func TestBody_RemoveTailOnSingleSegmentPanics(t *testing.T) {
	b := NewBody(3, Point{Row: 1, Col: 1}, Up)
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic removing the last segment")
		}
	}()
	b.RemoveTail()
}

func TestBody_SetDirectionRejectsReversal(t *testing.T) {
	b := NewBody(0, Point{Row: 2, Col: 2}, Right)

	if b.SetDirection(Left) {
		t.Fatalf("reversal accepted")
	}
	if b.Direction() != Right {
		t.Fatalf("direction=%v want=Right", b.Direction())
	}
	if !b.SetDirection(Up) {
		t.Fatalf("Up rejected")
	}
	if b.Direction() != Up {
		t.Fatalf("direction=%v want=Up", b.Direction())
	}
}

func TestBody_SetDirectionChecksPreviousNotCurrent(t *testing.T) {
	// Heading Right; the player taps Up then Left before the next tick.
	// Left is not the reverse of Up, but it is the reverse of the last move.
	b := NewBody(0, Point{Row: 2, Col: 2}, Right)
	b.SetDirection(Up)
	if b.SetDirection(Left) {
		t.Fatalf("queued reversal accepted")
	}
	if b.Direction() != Up {
		t.Fatalf("direction=%v want=Up", b.Direction())
	}

	b.CommitMove(b.ProposeNextHead())
	if b.PreviousDirection() != Up {
		t.Fatalf("previous=%v want=Up", b.PreviousDirection())
	}
	if !b.SetDirection(Left) {
		t.Fatalf("Left rejected after moving Up")
	}
}

func TestBody_CloneIsDeep(t *testing.T) {
	b := NewBody(0, Point{Row: 1, Col: 1}, Down)
	c := b.Clone()
	b.CommitMove(b.ProposeNextHead())
	if c.Len() != 1 || c.Head() != (Point{Row: 1, Col: 1}) {
		t.Fatalf("clone changed: len=%d head=%v", c.Len(), c.Head())
	}
}

func TestRestoreBody(t *testing.T) {
	segs := []Point{{Row: 0, Col: 0}, {Row: 0, Col: 1}}
	b, err := RestoreBody(0, segs, Down, Right)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	segs[0] = Point{Row: 9, Col: 9}
	if b.Tail() != (Point{Row: 0, Col: 0}) {
		t.Fatalf("restore aliased input slice")
	}
	if b.Direction() != Down || b.PreviousDirection() != Right {
		t.Fatalf("dirs=%v/%v", b.Direction(), b.PreviousDirection())
	}
	if _, err := RestoreBody(0, nil, Up, Up); err == nil {
		t.Fatalf("expected error for empty segments")
	}
}
