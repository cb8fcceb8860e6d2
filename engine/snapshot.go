package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/brensch/gemsnake/game"
)

var ErrInvalidSnapshot = errors.New("invalid snapshot")

// BodySnapshot is one body's saved state. Segments are tail first.
type BodySnapshot struct {
	ID        int            `json:"id"`
	Segments  []game.Point   `json:"segments"`
	Direction game.Direction `json:"direction"`
	Previous  game.Direction `json:"previous"`
}

// Snapshot is a deep copy of everything needed to resume a round.
// It is captured and restored as one unit.
type Snapshot struct {
	Width        int            `json:"width"`
	Height       int            `json:"height"`
	Bodies       []BodySnapshot `json:"bodies"`
	Gem          game.Point     `json:"gem"`
	HasGem       bool           `json:"has_gem"`
	Score        int            `json:"score"`
	TickInterval time.Duration  `json:"tick_interval"`
	Ticks        int            `json:"ticks"`
}

// Clone performs a deep copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	out := s
	if len(s.Bodies) > 0 {
		out.Bodies = make([]BodySnapshot, len(s.Bodies))
		for i, b := range s.Bodies {
			out.Bodies[i] = b
			out.Bodies[i].Segments = make([]game.Point, len(b.Segments))
			copy(out.Bodies[i].Segments, b.Segments)
		}
	}
	return out
}

// Validate checks that the snapshot describes a playable round: every segment
// on the board and unique, the gem on a free cell, and for a single body a
// length of score+1.
func (s Snapshot) Validate() error {
	if s.Width <= 0 || s.Height <= 0 {
		return fmt.Errorf("%w: board %dx%d", ErrInvalidSnapshot, s.Width, s.Height)
	}
	if s.TickInterval <= 0 {
		return fmt.Errorf("%w: tick interval %s", ErrInvalidSnapshot, s.TickInterval)
	}
	if len(s.Bodies) == 0 {
		return fmt.Errorf("%w: no bodies", ErrInvalidSnapshot)
	}
	if s.Score < 0 {
		return fmt.Errorf("%w: negative score %d", ErrInvalidSnapshot, s.Score)
	}

	inBounds := func(p game.Point) bool {
		return p.Row >= 0 && p.Row < s.Height && p.Col >= 0 && p.Col < s.Width
	}
	seen := make(map[game.Point]struct{})
	for _, b := range s.Bodies {
		if len(b.Segments) == 0 {
			return fmt.Errorf("%w: body %d has no segments", ErrInvalidSnapshot, b.ID)
		}
		if !b.Direction.Valid() || !b.Previous.Valid() {
			return fmt.Errorf("%w: body %d has invalid direction", ErrInvalidSnapshot, b.ID)
		}
		for _, p := range b.Segments {
			if !inBounds(p) {
				return fmt.Errorf("%w: body %d segment %v off board", ErrInvalidSnapshot, b.ID, p)
			}
			if _, dup := seen[p]; dup {
				return fmt.Errorf("%w: segment %v occupied twice", ErrInvalidSnapshot, p)
			}
			seen[p] = struct{}{}
		}
	}
	if len(s.Bodies) == 1 && len(s.Bodies[0].Segments) != s.Score+1 {
		return fmt.Errorf("%w: length %d does not match score %d", ErrInvalidSnapshot, len(s.Bodies[0].Segments), s.Score)
	}
	if s.HasGem {
		if !inBounds(s.Gem) {
			return fmt.Errorf("%w: gem %v off board", ErrInvalidSnapshot, s.Gem)
		}
		if _, onBody := seen[s.Gem]; onBody {
			return fmt.Errorf("%w: gem %v on a body", ErrInvalidSnapshot, s.Gem)
		}
	}
	return nil
}

// Board rebuilds the board described by the snapshot: every segment as Body,
// each body's last segment as its Head, then the gem.
func (s Snapshot) Board() *game.Board {
	board := game.NewBoard(s.Width, s.Height)
	for _, b := range s.Bodies {
		last := len(b.Segments) - 1
		for _, p := range b.Segments[:last] {
			board.Place(game.Segment, p)
		}
		board.PlaceHead(b.ID, b.Segments[last])
	}
	if s.HasGem {
		board.PlaceGemAt(s.Gem)
	}
	return board
}
