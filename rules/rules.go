// Package rules implements the per-tick transition for a round of snake.
//
// Advance mutates the board and bodies in place. It never scans a whole body
// to detect collisions: the cell state displaced by the new head is enough.
package rules

import (
	"math/rand"

	"github.com/brensch/gemsnake/game"
)

// DeathCause says why a body stopped.
type DeathCause int

const (
	Alive DeathCause = iota
	CauseWall
	CauseSelf
	CauseCollision
)

func (c DeathCause) String() string {
	switch c {
	case Alive:
		return "alive"
	case CauseWall:
		return "wall"
	case CauseSelf:
		return "self"
	case CauseCollision:
		return "collision"
	}
	return "unknown"
}

// Outcome is what happened to one body during a tick.
type Outcome struct {
	BodyID int
	Head   game.Point
	Ate    bool
	Dead   bool
	Cause  DeathCause
}

// TickResult summarises a call to Advance.
type TickResult struct {
	Outcomes []Outcome
	// GemEaten is set when some body consumed the gem this tick.
	GemEaten bool
	// Gem is the replacement gem position; valid only when GemPlaced.
	Gem       game.Point
	GemPlaced bool
}

// Died reports whether any body died this tick.
func (r TickResult) Died() bool {
	for _, o := range r.Outcomes {
		if o.Dead {
			return true
		}
	}
	return false
}

// Advance moves every body one step, in slice order.
//
// For each body the next head is classified before anything is touched:
// leaving the board is fatal and leaves the body as it was. Reaching the gem
// grows the body; any other move vacates the tail first. The head is then
// recorded on the board and the state it displaced decides self-collision.
//
// When a gem was eaten a replacement is placed with rng once all bodies have
// moved. A nil rng falls back to a seed derived from the board.
func Advance(board *game.Board, bodies []*game.Body, rng *rand.Rand) TickResult {
	res := TickResult{Outcomes: make([]Outcome, 0, len(bodies))}

	for _, body := range bodies {
		next := body.ProposeNextHead()
		out := Outcome{BodyID: body.ID(), Head: body.Head()}

		ahead := board.Classify(next)
		if ahead == game.Unbounded {
			out.Dead = true
			out.Cause = CauseWall
			res.Outcomes = append(res.Outcomes, out)
			continue
		}

		grow := ahead == game.Gem
		if !grow {
			// Vacate the tail before the head lands so following your own
			// tail is legal. The segment itself is dropped after CommitMove
			// so the body is never momentarily empty.
			board.Clear(body.Tail())
		}

		prev := board.PlaceHead(body.ID(), next)
		body.CommitMove(next)
		if !grow {
			body.RemoveTail()
		}

		out.Head = next
		out.Ate = grow
		if grow {
			res.GemEaten = true
		}

		if prev.Occupied() {
			out.Dead = true
			out.Cause = CauseCollision
			if ownsSegment(body, next) {
				out.Cause = CauseSelf
			}
		}
		res.Outcomes = append(res.Outcomes, out)
	}

	if res.GemEaten && board.Count(game.Gem) == 0 {
		if rng == nil {
			rng = rand.New(rand.NewSource(deterministicSeed(board)))
		}
		res.Gem, res.GemPlaced = PlaceGem(board, rng)
	}
	return res
}

// ownsSegment reports whether p is one of body's segments other than its head.
// Only consulted after a fatal move.
func ownsSegment(body *game.Body, p game.Point) bool {
	segs := body.Segments()
	for _, s := range segs[:len(segs)-1] {
		if s == p {
			return true
		}
	}
	return false
}
