package rules

import "github.com/brensch/gemsnake/game"

// SafeDirections returns the headings that would not end the round on the
// next tick: in bounds, not a reversal, and not onto a live segment. The
// body's own tail counts as free because it vacates on a non-growing move.
func SafeDirections(board *game.Board, body *game.Body) []game.Direction {
	if board == nil || body == nil || body.Len() == 0 {
		return []game.Direction{}
	}

	head := body.Head()
	tail := body.Tail()
	moves := make([]game.Direction, 0, 4)

	for _, d := range game.Directions {
		if d == body.PreviousDirection().Opposite() {
			continue
		}
		p := head.Translate(d)
		switch board.Classify(p) {
		case game.Unbounded:
			continue
		case game.Head, game.Segment:
			if body.Len() < 2 || p != tail {
				continue
			}
		}
		moves = append(moves, d)
	}
	return moves
}

// Autopilot picks the safe heading that brings the head closest to target.
// Ties keep the current heading when possible, then fall back to numeric
// order. With no safe move it keeps the current heading.
func Autopilot(board *game.Board, body *game.Body, target game.Point) game.Direction {
	safe := SafeDirections(board, body)
	if len(safe) == 0 {
		return body.Direction()
	}

	head := body.Head()
	best := safe[0]
	bestDist := manhattan(head.Translate(best), target)
	for _, d := range safe[1:] {
		dist := manhattan(head.Translate(d), target)
		if dist < bestDist || (dist == bestDist && d == body.Direction()) {
			best = d
			bestDist = dist
		}
	}
	return best
}

func manhattan(a, b game.Point) int {
	return abs(a.Row-b.Row) + abs(a.Col-b.Col)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
