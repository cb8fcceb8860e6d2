package rules

import (
	"encoding/binary"
	"hash/fnv"
	"math/rand"

	"github.com/brensch/gemsnake/game"
)

// MaxGemSamples bounds the random re-sampling in PlaceGem before it falls back
// to choosing from the list of free cells.
const MaxGemSamples = 64

// PlaceGem puts a gem on a uniformly random empty cell.
//
// It draws a random row and column until the cell is Empty. Occupancy is
// normally a small fraction of the board so this rarely loops; on crowded
// boards it gives up after MaxGemSamples draws and picks from the free-cell
// list instead. It returns false only when no cell is empty.
func PlaceGem(board *game.Board, rng *rand.Rand) (game.Point, bool) {
	if board == nil {
		return game.Point{}, false
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(deterministicSeed(board)))
	}

	for i := 0; i < MaxGemSamples; i++ {
		p := game.Point{Row: rng.Intn(board.Height()), Col: rng.Intn(board.Width())}
		if board.PlaceGemAt(p) {
			return p, true
		}
	}

	available := board.EmptyCells()
	if len(available) == 0 {
		return game.Point{}, false
	}
	p := available[rng.Intn(len(available))]
	board.PlaceGemAt(p)
	return p, true
}

// deterministicSeed mixes board size, head positions and occupancy into a seed
// so that callers without an rng still get reproducible placement.
func deterministicSeed(board *game.Board) int64 {
	h := fnv.New64a()
	var buf [8]byte

	binary.LittleEndian.PutUint64(buf[:], uint64(uint32(board.Width()))|(uint64(uint32(board.Height()))<<32))
	_, _ = h.Write(buf[:])
	binary.LittleEndian.PutUint64(buf[:], uint64(board.Count(game.Segment)))
	_, _ = h.Write(buf[:])

	if head, ok := board.Head(); ok {
		binary.LittleEndian.PutUint64(buf[:], (uint64(uint32(head.Row))<<32)|uint64(uint32(head.Col)))
		_, _ = h.Write(buf[:])
	}

	seed := int64(h.Sum64())
	if seed == 0 {
		seed = 1
	}
	return seed
}
