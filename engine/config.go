package engine

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

var ErrInvalidConfig = errors.New("invalid engine config")

// Speeds are the selectable speeds in moves per second.
var Speeds = []int{5, 10, 20, 30, 40, 50}

// DefaultSpeed is the speed selected when none is given.
const DefaultSpeed = 10

// Config holds round settings. SquareSize is carried for renderers and is
// not used by the engine.
type Config struct {
	SquareSize   int
	BoardWidth   int
	BoardHeight  int
	TickInterval time.Duration
	// Seed fixes gem placement; 0 picks a time-based seed.
	Seed int64
}

// DefaultConfig returns a 20x20 board at the default speed.
func DefaultConfig() Config {
	interval, _ := SpeedInterval(DefaultSpeed)
	return Config{
		SquareSize:   20,
		BoardWidth:   20,
		BoardHeight:  20,
		TickInterval: interval,
	}
}

func (c Config) Validate() error {
	if c.BoardWidth <= 0 || c.BoardHeight <= 0 {
		return fmt.Errorf("%w: board %dx%d", ErrInvalidConfig, c.BoardWidth, c.BoardHeight)
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("%w: tick interval %s", ErrInvalidConfig, c.TickInterval)
	}
	return nil
}

// SpeedInterval converts a speed in moves per second to a tick interval.
// Only the values in Speeds are accepted.
func SpeedInterval(movesPerSecond int) (time.Duration, error) {
	if !slices.Contains(Speeds, movesPerSecond) {
		return 0, fmt.Errorf("%w: speed %d not in %v", ErrInvalidConfig, movesPerSecond, Speeds)
	}
	return time.Second / time.Duration(movesPerSecond), nil
}
