package engine

import (
	"fmt"

	"github.com/brensch/gemsnake/game"
)

// Status is the lifecycle state of a round.
type Status int

const (
	Idle Status = iota
	Running
	Paused
	GameOver
)

var statusNames = [...]string{"idle", "running", "paused", "game_over"}

func (s Status) String() string {
	if s < Idle || s > GameOver {
		return fmt.Sprintf("Status(%d)", int(s))
	}
	return statusNames[s]
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	for i, name := range statusNames {
		if name == string(b) {
			*s = Status(i)
			return nil
		}
	}
	return fmt.Errorf("unknown status %q", string(b))
}

// Event names the transition that produced a Frame.
type Event string

const (
	EventStart    Event = "start"
	EventTick     Event = "tick"
	EventPause    Event = "pause"
	EventResume   Event = "resume"
	EventLoad     Event = "load"
	EventGameOver Event = "game_over"
)

// Frame is what observers see after every state change.
//
// Changes lists the cells written by this transition. When Reset is set the
// board was rebuilt and every cell not listed is Empty.
type Frame struct {
	Event      Event             `json:"event"`
	Round      int               `json:"round"`
	Tick       int               `json:"tick"`
	Status     Status            `json:"status"`
	Score      int               `json:"score"`
	FinalScore *int              `json:"final_score,omitempty"`
	Cause      string            `json:"cause,omitempty"`
	Width      int               `json:"width"`
	Height     int               `json:"height"`
	Gem        *game.Point       `json:"gem,omitempty"`
	Direction  game.Direction    `json:"direction"`
	Body       []game.Point      `json:"body"`
	Reset      bool              `json:"reset,omitempty"`
	Changes    []game.CellChange `json:"changes"`
}

// Observer receives frames. It is called on the engine's goroutine and must
// not call back into the engine.
type Observer interface {
	OnFrame(Frame)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Frame)

func (f ObserverFunc) OnFrame(fr Frame) { f(fr) }
