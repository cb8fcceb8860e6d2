// Package engine runs rounds of snake: it owns the board and body, applies the
// tick rules, tracks score and status, and keeps a single save slot.
//
// The engine never sleeps or starts timers. Every transition that wants a
// tick returns a Schedule; the host arranges for Tick to be called with that
// token after the delay. Tokens are single use and only the most recent one is
// honoured, so ticks left over from a paused, finished or replaced round are
// ignored.
package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/brensch/gemsnake/game"
	"github.com/brensch/gemsnake/rules"
)

// ErrRoundInProgress is returned for settings that are locked during play.
var ErrRoundInProgress = errors.New("round in progress")

// Schedule asks the host to call Tick(Token) after After.
type Schedule struct {
	Token uint64
	After time.Duration
}

// TickReport describes one accepted tick.
type TickReport struct {
	Ate      bool
	Score    int
	GameOver bool
	Cause    rules.DeathCause
	// Next is the following tick; zero once the round is over.
	Next Schedule
}

// Engine is a single round manager. It is not safe for concurrent use; hosts
// that receive input on several goroutines should drive it through a Loop.
type Engine struct {
	cfg Config
	log *slog.Logger
	rng *rand.Rand

	board  *game.Board
	bodies []*game.Body
	gem    game.Point
	hasGem bool

	score      int
	finalScore int
	cause      rules.DeathCause
	status     Status
	interval   time.Duration
	round      int
	ticks      int

	generation uint64
	pending    uint64

	slot *Snapshot

	reset     bool
	unread    map[game.Point]game.Cell
	observers []Observer
}

// New validates cfg and returns an idle engine.
func New(cfg Config, logger *slog.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Engine{
		cfg:      cfg,
		log:      logger.With("component", "engine"),
		rng:      rand.New(rand.NewSource(seed)),
		interval: cfg.TickInterval,
		unread:   make(map[game.Point]game.Cell),
	}, nil
}

// AddObserver registers o for every subsequent frame.
func (e *Engine) AddObserver(o Observer) {
	e.observers = append(e.observers, o)
}

// Start begins a new round: a fresh board, one segment at the centre heading
// Right, one gem, score 0. It is refused while a round is running or paused.
func (e *Engine) Start() (Schedule, bool) {
	if e.status == Running || e.status == Paused {
		return Schedule{}, false
	}

	e.board = game.NewBoard(e.cfg.BoardWidth, e.cfg.BoardHeight)
	clear(e.unread)
	centre := game.Point{Row: e.cfg.BoardHeight / 2, Col: e.cfg.BoardWidth / 2}
	body := game.NewBody(game.PrimaryBody, centre, game.Right)
	e.board.Place(game.Head, centre)
	e.bodies = []*game.Body{body}
	e.gem, e.hasGem = rules.PlaceGem(e.board, e.rng)

	e.score = 0
	e.finalScore = 0
	e.cause = rules.Alive
	e.ticks = 0
	e.round++
	e.status = Running
	e.reset = true

	next := e.arm()
	e.log.Info("round started",
		"round", e.round,
		"width", e.cfg.BoardWidth,
		"height", e.cfg.BoardHeight,
		"interval", e.interval,
	)
	e.emit(EventStart)
	return next, true
}

// Due reports whether token is the pending tick of a running round, which is
// exactly when Tick would accept it.
func (e *Engine) Due(token uint64) bool {
	return e.status == Running && token != 0 && token == e.pending
}

// Tick runs one step of the round. It returns false without touching any
// state when token is not the pending tick or the round is not running.
func (e *Engine) Tick(token uint64) (TickReport, bool) {
	if !e.Due(token) {
		e.log.Debug("stale tick ignored", "token", token, "pending", e.pending, "status", e.status)
		return TickReport{}, false
	}
	e.pending = 0

	res := rules.Advance(e.board, e.bodies, e.rng)
	e.ticks++

	out := res.Outcomes[0]
	if out.Ate {
		e.score++
	}
	if res.GemEaten {
		e.gem, e.hasGem = res.Gem, res.GemPlaced
		if !res.GemPlaced {
			e.log.Info("board full, no gem placed", "round", e.round, "score", e.score)
		}
	}

	report := TickReport{Ate: out.Ate, Score: e.score}
	if out.Dead {
		e.finish(out.Cause)
		report.GameOver = true
		report.Cause = out.Cause
		e.emit(EventGameOver)
		return report, true
	}

	report.Next = e.arm()
	e.emit(EventTick)
	return report, true
}

// SetDirection steers the body. Requests are ignored unless the round is
// running, and reversals are ignored by the body itself.
func (e *Engine) SetDirection(d game.Direction) bool {
	if e.status != Running || len(e.bodies) == 0 {
		return false
	}
	return e.bodies[0].SetDirection(d)
}

// Pause toggles between Running and Paused. Pausing drops the pending tick;
// resuming arms a fresh one a full interval out. It does nothing when the
// round is idle or over.
func (e *Engine) Pause() (Schedule, bool) {
	switch e.status {
	case Running:
		e.status = Paused
		e.pending = 0
		e.log.Info("round paused", "round", e.round, "tick", e.ticks)
		e.emit(EventPause)
		return Schedule{}, true
	case Paused:
		e.status = Running
		next := e.arm()
		e.log.Info("round resumed", "round", e.round, "tick", e.ticks)
		e.emit(EventResume)
		return next, true
	}
	return Schedule{}, false
}

// Save copies the running round into the save slot, replacing any earlier save.
func (e *Engine) Save() bool {
	if e.status != Running {
		return false
	}
	snap := e.capture()
	e.slot = &snap
	e.log.Info("round saved", "round", e.round, "score", snap.Score, "length", len(snap.Bodies[0].Segments))
	return true
}

// Load restores the save slot after a round has ended. The board is rebuilt
// from the saved segments, the slot is refreshed from the restored state so
// it can be loaded again, and the round is left Paused for the player to
// resume.
func (e *Engine) Load() (Schedule, bool) {
	if e.status != GameOver || e.slot == nil {
		return Schedule{}, false
	}
	if err := e.restore(*e.slot); err != nil {
		// The slot was validated on the way in; reaching this is a bug.
		panic(fmt.Sprintf("engine: restore saved slot: %v", err))
	}
	e.status = Running
	snap := e.capture()
	e.slot = &snap

	e.status = Paused
	e.generation++
	e.pending = 0
	e.log.Info("round loaded", "round", e.round, "score", e.score, "tick", e.ticks)
	e.emit(EventLoad)
	return Schedule{}, true
}

// SetSpeed changes the tick interval. Like the speed selector it is locked
// while a round is in progress.
func (e *Engine) SetSpeed(movesPerSecond int) error {
	if e.status == Running || e.status == Paused {
		return ErrRoundInProgress
	}
	interval, err := SpeedInterval(movesPerSecond)
	if err != nil {
		return err
	}
	e.interval = interval
	return nil
}

// Snapshot returns a copy of the save slot.
func (e *Engine) Snapshot() (Snapshot, bool) {
	if e.slot == nil {
		return Snapshot{}, false
	}
	return e.slot.Clone(), true
}

// SetSnapshot fills the save slot from an externally stored snapshot.
func (e *Engine) SetSnapshot(s Snapshot) error {
	if err := s.Validate(); err != nil {
		return err
	}
	c := s.Clone()
	e.slot = &c
	return nil
}

func (e *Engine) Config() Config { return e.cfg }
func (e *Engine) Status() Status { return e.status }
func (e *Engine) Score() int     { return e.score }
func (e *Engine) Round() int     { return e.round }
func (e *Engine) Ticks() int     { return e.ticks }

// Interval is the current tick interval.
func (e *Engine) Interval() time.Duration { return e.interval }

// FinalScore is the score the last round ended with.
func (e *Engine) FinalScore() (int, bool) {
	if e.status != GameOver {
		return 0, false
	}
	return e.finalScore, true
}

// Cause is why the last round ended.
func (e *Engine) Cause() rules.DeathCause { return e.cause }

// Gem returns the gem position, if one is on the board.
func (e *Engine) Gem() (game.Point, bool) {
	return e.gem, e.hasGem
}

// Board returns a copy of the board, or nil before the first round.
func (e *Engine) Board() *game.Board {
	return e.board.Clone()
}

// Body returns a copy of the player's body, or nil before the first round.
func (e *Engine) Body() *game.Body {
	if len(e.bodies) == 0 {
		return nil
	}
	return e.bodies[0].Clone()
}

// Changes returns the cells changed since the previous call. reset reports
// that the board was rebuilt in between, so unlisted cells are Empty.
func (e *Engine) Changes() (changes []game.CellChange, reset bool) {
	e.drain()
	reset = e.reset
	e.reset = false
	if len(e.unread) == 0 {
		return nil, reset
	}
	changes = make([]game.CellChange, 0, len(e.unread))
	for r := 0; r < e.board.Height(); r++ {
		for c := 0; c < e.board.Width(); c++ {
			p := game.Point{Row: r, Col: c}
			if cell, ok := e.unread[p]; ok {
				changes = append(changes, game.CellChange{Point: p, Cell: cell})
			}
		}
	}
	clear(e.unread)
	return changes, reset
}

// Frame describes the whole current state, listing every non-empty cell.
func (e *Engine) Frame() Frame {
	f := e.frame("")
	f.Changes = []game.CellChange{}
	if e.board == nil {
		return f
	}
	f.Reset = true
	for r, row := range e.board.Cells() {
		for c, cell := range row {
			if cell != game.Empty {
				f.Changes = append(f.Changes, game.CellChange{Point: game.Point{Row: r, Col: c}, Cell: cell})
			}
		}
	}
	return f
}

func (e *Engine) arm() Schedule {
	e.generation++
	e.pending = e.generation
	return Schedule{Token: e.pending, After: e.interval}
}

func (e *Engine) finish(cause rules.DeathCause) {
	e.status = GameOver
	e.pending = 0
	e.finalScore = e.score
	e.cause = cause
	e.log.Info("round over",
		"round", e.round,
		"final_score", e.finalScore,
		"cause", cause.String(),
		"ticks", e.ticks,
	)
}

func (e *Engine) capture() Snapshot {
	snap := Snapshot{
		Width:        e.board.Width(),
		Height:       e.board.Height(),
		Bodies:       make([]BodySnapshot, 0, len(e.bodies)),
		Gem:          e.gem,
		HasGem:       e.hasGem,
		Score:        e.score,
		TickInterval: e.interval,
		Ticks:        e.ticks,
	}
	for _, b := range e.bodies {
		snap.Bodies = append(snap.Bodies, BodySnapshot{
			ID:        b.ID(),
			Segments:  b.Segments(),
			Direction: b.Direction(),
			Previous:  b.PreviousDirection(),
		})
	}
	return snap
}

func (e *Engine) restore(s Snapshot) error {
	if err := s.Validate(); err != nil {
		return err
	}
	bodies := make([]*game.Body, 0, len(s.Bodies))
	for _, bs := range s.Bodies {
		b, err := game.RestoreBody(bs.ID, bs.Segments, bs.Direction, bs.Previous)
		if err != nil {
			return fmt.Errorf("restore body: %w", err)
		}
		bodies = append(bodies, b)
	}

	e.board = s.Board()
	clear(e.unread)
	e.bodies = bodies
	e.gem, e.hasGem = s.Gem, s.HasGem
	e.score = s.Score
	e.finalScore = 0
	e.cause = rules.Alive
	e.interval = s.TickInterval
	e.ticks = s.Ticks
	e.reset = true
	return nil
}

// drain moves the board's pending writes into the unread set.
func (e *Engine) drain() []game.CellChange {
	if e.board == nil {
		return nil
	}
	changes := e.board.Changes()
	for _, c := range changes {
		e.unread[c.Point] = c.Cell
	}
	return changes
}

func (e *Engine) frame(ev Event) Frame {
	f := Frame{
		Event:  ev,
		Round:  e.round,
		Tick:   e.ticks,
		Status: e.status,
		Score:  e.score,
	}
	if e.status == GameOver {
		final := e.finalScore
		f.FinalScore = &final
		f.Cause = e.cause.String()
	}
	if e.board != nil {
		f.Width = e.board.Width()
		f.Height = e.board.Height()
	}
	if e.hasGem {
		gem := e.gem
		f.Gem = &gem
	}
	if len(e.bodies) > 0 {
		f.Direction = e.bodies[0].Direction()
		f.Body = e.bodies[0].Segments()
	}
	return f
}

func (e *Engine) emit(ev Event) {
	reset := e.reset
	changes := e.drain()
	if len(e.observers) == 0 {
		return
	}
	f := e.frame(ev)
	f.Reset = reset && (ev == EventStart || ev == EventLoad)
	f.Changes = changes
	if f.Changes == nil {
		f.Changes = []game.CellChange{}
	}
	for _, o := range e.observers {
		o.OnFrame(f)
	}
}
