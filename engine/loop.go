package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/brensch/gemsnake/game"
	"github.com/brensch/gemsnake/rules"
)

// CommandKind selects what a Command does.
type CommandKind int

const (
	CmdStart CommandKind = iota
	CmdPause
	CmdSave
	CmdLoad
	CmdDirection
	CmdSpeed
)

func (k CommandKind) String() string {
	switch k {
	case CmdStart:
		return "start"
	case CmdPause:
		return "pause"
	case CmdSave:
		return "save"
	case CmdLoad:
		return "load"
	case CmdDirection:
		return "direction"
	case CmdSpeed:
		return "speed"
	}
	return "unknown"
}

// Command is an input for a Loop.
type Command struct {
	Kind      CommandKind
	Direction game.Direction
	Speed     int
	// Result, if set, receives whether the command was applied.
	Result chan<- bool
}

// LoopConfig tunes a Loop.
type LoopConfig struct {
	// Autopilot steers the body with rules.Autopilot before every tick.
	Autopilot bool
	// RestartDelay, when positive, starts a new round this long after one ends.
	RestartDelay time.Duration
	// OnSave is called with the slot after every successful save.
	OnSave func(Snapshot)
}

var ErrLoopClosed = errors.New("loop closed")

// Loop drives an Engine from a single goroutine. Commands from any goroutine
// and timer expiries are funnelled into Run, so the engine has one mutator
// and a tick always runs to completion before the next input is looked at.
type Loop struct {
	engine *Engine
	cfg    LoopConfig
	log    *slog.Logger

	cmds    chan Command
	queries chan func(*Engine)
	fired   chan uint64
	done    chan struct{}

	timer   *time.Timer
	restart *time.Timer
}

func NewLoop(e *Engine, cfg LoopConfig, logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		engine:  e,
		cfg:     cfg,
		log:     logger.With("component", "loop"),
		cmds:    make(chan Command, 64),
		queries: make(chan func(*Engine)),
		fired:   make(chan uint64, 1),
		done:    make(chan struct{}),
	}
}

// Submit queues cmd. It fails once Run has returned.
func (l *Loop) Submit(cmd Command) error {
	select {
	case <-l.done:
		return ErrLoopClosed
	default:
	}
	select {
	case l.cmds <- cmd:
		return nil
	case <-l.done:
		return ErrLoopClosed
	}
}

// Query runs fn on the loop goroutine and waits for it. fn may read the
// engine but should not hold on to it.
func (l *Loop) Query(ctx context.Context, fn func(*Engine)) error {
	finished := make(chan struct{})
	wrapped := func(e *Engine) {
		defer close(finished)
		fn(e)
	}
	select {
	case l.queries <- wrapped:
	case <-l.done:
		return ErrLoopClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	<-finished
	return nil
}

// Run processes commands and ticks until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	defer close(l.done)
	defer l.stopTimers()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd := <-l.cmds:
			l.apply(ctx, cmd)
		case fn := <-l.queries:
			fn(l.engine)
		case token := <-l.fired:
			l.tick(ctx, token)
		}
	}
}

func (l *Loop) apply(ctx context.Context, cmd Command) {
	var ok bool
	switch cmd.Kind {
	case CmdStart:
		var next Schedule
		if next, ok = l.engine.Start(); ok {
			l.arm(ctx, next)
		}
	case CmdPause:
		var next Schedule
		if next, ok = l.engine.Pause(); ok {
			l.arm(ctx, next)
		}
	case CmdSave:
		ok = l.engine.Save()
		if ok && l.cfg.OnSave != nil {
			if snap, has := l.engine.Snapshot(); has {
				l.cfg.OnSave(snap)
			}
		}
	case CmdLoad:
		var next Schedule
		if next, ok = l.engine.Load(); ok {
			l.arm(ctx, next)
		}
	case CmdDirection:
		ok = l.engine.SetDirection(cmd.Direction)
	case CmdSpeed:
		err := l.engine.SetSpeed(cmd.Speed)
		if err != nil {
			l.log.Warn("speed change rejected", "speed", cmd.Speed, "err", err)
		}
		ok = err == nil
	}
	if cmd.Kind != CmdDirection {
		l.log.Debug("command", "kind", cmd.Kind.String(), "applied", ok, "status", l.engine.Status())
	}
	if cmd.Result != nil {
		select {
		case cmd.Result <- ok:
		default:
		}
	}
}

func (l *Loop) tick(ctx context.Context, token uint64) {
	if !l.engine.Due(token) {
		l.log.Debug("stale timer ignored", "token", token)
		return
	}
	if l.cfg.Autopilot {
		if body := l.engine.Body(); body != nil {
			gem, _ := l.engine.Gem()
			l.engine.SetDirection(rules.Autopilot(l.engine.board, body, gem))
		}
	}
	rep, ok := l.engine.Tick(token)
	if !ok {
		return
	}
	if rep.GameOver {
		l.stopTimers()
		if l.cfg.RestartDelay > 0 {
			l.restart = time.AfterFunc(l.cfg.RestartDelay, func() {
				_ = l.Submit(Command{Kind: CmdStart})
			})
		}
		return
	}
	l.arm(ctx, rep.Next)
}

// arm replaces the outstanding timer with one for next. A zero schedule just
// cancels, which is what pausing and loading want. Refused commands must not
// reach arm, or they would cancel a live round's tick.
func (l *Loop) arm(ctx context.Context, next Schedule) {
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	if next.Token == 0 {
		return
	}
	token := next.Token
	l.timer = time.AfterFunc(next.After, func() {
		select {
		case l.fired <- token:
		case <-ctx.Done():
		}
	})
}

func (l *Loop) stopTimers() {
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	if l.restart != nil {
		l.restart.Stop()
		l.restart = nil
	}
}
