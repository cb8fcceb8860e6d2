package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/brensch/gemsnake/game"
)

func startLoop(t *testing.T, cfg Config, lc LoopConfig) (*Loop, *Engine, context.CancelFunc, <-chan error) {
	t.Helper()
	e, err := New(cfg, testLogger())
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	l := NewLoop(e, lc, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- l.Run(ctx) }()
	t.Cleanup(cancel)
	return l, e, cancel, errc
}

func submit(t *testing.T, l *Loop, cmd Command) bool {
	t.Helper()
	res := make(chan bool, 1)
	cmd.Result = res
	if err := l.Submit(cmd); err != nil {
		t.Fatalf("submit %v: %v", cmd.Kind, err)
	}
	select {
	case ok := <-res:
		return ok
	case <-time.After(2 * time.Second):
		t.Fatalf("no result for %v", cmd.Kind)
	}
	return false
}

func TestLoop_RoundRunsToGameOver(t *testing.T) {
	cfg := Config{BoardWidth: 5, BoardHeight: 5, TickInterval: 2 * time.Millisecond, Seed: 7}
	l, e, _, _ := startLoop(t, cfg, LoopConfig{})

	over := make(chan Frame, 4)
	if err := l.Query(context.Background(), func(e *Engine) {
		e.AddObserver(ObserverFunc(func(f Frame) {
			if f.Event == EventGameOver {
				over <- f
			}
		}))
	}); err != nil {
		t.Fatalf("query: %v", err)
	}

	if !submit(t, l, Command{Kind: CmdStart}) {
		t.Fatalf("start refused")
	}

	select {
	case f := <-over:
		if f.FinalScore == nil {
			t.Fatalf("game over frame without final score: %+v", f)
		}
		t.Logf("round over after %d ticks, score=%d cause=%s", f.Tick, *f.FinalScore, f.Cause)
	case <-time.After(5 * time.Second):
		t.Fatalf("round never ended")
	}

	var status Status
	if err := l.Query(context.Background(), func(e *Engine) { status = e.Status() }); err != nil {
		t.Fatalf("query: %v", err)
	}
	if status != GameOver {
		t.Fatalf("status got=%v want=%v", status, GameOver)
	}
	_ = e
}

func TestLoop_PauseStopsTicking(t *testing.T) {
	cfg := Config{BoardWidth: 40, BoardHeight: 3, TickInterval: 5 * time.Millisecond, Seed: 7}
	l, _, _, _ := startLoop(t, cfg, LoopConfig{})

	if !submit(t, l, Command{Kind: CmdStart}) {
		t.Fatalf("start refused")
	}
	if !submit(t, l, Command{Kind: CmdPause}) {
		t.Fatalf("pause refused")
	}

	var before, after int
	var status Status
	_ = l.Query(context.Background(), func(e *Engine) { before = e.Ticks() })
	time.Sleep(50 * time.Millisecond)
	_ = l.Query(context.Background(), func(e *Engine) {
		after = e.Ticks()
		status = e.Status()
	})
	if status != Paused {
		t.Fatalf("status got=%v want=%v", status, Paused)
	}
	if before != after {
		t.Fatalf("ticks advanced while paused: before=%d after=%d", before, after)
	}

	if !submit(t, l, Command{Kind: CmdPause}) {
		t.Fatalf("resume refused")
	}
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		_ = l.Query(context.Background(), func(e *Engine) { after = e.Ticks() })
		if after > before {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("no ticks after resume")
}

func TestLoop_RejectedCommandsReportFalse(t *testing.T) {
	cfg := Config{BoardWidth: 10, BoardHeight: 10, TickInterval: time.Hour, Seed: 7}
	l, _, _, _ := startLoop(t, cfg, LoopConfig{})

	if submit(t, l, Command{Kind: CmdPause}) {
		t.Fatalf("pause accepted while idle")
	}
	if submit(t, l, Command{Kind: CmdSave}) {
		t.Fatalf("save accepted while idle")
	}
	if !submit(t, l, Command{Kind: CmdSpeed, Speed: 20}) {
		t.Fatalf("speed change refused while idle")
	}
	if submit(t, l, Command{Kind: CmdSpeed, Speed: 7}) {
		t.Fatalf("unsupported speed accepted")
	}
	if !submit(t, l, Command{Kind: CmdStart}) {
		t.Fatalf("start refused")
	}
	if submit(t, l, Command{Kind: CmdSpeed, Speed: 30}) {
		t.Fatalf("speed change accepted mid-round")
	}
}

func TestLoop_SaveCallsOnSave(t *testing.T) {
	saved := make(chan Snapshot, 1)
	cfg := Config{BoardWidth: 10, BoardHeight: 10, TickInterval: time.Hour, Seed: 7}
	l, _, _, _ := startLoop(t, cfg, LoopConfig{OnSave: func(s Snapshot) { saved <- s }})

	if !submit(t, l, Command{Kind: CmdStart}) {
		t.Fatalf("start refused")
	}
	if !submit(t, l, Command{Kind: CmdSave}) {
		t.Fatalf("save refused")
	}
	select {
	case s := <-saved:
		if s.Width != 10 || s.Height != 10 || len(s.Bodies) != 1 {
			t.Fatalf("unexpected snapshot: %+v", s)
		}
	default:
		t.Fatalf("OnSave not called")
	}
}

func TestLoop_AutopilotRestarts(t *testing.T) {
	cfg := Config{BoardWidth: 6, BoardHeight: 6, TickInterval: time.Millisecond, Seed: 3}
	l, _, _, _ := startLoop(t, cfg, LoopConfig{Autopilot: true, RestartDelay: time.Millisecond})

	starts := make(chan int, 16)
	_ = l.Query(context.Background(), func(e *Engine) {
		e.AddObserver(ObserverFunc(func(f Frame) {
			if f.Event == EventStart {
				select {
				case starts <- f.Round:
				default:
				}
			}
		}))
	})
	if !submit(t, l, Command{Kind: CmdStart}) {
		t.Fatalf("start refused")
	}

	timeout := time.After(10 * time.Second)
	for {
		select {
		case round := <-starts:
			if round >= 2 {
				return
			}
		case <-timeout:
			t.Fatalf("no second round started")
		}
	}
}

func TestLoop_ClosedAfterCancel(t *testing.T) {
	cfg := Config{BoardWidth: 5, BoardHeight: 5, TickInterval: time.Hour, Seed: 7}
	l, _, cancel, errc := startLoop(t, cfg, LoopConfig{})

	cancel()
	select {
	case err := <-errc:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("run err got=%v want=%v", err, context.Canceled)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("run did not return")
	}

	if err := l.Submit(Command{Kind: CmdStart}); !errors.Is(err, ErrLoopClosed) {
		t.Fatalf("submit err got=%v want=%v", err, ErrLoopClosed)
	}
	if err := l.Query(context.Background(), func(*Engine) {}); !errors.Is(err, ErrLoopClosed) {
		t.Fatalf("query err got=%v want=%v", err, ErrLoopClosed)
	}
}

func TestLoop_RefusedStartKeepsRoundTicking(t *testing.T) {
	cfg := Config{BoardWidth: 60, BoardHeight: 3, TickInterval: 5 * time.Millisecond, Seed: 7}
	l, _, _, _ := startLoop(t, cfg, LoopConfig{})

	if !submit(t, l, Command{Kind: CmdStart}) {
		t.Fatalf("start refused")
	}
	if submit(t, l, Command{Kind: CmdStart}) {
		t.Fatalf("second start accepted mid-round")
	}

	var before int
	_ = l.Query(context.Background(), func(e *Engine) { before = e.Ticks() })
	deadline := time.Now().Add(2 * time.Second)
	for {
		var ticks int
		_ = l.Query(context.Background(), func(e *Engine) { ticks = e.Ticks() })
		if ticks > before {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("round stopped ticking after refused start: ticks=%d", ticks)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestLoop_StaleTimerDoesNotSteer(t *testing.T) {
	// On a 2x3 board the body starts at (1,1) heading Right into the wall, so
	// the autopilot always turns.
	cfg := Config{BoardWidth: 2, BoardHeight: 3, TickInterval: time.Hour, Seed: 5}
	e, err := New(cfg, testLogger())
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	l := NewLoop(e, LoopConfig{Autopilot: true}, testLogger())
	t.Cleanup(l.stopTimers)

	next, ok := e.Start()
	if !ok {
		t.Fatalf("start refused")
	}
	if e.Due(next.Token + 1) {
		t.Fatalf("unissued token reported due")
	}

	l.tick(context.Background(), next.Token+1)
	if d := e.Body().Direction(); d != game.Right {
		t.Fatalf("stale timer steered: direction got=%v want=%v", d, game.Right)
	}
	if e.Ticks() != 0 {
		t.Fatalf("stale timer ticked: ticks=%d", e.Ticks())
	}

	l.tick(context.Background(), next.Token)
	if e.Status() != Running || e.Ticks() != 1 {
		t.Fatalf("due tick got status=%v ticks=%d want running/1", e.Status(), e.Ticks())
	}
	if d := e.Body().Direction(); d == game.Right {
		t.Fatalf("autopilot did not turn away from the wall\n%s", e.Board())
	}
}
