package main

import (
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/brensch/gemsnake/engine"
	"github.com/brensch/gemsnake/game"
)

func newTestModel(t *testing.T, persist func(engine.Snapshot)) model {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e, err := engine.New(engine.Config{BoardWidth: 8, BoardHeight: 8, TickInterval: time.Millisecond, Seed: 21}, logger)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return newModel(e, nil, false, persist, logger)
}

func press(t *testing.T, m model, key string) (model, tea.Cmd) {
	t.Helper()
	var msg tea.KeyMsg
	switch key {
	case " ":
		msg = tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	case "up":
		msg = tea.KeyMsg{Type: tea.KeyUp}
	default:
		msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)}
	}
	next, cmd := m.Update(msg)
	return next.(model), cmd
}

// fire runs a scheduled tick command and feeds its message back.
func fire(t *testing.T, m model, cmd tea.Cmd) (model, tea.Cmd) {
	t.Helper()
	if cmd == nil {
		t.Fatalf("no tick scheduled (status=%v)", m.eng.Status())
	}
	msg := cmd()
	if _, ok := msg.(tickMsg); !ok {
		t.Fatalf("got %T want tickMsg", msg)
	}
	next, cmd := m.Update(msg)
	return next.(model), cmd
}

func TestModel_RoundPlaysToGameOver(t *testing.T) {
	m := newTestModel(t, nil)

	m, cmd := press(t, m, "n")
	if m.eng.Status() != engine.Running {
		t.Fatalf("status got=%v want=%v", m.eng.Status(), engine.Running)
	}
	m, _ = press(t, m, "up")

	for i := 0; m.eng.Status() == engine.Running; i++ {
		if i > 100 {
			t.Fatalf("round never ended")
		}
		m, cmd = fire(t, m, cmd)
	}
	if m.eng.Status() != engine.GameOver {
		t.Fatalf("status got=%v want=%v", m.eng.Status(), engine.GameOver)
	}
	if !strings.Contains(m.message, "game over") {
		t.Fatalf("message got=%q", m.message)
	}
	view := m.View()
	t.Logf("final view:\n%s", view)
	if !strings.Contains(view, "Final:") {
		t.Fatalf("view missing final score")
	}
}

func TestModel_PauseDropsPendingTick(t *testing.T) {
	m := newTestModel(t, nil)

	m, tick := press(t, m, "n")
	m, resume := press(t, m, " ")
	if m.eng.Status() != engine.Paused {
		t.Fatalf("status got=%v want=%v", m.eng.Status(), engine.Paused)
	}
	if resume != nil {
		t.Fatalf("pause scheduled a tick")
	}

	// The tick armed before the pause arrives late and must be ignored.
	next, cmd := m.Update(tick())
	m = next.(model)
	if cmd != nil || m.eng.Ticks() != 0 {
		t.Fatalf("stale tick ran: ticks=%d", m.eng.Ticks())
	}

	m, resume = press(t, m, " ")
	if m.eng.Status() != engine.Running || resume == nil {
		t.Fatalf("resume failed: status=%v", m.eng.Status())
	}
	m, _ = fire(t, m, resume)
	if m.eng.Ticks() != 1 {
		t.Fatalf("ticks got=%d want=1", m.eng.Ticks())
	}
}

func TestModel_SavePersistsAndSpeedLocks(t *testing.T) {
	var persisted []engine.Snapshot
	m := newTestModel(t, func(s engine.Snapshot) { persisted = append(persisted, s) })

	m, _ = press(t, m, "S")
	if len(persisted) != 0 {
		t.Fatalf("save while idle persisted")
	}

	// 1ms is not a selectable speed, so + falls back to the default.
	m, _ = press(t, m, "+")
	if got := m.speed(); got != engine.DefaultSpeed {
		t.Fatalf("speed got=%d want=%d", got, engine.DefaultSpeed)
	}

	m, _ = press(t, m, "n")
	m, _ = press(t, m, "S")
	if len(persisted) != 1 || persisted[0].Score != 0 {
		t.Fatalf("persisted got=%v", persisted)
	}

	before := m.speed()
	m, _ = press(t, m, "+")
	if m.speed() != before || !strings.Contains(m.message, "locked") {
		t.Fatalf("speed changed mid-round: before=%d after=%d msg=%q", before, m.speed(), m.message)
	}
}

func TestNextSpeedClamps(t *testing.T) {
	m := newTestModel(t, nil)
	if err := m.eng.SetSpeed(engine.Speeds[len(engine.Speeds)-1]); err != nil {
		t.Fatalf("set speed: %v", err)
	}
	if got := m.nextSpeed(1); got != engine.Speeds[len(engine.Speeds)-1] {
		t.Fatalf("next at top got=%d", got)
	}
	if err := m.eng.SetSpeed(engine.Speeds[0]); err != nil {
		t.Fatalf("set speed: %v", err)
	}
	if got := m.nextSpeed(-1); got != engine.Speeds[0] {
		t.Fatalf("prev at bottom got=%d", got)
	}
	if got := m.nextSpeed(1); got != engine.Speeds[1] {
		t.Fatalf("next got=%d want=%d", got, engine.Speeds[1])
	}
}

func TestModel_StaleTickDoesNotSteer(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e, err := engine.New(engine.Config{BoardWidth: 2, BoardHeight: 3, TickInterval: time.Millisecond, Seed: 5}, logger)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	m := newModel(e, nil, true, nil, logger)

	m, stale := press(t, m, "n")
	m, _ = press(t, m, " ")
	m, resume := press(t, m, " ")
	if m.eng.Status() != engine.Running || resume == nil {
		t.Fatalf("resume failed: status=%v", m.eng.Status())
	}

	next, cmd := m.Update(stale())
	m = next.(model)
	if cmd != nil || m.eng.Ticks() != 0 {
		t.Fatalf("stale tick ran: ticks=%d", m.eng.Ticks())
	}
	if d := m.eng.Body().Direction(); d != game.Right {
		t.Fatalf("stale tick steered: direction got=%v want=%v", d, game.Right)
	}

	m, _ = fire(t, m, resume)
	if m.eng.Ticks() != 1 || m.eng.Status() != engine.Running {
		t.Fatalf("due tick got ticks=%d status=%v", m.eng.Ticks(), m.eng.Status())
	}
}

func TestQueryMsg_AbandonedQueryIsSkipped(t *testing.T) {
	m := newTestModel(t, nil)

	calls := 0
	msg, abandon := newQueryMsg(func(*engine.Engine) { calls++ })
	if !abandon() {
		t.Fatalf("abandon before run reported the query as done")
	}
	next, _ := m.Update(msg)
	m = next.(model)
	if calls != 0 {
		t.Fatalf("abandoned query ran %d times", calls)
	}
	select {
	case <-msg.done:
	default:
		t.Fatalf("done not closed for abandoned query")
	}

	msg, abandon = newQueryMsg(func(*engine.Engine) { calls++ })
	m.Update(msg)
	if calls != 1 {
		t.Fatalf("calls got=%d want=1", calls)
	}
	if abandon() {
		t.Fatalf("abandon after run withdrew a finished query")
	}
}
