package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/brensch/gemsnake/db"
	"github.com/brensch/gemsnake/engine"
	"github.com/brensch/gemsnake/game"
	"github.com/brensch/gemsnake/rules"
)

const historySize = 10

// tickMsg is a timer expiry carrying the token the engine handed out.
type tickMsg struct{ token uint64 }

// commandMsg and queryMsg let other goroutines reach the engine through the
// program's update loop, which is its only mutator.
type commandMsg engine.Command

type queryMsg struct {
	fn   func(*engine.Engine)
	done chan struct{}
}

type historyMsg struct {
	rounds []db.Round
	best   int
	err    error
}

var (
	headStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#32CD32"))
	bodyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#228B22"))
	gemStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4FD8")).Bold(true)
	emptyStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#303030"))
	boardStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#5F5F87"))
	panelStyle  = lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(0, 1).MarginLeft(1)
	titleStyle  = lipgloss.NewStyle().Bold(true).Underline(true)
	statusStyle = lipgloss.NewStyle().Bold(true)
	overStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F5F")).Bold(true)
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#8A8A8A"))
)

type model struct {
	eng       *engine.Engine
	scores    *db.DB
	autopilot bool
	persist   func(engine.Snapshot)
	log       *slog.Logger

	history []db.Round
	best    int
	message string
}

func newModel(eng *engine.Engine, scores *db.DB, autopilot bool, persist func(engine.Snapshot), logger *slog.Logger) model {
	return model{
		eng:       eng,
		scores:    scores,
		autopilot: autopilot,
		persist:   persist,
		log:       logger.With("component", "tui"),
		message:   "press n to start",
	}
}

func (m model) Init() tea.Cmd {
	return m.loadHistory()
}

func schedule(s engine.Schedule) tea.Cmd {
	if s.Token == 0 {
		return nil
	}
	token := s.Token
	return tea.Tick(s.After, func(time.Time) tea.Msg {
		return tickMsg{token: token}
	})
}

func (m model) loadHistory() tea.Cmd {
	if m.scores == nil {
		return nil
	}
	scores := m.scores
	return func() tea.Msg {
		rounds, err := scores.RecentRounds(historySize)
		if err != nil {
			return historyMsg{err: err}
		}
		best, _, err := scores.BestScore()
		return historyMsg{rounds: rounds, best: best, err: err}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg.String())
	case commandMsg:
		return m.apply(engine.Command(msg))
	case queryMsg:
		msg.fn(m.eng)
		close(msg.done)
		return m, nil
	case tickMsg:
		return m.tick(msg.token)
	case historyMsg:
		if msg.err != nil {
			m.log.Error("failed to load score history", "err", msg.err)
			return m, nil
		}
		m.history = msg.rounds
		m.best = msg.best
		return m, nil
	}
	return m, nil
}

var keyDirections = map[string]game.Direction{
	"up": game.Up, "w": game.Up,
	"down": game.Down, "s": game.Down,
	"left": game.Left, "a": game.Left,
	"right": game.Right, "d": game.Right,
}

func (m model) handleKey(key string) (tea.Model, tea.Cmd) {
	if d, ok := keyDirections[key]; ok {
		return m.apply(engine.Command{Kind: engine.CmdDirection, Direction: d})
	}
	switch key {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "n", "enter":
		return m.apply(engine.Command{Kind: engine.CmdStart})
	case " ", "p":
		return m.apply(engine.Command{Kind: engine.CmdPause})
	case "S", "ctrl+s":
		return m.apply(engine.Command{Kind: engine.CmdSave})
	case "L", "ctrl+l":
		return m.apply(engine.Command{Kind: engine.CmdLoad})
	case "+", "=":
		return m.apply(engine.Command{Kind: engine.CmdSpeed, Speed: m.nextSpeed(1)})
	case "-", "_":
		return m.apply(engine.Command{Kind: engine.CmdSpeed, Speed: m.nextSpeed(-1)})
	case "A":
		m.autopilot = !m.autopilot
		m.message = fmt.Sprintf("autopilot %s", onOff(m.autopilot))
	}
	return m, nil
}

func (m model) apply(cmd engine.Command) (tea.Model, tea.Cmd) {
	var (
		ok   bool
		next tea.Cmd
	)
	switch cmd.Kind {
	case engine.CmdStart:
		var s engine.Schedule
		s, ok = m.eng.Start()
		next = schedule(s)
		if ok {
			m.message = ""
		}
	case engine.CmdPause:
		var s engine.Schedule
		s, ok = m.eng.Pause()
		next = schedule(s)
		m.message = ""
	case engine.CmdSave:
		ok = m.eng.Save()
		if ok {
			m.message = "saved"
			if snap, has := m.eng.Snapshot(); has && m.persist != nil {
				m.persist(snap)
			}
		} else {
			m.message = "save only works during a running round"
		}
	case engine.CmdLoad:
		var s engine.Schedule
		s, ok = m.eng.Load()
		next = schedule(s)
		if ok {
			m.message = "loaded, press space to resume"
		} else {
			m.message = "load needs a saved round and a finished game"
		}
	case engine.CmdDirection:
		ok = m.eng.SetDirection(cmd.Direction)
	case engine.CmdSpeed:
		err := m.eng.SetSpeed(cmd.Speed)
		ok = err == nil
		switch {
		case errors.Is(err, engine.ErrRoundInProgress):
			m.message = "speed is locked during a round"
		case err != nil:
			m.message = err.Error()
		default:
			m.message = fmt.Sprintf("speed %d", cmd.Speed)
		}
	}
	if cmd.Result != nil {
		select {
		case cmd.Result <- ok:
		default:
		}
	}
	return m, next
}

func (m model) tick(token uint64) (tea.Model, tea.Cmd) {
	if !m.eng.Due(token) {
		return m, nil
	}
	if m.autopilot {
		if body := m.eng.Body(); body != nil {
			gem, _ := m.eng.Gem()
			m.eng.SetDirection(rules.Autopilot(m.eng.Board(), body, gem))
		}
	}
	rep, ok := m.eng.Tick(token)
	if !ok {
		return m, nil
	}
	if rep.GameOver {
		m.message = fmt.Sprintf("game over (%s), press n for a new round", rep.Cause)
		return m, m.loadHistory()
	}
	return m, schedule(rep.Next)
}

func (m model) speed() int {
	iv := m.eng.Interval()
	if iv <= 0 {
		return 0
	}
	return int(time.Second / iv)
}

func (m model) nextSpeed(step int) int {
	i := slices.Index(engine.Speeds, m.speed())
	if i < 0 {
		return engine.DefaultSpeed
	}
	i += step
	if i < 0 || i >= len(engine.Speeds) {
		return engine.Speeds[i-step]
	}
	return engine.Speeds[i]
}

func (m model) View() string {
	board := boardStyle.Render(m.renderBoard())

	var side strings.Builder
	side.WriteString(titleStyle.Render("Snake") + "\n\n")
	side.WriteString(fmt.Sprintf("Score:  %d\n", m.eng.Score()))
	if final, ok := m.eng.FinalScore(); ok {
		side.WriteString(overStyle.Render(fmt.Sprintf("Final:  %d", final)) + "\n")
	}
	side.WriteString(fmt.Sprintf("Status: %s\n", statusStyle.Render(m.eng.Status().String())))
	side.WriteString(fmt.Sprintf("Speed:  %d/s\n", m.speed()))
	side.WriteString(fmt.Sprintf("Auto:   %s\n", onOff(m.autopilot)))
	if _, ok := m.eng.Snapshot(); ok {
		side.WriteString("Slot:   saved\n")
	}

	side.WriteString("\n" + titleStyle.Render("Previous scores") + "\n")
	if len(m.history) == 0 {
		side.WriteString("none yet\n")
	}
	for _, r := range m.history {
		side.WriteString(fmt.Sprintf("#%-4d %4d  %s\n", r.Round, r.Score, r.Cause))
	}
	if len(m.history) > 0 {
		side.WriteString(fmt.Sprintf("Best: %d\n", m.best))
	}

	view := lipgloss.JoinHorizontal(lipgloss.Top, board, panelStyle.Render(side.String()))
	if m.message != "" {
		view += "\n" + m.message
	}
	view += "\n" + helpStyle.Render("arrows/wasd steer · space pause · n new · S save · L load · +/- speed · A autopilot · q quit")
	return view
}

func (m model) renderBoard() string {
	b := m.eng.Board()
	if b == nil {
		cfg := m.eng.Config()
		b = game.NewBoard(cfg.BoardWidth, cfg.BoardHeight)
	}
	var sb strings.Builder
	for r, row := range b.Cells() {
		if r > 0 {
			sb.WriteByte('\n')
		}
		for _, c := range row {
			switch c {
			case game.Head:
				sb.WriteString(headStyle.Render("██"))
			case game.Segment:
				sb.WriteString(bodyStyle.Render("▓▓"))
			case game.Gem:
				sb.WriteString(gemStyle.Render("◆ "))
			default:
				sb.WriteString(emptyStyle.Render("· "))
			}
		}
	}
	return sb.String()
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

// programGame exposes a running tea.Program as a server.Game.
type programGame struct {
	p *tea.Program
}

func newProgramGame(p *tea.Program) *programGame {
	return &programGame{p: p}
}

func (g *programGame) Submit(cmd engine.Command) error {
	g.p.Send(commandMsg(cmd))
	return nil
}

func (g *programGame) Query(ctx context.Context, fn func(*engine.Engine)) error {
	msg, abandon := newQueryMsg(fn)
	g.p.Send(msg)
	select {
	case <-msg.done:
		return nil
	case <-ctx.Done():
		if !abandon() {
			return nil
		}
		return ctx.Err()
	}
}

// newQueryMsg wraps fn so a caller that stops waiting can withdraw it.
// abandon reports false when fn has already run, in which case the caller
// should treat the query as done.
func newQueryMsg(fn func(*engine.Engine)) (queryMsg, func() bool) {
	var (
		mu        sync.Mutex
		ran       bool
		abandoned bool
	)
	msg := queryMsg{
		fn: func(e *engine.Engine) {
			mu.Lock()
			defer mu.Unlock()
			if abandoned {
				return
			}
			fn(e)
			ran = true
		},
		done: make(chan struct{}),
	}
	abandon := func() bool {
		mu.Lock()
		defer mu.Unlock()
		if ran {
			return false
		}
		abandoned = true
		return true
	}
	return msg, abandon
}
