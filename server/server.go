// Package server exposes a running round over HTTP: JSON state and commands,
// the score history as JSON and HTML, and a websocket frame stream.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/brensch/gemsnake/db"
	"github.com/brensch/gemsnake/engine"
	"github.com/brensch/gemsnake/game"
)

// Game is the round being served. *engine.Loop satisfies it.
type Game interface {
	Submit(engine.Command) error
	Query(ctx context.Context, fn func(*engine.Engine)) error
}

// Scores is the history shown on the scoreboard. *db.DB satisfies it.
type Scores interface {
	RecentRounds(limit int) ([]db.Round, error)
	Stats() (db.Stats, error)
}

// Server holds shared state for HTTP handlers.
type Server struct {
	game   Game
	scores Scores
	hub    *Hub
	log    *slog.Logger

	commandTimeout time.Duration
}

// New wires handlers around game. scores may be nil, in which case the score
// endpoints return empty history. The returned server's Hub must be added
// as an observer of the engine for /ws to see frames.
func New(game Game, scores Scores, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		game:           game,
		scores:         scores,
		hub:            NewHub(logger),
		log:            logger.With("component", "server"),
		commandTimeout: 2 * time.Second,
	}
}

func (s *Server) Hub() *Hub { return s.hub }

// RegisterRoutes sets up all routes on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/state", s.handleState)
	mux.HandleFunc("/api/command", s.handleCommand)
	mux.HandleFunc("/api/scores", s.handleScores)
	mux.HandleFunc("/scores", s.handleScoresPage)
	mux.HandleFunc("/ws", s.handleWS)
}

// Handler returns a mux with every route registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return mux
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	withCORS(w, r)
	if r.Method == http.MethodOptions {
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var f engine.Frame
	if err := s.game.Query(r.Context(), func(e *engine.Engine) { f = e.Frame() }); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, f)
}

// CommandRequest is the body of POST /api/command.
type CommandRequest struct {
	Command   string `json:"command"`
	Direction string `json:"direction,omitempty"`
	Speed     int    `json:"speed,omitempty"`
}

type CommandResponse struct {
	Applied bool          `json:"applied"`
	Status  engine.Status `json:"status"`
	Score   int           `json:"score"`
}

func parseCommand(req CommandRequest) (engine.Command, error) {
	var cmd engine.Command
	switch strings.ToLower(strings.TrimSpace(req.Command)) {
	case "start", "new":
		cmd.Kind = engine.CmdStart
	case "pause", "resume":
		cmd.Kind = engine.CmdPause
	case "save":
		cmd.Kind = engine.CmdSave
	case "load":
		cmd.Kind = engine.CmdLoad
	case "direction", "turn":
		d, err := game.ParseDirection(req.Direction)
		if err != nil {
			return cmd, err
		}
		cmd.Kind = engine.CmdDirection
		cmd.Direction = d
	case "speed":
		cmd.Kind = engine.CmdSpeed
		cmd.Speed = req.Speed
	default:
		return cmd, fmt.Errorf("unknown command %q", req.Command)
	}
	return cmd, nil
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	withCORS(w, r)
	if r.Method == http.MethodOptions {
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req CommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("bad request body: %v", err), http.StatusBadRequest)
		return
	}
	cmd, err := parseCommand(req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result := make(chan bool, 1)
	cmd.Result = result
	if err := s.game.Submit(cmd); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.commandTimeout)
	defer cancel()

	var resp CommandResponse
	select {
	case resp.Applied = <-result:
	case <-ctx.Done():
		http.Error(w, "command timed out", http.StatusGatewayTimeout)
		return
	}
	if err := s.game.Query(ctx, func(e *engine.Engine) {
		resp.Status = e.Status()
		resp.Score = e.Score()
	}); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, resp)
}

// ScoresResponse is the body of GET /api/scores.
type ScoresResponse struct {
	Stats  db.Stats   `json:"stats"`
	Rounds []db.Round `json:"rounds"`
}

func (s *Server) loadScores(limit int) (ScoresResponse, error) {
	resp := ScoresResponse{Rounds: []db.Round{}}
	if s.scores == nil {
		return resp, nil
	}
	stats, err := s.scores.Stats()
	if err != nil {
		return resp, err
	}
	rounds, err := s.scores.RecentRounds(limit)
	if err != nil {
		return resp, err
	}
	resp.Stats = stats
	if rounds != nil {
		resp.Rounds = rounds
	}
	return resp, nil
}

func (s *Server) handleScores(w http.ResponseWriter, r *http.Request) {
	withCORS(w, r)
	if r.Method == http.MethodOptions {
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resp, err := s.loadScores(parseIntQuery(r, "limit", 20))
	if err != nil {
		s.log.Error("load scores failed", "err", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, resp)
}

var scoresPage = template.Must(template.New("scores").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Scores</title></head>
<body>
<h1>Scores</h1>
<p>Rounds played: <span id="rounds">{{.Stats.Rounds}}</span></p>
<p>Best: <span id="best">{{.Stats.Best}}</span></p>
<p>Average: <span id="average">{{printf "%.2f" .Stats.Average}}</span></p>
<table id="scores">
<thead><tr><th>Round</th><th>Score</th><th>Ticks</th><th>Cause</th><th>Board</th><th>Finished</th></tr></thead>
<tbody>
{{- range .Rounds}}
<tr class="round"><td class="round-no">{{.Round}}</td><td class="score">{{.Score}}</td><td>{{.Ticks}}</td><td class="cause">{{.Cause}}</td><td>{{.Width}}x{{.Height}}</td><td>{{.FinishedAt.Format "2006-01-02 15:04:05"}}</td></tr>
{{- else}}
<tr class="empty"><td colspan="6">No rounds yet</td></tr>
{{- end}}
</tbody>
</table>
</body>
</html>
`))

func (s *Server) handleScoresPage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	resp, err := s.loadScores(parseIntQuery(r, "limit", 20))
	if err != nil {
		s.log.Error("load scores failed", "err", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := scoresPage.Execute(w, resp); err != nil {
		s.log.Error("render scores failed", "err", err)
	}
}

// handleWS streams frames. The first message is the full current frame;
// every later one is the frame of a single transition.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	s.hub.serve(w, r, func(register func(first []byte)) error {
		var marshalErr error
		err := s.game.Query(r.Context(), func(e *engine.Engine) {
			b, err := json.Marshal(e.Frame())
			if err != nil {
				marshalErr = err
				return
			}
			register(b)
		})
		return errors.Join(err, marshalErr)
	})
}

func withCORS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	_ = enc.Encode(v)
}

func parseIntQuery(r *http.Request, key string, def int) int {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}
