// Package db keeps the score history of finished rounds in SQLite.
package db

import (
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/brensch/gemsnake/engine"
)

// DB wraps the SQLite connection with thread-safe operations
type DB struct {
	conn *sql.DB
	mu   sync.Mutex
	log  *slog.Logger
}

// Round is one finished round.
type Round struct {
	ID         int64     `json:"id"`
	Round      int       `json:"round"`
	Score      int       `json:"score"`
	Ticks      int       `json:"ticks"`
	Cause      string    `json:"cause"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	FinishedAt time.Time `json:"finished_at"`
}

// Stats summarises the whole history.
type Stats struct {
	Rounds    int     `json:"rounds"`
	Best      int     `json:"best"`
	Average   float64 `json:"average"`
	TotalGems int     `json:"total_gems"`
}

// New opens (or creates) the database at dbPath. ":memory:" works for tests.
func New(dbPath string, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dsn := dbPath + "?_journal_mode=WAL&_synchronous=NORMAL"
	if dbPath == ":memory:" {
		dsn = dbPath
	}
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer; one connection also keeps :memory: alive.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	db := &DB{conn: conn, log: logger.With("component", "db")}
	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, err
	}

	return db, nil
}

func (db *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS rounds (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		round INTEGER NOT NULL,
		score INTEGER NOT NULL,
		ticks INTEGER NOT NULL,
		cause TEXT NOT NULL,
		width INTEGER NOT NULL,
		height INTEGER NOT NULL,
		finished_at INTEGER NOT NULL       -- unix millis
	);

	CREATE INDEX IF NOT EXISTS idx_rounds_score ON rounds(score);
	`

	db.mu.Lock()
	defer db.mu.Unlock()

	if _, err := db.conn.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

// RecordRound inserts r and returns its id. A zero FinishedAt means now.
func (db *DB) RecordRound(r Round) (int64, error) {
	if r.FinishedAt.IsZero() {
		r.FinishedAt = time.Now()
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	res, err := db.conn.Exec(
		`INSERT INTO rounds (round, score, ticks, cause, width, height, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.Round, r.Score, r.Ticks, r.Cause, r.Width, r.Height, r.FinishedAt.UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert round: %w", err)
	}
	return res.LastInsertId()
}

// RecentRounds returns up to limit rounds, newest first.
func (db *DB) RecentRounds(limit int) ([]Round, error) {
	if limit <= 0 {
		limit = 10
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	rows, err := db.conn.Query(
		`SELECT id, round, score, ticks, cause, width, height, finished_at
		 FROM rounds ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query rounds: %w", err)
	}
	defer rows.Close()

	var out []Round
	for rows.Next() {
		var r Round
		var finishedMs int64
		if err := rows.Scan(&r.ID, &r.Round, &r.Score, &r.Ticks, &r.Cause, &r.Width, &r.Height, &finishedMs); err != nil {
			return nil, fmt.Errorf("failed to scan round: %w", err)
		}
		r.FinishedAt = time.UnixMilli(finishedMs)
		out = append(out, r)
	}
	return out, rows.Err()
}

// BestScore returns the highest recorded score, or false with no history.
func (db *DB) BestScore() (int, bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var best sql.NullInt64
	if err := db.conn.QueryRow("SELECT MAX(score) FROM rounds").Scan(&best); err != nil {
		return 0, false, err
	}
	if !best.Valid {
		return 0, false, nil
	}
	return int(best.Int64), true, nil
}

func (db *DB) Stats() (Stats, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var s Stats
	var best, total sql.NullInt64
	var avg sql.NullFloat64
	err := db.conn.QueryRow(
		"SELECT COUNT(*), MAX(score), AVG(score), SUM(score) FROM rounds",
	).Scan(&s.Rounds, &best, &avg, &total)
	if err != nil {
		return s, fmt.Errorf("failed to query stats: %w", err)
	}
	s.Best = int(best.Int64)
	s.Average = avg.Float64
	s.TotalGems = int(total.Int64)
	return s, nil
}

// Observer records every game_over frame as a round. Insert failures are
// logged; the engine has no way to act on them.
func (db *DB) Observer() engine.Observer {
	return engine.ObserverFunc(func(f engine.Frame) {
		if f.Event != engine.EventGameOver || f.FinalScore == nil {
			return
		}
		id, err := db.RecordRound(Round{
			Round:  f.Round,
			Score:  *f.FinalScore,
			Ticks:  f.Tick,
			Cause:  f.Cause,
			Width:  f.Width,
			Height: f.Height,
		})
		if err != nil {
			db.log.Error("record round failed", "round", f.Round, "err", err)
			return
		}
		db.log.Debug("round recorded", "id", id, "round", f.Round, "score", *f.FinalScore)
	})
}
