package store

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/brensch/gemsnake/engine"
	"github.com/brensch/gemsnake/game"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleSnapshot() engine.Snapshot {
	return engine.Snapshot{
		Width:  10,
		Height: 10,
		Bodies: []engine.BodySnapshot{{
			ID:        game.PrimaryBody,
			Segments:  []game.Point{{Row: 5, Col: 3}, {Row: 5, Col: 4}, {Row: 5, Col: 5}},
			Direction: game.Up,
			Previous:  game.Right,
		}},
		Gem:          game.Point{Row: 1, Col: 1},
		HasGem:       true,
		Score:        2,
		TickInterval: 50 * time.Millisecond,
		Ticks:        7,
	}
}

func TestSnapshot_WriteRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "saves", "slot.parquet")
	want := sampleSnapshot()

	if err := WriteSnapshot(path, want); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("tmp file left behind: %v", err)
	}

	got, err := ReadSnapshot(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("snapshot mismatch\n got=%+v\nwant=%+v", got, want)
	}
}

func TestSnapshot_OverwriteKeepsLatest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "slot.parquet")
	first := sampleSnapshot()
	if err := WriteSnapshot(path, first); err != nil {
		t.Fatalf("write first: %v", err)
	}

	second := sampleSnapshot()
	second.Ticks = 42
	second.Gem = game.Point{Row: 9, Col: 9}
	second.TickInterval = time.Second / 30
	if err := WriteSnapshot(path, second); err != nil {
		t.Fatalf("write second: %v", err)
	}

	got, err := ReadSnapshot(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Ticks != 42 || got.Gem != second.Gem {
		t.Fatalf("got ticks=%d gem=%v want ticks=42 gem=%v", got.Ticks, got.Gem, second.Gem)
	}
	if got.TickInterval != second.TickInterval {
		t.Fatalf("interval got=%v want=%v", got.TickInterval, second.TickInterval)
	}
}

func TestSnapshot_MissingFile(t *testing.T) {
	_, err := ReadSnapshot(filepath.Join(t.TempDir(), "nope.parquet"))
	if !errors.Is(err, ErrNoSnapshot) {
		t.Fatalf("err got=%v want=%v", err, ErrNoSnapshot)
	}
}

func TestSnapshot_InvalidRefused(t *testing.T) {
	path := filepath.Join(t.TempDir(), "slot.parquet")
	bad := sampleSnapshot()
	bad.Score = 5 // length 3 cannot have score 5

	if err := WriteSnapshot(path, bad); !errors.Is(err, engine.ErrInvalidSnapshot) {
		t.Fatalf("write err got=%v want=%v", err, engine.ErrInvalidSnapshot)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("invalid snapshot was written: %v", err)
	}

	row := EncodeSnapshot(sampleSnapshot())
	row.Bodies[0].SegCol = row.Bodies[0].SegCol[:1]
	if _, err := DecodeSnapshot(row); !errors.Is(err, engine.ErrInvalidSnapshot) {
		t.Fatalf("decode err got=%v want=%v", err, engine.ErrInvalidSnapshot)
	}
}

func TestRecorder_WritesOneFilePerRound(t *testing.T) {
	dir := t.TempDir()
	rec, err := NewRecorder(dir, testLogger())
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	defer rec.Close()

	cfg := engine.Config{BoardWidth: 6, BoardHeight: 6, TickInterval: time.Millisecond, Seed: 11}
	e, err := engine.New(cfg, testLogger())
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	e.AddObserver(rec)

	for round := 1; round <= 2; round++ {
		next, ok := e.Start()
		if !ok {
			t.Fatalf("round %d: start refused", round)
		}
		for i := 0; ; i++ {
			if i > 100 {
				t.Fatalf("round %d never ended", round)
			}
			rep, ok := e.Tick(next.Token)
			if !ok {
				t.Fatalf("round %d: tick %d rejected", round, i)
			}
			if rep.GameOver {
				break
			}
			next = rep.Next
		}
	}

	files := rec.Finished()
	if len(files) != 2 {
		t.Fatalf("finished files got=%d want=2: %v", len(files), files)
	}
	leftovers, _ := os.ReadDir(filepath.Join(dir, "tmp"))
	if len(leftovers) != 0 {
		t.Fatalf("tmp not empty: %d entries", len(leftovers))
	}

	rows, err := ReadReplay(files[1])
	if err != nil {
		t.Fatalf("read replay: %v", err)
	}
	t.Logf("round 2 replay: %d rows, last=%+v", len(rows), rows[len(rows)-1])

	if rows[0].Event != string(engine.EventStart) || rows[0].Round != 2 {
		t.Fatalf("first row got event=%s round=%d want start/2", rows[0].Event, rows[0].Round)
	}
	last := rows[len(rows)-1]
	if last.Event != string(engine.EventGameOver) {
		t.Fatalf("last event got=%s want=%s", last.Event, engine.EventGameOver)
	}
	if last.Cause != "wall" {
		t.Fatalf("cause got=%q want=%q", last.Cause, "wall")
	}
	if len(rows) != int(last.Tick)+1 {
		t.Fatalf("rows got=%d want ticks+1=%d", len(rows), last.Tick+1)
	}
	for i, r := range rows {
		if len(r.BodyRow) != int(r.Score)+1 {
			t.Fatalf("row %d: body len %d with score %d", i, len(r.BodyRow), r.Score)
		}
	}

	b, err := rows[0].Board()
	if err != nil {
		t.Fatalf("rebuild board: %v", err)
	}
	t.Logf("start board:\n%s", b)
	if b.Count(game.Head) != 1 || b.Count(game.Gem) != 1 || b.Width() != 6 {
		t.Fatalf("rebuilt board wrong:\n%s", b)
	}
}

func TestRecorder_CloseFinalizesOpenRound(t *testing.T) {
	dir := t.TempDir()
	rec, err := NewRecorder(dir, testLogger())
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}

	rec.OnFrame(engine.Frame{Event: engine.EventStart, Round: 1, Status: engine.Running, Width: 4, Height: 4,
		Body: []game.Point{{Row: 2, Col: 2}}})
	rec.OnFrame(engine.Frame{Event: engine.EventTick, Round: 1, Tick: 1, Status: engine.Running, Width: 4, Height: 4,
		Body: []game.Point{{Row: 2, Col: 3}}})

	if got := len(rec.Finished()); got != 0 {
		t.Fatalf("finished before close: %d", got)
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	files := rec.Finished()
	if len(files) != 1 {
		t.Fatalf("finished got=%d want=1", len(files))
	}
	rows, err := ReadReplay(files[0])
	if err != nil {
		t.Fatalf("read replay: %v", err)
	}
	if len(rows) != 2 || rows[1].BodyCol[0] != 3 {
		t.Fatalf("unexpected rows: %+v", rows)
	}
}
