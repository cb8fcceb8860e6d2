package store

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress/zstd"

	"github.com/brensch/gemsnake/engine"
	"github.com/brensch/gemsnake/game"
)

const replaySchema = "replay_frame_v1"

// ReplayRow is one frame of a recorded round.
// Direction uses the game numbering: 0=Up, 1=Down, 2=Left, 3=Right.
type ReplayRow struct {
	Round     int32  `parquet:"round"`
	Tick      int32  `parquet:"tick"`
	Event     string `parquet:"event,dict"`
	Status    string `parquet:"status,dict"`
	Score     int32  `parquet:"score"`
	Direction int32  `parquet:"direction"`
	Width     int32  `parquet:"width"`
	Height    int32  `parquet:"height"`

	HasGem bool  `parquet:"has_gem"`
	GemRow int32 `parquet:"gem_row"`
	GemCol int32 `parquet:"gem_col"`

	// Body is tail first.
	BodyRow []int32 `parquet:"body_row"`
	BodyCol []int32 `parquet:"body_col"`

	Cause  string `parquet:"cause,dict,optional"`
	UnixMs int64  `parquet:"unix_ms"`
}

// ReplayRowFromFrame flattens f.
func ReplayRowFromFrame(f engine.Frame) ReplayRow {
	row := ReplayRow{
		Round:     int32(f.Round),
		Tick:      int32(f.Tick),
		Event:     string(f.Event),
		Status:    f.Status.String(),
		Score:     int32(f.Score),
		Direction: int32(f.Direction),
		Width:     int32(f.Width),
		Height:    int32(f.Height),
		BodyRow:   make([]int32, len(f.Body)),
		BodyCol:   make([]int32, len(f.Body)),
		Cause:     f.Cause,
		UnixMs:    time.Now().UnixMilli(),
	}
	if f.Gem != nil {
		row.HasGem = true
		row.GemRow = int32(f.Gem.Row)
		row.GemCol = int32(f.Gem.Col)
	}
	for i, p := range f.Body {
		row.BodyRow[i] = int32(p.Row)
		row.BodyCol[i] = int32(p.Col)
	}
	return row
}

// Board rebuilds the board the row describes. Rows recorded before the first
// round has a board report 0x0 and fail.
func (r ReplayRow) Board() (*game.Board, error) {
	if r.Width <= 0 || r.Height <= 0 {
		return nil, fmt.Errorf("replay row %d/%d has no board", r.Round, r.Tick)
	}
	if len(r.BodyRow) != len(r.BodyCol) {
		return nil, fmt.Errorf("replay row %d/%d: %d body rows, %d cols", r.Round, r.Tick, len(r.BodyRow), len(r.BodyCol))
	}
	b := game.NewBoard(int(r.Width), int(r.Height))
	for i := range r.BodyRow {
		p := game.Point{Row: int(r.BodyRow[i]), Col: int(r.BodyCol[i])}
		if i == len(r.BodyRow)-1 {
			b.Place(game.Head, p)
		} else {
			b.Place(game.Segment, p)
		}
	}
	if r.HasGem {
		b.PlaceGemAt(game.Point{Row: int(r.GemRow), Col: int(r.GemCol)})
	}
	return b, nil
}

// Recorder is an engine.Observer that writes each round to its own Parquet
// file under dir. A round's file is written into dir/tmp and moved into dir
// once the round ends, so readers never see a partial replay.
type Recorder struct {
	mu     sync.Mutex
	outDir string
	tmpDir string
	log    *slog.Logger

	round   int
	tmpPath string
	outPath string
	file    *os.File
	writer  *parquet.GenericWriter[ReplayRow]
	rows    int

	finished []string
}

func NewRecorder(outDir string, logger *slog.Logger) (*Recorder, error) {
	if outDir == "" {
		return nil, fmt.Errorf("outDir is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	absOut, err := filepath.Abs(outDir)
	if err != nil {
		absOut = outDir
	}
	tmpDir := filepath.Join(absOut, "tmp")
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return nil, fmt.Errorf("create tmp dir: %w", err)
	}

	return &Recorder{
		outDir: absOut,
		tmpDir: tmpDir,
		log:    logger.With("component", "recorder"),
	}, nil
}

// Finished lists the replay files moved into place so far.
func (r *Recorder) Finished() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.finished))
	copy(out, r.finished)
	return out
}

func (r *Recorder) OnFrame(f engine.Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if f.Event == engine.EventStart || f.Round != r.round || r.writer == nil {
		if _, err := r.finalizeLocked(); err != nil {
			r.log.Error("finalize replay failed", "round", r.round, "err", err)
		}
		if err := r.openLocked(f.Round); err != nil {
			r.log.Error("open replay failed", "round", f.Round, "err", err)
			return
		}
	}

	if _, err := r.writer.Write([]ReplayRow{ReplayRowFromFrame(f)}); err != nil {
		r.log.Error("write replay row failed", "round", f.Round, "tick", f.Tick, "err", err)
		return
	}
	r.rows++

	if f.Event == engine.EventGameOver {
		path, err := r.finalizeLocked()
		if err != nil {
			r.log.Error("finalize replay failed", "round", f.Round, "err", err)
			return
		}
		r.log.Info("replay written", "round", f.Round, "path", path)
	}
}

// Close finalizes any round still being recorded.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := r.finalizeLocked()
	return err
}

func (r *Recorder) openLocked(round int) error {
	name := fmt.Sprintf("round_%d_%d.parquet", time.Now().UnixNano(), round)
	tmpPath := filepath.Join(r.tmpDir, name)

	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open tmp parquet: %w", err)
	}

	w := parquet.NewGenericWriter[ReplayRow](
		f,
		parquet.Compression(&zstd.Codec{Level: zstd.SpeedBetterCompression}),
	)
	w.SetKeyValueMetadata("schema", replaySchema)

	r.round = round
	r.tmpPath = tmpPath
	r.outPath = filepath.Join(r.outDir, name)
	r.file = f
	r.writer = w
	r.rows = 0
	return nil
}

// finalizeLocked closes the open file and moves it into outDir. An empty
// round is discarded and reported as "".
func (r *Recorder) finalizeLocked() (string, error) {
	if r.writer == nil && r.file == nil {
		return "", nil
	}

	var closeErr error
	if r.writer != nil {
		closeErr = r.writer.Close()
		r.writer = nil
	}
	var fileErr error
	if r.file != nil {
		_ = r.file.Sync()
		fileErr = r.file.Close()
		r.file = nil
	}
	if closeErr != nil {
		return "", fmt.Errorf("close parquet writer: %w", closeErr)
	}
	if fileErr != nil {
		return "", fmt.Errorf("close parquet file: %w", fileErr)
	}

	if r.rows == 0 {
		_ = os.Remove(r.tmpPath)
		return "", nil
	}
	if err := os.Rename(r.tmpPath, r.outPath); err != nil {
		return "", fmt.Errorf("rename parquet: %w", err)
	}
	r.finished = append(r.finished, r.outPath)
	return r.outPath, nil
}

// ReadReplay returns every frame recorded in the replay at path.
func ReadReplay(path string) ([]ReplayRow, error) {
	return readRows[ReplayRow](path)
}
