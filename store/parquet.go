// Package store persists rounds as Parquet files: the durable save slot and
// per-round replays.
package store

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress/zstd"

	"github.com/brensch/gemsnake/engine"
	"github.com/brensch/gemsnake/game"
)

const snapshotSchema = "snapshot_v1"

// ErrNoSnapshot is returned by ReadSnapshot when nothing has been saved yet.
var ErrNoSnapshot = errors.New("no saved snapshot")

// SnapshotRow is the on-disk form of an engine.Snapshot. A snapshot file holds
// exactly one row.
type SnapshotRow struct {
	Width  int32 `parquet:"width"`
	Height int32 `parquet:"height"`
	Score  int32 `parquet:"score"`
	Ticks  int32 `parquet:"ticks"`

	TickIntervalNs int64 `parquet:"tick_interval_ns"`

	HasGem bool  `parquet:"has_gem"`
	GemRow int32 `parquet:"gem_row"`
	GemCol int32 `parquet:"gem_col"`

	Bodies []BodyRow `parquet:"bodies"`

	SavedAtMs int64 `parquet:"saved_at_ms"`
}

// BodyRow holds one body, segments ordered tail first.
type BodyRow struct {
	ID        int32   `parquet:"id"`
	Direction int32   `parquet:"direction"`
	Previous  int32   `parquet:"previous"`
	SegRow    []int32 `parquet:"seg_row"`
	SegCol    []int32 `parquet:"seg_col"`
}

// EncodeSnapshot flattens s into a row.
func EncodeSnapshot(s engine.Snapshot) SnapshotRow {
	row := SnapshotRow{
		Width:          int32(s.Width),
		Height:         int32(s.Height),
		Score:          int32(s.Score),
		Ticks:          int32(s.Ticks),
		TickIntervalNs: s.TickInterval.Nanoseconds(),
		HasGem:         s.HasGem,
		GemRow:         int32(s.Gem.Row),
		GemCol:         int32(s.Gem.Col),
		Bodies:         make([]BodyRow, 0, len(s.Bodies)),
		SavedAtMs:      time.Now().UnixMilli(),
	}
	for _, b := range s.Bodies {
		br := BodyRow{
			ID:        int32(b.ID),
			Direction: int32(b.Direction),
			Previous:  int32(b.Previous),
			SegRow:    make([]int32, len(b.Segments)),
			SegCol:    make([]int32, len(b.Segments)),
		}
		for i, p := range b.Segments {
			br.SegRow[i] = int32(p.Row)
			br.SegCol[i] = int32(p.Col)
		}
		row.Bodies = append(row.Bodies, br)
	}
	return row
}

// DecodeSnapshot rebuilds a snapshot from row and validates it.
func DecodeSnapshot(row SnapshotRow) (engine.Snapshot, error) {
	s := engine.Snapshot{
		Width:        int(row.Width),
		Height:       int(row.Height),
		Score:        int(row.Score),
		Ticks:        int(row.Ticks),
		TickInterval: time.Duration(row.TickIntervalNs),
		HasGem:       row.HasGem,
		Gem:          game.Point{Row: int(row.GemRow), Col: int(row.GemCol)},
		Bodies:       make([]engine.BodySnapshot, 0, len(row.Bodies)),
	}
	for _, br := range row.Bodies {
		if len(br.SegRow) != len(br.SegCol) {
			return engine.Snapshot{}, fmt.Errorf("%w: body %d has %d rows and %d cols",
				engine.ErrInvalidSnapshot, br.ID, len(br.SegRow), len(br.SegCol))
		}
		segs := make([]game.Point, len(br.SegRow))
		for i := range segs {
			segs[i] = game.Point{Row: int(br.SegRow[i]), Col: int(br.SegCol[i])}
		}
		s.Bodies = append(s.Bodies, engine.BodySnapshot{
			ID:        int(br.ID),
			Segments:  segs,
			Direction: game.Direction(br.Direction),
			Previous:  game.Direction(br.Previous),
		})
	}
	if err := s.Validate(); err != nil {
		return engine.Snapshot{}, err
	}
	return s, nil
}

// WriteSnapshot replaces the file at path with s. The file is written next to
// path and renamed into place so a crash never leaves a torn save.
func WriteSnapshot(path string, s engine.Snapshot) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	tmpPath := path + ".tmp"
	_ = os.Remove(tmpPath)

	if err := parquet.WriteFile(tmpPath, []SnapshotRow{EncodeSnapshot(s)},
		parquet.Compression(&zstd.Codec{Level: zstd.SpeedBetterCompression}),
		parquet.KeyValueMetadata("schema", snapshotSchema),
	); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write parquet: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename parquet: %w", err)
	}
	return nil
}

// ReadSnapshot loads the snapshot saved at path. A missing file is
// ErrNoSnapshot.
func ReadSnapshot(path string) (engine.Snapshot, error) {
	rows, err := readRows[SnapshotRow](path)
	if errors.Is(err, os.ErrNotExist) {
		return engine.Snapshot{}, ErrNoSnapshot
	}
	if err != nil {
		return engine.Snapshot{}, err
	}
	if len(rows) != 1 {
		return engine.Snapshot{}, fmt.Errorf("%w: %s holds %d rows", engine.ErrInvalidSnapshot, path, len(rows))
	}
	return DecodeSnapshot(rows[0])
}

func readRows[T any](path string) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}

	pf, err := parquet.OpenFile(f, stat.Size())
	if err != nil {
		return nil, fmt.Errorf("open parquet %s: %w", path, err)
	}

	reader := parquet.NewGenericReader[T](pf)
	defer reader.Close()

	out := make([]T, 0, int(reader.NumRows()))
	buf := make([]T, 256)
	for {
		n, err := reader.Read(buf)
		if n > 0 {
			out = append(out, buf[:n]...)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read parquet %s: %w", path, err)
		}
		if n == 0 {
			break
		}
	}
	return out, nil
}
