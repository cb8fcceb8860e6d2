package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/brensch/gemsnake/game"
	"github.com/brensch/gemsnake/store"
)

func main() {
	dir := flag.String("dir", "", "Print a one-line summary of every replay in this directory")
	boards := flag.Bool("boards", true, "Draw the board for every frame")
	asJSON := flag.Bool("json", false, "Emit frames as JSON lines instead of text")
	flag.Parse()

	if *dir != "" {
		summarize(*dir)
		return
	}
	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: replaydump [-boards=false] [-json] <replay.parquet>")
		fmt.Fprintln(os.Stderr, "       replaydump -dir <replay-dir>")
		os.Exit(2)
	}

	rows, err := store.ReadReplay(flag.Arg(0))
	if err != nil {
		log.Fatalf("Failed to read replay: %v", err)
	}
	if len(rows) == 0 {
		log.Fatalf("Replay %s is empty", flag.Arg(0))
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		for _, r := range rows {
			if err := enc.Encode(r); err != nil {
				log.Fatalf("Failed to encode frame: %v", err)
			}
		}
		return
	}

	for _, r := range rows {
		dir := game.Direction(r.Direction)
		line := fmt.Sprintf("Round %d tick %3d | %-9s | %-9s | score %3d | len %3d | heading %-5s",
			r.Round, r.Tick, r.Event, r.Status, r.Score, len(r.BodyRow), dir)
		if r.Cause != "" {
			line += " | cause " + r.Cause
		}
		fmt.Println(line)

		if !*boards {
			continue
		}
		b, err := r.Board()
		if err != nil {
			log.Printf("  (no board: %v)", err)
			continue
		}
		for _, l := range strings.Split(strings.TrimRight(b.String(), "\n"), "\n") {
			fmt.Println("  " + l)
		}
	}
}

func summarize(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		log.Fatalf("Failed to read dir: %v", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".parquet") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		rows, err := store.ReadReplay(filepath.Join(dir, name))
		if err != nil {
			log.Printf("%s: %v", name, err)
			continue
		}
		if len(rows) == 0 {
			fmt.Printf("%s: empty\n", name)
			continue
		}
		last := rows[len(rows)-1]
		fmt.Printf("%s: round %d, %d frames, %d ticks, score %d, %dx%d, ended %s %s\n",
			name, last.Round, len(rows), last.Tick, last.Score, last.Width, last.Height, last.Event, last.Cause)
	}
}
