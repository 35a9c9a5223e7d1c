package snapshot

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriteReadSnapshot(t *testing.T) {
	dir := t.TempDir()
	in := SnapshotV1{
		Header:       Header{ColonyID: 3, Tick: 1200},
		DimNamespace: "minecraft",
		DimPath:      "overworld",
		Height:       16,
		Palette:      []string{"AIR", "STONE"},
		Chunks:       []ChunkV1{{CX: -1, CZ: 2, Blocks: []uint16{0, 1, 1, 0}}},
		State:        []byte{10, 0, 0, 0},
	}
	path := PathFor(dir, in.Header.Tick)
	if err := WriteSnapshot(path, in); err != nil {
		t.Fatalf("write: %v", err)
	}
	out, err := ReadSnapshot(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if out.Header.Version != Version || out.Header.ColonyID != 3 || out.Header.Tick != 1200 {
		t.Fatalf("header=%+v", out.Header)
	}
	if len(out.Chunks) != 1 || out.Chunks[0].CX != -1 || len(out.Chunks[0].Blocks) != 4 {
		t.Fatalf("chunks=%+v", out.Chunks)
	}
	if string(out.State) != string(in.State) || out.DimPath != "overworld" {
		t.Fatalf("snapshot=%+v", out)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temp file left behind: %v", err)
	}
}

func TestLatest(t *testing.T) {
	dir := t.TempDir()
	if got := Latest(dir); got != "" {
		t.Fatalf("empty dir latest=%q", got)
	}
	for _, tick := range []uint64{20, 1000, 300} {
		if err := WriteSnapshot(PathFor(dir, tick), SnapshotV1{Header: Header{Tick: tick}}); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	_ = os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644)
	if got, want := Latest(dir), PathFor(dir, 1000); got != want {
		t.Fatalf("latest=%q want %q", got, want)
	}
	if ticks := List(dir); len(ticks) != 3 || ticks[0] != 20 {
		t.Fatalf("ticks=%v", ticks)
	}
}
