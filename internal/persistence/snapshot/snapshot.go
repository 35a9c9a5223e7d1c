// Package snapshot writes and reads colony snapshots: the voxel chunks plus the
// colony's tagged state (overlay registry and live events).
package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"
)

const (
	Version = 1
	Ext     = ".snap.zst"
)

type Header struct {
	Version  int    `json:"version"`
	ColonyID int    `json:"colony_id"`
	Tick     uint64 `json:"tick"`
}

type SnapshotV1 struct {
	Header Header `json:"header"`

	DimNamespace string `json:"dim_namespace"`
	DimPath      string `json:"dim_path"`
	MinY         int    `json:"min_y"`
	Height       int    `json:"height"`
	SurfaceY     int    `json:"surface_y"`

	// Palette is the block palette the chunk ids refer to.
	Palette       []string `json:"palette"`
	PaletteDigest string   `json:"palette_digest"`
	WorldDigest   string   `json:"world_digest"`

	Chunks []ChunkV1 `json:"chunks"`

	// State is the little-endian NBT colony compound.
	State []byte `json:"state"`
}

type ChunkV1 struct {
	CX     int      `json:"cx"`
	CZ     int      `json:"cz"`
	Blocks []uint16 `json:"blocks"`
}

// PathFor names the snapshot taken at tick inside dir.
func PathFor(dir string, tick uint64) string {
	return filepath.Join(dir, fmt.Sprintf("%d%s", tick, Ext))
}

// Latest returns the snapshot with the highest tick in dir, or "" when there is
// none.
func Latest(dir string) string {
	ticks := List(dir)
	if len(ticks) == 0 {
		return ""
	}
	return PathFor(dir, ticks[len(ticks)-1])
}

// List returns the ticks of every snapshot in dir, ascending.
func List(dir string) []uint64 {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var out []uint64
	for _, e := range ents {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, Ext) {
			continue
		}
		tick, err := strconv.ParseUint(strings.TrimSuffix(name, Ext), 10, 64)
		if err != nil {
			continue
		}
		out = append(out, tick)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}

	if err := encode(f, &snap); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func encode(f *os.File, snap *SnapshotV1) error {
	if snap.Header.Version == 0 {
		snap.Header.Version = Version
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}
	if err := gob.NewEncoder(bw).Encode(snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	return enc.Close()
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// The gob body carries the header too.
	_, _ = br.ReadBytes('\n')

	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("snapshot %s: unsupported version %d", path, snap.Header.Version)
	}
	return snap, nil
}
