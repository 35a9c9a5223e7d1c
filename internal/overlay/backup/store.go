// Package backup stores captured world regions as compressed artifacts so they
// can be put back after an overlay is removed.
//
// An artifact file is a zstd stream holding a JSON header line followed by a
// gob body.
package backup

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/df-mc/dragonfly/server/block/cube"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"colonyevents.ai/internal/overlay/blueprint"
)

const (
	Version = 1
	Ext     = ".blueprint.zst"
)

var ErrNotFound = errors.New("backup: artifact not found")

type Header struct {
	Version    int    `json:"version"`
	CaptureID  string `json:"capture_id"`
	Artifact   string `json:"artifact"`
	Min        [3]int `json:"min"`
	Max        [3]int `json:"max"`
	CapturedAt int64  `json:"captured_at"`
}

type artifactV1 struct {
	Header  Header
	Size    [3]int
	Palette []string
	// Cells index Palette in x, then z, then y order.
	Cells []uint16
}

type FileStore struct {
	Dir string
	Now func() time.Time
}

func NewFileStore(dir string) *FileStore {
	return &FileStore{Dir: dir, Now: time.Now}
}

func (s *FileStore) path(artifact string) (string, error) {
	rel := filepath.FromSlash(artifact)
	if artifact == "" || !filepath.IsLocal(rel) {
		return "", fmt.Errorf("backup: invalid artifact name %q", artifact)
	}
	return filepath.Join(s.Dir, rel+Ext), nil
}

// Save captures [min, max] from r. The artifact is written to a temporary
// file and renamed into place, so a failed save leaves no artifact behind.
func (s *FileStore) Save(r blueprint.World, min, max cube.Pos, artifact string) error {
	path, err := s.path(artifact)
	if err != nil {
		return err
	}
	bp, err := blueprint.Capture(r, artifact, min, max)
	if err != nil {
		return err
	}

	art := artifactV1{
		Header: Header{
			Version:    Version,
			CaptureID:  uuid.NewString(),
			Artifact:   artifact,
			Min:        min,
			Max:        max,
			CapturedAt: s.now().Unix(),
		},
		Size:  bp.Size,
		Cells: make([]uint16, len(bp.Blocks)),
	}
	index := map[string]uint16{}
	for i, b := range bp.Blocks {
		id, ok := index[b.ID]
		if !ok {
			id = uint16(len(art.Palette))
			index[b.ID] = id
			art.Palette = append(art.Palette, b.ID)
		}
		art.Cells[i] = id
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	if err := writeArtifact(tmp, art); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("backup %s: %w", artifact, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return nil
}

func writeArtifact(f *os.File, art artifactV1) error {
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 64*1024)

	hb, _ := json.Marshal(art.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&art); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	return enc.Close()
}

func (s *FileStore) read(artifact string) (artifactV1, error) {
	var art artifactV1
	path, err := s.path(artifact)
	if err != nil {
		return art, err
	}
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return art, fmt.Errorf("%w: %s", ErrNotFound, artifact)
	}
	if err != nil {
		return art, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return art, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 64*1024)
	// The gob body repeats the header.
	if _, err := br.ReadBytes('\n'); err != nil {
		return art, fmt.Errorf("backup %s: header: %w", artifact, err)
	}
	if err := gob.NewDecoder(br).Decode(&art); err != nil {
		return art, fmt.Errorf("backup %s: gob decode: %w", artifact, err)
	}
	if art.Header.Version != Version {
		return art, fmt.Errorf("backup %s: unsupported version %d", artifact, art.Header.Version)
	}
	n := art.Size[0] * art.Size[1] * art.Size[2]
	if len(art.Cells) != n {
		return art, fmt.Errorf("backup %s: %d cells for size %v", artifact, len(art.Cells), art.Size)
	}
	return art, nil
}

// Load places the captured region back so that the floor centre of the
// region lands on anchor. Cells outside a Bounded world are skipped.
func (s *FileStore) Load(w blueprint.World, artifact string, anchor cube.Pos, rot blueprint.Rotation, mirror blueprint.Mirror) (*blueprint.Handle, error) {
	art, err := s.read(artifact)
	if err != nil {
		return nil, err
	}
	sx, sz := art.Size[0], art.Size[2]
	bp := &blueprint.Blueprint{
		Name:    artifact,
		Size:    art.Size,
		Primary: cube.Pos{sx / 2, 0, sz / 2},
		Blocks:  make([]blueprint.Block, 0, len(art.Cells)),
	}
	for i, c := range art.Cells {
		if int(c) >= len(art.Palette) {
			return nil, fmt.Errorf("backup %s: palette index %d out of range", artifact, c)
		}
		x := i % sx
		z := (i / sx) % sz
		y := i / (sx * sz)
		bp.Blocks = append(bp.Blocks, blueprint.Block{Pos: cube.Pos{x, y, z}, ID: art.Palette[c]})
	}
	var dst blueprint.Writer = w
	if b, ok := w.(blueprint.Bounded); ok {
		dst = inBounds{w: w, b: b}
	}
	h, err := bp.Place(dst, anchor, rot, mirror)
	if err != nil {
		return nil, err
	}
	return &h, nil
}

// inBounds drops writes outside the world. Capture reads those cells as air,
// so there is nothing to put back there.
type inBounds struct {
	w blueprint.Writer
	b blueprint.Bounded
}

func (c inBounds) SetBlock(pos cube.Pos, id string) error {
	if !c.b.InBounds(pos) {
		return nil
	}
	return c.w.SetBlock(pos, id)
}

// Delete removes an artifact. Deleting a missing artifact is not an error.
func (s *FileStore) Delete(artifact string) error {
	path, err := s.path(artifact)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Info reads only the header line of an artifact.
func (s *FileStore) Info(artifact string) (Header, error) {
	var h Header
	path, err := s.path(artifact)
	if err != nil {
		return h, err
	}
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return h, fmt.Errorf("%w: %s", ErrNotFound, artifact)
	}
	if err != nil {
		return h, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()

	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("backup %s: header: %w", artifact, err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("backup %s: header: %w", artifact, err)
	}
	return h, nil
}

// List returns every artifact name under the store, sorted.
func (s *FileStore) List() ([]string, error) {
	var out []string
	err := filepath.WalkDir(s.Dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path == s.Dir {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), Ext) {
			return nil
		}
		rel, err := filepath.Rel(s.Dir, path)
		if err != nil {
			return err
		}
		out = append(out, filepath.ToSlash(strings.TrimSuffix(rel, Ext)))
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

func (s *FileStore) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}
