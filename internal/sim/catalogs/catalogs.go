package catalogs

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

type Catalogs struct {
	Blocks     BlockCatalog
	Blueprints BlueprintCatalog
	Events     EventCatalog
}

type BlockCatalog struct {
	Palette       []string
	Index         map[string]uint16
	Defs          map[string]BlockDef
	PaletteDigest string
	DefsDigest    string
}

type BlockDef struct {
	ID        string `json:"id"`
	Solid     bool   `json:"solid"`
	Breakable bool   `json:"breakable"`
}

// Solid reports whether the palette id refers to a solid block. Unknown ids are not solid.
func (c *BlockCatalog) Solid(id uint16) bool {
	if int(id) >= len(c.Palette) {
		return false
	}
	return c.Defs[c.Palette[id]].Solid
}

type BlueprintCatalog struct {
	ByID   map[string]BlueprintDef
	Digest string
}

type BlueprintDef struct {
	ID            string              `json:"id"`
	Author        string              `json:"author"`
	Version       string              `json:"version"`
	Size          [3]int              `json:"size"`
	PrimaryOffset [3]int              `json:"primary_offset"`
	GroundLevels  int                 `json:"ground_levels,omitempty"`
	Tags          map[string][][3]int `json:"tags,omitempty"`
	Blocks        []BPBlock           `json:"blocks"`
}

type BPBlock struct {
	Pos   [3]int `json:"pos"`
	Block string `json:"block"`
}

type EventCatalog struct {
	ByID   map[string]EventTemplate
	Digest string
}

type EventTemplate struct {
	ID          string         `json:"id"`
	Category    string         `json:"category"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	BaseWeight  float64        `json:"base_weight"`
	Params      map[string]any `json:"params,omitempty"`
}

// IntParam returns a numeric param, or def when missing or not a positive number.
func (t EventTemplate) IntParam(key string, def int) int {
	v, ok := t.Params[key]
	if !ok {
		return def
	}
	f, ok := v.(float64)
	if !ok || f <= 0 {
		return def
	}
	return int(f)
}

func (t EventTemplate) StringParam(key string) string {
	s, _ := t.Params[key].(string)
	return s
}

func Load(configDir string) (*Catalogs, error) {
	var c Catalogs

	if err := loadBlocks(filepath.Join(configDir, "blocks.json"), &c.Blocks); err != nil {
		return nil, err
	}
	if err := loadBlueprints(filepath.Join(configDir, "blueprints"), &c.Blocks, &c.Blueprints); err != nil {
		return nil, err
	}
	if err := loadEvents(filepath.Join(configDir, "events"), &c.Events); err != nil {
		return nil, err
	}
	return &c, nil
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func loadBlocks(path string, out *BlockCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var defs []BlockDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("blocks.json: %w", err)
	}
	c, err := NewBlockCatalog(defs)
	if err != nil {
		return fmt.Errorf("blocks.json: %w", err)
	}
	*out = c
	out.DefsDigest = sha256Hex(raw)
	return nil
}

// NewBlockCatalog builds a palette from block definitions. AIR must be present
// and always gets palette id 0; the rest are sorted by id.
func NewBlockCatalog(defs []BlockDef) (BlockCatalog, error) {
	var out BlockCatalog
	out.Defs = map[string]BlockDef{}
	for _, d := range defs {
		if d.ID == "" {
			return out, fmt.Errorf("empty id")
		}
		out.Defs[d.ID] = d
	}

	ids := make([]string, 0, len(out.Defs))
	for id := range out.Defs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	if _, ok := out.Defs["AIR"]; !ok {
		return out, fmt.Errorf("missing AIR")
	}
	ids = append([]string{"AIR"}, filterOut(ids, "AIR")...)

	out.Palette = ids
	out.Index = make(map[string]uint16, len(ids))
	for i, id := range ids {
		out.Index[id] = uint16(i)
	}
	palJSON, _ := json.Marshal(ids)
	out.PaletteDigest = sha256Hex(palJSON)
	defsJSON, _ := json.Marshal(defs)
	out.DefsDigest = sha256Hex(defsJSON)
	return out, nil
}

func loadBlueprints(dir string, blocks *BlockCatalog, out *BlueprintCatalog) error {
	out.ByID = map[string]BlueprintDef{}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			out.Digest = sha256Hex(nil)
			return nil
		}
		return err
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(e.Name(), ".json") {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)

	schema, err := blueprintSchema()
	if err != nil {
		return err
	}

	var concat bytes.Buffer
	for _, p := range files {
		b, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		concat.Write(b)
		concat.WriteByte('\n')

		var doc any
		if err := json.Unmarshal(b, &doc); err != nil {
			return fmt.Errorf("blueprint %s: %w", filepath.Base(p), err)
		}
		if err := schema.Validate(doc); err != nil {
			return fmt.Errorf("blueprint %s: %w", filepath.Base(p), err)
		}

		var bp BlueprintDef
		if err := json.Unmarshal(b, &bp); err != nil {
			return fmt.Errorf("blueprint %s: %w", filepath.Base(p), err)
		}
		if err := checkBlueprint(bp, blocks); err != nil {
			return fmt.Errorf("blueprint %s: %w", filepath.Base(p), err)
		}
		out.ByID[bp.ID] = bp
	}
	out.Digest = sha256Hex(concat.Bytes())
	return nil
}

func checkBlueprint(bp BlueprintDef, blocks *BlockCatalog) error {
	for i, blk := range bp.Blocks {
		for axis := 0; axis < 3; axis++ {
			if blk.Pos[axis] < 0 || blk.Pos[axis] >= bp.Size[axis] {
				return fmt.Errorf("block %d at %v outside size %v", i, blk.Pos, bp.Size)
			}
		}
		if blocks != nil {
			if _, ok := blocks.Index[blk.Block]; !ok {
				return fmt.Errorf("block %d: unknown block %q", i, blk.Block)
			}
		}
	}
	return nil
}

func loadEvents(dir string, out *EventCatalog) error {
	out.ByID = map[string]EventTemplate{}

	if _, err := os.Stat(dir); err != nil && os.IsNotExist(err) {
		out.Digest = sha256Hex(nil)
		return nil
	}

	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.HasSuffix(d.Name(), ".json") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return err
	}
	sort.Strings(files)

	var concat bytes.Buffer
	for _, p := range files {
		b, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		concat.Write(b)
		concat.WriteByte('\n')

		var ev EventTemplate
		if err := json.Unmarshal(b, &ev); err != nil {
			return fmt.Errorf("event %s: %w", filepath.Base(p), err)
		}
		if ev.ID == "" {
			return fmt.Errorf("event %s: missing id", filepath.Base(p))
		}
		out.ByID[ev.ID] = ev
	}
	out.Digest = sha256Hex(concat.Bytes())
	return nil
}

func filterOut(in []string, remove string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == remove {
			continue
		}
		out = append(out, s)
	}
	return out
}
