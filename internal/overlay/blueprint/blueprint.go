// Package blueprint models placeable block templates: their footprint
// metadata, quarter-turn and mirror transforms, and placement into a world.
package blueprint

import (
	"fmt"

	"github.com/df-mc/dragonfly/server/block/cube"

	"colonyevents.ai/internal/sim/catalogs"
)

// TagGroundLevel marks the ground layer of a template.
const TagGroundLevel = "groundlevel"

// Air is the block id written for empty cells of a captured region.
const Air = "AIR"

type Block struct {
	Pos cube.Pos
	ID  string
}

// Blueprint is a sparse block template. Positions are local to the
// template's zero corner and lie in [0, Size).
type Blueprint struct {
	Name    string
	Size    [3]int
	Primary cube.Pos
	// GroundLevelCount is the declared number of ground layers; 0 means undeclared.
	GroundLevelCount int
	Tags             map[string][]cube.Pos
	Blocks           []Block
}

// Owner identifies who an overlay was placed for.
type Owner struct {
	ColonyID int
	EventID  int
}

// Handle describes a completed placement.
type Handle struct {
	Name     string
	Anchor   cube.Pos
	Min      cube.Pos
	Max      cube.Pos
	Rotation Rotation
	Mirror   Mirror
	Blocks   int
	Owner    Owner
}

// Footprint is the metadata needed to position a template without reading
// its blocks.
type Footprint interface {
	Dimensions() [3]int
	PrimaryBlockOffset() cube.Pos
	GroundLevels(def int) int
}

type Reader interface {
	BlockAt(pos cube.Pos) string
}

type Writer interface {
	SetBlock(pos cube.Pos, id string) error
}

type World interface {
	Reader
	Writer
}

// Bounded is implemented by worlds with a finite height.
type Bounded interface {
	InBounds(pos cube.Pos) bool
}

func FromDef(def catalogs.BlueprintDef) *Blueprint {
	bp := &Blueprint{
		Name:             def.ID,
		Size:             def.Size,
		Primary:          cube.Pos(def.PrimaryOffset),
		GroundLevelCount: def.GroundLevels,
		Blocks:           make([]Block, 0, len(def.Blocks)),
	}
	if len(def.Tags) > 0 {
		bp.Tags = make(map[string][]cube.Pos, len(def.Tags))
		for tag, ps := range def.Tags {
			for _, p := range ps {
				bp.Tags[tag] = append(bp.Tags[tag], cube.Pos(p))
			}
		}
	}
	for _, b := range def.Blocks {
		bp.Blocks = append(bp.Blocks, Block{Pos: cube.Pos(b.Pos), ID: b.Block})
	}
	return bp
}

func (b *Blueprint) Dimensions() [3]int { return b.Size }

func (b *Blueprint) PrimaryBlockOffset() cube.Pos { return b.Primary }

// GroundLevels returns the declared ground layer count. Without a declaration
// the first groundlevel tag decides (its y plus one), and def is used when
// neither exists.
func (b *Blueprint) GroundLevels(def int) int {
	if b.GroundLevelCount > 0 {
		return b.GroundLevelCount
	}
	if p, ok := b.FirstPosForTag(TagGroundLevel); ok {
		return p.Y() + 1
	}
	return def
}

func (b *Blueprint) FirstPosForTag(tag string) (cube.Pos, bool) {
	ps := b.Tags[tag]
	if len(ps) == 0 {
		return cube.Pos{}, false
	}
	return ps[0], true
}

// Transformed returns a copy mirrored and then rotated clockwise.
func (b *Blueprint) Transformed(rot Rotation, mirror Mirror) *Blueprint {
	out := &Blueprint{
		Name:             b.Name,
		Size:             transformSize(b.Size, rot),
		Primary:          transformPos(b.Primary, b.Size, rot, mirror),
		GroundLevelCount: b.GroundLevelCount,
		Blocks:           make([]Block, len(b.Blocks)),
	}
	for i, blk := range b.Blocks {
		out.Blocks[i] = Block{Pos: transformPos(blk.Pos, b.Size, rot, mirror), ID: blk.ID}
	}
	if len(b.Tags) > 0 {
		out.Tags = make(map[string][]cube.Pos, len(b.Tags))
		for tag, ps := range b.Tags {
			moved := make([]cube.Pos, len(ps))
			for i, p := range ps {
				moved[i] = transformPos(p, b.Size, rot, mirror)
			}
			out.Tags[tag] = moved
		}
	}
	return out
}

// Place writes the transformed blueprint so that its primary block lands on at.
func (b *Blueprint) Place(w Writer, at cube.Pos, rot Rotation, mirror Mirror) (Handle, error) {
	t := b.Transformed(rot, mirror)
	zero := at.Sub(t.Primary)
	h := Handle{
		Name:     b.Name,
		Anchor:   at,
		Min:      zero,
		Max:      zero.Add(cube.Pos{t.Size[0] - 1, t.Size[1] - 1, t.Size[2] - 1}),
		Rotation: rot,
		Mirror:   mirror,
	}
	for _, blk := range t.Blocks {
		if err := w.SetBlock(zero.Add(blk.Pos), blk.ID); err != nil {
			return h, fmt.Errorf("place %s: %w", b.Name, err)
		}
		h.Blocks++
	}
	return h, nil
}

// Capture copies every cell of the inclusive region [min, max], air included.
// The primary offset of the result is the horizontal centre of its floor.
func Capture(r Reader, name string, min, max cube.Pos) (*Blueprint, error) {
	size := [3]int{max[0] - min[0] + 1, max[1] - min[1] + 1, max[2] - min[2] + 1}
	if size[0] <= 0 || size[1] <= 0 || size[2] <= 0 {
		return nil, fmt.Errorf("capture %s: empty region %v..%v", name, min, max)
	}
	bp := &Blueprint{
		Name:    name,
		Size:    size,
		Primary: cube.Pos{size[0] / 2, 0, size[2] / 2},
		Blocks:  make([]Block, 0, size[0]*size[1]*size[2]),
	}
	for y := 0; y < size[1]; y++ {
		for z := 0; z < size[2]; z++ {
			for x := 0; x < size[0]; x++ {
				local := cube.Pos{x, y, z}
				bp.Blocks = append(bp.Blocks, Block{Pos: local, ID: r.BlockAt(min.Add(local))})
			}
		}
	}
	return bp, nil
}
