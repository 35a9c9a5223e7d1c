// Package colony holds colony land claims and the permissions they grant.
package colony

import (
	"sort"

	"github.com/df-mc/dragonfly/server/block/cube"

	"colonyevents.ai/internal/sim/voxel"
)

type Action int

const (
	ActionPlaceBlocks Action = iota + 1
	ActionBreakBlocks
	ActionAttack
	ActionTrade
)

type Flags struct {
	AllowBuild  bool
	AllowBreak  bool
	AllowDamage bool
	AllowTrade  bool
}

type Permissions struct {
	CanBuild  bool
	CanBreak  bool
	CanDamage bool
	CanTrade  bool
}

// WildPermissions apply outside of any colony.
func WildPermissions() Permissions {
	return Permissions{
		CanBuild:  true,
		CanBreak:  true,
		CanDamage: false,
		CanTrade:  true,
	}
}

func PermissionsFor(isMember bool, flags Flags) Permissions {
	if isMember {
		return Permissions{
			CanBuild:  true,
			CanBreak:  true,
			CanDamage: flags.AllowDamage,
			CanTrade:  true,
		}
	}
	return Permissions{
		CanBuild:  flags.AllowBuild,
		CanBreak:  flags.AllowBreak,
		CanDamage: flags.AllowDamage,
		CanTrade:  flags.AllowTrade,
	}
}

func (p Permissions) Allows(a Action) bool {
	switch a {
	case ActionPlaceBlocks:
		return p.CanBuild
	case ActionBreakBlocks:
		return p.CanBreak
	case ActionAttack:
		return p.CanDamage
	case ActionTrade:
		return p.CanTrade
	default:
		return false
	}
}

type Colony struct {
	ID        int
	Name      string
	Owner     string
	Members   map[string]bool
	Dimension voxel.Dimension
	Center    cube.Pos
	Radius    int // square radius in blocks
	Flags     Flags
}

func (c *Colony) Contains(dim voxel.Dimension, pos cube.Pos) bool {
	if c == nil || c.Dimension != dim {
		return false
	}
	dx := pos.X() - c.Center.X()
	if dx < 0 {
		dx = -dx
	}
	dz := pos.Z() - c.Center.Z()
	if dz < 0 {
		dz = -dz
	}
	return dx <= c.Radius && dz <= c.Radius
}

func (c *Colony) IsMember(actor string) bool {
	if c == nil {
		return false
	}
	return c.Owner == actor || c.Members[actor]
}

func (c *Colony) HasPermission(actor string, a Action) bool {
	return PermissionsFor(c.IsMember(actor), c.Flags).Allows(a)
}

// Directory resolves positions to the colony claiming them.
type Directory struct {
	byID map[int]*Colony
}

func NewDirectory(colonies ...*Colony) *Directory {
	d := &Directory{byID: map[int]*Colony{}}
	for _, c := range colonies {
		d.Add(c)
	}
	return d
}

func (d *Directory) Add(c *Colony) {
	if c == nil {
		return
	}
	d.byID[c.ID] = c
}

func (d *Directory) ByID(id int) (*Colony, bool) {
	c, ok := d.byID[id]
	return c, ok
}

// ColonyAt returns the claiming colony with the lowest id, or nil in the wild.
func (d *Directory) ColonyAt(dim voxel.Dimension, pos cube.Pos) *Colony {
	for _, id := range d.sortedIDs() {
		if c := d.byID[id]; c.Contains(dim, pos) {
			return c
		}
	}
	return nil
}

// Permits reports whether actor may perform a at pos. Unclaimed land is wild.
func (d *Directory) Permits(dim voxel.Dimension, pos cube.Pos, actor string, a Action) bool {
	c := d.ColonyAt(dim, pos)
	if c == nil {
		return WildPermissions().Allows(a)
	}
	return c.HasPermission(actor, a)
}

func (d *Directory) sortedIDs() []int {
	ids := make([]int, 0, len(d.byID))
	for id := range d.byID {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Claims is the view of a directory inside one dimension.
type Claims struct {
	Dir *Directory
	Dim voxel.Dimension
}

// CanPlace reports whether placer may place blocks at pos.
func (c Claims) CanPlace(pos cube.Pos, placer string) bool {
	return c.Dir.Permits(c.Dim, pos, placer, ActionPlaceBlocks)
}
