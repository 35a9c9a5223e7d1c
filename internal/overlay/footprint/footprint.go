// Package footprint decides whether a template footprint can be placed at a
// position: solid ground, free headroom and no foreign colony claims.
package footprint

import (
	"fmt"

	"github.com/df-mc/dragonfly/server/block/cube"

	"colonyevents.ai/internal/overlay/blueprint"
)

type Kind int

const (
	NotSolid Kind = iota
	InsideColony
	NeedsAirAbove
)

func (k Kind) String() string {
	switch k {
	case NotSolid:
		return "NOT_SOLID"
	case InsideColony:
		return "INSIDE_COLONY"
	case NeedsAirAbove:
		return "NEEDS_AIR_ABOVE"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

type PlacementError struct {
	Kind Kind
	Pos  cube.Pos
}

func (e PlacementError) String() string {
	return fmt.Sprintf("%s at %d,%d,%d", e.Kind, e.Pos.X(), e.Pos.Y(), e.Pos.Z())
}

type World interface {
	Solid(pos cube.Pos) bool
}

// Ownership reports whether placer may place blocks at pos. Positions outside
// every colony are always placeable.
type Ownership interface {
	CanPlace(pos cube.Pos, placer string) bool
}

type TagLookup interface {
	FirstPosForTag(tag string) (cube.Pos, bool)
}

// Anchored translates a template's local tag positions into world positions
// for a template whose zero corner is at origin.
func Anchored(t TagLookup, origin cube.Pos) TagLookup {
	return anchoredTags{t: t, origin: origin}
}

type anchoredTags struct {
	t      TagLookup
	origin cube.Pos
}

func (a anchoredTags) FirstPosForTag(tag string) (cube.Pos, bool) {
	p, ok := a.t.FirstPosForTag(tag)
	if !ok {
		return cube.Pos{}, false
	}
	return a.origin.Add(p), true
}

type Request struct {
	// Origin is the zero corner of the footprint.
	Origin cube.Pos
	Size   [3]int
	// Tags may be nil.
	Tags   TagLookup
	Placer string
	// Override skips every check.
	Override bool
}

// Check lists every reason the footprint cannot be placed. An empty result
// means placement is legal.
//
// Ground is sampled at Origin.Y unless the footprint tags a ground level, in
// which case that tag's y is used. Headroom errors are reported at Origin.Y.
func Check(w World, owners Ownership, req Request) []PlacementError {
	if req.Override {
		return nil
	}
	ground := req.Origin.Y()
	if req.Tags != nil {
		if p, ok := req.Tags.FirstPosForTag(blueprint.TagGroundLevel); ok {
			ground = p.Y()
		}
	}

	var errs []PlacementError
	for z := req.Origin.Z(); z < req.Origin.Z()+req.Size[2]; z++ {
		for x := req.Origin.X(); x < req.Origin.X()+req.Size[0]; x++ {
			at := cube.Pos{x, ground, z}
			if !w.Solid(at) {
				errs = append(errs, PlacementError{Kind: NotSolid, Pos: at})
			}
			if owners != nil && !owners.CanPlace(at, req.Placer) {
				errs = append(errs, PlacementError{Kind: InsideColony, Pos: at})
			}
			if w.Solid(cube.Pos{x, ground + 1, z}) {
				errs = append(errs, PlacementError{Kind: NeedsAirAbove, Pos: cube.Pos{x, req.Origin.Y(), z}})
			}
		}
	}
	return errs
}

func Legal(errs []PlacementError) bool { return len(errs) == 0 }

const campDistance = 5

// PlanCamp returns where a camp goes when a player facing facing uses the
// deployer on clicked, and how many quarter turns it needs.
func PlanCamp(clicked cube.Pos, facing cube.Direction) (cube.Pos, int) {
	switch facing {
	case cube.South:
		return clicked.Add(cube.Pos{0, 0, campDistance}), 3
	case cube.North:
		return clicked.Add(cube.Pos{0, 0, -campDistance}), 1
	case cube.East:
		return clicked.Add(cube.Pos{campDistance, 0, 0}), 2
	default:
		return clicked.Add(cube.Pos{-campDistance, 0, 0}), 0
	}
}
