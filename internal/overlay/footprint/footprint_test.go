package footprint

import (
	"testing"

	"github.com/df-mc/dragonfly/server/block/cube"

	"colonyevents.ai/internal/overlay/blueprint"
)

type solidSet map[cube.Pos]bool

func (s solidSet) Solid(p cube.Pos) bool { return s[p] }

type denyAt map[cube.Pos]bool

func (d denyAt) CanPlace(p cube.Pos, _ string) bool { return !d[p] }

func stoneFloor(origin cube.Pos, sx, sz int) solidSet {
	s := solidSet{}
	for x := 0; x < sx; x++ {
		for z := 0; z < sz; z++ {
			s[origin.Add(cube.Pos{x, 0, z})] = true
		}
	}
	return s
}

func TestCheck_InsideColony(t *testing.T) {
	origin := cube.Pos{0, 64, 0}
	w := stoneFloor(origin, 3, 3)
	owners := denyAt{{1, 64, 1}: true}

	errs := Check(w, owners, Request{Origin: origin, Size: [3]int{3, 1, 3}, Placer: "mallory"})
	if len(errs) != 1 {
		t.Fatalf("errs=%v", errs)
	}
	if errs[0] != (PlacementError{Kind: InsideColony, Pos: cube.Pos{1, 64, 1}}) {
		t.Fatalf("got %v", errs[0])
	}
}

func TestCheck_NeedsAirAboveReportedAtOriginHeight(t *testing.T) {
	origin := cube.Pos{0, 64, 0}
	w := stoneFloor(origin, 3, 3)
	w[cube.Pos{2, 65, 0}] = true

	errs := Check(w, denyAt{}, Request{Origin: origin, Size: [3]int{3, 1, 3}})
	if len(errs) != 1 || errs[0] != (PlacementError{Kind: NeedsAirAbove, Pos: cube.Pos{2, 64, 0}}) {
		t.Fatalf("errs=%v", errs)
	}
}

func TestCheck_NotSolidAndInsideColonyFireTogether(t *testing.T) {
	origin := cube.Pos{0, 64, 0}
	w := stoneFloor(origin, 2, 1)
	delete(w, cube.Pos{1, 64, 0})
	owners := denyAt{{1, 64, 0}: true}

	errs := Check(w, owners, Request{Origin: origin, Size: [3]int{2, 1, 1}})
	if len(errs) != 2 || errs[0].Kind != NotSolid || errs[1].Kind != InsideColony {
		t.Fatalf("errs=%v", errs)
	}
	if errs[0].Pos != errs[1].Pos {
		t.Fatalf("both errors should name the same cell: %v", errs)
	}
}

func TestCheck_GroundLevelTag(t *testing.T) {
	origin := cube.Pos{0, 64, 0}
	bp := &blueprint.Blueprint{Tags: map[string][]cube.Pos{blueprint.TagGroundLevel: {{0, 60, 0}}}}
	w := stoneFloor(cube.Pos{0, 60, 0}, 2, 2)

	if errs := Check(w, nil, Request{Origin: origin, Size: [3]int{2, 1, 2}, Tags: bp}); !Legal(errs) {
		t.Fatalf("errs=%v", errs)
	}
	if errs := Check(w, nil, Request{Origin: origin, Size: [3]int{2, 1, 2}}); len(errs) != 4 {
		t.Fatalf("without tag expected 4 NOT_SOLID, got %v", errs)
	}
}

func TestAnchored(t *testing.T) {
	bp := &blueprint.Blueprint{Tags: map[string][]cube.Pos{blueprint.TagGroundLevel: {{0, 1, 0}}}}
	p, ok := Anchored(bp, cube.Pos{10, 63, -4}).FirstPosForTag(blueprint.TagGroundLevel)
	if !ok || p != (cube.Pos{10, 64, -4}) {
		t.Fatalf("anchored=%v ok=%v", p, ok)
	}
	if _, ok := Anchored(bp, cube.Pos{}).FirstPosForTag("missing"); ok {
		t.Fatalf("missing tag found")
	}
}

func TestCheck_OverrideIgnoresWorld(t *testing.T) {
	errs := Check(solidSet{}, denyAt{}, Request{Origin: cube.Pos{0, 64, 0}, Size: [3]int{4, 1, 4}, Override: true})
	if !Legal(errs) {
		t.Fatalf("override should allow placement: %v", errs)
	}
}

func TestCheck_EmptyOnlyWhenEverythingPasses(t *testing.T) {
	origin := cube.Pos{5, 10, -5}
	size := [3]int{4, 2, 3}
	w := stoneFloor(origin, 4, 3)
	if errs := Check(w, denyAt{}, Request{Origin: origin, Size: size}); !Legal(errs) {
		t.Fatalf("clean footprint rejected: %v", errs)
	}
	for x := 0; x < 4; x++ {
		for z := 0; z < 3; z++ {
			cell := origin.Add(cube.Pos{x, 0, z})
			w[cell] = false
			if errs := Check(w, denyAt{}, Request{Origin: origin, Size: size}); len(errs) != 1 || errs[0].Kind != NotSolid {
				t.Fatalf("hole at %v: errs=%v", cell, errs)
			}
			w[cell] = true
		}
	}
}

func TestPlanCamp(t *testing.T) {
	clicked := cube.Pos{10, 64, 10}
	cases := []struct {
		dir  cube.Direction
		pos  cube.Pos
		rots int
	}{
		{cube.South, cube.Pos{10, 64, 15}, 3},
		{cube.North, cube.Pos{10, 64, 5}, 1},
		{cube.East, cube.Pos{15, 64, 10}, 2},
		{cube.West, cube.Pos{5, 64, 10}, 0},
	}
	for _, c := range cases {
		pos, rots := PlanCamp(clicked, c.dir)
		if pos != c.pos || rots != c.rots {
			t.Fatalf("%v: got %v/%d want %v/%d", c.dir, pos, rots, c.pos, c.rots)
		}
	}
}
