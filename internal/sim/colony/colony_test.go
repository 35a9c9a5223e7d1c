package colony

import (
	"testing"

	"github.com/df-mc/dragonfly/server/block/cube"

	"colonyevents.ai/internal/sim/voxel"
)

var overworld = voxel.Dimension{Namespace: "minecraft", Path: "overworld"}

func TestPermissionsFor(t *testing.T) {
	flags := Flags{
		AllowBuild:  false,
		AllowBreak:  false,
		AllowDamage: true,
		AllowTrade:  false,
	}
	member := PermissionsFor(true, flags)
	if !member.CanBuild || !member.CanBreak || !member.CanTrade || !member.CanDamage {
		t.Fatalf("unexpected member perms: %#v", member)
	}
	visitor := PermissionsFor(false, flags)
	if visitor.CanBuild || visitor.CanBreak || visitor.CanTrade || !visitor.CanDamage {
		t.Fatalf("unexpected visitor perms: %#v", visitor)
	}
}

func TestDirectory_Permits(t *testing.T) {
	home := &Colony{
		ID:        1,
		Owner:     "alice",
		Members:   map[string]bool{"bob": true},
		Dimension: overworld,
		Center:    cube.Pos{0, 64, 0},
		Radius:    8,
	}
	d := NewDirectory(home)

	inside := cube.Pos{8, 64, -8}
	outside := cube.Pos{9, 64, 0}

	if got := d.ColonyAt(overworld, inside); got != home {
		t.Fatalf("ColonyAt(inside)=%v want home", got)
	}
	if got := d.ColonyAt(voxel.Dimension{Namespace: "minecraft", Path: "the_nether"}, inside); got != nil {
		t.Fatalf("colony leaked into another dimension")
	}
	for _, actor := range []string{"alice", "bob"} {
		if !d.Permits(overworld, inside, actor, ActionPlaceBlocks) {
			t.Fatalf("%s should be able to build at home", actor)
		}
	}
	if d.Permits(overworld, inside, "mallory", ActionPlaceBlocks) {
		t.Fatalf("outsider should not build inside the colony")
	}
	if !d.Permits(overworld, outside, "mallory", ActionPlaceBlocks) {
		t.Fatalf("outsider should build in the wild")
	}

	claims := Claims{Dir: d, Dim: overworld}
	if claims.CanPlace(inside, "mallory") || !claims.CanPlace(inside, "bob") {
		t.Fatalf("Claims view disagrees with directory")
	}
}
