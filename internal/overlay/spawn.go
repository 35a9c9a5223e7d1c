package overlay

import (
	"errors"

	"github.com/df-mc/dragonfly/server/block/cube"

	"colonyevents.ai/internal/overlay/blueprint"
)

// maxGroundLevels is the ground level count assumed for footprints that do
// not declare one.
const maxGroundLevels = 4

type SpawnRequest struct {
	EventID   int
	Template  string
	Footprint blueprint.Footprint
	Target    cube.Pos
	// Rotation is a quarter-turn count; values outside 1..3 mean no rotation.
	Rotation int
	Mirror   blueprint.Mirror
}

// Layout is the geometry derived from a footprint and a target point.
type Layout struct {
	// SpawnPos is where the template's primary block is placed.
	SpawnPos cube.Pos
	// Origin and Corner bound the backed up region (inclusive). Corner is one
	// block above the template's top.
	Origin cube.Pos
	Corner cube.Pos
	// Anchor keys the registry: horizontally centred on the floor of the region.
	Anchor cube.Pos
}

func ComputeLayout(fp blueprint.Footprint, target cube.Pos) Layout {
	size := fp.Dimensions()
	primary := fp.PrimaryBlockOffset()
	y := fp.GroundLevels(maxGroundLevels) - 1

	spawn := target.Sub(cube.Pos{0, y, 0}).Add(primary)
	origin := spawn.Sub(primary)
	return Layout{
		SpawnPos: spawn,
		Origin:   origin,
		Corner:   origin.Add(cube.Pos{size[0] - 1, size[1], size[2] - 1}),
		Anchor:   origin.Add(cube.Pos{size[0] / 2, 0, size[2] / 2}),
	}
}

type SpawnResult struct {
	// OK is true once the backup was captured and the overlay registered.
	// It does not depend on the placement outcome; see Placed.
	OK     bool
	Placed bool
	Layout
	Artifact string
	Handle   *blueprint.Handle
	// Err explains a failed spawn, or a failed placement when OK is true.
	Err error
}

// SpawnOverlay backs up the region a template will cover, registers the
// overlay for the event and hands the template to the placer.
//
// Nothing is registered or placed when the event is not live, the anchor is
// taken or the backup fails.
func (m *Manager) SpawnOverlay(req SpawnRequest) SpawnResult {
	var res SpawnResult
	if _, ok := m.events.EventByID(req.EventID); !ok {
		res.Err = ErrEventNotLive
		spawnTotal.WithLabelValues("no_event").Inc()
		m.logger.Printf("overlay spawn: event %d is not live", req.EventID)
		return res
	}
	if req.Footprint == nil {
		res.Err = errors.New("overlay: missing footprint")
		spawnTotal.WithLabelValues("invalid").Inc()
		return res
	}

	res.Layout = ComputeLayout(req.Footprint, req.Target)
	if owner, taken := m.reg.get(res.Anchor); taken {
		res.Err = ErrAnchorOccupied
		spawnTotal.WithLabelValues("occupied").Inc()
		m.logger.Printf("overlay spawn: anchor %v already used by event %d", res.Anchor, owner)
		return res
	}

	res.Artifact = m.ArtifactPath(SchemeCurrent, res.Anchor)
	if err := m.backups.Save(m.world, res.Origin, res.Corner, res.Artifact); err != nil {
		res.Err = err
		spawnTotal.WithLabelValues("backup_failed").Inc()
		m.logger.Printf("overlay spawn: backup of %v..%v failed: %v", res.Origin, res.Corner, err)
		m.record(AuditEntry{Action: AuditBackupFailed, Event: req.EventID, Anchor: res.Anchor, Artifact: res.Artifact, Reason: err.Error()})
		return res
	}

	m.reg.put(res.Anchor, req.EventID)
	res.OK = true
	m.record(AuditEntry{Action: AuditSpawn, Event: req.EventID, Anchor: res.Anchor, Artifact: res.Artifact, Template: req.Template})

	tag := OwnerTag{ColonyID: m.colonyID, EventID: req.EventID}
	h, err := m.placer.Place(m.world, req.Template, res.SpawnPos, blueprint.RotationFromCount(req.Rotation), req.Mirror, tag)
	switch {
	case err != nil:
		res.Err = err
	case h == nil:
		res.Err = errors.New("overlay: placer returned no handle")
	default:
		res.Placed = true
		res.Handle = h
	}
	if !res.Placed {
		spawnTotal.WithLabelValues("place_failed").Inc()
		m.logger.Printf("overlay spawn: placing %s at %v failed: %v", req.Template, res.SpawnPos, res.Err)
		m.record(AuditEntry{Action: AuditPlaceFailed, Event: req.EventID, Anchor: res.Anchor, Template: req.Template, Reason: res.Err.Error()})
		return res
	}
	spawnTotal.WithLabelValues("placed").Inc()
	return res
}
