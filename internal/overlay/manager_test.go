package overlay

import (
	"errors"
	"testing"

	"github.com/df-mc/dragonfly/server/block/cube"

	"colonyevents.ai/internal/overlay/blueprint"
	"colonyevents.ai/internal/persistence/compound"
	"colonyevents.ai/internal/sim/voxel"
)

type mapWorld map[cube.Pos]string

func (w mapWorld) BlockAt(p cube.Pos) string {
	if id, ok := w[p]; ok {
		return id
	}
	return "AIR"
}

func (w mapWorld) SetBlock(p cube.Pos, id string) error {
	w[p] = id
	return nil
}

type liveEvent int

func (e liveEvent) EventID() int { return int(e) }

type fakeEvents struct {
	live    map[int]bool
	lookups map[int]int
}

func newFakeEvents(ids ...int) *fakeEvents {
	f := &fakeEvents{live: map[int]bool{}, lookups: map[int]int{}}
	for _, id := range ids {
		f.live[id] = true
	}
	return f
}

func (f *fakeEvents) EventByID(id int) (Event, bool) {
	f.lookups[id]++
	if !f.live[id] {
		return nil, false
	}
	return liveEvent(id), true
}

type saveCall struct {
	min, max cube.Pos
	artifact string
}

type fakeBackups struct {
	saveErr   error
	stored    map[string]bool
	saves     []saveCall
	loads     []string
	deletes   []string
	deleteErr error
}

func newFakeBackups() *fakeBackups { return &fakeBackups{stored: map[string]bool{}} }

func (f *fakeBackups) Save(_ World, min, max cube.Pos, artifact string) error {
	f.saves = append(f.saves, saveCall{min, max, artifact})
	if f.saveErr != nil {
		return f.saveErr
	}
	f.stored[artifact] = true
	return nil
}

func (f *fakeBackups) Load(_ World, artifact string, anchor cube.Pos, _ blueprint.Rotation, _ blueprint.Mirror) (*blueprint.Handle, error) {
	f.loads = append(f.loads, artifact)
	if !f.stored[artifact] {
		return nil, errors.New("not found")
	}
	return &blueprint.Handle{Name: artifact, Anchor: anchor}, nil
}

func (f *fakeBackups) Delete(artifact string) error {
	f.deletes = append(f.deletes, artifact)
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.stored, artifact)
	return nil
}

type placeCall struct {
	template string
	at       cube.Pos
	rot      blueprint.Rotation
	mirror   blueprint.Mirror
	tag      OwnerTag
}

type fakePlacer struct {
	err   error
	calls []placeCall
}

func (f *fakePlacer) Place(_ World, template string, at cube.Pos, rot blueprint.Rotation, mirror blueprint.Mirror, tag OwnerTag) (*blueprint.Handle, error) {
	f.calls = append(f.calls, placeCall{template, at, rot, mirror, tag})
	if f.err != nil {
		return nil, f.err
	}
	return &blueprint.Handle{Name: template, Anchor: at, Owner: tag}, nil
}

type memAuditor struct{ entries []AuditEntry }

func (a *memAuditor) WriteAudit(e AuditEntry) error {
	a.entries = append(a.entries, e)
	return nil
}

type harness struct {
	m       *Manager
	events  *fakeEvents
	backups *fakeBackups
	placer  *fakePlacer
	audit   *memAuditor
}

var overworld = voxel.Dimension{Namespace: "minecraft", Path: "overworld"}

func newHarness(t *testing.T, live ...int) *harness {
	t.Helper()
	h := &harness{
		events:  newFakeEvents(live...),
		backups: newFakeBackups(),
		placer:  &fakePlacer{},
		audit:   &memAuditor{},
	}
	m, err := NewManager(Deps{
		ColonyID:  7,
		Dimension: overworld,
		World:     mapWorld{},
		Events:    h.events,
		Backups:   h.backups,
		Placer:    h.placer,
		Audit:     h.audit,
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	h.m = m
	return h
}

func campFootprint() *blueprint.Blueprint {
	return &blueprint.Blueprint{
		Name:             "raider_camp",
		Size:             [3]int{5, 4, 5},
		Primary:          cube.Pos{1, 0, 1},
		GroundLevelCount: 3,
	}
}

func TestComputeLayout_GroundLevelsAndPrimary(t *testing.T) {
	l := ComputeLayout(campFootprint(), cube.Pos{10, 70, 10})
	if l.SpawnPos != (cube.Pos{11, 68, 11}) {
		t.Fatalf("spawn=%v", l.SpawnPos)
	}
	if l.Origin != (cube.Pos{10, 68, 10}) || l.Corner != (cube.Pos{14, 72, 14}) {
		t.Fatalf("region=%v..%v", l.Origin, l.Corner)
	}
	if l.Anchor != (cube.Pos{12, 68, 12}) {
		t.Fatalf("anchor=%v want (12,68,12)", l.Anchor)
	}

	// Without a declaration the default of four ground levels applies.
	bare := &blueprint.Blueprint{Size: [3]int{3, 2, 3}}
	if l := ComputeLayout(bare, cube.Pos{0, 64, 0}); l.Origin != (cube.Pos{0, 61, 0}) || l.Anchor != (cube.Pos{1, 61, 1}) {
		t.Fatalf("bare layout=%+v", l)
	}
}

func TestSpawnOverlay_RegistersAnchorAndPlaces(t *testing.T) {
	h := newHarness(t, 3)
	res := h.m.SpawnOverlay(SpawnRequest{
		EventID:   3,
		Template:  "raider_camp",
		Footprint: campFootprint(),
		Target:    cube.Pos{10, 70, 10},
		Rotation:  1,
		Mirror:    blueprint.MirrorLeftRight,
	})
	if !res.OK || !res.Placed || res.Err != nil {
		t.Fatalf("spawn result=%+v", res)
	}
	if res.Anchor != (cube.Pos{12, 68, 12}) {
		t.Fatalf("anchor=%v", res.Anchor)
	}
	if id, ok := h.m.EventAt(res.Anchor); !ok || id != 3 || h.m.Len() != 1 {
		t.Fatalf("registry=%v", h.m.Overlays())
	}

	if len(h.backups.saves) != 1 {
		t.Fatalf("saves=%v", h.backups.saves)
	}
	save := h.backups.saves[0]
	if save.min != (cube.Pos{10, 68, 10}) || save.max != (cube.Pos{14, 72, 14}) {
		t.Fatalf("backup region=%v..%v", save.min, save.max)
	}
	if save.artifact != "structbackup/7/minecraftoverworld/12_68_12" {
		t.Fatalf("artifact=%q", save.artifact)
	}

	if len(h.placer.calls) != 1 {
		t.Fatalf("place calls=%v", h.placer.calls)
	}
	call := h.placer.calls[0]
	if call.template != "raider_camp" || call.at != (cube.Pos{11, 68, 11}) || call.rot != blueprint.Rotate90 || call.mirror != blueprint.MirrorLeftRight {
		t.Fatalf("place call=%+v", call)
	}
	if call.tag != (OwnerTag{ColonyID: 7, EventID: 3}) {
		t.Fatalf("owner tag=%+v", call.tag)
	}
}

func TestSpawnOverlay_EventNotLive(t *testing.T) {
	h := newHarness(t)
	res := h.m.SpawnOverlay(SpawnRequest{EventID: 9, Template: "raider_camp", Footprint: campFootprint()})
	if res.OK || !errors.Is(res.Err, ErrEventNotLive) {
		t.Fatalf("res=%+v", res)
	}
	if len(h.backups.saves) != 0 || len(h.placer.calls) != 0 || h.m.Len() != 0 {
		t.Fatalf("side effects on dead event")
	}
}

func TestSpawnOverlay_BackupFailureLeavesRegistryUntouched(t *testing.T) {
	h := newHarness(t, 1)
	h.backups.saveErr = errors.New("disk full")
	res := h.m.SpawnOverlay(SpawnRequest{EventID: 1, Template: "raider_camp", Footprint: campFootprint()})
	if res.OK || res.Err == nil {
		t.Fatalf("res=%+v", res)
	}
	if h.m.Len() != 0 {
		t.Fatalf("registry changed: %v", h.m.Overlays())
	}
	if len(h.placer.calls) != 0 {
		t.Fatalf("placer called after failed backup")
	}
	if len(h.audit.entries) != 1 || h.audit.entries[0].Action != AuditBackupFailed || h.audit.entries[0].Colony != 7 {
		t.Fatalf("audit=%+v", h.audit.entries)
	}
}

func TestSpawnOverlay_PlacementFailureStillReportsOK(t *testing.T) {
	h := newHarness(t, 1)
	h.placer.err = errors.New("unknown template")
	res := h.m.SpawnOverlay(SpawnRequest{EventID: 1, Template: "nope", Footprint: campFootprint()})
	if !res.OK || res.Placed || res.Err == nil {
		t.Fatalf("res=%+v", res)
	}
	if _, ok := h.m.EventAt(res.Anchor); !ok {
		t.Fatalf("overlay should stay registered so its backup is restored")
	}
}

func TestSpawnOverlay_OccupiedAnchorRefused(t *testing.T) {
	h := newHarness(t, 1, 2)
	req := SpawnRequest{EventID: 1, Template: "raider_camp", Footprint: campFootprint(), Target: cube.Pos{0, 64, 0}}
	if res := h.m.SpawnOverlay(req); !res.OK {
		t.Fatalf("first spawn failed: %+v", res)
	}
	req.EventID = 2
	res := h.m.SpawnOverlay(req)
	if res.OK || !errors.Is(res.Err, ErrAnchorOccupied) {
		t.Fatalf("res=%+v", res)
	}
	if id, _ := h.m.EventAt(res.Anchor); id != 1 || len(h.backups.saves) != 1 {
		t.Fatalf("second spawn had side effects")
	}
}

func TestRestoreForEvent_CurrentThenLegacy(t *testing.T) {
	h := newHarness(t, 1, 2)
	fp := campFootprint()
	a := h.m.SpawnOverlay(SpawnRequest{EventID: 1, Footprint: fp, Target: cube.Pos{0, 64, 0}})
	b := h.m.SpawnOverlay(SpawnRequest{EventID: 1, Footprint: fp, Target: cube.Pos{20, 64, 0}})
	c := h.m.SpawnOverlay(SpawnRequest{EventID: 2, Footprint: fp, Target: cube.Pos{40, 64, 0}})

	// b's backup only exists under the legacy name.
	delete(h.backups.stored, b.Artifact)
	legacy := h.m.ArtifactPath(SchemeLegacy, b.Anchor)
	if legacy != "structbackup7minecraft:overworld"+anchorName(b.Anchor) {
		t.Fatalf("legacy artifact=%q", legacy)
	}
	h.backups.stored[legacy] = true

	out := h.m.RestoreForEvent(1)
	if len(out) != 2 {
		t.Fatalf("outcomes=%+v", out)
	}
	if out[0].Anchor != a.Anchor || !out[0].Restored || out[0].Scheme != SchemeCurrent {
		t.Fatalf("outcome a=%+v", out[0])
	}
	if out[1].Anchor != b.Anchor || !out[1].Restored || out[1].Scheme != SchemeLegacy {
		t.Fatalf("outcome b=%+v", out[1])
	}
	if len(h.backups.deletes) != 2 || h.backups.deletes[1] != b.Artifact {
		t.Fatalf("deletes=%v", h.backups.deletes)
	}
	recs := h.m.Overlays()
	if len(recs) != 1 || recs[0] != (Record{Pos: c.Anchor, EventID: 2}) {
		t.Fatalf("registry=%v", recs)
	}
}

func TestRestoreForEvent_DropsEntryWhenNothingRestores(t *testing.T) {
	h := newHarness(t, 1)
	res := h.m.SpawnOverlay(SpawnRequest{EventID: 1, Footprint: campFootprint()})
	h.backups.stored = map[string]bool{}
	h.backups.deleteErr = errors.New("permission denied")

	out := h.m.RestoreForEvent(1)
	if len(out) != 1 || out[0].Restored || out[0].DeleteErr == nil {
		t.Fatalf("outcome=%+v", out)
	}
	if len(h.backups.loads) != 2 {
		t.Fatalf("expected current and legacy lookups, got %v", h.backups.loads)
	}
	if _, ok := h.m.EventAt(res.Anchor); ok {
		t.Fatalf("entry kept after failed restore")
	}
}

func TestRestoreForEvent_Idempotent(t *testing.T) {
	h := newHarness(t, 1, 2)
	h.m.SpawnOverlay(SpawnRequest{EventID: 1, Footprint: campFootprint()})
	h.m.SpawnOverlay(SpawnRequest{EventID: 2, Footprint: campFootprint(), Target: cube.Pos{30, 64, 30}})

	h.m.RestoreForEvent(1)
	first := h.m.Overlays()
	loads := len(h.backups.loads)
	if out := h.m.RestoreForEvent(1); out != nil {
		t.Fatalf("second restore did work: %+v", out)
	}
	second := h.m.Overlays()
	if len(first) != len(second) || first[0] != second[0] {
		t.Fatalf("registry changed: %v -> %v", first, second)
	}
	if len(h.backups.loads) != loads {
		t.Fatalf("second restore touched the backup store")
	}
}

func TestCodec_RoundTripLiveRegistry(t *testing.T) {
	h := newHarness(t, 1, 2)
	for i, id := range []int{1, 2, 1} {
		res := h.m.SpawnOverlay(SpawnRequest{EventID: id, Footprint: campFootprint(), Target: cube.Pos{i * 16, 64, -i * 16}})
		if !res.OK {
			t.Fatalf("spawn %d: %+v", i, res)
		}
	}
	want := h.m.Serialize()

	tag := compound.Tag{}
	h.m.WriteTo(tag)
	raw, err := compound.Encode(tag)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := compound.Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	other := newHarness(t, 1, 2)
	other.m.ReadFrom(decoded)
	got := other.m.Serialize()
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("entry %d: got %v want %v", i, got[i], want[i])
		}
	}
	if len(other.backups.loads) != 0 {
		t.Fatalf("live entries triggered restores")
	}
}

func TestCodec_OrphansRestoredOncePerEvent(t *testing.T) {
	h := newHarness(t, 1)
	recs := []Record{
		{Pos: cube.Pos{0, 64, 0}, EventID: 1},
		{Pos: cube.Pos{10, 64, 0}, EventID: 5},
		{Pos: cube.Pos{20, 64, 0}, EventID: 5},
	}
	for _, r := range recs[1:] {
		h.backups.stored[h.m.ArtifactPath(SchemeCurrent, r.Pos)] = true
	}

	h.m.Deserialize(recs)

	got := h.m.Overlays()
	if len(got) != 1 || got[0] != recs[0] {
		t.Fatalf("registry=%v", got)
	}
	if len(h.backups.loads) != 2 {
		t.Fatalf("loads=%v", h.backups.loads)
	}
	var orphanAudits int
	for _, e := range h.audit.entries {
		if e.Action == AuditOrphan {
			orphanAudits++
			if e.Event != 5 {
				t.Fatalf("orphan audit for event %d", e.Event)
			}
		}
	}
	if orphanAudits != 1 {
		t.Fatalf("expected one restore pass for event 5, got %d", orphanAudits)
	}
}

func TestCodec_MissingContainerIsEmpty(t *testing.T) {
	h := newHarness(t, 1)
	h.m.SpawnOverlay(SpawnRequest{EventID: 1, Footprint: campFootprint()})
	h.m.ReadFrom(compound.Tag{"something_else": int32(1)})
	if h.m.Len() != 0 {
		t.Fatalf("registry=%v", h.m.Overlays())
	}
}

func TestCodec_MalformedEntriesSkipped(t *testing.T) {
	h := newHarness(t, 4)
	tag := compound.Tag{tagManager: compound.Tag{tagSchematics: []any{
		map[string]any{tagPos: compound.PosTag(cube.Pos{1, 2, 3}), tagEventID: int32(4)},
		map[string]any{tagPos: "garbage", tagEventID: int32(4)},
		map[string]any{tagPos: compound.PosTag(cube.Pos{4, 5, 6})},
	}}}
	h.m.ReadFrom(tag)
	got := h.m.Overlays()
	if len(got) != 1 || got[0] != (Record{Pos: cube.Pos{1, 2, 3}, EventID: 4}) {
		t.Fatalf("registry=%v", got)
	}
}

func TestNewManager_RequiresCollaborators(t *testing.T) {
	if _, err := NewManager(Deps{}); err == nil {
		t.Fatalf("expected error for empty deps")
	}
}

func TestEventFunc(t *testing.T) {
	var auth EventAuthority = EventFunc(func(id int) (Event, bool) {
		return liveEvent(id), id == 1
	})
	if _, ok := auth.EventByID(1); !ok {
		t.Fatalf("expected live event")
	}
	if _, ok := auth.EventByID(2); ok {
		t.Fatalf("expected dead event")
	}
}

func TestDecodeRecords_DoesNotReconcile(t *testing.T) {
	tag := compound.Tag{tagManager: compound.Tag{tagSchematics: []any{
		map[string]any{tagPos: compound.PosTag(cube.Pos{1, 2, 3}), tagEventID: int32(9)},
		map[string]any{tagEventID: int32(9)},
	}}}
	recs, bad := DecodeRecords(tag)
	if len(recs) != 1 || recs[0].EventID != 9 || len(bad) != 1 || bad[0] != 1 {
		t.Fatalf("recs=%v bad=%v", recs, bad)
	}
	if recs, bad := DecodeRecords(compound.Tag{}); recs != nil || bad != nil {
		t.Fatalf("empty tag: recs=%v bad=%v", recs, bad)
	}
}
