// Package host runs one colony: it advances ticks, starts raids that spawn
// camp overlays, restores those overlays when raids end and takes snapshots.
package host

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/df-mc/dragonfly/server/block/cube"

	"colonyevents.ai/internal/config"
	"colonyevents.ai/internal/overlay"
	"colonyevents.ai/internal/overlay/backup"
	"colonyevents.ai/internal/overlay/blueprint"
	"colonyevents.ai/internal/overlay/footprint"
	"colonyevents.ai/internal/overlay/placer"
	"colonyevents.ai/internal/persistence/compound"
	"colonyevents.ai/internal/persistence/snapshot"
	"colonyevents.ai/internal/sim/catalogs"
	"colonyevents.ai/internal/sim/colony"
	"colonyevents.ai/internal/sim/events"
	"colonyevents.ai/internal/sim/voxel"
)

// RaiderActor is the placer identity raid camps are checked against.
const RaiderActor = "raiders"

var ErrNoCampSite = errors.New("host: no legal camp site")

type Options struct {
	Config   config.Config
	Catalogs *catalogs.Catalogs
	// BackupDir holds backup artifacts.
	BackupDir string
	Logger    *log.Logger
	Audit     overlay.Auditor
	// Snapshots receives a snapshot every SnapshotEveryTicks. Sends never block.
	Snapshots chan<- snapshot.SnapshotV1
}

type Host struct {
	cfg    config.Config
	cats   *catalogs.Catalogs
	logger *log.Logger

	world    *voxel.Store
	colonies *colony.Directory
	home     *colony.Colony
	events   *events.Manager
	placer   *placer.Engine
	backups  *backup.FileStore
	overlays *overlay.Manager

	tick     uint64
	nextRaid uint64
	raidSeq  int

	snapshots chan<- snapshot.SnapshotV1
	raidReq   chan raidReq
	stateReq  chan chan State
	stop      chan struct{}
	stopOnce  sync.Once
}

// State is a read-only view of the colony for status endpoints.
type State struct {
	ColonyID int              `json:"colony_id"`
	Tick     uint64           `json:"tick"`
	NextRaid uint64           `json:"next_raid"`
	Events   []events.Event   `json:"events"`
	Overlays []overlay.Record `json:"overlays"`
}

type raidReq struct {
	templateID string
	resp       chan RaidResult
}

type RaidResult struct {
	Event *events.Event
	Spawn overlay.SpawnResult
	Err   error
}

func New(opts Options) (*Host, error) {
	if opts.Catalogs == nil {
		return nil, fmt.Errorf("host: missing catalogs")
	}
	cfg := opts.Config
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	dim := voxel.Dimension{Namespace: cfg.Colony.Dimension.Namespace, Path: cfg.Colony.Dimension.Path}
	world, err := voxel.New(dim, &opts.Catalogs.Blocks, voxel.Config{
		MinY:     cfg.World.MinY,
		Height:   cfg.World.Height,
		SurfaceY: cfg.World.SurfaceY,
	})
	if err != nil {
		return nil, err
	}

	members := map[string]bool{}
	for _, m := range cfg.Colony.Members {
		members[m] = true
	}
	home := &colony.Colony{
		ID:        cfg.Colony.ID,
		Name:      cfg.Colony.Name,
		Owner:     cfg.Colony.Owner,
		Members:   members,
		Dimension: dim,
		Center:    cube.Pos(cfg.Colony.Center),
		Radius:    cfg.Colony.Radius,
	}

	h := &Host{
		cfg:       cfg,
		cats:      opts.Catalogs,
		logger:    logger,
		world:     world,
		colonies:  colony.NewDirectory(home),
		home:      home,
		events:    events.NewManager(opts.Catalogs.Events),
		placer:    placer.New(opts.Catalogs.Blueprints),
		backups:   backup.NewFileStore(opts.BackupDir),
		snapshots: opts.Snapshots,
		raidReq:   make(chan raidReq),
		stateReq:  make(chan chan State),
		stop:      make(chan struct{}),
	}
	h.overlays, err = overlay.NewManager(overlay.Deps{
		ColonyID:   home.ID,
		Dimension:  dim,
		World:      world,
		Events:     overlay.EventFunc(h.lookupEvent),
		Backups:    h.backups,
		Placer:     h.placer,
		BackupRoot: cfg.Backup.Root,
		Logger:     logger,
		Audit:      opts.Audit,
		Tick:       h.CurrentTick,
	})
	if err != nil {
		return nil, err
	}
	h.nextRaid = uint64(cfg.Raids.EveryTicks)
	return h, nil
}

func (h *Host) lookupEvent(id int) (overlay.Event, bool) {
	ev, ok := h.events.EventByID(id)
	if !ok {
		return nil, false
	}
	return ev, true
}

func (h *Host) CurrentTick() uint64         { return h.tick }
func (h *Host) World() *voxel.Store         { return h.world }
func (h *Host) Events() *events.Manager     { return h.events }
func (h *Host) Overlays() *overlay.Manager  { return h.overlays }
func (h *Host) Colonies() *colony.Directory { return h.colonies }

// Step advances one tick. Raids whose time is up have their overlays
// restored before a new raid may start.
func (h *Host) Step() {
	h.tick++
	for _, ev := range h.events.Tick(h.tick) {
		h.endRaid(ev)
	}

	if every := uint64(h.cfg.Raids.EveryTicks); every > 0 && len(h.cfg.Raids.Templates) > 0 && h.tick >= h.nextRaid {
		tpl := h.cfg.Raids.Templates[h.raidSeq%len(h.cfg.Raids.Templates)]
		h.raidSeq++
		h.nextRaid = h.tick + every
		if res := h.StartRaid(tpl); res.Err != nil {
			h.logger.Printf("raid %s: %v", tpl, res.Err)
		}
	}

	if every := uint64(h.cfg.SnapshotEveryTicks); every > 0 && h.tick%every == 0 && h.snapshots != nil {
		snap, err := h.Snapshot()
		if err != nil {
			h.logger.Printf("snapshot: %v", err)
			return
		}
		select {
		case h.snapshots <- snap:
		default:
			h.logger.Printf("snapshot sink full, skipped tick %d", h.tick)
		}
	}
}

func (h *Host) endRaid(ev *events.Event) {
	outcomes := h.overlays.RestoreForEvent(ev.ID)
	restored := 0
	for _, o := range outcomes {
		if o.Restored {
			restored++
		}
	}
	h.placer.Forget(overlay.OwnerTag{ColonyID: h.home.ID, EventID: ev.ID})
	h.logger.Printf("raid %d (%s) ended: restored %d/%d overlays", ev.ID, ev.TemplateID, restored, len(outcomes))
}

// EndRaid ends a live raid early.
func (h *Host) EndRaid(id int) bool {
	ev, ok := h.events.End(id)
	if ok {
		h.endRaid(ev)
	}
	return ok
}

// StartRaid starts an event from templateID and, when the template names a
// structure, spawns its camp on the first legal site around the colony. A raid
// whose camp cannot be spawned is ended again.
func (h *Host) StartRaid(templateID string) RaidResult {
	ev, err := h.events.Start(h.tick, templateID, h.home.Center)
	if err != nil {
		return RaidResult{Err: err}
	}
	res := RaidResult{Event: ev}
	if ev.Structure == "" {
		return res
	}
	bp, err := h.placer.Template(ev.Structure)
	if err != nil {
		res.Err = err
		h.events.End(ev.ID)
		return res
	}
	target, rot, ok := h.planCamp(bp, ev.CampDistance)
	if !ok {
		res.Err = ErrNoCampSite
		h.events.End(ev.ID)
		return res
	}
	res.Spawn = h.overlays.SpawnOverlay(overlay.SpawnRequest{
		EventID:   ev.ID,
		Template:  ev.Structure,
		Footprint: bp.Transformed(blueprint.RotationFromCount(rot), blueprint.MirrorNone),
		Target:    target,
		Rotation:  rot,
	})
	if !res.Spawn.OK {
		res.Err = res.Spawn.Err
		h.events.End(ev.ID)
		return res
	}
	h.logger.Printf("raid %d (%s) camp at %v placed=%v", ev.ID, ev.TemplateID, res.Spawn.Anchor, res.Spawn.Placed)
	return res
}

var campDirections = []cube.Direction{cube.East, cube.South, cube.West, cube.North}

// planCamp walks out from the colony centre in each direction and returns the
// first target whose footprint passes the placement check.
func (h *Host) planCamp(bp *blueprint.Blueprint, distance int) (cube.Pos, int, bool) {
	center := h.home.Center
	center[1] = h.cfg.World.SurfaceY
	for _, dir := range campDirections {
		// PlanCamp adds its own offset in front of the clicked block.
		clicked := center
		if distance > 5 {
			clicked = center.Add(directionOffset(dir, distance-5))
		}
		target, rot := footprint.PlanCamp(clicked, dir)
		errs := h.CheckCamp(bp, target, rot, RaiderActor)
		if footprint.Legal(errs) {
			return target, rot, true
		}
		h.logger.Printf("camp site %v rejected: %d placement errors (first %v)", target, len(errs), errs[0])
	}
	return cube.Pos{}, 0, false
}

// CheckCamp runs the placement check for bp rotated by rot and spawned at
// target by actor.
func (h *Host) CheckCamp(bp *blueprint.Blueprint, target cube.Pos, rot int, actor string) []footprint.PlacementError {
	t := bp.Transformed(blueprint.RotationFromCount(rot), blueprint.MirrorNone)
	layout := overlay.ComputeLayout(t, target)
	return footprint.Check(h.world, colony.Claims{Dir: h.colonies, Dim: h.world.Dim}, footprint.Request{
		Origin:   layout.Origin,
		Size:     t.Size,
		Tags:     footprint.Anchored(t, layout.Origin),
		Placer:   actor,
		Override: h.cfg.SupplyCamp.NoPlacementRestrictions,
	})
}

func directionOffset(dir cube.Direction, n int) cube.Pos {
	switch dir {
	case cube.North:
		return cube.Pos{0, 0, -n}
	case cube.South:
		return cube.Pos{0, 0, n}
	case cube.West:
		return cube.Pos{-n, 0, 0}
	default:
		return cube.Pos{n, 0, 0}
	}
}

// Snapshot captures the world chunks and the colony compound.
func (h *Host) Snapshot() (snapshot.SnapshotV1, error) {
	tag := compound.Tag{}
	h.events.WriteTo(tag)
	h.overlays.WriteTo(tag)
	state, err := compound.Encode(tag)
	if err != nil {
		return snapshot.SnapshotV1{}, err
	}
	snap := snapshot.SnapshotV1{
		Header:        snapshot.Header{Version: snapshot.Version, ColonyID: h.home.ID, Tick: h.tick},
		DimNamespace:  h.world.Dim.Namespace,
		DimPath:       h.world.Dim.Path,
		MinY:          h.world.Cfg.MinY,
		Height:        h.world.Cfg.Height,
		SurfaceY:      h.world.Cfg.SurfaceY,
		Palette:       append([]string(nil), h.cats.Blocks.Palette...),
		PaletteDigest: h.cats.Blocks.PaletteDigest,
		WorldDigest:   h.world.Digest(),
		State:         state,
	}
	for _, k := range h.world.LoadedChunkKeys() {
		ch := h.world.Chunks[k]
		snap.Chunks = append(snap.Chunks, snapshot.ChunkV1{CX: k.CX, CZ: k.CZ, Blocks: append([]uint16(nil), ch.Blocks...)})
	}
	return snap, nil
}

// Restore loads a snapshot taken by Snapshot. Events are restored before the
// overlay registry so that reconciliation sees the live events.
func (h *Host) Restore(snap snapshot.SnapshotV1) error {
	if snap.Header.ColonyID != h.home.ID {
		return fmt.Errorf("host: snapshot is for colony %d, not %d", snap.Header.ColonyID, h.home.ID)
	}
	if snap.Height != h.world.Cfg.Height || snap.MinY != h.world.Cfg.MinY {
		return fmt.Errorf("host: snapshot world height %d/%d does not match config %d/%d", snap.MinY, snap.Height, h.world.Cfg.MinY, h.world.Cfg.Height)
	}
	remap, err := h.paletteRemap(snap.Palette)
	if err != nil {
		return err
	}
	for _, c := range snap.Chunks {
		blocks := c.Blocks
		if remap != nil {
			blocks = make([]uint16, len(c.Blocks))
			for i, b := range c.Blocks {
				if int(b) >= len(remap) {
					return fmt.Errorf("host: chunk %d,%d: block id %d outside snapshot palette", c.CX, c.CZ, b)
				}
				blocks[i] = remap[b]
			}
		}
		if err := h.world.ImportChunk(c.CX, c.CZ, blocks); err != nil {
			return err
		}
	}

	tag, err := compound.Decode(snap.State)
	if err != nil {
		return err
	}
	h.tick = snap.Header.Tick
	if err := h.events.ReadFrom(tag); err != nil {
		h.logger.Printf("restore events: %v", err)
	}
	h.overlays.ReadFrom(tag)
	if every := uint64(h.cfg.Raids.EveryTicks); every > 0 {
		h.nextRaid = h.tick + every
	}
	return nil
}

// paletteRemap maps snapshot block ids onto the loaded catalog. It returns
// nil when the palettes are identical.
func (h *Host) paletteRemap(palette []string) ([]uint16, error) {
	cur := h.cats.Blocks.Palette
	same := len(palette) == len(cur)
	for i := 0; same && i < len(cur); i++ {
		same = palette[i] == cur[i]
	}
	if same {
		return nil, nil
	}
	out := make([]uint16, len(palette))
	for i, name := range palette {
		id, ok := h.cats.Blocks.Index[name]
		if !ok {
			return nil, fmt.Errorf("host: snapshot block %q not in catalog", name)
		}
		out[i] = id
	}
	return out, nil
}

// LoadLatest restores the newest snapshot in dir, if any.
func (h *Host) LoadLatest(dir string) (string, error) {
	path := snapshot.Latest(dir)
	if path == "" {
		return "", nil
	}
	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		return path, err
	}
	return path, h.Restore(snap)
}

// RequestRaid asks the running loop to start a raid and waits for the result.
func (h *Host) RequestRaid(ctx context.Context, templateID string) RaidResult {
	req := raidReq{templateID: templateID, resp: make(chan RaidResult, 1)}
	select {
	case h.raidReq <- req:
	case <-ctx.Done():
		return RaidResult{Err: ctx.Err()}
	}
	select {
	case res := <-req.resp:
		return res
	case <-ctx.Done():
		return RaidResult{Err: ctx.Err()}
	}
}

func (h *Host) State() State {
	st := State{
		ColonyID: h.home.ID,
		Tick:     h.tick,
		NextRaid: h.nextRaid,
		Overlays: h.overlays.Overlays(),
	}
	for _, ev := range h.events.Active() {
		st.Events = append(st.Events, *ev)
	}
	return st
}

// RequestState reads State from inside the running loop.
func (h *Host) RequestState(ctx context.Context) (State, error) {
	resp := make(chan State, 1)
	select {
	case h.stateReq <- resp:
	case <-ctx.Done():
		return State{}, ctx.Err()
	}
	select {
	case st := <-resp:
		return st, nil
	case <-ctx.Done():
		return State{}, ctx.Err()
	}
}

// Run steps the colony at the configured tick rate until ctx is done or Stop
// is called.
func (h *Host) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(h.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-h.stop:
			return nil
		case req := <-h.raidReq:
			req.resp <- h.StartRaid(req.templateID)
		case resp := <-h.stateReq:
			resp <- h.State()
		case <-ticker.C:
			h.Step()
		}
	}
}

// Stop ends Run. It is safe to call more than once.
func (h *Host) Stop() { h.stopOnce.Do(func() { close(h.stop) }) }

// SnapshotPath names a snapshot file under dataDir.
func SnapshotPath(dataDir string, tick uint64) string {
	return snapshot.PathFor(filepath.Join(dataDir, "snapshots"), tick)
}
