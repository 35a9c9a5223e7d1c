package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

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

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "overlays":
			overlaysCmd(os.Args[2:])
			return
		case "check":
			checkCmd(os.Args[2:])
			return
		case "artifacts":
			artifactsCmd(os.Args[2:])
			return
		case "db":
			dbCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "raid":
			raidCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

// listCmd prints the snapshots in the data dir.
func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	_ = fs.Parse(args)

	dir := filepath.Join(*dataDir, "snapshots")
	for _, tick := range snapshot.List(dir) {
		fmt.Println(snapshot.PathFor(dir, tick))
	}
}

func overlaysCmd(args []string) {
	fs := flag.NewFlagSet("overlays", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	snapPath := fs.String("snapshot", "", "snapshot path (optional; defaults to latest)")
	_ = fs.Parse(args)

	snap := mustSnapshot(*dataDir, *snapPath)
	tag, err := compound.Decode(snap.State)
	if err != nil {
		fatal(1, "decode state:", err)
	}
	evm := events.NewManager(catalogs.EventCatalog{})
	if err := evm.ReadFrom(tag); err != nil {
		fmt.Fprintln(os.Stderr, "events:", err)
	}
	recs, bad := overlay.DecodeRecords(tag)
	for _, i := range bad {
		fmt.Fprintf(os.Stderr, "entry %d malformed\n", i)
	}
	for _, r := range recs {
		row := struct {
			Anchor [3]int `json:"anchor"`
			Event  int    `json:"event"`
			Live   bool   `json:"live"`
			Title  string `json:"title,omitempty"`
			Ends   uint64 `json:"ends_tick,omitempty"`
		}{Anchor: r.Pos, Event: r.EventID}
		if ev, ok := evm.EventByID(r.EventID); ok {
			row.Live = true
			row.Title = ev.Title
			row.Ends = ev.EndTick
		}
		printJSON(row)
	}
}

func checkCmd(args []string) {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	configDir := fs.String("configs", "./configs", "catalog directory")
	configPath := fs.String("config", "", "path to server.yaml (default: <configs>/server.yaml)")
	dataDir := fs.String("data", "./data", "runtime data directory")
	snapPath := fs.String("snapshot", "", "snapshot path (optional; defaults to latest, or a fresh world)")
	tpl := fs.String("blueprint", "", "blueprint id (required)")
	at := fs.String("at", "", "target position x,y,z (required)")
	facing := fs.String("facing", "", "plan a camp in front of -at facing north|south|east|west (optional)")
	rot := fs.Int("rot", 0, "quarter turns when -facing is empty")
	actor := fs.String("actor", "raiders", "placing actor")
	_ = fs.Parse(args)

	if strings.TrimSpace(*tpl) == "" || strings.TrimSpace(*at) == "" {
		fatal(2, "missing -blueprint or -at")
	}
	target, err := parsePos(*at)
	if err != nil {
		fatal(2, "bad -at:", err)
	}
	rots := *rot
	if f := strings.TrimSpace(*facing); f != "" {
		dir, err := parseDirection(f)
		if err != nil {
			fatal(2, "bad -facing:", err)
		}
		target, rots = footprint.PlanCamp(target, dir)
	}

	cfg, cats := mustConfig(*configDir, *configPath)
	bp, err := placer.New(cats.Blueprints).Template(*tpl)
	if err != nil {
		fatal(2, err)
	}
	w, err := loadWorld(cfg, cats, *dataDir, *snapPath)
	if err != nil {
		fatal(1, "world:", err)
	}
	home := homeColony(cfg, w.Dim)

	t := bp.Transformed(blueprint.RotationFromCount(rots), blueprint.MirrorNone)
	layout := overlay.ComputeLayout(t, target)
	errs := footprint.Check(w, colony.Claims{Dir: colony.NewDirectory(home), Dim: w.Dim}, footprint.Request{
		Origin:   layout.Origin,
		Size:     t.Size,
		Tags:     footprint.Anchored(t, layout.Origin),
		Placer:   *actor,
		Override: cfg.SupplyCamp.NoPlacementRestrictions,
	})
	out := struct {
		Target [3]int   `json:"target"`
		Rot    int      `json:"rot"`
		Origin [3]int   `json:"origin"`
		Anchor [3]int   `json:"anchor"`
		Legal  bool     `json:"legal"`
		Errors []string `json:"errors,omitempty"`
	}{Target: target, Rot: rots, Origin: layout.Origin, Anchor: layout.Anchor, Legal: footprint.Legal(errs)}
	for _, e := range errs {
		out.Errors = append(out.Errors, e.String())
	}
	printJSON(out)
	if !out.Legal {
		os.Exit(1)
	}
}

func artifactsCmd(args []string) {
	fs := flag.NewFlagSet("artifacts", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dir := fs.String("dir", "backups", "backup dir relative to -data")
	_ = fs.Parse(args)

	store := backup.NewFileStore(filepath.Join(*dataDir, *dir))
	names, err := store.List()
	if err != nil {
		fatal(1, "list:", err)
	}
	for _, n := range names {
		hdr, err := store.Info(n)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", n, err)
			continue
		}
		printJSON(hdr)
	}
}

func mustConfig(configDir, configPath string) (config.Config, *catalogs.Catalogs) {
	cp := strings.TrimSpace(configPath)
	if cp == "" {
		cp = filepath.Join(configDir, "server.yaml")
	}
	cfg, err := config.Load(cp)
	if err != nil {
		fatal(1, "load config:", err)
	}
	cats, err := catalogs.Load(configDir)
	if err != nil {
		fatal(1, "load catalogs:", err)
	}
	return cfg, cats
}

func mustSnapshot(dataDir, snapPath string) snapshot.SnapshotV1 {
	path := strings.TrimSpace(snapPath)
	if path == "" {
		path = snapshot.Latest(filepath.Join(dataDir, "snapshots"))
	}
	if path == "" {
		fatal(2, "no snapshot found; provide -snapshot or run server until it writes one")
	}
	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		fatal(1, "read snapshot:", err)
	}
	return snap
}

// loadWorld builds the colony world from the snapshot, or a fresh flat world
// when there is none.
func loadWorld(cfg config.Config, cats *catalogs.Catalogs, dataDir, snapPath string) (*voxel.Store, error) {
	dim := voxel.Dimension{Namespace: cfg.Colony.Dimension.Namespace, Path: cfg.Colony.Dimension.Path}
	path := strings.TrimSpace(snapPath)
	if path == "" {
		path = snapshot.Latest(filepath.Join(dataDir, "snapshots"))
	}
	if path == "" {
		return voxel.New(dim, &cats.Blocks, voxel.Config{MinY: cfg.World.MinY, Height: cfg.World.Height, SurfaceY: cfg.World.SurfaceY})
	}
	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		return nil, err
	}
	if snap.PaletteDigest != cats.Blocks.PaletteDigest {
		return nil, fmt.Errorf("snapshot palette %s does not match catalog %s", snap.PaletteDigest, cats.Blocks.PaletteDigest)
	}
	w, err := voxel.New(voxel.Dimension{Namespace: snap.DimNamespace, Path: snap.DimPath}, &cats.Blocks, voxel.Config{MinY: snap.MinY, Height: snap.Height, SurfaceY: snap.SurfaceY})
	if err != nil {
		return nil, err
	}
	for _, c := range snap.Chunks {
		if err := w.ImportChunk(c.CX, c.CZ, c.Blocks); err != nil {
			return nil, err
		}
	}
	return w, nil
}

func homeColony(cfg config.Config, dim voxel.Dimension) *colony.Colony {
	members := map[string]bool{}
	for _, m := range cfg.Colony.Members {
		members[m] = true
	}
	return &colony.Colony{
		ID:        cfg.Colony.ID,
		Name:      cfg.Colony.Name,
		Owner:     cfg.Colony.Owner,
		Members:   members,
		Dimension: dim,
		Center:    cube.Pos(cfg.Colony.Center),
		Radius:    cfg.Colony.Radius,
	}
}

func parsePos(s string) (cube.Pos, error) {
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != 3 {
		return cube.Pos{}, fmt.Errorf("want x,y,z, got %q", s)
	}
	var p cube.Pos
	for i, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return cube.Pos{}, err
		}
		p[i] = n
	}
	return p, nil
}

func parseDirection(s string) (cube.Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "north":
		return cube.North, nil
	case "south":
		return cube.South, nil
	case "east":
		return cube.East, nil
	case "west":
		return cube.West, nil
	default:
		return 0, fmt.Errorf("unknown direction %q", s)
	}
}

func printJSON(v any) {
	b, _ := json.Marshal(v)
	fmt.Println(string(b))
}

func fatal(code int, args ...any) {
	fmt.Fprintln(os.Stderr, args...)
	os.Exit(code)
}
