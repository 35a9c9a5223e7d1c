package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/df-mc/dragonfly/server/block/cube"
	"github.com/klauspost/compress/zstd"

	"colonyevents.ai/internal/overlay"
	"colonyevents.ai/internal/overlay/backup"
	"colonyevents.ai/internal/persistence/compound"
	"colonyevents.ai/internal/persistence/snapshot"
	"colonyevents.ai/internal/sim/voxel"
)

// replay rebuilds the overlay registry from a snapshot plus the audit log
// written after it, and checks the result against a later snapshot and the
// backup artifacts on disk.
func main() {
	var (
		snapPath   = flag.String("snapshot", "", "path to .snap.zst to start from")
		auditDir   = flag.String("audit", "", "audit dir containing audit-*.jsonl.zst (optional)")
		against    = flag.String("against", "", "later snapshot to compare the replayed registry with (optional)")
		backupDir  = flag.String("backups", "", "backup dir to check remaining overlays against (optional)")
		backupRoot = flag.String("backup_root", overlay.DefaultBackupRoot, "artifact name root")
		toTick     = flag.Uint64("to_tick", 0, "stop at tick (inclusive, optional; defaults to -against tick)")
	)
	flag.Parse()

	if *snapPath == "" {
		fmt.Fprintln(os.Stderr, "missing -snapshot")
		os.Exit(2)
	}
	snap, reg := mustRegistry(*snapPath)
	fmt.Printf("snapshot v%d colony=%d tick=%d dim=%s:%s chunks=%d overlays=%d\n",
		snap.Header.Version, snap.Header.ColonyID, snap.Header.Tick, snap.DimNamespace, snap.DimPath, len(snap.Chunks), len(reg))

	var later *snapshot.SnapshotV1
	var want map[cube.Pos]int
	if *against != "" {
		s, r := mustRegistry(*against)
		later, want = &s, r
		if *toTick == 0 {
			*toTick = s.Header.Tick
		}
	}

	if *auditDir != "" {
		files, err := listAuditFiles(*auditDir)
		if err != nil {
			fmt.Fprintln(os.Stderr, "list audit:", err)
			os.Exit(1)
		}
		r := &replayer{reg: reg, colony: snap.Header.ColonyID, from: snap.Header.Tick, to: *toTick}
		for _, path := range files {
			if err := r.file(path); err != nil {
				fmt.Fprintln(os.Stderr, "replay:", err)
				os.Exit(1)
			}
		}
		for _, c := range r.conflicts {
			fmt.Println("conflict:", c)
		}
		fmt.Printf("replayed %d audit entries\n", r.applied)
	}

	failed := false
	if later != nil {
		for _, d := range diffRegistry(reg, want) {
			fmt.Println("mismatch:", d)
			failed = true
		}
	}
	if *backupDir != "" {
		store := backup.NewFileStore(*backupDir)
		dim := voxel.Dimension{Namespace: snap.DimNamespace, Path: snap.DimPath}
		for _, anchor := range sortedAnchors(reg) {
			name := overlay.SchemeCurrent.Artifact(*backupRoot, snap.Header.ColonyID, dim, anchor)
			if _, err := store.Info(name); err != nil {
				fmt.Printf("overlay at %v (event %d): artifact %s: %v\n", anchor, reg[anchor], name, err)
				failed = true
			}
		}
	}
	for _, anchor := range sortedAnchors(reg) {
		fmt.Printf("overlay %d,%d,%d event=%d\n", anchor.X(), anchor.Y(), anchor.Z(), reg[anchor])
	}
	if failed {
		os.Exit(1)
	}
}

func mustRegistry(path string) (snapshot.SnapshotV1, map[cube.Pos]int) {
	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}
	tag, err := compound.Decode(snap.State)
	if err != nil {
		fmt.Fprintln(os.Stderr, "decode state:", err)
		os.Exit(1)
	}
	recs, _ := overlay.DecodeRecords(tag)
	reg := make(map[cube.Pos]int, len(recs))
	for _, r := range recs {
		reg[r.Pos] = r.EventID
	}
	return snap, reg
}

func listAuditFiles(dir string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, "audit-") && strings.HasSuffix(name, ".jsonl.zst") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, filepath.Join(dir, name))
	}
	return out, nil
}

type replayer struct {
	reg    map[cube.Pos]int
	colony int
	// Entries with from < tick <= to are applied; to 0 means no limit.
	from, to uint64

	applied   int
	conflicts []string
}

func (r *replayer) file(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()
	if err := r.read(dec); err != nil {
		return fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return nil
}

func (r *replayer) read(in io.Reader) error {
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)
	for sc.Scan() {
		var e overlay.AuditEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return fmt.Errorf("unmarshal: %w", err)
		}
		r.apply(e)
	}
	return sc.Err()
}

func (r *replayer) apply(e overlay.AuditEntry) {
	if e.Colony != r.colony || e.Tick <= r.from || (r.to != 0 && e.Tick > r.to) {
		return
	}
	switch e.Action {
	case overlay.AuditSpawn:
		if id, ok := r.reg[e.Anchor]; ok {
			r.conflicts = append(r.conflicts, fmt.Sprintf("tick %d: spawn for event %d at %v taken by event %d", e.Tick, e.Event, e.Anchor, id))
			return
		}
		r.reg[e.Anchor] = e.Event
	case overlay.AuditRestore, overlay.AuditRestoreFailed:
		id, ok := r.reg[e.Anchor]
		if !ok || id != e.Event {
			r.conflicts = append(r.conflicts, fmt.Sprintf("tick %d: restore for event %d at %v not registered", e.Tick, e.Event, e.Anchor))
		}
		delete(r.reg, e.Anchor)
	default:
		return
	}
	r.applied++
}

func diffRegistry(got, want map[cube.Pos]int) []string {
	var out []string
	for _, a := range sortedAnchors(got) {
		if id, ok := want[a]; !ok {
			out = append(out, fmt.Sprintf("%v: replayed event %d, snapshot has none", a, got[a]))
		} else if id != got[a] {
			out = append(out, fmt.Sprintf("%v: replayed event %d, snapshot event %d", a, got[a], id))
		}
	}
	for _, a := range sortedAnchors(want) {
		if _, ok := got[a]; !ok {
			out = append(out, fmt.Sprintf("%v: snapshot event %d, replay has none", a, want[a]))
		}
	}
	return out
}

func sortedAnchors(reg map[cube.Pos]int) []cube.Pos {
	out := make([]cube.Pos, 0, len(reg))
	for a := range reg {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		for k := 0; k < 3; k++ {
			if out[i][k] != out[j][k] {
				return out[i][k] < out[j][k]
			}
		}
		return false
	})
	return out
}
