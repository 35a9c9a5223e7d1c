package indexdb

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/df-mc/dragonfly/server/block/cube"
	_ "modernc.org/sqlite"

	"colonyevents.ai/internal/overlay"
	"colonyevents.ai/internal/persistence/snapshot"
	"colonyevents.ai/internal/sim/catalogs"
)

func TestSQLiteIndex_QueueDropStats(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	s.ch <- req{kind: reqAudit}

	_ = s.WriteAudit(overlay.AuditEntry{Tick: 2})
	s.RecordSnapshot("/tmp/2.snap.zst", snapshot.SnapshotV1{})

	st := s.Stats()
	if st.DropAuditTotal != 1 || st.DropSnapshotTotal != 1 {
		t.Fatalf("drops: audit=%d snapshot=%d", st.DropAuditTotal, st.DropSnapshotTotal)
	}
	if st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("queue stats mismatch: depth=%d cap=%d", st.QueueDepth, st.QueueCapacity)
	}
}

func TestSQLiteIndex_WritesAuditsAndSnapshots(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	entries := []overlay.AuditEntry{
		{Tick: 10, Colony: 1, Event: 4, Action: overlay.AuditSpawn, Anchor: cube.Pos{12, 68, 12}, Artifact: "structbackup/1/minecraftoverworld/12_68_12"},
		{Tick: 10, Colony: 1, Event: 4, Action: overlay.AuditPlaceFailed, Anchor: cube.Pos{12, 68, 12}, Reason: "boom"},
		{Tick: 90, Colony: 1, Event: 4, Action: overlay.AuditRestore, Anchor: cube.Pos{12, 68, 12}, Scheme: "legacy"},
	}
	for _, e := range entries {
		if err := idx.WriteAudit(e); err != nil {
			t.Fatalf("WriteAudit: %v", err)
		}
	}
	idx.RecordSnapshot("/data/snapshots/90.snap.zst", snapshot.SnapshotV1{
		Header:       snapshot.Header{Version: 1, ColonyID: 1, Tick: 90},
		DimNamespace: "minecraft",
		DimPath:      "overworld",
		Chunks:       []snapshot.ChunkV1{{}, {}},
		State:        []byte{1, 2, 3},
		WorldDigest:  "abc",
	})
	cats := &catalogs.Catalogs{
		Blocks: catalogs.BlockCatalog{Palette: []string{"AIR"}, PaletteDigest: "p"},
		Events: catalogs.EventCatalog{ByID: map[string]catalogs.EventTemplate{"RAID": {ID: "RAID"}}, Digest: "e"},
	}
	if err := idx.UpsertCatalogs(cats); err != nil {
		t.Fatalf("UpsertCatalogs: %v", err)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	defer db.Close()

	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM overlay_audits WHERE event=4`).Scan(&n); err != nil || n != 3 {
		t.Fatalf("audit rows=%d err=%v", n, err)
	}
	var seq int
	var scheme string
	if err := db.QueryRow(`SELECT seq, scheme FROM overlay_audits WHERE action=?`, overlay.AuditRestore).Scan(&seq, &scheme); err != nil {
		t.Fatalf("scan restore: %v", err)
	}
	if seq != 0 || scheme != "legacy" {
		t.Fatalf("restore row seq=%d scheme=%q", seq, scheme)
	}
	var (
		dim    string
		chunks int
		state  int
	)
	if err := db.QueryRow(`SELECT dimension, chunks, state_bytes FROM snapshots WHERE tick=90`).Scan(&dim, &chunks, &state); err != nil {
		t.Fatalf("scan snapshot: %v", err)
	}
	if dim != "minecraft:overworld" || chunks != 2 || state != 3 {
		t.Fatalf("snapshot row dim=%q chunks=%d state=%d", dim, chunks, state)
	}
	if err := db.QueryRow(`SELECT COUNT(*) FROM catalogs`).Scan(&n); err != nil || n != 2 {
		t.Fatalf("catalog rows=%d err=%v", n, err)
	}
}
