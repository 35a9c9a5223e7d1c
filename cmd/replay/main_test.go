package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/df-mc/dragonfly/server/block/cube"

	"colonyevents.ai/internal/overlay"
)

func TestReplayer_FoldsSpawnsAndRestores(t *testing.T) {
	a, b := cube.Pos{1, 64, 1}, cube.Pos{9, 64, 9}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, e := range []overlay.AuditEntry{
		{Tick: 5, Colony: 1, Event: 1, Action: overlay.AuditSpawn, Anchor: a},
		{Tick: 11, Colony: 1, Event: 2, Action: overlay.AuditSpawn, Anchor: b},
		{Tick: 12, Colony: 2, Event: 7, Action: overlay.AuditSpawn, Anchor: a},
		{Tick: 13, Colony: 1, Event: 3, Action: overlay.AuditSpawn, Anchor: b},
		{Tick: 20, Colony: 1, Event: 1, Action: overlay.AuditRestoreFailed, Anchor: a},
		{Tick: 21, Colony: 1, Event: 1, Action: overlay.AuditOrphan},
	} {
		if err := enc.Encode(e); err != nil {
			t.Fatal(err)
		}
	}

	r := &replayer{reg: map[cube.Pos]int{a: 1}, colony: 1, from: 10}
	if err := r.read(&buf); err != nil {
		t.Fatalf("read: %v", err)
	}
	if r.applied != 2 {
		t.Fatalf("applied=%d", r.applied)
	}
	if len(r.conflicts) != 1 {
		t.Fatalf("conflicts=%v", r.conflicts)
	}
	if len(r.reg) != 1 || r.reg[b] != 2 {
		t.Fatalf("registry=%v", r.reg)
	}
}

func TestDiffRegistry(t *testing.T) {
	a, b, c := cube.Pos{0, 0, 0}, cube.Pos{1, 0, 0}, cube.Pos{2, 0, 0}
	got := map[cube.Pos]int{a: 1, b: 2}
	want := map[cube.Pos]int{a: 1, b: 3, c: 4}
	if d := diffRegistry(got, want); len(d) != 2 {
		t.Fatalf("diff=%v", d)
	}
	if d := diffRegistry(want, want); len(d) != 0 {
		t.Fatalf("self diff=%v", d)
	}
}
