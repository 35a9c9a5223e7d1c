package events

import (
	"errors"
	"testing"

	"github.com/df-mc/dragonfly/server/block/cube"

	"colonyevents.ai/internal/persistence/compound"
	"colonyevents.ai/internal/sim/catalogs"
)

func testCatalog() catalogs.EventCatalog {
	return catalogs.EventCatalog{ByID: map[string]catalogs.EventTemplate{
		"RAID": {
			ID:       "RAID",
			Category: "RAID",
			Title:    "Raid",
			Params: map[string]any{
				"duration_ticks": float64(100),
				"structure":      "raider_camp",
				"camp_distance":  float64(24),
			},
		},
	}}
}

func TestManager_StartAndTick(t *testing.T) {
	m := NewManager(testCatalog())
	ev, err := m.Start(10, "RAID", cube.Pos{1, 64, 1})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if ev.ID != 1 || ev.EndTick != 110 || ev.Structure != "raider_camp" || ev.CampDistance != 24 {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if _, err := m.Start(10, "NOPE", cube.Pos{}); !errors.Is(err, ErrUnknownTemplate) {
		t.Fatalf("expected ErrUnknownTemplate, got %v", err)
	}

	if ended := m.Tick(109); len(ended) != 0 {
		t.Fatalf("ended too early: %v", ended)
	}
	ended := m.Tick(110)
	if len(ended) != 1 || ended[0].ID != 1 {
		t.Fatalf("ended=%v", ended)
	}
	if _, ok := m.EventByID(1); ok {
		t.Fatalf("ended event still live")
	}

	next, _ := m.Start(200, "RAID", cube.Pos{})
	if next.ID != 2 {
		t.Fatalf("event id reused: %d", next.ID)
	}
}

func TestManager_CompoundRoundTrip(t *testing.T) {
	m := NewManager(testCatalog())
	a, _ := m.Start(0, "RAID", cube.Pos{5, 64, -5})
	b, _ := m.Start(0, "RAID", cube.Pos{})
	m.End(b.ID)

	tag := compound.Tag{}
	m.WriteTo(tag)
	raw, err := compound.Encode(tag)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := compound.Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	restored := NewManager(testCatalog())
	if err := restored.ReadFrom(decoded); err != nil {
		t.Fatalf("read: %v", err)
	}
	got, ok := restored.EventByID(a.ID)
	if !ok {
		t.Fatalf("event %d missing after reload", a.ID)
	}
	if *got != *a {
		t.Fatalf("event mismatch: got %+v want %+v", got, a)
	}
	if _, ok := restored.EventByID(b.ID); ok {
		t.Fatalf("ended event came back")
	}
	if next, _ := restored.Start(0, "RAID", cube.Pos{}); next.ID != 3 {
		t.Fatalf("next id=%d want 3", next.ID)
	}
}

func TestManager_ReadFromMissingContainer(t *testing.T) {
	m := NewManager(testCatalog())
	_, _ = m.Start(0, "RAID", cube.Pos{})
	if err := m.ReadFrom(compound.Tag{}); err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(m.Active()) != 0 {
		t.Fatalf("expected no live events")
	}
}
