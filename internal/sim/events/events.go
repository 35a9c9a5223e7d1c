// Package events tracks time-bounded colony events such as raids.
package events

import (
	"errors"
	"fmt"
	"sort"

	"github.com/df-mc/dragonfly/server/block/cube"

	"colonyevents.ai/internal/persistence/compound"
	"colonyevents.ai/internal/sim/catalogs"
)

var ErrUnknownTemplate = errors.New("events: unknown template")

const (
	tagEventManager = "event_manager"
	tagNextID       = "next_id"
	tagEvents       = "events"

	defaultDurationTicks = 6000
)

type Event struct {
	ID         int
	TemplateID string
	Title      string
	Category   string
	StartTick  uint64
	EndTick    uint64
	Center     cube.Pos
	// Structure is the blueprint id of the camp the event spawns, if any.
	Structure    string
	CampDistance int
}

func (e *Event) EventID() int { return e.ID }

type Manager struct {
	templates map[string]catalogs.EventTemplate
	live      map[int]*Event
	nextID    int
}

func NewManager(cat catalogs.EventCatalog) *Manager {
	return &Manager{
		templates: cat.ByID,
		live:      map[int]*Event{},
		nextID:    1,
	}
}

// Start creates a live event from a template. Ids are never reused.
func (m *Manager) Start(nowTick uint64, templateID string, center cube.Pos) (*Event, error) {
	tpl, ok := m.templates[templateID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTemplate, templateID)
	}
	duration := uint64(tpl.IntParam("duration_ticks", defaultDurationTicks))
	ev := &Event{
		ID:           m.nextID,
		TemplateID:   tpl.ID,
		Title:        tpl.Title,
		Category:     tpl.Category,
		StartTick:    nowTick,
		EndTick:      nowTick + duration,
		Center:       center,
		Structure:    tpl.StringParam("structure"),
		CampDistance: tpl.IntParam("camp_distance", 0),
	}
	m.nextID++
	m.live[ev.ID] = ev
	return ev, nil
}

func (m *Manager) EventByID(id int) (*Event, bool) {
	ev, ok := m.live[id]
	return ev, ok
}

// End removes a live event and returns it.
func (m *Manager) End(id int) (*Event, bool) {
	ev, ok := m.live[id]
	if ok {
		delete(m.live, id)
	}
	return ev, ok
}

// Tick ends every event whose end tick has been reached, in id order.
func (m *Manager) Tick(nowTick uint64) []*Event {
	var ended []*Event
	for _, ev := range m.Active() {
		if nowTick >= ev.EndTick {
			delete(m.live, ev.ID)
			ended = append(ended, ev)
		}
	}
	return ended
}

func (m *Manager) Active() []*Event {
	out := make([]*Event, 0, len(m.live))
	for _, ev := range m.live {
		out = append(out, ev)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *Manager) WriteTo(tag compound.Tag) {
	list := make([]map[string]any, 0, len(m.live))
	for _, ev := range m.Active() {
		list = append(list, compound.Tag{
			"id":            int32(ev.ID),
			"template":      ev.TemplateID,
			"title":         ev.Title,
			"category":      ev.Category,
			"start":         int64(ev.StartTick),
			"end":           int64(ev.EndTick),
			"center":        compound.PosTag(ev.Center),
			"structure":     ev.Structure,
			"camp_distance": int32(ev.CampDistance),
		})
	}
	tag[tagEventManager] = compound.Tag{
		tagNextID: int32(m.nextID),
		tagEvents: list,
	}
}

// ReadFrom replaces the live events with the stored ones. Entries that cannot
// be read are skipped and reported in the returned error.
func (m *Manager) ReadFrom(tag compound.Tag) error {
	m.live = map[int]*Event{}
	m.nextID = 1
	c, ok := compound.Compound(tag, tagEventManager)
	if !ok {
		return nil
	}
	if n, ok := compound.Int(c, tagNextID); ok && n > 0 {
		m.nextID = n
	}
	list, _ := compound.List(c, tagEvents)
	var errs []error
	for i, e := range list {
		id, okID := compound.Int(e, "id")
		start, okStart := compound.Long(e, "start")
		end, okEnd := compound.Long(e, "end")
		if !okID || !okStart || !okEnd {
			errs = append(errs, fmt.Errorf("events: entry %d malformed", i))
			continue
		}
		ev := &Event{ID: id, StartTick: uint64(start), EndTick: uint64(end)}
		ev.TemplateID, _ = compound.String(e, "template")
		ev.Title, _ = compound.String(e, "title")
		ev.Category, _ = compound.String(e, "category")
		ev.Structure, _ = compound.String(e, "structure")
		ev.CampDistance, _ = compound.Int(e, "camp_distance")
		ev.Center, _ = compound.Pos(e, "center")
		m.live[id] = ev
		if id >= m.nextID {
			m.nextID = id + 1
		}
	}
	return errors.Join(errs...)
}
