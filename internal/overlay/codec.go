package overlay

import (
	"colonyevents.ai/internal/persistence/compound"
)

const (
	tagManager    = "eventstructure_manager"
	tagSchematics = "schematics"
	tagPos        = "pos"
	tagEventID    = "eventid"
)

// Serialize returns the registry in insertion order.
func (m *Manager) Serialize() []Record { return m.reg.records() }

// Deserialize replaces the registry with recs. Entries whose event is still
// live are kept. For every other event the stored overlays are restored once
// and dropped.
func (m *Manager) Deserialize(recs []Record) {
	m.reg.reset()
	var dead []int
	seenDead := map[int]bool{}
	for _, r := range recs {
		if !m.reg.put(r.Pos, r.EventID) {
			m.logger.Printf("overlay load: duplicate anchor %v (event %d) skipped", r.Pos, r.EventID)
			continue
		}
		if _, live := m.events.EventByID(r.EventID); live {
			continue
		}
		orphansTotal.Inc()
		m.logger.Printf("overlay load: event %d is gone, dropping overlay at %v", r.EventID, r.Pos)
		if !seenDead[r.EventID] {
			seenDead[r.EventID] = true
			dead = append(dead, r.EventID)
		}
	}
	for _, id := range dead {
		m.RestoreForEvent(id)
		m.record(AuditEntry{Action: AuditOrphan, Event: id})
	}
}

// WriteTo stores the registry under its own container in tag.
func (m *Manager) WriteTo(tag compound.Tag) {
	recs := m.Serialize()
	list := make([]map[string]any, 0, len(recs))
	for _, r := range recs {
		list = append(list, compound.Tag{
			tagPos:     compound.PosTag(r.Pos),
			tagEventID: int32(r.EventID),
		})
	}
	tag[tagManager] = compound.Tag{tagSchematics: list}
}

// ReadFrom loads the registry from tag and reconciles it. A missing container
// yields an empty registry; malformed entries are skipped.
func (m *Manager) ReadFrom(tag compound.Tag) {
	recs, bad := DecodeRecords(tag)
	for _, i := range bad {
		m.logger.Printf("overlay load: entry %d malformed, skipped", i)
	}
	m.Deserialize(recs)
}

// DecodeRecords reads the stored registry without reconciling it. bad lists
// the indexes of malformed entries.
func DecodeRecords(tag compound.Tag) (recs []Record, bad []int) {
	c, ok := compound.Compound(tag, tagManager)
	if !ok {
		return nil, nil
	}
	list, _ := compound.List(c, tagSchematics)
	recs = make([]Record, 0, len(list))
	for i, e := range list {
		pos, okPos := compound.Pos(e, tagPos)
		id, okID := compound.Int(e, tagEventID)
		if !okPos || !okID {
			bad = append(bad, i)
			continue
		}
		recs = append(recs, Record{Pos: pos, EventID: id})
	}
	return recs, bad
}
