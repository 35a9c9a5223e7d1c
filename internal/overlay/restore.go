package overlay

import (
	"github.com/df-mc/dragonfly/server/block/cube"

	"colonyevents.ai/internal/overlay/blueprint"
)

// RestoreOutcome reports how one anchor was handled by RestoreForEvent.
type RestoreOutcome struct {
	Anchor   cube.Pos
	Restored bool
	// Scheme is the naming scheme whose artifact was restored. Only set when
	// Restored is true.
	Scheme NamingScheme
	Handle *blueprint.Handle
	// DeleteErr is the error from removing the current-scheme artifact.
	DeleteErr error
}

// RestoreForEvent puts back the content under every overlay owned by eventID
// and forgets those overlays. Each anchor is restored from its current-scheme
// artifact, falling back to the legacy name. The entry is dropped even when
// neither artifact could be restored.
func (m *Manager) RestoreForEvent(eventID int) []RestoreOutcome {
	anchors := m.reg.anchorsFor(eventID)
	if len(anchors) == 0 {
		return nil
	}
	out := make([]RestoreOutcome, 0, len(anchors))
	for _, anchor := range anchors {
		out = append(out, m.restoreAnchor(eventID, anchor))
	}
	for _, anchor := range anchors {
		m.reg.remove(anchor)
	}
	return out
}

func (m *Manager) restoreAnchor(eventID int, anchor cube.Pos) RestoreOutcome {
	o := RestoreOutcome{Anchor: anchor}
	for _, s := range restoreSchemes {
		artifact := m.ArtifactPath(s, anchor)
		h, err := m.backups.Load(m.world, artifact, anchor, blueprint.RotateNone, blueprint.MirrorNone)
		if err == nil && h != nil {
			o.Restored = true
			o.Scheme = s
			o.Handle = h
			break
		}
		m.logger.Printf("overlay restore: %s artifact %q for event %d: %v", s, artifact, eventID, err)
	}

	if o.Restored {
		restoreTotal.WithLabelValues(o.Scheme.String()).Inc()
		m.record(AuditEntry{Action: AuditRestore, Event: eventID, Anchor: anchor, Scheme: o.Scheme.String()})
	} else {
		restoreTotal.WithLabelValues("none").Inc()
		m.logger.Printf("overlay restore: no backup restored at %v for event %d", anchor, eventID)
		m.record(AuditEntry{Action: AuditRestoreFailed, Event: eventID, Anchor: anchor})
	}

	current := m.ArtifactPath(SchemeCurrent, anchor)
	if err := m.backups.Delete(current); err != nil {
		o.DeleteErr = err
		deleteErrors.Inc()
		m.logger.Printf("overlay restore: delete %q: %v", current, err)
		m.record(AuditEntry{Action: AuditDeleteFailed, Event: eventID, Anchor: anchor, Artifact: current, Reason: err.Error()})
	}
	return o
}
