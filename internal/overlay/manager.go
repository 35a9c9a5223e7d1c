// Package overlay places temporary event structures into a colony's world and
// puts the original content back when the event is over.
//
// Every overlay is preceded by a backup of the region it covers. The manager
// keeps an anchor -> event registry that survives restarts through WriteTo and
// ReadFrom, and reconciles it against the event authority on load.
package overlay

import (
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/df-mc/dragonfly/server/block/cube"

	"colonyevents.ai/internal/overlay/blueprint"
	"colonyevents.ai/internal/sim/voxel"
)

const DefaultBackupRoot = "structbackup"

var (
	ErrEventNotLive   = errors.New("overlay: event is not live")
	ErrAnchorOccupied = errors.New("overlay: anchor already holds an overlay")
)

type World = blueprint.World

// OwnerTag marks placed content with the colony and event it belongs to.
type OwnerTag = blueprint.Owner

type Event interface {
	EventID() int
}

type EventAuthority interface {
	EventByID(id int) (Event, bool)
}

// EventFunc adapts a lookup function to EventAuthority.
type EventFunc func(id int) (Event, bool)

func (f EventFunc) EventByID(id int) (Event, bool) { return f(id) }

type BackupStore interface {
	// Save captures the inclusive region [min, max]. It either stores the
	// whole region under artifact or stores nothing.
	Save(w World, min, max cube.Pos, artifact string) error
	Load(w World, artifact string, anchor cube.Pos, rot blueprint.Rotation, mirror blueprint.Mirror) (*blueprint.Handle, error)
	Delete(artifact string) error
}

type Placer interface {
	Place(w World, template string, at cube.Pos, rot blueprint.Rotation, mirror blueprint.Mirror, tag OwnerTag) (*blueprint.Handle, error)
}

type Deps struct {
	ColonyID  int
	Dimension voxel.Dimension

	World   World
	Events  EventAuthority
	Backups BackupStore
	Placer  Placer

	// BackupRoot prefixes every artifact name. Defaults to DefaultBackupRoot.
	BackupRoot string

	Logger *log.Logger
	Audit  Auditor
	// Tick stamps audit entries. Optional.
	Tick func() uint64
}

// Manager owns one colony's overlay registry. It is not safe for concurrent
// use; callers drive it from the simulation goroutine.
type Manager struct {
	colonyID   int
	dim        voxel.Dimension
	backupRoot string

	world   World
	events  EventAuthority
	backups BackupStore
	placer  Placer

	logger *log.Logger
	audit  Auditor
	tick   func() uint64

	reg registry
}

func NewManager(d Deps) (*Manager, error) {
	switch {
	case d.World == nil:
		return nil, fmt.Errorf("overlay: missing world")
	case d.Events == nil:
		return nil, fmt.Errorf("overlay: missing event authority")
	case d.Backups == nil:
		return nil, fmt.Errorf("overlay: missing backup store")
	case d.Placer == nil:
		return nil, fmt.Errorf("overlay: missing placer")
	}
	m := &Manager{
		colonyID:   d.ColonyID,
		dim:        d.Dimension,
		backupRoot: d.BackupRoot,
		world:      d.World,
		events:     d.Events,
		backups:    d.Backups,
		placer:     d.Placer,
		logger:     d.Logger,
		audit:      d.Audit,
		tick:       d.Tick,
		reg:        newRegistry(),
	}
	if m.backupRoot == "" {
		m.backupRoot = DefaultBackupRoot
	}
	if m.logger == nil {
		m.logger = log.New(io.Discard, "", 0)
	}
	return m, nil
}

func (m *Manager) ColonyID() int { return m.colonyID }

// EventAt reports which event owns the overlay at anchor.
func (m *Manager) EventAt(anchor cube.Pos) (int, bool) { return m.reg.get(anchor) }

// Overlays returns the registry in insertion order.
func (m *Manager) Overlays() []Record { return m.reg.records() }

func (m *Manager) Len() int { return m.reg.len() }

// ArtifactPath names the backup for anchor under the given scheme.
func (m *Manager) ArtifactPath(s NamingScheme, anchor cube.Pos) string {
	return s.Artifact(m.backupRoot, m.colonyID, m.dim, anchor)
}

func (m *Manager) record(e AuditEntry) {
	if m.audit == nil {
		return
	}
	if m.tick != nil {
		e.Tick = m.tick()
	}
	e.Colony = m.colonyID
	if err := m.audit.WriteAudit(e); err != nil {
		m.logger.Printf("overlay audit: %v", err)
	}
}
