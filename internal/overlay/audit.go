package overlay

import (
	"errors"

	"github.com/df-mc/dragonfly/server/block/cube"
)

const (
	AuditSpawn         = "OVERLAY_SPAWN"
	AuditBackupFailed  = "OVERLAY_BACKUP_FAILED"
	AuditPlaceFailed   = "OVERLAY_PLACE_FAILED"
	AuditRestore       = "OVERLAY_RESTORE"
	AuditRestoreFailed = "OVERLAY_RESTORE_FAILED"
	AuditDeleteFailed  = "OVERLAY_DELETE_FAILED"
	AuditOrphan        = "OVERLAY_ORPHAN"
)

type AuditEntry struct {
	Tick     uint64   `json:"tick"`
	Colony   int      `json:"colony"`
	Event    int      `json:"event"`
	Action   string   `json:"action"`
	Anchor   cube.Pos `json:"anchor"`
	Template string   `json:"template,omitempty"`
	Artifact string   `json:"artifact,omitempty"`
	Scheme   string   `json:"scheme,omitempty"`
	Reason   string   `json:"reason,omitempty"`
}

type Auditor interface {
	WriteAudit(e AuditEntry) error
}

// MultiAuditor writes every entry to each auditor in turn.
type MultiAuditor []Auditor

func (m MultiAuditor) WriteAudit(e AuditEntry) error {
	var errs []error
	for _, a := range m {
		if a == nil {
			continue
		}
		if err := a.WriteAudit(e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
