package overlay

import (
	"fmt"
	"strconv"

	"github.com/df-mc/dragonfly/server/block/cube"

	"colonyevents.ai/internal/sim/voxel"
)

// NamingScheme selects how a backup artifact name is built from the colony,
// dimension and anchor.
type NamingScheme int

const (
	// SchemeCurrent: <root>/<colony>/<namespace><path>/<x_y_z>
	SchemeCurrent NamingScheme = iota
	// SchemeLegacy: <root><colony><namespace:path><x_y_z>, no separators.
	// Only read, for artifacts written by older servers.
	SchemeLegacy
)

// restoreSchemes is the lookup order used when restoring.
var restoreSchemes = []NamingScheme{SchemeCurrent, SchemeLegacy}

func (s NamingScheme) String() string {
	switch s {
	case SchemeCurrent:
		return "current"
	case SchemeLegacy:
		return "legacy"
	default:
		return "unknown"
	}
}

func (s NamingScheme) Artifact(root string, colonyID int, dim voxel.Dimension, anchor cube.Pos) string {
	colony := strconv.Itoa(colonyID)
	switch s {
	case SchemeLegacy:
		return root + colony + dim.Identifier() + anchorName(anchor)
	default:
		return root + "/" + colony + "/" + dim.Namespace + dim.Path + "/" + anchorName(anchor)
	}
}

func anchorName(p cube.Pos) string {
	return fmt.Sprintf("%d_%d_%d", p.X(), p.Y(), p.Z())
}
