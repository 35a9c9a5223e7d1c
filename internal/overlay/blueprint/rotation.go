package blueprint

import "github.com/df-mc/dragonfly/server/block/cube"

// Rotation is a clockwise quarter-turn count around the Y axis.
type Rotation int

const (
	RotateNone Rotation = iota
	Rotate90
	Rotate180
	Rotate270
)

// RotationFromCount maps a quarter-turn count to a Rotation. Anything outside
// 1..3 is RotateNone.
func RotationFromCount(r int) Rotation {
	switch r {
	case 1:
		return Rotate90
	case 2:
		return Rotate180
	case 3:
		return Rotate270
	default:
		return RotateNone
	}
}

// Mirror flips a blueprint before it is rotated.
type Mirror int

const (
	MirrorNone Mirror = iota
	// MirrorLeftRight flips along the Z axis.
	MirrorLeftRight
	// MirrorFrontBack flips along the X axis.
	MirrorFrontBack
)

func (m Mirror) String() string {
	switch m {
	case MirrorLeftRight:
		return "LEFT_RIGHT"
	case MirrorFrontBack:
		return "FRONT_BACK"
	default:
		return "NONE"
	}
}

// rotateXZ rotates an (x,z) offset around the Y axis by rot*90 degrees clockwise.
func rotateXZ(x, z int, rot Rotation) (rx, rz int) {
	switch rot & 3 {
	case 0:
		return x, z
	case 1:
		return z, -x
	case 2:
		return -x, -z
	default: // 3
		return -z, x
	}
}

// transformPos maps a local position inside a box of the given size to its
// position inside the mirrored and rotated box. The result stays in
// [0, size') where size' is the transformed size.
func transformPos(p cube.Pos, size [3]int, rot Rotation, mirror Mirror) cube.Pos {
	x, y, z := p[0], p[1], p[2]
	switch mirror {
	case MirrorFrontBack:
		x = size[0] - 1 - x
	case MirrorLeftRight:
		z = size[2] - 1 - z
	}
	rx, rz := rotateXZ(x, z, rot)
	ax, az := rotateXZ(size[0]-1, size[2]-1, rot)
	if ax < 0 {
		rx -= ax
	}
	if az < 0 {
		rz -= az
	}
	return cube.Pos{rx, y, rz}
}

func transformSize(size [3]int, rot Rotation) [3]int {
	if rot&1 == 1 {
		return [3]int{size[2], size[1], size[0]}
	}
	return size
}
