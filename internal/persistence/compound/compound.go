// Package compound reads and writes tagged compounds: nested
// map[string]any values that are stored as little-endian NBT.
package compound

import (
	"fmt"

	"github.com/df-mc/dragonfly/server/block/cube"
	"github.com/sandertv/gophertunnel/minecraft/nbt"
)

type Tag = map[string]any

func Encode(t Tag) ([]byte, error) {
	if t == nil {
		t = Tag{}
	}
	b, err := nbt.MarshalEncoding(t, nbt.LittleEndian)
	if err != nil {
		return nil, fmt.Errorf("nbt encode: %w", err)
	}
	return b, nil
}

func Decode(b []byte) (Tag, error) {
	t := Tag{}
	if len(b) == 0 {
		return t, nil
	}
	if err := nbt.UnmarshalEncoding(b, &t, nbt.LittleEndian); err != nil {
		return nil, fmt.Errorf("nbt decode: %w", err)
	}
	return t, nil
}

func Compound(t Tag, key string) (Tag, bool) {
	v, ok := t[key].(map[string]any)
	return v, ok
}

// List returns the compounds stored under key. Non-compound elements are
// dropped; ok is false when key is missing or not a list.
func List(t Tag, key string) ([]Tag, bool) {
	switch v := t[key].(type) {
	case []map[string]any:
		return v, true
	case []any:
		out := make([]Tag, 0, len(v))
		for _, e := range v {
			if m, ok := e.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out, true
	default:
		return nil, false
	}
}

func Int(t Tag, key string) (int, bool) {
	switch v := t[key].(type) {
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case int16:
		return int(v), true
	case uint8:
		return int(v), true
	case int:
		return v, true
	default:
		return 0, false
	}
}

func Long(t Tag, key string) (int64, bool) {
	switch v := t[key].(type) {
	case int64:
		return v, true
	case int32:
		return int64(v), true
	case int:
		return int64(v), true
	default:
		return 0, false
	}
}

func String(t Tag, key string) (string, bool) {
	v, ok := t[key].(string)
	return v, ok
}

func PosTag(p cube.Pos) Tag {
	return Tag{"x": int32(p.X()), "y": int32(p.Y()), "z": int32(p.Z())}
}

func Pos(t Tag, key string) (cube.Pos, bool) {
	m, ok := Compound(t, key)
	if !ok {
		return cube.Pos{}, false
	}
	x, okx := Int(m, "x")
	y, oky := Int(m, "y")
	z, okz := Int(m, "z")
	if !okx || !oky || !okz {
		return cube.Pos{}, false
	}
	return cube.Pos{x, y, z}, true
}
