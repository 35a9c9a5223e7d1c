// Package placer writes catalog blueprints into a world and remembers what
// it placed for whom.
package placer

import (
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/df-mc/dragonfly/server/block/cube"

	"colonyevents.ai/internal/overlay/blueprint"
	"colonyevents.ai/internal/sim/catalogs"
)

var ErrUnknownTemplate = errors.New("placer: unknown template")

type Engine struct {
	templates map[string]*blueprint.Blueprint
	placed    map[blueprint.Owner][]blueprint.Handle
}

func New(cat catalogs.BlueprintCatalog) *Engine {
	e := &Engine{
		templates: make(map[string]*blueprint.Blueprint, len(cat.ByID)),
		placed:    map[blueprint.Owner][]blueprint.Handle{},
	}
	for id, def := range cat.ByID {
		e.templates[id] = blueprint.FromDef(def)
	}
	return e
}

// templateID accepts a bare id or a path such as "blueprints/raider_camp.json".
func templateID(template string) string {
	return strings.TrimSuffix(path.Base(template), ".json")
}

func (e *Engine) Template(template string) (*blueprint.Blueprint, error) {
	bp, ok := e.templates[templateID(template)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTemplate, template)
	}
	return bp, nil
}

func (e *Engine) Templates() []string {
	out := make([]string, 0, len(e.templates))
	for id := range e.templates {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Place writes template so its primary block lands on at, and records the
// handle under tag.
func (e *Engine) Place(w blueprint.World, template string, at cube.Pos, rot blueprint.Rotation, mirror blueprint.Mirror, tag blueprint.Owner) (*blueprint.Handle, error) {
	bp, err := e.Template(template)
	if err != nil {
		return nil, err
	}
	h, err := bp.Place(w, at, rot, mirror)
	if err != nil {
		return nil, err
	}
	h.Owner = tag
	e.placed[tag] = append(e.placed[tag], h)
	return &h, nil
}

func (e *Engine) HandlesFor(tag blueprint.Owner) []blueprint.Handle {
	return append([]blueprint.Handle(nil), e.placed[tag]...)
}

// Forget drops the handles recorded for tag and returns how many there were.
func (e *Engine) Forget(tag blueprint.Owner) int {
	n := len(e.placed[tag])
	delete(e.placed, tag)
	return n
}
