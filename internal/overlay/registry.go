package overlay

import (
	"slices"

	"github.com/df-mc/dragonfly/server/block/cube"
)

// Record is one registry entry: the overlay anchor and the event owning it.
type Record struct {
	Pos     cube.Pos
	EventID int
}

// registry maps anchors to event ids and remembers insertion order so that
// serialization is stable.
type registry struct {
	byAnchor map[cube.Pos]int
	order    []cube.Pos
}

func newRegistry() registry {
	return registry{byAnchor: map[cube.Pos]int{}}
}

func (r *registry) get(anchor cube.Pos) (int, bool) {
	id, ok := r.byAnchor[anchor]
	return id, ok
}

// put inserts anchor -> id. It reports false if the anchor is taken.
func (r *registry) put(anchor cube.Pos, id int) bool {
	if _, ok := r.byAnchor[anchor]; ok {
		return false
	}
	r.byAnchor[anchor] = id
	r.order = append(r.order, anchor)
	return true
}

func (r *registry) remove(anchor cube.Pos) {
	if _, ok := r.byAnchor[anchor]; !ok {
		return
	}
	delete(r.byAnchor, anchor)
	if i := slices.Index(r.order, anchor); i >= 0 {
		r.order = slices.Delete(r.order, i, i+1)
	}
}

// anchorsFor returns a copy of the anchors owned by id, in insertion order.
func (r *registry) anchorsFor(id int) []cube.Pos {
	var out []cube.Pos
	for _, a := range r.order {
		if r.byAnchor[a] == id {
			out = append(out, a)
		}
	}
	return out
}

func (r *registry) records() []Record {
	out := make([]Record, 0, len(r.order))
	for _, a := range r.order {
		out = append(out, Record{Pos: a, EventID: r.byAnchor[a]})
	}
	return out
}

func (r *registry) len() int { return len(r.order) }

func (r *registry) reset() {
	r.byAnchor = map[cube.Pos]int{}
	r.order = nil
}
