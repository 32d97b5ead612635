package engine

import (
	"slices"

	"github.com/lisahligono/semantique/pkg/core"
)

// activeStack holds the active evaluation objects of the chains currently
// running along one lineage. The top is the innermost chain.
type activeStack struct {
	items []core.Value
}

func (s *activeStack) push(v core.Value) { s.items = append(s.items, v) }

func (s *activeStack) pop() {
	if len(s.items) > 0 {
		s.items = s.items[:len(s.items)-1]
	}
}

func (s *activeStack) top() (core.Value, bool) {
	if len(s.items) == 0 {
		return nil, false
	}
	return s.items[len(s.items)-1], true
}

func (s *activeStack) replace(v core.Value) {
	if len(s.items) > 0 {
		s.items[len(s.items)-1] = v
	}
}

// scope is the per-lineage part of an evaluation. It is never shared between
// goroutines: the stack is shared with nested chains of the same lineage, the
// in-flight path is copied whenever a result or concept is entered.
type scope struct {
	stack    *activeStack
	inflight []string
}

func newScope() scope {
	return scope{stack: &activeStack{}}
}

// isolated returns a scope with an empty stack and the same in-flight path.
func (s scope) isolated() scope {
	return scope{stack: &activeStack{}, inflight: s.inflight}
}

// entering returns a scope whose in-flight path is extended by key.
func (s scope) entering(key string) scope {
	path := make([]string, len(s.inflight), len(s.inflight)+1)
	copy(path, s.inflight)
	return scope{stack: s.stack, inflight: append(path, key)}
}

func (s scope) inFlight(key string) bool {
	return slices.Contains(s.inflight, key)
}
