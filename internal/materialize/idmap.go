package materialize

import (
	"github.com/rohankatakam/kgraph/internal/models"
)

// Ref is where an ephemeral id landed in the store
type Ref struct {
	Kind   models.Kind
	Handle models.Handle
}

// IdentifierMap translates the extractor's ephemeral ids into persisted
// handles for the duration of one batch. Lookups of unknown ids fail.
type IdentifierMap struct {
	refs map[string]Ref
}

func NewIdentifierMap() *IdentifierMap {
	return &IdentifierMap{refs: make(map[string]Ref)}
}

// Record maps id to ref. The first mapping for an id wins; Record reports
// false when id is empty or already taken.
func (m *IdentifierMap) Record(id string, ref Ref) bool {
	if id == "" {
		return false
	}
	if _, taken := m.refs[id]; taken {
		return false
	}
	m.refs[id] = ref
	return true
}

func (m *IdentifierMap) Lookup(id string) (Ref, bool) {
	ref, ok := m.refs[id]
	return ref, ok
}

func (m *IdentifierMap) Len() int {
	return len(m.refs)
}
