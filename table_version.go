package tssi

import (
	"maps"
	"slices"
)

// sectionVersion identifies one section of one version of a sub-table
type sectionVersion struct {
	number  uint8
	version uint8
}

// versionedSubTable holds the sections committed for the current version of a sub-table
type versionedSubTable[T any] struct {
	sections map[uint8]T
	version  uint8
}

// versionTracker deduplicates sections per sub-table. A section already committed for the current version is
// ignored and a new version drops every section of the previous one.
type versionTracker[K comparable, T any] struct {
	subTables map[K]*versionedSubTable[T]
}

func (t *versionTracker[K, T]) reset() {
	t.subTables = nil
}

// retain drops every sub-table but the one of key, for tables carrying a single sub-table at a time
func (t *versionTracker[K, T]) retain(key K) {
	for k := range t.subTables {
		if k != key {
			delete(t.subTables, k)
		}
	}
}

// isCommitted checks whether the section has already been committed
func (t *versionTracker[K, T]) isCommitted(key K, v sectionVersion) bool {
	st, ok := t.subTables[key]
	if !ok || st.version != v.version {
		return false
	}
	_, ok = st.sections[v.number]
	return ok
}

// commit stores the decoded section and returns the sections of the sub-table ordered by section number
func (t *versionTracker[K, T]) commit(key K, v sectionVersion, item T) []T {
	if t.subTables == nil {
		t.subTables = make(map[K]*versionedSubTable[T])
	}
	st, ok := t.subTables[key]
	if !ok || st.version != v.version {
		st = &versionedSubTable[T]{
			sections: make(map[uint8]T),
			version:  v.version,
		}
		t.subTables[key] = st
	}
	st.sections[v.number] = item

	items := make([]T, 0, len(st.sections))
	for _, n := range slices.Sorted(maps.Keys(st.sections)) {
		items = append(items, st.sections[n])
	}
	return items
}

// processCallback is the notification slot every decoder carries
type processCallback struct {
	fn func()
}

// SetProcessCallback registers the function called each time the decoder publishes new data. Registering again
// replaces the previous function.
func (c *processCallback) SetProcessCallback(fn func()) {
	c.fn = fn
}

func (c *processCallback) notify() {
	if c.fn != nil {
		c.fn()
	}
}
