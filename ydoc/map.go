package ydoc

import (
	"github.com/google/btree"
)

// Map is an ordered-key map container. Each key is a last-writer-wins
// register; deletions leave clocked tombstones so that later merges
// resolve correctly. Keys iterate in lexicographic order.
type Map struct {
	containerBase
	entries *btree.BTreeG[*mapEntry]
	obs     observers[MapEvent]

	// pending maps keys touched by the current transaction to whether the
	// key was live before the first touch.
	pending map[string]bool
}

type mapEntry struct {
	key     string
	value   any
	clock   uint64
	actor   string
	deleted bool
}

func entryLess(a, b *mapEntry) bool {
	return a.key < b.key
}

func newMap(base containerBase) *Map {
	return &Map{
		containerBase: base,
		entries:       btree.NewG(8, entryLess),
	}
}

func (m *Map) Kind() ContainerKind {
	return KindMap
}

func (m *Map) lookup(key string) *mapEntry {
	e, ok := m.entries.Get(&mapEntry{key: key})
	if !ok {
		return nil
	}
	return e
}

// Get returns the value under key, or nil when absent.
func (m *Map) Get(key string) any {
	v, _ := m.GetOK(key)
	return v
}

func (m *Map) GetOK(key string) (any, bool) {
	e := m.lookup(key)
	if e == nil || e.deleted {
		return nil, false
	}
	return e.value, true
}

func (m *Map) Has(key string) bool {
	_, ok := m.GetOK(key)
	return ok
}

func (m *Map) Len() int {
	n := 0
	m.entries.Ascend(func(e *mapEntry) bool {
		if !e.deleted {
			n++
		}
		return true
	})
	return n
}

// Keys returns the live keys in lexicographic order.
func (m *Map) Keys() []string {
	var keys []string
	m.entries.Ascend(func(e *mapEntry) bool {
		if !e.deleted {
			keys = append(keys, e.key)
		}
		return true
	})
	return keys
}

// Set assigns value under key. Assigning a value equal to the current one
// is a no-op and emits no event.
func (m *Map) Set(key string, value any) {
	v := Normalize(value)
	m.doc.with(func(t *txn) {
		if e := m.lookup(key); e != nil && !e.deleted && ValueEqual(e.value, v) {
			return
		}
		clock := m.doc.nextClock()
		m.apply(t, key, v, clock, m.doc.actor, false)
		t.record(op{
			Kind:      opMapSet,
			Path:      m.path,
			Container: KindMap,
			Key:       key,
			Value:     v,
			Clock:     clock,
		})
	})
}

// Delete removes key. Deleting an absent key is a no-op.
func (m *Map) Delete(key string) {
	m.doc.with(func(t *txn) {
		e := m.lookup(key)
		if e == nil || e.deleted {
			return
		}
		clock := m.doc.nextClock()
		m.apply(t, key, nil, clock, m.doc.actor, true)
		t.record(op{
			Kind:      opMapDelete,
			Path:      m.path,
			Container: KindMap,
			Key:       key,
			Clock:     clock,
		})
	})
}

// apply merges one register write, local or remote, resolving concurrent
// writes by (clock, actor). Reports whether the visible value changed.
func (m *Map) apply(t *txn, key string, value any, clock uint64, actor string, deleted bool) bool {
	e := m.lookup(key)
	if e != nil {
		if clock < e.clock || (clock == e.clock && actor <= e.actor) {
			return false
		}
	}
	liveBefore := e != nil && !e.deleted
	var oldValue any
	if liveBefore {
		oldValue = e.value
	}
	if e == nil {
		e = &mapEntry{key: key}
		m.entries.ReplaceOrInsert(e)
	}
	e.value = value
	e.clock = clock
	e.actor = actor
	e.deleted = deleted

	liveAfter := !deleted
	changed := liveBefore != liveAfter || (liveAfter && !ValueEqual(oldValue, value))
	if changed {
		t.markDirty(m)
		if m.pending == nil {
			m.pending = make(map[string]bool)
		}
		if _, touched := m.pending[key]; !touched {
			m.pending[key] = liveBefore
		}
	}
	return changed
}

// Observe registers a shallow observer fired once per transaction that
// mutates this map directly. Returns an idempotent disposer.
func (m *Map) Observe(fn func(MapEvent)) func() {
	return m.obs.add(fn)
}

func (m *Map) takeDeliveries(buf []delivery) []delivery {
	var ev MapEvent
	for key, liveBefore := range m.pending {
		liveNow := m.Has(key)
		switch {
		case !liveBefore && liveNow:
			ev.Added = append(ev.Added, key)
		case liveBefore && !liveNow:
			ev.Removed = append(ev.Removed, key)
		case liveBefore && liveNow:
			ev.Updated = append(ev.Updated, key)
		}
	}
	m.pending = nil
	sortStrings(ev.Added)
	sortStrings(ev.Removed)
	sortStrings(ev.Updated)
	return m.obs.deliveries(ev, buf)
}

func (m *Map) snap() *containerSnap {
	s := &containerSnap{Kind: uint8(KindMap), Path: m.path}
	m.entries.Ascend(func(e *mapEntry) bool {
		s.Entries = append(s.Entries, entrySnap{
			Key:     e.key,
			Value:   e.value,
			Clock:   e.clock,
			Actor:   e.actor,
			Deleted: e.deleted,
		})
		return true
	})
	return s
}

func (m *Map) loadSnap(s *containerSnap) {
	for _, es := range s.Entries {
		m.entries.ReplaceOrInsert(&mapEntry{
			key:     es.Key,
			value:   Normalize(es.Value),
			clock:   es.Clock,
			actor:   es.Actor,
			deleted: es.Deleted,
		})
	}
}
