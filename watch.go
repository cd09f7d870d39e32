package yquery

import (
	"fmt"

	"github.com/bensku/y-query/ydoc"
)

// Level selects what a subscription reacts to.
type Level int

const (
	// LevelKeys reacts to table-index adds and removes only; Changed is
	// always empty.
	LevelKeys Level = iota
	// LevelContent additionally reacts to inline-field mutations of a
	// visible row's container, but not to mutations inside its
	// sub-containers.
	LevelContent
	// LevelDeep reacts to mutations anywhere beneath a visible row's
	// container, including raw shared containers.
	LevelDeep
)

func (l Level) String() string {
	switch l {
	case LevelKeys:
		return "keys"
	case LevelContent:
		return "content"
	case LevelDeep:
		return "deep"
	default:
		return fmt.Sprintf("invalid level %d", int(l))
	}
}

// WatchEvent is one notification to a subscriber. The three row groups
// are disjoint. Visible is the subscription's live key-to-row mapping: the
// same map value on every call, updated in place before delivery.
type WatchEvent struct {
	Added   []Row
	Removed []Row
	Changed []Row
	Visible map[string]Row
}

// WatchFunc receives notifications. It runs synchronously on the stack of
// the mutation or update application that triggered it and must not
// block.
type WatchFunc func(ev WatchEvent)

type rowStatus int

// Per-key states. Keys without an entry are absent or filtered out; no
// observer is attached to them, which is why a non-matching row's change
// back into the filter is not observed (a documented trade-off).
const (
	statusPending rowStatus = iota // logically present, awaiting validity
	statusVisible
)

type rowState struct {
	status  rowStatus
	dispose func() // wait-until-valid observer, or the row observer
}

// Subscription is a live filtered watch over one table. All fields are
// subscription-local; Close releases every attached observer.
type Subscription struct {
	doc    *ydoc.Doc
	tbl    *Table
	filter Filter
	level  Level
	cb     WatchFunc

	visible      map[string]Row
	states       map[string]*rowState
	indexDispose func()
	closed       bool
}

// Watch subscribes cb to the rows of tbl matching filter. The initial
// visible set is computed synchronously and, if non-empty, delivered as
// one seeding call before any other emission. A nil filter matches
// everything.
func Watch(doc *ydoc.Doc, tbl *Table, filter Filter, level Level, cb WatchFunc) *Subscription {
	if filter == nil {
		filter = Any()
	}
	s := &Subscription{
		doc:     doc,
		tbl:     tbl,
		filter:  filter,
		level:   level,
		cb:      cb,
		visible: make(map[string]Row),
		states:  make(map[string]*rowState),
	}
	s.indexDispose = tbl.indexMap(doc).Observe(s.onIndexEvent)

	var added []Row
	for _, key := range tbl.indexMap(doc).Keys() {
		s.admit(key, &added, nil)
	}
	if len(added) > 0 {
		s.cb(WatchEvent{Added: added, Visible: s.visible})
	}
	return s
}

// Close detaches the table-index observer and all per-row observers. It
// emits nothing and is idempotent.
func (s *Subscription) Close() {
	if s.closed {
		return
	}
	s.closed = true
	s.indexDispose()
	for _, st := range s.states {
		if st.dispose != nil {
			st.dispose()
		}
	}
	s.states = nil
}

func (s *Subscription) onIndexEvent(ev ydoc.MapEvent) {
	if s.closed {
		return
	}
	var added, removed []Row
	for _, key := range ev.Added {
		s.admit(key, &added, &removed)
	}
	for _, key := range ev.Removed {
		s.retire(key, &removed)
	}
	s.emit(added, removed, nil)
}

// admit runs the admission sequence for a logically present key: filter
// on the shallow container, then the full validated read. Filter-induced
// removals of previously visible keys are collected into removed so they
// ride in the same emission as the admissions of the triggering event.
func (s *Subscription) admit(key string, added, removed *[]Row) {
	rm := s.tbl.rowMap(s.doc, key)
	st := s.states[key]

	if !s.filter(rm) {
		if st != nil && st.status == statusVisible {
			s.dropVisible(key, st, removed)
		}
		// Pending keys keep their waiter: the next change retries
		// admission, filter included.
		return
	}

	if st != nil && st.status == statusVisible {
		return
	}
	row, ok := readRow(s.doc, s.tbl, key)
	if !ok {
		if st == nil {
			// Partially replicated: park until a deep change beneath the
			// row makes it valid.
			waiter := rm.ObserveDeep(func(ydoc.DeepEvent) {
				s.retryPending(key)
			})
			s.states[key] = &rowState{status: statusPending, dispose: waiter}
		}
		return
	}

	if st != nil && st.dispose != nil {
		st.dispose()
	}
	s.visible[key] = row
	*added = append(*added, row)
	s.states[key] = &rowState{status: statusVisible, dispose: s.observeRow(key, rm)}
}

// observeRow attaches the per-row observer appropriate for the level.
func (s *Subscription) observeRow(key string, rm *ydoc.Map) func() {
	switch s.level {
	case LevelContent:
		return rm.Observe(func(ydoc.MapEvent) {
			s.onRowEvent(key)
		})
	case LevelDeep:
		return rm.ObserveDeep(func(ydoc.DeepEvent) {
			s.onRowEvent(key)
		})
	default:
		return nil
	}
}

// retryPending re-runs admission for a parked key after a deep change.
func (s *Subscription) retryPending(key string) {
	if s.closed {
		return
	}
	var added, removed []Row
	s.admit(key, &added, &removed)
	s.emit(added, removed, nil)
}

// onRowEvent handles a mutation of a visible row at the subscribed level.
func (s *Subscription) onRowEvent(key string) {
	if s.closed {
		return
	}
	st := s.states[key]
	if st == nil || st.status != statusVisible {
		return
	}
	rm := s.tbl.rowMap(s.doc, key)
	if !s.filter(rm) {
		var removed []Row
		s.dropVisible(key, st, &removed)
		s.emit(nil, removed, nil)
		return
	}
	row, ok := readRow(s.doc, s.tbl, key)
	if !ok {
		// Another partial-replication window; the next fire retries.
		return
	}
	s.visible[key] = row
	s.emit(nil, nil, []Row{row})
}

// retire handles a key leaving the table index. Keys that were never
// visible disappear silently.
func (s *Subscription) retire(key string, removed *[]Row) {
	st := s.states[key]
	if st == nil {
		return
	}
	if st.status == statusVisible {
		s.dropVisible(key, st, removed)
		return
	}
	if st.dispose != nil {
		st.dispose()
	}
	delete(s.states, key)
}

func (s *Subscription) dropVisible(key string, st *rowState, removed *[]Row) {
	if st.dispose != nil {
		st.dispose()
	}
	delete(s.states, key)
	row := s.visible[key]
	delete(s.visible, key)
	if removed != nil {
		*removed = append(*removed, row)
	}
}

// emit invokes the callback unless the delta is empty.
func (s *Subscription) emit(added, removed, changed []Row) {
	if len(added) == 0 && len(removed) == 0 && len(changed) == 0 {
		return
	}
	s.cb(WatchEvent{Added: added, Removed: removed, Changed: changed, Visible: s.visible})
}
