package ydoc

import "sort"

// elemID uniquely identifies a sequence element across replicas.
type elemID struct {
	Actor string
	Clock uint64
}

func (id elemID) isZero() bool {
	return id.Actor == "" && id.Clock == 0
}

// greater orders concurrent siblings: higher clock wins, actor breaks ties.
func (id elemID) greater(other elemID) bool {
	if id.Clock != other.Clock {
		return id.Clock > other.Clock
	}
	return id.Actor > other.Actor
}

type seqElem struct {
	id      elemID
	origin  elemID // element to the left at insertion time; zero = head
	value   any
	deleted bool
}

// sequence is the RGA core shared by List and Text: an ordered slice of
// uniquely identified elements with tombstone deletion. Concurrent inserts
// after the same origin order by descending element ID, so replicas that
// integrate the same element set agree on the order.
//
// Replication makes no causal-delivery promise, so an element can arrive
// before the element it attaches after. Such elements are parked, keyed by
// the missing origin ID, and integrated the moment the origin lands;
// deletes of not-yet-seen elements are remembered the same way. This is
// what keeps replicas convergent under arbitrary update reordering.
type sequence struct {
	elems      []seqElem
	pending    map[elemID][]seqElem // parked on their missing origin
	pendingDel map[elemID]bool      // deletes seen before the element
}

func (s *sequence) indexOf(id elemID) int {
	for i := range s.elems {
		if s.elems[i].id == id {
			return i
		}
	}
	return -1
}

// visibleAt returns the slice index of the i-th live element, or -1.
func (s *sequence) visibleAt(i int) int {
	n := 0
	for j := range s.elems {
		if s.elems[j].deleted {
			continue
		}
		if n == i {
			return j
		}
		n++
	}
	return -1
}

func (s *sequence) visibleLen() int {
	n := 0
	for i := range s.elems {
		if !s.elems[i].deleted {
			n++
		}
	}
	return n
}

// originFor returns the ID of the element a new element at visible
// position i should attach after. i must be in [0, visibleLen].
func (s *sequence) originFor(i int) elemID {
	if i == 0 {
		return elemID{}
	}
	j := s.visibleAt(i - 1)
	if j < 0 {
		panic("ydoc: sequence position out of range")
	}
	return s.elems[j].id
}

// integrate places e after its origin, or parks it until the origin
// arrives. Integrating an element unparks everything waiting on it,
// recursively. Re-integration of a known element is a no-op. Returns the
// number of elements that became visible.
func (s *sequence) integrate(e seqElem) int {
	if s.indexOf(e.id) >= 0 || s.isParked(e.id) {
		return 0
	}
	if !e.origin.isZero() && s.indexOf(e.origin) < 0 {
		if s.pending == nil {
			s.pending = make(map[elemID][]seqElem)
		}
		s.pending[e.origin] = append(s.pending[e.origin], e)
		return 0
	}
	if s.pendingDel[e.id] {
		delete(s.pendingDel, e.id)
		e.deleted = true
	}
	s.place(e)
	live := 0
	if !e.deleted {
		live = 1
	}
	for _, child := range s.takePending(e.id) {
		live += s.integrate(child)
	}
	return live
}

// place inserts e after its (present) origin, skipping concurrent
// siblings with greater IDs together with their descendant blocks.
func (s *sequence) place(e seqElem) {
	idx := 0
	if !e.origin.isZero() {
		idx = s.indexOf(e.origin) + 1
	}
	skipped := make(map[elemID]bool)
	for idx < len(s.elems) {
		cur := s.elems[idx]
		if cur.origin == e.origin {
			if cur.id.greater(e.id) {
				skipped[cur.id] = true
				idx++
				continue
			}
			break
		}
		if skipped[cur.origin] {
			skipped[cur.id] = true
			idx++
			continue
		}
		break
	}
	s.elems = append(s.elems, seqElem{})
	copy(s.elems[idx+1:], s.elems[idx:])
	s.elems[idx] = e
}

func (s *sequence) isParked(id elemID) bool {
	for _, list := range s.pending {
		for i := range list {
			if list[i].id == id {
				return true
			}
		}
	}
	return false
}

func (s *sequence) takePending(origin elemID) []seqElem {
	list := s.pending[origin]
	if list != nil {
		delete(s.pending, origin)
	}
	return list
}

// deleteByID tombstones the element. Reports whether it was live. Deletes
// of elements not integrated yet are remembered, so the element arrives
// dead whenever it lands.
func (s *sequence) deleteByID(id elemID) bool {
	i := s.indexOf(id)
	if i < 0 {
		if s.pendingDel == nil {
			s.pendingDel = make(map[elemID]bool)
		}
		s.pendingDel[id] = true
		return false
	}
	if s.elems[i].deleted {
		return false
	}
	s.elems[i].deleted = true
	return true
}

func sortStrings(ss []string) {
	sort.Strings(ss)
}
