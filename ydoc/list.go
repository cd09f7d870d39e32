package ydoc

// List is a list container: an ordered sequence of plain values.
type List struct {
	containerBase
	seq sequence
	obs observers[ListEvent]

	pending ListEvent
}

func (l *List) Kind() ContainerKind {
	return KindList
}

func (l *List) Len() int {
	return l.seq.visibleLen()
}

// Get returns the value at visible position i; panics when out of range.
func (l *List) Get(i int) any {
	j := l.seq.visibleAt(i)
	if j < 0 {
		panic("ydoc: list index out of range")
	}
	return l.seq.elems[j].value
}

// Slice returns the live values in order.
func (l *List) Slice() []any {
	out := make([]any, 0, l.seq.visibleLen())
	for i := range l.seq.elems {
		if !l.seq.elems[i].deleted {
			out = append(out, l.seq.elems[i].value)
		}
	}
	return out
}

// Insert places value at visible position i, which must be in [0, Len()].
func (l *List) Insert(i int, value any) {
	v := Normalize(value)
	origin := l.seq.originFor(i)
	l.doc.with(func(t *txn) {
		id := elemID{Actor: l.doc.actor, Clock: l.doc.nextClock()}
		l.seq.integrate(seqElem{id: id, origin: origin, value: v})
		l.touch(t)
		l.pending.Inserted++
		t.record(op{
			Kind:      opSeqInsert,
			Path:      l.path,
			Container: KindList,
			Elem:      id,
			Origin:    origin,
			Value:     v,
			Clock:     id.Clock,
		})
	})
}

func (l *List) Push(value any) {
	l.Insert(l.Len(), value)
}

// Delete removes the element at visible position i.
func (l *List) Delete(i int) {
	j := l.seq.visibleAt(i)
	if j < 0 {
		panic("ydoc: list index out of range")
	}
	l.doc.with(func(t *txn) {
		id := l.seq.elems[j].id
		l.seq.elems[j].deleted = true
		l.touch(t)
		l.pending.Deleted++
		t.record(op{
			Kind:      opSeqDelete,
			Path:      l.path,
			Container: KindList,
			Elem:      id,
			Clock:     l.doc.nextClock(),
		})
	})
}

func (l *List) touch(t *txn) {
	t.markDirty(l)
}

// applyInsert integrates a replicated element; a parked element (origin
// not replicated yet) emits nothing until it lands.
func (l *List) applyInsert(t *txn, e seqElem) {
	if n := l.seq.integrate(e); n > 0 {
		l.touch(t)
		l.pending.Inserted += n
	}
}

// applyDelete tombstones a replicated element.
func (l *List) applyDelete(t *txn, id elemID) {
	if l.seq.deleteByID(id) {
		l.touch(t)
		l.pending.Deleted++
	}
}

// Observe registers a shallow observer fired once per transaction that
// mutates this list. Returns an idempotent disposer.
func (l *List) Observe(fn func(ListEvent)) func() {
	return l.obs.add(fn)
}

func (l *List) takeDeliveries(buf []delivery) []delivery {
	ev := l.pending
	l.pending = ListEvent{}
	return l.obs.deliveries(ev, buf)
}

func (l *List) snap() *containerSnap {
	s := &containerSnap{Kind: uint8(KindList), Path: l.path}
	snapSeq(s, &l.seq)
	return s
}

func (l *List) loadSnap(s *containerSnap) {
	l.seq = loadSeq(s)
}

// snapSeq captures a sequence, parked elements and remembered deletes
// included, so a reloaded document keeps converging.
func snapSeq(s *containerSnap, seq *sequence) {
	s.Elems = snapElems(seq.elems)
	for _, list := range seq.pending {
		s.Parked = append(s.Parked, snapElems(list)...)
	}
	for id := range seq.pendingDel {
		s.ParkedDel = append(s.ParkedDel, wireID{Actor: id.Actor, Clock: id.Clock})
	}
}

func loadSeq(s *containerSnap) sequence {
	seq := sequence{elems: loadElems(s.Elems)}
	for _, e := range loadElems(s.Parked) {
		if seq.pending == nil {
			seq.pending = make(map[elemID][]seqElem)
		}
		seq.pending[e.origin] = append(seq.pending[e.origin], e)
	}
	for _, id := range s.ParkedDel {
		if seq.pendingDel == nil {
			seq.pendingDel = make(map[elemID]bool)
		}
		seq.pendingDel[elemID{Actor: id.Actor, Clock: id.Clock}] = true
	}
	return seq
}

func snapElems(elems []seqElem) []elemSnap {
	out := make([]elemSnap, len(elems))
	for i, e := range elems {
		out[i] = elemSnap{
			ID:      wireID{Actor: e.id.Actor, Clock: e.id.Clock},
			Origin:  wireID{Actor: e.origin.Actor, Clock: e.origin.Clock},
			Value:   e.value,
			Deleted: e.deleted,
		}
	}
	return out
}

func loadElems(snaps []elemSnap) []seqElem {
	elems := make([]seqElem, len(snaps))
	for i, es := range snaps {
		elems[i] = seqElem{
			id:      elemID{Actor: es.ID.Actor, Clock: es.ID.Clock},
			origin:  elemID{Actor: es.Origin.Actor, Clock: es.Origin.Clock},
			value:   Normalize(es.Value),
			deleted: es.Deleted,
		}
	}
	return elems
}
