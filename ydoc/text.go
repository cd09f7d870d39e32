package ydoc

import "strings"

// Text is a rich-text fragment stored as a sequence of single runes, so
// concurrent edits merge at rune granularity. Formatting attributes are
// not modeled.
type Text struct {
	containerBase
	seq sequence
	obs observers[TextEvent]

	pending TextEvent
}

func (x *Text) Kind() ContainerKind {
	return KindText
}

// Len returns the length in runes.
func (x *Text) Len() int {
	return x.seq.visibleLen()
}

func (x *Text) String() string {
	var b strings.Builder
	for i := range x.seq.elems {
		if !x.seq.elems[i].deleted {
			b.WriteString(x.seq.elems[i].value.(string))
		}
	}
	return b.String()
}

// Insert places s at rune position i, which must be in [0, Len()].
func (x *Text) Insert(i int, s string) {
	if s == "" {
		return
	}
	origin := x.seq.originFor(i)
	x.doc.with(func(t *txn) {
		for _, r := range s {
			id := elemID{Actor: x.doc.actor, Clock: x.doc.nextClock()}
			v := string(r)
			x.seq.integrate(seqElem{id: id, origin: origin, value: v})
			x.pending.Inserted++
			t.record(op{
				Kind:      opSeqInsert,
				Path:      x.path,
				Container: KindText,
				Elem:      id,
				Origin:    origin,
				Value:     v,
				Clock:     id.Clock,
			})
			origin = id
		}
		t.markDirty(x)
	})
}

// Delete removes n runes starting at rune position i.
func (x *Text) Delete(i, n int) {
	if n <= 0 {
		return
	}
	if i < 0 || i+n > x.Len() {
		panic("ydoc: text position out of range")
	}
	x.doc.with(func(t *txn) {
		for k := 0; k < n; k++ {
			j := x.seq.visibleAt(i)
			id := x.seq.elems[j].id
			x.seq.elems[j].deleted = true
			x.pending.Deleted++
			t.record(op{
				Kind:      opSeqDelete,
				Path:      x.path,
				Container: KindText,
				Elem:      id,
				Clock:     x.doc.nextClock(),
			})
		}
		t.markDirty(x)
	})
}

func (x *Text) applyInsert(t *txn, e seqElem) {
	if n := x.seq.integrate(e); n > 0 {
		t.markDirty(x)
		x.pending.Inserted += n
	}
}

func (x *Text) applyDelete(t *txn, id elemID) {
	if x.seq.deleteByID(id) {
		t.markDirty(x)
		x.pending.Deleted++
	}
}

// Observe registers a shallow observer fired once per transaction that
// mutates this fragment. Returns an idempotent disposer.
func (x *Text) Observe(fn func(TextEvent)) func() {
	return x.obs.add(fn)
}

func (x *Text) takeDeliveries(buf []delivery) []delivery {
	ev := x.pending
	x.pending = TextEvent{}
	return x.obs.deliveries(ev, buf)
}

func (x *Text) snap() *containerSnap {
	s := &containerSnap{Kind: uint8(KindText), Path: x.path}
	snapSeq(s, &x.seq)
	return s
}

func (x *Text) loadSnap(s *containerSnap) {
	x.seq = loadSeq(s)
}
