package yquery

import (
	"testing"

	"github.com/bensku/y-query/ydoc"
)

func collect() (*[]WatchEvent, WatchFunc) {
	events := &[]WatchEvent{}
	return events, func(ev WatchEvent) {
		*events = append(*events, ev)
	}
}

func lastEvent(t testing.TB, events *[]WatchEvent) WatchEvent {
	t.Helper()
	if len(*events) == 0 {
		t.Fatalf("** no events delivered")
	}
	return (*events)[len(*events)-1]
}

func countChanged(events *[]WatchEvent) int {
	n := 0
	for _, ev := range *events {
		n += len(ev.Changed)
	}
	return n
}

func TestWatchSeed(t *testing.T) {
	doc := newDoc(t)
	put(t, doc, tasksTable, Row{"key": "a", "foo": true, "bar": "x"})
	put(t, doc, tasksTable, Row{"key": "b", "foo": false, "bar": "y"})

	events, cb := collect()
	sub := Watch(doc, tasksTable, Eq("foo", true), LevelContent, cb)
	defer sub.Close()

	deepEqual(t, len(*events), 1)
	seed := (*events)[0]
	deepEqual(t, keysOf(seed.Added), []string{"a"})
	deepEqual(t, len(seed.Removed), 0)
	deepEqual(t, len(seed.Changed), 0)
	deepEqual(t, len(seed.Visible), 1)
}

func TestWatchSeedEmptySuppressed(t *testing.T) {
	doc := newDoc(t)
	events, cb := collect()
	sub := Watch(doc, tasksTable, Any(), LevelKeys, cb)
	defer sub.Close()
	deepEqual(t, len(*events), 0)
}

func TestWatchContentLifecycle(t *testing.T) {
	doc := newDoc(t)
	events, cb := collect()
	sub := Watch(doc, tasksTable, Eq("foo", true), LevelContent, cb)
	defer sub.Close()

	put(t, doc, tasksTable, Row{"key": "first", "foo": true, "bar": "one"})
	put(t, doc, tasksTable, Row{"key": "second", "foo": false, "bar": "two"})
	put(t, doc, tasksTable, Row{"key": "third", "foo": true, "bar": "three"})

	var added []string
	for _, ev := range *events {
		added = append(added, keysOf(ev.Added)...)
	}
	deepEqual(t, added, []string{"first", "third"})
	n := len(*events)

	// inline change of a visible row: one changed event
	patch(t, doc, tasksTable, Row{"key": "first", "bar": "updated"})
	deepEqual(t, len(*events), n+1)
	ev := lastEvent(t, events)
	deepEqual(t, keysOf(ev.Changed), []string{"first"})
	deepEqual(t, ev.Changed[0]["bar"].(string), "updated")

	// change that breaks the filter: removed, not changed
	patch(t, doc, tasksTable, Row{"key": "third", "foo": false})
	ev = lastEvent(t, events)
	deepEqual(t, keysOf(ev.Removed), []string{"third"})
	deepEqual(t, len(ev.Changed), 0)
	deepEqual(t, ev.Removed[0]["bar"].(string), "three")

	// soft delete of a visible row: removed with the last validated value
	n = len(*events)
	Remove(doc, tasksTable, "first")
	deepEqual(t, len(*events), n+1)
	ev = lastEvent(t, events)
	deepEqual(t, keysOf(ev.Removed), []string{"first"})
	deepEqual(t, ev.Removed[0]["bar"].(string), "updated")

	// soft delete of a filtered-out row: silent
	n = len(*events)
	Remove(doc, tasksTable, "second")
	deepEqual(t, len(*events), n)
}

func TestWatchLevelsInlineChange(t *testing.T) {
	for _, level := range []Level{LevelKeys, LevelContent, LevelDeep} {
		doc := newDoc(t)
		put(t, doc, notesTable, Row{"key": "k", "simple": "a", "nested": Row{"x": 1, "y": "s"}})

		events, cb := collect()
		sub := Watch(doc, notesTable, Any(), level, cb)

		patch(t, doc, notesTable, Row{"key": "k", "simple": "b"})

		want := 1
		if level == LevelKeys {
			want = 0
		}
		if got := countChanged(events); got != want {
			t.Errorf("** level %v: inline change fired %d changed, wanted %d", level, got, want)
		}
		sub.Close()
	}
}

func TestWatchLevelsSubContainerChange(t *testing.T) {
	for _, level := range []Level{LevelKeys, LevelContent, LevelDeep} {
		doc := newDoc(t)
		put(t, doc, notesTable, Row{"key": "k", "simple": "a", "nested": Row{"x": 1, "y": "s"}})

		events, cb := collect()
		sub := Watch(doc, notesTable, Any(), level, cb)

		patch(t, doc, notesTable, Row{"key": "k", "nested": Row{"x": 2}})

		want := 1
		if level != LevelDeep {
			want = 0
		}
		if got := countChanged(events); got != want {
			t.Errorf("** level %v: sub-container change fired %d changed, wanted %d", level, got, want)
		}
		sub.Close()
	}
}

func TestWatchRawContainerMutation(t *testing.T) {
	doc := newDoc(t)
	put(t, doc, notesTable, Row{"key": "k", "simple": "a", "nested": Row{"x": 1, "y": "s"}})

	contentEvents, contentCb := collect()
	deepEvents, deepCb := collect()
	contentSub := Watch(doc, notesTable, Any(), LevelContent, contentCb)
	deepSub := Watch(doc, notesTable, Any(), LevelDeep, deepCb)
	defer contentSub.Close()
	defer deepSub.Close()

	row := GetKey(doc, notesTable, "k")
	row["rawMap"].(*ydoc.Map).Set("direct", "write")

	deepEqual(t, countChanged(contentEvents), 0)
	deepEqual(t, countChanged(deepEvents), 1)
}

func TestWatchVisibleIdentity(t *testing.T) {
	doc := newDoc(t)
	events, cb := collect()
	sub := Watch(doc, tasksTable, Any(), LevelContent, cb)
	defer sub.Close()

	put(t, doc, tasksTable, Row{"key": "a", "foo": true, "bar": "x"})
	put(t, doc, tasksTable, Row{"key": "b", "foo": true, "bar": "y"})

	first := (*events)[0].Visible
	for _, ev := range *events {
		if !mapsShareIdentity(ev.Visible, first) {
			t.Fatalf("** Visible must be the same map across calls")
		}
	}
	deepEqual(t, len(first), 2)
}

// mapsShareIdentity checks map identity by mutating through one map and
// observing through the other.
func mapsShareIdentity(a, b map[string]Row) bool {
	const probe = "\x00probe"
	a[probe] = Row{}
	_, ok := b[probe]
	delete(a, probe)
	return ok
}

func TestWatchGroupsDisjoint(t *testing.T) {
	doc := newDoc(t)
	events, cb := collect()
	sub := Watch(doc, tasksTable, Eq("foo", true), LevelContent, cb)
	defer sub.Close()

	doc.Transact(func() {
		put(t, doc, tasksTable, Row{"key": "a", "foo": true, "bar": "x"})
		put(t, doc, tasksTable, Row{"key": "b", "foo": false, "bar": "y"})
	})

	for _, ev := range *events {
		seen := map[string]int{}
		for _, r := range ev.Added {
			seen[r[KeyField].(string)]++
		}
		for _, r := range ev.Removed {
			seen[r[KeyField].(string)]++
		}
		for _, r := range ev.Changed {
			seen[r[KeyField].(string)]++
		}
		for k, n := range seen {
			if n > 1 {
				t.Errorf("** key %s appears in %d groups of one event", k, n)
			}
		}
	}
}

func TestWatchCloseSilent(t *testing.T) {
	doc := newDoc(t)
	put(t, doc, tasksTable, Row{"key": "a", "foo": true, "bar": "x"})

	events, cb := collect()
	sub := Watch(doc, tasksTable, Any(), LevelDeep, cb)
	n := len(*events)

	sub.Close()
	sub.Close() // idempotent

	patch(t, doc, tasksTable, Row{"key": "a", "bar": "changed"})
	Remove(doc, tasksTable, "a")
	put(t, doc, tasksTable, Row{"key": "b", "foo": true, "bar": "y"})
	deepEqual(t, len(*events), n)
}

func TestWatchDeferredAdmission(t *testing.T) {
	// A row replicated field-by-field, index entry first: the watcher must
	// park the key and admit it once the row validates.
	src := newDoc(t)
	dst := ydoc.New(ydoc.Options{Actor: "dst"})

	var updates [][]byte
	src.OnUpdate(func(u []byte) {
		updates = append(updates, append([]byte(nil), u...))
	})
	src.Transact(func() {
		tasksTable.rowMap(src, "k").Set("foo", true)
	})
	src.Transact(func() {
		tasksTable.rowMap(src, "k").Set("bar", "x")
	})
	src.Transact(func() {
		tasksTable.indexMap(src).Set("k", true)
	})
	deepEqual(t, len(updates), 3)

	events, cb := collect()
	sub := Watch(dst, tasksTable, Any(), LevelContent, cb)
	defer sub.Close()

	// index arrives first: key present but row invalid, nothing emitted
	if err := dst.ApplyUpdate(updates[2]); err != nil {
		t.Fatal(err)
	}
	deepEqual(t, len(*events), 0)

	// first field arrives: still invalid
	if err := dst.ApplyUpdate(updates[0]); err != nil {
		t.Fatal(err)
	}
	deepEqual(t, len(*events), 0)

	// last field arrives: the row becomes valid and is admitted as added
	if err := dst.ApplyUpdate(updates[1]); err != nil {
		t.Fatal(err)
	}
	deepEqual(t, len(*events), 1)
	ev := lastEvent(t, events)
	deepEqual(t, keysOf(ev.Added), []string{"k"})
	deepEqual(t, ev.Added[0]["bar"].(string), "x")

	// the waiter is gone; the row observer has taken over
	patch(t, dst, tasksTable, Row{"key": "k", "bar": "again"})
	ev = lastEvent(t, events)
	deepEqual(t, keysOf(ev.Changed), []string{"k"})
}

func TestWatchPendingKeyRemoved(t *testing.T) {
	doc := newDoc(t)
	events, cb := collect()
	sub := Watch(doc, tasksTable, Any(), LevelContent, cb)
	defer sub.Close()

	// key present, row never valid
	doc.Transact(func() {
		tasksTable.rowMap(doc, "ghost").Set("foo", true)
		tasksTable.indexMap(doc).Set("ghost", true)
	})
	deepEqual(t, len(*events), 0)

	// removal of a never-visible key is silent
	Remove(doc, tasksTable, "ghost")
	deepEqual(t, len(*events), 0)

	// and its waiter is gone: completing the row later emits nothing
	doc.Transact(func() {
		tasksTable.rowMap(doc, "ghost").Set("bar", "late")
	})
	deepEqual(t, len(*events), 0)
}

func TestWatchSeedSkipsPartial(t *testing.T) {
	doc := newDoc(t)
	doc.Transact(func() {
		tasksTable.rowMap(doc, "p").Set("foo", true)
		tasksTable.indexMap(doc).Set("p", true)
	})

	events, cb := collect()
	sub := Watch(doc, tasksTable, Any(), LevelContent, cb)
	defer sub.Close()
	deepEqual(t, len(*events), 0)

	// the seeding pass parked the key; completing the row admits it
	patch(t, doc, tasksTable, Row{"key": "p", "bar": "done"})
	deepEqual(t, len(*events), 1)
	deepEqual(t, keysOf(lastEvent(t, events).Added), []string{"p"})
}

func TestWatchKeysLevelIgnoresContent(t *testing.T) {
	doc := newDoc(t)
	events, cb := collect()
	sub := Watch(doc, tasksTable, Any(), LevelKeys, cb)
	defer sub.Close()

	put(t, doc, tasksTable, Row{"key": "a", "foo": true, "bar": "x"})
	deepEqual(t, len(*events), 1)

	patch(t, doc, tasksTable, Row{"key": "a", "bar": "y"})
	deepEqual(t, len(*events), 1)

	Remove(doc, tasksTable, "a")
	deepEqual(t, len(*events), 2)
	deepEqual(t, keysOf(lastEvent(t, events).Removed), []string{"a"})
}
