package yquery

import (
	"testing"

	"github.com/bensku/y-query/ydoc"
)

func TestReplicatedCRUD(t *testing.T) {
	src := ydoc.New(ydoc.Options{Actor: "src"})
	dst := ydoc.New(ydoc.Options{Actor: "dst"})
	replicate(t, src, dst)

	put(t, src, tasksTable, Row{"key": "a", "foo": true, "bar": "x"})
	deepEqual(t, GetKey(dst, tasksTable, "a"), Row{"key": "a", "foo": true, "bar": "x"})

	patch(t, src, tasksTable, Row{"key": "a", "bar": "y"})
	deepEqual(t, GetKey(dst, tasksTable, "a")["bar"].(string), "y")

	Remove(src, tasksTable, "a")
	isnil(t, GetKey(dst, tasksTable, "a"))
}

func TestReplicatedWatch(t *testing.T) {
	src := ydoc.New(ydoc.Options{Actor: "src"})
	dst := ydoc.New(ydoc.Options{Actor: "dst"})
	replicate(t, src, dst)

	events, cb := collect()
	sub := Watch(dst, tasksTable, Eq("foo", true), LevelContent, cb)
	defer sub.Close()

	// an upsert arrives atomically, so the watcher admits in one step
	put(t, src, tasksTable, Row{"key": "a", "foo": true, "bar": "x"})
	deepEqual(t, len(*events), 1)
	deepEqual(t, keysOf(lastEvent(t, events).Added), []string{"a"})

	// an inline update of the admitted row arrives as a change
	patch(t, src, tasksTable, Row{"key": "a", "bar": "y"})
	deepEqual(t, keysOf(lastEvent(t, events).Changed), []string{"a"})

	patch(t, src, tasksTable, Row{"key": "a", "foo": false})
	deepEqual(t, keysOf(lastEvent(t, events).Removed), []string{"a"})
}

func TestReplicatedRawContainers(t *testing.T) {
	src := ydoc.New(ydoc.Options{Actor: "src"})
	dst := ydoc.New(ydoc.Options{Actor: "dst"})
	replicate(t, src, dst)

	put(t, src, docsTable, Row{"key": "d", "title": "t"})
	row := GetKey(src, docsTable, "d")
	row["body"].(*ydoc.Text).Insert(0, "shared text")
	row["tags"].(*ydoc.List).Push("tag1")

	got := GetKey(dst, docsTable, "d")
	deepEqual(t, got["body"].(*ydoc.Text).String(), "shared text")
	deepEqual(t, got["tags"].(*ydoc.List).Slice(), []any{"tag1"})
}
