package yquery

import (
	"testing"

	"github.com/bensku/y-query/ydoc"
)

func TestStorageKindDecision(t *testing.T) {
	cases := []struct {
		name   string
		node   *Node
		inline bool
	}{
		{"primitive", String(), true},
		{"record", Record(Field("x", Number())), false},
		{"shallow record", Record(Field("x", Number())).Shallow(), true},
		{"union", Union("t", Variant("a", Record())), false},
		{"shallow union", Union("t", Variant("a", Record())).Shallow(), true},
		{"raw map", RawMap(), false},
		{"raw text", RawText(), false},
		{"forced container", Record(Field("x", Number())).Shallow().SyncAs(ydoc.KindMap), false},
	}
	for _, c := range cases {
		if got := c.node.storedInline(); got != c.inline {
			t.Errorf("** %s: storedInline = %v, wanted %v", c.name, got, c.inline)
		}
	}
}

func TestSchemaDeclarationPanics(t *testing.T) {
	expectPanic := func(name string, f func()) {
		defer func() {
			if recover() == nil {
				t.Errorf("** %s: expected panic", name)
			}
		}()
		f()
	}
	expectPanic("duplicate field", func() {
		Record(Field("a", String()), Field("a", Number()))
	})
	expectPanic("duplicate variant", func() {
		Union("t", Variant("a", Record()), Variant("a", Record()))
	})
	expectPanic("variant declaring the tag", func() {
		Union("t", Variant("a", Record(Field("t", String()))))
	})
	expectPanic("non-record variant", func() {
		Variant("a", String())
	})
	expectPanic("table without key", func() {
		NewTable("broken", Record(Field("x", String())))
	})
	expectPanic("table with non-string key", func() {
		NewTable("broken", Record(Field("key", Number())))
	})
	expectPanic("table with optional key", func() {
		NewTable("broken", Record(Field("key", String().Optional())))
	})
}

func TestValidation(t *testing.T) {
	rec := Record(
		Field("s", String()),
		Field("n", Number()),
		Field("b", Bool()),
		Field("opt", String().Optional()),
	)

	if err := rec.check("", map[string]any{"s": "x", "n": 1, "b": true}); err != nil {
		t.Errorf("** valid value rejected: %v", err)
	}
	if err := rec.check("", map[string]any{"s": "x", "n": 1.5, "b": false, "opt": "y"}); err != nil {
		t.Errorf("** valid value with optional rejected: %v", err)
	}
	if err := rec.check("", map[string]any{"s": "x", "b": true}); err == nil {
		t.Errorf("** missing field accepted")
	}
	if err := rec.check("", map[string]any{"s": 1, "n": 1, "b": true}); err == nil {
		t.Errorf("** wrong type accepted")
	}
	if err := rec.check("", map[string]any{"s": "x", "n": 1, "b": true, "zz": 0}); err == nil {
		t.Errorf("** unknown field accepted")
	}
	if err := rec.check("", "not a record"); err == nil {
		t.Errorf("** non-record accepted")
	}
}

func TestValidationErrorContext(t *testing.T) {
	doc := newDoc(t)
	err := Upsert(doc, notesTable, Row{"key": "k", "simple": "s", "nested": Row{"x": "wrong", "y": "y"}})
	if err == nil {
		t.Fatalf("** expected validation error")
	}
	ve, ok := err.(*ValidationError)
	if !ok {
		t.Fatalf("** expected *ValidationError, got %T", err)
	}
	deepEqual(t, ve.Table, "notes")
	deepEqual(t, ve.Key, "k")
	deepEqual(t, ve.Field, "nested.x")
}

func TestEqLooseNumbers(t *testing.T) {
	doc := newDoc(t)
	tbl := NewTable("nums", Record(Field("key", String()), Field("n", Number())))
	put(t, doc, tbl, Row{"key": "a", "n": 42})

	deepEqual(t, len(Select(doc, tbl, Eq("n", 42))), 1)
	deepEqual(t, len(Select(doc, tbl, Eq("n", 42.0))), 1)
	deepEqual(t, len(Select(doc, tbl, Eq("n", int64(42)))), 1)
	deepEqual(t, len(Select(doc, tbl, Eq("n", 41))), 0)
}
