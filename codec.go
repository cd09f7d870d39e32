package yquery

import (
	"log/slog"
	"sort"

	"github.com/bensku/y-query/ydoc"
)

// The row codec decomposes a row value into container writes and
// assembles a row value back from container reads. Both directions derive
// each field's storage location from the schema alone, so writers and
// readers always agree.

// writeRecord writes all fields present in value beneath path. Writes
// merge shallowly at each level: fields absent from value are not
// touched. root strips the key field.
func writeRecord(doc *ydoc.Doc, path []string, node *Node, value map[string]any, root bool) {
	m := doc.MapAt(path...)
	for _, f := range node.fields {
		if root && f.name == KeyField {
			continue
		}
		v, present := value[f.name]
		if !present {
			continue
		}
		writeField(doc, m, path, f.name, f.node, v)
	}

	// Unknown fields go inline as-is (partial updates are not validated
	// against the full schema). Sorted for deterministic write order.
	var unknown []string
	for name := range value {
		if root && name == KeyField {
			continue
		}
		if node.fieldsByName[name] == nil {
			unknown = append(unknown, name)
		}
	}
	sort.Strings(unknown)
	for _, name := range unknown {
		m.Set(name, value[name])
	}
}

func writeField(doc *ydoc.Doc, m *ydoc.Map, path []string, name string, node *Node, v any) {
	if node.storedInline() {
		m.Set(name, v)
		return
	}
	childPath := append(append([]string(nil), path...), name)
	switch node.kind {
	case KindRecord:
		mv, ok := v.(map[string]any)
		if !ok {
			return
		}
		writeRecord(doc, childPath, node, mv, false)
	case KindUnion:
		mv, ok := v.(map[string]any)
		if !ok {
			return
		}
		tag, _ := mv[node.tag].(string)
		variant := node.variantsByTag[tag]
		if variant == nil {
			if lg := doc.Logger(); lg != nil {
				lg.Warn("dropping write of unknown union variant",
					slog.String("field", name), slog.String("tag", tag))
			}
			return
		}
		cm := doc.MapAt(childPath...)
		cm.Set(node.tag, tag)
		rest := make(map[string]any, len(mv)-1)
		for k, fv := range mv {
			if k != node.tag {
				rest[k] = fv
			}
		}
		writeRecord(doc, childPath, variant, rest, false)
	case KindRaw:
		// Never overwritten; content is mutated through the handle.
	default:
		// syncAs on a primitive is a declaration mistake; storing inline
		// keeps reads and writes consistent anyway.
		m.Set(name, v)
	}
}

// readRecord assembles the record stored beneath path. It reports false
// when the stored data cannot be assembled at all (an unmatched union
// discriminator at any depth); missing fields are left to validation.
func readRecord(doc *ydoc.Doc, path []string, node *Node, root bool) (map[string]any, bool) {
	m := doc.MapAt(path...)
	out := make(map[string]any, len(node.fields))
	for _, f := range node.fields {
		if root && f.name == KeyField {
			continue
		}
		if f.node.storedInline() {
			if v, ok := m.GetOK(f.name); ok {
				out[f.name] = v
			}
			continue
		}
		childPath := append(append([]string(nil), path...), f.name)
		switch f.node.kind {
		case KindRecord:
			child, ok := readRecord(doc, childPath, f.node, false)
			if !ok {
				return nil, false
			}
			out[f.name] = child
		case KindUnion:
			cm := doc.MapAt(childPath...)
			tag, ok := cm.Get(f.node.tag).(string)
			if !ok {
				return nil, false
			}
			variant := f.node.variantsByTag[tag]
			if variant == nil {
				return nil, false
			}
			child, ok := readRecord(doc, childPath, variant, false)
			if !ok {
				return nil, false
			}
			child[f.node.tag] = tag
			out[f.name] = child
		case KindRaw:
			out[f.name] = rawHandle(doc, childPath, f.node.containerKind())
		default:
			// Forced sub-container storage for a primitive reads inline,
			// mirroring the write path.
			if v, ok := m.GetOK(f.name); ok {
				out[f.name] = v
			}
		}
	}
	return out, true
}

// rawHandle obtains the typed container handle, auto-allocating it.
func rawHandle(doc *ydoc.Doc, path []string, kind ydoc.ContainerKind) any {
	switch kind {
	case ydoc.KindList:
		return doc.ListAt(path...)
	case ydoc.KindText:
		return doc.TextAt(path...)
	default:
		return doc.MapAt(path...)
	}
}

// readRow assembles and validates the row with the given key, without
// consulting the table index. This is the probe the watcher uses on
// partially replicated rows; GetKey checks the index first.
func readRow(doc *ydoc.Doc, tbl *Table, key string) (Row, bool) {
	v, ok := readRecord(doc, []string{tbl.name, key}, tbl.root, true)
	if !ok {
		return nil, false
	}
	v[KeyField] = key
	if tbl.root.check("", v) != nil {
		// Assumed to be a transient partial-replication state.
		return nil, false
	}
	return v, true
}
