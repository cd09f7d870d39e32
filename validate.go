package yquery

import (
	"github.com/bensku/y-query/ydoc"
)

// check validates v against the node, fully: every non-optional record
// field must be present, unknown record fields are rejected. fp is the
// dotted field path for error reporting.
func (n *Node) check(fp string, v any) error {
	switch n.kind {
	case KindString:
		if _, ok := v.(string); !ok {
			return validationErrf(fp, nil, "expected string, got %T", v)
		}
	case KindNumber:
		if !isNumeric(v) {
			return validationErrf(fp, nil, "expected number, got %T", v)
		}
	case KindBool:
		if _, ok := v.(bool); !ok {
			return validationErrf(fp, nil, "expected bool, got %T", v)
		}
	case KindRecord:
		m, ok := v.(map[string]any)
		if !ok {
			return validationErrf(fp, nil, "expected record, got %T", v)
		}
		for _, f := range n.fields {
			fv, present := m[f.name]
			if !present {
				// Raw containers are allocated by reads, so their absence
				// in a written row is not an error.
				if f.node.optional || f.node.kind == KindRaw {
					continue
				}
				return validationErrf(subField(fp, f.name), nil, "missing field")
			}
			if err := f.node.check(subField(fp, f.name), fv); err != nil {
				return err
			}
		}
		for name := range m {
			if n.fieldsByName[name] == nil {
				return validationErrf(subField(fp, name), nil, "unknown field")
			}
		}
	case KindUnion:
		m, ok := v.(map[string]any)
		if !ok {
			return validationErrf(fp, nil, "expected union value, got %T", v)
		}
		tag, ok := m[n.tag].(string)
		if !ok {
			return validationErrf(subField(fp, n.tag), nil, "missing discriminator")
		}
		variant := n.variantsByTag[tag]
		if variant == nil {
			return validationErrf(subField(fp, n.tag), nil, "unknown variant %q", tag)
		}
		rest := make(map[string]any, len(m)-1)
		for k, fv := range m {
			if k != n.tag {
				rest[k] = fv
			}
		}
		return variant.check(fp, rest)
	case KindRaw:
		return n.checkRaw(fp, v)
	}
	return nil
}

// checkPartial validates a partial-update value: record fields may be
// omitted, unknown fields pass through (they are written as-is), unions
// with a missing or unknown discriminator pass (the write drops them).
func (n *Node) checkPartial(fp string, v any) error {
	switch n.kind {
	case KindRecord:
		m, ok := v.(map[string]any)
		if !ok {
			return validationErrf(fp, nil, "expected record, got %T", v)
		}
		for name, fv := range m {
			f := n.fieldsByName[name]
			if f == nil {
				continue
			}
			if err := f.node.checkPartial(subField(fp, name), fv); err != nil {
				return err
			}
		}
		return nil
	case KindUnion:
		m, ok := v.(map[string]any)
		if !ok {
			return validationErrf(fp, nil, "expected union value, got %T", v)
		}
		tag, ok := m[n.tag].(string)
		if !ok {
			return nil
		}
		variant := n.variantsByTag[tag]
		if variant == nil {
			return nil
		}
		rest := make(map[string]any, len(m)-1)
		for k, fv := range m {
			if k != n.tag {
				rest[k] = fv
			}
		}
		return variant.checkPartial(fp, rest)
	case KindRaw:
		return n.checkRaw(fp, v)
	default:
		return n.check(fp, v)
	}
}

// checkRaw accepts nil (the container is allocated lazily by reads) or a
// live handle of the declared kind.
func (n *Node) checkRaw(fp string, v any) error {
	if v == nil {
		return nil
	}
	var got ydoc.ContainerKind
	switch v.(type) {
	case *ydoc.Map:
		got = ydoc.KindMap
	case *ydoc.List:
		got = ydoc.KindList
	case *ydoc.Text:
		got = ydoc.KindText
	default:
		return validationErrf(fp, nil, "expected %v container or nil, got %T", n.raw, v)
	}
	if got != n.raw {
		return validationErrf(fp, nil, "expected %v container, got %v", n.raw, got)
	}
	return nil
}

func isNumeric(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return true
	default:
		return false
	}
}
