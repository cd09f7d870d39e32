package yquery

import (
	"fmt"

	"github.com/bensku/y-query/ydoc"
)

// KeyField is the required row key field. It is synthesized from the row's
// path on read and never written into any container.
const KeyField = "key"

// Kind discriminates schema nodes. The set is closed: everything in the
// package dispatches on it.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindString
	KindNumber
	KindBool
	KindRecord
	KindUnion
	KindRaw
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindRecord:
		return "record"
	case KindUnion:
		return "union"
	case KindRaw:
		return "raw container"
	default:
		return fmt.Sprintf("invalid schema kind %d", uint8(k))
	}
}

// Node is one schema node: a declarative description of a field's type and
// its storage options. Nodes are built once at table-declaration time and
// never mutated afterwards.
type Node struct {
	kind Kind

	fields       []*FieldDef // record
	fieldsByName map[string]*FieldDef

	tag           string // union discriminator field name
	variants      []*VariantDef
	variantsByTag map[string]*Node

	raw      ydoc.ContainerKind // raw-container node kind
	syncAs   ydoc.ContainerKind // forced storage, 0 = derived from kind
	shallow  bool
	optional bool
}

type FieldDef struct {
	name string
	node *Node
}

type VariantDef struct {
	tag  string
	node *Node
}

func String() *Node { return &Node{kind: KindString} }
func Number() *Node { return &Node{kind: KindNumber} }
func Bool() *Node   { return &Node{kind: KindBool} }

// RawMap declares a field stored as a live map container that mutation
// operations never overwrite.
func RawMap() *Node { return &Node{kind: KindRaw, raw: ydoc.KindMap} }

// RawList declares a field stored as a live list container.
func RawList() *Node { return &Node{kind: KindRaw, raw: ydoc.KindList} }

// RawText declares a field stored as a live rich-text fragment.
func RawText() *Node { return &Node{kind: KindRaw, raw: ydoc.KindText} }

func Field(name string, node *Node) *FieldDef {
	if name == "" {
		panic("yquery: empty field name")
	}
	if node == nil {
		panic(fmt.Errorf("yquery: field %s has nil schema node", name))
	}
	return &FieldDef{name: name, node: node}
}

func Record(fields ...*FieldDef) *Node {
	n := &Node{kind: KindRecord, fieldsByName: make(map[string]*FieldDef, len(fields))}
	for _, f := range fields {
		if n.fieldsByName[f.name] != nil {
			panic(fmt.Errorf("yquery: duplicate field %s", f.name))
		}
		n.fields = append(n.fields, f)
		n.fieldsByName[f.name] = f
	}
	return n
}

func Variant(tagValue string, rec *Node) *VariantDef {
	if rec.kind != KindRecord {
		panic(fmt.Errorf("yquery: variant %q must be a record, got %v", tagValue, rec.kind))
	}
	return &VariantDef{tag: tagValue, node: rec}
}

// Union declares a tagged union: the string field named tag selects which
// variant record describes the rest of the value.
func Union(tag string, variants ...*VariantDef) *Node {
	if tag == "" {
		panic("yquery: union needs a discriminator field name")
	}
	n := &Node{kind: KindUnion, tag: tag, variantsByTag: make(map[string]*Node, len(variants))}
	for _, v := range variants {
		if v.node.fieldsByName[tag] != nil {
			panic(fmt.Errorf("yquery: variant %q declares the discriminator field %q itself", v.tag, tag))
		}
		if n.variantsByTag[v.tag] != nil {
			panic(fmt.Errorf("yquery: duplicate union variant %q", v.tag))
		}
		n.variants = append(n.variants, v)
		n.variantsByTag[v.tag] = v.node
	}
	return n
}

// Shallow stores this record or union inline in the parent row container
// instead of as its own sub-container.
func (n *Node) Shallow() *Node {
	n.shallow = true
	return n
}

// Optional marks the field's value as allowed to be absent.
func (n *Node) Optional() *Node {
	n.optional = true
	return n
}

// SyncAs forces storage as a sub-container of the given kind.
func (n *Node) SyncAs(kind ydoc.ContainerKind) *Node {
	n.syncAs = kind
	return n
}

// storedInline reports whether values of this node live inline in the
// parent row container. The decision is a pure function of the schema;
// readers and writers derive it identically.
func (n *Node) storedInline() bool {
	if n.syncAs != 0 {
		return false
	}
	switch n.kind {
	case KindRecord, KindUnion:
		return n.shallow
	case KindRaw:
		return false
	default:
		return true
	}
}

// containerKind returns the container kind of a sub-container node.
func (n *Node) containerKind() ydoc.ContainerKind {
	if n.syncAs != 0 {
		return n.syncAs
	}
	if n.kind == KindRaw {
		return n.raw
	}
	return ydoc.KindMap
}
