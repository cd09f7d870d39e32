package yquery

import (
	"fmt"

	"github.com/bensku/y-query/ydoc"
)

// Row is a plain record value conforming to a table's schema.
type Row = map[string]any

// Table is a named collection of rows sharing one schema. Tables own
// nothing: they are stateless views over the document's containers, so the
// same Table value works against any number of documents.
//
// Table names must be unique within a document; declaring two tables with
// the same name against one document is the caller's mistake and yields
// undefined behaviour.
type Table struct {
	name string
	root *Node
}

func NewTable(name string, rowSchema *Node) *Table {
	if name == "" {
		panic("yquery: empty table name")
	}
	if rowSchema == nil || rowSchema.kind != KindRecord {
		panic(fmt.Errorf("yquery: table %s: row schema must be a record", name))
	}
	kf := rowSchema.fieldsByName[KeyField]
	if kf == nil {
		panic(fmt.Errorf("yquery: table %s: row schema must declare a %q field", name, KeyField))
	}
	if kf.node.kind != KindString || kf.node.optional {
		panic(fmt.Errorf("yquery: table %s: the %q field must be a required string", name, KeyField))
	}
	return &Table{name: name, root: rowSchema}
}

func (tbl *Table) Name() string {
	return tbl.name
}

// indexMap is the table-index container: its keys are the live row keys.
func (tbl *Table) indexMap(doc *ydoc.Doc) *ydoc.Map {
	return doc.MapAt(tbl.name)
}

// rowMap is the shallow row container for one key.
func (tbl *Table) rowMap(doc *ydoc.Doc, key string) *ydoc.Map {
	return doc.MapAt(tbl.name, key)
}

func (tbl *Table) rowKey(row Row) (string, error) {
	key, ok := row[KeyField].(string)
	if !ok || key == "" {
		return "", inTable(validationErrf(KeyField, nil, "missing row key"), tbl.name, "")
	}
	return key, nil
}

func (tbl *Table) validateRow(row Row) error {
	key, err := tbl.rowKey(row)
	if err != nil {
		return err
	}
	return inTable(tbl.root.check("", row), tbl.name, key)
}
