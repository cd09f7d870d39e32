package yquery

import (
	"github.com/bensku/y-query/ydoc"
)

// Upsert validates row fully against the table schema and writes it in
// one transaction. The index entry is set last, so the row becomes
// logically present only after its fields are written. Invalid rows
// perform no mutation.
func Upsert(doc *ydoc.Doc, tbl *Table, row Row) error {
	if err := tbl.validateRow(row); err != nil {
		return err
	}
	key := row[KeyField].(string)
	doc.Transact(func() {
		writeRecord(doc, []string{tbl.name, key}, tbl.root, row, true)
		tbl.indexMap(doc).Set(key, true)
	})
	return nil
}

// Update merges partial into the row's containers without touching the
// table index. partial must contain the row key. Declared fields get
// field-level validation before anything is written; unknown fields are
// written as-is. If the row is not logically present, the writes are
// retained and become visible on a later Upsert of the same key.
func Update(doc *ydoc.Doc, tbl *Table, partial Row) error {
	key, err := tbl.rowKey(partial)
	if err != nil {
		return err
	}
	if err := inTable(tbl.root.checkPartial("", partial), tbl.name, key); err != nil {
		return err
	}
	doc.Transact(func() {
		writeRecord(doc, []string{tbl.name, key}, tbl.root, partial, true)
	})
	return nil
}

// Remove soft-deletes the row: the key leaves the table index, the row's
// containers stay in place. A later Upsert of the same key revives it.
func Remove(doc *ydoc.Doc, tbl *Table, key string) {
	tbl.indexMap(doc).Delete(key)
}

// GetKey returns the row under key, or nil when the key is not logically
// present or the row does not (yet) satisfy the schema.
func GetKey(doc *ydoc.Doc, tbl *Table, key string) Row {
	if !tbl.indexMap(doc).Has(key) {
		return nil
	}
	row, ok := readRow(doc, tbl, key)
	if !ok {
		return nil
	}
	return row
}

// Select returns the rows matching filter, in table-index iteration
// order. Rows that fail schema validation (partially replicated) are
// skipped.
func Select(doc *ydoc.Doc, tbl *Table, filter Filter) []Row {
	var out []Row
	for _, key := range tbl.indexMap(doc).Keys() {
		if !filter(tbl.rowMap(doc, key)) {
			continue
		}
		if row, ok := readRow(doc, tbl, key); ok {
			out = append(out, row)
		}
	}
	return out
}
