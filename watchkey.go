package yquery

import (
	"github.com/bensku/y-query/ydoc"
)

// KeyFunc receives single-key notifications: the validated row, or nil
// when the key is not visible.
type KeyFunc func(row Row)

// KeySubscription is a live watch over a single row key.
type KeySubscription struct {
	doc   *ydoc.Doc
	tbl   *Table
	key   string
	level Level
	cb    KeyFunc

	rowDispose   func() // row observer or wait-until-valid observer
	indexDispose func()
	delivered    bool // last callback carried a row
	closed       bool
}

// WatchKey subscribes cb to the row under key: it is invoked immediately
// with the current validated row or nil, then on key appear (once valid),
// on key disappear (with nil), and on content changes at the requested
// level. Partially replicated states are swallowed; the callback only
// ever sees nil or a fully valid row.
func WatchKey(doc *ydoc.Doc, tbl *Table, key string, level Level, cb KeyFunc) *KeySubscription {
	s := &KeySubscription{doc: doc, tbl: tbl, key: key, level: level, cb: cb}
	s.indexDispose = tbl.indexMap(doc).Observe(s.onIndexEvent)

	var row Row
	if tbl.indexMap(doc).Has(key) {
		var ok bool
		row, ok = readRow(doc, tbl, key)
		if ok {
			s.attach()
		} else {
			s.wait()
		}
	}
	s.delivered = row != nil
	s.cb(row)
	return s
}

// Close detaches all observers without emitting.
func (s *KeySubscription) Close() {
	if s.closed {
		return
	}
	s.closed = true
	s.indexDispose()
	s.unwire()
}

func (s *KeySubscription) unwire() {
	if s.rowDispose != nil {
		s.rowDispose()
		s.rowDispose = nil
	}
}

func (s *KeySubscription) rowMap() *ydoc.Map {
	return s.tbl.rowMap(s.doc, s.key)
}

// attach wires the level-appropriate observer for a visible row. At
// LevelKeys only appear/disappear are delivered, so nothing is attached.
func (s *KeySubscription) attach() {
	switch s.level {
	case LevelContent:
		s.rowDispose = s.rowMap().Observe(func(ydoc.MapEvent) {
			s.onRowEvent()
		})
	case LevelDeep:
		s.rowDispose = s.rowMap().ObserveDeep(func(ydoc.DeepEvent) {
			s.onRowEvent()
		})
	}
}

// wait parks until a deep change makes the present-but-partial row valid.
func (s *KeySubscription) wait() {
	s.rowDispose = s.rowMap().ObserveDeep(func(ydoc.DeepEvent) {
		s.retry()
	})
}

func (s *KeySubscription) onIndexEvent(ev ydoc.MapEvent) {
	if s.closed {
		return
	}
	for _, k := range ev.Added {
		if k != s.key {
			continue
		}
		row, ok := readRow(s.doc, s.tbl, s.key)
		if ok {
			s.attach()
			s.delivered = true
			s.cb(row)
		} else {
			s.wait()
		}
		return
	}
	for _, k := range ev.Removed {
		if k != s.key {
			continue
		}
		s.unwire()
		if s.delivered {
			s.delivered = false
			s.cb(nil)
		}
		return
	}
}

func (s *KeySubscription) retry() {
	if s.closed {
		return
	}
	row, ok := readRow(s.doc, s.tbl, s.key)
	if !ok {
		return
	}
	s.unwire()
	s.attach()
	s.delivered = true
	s.cb(row)
}

func (s *KeySubscription) onRowEvent() {
	if s.closed {
		return
	}
	row, ok := readRow(s.doc, s.tbl, s.key)
	if !ok {
		return
	}
	s.delivered = true
	s.cb(row)
}
