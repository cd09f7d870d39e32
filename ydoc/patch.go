package ydoc

import (
	"fmt"
	"log/slog"

	"github.com/cespare/xxhash/v2"
	"github.com/vmihailenco/msgpack/v5"
)

// Update wire format: an envelope holding the msgpack payload and its
// xxhash64, so truncated or corrupted updates are rejected before any
// operation is applied.

var (
	ErrChecksum      = fmt.Errorf("ydoc: update checksum mismatch")
	ErrBadUpdate     = fmt.Errorf("ydoc: malformed update")
	errStaleSnapshot = fmt.Errorf("ydoc: unsupported snapshot format")
)

type envelope struct {
	Payload []byte `msgpack:"p"`
	Sum     uint64 `msgpack:"x"`
}

type updatePayload struct {
	Actor string   `msgpack:"a"`
	Ops   []wireOp `msgpack:"o"`
}

type wireOp struct {
	Seq       uint64   `msgpack:"s"`
	Clock     uint64   `msgpack:"c"`
	Kind      uint8    `msgpack:"k"`
	Path      []string `msgpack:"p"`
	Container uint8    `msgpack:"n"`
	Key       string   `msgpack:"y,omitempty"`
	Value     any      `msgpack:"v,omitempty"`
	Elem      wireID   `msgpack:"e,omitempty"`
	Origin    wireID   `msgpack:"g,omitempty"`
}

type wireID struct {
	Actor string `msgpack:"a,omitempty"`
	Clock uint64 `msgpack:"c,omitempty"`
}

func seal(payload []byte) []byte {
	data, err := msgpack.Marshal(&envelope{Payload: payload, Sum: xxhash.Sum64(payload)})
	if err != nil {
		panic(fmt.Errorf("ydoc: encoding envelope: %w", err))
	}
	return data
}

func unseal(data []byte) ([]byte, error) {
	var env envelope
	if err := msgpack.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadUpdate, err)
	}
	if xxhash.Sum64(env.Payload) != env.Sum {
		return nil, ErrChecksum
	}
	return env.Payload, nil
}

func encodeUpdate(actor string, ops []op) []byte {
	p := updatePayload{Actor: actor, Ops: make([]wireOp, len(ops))}
	for i, o := range ops {
		p.Ops[i] = wireOp{
			Seq:       o.Seq,
			Clock:     o.Clock,
			Kind:      uint8(o.Kind),
			Path:      o.Path,
			Container: uint8(o.Container),
			Key:       o.Key,
			Value:     o.Value,
			Elem:      wireID{Actor: o.Elem.Actor, Clock: o.Elem.Clock},
			Origin:    wireID{Actor: o.Origin.Actor, Clock: o.Origin.Clock},
		}
	}
	payload, err := msgpack.Marshal(&p)
	if err != nil {
		panic(fmt.Errorf("ydoc: encoding update: %w", err))
	}
	return seal(payload)
}

// ApplyUpdate merges an update produced by another document's OnUpdate
// handler. Application is idempotent: operations already covered by the
// version vector are skipped. Events fire exactly like for local
// mutations, coalesced into one transaction.
func (d *Doc) ApplyUpdate(data []byte) error {
	payload, err := unseal(data)
	if err != nil {
		d.logf(slog.LevelWarn, "rejecting update", "err", err)
		return err
	}
	var p updatePayload
	if err := msgpack.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("%w: %v", ErrBadUpdate, err)
	}
	if p.Actor == "" {
		return fmt.Errorf("%w: missing actor", ErrBadUpdate)
	}

	if d.curTx != nil {
		// Updates do not join an open local transaction; their events must
		// coalesce independently of it.
		panic("ydoc: ApplyUpdate inside a transaction")
	}
	t := d.newTxn(true)
	d.curTx = t
	for _, wo := range p.Ops {
		if d.seen(p.Actor, wo.Seq) {
			continue
		}
		d.applyOp(t, p.Actor, wo)
		d.markSeen(p.Actor, wo.Seq)
		d.mergeClock(wo.Clock)
	}
	d.commit(t)
	return nil
}

func (d *Doc) applyOp(t *txn, actor string, wo wireOp) {
	// Remote data must not panic the document: anything that does not
	// resolve to a usable container is logged and skipped.
	kind := ContainerKind(wo.Container)
	if kind != KindMap && kind != KindList && kind != KindText || len(wo.Path) == 0 {
		d.logf(slog.LevelWarn, "skipping op with bad container", "kind", wo.Container, "path", pathString(wo.Path))
		return
	}
	for _, seg := range wo.Path {
		if seg == "" {
			d.logf(slog.LevelWarn, "skipping op with bad path", "path", pathString(wo.Path))
			return
		}
	}
	if c := d.lookup(wo.Path); c != nil && c.Kind() != kind {
		d.logf(slog.LevelWarn, "skipping op with conflicting container kind",
			"path", pathString(wo.Path), "have", c.Kind().String(), "want", kind.String())
		return
	}
	value, err := normalize(wo.Value)
	if err != nil {
		d.logf(slog.LevelWarn, "skipping op with bad value", "path", pathString(wo.Path), "err", err)
		return
	}
	c := d.containerAt(wo.Path, kind)
	switch opKind(wo.Kind) {
	case opMapSet:
		c.(*Map).apply(t, wo.Key, value, wo.Clock, actor, false)
	case opMapDelete:
		c.(*Map).apply(t, wo.Key, nil, wo.Clock, actor, true)
	case opSeqInsert:
		e := seqElem{
			id:     elemID{Actor: wo.Elem.Actor, Clock: wo.Elem.Clock},
			origin: elemID{Actor: wo.Origin.Actor, Clock: wo.Origin.Clock},
			value:  value,
		}
		switch c := c.(type) {
		case *List:
			c.applyInsert(t, e)
		case *Text:
			c.applyInsert(t, e)
		}
	case opSeqDelete:
		id := elemID{Actor: wo.Elem.Actor, Clock: wo.Elem.Clock}
		switch c := c.(type) {
		case *List:
			c.applyDelete(t, id)
		case *Text:
			c.applyDelete(t, id)
		}
	default:
		d.logf(slog.LevelWarn, "skipping unknown op", "kind", wo.Kind, "path", pathString(wo.Path))
	}
}
