package ydoc

type opKind uint8

const (
	opMapSet opKind = iota + 1
	opMapDelete
	opSeqInsert
	opSeqDelete
)

// op is one recorded mutation, in both in-memory and wire shape.
type op struct {
	Seq       uint64
	Clock     uint64
	Kind      opKind
	Path      []string
	Container ContainerKind
	Key       string // map ops
	Value     any
	Elem      elemID // sequence ops
	Origin    elemID
}

type txn struct {
	doc    *Doc
	remote bool

	dirty     map[string]Container
	dirtyList []Container
	ops       []op
}

func (t *txn) markDirty(c Container) {
	key := c.base().pkey
	if _, ok := t.dirty[key]; ok {
		return
	}
	t.dirty[key] = c
	t.dirtyList = append(t.dirtyList, c)
}

func (t *txn) record(o op) {
	if t.remote {
		return
	}
	t.doc.seq++
	o.Seq = t.doc.seq
	t.ops = append(t.ops, o)
}

func (d *Doc) newTxn(remote bool) *txn {
	return &txn{doc: d, remote: remote, dirty: make(map[string]Container)}
}

// Transact runs f inside one transaction. Mutations made by f are applied
// immediately, but events coalesce and fire once when the outermost
// transaction ends. Nested calls join the enclosing transaction; mutations
// made outside any Transact auto-wrap in a transaction of their own.
func (d *Doc) Transact(f func()) {
	if d.curTx != nil {
		f()
		return
	}
	t := d.newTxn(false)
	d.curTx = t
	f()
	d.commit(t)
}

// with runs one mutation under the current transaction, or under a fresh
// auto-committed one.
func (d *Doc) with(f func(t *txn)) {
	if d.curTx != nil {
		f(d.curTx)
		return
	}
	t := d.newTxn(false)
	d.curTx = t
	f(t)
	d.commit(t)
}

// OnUpdate registers a handler invoked after every committed local
// transaction that performed at least one mutation, with the encoded
// update. Returns an idempotent disposer.
func (d *Doc) OnUpdate(fn func(update []byte)) func() {
	return d.updateObs.add(fn)
}

// commit fires coalesced events for the ended transaction. Observer sets
// are snapshotted before the first callback runs: observers attached
// during delivery (the watcher engine does this) do not see the current
// transaction, and disposed ones are skipped.
func (d *Doc) commit(t *txn) {
	var deliveries []delivery
	for _, c := range t.dirtyList {
		deliveries = c.takeDeliveries(deliveries)
	}
	deliveries = d.deepDeliveries(t, deliveries)

	var update []byte
	if len(t.ops) > 0 && !t.remote && !d.updateObs.empty() {
		update = encodeUpdate(d.actor, t.ops)
	}
	if !t.remote {
		for _, o := range t.ops {
			d.markSeen(d.actor, o.Seq)
		}
	}

	d.curTx = nil
	for _, f := range deliveries {
		f()
	}
	if update != nil {
		for _, f := range d.updateObs.deliveries(update, nil) {
			f()
		}
	}
}

func (d *Doc) deepDeliveries(t *txn, buf []delivery) []delivery {
	type deepAcc struct {
		c     Container
		paths [][]string
	}
	var accs []*deepAcc
	byKey := make(map[string]*deepAcc)
	for _, c := range t.dirtyList {
		p := c.base().path
		for i := 1; i <= len(p); i++ {
			anc := d.lookup(p[:i])
			if anc == nil || anc.base().deep.empty() {
				continue
			}
			key := anc.base().pkey
			acc := byKey[key]
			if acc == nil {
				acc = &deepAcc{c: anc}
				byKey[key] = acc
				accs = append(accs, acc)
			}
			acc.paths = append(acc.paths, c.Path())
		}
	}
	for _, acc := range accs {
		buf = acc.c.base().deep.deliveries(DeepEvent{Paths: acc.paths}, buf)
	}
	return buf
}
