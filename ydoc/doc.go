/*
Package ydoc implements the replicated document that package yquery builds
its typed tables on: a tree of shared containers addressed by path.

We implement:

1. Ordered-key map containers, holding last-writer-wins registers under
string keys, iterated in key order.

2. List containers and text fragments, both backed by an RGA-style sequence
of uniquely identified elements with tombstone deletion.

3. Transactions that batch local mutations and coalesce events, so that
each mutated container fires at most one shallow event per transaction.

4. Shallow and deep observation with disposer functions.

5. Replication as encoded updates: every committed local transaction can be
encoded into a binary update (msgpack payload, xxhash checksum) and applied
to another document. Documents that exchange all updates converge, in any
order of application, including partial interleavings.

# Technical Details

**Paths.**
Containers live at slash-free string paths ("T", then "T"."K", and so on).
A container is auto-allocated on first access; requesting a different
container kind at an existing path is a programmer error and panics.

**Clocks.**
Each document has an actor ID and a Lamport clock. Every local operation
increments the clock; applying a remote operation advances the clock to at
least the operation's clock. Map registers resolve concurrent writes by
(clock, actor); sequence elements are identified by (actor, clock).

**Update format**: envelope, then payload.

**Envelope**: msgpack of {payload bytes, xxhash64 of payload}. Updates with
a wrong checksum are rejected without applying anything.

**Payload**: msgpack of {actor, operations}. Each operation carries a
per-actor sequence number; a version vector makes re-application a no-op.

A document is confined to a single goroutine. All mutations, event
deliveries and update applications run synchronously on the caller's stack.
*/
package ydoc

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
)

// ContainerKind identifies the shape of a shared container.
type ContainerKind uint8

const (
	KindInvalid ContainerKind = iota
	KindMap
	KindList
	KindText
)

func (k ContainerKind) String() string {
	switch k {
	case KindMap:
		return "map"
	case KindList:
		return "list"
	case KindText:
		return "text"
	default:
		return fmt.Sprintf("invalid container kind %d", uint8(k))
	}
}

// Container is the common surface of Map, List and Text.
type Container interface {
	Kind() ContainerKind
	Path() []string

	base() *containerBase
	takeDeliveries(buf []delivery) []delivery
	snap() *containerSnap
}

type Options struct {
	// Actor identifies this replica in clocks and element IDs. Defaults to
	// a fresh UUID.
	Actor string

	Logger  *slog.Logger
	Verbose bool
}

type Doc struct {
	actor string
	clock uint64
	seq   uint64                // local operation counter
	vv    map[string]*actorSeen // applied-operation tracking per actor

	containers map[string]Container
	order      []Container // allocation order, for deterministic iteration
	curTx      *txn
	updateObs  observers[[]byte]
	logger     *slog.Logger
	verbose    bool
}

func New(opt Options) *Doc {
	actor := opt.Actor
	if actor == "" {
		actor = uuid.NewString()
	}
	return &Doc{
		actor:      actor,
		vv:         make(map[string]*actorSeen),
		containers: make(map[string]Container),
		logger:     opt.Logger,
		verbose:    opt.Verbose,
	}
}

// actorSeen tracks which operation sequence numbers of one actor have
// been applied: a contiguous prefix plus a sparse set for operations that
// arrived ahead of their predecessors. This is what makes update
// application idempotent under arbitrary reordering.
type actorSeen struct {
	Contig uint64          `msgpack:"c"`
	Sparse map[uint64]bool `msgpack:"s,omitempty"`
}

func (d *Doc) seen(actor string, seq uint64) bool {
	as := d.vv[actor]
	if as == nil {
		return false
	}
	return seq <= as.Contig || as.Sparse[seq]
}

func (d *Doc) markSeen(actor string, seq uint64) {
	as := d.vv[actor]
	if as == nil {
		as = &actorSeen{}
		d.vv[actor] = as
	}
	if seq <= as.Contig || as.Sparse[seq] {
		return
	}
	if seq == as.Contig+1 {
		as.Contig = seq
		for as.Sparse[as.Contig+1] {
			as.Contig++
			delete(as.Sparse, as.Contig)
		}
		return
	}
	if as.Sparse == nil {
		as.Sparse = make(map[uint64]bool)
	}
	as.Sparse[seq] = true
}

func (d *Doc) Actor() string {
	return d.actor
}

// Logger returns the logger configured in Options, or nil.
func (d *Doc) Logger() *slog.Logger {
	return d.logger
}

// MapAt returns the ordered-key map container at the given path,
// allocating it on first access.
func (d *Doc) MapAt(path ...string) *Map {
	return d.containerAt(path, KindMap).(*Map)
}

// ListAt returns the list container at the given path, allocating it on
// first access.
func (d *Doc) ListAt(path ...string) *List {
	return d.containerAt(path, KindList).(*List)
}

// TextAt returns the text fragment at the given path, allocating it on
// first access.
func (d *Doc) TextAt(path ...string) *Text {
	return d.containerAt(path, KindText).(*Text)
}

const pathSep = "\x1f"

func pathKey(path []string) string {
	return strings.Join(path, pathSep)
}

func pathString(path []string) string {
	return strings.Join(path, ".")
}

func (d *Doc) containerAt(path []string, kind ContainerKind) Container {
	if len(path) == 0 {
		panic("ydoc: empty container path")
	}
	for _, seg := range path {
		if seg == "" {
			panic(fmt.Errorf("ydoc: empty segment in container path %q", pathString(path)))
		}
	}
	key := pathKey(path)
	if c := d.containers[key]; c != nil {
		if c.Kind() != kind {
			panic(fmt.Errorf("ydoc: container %s is a %v, requested %v", pathString(path), c.Kind(), kind))
		}
		return c
	}
	p := append([]string(nil), path...)
	base := containerBase{doc: d, path: p, pkey: key}
	var c Container
	switch kind {
	case KindMap:
		c = newMap(base)
	case KindList:
		c = &List{containerBase: base}
	case KindText:
		c = &Text{containerBase: base}
	default:
		panic(fmt.Errorf("ydoc: cannot allocate %v at %s", kind, pathString(path)))
	}
	d.containers[key] = c
	d.order = append(d.order, c)
	return c
}

func (d *Doc) lookup(path []string) Container {
	return d.containers[pathKey(path)]
}

func (d *Doc) nextClock() uint64 {
	d.clock++
	return d.clock
}

func (d *Doc) mergeClock(remote uint64) {
	if remote > d.clock {
		d.clock = remote
	}
}

func (d *Doc) logf(level slog.Level, msg string, args ...any) {
	if d.logger == nil {
		return
	}
	if level < slog.LevelWarn && !d.verbose {
		return
	}
	d.logger.Log(context.Background(), level, msg, args...)
}

type containerBase struct {
	doc  *Doc
	path []string
	pkey string
	deep observers[DeepEvent]
}

func (b *containerBase) Path() []string {
	return append([]string(nil), b.path...)
}

func (b *containerBase) base() *containerBase {
	return b
}

// ObserveDeep registers an observer fired once per transaction that
// mutates this container or any container beneath its path. The returned
// disposer unregisters it and is idempotent.
func (b *containerBase) ObserveDeep(fn func(DeepEvent)) func() {
	return b.deep.add(fn)
}
