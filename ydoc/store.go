package ydoc

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"go.etcd.io/bbolt"
)

// Snapshot persistence. A document saves into a single bbolt file: a meta
// bucket with format version, actor, clock and version vector, and a
// containers bucket keyed by container path. Container states are sealed
// with the same checksummed envelope as updates. A loaded document keeps
// merging correctly: clocks and the version vector survive the round-trip.

const snapshotFormat = 1

var (
	metaBucket       = []byte("meta")
	containersBucket = []byte("containers")

	metaFormatKey = []byte("format")
	metaActorKey  = []byte("actor")
	metaClockKey  = []byte("clock")
	metaSeqKey    = []byte("seq")
	metaVVKey     = []byte("vv")
)

type containerSnap struct {
	Kind      uint8       `msgpack:"k"`
	Path      []string    `msgpack:"p"`
	Entries   []entrySnap `msgpack:"e,omitempty"`
	Elems     []elemSnap  `msgpack:"l,omitempty"`
	Parked    []elemSnap  `msgpack:"q,omitempty"`
	ParkedDel []wireID    `msgpack:"x,omitempty"`
}

type entrySnap struct {
	Key     string `msgpack:"k"`
	Value   any    `msgpack:"v,omitempty"`
	Clock   uint64 `msgpack:"c"`
	Actor   string `msgpack:"a"`
	Deleted bool   `msgpack:"d,omitempty"`
}

type elemSnap struct {
	ID      wireID `msgpack:"i"`
	Origin  wireID `msgpack:"g,omitempty"`
	Value   any    `msgpack:"v,omitempty"`
	Deleted bool   `msgpack:"d,omitempty"`
}

// SaveSnapshot writes the full document state to a bbolt file at path,
// replacing any previous snapshot in it.
func (d *Doc) SaveSnapshot(path string) error {
	bdb, err := bbolt.Open(path, 0666, &bbolt.Options{Timeout: 10 * time.Second})
	if err != nil {
		return fmt.Errorf("ydoc: snapshot: %w", err)
	}
	defer bdb.Close()

	return bdb.Update(func(btx *bbolt.Tx) error {
		for _, name := range [][]byte{metaBucket, containersBucket} {
			if btx.Bucket(name) != nil {
				if err := btx.DeleteBucket(name); err != nil {
					return err
				}
			}
		}
		meta, err := btx.CreateBucket(metaBucket)
		if err != nil {
			return err
		}
		conts, err := btx.CreateBucket(containersBucket)
		if err != nil {
			return err
		}

		if err := meta.Put(metaFormatKey, u64bytes(snapshotFormat)); err != nil {
			return err
		}
		if err := meta.Put(metaActorKey, []byte(d.actor)); err != nil {
			return err
		}
		if err := meta.Put(metaClockKey, u64bytes(d.clock)); err != nil {
			return err
		}
		if err := meta.Put(metaSeqKey, u64bytes(d.seq)); err != nil {
			return err
		}
		vv, err := msgpack.Marshal(d.vv)
		if err != nil {
			return err
		}
		if err := meta.Put(metaVVKey, seal(vv)); err != nil {
			return err
		}

		for _, c := range d.order {
			payload, err := msgpack.Marshal(c.snap())
			if err != nil {
				return err
			}
			if err := conts.Put([]byte(c.base().pkey), seal(payload)); err != nil {
				return err
			}
		}
		return nil
	})
}

// LoadSnapshot reconstructs a document from a snapshot file. The saved
// actor identity is kept unless opt.Actor overrides it.
func LoadSnapshot(path string, opt Options) (*Doc, error) {
	bdb, err := bbolt.Open(path, 0666, &bbolt.Options{Timeout: 10 * time.Second, ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("ydoc: snapshot: %w", err)
	}
	defer bdb.Close()

	d := New(opt)
	err = bdb.View(func(btx *bbolt.Tx) error {
		meta := btx.Bucket(metaBucket)
		conts := btx.Bucket(containersBucket)
		if meta == nil || conts == nil {
			return fmt.Errorf("ydoc: not a snapshot file: %s", path)
		}
		if v := bytesU64(meta.Get(metaFormatKey)); v != snapshotFormat {
			return fmt.Errorf("%w: %d", errStaleSnapshot, v)
		}
		if opt.Actor == "" {
			if a := meta.Get(metaActorKey); len(a) > 0 {
				d.actor = string(a)
			}
		}
		d.clock = bytesU64(meta.Get(metaClockKey))
		d.seq = bytesU64(meta.Get(metaSeqKey))
		if raw := meta.Get(metaVVKey); raw != nil {
			payload, err := unseal(raw)
			if err != nil {
				return err
			}
			if err := msgpack.Unmarshal(payload, &d.vv); err != nil {
				return err
			}
		}

		return conts.ForEach(func(_, raw []byte) error {
			payload, err := unseal(raw)
			if err != nil {
				return err
			}
			var s containerSnap
			if err := msgpack.Unmarshal(payload, &s); err != nil {
				return err
			}
			c := d.containerAt(s.Path, ContainerKind(s.Kind))
			switch c := c.(type) {
			case *Map:
				c.loadSnap(&s)
			case *List:
				c.loadSnap(&s)
			case *Text:
				c.loadSnap(&s)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if d.vv == nil {
		d.vv = make(map[string]*actorSeen)
	}
	return d, nil
}

func u64bytes(v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return b[:]
}

func bytesU64(b []byte) uint64 {
	if len(b) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}
