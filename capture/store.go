package capture

import (
	"encoding/binary"
	"iter"
	"log/slog"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/google/uuid"
	"github.com/learn-decentralized-systems/toyqueue"
	"github.com/learn-decentralized-systems/toytlv"
	"github.com/packline/packline/packline_errors"
	"github.com/packline/packline/utils"
)

// Record flags, kept on metadata only.
const (
	FlagMarked uint16 = 1 << iota
	FlagIgnored
)

// RecordMeta is the per-record descriptor available without reading or
// dissecting the record: identity, timestamp, captured length, flags.
// ColorClass is a slot the colorizer writes as a dissection side
// effect; it is transient and never persisted.
type RecordMeta struct {
	Seq        uint64
	Time       time.Time
	Len        int
	Flags      uint16
	ColorClass string
}

type Options struct {
	Logger       utils.Logger
	WriteOptions *pebble.WriteOptions
}

func (o *Options) SetDefaults() {
	if o.Logger == nil {
		o.Logger = utils.NewDefaultLogger(slog.LevelWarn)
	}
	if o.WriteOptions == nil {
		o.WriteOptions = pebble.Sync
	}
}

// Store is a pebble-backed packet store. Records are TLV envelopes
// under 'P'+bigendian-seq keys:
//
//	P { T timestamp-unixnano  B payload }
//
// The store is safe for concurrent use; a live ingest goroutine may
// Drain while a session reads.
type Store struct {
	log  utils.Logger
	db   *pebble.DB
	dir  string
	id   uuid.UUID
	opts Options

	lock sync.Mutex
	next uint64
}

var idKey = []byte{'Y'}

func recKey(seq uint64) []byte {
	return binary.BigEndian.AppendUint64([]byte{'P'}, seq)
}

// Create makes a fresh capture store in dir.
func Create(dir string, opts Options) (*Store, error) {
	opts.SetDefaults()
	db, err := pebble.Open(dir, &pebble.Options{ErrorIfExists: true})
	if err != nil {
		return nil, err
	}
	id := uuid.New()
	if err = db.Set(idKey, id[:], opts.WriteOptions); err != nil {
		_ = db.Close()
		return nil, err
	}
	st := &Store{log: opts.Logger, db: db, dir: dir, id: id, opts: opts, next: 1}
	st.log.Debug("capture created", "dir", dir, "id", id.String())
	return st, nil
}

// Open opens an existing capture store and restores the next sequence
// number from the last stored record.
func Open(dir string, opts Options) (*Store, error) {
	opts.SetDefaults()
	db, err := pebble.Open(dir, &pebble.Options{ErrorIfNotExists: true})
	if err != nil {
		return nil, err
	}
	st := &Store{log: opts.Logger, db: db, dir: dir, opts: opts, next: 1}
	val, closer, err := db.Get(idKey)
	if err != nil {
		_ = db.Close()
		return nil, packline_errors.ErrBadRecord
	}
	st.id, err = uuid.FromBytes(val)
	_ = closer.Close()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	i, err := db.NewIter(&pebble.IterOptions{
		LowerBound: recKey(0),
		UpperBound: []byte{'Q'},
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if i.Last() {
		st.next = binary.BigEndian.Uint64(i.Key()[1:]) + 1
	}
	if err = i.Close(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (st *Store) Close() error {
	if st.db == nil {
		return packline_errors.ErrClosed
	}
	err := st.db.Close()
	st.db = nil
	return err
}

func (st *Store) ID() uuid.UUID {
	return st.id
}

func (st *Store) Dir() string {
	return st.dir
}

// Database exposes the underlying pebble handle, e.g. for the metrics
// collector.
func (st *Store) Database() *pebble.DB {
	return st.db
}

func envelope(t time.Time, payload []byte) []byte {
	var stamp [8]byte
	binary.BigEndian.PutUint64(stamp[:], uint64(t.UnixNano()))
	return toytlv.Concat(
		toytlv.Record('T', stamp[:]),
		toytlv.Record('B', payload),
	)
}

// Add appends one record and returns its metadata.
func (st *Store) Add(t time.Time, payload []byte) (RecordMeta, error) {
	if st.db == nil {
		return RecordMeta{}, packline_errors.ErrClosed
	}
	st.lock.Lock()
	seq := st.next
	st.next++
	st.lock.Unlock()
	err := st.db.Set(recKey(seq), envelope(t, payload), st.opts.WriteOptions)
	if err != nil {
		return RecordMeta{}, err
	}
	return RecordMeta{Seq: seq, Time: t, Len: len(payload)}, nil
}

// Drain ingests a batch of 'P'-framed records, e.g. fed from a live
// capture queue. Each record is P{T stamp, B payload}.
func (st *Store) Drain(recs toyqueue.Records) (err error) {
	if st.db == nil {
		return packline_errors.ErrClosed
	}
	batch := st.db.NewBatch()
	defer batch.Close()
	st.lock.Lock()
	defer st.lock.Unlock()
	for _, rec := range recs {
		body, _, e := toytlv.TakeWary('P', rec)
		if e != nil {
			return packline_errors.ErrBadRecord
		}
		stamp, rest := toytlv.Take('T', body)
		if len(stamp) != 8 {
			return packline_errors.ErrBadRecord
		}
		payload, _ := toytlv.Take('B', rest)
		if payload == nil {
			return packline_errors.ErrBadRecord
		}
		seq := st.next
		st.next++
		t := time.Unix(0, int64(binary.BigEndian.Uint64(stamp)))
		if err = batch.Set(recKey(seq), envelope(t, payload), nil); err != nil {
			return
		}
	}
	return batch.Commit(st.opts.WriteOptions)
}

// ReadRecord fetches the raw payload of a record. ok is false when the
// record is missing or its envelope is truncated; callers are expected
// to render a placeholder row in that case, not to fail.
func (st *Store) ReadRecord(seq uint64) (payload []byte, ok bool) {
	if st.db == nil {
		return nil, false
	}
	val, closer, err := st.db.Get(recKey(seq))
	if err != nil {
		return nil, false
	}
	defer closer.Close()
	stamp, rest := toytlv.Take('T', val)
	if len(stamp) != 8 {
		return nil, false
	}
	body, _ := toytlv.Take('B', rest)
	if body == nil {
		return nil, false
	}
	payload = make([]byte, len(body))
	copy(payload, body)
	return payload, true
}

func metaFromValue(seq uint64, val []byte) (meta RecordMeta, err error) {
	stamp, rest := toytlv.Take('T', val)
	if len(stamp) != 8 {
		return meta, packline_errors.ErrBadRecord
	}
	body, _ := toytlv.Take('B', rest)
	if body == nil {
		return meta, packline_errors.ErrBadRecord
	}
	meta.Seq = seq
	meta.Time = time.Unix(0, int64(binary.BigEndian.Uint64(stamp)))
	meta.Len = len(body)
	return meta, nil
}

// Meta reads the metadata of one record without keeping the payload.
func (st *Store) Meta(seq uint64) (RecordMeta, error) {
	if st.db == nil {
		return RecordMeta{}, packline_errors.ErrClosed
	}
	val, closer, err := st.db.Get(recKey(seq))
	if err == pebble.ErrNotFound {
		return RecordMeta{}, packline_errors.ErrRecordUnknown
	}
	if err != nil {
		return RecordMeta{}, err
	}
	defer closer.Close()
	return metaFromValue(seq, val)
}

// Records iterates metadata for all stored records in sequence order.
// Truncated envelopes are skipped with a warning.
func (st *Store) Records() iter.Seq[RecordMeta] {
	return func(yield func(RecordMeta) bool) {
		if st.db == nil {
			st.log.Warn("capture iterator", "err", packline_errors.ErrClosed)
			return
		}
		i, err := st.db.NewIter(&pebble.IterOptions{
			LowerBound: recKey(0),
			UpperBound: []byte{'Q'},
		})
		if err != nil {
			st.log.Error("capture iterator", "err", err)
			return
		}
		defer i.Close()
		for valid := i.First(); valid; valid = i.Next() {
			seq := binary.BigEndian.Uint64(i.Key()[1:])
			meta, err := metaFromValue(seq, i.Value())
			if err != nil {
				st.log.Warn("skipping bad record envelope", "seq", seq)
				continue
			}
			if !yield(meta) {
				return
			}
		}
	}
}

// Count returns the number of sequence slots used so far.
func (st *Store) Count() uint64 {
	st.lock.Lock()
	defer st.lock.Unlock()
	return st.next - 1
}
