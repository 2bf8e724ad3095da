package journal

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"

	"limit-orderbook/pkg/engine"
)

var (
	ErrClosed        = errors.New("journal closed")
	ErrAckOutOfRange = errors.New("ack beyond last sequence")
)

const eventPrefix = "event/"

var (
	ackedKey = []byte("meta/acked")
	// seqKey is the highest sequence ever assigned. It survives Truncate.
	seqKey = []byte("meta/seq")
)

type SequenceGapError struct {
	Expected uint64
	Received uint64
}

func (e *SequenceGapError) Error() string {
	return fmt.Sprintf("journal sequence gap: expected %d got %d", e.Expected, e.Received)
}

// Record is one journaled event. Seq is contiguous across all instruments.
type Record struct {
	Seq   uint64       `json:"seq"`
	Event engine.Event `json:"event"`
}

type Options struct {
	Dir string
	// InMemory keeps everything in a pebble memory filesystem.
	InMemory bool
	// FS overrides the filesystem; InMemory is ignored when set.
	FS vfs.FS
	// Sync fsyncs every Emit and Ack.
	Sync bool
}

// Journal is a pebble-backed outbox of engine events. It implements
// engine.EventSink and may be shared by every engine of a registry.
type Journal struct {
	mu     sync.Mutex
	db     *pebble.DB
	write  *pebble.WriteOptions
	seq    uint64
	acked  uint64
	closed bool
}

var _ engine.EventSink = (*Journal)(nil)

func Open(opts Options) (*Journal, error) {
	pebbleOpts := &pebble.Options{FS: opts.FS}
	if opts.FS == nil && opts.InMemory {
		pebbleOpts.FS = vfs.NewMem()
		if opts.Dir == "" {
			opts.Dir = "journal"
		}
	}
	db, err := pebble.Open(opts.Dir, pebbleOpts)
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", opts.Dir, err)
	}

	j := &Journal{db: db, write: pebble.NoSync}
	if opts.Sync {
		j.write = pebble.Sync
	}
	if err := j.restore(); err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

func (j *Journal) restore() error {
	iter, err := j.db.NewIter(eventBounds())
	if err != nil {
		return err
	}
	if iter.Last() {
		seq, err := parseKey(iter.Key())
		if err != nil {
			iter.Close()
			return err
		}
		j.seq = seq
	}
	if err := iter.Close(); err != nil {
		return err
	}

	acked, err := j.readCursor(ackedKey)
	if err != nil {
		return err
	}
	high, err := j.readCursor(seqKey)
	if err != nil {
		return err
	}
	j.acked = acked
	j.seq = max(j.seq, high, acked)
	j.reportPending()
	return nil
}

// readCursor returns 0 for a missing key.
func (j *Journal) readCursor(key []byte) (uint64, error) {
	val, closer, err := j.db.Get(key)
	switch {
	case errors.Is(err, pebble.ErrNotFound):
		return 0, nil
	case err != nil:
		return 0, err
	}
	defer closer.Close()
	if len(val) != 8 {
		return 0, fmt.Errorf("invalid %s length %d", key, len(val))
	}
	return binary.BigEndian.Uint64(val), nil
}

func encodeCursor(seq uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, seq)
	return buf
}

func (j *Journal) reportPending() {
	if j.seq < j.acked {
		pendingRecords.Set(0)
		return
	}
	pendingRecords.Set(float64(j.seq - j.acked))
}

// Emit appends events in one batch. On error nothing is written and the
// sequence does not advance.
func (j *Journal) Emit(_ context.Context, events []engine.Event) error {
	if len(events) == 0 {
		return nil
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return ErrClosed
	}

	batch := j.db.NewBatch()
	defer batch.Close()

	next := j.seq
	for _, ev := range events {
		next++
		val, err := json.Marshal(Record{Seq: next, Event: ev})
		if err != nil {
			return fmt.Errorf("encode event %d: %w", next, err)
		}
		if err := batch.Set(keyFor(next), val, nil); err != nil {
			return err
		}
	}
	if err := batch.Set(seqKey, encodeCursor(next), nil); err != nil {
		return err
	}
	if err := batch.Commit(j.write); err != nil {
		return fmt.Errorf("commit events: %w", err)
	}

	recordsAppended.Add(float64(len(events)))
	j.seq = next
	j.reportPending()
	return nil
}

// Replay calls fn for every record with Seq >= from, in order.
func (j *Journal) Replay(from uint64, fn func(Record) error) error {
	return j.scan(from, 0, fn)
}

// Pending returns up to limit records not yet acknowledged.
func (j *Journal) Pending(limit int) ([]Record, error) {
	j.mu.Lock()
	from := j.acked + 1
	j.mu.Unlock()

	records := make([]Record, 0)
	err := j.scan(from, limit, func(r Record) error {
		records = append(records, r)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (j *Journal) scan(from uint64, limit int, fn func(Record) error) error {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return ErrClosed
	}
	iter, err := j.db.NewIter(&pebble.IterOptions{
		LowerBound: keyFor(from),
		UpperBound: []byte(eventPrefix + "~"),
	})
	j.mu.Unlock()
	if err != nil {
		return err
	}
	defer iter.Close()

	var expected uint64
	n := 0
	for iter.First(); iter.Valid(); iter.Next() {
		var rec Record
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			return fmt.Errorf("decode %s: %w", iter.Key(), err)
		}
		if expected != 0 && rec.Seq != expected {
			return &SequenceGapError{Expected: expected, Received: rec.Seq}
		}
		expected = rec.Seq + 1

		if err := fn(rec); err != nil {
			return err
		}
		n++
		if limit > 0 && n >= limit {
			break
		}
	}
	return iter.Error()
}

// Ack moves the acknowledged cursor forward to seq. Acking an older
// sequence is a no-op.
func (j *Journal) Ack(seq uint64) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return ErrClosed
	}
	if seq <= j.acked {
		return nil
	}
	if seq > j.seq {
		return fmt.Errorf("%w: %d > %d", ErrAckOutOfRange, seq, j.seq)
	}

	if err := j.db.Set(ackedKey, encodeCursor(seq), j.write); err != nil {
		return err
	}
	j.acked = seq
	j.reportPending()
	return nil
}

// Truncate deletes acknowledged records up to and including seq.
func (j *Journal) Truncate(seq uint64) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return ErrClosed
	}
	if seq > j.acked {
		seq = j.acked
	}
	if seq == 0 {
		return nil
	}
	return j.db.DeleteRange(keyFor(0), keyFor(seq+1), j.write)
}

func (j *Journal) Acked() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.acked
}

func (j *Journal) LastSeq() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.seq
}

func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return nil
	}
	j.closed = true
	return j.db.Close()
}

func eventBounds() *pebble.IterOptions {
	return &pebble.IterOptions{
		LowerBound: []byte(eventPrefix),
		UpperBound: []byte(eventPrefix + "~"),
	}
}

func keyFor(seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", eventPrefix, seq))
}

func parseKey(b []byte) (uint64, error) {
	var seq uint64
	_, err := fmt.Sscanf(string(bytes.TrimPrefix(b, []byte(eventPrefix))), "%d", &seq)
	return seq, err
}
