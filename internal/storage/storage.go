package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
)

const (
	// defaultSyncInterval is the default interval between WAL syncs.
	defaultSyncInterval = 100 * time.Millisecond

	// NonceSize is the byte length of a report nonce.
	NonceSize = 16

	// maxBatchName bounds batch names so their length fits one byte.
	maxBatchName = 255
)

// Key prefixes.
var (
	prefixState     = []byte("s:") // prefixState keys checkpointed prepare states
	prefixAggregate = []byte("a:") // prefixAggregate keys batch aggregate records
)

var (
	// ErrNotFound is returned when a checkpointed prepare state does not exist,
	// either because it was never stored or because it was already taken.
	ErrNotFound = errors.New("not found")

	// ErrExists is returned when a report already has a pending checkpoint.
	ErrExists = errors.New("already exists")

	// ErrBatchName is returned for empty or oversized batch names.
	ErrBatchName = errors.New("invalid batch name")
)

// KeyValue represents a key-value pair for batch operations.
type KeyValue struct {
	Key   []byte // Key is the key to store
	Value []byte // Value is the value to store
}

// AggregateRecord is the persisted running aggregate of one batch.
type AggregateRecord struct {
	Count uint64 // Count is the number of output shares accumulated
	Share []byte // Share is the encoded aggregate share, empty before the first report
}

// Storage keeps one aggregator's preparation checkpoints and batch aggregates
// in Pebble. Writes are non-blocking (NoSync) and a background goroutine
// periodically syncs the WAL to disk.
type Storage struct {
	db       *pebble.DB    // db is the underlying Pebble database
	mu       sync.Mutex    // mu serializes read-modify-write of records
	stopSync chan struct{} // stopSync signals the sync goroutine to stop
	wg       sync.WaitGroup
}

// New opens the store at path and starts the WAL sync loop.
func New(path string) (*Storage, error) {
	opts := &pebble.Options{
		Cache:                       pebble.NewCache(32 << 20), // 32 MB cache
		MemTableSize:                16 << 20,                  // 16 MB memtable
		MemTableStopWritesThreshold: 2,
	}

	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("open pebble at %s:\n%w", path, err)
	}

	s := &Storage{
		db:       db,
		stopSync: make(chan struct{}),
	}

	s.startSyncLoop()

	return s, nil
}

// PutPrepareState checkpoints the encoded prepare state of one report. It
// returns ErrExists while a checkpoint for the same report is pending.
func (s *Storage) PutPrepareState(batch string, nonce [NonceSize]byte, state []byte) error {
	key, err := stateKey(batch, nonce)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.get(key)
	if err != nil {
		return err
	}
	if existing != nil {
		return ErrExists
	}

	return s.db.Set(key, state, pebble.NoSync)
}

// TakePrepareState returns and deletes the checkpointed state of one report.
// A state can be taken once; a second call returns ErrNotFound.
func (s *Storage) TakePrepareState(batch string, nonce [NonceSize]byte) ([]byte, error) {
	key, err := stateKey(batch, nonce)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	value, err := s.get(key)
	if err != nil {
		return nil, err
	}
	if value == nil {
		return nil, ErrNotFound
	}

	if err := s.db.Delete(key, pebble.NoSync); err != nil {
		return nil, fmt.Errorf("delete prepare state:\n%w", err)
	}

	return value, nil
}

// DiscardPrepareStates deletes every checkpoint left in batch and returns how
// many there were. Reports whose prepare message never arrived end here.
func (s *Storage) DiscardPrepareStates(batch string) (int, error) {
	prefix, err := batchStatePrefix(batch)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var keys [][]byte
	err = s.iteratePrefix(prefix, func(key, _ []byte) error {
		keys = append(keys, append([]byte(nil), key...))
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("scan prepare states:\n%w", err)
	}

	if len(keys) == 0 {
		return 0, nil
	}

	b := s.db.NewBatch()
	defer b.Close()

	for _, key := range keys {
		if err := b.Delete(key, nil); err != nil {
			return 0, err
		}
	}

	if err := b.Commit(pebble.NoSync); err != nil {
		return 0, fmt.Errorf("commit discard:\n%w", err)
	}

	return len(keys), nil
}

// UpdateAggregate reads the record of batch, lets fn modify it, and writes it
// back. Concurrent updates are serialized. A fresh record is zero.
func (s *Storage) UpdateAggregate(batch string, fn func(rec *AggregateRecord) error) error {
	key, err := aggregateKey(batch)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.loadAggregate(key)
	if err != nil {
		return err
	}
	if rec == nil {
		rec = &AggregateRecord{}
	}

	if err := fn(rec); err != nil {
		return err
	}

	return s.db.Set(key, encodeRecord(rec), pebble.NoSync)
}

// Aggregate returns the record of batch, or nil if nothing was aggregated.
func (s *Storage) Aggregate(batch string) (*AggregateRecord, error) {
	key, err := aggregateKey(batch)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.loadAggregate(key)
}

// Batches lists every batch with an aggregate record, in lexicographic order.
func (s *Storage) Batches() ([]string, error) {
	var batches []string

	err := s.iteratePrefix(prefixAggregate, func(key, _ []byte) error {
		batches = append(batches, string(key[len(prefixAggregate):]))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan aggregates:\n%w", err)
	}

	return batches, nil
}

// loadAggregate reads and decodes one record. Callers hold mu.
func (s *Storage) loadAggregate(key []byte) (*AggregateRecord, error) {
	value, err := s.get(key)
	if err != nil || value == nil {
		return nil, err
	}

	rec, err := decodeRecord(value)
	if err != nil {
		return nil, fmt.Errorf("decode aggregate record %q:\n%w", key, err)
	}

	return rec, nil
}

// encodeRecord encodes an aggregate record.
// Format: [8B count] [NB share]
func encodeRecord(rec *AggregateRecord) []byte {
	buf := make([]byte, 8, 8+len(rec.Share))
	binary.BigEndian.PutUint64(buf, rec.Count)
	return append(buf, rec.Share...)
}

// decodeRecord decodes an aggregate record.
func decodeRecord(data []byte) (*AggregateRecord, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("record too short: %d < 8", len(data))
	}

	return &AggregateRecord{
		Count: binary.BigEndian.Uint64(data[:8]),
		Share: append([]byte(nil), data[8:]...),
	}, nil
}

// stateKey returns the key of one checkpoint.
// Format: [2B "s:"] [1B len] [batch] [16B nonce]
func stateKey(batch string, nonce [NonceSize]byte) ([]byte, error) {
	prefix, err := batchStatePrefix(batch)
	if err != nil {
		return nil, err
	}
	return append(prefix, nonce[:]...), nil
}

// batchStatePrefix returns the key prefix of every checkpoint in batch.
// The length byte keeps one batch name from prefixing another.
func batchStatePrefix(batch string) ([]byte, error) {
	if err := checkBatch(batch); err != nil {
		return nil, err
	}

	key := make([]byte, 0, len(prefixState)+1+len(batch)+NonceSize)
	key = append(key, prefixState...)
	key = append(key, byte(len(batch)))
	return append(key, batch...), nil
}

// aggregateKey returns the key of a batch aggregate.
// Format: [2B "a:"] [batch]
func aggregateKey(batch string) ([]byte, error) {
	if err := checkBatch(batch); err != nil {
		return nil, err
	}
	return append(append([]byte(nil), prefixAggregate...), batch...), nil
}

func checkBatch(batch string) error {
	if len(batch) == 0 || len(batch) > maxBatchName {
		return fmt.Errorf("%w: length %d", ErrBatchName, len(batch))
	}
	return nil
}

// get retrieves the value for key, or nil if it does not exist.
func (s *Storage) get(key []byte) ([]byte, error) {
	value, closer, err := s.db.Get(key)
	if err == pebble.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	// Copy the value since it's invalid after closer.Close()
	result := make([]byte, len(value))
	copy(result, value)

	return result, nil
}

// setBatch atomically stores multiple key-value pairs.
func (s *Storage) setBatch(pairs []KeyValue) error {
	batch := s.db.NewBatch()
	defer batch.Close()

	for _, kv := range pairs {
		if err := batch.Set(kv.Key, kv.Value, nil); err != nil {
			return err
		}
	}

	return batch.Commit(pebble.NoSync)
}

// iteratePrefix calls fn for each key-value pair with the given prefix, in
// key order. Keys and values are only valid during the call.
func (s *Storage) iteratePrefix(prefix []byte, fn func(key, value []byte) error) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		value, err := iter.ValueAndErr()
		if err != nil {
			return err
		}

		if err := fn(iter.Key(), value); err != nil {
			return err
		}
	}

	return iter.Error()
}

// prefixUpperBound computes the exclusive upper bound for a prefix scan.
// Increments the last byte; returns nil if prefix is all 0xFF (full range).
func prefixUpperBound(prefix []byte) []byte {
	upper := make([]byte, len(prefix))
	copy(upper, prefix)

	for i := len(upper) - 1; i >= 0; i-- {
		upper[i]++
		if upper[i] != 0 {
			return upper[:i+1]
		}
	}

	return nil
}

// Close stops the sync goroutine, syncs once more and closes the database.
func (s *Storage) Close() error {
	close(s.stopSync)
	s.wg.Wait()

	if err := s.sync(); err != nil {
		return err
	}

	return s.db.Close()
}

// startSyncLoop starts the background goroutine that periodically syncs the WAL.
func (s *Storage) startSyncLoop() {
	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(defaultSyncInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				_ = s.sync()
			case <-s.stopSync:
				return
			}
		}
	}()
}

// sync forces a WAL sync to disk.
func (s *Storage) sync() error {
	return s.db.LogData(nil, pebble.Sync)
}
