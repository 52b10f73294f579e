package storage

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

// newTestStorage creates a temporary storage for testing.
func newTestStorage(t *testing.T) (*Storage, func()) {
	t.Helper()

	dir, err := os.MkdirTemp("", "storage-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}

	s, err := New(filepath.Join(dir, "db"))
	if err != nil {
		os.RemoveAll(dir)
		t.Fatalf("failed to create storage: %v", err)
	}

	cleanup := func() {
		s.Close()
		os.RemoveAll(dir)
	}

	return s, cleanup
}

// nonce returns a nonce whose first byte is b.
func nonce(b byte) [NonceSize]byte {
	var n [NonceSize]byte
	n[0] = b
	return n
}

func TestPrepareStateTakenOnce(t *testing.T) {
	s, cleanup := newTestStorage(t)
	defer cleanup()

	state := []byte("prepare-state")

	if err := s.PutPrepareState("batch-1", nonce(1), state); err != nil {
		t.Fatalf("PutPrepareState failed: %v", err)
	}

	got, err := s.TakePrepareState("batch-1", nonce(1))
	if err != nil {
		t.Fatalf("TakePrepareState failed: %v", err)
	}

	if !bytes.Equal(got, state) {
		t.Errorf("TakePrepareState returned %q, want %q", got, state)
	}

	if _, err := s.TakePrepareState("batch-1", nonce(1)); !errors.Is(err, ErrNotFound) {
		t.Errorf("second take: got %v, want ErrNotFound", err)
	}
}

func TestPrepareStateNotOverwritten(t *testing.T) {
	s, cleanup := newTestStorage(t)
	defer cleanup()

	if err := s.PutPrepareState("batch-1", nonce(1), []byte("first")); err != nil {
		t.Fatalf("PutPrepareState failed: %v", err)
	}

	if err := s.PutPrepareState("batch-1", nonce(1), []byte("second")); !errors.Is(err, ErrExists) {
		t.Fatalf("second put: got %v, want ErrExists", err)
	}

	got, err := s.TakePrepareState("batch-1", nonce(1))
	if err != nil {
		t.Fatalf("TakePrepareState failed: %v", err)
	}
	if string(got) != "first" {
		t.Errorf("got %q, want first", got)
	}

	// once taken, the report may be checkpointed again
	if err := s.PutPrepareState("batch-1", nonce(1), []byte("third")); err != nil {
		t.Errorf("put after take failed: %v", err)
	}
}

func TestPrepareStatesIsolatedByBatch(t *testing.T) {
	s, cleanup := newTestStorage(t)
	defer cleanup()

	// "ab" must not be seen as a prefix of "abc"
	if err := s.PutPrepareState("ab", nonce(1), []byte("x")); err != nil {
		t.Fatalf("PutPrepareState failed: %v", err)
	}
	if err := s.PutPrepareState("abc", nonce(1), []byte("y")); err != nil {
		t.Fatalf("PutPrepareState failed: %v", err)
	}

	n, err := s.DiscardPrepareStates("ab")
	if err != nil {
		t.Fatalf("DiscardPrepareStates failed: %v", err)
	}
	if n != 1 {
		t.Errorf("discarded %d states, want 1", n)
	}

	got, err := s.TakePrepareState("abc", nonce(1))
	if err != nil {
		t.Fatalf("TakePrepareState failed: %v", err)
	}
	if string(got) != "y" {
		t.Errorf("got %q, want %q", got, "y")
	}
}

func TestBatchNameValidation(t *testing.T) {
	s, cleanup := newTestStorage(t)
	defer cleanup()

	if err := s.PutPrepareState("", nonce(0), nil); !errors.Is(err, ErrBatchName) {
		t.Errorf("empty batch: got %v, want ErrBatchName", err)
	}

	long := strings.Repeat("b", maxBatchName+1)
	if err := s.UpdateAggregate(long, func(*AggregateRecord) error { return nil }); !errors.Is(err, ErrBatchName) {
		t.Errorf("long batch: got %v, want ErrBatchName", err)
	}
}

func TestUpdateAggregate(t *testing.T) {
	s, cleanup := newTestStorage(t)
	defer cleanup()

	rec, err := s.Aggregate("batch")
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	if rec != nil {
		t.Fatalf("Aggregate returned %+v before any update, want nil", rec)
	}

	for i := 0; i < 3; i++ {
		err := s.UpdateAggregate("batch", func(rec *AggregateRecord) error {
			rec.Count++
			rec.Share = append(rec.Share, byte(i))
			return nil
		})
		if err != nil {
			t.Fatalf("UpdateAggregate failed: %v", err)
		}
	}

	rec, err = s.Aggregate("batch")
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}

	if rec.Count != 3 || !bytes.Equal(rec.Share, []byte{0, 1, 2}) {
		t.Errorf("got %+v, want count 3 share 000102", rec)
	}
}

func TestUpdateAggregateAbortsOnError(t *testing.T) {
	s, cleanup := newTestStorage(t)
	defer cleanup()

	wantErr := errors.New("bad share")
	err := s.UpdateAggregate("batch", func(rec *AggregateRecord) error {
		rec.Count = 10
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("got %v, want %v", err, wantErr)
	}

	rec, err := s.Aggregate("batch")
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	if rec != nil {
		t.Errorf("failed update was persisted: %+v", rec)
	}
}

func TestConcurrentUpdates(t *testing.T) {
	s, cleanup := newTestStorage(t)
	defer cleanup()

	const workers = 8
	const perWorker = 25

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for i := 0; i < perWorker; i++ {
				_ = s.UpdateAggregate("batch", func(rec *AggregateRecord) error {
					rec.Count++
					return nil
				})
			}
		}()
	}

	wg.Wait()

	rec, err := s.Aggregate("batch")
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	if rec.Count != workers*perWorker {
		t.Errorf("count %d, want %d", rec.Count, workers*perWorker)
	}
}

func TestBatches(t *testing.T) {
	s, cleanup := newTestStorage(t)
	defer cleanup()

	for _, b := range []string{"c", "a", "b"} {
		if err := s.UpdateAggregate(b, func(rec *AggregateRecord) error { return nil }); err != nil {
			t.Fatalf("UpdateAggregate(%s) failed: %v", b, err)
		}
	}

	got, err := s.Batches()
	if err != nil {
		t.Fatalf("Batches failed: %v", err)
	}

	if strings.Join(got, ",") != "a,b,c" {
		t.Errorf("Batches returned %v, want [a b c]", got)
	}
}

func TestSnapshotRestore(t *testing.T) {
	src, cleanupSrc := newTestStorage(t)
	defer cleanupSrc()

	for i := 0; i < 5; i++ {
		batch := fmt.Sprintf("batch-%d", i)
		err := src.UpdateAggregate(batch, func(rec *AggregateRecord) error {
			rec.Count = uint64(i + 1)
			rec.Share = bytes.Repeat([]byte{byte(i)}, 16*(i+1))
			return nil
		})
		if err != nil {
			t.Fatalf("UpdateAggregate failed: %v", err)
		}
	}

	// checkpoints are not part of a snapshot
	if err := src.PutPrepareState("batch-0", nonce(9), []byte("state")); err != nil {
		t.Fatalf("PutPrepareState failed: %v", err)
	}

	snap, err := src.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}

	dst, cleanupDst := newTestStorage(t)
	defer cleanupDst()

	n, err := dst.Restore(snap)
	if err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if n != 5 {
		t.Errorf("restored %d records, want 5", n)
	}

	for i := 0; i < 5; i++ {
		batch := fmt.Sprintf("batch-%d", i)

		rec, err := dst.Aggregate(batch)
		if err != nil {
			t.Fatalf("Aggregate(%s) failed: %v", batch, err)
		}

		if rec == nil || rec.Count != uint64(i+1) || len(rec.Share) != 16*(i+1) {
			t.Errorf("%s: got %+v", batch, rec)
		}
	}

	if _, err := dst.TakePrepareState("batch-0", nonce(9)); !errors.Is(err, ErrNotFound) {
		t.Errorf("checkpoint leaked into snapshot: %v", err)
	}
}

func TestRestoreRejectsCorruption(t *testing.T) {
	src, cleanupSrc := newTestStorage(t)
	defer cleanupSrc()

	err := src.UpdateAggregate("batch", func(rec *AggregateRecord) error {
		rec.Count = 1
		rec.Share = []byte("share-bytes")
		return nil
	})
	if err != nil {
		t.Fatalf("UpdateAggregate failed: %v", err)
	}

	snap, err := src.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}

	raw, err := decompress(snap)
	if err != nil {
		t.Fatalf("decompress failed: %v", err)
	}
	raw[len(raw)-1] ^= 0xff

	corrupted, err := compress(raw)
	if err != nil {
		t.Fatalf("compress failed: %v", err)
	}

	dst, cleanupDst := newTestStorage(t)
	defer cleanupDst()

	if _, err := dst.Restore(corrupted); !errors.Is(err, ErrChecksum) {
		t.Errorf("got %v, want ErrChecksum", err)
	}

	if _, err := dst.Restore([]byte("not zstd")); err == nil {
		t.Error("garbage snapshot should fail")
	}
}

func TestPrefixUpperBound(t *testing.T) {
	cases := []struct {
		prefix []byte
		want   []byte
	}{
		{[]byte("a:"), []byte("a;")},
		{[]byte{0x01, 0xff}, []byte{0x02}},
		{[]byte{0xff, 0xff}, nil},
	}

	for _, tc := range cases {
		if got := prefixUpperBound(tc.prefix); !bytes.Equal(got, tc.want) {
			t.Errorf("prefixUpperBound(%x) = %x, want %x", tc.prefix, got, tc.want)
		}
	}
}

// BenchmarkUpdateAggregate measures the read-modify-write of one batch record.
func BenchmarkUpdateAggregate(b *testing.B) {
	dir := b.TempDir()

	s, err := New(filepath.Join(dir, "db"))
	if err != nil {
		b.Fatalf("failed to create storage: %v", err)
	}
	defer s.Close()

	share := make([]byte, 16*64)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		err := s.UpdateAggregate("bench", func(rec *AggregateRecord) error {
			rec.Count++
			rec.Share = share
			return nil
		})
		if err != nil {
			b.Fatalf("UpdateAggregate failed: %v", err)
		}
	}
}

func TestReadSnapshot(t *testing.T) {
	s, cleanup := newTestStorage(t)
	defer cleanup()

	err := s.UpdateAggregate("day-1", func(rec *AggregateRecord) error {
		rec.Count = 42
		rec.Share = []byte{1, 2, 3}
		return nil
	})
	if err != nil {
		t.Fatalf("UpdateAggregate failed: %v", err)
	}

	snap, err := s.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}

	records, err := ReadSnapshot(snap)
	if err != nil {
		t.Fatalf("ReadSnapshot failed: %v", err)
	}

	rec, ok := records["day-1"]
	if !ok || rec.Count != 42 || !bytes.Equal(rec.Share, []byte{1, 2, 3}) {
		t.Errorf("got %+v (present %v), want count 42 share 010203", rec, ok)
	}
}
