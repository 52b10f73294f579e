package storage

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"
)

const (
	// snapshotVersion is the current snapshot format version.
	snapshotVersion = 1

	// checksumSize is the byte length of the snapshot checksum.
	checksumSize = 32
)

// ErrChecksum is returned when a snapshot does not match its checksum.
var ErrChecksum = errors.New("snapshot checksum mismatch")

// Snapshot exports every batch aggregate, zstd compressed. It is how an
// aggregator hands its aggregate shares to the collector.
//
// Format before compression:
// [32B checksum] [4B version] [4B count] per record: [1B len] [batch] [8B count] [4B len] [share]
// The checksum is BLAKE3 over everything after it.
func (s *Storage) Snapshot() ([]byte, error) {
	s.mu.Lock()
	body, err := s.snapshotBody()
	s.mu.Unlock()

	if err != nil {
		return nil, err
	}

	checksum := computeChecksum(body)
	raw := append(checksum[:], body...)

	return compress(raw)
}

// snapshotBody encodes all aggregate records. Callers hold mu.
func (s *Storage) snapshotBody() ([]byte, error) {
	var records bytes.Buffer
	var n uint32
	var buf [8]byte

	err := s.iteratePrefix(prefixAggregate, func(key, value []byte) error {
		rec, err := decodeRecord(value)
		if err != nil {
			return fmt.Errorf("decode record %q:\n%w", key, err)
		}

		batch := key[len(prefixAggregate):]
		records.WriteByte(byte(len(batch)))
		records.Write(batch)

		binary.BigEndian.PutUint64(buf[:], rec.Count)
		records.Write(buf[:])

		binary.BigEndian.PutUint32(buf[:4], uint32(len(rec.Share)))
		records.Write(buf[:4])
		records.Write(rec.Share)

		n++
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("collect aggregates:\n%w", err)
	}

	body := make([]byte, 8, 8+records.Len())
	binary.BigEndian.PutUint32(body[0:4], snapshotVersion)
	binary.BigEndian.PutUint32(body[4:8], n)

	return append(body, records.Bytes()...), nil
}

// Restore verifies a snapshot and writes its records, replacing existing
// records of the same batches. It returns the number of records restored.
func (s *Storage) Restore(data []byte) (int, error) {
	records, err := ReadSnapshot(data)
	if err != nil {
		return 0, err
	}

	pairs := make([]KeyValue, 0, len(records))
	for batch, rec := range records {
		key, err := aggregateKey(batch)
		if err != nil {
			return 0, err
		}
		pairs = append(pairs, KeyValue{Key: key, Value: encodeRecord(&rec)})
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.setBatch(pairs); err != nil {
		return 0, fmt.Errorf("write records:\n%w", err)
	}

	return len(pairs), nil
}

// ReadSnapshot verifies a snapshot and returns its records by batch name.
func ReadSnapshot(data []byte) (map[string]AggregateRecord, error) {
	raw, err := decompress(data)
	if err != nil {
		return nil, fmt.Errorf("decompress snapshot:\n%w", err)
	}

	if len(raw) < checksumSize+8 {
		return nil, fmt.Errorf("snapshot too short: %d < %d", len(raw), checksumSize+8)
	}

	body := raw[checksumSize:]
	if computeChecksum(body) != [checksumSize]byte(raw[:checksumSize]) {
		return nil, ErrChecksum
	}

	if v := binary.BigEndian.Uint32(body[0:4]); v != snapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d", v)
	}

	return parseRecords(body[8:], binary.BigEndian.Uint32(body[4:8]))
}

// parseRecords decodes n snapshot records.
func parseRecords(data []byte, n uint32) (map[string]AggregateRecord, error) {
	records := make(map[string]AggregateRecord)
	off := 0

	for i := uint32(0); i < n; i++ {
		if off >= len(data) {
			return nil, fmt.Errorf("record %d truncated", i)
		}

		nameLen := int(data[off])
		off++

		if off+nameLen+12 > len(data) {
			return nil, fmt.Errorf("record %d truncated", i)
		}

		batch := string(data[off : off+nameLen])
		off += nameLen

		count := binary.BigEndian.Uint64(data[off : off+8])
		shareLen := int(binary.BigEndian.Uint32(data[off+8 : off+12]))
		off += 12

		if off+shareLen > len(data) {
			return nil, fmt.Errorf("record %d share truncated: need %d, have %d", i, shareLen, len(data)-off)
		}

		if err := checkBatch(batch); err != nil {
			return nil, fmt.Errorf("record %d:\n%w", i, err)
		}
		if _, dup := records[batch]; dup {
			return nil, fmt.Errorf("record %d: duplicate batch %q", i, batch)
		}

		records[batch] = AggregateRecord{
			Count: count,
			Share: append([]byte(nil), data[off:off+shareLen]...),
		}
		off += shareLen
	}

	if off != len(data) {
		return nil, fmt.Errorf("%d trailing bytes after %d records", len(data)-off, n)
	}

	return records, nil
}

// computeChecksum returns the BLAKE3 hash of data.
func computeChecksum(data []byte) [checksumSize]byte {
	hasher := blake3.New()
	hasher.Write(data)

	var checksum [checksumSize]byte
	hasher.Sum(checksum[:0])

	return checksum
}

// compress compresses data using zstd.
func compress(data []byte) ([]byte, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create encoder:\n%w", err)
	}
	defer encoder.Close()

	return encoder.EncodeAll(data, nil), nil
}

// decompress decompresses zstd data.
func decompress(data []byte) ([]byte, error) {
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create decoder:\n%w", err)
	}
	defer decoder.Close()

	return decoder.DecodeAll(data, nil)
}
