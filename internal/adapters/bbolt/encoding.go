// Binary encoding for keyword snapshot blobs.
//
// Format (little-endian):
//
//	version:     uint16
//	builtAt:     int64 (unix nanoseconds)
//	recordCount: uint32
//	per record:
//	  requiredScore: float64 bits (uint64)
//	  assetID, caseID, keywordName, keywordText:
//	    len: uint16
//	    str: [len]byte
package bbolt

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/fyeo/eventmatcher/internal/ports"
)

const headerSize = 2 + 8 + 4

// encodeSnapshot encodes a snapshot into a single pre-sized buffer.
func encodeSnapshot(snap *ports.IndexSnapshot) ([]byte, error) {
	totalSize := headerSize
	for _, r := range snap.Records {
		totalSize += 8 + 4*2 + len(r.AssetID) + len(r.CaseID) + len(r.KeywordName) + len(r.KeywordText)
	}

	buf := make([]byte, totalSize)
	offset := 0

	binary.LittleEndian.PutUint16(buf[offset:], uint16(snap.Version))
	offset += 2
	binary.LittleEndian.PutUint64(buf[offset:], uint64(snap.BuiltAt.UnixNano()))
	offset += 8
	binary.LittleEndian.PutUint32(buf[offset:], uint32(len(snap.Records)))
	offset += 4

	putString := func(s string) error {
		if len(s) > math.MaxUint16 {
			return fmt.Errorf("field too long: %d bytes", len(s))
		}
		binary.LittleEndian.PutUint16(buf[offset:], uint16(len(s)))
		offset += 2
		offset += copy(buf[offset:], s)
		return nil
	}

	for _, r := range snap.Records {
		binary.LittleEndian.PutUint64(buf[offset:], math.Float64bits(r.RequiredScore))
		offset += 8
		for _, s := range []string{r.AssetID, r.CaseID, r.KeywordName, r.KeywordText} {
			if err := putString(s); err != nil {
				return nil, fmt.Errorf("record %s %s: %w", r.AssetID, r.KeywordName, err)
			}
		}
	}
	return buf, nil
}

// decodeSnapshot decodes a blob written by encodeSnapshot.
// Every read is bounds-checked so corrupt data returns an error.
func decodeSnapshot(data []byte) (*ports.IndexSnapshot, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("snapshot too short: %d bytes", len(data))
	}

	offset := 0
	snap := &ports.IndexSnapshot{}
	snap.Version = int(binary.LittleEndian.Uint16(data[offset:]))
	offset += 2
	snap.BuiltAt = time.Unix(0, int64(binary.LittleEndian.Uint64(data[offset:]))).UTC()
	offset += 8
	count := binary.LittleEndian.Uint32(data[offset:])
	offset += 4

	if snap.Version != ports.SnapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d", snap.Version)
	}

	getString := func(i uint32) (string, error) {
		if offset+2 > len(data) {
			return "", fmt.Errorf("truncated at record %d length (offset %d)", i, offset)
		}
		n := int(binary.LittleEndian.Uint16(data[offset:]))
		offset += 2
		if offset+n > len(data) {
			return "", fmt.Errorf("truncated at record %d (offset %d, need %d)", i, offset, n)
		}
		s := string(data[offset : offset+n])
		offset += n
		return s, nil
	}

	snap.Records = make([]ports.KeywordRecord, 0, min(int(count), len(data)/16))
	for i := uint32(0); i < count; i++ {
		if offset+8 > len(data) {
			return nil, fmt.Errorf("truncated at record %d score (offset %d)", i, offset)
		}
		var r ports.KeywordRecord
		r.RequiredScore = math.Float64frombits(binary.LittleEndian.Uint64(data[offset:]))
		offset += 8

		var err error
		for _, dst := range []*string{&r.AssetID, &r.CaseID, &r.KeywordName, &r.KeywordText} {
			if *dst, err = getString(i); err != nil {
				return nil, err
			}
		}
		snap.Records = append(snap.Records, r)
	}
	if offset != len(data) {
		return nil, fmt.Errorf("trailing %d bytes after %d records", len(data)-offset, count)
	}
	return snap, nil
}
