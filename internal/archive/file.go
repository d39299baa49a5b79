package archive

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	_ "github.com/fundforge/fundforge/internal/codec" // registers domain.BaseData variants with encoding/gob
	"github.com/fundforge/fundforge/internal/domain"
)

// dayPath builds {base}/{vendor}/{market_type}/{symbol}/{resolution}/{data_type}/{YYYY}/{MM}/{YYYYMMDD}.bin
// per spec §3/§6.
func dayPath(base string, sym domain.Symbol, res domain.Resolution, dt domain.BaseDataType, day time.Time) string {
	return filepath.Join(
		base,
		sym.Vendor,
		sym.MarketType.String(),
		sym.Name,
		res.String(),
		dt.String(),
		fmt.Sprintf("%04d", day.Year()),
		fmt.Sprintf("%02d", day.Month()),
		day.Format("20060102")+".bin",
	)
}

// encodeRecord serializes one BaseData as a self-delimiting record: a
// 4-byte little-endian length prefix followed by a gob-encoded payload
// (spec §4.D "Binary format").
func encodeRecord(bd domain.BaseData) ([]byte, error) {
	var payload bytes.Buffer
	if err := gob.NewEncoder(&payload).Encode(&bd); err != nil {
		return nil, fmt.Errorf("archive: encode record: %w", err)
	}
	var out bytes.Buffer
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(payload.Len()))
	out.Write(lenBuf[:])
	out.Write(payload.Bytes())
	return out.Bytes(), nil
}

// decodeRecords parses a day file's raw bytes into BaseData records. A
// file that cannot be parsed is treated as empty, never panics (spec
// §4.D "A file that cannot be parsed is treated as empty").
func decodeRecords(raw []byte) []domain.BaseData {
	var out []domain.BaseData
	for len(raw) >= 4 {
		n := binary.LittleEndian.Uint32(raw[:4])
		raw = raw[4:]
		if uint64(n) > uint64(len(raw)) {
			return out // truncated trailing record; stop, don't panic
		}
		recordBytes := raw[:n]
		raw = raw[n:]

		var bd domain.BaseData
		if err := gob.NewDecoder(bytes.NewReader(recordBytes)).Decode(&bd); err != nil {
			return out // corrupt record; stop at the first parse failure
		}
		out = append(out, bd)
	}
	return out
}

// mergeAndDedup merges existing records with fresh ones, keyed by close
// time (last write wins), and returns them sorted by close time (spec
// §4.D "dedups by key", §3 "HistoricalFile").
func mergeAndDedup(existing, fresh []domain.BaseData) []domain.BaseData {
	byKey := make(map[int64]domain.BaseData, len(existing)+len(fresh))
	for _, bd := range existing {
		byKey[bd.CloseTime().UnixNano()] = bd
	}
	for _, bd := range fresh {
		byKey[bd.CloseTime().UnixNano()] = bd // last write wins
	}
	merged := make([]domain.BaseData, 0, len(byKey))
	for _, bd := range byKey {
		merged = append(merged, bd)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].CloseTime().Before(merged[j].CloseTime())
	})
	return merged
}

// writeDayFileAtomic encodes records and rewrites path atomically: write
// to a sibling temp file, fsync, then rename over the target. This is
// the write-friendly path spec.md §9 requires in place of the original's
// unsafe read-mapped mmap mutation.
func writeDayFileAtomic(path string, records []domain.BaseData) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("archive: mkdir %s: %w", filepath.Dir(path), err)
	}

	var buf bytes.Buffer
	for _, bd := range records {
		rec, err := encodeRecord(bd)
		if err != nil {
			return err
		}
		buf.Write(rec)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("archive: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("archive: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("archive: sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("archive: close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("archive: rename temp file over %s: %w", path, err)
	}
	return nil
}

func readDayFile(path string) ([]domain.BaseData, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("archive: read %s: %w", path, err)
	}
	return decodeRecords(raw), nil
}
