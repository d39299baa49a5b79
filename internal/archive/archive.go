// Package archive implements the memory-mapped, date-partitioned
// historical store (spec §4.D): one file per UTC day, keyed by
// (vendor, market_type, symbol, resolution, data_type), with an mmap
// read cache evicted on a TTL and atomic rewrite-on-save.
package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/fundforge/fundforge/internal/domain"
)

const (
	writeRetries   = 3
	writeBackoff   = time.Second
	defaultCacheTTL = 5 * time.Minute
)

// Archive is the historical store for one data root directory.
type Archive struct {
	baseDir string
	cache   *mmapCache
	log     zerolog.Logger
	stop    chan struct{}
}

// Open returns an Archive rooted at baseDir and starts its background
// mmap-eviction loop. Callers must call Close on shutdown.
func Open(baseDir string, log zerolog.Logger) *Archive {
	a := &Archive{
		baseDir: baseDir,
		cache:   newMmapCache(defaultCacheTTL, log),
		log:     log.With().Str("component", "archive").Logger(),
		stop:    make(chan struct{}),
	}
	go a.cache.runEvictionLoop(a.stop, defaultCacheTTL/5)
	return a
}

// Close stops the eviction loop and releases all open mmaps.
func (a *Archive) Close() {
	close(a.stop)
	a.cache.closeAll()
}

// Save groups data by (symbol, resolution, type, utc-date), merges each
// group into its day file (keyed by close time, last write wins), and
// rewrites the file atomically. Write failures retry up to writeRetries
// times with writeBackoff between attempts (spec §4.D "Failure policy").
func (a *Archive) Save(data []domain.BaseData) error {
	groups := make(map[string][]domain.BaseData)
	meta := make(map[string]string) // group key -> day file path

	for _, bd := range data {
		sub := bd.Subscription()
		day := bd.CloseTime().UTC().Truncate(24 * time.Hour)
		path := dayPath(a.baseDir, sub.Symbol, sub.Resolution, sub.BaseDataType, day)
		groups[path] = append(groups[path], bd)
		meta[path] = path
	}

	for path, fresh := range groups {
		existing, err := readDayFile(path)
		if err != nil {
			a.log.Warn().Err(err).Str("path", path).Msg("failed reading existing day file, treating as empty")
			existing = nil
		}
		merged := mergeAndDedup(existing, fresh)

		var lastErr error
		for attempt := 0; attempt < writeRetries; attempt++ {
			lastErr = writeDayFileAtomic(path, merged)
			if lastErr == nil {
				break
			}
			time.Sleep(writeBackoff)
		}
		if lastErr != nil {
			return fmt.Errorf("archive: save %s: %w", path, lastErr)
		}
		a.cache.invalidate(path)
	}
	return nil
}

// Range walks the year->month->day directories in [from,to] for one
// (symbol, resolution, type) and returns every record whose close time
// falls within the inclusive window, sorted by close time.
func (a *Archive) Range(sym domain.Symbol, res domain.Resolution, dt domain.BaseDataType, from, to time.Time) ([]domain.BaseData, error) {
	var out []domain.BaseData
	from, to = from.UTC(), to.UTC()

	for day := from.Truncate(24 * time.Hour); !day.After(to); day = day.Add(24 * time.Hour) {
		path := dayPath(a.baseDir, sym, res, dt, day)
		raw, err := a.cache.get(path)
		if err != nil {
			a.log.Warn().Err(err).Str("path", path).Msg("archive read error, skipping day")
			continue
		}
		if raw == nil {
			continue
		}
		for _, bd := range decodeRecords(raw) {
			ct := bd.CloseTime()
			if !ct.Before(from) && !ct.After(to) {
				out = append(out, bd)
			}
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CloseTime().Before(out[j].CloseTime()) })
	return out, nil
}

// Earliest returns the close time of the first record on disk for
// (symbol, resolution, type), found by walking year->month->day
// directories in lexicographic order and reading the first day file that
// parses to at least one record.
func (a *Archive) Earliest(sym domain.Symbol, res domain.Resolution, dt domain.BaseDataType) (*time.Time, error) {
	return a.boundary(sym, res, dt, false)
}

// Latest is the symmetric counterpart of Earliest, walking directories in
// reverse lexicographic order.
func (a *Archive) Latest(sym domain.Symbol, res domain.Resolution, dt domain.BaseDataType) (*time.Time, error) {
	return a.boundary(sym, res, dt, true)
}

func (a *Archive) boundary(sym domain.Symbol, res domain.Resolution, dt domain.BaseDataType, reverse bool) (*time.Time, error) {
	root := filepath.Join(a.baseDir, sym.Vendor, sym.MarketType.String(), sym.Name, res.String(), dt.String())
	days, err := listDayFiles(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("archive: list day files under %s: %w", root, err)
	}
	if len(days) == 0 {
		return nil, nil
	}
	if reverse {
		for i := len(days) - 1; i >= 0; i-- {
			if t, ok := firstCloseTime(days[i], reverse); ok {
				return &t, nil
			}
		}
	} else {
		for _, p := range days {
			if t, ok := firstCloseTime(p, reverse); ok {
				return &t, nil
			}
		}
	}
	return nil, nil
}

func firstCloseTime(path string, last bool) (time.Time, bool) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return time.Time{}, false
	}
	records := decodeRecords(raw)
	if len(records) == 0 {
		return time.Time{}, false
	}
	if last {
		return records[len(records)-1].CloseTime(), true
	}
	return records[0].CloseTime(), true
}

// listDayFiles returns every .bin file under root, sorted lexicographically
// (which is also chronological given the YYYY/MM/YYYYMMDD.bin layout).
func listDayFiles(root string) ([]string, error) {
	var out []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".bin" {
			out = append(out, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

// BulkRange fans out Range calls concurrently across subs and merges the
// results by timestamp into a TimeSlice per instant (spec §4.D
// "bulk_range"). The returned map is ordered by iterating its sorted
// keys (Go maps have no intrinsic order; callers needing chronological
// iteration should use SortedKeys).
func (a *Archive) BulkRange(subs []domain.DataSubscription, from, to time.Time) (map[int64]domain.TimeSlice, error) {
	type result struct {
		data []domain.BaseData
		err  error
	}
	results := make([]result, len(subs))
	done := make(chan int, len(subs))

	for i, sub := range subs {
		i, sub := i, sub
		go func() {
			data, err := a.Range(sub.Symbol, sub.Resolution, sub.BaseDataType, from, to)
			results[i] = result{data: data, err: err}
			done <- i
		}()
	}
	for range subs {
		<-done
	}

	merged := make(map[int64]domain.TimeSlice)
	for _, r := range results {
		if r.err != nil {
			return nil, r.err
		}
		for _, bd := range r.data {
			key := bd.CloseTime().UnixNano()
			merged[key] = append(merged[key], bd)
		}
	}
	return merged, nil
}

// SortedKeys returns the nano-epoch keys of a BulkRange result in
// ascending order, so callers can walk it chronologically.
func SortedKeys(m map[int64]domain.TimeSlice) []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
