package rpc

import (
	"context"
	"time"

	"github.com/fundforge/fundforge/internal/domain"
)

// HistoricalSource satisfies internal/engine.HistoricalStore by fanning
// BulkRange out into one HistoricalBaseDataRange callback-bearing
// request per subscription and merging the results the same way
// internal/archive.Archive.BulkRange does: grouped by close-time
// nanosecond, so the engine's day-stepping loop can walk it with
// archive.SortedKeys regardless of whether its HistoricalStore is the
// local archive (data-server process) or this RPC shim (strategy
// process, spec §4.L's "bulk_range" pull over the wire).
type HistoricalSource struct {
	client *Client
}

// NewHistoricalSource wraps client for use as an engine.Driver's store.
func NewHistoricalSource(client *Client) *HistoricalSource {
	return &HistoricalSource{client: client}
}

func (s *HistoricalSource) BulkRange(subs []domain.DataSubscription, from, to time.Time) (map[int64]domain.TimeSlice, error) {
	type result struct {
		data domain.TimeSlice
		err  error
	}
	results := make([]result, len(subs))
	done := make(chan int, len(subs))

	for i, sub := range subs {
		i, sub := i, sub
		go func() {
			data, err := s.client.HistoricalBaseDataRange(context.Background(), sub, from, to)
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
