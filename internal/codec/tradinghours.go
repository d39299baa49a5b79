package codec

import (
	"fmt"
	"time"

	"github.com/fundforge/fundforge/internal/consolidate"
)

// SessionWindowWire is the gob-stable encoding of one weekday's
// consolidate.SessionWindow: an offset from local midnight in seconds.
type SessionWindowWire struct {
	OpenSeconds  int64
	CloseSeconds int64
}

// TradingHoursWire is the gob-stable encoding of consolidate.TradingHours
// returned by a SessionMarketHours request — time.Location isn't
// gob-encodable directly, so the IANA zone name crosses the wire instead
// and is reloaded with time.LoadLocation on the receiving end.
type TradingHoursWire struct {
	LocationName string
	Sessions     map[int]SessionWindowWire // keyed by int(time.Weekday)
	FillForward  bool
}

// EncodeTradingHours converts th into its wire form for a
// DataServerResponse.
func EncodeTradingHours(th consolidate.TradingHours) TradingHoursWire {
	loc := th.Location
	if loc == nil {
		loc = time.UTC
	}
	sessions := make(map[int]SessionWindowWire, len(th.Sessions))
	for weekday, window := range th.Sessions {
		if window == nil {
			continue
		}
		sessions[int(weekday)] = SessionWindowWire{
			OpenSeconds:  int64(window.Open / time.Second),
			CloseSeconds: int64(window.Close / time.Second),
		}
	}
	return TradingHoursWire{
		LocationName: loc.String(),
		Sessions:     sessions,
		FillForward:  th.FillForward,
	}
}

// DecodeTradingHours reverses EncodeTradingHours on the strategy side.
func DecodeTradingHours(w TradingHoursWire) (consolidate.TradingHours, error) {
	name := w.LocationName
	if name == "" {
		name = "UTC"
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return consolidate.TradingHours{}, fmt.Errorf("codec: load location %q: %w", name, err)
	}
	sessions := make(map[time.Weekday]*consolidate.SessionWindow, len(w.Sessions))
	for weekday, window := range w.Sessions {
		sessions[time.Weekday(weekday)] = &consolidate.SessionWindow{
			Open:  time.Duration(window.OpenSeconds) * time.Second,
			Close: time.Duration(window.CloseSeconds) * time.Second,
		}
	}
	return consolidate.TradingHours{
		Location:    loc,
		Sessions:    sessions,
		FillForward: w.FillForward,
	}, nil
}
