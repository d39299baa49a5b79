package consolidate

import "time"

// SessionWindow is one weekday's trading session, expressed as an
// offset from local midnight in TradingHours.Location.
type SessionWindow struct {
	Open  time.Duration
	Close time.Duration
}

// TradingHours is the per-weekday session calendar a DailyConsolidator
// respects (spec §4.H "Daily with session hours"). A weekday absent
// from Sessions (or holding a nil window) is a non-trading day.
type TradingHours struct {
	Location    *time.Location
	Sessions    map[time.Weekday]*SessionWindow
	FillForward bool
}

func (th TradingHours) loc() *time.Location {
	if th.Location == nil {
		return time.UTC
	}
	return th.Location
}

// sessionFor returns the [start, end) session window covering t's local
// calendar day, or ok=false if that weekday has no session.
func (th TradingHours) sessionFor(t time.Time) (start, end time.Time, ok bool) {
	loc := th.loc()
	lt := t.In(loc)
	sess := th.Sessions[lt.Weekday()]
	if sess == nil {
		return time.Time{}, time.Time{}, false
	}
	midnight := time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc)
	return midnight.Add(sess.Open), midnight.Add(sess.Close), true
}

// InSession reports whether t falls inside that weekday's session.
func (th TradingHours) InSession(t time.Time) bool {
	start, end, ok := th.sessionFor(t)
	if !ok {
		return false
	}
	lt := t.In(th.loc())
	return !lt.Before(start) && lt.Before(end)
}

// NextSessionOpen scans forward (at most two weeks) for the next
// session's open strictly after t.
func (th TradingHours) NextSessionOpen(t time.Time) time.Time {
	loc := th.loc()
	lt := t.In(loc)
	for i := 0; i <= 14; i++ {
		day := lt.AddDate(0, 0, i)
		sess := th.Sessions[day.Weekday()]
		if sess == nil {
			continue
		}
		midnight := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, loc)
		open := midnight.Add(sess.Open)
		if open.After(t) {
			return open
		}
	}
	return t
}

// NthSessionEnd returns the close time of the n-th trading session
// (n>=1) starting from the session containing (or following) from —
// the mechanism behind N-day bars ("a bar spans days_per_bar trading
// sessions").
func (th TradingHours) NthSessionEnd(from time.Time, n int) time.Time {
	if n < 1 {
		n = 1
	}
	cur := from
	var end time.Time
	for i := 0; i < n; i++ {
		_, e, ok := th.sessionFor(cur)
		if !ok {
			cur = th.NextSessionOpen(cur)
			_, e, _ = th.sessionFor(cur)
		}
		end = e
		cur = e.Add(time.Nanosecond)
	}
	return end
}
