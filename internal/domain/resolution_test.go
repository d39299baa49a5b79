package domain

import (
	"testing"
	"time"
)

func TestResolutionAsDuration(t *testing.T) {
	tests := []struct {
		name string
		res  Resolution
		want time.Duration
	}{
		{"instant", Instant(), 0},
		{"seconds", Seconds(30), 30 * time.Second},
		{"minutes", Minutes(5), 5 * time.Minute},
		{"hours", Hours(4), 4 * time.Hour},
		{"days", Days(1), 24 * time.Hour},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.res.AsDuration(); got != tt.want {
				t.Errorf("AsDuration() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestResolutionAsDurationPanicsOnTicks(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic calling AsDuration on a Ticks resolution")
		}
	}()
	Ticks(1).AsDuration()
}

func TestResolutionLess(t *testing.T) {
	tests := []struct {
		name string
		a, b Resolution
		want bool
	}{
		{"instant before ticks", Instant(), Ticks(1), true},
		{"ticks before seconds", Ticks(100), Seconds(1), true},
		{"seconds before minutes", Seconds(59), Minutes(1), true},
		{"minutes before hours", Minutes(59), Hours(1), true},
		{"hours before days", Hours(23), Days(1), true},
		{"ticks ordered by n", Ticks(1), Ticks(2), true},
		{"not less when equal", Minutes(5), Minutes(5), false},
		{"not less when reversed", Days(1), Hours(23), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Less(tt.b); got != tt.want {
				t.Errorf("%s.Less(%s) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestResolutionEqual(t *testing.T) {
	if !Minutes(5).Equal(Minutes(5)) {
		t.Error("Minutes(5) should equal Minutes(5)")
	}
	if Minutes(5).Equal(Minutes(6)) {
		t.Error("Minutes(5) should not equal Minutes(6)")
	}
	if Minutes(5).Equal(Seconds(300)) {
		t.Error("Minutes(5) should not equal Seconds(300) despite equal duration")
	}
}

func TestResolutionString(t *testing.T) {
	tests := []struct {
		res  Resolution
		want string
	}{
		{Instant(), "Instant"},
		{Ticks(1), "Ticks(1)"},
		{Seconds(30), "Seconds(30)"},
		{Minutes(5), "Minutes(5)"},
		{Hours(1), "Hours(1)"},
		{Days(1), "Days(1)"},
	}
	for _, tt := range tests {
		if got := tt.res.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}
