package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fundforge/fundforge/internal/domain"
)

// ParseResolution parses the domain.Resolution.String() textual form
// download_list.toml and other config files use ("Instant", "Ticks(1)",
// "Minutes(5)", ...) back into a domain.Resolution.
func ParseResolution(s string) (domain.Resolution, error) {
	s = strings.TrimSpace(s)
	if s == "Instant" {
		return domain.Instant(), nil
	}
	open := strings.IndexByte(s, '(')
	if open < 0 || !strings.HasSuffix(s, ")") {
		return domain.Resolution{}, fmt.Errorf("config: unrecognized resolution %q", s)
	}
	kind := s[:open]
	n, err := strconv.ParseInt(s[open+1:len(s)-1], 10, 64)
	if err != nil {
		return domain.Resolution{}, fmt.Errorf("config: invalid resolution count in %q: %w", s, err)
	}
	switch kind {
	case "Ticks":
		return domain.Ticks(n), nil
	case "Seconds":
		return domain.Seconds(n), nil
	case "Minutes":
		return domain.Minutes(n), nil
	case "Hours":
		return domain.Hours(n), nil
	case "Days":
		return domain.Days(n), nil
	default:
		return domain.Resolution{}, fmt.Errorf("config: unrecognized resolution kind %q", kind)
	}
}

// ParseBaseDataType parses domain.BaseDataType.String()'s textual form
// ("Ticks", "Quotes", "Candles", "QuoteBars", "Fundamentals").
func ParseBaseDataType(s string) (domain.BaseDataType, error) {
	switch strings.TrimSpace(s) {
	case "Ticks":
		return domain.TickData, nil
	case "Quotes":
		return domain.QuoteData, nil
	case "Candles":
		return domain.CandleData, nil
	case "QuoteBars":
		return domain.QuoteBarData, nil
	case "Fundamentals":
		return domain.FundamentalData, nil
	default:
		return 0, fmt.Errorf("config: unrecognized base data type %q", s)
	}
}
