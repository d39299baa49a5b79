package domain

// Mode distinguishes a strategy run driven by archived history from one
// driven by a live vendor connection. The subscription handler (§4.I
// step 2) branches on it.
type Mode uint8

const (
	Backtest Mode = iota
	Live
)

func (m Mode) String() string {
	if m == Live {
		return "Live"
	}
	return "Backtest"
}
