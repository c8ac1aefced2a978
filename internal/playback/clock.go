package playback

import "time"

// Ticker is the periodic timer driving auto-stepping.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Clock creates tickers; tests substitute a manual implementation.
type Clock interface {
	Now() time.Time
	NewTicker(interval time.Duration) Ticker
}

// SystemClock backs tickers with time.Ticker.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now()
}

func (SystemClock) NewTicker(interval time.Duration) Ticker {
	return systemTicker{ticker: time.NewTicker(interval)}
}

type systemTicker struct {
	ticker *time.Ticker
}

func (t systemTicker) C() <-chan time.Time { return t.ticker.C }
func (t systemTicker) Stop()               { t.ticker.Stop() }

// intervalFor never returns less than a nanosecond; time.NewTicker panics on
// non-positive intervals.
func intervalFor(rate float64) time.Duration {
	interval := time.Duration(float64(time.Second) / rate)
	if interval < time.Nanosecond {
		return time.Nanosecond
	}
	return interval
}
