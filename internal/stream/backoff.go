package stream

import (
	"math"
	"math/rand/v2"
	"time"
)

const maxBackoffDoublings = 16

// ReconnectPolicy controls automatic reconnection. The zero value never
// reconnects: a dropped connection stays disconnected until Connect.
type ReconnectPolicy struct {
	// MaxRetries is the number of consecutive attempts before giving up.
	MaxRetries int
	Initial    time.Duration
	Max        time.Duration
	// Jitter spreads each delay by up to this fraction either way, in [0,1].
	Jitter float64
}

// Enabled reports whether any retry will be made.
func (p ReconnectPolicy) Enabled() bool { return p.MaxRetries > 0 }

// Delay returns the wait before attempt (1-based): Initial doubled per
// attempt, capped at Max, then jittered.
func (p ReconnectPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	initial := p.Initial
	if initial <= 0 {
		initial = time.Second
	}
	d := time.Duration(float64(initial) * math.Pow(2, float64(min(attempt-1, maxBackoffDoublings))))
	if p.Max > 0 && d > p.Max {
		d = p.Max
	}
	if j := math.Min(math.Max(p.Jitter, 0), 1); j > 0 {
		d = time.Duration(float64(d) * (1 + j*(2*rand.Float64()-1))) //nolint:gosec // jitter only
	}
	return d
}
