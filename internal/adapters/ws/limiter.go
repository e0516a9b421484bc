package ws

import (
	"time"

	"golang.org/x/time/rate"
)

// strikeLimiter tolerates the occasional malformed event and trips on a
// sustained stream of them. One per connection, owned by its read loop.
type strikeLimiter struct {
	lim *rate.Limiter
}

func newStrikeLimiter(burst int) *strikeLimiter {
	if burst < 1 {
		burst = 1
	}
	// One strike forgiven every ten seconds; burst bounds the spike.
	return &strikeLimiter{lim: rate.NewLimiter(rate.Every(10*time.Second), burst)}
}

func (s *strikeLimiter) Allow() bool { return s.lim.Allow() }
