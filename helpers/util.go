package helpers

import (
	mathrand "math/rand"
	"time"
)

// RandomDuration returns a random duration in [min, max]. Used for the
// politeness delays between pages and categories and for rate-limit waits.
func RandomDuration(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(mathrand.Int63n(int64(max-min)+1))
}
