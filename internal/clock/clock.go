package clock

import "time"

// Clock abstracts time for TTL, backoff, and stall detection logic.
type Clock interface {
	Now() time.Time
}
