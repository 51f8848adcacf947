package services

import (
	"math"
	"time"
)

// DurationMinutes derives elapsed whole minutes between start and end,
// rounding half away from zero. A negative result means end precedes start;
// callers decide whether that is acceptable.
func DurationMinutes(start, end time.Time) int64 {
	return int64(math.Round(end.Sub(start).Seconds() / 60.0))
}
