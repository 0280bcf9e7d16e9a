// Package window tiles the booking horizon into calendar request windows.
package window

import (
	"math/rand/v2"
	"time"

	"github.com/aluiziolira/go-fare-expander/models"
)

// Count is the number of windows issued per candidate.
const Count = 4

// Window boundaries in days from today. The endpoint rejects spans beyond roughly six
// months; ninety-day slices keep a margin and four of them reach ~11 months out.
var offsets = [Count][2]int{
	{0, 90},
	{91, 180},
	{181, 270},
	{271, 330},
}

// HorizonDays is the last day offset covered by Plan.
const HorizonDays = 330

// Plan returns the request windows starting at today. Availability depends on booking
// lead time, so the candidate's own dates never shift the tiling.
func Plan(today models.Date) [Count]models.RequestWindow {
	var windows [Count]models.RequestWindow
	for i, o := range offsets {
		windows[i] = models.RequestWindow{
			Start: today.AddDays(o[0]),
			End:   today.AddDays(o[1]),
		}
	}
	return windows
}

// Jitter returns one delay per window: the first request goes out immediately and each of
// the others waits an independent uniform delay in [lo, hi).
func Jitter(n int, lo, hi time.Duration, rng *rand.Rand) []time.Duration {
	delays := make([]time.Duration, n)
	if hi <= lo {
		for i := 1; i < n; i++ {
			delays[i] = lo
		}
		return delays
	}
	span := int64(hi - lo)
	for i := 1; i < n; i++ {
		var r int64
		if rng != nil {
			r = rng.Int64N(span)
		} else {
			r = rand.Int64N(span)
		}
		delays[i] = lo + time.Duration(r)
	}
	return delays
}
