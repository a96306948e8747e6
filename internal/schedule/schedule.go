package schedule

import "time"

// IsQuiet reports whether hour (UTC) is one of the configured quiet hours.
func IsQuiet(now time.Time, quietHours []int) bool {
	h := now.UTC().Hour()
	for _, q := range quietHours {
		if q == h {
			return true
		}
	}
	return false
}

// NextWindow returns the next time outside the quiet hours, searching up to
// two days ahead.
func NextWindow(now time.Time, quietHours []int) time.Time {
	for i := 0; i < 48; i++ {
		cand := now.Add(time.Duration(i) * time.Hour)
		if !IsQuiet(cand, quietHours) {
			if i == 0 {
				return now
			}
			// Start at the top of the first allowed hour.
			return cand.Truncate(time.Hour)
		}
	}
	return now.Add(15 * time.Minute)
}
