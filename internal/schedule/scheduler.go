package schedule

import "time"

// NextStart returns the start of the first active window at or after t.
// For the always-active set it returns t unchanged.
func (h ActiveHours) NextStart(t time.Time) time.Time {
	if len(h.ranges) == 0 {
		return t
	}

	// Windows repeat daily, so the answer is today or tomorrow.
	for day := 0; day <= 1; day++ {
		base := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location()).AddDate(0, 0, day)

		var best time.Time
		for _, r := range h.ranges {
			start := base.Add(time.Duration(r.Start) * time.Hour)
			if start.Before(t) {
				continue
			}
			if best.IsZero() || start.Before(best) {
				best = start
			}
		}
		if !best.IsZero() {
			return best
		}
	}

	// Unreachable: tomorrow always has a window start at or after t.
	return t
}

// NextFireAfter computes the next reminder time: now plus the interval,
// advanced to the start of the following active window when the candidate
// lands outside every window. The result is never before now.
func NextFireAfter(now time.Time, interval time.Duration, hours ActiveHours) time.Time {
	if interval < 0 {
		interval = 0
	}

	candidate := now.Add(interval)
	if hours.ContainsTime(candidate) {
		return candidate
	}
	return hours.NextStart(candidate)
}
