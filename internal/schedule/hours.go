// Package schedule decides when automatic reminders may fire: it parses
// active-hours expressions like "9-12/13-18/19-21" and computes the next
// eligible firing time for a given interval.
package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimeRange is a half-open [Start,End) hour range within a day.
// Hours are in [0,24] and Start < End.
type TimeRange struct {
	Start int
	End   int
}

// Contains reports whether the fractional hour-of-day falls inside the range.
func (r TimeRange) Contains(hour float64) bool {
	return hour >= float64(r.Start) && hour < float64(r.End)
}

func (r TimeRange) String() string {
	return strconv.Itoa(r.Start) + "-" + strconv.Itoa(r.End)
}

// ActiveHours is a set of daily time ranges during which reminders may fire.
// An empty set means "always active". Ranges need not be sorted or disjoint.
type ActiveHours struct {
	ranges []TimeRange
}

// ParseError describes a malformed active-hours segment.
type ParseError struct {
	Segment string
	Reason  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("active hours: segment %q: %s", e.Segment, e.Reason)
}

// ParseHours parses an active-hours expression. Segments are separated by
// "/", each segment is "start-end" with integer hours in [0,24] and
// start < end. Blank segments are ignored; an empty or all-blank expression
// yields the always-active set.
func ParseHours(expr string) (ActiveHours, error) {
	raw := strings.TrimSpace(expr)
	if raw == "" {
		return ActiveHours{}, nil
	}

	var ranges []TimeRange
	for _, part := range strings.Split(raw, "/") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		startStr, endStr, found := strings.Cut(part, "-")
		if !found {
			return ActiveHours{}, &ParseError{Segment: part, Reason: "expected 'start-end'"}
		}

		start, err := strconv.Atoi(strings.TrimSpace(startStr))
		if err != nil {
			return ActiveHours{}, &ParseError{Segment: part, Reason: "hours must be integers"}
		}
		end, err := strconv.Atoi(strings.TrimSpace(endStr))
		if err != nil {
			return ActiveHours{}, &ParseError{Segment: part, Reason: "hours must be integers"}
		}

		if start < 0 || start > 24 || end < 0 || end > 24 {
			return ActiveHours{}, &ParseError{Segment: part, Reason: "hours must be in 0-24"}
		}
		if start >= end {
			return ActiveHours{}, &ParseError{Segment: part, Reason: "start must be before end"}
		}

		ranges = append(ranges, TimeRange{Start: start, End: end})
	}

	return ActiveHours{ranges: ranges}, nil
}

// MustParseHours is ParseHours that panics on error. For tests and constants.
func MustParseHours(expr string) ActiveHours {
	h, err := ParseHours(expr)
	if err != nil {
		panic(err)
	}
	return h
}

// IsAlwaysActive reports whether the set contains no ranges.
func (h ActiveHours) IsAlwaysActive() bool {
	return len(h.ranges) == 0
}

// Ranges returns a copy of the parsed ranges.
func (h ActiveHours) Ranges() []TimeRange {
	out := make([]TimeRange, len(h.ranges))
	copy(out, h.ranges)
	return out
}

// Contains reports whether the fractional hour-of-day is inside any range.
// The always-active set contains every hour.
func (h ActiveHours) Contains(hour float64) bool {
	if len(h.ranges) == 0 {
		return true
	}
	for _, r := range h.ranges {
		if r.Contains(hour) {
			return true
		}
	}
	return false
}

// ContainsTime reports whether t falls inside any range.
func (h ActiveHours) ContainsTime(t time.Time) bool {
	return h.Contains(FractionalHour(t))
}

// String returns the normalized text form, empty for the always-active set.
func (h ActiveHours) String() string {
	parts := make([]string, 0, len(h.ranges))
	for _, r := range h.ranges {
		parts = append(parts, r.String())
	}
	return strings.Join(parts, "/")
}

// FractionalHour returns the hour-of-day of t including minutes and seconds,
// e.g. 12:30:00 -> 12.5.
func FractionalHour(t time.Time) float64 {
	return float64(t.Hour()) + float64(t.Minute())/60 + float64(t.Second())/3600
}
