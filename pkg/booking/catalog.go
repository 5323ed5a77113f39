package booking

import (
	"fmt"
	"time"
)

const (
	defaultOpeningHour = 8
	defaultClosingHour = 23
	defaultSlotLength  = time.Hour
)

// SlotTemplate is the operating-hours template shared by every court.
type SlotTemplate struct {
	opening TimeOfDay
	closing TimeOfDay
	length  time.Duration
}

// DefaultSlotTemplate returns the 08:00-23:00 template with one-hour slots.
func DefaultSlotTemplate() SlotTemplate {
	return SlotTemplate{
		opening: TimeOfDay(defaultOpeningHour * 3600),
		closing: TimeOfDay(defaultClosingHour * 3600),
		length:  defaultSlotLength,
	}
}

// NewSlotTemplate validates a custom template.
func NewSlotTemplate(opening TimeOfDay, closing TimeOfDay, length time.Duration) (SlotTemplate, error) {
	if length < time.Minute || opening >= closing {
		return SlotTemplate{}, fmt.Errorf("%w: slot template %s-%s every %s", ErrInvalidServiceConfig, opening, closing, length)
	}
	return SlotTemplate{opening: opening, closing: closing, length: length}, nil
}

// Opening returns the first bookable instant.
func (template SlotTemplate) Opening() TimeOfDay {
	return template.opening
}

// Closing returns the closing boundary.
func (template SlotTemplate) Closing() TimeOfDay {
	return template.closing
}

// Candidates lists every slot of the day in ascending order.
// The final slot ends exactly at the closing boundary.
func (template SlotTemplate) Candidates() []Interval {
	candidates := make([]Interval, 0, int(template.closing-template.opening)/int(template.length/time.Second)+1)
	for start := template.opening; start < template.closing; start = start.Add(template.length) {
		end := start.Add(template.length)
		if end > template.closing {
			end = template.closing
		}
		candidates = append(candidates, Interval{Start: start, End: end})
	}
	return candidates
}

// Contains reports whether interval falls inside operating hours.
func (template SlotTemplate) Contains(interval Interval) bool {
	return interval.Start >= template.opening && interval.End <= template.closing
}

// FindConflict returns the first occupied interval that overlaps requested.
func FindConflict(occupied []Interval, requested Interval) (Interval, bool) {
	for _, existing := range occupied {
		if existing.Overlaps(requested) {
			return existing, true
		}
	}
	return Interval{}, false
}

// ResolveAvailable filters candidates against occupancy and the current moment.
// Past dates yield nothing; on today only slots starting strictly after now remain.
func ResolveAvailable(candidates []Interval, occupied []Interval, date Date, now time.Time) []Interval {
	today := DateOf(now)
	if date.Before(today) {
		return []Interval{}
	}
	isToday := date.Equal(today)
	current := TimeOfDayOf(now)
	available := make([]Interval, 0, len(candidates))
	for _, candidate := range candidates {
		if _, conflict := FindConflict(occupied, candidate); conflict {
			continue
		}
		if isToday && candidate.Start <= current {
			continue
		}
		available = append(available, candidate)
	}
	return available
}
