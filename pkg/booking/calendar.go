package booking

import (
	"fmt"
	"strings"
	"time"
)

const (
	dateLayout           = "2006-01-02"
	displayDateLayout    = "02/01/2006"
	timeOfDayLayout      = "15:04:05"
	shortTimeOfDayLayout = "15:04"
	secondsPerDay        = 24 * 60 * 60
)

// Date is a calendar day without a time zone.
type Date struct {
	value time.Time
}

// ParseDate parses a YYYY-MM-DD date.
func ParseDate(raw string) (Date, error) {
	parsed, err := time.Parse(dateLayout, strings.TrimSpace(raw))
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, raw)
	}
	return Date{value: parsed}, nil
}

// DateOf returns the calendar day of moment in moment's own location.
func DateOf(moment time.Time) Date {
	year, month, day := moment.Date()
	return Date{value: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// String returns the YYYY-MM-DD form.
func (date Date) String() string {
	return date.value.Format(dateLayout)
}

// Display returns the dd/mm/yyyy form.
func (date Date) Display() string {
	return date.value.Format(displayDateLayout)
}

// IsZero reports whether the date was never set.
func (date Date) IsZero() bool {
	return date.value.IsZero()
}

// Before reports whether date is an earlier day than other.
func (date Date) Before(other Date) bool {
	return date.value.Before(other.value)
}

// After reports whether date is a later day than other.
func (date Date) After(other Date) bool {
	return date.value.After(other.value)
}

// Equal reports whether both dates are the same day.
func (date Date) Equal(other Date) bool {
	return date.value.Equal(other.value)
}

// TimeOfDay is a wall-clock time measured in seconds since midnight.
type TimeOfDay int

// NewTimeOfDay builds a time of day from its components.
func NewTimeOfDay(hour int, minute int, second int) (TimeOfDay, error) {
	if hour < 0 || hour > 24 || minute < 0 || minute > 59 || second < 0 || second > 59 {
		return 0, fmt.Errorf("%w: %02d:%02d:%02d", ErrInvalidTimeOfDay, hour, minute, second)
	}
	total := hour*3600 + minute*60 + second
	if total > secondsPerDay {
		return 0, fmt.Errorf("%w: %02d:%02d:%02d", ErrInvalidTimeOfDay, hour, minute, second)
	}
	return TimeOfDay(total), nil
}

// ParseTimeOfDay parses HH:MM:SS or HH:MM.
func ParseTimeOfDay(raw string) (TimeOfDay, error) {
	trimmed := strings.TrimSpace(raw)
	for _, layout := range []string{timeOfDayLayout, shortTimeOfDayLayout} {
		parsed, err := time.Parse(layout, trimmed)
		if err == nil {
			return NewTimeOfDay(parsed.Hour(), parsed.Minute(), parsed.Second())
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, raw)
}

// TimeOfDayOf returns the wall-clock time of moment in moment's own location.
func TimeOfDayOf(moment time.Time) TimeOfDay {
	return TimeOfDay(moment.Hour()*3600 + moment.Minute()*60 + moment.Second())
}

// String returns the HH:MM:SS form.
func (timeOfDay TimeOfDay) String() string {
	seconds := int(timeOfDay)
	return fmt.Sprintf("%02d:%02d:%02d", seconds/3600, (seconds%3600)/60, seconds%60)
}

// Add returns the time of day shifted by duration.
func (timeOfDay TimeOfDay) Add(duration time.Duration) TimeOfDay {
	return timeOfDay + TimeOfDay(duration/time.Second)
}

// Interval is a half-open [Start, End) range within one day.
type Interval struct {
	Start TimeOfDay
	End   TimeOfDay
}

// NewInterval validates that start precedes end.
func NewInterval(start TimeOfDay, end TimeOfDay) (Interval, error) {
	if start >= end {
		return Interval{}, fmt.Errorf("%w: start %s must precede end %s", ErrInvalidInterval, start, end)
	}
	return Interval{Start: start, End: end}, nil
}

// ParseInterval parses start and end wall-clock strings.
func ParseInterval(rawStart string, rawEnd string) (Interval, error) {
	start, err := ParseTimeOfDay(rawStart)
	if err != nil {
		return Interval{}, err
	}
	end, err := ParseTimeOfDay(rawEnd)
	if err != nil {
		return Interval{}, err
	}
	return NewInterval(start, end)
}

// Overlaps reports whether two half-open intervals share any instant.
// Touching boundaries do not overlap.
func (interval Interval) Overlaps(other Interval) bool {
	return other.Start < interval.End && other.End > interval.Start
}

// String returns the "HH:MM:SS-HH:MM:SS" label.
func (interval Interval) String() string {
	return interval.Start.String() + "-" + interval.End.String()
}
