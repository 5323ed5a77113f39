package booking

import (
	"errors"
	"testing"
	"time"
)

func TestParseTimeOfDayAcceptsBothLayouts(test *testing.T) {
	test.Parallel()
	for _, raw := range []string{"14:00", "14:00:00", " 14:00 "} {
		value, err := ParseTimeOfDay(raw)
		if err != nil {
			test.Fatalf("parse %q: %v", raw, err)
		}
		if value.String() != "14:00:00" {
			test.Fatalf("parse %q: expected 14:00:00, got %s", raw, value)
		}
	}
}

func TestParseTimeOfDayRejectsGarbage(test *testing.T) {
	test.Parallel()
	for _, raw := range []string{"", "25:00", "2pm", "14:61"} {
		if _, err := ParseTimeOfDay(raw); !errors.Is(err, ErrInvalidTimeOfDay) {
			test.Fatalf("parse %q: expected ErrInvalidTimeOfDay, got %v", raw, err)
		}
	}
}

func TestNewIntervalRequiresStartBeforeEnd(test *testing.T) {
	test.Parallel()
	if _, err := ParseInterval("10:00", "10:00"); !errors.Is(err, ErrInvalidInterval) {
		test.Fatalf("expected ErrInvalidInterval for empty interval, got %v", err)
	}
	if _, err := ParseInterval("11:00", "10:00"); !errors.Is(err, ErrInvalidInterval) {
		test.Fatalf("expected ErrInvalidInterval for reversed interval, got %v", err)
	}
}

func TestIntervalOverlaps(test *testing.T) {
	test.Parallel()
	base := mustInterval(test, "10:00", "11:00")
	testCases := []struct {
		name     string
		other    Interval
		expected bool
	}{
		{name: "identical", other: mustInterval(test, "10:00", "11:00"), expected: true},
		{name: "overlapping start", other: mustInterval(test, "09:30", "10:30"), expected: true},
		{name: "overlapping end", other: mustInterval(test, "10:30", "11:30"), expected: true},
		{name: "contained", other: mustInterval(test, "10:15", "10:45"), expected: true},
		{name: "containing", other: mustInterval(test, "09:00", "12:00"), expected: true},
		{name: "touching before", other: mustInterval(test, "09:00", "10:00"), expected: false},
		{name: "touching after", other: mustInterval(test, "11:00", "12:00"), expected: false},
		{name: "disjoint", other: mustInterval(test, "13:00", "14:00"), expected: false},
	}
	for _, testCase := range testCases {
		if got := base.Overlaps(testCase.other); got != testCase.expected {
			test.Fatalf("%s: expected %v, got %v", testCase.name, testCase.expected, got)
		}
		if got := testCase.other.Overlaps(base); got != testCase.expected {
			test.Fatalf("%s reversed: expected %v, got %v", testCase.name, testCase.expected, got)
		}
	}
}

func TestDateFormats(test *testing.T) {
	test.Parallel()
	date := mustDate(test, "2025-06-11")
	if date.String() != "2025-06-11" {
		test.Fatalf("unexpected string: %s", date.String())
	}
	if date.Display() != "11/06/2025" {
		test.Fatalf("unexpected display: %s", date.Display())
	}
	if _, err := ParseDate("11/06/2025"); !errors.Is(err, ErrInvalidDate) {
		test.Fatalf("expected ErrInvalidDate, got %v", err)
	}
}

func TestDateOfUsesMomentLocation(test *testing.T) {
	test.Parallel()
	moment := time.Date(2025, time.June, 11, 2, 0, 0, 0, time.UTC)
	zone := time.FixedZone("UTC-4", -4*3600)
	if got := DateOf(moment).String(); got != "2025-06-11" {
		test.Fatalf("expected utc day 2025-06-11, got %s", got)
	}
	if got := DateOf(moment.In(zone)).String(); got != "2025-06-10" {
		test.Fatalf("expected local day 2025-06-10, got %s", got)
	}
	if got := TimeOfDayOf(moment.In(zone)).String(); got != "22:00:00" {
		test.Fatalf("expected local time 22:00:00, got %s", got)
	}
}
