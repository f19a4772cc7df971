package domain

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func datePtr(y int, m time.Month, d int) *time.Time {
	t := date(y, m, d)
	return &t
}

func assertDates(t *testing.T, got []time.Time, want ...time.Time) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d occurrences %v, want %d %v", len(got), got, len(want), want)
	}
	for i := range want {
		if !got[i].Equal(want[i]) {
			t.Fatalf("occurrence %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestScheduleMonthlyAnchored(t *testing.T) {
	got := Schedule(datePtr(2024, time.January, 15), date(2024, time.January, 1), date(2024, time.April, 1), FrequencyMonthly)
	assertDates(t, got,
		date(2024, time.January, 15),
		date(2024, time.February, 15),
		date(2024, time.March, 15),
	)
}

func TestScheduleAnchorBeforeWindow(t *testing.T) {
	got := Schedule(datePtr(2024, time.January, 15), date(2024, time.March, 1), date(2024, time.June, 1), FrequencyMonthly)
	assertDates(t, got,
		date(2024, time.March, 15),
		date(2024, time.April, 15),
		date(2024, time.May, 15),
	)
}

func TestScheduleMonthEndClampsDown(t *testing.T) {
	got := Schedule(datePtr(2024, time.January, 31), date(2024, time.January, 1), date(2024, time.May, 1), FrequencyMonthly)
	assertDates(t, got,
		date(2024, time.January, 31),
		date(2024, time.February, 29),
		date(2024, time.March, 31),
		date(2024, time.April, 30),
	)
}

func TestScheduleClampDoesNotDrift(t *testing.T) {
	// Anchor-derived arithmetic springs back to the 31st after a short month
	// instead of sticking to the clamped day.
	got := Schedule(datePtr(2023, time.January, 31), date(2023, time.February, 1), date(2023, time.April, 1), FrequencyMonthly)
	assertDates(t, got,
		date(2023, time.February, 28),
		date(2023, time.March, 31),
	)
}

func TestScheduleQuarterlyClamp(t *testing.T) {
	got := Schedule(datePtr(2024, time.January, 31), date(2024, time.January, 1), date(2025, time.January, 1), FrequencyQuarterly)
	assertDates(t, got,
		date(2024, time.January, 31),
		date(2024, time.April, 30),
		date(2024, time.July, 31),
		date(2024, time.October, 31),
	)
}

func TestScheduleAnnualLeapDay(t *testing.T) {
	got := Schedule(datePtr(2024, time.February, 29), date(2024, time.January, 1), date(2026, time.March, 1), FrequencyAnnually)
	assertDates(t, got,
		date(2024, time.February, 29),
		date(2025, time.February, 28),
		date(2026, time.February, 28),
	)
}

func TestScheduleWeekly(t *testing.T) {
	got := Schedule(datePtr(2024, time.January, 1), date(2024, time.January, 1), date(2024, time.January, 29), FrequencyWeekly)
	assertDates(t, got,
		date(2024, time.January, 1),
		date(2024, time.January, 8),
		date(2024, time.January, 15),
		date(2024, time.January, 22),
	)
}

func TestScheduleDailySingleDay(t *testing.T) {
	day := date(2024, time.June, 3)
	got := Schedule(&day, day, day.AddDate(0, 0, 1), FrequencyDaily)
	assertDates(t, got, day)
}

func TestScheduleWithoutAnchorStartsAtWindow(t *testing.T) {
	got := Schedule(nil, date(2024, time.January, 10), date(2024, time.March, 15), FrequencyMonthly)
	assertDates(t, got,
		date(2024, time.January, 10),
		date(2024, time.February, 10),
		date(2024, time.March, 10),
	)
}

func TestScheduleHalfOpenWindow(t *testing.T) {
	// An occurrence on windowEnd itself is excluded, one on windowStart included.
	got := Schedule(datePtr(2024, time.January, 1), date(2024, time.January, 1), date(2024, time.February, 1), FrequencyMonthly)
	assertDates(t, got, date(2024, time.January, 1))
}

func TestScheduleEmptyWindow(t *testing.T) {
	if got := Schedule(nil, date(2024, time.March, 1), date(2024, time.March, 1), FrequencyWeekly); got != nil {
		t.Fatalf("empty window: got %v, want nil", got)
	}
	if got := Schedule(nil, date(2024, time.March, 2), date(2024, time.March, 1), FrequencyWeekly); got != nil {
		t.Fatalf("inverted window: got %v, want nil", got)
	}
}

func TestScheduleUnknownFrequency(t *testing.T) {
	if got := Schedule(nil, date(2024, time.January, 1), date(2025, time.January, 1), Frequency("fortnightly")); got != nil {
		t.Fatalf("unknown frequency: got %v, want nil", got)
	}
}

func TestScheduleDeterministic(t *testing.T) {
	anchor := datePtr(2024, time.January, 31)
	a := Schedule(anchor, date(2024, time.January, 1), date(2026, time.January, 1), FrequencyMonthly)
	b := Schedule(anchor, date(2024, time.January, 1), date(2026, time.January, 1), FrequencyMonthly)
	assertDates(t, a, b...)
	for i := 1; i < len(a); i++ {
		if !a[i].After(a[i-1]) {
			t.Fatalf("occurrences not strictly ascending at %d: %s then %s", i, a[i-1], a[i])
		}
	}
}

func TestDateOnly(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*3600)
	in := time.Date(2024, time.July, 1, 2, 30, 0, 0, loc)
	// 02:30 UTC+5 is still June 30 in UTC.
	if got := DateOnly(in); !got.Equal(date(2024, time.June, 30)) {
		t.Fatalf("DateOnly(%s) = %s, want 2024-06-30", in, got)
	}
	noon := time.Date(2024, time.July, 1, 12, 0, 0, 0, time.UTC)
	if got := DateOnly(noon); !got.Equal(date(2024, time.July, 1)) {
		t.Fatalf("DateOnly(%s) = %s, want 2024-07-01", noon, got)
	}
}

func TestAddMonthsClampedBackward(t *testing.T) {
	if got := addMonthsClamped(date(2024, time.March, 31), -1); !got.Equal(date(2024, time.February, 29)) {
		t.Fatalf("minus one month from Mar 31 = %s, want Feb 29", got)
	}
	if got := addMonthsClamped(date(2024, time.January, 15), -2); !got.Equal(date(2023, time.November, 15)) {
		t.Fatalf("minus two months across year = %s, want 2023-11-15", got)
	}
}
