package domain

import "time"

// DefaultScheduleYears is the lookahead window applied when materializing
// events for a newly created procedure.
const DefaultScheduleYears = 2

// DateOnly truncates t to midnight UTC. All schedule arithmetic operates on
// day precision.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

type step struct {
	days   int
	months int
}

var frequencySteps = map[Frequency]step{
	FrequencyDaily:        {days: 1},
	FrequencyWeekly:       {days: 7},
	FrequencyMonthly:      {months: 1},
	FrequencyQuarterly:    {months: 3},
	FrequencySemiannually: {months: 6},
	FrequencyAnnually:     {months: 12},
}

// Schedule materializes the occurrence dates of a recurring procedure within
// the half-open window [windowStart, windowEnd). The result is sorted
// ascending and deterministic for identical inputs.
//
// With an anchor, the i-th occurrence is the anchor advanced by i steps;
// occurrences are computed from the anchor rather than chained from the
// previous cursor so that cadence boundaries are invariant under window
// choice and no date before the anchor is ever emitted. Without an anchor the
// cadence starts at windowStart.
//
// Month and year steps clamp the day-of-month down to the last day of the
// target month (Jan 31 + 1 month = Feb 28/29). Because each occurrence is
// derived from the anchor, the day springs back once a long month returns
// (Jan 31, Feb 28, Mar 31) instead of drifting.
func Schedule(anchor *time.Time, windowStart, windowEnd time.Time, f Frequency) []time.Time {
	st, ok := frequencySteps[f]
	if !ok {
		return nil
	}
	start := DateOnly(windowStart)
	end := DateOnly(windowEnd)
	if !start.Before(end) {
		return nil
	}

	origin := start
	if anchor != nil {
		origin = DateOnly(*anchor)
	}

	var out []time.Time
	for i := 0; ; i++ {
		cursor := advance(origin, st, i)
		if cursor.Before(start) {
			continue
		}
		if !cursor.Before(end) {
			return out
		}
		out = append(out, cursor)
	}
}

func advance(origin time.Time, st step, n int) time.Time {
	if st.days != 0 {
		return origin.AddDate(0, 0, n*st.days)
	}
	return addMonthsClamped(origin, n*st.months)
}

// addMonthsClamped advances t by months, rounding the day-of-month down to
// the last day of the target month instead of letting it overflow into the
// following month the way time.AddDate does.
func addMonthsClamped(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	total := int(m) - 1 + months
	ty := y + total/12
	tm := time.Month(total%12 + 1)
	if total < 0 && total%12 != 0 {
		ty--
		tm = time.Month(total%12 + 13)
	}
	if last := daysIn(ty, tm); d > last {
		d = last
	}
	return time.Date(ty, tm, d, 0, 0, 0, 0, time.UTC)
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, -1).Day()
}
