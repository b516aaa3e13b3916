package domain

import "time"

// QueryDates returns the UTC dates from minLag to maxLag days before now,
// newest first. FIRMS publishes with a delay, so minLag is usually a few days.
func QueryDates(now time.Time, minLag, maxLag int) []time.Time {
	if minLag < 0 {
		minLag = 0
	}
	if maxLag < minLag {
		return nil
	}
	today := now.UTC().Truncate(24 * time.Hour)
	dates := make([]time.Time, 0, maxLag-minLag+1)
	for daysAgo := minLag; daysAgo <= maxLag; daysAgo++ {
		dates = append(dates, today.AddDate(0, 0, -daysAgo))
	}
	return dates
}

// FormatDate renders a date the way the FIRMS API expects it.
func FormatDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}
