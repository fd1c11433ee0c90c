package decision

import "time"

// AddBusinessDays advances from one calendar day at a time in loc,
// counting only Monday to Friday, until days business days have passed.
// The time of day is preserved. Holidays are not modeled.
func AddBusinessDays(from time.Time, days int, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	t := from.In(loc)
	for counted := 0; counted < days; {
		t = t.AddDate(0, 0, 1)
		if isBusinessDay(t.Weekday()) {
			counted++
		}
	}
	return t
}

func isBusinessDay(d time.Weekday) bool {
	return d != time.Saturday && d != time.Sunday
}
