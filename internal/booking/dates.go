package booking

import "time"

// DayRange returns the half-open interval [start of day, start of next day)
// containing t, in t's own location. A request dated anywhere inside the
// interval matches an availability entry dated anywhere inside it. Both
// bounds derive from a single flooring so the interval is always exactly one
// calendar day wide.
func DayRange(t time.Time) (start, end time.Time) {
	start = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	end = start.AddDate(0, 0, 1)
	return start, end
}
