package dz

// sakamotoTable is the month offset table for Sakamoto's algorithm.
var sakamotoTable = [12]int{0, 3, 2, 5, 0, 3, 5, 1, 4, 6, 2, 4}

// sakamotoWeekday computes the day of week for a UTC calendar date using
// Sakamoto's method, returning 0=Sunday .. 6=Saturday. It's used instead
// of time.Time.Weekday so that the build-date weekday field can be
// verified/derived without constructing a time.Time first, matching how
// the format's own reference tooling computes it independently of any
// platform calendar library.
func sakamotoWeekday(year, month, day int) int {
	y := year
	if month < 3 {
		y--
	}
	w := (y + y/4 - y/100 + y/400 + sakamotoTable[month-1] + day) % 7
	if w < 0 {
		w += 7
	}
	return w
}

// firmwareWeekday converts a Sakamoto weekday (0=Sunday..6=Saturday) to
// the format's own convention (0=Monday..6=Sunday).
func firmwareWeekday(sakamoto int) int {
	if sakamoto == 0 {
		return 6
	}
	return sakamoto - 1
}

// buildDateWeekday returns the firmware-convention weekday for a calendar
// date, combining sakamotoWeekday and firmwareWeekday.
func buildDateWeekday(year, month, day int) int {
	return firmwareWeekday(sakamotoWeekday(year, month, day))
}
