package todotxt

import (
	"fmt"
	"strconv"
)

// Period is the unit of a recurrence.
type Period byte

const (
	Day   Period = 'd'
	Week  Period = 'w'
	Month Period = 'm'
	Year  Period = 'y'
)

// Recurrence is the value of a rec: tag, "[+]<n><unit>". Strict (the "+"
// prefix) anchors the next occurrence on the due date instead of the
// completion day.
type Recurrence struct {
	Count  int
	Period Period
	Strict bool
}

func ParseRecurrence(s string) (Recurrence, error) {
	var r Recurrence
	rest := s
	if len(rest) > 0 && rest[0] == '+' {
		r.Strict = true
		rest = rest[1:]
	}
	if len(rest) < 2 {
		return Recurrence{}, fmt.Errorf("invalid recurrence %q", s)
	}
	switch p := Period(rest[len(rest)-1]); p {
	case Day, Week, Month, Year:
		r.Period = p
	default:
		return Recurrence{}, fmt.Errorf("invalid recurrence %q: unknown unit %q", s, rest[len(rest)-1])
	}
	digits := rest[:len(rest)-1]
	if digits[0] == '+' {
		return Recurrence{}, fmt.Errorf("invalid recurrence %q", s)
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return Recurrence{}, fmt.Errorf("invalid recurrence %q: %w", s, err)
	}
	r.Count = n
	return r, nil
}

func (r Recurrence) String() string {
	s := strconv.Itoa(r.Count) + string(rune(r.Period))
	if r.Strict {
		return "+" + s
	}
	return s
}

// Apply returns anchor moved by Count units of Period. Day and Week are
// exact calendar-day arithmetic; Month and Year clamp to the last valid day
// of the resulting month.
func (r Recurrence) Apply(anchor Date) Date {
	switch r.Period {
	case Day:
		return anchor.AddDays(r.Count)
	case Week:
		return anchor.AddDays(7 * r.Count)
	case Month:
		return anchor.AddMonths(r.Count)
	case Year:
		return anchor.AddYears(r.Count)
	default:
		return anchor
	}
}
