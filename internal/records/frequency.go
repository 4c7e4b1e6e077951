package records

import (
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// Day identifies one service occurrence slot. Monday to Friday are 1-5, Adhoc is 6.
type Day uint8

const (
	Monday Day = iota + 1
	Tuesday
	Wednesday
	Thursday
	Friday
	Adhoc
)

// Days lists every slot in display order.
var Days = []Day{Monday, Tuesday, Wednesday, Thursday, Friday, Adhoc}

var dayLabels = map[Day]string{
	Monday:    "Mon",
	Tuesday:   "Tue",
	Wednesday: "Wed",
	Thursday:  "Thu",
	Friday:    "Fri",
	Adhoc:     "Adhoc",
}

// Label returns the short display name of the day.
func (d Day) Label() string {
	return dayLabels[d]
}

// Valid reports whether d is one of the six known slots.
func (d Day) Valid() bool {
	return d >= Monday && d <= Adhoc
}

// Frequency is the set of days a service runs on, one bit per Day.
type Frequency uint8

// ErrInvalidFrequency is returned when a frequency string holds an unknown day code.
var ErrInvalidFrequency = errors.New("invalid frequency")

// NewFrequency builds a frequency from day codes. Unknown codes are ignored.
func NewFrequency(days ...Day) Frequency {
	var f Frequency
	for _, d := range days {
		if d.Valid() {
			f |= 1 << (d - 1)
		}
	}
	return f
}

// ParseFrequency reads a comma separated list of day codes such as "1,3,5".
func ParseFrequency(s string) (Frequency, error) {
	var f Frequency
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		code, err := strconv.Atoi(part)
		if err != nil || !Day(code).Valid() {
			return 0, errors.Wrapf(ErrInvalidFrequency, "day code %q", part)
		}
		f = f.With(Day(code))
	}
	return f, nil
}

// Has reports whether the day is part of the frequency.
func (f Frequency) Has(d Day) bool {
	return d.Valid() && f&(1<<(d-1)) != 0
}

// With returns a copy of f including d.
func (f Frequency) With(d Day) Frequency {
	return f | NewFrequency(d)
}

// Count returns the number of occurrence slots per week.
func (f Frequency) Count() int {
	n := 0
	for _, d := range Days {
		if f.Has(d) {
			n++
		}
	}
	return n
}

// Days expands the set in display order.
func (f Frequency) Days() []Day {
	out := make([]Day, 0, len(Days))
	for _, d := range Days {
		if f.Has(d) {
			out = append(out, d)
		}
	}
	return out
}

// String renders the day codes, e.g. "1,3,5".
func (f Frequency) String() string {
	codes := make([]string, 0, len(Days))
	for _, d := range f.Days() {
		codes = append(codes, strconv.Itoa(int(d)))
	}
	return strings.Join(codes, ",")
}

// Labels renders the day names, e.g. "Mon, Wed, Fri".
func (f Frequency) Labels() string {
	labels := make([]string, 0, len(Days))
	for _, d := range f.Days() {
		labels = append(labels, d.Label())
	}
	return strings.Join(labels, ", ")
}

func (f Frequency) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

func (f *Frequency) UnmarshalText(b []byte) error {
	parsed, err := ParseFrequency(string(b))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}
