package appointment

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const DateLayout = "2006-01-02"

// Slot is a time of day on the practitioner's calendar.
type Slot struct {
	Hour   int
	Minute int
}

func (s Slot) String() string {
	return fmt.Sprintf("%02d:%02d", s.Hour, s.Minute)
}

func (s Slot) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Slot) UnmarshalText(b []byte) error {
	parsed, err := ParseSlot(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// On combines a calendar date with the slot in loc.
func (s Slot) On(date time.Time, loc *time.Location) time.Time {
	d := date.In(loc)
	return time.Date(d.Year(), d.Month(), d.Day(), s.Hour, s.Minute, 0, 0, loc)
}

// SlotOf returns the time-of-day of t in loc.
func SlotOf(t time.Time, loc *time.Location) Slot {
	l := t.In(loc)
	return Slot{Hour: l.Hour(), Minute: l.Minute()}
}

// ParseSlot accepts "HH:MM" and the 12 hour "H:MM AM" form.
func ParseSlot(raw string) (Slot, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))

	meridiem := ""
	if strings.HasSuffix(s, "AM") || strings.HasSuffix(s, "PM") {
		meridiem = s[len(s)-2:]
		s = strings.TrimSpace(s[:len(s)-2])
	}

	hh, mm, ok := strings.Cut(s, ":")
	if !ok || len(mm) != 2 || hh == "" || len(hh) > 2 {
		return Slot{}, fmt.Errorf("%w: %q", ErrInvalidSlot, raw)
	}
	h, errH := strconv.Atoi(hh)
	m, errM := strconv.Atoi(mm)
	if errH != nil || errM != nil || m < 0 || m > 59 {
		return Slot{}, fmt.Errorf("%w: %q", ErrInvalidSlot, raw)
	}

	switch meridiem {
	case "":
		if h < 0 || h > 23 {
			return Slot{}, fmt.Errorf("%w: %q", ErrInvalidSlot, raw)
		}
	default:
		if h < 1 || h > 12 {
			return Slot{}, fmt.Errorf("%w: %q", ErrInvalidSlot, raw)
		}
		if h == 12 {
			h = 0
		}
		if meridiem == "PM" {
			h += 12
		}
	}

	return Slot{Hour: h, Minute: m}, nil
}

// ParseDate parses YYYY-MM-DD as midnight in loc.
func ParseDate(raw string, loc *time.Location) (time.Time, error) {
	d, err := time.ParseInLocation(DateLayout, strings.TrimSpace(raw), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, raw)
	}
	return d, nil
}

func dayStart(t time.Time, loc *time.Location) time.Time {
	l := t.In(loc)
	return time.Date(l.Year(), l.Month(), l.Day(), 0, 0, 0, 0, loc)
}

// Catalog is the fixed, ordered set of slots offered each day.
type Catalog struct {
	slots []Slot
}

var defaultSlotTimes = []string{"09:00", "10:30", "12:00", "13:30", "15:00", "16:30"}

func NewCatalog(times []string) (*Catalog, error) {
	if len(times) == 0 {
		return nil, fmt.Errorf("%w: empty slot catalog", ErrInvalidSlot)
	}

	seen := make(map[Slot]struct{}, len(times))
	slots := make([]Slot, 0, len(times))
	for _, raw := range times {
		s, err := ParseSlot(raw)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[s]; dup {
			return nil, fmt.Errorf("%w: duplicate slot %s", ErrInvalidSlot, s)
		}
		seen[s] = struct{}{}
		slots = append(slots, s)
	}

	for i := 1; i < len(slots); i++ {
		if !slotBefore(slots[i-1], slots[i]) {
			return nil, fmt.Errorf("%w: slots must be in ascending order (%s after %s)", ErrInvalidSlot, slots[i], slots[i-1])
		}
	}

	return &Catalog{slots: slots}, nil
}

func DefaultCatalog() *Catalog {
	c, err := NewCatalog(defaultSlotTimes)
	if err != nil {
		panic(err)
	}
	return c
}

// SlotsForDate returns the day's slots. The list is the same for every date today;
// date is the hook for weekday-specific catalogs.
func (c *Catalog) SlotsForDate(date time.Time) []Slot {
	out := make([]Slot, len(c.slots))
	copy(out, c.slots)
	return out
}

func (c *Catalog) Contains(date time.Time, slot Slot) bool {
	for _, s := range c.SlotsForDate(date) {
		if s == slot {
			return true
		}
	}
	return false
}

func slotBefore(a, b Slot) bool {
	if a.Hour != b.Hour {
		return a.Hour < b.Hour
	}
	return a.Minute < b.Minute
}
