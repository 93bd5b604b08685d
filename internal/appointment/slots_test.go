package appointment

import (
	"errors"
	"testing"
	"time"
)

func TestParseSlot(t *testing.T) {
	tests := []struct {
		in   string
		want Slot
	}{
		{"09:00", Slot{9, 0}},
		{"9:00", Slot{9, 0}},
		{"16:30", Slot{16, 30}},
		{"9:00 AM", Slot{9, 0}},
		{"10:30 am", Slot{10, 30}},
		{"12:00 PM", Slot{12, 0}},
		{"12:30 AM", Slot{0, 30}},
		{"1:30 PM", Slot{13, 30}},
		{" 4:30PM ", Slot{16, 30}},
	}
	for _, tt := range tests {
		got, err := ParseSlot(tt.in)
		if err != nil {
			t.Fatalf("ParseSlot(%q) error: %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("ParseSlot(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseSlotRejectsMalformed(t *testing.T) {
	for _, in := range []string{"", "9", "25:00", "9:7", "13:00 PM", "0:30 AM", "ab:cd", "09:60", "123:00"} {
		if _, err := ParseSlot(in); !errors.Is(err, ErrInvalidSlot) {
			t.Fatalf("ParseSlot(%q) err = %v, want ErrInvalidSlot", in, err)
		}
	}
}

func TestSlotStringAndText(t *testing.T) {
	s := Slot{Hour: 9, Minute: 0}
	if s.String() != "09:00" {
		t.Fatalf("String() = %q", s.String())
	}

	var parsed Slot
	if err := parsed.UnmarshalText([]byte("1:30 PM")); err != nil {
		t.Fatalf("UnmarshalText: %v", err)
	}
	text, _ := parsed.MarshalText()
	if string(text) != "13:30" {
		t.Fatalf("MarshalText = %q, want 13:30", text)
	}
}

func TestSlotOn(t *testing.T) {
	date := time.Date(2025, 7, 1, 23, 15, 0, 0, clinicZone)
	got := Slot{Hour: 10, Minute: 30}.On(date, clinicZone)
	want := time.Date(2025, 7, 1, 10, 30, 0, 0, clinicZone)
	if !got.Equal(want) {
		t.Fatalf("On = %v, want %v", got, want)
	}
	if SlotOf(got, clinicZone) != (Slot{10, 30}) {
		t.Fatalf("SlotOf(%v) = %v", got, SlotOf(got, clinicZone))
	}
}

func TestCatalogSlotsForDateIsStable(t *testing.T) {
	c := DefaultCatalog()

	a := c.SlotsForDate(day(2025, 7, 1))
	b := c.SlotsForDate(day(2030, 1, 5))
	if len(a) != 6 || len(a) != len(b) {
		t.Fatalf("unexpected slot counts %d and %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("slot %d differs across dates: %v vs %v", i, a[i], b[i])
		}
	}

	a[0] = Slot{Hour: 23}
	if c.SlotsForDate(day(2025, 7, 1))[0] != (Slot{9, 0}) {
		t.Fatal("mutating the returned list changed the catalog")
	}
}

func TestNewCatalogValidation(t *testing.T) {
	cases := map[string][]string{
		"empty":     nil,
		"unordered": {"10:30", "09:00"},
		"duplicate": {"09:00", "9:00 AM"},
		"malformed": {"09:00", "noon"},
	}
	for name, times := range cases {
		if _, err := NewCatalog(times); !errors.Is(err, ErrInvalidSlot) {
			t.Fatalf("%s: err = %v, want ErrInvalidSlot", name, err)
		}
	}
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2025-07-01", clinicZone)
	if err != nil {
		t.Fatalf("ParseDate: %v", err)
	}
	if !d.Equal(day(2025, 7, 1)) {
		t.Fatalf("ParseDate = %v", d)
	}
	if _, err := ParseDate("07/01/2025", clinicZone); !errors.Is(err, ErrInvalidDate) {
		t.Fatalf("err = %v, want ErrInvalidDate", err)
	}
}
