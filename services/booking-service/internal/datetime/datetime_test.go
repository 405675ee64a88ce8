package datetime

import (
	"errors"
	"testing"
	"time"
)

func TestStartISODate(t *testing.T) {
	loc, _ := time.LoadLocation("Asia/Kolkata")
	p := Parser{Order: OrderAuto, Location: loc}

	start, err := p.Start("2024-03-10", "14:30")
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	want := time.Date(2024, 3, 10, 14, 30, 0, 0, loc)
	if !start.Equal(want) {
		t.Fatalf("expected %s, got %s", want, start)
	}
	if end := start.Add(60 * time.Minute); !end.Equal(time.Date(2024, 3, 10, 15, 30, 0, 0, loc)) {
		t.Fatalf("unexpected end %s", end)
	}
}

func TestSlashDatesAutoOrder(t *testing.T) {
	p := Parser{Order: OrderAuto}

	y, m, d, err := p.Date("15/03/2024")
	if err != nil || y != 2024 || m != time.March || d != 15 {
		t.Fatalf("15/03/2024: got %d-%d-%d err=%v", y, m, d, err)
	}

	// First component 03 is not above 12, so it is read as the month.
	y, m, d, err = p.Date("03/15/2024")
	if err != nil || y != 2024 || m != time.March || d != 15 {
		t.Fatalf("03/15/2024: got %d-%d-%d err=%v", y, m, d, err)
	}

	y, m, d, err = p.Date("03/04/2024")
	if err != nil || m != time.March || d != 4 {
		t.Fatalf("03/04/2024: got %d-%d-%d err=%v", y, m, d, err)
	}
}

func TestSlashDatesExplicitOrder(t *testing.T) {
	_, m, d, err := Parser{Order: OrderDMY}.Date("03/04/2024")
	if err != nil || m != time.April || d != 3 {
		t.Fatalf("dmy: got month=%d day=%d err=%v", m, d, err)
	}
	_, m, d, err = Parser{Order: OrderMDY}.Date("03/15/2024")
	if err != nil || m != time.March || d != 15 {
		t.Fatalf("mdy: got month=%d day=%d err=%v", m, d, err)
	}
}

func TestDateFailures(t *testing.T) {
	p := Parser{}
	for _, in := range []any{"next tuesday", "2024-02-30", "2024-13-01", "1/2", 42} {
		if _, _, _, err := p.Date(in); !errors.Is(err, ErrUnparseable) {
			t.Fatalf("%v: expected ErrUnparseable, got %v", in, err)
		}
	}
}

func TestClockVariants(t *testing.T) {
	cases := []struct {
		in     any
		h, min int
	}{
		{"14:30", 14, 30},
		{"2:15 pm", 14, 15},
		{"12:00 PM", 12, 0},
		{"12:05 AM", 0, 5},
		{"10 AM", 10, 0},
		{"", 9, 0},
		{nil, 9, 0},
		{0.5, 12, 0},
		{0.75, 18, 0},
		{time.Date(1899, 12, 30, 8, 45, 0, 0, time.UTC), 8, 45},
	}
	p := Parser{Location: time.UTC}
	for _, c := range cases {
		h, m, err := p.Clock(c.in)
		if err != nil {
			t.Fatalf("%v: unexpected error %v", c.in, err)
		}
		if h != c.h || m != c.min {
			t.Fatalf("%v: expected %02d:%02d, got %02d:%02d", c.in, c.h, c.min, h, m)
		}
	}
}

func TestClockOutOfRange(t *testing.T) {
	p := Parser{}
	for _, in := range []any{"25:00", "10:75", 1.5} {
		if _, _, err := p.Clock(in); !errors.Is(err, ErrUnparseable) {
			t.Fatalf("%v: expected ErrUnparseable, got %v", in, err)
		}
	}
}

func TestParseDateOrder(t *testing.T) {
	if o, err := ParseDateOrder(""); err != nil || o != OrderAuto {
		t.Fatalf("empty: got %q err=%v", o, err)
	}
	if o, err := ParseDateOrder("DMY"); err != nil || o != OrderDMY {
		t.Fatalf("DMY: got %q err=%v", o, err)
	}
	if _, err := ParseDateOrder("ymd"); err == nil {
		t.Fatal("expected error for ymd")
	}
}
