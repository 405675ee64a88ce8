// Package datetime turns the free-text date and time a customer typed into
// an instant in the deployment's location.
package datetime

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

var ErrUnparseable = errors.New("unparseable date or time")

// DateOrder decides how slash-delimited dates are read.
type DateOrder string

const (
	// OrderAuto reads DD/MM when the first component is above 12, MM/DD otherwise.
	OrderAuto DateOrder = "auto"
	OrderDMY  DateOrder = "dmy"
	OrderMDY  DateOrder = "mdy"
)

func ParseDateOrder(raw string) (DateOrder, error) {
	switch o := DateOrder(strings.ToLower(strings.TrimSpace(raw))); o {
	case "":
		return OrderAuto, nil
	case OrderAuto, OrderDMY, OrderMDY:
		return o, nil
	default:
		return "", fmt.Errorf("unknown date order %q (want auto, dmy or mdy)", raw)
	}
}

const (
	defaultHour   = 9
	defaultMinute = 0
)

type Parser struct {
	Order    DateOrder
	Location *time.Location
}

func (p Parser) location() *time.Location {
	if p.Location == nil {
		return time.UTC
	}
	return p.Location
}

// Start combines a date and a clock value into one instant.
func (p Parser) Start(date, clock any) (time.Time, error) {
	y, mo, d, err := p.Date(date)
	if err != nil {
		return time.Time{}, err
	}
	h, mi, err := p.Clock(clock)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(y, mo, d, h, mi, 0, 0, p.location()), nil
}

// Date accepts a time.Time, "YYYY-MM-DD", an RFC 3339 timestamp, or a
// slash-delimited date read according to p.Order.
func (p Parser) Date(v any) (int, time.Month, int, error) {
	switch val := v.(type) {
	case time.Time:
		t := val.In(p.location())
		return t.Year(), t.Month(), t.Day(), nil
	case *time.Time:
		if val == nil {
			return 0, 0, 0, ErrUnparseable
		}
		return p.Date(*val)
	case string:
		return p.dateString(val)
	default:
		return 0, 0, 0, fmt.Errorf("%w: date of type %T", ErrUnparseable, v)
	}
}

func (p Parser) dateString(raw string) (int, time.Month, int, error) {
	s := strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return p.Date(t)
	}

	var y, m, d int
	switch {
	case strings.Contains(s, "-"):
		parts, err := splitInts(s, "-")
		if err != nil {
			return 0, 0, 0, fmt.Errorf("%w: date %q", ErrUnparseable, raw)
		}
		y, m, d = parts[0], parts[1], parts[2]
	case strings.Contains(s, "/"):
		parts, err := splitInts(s, "/")
		if err != nil {
			return 0, 0, 0, fmt.Errorf("%w: date %q", ErrUnparseable, raw)
		}
		a, b := parts[0], parts[1]
		y = parts[2]
		switch p.Order {
		case OrderDMY:
			d, m = a, b
		case OrderMDY:
			m, d = a, b
		default:
			if a > 12 {
				d, m = a, b
			} else {
				m, d = a, b
			}
		}
	default:
		return 0, 0, 0, fmt.Errorf("%w: date %q has no separator", ErrUnparseable, raw)
	}

	if !validDate(y, m, d) {
		return 0, 0, 0, fmt.Errorf("%w: date %q out of range", ErrUnparseable, raw)
	}
	return y, time.Month(m), d, nil
}

// Clock accepts a time.Time, a fraction of a day, or "HH:MM" with an
// optional AM/PM suffix. Missing parts default to 09:00.
func (p Parser) Clock(v any) (int, int, error) {
	switch val := v.(type) {
	case nil:
		return defaultHour, defaultMinute, nil
	case time.Time:
		t := val.In(p.location())
		return t.Hour(), t.Minute(), nil
	case float64:
		return fractionOfDay(val)
	case float32:
		return fractionOfDay(float64(val))
	case string:
		return clockString(val)
	default:
		return 0, 0, fmt.Errorf("%w: time of type %T", ErrUnparseable, v)
	}
}

func fractionOfDay(f float64) (int, int, error) {
	if f < 0 || f >= 1 || math.IsNaN(f) {
		return 0, 0, fmt.Errorf("%w: day fraction %v", ErrUnparseable, f)
	}
	total := int(math.Round(f * 24 * 60))
	if total >= 24*60 {
		return 0, 0, fmt.Errorf("%w: day fraction %v", ErrUnparseable, f)
	}
	return total / 60, total % 60, nil
}

func clockString(raw string) (int, int, error) {
	t := strings.ToUpper(strings.TrimSpace(raw))
	if strings.Contains(t, ".") && !strings.ContainsAny(t, ":APM") {
		if f, err := strconv.ParseFloat(t, 64); err == nil {
			return fractionOfDay(f)
		}
	}

	suffix := ""
	if strings.HasSuffix(t, "AM") || strings.HasSuffix(t, "PM") {
		suffix = t[len(t)-2:]
	}

	digits := strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == ':' {
			return r
		}
		return -1
	}, t)

	hour, minute := defaultHour, defaultMinute
	parts := strings.Split(digits, ":")
	if n, err := strconv.Atoi(parts[0]); err == nil {
		hour = n
	}
	if len(parts) > 1 {
		if n, err := strconv.Atoi(parts[1]); err == nil {
			minute = n
		}
	}

	if suffix == "PM" && hour < 12 {
		hour += 12
	}
	if suffix == "AM" && hour == 12 {
		hour = 0
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("%w: time %q out of range", ErrUnparseable, raw)
	}
	return hour, minute, nil
}

func splitInts(s, sep string) ([3]int, error) {
	var out [3]int
	parts := strings.Split(s, sep)
	if len(parts) != 3 {
		return out, ErrUnparseable
	}
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return out, err
		}
		out[i] = n
	}
	return out, nil
}

func validDate(y, m, d int) bool {
	if y < 1 || m < 1 || m > 12 || d < 1 {
		return false
	}
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	return t.Day() == d && int(t.Month()) == m
}
