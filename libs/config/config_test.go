package config

import (
	"testing"
	"time"
)

func TestIntFallsBackOnInvalid(t *testing.T) {
	t.Setenv("EB_TEST_INT", "abc")
	if got := Int("EB_TEST_INT", 4); got != 4 {
		t.Fatalf("expected fallback 4, got %d", got)
	}
	t.Setenv("EB_TEST_INT", "7")
	if got := Int("EB_TEST_INT", 4); got != 7 {
		t.Fatalf("expected 7, got %d", got)
	}
}

func TestNonNegativeIntAcceptsZero(t *testing.T) {
	t.Setenv("EB_TEST_INT", "0")
	if got := NonNegativeInt("EB_TEST_INT", 4); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
	if got := Int("EB_TEST_INT", 4); got != 4 {
		t.Fatalf("Int should still reject 0, got %d", got)
	}
	t.Setenv("EB_TEST_INT", "-1")
	if got := NonNegativeInt("EB_TEST_INT", 4); got != 4 {
		t.Fatalf("expected fallback 4, got %d", got)
	}
}

func TestDurationAcceptsSecondsAndSyntax(t *testing.T) {
	t.Setenv("EB_TEST_DUR", "15")
	if got := Duration("EB_TEST_DUR", time.Second); got != 15*time.Second {
		t.Fatalf("expected 15s, got %s", got)
	}
	t.Setenv("EB_TEST_DUR", "250ms")
	if got := Duration("EB_TEST_DUR", time.Second); got != 250*time.Millisecond {
		t.Fatalf("expected 250ms, got %s", got)
	}
}

func TestBoolAndList(t *testing.T) {
	t.Setenv("EB_TEST_BOOL", "off")
	if Bool("EB_TEST_BOOL", true) {
		t.Fatal("expected false for off")
	}
	t.Setenv("EB_TEST_LIST", " a, ,b ")
	got := List("EB_TEST_LIST", "")
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("unexpected list: %#v", got)
	}
}

func TestLocationRejectsUnknownZone(t *testing.T) {
	t.Setenv("EB_TEST_TZ", "Mars/Olympus")
	if _, err := Location("EB_TEST_TZ", "UTC"); err == nil {
		t.Fatal("expected error for unknown timezone")
	}
}
