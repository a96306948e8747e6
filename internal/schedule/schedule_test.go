package schedule

import (
	"testing"
	"time"
)

func at(hour, min int) time.Time {
	return time.Date(2025, 6, 1, hour, min, 0, 0, time.UTC)
}

func TestIsQuiet(t *testing.T) {
	quiet := []int{2, 3, 4}
	if !IsQuiet(at(3, 15), quiet) {
		t.Fatal("03:15 should be quiet")
	}
	if IsQuiet(at(5, 0), quiet) {
		t.Fatal("05:00 should not be quiet")
	}
	if IsQuiet(at(3, 0), nil) {
		t.Fatal("no quiet hours configured")
	}
}

func TestNextWindowReturnsNowWhenActive(t *testing.T) {
	now := at(10, 30)
	if got := NextWindow(now, []int{2, 3}); !got.Equal(now) {
		t.Fatalf("NextWindow = %v, want now", got)
	}
}

func TestNextWindowSkipsToFirstAllowedHour(t *testing.T) {
	got := NextWindow(at(2, 45), []int{2, 3})
	want := at(4, 0)
	if !got.Equal(want) {
		t.Fatalf("NextWindow = %v, want %v", got, want)
	}
}

func TestNextWindowCrossesMidnight(t *testing.T) {
	now := time.Date(2025, 6, 1, 23, 10, 0, 0, time.UTC)
	got := NextWindow(now, []int{23, 0, 1})
	want := time.Date(2025, 6, 2, 2, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("NextWindow = %v, want %v", got, want)
	}
}
