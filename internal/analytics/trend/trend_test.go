package trend

import (
	"math"
	"testing"

	"feedlog/backend/internal/analytics/interval"
)

func TestFitLine(t *testing.T) {
	slope, intercept, ok := Fit([]float64{100, 110, 120, 130})
	if !ok {
		t.Fatalf("expected fit")
	}
	if math.Abs(slope-10) > 1e-9 || math.Abs(intercept-100) > 1e-9 {
		t.Fatalf("unexpected fit slope=%v intercept=%v", slope, intercept)
	}
	if _, _, ok := Fit([]float64{100}); ok {
		t.Fatalf("expected single point to be skipped")
	}
}

func TestAttach(t *testing.T) {
	intervals := []interval.Interval{{Minutes: 60}, {Minutes: 90}, {Minutes: 120}}
	got := Attach(intervals)
	for i, iv := range got {
		if iv.TrendLine == nil {
			t.Fatalf("expected trend value at %d", i)
		}
		if want := 60 + 30*float64(i); math.Abs(*iv.TrendLine-want) > 1e-6 {
			t.Fatalf("trend at %d = %v, want %v", i, *iv.TrendLine, want)
		}
	}
	if intervals[0].TrendLine != nil {
		t.Fatalf("input must not be modified")
	}

	single := Attach([]interval.Interval{{Minutes: 60}})
	if single[0].TrendLine != nil {
		t.Fatalf("expected no trend for a single point")
	}
}
