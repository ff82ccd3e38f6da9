package predict

import (
	"testing"
	"time"

	"feedlog/backend/internal/feeding"
)

func eventsAt(times ...time.Time) []feeding.Event {
	events := make([]feeding.Event, 0, len(times))
	for i, ts := range times {
		events = append(events, feeding.Event{
			ID:        string(rune('a' + i%26)),
			Side:      feeding.SideLeft,
			Timestamp: ts,
		})
	}
	return events
}

func evenlySpaced(last time.Time, count int, gap time.Duration) []feeding.Event {
	times := make([]time.Time, count)
	for i := 0; i < count; i++ {
		times[i] = last.Add(-time.Duration(count-1-i) * gap)
	}
	return eventsAt(times...)
}

func TestPredictEmptyReturnsNil(t *testing.T) {
	if got := Predict(nil, 0, 6, time.Now()); got != nil {
		t.Fatalf("expected nil for empty events, got %+v", got)
	}
	if got := Predict([]feeding.Event{{ID: "zero"}}, 1, 6, time.Now()); got != nil {
		t.Fatalf("expected nil when no event has a timestamp, got %+v", got)
	}
}

func TestPredictShortHistoryUsesDayDefault(t *testing.T) {
	now := time.Date(2026, 2, 15, 10, 0, 0, 0, time.UTC)
	events := evenlySpaced(now.Add(-time.Hour), 5, 2*time.Hour)

	got := Predict(events, len(events), 6, now)
	if got == nil {
		t.Fatalf("expected prediction")
	}
	if got.ExpectedIntervalMinutes != 120 {
		t.Fatalf("expected day default 120, got %v", got.ExpectedIntervalMinutes)
	}
	if got.ReliabilityIndex != 10 {
		t.Fatalf("expected reliability 10, got %d", got.ReliabilityIndex)
	}
	if got.Source != SourceDefault {
		t.Fatalf("expected default source, got %q", got.Source)
	}
	if got.NextFeedingPrediction != 60 {
		t.Fatalf("expected 60 minutes remaining, got %v", got.NextFeedingPrediction)
	}
	if got.ProbWindowMinutes != 20 {
		t.Fatalf("expected minimum window 20, got %v", got.ProbWindowMinutes)
	}
	if got.IsLikelyWindow {
		t.Fatalf("60 minutes in should not be inside a 120±10 window")
	}
}

func TestPredictShortHistoryUsesNightDefault(t *testing.T) {
	now := time.Date(2026, 2, 15, 23, 0, 0, 0, time.UTC)
	events := evenlySpaced(now.Add(-time.Hour), 3, 3*time.Hour)

	got := Predict(events, len(events), 6, now)
	if got.ExpectedIntervalMinutes != 240 {
		t.Fatalf("expected night default 240, got %v", got.ExpectedIntervalMinutes)
	}
	if got.NextFeedingPrediction != 180 {
		t.Fatalf("expected 180 remaining, got %v", got.NextFeedingPrediction)
	}
	if got.ReliabilityIndex != 10 {
		t.Fatalf("expected reliability 10, got %d", got.ReliabilityIndex)
	}
}

func TestDefaultIntervalBands(t *testing.T) {
	cases := []struct {
		age   int
		day   float64
		night float64
	}{
		{0, 90, 180},
		{3, 90, 180},
		{4, 120, 240},
		{11, 120, 240},
		{12, 150, 300},
		{23, 150, 300},
		{24, 180, 360},
	}
	for _, tc := range cases {
		if got := DefaultInterval(tc.age, false); got != tc.day {
			t.Fatalf("age %d day default = %v, want %v", tc.age, got, tc.day)
		}
		if got := DefaultInterval(tc.age, true); got != tc.night {
			t.Fatalf("age %d night default = %v, want %v", tc.age, got, tc.night)
		}
	}
}

func TestPredictRegularHistoryUsesSlotPool(t *testing.T) {
	now := time.Date(2026, 2, 20, 12, 0, 0, 0, time.UTC)
	events := evenlySpaced(now.Add(-90*time.Minute), 30, 3*time.Hour)

	got := Predict(events, len(events), 10, now)
	if got.Source != SourceSlot {
		t.Fatalf("expected slot source, got %q", got.Source)
	}
	if got.SampleSize != 3 {
		t.Fatalf("expected 3 slot samples, got %d", got.SampleSize)
	}
	if got.ExpectedIntervalMinutes != 180 {
		t.Fatalf("expected 180, got %v", got.ExpectedIntervalMinutes)
	}
	if got.ProbWindowMinutes != 27 {
		t.Fatalf("expected floor-ratio window 27, got %v", got.ProbWindowMinutes)
	}
	if got.NextFeedingPrediction != 90 {
		t.Fatalf("expected 90 remaining, got %v", got.NextFeedingPrediction)
	}
	if got.ReliabilityIndex != 72 {
		t.Fatalf("expected reliability 72, got %d", got.ReliabilityIndex)
	}
	if got.WindowHours != 72 {
		t.Fatalf("expected 72h look-back, got %d", got.WindowHours)
	}
}

// fromGaps lays out events starting at first, separated by gaps in minutes.
func fromGaps(first time.Time, gaps ...int) []feeding.Event {
	times := []time.Time{first}
	for _, gap := range gaps {
		times = append(times, times[len(times)-1].Add(time.Duration(gap)*time.Minute))
	}
	return eventsAt(times...)
}

func TestPredictIrregularHistoryWidensWindow(t *testing.T) {
	// Ten day intervals between 07:00 and 21:00; at 22:30 the night pool is
	// empty, so every interval is used.
	events := fromGaps(time.Date(2026, 2, 20, 7, 0, 0, 0, time.UTC), 30, 60, 70, 80, 90, 90, 100, 100, 110, 110)
	now := time.Date(2026, 2, 20, 22, 30, 0, 0, time.UTC)

	got := Predict(events, 200, 10, now)
	if got.Source != SourceWindow || got.SampleSize != 10 {
		t.Fatalf("expected window pool of 10, got %q/%d", got.Source, got.SampleSize)
	}
	// Trimmed mean drops 30 and one 110: 700/8.
	if got.ExpectedIntervalMinutes != 87.5 {
		t.Fatalf("expected 87.5, got %v", got.ExpectedIntervalMinutes)
	}
	// MAD 15 * 1.4826 = 22.239, inflated by 1 + CV(0.2827)/2.
	if got.ProbWindowMinutes != 25.4 {
		t.Fatalf("expected window 25.4, got %v", got.ProbWindowMinutes)
	}
	// 0.4 + 0.4*(1-0.2827) + 0.2 recency.
	if got.ReliabilityIndex != 89 {
		t.Fatalf("expected reliability 89, got %d", got.ReliabilityIndex)
	}
	if got.NextFeedingPrediction != 0 || !got.IsLikelyWindow {
		t.Fatalf("expected to be inside the window, got %+v", got)
	}
	if got.WindowHours != 48 {
		t.Fatalf("expected 48h look-back, got %d", got.WindowHours)
	}
}

func TestPredictStaleHistoryClampsWindowAndLowersRecency(t *testing.T) {
	events := fromGaps(time.Date(2026, 2, 10, 7, 0, 0, 0, time.UTC), 60, 300, 60, 300, 60, 300, 60, 300, 60, 300)
	now := time.Date(2026, 2, 15, 12, 0, 0, 0, time.UTC)

	// Keep the day pool out of reach so the full history is the pool.
	params := DefaultParams()
	params.FixedMinSamples = 100

	got := Predict(events, 200, 10, now, WithParams(params))
	if got.Source != SourceWindow || got.SampleSize != 10 {
		t.Fatalf("expected all 10 intervals, got %q/%d", got.Source, got.SampleSize)
	}
	if got.ExpectedIntervalMinutes != 180 {
		t.Fatalf("expected 180, got %v", got.ExpectedIntervalMinutes)
	}
	// MAD 120 * 1.4826 exceeds the maximum before and after inflation.
	if got.ProbWindowMinutes != params.WindowMax {
		t.Fatalf("expected window clamped to %v, got %v", params.WindowMax, got.ProbWindowMinutes)
	}
	// Nothing falls inside the 48h look-back: 0.4 + 0.4*(1-2/3) + 0.1.
	if got.ReliabilityIndex != 63 {
		t.Fatalf("expected reliability 63, got %d", got.ReliabilityIndex)
	}
	if got.IsLikelyWindow {
		t.Fatalf("expected a stale last feeding to be outside the window")
	}
}

func TestPredictLikelyWindowWithOverride(t *testing.T) {
	now := time.Date(2026, 2, 20, 12, 0, 0, 0, time.UTC)
	events := evenlySpaced(now.Add(-90*time.Minute), 30, 3*time.Hour)

	got := Predict(events, len(events), 10, now, WithTimeSinceLast(175))
	if !got.IsLikelyWindow {
		t.Fatalf("expected 175 minutes to fall in the 180±13.5 window")
	}
	if got.NextFeedingPrediction != 5 {
		t.Fatalf("expected 5 remaining, got %v", got.NextFeedingPrediction)
	}

	overdue := Predict(events, len(events), 10, now, WithTimeSinceLast(400))
	if overdue.NextFeedingPrediction != 0 {
		t.Fatalf("expected remaining floored at 0, got %v", overdue.NextFeedingPrediction)
	}
}

func TestPredictEveningClusterOverride(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	var times []time.Time
	for day := 0; day < 6; day++ {
		for _, hour := range []int{7, 10, 13, 16, 18, 19, 20, 21} {
			times = append(times, start.AddDate(0, 0, day).Add(time.Duration(hour)*time.Hour))
		}
	}
	for _, hour := range []int{7, 10, 13, 16} {
		times = append(times, start.AddDate(0, 0, 6).Add(time.Duration(hour)*time.Hour))
	}
	events := eventsAt(times...)
	now := start.AddDate(0, 0, 6).Add(17*time.Hour + 30*time.Minute)

	got := Predict(events, len(events), 20, now)
	if got.Source != SourceDayNight {
		t.Fatalf("expected day/night pool, got %q", got.Source)
	}
	if got.ExpectedIntervalMinutes != 60 {
		t.Fatalf("expected evening median 60 to override, got %v", got.ExpectedIntervalMinutes)
	}
	if got.IsClusterFeeding {
		t.Fatalf("only one feeding in the last 3h; cluster flag must stay off")
	}
}

func TestPredictClusterFeedingFlag(t *testing.T) {
	evening := time.Date(2026, 2, 15, 19, 10, 0, 0, time.UTC)
	events := eventsAt(
		evening.Add(-6*time.Hour),
		evening.Add(-160*time.Minute),
		evening.Add(-90*time.Minute),
		evening.Add(-20*time.Minute),
	)
	if got := Predict(events, len(events), 6, evening); !got.IsClusterFeeding {
		t.Fatalf("expected cluster feeding with 3 feedings in the last 3h at 19:10")
	}

	afternoon := time.Date(2026, 2, 15, 14, 0, 0, 0, time.UTC)
	shifted := eventsAt(
		afternoon.Add(-160*time.Minute),
		afternoon.Add(-90*time.Minute),
		afternoon.Add(-20*time.Minute),
	)
	if got := Predict(shifted, len(shifted), 6, afternoon); got.IsClusterFeeding {
		t.Fatalf("cluster flag must be limited to evening hours")
	}
}

func TestPredictUsesLocationForHour(t *testing.T) {
	kst := time.FixedZone("KST", 9*60*60)
	// 13:00 UTC is 22:00 in KST, which is night under the fixed rule.
	now := time.Date(2026, 2, 15, 13, 0, 0, 0, time.UTC)
	events := evenlySpaced(now.Add(-time.Hour), 3, 3*time.Hour)

	if got := Predict(events, len(events), 6, now); got.ExpectedIntervalMinutes != 120 {
		t.Fatalf("expected day default in UTC, got %v", got.ExpectedIntervalMinutes)
	}
	if got := Predict(events, len(events), 6, now, WithLocation(kst)); got.ExpectedIntervalMinutes != 240 {
		t.Fatalf("expected night default in KST, got %v", got.ExpectedIntervalMinutes)
	}
}

func TestAdaptiveParameters(t *testing.T) {
	if got := TimeWindowHours(2, 10); got != 120 {
		t.Fatalf("expected widest window 120, got %d", got)
	}
	if got := TimeWindowHours(20, 200); got != 48 {
		t.Fatalf("expected base window 48, got %d", got)
	}
	if got := MinSlotSamples(20, 150); got != 5 {
		t.Fatalf("expected 5 slot samples, got %d", got)
	}
	if got := ClampMax(2, 10); got != 300 {
		t.Fatalf("expected 300, got %v", got)
	}
	if got := ClampMax(40, 10); got != 480 {
		t.Fatalf("expected cap 480, got %v", got)
	}
}

func TestSlotForHour(t *testing.T) {
	cases := map[int]string{0: "21-7", 6: "21-7", 7: "7-9", 8: "7-9", 9: "9-12", 14: "12-15", 17: "15-18", 18: "18-21", 20: "18-21", 21: "21-7", 23: "21-7"}
	for hour, want := range cases {
		if got := slotForHour(hour); got != want {
			t.Fatalf("slotForHour(%d) = %q, want %q", hour, got, want)
		}
	}
}
