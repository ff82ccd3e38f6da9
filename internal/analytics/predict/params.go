package predict

// Params tunes the prediction engine. DefaultParams holds the production
// values; config overrides a subset of them.
type Params struct {
	ClampMin         float64
	OutlierTrimRatio float64
	MADScale         float64
	WindowFloorRatio float64
	WindowMin        float64
	WindowMax        float64
	FixedMinSamples  int
	MinHistory       int
}

func DefaultParams() Params {
	return Params{
		ClampMin:         30,
		OutlierTrimRatio: 0.2,
		MADScale:         1.4826,
		WindowFloorRatio: 0.15,
		WindowMin:        20,
		WindowMax:        120,
		FixedMinSamples:  3,
		MinHistory:       10,
	}
}

// TimeWindowHours widens the look-back for younger babies and sparse logs.
func TimeWindowHours(ageWeeks, totalCount int) int {
	hours := 48
	if ageWeeks < 8 {
		hours += 24
	}
	if totalCount < 40 {
		hours += 24
	}
	if totalCount < 20 {
		hours += 24
	}
	if hours > 120 {
		hours = 120
	}
	return hours
}

// MinSlotSamples is the sample count a time slot needs before it is trusted
// over the coarser day/night pool.
func MinSlotSamples(ageWeeks, totalCount int) int {
	minimum := 3
	if totalCount >= 100 {
		minimum++
	}
	if ageWeeks >= 12 {
		minimum++
	}
	return minimum
}

// ClampMax caps the expected interval by age, loosened for short histories.
func ClampMax(ageWeeks, totalCount int) float64 {
	var ceiling float64
	switch {
	case ageWeeks < 4:
		ceiling = 240
	case ageWeeks < 12:
		ceiling = 300
	case ageWeeks < 24:
		ceiling = 360
	default:
		ceiling = 420
	}
	if totalCount < 30 {
		ceiling += 60
	}
	if ceiling > 480 {
		ceiling = 480
	}
	return ceiling
}

var (
	defaultDayIntervals   = [4]float64{90, 120, 150, 180}
	defaultNightIntervals = [4]float64{180, 240, 300, 360}
)

// DefaultInterval is the fallback expectation used until enough history exists.
func DefaultInterval(ageWeeks int, night bool) float64 {
	idx := 3
	switch {
	case ageWeeks < 4:
		idx = 0
	case ageWeeks < 12:
		idx = 1
	case ageWeeks < 24:
		idx = 2
	}
	if night {
		return defaultNightIntervals[idx]
	}
	return defaultDayIntervals[idx]
}
