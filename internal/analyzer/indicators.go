package analyzer

import (
	"math"

	"pitscout/pkg/model"
)

const (
	rsiPeriod  = 14
	atrPeriod  = 14
	neutralRSI = 50.0
)

// EnrichedBar is a Bar with derived indicators.
// An indicator that needs more history than is available is NaN; test with Defined.
type EnrichedBar struct {
	model.Bar

	MA5            float64
	MA10           float64
	MA20           float64
	MA60           float64
	PriceChangePct float64
	VolMA5         float64
	VolMA10        float64
	VolumeRatio    float64 // Volume / VolMA5
	TrueRange      float64
	ATR14          float64
	RSI14          float64
}

// Defined reports whether an indicator value is computable
func Defined(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Enrich derives indicators for every bar. The output is parallel to the input.
func Enrich(bars []model.Bar) []EnrichedBar {
	n := len(bars)
	out := make([]EnrichedBar, n)

	closes := make([]float64, n)
	volumes := make([]float64, n)
	for i, b := range bars {
		closes[i] = b.Close
		volumes[i] = b.Volume
	}

	ma5 := RollingMean(closes, 5)
	ma10 := RollingMean(closes, 10)
	ma20 := RollingMean(closes, 20)
	ma60 := RollingMean(closes, 60)
	volMA5 := RollingMean(volumes, 5)
	volMA10 := RollingMean(volumes, 10)
	tr := TrueRange(bars)
	atr := RollingMean(tr, atrPeriod)
	rsi := RSI(closes, rsiPeriod)

	for i, b := range bars {
		change := math.NaN()
		if i > 0 {
			change = pctChange(closes[i-1], closes[i])
		}
		ratio := math.NaN()
		if Defined(volMA5[i]) && volMA5[i] > 0 {
			ratio = b.Volume / volMA5[i]
		}

		out[i] = EnrichedBar{
			Bar:            b,
			MA5:            ma5[i],
			MA10:           ma10[i],
			MA20:           ma20[i],
			MA60:           ma60[i],
			PriceChangePct: change,
			VolMA5:         volMA5[i],
			VolMA10:        volMA10[i],
			VolumeRatio:    ratio,
			TrueRange:      tr[i],
			ATR14:          atr[i],
			RSI14:          rsi[i],
		}
	}

	return out
}

// RollingMean calculates the simple moving average ending at each index.
// Windows that are incomplete or contain NaN are NaN.
func RollingMean(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	for i := range values {
		if i < period-1 {
			out[i] = math.NaN()
			continue
		}
		var sum float64
		for j := i - period + 1; j <= i; j++ {
			sum += values[j]
		}
		out[i] = sum / float64(period)
	}
	return out
}

// TrueRange calculates max(high-low, |high-prevClose|, |low-prevClose|).
// The first bar has no previous close and uses high-low.
func TrueRange(bars []model.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		hl := b.High - b.Low
		if i == 0 {
			out[i] = hl
			continue
		}
		prev := bars[i-1].Close
		out[i] = math.Max(hl, math.Max(math.Abs(b.High-prev), math.Abs(b.Low-prev)))
	}
	return out
}

// RSI calculates the relative strength index from simple average gains and losses
// over the trailing period. Uncomputable windows and windows without losses are 50.
func RSI(closes []float64, period int) []float64 {
	out := make([]float64, len(closes))
	for i := range closes {
		out[i] = neutralRSI
		if i < period {
			continue
		}

		var gains, losses float64
		valid := true
		for j := i - period + 1; j <= i; j++ {
			change := closes[j] - closes[j-1]
			if !Defined(change) {
				valid = false
				break
			}
			if change > 0 {
				gains += change
			} else {
				losses -= change
			}
		}
		if !valid || losses == 0 {
			continue
		}

		rs := (gains / float64(period)) / (losses / float64(period))
		out[i] = 100 - (100 / (1 + rs))
	}
	return out
}

func pctChange(from, to float64) float64 {
	return (to - from) / from * 100
}

// meanOf averages the defined values in s, NaN when there are none
func meanOf(s []float64) float64 {
	var sum float64
	var count int
	for _, v := range s {
		if Defined(v) {
			sum += v
			count++
		}
	}
	if count == 0 {
		return math.NaN()
	}
	return sum / float64(count)
}
