package analyzer

import "math"

// candidates returns every index that looks like the first bar of a sharp decline:
// the pre-trend is rising or flat, the close drops enough, and the bar is not a
// large bullish candle.
func (d *Detector) candidates(bars []EnrichedBar) []int {
	cfg := d.config
	var out []int
	for i := cfg.PreTrendDays; i < len(bars)-cfg.TailReserve; i++ {
		if d.isDeclineOnset(bars, i) {
			out = append(out, i)
		}
	}
	return out
}

func (d *Detector) isDeclineOnset(bars []EnrichedBar, i int) bool {
	cfg := d.config
	if i < cfg.PreTrendDays || i < 1 {
		return false
	}

	pre := make([]float64, 0, cfg.PreTrendDays)
	for _, b := range bars[i-cfg.PreTrendDays : i] {
		pre = append(pre, b.Close)
	}
	slope, ok := normalizedSlope(pre)
	if !ok || slope < cfg.PreTrendMinSlope {
		return false // already falling: a continuation, not an onset
	}

	cur, prev := bars[i], bars[i-1]
	change := pctChange(prev.Close, cur.Close)
	if !Defined(change) || change > -cfg.OnsetMinDropPct {
		return false
	}

	if cur.Bullish() && math.Abs(cur.BodyPct()) >= cfg.OnsetMaxBodyPct {
		return false
	}
	return true
}

// normalizedSlope fits a least-squares line through values and returns the slope
// divided by the mean value (fractional change per step).
func normalizedSlope(values []float64) (float64, bool) {
	n := len(values)
	if n < 2 {
		return 0, false
	}

	var meanX, meanY float64
	for i, v := range values {
		if !Defined(v) {
			return 0, false
		}
		meanX += float64(i)
		meanY += v
	}
	meanX /= float64(n)
	meanY /= float64(n)
	if meanY <= 0 {
		return 0, false
	}

	var num, den float64
	for i, v := range values {
		dx := float64(i) - meanX
		num += dx * (v - meanY)
		den += dx * dx
	}
	return (num / den) / meanY, true
}
