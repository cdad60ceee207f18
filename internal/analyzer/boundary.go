package analyzer

import "math"

// findDeclineEnd extends the decline that starts at onset. The decline may end early on
// a reversal (two bullish bars in a row or one large bullish body) once it is already
// deep enough; otherwise it ends at the lowest close inside the span.
func (d *Detector) findDeclineEnd(bars []EnrichedBar, onset int) (int, bool) {
	cfg := d.config
	n := len(bars)
	if onset < 1 || onset >= n {
		return 0, false
	}

	ref := bars[onset-1].Close
	minClose := bars[onset].Close
	minIdx := onset
	last := min(onset+cfg.DipMaxDays-1, n-1)

	for i := onset + 1; i <= last; i++ {
		cur := bars[i]
		if cur.Close < minClose {
			minClose = cur.Close
			minIdx = i
		}

		twoBullish := cur.Bullish() && bars[i-1].Bullish()
		bigBullish := cur.BodyPct() > cfg.DipReversalBodyPct
		if !twoBullish && !bigBullish {
			continue
		}
		if pctChange(ref, cur.Close) < -cfg.DipMinAmplitude {
			return i, true
		}
	}

	if minIdx > onset && math.Abs(pctChange(ref, minClose)) >= cfg.DipMinAmplitude {
		return minIdx, true
	}
	return 0, false
}

// findBaseEnd extends the low-volatility base that starts the bar after the decline.
// The base ends when the range widens on a bullish volume bar, or when a close clears
// the base high after the minimum duration.
func (d *Detector) findBaseEnd(bars []EnrichedBar, start int) (int, bool) {
	cfg := d.config
	n := len(bars)
	if start >= n {
		return 0, false
	}

	low := bars[start].Low
	high := bars[start].High
	last := min(start+cfg.BottomMaxDays-1, n-1)

	for i := start + 1; i <= last; i++ {
		cur := bars[i]
		envelopeHigh := high

		if cur.Low < low {
			low = cur.Low
		}
		if cur.High > high {
			high = cur.High
		}

		if low > 0 && (high-low)/low > cfg.ConsolidationRange {
			surge := Defined(cur.VolMA5) && cur.Volume >= cur.VolMA5*cfg.BottomVolumeSurge
			if cur.Bullish() && surge {
				return i, true
			}
		}

		if i > start+cfg.BottomMinDays && cur.Close > envelopeHigh*(1+cfg.BottomBreakoutPct/100) {
			return i, true
		}
	}

	if start+cfg.BottomMinDays < n {
		return last, true
	}
	return 0, false
}

// findReboundEnd extends the rebound that starts the bar after the base. Once the
// rebound is large and long enough, it ends just before the first sharp pullback in the
// lookahead window. A rebound that never gets there runs to the last bar.
func (d *Detector) findReboundEnd(bars []EnrichedBar, start int) int {
	cfg := d.config
	n := len(bars)
	if start < 1 || start >= n {
		return n - 1
	}

	ref := bars[start-1].Close
	high := bars[start].High
	last := min(start+cfg.ReboundMaxDays-1, n-1)

	for i := start; i <= last; i++ {
		if bars[i].High > high {
			high = bars[i].High
		}
		amplitude := pctChange(ref, high)
		if !(amplitude >= cfg.ReboundMinAmplitude) || i < start+cfg.ReboundMinDays-1 {
			continue
		}

		ahead := min(i+cfg.ReboundLookahead, n-1)
		for j := i + 1; j <= ahead; j++ {
			if bars[j].Close < bars[j-1].Close*(1-cfg.ReboundPullbackPct/100) {
				return j - 1
			}
		}
		return i
	}

	return n - 1
}
