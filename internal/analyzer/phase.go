package analyzer

import (
	"math"

	"pitscout/pkg/model"
)

const (
	reasonBaseStabilizing = "base shrinking volume, stabilizing"
	reasonEarlyRebound    = "early rebound with volume expansion"
	reasonNoEntry         = "no confirmed entry yet"
)

// classifyPhase places the last bar relative to the formation boundaries
func classifyPhase(bars []EnrichedBar, f formation, preHigh float64) model.Phase {
	current := len(bars) - 1
	switch {
	case current < f.declineStart:
		return model.PhaseBeforeDecline
	case current <= f.declineEnd:
		return model.PhaseDeclining
	case current <= f.baseEnd:
		return model.PhaseBasing
	case current <= f.reboundEnd:
		return model.PhaseRebounding
	}

	if maxHigh(bars, f.reboundEnd+1, current) > preHigh {
		return model.PhaseBreakout
	}
	return model.PhaseRebounding
}

// evaluateSignal decides whether the last bar is an entry
func (d *Detector) evaluateSignal(bars []EnrichedBar, f formation, phase model.Phase) (bool, string) {
	cfg := d.config
	current := len(bars) - 1
	last := bars[current]

	volumeRatio := last.VolumeRatio
	if !Defined(volumeRatio) {
		volumeRatio = 1
	}

	switch phase {
	case model.PhaseBasing:
		if volumeRatio < cfg.VolumeShrinkRatio && math.Abs(last.BodyPct()) < cfg.StabilizeBodyPct {
			return true, reasonBaseStabilizing
		}
	case model.PhaseRebounding:
		if current-f.baseEnd <= cfg.EarlyReboundDays && last.Bullish() && volumeRatio > cfg.VolumeExpandRatio {
			return true, reasonEarlyRebound
		}
	}
	return false, reasonNoEntry
}

// riskLevel rates acting on the formation from 1 (lowest) to 5
func riskLevel(bars []EnrichedBar, f formation) int {
	risk := 3
	if math.Abs(f.declineAmp) > 25 {
		risk++
	}
	if f.reboundAmp > 30 {
		risk--
	}

	last := bars[len(bars)-1]
	if Defined(last.MA20) {
		if last.Close < last.MA20*0.9 {
			risk++
		} else if last.Close > last.MA20 {
			risk--
		}
	}

	return max(1, min(5, risk))
}

// findBreakout returns the first index after the rebound whose high clears preHigh
func findBreakout(bars []EnrichedBar, reboundEnd int, preHigh float64) (int, bool) {
	for i := reboundEnd + 1; i < len(bars); i++ {
		if bars[i].High > preHigh {
			return i, true
		}
	}
	return 0, false
}

// maxHigh returns the highest high of bars[from..to] inclusive, NaN if empty
func maxHigh(bars []EnrichedBar, from, to int) float64 {
	out := math.NaN()
	for i := max(from, 0); i <= to && i < len(bars); i++ {
		if h := bars[i].High; Defined(h) && (math.IsNaN(out) || h > out) {
			out = h
		}
	}
	return out
}

// minLow returns the lowest low of bars[from..to] inclusive, NaN if empty
func minLow(bars []EnrichedBar, from, to int) float64 {
	out := math.NaN()
	for i := max(from, 0); i <= to && i < len(bars); i++ {
		if l := bars[i].Low; Defined(l) && (math.IsNaN(out) || l < out) {
			out = l
		}
	}
	return out
}
