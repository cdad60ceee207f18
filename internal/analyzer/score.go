package analyzer

import "math"

// confidence scores how closely a validated formation matches the ideal shape
func (d *Detector) confidence(bars []EnrichedBar, f formation) float64 {
	cfg := d.config
	score := 50.0

	// Decline shape (max 30)
	idealDipDays := float64(cfg.DipMinDays+cfg.DipMaxDays) / 2
	score += clip(15-math.Abs(float64(f.declineDays())-idealDipDays)*2, 0, 15)
	idealDipAmp := (cfg.DipMinAmplitude + cfg.DipMaxAmplitude) / 2
	score += clip(15-math.Abs(math.Abs(f.declineAmp)-idealDipAmp)*2, 0, 15)

	// Base shape (max 20)
	idealBaseDays := float64(cfg.BottomMinDays+cfg.BottomMaxDays) / 2
	score += clip(20-math.Abs(float64(f.baseDays())-idealBaseDays)*3, 0, 20)

	// Rebound shape (max 20)
	if f.hasRebound() && f.reboundAmp > 0 {
		score += clip(f.reboundAmp/2, 0, 10)
		if days := f.reboundDays(); days >= cfg.ReboundMinDays {
			score += clip(10-float64(days-cfg.ReboundMinDays)*0.5, 0, 10)
		}
	}

	score += d.volumeScore(bars, f)
	score += d.technicalScore(bars, f)

	return clip(score, 0, 100)
}

// volumeScore rewards a decline on unusual volume (panic or quiet), a drying base
// and an expanding rebound. Max 10.
func (d *Detector) volumeScore(bars []EnrichedBar, f formation) float64 {
	var score float64

	dipVol := meanVolume(bars, f.declineStart, f.declineEnd)
	preVol := dipVol
	if lookback := d.config.PreVolumeLookback; f.declineStart >= lookback {
		preVol = meanVolume(bars, f.declineStart-lookback, f.declineStart-1)
	}
	if preVol > 0 {
		ratio := dipVol / preVol
		if ratio > 1.3 || ratio < 0.7 {
			score += 5
		}
	}

	baseVol := math.NaN()
	if f.baseEnd > f.declineEnd {
		baseVol = meanVolume(bars, f.declineEnd+1, f.baseEnd)
		if dipVol > 0 && baseVol/dipVol < 0.8 {
			score += 5
		}
	}

	if f.hasRebound() && baseVol > 0 {
		reboundVol := meanVolume(bars, f.baseEnd+1, f.reboundEnd)
		if reboundVol/baseVol > 1.2 {
			score += 5
		}
	}

	return math.Min(score, 10)
}

// technicalScore checks oscillator and moving-average confirmation. Max 10.
func (d *Detector) technicalScore(bars []EnrichedBar, f formation) float64 {
	var score float64

	if rsi := bars[f.declineEnd].RSI14; Defined(rsi) && rsi < d.config.OversoldRSI {
		score += 3
	}

	if f.hasRebound() {
		end := bars[f.reboundEnd]
		if Defined(end.RSI14) && end.RSI14 > d.config.RecoveredRSI {
			score += 3
		}
		if Defined(end.MA5) && Defined(end.MA10) && end.MA5 > end.MA10 {
			score += 2
		}
	}

	return math.Min(score, 10)
}

// meanVolume averages the defined volumes of bars[from..to] inclusive
func meanVolume(bars []EnrichedBar, from, to int) float64 {
	if from < 0 || to >= len(bars) || from > to {
		return math.NaN()
	}
	vols := make([]float64, 0, to-from+1)
	for _, b := range bars[from : to+1] {
		vols = append(vols, b.Volume)
	}
	return meanOf(vols)
}

func clip(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
