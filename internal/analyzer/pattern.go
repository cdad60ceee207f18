package analyzer

import (
	"math"
	"sort"

	"pitscout/pkg/model"
)

// formation holds the boundary indices of one candidate
type formation struct {
	declineStart int
	declineEnd   int
	baseEnd      int
	reboundEnd   int

	declineAmp float64 // signed, vs. the close before the onset
	reboundAmp float64 // vs. the base-end close, 0 without a rebound segment
}

func (f formation) hasRebound() bool { return f.reboundEnd > f.baseEnd }
func (f formation) declineDays() int { return f.declineEnd - f.declineStart + 1 }
func (f formation) baseDays() int    { return f.baseEnd - f.declineEnd }

func (f formation) reboundDays() int {
	if !f.hasRebound() {
		return 0
	}
	return f.reboundEnd - f.baseEnd
}

// Detector detects golden pit and panic wash formations in daily bars.
// A Detector holds only its immutable Config and is safe for concurrent use.
type Detector struct {
	config Config
}

// NewDetector creates a detector with the given thresholds
func NewDetector(cfg Config) *Detector {
	return &Detector{config: cfg}
}

// Config returns the detector thresholds
func (d *Detector) Config() Config {
	return d.config
}

// DetectGoldenPit returns the highest-confidence golden pit in bars, or nil when the
// series is too short or no candidate survives validation.
func (d *Detector) DetectGoldenPit(code string, bars []model.Bar) *model.PatternResult {
	if len(bars) < d.config.MinBars {
		return nil
	}

	enriched := Enrich(sortedByDate(bars))

	var best *model.PatternResult
	for _, onset := range d.candidates(enriched) {
		result := d.evaluate(code, enriched, onset)
		if result == nil {
			continue
		}
		if best == nil || result.Confidence > best.Confidence {
			best = result
		}
	}
	return best
}

// DetectPanicWash returns the golden pit reclassified as a panic wash when its decline
// is short and deep and its rebound is fast; nil otherwise.
func (d *Detector) DetectPanicWash(code string, bars []model.Bar) *model.PatternResult {
	golden := d.DetectGoldenPit(code, bars)
	if golden == nil {
		return nil
	}
	return d.RefinePanicWash(*golden)
}

// RefinePanicWash applies the stricter panic wash criteria to a golden pit result.
// The input is not modified.
func (d *Detector) RefinePanicWash(golden model.PatternResult) *model.PatternResult {
	cfg := d.config
	if golden.DeclineDays > cfg.PanicMaxDipDays {
		return nil
	}
	if golden.DeclineAmplitude < cfg.PanicMinDipAmplitude {
		return nil
	}
	if golden.ReboundDays > 0 && golden.ReboundAmplitude/float64(golden.ReboundDays) < cfg.PanicMinReboundPace {
		return nil
	}

	washed := golden
	washed.Kind = model.KindPanicWash
	washed.Confidence = math.Min(100, golden.Confidence*cfg.PanicConfidenceBoost)
	return &washed
}

// Detect prefers a panic wash and falls back to a golden pit
func (d *Detector) Detect(code string, bars []model.Bar) *model.PatternResult {
	golden := d.DetectGoldenPit(code, bars)
	if golden == nil {
		return nil
	}
	if washed := d.RefinePanicWash(*golden); washed != nil {
		return washed
	}
	return golden
}

// evaluate locates, validates and scores the formation starting at onset
func (d *Detector) evaluate(code string, bars []EnrichedBar, onset int) *model.PatternResult {
	f, ok := d.locate(bars, onset)
	if !ok || !d.validate(f) {
		return nil
	}

	cfg := d.config
	n := len(bars)
	preStart := onset - cfg.PreTrendDays
	preHigh := maxHigh(bars, preStart, onset-1)
	reboundStart := f.baseEnd + 1

	phase := classifyPhase(bars, f, preHigh)
	buy, reason := d.evaluateSignal(bars, f, phase)

	result := &model.PatternResult{
		Code:             code,
		Kind:             model.KindGoldenPit,
		Confidence:       d.confidence(bars, f),
		StartDate:        bars[preStart].Date,
		DeclineStartDate: bars[f.declineStart].Date,
		BaseStartDate:    bars[f.declineEnd+1].Date,
		PreHigh:          preHigh,
		BaseLow:          minLow(bars, f.declineStart, f.declineEnd),
		Phase:            phase,
		DeclineDays:      f.declineDays(),
		DeclineAmplitude: math.Abs(f.declineAmp),
		ReboundDays:      f.reboundDays(),
		ReboundAmplitude: f.reboundAmp,
		VolumeRatio:      1.0,
		BuySignal:        buy,
		BuyReason:        reason,
		RiskLevel:        riskLevel(bars, f),

		DeclineStartIndex: f.declineStart,
		DeclineEndIndex:   f.declineEnd,
		BaseEndIndex:      f.baseEnd,
		ReboundEndIndex:   f.reboundEnd,
	}

	if reboundStart < n {
		date := bars[reboundStart].Date
		result.ReboundStartDate = &date
	}
	if idx, ok := findBreakout(bars, f.reboundEnd, preHigh); ok {
		date := bars[idx].Date
		result.BreakoutDate = &date
	}

	result.ReboundHigh = result.BaseLow
	if f.hasRebound() {
		result.ReboundHigh = maxHigh(bars, reboundStart, f.reboundEnd)
		dipVol := meanVolume(bars, f.declineStart, f.declineEnd)
		reboundVol := meanVolume(bars, reboundStart, f.reboundEnd)
		if dipVol > 0 && Defined(reboundVol) {
			result.VolumeRatio = reboundVol / dipVol
		}
	}

	return result
}

// locate runs the three boundary searches for one onset
func (d *Detector) locate(bars []EnrichedBar, onset int) (formation, bool) {
	declineEnd, ok := d.findDeclineEnd(bars, onset)
	if !ok {
		return formation{}, false
	}
	baseEnd, ok := d.findBaseEnd(bars, declineEnd+1)
	if !ok {
		return formation{}, false
	}
	reboundEnd := d.findReboundEnd(bars, baseEnd+1)

	f := formation{
		declineStart: onset,
		declineEnd:   declineEnd,
		baseEnd:      baseEnd,
		reboundEnd:   reboundEnd,
		declineAmp:   pctChange(bars[onset-1].Close, bars[declineEnd].Close),
	}
	if f.hasRebound() {
		f.reboundAmp = pctChange(bars[baseEnd].Close, bars[reboundEnd].Close)
	}
	return f, true
}

// validate re-checks ordering and the duration and amplitude bounds
func (d *Detector) validate(f formation) bool {
	cfg := d.config
	if !(f.declineStart < f.declineEnd && f.declineEnd <= f.baseEnd && f.baseEnd <= f.reboundEnd) {
		return false
	}

	amp := math.Abs(f.declineAmp)
	if !Defined(amp) || amp < cfg.DipMinAmplitude || amp > cfg.DipMaxAmplitude {
		return false
	}
	if days := f.declineDays(); days < cfg.DipMinDays || days > cfg.DipMaxDays {
		return false
	}
	if days := f.baseDays(); days < cfg.BottomMinDays || days > cfg.BottomMaxDays {
		return false
	}
	if f.hasRebound() && !(f.reboundAmp >= cfg.ReboundMinAmplitude) {
		return false
	}
	return true
}

// sortedByDate returns bars in ascending date order without touching the input
func sortedByDate(bars []model.Bar) []model.Bar {
	if sort.SliceIsSorted(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) }) {
		return bars
	}
	out := make([]model.Bar, len(bars))
	copy(out, bars)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}
