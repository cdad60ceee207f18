package analyzer

import (
	"math"
	"testing"
	"time"

	"pitscout/pkg/model"
)

// makeBars builds a daily series where each bar opens at the previous close
// and the wicks extend half a percent past the body.
func makeBars(closes []float64, volumes []float64) []model.Bar {
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	bars := make([]model.Bar, len(closes))
	prev := closes[0]
	for i, c := range closes {
		vol := 1_000_000.0
		if volumes != nil {
			vol = volumes[i]
		}
		bars[i] = model.Bar{
			Date:   start.AddDate(0, 0, i),
			Open:   prev,
			High:   math.Max(prev, c) * 1.005,
			Low:    math.Min(prev, c) * 0.995,
			Close:  c,
			Volume: vol,
		}
		prev = c
	}
	return bars
}

type shape struct {
	flat      int
	dipDays   int
	dipStep   float64
	baseDays  int
	baseNoise bool // alternate +2% / flat around the trough
	upDays    int
	upStep    float64
}

func (s shape) closes() []float64 {
	out := make([]float64, 0, s.flat+s.dipDays+s.baseDays+s.upDays)
	p := 10.0
	for i := 0; i < s.flat; i++ {
		out = append(out, p)
	}
	for i := 0; i < s.dipDays; i++ {
		p *= s.dipStep
		out = append(out, p)
	}
	trough := p
	for i := 0; i < s.baseDays; i++ {
		if s.baseNoise && i%2 == 0 {
			out = append(out, trough*1.02)
		} else {
			out = append(out, trough)
		}
	}
	for i := 0; i < s.upDays; i++ {
		p *= s.upStep
		out = append(out, p)
	}
	return out
}

// 50 flat bars, five -5% days, a ten bar base, fifteen +2.8% days
var goldenShape = shape{flat: 50, dipDays: 5, dipStep: 0.95, baseDays: 10, baseNoise: true, upDays: 15, upStep: 1.028}

// same recovery after a twelve day grind lower
var slowShape = shape{flat: 50, dipDays: 12, dipStep: 0.982, baseDays: 10, baseNoise: true, upDays: 15, upStep: 1.028}

func TestDetectGoldenPit_Synthetic(t *testing.T) {
	d := NewDetector(DefaultConfig())
	result := d.DetectGoldenPit("TEST", makeBars(goldenShape.closes(), nil))
	if result == nil {
		t.Fatal("Expected golden pit, got nil")
	}

	if result.Kind != model.KindGoldenPit {
		t.Errorf("Expected kind %s, got %s", model.KindGoldenPit, result.Kind)
	}
	if result.DeclineStartIndex != 50 {
		t.Errorf("Expected decline to start at 50, got %d", result.DeclineStartIndex)
	}
	if result.DeclineEndIndex != 54 {
		t.Errorf("Expected decline to end at 54, got %d", result.DeclineEndIndex)
	}
	if result.DeclineDays != 5 {
		t.Errorf("Expected 5 decline days, got %d", result.DeclineDays)
	}
	if result.DeclineAmplitude < 20 || result.DeclineAmplitude > 25 {
		t.Errorf("Expected decline amplitude ~22.6%%, got %f", result.DeclineAmplitude)
	}
	if result.ReboundDays < 3 {
		t.Errorf("Expected at least 3 rebound days, got %d", result.ReboundDays)
	}
	if result.ReboundAmplitude < 10 {
		t.Errorf("Expected rebound amplitude >= 10%%, got %f", result.ReboundAmplitude)
	}
	if result.Phase != model.PhaseBreakout {
		t.Errorf("Expected phase %s, got %s", model.PhaseBreakout, result.Phase)
	}
	if result.BreakoutDate == nil {
		t.Fatal("Expected breakout date")
	}
	if result.ReboundStartDate == nil || !result.BreakoutDate.After(*result.ReboundStartDate) {
		t.Errorf("Expected breakout after rebound start, got rebound=%v breakout=%v",
			result.ReboundStartDate, result.BreakoutDate)
	}
	if result.Confidence < 70 || result.Confidence > 100 {
		t.Errorf("Expected confidence in [70, 100], got %f", result.Confidence)
	}
	if result.BaseLow >= result.PreHigh {
		t.Errorf("Expected base low %f below pre high %f", result.BaseLow, result.PreHigh)
	}
}

func TestDetectGoldenPit_TooFewBars(t *testing.T) {
	d := NewDetector(DefaultConfig())
	closes := goldenShape.closes()

	if result := d.DetectGoldenPit("TEST", makeBars(closes[:59], nil)); result != nil {
		t.Errorf("Expected nil for 59 bars, got %+v", result)
	}
	if result := d.DetectGoldenPit("TEST", nil); result != nil {
		t.Errorf("Expected nil for empty input, got %+v", result)
	}
}

func TestDetectGoldenPit_MinimumBars(t *testing.T) {
	closes := shape{flat: 20, dipDays: 5, dipStep: 0.95, baseDays: 10, baseNoise: true, upDays: 15, upStep: 1.028}.closes()
	for len(closes) < 60 {
		closes = append(closes, closes[len(closes)-1])
	}

	d := NewDetector(DefaultConfig())
	result := d.DetectGoldenPit("TEST", makeBars(closes, nil))
	if result == nil {
		t.Fatal("Expected golden pit for 60 bars, got nil")
	}
	if result.DeclineStartIndex != 20 || result.DeclineEndIndex != 24 {
		t.Errorf("Expected decline 20..24, got %d..%d", result.DeclineStartIndex, result.DeclineEndIndex)
	}
	if result := d.DetectGoldenPit("TEST", makeBars(closes[:59], nil)); result != nil {
		t.Errorf("Expected nil for 59 bars, got %+v", result)
	}
}

// 20 flat bars, five -5% days, ten bars alternating +/-2% around the trough,
// fifteen +3% days, padded to 80 with the last close
func TestDetectGoldenPit_Scenario(t *testing.T) {
	closes := make([]float64, 0, 80)
	p := 10.0
	for i := 0; i < 20; i++ {
		closes = append(closes, p)
	}
	for i := 0; i < 5; i++ {
		p *= 0.95
		closes = append(closes, p)
	}
	trough := p
	for i := 0; i < 10; i++ {
		if i%2 == 0 {
			closes = append(closes, trough*1.02)
		} else {
			closes = append(closes, trough*0.98)
		}
	}
	for i := 0; i < 15; i++ {
		p *= 1.03
		closes = append(closes, p)
	}
	for len(closes) < 80 {
		closes = append(closes, p)
	}

	cfg := DefaultConfig()
	result := NewDetector(cfg).DetectGoldenPit("TEST", makeBars(closes, nil))
	if result == nil {
		t.Fatal("Expected golden pit, got nil")
	}
	if result.Kind != model.KindGoldenPit {
		t.Errorf("Expected kind %s, got %s", model.KindGoldenPit, result.Kind)
	}
	if result.DeclineStartIndex != 20 {
		t.Errorf("Expected decline to start at 20, got %d", result.DeclineStartIndex)
	}
	if result.DeclineAmplitude < cfg.DipMinAmplitude || result.DeclineAmplitude > cfg.DipMaxAmplitude {
		t.Errorf("Expected decline amplitude in [%f, %f], got %f",
			cfg.DipMinAmplitude, cfg.DipMaxAmplitude, result.DeclineAmplitude)
	}
	if result.DeclineDays < cfg.DipMinDays || result.DeclineDays > cfg.DipMaxDays {
		t.Errorf("Expected decline days in [%d, %d], got %d", cfg.DipMinDays, cfg.DipMaxDays, result.DeclineDays)
	}
}

func TestDetectGoldenPit_Rejections(t *testing.T) {
	flat := make([]float64, 80)
	for i := range flat {
		flat[i] = 10
	}

	shallow := make([]float64, 0, 80)
	for i := 0; i < 50; i++ {
		shallow = append(shallow, 10)
	}
	shallow = append(shallow, 9.8, 9.7)
	for len(shallow) < 80 {
		shallow = append(shallow, 9.7)
	}

	tests := []struct {
		name   string
		closes []float64
	}{
		{"flat series", flat},
		{"3% decline", shallow},
	}

	d := NewDetector(DefaultConfig())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := d.DetectGoldenPit("TEST", makeBars(tt.closes, nil)); result != nil {
				t.Errorf("Expected nil, got %+v", result)
			}
		})
	}
}

func TestDetectGoldenPit_FlatHasNoCandidates(t *testing.T) {
	flat := make([]float64, 80)
	for i := range flat {
		flat[i] = 10
	}
	d := NewDetector(DefaultConfig())
	if c := d.candidates(Enrich(makeBars(flat, nil))); len(c) != 0 {
		t.Errorf("Expected no candidates, got %v", c)
	}
}

func TestDetectGoldenPit_BuySignals(t *testing.T) {
	// Base still forming, last bar on thin volume
	basing := shape{flat: 50, dipDays: 5, dipStep: 0.95, baseDays: 8, baseNoise: true}.closes()
	basingVol := constantVolumes(len(basing))
	basingVol[len(basingVol)-1] = 400_000

	// Fresh rebound, last bar on a volume surge
	rebounding := shape{flat: 50, dipDays: 5, dipStep: 0.95, baseDays: 10, upDays: 5, upStep: 1.029}.closes()
	reboundVol := constantVolumes(len(rebounding))
	reboundVol[len(reboundVol)-1] = 5_000_000

	tests := []struct {
		name       string
		closes     []float64
		volumes    []float64
		wantPhase  model.Phase
		wantReason string
	}{
		{"basing on shrinking volume", basing, basingVol, model.PhaseBasing, reasonBaseStabilizing},
		{"early rebound on expanding volume", rebounding, reboundVol, model.PhaseRebounding, reasonEarlyRebound},
	}

	d := NewDetector(DefaultConfig())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := d.DetectGoldenPit("TEST", makeBars(tt.closes, tt.volumes))
			if result == nil {
				t.Fatal("Expected result, got nil")
			}
			if result.Phase != tt.wantPhase {
				t.Errorf("Expected phase %s, got %s", tt.wantPhase, result.Phase)
			}
			if !result.BuySignal {
				t.Error("Expected buy signal")
			}
			if result.BuyReason != tt.wantReason {
				t.Errorf("Expected reason %q, got %q", tt.wantReason, result.BuyReason)
			}
		})
	}
}

func TestDetectGoldenPit_NoSignalAfterBreakout(t *testing.T) {
	d := NewDetector(DefaultConfig())
	result := d.DetectGoldenPit("TEST", makeBars(goldenShape.closes(), nil))
	if result == nil {
		t.Fatal("Expected result, got nil")
	}
	if result.BuySignal {
		t.Error("Expected no buy signal in breakout phase")
	}
	if result.BuyReason != reasonNoEntry {
		t.Errorf("Expected reason %q, got %q", reasonNoEntry, result.BuyReason)
	}
}

func TestDetectGoldenPit_Invariants(t *testing.T) {
	basing := shape{flat: 50, dipDays: 5, dipStep: 0.95, baseDays: 8, baseNoise: true}

	d := NewDetector(DefaultConfig())
	for name, s := range map[string]shape{"golden": goldenShape, "slow": slowShape, "basing": basing} {
		bars := makeBars(s.closes(), nil)
		result := d.DetectGoldenPit("TEST", bars)
		if result == nil {
			t.Fatalf("%s: expected result, got nil", name)
		}

		if !(result.DeclineStartIndex < result.DeclineEndIndex &&
			result.DeclineEndIndex <= result.BaseEndIndex &&
			result.BaseEndIndex <= result.ReboundEndIndex &&
			result.ReboundEndIndex < len(bars)) {
			t.Errorf("%s: boundaries out of order: %d %d %d %d", name,
				result.DeclineStartIndex, result.DeclineEndIndex, result.BaseEndIndex, result.ReboundEndIndex)
		}
		if result.Confidence < 0 || result.Confidence > 100 {
			t.Errorf("%s: confidence out of range: %f", name, result.Confidence)
		}
		if result.RiskLevel < 1 || result.RiskLevel > 5 {
			t.Errorf("%s: risk out of range: %d", name, result.RiskLevel)
		}
		if !result.StartDate.Before(result.DeclineStartDate) || !result.DeclineStartDate.Before(result.BaseStartDate) {
			t.Errorf("%s: dates out of order: %v %v %v", name,
				result.StartDate, result.DeclineStartDate, result.BaseStartDate)
		}
		if result.ReboundDays > 0 && result.ReboundAmplitude < d.Config().ReboundMinAmplitude {
			t.Errorf("%s: rebound amplitude below minimum: %f", name, result.ReboundAmplitude)
		}
		if result.ReboundDays == 0 && result.ReboundHigh != result.BaseLow {
			t.Errorf("%s: expected rebound high to equal base low without a rebound", name)
		}
	}
}

func TestDetectGoldenPit_Deterministic(t *testing.T) {
	d := NewDetector(DefaultConfig())
	bars := makeBars(goldenShape.closes(), nil)

	first := d.DetectGoldenPit("TEST", bars)
	second := d.DetectGoldenPit("TEST", bars)
	if first == nil || second == nil {
		t.Fatal("Expected results, got nil")
	}
	if first.Confidence != second.Confidence || first.DeclineStartIndex != second.DeclineStartIndex ||
		first.ReboundEndIndex != second.ReboundEndIndex || first.Phase != second.Phase {
		t.Errorf("Expected identical results, got %+v and %+v", first, second)
	}
}

func TestDetectGoldenPit_UnsortedInput(t *testing.T) {
	d := NewDetector(DefaultConfig())
	bars := makeBars(goldenShape.closes(), nil)
	want := d.DetectGoldenPit("TEST", bars)

	reversed := make([]model.Bar, len(bars))
	for i, b := range bars {
		reversed[len(bars)-1-i] = b
	}
	firstDate := reversed[0].Date

	got := d.DetectGoldenPit("TEST", reversed)
	if got == nil || want == nil {
		t.Fatal("Expected results, got nil")
	}
	if got.DeclineStartIndex != want.DeclineStartIndex || got.Confidence != want.Confidence {
		t.Errorf("Expected same result for unsorted input, got %+v want %+v", got, want)
	}
	if !reversed[0].Date.Equal(firstDate) {
		t.Error("Expected input slice to be left untouched")
	}
}

func TestDetectGoldenPit_ToleratesMissingValues(t *testing.T) {
	d := NewDetector(DefaultConfig())
	bars := makeBars(goldenShape.closes(), nil)
	bars[5].Volume = math.NaN()
	bars[6].Close = math.NaN()

	result := d.DetectGoldenPit("TEST", bars)
	if result == nil {
		t.Fatal("Expected golden pit despite missing values, got nil")
	}
	if math.IsNaN(result.Confidence) {
		t.Error("Expected defined confidence")
	}
}

func TestDetect_PrefersPanicWash(t *testing.T) {
	d := NewDetector(DefaultConfig())

	fast := makeBars(goldenShape.closes(), nil)
	golden := d.DetectGoldenPit("FAST", fast)
	result := d.Detect("FAST", fast)
	if result == nil || golden == nil {
		t.Fatal("Expected results, got nil")
	}
	if result.Kind != model.KindPanicWash {
		t.Errorf("Expected kind %s, got %s", model.KindPanicWash, result.Kind)
	}
	if result.Confidence < golden.Confidence {
		t.Errorf("Expected panic confidence %f >= golden %f", result.Confidence, golden.Confidence)
	}
	if golden.Kind != model.KindGoldenPit {
		t.Error("Expected refinement to leave the golden result untouched")
	}

	slow := makeBars(slowShape.closes(), nil)
	if washed := d.DetectPanicWash("SLOW", slow); washed != nil {
		t.Errorf("Expected no panic wash for a 12 day decline, got %+v", washed)
	}
	result = d.Detect("SLOW", slow)
	if result == nil {
		t.Fatal("Expected golden pit, got nil")
	}
	if result.Kind != model.KindGoldenPit {
		t.Errorf("Expected kind %s, got %s", model.KindGoldenPit, result.Kind)
	}
}

func TestRefinePanicWash(t *testing.T) {
	base := model.PatternResult{
		Kind:             model.KindGoldenPit,
		Confidence:       80,
		DeclineDays:      3,
		DeclineAmplitude: 20,
		ReboundDays:      5,
		ReboundAmplitude: 25,
	}

	tests := []struct {
		name     string
		modify   func(r *model.PatternResult)
		wantNil  bool
		wantConf float64
	}{
		{"fast and deep", func(r *model.PatternResult) {}, false, 88},
		{"decline too long", func(r *model.PatternResult) { r.DeclineDays = 11 }, true, 0},
		{"decline too shallow", func(r *model.PatternResult) { r.DeclineAmplitude = 14 }, true, 0},
		{"rebound too slow", func(r *model.PatternResult) { r.ReboundAmplitude = 7.5 }, true, 0},
		{"no rebound yet", func(r *model.PatternResult) { r.ReboundDays, r.ReboundAmplitude = 0, 0 }, false, 88},
		{"boost is capped", func(r *model.PatternResult) { r.Confidence = 95 }, false, 100},
	}

	d := NewDetector(DefaultConfig())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := base
			tt.modify(&input)
			before := input

			got := d.RefinePanicWash(input)
			if tt.wantNil {
				if got != nil {
					t.Errorf("Expected nil, got %+v", got)
				}
				return
			}
			if got == nil {
				t.Fatal("Expected panic wash, got nil")
			}
			if got.Kind != model.KindPanicWash {
				t.Errorf("Expected kind %s, got %s", model.KindPanicWash, got.Kind)
			}
			if math.Abs(got.Confidence-tt.wantConf) > 1e-9 {
				t.Errorf("Expected confidence %f, got %f", tt.wantConf, got.Confidence)
			}
			if input != before {
				t.Error("Expected input to be unchanged")
			}
		})
	}
}

func constantVolumes(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 1_000_000
	}
	return out
}
