package analyzer

import (
	"fmt"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
)

var structValidator = validator.New()

// Config holds every threshold used by formation detection.
// A Config is passed by value to NewDetector and never changes afterwards.
type Config struct {
	MinBars      int `yaml:"min_bars" default:"60" validate:"gte=1"`
	TailReserve  int `yaml:"tail_reserve" default:"10" validate:"gte=0"` // bars kept after the last onset candidate
	PreTrendDays int `yaml:"pre_trend_days" default:"20" validate:"gte=2"`

	// Candidate onset
	PreTrendMinSlope  float64 `yaml:"pre_trend_min_slope" default:"-0.005"` // per day, normalized by mean price
	OnsetMinDropPct   float64 `yaml:"onset_min_drop_pct" default:"1.5" validate:"gt=0"`
	OnsetMaxBodyPct   float64 `yaml:"onset_max_body_pct" default:"3" validate:"gt=0"` // bullish onset body limit
	PreVolumeLookback int     `yaml:"pre_volume_lookback" default:"10" validate:"gte=1"`

	// Decline
	DipMinAmplitude    float64 `yaml:"dip_min_amplitude" default:"5" validate:"gt=0,ltfield=DipMaxAmplitude"`
	DipMaxAmplitude    float64 `yaml:"dip_max_amplitude" default:"35" validate:"gt=0"`
	DipMinDays         int     `yaml:"dip_min_days" default:"2" validate:"gte=1,ltefield=DipMaxDays"`
	DipMaxDays         int     `yaml:"dip_max_days" default:"15" validate:"gte=1"`
	DipReversalBodyPct float64 `yaml:"dip_reversal_body_pct" default:"3" validate:"gt=0"`

	// Base
	BottomMinDays      int     `yaml:"bottom_min_days" default:"3" validate:"gte=1,ltefield=BottomMaxDays"`
	BottomMaxDays      int     `yaml:"bottom_max_days" default:"20" validate:"gte=1"`
	ConsolidationRange float64 `yaml:"consolidation_range" default:"0.05" validate:"gt=0"` // fraction, 0.05 = 5%
	BottomBreakoutPct  float64 `yaml:"bottom_breakout_pct" default:"2" validate:"gt=0"`
	BottomVolumeSurge  float64 `yaml:"bottom_volume_surge" default:"1.2" validate:"gt=0"`

	// Rebound
	ReboundMinAmplitude float64 `yaml:"rebound_min_amplitude" default:"10" validate:"gt=0"`
	ReboundMinDays      int     `yaml:"rebound_min_days" default:"3" validate:"gte=1"`
	ReboundMaxDays      int     `yaml:"rebound_max_days" default:"30" validate:"gtefield=ReboundMinDays"`
	ReboundLookahead    int     `yaml:"rebound_lookahead" default:"5" validate:"gte=0"`
	ReboundPullbackPct  float64 `yaml:"rebound_pullback_pct" default:"2" validate:"gt=0"`

	// Signals
	VolumeShrinkRatio float64 `yaml:"volume_shrink_ratio" default:"0.7" validate:"gt=0"`
	VolumeExpandRatio float64 `yaml:"volume_expand_ratio" default:"1.5" validate:"gt=0"`
	StabilizeBodyPct  float64 `yaml:"stabilize_body_pct" default:"2" validate:"gt=0"`
	EarlyReboundDays  int     `yaml:"early_rebound_days" default:"5" validate:"gte=1"`
	OversoldRSI       float64 `yaml:"oversold_rsi" default:"30" validate:"gte=0,lte=100"`
	RecoveredRSI      float64 `yaml:"recovered_rsi" default:"40" validate:"gte=0,lte=100"`

	// Panic wash refinement
	PanicMaxDipDays      int     `yaml:"panic_max_dip_days" default:"10" validate:"gte=1"`
	PanicMinDipAmplitude float64 `yaml:"panic_min_dip_amplitude" default:"15" validate:"gt=0"`
	PanicMinReboundPace  float64 `yaml:"panic_min_rebound_pace" default:"2" validate:"gt=0"` // % per day
	PanicConfidenceBoost float64 `yaml:"panic_confidence_boost" default:"1.1" validate:"gte=1"`
}

// DefaultConfig returns the default detection thresholds
func DefaultConfig() Config {
	return Config{
		MinBars:      60,
		TailReserve:  10,
		PreTrendDays: 20,

		PreTrendMinSlope:  -0.005,
		OnsetMinDropPct:   1.5,
		OnsetMaxBodyPct:   3.0,
		PreVolumeLookback: 10,

		DipMinAmplitude:    5.0,
		DipMaxAmplitude:    35.0,
		DipMinDays:         2,
		DipMaxDays:         15,
		DipReversalBodyPct: 3.0,

		BottomMinDays:      3,
		BottomMaxDays:      20,
		ConsolidationRange: 0.05,
		BottomBreakoutPct:  2.0,
		BottomVolumeSurge:  1.2,

		ReboundMinAmplitude: 10.0,
		ReboundMinDays:      3,
		ReboundMaxDays:      30,
		ReboundLookahead:    5,
		ReboundPullbackPct:  2.0,

		VolumeShrinkRatio: 0.7,
		VolumeExpandRatio: 1.5,
		StabilizeBodyPct:  2.0,
		EarlyReboundDays:  5,
		OversoldRSI:       30,
		RecoveredRSI:      40,

		PanicMaxDipDays:      10,
		PanicMinDipAmplitude: 15.0,
		PanicMinReboundPace:  2.0,
		PanicConfidenceBoost: 1.1,
	}
}

// ApplyDefaults fills zero-valued fields from the `default` tags
func (c *Config) ApplyDefaults() error {
	if err := defaults.Set(c); err != nil {
		return fmt.Errorf("pattern defaults: %w", err)
	}
	return nil
}

// Validate checks field ranges and cross-field bounds
func (c Config) Validate() error {
	if err := structValidator.Struct(c); err != nil {
		return fmt.Errorf("pattern config: %w", err)
	}
	if c.MinBars <= c.PreTrendDays+c.TailReserve {
		return fmt.Errorf("pattern config: min_bars (%d) must exceed pre_trend_days + tail_reserve (%d)",
			c.MinBars, c.PreTrendDays+c.TailReserve)
	}
	return nil
}
