package model

import "time"

// Bar represents a single daily OHLCV bar
type Bar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Bullish reports whether the bar closed above its open
func (b Bar) Bullish() bool {
	return b.Close > b.Open
}

// BodyPct returns the candle body as a percentage of the open (signed)
func (b Bar) BodyPct() float64 {
	return (b.Close - b.Open) / b.Open * 100
}

// Stock represents an instrument from a stock list
type Stock struct {
	Code          string `json:"code"` // exchange-suffixed, e.g. 603212.SS
	Name          string `json:"name"`
	Province      string `json:"province,omitempty"`
	LimitUpCount  int    `json:"limit_up_count,omitempty"`
	LimitUpSector string `json:"limit_up_sector,omitempty"`
}

// PatternKind identifies the detected formation
type PatternKind string

const (
	KindGoldenPit PatternKind = "golden_pit"
	KindPanicWash PatternKind = "panic_wash"
)

// Phase is where the last bar of the series sits within a formation.
// Values carry no ordering; compare by equality only.
type Phase string

const (
	PhaseBeforeDecline Phase = "before_decline"
	PhaseDeclining     Phase = "declining"
	PhaseBasing        Phase = "basing"
	PhaseRebounding    Phase = "rebounding"
	PhaseBreakout      Phase = "breakout"
)

// PatternResult is one fully validated formation. It is never modified after creation.
type PatternResult struct {
	Code       string      `json:"code"`
	Kind       PatternKind `json:"pattern_type"`
	Confidence float64     `json:"confidence"` // 0-100

	// Key dates
	StartDate        time.Time  `json:"start_date"` // start of the pre-trend window
	DeclineStartDate time.Time  `json:"decline_start_date"`
	BaseStartDate    time.Time  `json:"base_start_date"`
	ReboundStartDate *time.Time `json:"rebound_start_date,omitempty"`
	BreakoutDate     *time.Time `json:"breakout_date,omitempty"`

	// Key prices
	PreHigh     float64 `json:"pre_high"`
	BaseLow     float64 `json:"base_low"`
	ReboundHigh float64 `json:"rebound_high"`

	Phase Phase `json:"current_phase"`

	DeclineDays      int     `json:"decline_days"`
	DeclineAmplitude float64 `json:"decline_amplitude"` // absolute %
	ReboundDays      int     `json:"rebound_days"`
	ReboundAmplitude float64 `json:"rebound_amplitude"` // %
	VolumeRatio      float64 `json:"volume_ratio"`      // rebound mean volume / decline mean volume

	BuySignal bool   `json:"buy_signal"`
	BuyReason string `json:"buy_reason"`
	RiskLevel int    `json:"risk_level"` // 1 (lowest) - 5 (highest)

	// Boundary indices into the analyzed series
	DeclineStartIndex int `json:"decline_start_index"`
	DeclineEndIndex   int `json:"decline_end_index"`
	BaseEndIndex      int `json:"base_end_index"`
	ReboundEndIndex   int `json:"rebound_end_index"`
}

// ScanHit is a stock whose formation currently shows a buy signal
type ScanHit struct {
	Stock           Stock         `json:"stock"`
	Result          PatternResult `json:"result"`
	BuyPrice        float64       `json:"buy_price"` // close on the base start date
	FuturePrice     *float64      `json:"future_price,omitempty"`
	FutureDate      *time.Time    `json:"future_date,omitempty"`
	PotentialReturn *float64      `json:"potential_return,omitempty"` // %
	ShouldBuy       bool          `json:"should_buy"`
}

// ScanResult represents the final scan output
type ScanResult struct {
	RunID        string        `json:"run_id"`
	TotalScanned int           `json:"total_scanned"`
	Failed       int           `json:"failed"`
	HitCount     int           `json:"hit_count"`
	Hits         []ScanHit     `json:"hits"`
	ScanTime     time.Duration `json:"scan_time"`
	FinishedAt   time.Time     `json:"finished_at"`
}
