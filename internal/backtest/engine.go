package backtest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"pitscout/internal/analyzer"
	"pitscout/internal/provider"
	"pitscout/pkg/model"
)

// Config holds backtest parameters
type Config struct {
	Days       int `yaml:"days" default:"730" validate:"gte=60"`
	WindowSize int `yaml:"window_size" default:"120" validate:"gte=60"`
	Step       int `yaml:"step" default:"30" validate:"gte=1"`
	LookAhead  int `yaml:"look_ahead" default:"20" validate:"gte=1"`
	Workers    int `yaml:"workers" default:"4" validate:"gte=1,lte=64"`
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		Days:       730,
		WindowSize: 120,
		Step:       30,
		LookAhead:  20,
		Workers:    4,
	}
}

// ErrShortHistory is returned when the series cannot fill one window
var ErrShortHistory = errors.New("history shorter than one window")

// minWindowBars is the shortest window handed to the detector
const minWindowBars = 60

// Performance is how one detected formation played out after entry
type Performance struct {
	Pattern model.PatternResult `json:"pattern"`

	BuyDate     time.Time `json:"buy_date"` // base start date
	BuyPrice    float64   `json:"buy_price"`
	SellDate    time.Time `json:"sell_date"`
	SellPrice   float64   `json:"sell_price"`
	HoldDays    int       `json:"hold_days"`
	HighestHigh float64   `json:"highest_price"`
	HighestDate time.Time `json:"highest_date"`
	LowestLow   float64   `json:"lowest_price"`
	LowestDate  time.Time `json:"lowest_date"`

	MaxReturn   float64 `json:"max_return"`   // %
	MaxDrawdown float64 `json:"max_drawdown"` // %, <= 0 when the low dips under entry
	HoldReturn  float64 `json:"hold_return"`  // %
	Profitable  bool    `json:"is_profitable"`
}

// Result contains the complete backtest results for one code
type Result struct {
	Code           string        `json:"code"`
	Bars           int           `json:"bars"`
	Windows        int           `json:"windows"`
	TotalPatterns  int           `json:"total_patterns"`
	Profitable     int           `json:"profitable_patterns"`
	SuccessRate    float64       `json:"success_rate"` // %
	AvgMaxReturn   float64       `json:"avg_max_return"`
	AvgHoldReturn  float64       `json:"avg_hold_return"`
	AvgMaxDrawdown float64       `json:"avg_max_drawdown"`
	Performances   []Performance `json:"performances"` // highest confidence first
	Elapsed        time.Duration `json:"elapsed"`
}

// Backtester replays the detector over sliding windows of history
type Backtester struct {
	config   Config
	provider provider.Provider
	detector *analyzer.Detector
	logger   zerolog.Logger
}

// NewBacktester creates a new backtester
func NewBacktester(cfg Config, p provider.Provider, d *analyzer.Detector, logger zerolog.Logger) *Backtester {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &Backtester{
		config:   cfg,
		provider: p,
		detector: d,
		logger:   logger.With().Str("component", "backtest").Logger(),
	}
}

// Run fetches Days of history for code and backtests it
func (b *Backtester) Run(ctx context.Context, code string) (*Result, error) {
	bars, err := b.provider.GetDailyBars(ctx, code, b.config.Days)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", code, err)
	}
	if len(bars) < b.config.WindowSize {
		return nil, fmt.Errorf("%s: %w: need %d bars, got %d", code, ErrShortHistory, b.config.WindowSize, len(bars))
	}
	return b.RunBars(ctx, code, bars)
}

// RunBars backtests an already loaded series
func (b *Backtester) RunBars(ctx context.Context, code string, bars []model.Bar) (*Result, error) {
	start := time.Now()
	bars = sortedCopy(bars)

	windows := b.windows(len(bars))
	patterns, err := b.detectWindows(ctx, code, bars, windows)
	if err != nil {
		return nil, err
	}

	perfs := make([]Performance, 0, len(patterns))
	for _, p := range patterns {
		perf, ok := b.evaluate(p, bars)
		if !ok {
			b.logger.Debug().Str("code", code).Time("base_start", p.BaseStartDate).Msg("entry bar not found")
			continue
		}
		perfs = append(perfs, perf)
	}

	result := summarize(perfs)
	result.Code = code
	result.Bars = len(bars)
	result.Windows = len(windows)
	result.Elapsed = time.Since(start)

	b.logger.Info().Str("code", code).Int("windows", result.Windows).Int("patterns", result.TotalPatterns).
		Float64("success_rate", result.SuccessRate).Msg("backtest finished")
	return result, nil
}

// window is a [start, end) slice of the series
type window struct {
	start, end int
}

func (b *Backtester) windows(n int) []window {
	var out []window
	for i := 0; i+b.config.WindowSize <= n; i += b.config.Step {
		out = append(out, window{start: i, end: i + b.config.WindowSize})
	}
	return out
}

// detectWindows runs the detector on every window concurrently and returns the
// formations in window order, one per distinct start date
func (b *Backtester) detectWindows(ctx context.Context, code string, bars []model.Bar, windows []window) ([]model.PatternResult, error) {
	found := make([][]model.PatternResult, len(windows))

	jobChan := make(chan int, len(windows))
	for i := range windows {
		jobChan <- i
	}
	close(jobChan)

	var wg sync.WaitGroup
	for w := 0; w < b.config.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobChan {
				if ctx.Err() != nil {
					return
				}
				found[i] = b.detectWindow(code, bars, windows[i])
			}
		}()
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	seen := make(map[time.Time]bool)
	var out []model.PatternResult
	for _, list := range found {
		for _, p := range list {
			key := p.StartDate.UTC()
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, p)
		}
	}
	return out, nil
}

// detectWindow returns the panic wash (if any) ahead of the golden pit so the
// stricter label survives deduplication. Boundary indices refer to the full series.
func (b *Backtester) detectWindow(code string, bars []model.Bar, w window) []model.PatternResult {
	if w.end-w.start < minWindowBars {
		return nil
	}
	golden := b.detector.DetectGoldenPit(code, bars[w.start:w.end])
	if golden == nil {
		return nil
	}
	shiftIndices(golden, w.start)

	var out []model.PatternResult
	if wash := b.detector.RefinePanicWash(*golden); wash != nil {
		out = append(out, *wash)
	}
	return append(out, *golden)
}

func shiftIndices(p *model.PatternResult, offset int) {
	p.DeclineStartIndex += offset
	p.DeclineEndIndex += offset
	p.BaseEndIndex += offset
	p.ReboundEndIndex += offset
}

// evaluate holds from the base start bar for LookAhead bars
func (b *Backtester) evaluate(p model.PatternResult, bars []model.Bar) (Performance, bool) {
	entry := -1
	for i, bar := range bars {
		if bar.Date.Equal(p.BaseStartDate) {
			entry = i
			break
		}
	}
	if entry < 0 {
		return Performance{}, false
	}

	end := min(entry+b.config.LookAhead, len(bars)-1)
	hold := bars[entry : end+1]

	perf := Performance{
		Pattern:     p,
		BuyDate:     hold[0].Date,
		BuyPrice:    hold[0].Close,
		SellDate:    hold[len(hold)-1].Date,
		SellPrice:   hold[len(hold)-1].Close,
		HoldDays:    len(hold) - 1,
		HighestHigh: hold[0].High,
		HighestDate: hold[0].Date,
		LowestLow:   hold[0].Low,
		LowestDate:  hold[0].Date,
	}
	for _, bar := range hold[1:] {
		if bar.High > perf.HighestHigh {
			perf.HighestHigh = bar.High
			perf.HighestDate = bar.Date
		}
		if bar.Low < perf.LowestLow {
			perf.LowestLow = bar.Low
			perf.LowestDate = bar.Date
		}
	}

	if perf.BuyPrice > 0 {
		perf.HoldReturn = (perf.SellPrice - perf.BuyPrice) / perf.BuyPrice * 100
		perf.MaxReturn = (perf.HighestHigh - perf.BuyPrice) / perf.BuyPrice * 100
		perf.MaxDrawdown = (perf.LowestLow - perf.BuyPrice) / perf.BuyPrice * 100
	}
	perf.Profitable = perf.HoldReturn > 0
	return perf, true
}

func summarize(perfs []Performance) *Result {
	result := &Result{Performances: perfs}
	if result.Performances == nil {
		result.Performances = []Performance{}
	}
	if len(perfs) == 0 {
		return result
	}

	var maxRet, holdRet, drawdown float64
	for _, p := range perfs {
		if p.Profitable {
			result.Profitable++
		}
		maxRet += p.MaxReturn
		holdRet += p.HoldReturn
		drawdown += p.MaxDrawdown
	}
	n := float64(len(perfs))
	result.TotalPatterns = len(perfs)
	result.SuccessRate = float64(result.Profitable) / n * 100
	result.AvgMaxReturn = maxRet / n
	result.AvgHoldReturn = holdRet / n
	result.AvgMaxDrawdown = drawdown / n

	sort.SliceStable(result.Performances, func(i, j int) bool {
		return result.Performances[i].Pattern.Confidence > result.Performances[j].Pattern.Confidence
	})
	return result
}

func sortedCopy(bars []model.Bar) []model.Bar {
	out := make([]model.Bar, len(bars))
	copy(out, bars)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}
