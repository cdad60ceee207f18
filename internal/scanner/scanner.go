package scanner

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"pitscout/internal/analyzer"
	"pitscout/internal/metrics"
	"pitscout/internal/provider"
	"pitscout/pkg/model"
)

// Config controls a batch scan
type Config struct {
	Workers       int           `yaml:"workers" default:"8" validate:"gte=1,lte=64"`
	Timeout       time.Duration `yaml:"timeout" default:"10m" validate:"gt=0"`
	Days          int           `yaml:"days" default:"180" validate:"gte=60"`
	MaxStocks     int           `yaml:"max_stocks" validate:"gte=0"` // 0 scans the whole list
	FutureBars    int           `yaml:"future_bars" default:"5" validate:"gte=1"`
	MinConfidence float64       `yaml:"min_confidence" default:"70" validate:"gte=0,lte=100"`
	MinReturn     float64       `yaml:"min_return" default:"5"` // % over FutureBars
}

// DefaultConfig returns the default scan settings
func DefaultConfig() Config {
	return Config{
		Workers:       8,
		Timeout:       10 * time.Minute,
		Days:          180,
		FutureBars:    5,
		MinConfidence: 70,
		MinReturn:     5,
	}
}

// ProgressCallback is called with progress updates
type ProgressCallback func(scanned, total int)

// Scanner performs parallel stock scanning
type Scanner struct {
	provider     provider.Provider
	detector     *analyzer.Detector
	config       Config
	logger       zerolog.Logger
	metrics      *metrics.Recorder
	progressFunc ProgressCallback
}

// NewScanner creates a new scanner. rec may be nil.
func NewScanner(p provider.Provider, d *analyzer.Detector, cfg Config, logger zerolog.Logger, rec *metrics.Recorder) *Scanner {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &Scanner{
		provider: p,
		detector: d,
		config:   cfg,
		logger:   logger.With().Str("component", "scanner").Logger(),
		metrics:  rec,
	}
}

// SetProgressCallback sets the progress callback function
func (s *Scanner) SetProgressCallback(fn ProgressCallback) {
	s.progressFunc = fn
}

type outcome struct {
	hit *model.ScanHit
	err error
}

// Scan scans all provided stocks. Hits are sorted by confidence, highest first.
// Per-stock fetch failures are counted, not returned.
func (s *Scanner) Scan(ctx context.Context, stocks []model.Stock) (*model.ScanResult, error) {
	startTime := time.Now()
	runID := uuid.NewString()

	if s.config.MaxStocks > 0 && len(stocks) > s.config.MaxStocks {
		stocks = stocks[:s.config.MaxStocks]
	}

	if len(stocks) == 0 {
		return &model.ScanResult{
			RunID:      runID,
			Hits:       []model.ScanHit{},
			ScanTime:   time.Since(startTime),
			FinishedAt: time.Now(),
		}, nil
	}

	if s.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.Timeout)
		defer cancel()
	}

	s.logger.Info().Str("run_id", runID).Int("stocks", len(stocks)).Int("workers", s.config.Workers).Msg("scan started")

	// Channels
	jobChan := make(chan model.Stock, len(stocks))
	resultChan := make(chan outcome, len(stocks))

	// Send all jobs
	for _, stock := range stocks {
		jobChan <- stock
	}
	close(jobChan)

	// Progress counter
	var scannedCount int64

	// Start workers
	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for stock := range jobChan {
				if ctx.Err() != nil {
					return
				}

				hit, err := s.ScanStock(ctx, stock)
				resultChan <- outcome{hit: hit, err: err}

				// Update progress
				count := atomic.AddInt64(&scannedCount, 1)
				if s.progressFunc != nil {
					s.progressFunc(int(count), len(stocks))
				}
			}
		}()
	}

	// Close result channel when all workers are done
	go func() {
		wg.Wait()
		close(resultChan)
	}()

	// Collect results
	hits := []model.ScanHit{}
	var failed int
	for o := range resultChan {
		switch {
		case o.err != nil:
			failed++
			s.record("error")
		case o.hit != nil:
			hits = append(hits, *o.hit)
			s.record("hit")
			if s.metrics != nil {
				s.metrics.RecordPattern(string(o.hit.Result.Kind))
			}
		default:
			s.record("miss")
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Result.Confidence > hits[j].Result.Confidence
	})

	result := &model.ScanResult{
		RunID:        runID,
		TotalScanned: int(atomic.LoadInt64(&scannedCount)),
		Failed:       failed,
		HitCount:     len(hits),
		Hits:         hits,
		ScanTime:     time.Since(startTime),
		FinishedAt:   time.Now(),
	}

	if s.metrics != nil {
		s.metrics.RecordScanHits(result.HitCount)
		s.metrics.RecordLatency("scan", result.ScanTime.Seconds())
	}
	s.logger.Info().Str("run_id", runID).Int("scanned", result.TotalScanned).Int("hits", result.HitCount).
		Int("failed", failed).Dur("elapsed", result.ScanTime).Msg("scan finished")

	if err := ctx.Err(); err != nil && result.TotalScanned < len(stocks) {
		s.logger.Warn().Err(err).Int("skipped", len(stocks)-result.TotalScanned).Msg("scan cut short")
	}
	return result, nil
}

// ScanStock fetches bars for one stock and returns a hit when its formation shows a
// buy signal. Formations that meet the panic wash criteria are reported as panic wash.
// No hit is (nil, nil).
func (s *Scanner) ScanStock(ctx context.Context, stock model.Stock) (*model.ScanHit, error) {
	bars, err := s.provider.GetDailyBars(ctx, stock.Code, s.config.Days)
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordFetchError(s.provider.Name())
		}
		s.logger.Debug().Err(err).Str("code", stock.Code).Msg("fetch failed")
		return nil, err
	}

	// The panic wash refinement keeps the golden pit's signal, so one check covers both
	result := s.detector.Detect(stock.Code, bars)
	if result == nil || !result.BuySignal {
		return nil, nil
	}

	hit := s.buildHit(stock, *result, bars)
	if hit != nil {
		s.logger.Debug().Str("code", stock.Code).Str("pattern", string(result.Kind)).
			Float64("confidence", result.Confidence).Msg("buy point found")
	}
	return hit, nil
}

// buildHit prices the entry at the close of the base start date and looks up the close
// FutureBars later when the series extends that far
func (s *Scanner) buildHit(stock model.Stock, result model.PatternResult, bars []model.Bar) *model.ScanHit {
	entry := -1
	for i, b := range bars {
		if b.Date.Equal(result.BaseStartDate) {
			entry = i
			break
		}
	}
	if entry < 0 {
		return nil
	}

	hit := &model.ScanHit{
		Stock:    stock,
		Result:   result,
		BuyPrice: bars[entry].Close,
	}

	if future := entry + s.config.FutureBars; future < len(bars) {
		price := bars[future].Close
		date := bars[future].Date
		hit.FuturePrice = &price
		hit.FutureDate = &date
		if hit.BuyPrice > 0 && analyzer.Defined(price) {
			ret := (price - hit.BuyPrice) / hit.BuyPrice * 100
			hit.PotentialReturn = &ret
		}
	}

	hit.ShouldBuy = result.Confidence > s.config.MinConfidence &&
		(hit.PotentialReturn == nil || *hit.PotentialReturn > s.config.MinReturn)
	return hit
}

func (s *Scanner) record(outcome string) {
	if s.metrics != nil {
		s.metrics.RecordScanned(outcome)
	}
}
