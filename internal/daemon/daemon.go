package daemon

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"pitscout/internal/report"
	"pitscout/pkg/model"
)

// StockScanner runs one batch scan
type StockScanner interface {
	Scan(ctx context.Context, stocks []model.Stock) (*model.ScanResult, error)
}

// Publisher uploads a rendered report
type Publisher interface {
	Upload(ctx context.Context, remotePath, content, message string) error
}

// StockSource returns the list to scan
type StockSource func() ([]model.Stock, error)

// Config holds daemon settings
type Config struct {
	Spec       string // cron spec with a seconds field
	RunOnStart bool
	Market     MarketSchedule
	Report     report.Config
}

// Daemon runs scan, report and publish on a cron schedule
type Daemon struct {
	config    Config
	scanner   StockScanner
	stocks    StockSource
	publisher Publisher // nil disables publishing
	tracker   *RunTracker
	logger    zerolog.Logger
	now       func() time.Time

	runMu sync.Mutex
}

// NewDaemon creates a daemon. publisher may be nil.
func NewDaemon(cfg Config, s StockScanner, stocks StockSource, pub Publisher, tracker *RunTracker, logger zerolog.Logger) *Daemon {
	if cfg.Market.Location == nil {
		cfg.Market.Location = ChinaLocation()
	}
	if tracker == nil {
		tracker = &RunTracker{}
	}
	return &Daemon{
		config:    cfg,
		scanner:   s,
		stocks:    stocks,
		publisher: pub,
		tracker:   tracker,
		logger:    logger.With().Str("component", "daemon").Logger(),
		now:       time.Now,
	}
}

// Run schedules the job and blocks until ctx is cancelled
func (d *Daemon) Run(ctx context.Context) error {
	c := cron.New(cron.WithSeconds(), cron.WithLocation(d.config.Market.Location))
	if _, err := c.AddFunc(d.config.Spec, func() { d.tick(ctx) }); err != nil {
		return fmt.Errorf("register scan job: %w", err)
	}

	c.Start()
	d.logger.Info().Str("spec", d.config.Spec).Str("tz", d.config.Market.Location.String()).Msg("scheduler started")

	if d.config.RunOnStart {
		go d.tick(ctx)
	}

	<-ctx.Done()
	stopped := c.Stop()
	<-stopped.Done()
	d.logger.Info().Msg("scheduler stopped")
	return nil
}

// tick runs the daily job unless the market is closed today or it already ran
func (d *Daemon) tick(ctx context.Context) {
	now := d.now()
	if !d.config.Market.IsTradingDay(now) {
		d.logger.Info().Str("reason", d.config.Market.Status(now).Reason).Msg("not a trading day, skipping")
		return
	}
	day := now.In(d.config.Market.Location).Format("2006-01-02")
	if d.tracker.RanOn(day) {
		d.logger.Info().Str("date", day).Msg("already ran today, skipping")
		return
	}
	if !d.config.Market.DailyBarFinal(now) {
		d.logger.Warn().Str("status", d.config.Market.Status(now).Reason).Msg("session not closed, today's bar is partial")
	}

	if _, err := d.RunOnce(ctx); err != nil {
		d.logger.Error().Err(err).Msg("scheduled run failed")
	}
}

// RunOnce scans the stock list, saves the report and publishes it.
// A publish failure is recorded on the run but does not fail it.
func (d *Daemon) RunOnce(ctx context.Context) (*RunRecord, error) {
	d.runMu.Lock()
	defer d.runMu.Unlock()

	start := d.now()
	local := start.In(d.config.Market.Location)
	rec := RunRecord{Date: local.Format("2006-01-02"), StartTime: start, Status: "error"}

	err := d.run(ctx, local, &rec)
	rec.EndTime = d.now()
	if err != nil {
		rec.ErrorMessage = err.Error()
	}
	if terr := d.tracker.Record(rec); terr != nil {
		d.logger.Warn().Err(terr).Msg("could not save run log")
	}
	if err != nil {
		return &rec, err
	}

	d.logger.Info().Str("run_id", rec.RunID).Int("hits", rec.Hits).Str("report", rec.ReportPath).
		Bool("published", rec.Published).Msg("run finished")
	return &rec, nil
}

func (d *Daemon) run(ctx context.Context, local time.Time, rec *RunRecord) error {
	stocks, err := d.stocks()
	if err != nil {
		return fmt.Errorf("load stocks: %w", err)
	}

	result, err := d.scanner.Scan(ctx, stocks)
	if err != nil {
		return fmt.Errorf("scan: %w", err)
	}
	rec.RunID = result.RunID
	rec.Scanned = result.TotalScanned
	rec.Failed = result.Failed
	rec.Hits = result.HitCount

	md, err := report.ScanMarkdown(result, len(stocks), local)
	if err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	path, err := report.Save(d.config.Report.Dir, report.ScanFileName(local), md)
	if err != nil {
		return err
	}
	rec.ReportPath = path
	rec.Status = "ok"

	if d.publisher == nil {
		return nil
	}
	rec.RemotePath = d.config.Report.RemotePath(local)
	message := fmt.Sprintf("Update golden pit report %s", local.Format("20060102"))
	if err := d.publisher.Upload(ctx, rec.RemotePath, md, message); err != nil {
		d.logger.Error().Err(err).Str("path", rec.RemotePath).Msg("publish failed")
		rec.Status = "publish_failed"
		rec.ErrorMessage = err.Error()
		return nil
	}
	rec.Published = true
	return nil
}
