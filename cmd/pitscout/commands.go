package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"pitscout/internal/analyzer"
	"pitscout/internal/backtest"
	"pitscout/internal/daemon"
	"pitscout/internal/metrics"
	"pitscout/internal/publish"
	"pitscout/internal/report"
	"pitscout/internal/scanner"
	"pitscout/internal/symbols"
	"pitscout/internal/web"
	"pitscout/pkg/model"
)

func detectCmd() *cobra.Command {
	var days int
	var format string

	cmd := &cobra.Command{
		Use:   "detect CODE...",
		Short: "Detect a golden pit or panic wash on individual stocks",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if days <= 0 {
				days = cfg.Scanner.Days
			}
			ctx, cancel := signalContext()
			defer cancel()

			p, cleanup := buildProvider(ctx, false)
			defer cleanup()
			detector := analyzer.NewDetector(cfg.Pattern)

			var results []*model.PatternResult
			for _, stock := range symbols.LoadCodes(args) {
				bars, err := p.GetDailyBars(ctx, stock.Code, days)
				if err != nil {
					logger.Error().Err(err).Str("code", stock.Code).Msg("fetch failed")
					continue
				}
				if r := detector.Detect(stock.Code, bars); r != nil {
					results = append(results, r)
				} else {
					logger.Info().Str("code", stock.Code).Int("bars", len(bars)).Msg("no formation")
				}
			}

			if format == "json" {
				return printJSON(results)
			}
			if len(results) == 0 {
				fmt.Println("No formations found.")
				return nil
			}

			table := tablewriter.NewTable(os.Stdout,
				tablewriter.WithHeader([]string{"Code", "Pattern", "Conf", "Phase", "Decline", "Rebound", "Base Date", "Buy", "Risk", "Reason"}),
			)
			for _, r := range results {
				table.Append([]string{
					r.Code,
					string(r.Kind),
					fmt.Sprintf("%.1f", r.Confidence),
					string(r.Phase),
					fmt.Sprintf("-%.1f%% / %dd", r.DeclineAmplitude, r.DeclineDays),
					fmt.Sprintf("+%.1f%% / %dd", r.ReboundAmplitude, r.ReboundDays),
					r.BaseStartDate.Format("2006-01-02"),
					yesNo(r.BuySignal),
					fmt.Sprintf("%d", r.RiskLevel),
					r.BuyReason,
				})
			}
			return table.Render()
		},
	}

	cmd.Flags().IntVar(&days, "days", 0, "bars of history to fetch (default scanner.days)")
	cmd.Flags().StringVar(&format, "format", "table", "output format: table, json")
	return cmd
}

func scanCmd() *cobra.Command {
	var (
		stockFile string
		codes     string
		universe  string
		workers   int
		maxStocks int
		format    string
		save      bool
		publishIt bool
	)

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan a stock list for formations with a buy signal",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("workers") {
				cfg.Scanner.Workers = workers
			}
			if cmd.Flags().Changed("max") {
				cfg.Scanner.MaxStocks = maxStocks
			}

			if publishIt && (cfg.Gitee.Token == "" || cfg.Gitee.Repo == "") {
				return errors.New("--publish needs gitee.token and gitee.repo (or GITEE_TOKEN, GITEE_REPO)")
			}
			stocks, err := loadStocks(codes, universe, stockFile)
			if err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()

			p, cleanup := buildProvider(ctx, false)
			defer cleanup()

			s := scanner.NewScanner(p, analyzer.NewDetector(cfg.Pattern), cfg.Scanner, logger, nil)

			total := len(stocks)
			if cfg.Scanner.MaxStocks > 0 && total > cfg.Scanner.MaxStocks {
				total = cfg.Scanner.MaxStocks
			}
			bar := progressbar.NewOptions(total,
				progressbar.OptionEnableColorCodes(true),
				progressbar.OptionShowCount(),
				progressbar.OptionShowIts(),
				progressbar.OptionSetWidth(40),
				progressbar.OptionSetDescription("Scanning"),
				progressbar.OptionSetTheme(progressbar.Theme{
					Saucer:        "[green]█[reset]",
					SaucerHead:    "[green]█[reset]",
					SaucerPadding: "░",
					BarStart:      "[",
					BarEnd:        "]",
				}),
			)
			s.SetProgressCallback(func(scanned, total int) {
				bar.Set(scanned)
			})

			result, err := s.Scan(ctx, stocks)
			bar.Finish()
			fmt.Println()
			if err != nil {
				return err
			}

			if format == "json" {
				if err := printJSON(result); err != nil {
					return err
				}
			} else {
				printScanTable(result)
			}

			if !save && !publishIt {
				return nil
			}
			now := time.Now()
			md, err := report.ScanMarkdown(result, total, now)
			if err != nil {
				return err
			}
			if save {
				path, err := report.Save(cfg.Report.Dir, report.ScanFileName(now), md)
				if err != nil {
					return err
				}
				fmt.Printf("Report saved to %s\n", path)
			}
			if publishIt {
				client := publish.NewGiteeClient(cfg.Gitee, logger)
				remote := cfg.Report.RemotePath(now)
				if err := client.Upload(ctx, remote, md, "Update golden pit report "+now.Format("20060102")); err != nil {
					return fmt.Errorf("publishing report: %w", err)
				}
				fmt.Printf("Report published to %s/%s\n", cfg.Gitee.Repo, remote)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&stockFile, "stocks", "", "stock list CSV (default stocks.file)")
	cmd.Flags().StringVar(&codes, "codes", "", "comma-separated codes to scan instead of a list")
	cmd.Flags().StringVar(&universe, "universe", "", "built-in universe: sample, test")
	cmd.Flags().IntVar(&workers, "workers", 8, "number of parallel workers")
	cmd.Flags().IntVar(&maxStocks, "max", 0, "scan at most this many stocks (0 = all)")
	cmd.Flags().StringVar(&format, "format", "table", "output format: table, json")
	cmd.Flags().BoolVar(&save, "save", true, "save the Markdown report under report.dir")
	cmd.Flags().BoolVar(&publishIt, "publish", false, "upload the report to Gitee")
	return cmd
}

func printScanTable(result *model.ScanResult) {
	fmt.Printf("Scanned %d stocks (%d failed) in %s, %d buy points:\n\n",
		result.TotalScanned, result.Failed, result.ScanTime.Round(time.Millisecond), result.HitCount)
	if result.HitCount == 0 {
		return
	}

	table := tablewriter.NewTable(os.Stdout,
		tablewriter.WithHeader([]string{"Buy", "Code", "Name", "Pattern", "Conf", "Phase", "Buy Price", "5D Return", "Reason"}),
	)
	for _, h := range result.Hits {
		name := h.Stock.Name
		if len([]rune(name)) > 12 {
			name = string([]rune(name)[:12]) + "..."
		}
		ret := "-"
		if h.PotentialReturn != nil {
			ret = fmt.Sprintf("%+.2f%%", *h.PotentialReturn)
		}
		table.Append([]string{
			yesNo(h.ShouldBuy),
			h.Stock.Code,
			name,
			string(h.Result.Kind),
			fmt.Sprintf("%.1f", h.Result.Confidence),
			string(h.Result.Phase),
			fmt.Sprintf("%.2f", h.BuyPrice),
			ret,
			h.Result.BuyReason,
		})
	}
	table.Render()
}

func backtestCmd() *cobra.Command {
	var (
		days      int
		lookAhead int
		save      bool
		format    string
	)

	cmd := &cobra.Command{
		Use:   "backtest CODE",
		Short: "Replay detection over history and measure how formations played out",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("days") {
				cfg.Backtest.Days = days
			}
			if cmd.Flags().Changed("look-ahead") {
				cfg.Backtest.LookAhead = lookAhead
			}
			code := symbols.NormalizeCode(args[0])

			ctx, cancel := signalContext()
			defer cancel()

			p, cleanup := buildProvider(ctx, false)
			defer cleanup()

			bt := backtest.NewBacktester(cfg.Backtest, p, analyzer.NewDetector(cfg.Pattern), logger)
			result, err := bt.Run(ctx, code)
			if err != nil {
				return err
			}

			if format == "json" {
				if err := printJSON(result); err != nil {
					return err
				}
			} else {
				printBacktest(result)
			}

			if save {
				md, err := report.BacktestMarkdown(result)
				if err != nil {
					return err
				}
				path, err := report.Save(cfg.Report.Dir, report.BacktestFileName(code, time.Now()), md)
				if err != nil {
					return err
				}
				fmt.Printf("\nReport saved to %s\n", path)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", 730, "days of history")
	cmd.Flags().IntVar(&lookAhead, "look-ahead", 20, "bars held after the base start")
	cmd.Flags().BoolVar(&save, "save", true, "save the Markdown report under report.dir")
	cmd.Flags().StringVar(&format, "format", "table", "output format: table, json")
	return cmd
}

func printBacktest(r *backtest.Result) {
	fmt.Printf("Backtest %s: %d bars, %d windows\n", r.Code, r.Bars, r.Windows)
	fmt.Printf("  Patterns:        %d (%d profitable)\n", r.TotalPatterns, r.Profitable)
	fmt.Printf("  Success rate:    %.2f%%\n", r.SuccessRate)
	fmt.Printf("  Avg max return:  %.2f%%\n", r.AvgMaxReturn)
	fmt.Printf("  Avg hold return: %.2f%%\n", r.AvgHoldReturn)
	fmt.Printf("  Avg drawdown:    %.2f%%\n\n", r.AvgMaxDrawdown)
	if len(r.Performances) == 0 {
		return
	}

	table := tablewriter.NewTable(os.Stdout,
		tablewriter.WithHeader([]string{"Pattern", "Base Date", "Buy", "Sell", "Max", "Drawdown", "Hold", "Conf"}),
	)
	for _, p := range r.Performances {
		table.Append([]string{
			string(p.Pattern.Kind),
			p.BuyDate.Format("2006-01-02"),
			fmt.Sprintf("%.2f", p.BuyPrice),
			fmt.Sprintf("%.2f", p.SellPrice),
			fmt.Sprintf("%+.2f%%", p.MaxReturn),
			fmt.Sprintf("%.2f%%", p.MaxDrawdown),
			fmt.Sprintf("%+.2f%%", p.HoldReturn),
			fmt.Sprintf("%.1f", p.Pattern.Confidence),
		})
	}
	table.Render()
}

func serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve detection, backtests and metrics over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				cfg.Server.Addr = addr
			}
			ctx, cancel := signalContext()
			defer cancel()

			p, cleanup := buildProvider(ctx, true)
			defer cleanup()

			detector := analyzer.NewDetector(cfg.Pattern)
			bt := backtest.NewBacktester(cfg.Backtest, p, detector, logger)
			srv := web.NewServer(p, detector, bt, metrics.New(), logger, web.Options{
				DefaultDays: cfg.Scanner.Days,
				AccessLog:   cfg.Server.AccessLog,
				JWTSecret:   cfg.Server.JWTSecret,
			})

			errc := make(chan error, 1)
			go func() { errc <- srv.Start(cfg.Server.Addr) }()

			select {
			case err := <-errc:
				return err
			case <-ctx.Done():
			}

			shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
			defer stop()
			if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default server.addr)")
	return cmd
}

func daemonCmd() *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the scan, report and publish job on the configured schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			loc, err := time.LoadLocation(cfg.Schedule.Timezone)
			if err != nil {
				return err
			}
			market := daemon.DefaultMarketSchedule().WithHolidays(cfg.Schedule.Holidays)
			market.Location = loc

			tracker, err := daemon.NewRunTracker(cfg.Schedule.DataDir)
			if err != nil {
				return err
			}

			p, cleanup := buildProvider(ctx, false)
			defer cleanup()

			rec := metrics.New()
			s := scanner.NewScanner(p, analyzer.NewDetector(cfg.Pattern), cfg.Scanner, logger, rec)

			var pub daemon.Publisher
			if cfg.Gitee.Enabled {
				pub = publish.NewGiteeClient(cfg.Gitee, logger)
			}

			d := daemon.NewDaemon(daemon.Config{
				Spec:       cfg.Schedule.Spec,
				RunOnStart: cfg.Schedule.RunOnStart,
				Market:     market,
				Report:     cfg.Report,
			}, s, func() ([]model.Stock, error) {
				return loadStocks("", "", cfg.Stocks.File)
			}, pub, tracker, logger)

			if once {
				_, err := d.RunOnce(ctx)
				return err
			}
			return d.Run(ctx)
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "run the job immediately and exit")
	return cmd
}

func tokenCmd() *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token SUBJECT",
		Short: "Issue a bearer token for the HTTP API",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := web.IssueToken(cfg.Server.JWTSecret, args[0], ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}

	cmd.Flags().DurationVar(&ttl, "ttl", 30*24*time.Hour, "token lifetime")
	return cmd
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
