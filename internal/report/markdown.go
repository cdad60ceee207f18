// Package report renders scan and backtest results as Markdown documents.
package report

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"

	"pitscout/internal/backtest"
	"pitscout/pkg/model"
)

// Config controls where reports are written and published
type Config struct {
	Dir          string `yaml:"dir" default:"data/reports" validate:"required"`
	RemotePrefix string `yaml:"remote_prefix" default:"xg"`
}

const (
	dateLayout     = "2006-01-02"
	fileDateLayout = "20060102"
	successBar     = 60.0 // % success rate above which a backtest reads as good
)

var advice = []string{
	"A golden pit is a fairly reliable entry signal, confirm it with other indicators before acting",
	"Prefer stocks with confidence above 70",
	"Build positions in tranches near the buy price",
	"Set a stop loss, usually 8-10% under the buy price",
	"Watch volume, add on a breakout with expanding volume",
	"Mind the broad market, avoid entries during systemic sell-offs",
	"Stocks with many historical limit-up days tend to draw more attention and liquidity",
}

// ScanMarkdown renders a scan report. universe is the number of stocks in the list.
func ScanMarkdown(result *model.ScanResult, universe int, now time.Time) (string, error) {
	if result == nil || len(result.Hits) == 0 {
		return "No golden pit buy points found\n", nil
	}

	var sb strings.Builder
	day := now.Format(dateLayout)
	fmt.Fprintf(&sb, "# Golden Pit Buy Point Report - %s\n\n", day)
	sb.WriteString("## Overview\n")
	fmt.Fprintf(&sb, "- Stocks analyzed: %d\n", universe)
	fmt.Fprintf(&sb, "- Buy points found: %d\n", len(result.Hits))
	fmt.Fprintf(&sb, "- Analysis date: %s\n", day)
	if result.RunID != "" {
		fmt.Fprintf(&sb, "- Run: %s\n", result.RunID)
	}
	sb.WriteString("\n## Buy Points\n")

	rows := make([][]string, 0, len(result.Hits))
	for _, hit := range sortedHits(result.Hits) {
		r := hit.Result
		rows = append(rows, []string{
			yesNo(hit.ShouldBuy),
			hit.Stock.Code,
			orDash(hit.Stock.Name),
			fmt.Sprintf("%.2f", hit.BuyPrice),
			fmt.Sprintf("%d", hit.Stock.LimitUpCount),
			orDash(hit.Stock.LimitUpSector),
			string(r.Kind),
			fmt.Sprintf("%.1f", r.Confidence),
			r.BaseStartDate.Format(dateLayout),
			percentOrDash(hit.PotentialReturn),
			fmt.Sprintf("%.2f%%", r.DeclineAmplitude),
			fmt.Sprintf("%.2f%%", r.ReboundAmplitude),
			string(r.Phase),
			orDash(r.BuyReason),
		})
	}
	table, err := markdownTable([]string{
		"Buy", "Code", "Name", "Buy Price", "Limit-Ups", "Limit-Up Sector", "Pattern",
		"Confidence", "Base Date", "5D Return", "Decline", "Rebound", "Phase", "Reason",
	}, rows)
	if err != nil {
		return "", err
	}
	sb.WriteString(table)

	sb.WriteString("\n## Advice\n")
	for i, line := range advice {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, line)
	}
	return sb.String(), nil
}

// BacktestMarkdown renders a backtest report for one code
func BacktestMarkdown(result *backtest.Result) (string, error) {
	if result == nil {
		return "Backtest failed, nothing to report\n", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "# Golden Pit Backtest Report - %s\n\n", result.Code)
	sb.WriteString("## Overview\n")
	fmt.Fprintf(&sb, "- Patterns: %d\n", result.TotalPatterns)
	fmt.Fprintf(&sb, "- Profitable patterns: %d\n", result.Profitable)
	fmt.Fprintf(&sb, "- Success rate: %.2f%%\n", result.SuccessRate)
	fmt.Fprintf(&sb, "- Average max return: %.2f%%\n", result.AvgMaxReturn)
	fmt.Fprintf(&sb, "- Average hold return: %.2f%%\n", result.AvgHoldReturn)
	fmt.Fprintf(&sb, "- Average max drawdown: %.2f%%\n\n", result.AvgMaxDrawdown)

	sb.WriteString("## Pattern Performance\n")
	rows := make([][]string, 0, len(result.Performances))
	for _, p := range result.Performances {
		rows = append(rows, []string{
			string(p.Pattern.Kind),
			p.BuyDate.Format(dateLayout),
			fmt.Sprintf("%.2f", p.BuyPrice),
			fmt.Sprintf("%.2f", p.SellPrice),
			p.SellDate.Format(dateLayout),
			fmt.Sprintf("%d", p.HoldDays),
			fmt.Sprintf("%.2f", p.HighestHigh),
			p.HighestDate.Format(dateLayout),
			fmt.Sprintf("%.2f%%", p.MaxReturn),
			fmt.Sprintf("%.2f", p.LowestLow),
			p.LowestDate.Format(dateLayout),
			fmt.Sprintf("%.2f%%", p.MaxDrawdown),
			fmt.Sprintf("%.2f%%", p.HoldReturn),
			yesNo(p.Profitable),
			fmt.Sprintf("%.1f", p.Pattern.Confidence),
		})
	}
	table, err := markdownTable([]string{
		"Pattern", "Base Date", "Buy", "Sell", "Sell Date", "Hold Days", "Highest", "Highest Date",
		"Max Return", "Lowest", "Lowest Date", "Max Drawdown", "Hold Return", "Profitable", "Confidence",
	}, rows)
	if err != nil {
		return "", err
	}
	sb.WriteString(table)

	sb.WriteString("\n## Conclusion\n")
	if result.SuccessRate > successBar {
		fmt.Fprintf(&sb, "The golden pit signal performs well on %s with a %.2f%% success rate and is worth watching.\n",
			result.Code, result.SuccessRate)
	} else {
		fmt.Fprintf(&sb, "The golden pit signal performs averagely on %s with a %.2f%% success rate, combine it with other indicators.\n",
			result.Code, result.SuccessRate)
	}
	return sb.String(), nil
}

// ScanFileName is the local file name of the scan report for day
func ScanFileName(day time.Time) string {
	return fmt.Sprintf("golden_pit_scan_report_%s.md", day.Format(fileDateLayout))
}

// BacktestFileName is the local file name of a backtest report
func BacktestFileName(code string, day time.Time) string {
	return fmt.Sprintf("golden_pit_backtest_%s_%s.md", code, day.Format(fileDateLayout))
}

// RemotePath is where the scan report for day is published
func (c Config) RemotePath(day time.Time) string {
	name := fmt.Sprintf("golden_pit_%s.md", day.Format(fileDateLayout))
	if c.RemotePrefix == "" {
		return name
	}
	return strings.TrimSuffix(c.RemotePrefix, "/") + "/" + name
}

// Save writes content to name under dir, creating dir as needed
func Save(dir, name, content string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}

func markdownTable(header []string, rows [][]string) (string, error) {
	var buf bytes.Buffer
	table := tablewriter.NewTable(&buf,
		tablewriter.WithRenderer(renderer.NewMarkdown()),
		tablewriter.WithHeader(header),
	)
	for _, row := range rows {
		if err := table.Append(row); err != nil {
			return "", fmt.Errorf("append row: %w", err)
		}
	}
	if err := table.Render(); err != nil {
		return "", fmt.Errorf("render table: %w", err)
	}
	return buf.String(), nil
}

func sortedHits(hits []model.ScanHit) []model.ScanHit {
	out := make([]model.ScanHit, len(hits))
	copy(out, hits)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Result.Confidence > out[j].Result.Confidence
	})
	return out
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func percentOrDash(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f%%", *v)
}
