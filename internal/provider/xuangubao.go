package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"pitscout/internal/ratelimit"
	"pitscout/pkg/model"
)

const (
	XuangubaoBaseURL = "https://api-ddc-wscn.xuangubao.com.cn"

	xuangubaoOK     = 20000
	dailyPeriodSecs = 86400
	klineFields     = "tick_at,open_px,close_px,high_px,low_px,turnover_volume"
)

// chinaTZ is the exchange timezone for A-share trading dates
var chinaTZ = time.FixedZone("CST", 8*60*60)

// XuangubaoProvider fetches forward-adjusted daily klines from the xuangubao market API
type XuangubaoProvider struct {
	baseURL   string
	client    *http.Client
	limiter   *ratelimit.Limiter
	rateLimit int
}

// NewXuangubaoProvider creates a new xuangubao provider. An empty baseURL uses the public endpoint.
func NewXuangubaoProvider(baseURL string, perMinute int) *XuangubaoProvider {
	if baseURL == "" {
		baseURL = XuangubaoBaseURL
	}
	if perMinute <= 0 {
		perMinute = 120
	}
	return &XuangubaoProvider{
		baseURL:   baseURL,
		client:    &http.Client{Timeout: 30 * time.Second},
		limiter:   ratelimit.NewLimiter("xuangubao", perMinute),
		rateLimit: perMinute,
	}
}

// Name returns the provider name
func (p *XuangubaoProvider) Name() string {
	return "xuangubao"
}

// IsAvailable always returns true (no API key needed)
func (p *XuangubaoProvider) IsAvailable() bool {
	return true
}

// RateLimit returns the rate limit per minute
func (p *XuangubaoProvider) RateLimit() int {
	return p.rateLimit
}

type klineResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		Fields []string `json:"fields"`
		Candle map[string]struct {
			Lines [][]*float64 `json:"lines"`
		} `json:"candle"`
	} `json:"data"`
}

// GetDailyBars fetches daily bars for code
func (p *XuangubaoProvider) GetDailyBars(ctx context.Context, code string, days int) ([]model.Bar, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("tick_count", strconv.Itoa(days))
	params.Set("prod_code", code)
	params.Set("adjust_price_type", "forward")
	params.Set("period_type", strconv.Itoa(dailyPeriodSecs))
	params.Set("fields", klineFields)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/market/kline?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, &ProviderError{Provider: p.Name(), Err: err, Retryable: true}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		p.limiter.SignalRateLimited()
		return nil, &ProviderError{Provider: p.Name(), Err: fmt.Errorf("rate limited"), Retryable: true}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &ProviderError{Provider: p.Name(), Err: fmt.Errorf("status %d", resp.StatusCode), Retryable: resp.StatusCode >= 500}
	}

	p.limiter.ResetBackoff()

	var data klineResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if data.Code != xuangubaoOK {
		return nil, &ProviderError{Provider: p.Name(), Err: fmt.Errorf("api code %d: %s", data.Code, data.Message), Retryable: false}
	}

	candle, ok := data.Data.Candle[code]
	if !ok || len(candle.Lines) == 0 {
		return nil, &ProviderError{Provider: p.Name(), Err: ErrNoData, Retryable: false}
	}

	bars, err := parseKlineLines(data.Data.Fields, candle.Lines)
	if err != nil {
		return nil, &ProviderError{Provider: p.Name(), Err: err, Retryable: false}
	}
	if len(bars) == 0 {
		return nil, &ProviderError{Provider: p.Name(), Err: ErrNoData, Retryable: false}
	}
	return tail(bars, days), nil
}

// parseKlineLines maps positional kline rows to bars using the field list.
// Rows whose width does not match the field list or that lack a timestamp are skipped.
// Null cells become NaN.
func parseKlineLines(fields []string, lines [][]*float64) ([]model.Bar, error) {
	index := make(map[string]int, len(fields))
	for i, f := range fields {
		index[f] = i
	}
	for _, required := range []string{"tick_at", "open_px", "high_px", "low_px", "close_px"} {
		if _, ok := index[required]; !ok {
			return nil, fmt.Errorf("missing field %q", required)
		}
	}

	cell := func(line []*float64, name string) float64 {
		i, ok := index[name]
		if !ok || line[i] == nil {
			return math.NaN()
		}
		return *line[i]
	}

	bars := make([]model.Bar, 0, len(lines))
	for _, line := range lines {
		if len(line) != len(fields) {
			continue
		}
		tick := cell(line, "tick_at")
		if math.IsNaN(tick) {
			continue
		}
		bars = append(bars, model.Bar{
			Date:   tradingDate(tick),
			Open:   cell(line, "open_px"),
			High:   cell(line, "high_px"),
			Low:    cell(line, "low_px"),
			Close:  cell(line, "close_px"),
			Volume: cell(line, "turnover_volume"),
		})
	}

	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
	return bars, nil
}

// tradingDate converts a second or millisecond timestamp to midnight of its trading day
func tradingDate(tick float64) time.Time {
	if tick > 1e10 {
		tick /= 1000
	}
	t := time.Unix(int64(tick), 0).In(chinaTZ)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, chinaTZ)
}
