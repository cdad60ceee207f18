package provider

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"pitscout/pkg/model"
)

func TestXuangubaoProvider_GetDailyBars(t *testing.T) {
	var gotQuery map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/market/kline" {
			t.Errorf("Expected path /market/kline, got %s", r.URL.Path)
		}
		gotQuery = map[string]string{
			"prod_code":         r.URL.Query().Get("prod_code"),
			"tick_count":        r.URL.Query().Get("tick_count"),
			"adjust_price_type": r.URL.Query().Get("adjust_price_type"),
			"period_type":       r.URL.Query().Get("period_type"),
		}
		// Second row uses a millisecond timestamp and has a null volume.
		// Third row is short and must be skipped. Rows arrive out of order.
		fmt.Fprint(w, `{
			"code": 20000,
			"message": "OK",
			"data": {
				"fields": ["tick_at", "open_px", "close_px", "high_px", "low_px", "turnover_volume"],
				"candle": {
					"603212.SS": {
						"lines": [
							[1704240000000, 10.2, 10.4, 10.5, 10.1, null],
							[1704153600, 10.0, 10.2, 10.3, 9.9, 120000],
							[1704326400, 10.4]
						]
					}
				}
			}
		}`)
	}))
	defer server.Close()

	p := NewXuangubaoProvider(server.URL, 600)
	bars, err := p.GetDailyBars(context.Background(), "603212.SS", 180)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	want := map[string]string{"prod_code": "603212.SS", "tick_count": "180", "adjust_price_type": "forward", "period_type": "86400"}
	for k, v := range want {
		if gotQuery[k] != v {
			t.Errorf("Expected %s=%s, got %s", k, v, gotQuery[k])
		}
	}

	if len(bars) != 2 {
		t.Fatalf("Expected 2 bars, got %d", len(bars))
	}
	if got := bars[0].Date.Format("2006-01-02"); got != "2024-01-02" {
		t.Errorf("Expected first bar on 2024-01-02, got %s", got)
	}
	if got := bars[1].Date.Format("2006-01-02"); got != "2024-01-03" {
		t.Errorf("Expected second bar on 2024-01-03, got %s", got)
	}
	if bars[0].Close != 10.2 || bars[0].High != 10.3 || bars[0].Low != 9.9 || bars[0].Volume != 120000 {
		t.Errorf("Unexpected first bar: %+v", bars[0])
	}
	if !math.IsNaN(bars[1].Volume) {
		t.Errorf("Expected null volume to map to NaN, got %f", bars[1].Volume)
	}
}

func TestXuangubaoProvider_Errors(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		body          string
		wantRetryable bool
	}{
		{"api error code", http.StatusOK, `{"code": 40000, "message": "bad prod_code"}`, false},
		{"unknown code", http.StatusOK, `{"code": 20000, "data": {"fields": ["tick_at"], "candle": {}}}`, false},
		{"rate limited", http.StatusTooManyRequests, ``, true},
		{"server error", http.StatusBadGateway, ``, true},
		{"client error", http.StatusNotFound, ``, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer server.Close()

			_, err := NewXuangubaoProvider(server.URL, 600).GetDailyBars(context.Background(), "000001.SZ", 60)
			var pe *ProviderError
			if !errors.As(err, &pe) {
				t.Fatalf("Expected ProviderError, got %v", err)
			}
			if pe.Retryable != tt.wantRetryable {
				t.Errorf("Expected retryable=%v, got %v", tt.wantRetryable, pe.Retryable)
			}
		})
	}
}

func TestYahooProvider_GetDailyBars(t *testing.T) {
	var gotPath, gotRange string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotRange = r.URL.Query().Get("range")
		fmt.Fprint(w, `{"chart": {"result": [{
			"meta": {"symbol": "600000.SS"},
			"timestamp": [1704159000, 1704245400, 1704331800],
			"indicators": {"quote": [{
				"open":   [10.0, 10.1, null],
				"high":   [10.3, 10.4, null],
				"low":    [9.9, 10.0, null],
				"close":  [10.1, 10.2, null],
				"volume": [1000, 2000, null]
			}]}
		}], "error": null}}`)
	}))
	defer server.Close()

	bars, err := NewYahooProvider(server.URL).GetDailyBars(context.Background(), "600000.SS", 2)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if gotPath != "/600000.SS" {
		t.Errorf("Expected path /600000.SS, got %s", gotPath)
	}
	if gotRange != "1mo" {
		t.Errorf("Expected range 1mo, got %s", gotRange)
	}
	if len(bars) != 2 {
		t.Fatalf("Expected the last 2 bars, got %d", len(bars))
	}
	if bars[0].Close != 10.2 {
		t.Errorf("Expected close 10.2, got %f", bars[0].Close)
	}
	if !math.IsNaN(bars[1].Close) {
		t.Errorf("Expected null close to map to NaN, got %f", bars[1].Close)
	}
}

func TestYahooRange(t *testing.T) {
	tests := []struct {
		days int
		want string
	}{
		{5, "1mo"}, {60, "3mo"}, {120, "6mo"}, {180, "1y"}, {400, "2y"}, {1000, "5y"},
	}
	for _, tt := range tests {
		if got := yahooRange(tt.days); got != tt.want {
			t.Errorf("yahooRange(%d): expected %s, got %s", tt.days, tt.want, got)
		}
	}
}

// fakeProvider serves fixed bars and counts calls
type fakeProvider struct {
	name      string
	available bool
	bars      []model.Bar
	err       error

	mu    sync.Mutex
	calls int
}

func (f *fakeProvider) Name() string      { return f.name }
func (f *fakeProvider) IsAvailable() bool { return f.available }
func (f *fakeProvider) RateLimit() int    { return 60 }

func (f *fakeProvider) GetDailyBars(ctx context.Context, code string, days int) ([]model.Bar, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return tail(f.bars, days), nil
}

func sampleBars(n int) []model.Bar {
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, chinaTZ)
	bars := make([]model.Bar, n)
	for i := range bars {
		price := 10 + float64(i)*0.1
		bars[i] = model.Bar{Date: start.AddDate(0, 0, i), Open: price, High: price + 0.2, Low: price - 0.2, Close: price + 0.1, Volume: 1000}
	}
	return bars
}

func TestFallbackProvider(t *testing.T) {
	failing := &fakeProvider{name: "primary", available: true, err: &ProviderError{Provider: "primary", Err: errors.New("down"), Retryable: true}}
	offline := &fakeProvider{name: "offline", available: false, bars: sampleBars(5)}
	backup := &fakeProvider{name: "backup", available: true, bars: sampleBars(10)}

	f := NewFallbackProvider(failing, offline, backup)
	if len(f.Providers()) != 2 {
		t.Errorf("Expected unavailable providers to be filtered, got %d", len(f.Providers()))
	}

	bars, err := f.GetDailyBars(context.Background(), "600000.SS", 5)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(bars) != 5 {
		t.Errorf("Expected 5 bars, got %d", len(bars))
	}
	if offline.calls != 0 {
		t.Error("Expected unavailable provider to be skipped")
	}
}

func TestFallbackProvider_AllFail(t *testing.T) {
	want := errors.New("still down")
	f := NewFallbackProvider(
		&fakeProvider{name: "a", available: true, err: errors.New("down")},
		&fakeProvider{name: "b", available: true, err: want},
	)
	if _, err := f.GetDailyBars(context.Background(), "600000.SS", 5); !errors.Is(err, want) {
		t.Errorf("Expected last error, got %v", err)
	}

	empty := NewFallbackProvider()
	if empty.IsAvailable() {
		t.Error("Expected empty fallback to be unavailable")
	}
	if _, err := empty.GetDailyBars(context.Background(), "600000.SS", 5); err == nil {
		t.Error("Expected error without providers")
	}
}

func TestCachingProvider(t *testing.T) {
	inner := &fakeProvider{name: "inner", available: true, bars: sampleBars(300)}
	p := NewCachingProvider(inner, 250)

	first, err := p.GetDailyBars(context.Background(), "600000.SS", 180)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	second, _ := p.GetDailyBars(context.Background(), "600000.SS", 60)
	if len(first) != 180 || len(second) != 60 {
		t.Errorf("Expected 180 and 60 bars, got %d and %d", len(first), len(second))
	}
	if inner.calls != 1 {
		t.Errorf("Expected one upstream call, got %d", inner.calls)
	}
	if !second[59].Date.Equal(first[179].Date) {
		t.Error("Expected both requests to end on the latest bar")
	}

	if _, err := p.GetDailyBars(context.Background(), "600000.SS", 300); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if inner.calls != 2 {
		t.Errorf("Expected a refetch for a longer history, got %d calls", inner.calls)
	}
}

// memoryStore is an in-memory BarStore
type memoryStore struct {
	data    map[string][]byte
	readErr error
	ttls    []time.Duration
}

func (m *memoryStore) GetBytes(ctx context.Context, key string) ([]byte, bool, error) {
	if m.readErr != nil {
		return nil, false, m.readErr
	}
	b, ok := m.data[key]
	return b, ok, nil
}

func (m *memoryStore) SetBytes(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.data[key] = value
	m.ttls = append(m.ttls, ttl)
	return nil
}

func TestRedisCachingProvider(t *testing.T) {
	bars := sampleBars(3)
	bars[1].Volume = math.NaN()
	inner := &fakeProvider{name: "inner", available: true, bars: bars}
	store := &memoryStore{data: map[string][]byte{}}
	p := NewRedisCachingProvider(inner, store, 6*time.Hour, zerolog.Nop())

	if _, err := p.GetDailyBars(context.Background(), "600000.SS", 3); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	cached, err := p.GetDailyBars(context.Background(), "600000.SS", 3)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if inner.calls != 1 {
		t.Errorf("Expected one upstream call, got %d", inner.calls)
	}
	if len(store.ttls) != 1 || store.ttls[0] != 6*time.Hour {
		t.Errorf("Expected one write with a 6h ttl, got %v", store.ttls)
	}
	if len(cached) != 3 {
		t.Fatalf("Expected 3 cached bars, got %d", len(cached))
	}
	if !cached[2].Date.Equal(bars[2].Date) || cached[2].Close != bars[2].Close {
		t.Errorf("Expected cached bar %+v, got %+v", bars[2], cached[2])
	}
	if !math.IsNaN(cached[1].Volume) {
		t.Errorf("Expected NaN volume to survive the cache, got %f", cached[1].Volume)
	}
}

func TestRedisCachingProvider_StoreFailure(t *testing.T) {
	inner := &fakeProvider{name: "inner", available: true, bars: sampleBars(3)}
	store := &memoryStore{data: map[string][]byte{}, readErr: errors.New("connection refused")}
	p := NewRedisCachingProvider(inner, store, time.Hour, zerolog.Nop())

	bars, err := p.GetDailyBars(context.Background(), "600000.SS", 3)
	if err != nil {
		t.Fatalf("Expected fallthrough to the inner provider, got %v", err)
	}
	if len(bars) != 3 {
		t.Errorf("Expected 3 bars, got %d", len(bars))
	}

	store.readErr = nil
	store.data["pitscout:bars:600000.SS:3"] = []byte("not json")
	if _, err := p.GetDailyBars(context.Background(), "600000.SS", 3); err != nil {
		t.Fatalf("Expected corrupt entries to be refetched, got %v", err)
	}
	if inner.calls != 2 {
		t.Errorf("Expected two upstream calls, got %d", inner.calls)
	}
}
