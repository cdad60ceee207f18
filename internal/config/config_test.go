package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"pitscout/internal/analyzer"
	"pitscout/internal/backtest"
	"pitscout/internal/scanner"
)

func clearEnv(t *testing.T) {
	for _, key := range []string{"GITEE_TOKEN", "GITEE_REPO", "PITSCOUT_LOG_LEVEL", "REDIS_ADDR", "PITSCOUT_WORKERS", "PITSCOUT_JWT_SECRET"} {
		t.Setenv(key, "")
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write %s: %v", name, err)
	}
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if !reflect.DeepEqual(cfg.Pattern, analyzer.DefaultConfig()) {
		t.Errorf("Expected default pattern config, got %+v", cfg.Pattern)
	}
	if !reflect.DeepEqual(cfg.Scanner, scanner.DefaultConfig()) {
		t.Errorf("Expected default scanner config, got %+v", cfg.Scanner)
	}
	if !reflect.DeepEqual(cfg.Backtest, backtest.DefaultConfig()) {
		t.Errorf("Expected default backtest config, got %+v", cfg.Backtest)
	}
	if cfg.Provider.Primary != "xuangubao" || cfg.Provider.RateLimit != 120 {
		t.Errorf("Unexpected provider defaults %+v", cfg.Provider)
	}
	if cfg.Cache.TTL != 6*time.Hour || cfg.Cache.Redis {
		t.Errorf("Unexpected cache defaults %+v", cfg.Cache)
	}
	if cfg.Gitee.Branch != "master" || cfg.Gitee.Enabled {
		t.Errorf("Unexpected gitee defaults %+v", cfg.Gitee)
	}
	if cfg.Log.Level != "info" || cfg.Server.Addr != ":8080" || cfg.Schedule.Spec != "0 30 15 * * 1-5" {
		t.Errorf("Unexpected ambient defaults: log=%+v server=%+v schedule=%+v", cfg.Log, cfg.Server, cfg.Schedule)
	}
	if !reflect.DeepEqual(cfg, DefaultConfig()) {
		t.Error("Expected Load of a missing file to equal DefaultConfig")
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("GITEE_TOKEN", "env-token")
	t.Setenv("REDIS_ADDR", "cache:6380")
	t.Setenv("PITSCOUT_WORKERS", "3")

	path := writeFile(t, "pitscout.yaml", `
log:
  level: debug
  format: json
provider:
  primary: yahoo
  fallback: true
cache:
  redis: true
  ttl: 30m
scanner:
  workers: 16
  timeout: 2m
  max_stocks: 50
pattern:
  dip_min_amplitude: 8
backtest:
  look_ahead: 10
gitee:
  enabled: true
  token: file-token
  repo: owner/stockdb
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Errorf("Unexpected log config %+v", cfg.Log)
	}
	if cfg.Provider.Primary != "yahoo" || !cfg.Provider.Fallback {
		t.Errorf("Unexpected provider config %+v", cfg.Provider)
	}
	if !cfg.Cache.Redis || cfg.Cache.TTL != 30*time.Minute || cfg.Cache.RedisAddr != "cache:6380" {
		t.Errorf("Unexpected cache config %+v", cfg.Cache)
	}
	// Env wins over the file
	if cfg.Scanner.Workers != 3 || cfg.Gitee.Token != "env-token" {
		t.Errorf("Expected env overrides, got workers=%d token=%s", cfg.Scanner.Workers, cfg.Gitee.Token)
	}
	if cfg.Scanner.Timeout != 2*time.Minute || cfg.Scanner.MaxStocks != 50 || cfg.Scanner.Days != 180 {
		t.Errorf("Unexpected scanner config %+v", cfg.Scanner)
	}
	if cfg.Pattern.DipMinAmplitude != 8 || cfg.Pattern.DipMaxAmplitude != 35 {
		t.Errorf("Expected partial pattern override, got min=%f max=%f", cfg.Pattern.DipMinAmplitude, cfg.Pattern.DipMaxAmplitude)
	}
	if cfg.Backtest.LookAhead != 10 || cfg.Backtest.WindowSize != 120 {
		t.Errorf("Unexpected backtest config %+v", cfg.Backtest)
	}
}

func TestLoad_ExplicitZeros(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "zeros.yaml", `
provider:
cache:
  memory_days: 0
scanner:
  min_return: 0
pattern:
  pre_trend_min_slope: 0
  dip_min_amplitude: 6
report:
  remote_prefix: ""
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	tests := []struct {
		name string
		got  interface{}
		want interface{}
	}{
		{"memory_days", cfg.Cache.MemoryDays, 0},
		{"min_return", cfg.Scanner.MinReturn, 0.0},
		{"pre_trend_min_slope", cfg.Pattern.PreTrendMinSlope, 0.0},
		{"remote_prefix", cfg.Report.RemotePrefix, ""},
		{"dip_min_amplitude", cfg.Pattern.DipMinAmplitude, 6.0},
		// Fields the file leaves out keep their defaults
		{"dip_max_amplitude", cfg.Pattern.DipMaxAmplitude, 35.0},
		{"workers", cfg.Scanner.Workers, 8},
		{"cache ttl", cfg.Cache.TTL, 6 * time.Hour},
		{"primary", cfg.Provider.Primary, "xuangubao"},
		{"report dir", cfg.Report.Dir, "data/reports"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s: expected %v, got %v", tt.name, tt.want, tt.got)
		}
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"malformed yaml", "log: [unterminated"},
		{"unknown provider", "provider:\n  primary: sina\n"},
		{"bad log level", "log:\n  level: loud\n"},
		{"pattern bounds", "pattern:\n  dip_min_amplitude: 40\n"},
		{"gitee without token", "gitee:\n  enabled: true\n  repo: o/r\n"},
		{"unknown timezone", "schedule:\n  timezone: Mars/Olympus\n"},
		{"zero workers", "scanner:\n  workers: 0\n"},
		{"zero cache ttl", "cache:\n  ttl: 0s\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			if _, err := Load(writeFile(t, "bad.yaml", tt.content)); err == nil {
				t.Error("Expected error")
			}
		})
	}

	t.Run("bad worker env", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("PITSCOUT_WORKERS", "many")
		if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
			t.Error("Expected error")
		}
	})
}

func TestLoadEnvFile(t *testing.T) {
	if err := LoadEnvFile(filepath.Join(t.TempDir(), ".env")); err != nil {
		t.Errorf("Expected a missing env file to be ignored, got %v", err)
	}

	t.Setenv("PITSCOUT_KEEP", "process")
	os.Unsetenv("PITSCOUT_FROM_FILE")
	t.Cleanup(func() { os.Unsetenv("PITSCOUT_FROM_FILE") })

	path := writeFile(t, ".env", "PITSCOUT_FROM_FILE=dotenv\nPITSCOUT_KEEP=file\n")
	if err := LoadEnvFile(path); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got := os.Getenv("PITSCOUT_FROM_FILE"); got != "dotenv" {
		t.Errorf("Expected dotenv value, got %q", got)
	}
	if got := os.Getenv("PITSCOUT_KEEP"); got != "process" {
		t.Errorf("Expected existing variable to be kept, got %q", got)
	}
}
