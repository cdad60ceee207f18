package web

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"pitscout/internal/backtest"
	"pitscout/internal/provider"
	"pitscout/internal/symbols"
	"pitscout/pkg/model"
)

const (
	minDetectDays = 60
	maxDetectDays = 2000
)

// APIResponse is the envelope of every JSON reply
type APIResponse struct {
	Status  int         `json:"status"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// DetectResponse is the reply of /api/detect/:code
type DetectResponse struct {
	Code    string               `json:"code"`
	Bars    int                  `json:"bars"`
	Found   bool                 `json:"found"`
	Pattern *model.PatternResult `json:"pattern,omitempty"`
}

func reply(c echo.Context, status int, data interface{}) error {
	return c.JSON(status, APIResponse{Status: status, Message: http.StatusText(status), Data: data})
}

func replyError(c echo.Context, status int, msg string) error {
	return c.JSON(status, APIResponse{Status: status, Message: msg})
}

func (s *Server) handleHealth(c echo.Context) error {
	return reply(c, http.StatusOK, map[string]string{"provider": s.provider.Name()})
}

// handleDetect runs formation detection on recent history of one code
func (s *Server) handleDetect(c echo.Context) error {
	start := time.Now()
	code := symbols.NormalizeCode(c.Param("code"))
	if code == "" {
		return replyError(c, http.StatusBadRequest, "code required")
	}

	days := s.opts.DefaultDays
	if raw := c.QueryParam("days"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < minDetectDays || v > maxDetectDays {
			return replyError(c, http.StatusBadRequest, "days must be an integer between 60 and 2000")
		}
		days = v
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 30*time.Second)
	defer cancel()

	bars, err := s.provider.GetDailyBars(ctx, code, days)
	if err != nil {
		s.logger.Warn().Err(err).Str("code", code).Msg("detect fetch failed")
		if s.metrics != nil {
			s.metrics.RecordFetchError(s.provider.Name())
		}
		return replyError(c, fetchStatus(err), err.Error())
	}

	result := s.detector.Detect(code, bars)
	if s.metrics != nil {
		s.metrics.RecordLatency("detect", time.Since(start).Seconds())
		if result != nil {
			s.metrics.RecordPattern(string(result.Kind))
		}
	}

	return reply(c, http.StatusOK, DetectResponse{
		Code:    code,
		Bars:    len(bars),
		Found:   result != nil,
		Pattern: result,
	})
}

// handleBacktest replays detection over the configured history of one code
func (s *Server) handleBacktest(c echo.Context) error {
	if s.backtester == nil {
		return replyError(c, http.StatusServiceUnavailable, "backtesting disabled")
	}
	start := time.Now()
	code := symbols.NormalizeCode(c.Param("code"))
	if code == "" {
		return replyError(c, http.StatusBadRequest, "code required")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Minute)
	defer cancel()

	result, err := s.backtester.Run(ctx, code)
	if err != nil {
		s.logger.Warn().Err(err).Str("code", code).Msg("backtest failed")
		return replyError(c, fetchStatus(err), err.Error())
	}
	if s.metrics != nil {
		s.metrics.RecordLatency("backtest", time.Since(start).Seconds())
	}
	return reply(c, http.StatusOK, result)
}

func fetchStatus(err error) int {
	switch {
	case errors.Is(err, provider.ErrNoData):
		return http.StatusNotFound
	case errors.Is(err, backtest.ErrShortHistory):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusBadGateway
}
