package daemon

import (
	"fmt"
	"time"
)

// MarketSchedule is the A-share trading session in exchange time
type MarketSchedule struct {
	OpenHour       int // 9
	OpenMin        int // 30
	LunchStartHour int // 11
	LunchStartMin  int // 30
	LunchEndHour   int // 13
	LunchEndMin    int // 0
	CloseHour      int // 15
	CloseMin       int // 0

	Location *time.Location
	Holidays map[string]bool // YYYY-MM-DD in exchange time
}

// DefaultMarketSchedule returns the Shanghai/Shenzhen continuous trading session
func DefaultMarketSchedule() MarketSchedule {
	return MarketSchedule{
		OpenHour:       9,
		OpenMin:        30,
		LunchStartHour: 11,
		LunchStartMin:  30,
		LunchEndHour:   13,
		LunchEndMin:    0,
		CloseHour:      15,
		CloseMin:       0,
		Location:       ChinaLocation(),
	}
}

// WithHolidays returns a copy of the schedule that treats the given dates as closed
func (s MarketSchedule) WithHolidays(dates []string) MarketSchedule {
	s.Holidays = make(map[string]bool, len(dates))
	for _, d := range dates {
		s.Holidays[d] = true
	}
	return s
}

// MarketStatus is the session state at one instant
type MarketStatus struct {
	IsOpen      bool
	Now         time.Time // in exchange time
	TimeToClose time.Duration
	Reason      string // "open", "lunch", "pre-market", "after-hours", "weekend", "holiday"
}

// ChinaLocation returns Asia/Shanghai, or a fixed UTC+8 zone when tzdata is missing
func ChinaLocation() *time.Location {
	loc, err := time.LoadLocation("Asia/Shanghai")
	if err != nil {
		loc = time.FixedZone("CST", 8*60*60)
	}
	return loc
}

// IsTradingDay reports whether the exchange trades on the day of t
func (s MarketSchedule) IsTradingDay(t time.Time) bool {
	local := t.In(s.location())
	switch local.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	return !s.Holidays[local.Format("2006-01-02")]
}

// Status returns the session state at now
func (s MarketSchedule) Status(now time.Time) MarketStatus {
	local := now.In(s.location())
	status := MarketStatus{Now: local}

	switch local.Weekday() {
	case time.Saturday, time.Sunday:
		status.Reason = "weekend"
		return status
	}
	if s.Holidays[local.Format("2006-01-02")] {
		status.Reason = "holiday"
		return status
	}

	current := local.Hour()*60 + local.Minute()
	open := s.OpenHour*60 + s.OpenMin
	lunchStart := s.LunchStartHour*60 + s.LunchStartMin
	lunchEnd := s.LunchEndHour*60 + s.LunchEndMin
	closing := s.CloseHour*60 + s.CloseMin

	switch {
	case current < open:
		status.Reason = "pre-market"
	case current >= closing:
		status.Reason = "after-hours"
	case current >= lunchStart && current < lunchEnd:
		status.Reason = "lunch"
	default:
		status.IsOpen = true
		status.Reason = "open"
		closeAt := time.Date(local.Year(), local.Month(), local.Day(), s.CloseHour, s.CloseMin, 0, 0, local.Location())
		status.TimeToClose = closeAt.Sub(local)
	}
	return status
}

// DailyBarFinal reports whether today's daily bar can no longer change
func (s MarketSchedule) DailyBarFinal(now time.Time) bool {
	st := s.Status(now)
	return st.Reason == "after-hours" || st.Reason == "weekend" || st.Reason == "holiday"
}

func (s MarketSchedule) location() *time.Location {
	if s.Location == nil {
		return ChinaLocation()
	}
	return s.Location
}

// FormatDuration formats d as "1h 5m" or "5m"
func FormatDuration(d time.Duration) string {
	if d < 0 {
		return "0s"
	}

	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60

	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}
