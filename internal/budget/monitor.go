package budget

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/complyscan/airouter/internal/events"
)

// AlertType classifies what a budget alert is about.
type AlertType string

const (
	// AlertBudget is a monthly-limit threshold crossing
	AlertBudget AlertType = "budget"
	// AlertSpike is a sudden jump in daily spend
	AlertSpike AlertType = "spike"
	// AlertAnomaly is a forecast projecting an end-of-month overage
	AlertAnomaly AlertType = "anomaly"
)

// Alert is an immutable budget alert. Only Acknowledged may change
// after creation.
type Alert struct {
	ID           string          `json:"id"`
	Type         AlertType       `json:"type"`
	Severity     events.Severity `json:"severity"`
	Message      string          `json:"message"`
	CurrentSpend float64         `json:"current_spend"`
	Limit        float64         `json:"limit"`
	Percentage   float64         `json:"percentage"`
	Timestamp    time.Time       `json:"timestamp"`
	Acknowledged bool            `json:"acknowledged"`
}

// Forecast is a linear projection of end-of-month spend.
type Forecast struct {
	ProjectedMonthly float64 `json:"projected_monthly"`
	DailyAverage     float64 `json:"daily_average"`
	TrendRatio       float64 `json:"trend_ratio"`
	DaysUntilLimit   int     `json:"days_until_limit"` // -1 when the limit is not at risk
	Confidence       string  `json:"confidence"`       // low / medium / high
}

// Config holds budget monitoring settings.
type Config struct {
	// MonthlyLimit is the spend ceiling in currency-agnostic units
	// (default: 1000).
	MonthlyLimit float64

	// Thresholds are the monthly-limit fractions that raise alerts
	// (default: 0.5, 0.8, 0.95).
	Thresholds []float64

	// Cooldown suppresses repeat alerts of the same (type, severity)
	// (default: 24h).
	Cooldown time.Duration

	// SpikeFactor is how far today's spend must exceed the 7-day
	// trailing average to count as a spike (default: 2.0).
	SpikeFactor float64
}

// DefaultConfig returns the default budget monitoring configuration.
func DefaultConfig() Config {
	return Config{
		MonthlyLimit: 1000,
		Thresholds:   []float64{0.5, 0.8, 0.95},
		Cooldown:     24 * time.Hour,
		SpikeFactor:  2.0,
	}
}

// retainedDays bounds the daily spend history.
const retainedDays = 30

// Monitor watches running monthly spend against the configured limit,
// raises threshold/spike/anomaly alerts through the emitter, and keeps
// a rolling daily history for forecasting. Thresholds are advisory
// observability signals, never enforcement gates.
type Monitor struct {
	cfg     Config
	emitter *events.Emitter

	mu sync.Mutex
	// daily maps a calendar date ("2006-01-02", UTC) to the monthly
	// running total observed that day.
	daily     map[string]float64
	lastAlert map[string]time.Time // keyed by type:severity
	alerts    []Alert

	// now is swappable for tests.
	now func() time.Time
}

// NewMonitor creates a monitor. The emitter may be nil; alerts are then
// only retained for polling via Alerts.
func NewMonitor(cfg Config, emitter *events.Emitter) *Monitor {
	if cfg.MonthlyLimit <= 0 {
		cfg.MonthlyLimit = 1000
	}
	if len(cfg.Thresholds) == 0 {
		cfg.Thresholds = []float64{0.5, 0.8, 0.95}
	}
	sort.Float64s(cfg.Thresholds)
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 24 * time.Hour
	}
	if cfg.SpikeFactor <= 0 {
		cfg.SpikeFactor = 2.0
	}

	return &Monitor{
		cfg:       cfg,
		emitter:   emitter,
		daily:     make(map[string]float64),
		lastAlert: make(map[string]time.Time),
		now:       time.Now,
	}
}

// UpdateSpend ingests the current monthly running total: it snapshots
// today's spend, checks threshold crossings, and runs spike and anomaly
// detection. Call it after ledger updates or on a periodic tick.
func (m *Monitor) UpdateSpend(currentMonthlyTotal float64) []Alert {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now().UTC()
	m.daily[dayKey(now)] = currentMonthlyTotal
	m.pruneLocked(now)

	var raised []Alert

	if a := m.checkThresholdsLocked(now, currentMonthlyTotal); a != nil {
		raised = append(raised, *a)
	}
	if a := m.checkSpikeLocked(now); a != nil {
		raised = append(raised, *a)
	}
	if a := m.checkAnomalyLocked(now, currentMonthlyTotal); a != nil {
		raised = append(raised, *a)
	}

	return raised
}

// checkThresholdsLocked raises at most one budget alert: the highest
// crossed threshold, subject to cooldown.
func (m *Monitor) checkThresholdsLocked(now time.Time, total float64) *Alert {
	ratio := total / m.cfg.MonthlyLimit

	var crossed float64 = -1
	for _, th := range m.cfg.Thresholds {
		if ratio >= th {
			crossed = th
		}
	}
	if crossed < 0 {
		return nil
	}

	severity := events.SeverityInfo
	switch {
	case crossed >= 0.95:
		severity = events.SeverityCritical
	case crossed >= 0.8:
		severity = events.SeverityWarning
	}

	if !m.cooldownElapsedLocked(AlertBudget, severity, now) {
		return nil
	}

	a := m.raiseLocked(Alert{
		Type:         AlertBudget,
		Severity:     severity,
		Message:      fmt.Sprintf("monthly spend %.2f has crossed %.0f%% of the %.2f limit", total, crossed*100, m.cfg.MonthlyLimit),
		CurrentSpend: total,
		Limit:        m.cfg.MonthlyLimit,
		Percentage:   ratio * 100,
		Timestamp:    now,
	})
	return &a
}

// checkSpikeLocked raises a spike alert when today's spend exceeds
// SpikeFactor times the 7-day trailing average. Needs at least 3 days
// of history before today.
func (m *Monitor) checkSpikeLocked(now time.Time) *Alert {
	today := m.spendOnLocked(now)

	var prior []float64
	for i := 1; i <= 7; i++ {
		day := now.AddDate(0, 0, -i)
		if v, ok := m.dailySpendLocked(day); ok {
			prior = append(prior, v)
		}
	}
	if len(prior) < 3 {
		return nil
	}

	var sum float64
	for _, v := range prior {
		sum += v
	}
	avg := sum / float64(len(prior))

	if avg <= 0 || today <= avg*m.cfg.SpikeFactor {
		return nil
	}
	if !m.cooldownElapsedLocked(AlertSpike, events.SeverityWarning, now) {
		return nil
	}

	a := m.raiseLocked(Alert{
		Type:         AlertSpike,
		Severity:     events.SeverityWarning,
		Message:      fmt.Sprintf("today's spend %.2f is %.1fx the 7-day average of %.2f", today, today/avg, avg),
		CurrentSpend: today,
		Limit:        m.cfg.MonthlyLimit,
		Percentage:   today / avg * 100,
		Timestamp:    now,
	})
	return &a
}

// checkAnomalyLocked raises an anomaly alert when the trend-adjusted
// linear projection exceeds the monthly limit.
func (m *Monitor) checkAnomalyLocked(now time.Time, total float64) *Alert {
	f := m.forecastLocked(now, total)
	if f.ProjectedMonthly <= m.cfg.MonthlyLimit {
		return nil
	}
	if !m.cooldownElapsedLocked(AlertAnomaly, events.SeverityWarning, now) {
		return nil
	}

	a := m.raiseLocked(Alert{
		Type:         AlertAnomaly,
		Severity:     events.SeverityWarning,
		Message:      fmt.Sprintf("forecast projects %.2f by month end, over the %.2f limit", f.ProjectedMonthly, m.cfg.MonthlyLimit),
		CurrentSpend: total,
		Limit:        m.cfg.MonthlyLimit,
		Percentage:   f.ProjectedMonthly / m.cfg.MonthlyLimit * 100,
		Timestamp:    now,
	})
	return &a
}

// GetForecast returns the current linear spend projection based on the
// latest recorded monthly total.
func (m *Monitor) GetForecast() Forecast {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now().UTC()
	return m.forecastLocked(now, m.daily[dayKey(now)])
}

// forecastLocked computes the daily-average projection scaled to the
// full month, adjusted by a week-over-week trend ratio.
func (m *Monitor) forecastLocked(now time.Time, total float64) Forecast {
	day := now.Day()
	daysInMonth := time.Date(now.Year(), now.Month()+1, 0, 0, 0, 0, 0, time.UTC).Day()

	dailyAvg := total / float64(day)
	trend := m.trendRatioLocked(now)

	projected := dailyAvg * float64(daysInMonth) * trend

	daysUntilLimit := -1
	if dailyAvg*trend > 0 {
		remaining := m.cfg.MonthlyLimit - total
		if remaining <= 0 {
			daysUntilLimit = 0
		} else {
			days := int(remaining / (dailyAvg * trend))
			if day+days <= daysInMonth {
				daysUntilLimit = days
			}
		}
	}

	confidence := "high"
	switch {
	case day < 5:
		confidence = "low"
	case day < 15:
		confidence = "medium"
	}

	return Forecast{
		ProjectedMonthly: projected,
		DailyAverage:     dailyAvg,
		TrendRatio:       trend,
		DaysUntilLimit:   daysUntilLimit,
		Confidence:       confidence,
	}
}

// trendRatioLocked compares the last 7 days of daily spend against the
// 7 days before that. A ratio above 1 means spend is accelerating.
// Returns 1.0 without two full weeks of history.
func (m *Monitor) trendRatioLocked(now time.Time) float64 {
	var recent, earlier float64
	var recentDays, earlierDays int

	for i := 0; i < 7; i++ {
		if v, ok := m.dailySpendLocked(now.AddDate(0, 0, -i)); ok {
			recent += v
			recentDays++
		}
	}
	for i := 7; i < 14; i++ {
		if v, ok := m.dailySpendLocked(now.AddDate(0, 0, -i)); ok {
			earlier += v
			earlierDays++
		}
	}

	if recentDays < 4 || earlierDays < 4 || earlier <= 0 {
		return 1.0
	}

	ratio := (recent / float64(recentDays)) / (earlier / float64(earlierDays))
	// Clamp so one weird week cannot explode the projection.
	if ratio < 0.25 {
		ratio = 0.25
	}
	if ratio > 4.0 {
		ratio = 4.0
	}
	return ratio
}

// Alerts returns a copy of the retained alert history, newest last.
func (m *Monitor) Alerts() []Alert {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Alert, len(m.alerts))
	copy(out, m.alerts)
	return out
}

// Acknowledge marks an alert as acknowledged by ID.
func (m *Monitor) Acknowledge(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.alerts {
		if m.alerts[i].ID == id {
			m.alerts[i].Acknowledged = true
			return true
		}
	}
	return false
}

// cooldownElapsedLocked reports whether a (type, severity) pair is past
// its cooldown window, and records the pending alert time if so.
func (m *Monitor) cooldownElapsedLocked(t AlertType, s events.Severity, now time.Time) bool {
	key := string(t) + ":" + string(s)
	if last, ok := m.lastAlert[key]; ok && now.Sub(last) < m.cfg.Cooldown {
		return false
	}
	m.lastAlert[key] = now
	return true
}

// raiseLocked stamps, retains, and emits an alert.
func (m *Monitor) raiseLocked(a Alert) Alert {
	a.ID = uuid.New().String()

	m.alerts = append(m.alerts, a)
	if len(m.alerts) > 200 {
		m.alerts = m.alerts[len(m.alerts)-200:]
	}

	if m.emitter != nil {
		ev := events.New(events.TypeAlert, a.Severity, a.Message)
		ev.Data = map[string]interface{}{
			"alert_type":    string(a.Type),
			"current_spend": a.CurrentSpend,
			"limit":         a.Limit,
			"percentage":    a.Percentage,
		}
		m.emitter.Emit(ev)
	}
	return a
}

// spendOnLocked returns the recorded running total for the given day,
// or 0 when absent. For spike math the difference between consecutive
// daily running totals is the day's spend; for the current day we use
// the delta from yesterday's total when available.
func (m *Monitor) spendOnLocked(day time.Time) float64 {
	v, ok := m.dailySpendLocked(day)
	if !ok {
		return 0
	}
	return v
}

// dailySpendLocked derives the spend attributable to one calendar day
// from the stored running totals: total(day) - total(previous recorded
// day in the same month). A month rollover resets the baseline.
func (m *Monitor) dailySpendLocked(day time.Time) (float64, bool) {
	total, ok := m.daily[dayKey(day)]
	if !ok {
		return 0, false
	}

	// Walk back up to a week for the previous recorded total.
	for i := 1; i <= 7; i++ {
		prev := day.AddDate(0, 0, -i)
		if prev.Month() != day.Month() {
			break
		}
		if prevTotal, ok := m.daily[dayKey(prev)]; ok {
			spend := total - prevTotal
			if spend < 0 {
				spend = total // accumulator was reset
			}
			return spend, true
		}
	}
	return total, true
}

// pruneLocked drops daily snapshots older than the retention window.
func (m *Monitor) pruneLocked(now time.Time) {
	cutoff := now.AddDate(0, 0, -retainedDays)
	for key := range m.daily {
		day, err := time.Parse("2006-01-02", key)
		if err != nil || day.Before(cutoff) {
			delete(m.daily, key)
		}
	}
}

// SetClock overrides the monitor's time source. Tests only.
func (m *Monitor) SetClock(now func() time.Time) {
	m.now = now
}

func dayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
