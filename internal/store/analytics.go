package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"sendvault/internal/domain"
)

const topListLimit = 5

// recommendationRule derives an operator suggestion from a finished
// report. Rules are an extensible set, kept out of the query layer.
type recommendationRule func(r *domain.AnalyticsReport) (string, bool)

var recommendationRules = []recommendationRule{
	func(r *domain.AnalyticsReport) (string, bool) {
		if r.TotalMessages == 0 {
			return "No messages in this period; analytics will populate once sending resumes.", true
		}
		return "", false
	},
	func(r *domain.AnalyticsReport) (string, bool) {
		if r.TotalMessages > 0 && r.SuccessRate < 70 {
			return fmt.Sprintf("Overall success rate is %.2f%%; review recipient lists and credentials.", r.SuccessRate), true
		}
		return "", false
	},
	func(r *domain.AnalyticsReport) (string, bool) {
		for name, ch := range r.ByChannel {
			if ch.Total >= 10 && ch.SuccessRate < 50 {
				return fmt.Sprintf("Channel %q is failing more than half its sends; check its integration.", name), true
			}
		}
		return "", false
	},
	func(r *domain.AnalyticsReport) (string, bool) {
		if len(r.TopErrors) == 0 {
			return "", false
		}
		failed := 0
		for _, e := range r.TopErrors {
			failed += e.Count
		}
		if failed > 0 && float64(r.TopErrors[0].Count)/float64(failed) > 0.5 {
			return fmt.Sprintf("One error dominates failures (%q); fixing it would recover most failed sends.", r.TopErrors[0].Value), true
		}
		return "", false
	},
}

// GenerateAnalyticsReport aggregates activity over the last N days. The
// report id is deterministic for (user, days, calendar day), so repeated
// calls on the same day are cache hits within the freshness window unless
// forceRefresh is set. Degraded mode returns nil, nil.
func (s *SQLiteStore) GenerateAnalyticsReport(ctx context.Context, days int, forceRefresh bool) (*domain.AnalyticsReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.availableLocked() {
		return nil, nil
	}

	now := time.Now()
	reportID := fmt.Sprintf("report_%s_%dd_%s", s.userID, days, now.Format("20060102"))

	if !forceRefresh {
		if cached := s.cachedReportLocked(ctx, reportID, now); cached != nil {
			return cached, nil
		}
	}

	report, err := s.computeReportLocked(ctx, reportID, days, now)
	if err != nil {
		return nil, err
	}
	s.reportRebuilds++

	if data, err := json.Marshal(report); err == nil {
		_, err := s.db.ExecContext(ctx, `
			INSERT OR REPLACE INTO analytics_cache
				(report_id, user_id, generated_at, date_range_start, date_range_end, report_data)
			VALUES (?, ?, ?, ?, ?, ?)`,
			reportID, s.userID, now.Unix(),
			report.DateRangeStart.Unix(), report.DateRangeEnd.Unix(), string(data))
		if err != nil {
			slog.Warn("Failed to cache analytics report", "report_id", reportID, "error", err)
		}
	}

	return report, nil
}

func (s *SQLiteStore) cachedReportLocked(ctx context.Context, reportID string, now time.Time) *domain.AnalyticsReport {
	var (
		generatedAt int64
		data        string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT generated_at, report_data FROM analytics_cache WHERE report_id = ?`, reportID).
		Scan(&generatedAt, &data)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		slog.Warn("Analytics cache lookup failed", "report_id", reportID, "error", err)
		return nil
	}

	if now.Sub(time.Unix(generatedAt, 0)) > s.cacheTTL {
		return nil
	}

	var report domain.AnalyticsReport
	if err := json.Unmarshal([]byte(data), &report); err != nil {
		slog.Warn("Cached report unreadable, recomputing", "report_id", reportID, "error", err)
		return nil
	}
	return &report
}

func (s *SQLiteStore) computeReportLocked(ctx context.Context, reportID string, days int, now time.Time) (*domain.AnalyticsReport, error) {
	start := now.AddDate(0, 0, -days)
	report := &domain.AnalyticsReport{
		ReportID:       reportID,
		UserID:         s.userID,
		GeneratedAt:    now,
		DateRangeStart: start,
		DateRangeEnd:   now,
		ByChannel:      make(map[string]domain.ChannelStats),
		ByTemplate:     make(map[string]domain.TemplateStats),
	}
	startUnix := start.Unix()

	var successful int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(message_status = 'sent'), 0)
		FROM message_logs WHERE user_id = ? AND timestamp >= ?`,
		s.userID, startUnix).Scan(&report.TotalMessages, &successful)
	if err != nil {
		return nil, fmt.Errorf("aggregate totals: %w", err)
	}
	report.SuccessRate = roundRate(successful, report.TotalMessages)

	var avgDuration sql.NullFloat64
	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), AVG(CASE WHEN end_time IS NOT NULL THEN end_time - start_time END)
		FROM session_summaries WHERE user_id = ? AND start_time >= ?`,
		s.userID, startUnix).Scan(&report.TotalSessions, &avgDuration)
	if err != nil {
		return nil, fmt.Errorf("aggregate sessions: %w", err)
	}
	report.AvgSessionDuration = avgDuration.Float64
	if report.TotalSessions > 0 {
		report.AvgMessagesPerSession = float64(report.TotalMessages) / float64(report.TotalSessions)
	}

	if err := s.aggregateChannelsLocked(ctx, report, startUnix); err != nil {
		return nil, err
	}
	if err := s.aggregateTemplatesLocked(ctx, report, startUnix); err != nil {
		return nil, err
	}
	if err := s.aggregateDaysLocked(ctx, report, startUnix); err != nil {
		return nil, err
	}
	if err := s.aggregatePeakHourLocked(ctx, report, startUnix); err != nil {
		return nil, err
	}

	var topErr error
	report.TopErrors, topErr = s.topValuesLocked(ctx, `
		SELECT error_message, COUNT(*) AS n FROM message_logs
		WHERE user_id = ? AND timestamp >= ? AND message_status = 'failed'
		  AND error_message IS NOT NULL AND error_message != ''
		GROUP BY error_message ORDER BY n DESC LIMIT ?`, startUnix)
	if topErr != nil {
		return nil, fmt.Errorf("aggregate top errors: %w", topErr)
	}

	report.TopRecipients, topErr = s.topValuesLocked(ctx, `
		SELECT recipient_email, COUNT(*) AS n FROM message_logs
		WHERE user_id = ? AND timestamp >= ?
		  AND recipient_email IS NOT NULL AND recipient_email != ''
		GROUP BY recipient_email ORDER BY n DESC LIMIT ?`, startUnix)
	if topErr != nil {
		return nil, fmt.Errorf("aggregate top recipients: %w", topErr)
	}

	report.TopCompanies, topErr = s.topValuesLocked(ctx, `
		SELECT recipient_company, COUNT(*) AS n FROM message_logs
		WHERE user_id = ? AND timestamp >= ?
		  AND recipient_company IS NOT NULL AND recipient_company != ''
		GROUP BY recipient_company ORDER BY n DESC LIMIT ?`, startUnix)
	if topErr != nil {
		return nil, fmt.Errorf("aggregate top companies: %w", topErr)
	}

	for _, rule := range recommendationRules {
		if msg, ok := rule(report); ok {
			report.Recommendations = append(report.Recommendations, msg)
		}
	}

	return report, nil
}

func (s *SQLiteStore) aggregateChannelsLocked(ctx context.Context, report *domain.AnalyticsReport, startUnix int64) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT channel, COUNT(*), COALESCE(SUM(message_status = 'sent'), 0)
		FROM message_logs WHERE user_id = ? AND timestamp >= ?
		GROUP BY channel`, s.userID, startUnix)
	if err != nil {
		return fmt.Errorf("aggregate channels: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			channel           string
			total, successful int
		)
		if err := rows.Scan(&channel, &total, &successful); err != nil {
			return fmt.Errorf("scan channel stats: %w", err)
		}
		report.ByChannel[channel] = domain.ChannelStats{
			Total:       total,
			Successful:  successful,
			SuccessRate: roundRate(successful, total),
		}
	}
	return rows.Err()
}

func (s *SQLiteStore) aggregateTemplatesLocked(ctx context.Context, report *domain.AnalyticsReport, startUnix int64) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT COALESCE(template_name, ''), COUNT(*), COALESCE(SUM(message_status = 'sent'), 0)
		FROM message_logs WHERE user_id = ? AND timestamp >= ?
		GROUP BY template_name`, s.userID, startUnix)
	if err != nil {
		return fmt.Errorf("aggregate templates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			template          string
			total, successful int
		)
		if err := rows.Scan(&template, &total, &successful); err != nil {
			return fmt.Errorf("scan template stats: %w", err)
		}
		if template == "" {
			continue
		}
		report.ByTemplate[template] = domain.TemplateStats{
			Total:       total,
			Successful:  successful,
			SuccessRate: roundRate(successful, total),
		}
	}
	return rows.Err()
}

func (s *SQLiteStore) aggregateDaysLocked(ctx context.Context, report *domain.AnalyticsReport, startUnix int64) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT strftime('%Y-%m-%d', timestamp, 'unixepoch'), COUNT(*),
		       COALESCE(SUM(message_status = 'sent'), 0)
		FROM message_logs WHERE user_id = ? AND timestamp >= ?
		GROUP BY 1 ORDER BY 1`, s.userID, startUnix)
	if err != nil {
		return fmt.Errorf("aggregate days: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var day domain.DayStats
		if err := rows.Scan(&day.Date, &day.Total, &day.Successful); err != nil {
			return fmt.Errorf("scan day stats: %w", err)
		}
		day.SuccessRate = roundRate(day.Successful, day.Total)
		report.ByDay = append(report.ByDay, day)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	if len(report.ByDay) > 0 {
		busiest := report.ByDay[0]
		for _, day := range report.ByDay[1:] {
			if day.Total > busiest.Total {
				busiest = day
			}
		}
		report.BusiestDay = busiest.Date
	}
	return nil
}

func (s *SQLiteStore) aggregatePeakHourLocked(ctx context.Context, report *domain.AnalyticsReport, startUnix int64) error {
	var hour string
	err := s.db.QueryRowContext(ctx, `
		SELECT strftime('%H', timestamp, 'unixepoch') AS h
		FROM message_logs WHERE user_id = ? AND timestamp >= ?
		GROUP BY h ORDER BY COUNT(*) DESC LIMIT 1`, s.userID, startUnix).Scan(&hour)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("aggregate peak hour: %w", err)
	}
	report.PeakHour, _ = strconv.Atoi(hour)
	return nil
}

func (s *SQLiteStore) topValuesLocked(ctx context.Context, query string, startUnix int64) ([]domain.FrequencyCount, error) {
	rows, err := s.db.QueryContext(ctx, query, s.userID, startUnix, topListLimit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var counts []domain.FrequencyCount
	for rows.Next() {
		var fc domain.FrequencyCount
		if err := rows.Scan(&fc.Value, &fc.Count); err != nil {
			return nil, err
		}
		counts = append(counts, fc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Stable order for equal counts keeps reports deterministic.
	sort.SliceStable(counts, func(i, j int) bool {
		if counts[i].Count != counts[j].Count {
			return counts[i].Count > counts[j].Count
		}
		return counts[i].Value < counts[j].Value
	})
	return counts, nil
}
