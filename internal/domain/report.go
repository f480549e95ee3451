package domain

import "time"

// ChannelStats aggregates send outcomes for one channel.
type ChannelStats struct {
	Total       int     `json:"total"`
	Successful  int     `json:"successful"`
	SuccessRate float64 `json:"success_rate"`
}

// TemplateStats aggregates send outcomes for one template.
type TemplateStats struct {
	Total       int     `json:"total"`
	Successful  int     `json:"successful"`
	SuccessRate float64 `json:"success_rate"`
}

// DayStats aggregates send outcomes for one calendar day.
type DayStats struct {
	Date        string  `json:"date"` // YYYY-MM-DD
	Total       int     `json:"total"`
	Successful  int     `json:"successful"`
	SuccessRate float64 `json:"success_rate"`
}

// FrequencyCount is a label with how often it occurred.
type FrequencyCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// AnalyticsReport is a computed aggregate over a date range. A report is a
// pure function of the log/session data for its (user, date range) key and
// may be served from cache within the freshness window.
type AnalyticsReport struct {
	ReportID       string    `json:"report_id"`
	UserID         string    `json:"user_id"`
	GeneratedAt    time.Time `json:"generated_at"`
	DateRangeStart time.Time `json:"date_range_start"`
	DateRangeEnd   time.Time `json:"date_range_end"`

	TotalMessages int     `json:"total_messages"`
	TotalSessions int     `json:"total_sessions"`
	SuccessRate   float64 `json:"success_rate"`

	ByChannel  map[string]ChannelStats  `json:"by_channel,omitempty"`
	ByTemplate map[string]TemplateStats `json:"by_template,omitempty"`
	ByDay      []DayStats               `json:"by_day,omitempty"`

	AvgMessagesPerSession float64 `json:"avg_messages_per_session"`
	AvgSessionDuration    float64 `json:"avg_session_duration_seconds"`
	PeakHour              int     `json:"peak_hour"`
	BusiestDay            string  `json:"busiest_day,omitempty"`

	TopErrors     []FrequencyCount `json:"top_errors,omitempty"`
	TopRecipients []FrequencyCount `json:"top_recipients,omitempty"`
	TopCompanies  []FrequencyCount `json:"top_companies,omitempty"`

	Recommendations []string `json:"recommendations,omitempty"`
}

// QuickStats is a cheap dashboard snapshot of today's activity.
type QuickStats struct {
	TotalToday       int     `json:"total_today"`
	SentToday        int     `json:"sent_today"`
	FailedToday      int     `json:"failed_today"`
	SuccessRateToday float64 `json:"success_rate_today"`
	TotalAllTime     int     `json:"total_all_time"`
	ActiveSessionID  string  `json:"active_session_id,omitempty"`
}

// HealthReport is a read-only diagnostic snapshot of the store. Problems
// are reported as data, never as errors.
type HealthReport struct {
	Available       bool             `json:"available"`
	Path            string           `json:"path"`
	SizeBytes       int64            `json:"size_bytes"`
	SchemaVersion   int              `json:"schema_version"`
	TableCounts     map[string]int64 `json:"table_counts,omitempty"`
	IndexNames      []string         `json:"index_names,omitempty"`
	IntegrityIssues []string         `json:"integrity_issues,omitempty"`
}
