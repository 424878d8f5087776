package report

import (
	"fmt"
	"html/template"
	"io"
	"sort"
	"time"

	"github.com/socialeye/internal/models"
)

const maxTopRules = 10

type ReportData struct {
	StartTime    time.Time         `json:"start_time"`
	EndTime      time.Time         `json:"end_time"`
	AlertSummary AlertSummary      `json:"alert_summary"`
	Trend        []TimeSeriesPoint `json:"trend"`
}

type AlertSummary struct {
	TotalAlerts      int                     `json:"total_alerts"`
	BySeverity       map[models.Severity]int `json:"by_severity"`
	ResolvedAlerts   int                     `json:"resolved_alerts"`
	UnresolvedAlerts int                     `json:"unresolved_alerts"`
	// MeanTimeToResolve is zero when nothing was resolved.
	MeanTimeToResolve time.Duration `json:"mean_time_to_resolve"`
	TopRules          []RuleSummary `json:"top_rules"`
}

type RuleSummary struct {
	RuleID     string          `json:"rule_id"`
	RuleName   string          `json:"rule_name"`
	AlertCount int             `json:"alert_count"`
	Severity   models.Severity `json:"severity"`
	LastFired  time.Time       `json:"last_fired"`
}

// TimeSeriesPoint is the number of alerts created in one hour.
type TimeSeriesPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// Summarize builds the report for alerts created inside [start, end].
// Alerts outside the range are ignored.
func Summarize(alerts []models.Alert, start, end time.Time) *ReportData {
	data := &ReportData{
		StartTime: start,
		EndTime:   end,
		AlertSummary: AlertSummary{
			BySeverity: make(map[models.Severity]int),
			TopRules:   []RuleSummary{},
		},
		Trend: []TimeSeriesPoint{},
	}
	summary := &data.AlertSummary

	ruleAlerts := make(map[string]*RuleSummary)
	hourly := make(map[time.Time]int)
	var resolveTotal time.Duration

	for _, alert := range alerts {
		if alert.Timestamp.Before(start) || alert.Timestamp.After(end) {
			continue
		}

		summary.TotalAlerts++
		summary.BySeverity[alert.Severity]++
		if alert.Resolved {
			summary.ResolvedAlerts++
			if alert.ResolvedAt != nil {
				resolveTotal += alert.ResolvedAt.Sub(alert.Timestamp)
			}
		} else {
			summary.UnresolvedAlerts++
		}
		hourly[alert.Timestamp.UTC().Truncate(time.Hour)]++

		rs, ok := ruleAlerts[alert.RuleID]
		if !ok {
			rs = &RuleSummary{RuleID: alert.RuleID, RuleName: alert.RuleName()}
			ruleAlerts[alert.RuleID] = rs
		}
		rs.AlertCount++
		if alert.Severity.Rank() > rs.Severity.Rank() {
			rs.Severity = alert.Severity
		}
		if alert.Timestamp.After(rs.LastFired) {
			rs.LastFired = alert.Timestamp
		}
	}

	if summary.ResolvedAlerts > 0 {
		summary.MeanTimeToResolve = resolveTotal / time.Duration(summary.ResolvedAlerts)
	}

	for _, rs := range ruleAlerts {
		summary.TopRules = append(summary.TopRules, *rs)
	}
	sort.Slice(summary.TopRules, func(i, j int) bool {
		a, b := summary.TopRules[i], summary.TopRules[j]
		if a.AlertCount != b.AlertCount {
			return a.AlertCount > b.AlertCount
		}
		return a.RuleID < b.RuleID
	})
	if len(summary.TopRules) > maxTopRules {
		summary.TopRules = summary.TopRules[:maxTopRules]
	}

	var hours []time.Time
	for t := range hourly {
		hours = append(hours, t)
	}
	sort.Slice(hours, func(i, j int) bool { return hours[i].Before(hours[j]) })
	for _, t := range hours {
		data.Trend = append(data.Trend, TimeSeriesPoint{Timestamp: t, Value: float64(hourly[t])})
	}

	return data
}

var reportTemplate = template.Must(template.New("alerts").Funcs(template.FuncMap{
	"stamp": func(t time.Time) string { return t.UTC().Format("2006-01-02 15:04 MST") },
}).Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>SocialEye alert report</title></head>
<body>
<h1>Alert report</h1>
<p>{{stamp .StartTime}} to {{stamp .EndTime}}</p>
<h2>Summary</h2>
<table>
<tr><th>Total</th><td>{{.AlertSummary.TotalAlerts}}</td></tr>
<tr><th>Resolved</th><td>{{.AlertSummary.ResolvedAlerts}}</td></tr>
<tr><th>Unresolved</th><td>{{.AlertSummary.UnresolvedAlerts}}</td></tr>
<tr><th>Mean time to resolve</th><td>{{.AlertSummary.MeanTimeToResolve}}</td></tr>
{{range $sev, $n := .AlertSummary.BySeverity}}<tr><th>{{$sev}}</th><td>{{$n}}</td></tr>
{{end}}</table>
<h2>Top rules</h2>
<table>
<tr><th>Rule</th><th>Alerts</th><th>Highest severity</th><th>Last fired</th></tr>
{{range .AlertSummary.TopRules}}<tr><td>{{.RuleName}}</td><td>{{.AlertCount}}</td><td>{{.Severity}}</td><td>{{stamp .LastFired}}</td></tr>
{{else}}<tr><td colspan="4">No alerts in this period</td></tr>
{{end}}</table>
<h2>Alerts per hour</h2>
<table>
{{range .Trend}}<tr><td>{{stamp .Timestamp}}</td><td>{{.Value}}</td></tr>
{{end}}</table>
</body>
</html>
`))

func RenderHTML(w io.Writer, data *ReportData) error {
	if err := reportTemplate.Execute(w, data); err != nil {
		return fmt.Errorf("failed to execute template: %w", err)
	}
	return nil
}
