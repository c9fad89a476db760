package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/steveyegge/devpulse/internal/types"
)

// parseTimeArg accepts a date (2006-01-02), an RFC3339 timestamp, "now",
// "today", or a relative offset into the past such as "30d", "12h" or "2w".
// Dates and relative day offsets resolve to UTC midnight so repeated runs
// produce the same commit range.
func parseTimeArg(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	now = now.UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	switch s {
	case "":
		return time.Time{}, fmt.Errorf("empty time")
	case "now":
		return now, nil
	case "today":
		return today, nil
	case "tomorrow":
		return today.AddDate(0, 0, 1), nil
	}

	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}

	if len(s) > 1 {
		n, err := strconv.Atoi(s[:len(s)-1])
		if err == nil && n >= 0 {
			switch s[len(s)-1] {
			case 'd':
				return today.AddDate(0, 0, -n), nil
			case 'w':
				return today.AddDate(0, 0, -7*n), nil
			case 'h':
				return now.Add(-time.Duration(n) * time.Hour), nil
			}
		}
	}
	return time.Time{}, fmt.Errorf("invalid time %q (use YYYY-MM-DD, RFC3339, now, today or an offset like 30d)", s)
}

// parseRange resolves --from/--to into a commit range.
func parseRange(from, to string, now time.Time) (types.CommitRange, error) {
	start, err := parseTimeArg(from, now)
	if err != nil {
		return types.CommitRange{}, fmt.Errorf("--from: %w", err)
	}
	end, err := parseTimeArg(to, now)
	if err != nil {
		return types.CommitRange{}, fmt.Errorf("--to: %w", err)
	}
	rng := types.CommitRange{Start: start, End: end}
	if err := rng.Validate(); err != nil {
		return types.CommitRange{}, err
	}
	return rng, nil
}

func riskColor(r types.RiskLevel) *color.Color {
	switch r {
	case types.RiskLow:
		return color.New(color.FgGreen)
	case types.RiskMedium:
		return color.New(color.FgYellow)
	case types.RiskHigh:
		return color.New(color.FgRed)
	case types.RiskCritical:
		return color.New(color.FgRed, color.Bold)
	default:
		return color.New(color.FgWhite)
	}
}

func alertSeverityColor(s types.Severity) *color.Color {
	return riskColor(types.RiskLevel(s))
}

func strengthColor(s types.PatternStrength) *color.Color {
	switch s {
	case types.StrengthVeryStrong:
		return color.New(color.FgMagenta, color.Bold)
	case types.StrengthStrong:
		return color.New(color.FgMagenta)
	case types.StrengthModerate:
		return color.New(color.FgCyan)
	default:
		return color.New(color.FgHiBlack)
	}
}

func statusColor(s string) *color.Color {
	switch s {
	case string(types.ValidationValidated), string(types.AlertAcknowledged), string(types.AlertInvestigating):
		return color.New(color.FgCyan)
	case string(types.ValidationImplemented), string(types.AlertResolved), string(types.SessionCompleted):
		return color.New(color.FgGreen)
	case string(types.ValidationRejected), string(types.AlertFalsePositive), string(types.SessionFailed):
		return color.New(color.FgRed)
	case string(types.ValidationOutdated), string(types.AlertSuppressed):
		return color.New(color.FgHiBlack)
	default:
		return color.New(color.FgYellow)
	}
}

// formatPercent renders a [0,1] score as a whole percentage.
func formatPercent(v float64) string {
	return fmt.Sprintf("%.0f%%", v*100)
}

// formatAge renders how long ago t was, relative to now.
func formatAge(t, now time.Time) string {
	d := now.Sub(t)
	switch {
	case d < 0:
		return "just now"
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 48*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

// truncateString truncates a string to maxLen, adding "..." if needed
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return "..."
	}
	return s[:maxLen-3] + "..."
}
