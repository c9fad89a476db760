package main

import (
	"context"
	"testing"
	"time"
)

var now = time.Date(2024, 5, 6, 15, 30, 0, 0, time.UTC)

func TestParseTimeArg(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{in: "2024-01-02", want: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)},
		{in: "2024-01-02T03:04:05+02:00", want: time.Date(2024, 1, 2, 1, 4, 5, 0, time.UTC)},
		{in: "now", want: now},
		{in: "today", want: time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC)},
		{in: "tomorrow", want: time.Date(2024, 5, 7, 0, 0, 0, 0, time.UTC)},
		{in: "30d", want: time.Date(2024, 4, 6, 0, 0, 0, 0, time.UTC)},
		{in: " 0d ", want: time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC)},
		{in: "2w", want: time.Date(2024, 4, 22, 0, 0, 0, 0, time.UTC)},
		{in: "12h", want: time.Date(2024, 5, 6, 3, 30, 0, 0, time.UTC)},
		{in: "", wantErr: true},
		{in: "yesterday-ish", wantErr: true},
		{in: "-5d", wantErr: true},
		{in: "5x", wantErr: true},
		{in: "d", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseTimeArg(tt.in, now)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseTimeArg(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && !got.Equal(tt.want) {
				t.Errorf("parseTimeArg(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseRange(t *testing.T) {
	rng, err := parseRange("7d", "tomorrow", now)
	if err != nil {
		t.Fatalf("parseRange: %v", err)
	}
	if !rng.Start.Equal(time.Date(2024, 4, 29, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("start = %v", rng.Start)
	}
	if !rng.End.Equal(time.Date(2024, 5, 7, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("end = %v", rng.End)
	}

	// The same arguments later in the day resolve to the same range.
	again, err := parseRange("7d", "tomorrow", now.Add(6*time.Hour))
	if err != nil {
		t.Fatalf("parseRange: %v", err)
	}
	if !again.Equal(rng) {
		t.Errorf("range drifted: %v vs %v", again, rng)
	}

	if _, err := parseRange("2024-05-01", "2024-04-01", now); err == nil {
		t.Error("expected error for inverted range")
	}
	if _, err := parseRange("bogus", "now", now); err == nil {
		t.Error("expected error for bad --from")
	}
	if _, err := parseRange("7d", "bogus", now); err == nil {
		t.Error("expected error for bad --to")
	}
}

func TestFormatAge(t *testing.T) {
	tests := []struct {
		ago  time.Duration
		want string
	}{
		{ago: -time.Minute, want: "just now"},
		{ago: 30 * time.Second, want: "30s ago"},
		{ago: 5 * time.Minute, want: "5m ago"},
		{ago: 3 * time.Hour, want: "3h ago"},
		{ago: 47 * time.Hour, want: "47h ago"},
		{ago: 72 * time.Hour, want: "3d ago"},
	}
	for _, tt := range tests {
		if got := formatAge(now.Add(-tt.ago), now); got != tt.want {
			t.Errorf("formatAge(-%v) = %q, want %q", tt.ago, got, tt.want)
		}
	}
}

func TestTruncateString(t *testing.T) {
	tests := []struct {
		in     string
		maxLen int
		want   string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"this is too long", 10, "this is..."},
		{"abc", 2, "..."},
	}
	for _, tt := range tests {
		if got := truncateString(tt.in, tt.maxLen); got != tt.want {
			t.Errorf("truncateString(%q, %d) = %q, want %q", tt.in, tt.maxLen, got, tt.want)
		}
	}
}

func TestFormatPercent(t *testing.T) {
	if got := formatPercent(0.666); got != "67%" {
		t.Errorf("formatPercent(0.666) = %q", got)
	}
	if got := formatPercent(0); got != "0%" {
		t.Errorf("formatPercent(0) = %q", got)
	}
}

func TestOpenSource(t *testing.T) {
	src, err := openSource(context.Background(), "store", ".", "proj")
	if err != nil {
		t.Fatalf("openSource(store): %v", err)
	}
	if src.Source != nil {
		t.Error("store source should defer to the database")
	}
	src.Close()

	if _, err := openSource(context.Background(), "s3", ".", "proj"); err == nil {
		t.Error("expected error for unknown source")
	}
}

func TestCurrentProject(t *testing.T) {
	old := projectFlag
	defer func() { projectFlag = old }()

	projectFlag = "flagged"
	t.Setenv("DEVPULSE_PROJECT", "from-env")
	if got := currentProject(); got != "flagged" {
		t.Errorf("currentProject() = %q, want flag value", got)
	}

	projectFlag = ""
	if got := currentProject(); got != "from-env" {
		t.Errorf("currentProject() = %q, want env value", got)
	}
}

func TestNeedsStore(t *testing.T) {
	if needsStore(initCmd) {
		t.Error("init must not open the store")
	}
	if !needsStore(dashboardCmd) {
		t.Error("dashboard needs the store")
	}
	for _, c := range alertsCmd.Commands() {
		if !needsStore(c) {
			t.Errorf("alerts %s needs the store", c.Name())
		}
	}
}
