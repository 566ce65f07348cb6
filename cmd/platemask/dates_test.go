package main

import (
	"strings"
	"testing"
	"time"
)

func TestResolveDate(t *testing.T) {
	now := time.Date(2026, 2, 3, 15, 4, 5, 0, time.UTC)
	tests := []struct {
		name    string
		date    string
		daysAgo int
		want    time.Time
		wantErr string
	}{
		{"today", "", 0, time.Date(2026, 2, 3, 0, 0, 0, 0, time.UTC), ""},
		{"days ago", "", 3, time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC), ""},
		{"dashed", "2025-12-24", 0, time.Date(2025, 12, 24, 0, 0, 0, 0, time.UTC), ""},
		{"compact", "20251224", 0, time.Date(2025, 12, 24, 0, 0, 0, 0, time.UTC), ""},
		{"both", "2025-12-24", 1, time.Time{}, "mutually exclusive"},
		{"negative", "", -1, time.Time{}, "must not be negative"},
		{"garbage", "yesterday", 0, time.Time{}, "invalid --date"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolveDate(tt.date, tt.daysAgo, now)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("err = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("resolveDate = %s, want %s", got, tt.want)
			}
		})
	}
}
