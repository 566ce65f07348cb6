package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var dateLayouts = []string{"2006-01-02", "20060102"}

// resolveDate turns --date / --days-ago into a local midnight. With
// neither set it is today.
func resolveDate(date string, daysAgo int, now time.Time) (time.Time, error) {
	if date != "" && daysAgo != 0 {
		return time.Time{}, fmt.Errorf("--date and --days-ago are mutually exclusive")
	}
	if daysAgo < 0 {
		return time.Time{}, fmt.Errorf("--days-ago must not be negative")
	}
	if date != "" {
		for _, layout := range dateLayouts {
			if t, err := time.ParseInLocation(layout, date, now.Location()); err == nil {
				return t, nil
			}
		}
		return time.Time{}, fmt.Errorf("invalid --date %q: want YYYY-MM-DD or YYYYMMDD", date)
	}
	y, m, d := now.AddDate(0, 0, -daysAgo).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, now.Location()), nil
}

// addDateFlags registers --date and --days-ago on cmd.
func addDateFlags(cmd *cobra.Command, date *string, daysAgo *int) {
	cmd.Flags().StringVar(date, "date", "", "date to process (YYYY-MM-DD or YYYYMMDD, default today)")
	cmd.Flags().IntVar(daysAgo, "days-ago", 0, "process the date this many days before today")
}
