package main

import (
	"fmt"
	"time"
)

// formatAgo renders a timestamp as a rough "2 hours ago" string.
func formatAgo(t time.Time) string {
	d := time.Since(t)
	var s string
	switch {
	case d < 2*time.Minute:
		s = fmt.Sprintf("%0.f seconds", d.Seconds())
	case d < 2*time.Hour:
		s = fmt.Sprintf("%0.f minutes", d.Minutes())
	case d < 48*time.Hour:
		s = fmt.Sprintf("%0.1f hours", d.Hours())
	default:
		s = fmt.Sprintf("%0.f days", d.Hours()/24)
	}
	return s + " ago"
}
