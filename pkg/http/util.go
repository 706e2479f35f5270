package http

import (
	"time"

	xutil "StockCast/pkg/util"
)

// ParseIntDefault parses string to int or returns default if empty/invalid.
func ParseIntDefault(s string, def int) int { return xutil.ParseIntDefault(s, def) }

// ParseTimeIn parses RFC3339, unix seconds, or a zone-less local time in loc.
func ParseTimeIn(s string, loc *time.Location) (time.Time, bool) { return xutil.ParseTimeIn(s, loc) }
