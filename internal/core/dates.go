package core

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the canonical date format stored and exported.
const DateLayout = "2006-01-02"

// Spreadsheet serial dates count days from 1899-12-30 (the 1900 system
// with its leap-year bug). 25569 is the serial of 1970-01-01.
const (
	serialUnixEpoch = 25569
	secondsPerDay   = 86400
	maxSerial       = 2958465 // 9999-12-31
)

// Day-first layouts; each also accepts single-digit day and month.
const (
	frenchDateLayout     = "2/1/2006"
	frenchDashDateLayout = "2-1-2006"
)

// NormalizeDate converts an ISO date, a DD/MM/YYYY or DD-MM-YYYY date or a
// spreadsheet serial number into YYYY-MM-DD. It returns ("", false) for empty or
// unrecognised input and never panics; callers decide the default.
func NormalizeDate(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}

	if t, ok := parseISODate(s); ok {
		return t.Format(DateLayout), true
	}

	if strings.Count(s, "/") == 2 {
		if t, err := time.Parse(frenchDateLayout, s); err == nil {
			return t.Format(DateLayout), true
		}
		return "", false
	}

	if strings.Count(s, "-") == 2 {
		if t, err := time.Parse(frenchDashDateLayout, s); err == nil {
			return t.Format(DateLayout), true
		}
		return "", false
	}

	if t, ok := serialToTime(s); ok {
		return t.Format(DateLayout), true
	}

	return "", false
}

// parseISODate accepts YYYY-MM-DD optionally followed by a time part.
func parseISODate(s string) (time.Time, bool) {
	if len(s) < len(DateLayout) || s[4] != '-' || s[7] != '-' {
		return time.Time{}, false
	}
	if len(s) > len(DateLayout) && s[10] != 'T' && s[10] != ' ' {
		return time.Time{}, false
	}
	t, err := time.Parse(DateLayout, s[:len(DateLayout)])
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func serialToTime(s string) (time.Time, bool) {
	serial, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
	if err != nil || math.IsNaN(serial) || serial < 1 || serial > maxSerial {
		return time.Time{}, false
	}
	unix := (serial - serialUnixEpoch) * secondsPerDay
	return time.Unix(int64(math.Floor(unix)), 0).UTC(), true
}

// DateToSerial is the inverse of the serial branch of NormalizeDate.
func DateToSerial(iso string) (float64, bool) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(iso))
	if err != nil {
		return 0, false
	}
	return float64(t.Unix())/secondsPerDay + serialUnixEpoch, true
}
