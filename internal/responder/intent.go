package responder

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DefaultBookingDuration is the appointment length used when the customer
// names a start time but no end.
const DefaultBookingDuration = 2 * time.Hour

// defaultStartHour is used when a date is mentioned without a time.
const defaultStartHour = 10

// SchedulingIntent is a proposed date/time window extracted from lead or
// message text. Transient; absence of an intent is never an error.
type SchedulingIntent struct {
	Start time.Time
	End   time.Time
}

var (
	timeRe    = regexp.MustCompile(`(?i)\b(?:at\s+)?(\d{1,2})(?::(\d{2}))?\s*(am|pm)\b`)
	time24Re  = regexp.MustCompile(`\b([01]?\d|2[0-3]):([0-5]\d)\b`)
	isoDateRe = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	weekdayRe = regexp.MustCompile(`(?i)\b(monday|tuesday|wednesday|thursday|friday|saturday|sunday)\b`)
)

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// ExtractIntent scans text for an explicit date mention (today, tomorrow, a
// weekday name, or an ISO date) and an optional clock time. Without a date
// mention it returns nil: a bare time like "around 3pm" is too ambiguous to
// book against.
func ExtractIntent(text string, now time.Time) *SchedulingIntent {
	day, ok := extractDay(text, now)
	if !ok {
		return nil
	}

	hour, minute, ok := extractClock(text)
	if !ok {
		hour, minute = defaultStartHour, 0
	}

	start := time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, now.Location())
	if !start.After(now) {
		// A same-day mention of a time already past rolls to the next day.
		start = start.AddDate(0, 0, 1)
	}

	return &SchedulingIntent{
		Start: start,
		End:   start.Add(DefaultBookingDuration),
	}
}

func extractDay(text string, now time.Time) (time.Time, bool) {
	lower := strings.ToLower(text)

	if m := isoDateRe.FindStringSubmatch(text); m != nil {
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		day, _ := strconv.Atoi(m[3])
		if month >= 1 && month <= 12 && day >= 1 && day <= 31 {
			return time.Date(year, time.Month(month), day, 0, 0, 0, 0, now.Location()), true
		}
	}

	if strings.Contains(lower, "tomorrow") {
		return now.AddDate(0, 0, 1), true
	}
	if strings.Contains(lower, "today") {
		return now, true
	}

	if m := weekdayRe.FindStringSubmatch(lower); m != nil {
		target := weekdays[m[1]]
		day := now
		for i := 0; i < 7; i++ {
			day = day.AddDate(0, 0, 1)
			if day.Weekday() == target {
				return day, true
			}
		}
	}

	return time.Time{}, false
}

func extractClock(text string) (hour, minute int, ok bool) {
	if m := timeRe.FindStringSubmatch(text); m != nil {
		hour, _ = strconv.Atoi(m[1])
		if m[2] != "" {
			minute, _ = strconv.Atoi(m[2])
		}
		if hour < 1 || hour > 12 {
			return 0, 0, false
		}
		if strings.EqualFold(m[3], "pm") && hour != 12 {
			hour += 12
		}
		if strings.EqualFold(m[3], "am") && hour == 12 {
			hour = 0
		}
		return hour, minute, true
	}

	if m := time24Re.FindStringSubmatch(text); m != nil {
		hour, _ = strconv.Atoi(m[1])
		minute, _ = strconv.Atoi(m[2])
		return hour, minute, true
	}

	return 0, 0, false
}
