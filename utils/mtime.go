package utils

import (
	"strconv"
	"strings"
	"time"
)

// listingHourOffset is added to bare times of day shown for recently changed
// items. The listing renders them in the service's own zone, which is not
// stated anywhere; +7h reproduces what the service produces for US Pacific.
// This is a locale assumption, not a general conversion.
const listingHourOffset = 7

var monthNames = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March, "apr": time.April,
	"may": time.May, "jun": time.June, "jul": time.July, "aug": time.August,
	"sep": time.September, "oct": time.October, "nov": time.November, "dec": time.December,
}

// ParseModifiedTime converts a listing timestamp into epoch seconds.
//
// Three shapes are recognized:
//   - "3:45 PM": today (UTC date of now), hour shifted by listingHourOffset, read as UTC
//   - "12/25/23": month/day/two-digit year, midnight in now's location
//   - "Dec 25": month/day of now's year, midnight in now's location
//
// Anything malformed or out of range yields ok == false.
func ParseModifiedTime(raw string, now time.Time) (epoch int64, ok bool) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return 0, false
	}

	switch {
	case strings.Contains(text, ":"):
		return parseTimeOfDay(text, now)
	case strings.Contains(text, "/"):
		return parseSlashDate(text, now.Location())
	default:
		return parseMonthDay(text, now)
	}
}

func parseTimeOfDay(text string, now time.Time) (int64, bool) {
	upper := strings.ToUpper(text)
	meridiem := ""
	for _, suffix := range []string{"AM", "PM"} {
		if strings.HasSuffix(upper, suffix) {
			meridiem = suffix
			upper = strings.TrimSpace(strings.TrimSuffix(upper, suffix))
			break
		}
	}

	hourText, minuteText, found := strings.Cut(upper, ":")
	if !found {
		return 0, false
	}
	hour, err := strconv.Atoi(strings.TrimSpace(hourText))
	if err != nil {
		return 0, false
	}
	minute, err := strconv.Atoi(strings.TrimSpace(minuteText))
	if err != nil || minute < 0 || minute > 59 {
		return 0, false
	}

	switch meridiem {
	case "":
		if hour < 0 || hour > 23 {
			return 0, false
		}
	default:
		if hour < 1 || hour > 12 {
			return 0, false
		}
		hour %= 12
		if meridiem == "PM" {
			hour += 12
		}
	}

	y, m, d := now.UTC().Date()
	// time.Date normalizes hours past 23 into the following day
	t := time.Date(y, m, d, hour+listingHourOffset, minute, 0, 0, time.UTC)
	return t.Unix(), true
}

func parseSlashDate(text string, loc *time.Location) (int64, bool) {
	parts := strings.Split(text, "/")
	if len(parts) != 3 {
		return 0, false
	}

	month, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, false
	}
	day, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, false
	}
	yearText := strings.TrimSpace(parts[2])
	year, err := strconv.Atoi(yearText)
	if err != nil || year < 0 {
		return 0, false
	}
	switch len(yearText) {
	case 2:
		year += 2000
	case 4:
	default:
		return 0, false
	}

	return dateEpoch(year, month, day, loc)
}

func parseMonthDay(text string, now time.Time) (int64, bool) {
	fields := strings.Fields(text)
	if len(fields) != 2 || len(fields[0]) < 3 {
		return 0, false
	}

	month, known := monthNames[strings.ToLower(fields[0][:3])]
	if !known {
		return 0, false
	}
	day, err := strconv.Atoi(strings.TrimSuffix(fields[1], ","))
	if err != nil {
		return 0, false
	}

	return dateEpoch(now.Year(), int(month), day, now.Location())
}

// dateEpoch rejects dates that time.Date would silently roll over (Feb 30, month 13)
func dateEpoch(year, month, day int, loc *time.Location) (int64, bool) {
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return 0, false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, loc)
	if t.Year() != year || int(t.Month()) != month || t.Day() != day {
		return 0, false
	}
	return t.Unix(), true
}
