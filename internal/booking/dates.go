package booking

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	connectorRe = regexp.MustCompile(`(?i)\s+(?:to|until|till|hingga|sampai)\s+|\s*[~～至到]\s*|\s+[-–—]+\s+`)
	leadingRe   = regexp.MustCompile(`(?i)^(?:from|dari|从)\s*`)
	isoRe       = regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2})$`)
	numericRe   = regexp.MustCompile(`^(\d{1,2})[/.\-](\d{1,2})[/.\-](\d{4})$`)
	chineseRe   = regexp.MustCompile(`^(?:(\d{4})年)?(\d{1,2})月(\d{1,2})[日号]?$`)
	ordinalRe   = regexp.MustCompile(`^(\d{1,2})(?:st|nd|rd|th)?$`)
	yearRe      = regexp.MustCompile(`^\d{4}$`)
)

var months = map[string]time.Month{
	"jan": time.January, "january": time.January, "januari": time.January,
	"feb": time.February, "february": time.February, "februari": time.February,
	"mar": time.March, "march": time.March, "mac": time.March,
	"apr": time.April, "april": time.April,
	"may": time.May, "mei": time.May,
	"jun": time.June, "june": time.June,
	"jul": time.July, "july": time.July, "julai": time.July,
	"aug": time.August, "august": time.August, "ogos": time.August,
	"sep": time.September, "sept": time.September, "september": time.September,
	"oct": time.October, "october": time.October, "okt": time.October, "oktober": time.October,
	"nov": time.November, "november": time.November,
	"dec": time.December, "december": time.December, "dis": time.December, "disember": time.December,
}

var relativeDays = map[string]int{
	"today": 0, "tonight": 0, "hari ini": 0, "malam ini": 0, "今天": 0, "今晚": 0,
	"tomorrow": 1, "esok": 1, "besok": 1, "明天": 1,
}

// splitRange splits a date range on connector words. Hyphens inside ISO or
// numeric dates are left alone because connectors need surrounding spaces.
func splitRange(input string) []string {
	text := leadingRe.ReplaceAllString(strings.TrimSpace(input), "")
	parts := connectorRe.Split(text, -1)
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseDate parses one date expression relative to now. Dates are returned as
// UTC midnight.
func parseDate(s string, now time.Time) (time.Time, bool) {
	s = strings.ToLower(strings.TrimSpace(strings.Trim(s, " .!?,")))
	if s == "" {
		return time.Time{}, false
	}
	today := dateOnly(now)

	if d, ok := relativeDays[s]; ok {
		return today.AddDate(0, 0, d), true
	}
	if m := isoRe.FindStringSubmatch(s); m != nil {
		return ymd(atoi(m[1]), atoi(m[2]), atoi(m[3]))
	}
	if m := numericRe.FindStringSubmatch(s); m != nil {
		return ymd(atoi(m[3]), atoi(m[2]), atoi(m[1]))
	}
	if m := chineseRe.FindStringSubmatch(strings.ReplaceAll(s, " ", "")); m != nil {
		if m[1] == "" {
			return withInferredYear(time.Month(atoi(m[2])), atoi(m[3]), today)
		}
		return naturalYMD(atoi(m[1]), time.Month(atoi(m[2])), atoi(m[3]), today)
	}
	return parseNatural(s, today)
}

// parseNatural handles "15 March 2026", "March 15, 2026", "15th mac" and
// similar. A missing year means the next occurrence of that day.
func parseNatural(s string, today time.Time) (time.Time, bool) {
	fields := strings.Fields(strings.ReplaceAll(s, ",", " "))
	if len(fields) < 2 || len(fields) > 3 {
		return time.Time{}, false
	}

	var (
		day   int
		month time.Month
	)
	if m, ok := months[fields[0]]; ok {
		month = m
		day = ordinalDay(fields[1])
	} else if m, ok := months[fields[1]]; ok {
		month = m
		day = ordinalDay(fields[0])
	}
	if month == 0 || day == 0 {
		return time.Time{}, false
	}

	if len(fields) == 2 {
		return withInferredYear(month, day, today)
	}
	if !yearRe.MatchString(fields[2]) {
		return time.Time{}, false
	}
	return naturalYMD(atoi(fields[2]), month, day, today)
}

func naturalYMD(year int, month time.Month, day int, today time.Time) (time.Time, bool) {
	if year < today.Year() {
		return time.Time{}, false
	}
	return ymd(year, int(month), day)
}

func withInferredYear(month time.Month, day int, today time.Time) (time.Time, bool) {
	t, ok := ymd(today.Year(), int(month), day)
	if !ok {
		return time.Time{}, false
	}
	if t.Before(today) {
		return ymd(today.Year()+1, int(month), day)
	}
	return t, true
}

func ordinalDay(s string) int {
	m := ordinalRe.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	return atoi(m[1])
}

// ymd builds a date and rejects overflow such as 31/02.
func ymd(year, month, day int) (time.Time, bool) {
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day || int(t.Month()) != month {
		return time.Time{}, false
	}
	return t, true
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

// parseRange parses "checkin [connector checkout]". A missing or unparseable
// second date defaults checkout to the day after check-in.
func parseRange(input string, now time.Time) (checkIn, checkOut time.Time, ok bool) {
	parts := splitRange(input)
	if len(parts) == 0 {
		return time.Time{}, time.Time{}, false
	}
	checkIn, ok = parseDate(parts[0], now)
	if !ok {
		return time.Time{}, time.Time{}, false
	}
	checkOut = checkIn.AddDate(0, 0, 1)
	if len(parts) > 1 {
		if out, ok := parseDate(parts[1], now); ok {
			checkOut = out
		}
	}
	return checkIn, checkOut, true
}
