package expert

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// The time grammar is deliberately closed: explicit clock times (12h and
// 24h), relative day words, weekday names, day parts, and "in N units"
// offsets. Anything outside it is reported as not found and the caller
// falls back to its safe default instead of erroring.

var (
	clockRe   = regexp.MustCompile(`(?i)\b(?:at\s+)?(\d{1,2})(?::(\d{2}))?\s*(am|pm)\b`)
	clock24Re = regexp.MustCompile(`(?i)\b(?:at\s+)?(\d{1,2}):(\d{2})\b`)
	inRe      = regexp.MustCompile(`(?i)\bin\s+(\d+)\s+(minute|hour|day|week)s?\b`)
	weekdayRe = regexp.MustCompile(`(?i)\b(?:on\s+|next\s+)?(monday|tuesday|wednesday|thursday|friday|saturday|sunday)\b`)
)

var weekdays = map[string]time.Weekday{
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
	"sunday":    time.Sunday,
}

// Day-part defaults, used when the phrase names a part of day without a
// clock time.
var dayParts = []struct {
	phrase string
	hour   int
}{
	{"tonight", 20},
	{"this morning", 9},
	{"morning", 9},
	{"noon", 12},
	{"this afternoon", 15},
	{"afternoon", 15},
	{"this evening", 18},
	{"evening", 18},
}

// defaultHour is used when only a day reference is found ("tomorrow").
const defaultHour = 9

// ExtractTime scans query for a time expression relative to now and
// normalizes it to a single timestamp. It returns the timestamp, whether
// any expression was found, and the query text with the matched
// expressions removed (so callers can extract the task text).
//
// A parsed time in the past is returned as-is: the conversational contract
// is to execute the literal request and let the user correct it, not to
// silently shift dates.
func ExtractTime(query string, now time.Time) (time.Time, bool, string) {
	remainder := query
	found := false

	day := now
	dayFound := false

	hour, minute := -1, 0

	// Relative "in N units" is self-contained: offset from now, done.
	if m := inRe.FindStringSubmatch(remainder); m != nil {
		n, _ := strconv.Atoi(m[1])
		var d time.Duration
		switch strings.ToLower(m[2]) {
		case "minute":
			d = time.Duration(n) * time.Minute
		case "hour":
			d = time.Duration(n) * time.Hour
		case "day":
			d = time.Duration(n) * 24 * time.Hour
		case "week":
			d = time.Duration(n) * 7 * 24 * time.Hour
		}
		remainder = cleanRemainder(strings.Replace(remainder, m[0], "", 1))
		return now.Add(d), true, remainder
	}

	lower := strings.ToLower(remainder)

	// Day references.
	switch {
	case strings.Contains(lower, "day after tomorrow"):
		day = now.AddDate(0, 0, 2)
		dayFound = true
		remainder = removeFold(remainder, "day after tomorrow")
	case strings.Contains(lower, "tomorrow"):
		day = now.AddDate(0, 0, 1)
		dayFound = true
		remainder = removeFold(remainder, "tomorrow")
	case strings.Contains(lower, "today"):
		dayFound = true
		remainder = removeFold(remainder, "today")
	}

	if !dayFound {
		if m := weekdayRe.FindStringSubmatch(remainder); m != nil {
			target := weekdays[strings.ToLower(m[1])]
			offset := (int(target) - int(now.Weekday()) + 7) % 7
			if offset == 0 {
				offset = 7 // "on monday" said on a Monday means next week
			}
			day = now.AddDate(0, 0, offset)
			dayFound = true
			remainder = cleanRemainder(strings.Replace(remainder, m[0], "", 1))
		}
	}

	// Clock times. The 12-hour form wins over the bare 24-hour form so
	// "5:30 pm" is not consumed as 05:30.
	if m := clockRe.FindStringSubmatch(remainder); m != nil {
		h, _ := strconv.Atoi(m[1])
		if m[2] != "" {
			minute, _ = strconv.Atoi(m[2])
		}
		if strings.EqualFold(m[3], "pm") && h < 12 {
			h += 12
		}
		if strings.EqualFold(m[3], "am") && h == 12 {
			h = 0
		}
		hour = h
		remainder = cleanRemainder(strings.Replace(remainder, m[0], "", 1))
	} else if m := clock24Re.FindStringSubmatch(remainder); m != nil {
		h, _ := strconv.Atoi(m[1])
		mm, _ := strconv.Atoi(m[2])
		if h <= 23 && mm <= 59 {
			hour, minute = h, mm
			remainder = cleanRemainder(strings.Replace(remainder, m[0], "", 1))
		}
	}

	// Day parts only apply when no explicit clock time was given.
	if hour < 0 {
		lower = strings.ToLower(remainder)
		for _, part := range dayParts {
			if strings.Contains(lower, part.phrase) {
				hour = part.hour
				// "tonight" implies today even without a day word.
				dayFound = true
				remainder = removeFold(remainder, part.phrase)
				break
			}
		}
	}

	if hour >= 0 || dayFound {
		found = true
	}
	if !found {
		return time.Time{}, false, query
	}
	if hour < 0 {
		hour = defaultHour
	}

	when := time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, now.Location())
	return when, true, cleanRemainder(remainder)
}

// removeFold removes the first case-insensitive occurrence of phrase.
func removeFold(s, phrase string) string {
	idx := strings.Index(strings.ToLower(s), phrase)
	if idx < 0 {
		return s
	}
	return cleanRemainder(s[:idx] + s[idx+len(phrase):])
}

// cleanRemainder collapses whitespace and strips dangling connectives left
// behind after an expression is cut out ("call mom  at" -> "call mom").
func cleanRemainder(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	for _, suffix := range []string{" at", " on", " in", " for"} {
		s = strings.TrimSuffix(s, suffix)
	}
	return strings.TrimSpace(s)
}
