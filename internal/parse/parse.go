// Package parse holds the pure string parsers shared by the normalizer:
// text cleanup, money values, UF extraction, and bounded dates.
package parse

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

var (
	whitespaceRegexp = regexp.MustCompile(`\s+`)
	controlRegexp    = regexp.MustCompile(`[\x00-\x1f\x7f-\x9f]`)
	moneyRegexp      = regexp.MustCompile(`[^\d,]`)
	stateTailRegexp  = regexp.MustCompile(`[-/]\s*([A-Z]{2})\s*$`)
	isoDateRegexp    = regexp.MustCompile(`(\d{4}-\d{2}-\d{2})`)
	slashDateRegexp  = regexp.MustCompile(`(\d{2})/(\d{2})/(\d{4})`)
)

// Brazilian federative unit codes, in the scan order used for whole-word
// state extraction.
var ufs = []string{
	"AC", "AL", "AP", "AM", "BA", "CE", "DF", "ES", "GO", "MA", "MT", "MS",
	"MG", "PA", "PB", "PR", "PE", "PI", "RJ", "RN", "RS", "RO", "RR", "SC",
	"SP", "SE", "TO",
}

var (
	ufSet        = make(map[string]bool, len(ufs))
	ufWordRegexp = make([]*regexp.Regexp, len(ufs))
)

func init() {
	for i, uf := range ufs {
		ufSet[uf] = true
		ufWordRegexp[i] = regexp.MustCompile(`\b` + uf + `\b`)
	}
}

// Date sanity bounds against corrupt source timestamps.
const (
	maxDateAge    = 730 * 24 * time.Hour
	maxDateFuture = 5 * 365 * 24 * time.Hour
)

// CleanText collapses runs of whitespace to a single space, strips control
// characters, and trims. If maxLen > 0 and the text is longer, it is cut at
// the last word boundary before maxLen and an ellipsis is appended.
func CleanText(text string, maxLen int) string {
	text = whitespaceRegexp.ReplaceAllString(text, " ")
	text = controlRegexp.ReplaceAllString(text, "")
	text = strings.TrimSpace(text)

	if maxLen > 0 {
		runes := []rune(text)
		if len(runes) > maxLen {
			cut := string(runes[:maxLen])
			if idx := strings.LastIndex(cut, " "); idx > 0 {
				cut = cut[:idx]
			}
			text = cut + "..."
		}
	}
	return text
}

// StripHTML returns the text content of an HTML fragment. Offer
// descriptions arrive as markup; previews must be plain text. On parse
// failure the input is returned unchanged.
func StripHTML(fragment string) string {
	if !strings.ContainsAny(fragment, "<>") {
		return fragment
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return fragment
	}
	return doc.Text()
}

// ParseValue converts a raw numeric field into a float. Numbers pass
// through; strings keep only digits and comma, with comma as the decimal
// separator. Malformed input yields nil, never an error.
func ParseValue(value interface{}) *float64 {
	switch v := value.(type) {
	case nil:
		return nil
	case float64:
		return &v
	case int:
		f := float64(v)
		return &f
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return nil
		}
		return &f
	case string:
		cleaned := moneyRegexp.ReplaceAllString(v, "")
		cleaned = strings.ReplaceAll(cleaned, ",", ".")
		if cleaned == "" {
			return nil
		}
		f, err := strconv.ParseFloat(cleaned, 64)
		if err != nil {
			return nil
		}
		return &f
	default:
		return nil
	}
}

// IsUF reports whether s is one of the 27 federative unit codes.
func IsUF(s string) bool {
	return ufSet[s]
}

// ExtractState pulls a UF code out of free text: first a -XX or /XX suffix,
// then a whole-word scan. Returns "" when no valid code is found.
func ExtractState(text string) string {
	if text == "" {
		return ""
	}
	upper := strings.ToUpper(text)

	if m := stateTailRegexp.FindStringSubmatch(upper); m != nil && IsUF(m[1]) {
		return m[1]
	}
	for i, uf := range ufs {
		if ufWordRegexp[i].MatchString(upper) {
			return uf
		}
	}
	return ""
}

// ExtractCityState splits a free-text location into city and state. The
// left side of the first "/" or " - " separator is the city; the right side
// is accepted as state only when it is a valid UF code.
func ExtractCityState(text string) (string, string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ""
	}

	city := text
	candidate := ""
	if strings.Contains(text, "/") {
		parts := strings.SplitN(text, "/", 2)
		city = strings.TrimSpace(parts[0])
		candidate = strings.TrimSpace(parts[1])
	} else if strings.Contains(text, " - ") {
		parts := strings.SplitN(text, " - ", 2)
		city = strings.TrimSpace(parts[0])
		candidate = strings.TrimSpace(parts[1])
	}

	if IsUF(candidate) {
		return city, candidate
	}
	return city, ""
}

// ParseBoundedDate parses an ISO (YYYY-MM-DD) or DD/MM/YYYY date embedded
// in a string and rejects dates older than two years or more than five
// years ahead of now.
func ParseBoundedDate(s string, now time.Time) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}

	var parsed string
	if m := isoDateRegexp.FindStringSubmatch(s); m != nil {
		parsed = m[1]
	} else if m := slashDateRegexp.FindStringSubmatch(s); m != nil {
		parsed = m[3] + "-" + m[2] + "-" + m[1]
	} else {
		return time.Time{}, false
	}

	t, err := time.Parse("2006-01-02", parsed)
	if err != nil {
		return time.Time{}, false
	}
	if !withinBounds(t, now) {
		return time.Time{}, false
	}
	return t, true
}

// ParseTimestamp parses an RFC 3339 source timestamp (trailing Z included)
// into an offset-aware time, applying the same sanity bounds as
// ParseBoundedDate. Failures yield ok=false, never an error.
func ParseTimestamp(s string, now time.Time) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false
	}
	if !withinBounds(t, now) {
		return time.Time{}, false
	}
	return t, true
}

// DaysRemaining returns the whole days from now until end, clamped at zero.
func DaysRemaining(end, now time.Time) int {
	days := int(end.Sub(now).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

func withinBounds(t, now time.Time) bool {
	return !t.Before(now.Add(-maxDateAge)) && !t.After(now.Add(maxDateFuture))
}
