package dataset

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/simland/hdx-scraper-simland/internal/metadata"
)

const dateLayout = "2006-01-02"

// =============================================================================
// VALUE NORMALIZATION
// =============================================================================
// Metadata values are typed by hand into a spreadsheet. The helpers below turn
// them into the values the catalog expects.

// NormalizeLocations splits a groups value on commas and maps every entry
// through aliases.
//
// EXAMPLE:
//
//	Input:  "Simland, Ruritania"
//	Output: ["sld", "ruritania"]
//
// Entries that are not in aliases pass through lower-cased.
func NormalizeLocations(groups string, aliases map[string]string) []string {
	var out []string
	for _, part := range strings.Split(groups, ",") {
		loc := strings.ToLower(strings.TrimSpace(part))
		if loc == "" {
			continue
		}
		if code, ok := aliases[loc]; ok {
			loc = code
		}
		out = appendUnique(out, loc)
	}
	return out
}

// SplitTags splits each value on commas and trims every tag.
//
// EXAMPLE:
//
//	Input:  ["a, b ,c"]
//	Output: ["a", "b", "c"]
func SplitTags(values []string) []string {
	var out []string
	for _, value := range values {
		for _, tag := range strings.Split(value, ",") {
			tag = strings.TrimSpace(tag)
			if tag == "" {
				continue
			}
			out = appendUnique(out, tag)
		}
	}
	return out
}

// ThemeTagsFor returns the tags of the first theme whose prefix matches name.
func ThemeTagsFor(name string, themes []ThemeTags) ([]string, bool) {
	for _, theme := range themes {
		if strings.HasPrefix(name, theme.Prefix) {
			out := make([]string, len(theme.Tags))
			copy(out, theme.Tags)
			return out, true
		}
	}
	return nil, false
}

// FormatIn reports whether format is one of formats, ignoring case and
// surrounding whitespace.
func FormatIn(format string, formats []string) bool {
	format = strings.TrimSpace(format)
	for _, f := range formats {
		if strings.EqualFold(format, f) {
			return true
		}
	}
	return false
}

// periodFromFields derives the time period from the first matching shape:
//  1. dataset_start_date (+ optional dataset_end_date): a date range,
//     ongoing when the end date is empty
//  2. dataset_year: that calendar year
//  3. defaultYear, when non-zero
func periodFromFields(fields *metadata.Fields, defaultYear int) (TimePeriod, error) {
	if start := strings.TrimSpace(fields.Value("dataset_start_date")); start != "" {
		startDate, err := time.Parse(dateLayout, start)
		if err != nil {
			return TimePeriod{}, fmt.Errorf("invalid dataset_start_date %q: %w", start, err)
		}
		var endDate time.Time
		if end := strings.TrimSpace(fields.Value("dataset_end_date")); end != "" {
			endDate, err = time.Parse(dateLayout, end)
			if err != nil {
				return TimePeriod{}, fmt.Errorf("invalid dataset_end_date %q: %w", end, err)
			}
		}
		return RangePeriod(startDate, endDate)
	}

	if year := strings.TrimSpace(fields.Value("dataset_year")); year != "" {
		y, err := strconv.Atoi(year)
		if err != nil {
			return TimePeriod{}, fmt.Errorf("invalid dataset_year %q: %w", year, err)
		}
		return YearPeriod(y), nil
	}

	if defaultYear != 0 {
		return YearPeriod(defaultYear), nil
	}

	return TimePeriod{}, fmt.Errorf("no time period: set dataset_start_date or dataset_year")
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}
