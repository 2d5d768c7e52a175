package tables

import (
	"encoding/json"
	"fmt"
	"html"
	"html/template"
	"math"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// renderContext is what a column formatter sees besides the cell value
type renderContext struct {
	row     map[string]any
	index   int
	filters Filters
}

type formatter func(value any, column Column, rc renderContext) string

var formatters = map[string]formatter{
	"":             renderText,
	"text":         renderText,
	"currency":     renderCurrency,
	"date":         renderDate,
	"bar-currency": renderBarCurrency,
	"candidate":    renderCandidate,
	"committee":    renderCommittee,
	"url":          renderURL,
	"total":        renderTotal,
}

// RenderRow formats every column of row into cell HTML
func RenderRow(columns []Column, row map[string]any, index int, filters Filters) []string {
	rc := renderContext{row: row, index: index, filters: filters}
	cells := make([]string, len(columns))
	for i, column := range columns {
		render, ok := formatters[column.Format]
		if !ok {
			render = renderText
		}
		cells[i] = render(lookup(row, column.Data), column, rc)
	}
	return cells
}

// lookup resolves a dotted data name against a row
func lookup(row map[string]any, name string) any {
	var current any = row
	for _, part := range strings.Split(name, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current = m[part]
	}
	return current
}

func renderText(value any, _ Column, _ renderContext) string {
	return html.EscapeString(stringify(value))
}

func renderCurrency(value any, _ Column, _ renderContext) string {
	return Currency(value)
}

func renderDate(value any, _ Column, _ renderContext) string {
	return Date(value)
}

func renderBarCurrency(value any, _ Column, rc renderContext) string {
	return fmt.Sprintf(`<div data-value="%s" data-row="%d">%s</div>`,
		html.EscapeString(stringify(value)), rc.index, Currency(value))
}

func renderCandidate(value any, _ Column, rc renderContext) string {
	entity, ok := value.(map[string]any)
	if !ok {
		return ""
	}
	href := "/candidate/" + url.PathEscape(stringify(entity["candidate_id"])) + BuildCycle(rc.filters, entity["cycles"])
	return entityLink(stringify(entity["name"]), href, "candidate")
}

func renderCommittee(value any, _ Column, rc renderContext) string {
	entity, ok := value.(map[string]any)
	if !ok {
		return ""
	}
	href := "/committee/" + url.PathEscape(stringify(entity["committee_id"])) + BuildCycle(rc.filters, entity["cycles"])
	return entityLink(stringify(entity["name"]), href, "committee")
}

func entityLink(name, href, category string) string {
	return fmt.Sprintf(`<a href="%s" title="%s" data-category="%s" class="single-link">%s</a>`,
		html.EscapeString(href), html.EscapeString(name), category, html.EscapeString(name))
}

func renderURL(value any, column Column, rc renderContext) string {
	return fmt.Sprintf(`<a href="%s" target="_blank">%s</a>`,
		html.EscapeString(stringify(rc.row[column.URLAttr])), html.EscapeString(stringify(value)))
}

// renderTotal links an aggregate to the transactions behind it for the row's committee and cycle
func renderTotal(value any, column Column, rc renderContext) string {
	query := url.Values{}
	query.Set("committee_id", stringify(rc.row["committee_id"]))
	for _, param := range column.TotalParams {
		query.Set(param, stringify(rc.row[param]))
	}
	if cycle, ok := toInt(rc.row["cycle"]); ok {
		minDate, maxDate := CycleDates(cycle)
		query.Set("min_date", minDate)
		query.Set("max_date", maxDate)
	}

	href := column.TotalPath + "?" + query.Encode()
	return fmt.Sprintf(`<div data-value="%s" data-row="%d"><a title="View individual transactions" href="%s">%s</a></div>`,
		html.EscapeString(stringify(value)), rc.index, html.EscapeString(href), Currency(value))
}

// Currency formats a number as $1,234.56; nil or non-numeric values render empty
func Currency(value any) string {
	amount, ok := toFloat(value)
	if !ok {
		return ""
	}
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	return sign + "$" + humanize.FormatFloat("#,###.##", amount)
}

// Date formats an ISO date or datetime as MM/DD/YYYY
func Date(value any) string {
	t, ok := parseDate(value)
	if !ok {
		return ""
	}
	return t.Format("01/02/2006")
}

// DateSM formats an ISO date as MM/YY
func DateSM(value any) string {
	t, ok := parseDate(value)
	if !ok {
		return ""
	}
	return t.Format("01/06")
}

// DateMD formats an ISO date as "Jan 2006"
func DateMD(value any) string {
	t, ok := parseDate(value)
	if !ok {
		return ""
	}
	return t.Format("Jan 2006")
}

// YearRange returns "first - last", or just first when both are equal
func YearRange(first, last int) string {
	if first == last {
		return strconv.Itoa(first)
	}
	return strconv.Itoa(first) + " - " + strconv.Itoa(last)
}

// FmtYearRange returns the two-year period ending in year, e.g. 1985 -> "1984 - 1985".
// Only integer years are accepted.
func FmtYearRange(value any) (string, bool) {
	year, ok := value.(int)
	if !ok {
		return "", false
	}
	return strconv.Itoa(year-1) + " - " + strconv.Itoa(year), true
}

// FmtFirstLastYear is YearRange for the first and last years of activity
func FmtFirstLastYear(first, last int) string {
	return YearRange(first, last)
}

// LastNCharacters returns the last n characters of value's decimal or string form
func LastNCharacters(value any, n int) string {
	s := stringify(value)
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[len(runes)-n:])
}

// CycleDates returns the first and last day of a two-year election cycle in MM/DD/YYYY
func CycleDates(cycle int) (string, string) {
	return fmt.Sprintf("01/01/%d", cycle-1), fmt.Sprintf("12/31/%d", cycle)
}

// BuildCycle returns "?cycle=N" for the latest filtered cycle the entity was active in,
// or "" when no cycle filter applies.
func BuildCycle(filters Filters, entityCycles any) string {
	selected := filters["cycle"]
	if len(selected) == 0 {
		return ""
	}

	active := make(map[int]bool)
	if list, ok := entityCycles.([]any); ok {
		for _, item := range list {
			if cycle, ok := toInt(item); ok {
				active[cycle] = true
			}
		}
	}

	var matches []int
	for _, value := range selected {
		cycle, err := strconv.Atoi(value)
		if err == nil && active[cycle] {
			matches = append(matches, cycle)
		}
	}
	if len(matches) == 0 {
		return ""
	}
	sort.Ints(matches)
	return "?cycle=" + strconv.Itoa(matches[len(matches)-1])
}

var templateFuncs = template.FuncMap{
	"currency": Currency,
	"date":     Date,
	"dateSM":   DateSM,
	"dateMD":   DateMD,
	"lastN":    LastNCharacters,
	"yearRange": func(value any) string {
		if s, ok := FmtYearRange(toIntOr(value)); ok {
			return s
		}
		return ""
	},
	"firstLastYear": func(first, last any) string {
		a, okA := yearOf(first)
		b, okB := yearOf(last)
		if !okA || !okB {
			return ""
		}
		return FmtFirstLastYear(a, b)
	},
}

func stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case []any:
		parts := make([]string, len(v))
		for i, item := range v {
			parts[i] = stringify(item)
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprint(v)
	}
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil && !math.IsNaN(f)
	default:
		return 0, false
	}
}

func toInt(value any) (int, bool) {
	switch v := value.(type) {
	case json.Number:
		i, err := v.Int64()
		return int(i), err == nil
	case int:
		return v, true
	case float64:
		return int(v), v == math.Trunc(v)
	case string:
		i, err := strconv.Atoi(v)
		return i, err == nil
	default:
		return 0, false
	}
}

// toIntOr converts JSON integers to int and leaves other values as they are
func toIntOr(value any) any {
	if n, ok := value.(json.Number); ok {
		if i, err := n.Int64(); err == nil {
			return int(i)
		}
	}
	return value
}

func yearOf(value any) (int, bool) {
	if t, ok := parseDate(value); ok {
		return t.Year(), true
	}
	return toInt(value)
}

func parseDate(value any) (time.Time, bool) {
	s, ok := value.(string)
	if !ok || s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
