package sheet

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/pscheid92/sheetpulse/internal/domain"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const unnamedColumn = "unnamed_column"

var (
	dateKeywords    = []string{"data", "date", "created", "updated", "timestamp"}
	numericKeywords = []string{"valor", "price", "amount", "total", "quantidade", "qtd", "preco"}

	// Tried in order; the first layout that parses wins, so an ambiguous
	// "05/01/2024" reads as day/month.
	dateLayouts = []string{
		"2006-01-02",
		"2/1/2006",
		"1/2/2006",
		"2006-01-02 15:04:05",
		"2/1/2006 15:04:05",
		"1/2/2006 15:04:05",
		"2006-01-02T15:04:05",
		"2006-01-02T15:04:05Z",
	}
)

const dateOutputLayout = "02/01/2006"

// Replaced in tests.
var valueNormalizer = normalizeValue

var errTooManyFields = errors.New("row has more fields than the header")

type columnClass int

const (
	classText columnClass = iota
	classDate
	classNumeric
)

// Report summarizes one normalization pass.
type Report struct {
	Rows      int
	Kept      int
	Blank     int
	Skipped   int
	RowErrors []*domain.RowError
}

// Normalize parses a CSV body and returns the cleaned records in source order.
func Normalize(raw string) ([]domain.Record, error) {
	records, _, err := NormalizeWithReport(raw)
	return records, err
}

// NormalizeWithReport is Normalize plus per-row accounting. Only a body that
// cannot be read as CSV at all returns an error; bad rows are skipped and
// listed in the report.
func NormalizeWithReport(raw string) ([]domain.Record, Report, error) {
	var report Report

	raw = strings.TrimPrefix(raw, "\ufeff")
	if strings.TrimSpace(raw) == "" {
		return []domain.Record{}, report, nil
	}

	reader := csv.NewReader(strings.NewReader(raw))
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, report, toParseError(err)
	}

	names := cleanHeader(header)
	classes := make([]columnClass, len(names))
	for i, name := range names {
		classes[i] = classify(name)
	}

	records := make([]domain.Record, 0)
	for row := 1; ; row++ {
		fields, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, report, toParseError(err)
		}
		report.Rows++

		if isBlankRow(fields) {
			report.Blank++
			continue
		}

		if len(fields) > len(names) {
			report.Skipped++
			report.RowErrors = append(report.RowErrors, &domain.RowError{
				Row: row,
				Err: fmt.Errorf("%w: %d > %d", errTooManyFields, len(fields), len(names)),
			})
			continue
		}

		record, err := buildRecord(names, classes, fields)
		if err != nil {
			report.Skipped++
			report.RowErrors = append(report.RowErrors, &domain.RowError{Row: row, Err: err})
			continue
		}
		records = append(records, record)
		report.Kept++
	}

	return records, report, nil
}

// buildRecord normalizes one row. A panic while normalizing a value costs
// only that row.
func buildRecord(names []string, classes []columnClass, fields []string) (record domain.Record, err error) {
	defer func() {
		if r := recover(); r != nil {
			record, err = nil, fmt.Errorf("normalize row: %v", r)
		}
	}()

	record = make(domain.Record, len(names))
	for i, name := range names {
		value := ""
		if i < len(fields) {
			value = valueNormalizer(classes[i], fields[i])
		}
		record[i] = domain.Field{Name: name, Value: value}
	}
	return record, nil
}

func toParseError(err error) error {
	var csvErr *csv.ParseError
	if errors.As(err, &csvErr) {
		return &domain.ParseError{Line: csvErr.Line, Err: csvErr.Err}
	}
	return &domain.ParseError{Err: err}
}

// cleanHeader trims names, names empty columns, and suffixes repeats with
// _2, _3... so no column silently overwrites another.
func cleanHeader(header []string) []string {
	names := make([]string, len(header))
	seen := make(map[string]int, len(header))
	taken := make(map[string]bool, len(header))

	for i, h := range header {
		name := strings.TrimSpace(h)
		if name == "" {
			name = unnamedColumn
		}

		seen[name]++
		if seen[name] > 1 || taken[name] {
			base := name
			for n := seen[base]; ; n++ {
				candidate := base + "_" + strconv.Itoa(n)
				if !taken[candidate] {
					name = candidate
					seen[base] = n
					break
				}
			}
		}

		taken[name] = true
		names[i] = name
	}
	return names
}

func classify(name string) columnClass {
	lower := strings.ToLower(name)
	if containsAny(lower, dateKeywords) {
		return classDate
	}
	if containsAny(lower, numericKeywords) {
		return classNumeric
	}
	return classText
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

func isBlankRow(fields []string) bool {
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

func normalizeValue(class columnClass, raw string) string {
	value := strings.TrimSpace(raw)
	if value == "" {
		return ""
	}

	switch class {
	case classDate:
		if formatted, ok := formatDate(value); ok {
			return formatted
		}
	case classNumeric:
		if formatted, ok := formatCurrency(value); ok {
			return formatted
		}
	}
	return value
}

func formatDate(value string) (string, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.Format(dateOutputLayout), true
		}
	}
	return "", false
}

// formatCurrency keeps digits, dots and commas, treats every comma as a
// decimal point and renders the result as Brazilian reais ("R$ 1.234,50").
func formatCurrency(value string) (string, bool) {
	var b strings.Builder
	for _, r := range value {
		switch {
		case r >= '0' && r <= '9', r == '.':
			b.WriteRune(r)
		case r == ',':
			b.WriteByte('.')
		}
	}
	if b.Len() == 0 {
		return "", false
	}

	f, err := strconv.ParseFloat(b.String(), 64)
	if err != nil {
		return "", false
	}
	p := message.NewPrinter(language.BrazilianPortuguese)
	return "R$ " + p.Sprintf("%.2f", f), true
}
