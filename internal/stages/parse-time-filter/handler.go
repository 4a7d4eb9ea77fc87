// internal/stages/parse-time-filter/handler.go
package parsetimefilter

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"

	"finqa-retrieval/internal/common/logger"
	"finqa-retrieval/internal/models"
)

const StageName = "parse-time-filter"

var (
	ErrNilInput = errors.New("nil input")
)

// Temporal expression patterns. Range and relative phrases run before the
// bare-year pattern so their digits are not re-read as standalone years.
var (
	yearRangePattern   = regexp.MustCompile(`(?i)\bfrom\s+(\d{4})\s+to\s+(\d{4})\b`)
	sincePattern       = regexp.MustCompile(`(?i)\bsince\s+(\d{4})\b`)
	quarterPattern     = regexp.MustCompile(`(?i)\bq([1-4])\s+(?:fy\s*)?(\d{4})\b`)
	fiscalYearPattern  = regexp.MustCompile(`(?i)\b(?:fy\s*|fiscal\s+(?:year\s+)?)(\d{4})\b`)
	lastNYearsPattern  = regexp.MustCompile(`(?i)\blast\s+(\d+)\s+years?\b`)
	lastYearPattern    = regexp.MustCompile(`(?i)\blast\s+year\b`)
	lastQuarterPattern = regexp.MustCompile(`(?i)\blast\s+quarter\b`)
	bareYearPattern    = regexp.MustCompile(`\b(20\d{2})\b`)
)

// Document metadata keys carrying time information.
const (
	metaFiscalYear    = "fiscal_year"
	metaFiscalQuarter = "fiscal_quarter"
	metaDate          = "date"
	metaFilingDate    = "filing_date"
)

type Handler struct {
	config *Config
	logger logger.Logger
	now    func() time.Time
}

func NewHandler(config *Config, log logger.Logger) *Handler {
	return &Handler{
		config: config,
		logger: log.WithFields(map[string]interface{}{"stage": StageName}),
		now:    time.Now,
	}
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if input == nil {
		return nil, ErrNilInput
	}
	return h.execute(ctx, input)
}

func (h *Handler) execute(_ context.Context, input *Input) (*Output, error) {
	filter, expressions := h.parseQuery(input.Query)
	if filter == nil {
		h.logger.Debug("no temporal expression recognized", map[string]interface{}{
			"queryLength": len(input.Query),
		})
		return &Output{}, nil
	}

	h.logger.Info("time filter parsed", map[string]interface{}{
		"expressions": expressions,
		"years":       filter.Years(),
		"quarters":    len(filter.Quarters),
		"hasStart":    filter.Start != nil,
		"hasEnd":      filter.End != nil,
	})

	return &Output{Filter: filter, Expressions: expressions}, nil
}

// span marks a matched region of the query so overlapping patterns do not
// double-report the same digits.
type span struct {
	start, end int
}

func overlaps(s span, used []span) bool {
	for _, u := range used {
		if s.start < u.end && u.start < s.end {
			return true
		}
	}
	return false
}

func (h *Handler) parseQuery(query string) (*models.TimeFilter, []string) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	filter := &models.TimeFilter{}
	var expressions []string
	var used []span

	// from YYYY to YYYY: inclusive year range.
	for _, m := range yearRangePattern.FindAllStringSubmatchIndex(query, -1) {
		from, _ := strconv.Atoi(query[m[2]:m[3]])
		to, _ := strconv.Atoi(query[m[4]:m[5]])
		if to < from {
			from, to = to, from
		}
		for y := from; y <= to; y++ {
			filter.AddYear(y)
		}
		expressions = append(expressions, query[m[0]:m[1]])
		used = append(used, span{m[0], m[1]})
	}

	// since YYYY: open-ended start plus every year up to the current one.
	for _, m := range sincePattern.FindAllStringSubmatchIndex(query, -1) {
		year, _ := strconv.Atoi(query[m[2]:m[3]])
		start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
		if filter.Start == nil || start.Before(*filter.Start) {
			filter.Start = &start
		}
		for y := year; y <= h.now().Year(); y++ {
			filter.AddYear(y)
		}
		expressions = append(expressions, query[m[0]:m[1]])
		used = append(used, span{m[0], m[1]})
	}

	// Q1 2023 / Q3 FY2024. Runs before the fiscal-year pattern so the year
	// digits stay bound to the quarter.
	for _, m := range quarterPattern.FindAllStringSubmatchIndex(query, -1) {
		q, _ := strconv.Atoi(query[m[2]:m[3]])
		year, _ := strconv.Atoi(query[m[4]:m[5]])
		filter.AddQuarter(year, q)
		expressions = append(expressions, query[m[0]:m[1]])
		used = append(used, span{m[0], m[1]})
	}

	// FY2023 / FY 2023 / fiscal year 2023 / fiscal 2023.
	for _, m := range fiscalYearPattern.FindAllStringSubmatchIndex(query, -1) {
		s := span{m[0], m[1]}
		if overlaps(s, used) {
			continue
		}
		year, _ := strconv.Atoi(query[m[2]:m[3]])
		filter.AddYear(year)
		expressions = append(expressions, query[m[0]:m[1]])
		used = append(used, s)
	}

	// last N years: the N completed years before the current one.
	for _, m := range lastNYearsPattern.FindAllStringSubmatchIndex(query, -1) {
		n, _ := strconv.Atoi(query[m[2]:m[3]])
		if n <= 0 {
			continue
		}
		if n > h.config.MaxRelativeYears {
			n = h.config.MaxRelativeYears
		}
		current := h.now().Year()
		for y := current - n; y < current; y++ {
			filter.AddYear(y)
		}
		expressions = append(expressions, query[m[0]:m[1]])
		used = append(used, span{m[0], m[1]})
	}

	// last year.
	for _, m := range lastYearPattern.FindAllStringIndex(query, -1) {
		s := span{m[0], m[1]}
		if overlaps(s, used) {
			continue
		}
		filter.AddYear(h.now().Year() - 1)
		expressions = append(expressions, query[m[0]:m[1]])
		used = append(used, s)
	}

	// last quarter, with year rollover out of Q1.
	for _, m := range lastQuarterPattern.FindAllStringIndex(query, -1) {
		now := h.now()
		year := now.Year()
		q := (int(now.Month())-1)/3 + 1
		q--
		if q == 0 {
			q = 4
			year--
		}
		filter.AddQuarter(year, q)
		expressions = append(expressions, query[m[0]:m[1]])
		used = append(used, span{m[0], m[1]})
	}

	// Bare 4-digit years 2000-2099, skipping digits already claimed above.
	for _, m := range bareYearPattern.FindAllStringIndex(query, -1) {
		s := span{m[0], m[1]}
		if overlaps(s, used) {
			continue
		}
		year, _ := strconv.Atoi(query[m[0]:m[1]])
		filter.AddYear(year)
		expressions = append(expressions, query[m[0]:m[1]])
		used = append(used, s)
	}

	if filter.IsZero() {
		return nil, nil
	}
	return filter, expressions
}

// ==========================
// Filter Application
// ==========================

// docPeriod is the time information extracted from one document's metadata.
type docPeriod struct {
	year       int
	hasYear    bool
	quarter    int
	hasQuarter bool
	date       time.Time
	hasDate    bool
	malformed  bool
}

// Apply keeps every document except those whose time metadata provably falls
// outside all accepted years, quarters, and date ranges. Documents without
// time metadata always pass, and malformed metadata counts as absent.
func (h *Handler) Apply(filter *models.TimeFilter, docs []models.RetrievedDocument) []models.RetrievedDocument {
	if filter.IsZero() || len(docs) == 0 {
		return docs
	}

	kept := make([]models.RetrievedDocument, 0, len(docs))
	dropped := 0
	malformed := 0
	for _, doc := range docs {
		period := extractPeriod(doc)
		if period.malformed {
			malformed++
			h.logger.Warn("document carries malformed time metadata, keeping unfiltered", map[string]interface{}{
				"source":   string(doc.SourceType),
				"metadata": doc.Metadata,
			})
		}
		if matchesFilter(filter, period) {
			kept = append(kept, doc)
		} else {
			dropped++
		}
	}

	if dropped > 0 || malformed > 0 {
		h.logger.Debug("time filter applied", map[string]interface{}{
			"inputDocs": len(docs),
			"kept":      len(kept),
			"dropped":   dropped,
			"malformed": malformed,
		})
	}
	return kept
}

// matchesFilter reports whether the document's period overlaps at least one
// accepted bucket. A document with no usable time metadata always matches.
func matchesFilter(filter *models.TimeFilter, p docPeriod) bool {
	year := p.year
	hasYear := p.hasYear
	if !hasYear && p.hasDate {
		year = p.date.Year()
		hasYear = true
	}
	if !hasYear {
		return true
	}

	if _, ok := filter.FiscalYears[year]; ok {
		return true
	}

	for q := range filter.Quarters {
		if q.Year != year {
			continue
		}
		// A document without quarter metadata might span the accepted
		// quarter, so only a declared mismatching quarter excludes it.
		if !p.hasQuarter || p.quarter == q.Q {
			return true
		}
	}

	if filter.Start != nil || filter.End != nil {
		if p.hasDate {
			if (filter.Start == nil || !p.date.Before(*filter.Start)) &&
				(filter.End == nil || !p.date.After(*filter.End)) {
				return true
			}
		} else {
			startYear := year
			endYear := year
			if filter.Start != nil {
				startYear = filter.Start.Year()
			}
			if filter.End != nil {
				endYear = filter.End.Year()
			}
			if year >= startYear && year <= endYear {
				return true
			}
		}
	}

	return false
}

func extractPeriod(doc models.RetrievedDocument) docPeriod {
	var p docPeriod
	if len(doc.Metadata) == 0 {
		return p
	}

	if raw, ok := doc.Metadata[metaFiscalYear]; ok {
		if year, ok := parseYearValue(raw); ok {
			p.year = year
			p.hasYear = true
		} else {
			p.malformed = true
		}
	}

	if raw, ok := doc.Metadata[metaFiscalQuarter]; ok {
		if q, ok := parseQuarterValue(raw); ok {
			p.quarter = q
			p.hasQuarter = true
		} else {
			p.malformed = true
		}
	}

	for _, key := range []string{metaDate, metaFilingDate} {
		raw, ok := doc.Metadata[key]
		if !ok {
			continue
		}
		if date, ok := parseDateValue(raw); ok {
			p.date = date
			p.hasDate = true
			break
		}
		p.malformed = true
	}

	return p
}

func parseYearValue(raw interface{}) (int, bool) {
	year := 0
	switch v := raw.(type) {
	case int:
		year = v
	case int64:
		year = int(v)
	case float64:
		if v != float64(int(v)) {
			return 0, false
		}
		year = int(v)
	case string:
		s := strings.TrimSpace(strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(v)), "FY"))
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0, false
		}
		year = n
	default:
		return 0, false
	}
	if year < 1900 || year > 2100 {
		return 0, false
	}
	return year, true
}

func parseQuarterValue(raw interface{}) (int, bool) {
	q := 0
	switch v := raw.(type) {
	case int:
		q = v
	case int64:
		q = int(v)
	case float64:
		if v != float64(int(v)) {
			return 0, false
		}
		q = int(v)
	case string:
		s := strings.TrimSpace(strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(v)), "Q"))
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0, false
		}
		q = n
	default:
		return 0, false
	}
	if q < 1 || q > 4 {
		return 0, false
	}
	return q, true
}

func parseDateValue(raw interface{}) (time.Time, bool) {
	switch v := raw.(type) {
	case time.Time:
		return v, true
	case string:
		s := strings.TrimSpace(v)
		for _, layout := range []string{time.RFC3339, "2006-01-02"} {
			if t, err := time.Parse(layout, s); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}
