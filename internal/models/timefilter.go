// internal/models/timefilter.go
package models

import (
	"sort"
	"time"
)

// Quarter identifies one fiscal quarter.
type Quarter struct {
	Year int `json:"year"`
	Q    int `json:"q"`
}

// TimeFilter restricts documents to explicit time periods. A TimeFilter is
// never empty by construction: the parser returns nil when a query names no
// period at all.
type TimeFilter struct {
	Start       *time.Time           `json:"start,omitempty"`
	End         *time.Time           `json:"end,omitempty"`
	FiscalYears map[int]struct{}     `json:"-"`
	Quarters    map[Quarter]struct{} `json:"-"`
}

// IsZero reports whether no constraint was recognized.
func (f *TimeFilter) IsZero() bool {
	if f == nil {
		return true
	}
	return f.Start == nil && f.End == nil && len(f.FiscalYears) == 0 && len(f.Quarters) == 0
}

// Years returns the constrained fiscal years in ascending order.
func (f *TimeFilter) Years() []int {
	if f == nil || len(f.FiscalYears) == 0 {
		return nil
	}
	years := make([]int, 0, len(f.FiscalYears))
	for y := range f.FiscalYears {
		years = append(years, y)
	}
	sort.Ints(years)
	return years
}

// AddYear records one fiscal year constraint.
func (f *TimeFilter) AddYear(year int) {
	if f.FiscalYears == nil {
		f.FiscalYears = make(map[int]struct{})
	}
	f.FiscalYears[year] = struct{}{}
}

// AddQuarter records one fiscal quarter constraint. The year is not added
// to FiscalYears: a quarter constraint is narrower than a year constraint,
// and merging the two would stop quarter filters from excluding documents
// in other quarters of the same year.
func (f *TimeFilter) AddQuarter(year, q int) {
	if f.Quarters == nil {
		f.Quarters = make(map[Quarter]struct{})
	}
	f.Quarters[Quarter{Year: year, Q: q}] = struct{}{}
}
