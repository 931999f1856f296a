package ledger

import (
	"sort"
	"time"
)

// =============================================================================
// PERIOD - Inclusive accounting date range
// =============================================================================

// Period is an inclusive day range [Start, End].
type Period struct {
	Start Date
	End   Date
}

// Contains returns true if d is within [Start, End].
func (p Period) Contains(d Date) bool {
	return d.AfterOrEqual(p.Start) && d.BeforeOrEqual(p.End)
}

// IsInverted reports a malformed range whose end precedes its start.
func (p Period) IsInverted() bool {
	return p.End.Before(p.Start)
}

func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + "]"
}

// PeriodType defines how accounting periods are laid out.
type PeriodType string

const (
	PeriodCalendarYear PeriodType = "calendar_year" // Jan 1 - Dec 31
	PeriodAcademicYear PeriodType = "academic_year" // Custom start month (e.g. Sep 1)
	PeriodTerm         PeriodType = "term"          // Explicit term start days within a year
)

// TermStart is a month/day on which a term begins every year.
type TermStart struct {
	Month time.Month
	Day   int
}

// PeriodConfig resolves the accounting period a date falls into.
type PeriodConfig struct {
	Type PeriodType

	// For academic year: the month the year starts (1-12).
	StartMonth time.Month

	// For terms: start days within a calendar year, any order.
	Terms []TermStart
}

// PeriodFor returns the period that contains the given date.
func (pc PeriodConfig) PeriodFor(d Date) Period {
	switch pc.Type {
	case PeriodAcademicYear:
		return pc.academicYearPeriod(d)
	case PeriodTerm:
		if len(pc.Terms) == 0 {
			return Period{Start: StartOfYear(d.Year()), End: EndOfYear(d.Year())}
		}
		return pc.termPeriod(d)
	default:
		return Period{Start: StartOfYear(d.Year()), End: EndOfYear(d.Year())}
	}
}

func (pc PeriodConfig) academicYearPeriod(d Date) Period {
	month := pc.StartMonth
	if month < time.January || month > time.December {
		month = time.January
	}
	start := NewDate(d.Year(), month, 1)
	if d.Before(start) {
		start = NewDate(d.Year()-1, month, 1)
	}
	return Period{Start: start, End: start.AddYears(1).AddDays(-1)}
}

func (pc PeriodConfig) termPeriod(d Date) Period {
	// Candidate starts from the previous, current and next year, sorted.
	var starts []Date
	for _, year := range []int{d.Year() - 1, d.Year(), d.Year() + 1} {
		for _, ts := range pc.Terms {
			starts = append(starts, NewDate(year, ts.Month, ts.Day))
		}
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i].Before(starts[j]) })

	for i := len(starts) - 1; i >= 0; i-- {
		if starts[i].BeforeOrEqual(d) {
			end := starts[i].AddYears(1).AddDays(-1)
			if i+1 < len(starts) {
				end = starts[i+1].AddDays(-1)
			}
			return Period{Start: starts[i], End: end}
		}
	}
	return Period{Start: StartOfYear(d.Year()), End: EndOfYear(d.Year())}
}

// NextPeriod returns the period following p under this config.
func (pc PeriodConfig) NextPeriod(p Period) Period {
	return pc.PeriodFor(p.End.AddDays(1))
}

// PreviousPeriod returns the period before p under this config.
func (pc PeriodConfig) PreviousPeriod(p Period) Period {
	return pc.PeriodFor(p.Start.AddDays(-1))
}
