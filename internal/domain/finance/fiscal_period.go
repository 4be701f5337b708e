package finance

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// DefaultFiscalYearStartMonth is the month fiscal years begin in when not configured
const DefaultFiscalYearStartMonth = time.July

// PeriodsPerYear is the number of accounting periods in a fiscal year
const PeriodsPerYear = 12

// FiscalCalendar derives fiscal years and periods from calendar dates.
// A fiscal year starts on the first day of StartMonth and runs twelve
// monthly periods.
type FiscalCalendar struct {
	StartMonth time.Month
}

// NewFiscalCalendar creates a calendar starting in the given month (1-12)
func NewFiscalCalendar(startMonth int) (FiscalCalendar, error) {
	if startMonth < 1 || startMonth > 12 {
		return FiscalCalendar{}, fmt.Errorf("fiscal year start month must be 1-12, got %d", startMonth)
	}
	return FiscalCalendar{StartMonth: time.Month(startMonth)}, nil
}

// DefaultFiscalCalendar returns a calendar starting in July
func DefaultFiscalCalendar() FiscalCalendar {
	return FiscalCalendar{StartMonth: DefaultFiscalYearStartMonth}
}

// FiscalPeriod is one monthly period of a fiscal year. Start is inclusive
// and End exclusive, both at midnight UTC.
type FiscalPeriod struct {
	FiscalYear string    `json:"fiscal_year"`
	StartYear  int       `json:"start_year"`
	Number     int       `json:"number"`
	Label      string    `json:"label"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
}

// Contains reports whether t falls inside the period
func (p FiscalPeriod) Contains(t time.Time) bool {
	t = t.UTC()
	return !t.Before(p.Start) && t.Before(p.End)
}

// HasEnded reports whether the period is over as of now
func (p FiscalPeriod) HasEnded(now time.Time) bool {
	return !now.UTC().Before(p.End)
}

func (c FiscalCalendar) startMonth() time.Month {
	if c.StartMonth < time.January || c.StartMonth > time.December {
		return DefaultFiscalYearStartMonth
	}
	return c.StartMonth
}

// FiscalYearStart returns the calendar year in which the fiscal year containing t begins
func (c FiscalCalendar) FiscalYearStart(t time.Time) int {
	t = t.UTC()
	if t.Month() >= c.startMonth() {
		return t.Year()
	}
	return t.Year() - 1
}

// YearLabel formats the fiscal year beginning in startYear, e.g. FY2025/26,
// or FY2025 when the fiscal year matches the calendar year.
func (c FiscalCalendar) YearLabel(startYear int) string {
	if c.startMonth() == time.January {
		return fmt.Sprintf("FY%04d", startYear)
	}
	return fmt.Sprintf("FY%04d/%02d", startYear, (startYear+1)%100)
}

// Period returns the numbered period (1-12) of the fiscal year beginning in startYear
func (c FiscalCalendar) Period(startYear, number int) (FiscalPeriod, error) {
	if number < 1 || number > PeriodsPerYear {
		return FiscalPeriod{}, fmt.Errorf("period number must be 1-%d, got %d", PeriodsPerYear, number)
	}
	start := time.Date(startYear, c.startMonth(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, number-1, 0)
	yearLabel := c.YearLabel(startYear)
	return FiscalPeriod{
		FiscalYear: yearLabel,
		StartYear:  startYear,
		Number:     number,
		Label:      fmt.Sprintf("%s-P%02d", yearLabel, number),
		Start:      start,
		End:        start.AddDate(0, 1, 0),
	}, nil
}

// PeriodFor returns the fiscal period containing t
func (c FiscalCalendar) PeriodFor(t time.Time) FiscalPeriod {
	t = t.UTC()
	startYear := c.FiscalYearStart(t)
	number := (int(t.Month())-int(c.startMonth())+12)%12 + 1
	p, _ := c.Period(startYear, number)
	return p
}

var (
	periodLabelPattern = regexp.MustCompile(`^FY(\d{4})(?:/(\d{2}))?-P(\d{2})$`)
	yearLabelPattern   = regexp.MustCompile(`^FY(\d{4})(?:/(\d{2}))?$`)
)

// ParsePeriod parses a label produced by PeriodFor
func (c FiscalCalendar) ParsePeriod(label string) (FiscalPeriod, error) {
	m := periodLabelPattern.FindStringSubmatch(label)
	if m == nil {
		return FiscalPeriod{}, ErrInvalidPeriodLabel.WithDetail("label", label)
	}
	startYear, _ := strconv.Atoi(m[1])
	number, _ := strconv.Atoi(m[3])
	p, err := c.Period(startYear, number)
	if err != nil {
		return FiscalPeriod{}, ErrInvalidPeriodLabel.WithDetail("label", label)
	}
	if p.Label != label {
		return FiscalPeriod{}, ErrInvalidPeriodLabel.WithDetail("label", label)
	}
	return p, nil
}

// ParseYear returns the starting calendar year of a fiscal year label
func (c FiscalCalendar) ParseYear(label string) (int, error) {
	m := yearLabelPattern.FindStringSubmatch(label)
	if m == nil {
		return 0, ErrInvalidPeriodLabel.WithDetail("label", label)
	}
	startYear, _ := strconv.Atoi(m[1])
	if c.YearLabel(startYear) != label {
		return 0, ErrInvalidPeriodLabel.WithDetail("label", label)
	}
	return startYear, nil
}

// PeriodStatus answers whether a fiscal period is closed for posting
type PeriodStatus interface {
	IsClosed(periodLabel string) bool
}

// OpenPeriods treats every period as open
type OpenPeriods struct{}

// IsClosed always returns false
func (OpenPeriods) IsClosed(string) bool { return false }
