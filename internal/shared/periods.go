package shared

import (
	"fmt"
	"time"
)

// YearMonth identifies a calendar month. Lines and periods are keyed by it.
type YearMonth struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

// Validate checks the month is a real calendar month in a supported year.
func (ym YearMonth) Validate() error {
	if ym.Month < 1 || ym.Month > 12 {
		return Validation(fmt.Sprintf("month %d out of range 1-12", ym.Month))
	}
	if ym.Year < 2000 || ym.Year > 2100 {
		return Validation(fmt.Sprintf("year %d out of range 2000-2100", ym.Year))
	}
	return nil
}

// Index orders months on a single axis: year*12 + month.
func (ym YearMonth) Index() int {
	return ym.Year*12 + ym.Month
}

// AddMonths returns the month n months later (or earlier when n is negative).
func (ym YearMonth) AddMonths(n int) YearMonth {
	idx := ym.Year*12 + (ym.Month - 1) + n
	return YearMonth{Year: idx / 12, Month: idx%12 + 1}
}

// FirstDay returns midnight UTC of the first day of the month.
func (ym YearMonth) FirstDay() time.Time {
	return time.Date(ym.Year, time.Month(ym.Month), 1, 0, 0, 0, 0, time.UTC)
}

func (ym YearMonth) String() string {
	return fmt.Sprintf("%04d-%02d", ym.Year, ym.Month)
}

// MonthOf returns the calendar month containing t.
func MonthOf(t time.Time) YearMonth {
	return YearMonth{Year: t.Year(), Month: int(t.Month())}
}
