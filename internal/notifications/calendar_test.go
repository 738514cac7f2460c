package notifications

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/resource-planning/internal/shared"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestPhaseBaseDatesApril2026(t *testing.T) {
	april := shared.YearMonth{Year: 2026, Month: 4}
	cases := map[Phase]time.Time{
		PhasePMRO:       day(2026, time.April, 3),
		PhaseFinance:    day(2026, time.April, 17),
		PhaseEmployee:   day(2026, time.April, 27),
		PhaseRODirector: day(2026, time.April, 28),
	}
	for phase, want := range cases {
		require.Equal(t, want, phase.BaseDate(april), phase)
	}
}

func TestNthWeekdayWhenMonthStartsOnWeekday(t *testing.T) {
	// 1 May 2026 is a Friday.
	require.Equal(t, day(2026, time.May, 1), NthWeekdayOfMonth(2026, time.May, time.Friday, 1))
	require.Equal(t, day(2026, time.May, 15), NthWeekdayOfMonth(2026, time.May, time.Friday, 3))
	require.Equal(t, day(2026, time.May, 4), NthWeekdayOfMonth(2026, time.May, time.Monday, 1))
}

func TestShiftToNextWorkday(t *testing.T) {
	friday := day(2026, time.April, 3)
	require.Equal(t, friday, ShiftToNextWorkday(friday, nil))
	require.Equal(t, day(2026, time.April, 6), ShiftToNextWorkday(friday, []time.Time{friday}))
	require.Equal(t, day(2026, time.April, 7), ShiftToNextWorkday(friday, []time.Time{friday, day(2026, time.April, 6)}))
	require.Equal(t, day(2026, time.April, 6), ShiftToNextWorkday(day(2026, time.April, 4), nil))
}

func TestShiftToNextWorkdayIsBounded(t *testing.T) {
	start := day(2026, time.April, 1)
	var all []time.Time
	for i := 0; i < 30; i++ {
		all = append(all, start.AddDate(0, 0, i))
	}
	require.Equal(t, start.AddDate(0, 0, holidayWindow), ShiftToNextWorkday(start, all))
}

func TestParsePhase(t *testing.T) {
	p, err := ParsePhase("RO_Director")
	require.NoError(t, err)
	require.Equal(t, PhaseRODirector, p)

	_, err = ParsePhase("ro_director")
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestPhaseMessage(t *testing.T) {
	subject, body := PhaseEmployee.Message(shared.YearMonth{Year: 2026, Month: 4}, day(2026, time.April, 27))
	require.Equal(t, "Actuals due 2026-04-27", subject)
	require.Equal(t, "Reminder: Please enter your actuals for 04/2026 by 2026-04-27.", body)
}
