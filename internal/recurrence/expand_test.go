package recurrence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Monday 2025-01-20 09:00 UTC anchors most cases so weekday expectations stay
// readable.
var monday9 = time.Date(2025, time.January, 20, 9, 0, 0, 0, time.UTC)

func TestExpand_Frequencies(t *testing.T) {
	t.Parallel()

	windowStart := monday9.AddDate(0, 0, -1)
	windowEnd := monday9.AddDate(0, 0, 21)

	tests := []struct {
		name     string
		rule     Rule
		expected int
		check    func(t *testing.T, instants []time.Time)
	}{
		{
			name:     "never yields the start instant once",
			rule:     Rule{Start: monday9, Frequency: FrequencyNever},
			expected: 1,
			check: func(t *testing.T, instants []time.Time) {
				assert.True(t, instants[0].Equal(monday9))
			},
		},
		{
			name:     "daily yields one occurrence per day",
			rule:     Rule{Start: monday9, Frequency: FrequencyDaily, Interval: 1},
			expected: 21,
			check: func(t *testing.T, instants []time.Time) {
				assert.True(t, instants[0].Equal(monday9))
				assert.True(t, instants[1].Equal(monday9.AddDate(0, 0, 1)))
				assert.True(t, instants[20].Equal(monday9.AddDate(0, 0, 20)))
			},
		},
		{
			name:     "daily honors the interval",
			rule:     Rule{Start: monday9, Frequency: FrequencyDaily, Interval: 2},
			expected: 11,
			check: func(t *testing.T, instants []time.Time) {
				assert.True(t, instants[1].Equal(monday9.AddDate(0, 0, 2)))
			},
		},
		{
			name:     "workday skips weekends",
			rule:     Rule{Start: monday9, Frequency: FrequencyWorkday},
			expected: 15,
			check: func(t *testing.T, instants []time.Time) {
				for _, instant := range instants {
					day := instant.Weekday()
					assert.NotEqual(t, time.Saturday, day)
					assert.NotEqual(t, time.Sunday, day)
				}
			},
		},
		{
			name:     "weekly infers weekday from start",
			rule:     Rule{Start: monday9, Frequency: FrequencyWeekly, Interval: 1},
			expected: 3,
			check: func(t *testing.T, instants []time.Time) {
				for _, instant := range instants {
					assert.Equal(t, time.Monday, instant.Weekday())
				}
			},
		},
		{
			name: "weekly respects a multi day selection",
			rule: Rule{
				Start:     monday9,
				Frequency: FrequencyWeekly,
				Interval:  1,
				Weekdays:  []time.Weekday{time.Monday, time.Wednesday, time.Friday},
			},
			expected: 9,
		},
		{
			name:     "fortnightly forces a two week stride",
			rule:     Rule{Start: monday9, Frequency: FrequencyFortnightly, Interval: 1},
			expected: 2,
			check: func(t *testing.T, instants []time.Time) {
				assert.True(t, instants[0].Equal(monday9))
				assert.True(t, instants[1].Equal(monday9.AddDate(0, 0, 14)))
			},
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			instants, err := Expand(tc.rule, windowStart, windowEnd)
			require.NoError(t, err)
			require.Len(t, instants, tc.expected)
			for i := 1; i < len(instants); i++ {
				assert.True(t, instants[i-1].Before(instants[i]), "instants must be strictly ascending")
			}
			if tc.check != nil {
				tc.check(t, instants)
			}
		})
	}
}

func TestExpand_WindowIsHalfOpen(t *testing.T) {
	t.Parallel()

	rule := Rule{Start: monday9, Frequency: FrequencyWeekly, Interval: 1}

	instants, err := Expand(rule, monday9, monday9.AddDate(0, 0, 7))
	require.NoError(t, err)
	require.Len(t, instants, 1, "start boundary is inclusive, end boundary exclusive")
	assert.True(t, instants[0].Equal(monday9))
}

func TestExpand_UntilIsExclusive(t *testing.T) {
	t.Parallel()

	until := monday9.AddDate(0, 0, 14)
	rule := Rule{Start: monday9, Frequency: FrequencyWeekly, Interval: 1, Until: &until}

	instants, err := Expand(rule, monday9, monday9.AddDate(0, 0, 28))
	require.NoError(t, err)
	require.Len(t, instants, 2)
	assert.True(t, instants[1].Equal(monday9.AddDate(0, 0, 7)))
}

func TestExpand_NeverOutsideWindow(t *testing.T) {
	t.Parallel()

	rule := Rule{Start: monday9, Frequency: FrequencyNever}

	instants, err := Expand(rule, monday9.AddDate(0, 0, 1), monday9.AddDate(0, 0, 2))
	require.NoError(t, err)
	assert.Empty(t, instants)
}

func TestExpand_InvalidWindow(t *testing.T) {
	t.Parallel()

	rule := Rule{Start: monday9, Frequency: FrequencyDaily}

	_, err := Expand(rule, monday9, monday9.AddDate(0, 0, -1))
	assert.ErrorIs(t, err, ErrInvalidWindow)
}

func TestExpand_InvalidFrequency(t *testing.T) {
	t.Parallel()

	rule := Rule{Start: monday9, Frequency: Frequency("HOURLY")}

	_, err := Expand(rule, monday9, monday9.AddDate(0, 0, 1))
	assert.ErrorIs(t, err, ErrInvalidFrequency)
}

func TestExpand_GuardsOversizedWindows(t *testing.T) {
	t.Parallel()

	rule := Rule{Start: monday9, Frequency: FrequencyDaily, Interval: 1}

	_, err := Expand(rule, monday9, monday9.AddDate(0, 0, MaxOccurrences+5))
	assert.ErrorIs(t, err, ErrWindowTooLarge)
}

func TestExpand_FixedUTCIncrementsAcrossDST(t *testing.T) {
	t.Parallel()

	// 2025-03-08 -> 2025-03-10 spans the US spring-forward transition. The
	// UTC time-of-day must not shift.
	start := time.Date(2025, time.March, 7, 17, 0, 0, 0, time.UTC)
	rule := Rule{Start: start, Frequency: FrequencyDaily, Interval: 1}

	instants, err := Expand(rule, start, start.AddDate(0, 0, 4))
	require.NoError(t, err)
	require.Len(t, instants, 4)
	for _, instant := range instants {
		assert.Equal(t, 17, instant.Hour())
	}
}

func TestContains(t *testing.T) {
	t.Parallel()

	rule := Rule{Start: monday9, Frequency: FrequencyWeekly, Interval: 1}

	ok, err := Contains(rule, monday9.AddDate(0, 0, 7))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Contains(rule, monday9.AddDate(0, 0, 7).Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = Contains(rule, monday9.AddDate(0, 0, -7))
	require.NoError(t, err)
	assert.False(t, ok, "instants before the series start never match")

	until := monday9.AddDate(0, 0, 14)
	bounded := Rule{Start: monday9, Frequency: FrequencyWeekly, Interval: 1, Until: &until}
	ok, err = Contains(bounded, until)
	require.NoError(t, err)
	assert.False(t, ok, "until is an exclusive upper bound")
}

func TestParseFrequency(t *testing.T) {
	t.Parallel()

	for _, value := range []string{"NEVER", "DAILY", "WORKDAY", "WEEKLY", "FORTNIGHTLY"} {
		freq, err := ParseFrequency(value)
		require.NoError(t, err)
		assert.Equal(t, Frequency(value), freq)
	}

	_, err := ParseFrequency("MONTHLY")
	assert.ErrorIs(t, err, ErrInvalidFrequency)
}
