package expert

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Wednesday 2025-06-11 10:00 local time.
var testNow = time.Date(2025, 6, 11, 10, 0, 0, 0, time.Local)

func TestExtractTime_TomorrowWithClock(t *testing.T) {
	when, found, remainder := ExtractTime("remind me to call mom tomorrow at 5pm", testNow)

	require.True(t, found)
	assert.Equal(t, time.Date(2025, 6, 12, 17, 0, 0, 0, time.Local), when)
	assert.Equal(t, "remind me to call mom", remainder)
}

func TestExtractTime_ClockWithMinutes(t *testing.T) {
	when, found, _ := ExtractTime("dentist at 5:30 pm tomorrow", testNow)

	require.True(t, found)
	assert.Equal(t, 17, when.Hour())
	assert.Equal(t, 30, when.Minute())
	assert.Equal(t, 12, when.Day())
}

func TestExtractTime_TwentyFourHourClock(t *testing.T) {
	when, found, _ := ExtractTime("standup today at 14:30", testNow)

	require.True(t, found)
	assert.Equal(t, 14, when.Hour())
	assert.Equal(t, 30, when.Minute())
	assert.Equal(t, testNow.Day(), when.Day())
}

func TestExtractTime_InMinutes(t *testing.T) {
	when, found, remainder := ExtractTime("remind me to check the oven in 30 minutes", testNow)

	require.True(t, found)
	assert.Equal(t, testNow.Add(30*time.Minute), when)
	assert.Equal(t, "remind me to check the oven", remainder)
}

func TestExtractTime_InDays(t *testing.T) {
	when, found, _ := ExtractTime("water the plants in 3 days", testNow)

	require.True(t, found)
	assert.Equal(t, testNow.Add(72*time.Hour), when)
}

func TestExtractTime_Weekday(t *testing.T) {
	// testNow is a Wednesday; "friday" is two days out.
	when, found, _ := ExtractTime("take out the bins on friday", testNow)

	require.True(t, found)
	assert.Equal(t, time.Friday, when.Weekday())
	assert.Equal(t, 13, when.Day())
	assert.Equal(t, defaultHour, when.Hour())
}

func TestExtractTime_SameWeekdayMeansNextWeek(t *testing.T) {
	when, found, _ := ExtractTime("book the court on wednesday", testNow)

	require.True(t, found)
	assert.Equal(t, time.Wednesday, when.Weekday())
	assert.Equal(t, 18, when.Day())
}

func TestExtractTime_Tonight(t *testing.T) {
	when, found, _ := ExtractTime("movie night tonight", testNow)

	require.True(t, found)
	assert.Equal(t, 20, when.Hour())
	assert.Equal(t, testNow.Day(), when.Day())
}

func TestExtractTime_DayOnlyDefaultsToMorning(t *testing.T) {
	when, found, _ := ExtractTime("pack for the trip tomorrow", testNow)

	require.True(t, found)
	assert.Equal(t, defaultHour, when.Hour())
	assert.Equal(t, 0, when.Minute())
}

func TestExtractTime_DayAfterTomorrow(t *testing.T) {
	when, found, _ := ExtractTime("pick up the parcel day after tomorrow", testNow)

	require.True(t, found)
	assert.Equal(t, 13, when.Day())
}

func TestExtractTime_PastTimeKeptLiteral(t *testing.T) {
	// 8am on the same day is already in the past at 10:00.
	when, found, _ := ExtractTime("log my run today at 8am", testNow)

	require.True(t, found)
	assert.True(t, when.Before(testNow))
	assert.Equal(t, 8, when.Hour())
}

func TestExtractTime_NoExpression(t *testing.T) {
	_, found, remainder := ExtractTime("buy milk", testNow)

	assert.False(t, found)
	assert.Equal(t, "buy milk", remainder)
}

func TestExtractTime_RemainderDropsConnectives(t *testing.T) {
	_, found, remainder := ExtractTime("call the dentist tomorrow at 9am", testNow)

	require.True(t, found)
	assert.Equal(t, "call the dentist", remainder)
}
