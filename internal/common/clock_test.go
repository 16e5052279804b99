package common

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSystemClockTimeZone(t *testing.T) {
	clock := NewSystemClock()
	now := clock.Now()
	assert.Equal(t, SchedulerTimeZone, now.Location().String())
}

func TestManualClock(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := NewManualClock(start)
	assert.True(t, clock.Now().Equal(start))

	clock.Advance(90 * time.Second)
	assert.True(t, clock.Now().Equal(start.Add(90*time.Second)))

	later := start.Add(time.Hour)
	clock.Set(later)
	assert.True(t, clock.Now().Equal(later))
}

func TestTimestampRoundTrip(t *testing.T) {
	ts := time.Date(2025, 6, 1, 12, 0, 1, 123456789, time.UTC)
	formatted := FormatTimestamp(ts)
	assert.Equal(t, "2025-06-01T12:00:01.123456789Z", formatted)

	parsed, err := ParseTimestamp(formatted)
	require.NoError(t, err)
	assert.True(t, parsed.Equal(ts))

	_, err = ParseTimestamp("not-a-timestamp")
	assert.Error(t, err)
}
