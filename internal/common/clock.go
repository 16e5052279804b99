package common

import (
	"sync"
	"time"
)

// SchedulerTimeZone is the zone every "now" read and every persisted
// timestamp uses. The physical lab and the token database compare
// expiry times in this zone as well.
const SchedulerTimeZone = "Asia/Tokyo"

// Clock is the process-wide time source. All scheduler components read
// time through a Clock so tests can inject deterministic instants.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in the scheduler time zone.
type SystemClock struct {
	loc *time.Location
}

// NewSystemClock loads the scheduler time zone. Falls back to UTC if
// the zone database is unavailable.
func NewSystemClock() *SystemClock {
	loc, err := time.LoadLocation(SchedulerTimeZone)
	if err != nil {
		loc = time.UTC
	}
	return &SystemClock{loc: loc}
}

func (c *SystemClock) Now() time.Time {
	return time.Now().In(c.loc)
}

// ManualClock is a test clock whose instant is set explicitly.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualClock creates a manual clock starting at the given instant.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to the given instant.
func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// FormatTimestamp renders a time in the ISO-8601 form persisted to the
// job table and returned on the wire.
func FormatTimestamp(t time.Time) string {
	return t.Format(time.RFC3339Nano)
}

// ParseTimestamp parses a timestamp previously produced by FormatTimestamp.
func ParseTimestamp(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
