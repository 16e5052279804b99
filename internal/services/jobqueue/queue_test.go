package jobqueue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/photonqc/scheduler/internal/common"
	"github.com/photonqc/scheduler/internal/services/priority"
)

func testOptions() Options {
	return Options{
		CapacityBytes:        1 << 20,
		MaxJobsToConsider:    10,
		MaxWaitingTimePerJob: 30 * time.Minute,
		MaxConcurrentJobsPerToken: map[string]int{
			"admin":     1000,
			"developer": 10,
			"guest":     5,
		},
	}
}

func newTestQueue(t *testing.T, opts Options) (*Queue, *common.ManualClock) {
	t.Helper()
	clock := common.NewManualClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	return NewQueue(opts, clock, priority.NewDefaultFactory()), clock
}

func TestQueuePushPop(t *testing.T) {
	q, clock := newTestQueue(t, testOptions())

	ok, err := q.TryPush("job-1", []byte("prog-1"), "tok", "guest", clock.Now(), time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, q.Len())
	assert.Equal(t, 1, q.TokenJobCount("tok"))

	jobID, program, ok := q.TryPop()
	require.True(t, ok)
	assert.Equal(t, "job-1", jobID)
	assert.Equal(t, []byte("prog-1"), program)
	assert.Equal(t, 0, q.Len())
	assert.Equal(t, 0, q.CurrentBytes())
	assert.Equal(t, 0, q.TokenJobCount("tok"))
}

func TestQueuePopEmpty(t *testing.T) {
	q, _ := newTestQueue(t, testOptions())
	_, _, ok := q.TryPop()
	assert.False(t, ok)
}

func TestQueueDuplicateJobID(t *testing.T) {
	q, clock := newTestQueue(t, testOptions())

	ok, err := q.TryPush("job-1", nil, "tok", "guest", clock.Now(), time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	// A second push with the same ID is an invariant violation.
	_, err = q.TryPush("job-1", nil, "tok", "guest", clock.Now(), time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "job ID already exists")
}

func TestQueueCapacityRefusal(t *testing.T) {
	opts := testOptions()
	opts.CapacityBytes = 0
	q, clock := newTestQueue(t, opts)

	ok, err := q.TryPush("job-1", []byte("prog"), "tok", "guest", clock.Now(), time.Second)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, q.Len())
}

func TestQueueConcurrencyCap(t *testing.T) {
	opts := testOptions()
	opts.MaxConcurrentJobsPerToken = map[string]int{"guest": 2}
	q, clock := newTestQueue(t, opts)

	for i, id := range []string{"job-1", "job-2"} {
		ok, err := q.TryPush(id, nil, "tok", "guest", clock.Now(), time.Second)
		require.NoError(t, err, "push %d", i)
		require.True(t, ok, "push %d", i)
	}

	// The third job for the same token is refused.
	ok, err := q.TryPush("job-3", nil, "tok", "guest", clock.Now(), time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	// Other tokens are unaffected.
	ok, err = q.TryPush("job-4", nil, "other", "guest", clock.Now(), time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	// Uncapped roles are unaffected.
	ok, err = q.TryPush("job-5", nil, "tok", "admin", clock.Now(), time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestQueueByteAccounting(t *testing.T) {
	q, clock := newTestQueue(t, testOptions())

	ok, err := q.TryPush("job-1", make([]byte, 100), "tok-a", "guest", clock.Now(), time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = q.TryPush("job-2", make([]byte, 200), "tok-b", "guest", clock.Now(), time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	// current_bytes always equals the sum of entry bytes.
	sum := 0
	for _, id := range []string{"job-1", "job-2"} {
		sum += q.entries[id].Bytes()
	}
	assert.Equal(t, sum, q.CurrentBytes())

	require.True(t, q.TryRemove("job-1"))
	assert.Equal(t, q.entries["job-2"].Bytes(), q.CurrentBytes())

	_, _, ok = q.TryPop()
	require.True(t, ok)
	assert.Equal(t, 0, q.CurrentBytes())
}

func TestQueueTryRemove(t *testing.T) {
	q, clock := newTestQueue(t, testOptions())

	ok, err := q.TryPush("job-1", nil, "tok", "guest", clock.Now(), time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	assert.True(t, q.TryRemove("job-1"))
	assert.False(t, q.TryRemove("job-1"))
	assert.False(t, q.TryRemove("never-queued"))
}

func TestQueuePopPrefersHigherPriority(t *testing.T) {
	q, clock := newTestQueue(t, testOptions())

	// Same token and role; the shorter timeout gets the higher priority.
	ok, err := q.TryPush("slow", nil, "tok-a", "guest", clock.Now(), 5*time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = q.TryPush("fast", nil, "tok-b", "guest", clock.Now(), time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	jobID, _, ok := q.TryPop()
	require.True(t, ok)
	assert.Equal(t, "fast", jobID)
}

func TestQueuePopTieBreaksByInsertionOrder(t *testing.T) {
	q, clock := newTestQueue(t, testOptions())

	// Identical priorities; the earlier insertion wins.
	ok, err := q.TryPush("first", nil, "tok-a", "guest", clock.Now(), time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = q.TryPush("second", nil, "tok-b", "guest", clock.Now(), time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	jobID, _, ok := q.TryPop()
	require.True(t, ok)
	assert.Equal(t, "first", jobID)
}

func TestQueuePopBoundedCandidateSet(t *testing.T) {
	opts := testOptions()
	opts.MaxJobsToConsider = 2
	q, clock := newTestQueue(t, opts)

	// The third entry would win on priority but sits outside the
	// candidate prefix.
	ok, err := q.TryPush("a", nil, "tok-a", "guest", clock.Now(), 5*time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = q.TryPush("b", nil, "tok-b", "guest", clock.Now(), 4*time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = q.TryPush("c", nil, "tok-c", "guest", clock.Now(), time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	jobID, _, ok := q.TryPop()
	require.True(t, ok)
	assert.Equal(t, "b", jobID)
}

func TestQueueStarvationAvoidance(t *testing.T) {
	opts := testOptions()
	opts.MaxJobsToConsider = 3
	opts.MaxWaitingTimePerJob = 30 * time.Minute

	clock := common.NewManualClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	q := NewQueue(opts, clock, priority.NewDefaultFactory())
	now := clock.Now()

	push := func(id, role string, queuedAgo time.Duration, timeout time.Duration) {
		t.Helper()
		ok, err := q.TryPush(id, nil, "tok-"+id, role, now.Add(-queuedAgo), timeout)
		require.NoError(t, err)
		require.True(t, ok)
	}

	push("admin-20m", "admin", 20*time.Minute, time.Millisecond)
	push("dev-40m-a", "developer", 40*time.Minute, 900*time.Millisecond)
	push("dev-40m-b", "developer", 40*time.Minute, time.Second)
	push("guest-35m", "guest", 35*time.Minute, time.Second)
	push("admin-60m", "admin", 60*time.Minute, time.Second)

	// Jobs waiting past the cap drain in insertion order before the
	// high-priority newcomer gets a turn.
	want := []string{"dev-40m-a", "dev-40m-b", "guest-35m", "admin-60m", "admin-20m"}
	for i, expected := range want {
		jobID, _, ok := q.TryPop()
		require.True(t, ok, "pop %d", i)
		assert.Equal(t, expected, jobID, "pop %d", i)
	}
	_, _, ok := q.TryPop()
	assert.False(t, ok)
}

func TestContainerPerBackend(t *testing.T) {
	clock := common.NewManualClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	c := NewContainer([]string{"qpu", "emulator"}, testOptions(), clock, false)

	assert.True(t, c.Contains("qpu"))
	assert.True(t, c.Contains("emulator"))
	assert.False(t, c.Contains("nope"))

	_, err := c.Get("nope")
	assert.ErrorIs(t, err, ErrUnknownBackend)

	qpu, err := c.Get("qpu")
	require.NoError(t, err)
	emulator, err := c.Get("emulator")
	require.NoError(t, err)
	assert.NotSame(t, qpu, emulator)
	assert.ElementsMatch(t, []string{"qpu", "emulator"}, c.Backends())
}

func TestContainerUnified(t *testing.T) {
	clock := common.NewManualClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	c := NewContainer([]string{"qpu", "emulator"}, testOptions(), clock, true)

	// Every backend name resolves to the single shared queue.
	assert.True(t, c.Contains("anything"))
	a, err := c.Get("qpu")
	require.NoError(t, err)
	b, err := c.Get("made-up")
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Equal(t, []string{"all"}, c.Backends())
}
