// Package jobqueue implements the per-backend in-memory job queues.
// Entries keep insertion order; popping considers only a bounded
// prefix of that order, taking the earliest over-age entry if one
// exists and the highest-priority entry otherwise.
package jobqueue

import (
	"fmt"
	"time"

	"github.com/samber/lo"

	"github.com/photonqc/scheduler/internal/common"
	"github.com/photonqc/scheduler/internal/services/priority"
)

// entryOverheadBytes approximates the fixed in-memory footprint of a
// queue entry beyond its token, program, and priority object.
const entryOverheadBytes = 96

// Entry is one queued job.
type Entry struct {
	Token    string
	Program  []byte
	Priority *priority.JobPriority
}

// Bytes returns the footprint charged against queue capacity.
func (e *Entry) Bytes() int {
	return entryOverheadBytes + len(e.Token) + len(e.Program) + e.Priority.Bytes()
}

// Options configures a Queue.
type Options struct {
	// CapacityBytes is the byte budget shared by all entries.
	CapacityBytes int
	// MaxJobsToConsider bounds the insertion-order prefix examined by
	// TryPop.
	MaxJobsToConsider int
	// MaxWaitingTimePerJob is both the over-age pop threshold and the
	// age-factor normalizer.
	MaxWaitingTimePerJob time.Duration
	// MaxConcurrentJobsPerToken maps a role to the cap on entries one
	// token may hold at once. Roles absent from the map are uncapped.
	MaxConcurrentJobsPerToken map[string]int
}

// Queue is a single backend's job queue. It is not safe for concurrent
// use; callers serialize through the job manager lock.
type Queue struct {
	opts    Options
	clock   common.Clock
	factory *priority.Factory

	currentBytes int
	order        []string
	entries      map[string]*Entry
	tokenCounts  map[string]int
}

// NewQueue creates a queue sharing the given priority factory and its
// burst-score table.
func NewQueue(opts Options, clock common.Clock, factory *priority.Factory) *Queue {
	return &Queue{
		opts:        opts,
		clock:       clock,
		factory:     factory,
		entries:     make(map[string]*Entry),
		tokenCounts: make(map[string]int),
	}
}

// TryPush enqueues a job. It returns false when the token is at its
// concurrency cap or the entry would exceed the byte capacity. A
// duplicate job ID is an invariant violation and returns an error.
func (q *Queue) TryPush(jobID string, program []byte, token, role string, queuedAt time.Time, timeout time.Duration) (bool, error) {
	if _, exists := q.entries[jobID]; exists {
		return false, fmt.Errorf("failed to push job %s: job ID already exists", jobID)
	}

	if cap, capped := q.opts.MaxConcurrentJobsPerToken[role]; capped && q.tokenCounts[token] >= cap {
		return false, nil
	}

	entry := &Entry{
		Token:    token,
		Program:  program,
		Priority: q.factory.New(token, role, queuedAt, timeout),
	}

	if q.currentBytes+entry.Bytes() > q.opts.CapacityBytes {
		return false, nil
	}

	// The burst score grows only for accepted pushes.
	q.factory.BurstScores().Update(token, queuedAt)

	q.currentBytes += entry.Bytes()
	q.order = append(q.order, jobID)
	q.entries[jobID] = entry
	q.tokenCounts[token]++
	return true, nil
}

// TryPop removes and returns the next job to execute, or ok=false when
// the queue is empty. Only the first MaxJobsToConsider entries in
// insertion order are candidates: the earliest one waiting longer than
// MaxWaitingTimePerJob wins outright; otherwise the candidate with the
// highest priority wins, ties going to the earlier insertion.
func (q *Queue) TryPop() (jobID string, program []byte, ok bool) {
	if len(q.order) == 0 {
		return "", nil, false
	}

	n := min(q.opts.MaxJobsToConsider, len(q.order))
	candidates := q.order[:n]
	now := q.clock.Now()

	picked := ""
	for _, id := range candidates {
		if q.entries[id].Priority.WaitingTime(now) > q.opts.MaxWaitingTimePerJob {
			picked = id
			break
		}
	}

	if picked == "" {
		picked = lo.MaxBy(candidates, func(a, b string) bool {
			return q.entries[a].CalcPriority(now, q.opts.MaxWaitingTimePerJob) >
				q.entries[b].CalcPriority(now, q.opts.MaxWaitingTimePerJob)
		})
	}

	entry := q.entries[picked]
	q.remove(picked, entry)
	return picked, entry.Program, true
}

// CalcPriority returns the entry's current priority.
func (e *Entry) CalcPriority(now time.Time, maxAge time.Duration) float64 {
	return e.Priority.CalcPriority(now, maxAge)
}

// TryRemove removes a specific job from the queue. Returns false when
// the job is not queued here.
func (q *Queue) TryRemove(jobID string) bool {
	entry, exists := q.entries[jobID]
	if !exists {
		return false
	}
	q.remove(jobID, entry)
	return true
}

func (q *Queue) remove(jobID string, entry *Entry) {
	q.currentBytes -= entry.Bytes()
	delete(q.entries, jobID)
	q.order = lo.Without(q.order, jobID)
	q.tokenCounts[entry.Token]--
	if q.tokenCounts[entry.Token] == 0 {
		delete(q.tokenCounts, entry.Token)
	}
}

// Len returns the number of queued entries.
func (q *Queue) Len() int {
	return len(q.order)
}

// CurrentBytes returns the bytes charged against capacity.
func (q *Queue) CurrentBytes() int {
	return q.currentBytes
}

// TokenJobCount returns how many entries the token holds in this queue.
func (q *Queue) TokenJobCount(token string) int {
	return q.tokenCounts[token]
}
