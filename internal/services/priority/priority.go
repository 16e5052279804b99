// Package priority computes job scheduling priorities. A job's
// priority is the weighted sum of a base part fixed at enqueue time
// (timeout and role factors) and a dynamic part recomputed at pop time
// (age and fair-share factors).
package priority

import (
	"math"
	"strings"
	"time"
)

// FactorWeights are the weights applied to each priority factor.
type FactorWeights struct {
	TimeoutFactor   int
	RoleFactor      int
	AgeFactor       int
	FairShareFactor int
}

// DefaultFactorWeights favors short jobs and long waiters. The role
// factor is carried but currently weighted to zero.
func DefaultFactorWeights() FactorWeights {
	return FactorWeights{
		TimeoutFactor:   1000,
		RoleFactor:      0,
		AgeFactor:       2000,
		FairShareFactor: 1000,
	}
}

// DefaultBurstHalfLife is how long a token's burst score takes to halve.
const DefaultBurstHalfLife = time.Minute

// DefaultBurstPenalty scales how strongly bursty tokens are deprioritized.
const DefaultBurstPenalty = 2.0

// RoleMaxTimeout returns the longest job timeout a role may request.
// Jobs above this get a zero timeout factor.
func RoleMaxTimeout(role string) time.Duration {
	switch strings.ToLower(role) {
	case "admin":
		return 60 * time.Minute
	case "developer":
		return 10 * time.Minute
	default:
		return 5 * time.Minute
	}
}

// RoleFactor maps a role to its priority contribution.
func RoleFactor(role string) float64 {
	switch strings.ToLower(role) {
	case "admin":
		return 1.0
	case "developer":
		return 0.5
	default:
		return 0.0
	}
}

// TimeoutFactor rewards short jobs. Jobs exceeding the role maximum,
// or a non-positive maximum, yield zero.
func TimeoutFactor(timeout, roleMaxTimeout time.Duration) float64 {
	maxSeconds := roleMaxTimeout.Seconds()
	timeoutSeconds := timeout.Seconds()

	if maxSeconds <= 0 || timeoutSeconds > maxSeconds {
		return 0.0
	}

	return 1 - timeoutSeconds/maxSeconds
}

// AgeFactor rewards waiting jobs, saturating at 1 once the wait passes
// maxAge. A non-positive maxAge also yields the saturated value.
func AgeFactor(now, queuedAt time.Time, maxAge time.Duration) float64 {
	waitingSeconds := now.Sub(queuedAt).Seconds()
	maxAgeSeconds := maxAge.Seconds()

	if maxAgeSeconds <= 0 || waitingSeconds > maxAgeSeconds {
		return 1.0
	}

	return waitingSeconds / maxAgeSeconds
}

// FairShareFactor penalizes bursty tokens. A score at or below the
// baseline of 1 gets the full factor; above it the factor decays
// exponentially, scaled by the penalty.
func FairShareFactor(burstScore, burstPenalty float64) float64 {
	if burstPenalty <= 0 {
		return 0.0
	}
	if burstScore <= 1 {
		return 1.0
	}
	return math.Exp2(-((burstScore - 1) / burstPenalty))
}

// priorityOverheadBytes approximates the in-memory footprint of a
// JobPriority beyond its token string, for queue byte accounting.
const priorityOverheadBytes = 64

// JobPriority carries a job's enqueue-time priority state.
type JobPriority struct {
	token        string
	queuedAt     time.Time
	basePriority float64

	weights FactorWeights
	scores  *BurstScores
	penalty float64
}

// CalcPriority returns the job's current priority. The dynamic part
// reads the token's burst score as of now, without updating it.
func (p *JobPriority) CalcPriority(now time.Time, maxAge time.Duration) float64 {
	burstScore := p.scores.Get(p.token)
	return p.basePriority +
		float64(p.weights.AgeFactor)*AgeFactor(now, p.queuedAt, maxAge) +
		float64(p.weights.FairShareFactor)*FairShareFactor(burstScore, p.penalty)
}

// WaitingTime returns how long the job has been queued as of now.
func (p *JobPriority) WaitingTime(now time.Time) time.Duration {
	return now.Sub(p.queuedAt)
}

// QueuedAt returns the instant the job entered the queue.
func (p *JobPriority) QueuedAt() time.Time {
	return p.queuedAt
}

// Bytes returns the approximate footprint charged against queue
// capacity for this priority object.
func (p *JobPriority) Bytes() int {
	return priorityOverheadBytes + len(p.token)
}

// Factory creates JobPriority values sharing one burst-score table and
// one weight configuration.
type Factory struct {
	weights FactorWeights
	scores  *BurstScores
	penalty float64
}

// NewFactory creates a priority factory with its own burst-score table.
func NewFactory(weights FactorWeights, burstHalfLife time.Duration, burstPenalty float64) *Factory {
	return &Factory{
		weights: weights,
		scores:  NewBurstScores(burstHalfLife),
		penalty: burstPenalty,
	}
}

// NewDefaultFactory creates a factory with the default weights,
// half-life, and penalty.
func NewDefaultFactory() *Factory {
	return NewFactory(DefaultFactorWeights(), DefaultBurstHalfLife, DefaultBurstPenalty)
}

// BurstScores returns the factory's shared burst-score table.
func (f *Factory) BurstScores() *BurstScores {
	return f.scores
}

// New creates the priority for one job. The base part is computed here
// and never changes.
func (f *Factory) New(token, role string, queuedAt time.Time, timeout time.Duration) *JobPriority {
	base := float64(f.weights.RoleFactor)*RoleFactor(role) +
		float64(f.weights.TimeoutFactor)*TimeoutFactor(timeout, RoleMaxTimeout(role))
	return &JobPriority{
		token:        token,
		queuedAt:     queuedAt,
		basePriority: base,
		weights:      f.weights,
		scores:       f.scores,
		penalty:      f.penalty,
	}
}
