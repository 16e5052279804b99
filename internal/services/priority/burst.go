package priority

import (
	"math"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// burstIdleExpiry is how long an untouched token's score survives in
// the table. After many half-lives the score is indistinguishable from
// the baseline, so idle entries can be dropped instead of kept forever.
const burstIdleExpiry = time.Hour

type burstScoreInfo struct {
	score         float64
	lastUpdatedAt time.Time
}

// BurstScores tracks a per-token burst score that decays exponentially
// with the configured half-life. Scores grow by one on each update,
// so rapid submission pushes a token's score up faster than it decays.
//
// Synchronization note: the table is backed by an expiring cache and is
// safe for concurrent reads, but Update is only called under the job
// manager lock.
type BurstScores struct {
	halfLife time.Duration
	entries  *gocache.Cache
}

// NewBurstScores creates a burst-score table with the given half-life.
func NewBurstScores(halfLife time.Duration) *BurstScores {
	return &BurstScores{
		halfLife: halfLife,
		entries:  gocache.New(burstIdleExpiry, 10*time.Minute),
	}
}

// Update bumps the token's score at the given instant. A token not
// seen before starts at the baseline of 1; an existing score first
// decays for the elapsed time, then grows by one.
func (b *BurstScores) Update(token string, now time.Time) {
	v, ok := b.entries.Get(token)
	if !ok {
		b.entries.Set(token, burstScoreInfo{score: 1.0, lastUpdatedAt: now}, gocache.DefaultExpiration)
		return
	}

	info := v.(burstScoreInfo)
	elapsed := now.Sub(info.lastUpdatedAt)
	decay := math.Exp2(-(elapsed.Seconds() / b.halfLife.Seconds()))
	b.entries.Set(token, burstScoreInfo{
		score:         info.score*decay + 1,
		lastUpdatedAt: now,
	}, gocache.DefaultExpiration)
}

// Get returns the token's score as of its last update. Unseen tokens
// report the baseline of 1.
func (b *BurstScores) Get(token string) float64 {
	v, ok := b.entries.Get(token)
	if !ok {
		return 1.0
	}
	return v.(burstScoreInfo).score
}
