package service

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// maxSecondFactorAttempts is the number of failed second-factor
// verifications a subject may burn per window before the challenge is
// refused outright.
const maxSecondFactorAttempts = 5

// attemptLimiter tracks failed second-factor attempts per subject. Each
// subject gets a token bucket that refills over the window; a failed
// verification consumes a token, and an exhausted bucket means the subject
// must wait out the window. Successful verification resets the subject.
type attemptLimiter struct {
	limiters sync.Map // map[string]*rate.Limiter
	limit    rate.Limit
	burst    int

	mu          sync.Mutex
	lastCleanup time.Time
}

func newAttemptLimiter(attempts int, window time.Duration) *attemptLimiter {
	return &attemptLimiter{
		limit: rate.Limit(float64(attempts) / window.Seconds()),
		burst: attempts,
	}
}

// Allow reports whether the subject still has attempts left. It does not
// consume one; RecordFailure does.
func (al *attemptLimiter) Allow(subject string) bool {
	return al.limiterFor(subject).Tokens() >= 1
}

// RecordFailure burns one attempt for the subject.
func (al *attemptLimiter) RecordFailure(subject string) {
	al.limiterFor(subject).Allow()
}

// Reset forgets the subject's failure history.
func (al *attemptLimiter) Reset(subject string) {
	al.limiters.Delete(subject)
}

func (al *attemptLimiter) limiterFor(subject string) *rate.Limiter {
	if limiter, ok := al.limiters.Load(subject); ok {
		return limiter.(*rate.Limiter)
	}

	limiter := rate.NewLimiter(al.limit, al.burst)
	actual, _ := al.limiters.LoadOrStore(subject, limiter)

	al.maybeCleanup()

	return actual.(*rate.Limiter)
}

// maybeCleanup drops limiters whose buckets have refilled. A full bucket
// means the subject has been quiet for at least a window, so the entry
// carries no state worth keeping.
func (al *attemptLimiter) maybeCleanup() {
	al.mu.Lock()
	defer al.mu.Unlock()

	if time.Since(al.lastCleanup) < 5*time.Minute {
		return
	}
	al.lastCleanup = time.Now()

	al.limiters.Range(func(key, value any) bool {
		limiter := value.(*rate.Limiter)
		if limiter.Tokens() >= float64(al.burst) {
			al.limiters.Delete(key)
		}
		return true
	})
}
