package domain

import "time"

// RetryPolicy is the per-job-type retry configuration. Backoff doubles per
// attempt from BaseDelay up to MaxDelay.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// Delay returns the backoff after the given number of completed attempts.
func (p RetryPolicy) Delay(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	delay := p.BaseDelay
	for i := 0; i < attempts; i++ {
		delay *= 2
		if delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	return delay
}

var defaultPolicy = RetryPolicy{MaxAttempts: 3, BaseDelay: 5 * time.Second, MaxDelay: 120 * time.Second}

var policies = map[string]RetryPolicy{
	TypeUploadParse:          {MaxAttempts: 5, BaseDelay: 5 * time.Second, MaxDelay: 120 * time.Second},
	TypeMeshDecimate:         {MaxAttempts: 5, BaseDelay: 5 * time.Second, MaxDelay: 120 * time.Second},
	TypePricingBatch:         {MaxAttempts: 3, BaseDelay: 5 * time.Second, MaxDelay: 120 * time.Second},
	TypePricingRationale:     {MaxAttempts: 3, BaseDelay: 10 * time.Second, MaxDelay: 120 * time.Second},
	TypeAdminPricingRevision: {MaxAttempts: 2, BaseDelay: 10 * time.Second, MaxDelay: 60 * time.Second},
}

// PolicyFor returns the retry policy for a job type.
func PolicyFor(jobType string) RetryPolicy {
	if p, ok := policies[jobType]; ok {
		return p
	}
	return defaultPolicy
}
