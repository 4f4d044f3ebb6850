// Package lockout implements the tiered lockout applied to quiz submissions.
package lockout

import (
	"time"

	"pairspace-backend/internal/models"
)

// Tier locks the quiz for Duration once the failure count reaches Threshold
type Tier struct {
	Threshold int           `yaml:"threshold"`
	Duration  time.Duration `yaml:"duration"`
}

// Policy is an ordered list of tiers. Every matching tier is applied in
// order, so a later tier overrides an earlier one.
type Policy struct {
	MaxAttempts int
	Tiers       []Tier
}

// DefaultPolicy returns 15 minutes after 5 failures and 30 minutes after 8
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 5,
		Tiers: []Tier{
			{Threshold: 5, Duration: 15 * time.Minute},
			{Threshold: 8, Duration: 30 * time.Minute},
		},
	}
}

// LockedUntil returns the lock deadline for a failure count, or nil if no
// tier applies
func (p Policy) LockedUntil(count int, now time.Time) *time.Time {
	var until *time.Time
	for _, t := range p.Tiers {
		if count >= t.Threshold {
			u := now.Add(t.Duration)
			until = &u
		}
	}
	return until
}

// AttemptsLeft returns the remaining attempts before the first lock, never
// below zero
func (p Policy) AttemptsLeft(count int) int {
	left := p.MaxAttempts - count
	if left < 0 {
		return 0
	}
	return left
}

// RecordFailure increments the failure count on a and applies the tiers.
// An existing lock is only replaced when a tier matches.
func (p Policy) RecordFailure(a *models.QuizAttempts, now time.Time) {
	a.Count++
	a.LastAttempt = &now
	if until := p.LockedUntil(a.Count, now); until != nil {
		a.LockedUntil = until
	}
}

// RecordSuccess resets the attempts after a fully correct submission
func (p Policy) RecordSuccess(a *models.QuizAttempts, now time.Time) {
	*a = models.QuizAttempts{Count: 0, LastAttempt: &now}
}
