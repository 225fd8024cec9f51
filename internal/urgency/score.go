// Package urgency computes the derived urgency score used to rank tasks.
// Scoring is a pure function of (priority, due instant, now); it reads no
// clock and keeps no state, so every call is replayable.
package urgency

import (
	"math"
	"time"

	"github.com/auratask/auratask/internal/domain"
)

// Priority base weights. Monotonic: any URGENT task due within an hour must
// outrank any MEDIUM task due right now, which holds because the gap between
// adjacent weights exceeds what one hour of decay can erase.
const (
	weightUrgent = 100.0
	weightHigh   = 70.0
	weightMedium = 40.0
	weightLow    = 15.0
)

// Time-term shape constants. The exact curve is a tuning choice; the shape
// is what matters: the boost peaks at due-now, vanishes asymptotically for
// far-future tasks, and grows convexly once a task is overdue.
const (
	dueBoost    = 50.0 // added to the base weight when the task is due now
	decayTauHrs = 36.0 // e-folding time of the future-decay term, in hours
	overdueGain = 1.5  // scales the overdue growth term
	overdueExp  = 1.5  // >1 keeps overdue growth convex
)

// Weight returns the base weight for p, or InvalidPriorityError if p is
// outside the enum. Unknown priorities are a caller bug, never defaulted.
func Weight(p domain.Priority) (float64, error) {
	switch p {
	case domain.PriorityUrgent:
		return weightUrgent, nil
	case domain.PriorityHigh:
		return weightHigh, nil
	case domain.PriorityMedium:
		return weightMedium, nil
	case domain.PriorityLow:
		return weightLow, nil
	}
	return 0, &domain.InvalidPriorityError{Priority: p}
}

// Score computes the urgency score for a task due at due, evaluated at now.
// Higher means more urgent. The result is deterministic and finite for due
// instants arbitrarily far in the past or future (time.Time.Sub saturates,
// and the overdue term stays well inside float64 range).
//
//	future:  weight + boost·e^(−h/τ)        h = hours until due
//	overdue: weight + boost + gain·h^1.5    h = hours past due
//
// Both branches meet at h = 0, the maximum of the future branch.
func Score(p domain.Priority, due, now time.Time) (float64, error) {
	weight, err := Weight(p)
	if err != nil {
		return 0, err
	}

	h := due.Sub(now).Hours()

	var timeTerm float64
	if h >= 0 {
		timeTerm = dueBoost * math.Exp(-h/decayTauHrs)
	} else {
		timeTerm = dueBoost + overdueGain*math.Pow(-h, overdueExp)
	}

	score := weight + timeTerm
	if score < 0 {
		score = 0
	}
	return score, nil
}

// Level maps a score onto a coarse human-readable band for display.
func Level(score float64) string {
	switch {
	case score >= weightUrgent+dueBoost:
		return "OVERDUE"
	case score >= weightUrgent:
		return "CRITICAL"
	case score >= weightHigh:
		return "DUE_SOON"
	case score >= weightMedium:
		return "UPCOMING"
	default:
		return "LATER"
	}
}
