// Package quota computes effective monthly upload limits. All
// functions are pure and safe for concurrent use; they are called on
// every ingestion attempt.
package quota

import (
	"time"

	"capture-relay-api/internal/model"
)

const (
	// Unlimited is the sentinel limit for unbounded accounts.
	Unlimited = 999999

	// BaseMonthlyLimit is the free-tier allowance per calendar month.
	BaseMonthlyLimit = 10

	// GraceUnlockBonus is the additional allowance granted per grace
	// unlock within a period.
	GraceUnlockBonus = 10

	// MaxGraceUnlocks bounds how many unlocks a period may accumulate.
	MaxGraceUnlocks = 2
)

// PeriodKey returns the calendar-month key (YYYY-MM) for t.
func PeriodKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// EffectiveLimit computes the upload ceiling for the current period.
// Premium accounts and accounts still in their signup month are
// unbounded; everyone else gets the base limit plus the grace-unlock
// bonus, capped at MaxGraceUnlocks bonuses.
func EffectiveLimit(tier model.Tier, accountCreatedPeriod, currentPeriod string, graceUnlocksUsed int) int {
	if tier == model.TierPremium {
		return Unlimited
	}
	if accountCreatedPeriod == currentPeriod {
		return Unlimited
	}

	unlocks := graceUnlocksUsed
	if unlocks > MaxGraceUnlocks {
		unlocks = MaxGraceUnlocks
	}
	if unlocks < 0 {
		unlocks = 0
	}
	return BaseMonthlyLimit + unlocks*GraceUnlockBonus
}

// WouldExceed reports whether an upload attempt at the given count
// must be rejected under the given limit.
func WouldExceed(uploadCount, limit int) bool {
	if limit == Unlimited {
		return false
	}
	return uploadCount >= limit
}

// CanUseGraceUnlock reports whether another grace unlock is available
// this period.
func CanUseGraceUnlock(graceUnlocksUsed int) bool {
	return graceUnlocksUsed < MaxGraceUnlocks
}
