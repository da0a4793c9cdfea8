package model

import "time"

// Tier is an account's subscription class. It determines the base
// monthly upload quota.
type Tier string

const (
	TierFree    Tier = "free"
	TierPremium Tier = "premium"
)

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	return t == TierFree || t == TierPremium
}

// Account is the owning identity for captured uploads. The account
// directory is normally an external system (the main SaaS user
// database); this service only reads tier and creation time.
type Account struct {
	ID        string    `json:"id"`
	Tier      Tier      `json:"tier"`
	CreatedAt time.Time `json:"created_at"`
}
