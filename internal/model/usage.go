package model

import "time"

// UsagePeriod is the per-account upload counter for one calendar
// month. Rows are created lazily on the first upload attempt of a
// period and never deleted; a rollover simply starts a new row.
type UsagePeriod struct {
	AccountID        string    `json:"account_id"`
	Period           string    `json:"period"` // YYYY-MM
	UploadCount      int       `json:"upload_count"`
	GraceUnlocksUsed int       `json:"grace_unlocks_used"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// UsageStatus is the quota summary reported to clients.
type UsageStatus struct {
	Period           string `json:"period"`
	UploadCount      int    `json:"upload_count"`
	Limit            int    `json:"limit"`
	GraceUnlocksUsed int    `json:"grace_unlocks_used"`
	Remaining        int    `json:"remaining"`
	Unlimited        bool   `json:"unlimited"`
}
