package repository

import (
	"context"
	"errors"
	"time"

	"capture-relay-api/internal/model"
)

// Sentinel errors shared by all backends.
var (
	ErrAccountNotFound       = errors.New("account not found")
	ErrUploadNotFound        = errors.New("upload not found")
	ErrUsageNotFound         = errors.New("usage period not found")
	ErrGraceUnlocksExhausted = errors.New("grace unlocks exhausted")
)

// AccountRepository reads the account directory.
type AccountRepository interface {
	// GetAccount returns the account, or ErrAccountNotFound.
	GetAccount(ctx context.Context, accountID string) (*model.Account, error)
}

// AccountRegistrar creates accounts. Only the embedded store supports
// this; an external directory is read-only.
type AccountRegistrar interface {
	CreateAccount(ctx context.Context, account *model.Account) error
}

// UsageRepository is the per-account, per-period upload ledger.
type UsageRepository interface {
	// GetOrInitUsage returns the period row, creating a zeroed one if
	// missing. Safe under concurrent first-use.
	GetOrInitUsage(ctx context.Context, accountID, period string) (*model.UsagePeriod, error)

	// IncrementUploadCount atomically adds one to the period's upload
	// count. Called only after a capture has been durably accepted.
	IncrementUploadCount(ctx context.Context, accountID, period string) error

	// UseGraceUnlock atomically consumes one grace unlock, failing with
	// ErrGraceUnlocksExhausted once maxUnlocks is reached.
	UseGraceUnlock(ctx context.Context, accountID, period string, maxUnlocks int) (*model.UsagePeriod, error)
}

// UploadRepository stores authoritative upload records.
type UploadRepository interface {
	// InsertUpload persists a new record.
	InsertUpload(ctx context.Context, record *model.UploadRecord) error

	// GetUpload returns one record, or ErrUploadNotFound.
	GetUpload(ctx context.Context, accountID, imageID string) (*model.UploadRecord, error)

	// DeleteUpload removes a record. Used to compensate a failed
	// storage write and by the retention sweeper.
	DeleteUpload(ctx context.Context, accountID, imageID string) error

	// ListUploads returns an account's records, newest first.
	ListUploads(ctx context.Context, accountID string) ([]model.UploadRecord, error)

	// DeleteExpired removes records whose retention horizon has passed
	// and returns them so stored objects can be cleaned up too.
	DeleteExpired(ctx context.Context, now time.Time) ([]model.UploadRecord, error)

	// Stats returns counters about the upload store.
	Stats(ctx context.Context) (map[string]interface{}, error)

	// Close closes the underlying connection.
	Close() error
}
