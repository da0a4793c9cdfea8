package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"capture-relay-api/internal/imaging"
	"capture-relay-api/internal/model"
	"capture-relay-api/internal/quota"
	"capture-relay-api/internal/relay"
	"capture-relay-api/internal/repository"
	"capture-relay-api/internal/storage"
	"capture-relay-api/pkg/uid"
)

// ErrStorageWrite marks a failed durable write. Transient: the whole
// ingestion attempt is safe to retry because no counter was
// incremented and no relay event was sent.
var ErrStorageWrite = errors.New("storage write failed")

// QuotaExceededError rejects an ingestion attempt before any side
// effect. Carries the numbers the client needs to offer an upgrade or
// grace-unlock path.
type QuotaExceededError struct {
	UploadCount int
	Limit       int
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded: %d of %d uploads used this period", e.UploadCount, e.Limit)
}

// IngestInput is one raw capture submitted for ingestion.
type IngestInput struct {
	AccountID   string
	Data        []byte
	ClientHash  string // optional uploader-side content fingerprint
	Side        string // optional: "R" or "L"
	Description string
}

// IngestResult reports an accepted capture.
type IngestResult struct {
	Record      *model.UploadRecord
	UploadCount int
	Limit       int
}

// CaptureService ingests captured images: admission control, bounded
// recompression, durable persistence, then a best-effort relay
// publish. Stateless per request; the usage row is the only shared
// mutable resource and is mutated through atomic repository updates.
type CaptureService struct {
	accounts  repository.AccountRepository
	usage     repository.UsageRepository
	uploads   repository.UploadRepository
	objects   storage.ObjectStorage
	publisher relay.Publisher
	processor *imaging.Processor
	retention time.Duration

	now func() time.Time
}

// NewCaptureService creates the ingestion service. retention is the
// fixed horizon after which uploads expire.
func NewCaptureService(
	accounts repository.AccountRepository,
	usage repository.UsageRepository,
	uploads repository.UploadRepository,
	objects storage.ObjectStorage,
	publisher relay.Publisher,
	processor *imaging.Processor,
	retention time.Duration,
) *CaptureService {
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return &CaptureService{
		accounts:  accounts,
		usage:     usage,
		uploads:   uploads,
		objects:   objects,
		publisher: publisher,
		processor: processor,
		retention: retention,
		now:       time.Now,
	}
}

// Ingest runs the full capture pipeline. Quota and decode failures
// happen before any durable side effect, so resubmission is always
// safe. The relay publish is best-effort: its failure is logged,
// never returned.
func (s *CaptureService) Ingest(ctx context.Context, in IngestInput) (*IngestResult, error) {
	account, err := s.accounts.GetAccount(ctx, in.AccountID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	period := quota.PeriodKey(now)

	usage, err := s.usage.GetOrInitUsage(ctx, in.AccountID, period)
	if err != nil {
		return nil, err
	}

	limit := quota.EffectiveLimit(account.Tier, quota.PeriodKey(account.CreatedAt), period, usage.GraceUnlocksUsed)
	if quota.WouldExceed(usage.UploadCount, limit) {
		return nil, &QuotaExceededError{UploadCount: usage.UploadCount, Limit: limit}
	}

	// Admission granted; only now do the expensive work.
	processed, err := s.processor.Process(ctx, in.Data)
	if err != nil {
		return nil, err
	}

	// Identifier and storage key are derived exactly once. Retrying a
	// downstream step never mints a second key for the same capture.
	imageID := uid.Image()
	contentKey := fmt.Sprintf("uploads/%s/%s.jpg", in.AccountID, imageID)

	record := &model.UploadRecord{
		ImageID:     imageID,
		AccountID:   in.AccountID,
		ContentKey:  contentKey,
		SizeBytes:   int64(len(processed.Data)),
		Width:       processed.Width,
		Height:      processed.Height,
		Side:        in.Side,
		Description: in.Description,
		ClientHash:  in.ClientHash,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.retention),
	}

	if err := s.uploads.InsertUpload(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to persist upload record: %w", err)
	}

	if err := s.objects.Put(ctx, contentKey, processed.Data, "image/jpeg"); err != nil {
		// Compensate so a failed capture is never visible in the
		// authoritative list.
		if delErr := s.uploads.DeleteUpload(ctx, in.AccountID, imageID); delErr != nil {
			log.Printf("[CaptureService] Failed to remove record %s after storage failure: %v", imageID, delErr)
		}
		return nil, fmt.Errorf("%w: %v", ErrStorageWrite, err)
	}

	if err := s.usage.IncrementUploadCount(ctx, in.AccountID, period); err != nil {
		return nil, fmt.Errorf("failed to increment usage: %w", err)
	}

	event := model.RelayEvent{
		AccountID:  in.AccountID,
		ImageID:    imageID,
		ContentKey: contentKey,
		Timestamp:  now.UnixMilli(),
	}
	if err := s.publisher.Publish(ctx, in.AccountID, event); err != nil {
		// The capture already succeeded; the consumer falls back to
		// polling the authoritative list.
		log.Printf("[CaptureService] Relay publish failed for %s: %v", imageID, err)
	}

	return &IngestResult{
		Record:      record,
		UploadCount: usage.UploadCount + 1,
		Limit:       limit,
	}, nil
}

// List returns the authoritative upload list, newest first.
func (s *CaptureService) List(ctx context.Context, accountID string) ([]model.UploadRecord, error) {
	if _, err := s.accounts.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	return s.uploads.ListUploads(ctx, accountID)
}

// GetContent resolves an upload's stored bytes for display.
func (s *CaptureService) GetContent(ctx context.Context, accountID, imageID string) ([]byte, string, error) {
	record, err := s.uploads.GetUpload(ctx, accountID, imageID)
	if err != nil {
		return nil, "", err
	}
	return s.objects.Get(ctx, record.ContentKey)
}

// Usage reports the account's quota position for the current period.
func (s *CaptureService) Usage(ctx context.Context, accountID string) (*model.UsageStatus, error) {
	account, err := s.accounts.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	period := quota.PeriodKey(s.now())
	usage, err := s.usage.GetOrInitUsage(ctx, accountID, period)
	if err != nil {
		return nil, err
	}

	limit := quota.EffectiveLimit(account.Tier, quota.PeriodKey(account.CreatedAt), period, usage.GraceUnlocksUsed)
	status := &model.UsageStatus{
		Period:           period,
		UploadCount:      usage.UploadCount,
		Limit:            limit,
		GraceUnlocksUsed: usage.GraceUnlocksUsed,
		Unlimited:        limit == quota.Unlimited,
	}
	if !status.Unlimited {
		status.Remaining = limit - usage.UploadCount
		if status.Remaining < 0 {
			status.Remaining = 0
		}
	}
	return status, nil
}

// GraceUnlock consumes one grace unlock for the current period,
// raising the effective limit by one bonus step.
func (s *CaptureService) GraceUnlock(ctx context.Context, accountID string) (*model.UsageStatus, error) {
	account, err := s.accounts.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	period := quota.PeriodKey(s.now())
	if _, err := s.usage.GetOrInitUsage(ctx, accountID, period); err != nil {
		return nil, err
	}

	usage, err := s.usage.UseGraceUnlock(ctx, accountID, period, quota.MaxGraceUnlocks)
	if err != nil {
		return nil, err
	}

	limit := quota.EffectiveLimit(account.Tier, quota.PeriodKey(account.CreatedAt), period, usage.GraceUnlocksUsed)
	status := &model.UsageStatus{
		Period:           period,
		UploadCount:      usage.UploadCount,
		Limit:            limit,
		GraceUnlocksUsed: usage.GraceUnlocksUsed,
		Unlimited:        limit == quota.Unlimited,
	}
	if !status.Unlimited {
		status.Remaining = limit - usage.UploadCount
		if status.Remaining < 0 {
			status.Remaining = 0
		}
	}
	return status, nil
}
