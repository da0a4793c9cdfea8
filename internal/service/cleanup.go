package service

import (
	"context"
	"log"
	"sync"
	"time"

	"capture-relay-api/internal/repository"
	"capture-relay-api/internal/storage"
)

// CleanupConfig holds configuration for the retention sweeper.
type CleanupConfig struct {
	// SweepInterval is how often expired uploads are swept.
	// Default: 1 hour
	SweepInterval time.Duration
}

// DefaultCleanupConfig returns default sweeper configuration.
func DefaultCleanupConfig() CleanupConfig {
	return CleanupConfig{
		SweepInterval: 1 * time.Hour,
	}
}

// CleanupScheduler periodically removes uploads past their retention
// horizon, deleting both the record and the stored object.
type CleanupScheduler struct {
	uploads   repository.UploadRepository
	objects   storage.ObjectStorage
	config    CleanupConfig
	ticker    *time.Ticker
	stopCh    chan struct{}
	stopOnce  sync.Once
	isRunning bool
	mu        sync.Mutex
}

// NewCleanupScheduler creates a new retention sweeper.
func NewCleanupScheduler(uploads repository.UploadRepository, objects storage.ObjectStorage, config CleanupConfig) *CleanupScheduler {
	if config.SweepInterval == 0 {
		config.SweepInterval = 1 * time.Hour
	}

	return &CleanupScheduler{
		uploads: uploads,
		objects: objects,
		config:  config,
		stopCh:  make(chan struct{}),
	}
}

// Start begins the sweeper.
func (s *CleanupScheduler) Start() {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.ticker = time.NewTicker(s.config.SweepInterval)
	s.mu.Unlock()

	log.Printf("[CleanupScheduler] Started - Interval: %v", s.config.SweepInterval)

	go s.run()
}

func (s *CleanupScheduler) run() {
	for {
		select {
		case <-s.ticker.C:
			if _, err := s.RunNow(); err != nil {
				log.Printf("[CleanupScheduler] Error during sweep: %v", err)
			}
		case <-s.stopCh:
			log.Printf("[CleanupScheduler] Stopped")
			return
		}
	}
}

// RunNow sweeps expired uploads immediately and returns how many
// records were removed.
func (s *CleanupScheduler) RunNow() (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	expired, err := s.uploads.DeleteExpired(ctx, time.Now().UTC())
	if err != nil {
		return 0, err
	}

	for _, record := range expired {
		if err := s.objects.Delete(ctx, record.ContentKey); err != nil {
			// Record is already gone; leftover objects are caught by
			// the bucket lifecycle rule.
			log.Printf("[CleanupScheduler] Failed to delete object %s: %v", record.ContentKey, err)
		}
	}

	if len(expired) > 0 {
		log.Printf("[CleanupScheduler] Removed %d expired uploads", len(expired))
	}
	return len(expired), nil
}

// Stop stops the sweeper.
func (s *CleanupScheduler) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		if s.ticker != nil {
			s.ticker.Stop()
		}
		close(s.stopCh)
		s.isRunning = false
	})
}
