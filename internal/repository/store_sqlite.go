package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	"capture-relay-api/internal/model"

	_ "modernc.org/sqlite" // Pure Go SQLite driver - no CGO required
)

// SQLiteStore implements AccountRepository, AccountRegistrar,
// UsageRepository and UploadRepository on a single SQLite file.
// Thread-safe with WAL mode; counter mutations are single-statement
// updates so there is no read-modify-write window in application
// code.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteStore opens (and if needed initializes) the store.
// dbPath is the path to the SQLite database file (e.g., "./data/captures.db")
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=10000&_busy_timeout=5000", dbPath)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite: %w", err)
	}

	// SQLite connection pool settings
	db.SetMaxOpenConns(1) // SQLite only supports 1 writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := createTables(db); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	log.Printf("[SQLiteStore] Initialized with database: %s", dbPath)
	return &SQLiteStore{db: db}, nil
}

func createTables(db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS capture_accounts (
		id TEXT PRIMARY KEY,
		tier TEXT NOT NULL DEFAULT 'free',
		created_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS capture_usage (
		account_id TEXT NOT NULL,
		period TEXT NOT NULL,
		upload_count INTEGER NOT NULL DEFAULT 0,
		grace_unlocks_used INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		PRIMARY KEY (account_id, period)
	);
	CREATE TABLE IF NOT EXISTS capture_uploads (
		image_id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL,
		content_key TEXT NOT NULL UNIQUE,
		size_bytes INTEGER NOT NULL,
		width INTEGER NOT NULL DEFAULT 0,
		height INTEGER NOT NULL DEFAULT 0,
		side TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		client_hash TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_uploads_account ON capture_uploads(account_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_uploads_expires ON capture_uploads(expires_at);
	`
	_, err := db.Exec(query)
	return err
}

// GetAccount returns the account, or ErrAccountNotFound.
func (s *SQLiteStore) GetAccount(ctx context.Context, accountID string) (*model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT id, tier, created_at FROM capture_accounts WHERE id = ?`

	var account model.Account
	err := s.db.QueryRowContext(ctx, query, accountID).Scan(&account.ID, &account.Tier, &account.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &account, nil
}

// CreateAccount inserts a new account row.
func (s *SQLiteStore) CreateAccount(ctx context.Context, account *model.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `INSERT INTO capture_accounts (id, tier, created_at) VALUES (?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query, account.ID, string(account.Tier), account.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

// GetOrInitUsage returns the period row, creating a zeroed one if
// missing. The insert is an idempotent upsert so concurrent first-use
// cannot double-create.
func (s *SQLiteStore) GetOrInitUsage(ctx context.Context, accountID, period string) (*model.UsagePeriod, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	insert := `
		INSERT INTO capture_usage (account_id, period, upload_count, grace_unlocks_used, created_at, updated_at)
		VALUES (?, ?, 0, 0, ?, ?)
		ON CONFLICT(account_id, period) DO NOTHING`

	if _, err := s.db.ExecContext(ctx, insert, accountID, period, now, now); err != nil {
		return nil, fmt.Errorf("failed to init usage period: %w", err)
	}

	return s.getUsage(ctx, accountID, period)
}

func (s *SQLiteStore) getUsage(ctx context.Context, accountID, period string) (*model.UsagePeriod, error) {
	query := `
		SELECT account_id, period, upload_count, grace_unlocks_used, created_at, updated_at
		FROM capture_usage WHERE account_id = ? AND period = ?`

	var usage model.UsagePeriod
	err := s.db.QueryRowContext(ctx, query, accountID, period).Scan(
		&usage.AccountID,
		&usage.Period,
		&usage.UploadCount,
		&usage.GraceUnlocksUsed,
		&usage.CreatedAt,
		&usage.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrUsageNotFound
		}
		return nil, fmt.Errorf("failed to get usage period: %w", err)
	}
	return &usage, nil
}

// IncrementUploadCount atomically adds one to the period's counter.
// A single UPDATE statement keeps concurrent uploads from losing
// increments.
func (s *SQLiteStore) IncrementUploadCount(ctx context.Context, accountID, period string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		UPDATE capture_usage
		SET upload_count = upload_count + 1, updated_at = ?
		WHERE account_id = ? AND period = ?`

	result, err := s.db.ExecContext(ctx, query, time.Now().UTC(), accountID, period)
	if err != nil {
		return fmt.Errorf("failed to increment upload count: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrUsageNotFound
	}
	return nil
}

// UseGraceUnlock consumes one unlock via a conditional update; the
// WHERE clause enforces the cap without a lock held across I/O.
func (s *SQLiteStore) UseGraceUnlock(ctx context.Context, accountID, period string, maxUnlocks int) (*model.UsagePeriod, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		UPDATE capture_usage
		SET grace_unlocks_used = grace_unlocks_used + 1, updated_at = ?
		WHERE account_id = ? AND period = ? AND grace_unlocks_used < ?`

	result, err := s.db.ExecContext(ctx, query, time.Now().UTC(), accountID, period, maxUnlocks)
	if err != nil {
		return nil, fmt.Errorf("failed to use grace unlock: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, ErrGraceUnlocksExhausted
	}

	return s.getUsage(ctx, accountID, period)
}

// InsertUpload persists a new upload record.
func (s *SQLiteStore) InsertUpload(ctx context.Context, record *model.UploadRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO capture_uploads
			(image_id, account_id, content_key, size_bytes, width, height, side, description, client_hash, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		record.ImageID,
		record.AccountID,
		record.ContentKey,
		record.SizeBytes,
		record.Width,
		record.Height,
		record.Side,
		record.Description,
		record.ClientHash,
		record.CreatedAt.UTC(),
		record.ExpiresAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert upload %s: %w", record.ImageID, err)
	}
	return nil
}

// GetUpload returns one record, or ErrUploadNotFound.
func (s *SQLiteStore) GetUpload(ctx context.Context, accountID, imageID string) (*model.UploadRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := uploadColumns + ` WHERE account_id = ? AND image_id = ?`
	record, err := scanUpload(s.db.QueryRowContext(ctx, query, accountID, imageID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrUploadNotFound
		}
		return nil, fmt.Errorf("failed to get upload: %w", err)
	}
	return record, nil
}

// DeleteUpload removes a record.
func (s *SQLiteStore) DeleteUpload(ctx context.Context, accountID, imageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `DELETE FROM capture_uploads WHERE account_id = ? AND image_id = ?`
	result, err := s.db.ExecContext(ctx, query, accountID, imageID)
	if err != nil {
		return fmt.Errorf("failed to delete upload: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrUploadNotFound
	}
	return nil
}

// ListUploads returns an account's records, newest first.
func (s *SQLiteStore) ListUploads(ctx context.Context, accountID string) ([]model.UploadRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := uploadColumns + ` WHERE account_id = ? ORDER BY created_at DESC, image_id DESC`
	rows, err := s.db.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list uploads: %w", err)
	}
	defer rows.Close()

	var records []model.UploadRecord
	for rows.Next() {
		record, err := scanUpload(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan upload: %w", err)
		}
		records = append(records, *record)
	}
	return records, rows.Err()
}

// DeleteExpired removes records past their retention horizon and
// returns them so callers can delete the stored objects too.
func (s *SQLiteStore) DeleteExpired(ctx context.Context, now time.Time) ([]model.UploadRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := uploadColumns + ` WHERE expires_at < ?`
	rows, err := tx.QueryContext(ctx, query, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query expired uploads: %w", err)
	}

	var expired []model.UploadRecord
	for rows.Next() {
		record, err := scanUpload(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan expired upload: %w", err)
		}
		expired = append(expired, *record)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if len(expired) == 0 {
		return nil, nil
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM capture_uploads WHERE expires_at < ?`, now.UTC()); err != nil {
		return nil, fmt.Errorf("failed to delete expired uploads: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit expiry sweep: %w", err)
	}

	log.Printf("[SQLiteStore] Swept %d expired upload records", len(expired))
	return expired, nil
}

// Stats returns counters about the upload store.
func (s *SQLiteStore) Stats(ctx context.Context) (map[string]interface{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := make(map[string]interface{})

	var uploads int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM capture_uploads").Scan(&uploads); err != nil {
		return nil, err
	}
	stats["total_uploads"] = uploads

	var totalBytes sql.NullInt64
	if err := s.db.QueryRowContext(ctx, "SELECT SUM(size_bytes) FROM capture_uploads").Scan(&totalBytes); err == nil && totalBytes.Valid {
		stats["total_upload_bytes"] = totalBytes.Int64
	}

	var accounts int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM capture_accounts").Scan(&accounts); err == nil {
		stats["total_accounts"] = accounts
	}

	var pageCount, pageSize int64
	s.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount)
	s.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
	stats["db_size_bytes"] = pageCount * pageSize

	return stats, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const uploadColumns = `
	SELECT image_id, account_id, content_key, size_bytes, width, height, side, description, client_hash, created_at, expires_at
	FROM capture_uploads`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUpload(row rowScanner) (*model.UploadRecord, error) {
	var record model.UploadRecord
	err := row.Scan(
		&record.ImageID,
		&record.AccountID,
		&record.ContentKey,
		&record.SizeBytes,
		&record.Width,
		&record.Height,
		&record.Side,
		&record.Description,
		&record.ClientHash,
		&record.CreatedAt,
		&record.ExpiresAt,
	)
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// Ensure SQLiteStore implements the repository interfaces
var (
	_ AccountRepository = (*SQLiteStore)(nil)
	_ AccountRegistrar  = (*SQLiteStore)(nil)
	_ UsageRepository   = (*SQLiteStore)(nil)
	_ UploadRepository  = (*SQLiteStore)(nil)
)
