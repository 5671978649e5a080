package store

// Store wraps the sqlite database holding launch jobs and wallets
// All mutations are atomic per job or wallet row; the scheduler and the bot
// share one Store instance across goroutines
// MarkSubmitting is the single concurrency-control primitive: a conditional
// UPDATE whose affected-row count decides who owns the job

import (
	"errors"
	"fmt"
	stdlog "log"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"printr-launcher/internal/chains"
)

// ValidationError rejects malformed job or wallet input before any state
// mutation.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Reason
}

// ErrNotFound is returned when a job or wallet lookup matches nothing.
var ErrNotFound = errors.New("not found")

type Store struct {
	db *gorm.DB
}

// New opens (or creates) the sqlite database at dbPath and migrates the
// schema.
func New(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	gormLogger := logger.New(
		stdlog.New(os.Stdout, "\r\n", stdlog.LstdFlags),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Error,
			IgnoreRecordNotFoundError: true,
		},
	)

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{Logger: gormLogger})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return NewWithDB(db)
}

// NewWithDB wraps an existing gorm handle; tests pass an in-memory sqlite.
func NewWithDB(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&LaunchJob{}, &ChainResult{}, &WalletRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &Store{db: db}, nil
}

// CreateJob stores a new launch job together with one not_started ChainResult
// row per chain. scheduledAt may be nil (job uploaded but not yet scheduled).
func (s *Store) CreateJob(owner int64, job *LaunchJob, jobChains []string, scheduledAt *time.Time) (*LaunchJob, error) {
	if len(jobChains) == 0 {
		return nil, &ValidationError{Reason: "chains must not be empty"}
	}
	seen := make(map[string]bool, len(jobChains))
	for _, c := range jobChains {
		if !chains.IsSupported(c) {
			return nil, &ValidationError{Reason: "unsupported chain: " + c}
		}
		if seen[c] {
			return nil, &ValidationError{Reason: "duplicate chain: " + c}
		}
		seen[c] = true
	}

	job.OwnerUserID = owner
	job.Chains = jobChains
	job.ScheduledAt = scheduledAt
	job.Status = StatusPending
	for _, c := range jobChains {
		job.Results = append(job.Results, ChainResult{Chain: c, State: ChainNotStarted})
	}

	if err := s.db.Create(job).Error; err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}
	return job, nil
}

// GetJob loads one job with its chain results.
func (s *Store) GetJob(id uint) (*LaunchJob, error) {
	var job LaunchJob
	err := s.db.Preload("Results").First(&job, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// ScheduleJob assigns a due time to a pending job.
func (s *Store) ScheduleJob(id uint, at time.Time) error {
	res := s.db.Model(&LaunchJob{}).
		Where("id = ? AND status = ?", id, StatusPending).
		Updates(map[string]interface{}{"scheduled_at": at, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetDueJobs returns pending jobs whose scheduled time has arrived, earliest
// first. Unscheduled jobs are never due.
func (s *Store) GetDueJobs(now time.Time) ([]LaunchJob, error) {
	var jobs []LaunchJob
	err := s.db.Preload("Results").
		Where("status = ? AND scheduled_at IS NOT NULL AND scheduled_at <= ?", StatusPending, now).
		Order("scheduled_at asc").
		Find(&jobs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query due jobs: %w", err)
	}
	return jobs, nil
}

// MarkSubmitting atomically claims a pending job. Returns false if the job was
// not pending, which guards against double submission when a tick overlaps a
// slow previous one.
func (s *Store) MarkSubmitting(id uint) (bool, error) {
	res := s.db.Model(&LaunchJob{}).
		Where("id = ? AND status = ?", id, StatusPending).
		Updates(map[string]interface{}{"status": StatusSubmitting, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// RecordChainResult updates one chain's outcome and recomputes the derived job
// status inside a single transaction.
func (s *Store) RecordChainResult(jobID uint, chain string, state ChainState, txID, reason string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&ChainResult{}).
			Where("job_id = ? AND chain = ?", jobID, chain).
			Updates(map[string]interface{}{
				"state":      state,
				"tx_id":      txID,
				"reason":     reason,
				"updated_at": time.Now().UTC(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("job %d has no result row for chain %s: %w", jobID, chain, ErrNotFound)
		}

		var job LaunchJob
		if err := tx.Preload("Results").First(&job, jobID).Error; err != nil {
			return err
		}
		newStatus := DeriveStatus(job.Status, job.Results)
		return tx.Model(&LaunchJob{}).Where("id = ?", jobID).
			Updates(map[string]interface{}{"status": newStatus, "updated_at": time.Now().UTC()}).Error
	})
}

// SetJobToken persists the Printr token id and quote once creation is
// accepted.
func (s *Store) SetJobToken(jobID uint, tokenID, quote string) error {
	return s.db.Model(&LaunchJob{}).Where("id = ?", jobID).
		Updates(map[string]interface{}{"token_id": tokenID, "quote": quote, "updated_at": time.Now().UTC()}).Error
}

// ListJobs returns the owner's jobs, optionally filtered by status, oldest
// first.
func (s *Store) ListJobs(owner int64, status *JobStatus) ([]LaunchJob, error) {
	q := s.db.Preload("Results").Where("owner_user_id = ?", owner)
	if status != nil {
		q = q.Where("status = ?", *status)
	}
	var jobs []LaunchJob
	if err := q.Order("id asc").Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

// ListUnscheduledJobs returns pending jobs that have no due time yet.
func (s *Store) ListUnscheduledJobs(owner int64) ([]LaunchJob, error) {
	var jobs []LaunchJob
	err := s.db.Where("owner_user_id = ? AND status = ? AND scheduled_at IS NULL", owner, StatusPending).
		Order("id asc").Find(&jobs).Error
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

// UpsertWallet stores or replaces the operator's wallet for one chain.
func (s *Store) UpsertWallet(userID int64, chain, address, caip10 string) error {
	if !chains.IsSupported(chain) {
		return &ValidationError{Reason: "unsupported chain: " + chain}
	}
	if address == "" {
		return &ValidationError{Reason: "address must not be empty"}
	}
	rec := WalletRecord{
		UserID:    userID,
		Chain:     chain,
		Address:   address,
		CAIP10:    caip10,
		UpdatedAt: time.Now().UTC(),
	}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "chain"}},
		DoUpdates: clause.AssignmentColumns([]string{"address", "ca_ip10", "updated_at"}),
	}).Create(&rec).Error
}

// GetWallet returns the wallet record for (user, chain), or ErrNotFound.
func (s *Store) GetWallet(userID int64, chain string) (*WalletRecord, error) {
	var rec WalletRecord
	err := s.db.Where("user_id = ? AND chain = ?", userID, chain).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListWallets returns all wallet records for a user.
func (s *Store) ListWallets(userID int64) ([]WalletRecord, error) {
	var recs []WalletRecord
	err := s.db.Where("user_id = ?", userID).Order("chain asc").Find(&recs).Error
	return recs, err
}

// WalletsConfigured reports whether the user has a wallet for every supported
// chain; the bot runs first-time onboarding until this is true.
func (s *Store) WalletsConfigured(userID int64) (bool, error) {
	var count int64
	err := s.db.Model(&WalletRecord{}).
		Where("user_id = ? AND chain IN ?", userID, chains.Names()).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count == int64(len(chains.Supported)), nil
}

// Close releases the underlying sql connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
