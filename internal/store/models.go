package store

// Persistence models for launch jobs and wallets
// A job owns one ChainResult row per target chain, created together with the
// job so the result set always mirrors the chain set
// Job status is never written directly from outside; it is derived from the
// chain states on every result update

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// JobStatus is the lifecycle state of a launch job.
type JobStatus string

const (
	StatusPending            JobStatus = "pending"
	StatusSubmitting         JobStatus = "submitting"
	StatusSucceeded          JobStatus = "succeeded"
	StatusFailed             JobStatus = "failed"
	StatusPartiallySucceeded JobStatus = "partially_succeeded"
)

// ChainState is the per-chain submission outcome.
type ChainState string

const (
	ChainNotStarted ChainState = "not_started"
	ChainSubmitted  ChainState = "submitted"
	ChainConfirmed  ChainState = "confirmed"
	ChainError      ChainState = "error"
)

// terminal reports whether a chain state can no longer change within this job.
func (s ChainState) terminal() bool {
	return s == ChainConfirmed || s == ChainError
}

// StringList stores a []string as JSON text in a single column.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	data, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (l *StringList) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*l = nil
		return nil
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	default:
		return fmt.Errorf("cannot scan %T into StringList", value)
	}
}

// JSONMap stores a map[string]string as JSON text in a single column.
type JSONMap map[string]string

func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (m *JSONMap) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*m = nil
		return nil
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	default:
		return fmt.Errorf("cannot scan %T into JSONMap", value)
	}
}

// LaunchJob is one token launch request. Payload fields are opaque to the
// scheduler beyond the chain list.
type LaunchJob struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	OwnerUserID int64  `gorm:"index;not null" json:"owner_user_id"`
	Name        string `gorm:"not null" json:"name"`
	Symbol      string `gorm:"not null" json:"symbol"`
	Description string `json:"description"`
	// Image is a base64-encoded picture forwarded to Printr as-is.
	Image         string     `gorm:"type:text" json:"image,omitempty"`
	ExternalLinks JSONMap    `gorm:"type:text" json:"external_links,omitempty"`
	Chains        StringList `gorm:"type:text;not null" json:"chains"`
	// ScheduledAt is nil until the operator schedules the job; only scheduled
	// jobs can become due.
	ScheduledAt *time.Time `gorm:"index" json:"scheduled_at,omitempty"`
	Status      JobStatus  `gorm:"index;default:pending" json:"status"`
	// TokenID and Quote are filled in once Printr accepts the creation request.
	TokenID   string    `json:"token_id,omitempty"`
	Quote     string    `gorm:"type:text" json:"quote,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Results []ChainResult `gorm:"foreignKey:JobID" json:"results,omitempty"`
}

// ChainResult tracks one chain of one job. (JobID, Chain) is unique.
type ChainResult struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	JobID     uint       `gorm:"uniqueIndex:idx_job_chain;not null" json:"job_id"`
	Chain     string     `gorm:"uniqueIndex:idx_job_chain;not null" json:"chain"`
	State     ChainState `gorm:"default:not_started" json:"state"`
	TxID      string     `json:"tx_id,omitempty"`
	Reason    string     `json:"reason,omitempty"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// WalletRecord is the operator's wallet for one chain. Upsert-only, keyed by
// (user, chain), no history.
type WalletRecord struct {
	UserID    int64     `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	Chain     string    `gorm:"primaryKey" json:"chain"`
	Address   string    `gorm:"not null" json:"address"`
	CAIP10    string    `json:"caip10"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DeriveStatus computes the job status from its chain results. It is the only
// way status moves past submitting:
//
//	all confirmed            -> succeeded
//	all error                -> failed
//	all terminal, mixed      -> partially_succeeded
//	anything still in flight -> current (pending or submitting) unchanged
func DeriveStatus(current JobStatus, results []ChainResult) JobStatus {
	if len(results) == 0 {
		return current
	}
	confirmed, failed := 0, 0
	for _, r := range results {
		if !r.State.terminal() {
			return current
		}
		if r.State == ChainConfirmed {
			confirmed++
		} else {
			failed++
		}
	}
	switch {
	case failed == 0:
		return StatusSucceeded
	case confirmed == 0:
		return StatusFailed
	default:
		return StatusPartiallySucceeded
	}
}
