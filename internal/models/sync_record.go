package models

import (
	"context"
	"fmt"
	"time"
)

// CRMSystem is the closed set of supported providers.
type CRMSystem string

const (
	CRMSalesforce CRMSystem = "salesforce"
	CRMHubSpot    CRMSystem = "hubspot"
	CRMSAPC4C     CRMSystem = "sap_c4c"
	CRMCreatio    CRMSystem = "creatio"
)

// ParseCRMSystem validates a provider identifier.
func ParseCRMSystem(s string) (CRMSystem, error) {
	switch CRMSystem(s) {
	case CRMSalesforce, CRMHubSpot, CRMSAPC4C, CRMCreatio:
		return CRMSystem(s), nil
	}
	return "", fmt.Errorf("unsupported CRM system: %q", s)
}

// AllCRMSystems lists the supported providers in a stable order.
func AllCRMSystems() []CRMSystem {
	return []CRMSystem{CRMSalesforce, CRMHubSpot, CRMSAPC4C, CRMCreatio}
}

// SyncStatus is the lifecycle of one CRM sync attempt.
type SyncStatus string

const (
	SyncPending    SyncStatus = "pending"
	SyncInProgress SyncStatus = "in_progress"
	SyncCompleted  SyncStatus = "completed"
	SyncFailed     SyncStatus = "failed"
)

// CRMSyncRecord tracks the outcome of pushing one approved summary into one
// CRM system. Completed records are terminal; only failed records may be
// retried.
type CRMSyncRecord struct {
	ID             string                 `json:"id" db:"id"`
	SessionID      string                 `json:"sessionId" db:"session_id"`
	CRMSystem      CRMSystem              `json:"crmSystem" db:"crm_system"`
	SyncStatus     SyncStatus             `json:"syncStatus" db:"sync_status"`
	SyncPayload    map[string]interface{} `json:"syncPayload,omitempty" db:"sync_payload"`
	SyncResult     map[string]interface{} `json:"syncResult,omitempty" db:"sync_result"`
	SyncError      string                 `json:"syncError,omitempty" db:"sync_error"`
	RetryCount     int                    `json:"retryCount" db:"retry_count"`
	SyncedAt       *time.Time             `json:"syncedAt,omitempty" db:"synced_at"`
	CreatedAt      time.Time              `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time              `json:"updatedAt" db:"updated_at"`
}

// Retryable reports whether a retry may be requested for this record.
func (r *CRMSyncRecord) Retryable() bool {
	return r.SyncStatus == SyncFailed
}

// SyncRecordRepository defines CRM sync record data access. Status
// transitions must be guarded in storage (e.g. retry flips failed to pending
// only when the row is still failed).
type SyncRecordRepository interface {
	Create(ctx context.Context, record *CRMSyncRecord) error
	FindByID(ctx context.Context, id string) (*CRMSyncRecord, error)
	FindBySessionID(ctx context.Context, sessionID string) ([]*CRMSyncRecord, error)
	Update(ctx context.Context, record *CRMSyncRecord) error
	// MarkForRetry atomically moves a failed record back to pending,
	// clears its error and increments retry_count. It returns false when
	// the record was not failed.
	MarkForRetry(ctx context.Context, id string) (bool, error)
	// ClaimPending atomically moves a pending record to in_progress and
	// returns false when it was already claimed.
	ClaimPending(ctx context.Context, id string) (bool, error)
}
