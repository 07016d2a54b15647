package types

import (
	"time"
)

// StoreStatus represents the lifecycle state of a store
type StoreStatus string

const (
	StatusProvisioning StoreStatus = "Provisioning"
	StatusReady        StoreStatus = "Ready"
	StatusFailed       StoreStatus = "Failed"
	StatusDeleting     StoreStatus = "Deleting"
	StatusDeleted      StoreStatus = "Deleted"
)

// Terminal reports whether the status admits no further transitions
// except an explicit delete
func (s StoreStatus) Terminal() bool {
	return s == StatusDeleted
}

// Store represents a provisioned workload instance owned by a tenant.
// Namespace always equals ID; Host is globally unique.
type Store struct {
	ID                    string      `json:"id"`
	TenantID              string      `json:"tenant_id"`
	Namespace             string      `json:"namespace"`
	Host                  string      `json:"host"`
	Status                StoreStatus `json:"status"`
	FailureReason         *string     `json:"failure_reason,omitempty"`
	CreatedAt             Timestamp   `json:"created_at"`
	ProvisioningStartedAt *Timestamp  `json:"provisioning_started_at,omitempty"`
	ReadyAt               *Timestamp  `json:"ready_at,omitempty"`
	DeletionStartedAt     *Timestamp  `json:"deletion_started_at,omitempty"`
	DeletedAt             *Timestamp  `json:"deleted_at,omitempty"`
}

// AuditEntry is an append-only record of a control-plane action.
// Writes are best-effort and must never fail the request they describe.
type AuditEntry struct {
	TenantID     string
	Action       string
	ResourceType string
	ResourceID   string
	Status       string
	Details      map[string]any
	IPAddress    string
	CreatedAt    time.Time
}

// Audit actions emitted by the HTTP surface
const (
	ActionStoreCreate = "store.create"
	ActionStoreGet    = "store.get"
	ActionStoreList   = "store.list"
	ActionStoreDelete = "store.delete"
)
