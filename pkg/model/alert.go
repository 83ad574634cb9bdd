package model

import (
	"encoding/json"
	"time"
)

// AlertCategory is the logical kind of a safety alert.
type AlertCategory string

const (
	AlertAirspaceViolation AlertCategory = "airspace_violation"
	AlertAltitudeCeiling   AlertCategory = "altitude_violation"
	AlertCredentialInvalid AlertCategory = "credential_invalid"
)

// AlertSeverity ranks alerts for display.
type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "info"
	SeverityWarning  AlertSeverity = "warning"
	SeverityCritical AlertSeverity = "critical"
)

// AlertRecord is one safety alert. The identity is reused across updates to
// the same logical alert: repeated zone entries during one flight fold into
// a single record via merge-update operations.
type AlertRecord struct {
	ID       string `json:"id"`
	UserID   string `json:"user_id"`
	UserName string `json:"user_name,omitempty"`
	License  string `json:"license,omitempty"`

	Category  AlertCategory `json:"category"`
	Severity  AlertSeverity `json:"severity"`
	Reason    string        `json:"reason"`
	Triggered time.Time     `json:"triggered"`

	// Structured payload, e.g. the full violation history of a flight.
	Metadata map[string]any `json:"metadata,omitempty"`

	Resolved      bool      `json:"resolved"`
	ResolvedAt    time.Time `json:"resolved_at,omitempty"`
	ResolvedBy    string    `json:"resolved_by,omitempty"`
	ResolvedNotes string    `json:"resolved_notes,omitempty"`
}

// OpKind discriminates pending remote operations.
type OpKind string

const (
	OpCreate OpKind = "create"
	OpMerge  OpKind = "merge-update"
)

// ServerTimestamp marks a field to be filled with the remote store's clock
// at write time. It is an explicit tagged variant so queued payloads
// round-trip JSON losslessly across restarts.
const ServerTimestamp = "__server_timestamp__"

// PendingOperation is the durability unit for offline-first remote writes.
// Removed from the queue only after confirmed remote success.
type PendingOperation struct {
	ID         string          `json:"id"`
	Kind       OpKind          `json:"kind"`
	Collection string          `json:"collection"`
	DocID      string          `json:"doc_id"`
	Payload    json.RawMessage `json:"payload"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	Retries    int             `json:"retries"`
}

// Matches reports whether the operation is the exact same queue entry.
// Removal after sync uses this, never a blind DocID match, so a pending
// create is not clobbered by a later merge-update for the same document.
func (op *PendingOperation) Matches(other *PendingOperation) bool {
	return op.ID == other.ID && op.EnqueuedAt.Equal(other.EnqueuedAt)
}
