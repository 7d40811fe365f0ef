// Package domain defines the immutable quote revision record and its
// contracts. Revisions are append-only: rows are inserted once and never
// updated, so the history doubles as an audit trail.
package domain

import (
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	quotedomain "github.com/quoteforgelabs/quoteforge/internal/quote/domain"
	"gorm.io/datatypes"
)

// Event types recorded on a revision.
const (
	EventInitial       = "initial"
	EventUserUpdate    = "user_update"
	EventSystemReprice = "system_reprice"
	EventTaxUpdate     = "tax_update"
	EventRestore       = "restore"
)

// QuoteRevision is one immutable pricing state of a quote. Version numbers
// are dense per quote; the unique index on (quote_id, version) is the
// last line of defense against two writers claiming the same slot.
type QuoteRevision struct {
	ID      snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID   snowflake.ID `gorm:"not null;index" json:"org_id"`
	QuoteID snowflake.ID `gorm:"not null;uniqueIndex:uniq_quote_revision_version" json:"quote_id"`
	Version int          `gorm:"not null;uniqueIndex:uniq_quote_revision_version" json:"version"`

	UserID    *snowflake.ID `gorm:"index" json:"user_id,omitempty"`
	EventType string        `gorm:"type:text;not null" json:"event_type"`

	PricingHash  string         `gorm:"type:text;not null" json:"pricing_hash"`
	SnapshotJSON datatypes.JSON `gorm:"type:jsonb;not null" json:"snapshot_json"`
	DiffJSON     datatypes.JSON `gorm:"type:jsonb" json:"diff_json,omitempty"`

	Note                   string        `gorm:"type:text" json:"note,omitempty"`
	RestoredFromRevisionID *snowflake.ID `json:"restored_from_revision_id,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (QuoteRevision) TableName() string { return "quote_revisions" }

// Snapshot decodes the stored snapshot.
func (r *QuoteRevision) Snapshot() (quotedomain.Snapshot, error) {
	var snap quotedomain.Snapshot
	err := json.Unmarshal(r.SnapshotJSON, &snap)
	return snap, err
}
