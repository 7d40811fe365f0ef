// Package domain contains the quote aggregate and its pricing snapshot model.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Quote tracks the current pricing baseline for a quote. The snapshot and
// diff history lives in quote_revisions; this row only carries the state
// needed to gate revision creation.
type Quote struct {
	ID    snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID snowflake.ID `gorm:"not null;index" json:"org_id"`

	Currency string `gorm:"type:text;not null;default:USD" json:"currency"`

	// PricingHash is the fingerprint of the last revisioned snapshot.
	PricingHash string `gorm:"type:text;not null;default:''" json:"pricing_hash"`
	// RevisionVersion is the version of the latest revision. Revision
	// writes are serialized per quote with a conditional update on this
	// column.
	RevisionVersion int `gorm:"not null;default:0" json:"revision_version"`

	// SelectedSubtotal is the sum of each line's total at its selected
	// quantity, maintained by the pricing batch path.
	SelectedSubtotal float64        `gorm:"not null;default:0" json:"selected_subtotal"`
	Lines            datatypes.JSON `gorm:"type:jsonb" json:"lines"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Quote) TableName() string { return "quotes" }

// SnapshotSchemaVersion tags serialized snapshots so canonicalization and
// hashing are defined over a closed shape.
const SnapshotSchemaVersion = 1

// Snapshot is a point-in-time, pricing-relevant projection of a quote.
// Immutable once hashed; volatile fields (timestamps, trace ids, metadata)
// are stripped during canonicalization, never stored here.
type Snapshot struct {
	SchemaVersion int            `json:"schema_version"`
	Header        SnapshotHeader `json:"header"`
	Config        SnapshotConfig `json:"config"`
	Lines         []SnapshotLine `json:"lines"`
}

type SnapshotHeader struct {
	Currency      string     `json:"currency"`
	LeadTimeClass string     `json:"lead_time_class,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	CustomerRef   string     `json:"customer_ref,omitempty"`
	Notes         string     `json:"notes,omitempty"`
}

type SnapshotConfig struct {
	Process    string         `json:"process,omitempty"`
	Material   string         `json:"material,omitempty"`
	Region     string         `json:"region,omitempty"`
	Quantity   int            `json:"quantity,omitempty"`
	Tolerances map[string]any `json:"tolerances,omitempty"`
	Finishes   []string       `json:"finishes,omitempty"`
}

type SnapshotLine struct {
	LineID  string         `json:"line_id"`
	PartID  string         `json:"part_id,omitempty"`
	Inputs  map[string]any `json:"inputs,omitempty"`
	Outputs map[string]any `json:"outputs,omitempty"`
}

// SelectedLine is a line item with its chosen quantity, as stored on
// Quote.Lines and used for subtotal bookkeeping.
type SelectedLine struct {
	LineID           string  `json:"line_id"`
	SelectedQuantity int     `json:"selected_quantity"`
	SelectedTotal    float64 `json:"selected_total"`
}
