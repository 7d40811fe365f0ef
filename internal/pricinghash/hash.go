// Package pricinghash derives stable fingerprints from the pricing-relevant
// fields of a quote snapshot. Hashes drive revision gating and cache keys:
// identical inputs must always produce identical digests, and any change to
// a pricing-relevant field must change the digest.
package pricinghash

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/quoteforgelabs/quoteforge/internal/canonical"
	quotedomain "github.com/quoteforgelabs/quoteforge/internal/quote/domain"
)

// Length is the digest length in hex characters. The full SHA-256 digest is
// kept; callers must treat this as an implementation constant.
const Length = 64

// projection is the closed pricing-relevant subset of a snapshot. Header
// notes, customer refs, expiry, and line outputs are deliberately absent:
// they never trigger a reprice.
type projection struct {
	SchemaVersion int              `json:"schema_version"`
	Process       string           `json:"process,omitempty"`
	Material      string           `json:"material,omitempty"`
	Region        string           `json:"region,omitempty"`
	Quantity      int              `json:"quantity,omitempty"`
	Tolerances    map[string]any   `json:"tolerances,omitempty"`
	Finishes      []string         `json:"finishes,omitempty"`
	LeadTimeClass string           `json:"lead_time_class,omitempty"`
	Lines         []lineProjection `json:"lines"`
}

type lineProjection struct {
	PartID string         `json:"part_id,omitempty"`
	Inputs map[string]any `json:"inputs,omitempty"`
}

// ComputeHash fingerprints a snapshot. Pure function: no I/O, no hidden
// state, safe for concurrent use.
func ComputeHash(snap quotedomain.Snapshot) (string, error) {
	proj := projection{
		SchemaVersion: snap.SchemaVersion,
		Process:       snap.Config.Process,
		Material:      snap.Config.Material,
		Region:        snap.Config.Region,
		Quantity:      snap.Config.Quantity,
		Tolerances:    snap.Config.Tolerances,
		Finishes:      snap.Config.Finishes,
		LeadTimeClass: snap.Header.LeadTimeClass,
		Lines:         make([]lineProjection, 0, len(snap.Lines)),
	}
	for _, line := range snap.Lines {
		proj.Lines = append(proj.Lines, lineProjection{
			PartID: line.PartID,
			Inputs: line.Inputs,
		})
	}
	return digest(proj)
}

// Inputs is the minimal configuration keyed by the pricing cache,
// independent of full snapshot hashing. Quantities carries the full
// requested list in request order: the matrix row order depends on it,
// and any scalar folding of the list can collide across requests.
type Inputs struct {
	Process    string         `json:"process"`
	Material   string         `json:"material"`
	Quantities []int          `json:"quantities,omitempty"`
	Tolerances map[string]any `json:"tolerances,omitempty"`
	Finishes   []string       `json:"finishes,omitempty"`
	Region     string         `json:"region,omitempty"`
}

// ComputeInputHash fingerprints a minimal input struct through the same
// canonicalize-and-hash pipeline as ComputeHash.
func ComputeInputHash(in Inputs) (string, error) {
	return digest(in)
}

func digest(v any) (string, error) {
	raw, err := canonical.Marshal(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}
