package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/quoteforgelabs/quoteforge/internal/canonical"
)

// Key derivation: deterministic pure functions combining a namespace
// prefix, an org id, and a content hash. The same logical submission always
// maps to the same key.

func UploadParseKey(orgID, fileHash string) string {
	return fmt.Sprintf("upload-parse:%s:%s", orgID, fileHash)
}

func MeshDecimateKey(orgID, fileHash, quality string) string {
	return fmt.Sprintf("mesh-decimate:%s:%s:%s", orgID, fileHash, quality)
}

func PriceBatchKey(orgID, batchHash string) string {
	return fmt.Sprintf("price-batch:%s:%s", orgID, batchHash)
}

func PricingRationaleKey(orgID, quoteID string) string {
	return fmt.Sprintf("pricing-rationale:%s:%s", orgID, quoteID)
}

func AdminPricingRevisionKey(orgID, runID string) string {
	return fmt.Sprintf("admin-pricing-revision:%s:%s", orgID, runID)
}

// BatchHash fingerprints a pricing batch: quote id, the line set (order
// independent), and the effective config.
func BatchHash(quoteID string, lineIDs []string, config map[string]any) (string, error) {
	sorted := append([]string(nil), lineIDs...)
	sort.Strings(sorted)

	if config == nil {
		config = map[string]any{}
	}
	raw, err := canonical.Marshal(map[string]any{
		"quote_id": quoteID,
		"line_ids": sorted,
		"config":   config,
	})
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}
