// Package canonical normalizes JSON-like values into a deterministic form
// used for fingerprinting and cache keys. Two logically equal inputs yield
// byte-identical serialized output regardless of key insertion order.
package canonical

import (
	"encoding/json"
	"math"
)

// Options controls key filtering and normalization during canonicalization.
type Options struct {
	// VolatileKeys are removed recursively at any depth before hashing.
	VolatileKeys map[string]struct{}
	// LowercaseKeys name string fields holding case-insensitive codes
	// (process, material, region codes) that are folded to lower case.
	LowercaseKeys map[string]struct{}
	// LowercaseArrayKeys name arrays of case-insensitive codes. String
	// elements are folded and the array is sorted, since these fields are
	// sets, not sequences.
	LowercaseArrayKeys map[string]struct{}
}

// DefaultOptions matches the pricing-relevant field treatment of quote
// snapshots: timestamps, trace ids, and free-form metadata never influence
// the fingerprint.
func DefaultOptions() Options {
	return Options{
		VolatileKeys: setOf(
			"updated_at", "created_at", "trace_id", "request_id",
			"observability", "analytics", "metadata", "timestamps",
		),
		LowercaseKeys: setOf(
			"process", "process_type", "material", "material_code",
			"region", "ship_to_region", "lead_time_class", "finish",
		),
		LowercaseArrayKeys: setOf(
			"finishes", "finish_ids", "tolerances", "secondary_operations",
		),
	}
}

func setOf(keys ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		m[k] = struct{}{}
	}
	return m
}

// Canonicalize normalizes v using DefaultOptions. Object keys with nil
// values are dropped, volatile keys are removed at any depth, arrays
// preserve order (except configured code-set arrays, which are sorted),
// and numbers are rounded to six decimal places. Primitives and nil pass
// through unchanged.
func Canonicalize(v any) any {
	return CanonicalizeWithOptions(v, DefaultOptions())
}

// CanonicalizeWithOptions is Canonicalize with explicit Options.
func CanonicalizeWithOptions(v any, opts Options) any {
	return walk(v, "", opts)
}

// Marshal canonicalizes v and serializes it to deterministic JSON.
// encoding/json writes map keys in sorted order, which combined with the
// normalization pass makes the output stable across processes.
func Marshal(v any) ([]byte, error) {
	return MarshalWithOptions(v, DefaultOptions())
}

// MarshalWithOptions canonicalizes with explicit Options and serializes.
// Typed structs are accepted: they are decoded through their JSON form
// before normalization, so struct field tags define the canonical keys.
func MarshalWithOptions(v any, opts Options) ([]byte, error) {
	plain, err := toPlain(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(CanonicalizeWithOptions(plain, opts))
}

// toPlain reduces typed values to the generic JSON data model
// (map[string]any, []any, float64, string, bool, nil).
func toPlain(v any) (any, error) {
	switch v.(type) {
	case nil, map[string]any, []any, string, bool, float64:
		return v, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var plain any
	if err := json.Unmarshal(raw, &plain); err != nil {
		return nil, err
	}
	return plain, nil
}

func walk(v any, key string, opts Options) any {
	switch val := v.(type) {
	case map[string]any:
		return walkObject(val, opts)
	case []any:
		return walkArray(val, key, opts)
	case string:
		if _, ok := opts.LowercaseKeys[key]; ok {
			return toLower(val)
		}
		return val
	case float64:
		return roundNumber(val)
	case int:
		return roundNumber(float64(val))
	case int64:
		return roundNumber(float64(val))
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return val.String()
		}
		return roundNumber(f)
	default:
		return v
	}
}

func walkObject(m map[string]any, opts Options) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if _, volatile := opts.VolatileKeys[k]; volatile {
			continue
		}
		if v == nil {
			continue
		}
		next := walk(v, k, opts)
		if next == nil {
			continue
		}
		out[k] = next
	}
	return out
}

func walkArray(items []any, key string, opts Options) []any {
	out := make([]any, 0, len(items))
	_, isCodeSet := opts.LowercaseArrayKeys[key]
	for _, item := range items {
		if item == nil {
			continue
		}
		next := walk(item, key, opts)
		if next == nil {
			continue
		}
		if s, ok := next.(string); ok && isCodeSet {
			next = toLower(s)
		}
		out = append(out, next)
	}
	if isCodeSet {
		sortPrimitives(out)
	}
	return out
}

// sortPrimitives orders a code-set array when every element is a primitive.
// Mixed or object arrays keep their order.
func sortPrimitives(items []any) {
	for _, item := range items {
		switch item.(type) {
		case string, float64, bool:
		default:
			return
		}
	}
	insertionSort(items)
}

func insertionSort(items []any) {
	for i := 1; i < len(items); i++ {
		for j := i; j > 0 && lessPrimitive(items[j], items[j-1]); j-- {
			items[j], items[j-1] = items[j-1], items[j]
		}
	}
}

func lessPrimitive(a, b any) bool {
	af, aNum := a.(float64)
	bf, bNum := b.(float64)
	if aNum && bNum {
		return af < bf
	}
	return primitiveSortKey(a) < primitiveSortKey(b)
}

func primitiveSortKey(v any) string {
	raw, _ := json.Marshal(v)
	switch v.(type) {
	case string:
		return "s:" + string(raw)
	case float64:
		return "n:" + string(raw)
	case bool:
		return "b:" + string(raw)
	default:
		return string(raw)
	}
}

func toLower(s string) string {
	out := []byte(s)
	for i := 0; i < len(out); i++ {
		if out[i] >= 'A' && out[i] <= 'Z' {
			out[i] += 'a' - 'A'
		}
	}
	return string(out)
}

// roundNumber rounds to six decimal places and normalizes negative zero,
// so float noise from upstream arithmetic does not churn fingerprints.
func roundNumber(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return f
	}
	rounded := math.Round(f*1e6) / 1e6
	if rounded == 0 {
		return 0
	}
	return rounded
}
