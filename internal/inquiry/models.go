package inquiry

import (
	"fmt"
	"time"
)

// Record is one persisted capture of caller intent.
//
// Invariants:
// - IdentityKey is never empty and never the literal "unknown".
// - Records are immutable after creation; this system never deletes them.
// - Status and Source are fixed at creation time.
type Record struct {
	ID          string         `json:"id" db:"id"`
	IdentityKey string         `json:"identity_key" db:"identity_key"`
	Category    Category       `json:"category" db:"category"`
	Payload     map[string]any `json:"payload" db:"payload"`
	DisplayName string         `json:"display_name,omitempty" db:"display_name"`

	Status string `json:"status" db:"status"`
	Source string `json:"source" db:"source"`

	// IdentitySource records where IdentityKey came from.
	IdentitySource IdentitySource `json:"identity_source" db:"identity_source"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

const (
	StatusNew       = "new"
	SourcePhoneCall = "phone_call"
)

type Category string

const (
	CategoryPropertySearch Category = "property_search"
	CategorySellProperty   Category = "sell_property"
	CategoryEstimation     Category = "estimation"
	CategoryAdvice         Category = "advice"
)

// ParseCategory coerces free-form backend output into a supported category.
// Unknown values map to advice rather than failing the write.
func ParseCategory(s string) Category {
	switch Category(s) {
	case CategoryPropertySearch, CategorySellProperty, CategoryEstimation, CategoryAdvice:
		return Category(s)
	default:
		return CategoryAdvice
	}
}

type IdentitySource string

const (
	IdentityProvidedByCustomer IdentitySource = "provided_by_customer"
	IdentityExtractedFromCall  IdentitySource = "extracted_from_call"
)

// FallbackIdentityKey derives a deterministic call-scoped key for callers
// with no resolvable identity. "unknown" must never reach storage.
func FallbackIdentityKey(now time.Time) string {
	return fmt.Sprintf("call_%d", now.Unix())
}

// SanitizePayload reduces a free-form payload to primitives, string-keyed
// maps, and slices. Anything else is stringified. The input is never
// mutated; the backend may hand us aliased maps.
func SanitizePayload(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = sanitizeValue(v)
	}
	return out
}

func sanitizeValue(v any) any {
	switch t := v.(type) {
	case nil, bool, string,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return t
	case map[string]any:
		return SanitizePayload(t)
	case map[any]any:
		// Non-string keys are stringified so the result stays JSON-shaped.
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprintf("%v", k)] = sanitizeValue(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = sanitizeValue(val)
		}
		return out
	default:
		return fmt.Sprintf("%v", t)
	}
}
