package seedrand

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/cyberphone/json-canonicalization/go/src/webpki.org/jsoncanonicalizer"
	"golang.org/x/text/unicode/norm"
)

// Domain prefix for identity hashing. Version suffix enables future
// algorithm migration without colliding with old seeds.
const identityDomain = "tradeharness/identity/v1"

// DeriveSeed computes a seed from a base seed and a record's logical identity.
//
// The identity map holds every field the caller treats as part of the
// record's identity (regime, symbol, numeric seeds). Strings are NFC
// normalized, the map is serialized to RFC 8785 canonical JSON, and the
// result is hashed with domain separation. Identical identities always yield
// identical seeds; wall-clock time never participates.
func DeriveSeed(base uint32, identity map[string]any) (uint32, error) {
	if len(identity) == 0 {
		return 0, fmt.Errorf("DeriveSeed: identity must not be empty")
	}

	normalized := normalizeValue(identity)
	raw, err := json.Marshal(normalized)
	if err != nil {
		return 0, fmt.Errorf("DeriveSeed: marshal identity: %w", err)
	}

	canonical, err := jsoncanonicalizer.Transform(raw)
	if err != nil {
		return 0, fmt.Errorf("DeriveSeed: canonicalize identity: %w", err)
	}

	h := sha256.New()
	h.Write([]byte(identityDomain))
	h.Write([]byte{0x00}) // null separator prevents domain/data boundary ambiguity
	h.Write(canonical)
	sum := h.Sum(nil)

	return base ^ binary.BigEndian.Uint32(sum[:4]), nil
}

// normalizeValue applies NFC normalization to every string in a value tree.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case string:
		return norm.NFC.String(val)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[norm.NFC.String(k)] = normalizeValue(elem)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = normalizeValue(elem)
		}
		return out
	default:
		return v
	}
}
