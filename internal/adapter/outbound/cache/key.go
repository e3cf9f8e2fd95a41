package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// fingerprintPayload is canonicalized before hashing: policy ids are
// sorted so cache keys are order-independent (spec 4.5 "Key semantics").
type fingerprintPayload struct {
	Context  map[string]any `json:"context"`
	Policies []string       `json:"policies"`
}

// EvaluationKey computes "evaluation:<sha256(canonical_json({context,
// sort(policies)}))>", the externally-visible decision cache key. This is
// always SHA-256 over canonical JSON, independent of the non-cryptographic
// xxhash that Local hashes this string down to for its map key.
func EvaluationKey(ctx map[string]any, policies []string) string {
	sorted := make([]string, len(policies))
	copy(sorted, policies)
	sort.Strings(sorted)

	payload := fingerprintPayload{Context: ctx, Policies: sorted}
	b, err := json.Marshal(payload)
	if err != nil {
		// json.Marshal on a map[string]any built from our own decoders only
		// fails for unsupported types (channels, funcs); treat as a bug
		// rather than a cache-layer concern and fall back to an empty body
		// rather than panicking the evaluation path.
		b = []byte("{}")
	}
	sum := sha256.Sum256(b)
	return "evaluation:" + hex.EncodeToString(sum[:])
}

// PolicyKey is the cache key invalidated on any mutation of policy id
// (spec 4.6: "policy:<id> key is deleted from the cache on mutation").
func PolicyKey(id string) string {
	return "policy:" + id
}
