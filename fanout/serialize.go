package fanout

import "encoding/json"

// marshalOrEmpty serializes v to a JSON string for storage in the Shared
// Snapshot or a response, returning "" (never stored or sent, see
// response.set and Shared.Set's callers) if v is nil or marshaling fails.
// This is the one place in the fan-out engine that calls json.Marshal
// directly on a collaborator-shaped value; everything downstream of the
// Shared Snapshot and Serialization Cache deals only in already-serialized
// strings (spec section 4.3).
func marshalOrEmpty(v interface{}) string {
	if v == nil {
		return ""
	}
	b, err := json.Marshal(v)
	if err != nil {
		log.Errorf("failed to marshal %T: %v", v, err)
		return ""
	}
	return string(b)
}
