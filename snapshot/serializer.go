// Package snapshot implements the Response Serializer, the Shared Snapshot
// S, and the per-event Serialization Cache (spec sections 2.3-2.5 and 4.3).
//
// The defining performance decision here (spec section 4.3) is that every
// value flowing through these types is already-serialized JSON text: a
// response is assembled by string concatenation, never by a second pass of
// json.Marshal over already-marshaled data. This is what lets one mempool
// delta or new-block event serialize its shared fields exactly once and
// fan them out to every connected client.
package snapshot

import "strings"

// Serialize assembles `{"k1":v1,"k2":v2,...}` from a map of keys to
// already-serialized JSON string values, without re-encoding or
// re-escaping any of them. Keys are emitted in the order given by keys, so
// callers that care about deterministic output (tests, golden files)
// should pass a stable key order; callers that don't can pass
// fields' own key set via SerializeMap.
//
// The caller is solely responsible for every value in fields being valid
// JSON; Serialize performs no validation. That contract is what makes the
// Serialization Cache below safe to share across thousands of clients: the
// cost of producing a value is paid once, and Serialize pays only the cost
// of string concatenation after that.
func Serialize(keys []string, fields map[string]string) string {
	var b strings.Builder
	b.WriteByte('{')
	first := true
	for _, k := range keys {
		v, ok := fields[k]
		if !ok {
			continue
		}
		if !first {
			b.WriteByte(',')
		}
		first = false
		b.WriteByte('"')
		b.WriteString(k)
		b.WriteString(`":`)
		b.WriteString(v)
	}
	b.WriteByte('}')
	return b.String()
}

// SerializeMap is Serialize without caller-supplied key ordering. Map
// iteration order in Go is randomized, so this is only appropriate for
// payloads callers do not need byte-for-byte reproducible (the live
// initBlob path takes the ordered form instead; see Shared.InitBlob).
func SerializeMap(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	return Serialize(keys, fields)
}
