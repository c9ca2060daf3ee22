package fanout

import "github.com/blockwatch/mempoolhub/snapshot"

// response accumulates the key -> already-serialized-JSON fragments a
// single client will receive for one event, preserving first-insertion
// order so two clients that matched the same keys render identical text
// (helps tests and log comparisons, though the protocol itself does not
// require it).
type response struct {
	keys   []string
	fields map[string]string
}

func newResponse() *response {
	return &response{fields: make(map[string]string)}
}

// set stores value under key, unless value is empty (callers pass "" to
// mean "nothing to report here", e.g. a handler that found no match).
func (r *response) set(key, value string) {
	if value == "" {
		return
	}
	if _, exists := r.fields[key]; !exists {
		r.keys = append(r.keys, key)
	}
	r.fields[key] = value
}

// empty reports whether no keys were ever set, meaning this client gets
// no frame for the current event at all.
func (r *response) empty() bool {
	return len(r.keys) == 0
}

// serialize renders the accumulated fragments via the Response Serializer
// (spec section 4.3).
func (r *response) serialize() string {
	if r.empty() {
		return ""
	}
	return snapshot.Serialize(r.keys, r.fields)
}
