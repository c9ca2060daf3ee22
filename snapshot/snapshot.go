package snapshot

import "sync"

// Known field names of the Shared Snapshot (spec section 3). Collaborators
// may register additional fields at runtime (spec section 3: "plus extra
// fields registered by collaborators"), so this list is a set of
// well-known names (used by initBlobKeyOrder and by the init-readiness
// check in NeedsInitRefresh), not an exhaustive enumeration.
const (
	FieldMempoolInfo       = "mempoolInfo"
	FieldVBytesPerSecond   = "vBytesPerSecond"
	FieldBlocks            = "blocks"
	FieldConversions       = "conversions"
	FieldMempoolBlocks     = "mempool-blocks"
	FieldTransactions      = "transactions"
	FieldBackendInfo       = "backendInfo"
	FieldLoadingIndicators = "loadingIndicators"
	FieldDifficultyAdj     = "da"
	FieldFees              = "fees"
	FieldRbfSummary        = "rbfSummary"
)

// initReadinessFields are the fields checked by the "init" handler (spec
// section 4.1 item 9): "If any of blocks, da, backendInfo, conversions is
// missing from S, refresh S from collaborators".
var initReadinessFields = []string{FieldBlocks, FieldDifficultyAdj, FieldBackendInfo, FieldConversions}

// initBlobKeyOrder is a stable key order for the concatenated init blob, so
// that two Snapshots holding the same fields always render identical JSON.
var initBlobKeyOrder = []string{
	FieldMempoolInfo, FieldVBytesPerSecond, FieldBlocks, FieldConversions,
	FieldMempoolBlocks, FieldTransactions, FieldBackendInfo,
	FieldLoadingIndicators, FieldDifficultyAdj, FieldFees, FieldRbfSummary,
}

// Shared is the process-wide keyed state S (spec section 3). It holds the
// latest serialized value of each named field, plus a precomputed
// concatenated JSON string (initBlob). Shared is written only by the Event
// Fan-Out Engine and by collaborator registration calls; every other
// reader goes through a snapshot taken under the lock, so a concurrent
// "init" request never observes a torn object (spec section 5: "Writes to
// S must publish an updated initBlob atomically with respect to
// readers").
type Shared struct {
	mtx      sync.RWMutex
	fields   map[string]string
	keyOrder []string // extra (non-well-known) keys, in first-registration order
	initBlob string
}

// New returns an empty Shared snapshot.
func New() *Shared {
	return &Shared{fields: make(map[string]string)}
}

// Set stores the already-serialized value of field key, and republishes
// initBlob atomically with the field update. Set is how both the Event
// Fan-Out Engine and collaborator registration (spec section 3: "plus
// extra fields registered by collaborators") mutate S.
func (s *Shared) Set(key, jsonValue string) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if _, known := s.fields[key]; !known && !isWellKnown(key) {
		s.keyOrder = append(s.keyOrder, key)
	}
	s.fields[key] = jsonValue
	s.republishLocked()
}

// SetAll stores several fields as one atomic update, republishing initBlob
// only once. Event handlers that touch several fields per event (e.g. "new
// block": mempoolInfo, blocks, mempool-blocks, loadingIndicators, da, fees)
// should prefer SetAll over repeated Set calls, both for the single
// republish and so readers never observe a partially-updated event.
func (s *Shared) SetAll(fields map[string]string) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	for key, val := range fields {
		if _, known := s.fields[key]; !known && !isWellKnown(key) {
			s.keyOrder = append(s.keyOrder, key)
		}
		s.fields[key] = val
	}
	s.republishLocked()
}

func isWellKnown(key string) bool {
	for _, k := range initBlobKeyOrder {
		if k == key {
			return true
		}
	}
	return false
}

// republishLocked recomputes initBlob. Callers must hold s.mtx for
// writing.
func (s *Shared) republishLocked() {
	keys := make([]string, 0, len(initBlobKeyOrder)+len(s.keyOrder))
	keys = append(keys, initBlobKeyOrder...)
	keys = append(keys, s.keyOrder...)
	s.initBlob = Serialize(keys, s.fields)
}

// Get returns the current serialized value of key and whether it is
// populated.
func (s *Shared) Get(key string) (string, bool) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	v, ok := s.fields[key]
	return v, ok
}

// InitBlob returns the current precomputed concatenated JSON object, plus
// whether the "blocks" field -- which gates sending it at all (spec
// section 6: "Not sent if blocks is empty") -- is populated and non-empty
// (an empty string or "[]" counts as empty; any other value, "{}"
// included, counts as ready).
func (s *Shared) InitBlob() (blob string, blocksReady bool) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	blocks, ok := s.fields[FieldBlocks]
	return s.initBlob, ok && blocks != "" && blocks != "[]"
}

// Fields returns a shallow copy of every currently populated field, keyed
// by field name with its already-serialized JSON value. Callers that need
// to merge S's populated fields directly into a larger response object
// (spec section 6: initBlob's keys are exactly the populated fields of S,
// not a single nested value) should use this instead of InitBlob, which
// returns the fields pre-concatenated into one opaque string.
func (s *Shared) Fields() map[string]string {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	out := make(map[string]string, len(s.fields))
	for k, v := range s.fields {
		out[k] = v
	}
	return out
}

// NeedsInitRefresh reports whether any of the fields the "init" handler
// requires before it can serve initBlob (spec section 4.1 item 9: blocks,
// da, backendInfo, conversions) are currently missing.
func (s *Shared) NeedsInitRefresh() bool {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	for _, f := range initReadinessFields {
		if _, ok := s.fields[f]; !ok {
			return true
		}
	}
	return false
}

// Cache is the per-event Serialization Cache (spec section 2.4): a
// scratch map of key -> JSON string, seeded by shallow-copying Shared at
// the start of one fan-out pass, then filled lazily by GetCached as the
// event handler needs values Shared did not already have cached (e.g. a
// per-address or per-tx payload that is only computed if some client is
// tracking it).
type Cache struct {
	mtx    sync.Mutex
	values map[string]string
}

// NewCache seeds a Cache by shallow-copying shared's current fields. This
// happens once per upstream event; all client loops for that event share
// the resulting Cache (spec section 3: "shared across all client loops for
// that single event").
func NewCache(shared *Shared) *Cache {
	shared.mtx.RLock()
	defer shared.mtx.RUnlock()
	values := make(map[string]string, len(shared.fields))
	for k, v := range shared.fields {
		values[k] = v
	}
	return &Cache{values: values}
}

// Get returns a previously-seeded or previously-computed value for key.
func (c *Cache) Get(key string) (string, bool) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	v, ok := c.values[key]
	return v, ok
}

// GetCached returns the cached value for key if present; otherwise it
// calls compute(), stores the result, and returns it. compute is only
// invoked on a cache miss, and only once even if many client loops race to
// request the same key in the same event (spec section 2.4: "populated
// lazily ... returns the same string on subsequent hits in the same
// fan-out").
func (c *Cache) GetCached(key string, compute func() (string, error)) (string, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if v, ok := c.values[key]; ok {
		return v, nil
	}
	v, err := compute()
	if err != nil {
		return "", err
	}
	c.values[key] = v
	return v, nil
}

// Put stores value under key without going through compute, for handlers
// that have already produced the value by some other means (e.g. the
// per-client outspend index, which is computed once up front for the whole
// event rather than lazily per client).
func (c *Cache) Put(key, value string) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.values[key] = value
}
