package types

import "sync"

// WantClass is one of the broadcast classes a client may toggle with a
// "want" frame (spec section 3).
type WantClass string

const (
	WantBlocks        WantClass = "blocks"
	WantMempoolBlocks  WantClass = "mempool-blocks"
	WantLive2hChart   WantClass = "live-2h-chart"
	WantStats         WantClass = "stats"
	WantTomahawk      WantClass = "tomahawk"
)

// AllWantClasses is the recognized set of WantClass names; anything else in
// a "want" frame's data array is ignored (spec section 4.1 is explicit that
// unrecognized keys/classes are simply not acted on).
var AllWantClasses = []WantClass{
	WantBlocks, WantMempoolBlocks, WantLive2hChart, WantStats, WantTomahawk,
}

// ClientSession is the per-connection state described in spec section 3.
// Every tracked handle holds only its already-validated canonical form;
// invalid input clears the slot instead of storing the raw value. A nil
// pointer/empty-string/zero value means "not tracking", except for
// TrackMempoolBlock, where -1 means "not tracking" and 0 is block 0.
type ClientSession struct {
	mtx sync.RWMutex

	RemoteAddress string

	want map[WantClass]bool

	TrackTx         string // 64 lowercase hex, or ""
	TrackMempoolTx  string // same domain as TrackTx; awaiting first sighting
	TrackAddress    string // canonical address or scriptPubKey
	TrackAddresses  map[string]string // raw -> canonical
	TrackScriptpubkeys []string       // canonical lowercase hex, in request order
	TrackAsset      string           // 64 hex
	TrackMempoolBlock int             // -1 means "not tracking"
	TrackRbf        RbfMode
	TrackRbfSummary bool
	TrackDonation   string // 22 chars, stored verbatim
	TrackBisqMarket string // "xxx_xxx"
}

// NewClientSession allocates a session with every tracking slot cleared.
func NewClientSession(remoteAddress string) *ClientSession {
	return &ClientSession{
		RemoteAddress:     remoteAddress,
		want:              make(map[WantClass]bool, len(AllWantClasses)),
		TrackMempoolBlock: -1,
	}
}

// Want reports whether the given broadcast class is currently enabled.
func (c *ClientSession) Want(class WantClass) bool {
	c.mtx.RLock()
	defer c.mtx.RUnlock()
	return c.want[class]
}

// SetWant replaces the full set of enabled broadcast classes with wanted,
// and returns the subset that is newly turned on by this call (spec
// section 4.1 item 1: "compute whether it is newly turned on ... then set
// the flag on the session").
func (c *ClientSession) SetWant(wanted map[WantClass]bool) (newlyOn map[WantClass]bool) {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	newlyOn = make(map[WantClass]bool)
	for _, class := range AllWantClasses {
		was := c.want[class]
		now := wanted[class]
		if now && !was {
			newlyOn[class] = true
		}
	}
	c.want = make(map[WantClass]bool, len(AllWantClasses))
	for class, on := range wanted {
		if on {
			c.want[class] = true
		}
	}
	return newlyOn
}

// Reset clears every tracking slot and broadcast class. Called when a
// connection closes so a reconnect starts from a clean slate (spec section
// 1: "on reconnection the client resubmits its interests").
func (c *ClientSession) Reset() {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.want = make(map[WantClass]bool, len(AllWantClasses))
	c.TrackTx = ""
	c.TrackMempoolTx = ""
	c.TrackAddress = ""
	c.TrackAddresses = nil
	c.TrackScriptpubkeys = nil
	c.TrackAsset = ""
	c.TrackMempoolBlock = -1
	c.TrackRbf = RbfOff
	c.TrackRbfSummary = false
	c.TrackDonation = ""
	c.TrackBisqMarket = ""
}

// WithLock runs fn while holding the session's write lock, for callers
// (the inbound decoder) that need to read-modify-write several fields
// atomically.
func (c *ClientSession) WithLock(fn func()) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	fn()
}

// Snapshot returns a shallow copy of the tracking state for read-only use
// during fan-out, taken under the read lock. The Event Fan-Out Engine reads
// a session's tracking slots once per event via Snapshot rather than
// re-locking per field.
type Snapshot struct {
	Want               map[WantClass]bool
	TrackTx            string
	TrackMempoolTx     string
	TrackAddress       string
	TrackAddresses     map[string]string
	TrackScriptpubkeys []string
	TrackAsset         string
	TrackMempoolBlock  int
	TrackRbf           RbfMode
	TrackRbfSummary    bool
	TrackDonation      string
	TrackBisqMarket    string
}

// Snapshot copies the session's current state for a single fan-out pass.
func (c *ClientSession) Snapshot() Snapshot {
	c.mtx.RLock()
	defer c.mtx.RUnlock()
	want := make(map[WantClass]bool, len(c.want))
	for k, v := range c.want {
		want[k] = v
	}
	return Snapshot{
		Want:               want,
		TrackTx:            c.TrackTx,
		TrackMempoolTx:     c.TrackMempoolTx,
		TrackAddress:       c.TrackAddress,
		TrackAddresses:     c.TrackAddresses,
		TrackScriptpubkeys: c.TrackScriptpubkeys,
		TrackAsset:         c.TrackAsset,
		TrackMempoolBlock:  c.TrackMempoolBlock,
		TrackRbf:           c.TrackRbf,
		TrackRbfSummary:    c.TrackRbfSummary,
		TrackDonation:      c.TrackDonation,
		TrackBisqMarket:    c.TrackBisqMarket,
	}
}
