// Package addrindex builds the address/script -> transaction-set mapping
// used by the fan-out engine to answer "did any of these new/removed
// transactions touch an address a client is tracking" (spec section 2,
// component 1, and section 3's "Address Index").
//
// It is a pure function library: given a batch of transactions it produces
// a map, and holds no state of its own, exactly like the teacher's
// db/dbtypes conversion helpers operate on a wire.MsgBlock with no
// receiver state.
package addrindex

// Tx is the minimal shape addrindex needs from a transaction: its id and
// the addresses/scripts its inputs and outputs touch. Collaborators
// (mempool engine, block store) are expected to have already resolved
// prevout addresses before calling Build.
type Tx struct {
	Txid      string
	Addresses []string // every address/canonical script this tx's vins+vouts touch
}

// Index maps a canonical address or scriptPubKey to the set of transaction
// ids that touch it, in first-seen order within the batch.
type Index map[string][]string

// Build constructs an Index over a batch of transactions. Each address in
// tx.Addresses gets an entry appending tx.Txid; a transaction with no
// resolved addresses contributes nothing. Order of Addresses within a tx is
// preserved, and the same txid is never appended twice for the same
// address even if it appears more than once in tx.Addresses.
func Build(txs []Tx) Index {
	idx := make(Index, len(txs))
	for _, tx := range txs {
		seen := make(map[string]struct{}, len(tx.Addresses))
		for _, addr := range tx.Addresses {
			if addr == "" {
				continue
			}
			if _, dup := seen[addr]; dup {
				continue
			}
			seen[addr] = struct{}{}
			idx[addr] = append(idx[addr], tx.Txid)
		}
	}
	return idx
}

// TxidsFor returns the transactions touching addr, or nil if addr was not
// indexed in this batch.
func (idx Index) TxidsFor(addr string) []string {
	return idx[addr]
}

// Has reports whether any transaction in the batch touched addr.
func (idx Index) Has(addr string) bool {
	_, ok := idx[addr]
	return ok
}

// BuildMulti runs Build once over txs and returns the entries for the
// canonical addresses/scripts in addrs that have at least one match. This
// is the shape the fan-out engine needs for a client's plural
// trackAddresses/trackScriptpubkeys map (spec section 4.2, "trackAddress /
// trackAddresses / trackScriptpubkeys").
func BuildMulti(txs []Tx, addrs []string) map[string][]string {
	full := Build(txs)
	out := make(map[string][]string)
	for _, a := range addrs {
		if hits, ok := full[a]; ok {
			out[a] = hits
		}
	}
	return out
}
