// Package addrvalidate canonicalizes the address/script handles a client
// may ask to track (spec section 4.1, "Address canonicalization"). It is a
// pure, allocation-light function library with no server state, built on
// regular expressions and string operations only (no btcsuite chain
// parameters or script parsing).
package addrvalidate

import (
	"encoding/hex"
	"regexp"
	"strings"
)

// classification regexes, matched in the order spec section 4.1 lists them.
var (
	reLegacyBase58    = regexp.MustCompile(`^[13][a-km-zA-HJ-NP-Z1-9]{25,35}$|^[a-km-zA-HJ-NP-Z1-9]{80}$`)
	reBech32Lower      = regexp.MustCompile(`^[a-z]+1[ac-hj-np-z02-9]{6,}$`)
	reBech32Upper      = regexp.MustCompile(`^[A-Z]+1[AC-HJ-NP-Z02-9]{6,}$`)
	reUncompressedPub = regexp.MustCompile(`^04[0-9a-fA-F]{128}$`)
	reCompressedPub   = regexp.MustCompile(`^(02|03)[0-9a-fA-F]{64}$`)
	reP2PKUncompressed = regexp.MustCompile(`^4104[0-9a-f]{128}ac$`)
	reP2PKCompressed   = regexp.MustCompile(`^21(02|03)[0-9a-f]{64}ac$`)
)

// Canonicalize validates and normalizes a single address/script handle.
// ok is false if the input matches none of the recognized forms; callers
// must leave the corresponding tracking slot untouched (cleared) in that
// case rather than storing the raw input.
//
// Transformations (spec section 4.1):
//   - uppercase bech32/bech32m -> lowercased
//   - uncompressed pubkey (04||X||Y) -> P2PK script 41<key>ac
//   - compressed pubkey (02|03||X)   -> P2PK script 21<key>ac
//   - legacy base58 / lowercase bech32 -> returned unchanged
//   - lowercase P2PK script in the two forms above -> returned unchanged
func Canonicalize(input string) (canonical string, ok bool) {
	switch {
	case reUncompressedPub.MatchString(input):
		return "41" + strings.ToLower(input) + "ac", true
	case reCompressedPub.MatchString(input):
		return "21" + strings.ToLower(input) + "ac", true
	case reBech32Upper.MatchString(input):
		return strings.ToLower(input), true
	case reBech32Lower.MatchString(input):
		return input, true
	case reLegacyBase58.MatchString(input):
		return input, true
	case reP2PKUncompressed.MatchString(input), reP2PKCompressed.MatchString(input):
		return input, true
	default:
		return "", false
	}
}

// CanonicalizeScriptpubkey validates a raw hex scriptPubKey for the plural
// "track-scriptpubkeys" form: lowercase hex, non-empty, even length.
func CanonicalizeScriptpubkey(input string) (canonical string, ok bool) {
	lower := strings.ToLower(input)
	if lower == "" || len(lower)%2 != 0 {
		return "", false
	}
	if _, err := hex.DecodeString(lower); err != nil {
		return "", false
	}
	return lower, true
}

var reTxid = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)

// ValidTxid reports whether s is exactly 64 hex characters, per the
// boundary test in spec section 8 ("63 hex chars is rejected; 64 hex is
// accepted; 64 non-hex is rejected"). Matching is case-insensitive but the
// canonical stored form is always lowercase.
func ValidTxid(s string) (canonical string, ok bool) {
	if !reTxid.MatchString(s) {
		return "", false
	}
	return strings.ToLower(s), true
}

// ValidAssetID validates a 64-hex sidechain asset id (spec section 4.1
// item 5), same shape as a txid.
func ValidAssetID(s string) (canonical string, ok bool) {
	return ValidTxid(s)
}

var reDonation = regexp.MustCompile(`^.{22}$`)

// ValidDonationID validates the 22-character literal donation id (spec
// section 4.1 item 11). No further canonicalization is applied.
func ValidDonationID(s string) (canonical string, ok bool) {
	if !reDonation.MatchString(s) {
		return "", false
	}
	return s, true
}

var reBisqMarket = regexp.MustCompile(`^[a-z]{3}_[a-z]{3}$`)

// ValidBisqMarket validates the "xxx_xxx" market pair regex (spec section
// 4.1 item 12).
func ValidBisqMarket(s string) (canonical string, ok bool) {
	if !reBisqMarket.MatchString(s) {
		return "", false
	}
	return s, true
}

// IsIdempotent reports whether re-running Canonicalize on its own output
// returns the same string unchanged — the round-trip law of spec section 8
// ("Address validator is idempotent on its own canonical output").
func IsIdempotent(canonical string) bool {
	again, ok := Canonicalize(canonical)
	return ok && again == canonical
}
