// Package cid assigns deterministic, collision-resistant content
// identifiers to otherwise-anonymous CDEvent bodies: SHA-256 wrapped in a
// multihash envelope, encoded as a CIDv1 with the raw multicodec, rendered
// as the default base32 textual form (lowercase, "b" multibase prefix).
package cid

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"
	"fmt"

	gocid "github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"
)

// rawCodec is the multicodec "raw" (0x55).
const rawCodec = 0x55

// FromCanonicalJSON computes the textual content identifier over data,
// which the caller must already have serialized canonically (Go's
// encoding/json sorts object keys at every nesting level when marshaling a
// map, which this package treats as its canonical form).
func FromCanonicalJSON(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	digest, err := mh.Encode(sum[:], mh.SHA2_256)
	if err != nil {
		return "", fmt.Errorf("cid: encode multihash: %w", err)
	}
	c := gocid.NewCidV1(rawCodec, digest)
	return c.String(), nil
}

// FromValue marshals v canonically (sorted map keys, no HTML escaping) and
// returns its content identifier.
func FromValue(v any) (string, error) {
	data, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("cid: marshal: %w", err)
	}
	return FromCanonicalJSON(data)
}

// MarshalCanonical serializes v the way content identifiers are computed
// over: encoding/json with HTML-escaping disabled, which (combined with
// Go's built-in alphabetical ordering of map keys) yields a stable byte
// sequence for equal values regardless of original key order.
func MarshalCanonical(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	// json.Encoder.Encode appends a trailing newline; strip it so the
	// digest matches a plain json.Marshal of the same value.
	b := buf.Bytes()
	if n := len(b); n > 0 && b[n-1] == '\n' {
		b = b[:n-1]
	}
	return b, nil
}
