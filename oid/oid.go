// Package oid defines the 20-byte SHA-1 object-id value type shared
// across vost's packages (spec §3: "Object IDs ... 40-character
// lowercase hex SHA-1 strings"). It is deliberately dependency-free so
// every other vost package - gitwrap, tree, refs, notes, mirror, xfer,
// and the root package - can import it without creating cycles.
package oid

import (
	"bytes"
	"encoding/hex"
	"fmt"
)

// Size is the raw byte length of a SHA-1 object id.
const Size = 20

// OID is a 40-hex-character SHA-1 object id in raw form. The zero
// value is the all-zeros id, meaning "no such object" per spec §3.
type OID [Size]byte

// Zero is the all-zeros OID ("no such object").
var Zero = OID{}

func (o OID) String() string {
	return hex.EncodeToString(o[:])
}

// IsZero reports whether o is the all-zeros id.
func (o OID) IsZero() bool {
	return o == Zero
}

// Parse decodes a 40-character lowercase hex string into an OID.
func Parse(s string) (OID, error) {
	var o OID
	if hex.DecodedLen(len(s)) != Size {
		return Zero, fmt.Errorf("oid: %q is not a valid 40-hex object id", s)
	}
	if _, err := hex.Decode(o[:], []byte(s)); err != nil {
		return Zero, fmt.Errorf("oid: %q is not a valid 40-hex object id: %w", s, err)
	}
	return o, nil
}

// MustParse is Parse, panicking on error; for use with literal
// constants in tests.
func MustParse(s string) OID {
	o, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return o
}

// Less orders two OIDs by their raw byte value, used to produce a
// stable sort order independent of discovery order (spec §8 scenario 1
// requires deterministic parent ordering in places).
func Less(a, b OID) bool {
	return bytes.Compare(a[:], b[:]) < 0
}

// BySha is a sort.Interface adapter for []OID.
type BySha []OID

func (s BySha) Len() int           { return len(s) }
func (s BySha) Swap(i, j int)      { s[i], s[j] = s[j], s[i] }
func (s BySha) Less(i, j int) bool { return Less(s[i], s[j]) }

// Set is a simple set of OIDs.
type Set map[OID]struct{}

func NewSet(ov ...OID) Set {
	s := make(Set, len(ov))
	for _, o := range ov {
		s.Add(o)
	}
	return s
}

func (s Set) Add(o OID)          { s[o] = struct{}{} }
func (s Set) Contains(o OID) bool { _, ok := s[o]; return ok }

func (s Set) Elements() []OID {
	ev := make([]OID, 0, len(s))
	for o := range s {
		ev = append(ev, o)
	}
	return ev
}
