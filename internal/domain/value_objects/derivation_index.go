package valueobjects

import (
	"crypto/sha256"
	"encoding/binary"
	"strconv"
)

// DerivationIndex is the per-user variable component of a derivation path, or
// the memo on shared-address chains. Distinct users can collide (birthday bound
// over 2^32); collisions are neither detected nor rejected.
type DerivationIndex uint32

func NewDerivationIndex(userID string) DerivationIndex {
	sum := sha256.Sum256([]byte(userID))
	return DerivationIndex(binary.BigEndian.Uint32(sum[:4]))
}

func (i DerivationIndex) Uint32() uint32 {
	return uint32(i)
}

func (i DerivationIndex) String() string {
	return strconv.FormatUint(uint64(i), 10)
}
