package store

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashIdentity converts a platform user identity into the opaque hash
// stored in User.HashedUserID. The raw identity never reaches the
// database; every collaborator addresses users by this hash.
func HashIdentity(platformID string) string {
	sum := sha256.Sum256([]byte(platformID))
	return hex.EncodeToString(sum[:])
}
