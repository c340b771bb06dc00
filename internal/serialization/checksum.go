package serialization

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeChecksum computes SHA-256 checksum of data.
func ComputeChecksum(data []byte) [32]byte {
	return sha256.Sum256(data)
}

// ValidateChecksum compares the checksum of data against the hex digest
// stored in the file metadata.
// Returns ErrChecksumMismatch if they don't match.
func ValidateChecksum(data []byte, stored string) error {
	if stored == "" {
		return ErrMissingChecksum
	}
	want, err := hex.DecodeString(stored)
	if err != nil || len(want) != sha256.Size {
		return fmt.Errorf("%w: malformed digest %q", ErrChecksumMismatch, stored)
	}
	computed := ComputeChecksum(data)
	if [32]byte(want) != computed {
		return ErrChecksumMismatch
	}
	return nil
}
