package elm

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainLibrary    = "rulecql/library/v1"
	DomainExpression = "rulecql/expression/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// LibraryHash computes the content hash of a library from its canonical form.
// Two libraries with structurally equal statements hash identically.
func LibraryHash(l *Library) (string, error) {
	canonical, err := MarshalCanonical(l)
	if err != nil {
		return "", fmt.Errorf("LibraryHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainLibrary, canonical), nil
}

// ExpressionHash computes the content hash of a single expression tree.
func ExpressionHash(e Expression) (string, error) {
	canonical, err := MarshalCanonical(e)
	if err != nil {
		return "", fmt.Errorf("ExpressionHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainExpression, canonical), nil
}

// Equal reports whether two expressions are structurally identical.
func Equal(a, b Expression) bool {
	ha, errA := ExpressionHash(a)
	hb, errB := ExpressionHash(b)
	return errA == nil && errB == nil && ha == hb
}
