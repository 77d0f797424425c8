package state

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Handle is an opaque 32-byte identity: a trader's authority, a vault, a log
// or a position set. Handles are lookup keys only, never owning references.
type Handle [32]byte

// DefaultHandle marks an unset reference.
var DefaultHandle = Handle{}

func (h Handle) IsZero() bool { return h == DefaultHandle }

func (h Handle) String() string { return hex.EncodeToString(h[:]) }

func (h Handle) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

func (h *Handle) UnmarshalText(text []byte) error {
	parsed, err := ParseHandle(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// ParseHandle decodes a 64-character hex string.
func ParseHandle(s string) (Handle, error) {
	var h Handle
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("invalid handle %q: %w", s, err)
	}
	if len(b) != len(h) {
		return h, fmt.Errorf("invalid handle %q: want %d bytes, got %d", s, len(h), len(b))
	}
	copy(h[:], b)
	return h, nil
}

// DeriveHandle returns a deterministic handle for the account of the given
// kind owned by owner (e.g. a user's position set).
func DeriveHandle(owner Handle, kind string) Handle {
	sum := sha256.Sum256(append(owner[:], kind...))
	return Handle(sum)
}
