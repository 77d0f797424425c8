package core

import (
	errorsmod "cosmossdk.io/errors"

	chmath "PerpClearing/internal/math"
)

// Command envelope errors. They share the validation range with the state
// package.
var (
	ErrUnknownOperation  = errorsmod.Register(chmath.Codespace, 27, "unknown operation")
	ErrCommandOutOfOrder = errorsmod.Register(chmath.Codespace, 28, "command out of sequence")
	ErrInvalidCommand    = errorsmod.Register(chmath.Codespace, 29, "invalid command")
)

// ErrStateHashMismatch means a replayed command did not reproduce the hash
// it was logged with.
var ErrStateHashMismatch = errorsmod.Register(chmath.Codespace, 80, "state hash mismatch")
