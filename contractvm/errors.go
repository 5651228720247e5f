// (c) 2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package contractvm

import (
	"errors"
)

var (
	// Validation failures. Rejected synchronously, before any gas is spent
	// or storage is touched.
	ErrInvalidTemplate  = errors.New("invalid template")
	ErrTemplateNotFound = errors.New("template not found")
	ErrAccountNotFound  = errors.New("account not found")
	ErrAccountExists    = errors.New("account already exists")
	ErrUnknownFunction  = errors.New("function not exported by template")

	// ErrStateCorrupt marks the engine after a failed durable commit. The
	// durability of prior writes is uncertain at that point, so every
	// subsequent operation fails fast instead of risking divergence.
	ErrStateCorrupt = errors.New("engine state corrupt after failed commit")
)
