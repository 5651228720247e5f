// (c) 2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package contractvm

import (
	"github.com/ava-labs/avalanchego/database"
	"github.com/ava-labs/avalanchego/ids"

	"github.com/ava-labs/contractvm/interp"
)

// ID is a unique identifier for this VM
var ID = ids.ID{'c', 'o', 'n', 't', 'r', 'a', 'c', 't', 'v', 'm'}

// Factory constructs engine instances wired with the built-in interpreter
// backend.
type Factory struct {
	Config Config
}

// New returns an engine over [db].
func (f *Factory) New(db database.Database) (*VM, error) {
	return New(db, interp.New(), f.Config)
}
