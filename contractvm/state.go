// (c) 2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package contractvm

import (
	"github.com/ava-labs/avalanchego/database"
	"github.com/ava-labs/avalanchego/database/prefixdb"
	"github.com/ava-labs/avalanchego/database/versiondb"

	"github.com/ava-labs/contractvm/storage"
)

var (
	// These are prefixes for db keys.
	// It's important to set different prefixes for each separate database objects.
	singletonStatePrefix = []byte("singleton")
	templateStatePrefix  = []byte("template")
	accountStatePrefix   = []byte("account")
	pageStatePrefix      = []byte("page")

	_ State = &state{}
)

// State is a wrapper around the engine's persisted record families. All
// writes buffer in a versiondb until Commit flushes them atomically; Abort
// drops everything pending. Commit is the only transaction boundary in the
// engine, which is what makes a call's storage effects all-or-nothing.
type State interface {
	SingletonState
	TemplateState
	AccountState

	Pages() *storage.Store

	Commit() error
	Abort()
	Close() error
}

type state struct {
	SingletonState
	TemplateState
	AccountState

	pages  *storage.Store
	baseDB *versiondb.Database
}

func NewState(db database.Database) State {
	// create a new baseDB
	baseDB := versiondb.New(db)

	// create a prefixed db for each record family from baseDB
	singletonDB := prefixdb.New(singletonStatePrefix, baseDB)
	templateDB := prefixdb.New(templateStatePrefix, baseDB)
	accountDB := prefixdb.New(accountStatePrefix, baseDB)
	pageDB := prefixdb.New(pageStatePrefix, baseDB)

	return &state{
		SingletonState: NewSingletonState(singletonDB),
		TemplateState:  NewTemplateState(templateDB),
		AccountState:   NewAccountState(accountDB),
		pages:          storage.New(pageDB),
		baseDB:         baseDB,
	}
}

// Pages returns the page store rooted in this state's transaction boundary.
func (s *state) Pages() *storage.Store { return s.pages }

// Commit commits pending operations to baseDB
func (s *state) Commit() error {
	return s.baseDB.Commit()
}

// Abort drops all pending operations.
func (s *state) Abort() {
	s.baseDB.Abort()
}

// Close closes the underlying base database
func (s *state) Close() error {
	return s.baseDB.Close()
}
