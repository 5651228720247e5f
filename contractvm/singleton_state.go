// (c) 2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package contractvm

import (
	"github.com/ava-labs/avalanchego/database"
)

const (
	IsInitializedKey byte = iota
	ProtocolVersionKey
)

var (
	isInitializedKey   = []byte{IsInitializedKey}
	protocolVersionKey = []byte{ProtocolVersionKey}

	_ SingletonState = (*singletonState)(nil)
)

// SingletonState tracks one-off engine facts: whether the database has been
// initialized and which protocol version (page geometry, gas schedule) it
// was initialized with. A database created under one protocol version must
// not be reopened under another, since roots and gas costs would diverge.
type SingletonState interface {
	IsInitialized() (bool, error)
	SetInitialized() error

	GetProtocolVersion() (uint8, error)
	SetProtocolVersion(version uint8) error
}

type singletonState struct {
	singletonDB database.Database
}

func NewSingletonState(db database.Database) SingletonState {
	return &singletonState{
		singletonDB: db,
	}
}

func (s *singletonState) IsInitialized() (bool, error) {
	return s.singletonDB.Has(isInitializedKey)
}

func (s *singletonState) SetInitialized() error {
	return s.singletonDB.Put(isInitializedKey, nil)
}

func (s *singletonState) GetProtocolVersion() (uint8, error) {
	raw, err := s.singletonDB.Get(protocolVersionKey)
	if err != nil {
		return 0, err
	}
	if len(raw) != 1 {
		return 0, database.ErrNotFound
	}
	return raw[0], nil
}

func (s *singletonState) SetProtocolVersion(version uint8) error {
	return s.singletonDB.Put(protocolVersionKey, []byte{version})
}
