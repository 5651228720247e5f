// (c) 2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package contractvm

import (
	"errors"

	"github.com/ava-labs/avalanchego/cache"
	"github.com/ava-labs/avalanchego/database"
	"github.com/ava-labs/avalanchego/ids"
)

const (
	accountCacheSize = 8192
)

var (
	errAccountWrongVersion = errors.New("wrong account codec version")

	_ AccountState = &accountState{}
)

// AccountState persists account records keyed by address. The storage root
// inside a record only ever advances through PutAccount after a successful
// call commit.
type AccountState interface {
	GetAccount(addr ids.ShortID) (*Account, error)
	PutAccount(addr ids.ShortID, acct *Account) error
	HasAccount(addr ids.ShortID) (bool, error)
}

type accountState struct {
	acctCache cache.Cacher
	accountDB database.Database
}

func NewAccountState(db database.Database) AccountState {
	return &accountState{
		acctCache: &cache.LRU{Size: accountCacheSize},
		accountDB: db,
	}
}

func (s *accountState) GetAccount(addr ids.ShortID) (*Account, error) {
	key := cacheKey(addr)
	if acctIntf, cached := s.acctCache.Get(key); cached {
		return acctIntf.(*Account), nil
	}

	bytes, err := s.accountDB.Get(addr[:])
	if err != nil {
		return nil, err
	}

	acct := Account{}
	parsedVersion, err := Codec.Unmarshal(bytes, &acct)
	if err != nil {
		return nil, err
	}
	if parsedVersion != CodecVersion {
		return nil, errAccountWrongVersion
	}

	s.acctCache.Put(key, &acct)
	return &acct, nil
}

func (s *accountState) PutAccount(addr ids.ShortID, acct *Account) error {
	bytes, err := Codec.Marshal(CodecVersion, acct)
	if err != nil {
		return err
	}

	s.acctCache.Put(cacheKey(addr), acct)
	return s.accountDB.Put(addr[:], bytes)
}

func (s *accountState) HasAccount(addr ids.ShortID) (bool, error) {
	if _, cached := s.acctCache.Get(cacheKey(addr)); cached {
		return true, nil
	}
	return s.accountDB.Has(addr[:])
}

// cacheKey widens a 20-byte address into the 32-byte key type the LRU uses.
func cacheKey(addr ids.ShortID) ids.ID {
	key := ids.ID{}
	copy(key[:], addr[:])
	return key
}
