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
	templateCacheSize = 512
)

var (
	errTemplateWrongVersion = errors.New("wrong template codec version")

	_ TemplateState = &templateState{}
)

// TemplateState persists deployed templates keyed by their content-derived
// ID. Templates are immutable: a put either introduces a new record or
// rewrites an identical one.
type TemplateState interface {
	GetTemplate(id ids.ID) (*Template, error)
	PutTemplate(id ids.ID, tpl *Template) error
	HasTemplate(id ids.ID) (bool, error)
}

type templateState struct {
	tplCache   cache.Cacher
	templateDB database.Database
}

func NewTemplateState(db database.Database) TemplateState {
	return &templateState{
		tplCache:   &cache.LRU{Size: templateCacheSize},
		templateDB: db,
	}
}

func (s *templateState) GetTemplate(id ids.ID) (*Template, error) {
	if tplIntf, cached := s.tplCache.Get(id); cached {
		return tplIntf.(*Template), nil
	}

	bytes, err := s.templateDB.Get(id[:])
	if err != nil {
		return nil, err
	}

	tpl := Template{}
	parsedVersion, err := Codec.Unmarshal(bytes, &tpl)
	if err != nil {
		return nil, err
	}
	if parsedVersion != CodecVersion {
		return nil, errTemplateWrongVersion
	}

	s.tplCache.Put(id, &tpl)
	return &tpl, nil
}

func (s *templateState) PutTemplate(id ids.ID, tpl *Template) error {
	bytes, err := Codec.Marshal(CodecVersion, tpl)
	if err != nil {
		return err
	}

	s.tplCache.Put(id, tpl)
	return s.templateDB.Put(id[:], bytes)
}

func (s *templateState) HasTemplate(id ids.ID) (bool, error) {
	if _, cached := s.tplCache.Get(id); cached {
		return true, nil
	}
	return s.templateDB.Has(id[:])
}
