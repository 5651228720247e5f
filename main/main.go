// (c) 2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	log "github.com/inconshreveable/log15"

	"github.com/ava-labs/avalanchego/database"
	"github.com/ava-labs/avalanchego/database/leveldb"
	"github.com/ava-labs/avalanchego/database/memdb"
	"github.com/ava-labs/avalanchego/utils/logging"

	"github.com/ava-labs/contractvm/contractvm"
)

func main() {
	config, err := GetConfig()
	if err != nil {
		fmt.Printf("couldn't get config: %s\n", err)
		os.Exit(1)
	}
	// Print version and exit
	if config.PrintVersion {
		fmt.Printf("%s@%s\n", contractvm.Name, contractvm.Version)
		os.Exit(0)
	}

	db, err := openDatabase(config)
	if err != nil {
		log.Error("couldn't open database", "err", err)
		os.Exit(1)
	}

	vm, err := (&contractvm.Factory{}).New(db)
	if err != nil {
		log.Error("couldn't initialize engine", "err", err)
		os.Exit(1)
	}
	defer vm.Close()

	handler, err := contractvm.NewHandler(vm)
	if err != nil {
		log.Error("couldn't build API handler", "err", err)
		os.Exit(1)
	}
	staticHandler, err := contractvm.NewStaticHandler()
	if err != nil {
		log.Error("couldn't build static API handler", "err", err)
		os.Exit(1)
	}

	mux := http.NewServeMux()
	mux.Handle("/", handler)
	mux.Handle("/static", staticHandler)

	addr := fmt.Sprintf(":%d", config.HTTPPort)
	log.Info("serving JSON-RPC", "addr", addr, "db", config.DBBackend)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

func openDatabase(config Config) (database.Database, error) {
	switch config.DBBackend {
	case memDB:
		return memdb.New(), nil
	case levelDB:
		return leveldb.New(filepath.Join(config.DataDir, "db"), nil, logging.NoLog{})
	default:
		return nil, fmt.Errorf("unknown db backend %q", config.DBBackend)
	}
}
