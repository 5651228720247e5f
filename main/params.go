// (c) 2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"flag"
	"fmt"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	versionKey   = "version"
	dataDirKey   = "data-dir"
	httpPortKey  = "http-port"
	dbBackendKey = "db-backend"

	memDB   = "memdb"
	levelDB = "leveldb"
)

// Config is the parsed process configuration.
type Config struct {
	// PrintVersion requests printing the version and exiting.
	PrintVersion bool
	// DataDir is where the on-disk database lives.
	DataDir string
	// HTTPPort is the JSON-RPC listen port.
	HTTPPort uint16
	// DBBackend selects the database implementation.
	DBBackend string
}

func buildFlagSet() *flag.FlagSet {
	fs := flag.NewFlagSet("contractvm", flag.ContinueOnError)

	fs.Bool(versionKey, false, "If true, prints version and quits")
	fs.String(dataDirKey, "contractvm-data", "Directory holding the engine database")
	fs.Uint(httpPortKey, 9750, "Port the JSON-RPC server listens on")
	fs.String(dbBackendKey, levelDB, "Database backend: leveldb or memdb")

	return fs
}

// getViper returns the viper environment for the engine binary
func getViper() (*viper.Viper, error) {
	v := viper.New()

	fs := buildFlagSet()
	pflag.CommandLine.AddGoFlagSet(fs)
	pflag.Parse()
	if err := v.BindPFlags(pflag.CommandLine); err != nil {
		return nil, err
	}

	return v, nil
}

// GetConfig parses flags into a Config.
func GetConfig() (Config, error) {
	v, err := getViper()
	if err != nil {
		return Config{}, err
	}

	config := Config{
		PrintVersion: v.GetBool(versionKey),
		DataDir:      v.GetString(dataDirKey),
		HTTPPort:     uint16(v.GetUint(httpPortKey)),
		DBBackend:    v.GetString(dbBackendKey),
	}
	switch config.DBBackend {
	case memDB, levelDB:
	default:
		return Config{}, fmt.Errorf("unknown db backend %q", config.DBBackend)
	}
	return config, nil
}
