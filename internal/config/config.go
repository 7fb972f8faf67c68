// Package config loads the host inventory and service configuration from a
// pluggable store (YAML file or MongoDB document).
package config

import (
	"errors"
	"fmt"

	"github.com/avolkov/hostrun/internal/config/configstore"
	"github.com/avolkov/hostrun/internal/config/filestore"
	"github.com/avolkov/hostrun/internal/config/mongostore"
	"github.com/avolkov/hostrun/internal/lg"
)

type StoreType int

const (
	FileStore StoreType = iota
	MongoStore
)

var ErrInvalidStoreType = errors.New("invalid store type")

// Config combines store capabilities with change watching.
type Config interface {
	configstore.ConfigStore
	Watch(onChange func()) error // optional for stores that support watching
}

type FileConfig struct {
	Path string `yaml:"path" json:"path"`
}

type MongoConfig struct {
	URI      string `yaml:"uri" json:"uri"`
	DBName   string `yaml:"dbName" json:"dbName"`
	CollName string `yaml:"collName" json:"collName"`
	ID       string `yaml:"id" json:"id"` // document ID
}

func NewStore(storeType StoreType, cfg any, log lg.Logger) (Config, error) {
	switch storeType {
	case FileStore:
		fileCfg, ok := cfg.(*FileConfig)
		if !ok {
			return nil, fmt.Errorf("invalid config type for file store, expected *FileConfig")
		}
		return filestore.New(fileCfg.Path, log), nil
	case MongoStore:
		mongoCfg, ok := cfg.(*MongoConfig)
		if !ok {
			return nil, fmt.Errorf("invalid config type for mongo store, expected *MongoConfig")
		}
		return mongostore.New(mongoCfg.URI, mongoCfg.DBName, mongoCfg.CollName, mongoCfg.ID)
	default:
		return nil, ErrInvalidStoreType
	}
}
