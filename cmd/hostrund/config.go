package main

import (
	"fmt"

	"github.com/avolkov/hostrun/internal/config"
	"github.com/avolkov/hostrun/internal/config/filestore"
	"github.com/avolkov/hostrun/internal/lg"
)

const (
	serviceName       = "hostrund"
	defaultConfigPath = "hostrund.yaml"
)

// ServiceConfig is the agent's own configuration.
type ServiceConfig struct {
	Server struct {
		Port string `yaml:"port" json:"port"`
	} `yaml:"server" json:"server"`

	// Inventory selects where the host list lives: a YAML file or a
	// MongoDB document.
	Inventory struct {
		Store string              `yaml:"store" json:"store"` // "file" or "mongo"
		Path  string              `yaml:"path" json:"path"`
		Mongo *config.MongoConfig `yaml:"mongo" json:"mongo"`
	} `yaml:"inventory" json:"inventory"`

	Kafka struct {
		Brokers      []string `yaml:"brokers" json:"brokers"`
		RequestTopic string   `yaml:"requestTopic" json:"requestTopic"`
		ResultTopic  string   `yaml:"resultTopic" json:"resultTopic"`
		GroupID      string   `yaml:"groupID" json:"groupID"`
	} `yaml:"kafka" json:"kafka"`

	// ResultsDir, when set, keeps one JSON file per finished job.
	ResultsDir string `yaml:"resultsDir" json:"resultsDir"`
}

func loadServiceConfig(path string) (*ServiceConfig, error) {
	var cfg ServiceConfig
	if err := filestore.New(path, nil).Load(&cfg); err != nil {
		return nil, err
	}
	if cfg.Server.Port == "" {
		cfg.Server.Port = "8081"
	}
	if cfg.Inventory.Store == "" {
		cfg.Inventory.Store = "file"
	}
	return &cfg, nil
}

// inventoryStore builds the configured store for the host inventory.
func (c *ServiceConfig) inventoryStore(log lg.Logger) (config.Config, error) {
	switch c.Inventory.Store {
	case "file":
		return config.NewStore(config.FileStore, &config.FileConfig{Path: c.Inventory.Path}, log)
	case "mongo":
		if c.Inventory.Mongo == nil {
			return nil, fmt.Errorf("inventory store is mongo but no mongo config given")
		}
		return config.NewStore(config.MongoStore, c.Inventory.Mongo, log)
	default:
		return nil, fmt.Errorf("unknown inventory store %q", c.Inventory.Store)
	}
}
