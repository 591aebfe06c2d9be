package app

import (
	"fmt"
	"time"

	"github.com/specialistvlad/nodegrid/internal/validation"
)

// Plugin store backends.
const (
	StoreDir      = "dir"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	// GraphPath is the JSON graph document to load and run.
	GraphPath string `json:"graph" validate:"required_without=ListPlugins"`
	// PluginsPath is a directory of HCL plugin manifests. With a database
	// store, its manifests are imported into the database at startup.
	PluginsPath string `json:"plugins"`
	PluginStore string `json:"plugin_store" validate:"required,oneof=dir sqlite postgres"`
	DatabaseURL string `json:"database_url" validate:"required_unless=PluginStore dir"`

	// NodeID runs a single node instead of the whole graph.
	NodeID string `json:"node"`
	// SavePath writes the graph back after the run.
	SavePath    string `json:"save"`
	ListPlugins bool   `json:"list_plugins"`

	EventsURL       string `json:"events_url" validate:"omitempty,url"`
	EventsNamespace string `json:"events_namespace"`
	// EventsInsecure skips TLS verification of the events server.
	EventsInsecure bool `json:"events_insecure"`

	ScriptTimeout   time.Duration `json:"script_timeout" validate:"gte=0"`
	HealthcheckPort int           `json:"healthcheck_port" validate:"gte=0,lte=65535"`
	LogFormat       string        `json:"log_format" validate:"required,oneof=text json"`
	LogLevel        string        `json:"log_level" validate:"required,oneof=debug info warn error"`
}

// NewConfig fills in defaults and validates cfg.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.PluginStore == "" {
		cfg.PluginStore = StoreDir
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "text"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if err := validation.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}
