// Package config loads the service configuration from an HCL file. The file
// may reference environment variables through the env namespace, e.g.
//
//	oracle {
//	  api_key = env.OPENAI_API_KEY
//	}
package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/aurea-hq/underwriting/internal/ctxlog"
)

// Config is the fully resolved service configuration.
type Config struct {
	Server   Server
	Feeds    Feeds
	Oracle   Oracle
	Policies Policies
	Store    Store
	Pipeline Pipeline
}

// fileRoot decodes the top-level blocks; every block is optional and missing
// blocks fall back to defaults.
type fileRoot struct {
	Server   *Server   `hcl:"server,block"`
	Feeds    *Feeds    `hcl:"feeds,block"`
	Oracle   *Oracle   `hcl:"oracle,block"`
	Policies *Policies `hcl:"policies,block"`
	Store    *Store    `hcl:"store,block"`
	Pipeline *Pipeline `hcl:"pipeline,block"`
}

// Server configures the HTTP listener.
type Server struct {
	ListenAddr string `hcl:"listen_addr,optional"`
}

// Feeds configures the external data sources.
type Feeds struct {
	GeocoderURL     string `hcl:"geocoder_url,optional"`
	PlanningURL     string `hcl:"planning_url,optional"`
	PlanningAPIKey  string `hcl:"planning_api_key,optional"`
	PostcodesURL    string `hcl:"postcodes_url,optional"`
	FloodZoneURL    string `hcl:"flood_zone_url,optional"`
	FloodWarningURL string `hcl:"flood_warning_url,optional"`
	EnergyURL       string `hcl:"energy_url,optional"`
	EnergyAPIKey    string `hcl:"energy_api_key,optional"`
	CrimeURL        string `hcl:"crime_url,optional"`
	TimeoutSeconds  int    `hcl:"timeout_seconds,optional"`
}

// Oracle configures the reasoning model endpoint. An empty model disables the
// oracle; the pipeline then always uses its deterministic fallbacks.
type Oracle struct {
	BaseURL        string `hcl:"base_url,optional"`
	APIKey         string `hcl:"api_key,optional"`
	Model          string `hcl:"model,optional"`
	EmbeddingModel string `hcl:"embedding_model,optional"`
}

// Policies configures the underwriting guideline corpus.
type Policies struct {
	CorpusPath string `hcl:"corpus_path,optional"`
}

// Store configures assessment persistence.
type Store struct {
	Backend string `hcl:"backend,optional"` // "memory" or "nats"
	NATSURL string `hcl:"nats_url,optional"`
	Bucket  string `hcl:"bucket,optional"`
}

// Pipeline configures the stage executor.
type Pipeline struct {
	Workers int `hcl:"workers,optional"`
}

// Timeout returns the feed HTTP timeout.
func (f Feeds) Timeout() time.Duration {
	return time.Duration(f.TimeoutSeconds) * time.Second
}

// Default returns the configuration used when no file is given: public data
// sources, memory persistence, no oracle.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load parses and validates the HCL configuration file at path.
func Load(ctx context.Context, path string) (*Config, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Loading configuration.", "path", path)

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parsing config file %s: %w", path, diags)
	}

	var root fileRoot
	if diags := gohcl.DecodeBody(file.Body, evalContext(), &root); diags.HasErrors() {
		return nil, fmt.Errorf("decoding config file %s: %w", path, diags)
	}

	var cfg Config
	if root.Server != nil {
		cfg.Server = *root.Server
	}
	if root.Feeds != nil {
		cfg.Feeds = *root.Feeds
	}
	if root.Oracle != nil {
		cfg.Oracle = *root.Oracle
	}
	if root.Policies != nil {
		cfg.Policies = *root.Policies
	}
	if root.Store != nil {
		cfg.Store = *root.Store
	}
	if root.Pipeline != nil {
		cfg.Pipeline = *root.Pipeline
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	logger.Debug("Configuration loaded.", "store_backend", cfg.Store.Backend, "oracle_model", cfg.Oracle.Model)
	return &cfg, nil
}

// evalContext exposes the process environment as the env object.
func evalContext() *hcl.EvalContext {
	vars := map[string]cty.Value{}
	for _, kv := range os.Environ() {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			continue
		}
		vars[key] = cty.StringVal(value)
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{"env": cty.ObjectVal(vars)},
	}
}

func (c *Config) applyDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = ":8080"
	}
	if c.Feeds.GeocoderURL == "" {
		c.Feeds.GeocoderURL = "https://nominatim.openstreetmap.org"
	}
	if c.Feeds.PlanningURL == "" {
		c.Feeds.PlanningURL = "https://ibex.seractech.co.uk"
	}
	if c.Feeds.PostcodesURL == "" {
		c.Feeds.PostcodesURL = "https://api.postcodes.io"
	}
	if c.Feeds.FloodZoneURL == "" {
		c.Feeds.FloodZoneURL = "https://www.planning.data.gov.uk"
	}
	if c.Feeds.FloodWarningURL == "" {
		c.Feeds.FloodWarningURL = "https://environment.data.gov.uk/flood-monitoring"
	}
	if c.Feeds.EnergyURL == "" {
		c.Feeds.EnergyURL = "https://epc.opendatacommunities.org"
	}
	if c.Feeds.CrimeURL == "" {
		c.Feeds.CrimeURL = "https://data.police.uk/api"
	}
	if c.Feeds.TimeoutSeconds == 0 {
		c.Feeds.TimeoutSeconds = 15
	}
	if c.Policies.CorpusPath == "" {
		c.Policies.CorpusPath = "configs/policies.yaml"
	}
	if c.Store.Backend == "" {
		c.Store.Backend = "memory"
	}
	if c.Store.Bucket == "" {
		c.Store.Bucket = "aurea-assessments"
	}
	if c.Pipeline.Workers == 0 {
		c.Pipeline.Workers = 8
	}
}

func (c *Config) validate() error {
	switch c.Store.Backend {
	case "memory":
	case "nats":
		if c.Store.NATSURL == "" {
			return fmt.Errorf("store backend %q requires nats_url", c.Store.Backend)
		}
	default:
		return fmt.Errorf("invalid store backend %q: must be 'memory' or 'nats'", c.Store.Backend)
	}
	if c.Pipeline.Workers < 1 {
		return fmt.Errorf("pipeline workers must be positive, got %d", c.Pipeline.Workers)
	}
	return nil
}
