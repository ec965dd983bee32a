// Package config loads the YAML run configuration: sync interval, the
// destination ledger, the watermark backend, and the set of enabled sources.
// Secrets may be left out of the file and supplied through the environment.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// DefaultIntervalHours is the sync cadence when neither the file nor the
// HOURS_BETWEEN_SYNCS environment variable sets one.
const DefaultIntervalHours = 6

// WatermarkBackend selects where per-account resume positions are stored.
type WatermarkBackend string

const (
	// BackendNotes piggybacks the watermark on the destination account's
	// notes field, keeping the sync stateless.
	BackendNotes WatermarkBackend = "notes"
	// BackendSQLite keeps watermarks in a local database file.
	BackendSQLite WatermarkBackend = "sqlite"
	// BackendFirestore keeps watermarks in Cloud Firestore.
	BackendFirestore WatermarkBackend = "firestore"
)

var validBackends = map[WatermarkBackend]bool{
	BackendNotes:     true,
	BackendSQLite:    true,
	BackendFirestore: true,
}

// ValidateBackend checks if the backend is one of the supported stores.
func ValidateBackend(b WatermarkBackend) error {
	if !validBackends[b] {
		return fmt.Errorf("invalid watermark backend %q (must be one of: notes, sqlite, firestore)", b)
	}
	return nil
}

// Config is the top-level YAML structure.
type Config struct {
	IntervalHours int       `yaml:"interval_hours"`
	Listen        string    `yaml:"listen"`
	Firefly       Firefly   `yaml:"firefly"`
	Watermark     Watermark `yaml:"watermark"`
	Sources       Sources   `yaml:"sources"`
}

// Firefly is the destination ledger connection.
type Firefly struct {
	URL   string `yaml:"url"`
	Token string `yaml:"token"`
}

// Watermark selects and configures the resume-position store.
type Watermark struct {
	Backend              WatermarkBackend `yaml:"backend"`
	SQLitePath           string           `yaml:"sqlite_path"`
	FirestoreProject     string           `yaml:"firestore_project"`
	FirestoreCredentials string           `yaml:"firestore_credentials"`
}

// Sources configures the ledgers to pull from. A source with enabled: false
// (or absent) is skipped entirely.
type Sources struct {
	Ponto   Ponto   `yaml:"ponto"`
	Pluxee  Pluxee  `yaml:"pluxee"`
	OFXFile OFXFile `yaml:"ofxfile"`
}

// Ponto is the bank aggregator API source.
type Ponto struct {
	Enabled      bool   `yaml:"enabled"`
	URL          string `yaml:"url"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
}

// Pluxee is the benefits-card portal source.
type Pluxee struct {
	Enabled  bool   `yaml:"enabled"`
	URL      string `yaml:"url"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// OFXFile is the statement drop-directory source.
type OFXFile struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

// Load reads and validates the configuration file. Environment variables
// override file values for secrets and the sync interval.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %q: %w", path, err)
	}
	return cfg, nil
}

// Parse builds a configuration from YAML data.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config (check syntax, indentation, and field names): %w", err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv overrides file values with environment variables. Secrets usually
// come from here so the file can be committed without them.
func (c *Config) applyEnv() {
	setIfPresent := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setIfPresent(&c.Firefly.Token, "FIREFLY_TOKEN")
	setIfPresent(&c.Sources.Ponto.ClientID, "PONTO_CLIENT_ID")
	setIfPresent(&c.Sources.Ponto.ClientSecret, "PONTO_CLIENT_SECRET")
	setIfPresent(&c.Sources.Pluxee.Username, "PLUXEE_USERNAME")
	setIfPresent(&c.Sources.Pluxee.Password, "PLUXEE_PASSWORD")

	if v := os.Getenv("HOURS_BETWEEN_SYNCS"); v != "" {
		if hours, err := strconv.Atoi(v); err == nil {
			c.IntervalHours = hours
		}
	}
}

func (c *Config) applyDefaults() {
	if c.IntervalHours == 0 {
		c.IntervalHours = DefaultIntervalHours
	}
	if c.Watermark.Backend == "" {
		c.Watermark.Backend = BackendNotes
	}
}

// Validate checks the configuration invariants.
func (c *Config) Validate() error {
	if c.IntervalHours < 1 {
		return fmt.Errorf("interval_hours must be at least 1, got %d", c.IntervalHours)
	}

	if c.Firefly.URL == "" {
		return fmt.Errorf("firefly.url is required")
	}
	if c.Firefly.Token == "" {
		return fmt.Errorf("firefly.token is required (set it in the file or via FIREFLY_TOKEN)")
	}

	if err := ValidateBackend(c.Watermark.Backend); err != nil {
		return err
	}
	switch c.Watermark.Backend {
	case BackendSQLite:
		if c.Watermark.SQLitePath == "" {
			return fmt.Errorf("watermark.sqlite_path is required for the sqlite backend")
		}
	case BackendFirestore:
		if c.Watermark.FirestoreProject == "" {
			return fmt.Errorf("watermark.firestore_project is required for the firestore backend")
		}
	}

	enabled := 0
	if c.Sources.Ponto.Enabled {
		enabled++
		if c.Sources.Ponto.URL == "" {
			return fmt.Errorf("sources.ponto.url is required when ponto is enabled")
		}
		if c.Sources.Ponto.ClientID == "" || c.Sources.Ponto.ClientSecret == "" {
			return fmt.Errorf("sources.ponto.client_id and client_secret are required when ponto is enabled (or set PONTO_CLIENT_ID / PONTO_CLIENT_SECRET)")
		}
	}
	if c.Sources.Pluxee.Enabled {
		enabled++
		if c.Sources.Pluxee.URL == "" {
			return fmt.Errorf("sources.pluxee.url is required when pluxee is enabled")
		}
		if c.Sources.Pluxee.Username == "" || c.Sources.Pluxee.Password == "" {
			return fmt.Errorf("sources.pluxee.username and password are required when pluxee is enabled (or set PLUXEE_USERNAME / PLUXEE_PASSWORD)")
		}
	}
	if c.Sources.OFXFile.Enabled {
		enabled++
		if c.Sources.OFXFile.Dir == "" {
			return fmt.Errorf("sources.ofxfile.dir is required when ofxfile is enabled")
		}
	}
	if enabled == 0 {
		return fmt.Errorf("no sources enabled (enable at least one of: ponto, pluxee, ofxfile)")
	}

	return nil
}
