package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// Globals is the decoded globals.yaml (spec 4.D / §6).
type Globals struct {
	AMQPURL  string `yaml:"amqp_url"`
	DBURL    string `yaml:"db_url"`
	LogPath  string `yaml:"log_path"`
	HKSchema string `yaml:"hk_schema,omitempty"`
}

// Groundstation is the decoded groundstation.yaml's "groundstation" key.
type Groundstation struct {
	Name      string  `yaml:"name"`
	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`
	Elevation float64 `yaml:"elevation"`
	Horizon   float64 `yaml:"horizon"`
	Default   string  `yaml:"default"`
}

type groundstationFile struct {
	Groundstation Groundstation `yaml:"groundstation"`
}

// TLESource enumerates tle.yaml's satellites[].source values.
type TLESource string

const (
	TLESourceWeb        TLESource = "web"
	TLESourceLines      TLESource = "lines"
	TLESourceSpaceTrack TLESource = "space-track"
)

// TLEEntry is one tle.yaml satellites[] element.
type TLEEntry struct {
	Name     string    `yaml:"name"`
	Source   TLESource `yaml:"source"`
	Identifier string  `yaml:"identifier,omitempty"`
	WebSrc   string    `yaml:"websrc,omitempty"`
	NoradID  int       `yaml:"norad_id,omitempty"`
	TLE1     string    `yaml:"tle1,omitempty"`
	TLE2     string    `yaml:"tle2,omitempty"`
}

// TLEConfig is the decoded tle.yaml.
type TLEConfig struct {
	Satellites     []TLEEntry     `yaml:"satellites"`
	UpdateInterval int            `yaml:"update_interval"` // seconds, default 12h
	Credentials    map[string]any `yaml:"credentials,omitempty"`
}

var (
	cacheMu sync.Mutex
	cached  *Globals
)

// Dir resolves the configuration directory: $PORTHOUSE_CFG if set, else
// ~/.porthouse.
func Dir() string {
	if d := os.Getenv("PORTHOUSE_CFG"); d != "" {
		return d
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".porthouse")
}

// LoadGlobals reads globals.yaml once per process; every subsequent call
// returns the same cached *Globals, matching load_globals' module-global
// cache in the original.
func LoadGlobals() (*Globals, error) {
	cacheMu.Lock()
	defer cacheMu.Unlock()

	if cached != nil {
		return cached, nil
	}

	path := filepath.Join(Dir(), "globals.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var g Globals
	if err := yaml.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	cached = &g
	return cached, nil
}

// ResetCache clears the cached globals; intended for tests only.
func ResetCache() {
	cacheMu.Lock()
	defer cacheMu.Unlock()
	cached = nil
}

// LoadGroundstation reads groundstation.yaml. Unlike globals, it is not
// cached: it's small and read once at module start, not on every RPC.
func LoadGroundstation() (*Groundstation, error) {
	path := filepath.Join(Dir(), "groundstation.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	var f groundstationFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return &f.Groundstation, nil
}

// LoadTLEConfig reads tle.yaml, defaulting UpdateInterval to 12h if unset.
func LoadTLEConfig() (*TLEConfig, error) {
	path := filepath.Join(Dir(), "tle.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	var c TLEConfig
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if c.UpdateInterval == 0 {
		c.UpdateInterval = 12 * 3600
	}
	return &c, nil
}
