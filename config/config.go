package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"storepay/crypto"
)

const operatorTokenEnv = "STOREPAY_OPERATOR_TOKEN"

type RateLimit struct {
	RequestsPerSecond float64 `toml:"RequestsPerSecond"`
	Burst             int     `toml:"Burst"`
}

type Log struct {
	File       string `toml:"File,omitempty"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
}

type Config struct {
	ListenAddress   string    `toml:"ListenAddress"`
	DataDir         string    `toml:"DataDir"`
	AuditDBPath     string    `toml:"AuditDBPath"`
	SeedFile        string    `toml:"SeedFile,omitempty"`
	ServiceName     string    `toml:"ServiceName"`
	Environment     string    `toml:"Environment"`
	ContractAccount string    `toml:"ContractAccount"`
	FeeAccount      string    `toml:"FeeAccount"`
	OperatorToken   string    `toml:"OperatorToken,omitempty"`
	RateLimit       RateLimit `toml:"RateLimit"`
	Log             Log       `toml:"Log"`
}

// Load loads the configuration from the given path. A default file is written
// on first run so operators have a template to edit.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}

	if token := strings.TrimSpace(os.Getenv(operatorTokenEnv)); token != "" {
		cfg.OperatorToken = token
	}

	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects configurations that cannot produce a working service.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ListenAddress) == "" {
		return fmt.Errorf("config: ListenAddress must not be empty")
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("config: DataDir must not be empty")
	}
	if _, err := c.Custody(); err != nil {
		return fmt.Errorf("config: ContractAccount: %w", err)
	}
	if _, err := c.Fee(); err != nil {
		return fmt.Errorf("config: FeeAccount: %w", err)
	}
	if c.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("config: RateLimit.RequestsPerSecond must be positive")
	}
	if c.RateLimit.Burst <= 0 {
		return fmt.Errorf("config: RateLimit.Burst must be positive")
	}
	return nil
}

// Custody returns the escrow custody address the service settles from.
func (c *Config) Custody() (crypto.Address, error) {
	return crypto.ParseAddress(c.ContractAccount)
}

// Fee returns the account that collects system fees and remainders.
func (c *Config) Fee() (crypto.Address, error) {
	return crypto.ParseAddress(c.FeeAccount)
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.ServiceName) == "" {
		cfg.ServiceName = "storepay"
	}
	if strings.TrimSpace(cfg.AuditDBPath) == "" {
		cfg.AuditDBPath = filepath.Join(cfg.DataDir, "audit.db")
	}
	if cfg.RateLimit.RequestsPerSecond == 0 {
		cfg.RateLimit.RequestsPerSecond = 50
	}
	if cfg.RateLimit.Burst == 0 {
		cfg.RateLimit.Burst = 100
	}
	if cfg.Log.MaxSizeMB == 0 {
		cfg.Log.MaxSizeMB = 100
	}
	if cfg.Log.MaxBackups == 0 {
		cfg.Log.MaxBackups = 5
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		ListenAddress:   ":8080",
		DataDir:         "./storepay-data",
		ServiceName:     "storepay",
		Environment:     "dev",
		ContractAccount: crypto.ZeroAddress.String(),
		FeeAccount:      crypto.ZeroAddress.String(),
		RateLimit: RateLimit{
			RequestsPerSecond: 50,
			Burst:             100,
		},
		Log: Log{
			MaxSizeMB:  100,
			MaxBackups: 5,
		},
	}
	applyDefaults(cfg)

	if err := persist(path, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
