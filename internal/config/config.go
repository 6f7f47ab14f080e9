package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// ErrMissingKey means neither PRIVATE_KEY nor PRIVATE_KEY_B64 was provided.
var ErrMissingKey = errors.New("missing PRIVATE_KEY or PRIVATE_KEY_B64 (raw PEM or base64 of the PEM)")

type Config struct {
	Port int `yaml:"port" envconfig:"PORT" default:"5000"`

	PrivateKey    string `yaml:"private_key" envconfig:"PRIVATE_KEY"`
	PrivateKeyB64 string `yaml:"private_key_b64" envconfig:"PRIVATE_KEY_B64"`

	// Embedded so envconfig reads the flat DB_*, LOG_* and SHEETS_* keys
	// while the YAML file keeps them nested.
	Database `yaml:"database"`
	Logging  `yaml:"logging"`
	Sheets   `yaml:"sheets"`

	// HeartbeatVerifySignature makes /heartbeat check the token signature
	// before consulting the store. Off by default.
	HeartbeatVerifySignature bool   `yaml:"heartbeat_verify_signature" envconfig:"HEARTBEAT_VERIFY_SIGNATURE" default:"false"`
	OperatorKeyHash          string `yaml:"operator_key_hash" envconfig:"OPERATOR_KEY_HASH"`
	MetricsEnabled           bool   `yaml:"metrics_enabled" envconfig:"METRICS_ENABLED" default:"true"`
}

type Database struct {
	Driver          string `yaml:"driver" envconfig:"DB_DRIVER" default:"sqlite"`
	DSN             string `yaml:"dsn" envconfig:"DB_DSN" default:"data/licenses.db"`
	MongoURI        string `yaml:"mongo_uri" envconfig:"MONGO_URI" default:"mongodb://localhost:27017"`
	MongoDatabase   string `yaml:"mongo_database" envconfig:"MONGO_DATABASE" default:"licenses"`
	MongoCollection string `yaml:"mongo_collection" envconfig:"MONGO_COLLECTION" default:"licenses"`
}

type Logging struct {
	Level  string `yaml:"level" envconfig:"LOG_LEVEL" default:"info"`
	Format string `yaml:"format" envconfig:"LOG_FORMAT" default:"json"`
}

type Sheets struct {
	Enabled       bool   `yaml:"enabled" envconfig:"SHEETS_ENABLED" default:"false"`
	Credentials   string `yaml:"credentials" envconfig:"SHEETS_CREDENTIALS"`
	SpreadsheetID string `yaml:"spreadsheet_id" envconfig:"SHEETS_SPREADSHEET_ID"`
	SheetName     string `yaml:"sheet_name" envconfig:"SHEETS_SHEET_NAME" default:"Licenses"`
}

// Load reads the environment, then overlays CONFIG_FILE (YAML) when set.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load config from env: %w", err)
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	switch strings.ToLower(c.Database.Driver) {
	case "sqlite", "postgres", "mongo", "memory":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver)
	}
	if c.Sheets.Enabled && (c.Sheets.Credentials == "" || c.Sheets.SpreadsheetID == "") {
		return errors.New("sheets sync needs SHEETS_CREDENTIALS and SHEETS_SPREADSHEET_ID")
	}
	return nil
}

// PrivateKeyPEM returns the signing key PEM. The raw form wins over base64.
func (c *Config) PrivateKeyPEM() ([]byte, error) {
	if strings.TrimSpace(c.PrivateKey) != "" {
		// env files often carry the PEM with escaped newlines
		return []byte(strings.ReplaceAll(c.PrivateKey, `\n`, "\n")), nil
	}
	if b64 := strings.TrimSpace(c.PrivateKeyB64); b64 != "" {
		pem, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			return nil, fmt.Errorf("PRIVATE_KEY_B64 exists but is not valid base64: %w", err)
		}
		return pem, nil
	}
	return nil, ErrMissingKey
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
