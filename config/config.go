// Package config loads the YAML configuration shared by the session archive
// tooling: which storage backend to use, how archives are addressed, and the
// logging, tracing and metrics settings around them.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/GoCodeAlone/sessionarchive/objstore"
	"github.com/GoCodeAlone/sessionarchive/observability"
	"github.com/GoCodeAlone/sessionarchive/observability/tracing"
	"github.com/GoCodeAlone/sessionarchive/sessionstore"
	"gopkg.in/yaml.v3"
)

// StoreConfig addresses archives inside the backend.
type StoreConfig struct {
	Bucket        string                 `json:"bucket" yaml:"bucket"`
	BasePath      string                 `json:"basePath,omitempty" yaml:"basePath,omitempty"`
	LocalDir      string                 `json:"localDir,omitempty" yaml:"localDir,omitempty"`
	BucketOptions objstore.BucketOptions `json:"bucketOptions,omitempty" yaml:"bucketOptions,omitempty"`
}

// Config is the top-level configuration document.
type Config struct {
	Store   StoreConfig                 `yaml:"store"`
	Backend objstore.BackendConfig      `yaml:"backend"`
	Logging LoggingConfig               `yaml:"logging"`
	Tracing tracing.Config              `yaml:"tracing"`
	Metrics observability.MetricsConfig `yaml:"metrics"`
}

// Default returns a configuration with every default applied and no bucket.
func Default() *Config {
	return &Config{
		Backend: objstore.BackendConfig{
			Driver: objstore.DriverGCS,
			S3:     objstore.S3Config{Region: "us-east-1"},
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Tracing: tracing.DefaultConfig(),
		Metrics: observability.DefaultMetricsConfig(),
	}
}

// LoadFromFile loads a configuration from a YAML file.
func LoadFromFile(filepath string) (*Config, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// Parse decodes a YAML document over Default. ${VAR} references are expanded
// from the environment before decoding, and unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	expanded := os.ExpandEnv(string(data))

	dec := yaml.NewDecoder(bytes.NewBufferString(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings this package owns. Store addressing rules are
// enforced by sessionstore.New.
func (c *Config) Validate() error {
	var errs []error
	if !slices.Contains(objstore.Drivers, c.Backend.Driver) {
		errs = append(errs, fmt.Errorf("backend.driver: unknown driver %q (want one of %v)", c.Backend.Driver, objstore.Drivers))
	}
	switch {
	case c.Backend.Driver == objstore.DriverFile && c.Backend.File.Root == "":
		errs = append(errs, errors.New("backend.file.root: required for the file driver"))
	case c.Backend.Driver == objstore.DriverRedis && c.Backend.Redis.Address == "":
		errs = append(errs, errors.New("backend.redis.address: required for the redis driver"))
	case c.Backend.Driver == objstore.DriverSQLite && c.Backend.SQLite.DSN == "":
		errs = append(errs, errors.New("backend.sqlite.dsn: required for the sqlite driver"))
	case c.Backend.Driver == objstore.DriverPostgres && c.Backend.Postgres.DSN == "":
		errs = append(errs, errors.New("backend.postgres.dsn: required for the postgres driver"))
	}
	if c.Backend.S3.PartSize != 0 && c.Backend.S3.PartSize < objstore.MinS3PartSize {
		errs = append(errs, fmt.Errorf("backend.s3.partSize: must be at least %d bytes", objstore.MinS3PartSize))
	}
	if err := c.Logging.validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		errs = append(errs, fmt.Errorf("tracing.sampleRate: %v is outside [0, 1]", c.Tracing.SampleRate))
	}
	if c.Tracing.Enabled && c.Tracing.Endpoint == "" {
		errs = append(errs, errors.New("tracing.endpoint: required when tracing is enabled"))
	}
	return errors.Join(errs...)
}

// SessionStoreConfig builds the sessionstore configuration for client.
func (c *Config) SessionStoreConfig(client objstore.Client) *sessionstore.Config {
	return &sessionstore.Config{
		Client:        client,
		BucketName:    c.Store.Bucket,
		BasePath:      c.Store.BasePath,
		BucketOptions: c.Store.BucketOptions,
		LocalDir:      c.Store.LocalDir,
	}
}
