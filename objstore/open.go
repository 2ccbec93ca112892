package objstore

import (
	"context"
	"fmt"
)

// Driver names accepted by Open.
const (
	DriverGCS    = "gcs"
	DriverS3     = "s3"
	DriverAzure    = "azure"
	DriverNATS     = "nats"
	DriverRedis    = "redis"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverFile     = "file"
	DriverMemory   = "memory"
)

// Drivers lists every driver name Open understands.
var Drivers = []string{
	DriverGCS, DriverS3, DriverAzure,
	DriverNATS, DriverRedis, DriverSQLite, DriverPostgres,
	DriverFile, DriverMemory,
}

// FileConfig configures the local filesystem driver.
type FileConfig struct {
	Root string `yaml:"root"`
}

// BackendConfig selects and configures a driver.
type BackendConfig struct {
	Driver   string      `yaml:"driver"`
	GCS      GCSConfig   `yaml:"gcs"`
	S3       S3Config    `yaml:"s3"`
	Azure    AzureConfig `yaml:"azure"`
	NATS     NATSConfig  `yaml:"nats"`
	Redis    RedisConfig `yaml:"redis"`
	SQLite   SQLConfig   `yaml:"sqlite"`
	Postgres SQLConfig   `yaml:"postgres"`
	File     FileConfig  `yaml:"file"`
}

// Open creates a client for the configured driver.
func Open(ctx context.Context, cfg BackendConfig) (Client, error) {
	switch cfg.Driver {
	case DriverGCS:
		return NewGCSClient(ctx, cfg.GCS)
	case DriverS3:
		return NewS3Client(ctx, cfg.S3)
	case DriverAzure:
		return NewAzureClient(cfg.Azure)
	case DriverNATS:
		return NewNATSClient(cfg.NATS)
	case DriverRedis:
		return NewRedisClient(ctx, cfg.Redis)
	case DriverSQLite:
		return NewSQLiteClient(ctx, cfg.SQLite)
	case DriverPostgres:
		return NewPostgresClient(ctx, cfg.Postgres)
	case DriverFile:
		if cfg.File.Root == "" {
			return nil, fmt.Errorf("file driver requires a root directory")
		}
		return NewFileClient(cfg.File.Root)
	case DriverMemory:
		return NewMemoryClient(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
