// Package config builds a fileintake.Service from declarative server
// configuration. It maps configuration onto the functional options of the
// core package so binaries stay thin.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/resumekit/fileintake/pkg/fileintake"
	"github.com/resumekit/fileintake/pkg/fileintake/extract"
	"github.com/resumekit/fileintake/pkg/fileintake/mirror/googledrive"
	repomemory "github.com/resumekit/fileintake/pkg/fileintake/repo/memory"
	repopg "github.com/resumekit/fileintake/pkg/fileintake/repo/postgres"
	fsstorage "github.com/resumekit/fileintake/pkg/fileintake/storage/fs"
	memorystorage "github.com/resumekit/fileintake/pkg/fileintake/storage/memory"
	s3storage "github.com/resumekit/fileintake/pkg/fileintake/storage/s3"
	"github.com/resumekit/fileintake/pkg/fileintake/thumbnail"
)

// Option applies configuration to a ServerConfig instance.
type Option func(*ServerConfig) error

// Load constructs a ServerConfig by applying the supplied options on top of
// library defaults.
func Load(opts ...Option) (*ServerConfig, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func defaults() ServerConfig {
	return ServerConfig{
		Port:                  "8080",
		Environment:           "development",
		DatabaseType:          "memory",
		DefaultStorageBackend: "memory",
		StorageBackends: []StorageBackendConfig{
			{Name: "memory", Type: "memory", Config: map[string]interface{}{}},
		},
		EnableThumbnails:     true,
		EnableTextExtraction: true,
		MaxUploadBytes:       20 << 20,
	}
}

// ServerConfig represents server configuration for the file intake service.
type ServerConfig struct {
	Port        string
	Environment string // development, production, testing

	// Database configuration
	DatabaseURL  string
	DatabaseType string // "memory", "postgres"
	RunMigration bool

	// Storage configuration
	DefaultStorageBackend string
	ThumbnailBackend      string // empty means the default backend
	StorageBackends       []StorageBackendConfig

	// Validation
	MaxUploadBytes    int64
	AllowedExtensions []string

	// Feature wiring
	EnableThumbnails     bool
	EnableTextExtraction bool

	// Mirror configuration. Mirroring is enabled when CredentialsFile is
	// set.
	Mirror MirrorConfig

	// ResweepSchedule is a cron expression for the failed-task sweep.
	// Empty disables the sweep.
	ResweepSchedule string
}

// MirrorConfig configures the Google Drive mirror.
type MirrorConfig struct {
	CredentialsFile string
	FolderID        string
	ConvertToDocs   bool
}

// StorageBackendConfig represents configuration for one storage backend.
type StorageBackendConfig struct {
	Name   string
	Type   string // "memory", "fs", "s3"
	Config map[string]interface{}
}

// Validate validates the server configuration.
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}
	if c.DatabaseType != "memory" && c.DatabaseType != "postgres" {
		return errors.New("database_type must be 'memory' or 'postgres'")
	}
	if c.DatabaseType == "postgres" && c.DatabaseURL == "" {
		return errors.New("database_url is required when using postgres")
	}

	if !c.backendConfigured(c.DefaultStorageBackend) {
		return fmt.Errorf("default storage backend '%s' not found in configured backends", c.DefaultStorageBackend)
	}
	if c.ThumbnailBackend != "" && !c.backendConfigured(c.ThumbnailBackend) {
		return fmt.Errorf("thumbnail backend '%s' not found in configured backends", c.ThumbnailBackend)
	}
	if c.MaxUploadBytes < 0 {
		return errors.New("max upload bytes must not be negative")
	}
	return nil
}

func (c *ServerConfig) backendConfigured(name string) bool {
	for _, backend := range c.StorageBackends {
		if backend.Name == name {
			return true
		}
	}
	return false
}

// BuildService creates a Service instance from the server configuration.
func (c *ServerConfig) BuildService(ctx context.Context) (fileintake.Service, error) {
	var options []fileintake.Option

	repo, err := c.buildRepository(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to build repository: %w", err)
	}
	options = append(options, fileintake.WithRepository(repo))

	for _, backendConfig := range c.StorageBackends {
		store, err := c.buildStorageBackend(backendConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to build storage backend %s: %w", backendConfig.Name, err)
		}
		options = append(options, fileintake.WithBlobStore(backendConfig.Name, store))
	}
	options = append(options, fileintake.WithDefaultBackend(c.DefaultStorageBackend))
	if c.ThumbnailBackend != "" {
		options = append(options, fileintake.WithThumbnailBackend(c.ThumbnailBackend))
	}

	policy := fileintake.ValidationPolicy{
		MaxSizeBytes:      c.MaxUploadBytes,
		AllowedExtensions: c.AllowedExtensions,
		SniffContent:      true,
	}
	options = append(options, fileintake.WithValidationPolicy(policy))

	if c.EnableThumbnails {
		options = append(options, fileintake.WithThumbnailer(thumbnail.New()))
	}
	if c.EnableTextExtraction {
		options = append(options, fileintake.WithTextExtractor(extract.New()))
	}

	if c.Mirror.CredentialsFile != "" {
		creds, err := os.ReadFile(c.Mirror.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read mirror credentials: %w", err)
		}
		host, err := googledrive.New(ctx, googledrive.Config{
			FolderID:        c.Mirror.FolderID,
			CredentialsJSON: creds,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to build mirror host: %w", err)
		}
		options = append(options, fileintake.WithDocumentHost("googledrive", host))
		if c.Mirror.ConvertToDocs {
			options = append(options, fileintake.WithMirrorConversion(true))
		}
	}

	return fileintake.New(options...)
}

func (c *ServerConfig) buildRepository(ctx context.Context) (fileintake.Repository, error) {
	switch c.DatabaseType {
	case "memory":
		return repomemory.New(), nil
	case "postgres":
		if c.RunMigration {
			if err := repopg.Migrate(migrateURL(c.DatabaseURL)); err != nil {
				return nil, err
			}
		}
		pool, err := pgxpool.New(ctx, c.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create pgx pool: %w", err)
		}
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := pool.Ping(pingCtx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("database ping failed: %w", err)
		}
		return repopg.NewWithPool(pool), nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", c.DatabaseType)
	}
}

// migrateURL rewrites a postgres:// DSN to the pgx5:// scheme golang-migrate
// expects.
func migrateURL(databaseURL string) string {
	for _, prefix := range []string{"postgresql://", "postgres://"} {
		if len(databaseURL) > len(prefix) && databaseURL[:len(prefix)] == prefix {
			return "pgx5://" + databaseURL[len(prefix):]
		}
	}
	return databaseURL
}

func (c *ServerConfig) buildStorageBackend(config StorageBackendConfig) (fileintake.BlobStore, error) {
	switch config.Type {
	case "memory":
		return memorystorage.New(), nil

	case "fs":
		return fsstorage.New(fsstorage.Config{
			BaseDir: getString(config.Config, "base_dir", "./data/storage"),
		})

	case "s3":
		return s3storage.New(s3storage.Config{
			Region:                 getString(config.Config, "region", "us-east-1"),
			Bucket:                 getString(config.Config, "bucket", ""),
			AccessKeyID:            getString(config.Config, "access_key_id", ""),
			SecretAccessKey:        getString(config.Config, "secret_access_key", ""),
			Endpoint:               getString(config.Config, "endpoint", ""),
			UsePathStyle:           getBool(config.Config, "use_path_style", false),
			EnableSSE:              getBool(config.Config, "enable_sse", false),
			SSEAlgorithm:           getString(config.Config, "sse_algorithm", "AES256"),
			SSEKMSKeyID:            getString(config.Config, "sse_kms_key_id", ""),
			CreateBucketIfNotExist: getBool(config.Config, "create_bucket_if_not_exist", false),
		})

	default:
		return nil, fmt.Errorf("unsupported storage backend type: %s", config.Type)
	}
}

func getString(config map[string]interface{}, key string, defaultValue string) string {
	if value, exists := config[key]; exists {
		if str, ok := value.(string); ok {
			return str
		}
	}
	return defaultValue
}

func getBool(config map[string]interface{}, key string, defaultValue bool) bool {
	if value, exists := config[key]; exists {
		if b, ok := value.(bool); ok {
			return b
		}
		if str, ok := value.(string); ok {
			if b, err := strconv.ParseBool(str); err == nil {
				return b
			}
		}
	}
	return defaultValue
}
