package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/ilyakaznacheev/cleanenv"

	"github.com/resumekit/fileintake/pkg/fileintake"
	"github.com/resumekit/fileintake/pkg/fileintake/api"
	"github.com/resumekit/fileintake/pkg/fileintake/config"
	"github.com/resumekit/fileintake/pkg/fileintake/tasks"
)

// EnvConfig maps process environment variables to server configuration.
type EnvConfig struct {
	Port        string `env:"PORT" env-default:"8080"`
	Environment string `env:"ENVIRONMENT" env-default:"development"`

	DatabaseURL  string `env:"DATABASE_URL" env-default:""`
	RunMigration bool   `env:"RUN_MIGRATION" env-default:"true"`

	StorageBackend string `env:"STORAGE_BACKEND" env-default:"fs"`
	FSBaseDir      string `env:"FS_BASE_DIR" env-default:"./data/files"`

	S3 S3Config

	MaxUploadBytes    int64  `env:"MAX_UPLOAD_BYTES" env-default:"20971520"`
	AllowedExtensions string `env:"ALLOWED_EXTENSIONS" env-default:""`

	EnableThumbnails     bool `env:"ENABLE_THUMBNAILS" env-default:"true"`
	EnableTextExtraction bool `env:"ENABLE_TEXT_EXTRACTION" env-default:"true"`

	MirrorCredentialsFile string `env:"MIRROR_CREDENTIALS_FILE" env-default:""`
	MirrorFolderID        string `env:"MIRROR_FOLDER_ID" env-default:""`
	MirrorConvertToDocs   bool   `env:"MIRROR_CONVERT_TO_DOCS" env-default:"false"`

	ResweepSchedule string `env:"RESWEEP_SCHEDULE" env-default:"*/10 * * * *"`
}

// S3Config holds the S3/MinIO backend settings.
type S3Config struct {
	Endpoint        string `env:"AWS_S3_ENDPOINT" env-default:""`
	AccessKeyID     string `env:"AWS_ACCESS_KEY_ID" env-default:""`
	SecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" env-default:""`
	Bucket          string `env:"AWS_S3_BUCKET" env-default:""`
	Region          string `env:"AWS_S3_REGION" env-default:"us-east-1"`
	UsePathStyle    bool   `env:"AWS_S3_USE_PATH_STYLE" env-default:"true"`
}

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	var env EnvConfig
	if err := cleanenv.ReadEnv(&env); err != nil {
		return fmt.Errorf("read environment: %w", err)
	}

	cfg, err := config.Load(withEnv(env))
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	svc, err := cfg.BuildService(context.Background())
	if err != nil {
		return fmt.Errorf("build service: %w", err)
	}
	defer svc.Close()

	if cfg.ResweepSchedule != "" {
		sweeper, err := tasks.NewSweeper(cfg.ResweepSchedule, 5*time.Minute, svc.ResweepFailed)
		if err != nil {
			return fmt.Errorf("invalid resweep schedule %q: %w", cfg.ResweepSchedule, err)
		}
		sweeper.Start()
		defer sweeper.Stop()
	}

	httpServer := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router(svc),
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("file intake server starting",
			"port", cfg.Port,
			"env", cfg.Environment,
			"storage", cfg.DefaultStorageBackend,
			"database", cfg.DatabaseType)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		slog.Info("shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}

	slog.Info("server exited")
	return nil
}

func router(svc fileintake.Service) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Mount("/files", api.NewFilesHandler(svc).Routes())
	})

	return r
}

// withEnv translates the flat environment struct into ServerConfig.
func withEnv(env EnvConfig) config.Option {
	return func(c *config.ServerConfig) error {
		c.Port = env.Port
		c.Environment = env.Environment
		c.MaxUploadBytes = env.MaxUploadBytes
		c.RunMigration = env.RunMigration
		c.EnableThumbnails = env.EnableThumbnails
		c.EnableTextExtraction = env.EnableTextExtraction
		c.ResweepSchedule = env.ResweepSchedule

		if env.AllowedExtensions != "" {
			for _, ext := range strings.Split(env.AllowedExtensions, ",") {
				c.AllowedExtensions = append(c.AllowedExtensions, strings.TrimSpace(ext))
			}
		}

		if env.DatabaseURL != "" {
			c.DatabaseType = "postgres"
			c.DatabaseURL = env.DatabaseURL
		}

		switch env.StorageBackend {
		case "memory":
			// defaults already register a memory backend
		case "fs":
			c.StorageBackends = append(c.StorageBackends, config.StorageBackendConfig{
				Name:   "fs",
				Type:   "fs",
				Config: map[string]interface{}{"base_dir": env.FSBaseDir},
			})
			c.DefaultStorageBackend = "fs"
		case "s3":
			c.StorageBackends = append(c.StorageBackends, config.StorageBackendConfig{
				Name: "s3",
				Type: "s3",
				Config: map[string]interface{}{
					"endpoint":                   env.S3.Endpoint,
					"access_key_id":              env.S3.AccessKeyID,
					"secret_access_key":          env.S3.SecretAccessKey,
					"bucket":                     env.S3.Bucket,
					"region":                     env.S3.Region,
					"use_path_style":             env.S3.UsePathStyle,
					"create_bucket_if_not_exist": true,
				},
			})
			c.DefaultStorageBackend = "s3"
		default:
			return fmt.Errorf("unsupported STORAGE_BACKEND: %s", env.StorageBackend)
		}

		c.Mirror = config.MirrorConfig{
			CredentialsFile: env.MirrorCredentialsFile,
			FolderID:        env.MirrorFolderID,
			ConvertToDocs:   env.MirrorConvertToDocs,
		}
		return nil
	}
}
