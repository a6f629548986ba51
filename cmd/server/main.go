// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/jhelvik/chronicle-mcp/internal/archive"
	"github.com/jhelvik/chronicle-mcp/internal/biography"
	"github.com/jhelvik/chronicle-mcp/internal/config"
	"github.com/jhelvik/chronicle-mcp/internal/crypto"
	"github.com/jhelvik/chronicle-mcp/internal/database"
	"github.com/jhelvik/chronicle-mcp/internal/gateway"
	"github.com/jhelvik/chronicle-mcp/internal/ingest"
	"github.com/jhelvik/chronicle-mcp/internal/jobs"
	"github.com/jhelvik/chronicle-mcp/internal/logger"
	"github.com/jhelvik/chronicle-mcp/internal/merge"
	"github.com/jhelvik/chronicle-mcp/internal/report"
	"github.com/jhelvik/chronicle-mcp/internal/resonance"
	"github.com/jhelvik/chronicle-mcp/internal/server"
	"github.com/jhelvik/chronicle-mcp/internal/sweeper"
	"github.com/jhelvik/chronicle-mcp/internal/tools"
	"github.com/jhelvik/chronicle-mcp/pkg/scheduler"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	httpMode := flag.Bool("http", false, "Run in HTTP server mode (default: stdio for MCP)")
	port := flag.Int("port", 0, "Server port (HTTP mode only)")
	configPath := flag.String("config", "", "Path to config file")
	dbType := flag.String("db-type", "", "Database type (sqlite or postgres)")
	dbPath := flag.String("db-path", "", "Database path (for sqlite)")
	dbDSN := flag.String("db-dsn", "", "Database DSN (for postgres)")
	noJobs := flag.Bool("no-jobs", false, "Disable the background job scheduler")
	setGatewayKey := flag.String("set-gateway-key", "", "Store the gateway API key encrypted in the database and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Chronicle MCP Server\n\n")
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s           Start MCP server on stdio\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --http    Start HTTP server\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  CHRONICLE_DB_TYPE           Database type (sqlite or postgres)\n")
		fmt.Fprintf(os.Stderr, "  CHRONICLE_DB_PATH           SQLite database path\n")
		fmt.Fprintf(os.Stderr, "  CHRONICLE_DB_DSN            PostgreSQL connection string\n")
		fmt.Fprintf(os.Stderr, "  CHRONICLE_GATEWAY_BASE_URL  Extraction gateway base URL\n")
		fmt.Fprintf(os.Stderr, "  CHRONICLE_GATEWAY_MODEL     Extraction gateway model name\n")
		fmt.Fprintf(os.Stderr, "  CHRONICLE_ENCRYPTION_KEY    Key for the stored gateway credential\n")
		fmt.Fprintf(os.Stderr, "  OPENAI_API_KEY              Gateway API key (overrides stored credential)\n")
	}
	flag.Parse()

	cfg := loadConfig(*configPath)
	config.ApplyEnvOverrides(cfg)
	if *dbType != "" {
		cfg.Database.Type = *dbType
	}
	if *dbPath != "" {
		cfg.Database.SQLitePath = *dbPath
	}
	if *dbDSN != "" {
		cfg.Database.PostgresDSN = *dbDSN
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}

	log, err := logger.New(cfg.Logging.Mode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	db, err := database.Connect(&database.Config{
		Type:        cfg.Database.Type,
		SQLitePath:  cfg.Database.SQLitePath,
		PostgresDSN: cfg.Database.PostgresDSN,
		LogLevel:    gormlogger.Silent,
	})
	if err != nil {
		log.Fatal("failed to connect to database", "error", err)
	}
	defer database.Close(db)

	if err := database.Migrate(db); err != nil {
		log.Fatal("failed to migrate database", "error", err)
	}

	if *setGatewayKey != "" {
		storeGatewayKey(db, cfg, *setGatewayKey, log)
		return
	}

	apiKey := resolveGatewayKey(db, cfg, log)
	extractor, err := gateway.NewClient(log, gateway.ClientOptions{
		BaseURL:    cfg.Gateway.BaseURL,
		APIKey:     apiKey,
		Model:      cfg.Gateway.Model,
		MaxRetries: cfg.Gateway.MaxRetries,
	})
	if err != nil {
		log.Fatal("failed to create gateway client", "error", err)
	}

	merger := merge.NewMerger(db, log)
	composer := biography.New(db, extractor, log, biography.Options{
		CacheTTL:    time.Duration(cfg.Biography.CacheTTLHours) * time.Hour,
		RecentLimit: cfg.Biography.RecentLimit,
	})
	tc := &tools.ToolContext{
		DB: db,
		Ingestor: ingest.NewIngestor(db, extractor, merger, log, ingest.Options{
			SyncTimeout: time.Duration(cfg.Gateway.TimeoutSeconds) * time.Second,
			JobTimeout:  time.Duration(cfg.Gateway.JobTimeoutSeconds) * time.Second,
		}),
		Sweeper:   sweeper.New(db, log),
		Detector:  resonance.New(db, log),
		Reports:   report.New(db, extractor, composer, log, report.Options{MinEntries: cfg.Report.MinEntries}),
		Biography: composer,
		Jobs:      jobs.NewRunner(db, log),
		Log:       log,
	}

	if cfg.Jobs.Enabled && !*noJobs {
		sched := scheduler.New(log)
		if err := registerJobs(sched, tc, cfg, db, log); err != nil {
			log.Fatal("failed to register scheduled jobs", "error", err)
		}
		sched.Start()
		defer sched.Stop()
	}

	if *httpMode {
		mux := http.NewServeMux()
		server.NewHTTPServer(tc, log).RegisterRoutes(mux)
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		log.Info("starting HTTP server", "addr", addr, "version", Version)
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Fatal("HTTP server failed", "error", err)
		}
		return
	}

	log.Info("starting MCP server on stdio", "version", Version)
	if err := server.New(tc, Version, log).ServeStdio(); err != nil {
		log.Fatal("MCP server failed", "error", err)
	}
}

func loadConfig(path string) *config.Config {
	if path != "" {
		cfg, err := config.LoadFromPath(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config from %s: %v, using defaults\n", path, err)
			return config.DefaultConfig()
		}
		return cfg
	}
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "no config file loaded: %v, using defaults\n", err)
		return config.DefaultConfig()
	}
	return cfg
}

func registerJobs(sched *scheduler.Scheduler, tc *tools.ToolContext, cfg *config.Config, db *gorm.DB, log *logger.Logger) error {
	jobTimeout := time.Duration(cfg.Gateway.JobTimeoutSeconds) * time.Second

	err := sched.Register(scheduler.Job{
		Name: jobs.JobConsolidation,
		Spec: cfg.Jobs.SweeperSpec,
		Run: func(ctx context.Context) error {
			return tc.Jobs.Run(ctx, jobs.JobConsolidation, func(ctx context.Context) (string, error) {
				return tc.Sweeper.Run(ctx).Summary(), nil
			})
		},
	})
	if err != nil {
		return err
	}

	err = sched.Register(scheduler.Job{
		Name: jobs.JobResonance,
		Spec: cfg.Jobs.ResonanceSpec,
		Run: func(ctx context.Context) error {
			return tc.Jobs.Run(ctx, jobs.JobResonance, func(ctx context.Context) (string, error) {
				result, err := tc.Detector.Run(ctx)
				if err != nil {
					return "", err
				}
				return result.Summary(), nil
			})
		},
	})
	if err != nil {
		return err
	}

	err = sched.Register(scheduler.Job{
		Name:    jobs.JobWeeklyReport,
		Spec:    cfg.Jobs.ReportSpec,
		Timeout: jobTimeout,
		Run: func(ctx context.Context) error {
			return tc.Jobs.Run(ctx, jobs.JobWeeklyReport, func(ctx context.Context) (string, error) {
				outcome, err := tc.Reports.Run(ctx)
				if err != nil {
					return "", err
				}
				return outcome.Summary(), nil
			})
		},
	})
	if err != nil {
		return err
	}

	if cfg.Archive.Enabled {
		archiver := archive.New(db, cfg.Archive.Path, log)
		err = sched.Register(scheduler.Job{
			Name: jobs.JobArchive,
			Spec: cfg.Jobs.ArchiveSpec,
			Run: func(ctx context.Context) error {
				return tc.Jobs.Run(ctx, jobs.JobArchive, func(ctx context.Context) (string, error) {
					result, err := archiver.Run(ctx)
					if err != nil {
						return "", err
					}
					return result.Summary(), nil
				})
			},
		})
		if err != nil {
			return err
		}
	}

	return nil
}

// resolveGatewayKey prefers the environment, then falls back to the
// encrypted credential stored by --set-gateway-key
func resolveGatewayKey(db *gorm.DB, cfg *config.Config, log *logger.Logger) string {
	envName := cfg.Gateway.APIKeyEnv
	if envName == "" {
		envName = "OPENAI_API_KEY"
	}
	if key := os.Getenv(envName); key != "" {
		return key
	}

	if cfg.Security.EncryptionKey == "" {
		return ""
	}
	encKey, err := crypto.StringToKey(cfg.Security.EncryptionKey)
	if err != nil {
		log.Warn("invalid encryption key in config", "error", err)
		return ""
	}

	var cred database.GatewayCredential
	if err := db.Where("provider = ?", "openai").First(&cred).Error; err != nil {
		return ""
	}
	key, err := crypto.DecryptSecret(cred.APIKeyEncrypted, encKey)
	if err != nil {
		log.Warn("failed to decrypt stored gateway credential", "error", err)
		return ""
	}
	return key
}

func storeGatewayKey(db *gorm.DB, cfg *config.Config, apiKey string, log *logger.Logger) {
	if cfg.Security.EncryptionKey == "" {
		key, err := crypto.GenerateKey()
		if err != nil {
			log.Fatal("failed to generate encryption key", "error", err)
		}
		log.Fatal("no encryption key configured; set security.encryption_key first",
			"generated_example", crypto.KeyToString(key))
	}
	encKey, err := crypto.StringToKey(cfg.Security.EncryptionKey)
	if err != nil {
		log.Fatal("invalid encryption key in config", "error", err)
	}
	encrypted, err := crypto.EncryptSecret(apiKey, encKey)
	if err != nil {
		log.Fatal("failed to encrypt gateway key", "error", err)
	}

	cred := database.GatewayCredential{Provider: "openai", APIKeyEncrypted: encrypted}
	err = db.Where("provider = ?", "openai").
		Assign(database.GatewayCredential{APIKeyEncrypted: encrypted}).
		FirstOrCreate(&cred).Error
	if err != nil {
		log.Fatal("failed to store gateway credential", "error", err)
	}
	log.Info("gateway credential stored")
}
