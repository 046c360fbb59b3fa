package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/localnerve/meddb/internal/config"
	"github.com/localnerve/meddb/internal/database"
	"github.com/localnerve/meddb/internal/directory"
	"github.com/localnerve/meddb/internal/reconcile"
	"github.com/localnerve/meddb/internal/services"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func main() {
	var showHelp bool
	flag.BoolVar(&showHelp, "h", false, "show help")
	var envFilename string
	flag.StringVar(&envFilename, "f", "", "path to the .env file")
	var maintainOnly bool
	flag.BoolVar(&maintainOnly, "maintain", false, "only repair e-mail like names")
	var timeout time.Duration
	flag.DurationVar(&timeout, "timeout", 0, "abort the run after this long (0 = no limit)")
	flag.Parse()

	usage := `
Run one reconciliation pass of the stored persons against the directories.

Usage:

reconcile [-h] [-f ENV_FILE_PATH] [-maintain] [-timeout DURATION]

ENV_FILE_PATH: path to the .env file
-maintain:     only repair person names stored as e-mail addresses
-timeout:      abort the pass after DURATION, e.g. 30m

example
  reconcile -f /path/to/something/.env -timeout 1h
`
	if showHelp {
		fmt.Println(usage)
		return
	}

	if envFilename != "" {
		log.Printf("Loading environment variables from %s\n", envFilename)
		if err := godotenv.Load(envFilename); err != nil {
			log.Fatalf("Failed to load environment variables: %v\n", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	zlog, err := config.NewLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	os.Exit(run(ctx, cfg, zlog, maintainOnly))
}

func run(ctx context.Context, cfg *config.Config, zlog *zap.Logger, maintainOnly bool) int {
	appDB, err := database.Connect(cfg, zlog)
	if err != nil {
		zlog.Error("failed to connect to app database", zap.Error(err))
		return 1
	}
	defer database.Close(appDB)

	if err := database.AutoMigrate(appDB); err != nil {
		zlog.Error("failed to run migrations", zap.Error(err))
		return 1
	}

	fixed, err := services.FixEmailLikeNames(appDB.WithContext(ctx))
	if err != nil {
		zlog.Error("name repair failed", zap.Error(err))
		return 1
	}
	zlog.Info("name repair completed", zap.Int("fixed", fixed))
	if maintainOnly {
		return 0
	}

	var schoolDB *gorm.DB
	if cfg.SchoolEnabled() {
		schoolDB, err = database.ConnectSchool(cfg, zlog)
		if err != nil {
			zlog.Error("failed to connect to school directory database", zap.Error(err))
			return 1
		}
		defer database.Close(schoolDB)
	}

	clients, err := directory.NewClients(cfg, schoolDB)
	if err != nil {
		zlog.Error("failed to create directory clients", zap.Error(err))
		return 1
	}

	opts := reconcile.Options{Log: zlog, CopyOrganization: cfg.ReconcileCopyOrganization}
	opts.UseDirectories(clients)

	result, err := reconcile.New(appDB, clients.Delta, opts).Run(ctx, reconcile.TriggerCLI)
	if err != nil {
		zlog.Error("reconciliation failed", zap.Error(err))
		return 1
	}

	fmt.Printf("run %s: processed=%d corrected=%d verified=%d unresolved=%d failed=%d\n",
		result.ID, result.Processed, result.Corrected, result.Verified, result.Unresolved, result.Failed)
	if result.Failed > 0 {
		return 2
	}
	return 0
}
