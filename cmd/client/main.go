package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/iudanet/offsync/internal/client/api"
	"github.com/iudanet/offsync/internal/client/cli"
	"github.com/iudanet/offsync/internal/client/netmon"
	"github.com/iudanet/offsync/internal/client/queue"
	"github.com/iudanet/offsync/internal/client/resolver"
	"github.com/iudanet/offsync/internal/client/storage/boltdb"
	"github.com/iudanet/offsync/internal/client/sync"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

func main() {
	// Глобальные флаги
	showVersion := flag.Bool("version", false, "Show version information")
	serverURL := flag.String("server", "http://localhost:8080", "Server URL")
	dbPath := flag.String("db", "offsync-client.db", "Path to local database")
	strategyName := flag.String("strategy", string(resolver.StrategyLastWriteWins), "Conflict resolution strategy")

	flag.Parse()

	// Show version and exit if requested
	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	// Получаем команду
	args := flag.Args()
	if len(args) == 0 {
		cli.PrintUsage()
		os.Exit(1)
	}

	command := args[0]

	strategy, err := resolver.ParseStrategy(*strategyName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// CLI работает в одноразовом режиме, поэтому логи только о проблемах
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))

	// Создаем контекст
	ctx := context.Background()

	// Открываем BoltDB storage
	boltStorage, err := boltdb.New(ctx, *dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if err := boltStorage.Close(); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}()

	// Собираем движок синхронизации
	cfg := sync.DefaultConfig()
	cfg.ConflictResolution = strategy
	// Команды выполняют один цикл явно, фоновая синхронизация не нужна
	cfg.AutoSync = false

	opQueue := queue.New(boltStorage, cfg.MaxPendingOperations, logger)
	prober := netmon.NewHTTPProber(*serverURL+"/healthz", 5*time.Second)
	monitor := netmon.New(netmon.DefaultConfig(), prober, logger)
	res := resolver.New(strategy, cfg.NodeID, logger)
	apiClient := api.NewClient(*serverURL)

	service := sync.New(cfg, opQueue, boltStorage, boltStorage, monitor, res, apiClient, logger)
	if err := service.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start sync engine: %v\n", err)
		os.Exit(1)
	}
	defer service.Stop()

	c := cli.New(service, monitor)

	// Выполняем команду
	switch command {
	case "put":
		err = c.RunPut(ctx, args[1:])
	case "get":
		err = c.RunGet(ctx, args[1:])
	case "list":
		err = c.RunList(ctx, args[1:])
	case "delete":
		err = c.RunDelete(ctx, args[1:])
	case "sync":
		err = c.RunSync(ctx, args[1:])
	case "status":
		err = c.RunStatus(ctx, args[1:])
	case "conflicts":
		err = c.RunConflicts(ctx, args[1:])
	case "resolve":
		err = c.RunResolve(ctx, args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		cli.PrintUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printVersion() {
	fmt.Printf("offsync Client\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Date: %s\n", BuildDate)
	fmt.Printf("Git Commit: %s\n", GitCommit)
}
