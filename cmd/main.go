package main

import (
	"context"
	"flag"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/brettbedarf/memfs/adapters"
	"github.com/brettbedarf/memfs/config"
	"github.com/brettbedarf/memfs/internal/util"
	"github.com/brettbedarf/memfs/metrics"
	"github.com/brettbedarf/memfs/requests"
	"github.com/brettbedarf/memfs/server"
)

func main() {
	// Parse command line arguments
	var (
		configPath  string
		verbose     int
		nodesDef    string
		umount      bool
		metricsAddr string
	)
	flag.StringVar(&configPath, "config", "", "Path to a yaml or json config file")
	flag.StringVar(&configPath, "c", "", "--config (shorthand)")
	flag.StringVar(&nodesDef, "nodes", "", "Path to nodes def file")
	flag.StringVar(&nodesDef, "n", "", "--nodes (shorthand)")
	flag.BoolVar(&umount, "umount", false,
		"Unmount the fs first if needed before mounting again. Useful for debuggers that don't exit properly.")
	flag.BoolVar(&umount, "u", false, "--umount (shorthand)")
	flag.IntVar(&verbose, "verbose", config.InfoVerbose, "Log verbosity level between 1 (error) and 5 (trace). Default is 3 (info).")
	flag.IntVar(&verbose, "v", config.InfoVerbose, "--verbose (shorthand)")
	flag.StringVar(&metricsAddr, "metrics", "", "Serve Prometheus metrics on this address, i.e. :9100")
	flag.Parse()

	// Initialize logger
	util.InitializeLogger(config.VerboseToLogLvl(verbose))
	logger := util.GetLogger("main")

	mnt := flag.Arg(0)
	logger.Info().Int("verbose", verbose).Str("nodes", nodesDef).Str("mnt", mnt).Msg("memfs server initializing")
	// Check if mount point is provided
	if mnt == "" {
		logger.Fatal().Msg("Mount point not specified; it must be passed as the argument")
	}
	// Try unmount if requested
	if umount { // send cli command
		cmd := exec.Command("fusermount", "-u", mnt)
		// we ignore error here if not already mounted
		cmd.Run() // nolint:errcheck
	}

	// Config file values first, CLI flags win
	cfg := config.NewDefaultConfig()
	if configPath != "" {
		var err error
		if cfg, err = config.NewConfigFromFile(configPath); err != nil {
			logger.Fatal().Err(err).Str("config", configPath).Msg("Failed to load config file")
		}
	}
	override := &config.ConfigOverride{}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "verbose", "v":
			override.LogLvl = &verbose
		case "metrics":
			override.MetricsAddr = &metricsAddr
		}
	})
	cfg.Merge(override)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("Invalid configuration")
	}
	if override.LogLvl == nil {
		util.InitializeLogger(cfg.LogLvl)
		logger = util.GetLogger("main")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Metrics are only collected when they can be scraped
	var opMetrics metrics.OpMetrics
	var metricsSrv *metrics.Server
	if cfg.MetricsAddr != "" {
		metrics.InitRegistry()
		opMetrics = metrics.NewOpMetrics()
		metricsSrv = metrics.NewServer(cfg.MetricsAddr)
		go func() {
			if err := metricsSrv.Start(ctx); err != nil {
				logger.Error().Err(err).Str("addr", cfg.MetricsAddr).Msg("Metrics server failed")
			}
		}()
	}

	fs := server.New(cfg, opMetrics)

	// Load sources
	if nodesDef != "" {
		// Register all built-in adapters
		registry := adapters.NewRegistry()
		adapters.RegisterBuiltins(registry)

		fileRequests, err := requests.LoadNodesFile(nodesDef, registry)
		if err != nil {
			logger.Fatal().Err(err).Str("nodes", nodesDef).Msg("Failed to load nodes file")
		}

		fileAddCnt := 0
		for _, req := range fileRequests {
			if _, err := fs.AddFileNode(ctx, req); err != nil {
				logger.Error().Err(err).Str("path", req.Path).Msg("Failed to add file request")
			} else {
				fileAddCnt++
			}
		}
		logger.Info().Int("files", fileAddCnt).Int("requested", len(fileRequests)).Msg("Added new nodes to filesystem")
	} else {
		logger.Debug().Msg("No nodes file provided")
	}

	// Serve
	if err := fs.Serve(mnt); err != nil {
		logger.Fatal().Err(err).Msg("Failed to mount filesystem")
	}

	// Setup signal handling for graceful shutdown
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	logger.Info().Str("mountpoint", mnt).Msg("Filesystem mounted successfully")

	// Wait for termination signal
	sig := <-signalChan
	logger.Info().Str("signal", sig.String()).Msg("Received signal, unmounting filesystem")

	// Unmount the filesystem
	if err := fs.Unmount(); err != nil {
		logger.Error().Err(err).Msg("Failed to unmount filesystem")
	} else {
		logger.Info().Msg("Filesystem unmounted successfully")
	}

	if metricsSrv != nil {
		if err := metricsSrv.Stop(context.Background()); err != nil {
			logger.Error().Err(err).Msg("Failed to stop metrics server")
		}
	}
}
