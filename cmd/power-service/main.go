package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"power-service/internal/core"
	"power-service/internal/logger"
	"power-service/internal/metrics"
)

func main() {
	var (
		logLevel    = flag.String("log", "info", "Log level (none, error, warn, info, debug)")
		configPath  = flag.String("config", "", "Path to YAML config file")
		redisHost   = flag.String("redis-host", "", "Redis host (overrides config file)")
		redisPort   = flag.Int("redis-port", 0, "Redis port (overrides config file)")
		metricsAddr = flag.String("metrics", "", "Metrics listen address (overrides config file)")
	)
	flag.Parse()

	// Create standard logger with appropriate format
	var stdLogger *log.Logger
	if os.Getenv("INVOCATION_ID") != "" {
		// Running under systemd, use minimal format
		stdLogger = log.New(os.Stdout, "", 0)
	} else {
		// Running interactively, use timestamps
		stdLogger = log.New(os.Stdout, "", log.LstdFlags|log.Lmicroseconds|log.Lmsgprefix)
	}
	l := logger.NewLogger(stdLogger, logger.ParseLevel(*logLevel))

	cfg, err := core.LoadConfig(*configPath)
	if err != nil {
		l.Fatalf("Failed to load config: %v", err)
	}
	if *redisHost != "" {
		cfg.RedisHost = *redisHost
	}
	if *redisPort != 0 {
		cfg.RedisPort = *redisPort
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}
	if cfg.MetricsAddr != "" {
		metrics.Init()
	}

	l.Infof("Starting power service...")

	system := core.NewPowerSystem(cfg, l)
	if err := system.Start(); err != nil {
		l.Fatalf("Failed to start system: %v", err)
	}

	l.Infof("System started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	l.Infof("Received signal %v, shutting down...", sig)
	system.Shutdown()
	l.Infof("Shutdown complete")
}
