package main

import (
	"context"
	"fmt"
	"os"

	"VDAF/internal/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// run is the main entry point with error handling.
func run() error {
	cfg := parseFlags()

	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger.InitLevel(os.Stderr, level)

	cfg.VerifyKey, err = loadOrGenerateKey(cfg.KeyPath)
	if err != nil {
		return fmt.Errorf("load key:\n%w", err)
	}

	printStartupInfo(cfg)

	result, err := dispatch(context.Background(), cfg)
	if err != nil {
		return err
	}

	fmt.Println(result)

	return nil
}

// printStartupInfo displays the simulation configuration.
func printStartupInfo(cfg *Config) {
	logger.Info("starting prio3 simulation",
		"type", cfg.Type,
		"aggregators", cfg.Aggregators,
		"xof", cfg.Xof,
		"batch", cfg.Batch,
		"data", cfg.DataPath,
	)
}
