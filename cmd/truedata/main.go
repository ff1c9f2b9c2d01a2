package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"truedata-client/internal/cli"
	"truedata-client/internal/config"
	"truedata-client/internal/logging"
)

func main() {
	// A local .env can carry TD_LOGIN_ID / TD_PASSWORD during development.
	godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLoggerWithConfig(logging.LogConfig{
		Level:      cfg.Logging.Level,
		Console:    cfg.Logging.Console,
		File:       cfg.Logging.File,
		FilePath:   cfg.Logging.Path,
		MaxSize:    100,
		MaxBackups: 7,
		MaxAge:     30,
	})

	rootCmd := cli.NewRootCmd(cfg, logger)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
