package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/danmuck/snakeyard/internal/logging"
	"github.com/danmuck/snakeyard/internal/server"
)

func main() {
	configPath := flag.String("config", "", "path to yard config.toml (default $YARD_CONFIG)")
	envFile := flag.String("env", ".env", "dotenv file loaded before reading the environment")
	flag.Parse()

	if err := loadEnv(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "yardctl: %v\n", err)
		os.Exit(1)
	}
	logging.ConfigureRuntime()

	cfg, err := loadServiceConfig(resolveConfigPath(*configPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "yardctl: %v\n", err)
		os.Exit(1)
	}
	svc := server.NewServiceWithConfig(cfg)
	if err := svc.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "yardctl: %v\n", err)
		os.Exit(1)
	}
}
