// Package main is the entry point for the instance sync service.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/leadengine/instance-sync/cmd/instance-sync/app"
	"github.com/leadengine/instance-sync/internal/config"
	"github.com/leadengine/instance-sync/internal/logger"
)

// getLogLevel reads INSTANCE_SYNC_LOG_LEVEL, falling back to LOG_LEVEL
func getLogLevel() (string, bool) {
	v := viper.New()
	v.SetEnvPrefix(config.EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	levelStr := v.GetString("LOG_LEVEL")
	if levelStr == "" {
		levelStr = os.Getenv("LOG_LEVEL")
	}
	_, ok := logger.ParseLevel(levelStr)
	return levelStr, ok
}

func main() {
	levelStr, valid := getLogLevel()
	level, _ := logger.ParseLevel(levelStr)
	debug := os.Getenv(config.EnvPrefix+"_DEBUG") == "true"

	if err := logger.Initialize(level, debug); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if !valid {
		logger.Warnw("Invalid LOG_LEVEL, using INFO", "value", levelStr)
	}

	if err := app.NewRootCmd().Execute(); err != nil {
		logger.Sync()
		os.Exit(1)
	}
}
