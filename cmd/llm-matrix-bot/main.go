// Copyright 2026 The ai-llm-matrix-bot Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/xwiki-contrib/ai-llm-matrix-bot/lib/config"
	"github.com/xwiki-contrib/ai-llm-matrix-bot/lib/process"
	"github.com/xwiki-contrib/ai-llm-matrix-bot/lib/secret"
	"github.com/xwiki-contrib/ai-llm-matrix-bot/lib/version"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		configPath  string
		verbose     bool
		showVersion bool
	)
	flagSet := pflag.NewFlagSet("llm-matrix-bot", pflag.ContinueOnError)
	flagSet.StringVarP(&configPath, "config", "c", "config.json", "path to the configuration file (JSON or YAML)")
	flagSet.BoolVarP(&verbose, "verbose", "v", false, "log at debug level")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	if showVersion {
		fmt.Printf("llm-matrix-bot %s\n", version.Full())
		return nil
	}

	logger := process.NewLogger(os.Stderr, verbose)

	cfg, err := loadConfig(configPath, flagSet.Changed("config"))
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration:\n%w", err)
	}

	password, err := matrixPassword(cfg)
	if err != nil {
		return err
	}
	defer password.Close()
	if !password.Locked() {
		logger.Warn("could not lock password memory, it may be written to swap; raise RLIMIT_MEMLOCK to avoid this")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting llm-matrix-bot",
		"version", version.Info(),
		"homeserver", cfg.Bot.Server,
		"user_id", cfg.Bot.Username,
	)
	return runBot(ctx, cfg, password, logger)
}

// loadConfig reads the file named by --config, or by LLMBOT_CONFIG when
// the flag was not given and the variable is set.
func loadConfig(path string, explicit bool) (*config.Config, error) {
	if !explicit && os.Getenv(config.EnvVar) != "" {
		return config.Load()
	}
	return config.LoadFile(path)
}

// matrixPassword moves the configured password into guarded memory, or
// prompts for it on the terminal when the file has none.
func matrixPassword(cfg *config.Config) (*secret.Buffer, error) {
	if cfg.Bot.Password == "" {
		return secret.ReadPassword(int(os.Stdin.Fd()), "Matrix password for "+cfg.Bot.Username+": ", os.Stderr)
	}
	password, err := secret.NewFromString(cfg.Bot.Password)
	cfg.Bot.Password = ""
	if err != nil {
		return nil, fmt.Errorf("protecting matrix password: %w", err)
	}
	return password, nil
}
