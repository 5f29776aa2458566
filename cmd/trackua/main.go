package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/thomasjjj/Track-UA-Air-Attacks/internal/app"
	"github.com/thomasjjj/Track-UA-Air-Attacks/internal/config"
	"github.com/thomasjjj/Track-UA-Air-Attacks/internal/credentials"
	"github.com/thomasjjj/Track-UA-Air-Attacks/internal/logging"
)

const exampleConfigFile = "config.example.yaml"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath   string
		createConfig bool
	)

	cmd := &cobra.Command{
		Use:   "trackua",
		Short: "Harvest air-attack updates from a Telegram channel and enrich them with structured extractions",
		Long: "trackua incrementally scrapes messages matching a phrase from a Telegram\n" +
			"channel, runs each through a language-model extraction and appends the\n" +
			"results to a CSV file. Interrupted runs resume where they left off.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if createConfig {
				return createExampleConfig()
			}
			return run(configPath)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to a config file (default: ./config.yaml if present)")
	cmd.Flags().BoolVar(&createConfig, "create-config", false, "write "+exampleConfigFile+" and exit")
	return cmd
}

func createExampleConfig() error {
	if err := config.SaveExample(exampleConfigFile); err != nil {
		return err
	}
	fmt.Printf("Saved example configuration to %s\n", exampleConfigFile)
	fmt.Println("Copy it to config.yaml, edit it, then run: trackua")
	return nil
}

func run(configPath string) error {
	cfg := config.LoadPath(configPath)
	logger := logging.NewWithFile(cfg.Logging.Level, cfg.Logging.File)

	printBanner(cfg)

	prompter := credentials.NewPrompter(os.Stdin, os.Stdout)
	creds, err := credentials.Load(credentials.DefaultFile, prompter)
	if err != nil {
		logger.Error("cannot load credentials", "error", err)
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(cfg, creds, prompter, logger)
	if err != nil {
		logger.Error("cannot build application", "error", err)
		return err
	}

	if err := application.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("stopped by user, progress is saved")
			return nil
		}
		logger.Error("scraper stopped", "error", err)
		return err
	}

	logger.Info("scraping completed successfully")
	return nil
}

func printBanner(cfg config.Config) {
	header := color.New(color.FgCyan, color.Bold)
	label := color.New(color.FgWhite)

	header.Println("Track-UA-Air-Attacks")
	label.Printf("  channel:       %s\n", cfg.Telegram.Channel)
	label.Printf("  search phrase: %q\n", cfg.Telegram.SearchPhrase)
	label.Printf("  feed:          %s\n", cfg.Telegram.Feed)
	label.Printf("  model:         %s\n", cfg.OpenAI.Model)
	if limit := cfg.Processing.Limit(); limit > 0 {
		label.Printf("  message limit: %d\n", limit)
	} else {
		label.Printf("  message limit: unlimited\n")
	}
	if cfg.Processing.IsIncremental() {
		label.Printf("  mode:          incremental\n")
	} else {
		label.Printf("  mode:          two-phase\n")
	}
	label.Printf("  output:        %s\n", cfg.Output.File)
}
