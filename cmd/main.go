package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/xhad/xiaowei/internal/app"
	cfgPkg "github.com/xhad/xiaowei/pkg/config"
)

var (
	configPath string
	userID     int64
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "xiaowei",
		Short:         "小卫, a voice assistant with a document knowledge base",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file")
	root.PersistentFlags().Int64Var(&userID, "user", 1, "User id to act as")

	root.AddCommand(
		newServeCmd(),
		newIngestCmd(),
		newImportCmd(),
		newQueryCmd(),
		newChatCmd(),
	)
	return root
}

// buildApp loads the configuration and wires the assistant.
func buildApp(ctx context.Context) (*app.App, error) {
	cfg, err := cfgPkg.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	spinner := getSpinner("Starting assistant...")
	a, err := app.Build(ctx, cfg)
	spinner.Finish()
	fmt.Print("\r")
	if err != nil {
		return nil, err
	}
	return a, nil
}
