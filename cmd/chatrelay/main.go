// Command chatrelay runs the chat relay server and its companion tools.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aixgo-dev/chatrelay/internal/logging"
	"github.com/aixgo-dev/chatrelay/pkg/config"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// Version is set via ldflags.
var Version = "dev"

type rootOptions struct {
	configPath string
	logLevel   string
	logFormat  string
}

// load reads and validates the configuration and builds the logger.
// Flags override the file.
func (o *rootOptions) load() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.LoadConfig(o.configPath)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if o.logFormat != "" {
		cfg.Log.Format = o.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.Setup(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	return cfg, logger, nil
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "chatrelay",
		Short:         "Real-time chat relay between websocket clients and a language model",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default $"+config.EnvConfigPath+" or "+config.DefaultPath+")")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")
	root.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "log format (console, json, auto)")

	root.AddCommand(
		newServeCmd(opts),
		newChatCmd(),
		newHistoryCmd(opts),
		newBenchCmd(),
	)
	return root
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
