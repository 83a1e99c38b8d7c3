// Command urft-send transmits one local file to a urft-receive endpoint.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/phuwit/urft/internal/config"
	"github.com/phuwit/urft/internal/logging"
	"github.com/phuwit/urft/internal/sender"
	"github.com/phuwit/urft/internal/settings"
	"github.com/phuwit/urft/internal/transport"
)

var (
	logLevel     string
	settingsPath string
)

var rootCmd = &cobra.Command{
	Use:   "urft-send <file> <host> <port>",
	Short: "Send a file over the unidirectional reliable file transfer protocol",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, host := args[0], args[1]
		if err := config.ValidatePort(args[2]); err != nil {
			return err
		}
		port, _ := strconv.Atoi(args[2])
		if err := config.ValidateHost(host); err != nil {
			return err
		}
		if err := config.ValidateFilePath(path); err != nil {
			return err
		}

		overrides, err := settings.Load(settingsPath)
		if err != nil {
			return err
		}
		if env := os.Getenv("URFT_LOG_LEVEL"); env != "" {
			overrides.LogLevel = env
		}
		if logLevel != "" {
			overrides.LogLevel = logLevel
		}
		logging.SetLevel(overrides.LogLevel)

		ep, err := transport.DialWithBuffers(host, port, overrides.ReadBuffer, overrides.WriteBuffer)
		if err != nil {
			return fmt.Errorf("dial %s:%d: %w", host, port, err)
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		return sender.New(ep, overrides.ApplyLossTimeout()).SendFile(ctx, path)
	},
}

func init() {
	rootCmd.Flags().StringVar(&logLevel, "log-level", "", "Log level override (debug, info, warn, error)")
	rootCmd.Flags().StringVar(&settingsPath, "settings", settings.DefaultPath(), "Path to an urft.ini settings file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
