// Command urft-receive waits for one incoming transfer from a urft-send
// peer and writes it to the current directory.
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
	"github.com/phuwit/urft/internal/receiver"
	"github.com/phuwit/urft/internal/settings"
	"github.com/phuwit/urft/internal/transport"
)

var (
	logLevel     string
	settingsPath string
	outDir       string
)

var rootCmd = &cobra.Command{
	Use:   "urft-receive <host> <port>",
	Short: "Wait for one incoming transfer over the unidirectional reliable file transfer protocol",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		host := args[0]
		if err := config.ValidatePort(args[1]); err != nil {
			return err
		}
		port, _ := strconv.Atoi(args[1])
		if err := config.ValidateHost(host); err != nil {
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

		ep, err := transport.ListenWithBuffers(host, port, overrides.ReadBuffer, overrides.WriteBuffer)
		if err != nil {
			return fmt.Errorf("listen %s:%d: %w", host, port, err)
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		result, err := receiver.New(ep, outDir).Receive(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("received %s (%d bytes) -> %s\n", result.FileName, result.FileSize, result.Path)
		return nil
	},
}

func init() {
	rootCmd.Flags().StringVar(&logLevel, "log-level", "", "Log level override (debug, info, warn, error)")
	rootCmd.Flags().StringVar(&settingsPath, "settings", settings.DefaultPath(), "Path to an urft.ini settings file")
	rootCmd.Flags().StringVar(&outDir, "out-dir", ".", "Directory to write the received file into")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
