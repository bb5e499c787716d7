package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/avvvet/skillbuddy-chat/internal/config"
)

var v = config.NewViper()

var rootCmd = &cobra.Command{
	Use:   "skillbuddy-chat",
	Short: "IT career advice chat with conversation memory and a knowledge base",
	// serve is the default so a bare binary behaves like a deployed service
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
	SilenceUsage: true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("host", "0.0.0.0", "address to listen on")
	flags.Int("port", 8000, "port to listen on")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("data-root", ".", "directory holding the index and session file")

	bindFlag(v, "host", "host")
	bindFlag(v, "port", "port")
	bindFlag(v, "log_level", "log-level")
	bindFlag(v, "data_root", "data-root")

	rootCmd.AddCommand(serveCmd, chatCmd)
}

func bindFlag(v *viper.Viper, key, flag string) {
	if err := v.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func main() {
	// Load .env file if it exists (for development)
	if err := godotenv.Load(); err != nil {
		fmt.Fprintln(os.Stderr, "No .env file found, using environment variables")
	}

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads configuration and installs the default logger.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(v)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel})))
	return cfg, nil
}
