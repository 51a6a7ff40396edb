package commands

import (
	"github.com/spf13/cobra"

	"github.com/wonny/optrader/pkg/config"
	"github.com/wonny/optrader/pkg/logger"
)

var (
	// Global flags
	paramsFile string
	verbose    bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "optrader",
	Short: "Intraday option trading engine for Zerodha Kite",
	Long: `optrader

Selects option strikes from a strategy parameter file, enters them in
batches, protects every fill with a trailing stop order and closes all
positions before market close. Trades are recorded in a ledger so an
interrupted session resumes where it stopped.

Usage:
  go run ./cmd/optrader [command]

Examples:
  go run ./cmd/optrader run --params parameters.yaml --http
  go run ./cmd/optrader daemon
  go run ./cmd/optrader select --params parameters.yaml
  go run ./cmd/optrader trades --open
  go run ./cmd/optrader db migrate`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&paramsFile, "params", "", "strategy parameter file (default TRADING_PARAMS_FILE)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

// loadConfig reads the environment and applies global flags
func loadConfig() (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if paramsFile != "" {
		cfg.Trading.ParamsFile = paramsFile
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	return cfg, logger.New(cfg), nil
}
