package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/openfold/brokergate/internal/app"
	"github.com/openfold/brokergate/internal/config"
	"github.com/openfold/brokergate/internal/core"
	"github.com/openfold/brokergate/internal/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cfgFile string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "brokergate",
	Short: "brokergate - multi-provider brokerage and market-data gateway",
	Long: `brokergate normalizes quotes, bars, positions and orders from
multiple brokerage APIs into one canonical schema, with call caching,
deterministic provider routing and a uniform error taxonomy.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable debug mode")
}

// Distinct exit codes so scripting callers can branch on the cause.
const (
	exitOK         = 0
	exitGeneric    = 1
	exitConfig     = 2 // missing credentials / configuration error
	exitValidation = 3 // bad input symbol, interval, params
	exitUpstream   = 4 // provider returned an error response
	exitNetwork    = 5 // provider unreachable / timeout
	exitRateLimit  = 6 // provider rate limit exceeded
)

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	switch {
	case errors.Is(err, core.ErrMissingCredentials):
		return exitConfig
	case errors.Is(err, core.ErrInvalidInput),
		errors.Is(err, core.ErrUnsupportedCapability),
		errors.Is(err, core.ErrProviderNotFound):
		return exitValidation
	case errors.Is(err, core.ErrHTTP), errors.Is(err, core.ErrParse):
		return exitUpstream
	case errors.Is(err, core.ErrProviderUnavailable):
		return exitNetwork
	case errors.Is(err, core.ErrRateLimited):
		return exitRateLimit
	}
	return exitGeneric
}

// withApp loads config, builds the app, runs fn and maps its error to
// an exit code.
func withApp(fn func(a *app.App, log *zap.Logger) error) error {
	log := logger.Must(debug)
	defer log.Sync()

	var cfg *config.Config
	var err error
	if cfgFile != "" {
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
	} else {
		cfg = config.Defaults()
		log.Warn("no config file specified, using defaults")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	a, err := app.New(cfg, log)
	if err != nil {
		return err
	}
	return fn(a, log)
}

func main() {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	os.Exit(exitCode(err))
}
