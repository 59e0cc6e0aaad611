/*
Package cmd implements the vpicc command line using the Cobra library.

This package provides:
  - run: connect to vpcd and present a virtual card until the connection ends
  - listen: wait for vpcd in reverse mode and serve one card per connection
  - probe: walk the payment directory of a card, through PC/SC or in-process

Every command reads the same TOML file (--config); flags override it.
*/
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/gregLibert/vsmartcard/pkg/config"
	"github.com/gregLibert/vsmartcard/pkg/logging"
	"github.com/gregLibert/vsmartcard/pkg/metrics"
	"github.com/gregLibert/vsmartcard/pkg/tlv"
	"github.com/gregLibert/vsmartcard/pkg/vpcd"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// rootCmd is the parent of all vpicc subcommands and carries the global flags.
var rootCmd = &cobra.Command{
	Use:   "vpicc",
	Short: "Virtual smartcard for the vsmartcard vpcd reader driver",
	Long: `vpicc presents an emulated smartcard to vpcd, the virtual PC/SC reader
of the vsmartcard project. PC/SC applications then see the card in the
"Virtual PCD" reader as if it were inserted in a real one.

Without a subcommand vpicc runs "run" or "listen" as vpcd.mode says.

Quick usage:
  vpicc run                          # dummy card on 127.0.0.1:35963
  vpicc run --card payment           # EMV card with a payment directory
  vpicc listen --listen :35963       # reverse mode, vpcd dials us
  vpicc probe --loopback             # explore the payment card in-process`,
	SilenceUsage: true,
	Args:         cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cfg.Mode == config.ModeListen {
			return listen(cmd, cfg)
		}
		return connect(cmd, cfg)
	},
}

// Execute runs the root command. It is called by main.main and exits with
// status 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	addConfigFlags(rootCmd)
}

// addConfigFlags registers the flags loadConfig reads as persistent flags of cmd.
func addConfigFlags(cmd *cobra.Command) {
	fs := cmd.PersistentFlags()
	fs.StringP("config", "c", "", "TOML configuration file")
	fs.String("log-level", "", "log level: trace, debug, info, warn, error, off")
	fs.String("card", "", "card emulator: dummy, echo, payment")
	fs.String("atr", "", "ATR presented by the card, in hex")
	fs.String("metrics-addr", "", "serve Prometheus metrics on this address")
}

// loadConfig resolves the configuration: file (or defaults), then flags.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg := config.Default()

	if path, _ := cmd.Flags().GetString("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}

	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel, _ = cmd.Flags().GetString("log-level")
	}
	if cmd.Flags().Changed("card") {
		kind, _ := cmd.Flags().GetString("card")
		cfg.Card = config.CardKind(kind)
	}
	if cmd.Flags().Changed("metrics-addr") {
		cfg.MetricsAddr, _ = cmd.Flags().GetString("metrics-addr")
	}
	if cmd.Flags().Changed("atr") {
		raw, _ := cmd.Flags().GetString("atr")
		atr, err := tlv.ParseHex(raw)
		if err != nil {
			return config.Config{}, fmt.Errorf("parse --atr: %w", err)
		}
		cfg.ATR = atr
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func newLogger(cfg config.Config) zerolog.Logger {
	return logging.Runtime(cfg.LogLevel, cfg.LogNoColor)
}

func sessionOptions(cfg config.Config, log zerolog.Logger) []vpcd.Option {
	return []vpcd.Option{
		vpcd.WithLogger(log),
		vpcd.WithProtocolErrorPolicy(cfg.OnProtocolError),
	}
}

// startMetrics serves /metrics in the background when cfg.MetricsAddr is set.
// The returned recorder is nil when metrics are disabled.
func startMetrics(ctx context.Context, cfg config.Config, log zerolog.Logger) (*metrics.Recorder, error) {
	if cfg.MetricsAddr == "" {
		return nil, nil
	}
	reg := metrics.NewRegistry()
	rec, err := metrics.NewRecorder(reg)
	if err != nil {
		return nil, err
	}
	go func() {
		if err := metrics.Serve(ctx, cfg.MetricsAddr, reg, log); err != nil {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()
	return rec, nil
}
