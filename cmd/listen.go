package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/gregLibert/vsmartcard/pkg/card"
	"github.com/gregLibert/vsmartcard/pkg/config"
	"github.com/gregLibert/vsmartcard/pkg/vpcd"
	"github.com/spf13/cobra"
)

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Wait for vpcd to connect (reverse mode)",
	Long: `listen accepts connections from a vpcd started in reverse mode. Each
connection gets a fresh card in the powered-off state. The command runs until
it is interrupted.

The listen address defaults to vpcd.addr from the configuration.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("listen") {
			cfg.Addr, _ = cmd.Flags().GetString("listen")
		}
		return listen(cmd, cfg)
	},
}

func init() {
	listenCmd.Flags().String("listen", "", `listen address, host:port or "unix:/path"`)
	rootCmd.AddCommand(listenCmd)
}

// listen serves one card per vpcd connection on cfg.Addr until interrupted.
func listen(cmd *cobra.Command, cfg config.Config) error {
	log := newLogger(cfg)

	factory, err := card.NewFactory(cfg, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rec, err := startMetrics(ctx, cfg, log)
	if err != nil {
		return err
	}

	ln, err := vpcd.Listen(ctx, cfg.Addr)
	if err != nil {
		return err
	}
	log.Info().Str("addr", ln.Addr().String()).Str("card", string(cfg.Card)).Msg("waiting for vpcd")

	newCard := func() vpcd.Card { return factory() }
	opts := sessionOptions(cfg, log)
	if rec != nil {
		newCard = rec.WrapFactory(newCard)
		opts = append(opts, rec.Option())
	}
	return vpcd.Serve(ctx, ln, newCard, opts...)
}
