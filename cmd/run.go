package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/gregLibert/vsmartcard/pkg/card"
	"github.com/gregLibert/vsmartcard/pkg/config"
	"github.com/gregLibert/vsmartcard/pkg/vpcd"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Connect to vpcd and present the virtual card",
	Long: `run dials vpcd and serves the configured card until vpcd closes the
connection or the process is interrupted. vpcd must already be running.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("addr") {
			cfg.Addr, _ = cmd.Flags().GetString("addr")
		}
		return connect(cmd, cfg)
	},
}

func init() {
	runCmd.Flags().String("addr", vpcd.DefaultAddr, `vpcd address, host:port or "unix:/path"`)
	rootCmd.AddCommand(runCmd)
}

// connect dials cfg.Addr and runs one session until it ends.
func connect(cmd *cobra.Command, cfg config.Config) error {
	log := newLogger(cfg)

	c, err := card.FromConfig(cfg, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rec, err := startMetrics(ctx, cfg, log)
	if err != nil {
		return err
	}

	dialCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	conn, err := vpcd.Dial(dialCtx, cfg.Addr)
	cancel()
	if err != nil {
		return err
	}
	defer conn.Close()

	// Closing the connection is the only way to stop a blocked session.
	stopClose := context.AfterFunc(ctx, func() { conn.Close() })
	defer stopClose()

	log.Info().Str("addr", cfg.Addr).Str("card", string(cfg.Card)).Msg("connected to vpcd")

	opts := sessionOptions(cfg, log)
	if rec != nil {
		rec.SessionStarted()
		opts = append(opts, rec.Option())
	}
	session := vpcd.NewSession(conn, c, opts...)
	err = session.Run()

	stats := session.Stats()
	log.Info().
		Uint64("frames", stats.Frames).
		Uint64("apdus", stats.APDUs).
		Uint64("protocol_errors", stats.ProtocolErrors).
		Uint64("state_errors", stats.StateErrors).
		Msg("session ended")

	if errors.Is(err, vpcd.ErrClosed) || ctx.Err() != nil {
		return nil
	}
	return err
}
