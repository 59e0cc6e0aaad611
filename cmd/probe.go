package cmd

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/ebfe/scard"
	"github.com/gregLibert/vsmartcard/pkg/card"
	"github.com/gregLibert/vsmartcard/pkg/config"
	"github.com/gregLibert/vsmartcard/pkg/emv"
	"github.com/gregLibert/vsmartcard/pkg/iso7816"
	"github.com/gregLibert/vsmartcard/pkg/vpcd"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// virtualReaderName is the substring vpcd puts in the names of its readers.
const virtualReaderName = "Virtual PCD"

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Explore the payment directory of a card",
	Long: `probe selects the PSE, reads every directory record and selects each
application listed, then prints what it found.

By default it goes through PC/SC and uses the first vpcd reader (or the first
reader at all). With --loopback it talks to the configured card in-process
over the vpcd protocol, which needs neither pcscd nor vpcd.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		log := newLogger(cfg)

		var exp *emv.Exploration
		if loopback, _ := cmd.Flags().GetBool("loopback"); loopback {
			exp, err = probeLoopback(cfg, log)
		} else {
			name, _ := cmd.Flags().GetString("reader")
			exp, err = probePCSC(name, log)
		}
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), exp.Describe())
		return nil
	},
}

func init() {
	probeCmd.Flags().String("reader", "", "PC/SC reader name (default: first vpcd reader)")
	probeCmd.Flags().Bool("loopback", false, "probe the configured card in-process instead of through PC/SC")
	rootCmd.AddCommand(probeCmd)
}

func probePCSC(readerName string, log zerolog.Logger) (*emv.Exploration, error) {
	ctx, err := scard.EstablishContext()
	if err != nil {
		return nil, fmt.Errorf("establish PC/SC context: %w", err)
	}
	defer func() {
		if err := ctx.Release(); err != nil {
			log.Warn().Err(err).Msg("failed to release PC/SC context")
		}
	}()

	readers, err := ctx.ListReaders()
	if err != nil {
		return nil, fmt.Errorf("list readers: %w", err)
	}
	reader, err := pickReader(readers, readerName)
	if err != nil {
		return nil, err
	}
	log.Info().Str("reader", reader).Msg("using reader")

	// Force T=0 or T=1 to avoid "Parameter Incorrect" errors.
	sc, err := ctx.Connect(reader, scard.ShareShared, scard.ProtocolT0|scard.ProtocolT1)
	if err != nil {
		return nil, fmt.Errorf("connect to %q: %w", reader, err)
	}
	defer func() {
		if err := sc.Disconnect(scard.LeaveCard); err != nil {
			log.Warn().Err(err).Msg("failed to disconnect card")
		}
	}()

	return emv.Explore(iso7816.NewClient(sc), log)
}

// pickReader returns want if listed, else the first vpcd reader, else the first reader.
func pickReader(readers []string, want string) (string, error) {
	if len(readers) == 0 {
		return "", errors.New("no smart card reader found")
	}
	if want != "" {
		for _, r := range readers {
			if r == want {
				return r, nil
			}
		}
		return "", fmt.Errorf("reader %q not found", want)
	}
	for _, r := range readers {
		if strings.Contains(r, virtualReaderName) {
			return r, nil
		}
	}
	return readers[0], nil
}

// probeLoopback runs a session for the configured card on one end of a pipe
// and explores it from the other end, the way vpcd and pcscd would.
func probeLoopback(cfg config.Config, log zerolog.Logger) (*emv.Exploration, error) {
	c, err := card.FromConfig(cfg, log)
	if err != nil {
		return nil, err
	}

	daemonSide, cardSide := net.Pipe()
	session := vpcd.NewSession(cardSide, c, sessionOptions(cfg, log)...)
	done := make(chan error, 1)
	go func() { done <- session.Run() }()

	defer func() {
		daemonSide.Close()
		if err := <-done; err != nil && !errors.Is(err, vpcd.ErrClosed) {
			log.Warn().Err(err).Msg("loopback session failed")
		}
	}()

	reader := vpcd.NewReader(daemonSide)
	if err := reader.PowerOn(); err != nil {
		return nil, fmt.Errorf("power on: %w", err)
	}
	atr, err := reader.ATR()
	if err != nil {
		return nil, fmt.Errorf("get ATR: %w", err)
	}
	log.Info().Hex("atr", atr).Msg("card powered")

	return emv.Explore(iso7816.NewClient(reader), log)
}
