package relay

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ssvlabs/eth-tss/cli/flags"
	cli_utils "github.com/ssvlabs/eth-tss/cli/utils"
	"github.com/ssvlabs/eth-tss/pkgs/relay"
)

func init() {
	flags.SetRelayFlags(StartRelay)
}

var StartRelay = &cobra.Command{
	Use:   "relay",
	Short: "Starts a relay for keygen and signing sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := flags.SetViperConfig(cmd); err != nil {
			return err
		}
		if err := flags.BindRelayFlags(cmd); err != nil {
			return err
		}
		logger, err := cli_utils.SetGlobalLogger("relay", flags.LogLevel, flags.LogLevelFormat, flags.LogFormat, flags.LogFilePath)
		if err != nil {
			return err
		}
		logger.Info("🪛 eth-tss relay", zap.String("version", cmd.Root().Version))
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		srv := relay.New(logger)
		if err := srv.Run(ctx, uint16(flags.Port)); err != nil {
			logger.Error("😥 Relay stopped", zap.Error(err))
			return err
		}
		return nil
	},
}
