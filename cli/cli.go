package cli

import (
	"log"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ssvlabs/eth-tss/cli/eth"
	"github.com/ssvlabs/eth-tss/cli/relay"
	"github.com/ssvlabs/eth-tss/cli/session"
)

func init() {
	RootCmd.AddCommand(session.Keygen)
	RootCmd.AddCommand(session.Sign)
	RootCmd.AddCommand(relay.StartRelay)
	RootCmd.AddCommand(eth.Cmd)
}

// RootCmd represents the root command of eth-tss CLI
var RootCmd = &cobra.Command{
	Use:          "eth-tss",
	Short:        "CLI for threshold ECDSA keygen and signing of Ethereum keys",
	SilenceUsage: true,
}

// Execute executes the root command
func Execute(appName, version string) {
	RootCmd.Short = appName
	RootCmd.Version = version

	if err := RootCmd.Execute(); err != nil {
		log.Fatal("failed to execute root command", zap.Error(err))
	}
}
