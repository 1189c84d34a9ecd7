package flags

import (
	"fmt"
	"math"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const relayPort = "port"

// relay flags
var (
	Port uint64
)

func SetRelayFlags(cmd *cobra.Command) {
	SetBaseFlags(cmd)
	RelayPortFlag(cmd)
}

// BindRelayFlags binds flags to yaml config parameters for the relay
func BindRelayFlags(cmd *cobra.Command) error {
	if err := BindBaseFlags(cmd); err != nil {
		return err
	}
	if err := viper.BindPFlag(relayPort, cmd.PersistentFlags().Lookup(relayPort)); err != nil {
		return err
	}
	Port = viper.GetUint64(relayPort)
	if Port == 0 || Port > math.MaxUint16 {
		return fmt.Errorf("😥 Wrong port provided")
	}
	return nil
}

// RelayPortFlag adds relay listening port flag to the command
func RelayPortFlag(c *cobra.Command) {
	AddPersistentIntFlag(c, relayPort, 3030, "Relay listening port", false)
}
