package flags

import (
	"fmt"
	"math"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flag names.
const (
	roomID           = "roomID"
	index            = "index"
	participants     = "participants"
	threshold        = "threshold"
	relayAddress     = "relayAddress"
	timeout          = "timeout"
	keystorePassword = "keystorePassword"
	local            = "local"
)

// keygen flags
var (
	RoomID           string
	Index            uint16
	Participants     uint16
	Threshold        uint16
	RelayAddress     string
	Timeout          uint32
	KeystorePassword string
	Local            bool
)

func SetKeygenFlags(cmd *cobra.Command) {
	SetBaseFlags(cmd)
	RoomIDFlag(cmd)
	IndexFlag(cmd)
	ParticipantsFlag(cmd)
	ThresholdFlag(cmd)
	RelayAddressFlag(cmd)
	TimeoutFlag(cmd)
	KeystorePasswordFlag(cmd)
	LocalFlag(cmd)
}

// BindKeygenFlags binds flags to yaml config parameters for a keygen participant
func BindKeygenFlags(cmd *cobra.Command) error {
	if err := BindBaseFlags(cmd); err != nil {
		return err
	}
	if err := bindSessionFlags(cmd); err != nil {
		return err
	}
	for _, name := range []string{index, participants, threshold, local} {
		if err := viper.BindPFlag(name, cmd.PersistentFlags().Lookup(name)); err != nil {
			return err
		}
	}
	var err error
	Local = viper.GetBool(local)
	if Participants, err = uint16Value(participants); err != nil {
		return err
	}
	if Threshold, err = uint16Value(threshold); err != nil {
		return err
	}
	if Local {
		return nil
	}
	if Index, err = uint16Value(index); err != nil {
		return err
	}
	if Index == 0 {
		return fmt.Errorf("😥 index flag is required")
	}
	if RelayAddress == "" {
		return fmt.Errorf("😥 relayAddress flag is required")
	}
	return nil
}

// bindSessionFlags binds the flags keygen and sign have in common
func bindSessionFlags(cmd *cobra.Command) error {
	for _, name := range []string{roomID, relayAddress, timeout, keystorePassword} {
		if err := viper.BindPFlag(name, cmd.PersistentFlags().Lookup(name)); err != nil {
			return err
		}
	}
	RoomID = viper.GetString(roomID)
	RelayAddress = viper.GetString(relayAddress)
	t := viper.GetUint64(timeout)
	if t == 0 || t > math.MaxUint32 {
		return fmt.Errorf("😥 timeout should be a positive number of seconds")
	}
	Timeout = uint32(t)
	KeystorePassword = viper.GetString(keystorePassword)
	if KeystorePassword != "" {
		KeystorePassword = filepath.Clean(KeystorePassword)
	}
	if strings.Contains(KeystorePassword, "..") {
		return fmt.Errorf("😥 keystorePassword cant contain traversal")
	}
	return nil
}

func uint16Value(name string) (uint16, error) {
	v := viper.GetUint64(name)
	if v > math.MaxUint16 {
		return 0, fmt.Errorf("😥 %s flag out of range: %d", name, v)
	}
	return uint16(v), nil
}

// RoomIDFlag adds the relay room flag to the command
func RoomIDFlag(c *cobra.Command) {
	AddPersistentStringFlag(c, roomID, "", "Relay room shared by the participants of a session, generated when empty", false)
}

// IndexFlag adds the participant index flag to the command
func IndexFlag(c *cobra.Command) {
	AddPersistentIntFlag(c, index, 0, "Index of this participant, from 1 to participants", false)
}

// ParticipantsFlag adds the participants count flag to the command
func ParticipantsFlag(c *cobra.Command) {
	AddPersistentIntFlag(c, participants, 3, "Number of participants", false)
}

// ThresholdFlag adds threshold flag to the command
func ThresholdFlag(c *cobra.Command) {
	AddPersistentIntFlag(c, threshold, 1, "Maximal number of absent or corrupt participants, any threshold+1 can sign", false)
}

// RelayAddressFlag adds the relay address flag to the command
func RelayAddressFlag(c *cobra.Command) {
	AddPersistentStringFlag(c, relayAddress, "", "Relay http(s) address", false)
}

// TimeoutFlag adds the per round timeout flag to the command
func TimeoutFlag(c *cobra.Command) {
	AddPersistentIntFlag(c, timeout, 60, "Seconds to wait for the other participants in every round", false)
}

// KeystorePasswordFlag adds the password file flag to the command
func KeystorePasswordFlag(c *cobra.Command) {
	AddPersistentStringFlag(c, keystorePassword, "", "Path to a password file, the key share file is keystorev4 encrypted when set", false)
}

// LocalFlag runs every participant in this process
func LocalFlag(c *cobra.Command) {
	AddPersistentBoolFlag(c, local, false, "Run all participants locally and write every key share", false)
}
