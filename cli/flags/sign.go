package flags

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flag names.
const (
	quorum       = "quorum"
	data         = "data"
	keySharePath = "keySharePath"
	chainID      = "chainID"
)

// sign flags
var (
	Quorum       []uint16
	Data         string
	KeySharePath string
	ChainID      *uint64
)

func SetSignFlags(cmd *cobra.Command) {
	SetBaseFlags(cmd)
	RoomIDFlag(cmd)
	RelayAddressFlag(cmd)
	TimeoutFlag(cmd)
	KeystorePasswordFlag(cmd)
	QuorumFlag(cmd)
	DataFlag(cmd)
	KeySharePathFlag(cmd)
	ChainIDFlag(cmd)
}

// BindSignFlags binds flags to yaml config parameters for a signing participant
func BindSignFlags(cmd *cobra.Command) error {
	if err := BindBaseFlags(cmd); err != nil {
		return err
	}
	if err := bindSessionFlags(cmd); err != nil {
		return err
	}
	for _, name := range []string{quorum, data, keySharePath, chainID} {
		if err := viper.BindPFlag(name, cmd.PersistentFlags().Lookup(name)); err != nil {
			return err
		}
	}
	if RoomID == "" {
		return fmt.Errorf("😥 roomID flag is required")
	}
	if RelayAddress == "" {
		return fmt.Errorf("😥 relayAddress flag is required")
	}
	var err error
	Quorum, err = StringSliceToIndexes(viper.GetStringSlice(quorum))
	if err != nil {
		return err
	}
	Data = viper.GetString(data)
	if Data == "" {
		return fmt.Errorf("😥 data flag is required")
	}
	KeySharePath = viper.GetString(keySharePath)
	if KeySharePath == "" {
		return fmt.Errorf("😥 please provide a path to the key share file")
	}
	KeySharePath = filepath.Clean(KeySharePath)
	if strings.Contains(KeySharePath, "..") {
		return fmt.Errorf("😥 keySharePath should not contain traversal")
	}
	ChainID = nil
	if cmd.Flags().Changed(chainID) || viper.InConfig(chainID) {
		id := viper.GetUint64(chainID)
		ChainID = &id
	}
	return nil
}

// StringSliceToIndexes converts participant indexes given as strings
func StringSliceToIndexes(flagdata []string) ([]uint16, error) {
	res := make([]uint16, 0, len(flagdata))
	for _, s := range flagdata {
		id, err := strconv.ParseUint(strings.TrimSpace(s), 10, 16)
		if err != nil {
			return nil, fmt.Errorf("😥 cant parse participant index err: %v , data: %v", err, s)
		}
		res = append(res, uint16(id))
	}
	return res, nil
}

// QuorumFlag adds the signing participants flag to the command
func QuorumFlag(c *cobra.Command) {
	AddPersistentStringSliceFlag(c, quorum, []string{}, "Indexes of the participants of the signing session, e.g. 1,3", false)
}

// DataFlag adds the message hash flag to the command
func DataFlag(c *cobra.Command) {
	AddPersistentStringFlag(c, data, "", "Hex encoded 32 byte message hash to sign", false)
}

// KeySharePathFlag adds the key share file flag to the command
func KeySharePathFlag(c *cobra.Command) {
	AddPersistentStringFlag(c, keySharePath, "", "Path to the key share file of this participant", false)
}

// ChainIDFlag adds the EIP-155 chain id flag to the command
func ChainIDFlag(c *cobra.Command) {
	AddPersistentIntFlag(c, chainID, 0, "Chain id of the EIP-155 encoding printed with the signature", false)
}
