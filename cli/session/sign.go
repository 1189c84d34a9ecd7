package session

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ssvlabs/eth-tss/cli/flags"
	cli_utils "github.com/ssvlabs/eth-tss/cli/utils"
	"github.com/ssvlabs/eth-tss/pkgs/eth"
	"github.com/ssvlabs/eth-tss/pkgs/load"
	"github.com/ssvlabs/eth-tss/pkgs/tss"
	"github.com/ssvlabs/eth-tss/pkgs/utils"
	"github.com/ssvlabs/eth-tss/pkgs/wire"
)

func init() {
	flags.SetSignFlags(Sign)
}

type SignResult struct {
	Signature *wire.Signature `json:"signature"`
	Address   string          `json:"address"`
	// Encoded is the EIP-155 encoding, present when a chain id was given
	Encoded string `json:"encoded,omitempty"`
}

var Sign = &cobra.Command{
	Use:   "sign",
	Short: "Runs a participant of a threshold signing session",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := flags.SetViperConfig(cmd); err != nil {
			return err
		}
		if err := flags.BindSignFlags(cmd); err != nil {
			return err
		}
		logger, err := cli_utils.SetGlobalLogger("sign", flags.LogLevel, flags.LogLevelFormat, flags.LogFormat, flags.LogFilePath)
		if err != nil {
			return err
		}
		logger.Info("🪛 eth-tss", zap.String("version", cmd.Root().Version))
		password, err := load.Password(flags.KeystorePassword)
		if err != nil {
			return err
		}
		logger.Info("🔑 opening key share file", zap.String("path", flags.KeySharePath))
		ks, err := load.KeyShare(flags.KeySharePath, password)
		if err != nil {
			return fmt.Errorf("😥 Failed to load key share: %w", err)
		}
		key, err := json.Marshal(ks)
		if err != nil {
			return err
		}
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		sig, err := tss.Sign(ctx, tss.SignParams{
			RoomID:              flags.RoomID,
			ParticipantsIndexes: flags.Quorum,
			Data:                flags.Data,
			Key:                 string(key),
			RelayAddress:        flags.RelayAddress,
			TimeoutSeconds:      flags.Timeout,
		}, tss.WithLogger(logger))
		if err != nil {
			logger.Error("😥 Signing failed", zap.Error(err))
			return printSign(cmd, nil, err)
		}
		address, err := eth.KeyShareAddress(ks)
		if err != nil {
			return err
		}
		res := &SignResult{Signature: sig, Address: address.Hex()}
		if flags.ChainID != nil {
			hash, err := utils.HexToBytes(flags.Data)
			if err != nil {
				return err
			}
			res.Encoded, err = eth.EncodeMessageSignature(hash, *flags.ChainID, sig)
			if err != nil {
				return err
			}
		}
		return printSign(cmd, res, nil)
	},
}

func printSign(cmd *cobra.Command, res *SignResult, err error) error {
	w := cmd.OutOrStdout()
	if flags.JSONOutput {
		if werr := cli_utils.WriteJSON(w, tss.NewOutcome(res, err)); werr != nil {
			return werr
		}
		return err
	}
	if err != nil {
		return err
	}
	cli_utils.WriteTable(w, []string{"R", "S", "Recovery ID", "Address", "Encoded"}, []string{
		hexutil.Encode(res.Signature.R[:]),
		hexutil.Encode(res.Signature.S[:]),
		fmt.Sprintf("%d", res.Signature.RecoveryID),
		res.Address,
		res.Encoded,
	})
	return nil
}
