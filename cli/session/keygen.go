package session

import (
	"context"
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
	"github.com/ssvlabs/eth-tss/pkgs/wire"
)

func init() {
	flags.SetKeygenFlags(Keygen)
}

// KeygenResult describes a written key share. The secret share itself is never printed.
type KeygenResult struct {
	RoomID    string `json:"roomId"`
	Index     uint16 `json:"index"`
	N         uint16 `json:"n"`
	T         uint16 `json:"t"`
	PublicKey string `json:"publicKey"`
	Address   string `json:"address"`
	Path      string `json:"path"`
}

var Keygen = &cobra.Command{
	Use:   "keygen",
	Short: "Runs a participant of a distributed key generation",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := flags.SetViperConfig(cmd); err != nil {
			return err
		}
		if err := flags.BindKeygenFlags(cmd); err != nil {
			return err
		}
		logger, err := cli_utils.SetGlobalLogger("keygen", flags.LogLevel, flags.LogLevelFormat, flags.LogFormat, flags.LogFilePath)
		if err != nil {
			return err
		}
		logger.Info("🪛 eth-tss", zap.String("version", cmd.Root().Version))
		if err := flags.CreateOutputDir(); err != nil {
			return err
		}
		password, err := load.Password(flags.KeystorePassword)
		if err != nil {
			return err
		}
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		var shares []*wire.KeyShare
		if flags.Local {
			shares, err = tss.LocalKeygen(ctx, flags.Participants, flags.Threshold, flags.Timeout, tss.WithLogger(logger))
		} else {
			roomID := flags.RoomID
			if roomID == "" {
				roomID = tss.NewRoomID()
				logger.Info("🆔 Generated a room id, share it with the other participants", zap.String("room_id", roomID))
			}
			var ks *wire.KeyShare
			ks, err = tss.Keygen(ctx, tss.KeygenParams{
				RoomID:                roomID,
				ParticipantIndex:      flags.Index,
				ParticipantsCount:     flags.Participants,
				ParticipantsThreshold: flags.Threshold,
				RelayAddress:          flags.RelayAddress,
				TimeoutSeconds:        flags.Timeout,
			}, tss.WithLogger(logger))
			shares = []*wire.KeyShare{ks}
		}
		if err != nil {
			logger.Error("😥 Keygen failed", zap.Error(err))
			return printKeygen(cmd, nil, err)
		}

		results := make([]KeygenResult, 0, len(shares))
		for _, ks := range shares {
			res, err := writeKeyShare(ks, password)
			if err != nil {
				return err
			}
			logger.Info("💾 Wrote key share", zap.Uint16("index", ks.Index), zap.String("path", res.Path))
			results = append(results, *res)
		}
		return printKeygen(cmd, results, nil)
	},
}

func writeKeyShare(ks *wire.KeyShare, password string) (*KeygenResult, error) {
	pub, err := eth.KeySharePublicKey(ks, true)
	if err != nil {
		return nil, err
	}
	address, err := eth.KeyShareAddress(ks)
	if err != nil {
		return nil, err
	}
	path, err := load.WriteKeyShare(flags.OutputPath, ks, password)
	if err != nil {
		return nil, err
	}
	return &KeygenResult{
		RoomID:    ks.RoomID,
		Index:     ks.Index,
		N:         ks.Scheme.N,
		T:         ks.Scheme.T,
		PublicKey: hexutil.Encode(pub),
		Address:   address.Hex(),
		Path:      path,
	}, nil
}

func printKeygen(cmd *cobra.Command, results []KeygenResult, err error) error {
	w := cmd.OutOrStdout()
	if flags.JSONOutput {
		var res *[]KeygenResult
		if err == nil {
			res = &results
		}
		if werr := cli_utils.WriteJSON(w, tss.NewOutcome(res, err)); werr != nil {
			return werr
		}
		return err
	}
	if err != nil {
		return err
	}
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		rows = append(rows, []string{r.RoomID, fmt.Sprintf("%d", r.Index), fmt.Sprintf("%d/%d", r.T, r.N), r.PublicKey, r.Address, r.Path})
	}
	cli_utils.WriteTable(w, []string{"Room", "Index", "T/N", "Public Key", "Address", "Key Share File"}, rows...)
	return nil
}
