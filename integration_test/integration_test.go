package integration_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sourcegraph/conc/pool"
	"github.com/stretchr/testify/require"

	"github.com/ssvlabs/eth-tss/cli"
	"github.com/ssvlabs/eth-tss/cli/session"
	"github.com/ssvlabs/eth-tss/pkgs/crypto"
	"github.com/ssvlabs/eth-tss/pkgs/eth"
	"github.com/ssvlabs/eth-tss/pkgs/load"
	"github.com/ssvlabs/eth-tss/pkgs/tss"
	"github.com/ssvlabs/eth-tss/pkgs/utils/test_utils"
	"github.com/ssvlabs/eth-tss/pkgs/wire"
)

func runCLI(t *testing.T, args ...string) []byte {
	out := new(bytes.Buffer)
	cli.RootCmd.SetOut(out)
	cli.RootCmd.SetArgs(args)
	require.NoError(t, cli.RootCmd.Execute())
	return out.Bytes()
}

// signOverRelay runs every quorum member against the relay and returns the signatures
func signOverRelay(t *testing.T, relayAddress string, keys map[uint16]*wire.KeyShare, quorum []uint16, hash []byte) []*wire.Signature {
	room := tss.NewRoomID()
	p := pool.NewWithResults[*wire.Signature]().WithContext(context.Background()).WithFirstError()
	for _, id := range quorum {
		key, err := json.Marshal(keys[id])
		require.NoError(t, err)
		p.Go(func(ctx context.Context) (*wire.Signature, error) {
			return tss.Sign(ctx, tss.SignParams{
				RoomID:              room,
				ParticipantsIndexes: quorum,
				Data:                hexutil.Encode(hash),
				Key:                 string(key),
				RelayAddress:        relayAddress,
				TimeoutSeconds:      60,
			}, tss.WithPaillierBits(crypto.MinPaillierBits))
		})
	}
	sigs, err := p.Wait()
	require.NoError(t, err)
	require.Len(t, sigs, len(quorum))
	return sigs
}

func TestKeygenSignAndSendTransaction(t *testing.T) {
	srv := test_utils.CreateTestRelay(t)
	dir := t.TempDir()
	passwordPath := filepath.Join(dir, "password")
	require.NoError(t, os.WriteFile(passwordPath, []byte("integration\n"), 0o600))

	out := runCLI(t, "keygen",
		"--local",
		"--participants", "3",
		"--threshold", "1",
		"--timeout", "30",
		"--outputPath", filepath.Join(dir, "shares"),
		"--keystorePassword", passwordPath,
		"--logFilePath", filepath.Join(dir, "debug.log"),
		"--json",
	)
	var outcome tss.Outcome[[]session.KeygenResult]
	require.NoError(t, json.Unmarshal(out, &outcome))
	require.Nil(t, outcome.Error)
	require.Len(t, *outcome.Result, 3)

	keys := make(map[uint16]*wire.KeyShare)
	var address common.Address
	for _, res := range *outcome.Result {
		ks, err := load.KeyShare(res.Path, "integration")
		require.NoError(t, err)
		keys[ks.Index] = ks
		address, err = eth.KeyShareAddress(ks)
		require.NoError(t, err)
		require.Equal(t, res.Address, address.Hex())
	}

	t.Run("sign a message with every quorum", func(t *testing.T) {
		for i, quorum := range [][]uint16{{1, 2}, {2, 3}, {1, 3}} {
			hash := eth.MessageToHash([]byte(fmt.Sprintf("integration %d", i)))
			for _, sig := range signOverRelay(t, srv.HttpSrv.URL, keys, quorum, hash) {
				encoded, err := eth.EncodeMessageSignature(hash, 11155111, sig)
				require.NoError(t, err)
				decoded, err := eth.DecodeMessageSignature(encoded)
				require.NoError(t, err)
				require.Equal(t, uint64(11155111), decoded.ChainID)
				pub, err := eth.RecoverPublicKey(hash, &decoded.Signature)
				require.NoError(t, err)
				recovered, err := eth.PublicKeyToAddress(pub)
				require.NoError(t, err)
				require.Equal(t, address, recovered)
			}
		}
	})

	t.Run("sign and encode a transaction", func(t *testing.T) {
		tx, err := eth.ParseTransaction([]byte(`{
			"chainId": "0xaa36a7",
			"to": "0x6cc93958DA6Bf5de40A15935A53eabB6695AaF9e",
			"nonce": "0x0",
			"gas": "0x5208",
			"value": "0x1",
			"type": "0x2",
			"maxFeePerGas": "0x4a817c800",
			"maxPriorityFeePerGas": "0x3b9aca00"
		}`))
		require.NoError(t, err)
		hash, err := eth.TransactionToMessageHash(tx)
		require.NoError(t, err)
		sig := signOverRelay(t, srv.HttpSrv.URL, keys, []uint16{3, 1}, hash)[0]
		raw, err := eth.EncodeTransaction(tx, sig)
		require.NoError(t, err)

		signed := new(types.Transaction)
		require.NoError(t, signed.UnmarshalBinary(raw))
		sender, err := types.Sender(types.LatestSignerForChainID(signed.ChainId()), signed)
		require.NoError(t, err)
		require.Equal(t, address, sender)
	})

	t.Run("address of an encrypted key share file", func(t *testing.T) {
		out := runCLI(t, "eth", "address",
			"--keySharePath", filepath.Join(dir, "shares", load.KeyShareFileName(2)),
			"--keystorePassword", passwordPath,
			"--json",
		)
		var res map[string]string
		require.NoError(t, json.Unmarshal(out, &res))
		require.Equal(t, address.Hex(), res["address"])
	})
}
