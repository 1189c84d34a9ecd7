package eth

import (
	"bytes"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	eth_crypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

const (
	privateKeyOne = "0x0000000000000000000000000000000000000000000000000000000000000001"
	publicKeyOne  = "0x0279be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798"
	addressOne    = "0x7E5F4552091A69125d5DfCb7b8C2659029395Bdf"
)

func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func run(t *testing.T, args ...string) (map[string]string, error) {
	resetFlags(Cmd)
	out := new(bytes.Buffer)
	Cmd.SetOut(out)
	Cmd.SetErr(new(bytes.Buffer))
	Cmd.SetArgs(append(args, "--json"))
	if err := Cmd.Execute(); err != nil {
		return nil, err
	}
	res := make(map[string]string)
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	return res, nil
}

func TestPublicKeyCommand(t *testing.T) {
	res, err := run(t, "public-key", "--privateKey", privateKeyOne, "--compressed")
	require.NoError(t, err)
	require.Equal(t, publicKeyOne, res["publicKey"])
	require.Equal(t, addressOne, res["address"])

	_, err = run(t, "public-key", "--privateKey", "0x00")
	require.Error(t, err)
}

func TestAddressCommand(t *testing.T) {
	res, err := run(t, "address", "--publicKey", publicKeyOne)
	require.NoError(t, err)
	require.Equal(t, addressOne, res["address"])

	res, err = run(t, "address", "--privateKey", privateKeyOne)
	require.NoError(t, err)
	require.Equal(t, addressOne, res["address"])

	_, err = run(t, "address")
	require.Error(t, err)
	_, err = run(t, "address", "--publicKey", publicKeyOne, "--privateKey", privateKeyOne)
	require.Error(t, err)
}

func TestHashMessageCommand(t *testing.T) {
	expected := "0x1c8aff950685c2ed4bc3174f3472287b56d9517b9c948127319a09a7a36deac8"
	res, err := run(t, "hash-message", "--message", "hello")
	require.NoError(t, err)
	require.Equal(t, expected, res["hash"])

	res, err = run(t, "hash-message", "--data", "0x68656c6c6f")
	require.NoError(t, err)
	require.Equal(t, expected, res["hash"])

	_, err = run(t, "hash-message")
	require.Error(t, err)
}

func TestSignatureCommands(t *testing.T) {
	key, err := eth_crypto.GenerateKey()
	require.NoError(t, err)
	hash := eth_crypto.Keccak256([]byte("cli"))
	sig, err := eth_crypto.Sign(hash, key)
	require.NoError(t, err)

	res, err := run(t, "encode-signature",
		"--data", hexutil.Encode(hash),
		"--chainID", "1",
		"--r", hexutil.Encode(sig[:32]),
		"--s", hexutil.Encode(sig[32:64]),
		"--recid", fmt.Sprintf("%d", sig[64]),
	)
	require.NoError(t, err)
	encoded := res["signature"]
	require.Len(t, encoded, 2+2*65)

	res, err = run(t, "decode-signature", "--signature", encoded)
	require.NoError(t, err)
	require.Equal(t, hexutil.Encode(sig[:32]), res["r"])
	require.Equal(t, hexutil.Encode(sig[32:64]), res["s"])
	require.Equal(t, fmt.Sprintf("%d", sig[64]), res["recid"])
	require.Equal(t, "1", res["chainId"])
	require.Equal(t, hexutil.EncodeUint64(37+uint64(sig[64])), res["v"])

	_, err = run(t, "decode-signature", "--signature", "0x1234")
	require.Error(t, err)
}

func TestTransactionCommands(t *testing.T) {
	key, err := eth_crypto.GenerateKey()
	require.NoError(t, err)
	tx := `{
		"chainId": "0x5",
		"to": "0x6cc93958DA6Bf5de40A15935A53eabB6695AaF9e",
		"nonce": "0x1",
		"gas": "0x5208",
		"value": "0xde0b6b3a7640000",
		"type": "0x2",
		"maxFeePerGas": "0x4a817c800",
		"maxPriorityFeePerGas": "0x3b9aca00"
	}`
	res, err := run(t, "hash-tx", "--transaction", tx)
	require.NoError(t, err)
	hash, err := hexutil.Decode(res["hash"])
	require.NoError(t, err)
	sig, err := eth_crypto.Sign(hash, key)
	require.NoError(t, err)

	res, err = run(t, "encode-tx",
		"--transaction", tx,
		"--r", hexutil.Encode(sig[:32]),
		"--s", hexutil.Encode(sig[32:64]),
		"--recid", fmt.Sprintf("%d", sig[64]),
	)
	require.NoError(t, err)
	raw, err := hexutil.Decode(res["rawTransaction"])
	require.NoError(t, err)

	signed := new(types.Transaction)
	require.NoError(t, signed.UnmarshalBinary(raw))
	sender, err := types.Sender(types.LatestSignerForChainID(signed.ChainId()), signed)
	require.NoError(t, err)
	require.Equal(t, eth_crypto.PubkeyToAddress(key.PublicKey), sender)
	require.Equal(t, uint64(1), signed.Nonce())

	_, err = run(t, "hash-tx", "--transaction", `{"gas": 5}`)
	require.Error(t, err)
}
