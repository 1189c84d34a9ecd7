// Package eth holds the offline Ethereum helpers of the CLI: key and address derivation,
// hashing and signature or transaction encoding.
package eth

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"

	"github.com/ssvlabs/eth-tss/cli/flags"
	cli_utils "github.com/ssvlabs/eth-tss/cli/utils"
	"github.com/ssvlabs/eth-tss/pkgs/eth"
	"github.com/ssvlabs/eth-tss/pkgs/load"
)

func init() {
	flags.JSONOutputFlag(Cmd)

	flags.PrivateKeyFlag(PublicKey)
	flags.CompressedFlag(PublicKey)

	flags.PrivateKeyFlag(Address)
	flags.PublicKeyFlag(Address)
	flags.KeySharePathFlag(Address)
	flags.KeystorePasswordFlag(Address)

	flags.MessageFlag(HashMessage)
	flags.DataFlag(HashMessage)

	flags.DataFlag(EncodeSignature)
	flags.ChainIDFlag(EncodeSignature)
	flags.SignatureComponentsFlags(EncodeSignature)

	flags.SignatureFlag(DecodeSignature)

	flags.TransactionFlag(HashTransaction)

	flags.TransactionFlag(EncodeTransaction)
	flags.SignatureComponentsFlags(EncodeTransaction)

	Cmd.AddCommand(PublicKey, Address, HashMessage, EncodeSignature, DecodeSignature, HashTransaction, EncodeTransaction)
}

var Cmd = &cobra.Command{
	Use:   "eth",
	Short: "Ethereum key, signature and transaction helpers",
}

// printFields writes the fields as a two column table, or as a JSON object with --json
func printFields(cmd *cobra.Command, fields [][2]string) error {
	asJSON, err := flags.GetJSONOutputFlagValue(cmd)
	if err != nil {
		return err
	}
	if asJSON {
		obj := make(map[string]string, len(fields))
		for _, f := range fields {
			obj[f[0]] = f[1]
		}
		return cli_utils.WriteJSON(cmd.OutOrStdout(), obj)
	}
	rows := make([][]string, 0, len(fields))
	for _, f := range fields {
		rows = append(rows, []string{f[0], f[1]})
	}
	cli_utils.WriteTable(cmd.OutOrStdout(), []string{"Field", "Value"}, rows...)
	return nil
}

var PublicKey = &cobra.Command{
	Use:   "public-key",
	Short: "Derives the public key of a private key",
	RunE: func(cmd *cobra.Command, args []string) error {
		priv, err := flags.GetPrivateKeyFlagValue(cmd)
		if err != nil {
			return err
		}
		compressed, err := flags.GetCompressedFlagValue(cmd)
		if err != nil {
			return err
		}
		pub, err := eth.PrivateKeyToPublicKey(priv, compressed)
		if err != nil {
			return err
		}
		address, err := eth.PrivateKeyToAddress(priv)
		if err != nil {
			return err
		}
		return printFields(cmd, [][2]string{{"publicKey", hexutil.Encode(pub)}, {"address", address.Hex()}})
	},
}

var Address = &cobra.Command{
	Use:   "address",
	Short: "Derives the address of a public key, a private key or a key share file",
	RunE: func(cmd *cobra.Command, args []string) error {
		priv, err := flags.GetPrivateKeyFlagValue(cmd)
		if err != nil {
			return err
		}
		pub, err := flags.GetPublicKeyFlagValue(cmd)
		if err != nil {
			return err
		}
		path, err := flags.GetKeySharePathFlagValue(cmd)
		if err != nil {
			return err
		}
		given := 0
		for _, set := range []bool{priv != nil, pub != nil, path != ""} {
			if set {
				given++
			}
		}
		if given != 1 {
			return fmt.Errorf("😥 provide exactly one of privateKey, publicKey or keySharePath")
		}

		var address common.Address
		switch {
		case priv != nil:
			address, err = eth.PrivateKeyToAddress(priv)
		case pub != nil:
			address, err = eth.PublicKeyToAddress(pub)
		default:
			var passwordPath, password string
			if passwordPath, err = flags.GetKeystorePasswordFlagValue(cmd); err != nil {
				return err
			}
			if password, err = load.Password(passwordPath); err != nil {
				return err
			}
			ks, lerr := load.KeyShare(path, password)
			if lerr != nil {
				return lerr
			}
			address, err = eth.KeyShareAddress(ks)
		}
		if err != nil {
			return err
		}
		return printFields(cmd, [][2]string{{"address", address.Hex()}})
	},
}

var HashMessage = &cobra.Command{
	Use:   "hash-message",
	Short: "Computes the keccak256 hash of a message",
	RunE: func(cmd *cobra.Command, args []string) error {
		msg, err := flags.GetMessageFlagValue(cmd)
		if err != nil {
			return err
		}
		data, err := flags.GetDataFlagValue(cmd)
		if err != nil {
			return err
		}
		if (msg == "") == (data == nil) {
			return fmt.Errorf("😥 provide either message or data")
		}
		if data == nil {
			data = []byte(msg)
		}
		return printFields(cmd, [][2]string{{"hash", hexutil.Encode(eth.MessageToHash(data))}})
	},
}

var EncodeSignature = &cobra.Command{
	Use:   "encode-signature",
	Short: "Encodes a signature of a message hash as r || s || v with an EIP-155 v",
	RunE: func(cmd *cobra.Command, args []string) error {
		hash, err := flags.GetDataFlagValue(cmd)
		if err != nil {
			return err
		}
		chainID, err := flags.GetChainIDFlagValue(cmd)
		if err != nil {
			return err
		}
		sig, err := flags.GetSignatureComponentsFlagValue(cmd)
		if err != nil {
			return err
		}
		encoded, err := eth.EncodeMessageSignature(hash, chainID, sig)
		if err != nil {
			return err
		}
		return printFields(cmd, [][2]string{{"signature", encoded}})
	},
}

var DecodeSignature = &cobra.Command{
	Use:   "decode-signature",
	Short: "Decodes an r || s || v signature with an EIP-155 v",
	RunE: func(cmd *cobra.Command, args []string) error {
		encoded, err := flags.GetSignatureFlagValue(cmd)
		if err != nil {
			return err
		}
		decoded, err := eth.DecodeMessageSignature(encoded)
		if err != nil {
			return err
		}
		return printFields(cmd, [][2]string{
			{"r", hexutil.Encode(decoded.Signature.R[:])},
			{"s", hexutil.Encode(decoded.Signature.S[:])},
			{"v", hexutil.EncodeBig(decoded.V)},
			{"recid", fmt.Sprintf("%d", decoded.Signature.RecoveryID)},
			{"chainId", fmt.Sprintf("%d", decoded.ChainID)},
		})
	},
}

var HashTransaction = &cobra.Command{
	Use:   "hash-tx",
	Short: "Computes the signing hash of a transaction",
	RunE: func(cmd *cobra.Command, args []string) error {
		tx, err := flags.GetTransactionFlagValue(cmd)
		if err != nil {
			return err
		}
		hash, err := eth.TransactionToMessageHash(tx)
		if err != nil {
			return err
		}
		return printFields(cmd, [][2]string{{"hash", hexutil.Encode(hash)}})
	},
}

var EncodeTransaction = &cobra.Command{
	Use:   "encode-tx",
	Short: "Encodes a signed transaction, ready for eth_sendRawTransaction",
	RunE: func(cmd *cobra.Command, args []string) error {
		tx, err := flags.GetTransactionFlagValue(cmd)
		if err != nil {
			return err
		}
		sig, err := flags.GetSignatureComponentsFlagValue(cmd)
		if err != nil {
			return err
		}
		raw, err := eth.EncodeTransaction(tx, sig)
		if err != nil {
			return err
		}
		return printFields(cmd, [][2]string{{"rawTransaction", hexutil.Encode(raw)}})
	},
}
