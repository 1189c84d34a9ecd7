package flags

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ssvlabs/eth-tss/pkgs/eth"
	"github.com/ssvlabs/eth-tss/pkgs/utils"
	"github.com/ssvlabs/eth-tss/pkgs/wire"
)

// Flag names.
const (
	privateKey  = "privateKey"
	publicKey   = "publicKey"
	compressed  = "compressed"
	message     = "message"
	signature   = "signature"
	transaction = "transaction"
	sigR        = "r"
	sigS        = "s"
	recid       = "recid"
)

// PrivateKeyFlag adds the hex private key flag to the command
func PrivateKeyFlag(c *cobra.Command) {
	AddPersistentStringFlag(c, privateKey, "", "Hex encoded 32 byte private key", false)
}

// PublicKeyFlag adds the hex public key flag to the command
func PublicKeyFlag(c *cobra.Command) {
	AddPersistentStringFlag(c, publicKey, "", "Hex encoded public key, compressed (33 bytes) or not (64 or 65 bytes)", false)
}

// CompressedFlag selects the compressed public key form
func CompressedFlag(c *cobra.Command) {
	AddPersistentBoolFlag(c, compressed, false, "Print the compressed public key", false)
}

// MessageFlag adds the text message flag to the command
func MessageFlag(c *cobra.Command) {
	AddPersistentStringFlag(c, message, "", "Text message, hashed as its UTF-8 bytes", false)
}

// SignatureFlag adds the encoded signature flag to the command
func SignatureFlag(c *cobra.Command) {
	AddPersistentStringFlag(c, signature, "", "Hex encoded r || s || v signature", false)
}

// TransactionFlag adds the transaction flag to the command
func TransactionFlag(c *cobra.Command) {
	AddPersistentStringFlag(c, transaction, "", "Transaction JSON, or a path to a file containing it", true)
}

// SignatureComponentsFlags adds the r, s and recovery id flags to the command
func SignatureComponentsFlags(c *cobra.Command) {
	AddPersistentStringFlag(c, sigR, "", "Hex encoded signature r", true)
	AddPersistentStringFlag(c, sigS, "", "Hex encoded signature s", true)
	AddPersistentIntFlag(c, recid, 0, "Signature recovery id, 0 or 1", false)
}

func GetHexFlagValue(c *cobra.Command, name string) ([]byte, error) {
	v, err := c.Flags().GetString(name)
	if err != nil {
		return nil, err
	}
	if v == "" {
		return nil, nil
	}
	b, err := utils.HexToBytes(v)
	if err != nil {
		return nil, fmt.Errorf("😥 invalid %s flag: %w", name, err)
	}
	return b, nil
}

func GetPrivateKeyFlagValue(c *cobra.Command) ([]byte, error) {
	return GetHexFlagValue(c, privateKey)
}

func GetPublicKeyFlagValue(c *cobra.Command) ([]byte, error) {
	return GetHexFlagValue(c, publicKey)
}

func GetCompressedFlagValue(c *cobra.Command) (bool, error) {
	return c.Flags().GetBool(compressed)
}

func GetMessageFlagValue(c *cobra.Command) (string, error) {
	return c.Flags().GetString(message)
}

func GetDataFlagValue(c *cobra.Command) ([]byte, error) {
	return GetHexFlagValue(c, data)
}

func GetSignatureFlagValue(c *cobra.Command) (string, error) {
	return c.Flags().GetString(signature)
}

func GetChainIDFlagValue(c *cobra.Command) (uint64, error) {
	return c.Flags().GetUint64(chainID)
}

func GetJSONOutputFlagValue(c *cobra.Command) (bool, error) {
	return c.Flags().GetBool(jsonOutput)
}

func GetKeySharePathFlagValue(c *cobra.Command) (string, error) {
	path, err := c.Flags().GetString(keySharePath)
	if err != nil || path == "" {
		return "", err
	}
	path = filepath.Clean(path)
	if strings.Contains(path, "..") {
		return "", fmt.Errorf("😥 keySharePath should not contain traversal")
	}
	return path, nil
}

func GetKeystorePasswordFlagValue(c *cobra.Command) (string, error) {
	path, err := c.Flags().GetString(keystorePassword)
	if err != nil || path == "" {
		return "", err
	}
	path = filepath.Clean(path)
	if strings.Contains(path, "..") {
		return "", fmt.Errorf("😥 keystorePassword cant contain traversal")
	}
	return path, nil
}

// GetTransactionFlagValue parses the transaction given inline or as a file path
func GetTransactionFlagValue(c *cobra.Command) (*eth.Transaction, error) {
	v, err := c.Flags().GetString(transaction)
	if err != nil {
		return nil, err
	}
	raw := []byte(strings.TrimSpace(v))
	if !strings.HasPrefix(string(raw), "{") {
		path := filepath.Clean(v)
		if strings.Contains(path, "..") {
			return nil, fmt.Errorf("😥 transaction path should not contain traversal")
		}
		if raw, err = os.ReadFile(path); err != nil {
			return nil, fmt.Errorf("😥 Failed to read transaction file: %w", err)
		}
	}
	return eth.ParseTransaction(raw)
}

// GetSignatureComponentsFlagValue builds a signature from the r, s and recid flags
func GetSignatureComponentsFlagValue(c *cobra.Command) (*wire.Signature, error) {
	r, err := GetHexFlagValue(c, sigR)
	if err != nil {
		return nil, err
	}
	s, err := GetHexFlagValue(c, sigS)
	if err != nil {
		return nil, err
	}
	id, err := c.Flags().GetUint64(recid)
	if err != nil {
		return nil, err
	}
	if id > 1 {
		return nil, fmt.Errorf("😥 recid should be 0 or 1")
	}
	return eth.NewSignature(r, s, uint8(id))
}
