package eth

import (
	"crypto/ecdsa"

	"github.com/ethereum/go-ethereum/common"
	eth_crypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"

	"github.com/ssvlabs/eth-tss/pkgs/wire"
)

var (
	ErrInvalidPrivateKey        = errors.New("invalid private key")
	ErrInvalidPublicKey         = errors.New("invalid public key")
	ErrInvalidSignatureEncoding = errors.New("invalid signature encoding")
)

// invalid wraps a utility sentinel so that it also matches wire.ErrInvalidInput
func invalid(sentinel error, format string, args ...any) error {
	return wire.NewError(wire.KindInvalidInput, errors.Wrapf(sentinel, format, args...))
}

func parsePrivateKey(priv []byte) (*ecdsa.PrivateKey, error) {
	if len(priv) != 32 {
		return nil, invalid(ErrInvalidPrivateKey, "expected 32 bytes, got %d", len(priv))
	}
	key, err := eth_crypto.ToECDSA(priv)
	if err != nil {
		return nil, invalid(ErrInvalidPrivateKey, "%s", err.Error())
	}
	return key, nil
}

// parsePublicKey accepts compressed (33 bytes), uncompressed (65 bytes, 0x04 prefix)
// and bare X||Y (64 bytes) encodings.
func parsePublicKey(pub []byte) (*ecdsa.PublicKey, error) {
	var (
		key *ecdsa.PublicKey
		err error
	)
	switch len(pub) {
	case 33:
		key, err = eth_crypto.DecompressPubkey(pub)
	case 64:
		key, err = eth_crypto.UnmarshalPubkey(append([]byte{0x04}, pub...))
	case 65:
		key, err = eth_crypto.UnmarshalPubkey(pub)
	default:
		return nil, invalid(ErrInvalidPublicKey, "unexpected length %d", len(pub))
	}
	if err != nil {
		return nil, invalid(ErrInvalidPublicKey, "%s", err.Error())
	}
	return key, nil
}

func serializePublicKey(key *ecdsa.PublicKey, compressed bool) []byte {
	if compressed {
		return eth_crypto.CompressPubkey(key)
	}
	return eth_crypto.FromECDSAPub(key)
}

// PrivateKeyToPublicKey returns the compressed (33 bytes) or uncompressed (65 bytes)
// public key of a raw 32 byte private key.
func PrivateKeyToPublicKey(priv []byte, compressed bool) ([]byte, error) {
	key, err := parsePrivateKey(priv)
	if err != nil {
		return nil, err
	}
	return serializePublicKey(&key.PublicKey, compressed), nil
}

func PrivateKeyToAddress(priv []byte) (common.Address, error) {
	key, err := parsePrivateKey(priv)
	if err != nil {
		return common.Address{}, err
	}
	return eth_crypto.PubkeyToAddress(key.PublicKey), nil
}

// PublicKeyToAddress returns the last 20 bytes of keccak256 of the uncompressed key.
// Address.Hex renders the EIP-55 checksum form.
func PublicKeyToAddress(pub []byte) (common.Address, error) {
	key, err := parsePublicKey(pub)
	if err != nil {
		return common.Address{}, err
	}
	return eth_crypto.PubkeyToAddress(*key), nil
}

// KeySharePublicKey returns the group public key of a keygen result.
func KeySharePublicKey(ks *wire.KeyShare, compressed bool) ([]byte, error) {
	if ks == nil || ks.PublicKey == nil || ks.PublicKey.IsIdentity() {
		return nil, invalid(ErrInvalidPublicKey, "key share has no public key")
	}
	return PublicKeyToBytes(ks.PublicKey.Bytes(), compressed)
}

// KeyShareAddress returns the Ethereum address controlled by a keygen result.
func KeyShareAddress(ks *wire.KeyShare) (common.Address, error) {
	pub, err := KeySharePublicKey(ks, true)
	if err != nil {
		return common.Address{}, err
	}
	return PublicKeyToAddress(pub)
}

// PublicKeyToBytes re-encodes a public key in the requested form.
func PublicKeyToBytes(pub []byte, compressed bool) ([]byte, error) {
	key, err := parsePublicKey(pub)
	if err != nil {
		return nil, err
	}
	return serializePublicKey(key, compressed), nil
}
