package crypto

import (
	"crypto/rand"

	eth_crypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/crypto/ecies"
	"github.com/pkg/errors"
)

// EncryptionKey is an ephemeral ECIES key used to receive secret shares over the relay.
type EncryptionKey struct {
	prv *ecies.PrivateKey
}

func GenerateEncryptionKey() (*EncryptionKey, error) {
	sk, err := eth_crypto.GenerateKey()
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate encryption key")
	}
	return &EncryptionKey{prv: ecies.ImportECDSA(sk)}, nil
}

// PublicBytes returns the 65 byte uncompressed public key.
func (k *EncryptionKey) PublicBytes() []byte {
	return eth_crypto.FromECDSAPub(k.prv.PublicKey.ExportECDSA())
}

func (k *EncryptionKey) Decrypt(ciphertext []byte) ([]byte, error) {
	pt, err := k.prv.Decrypt(ciphertext, nil, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decrypt")
	}
	return pt, nil
}

// Encrypt encrypts msg to the holder of the given uncompressed public key.
func Encrypt(pub, msg []byte) ([]byte, error) {
	pk, err := eth_crypto.UnmarshalPubkey(pub)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidPoint, err.Error())
	}
	ct, err := ecies.Encrypt(rand.Reader, ecies.ImportECDSAPublic(pk), msg, nil, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encrypt")
	}
	return ct, nil
}

// ValidateEncryptionKey checks that pub is an uncompressed point on the curve.
func ValidateEncryptionKey(pub []byte) error {
	if _, err := eth_crypto.UnmarshalPubkey(pub); err != nil {
		return errors.Wrap(ErrInvalidPoint, err.Error())
	}
	return nil
}
