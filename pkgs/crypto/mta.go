package crypto

import (
	"io"
	"math/big"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/pkg/errors"
	paillier "github.com/roasbeef/go-go-gadget-paillier"
)

const (
	DefaultPaillierBits = 2048
	// MinPaillierBits keeps k*b + beta' (< 2^769) below the modulus.
	MinPaillierBits = 1024
)

var (
	curveOrder = secp256k1.S256().Params().N
	// masks are drawn below q^3 so that they statistically hide a product of two scalars
	maskBound = new(big.Int).Exp(curveOrder, big.NewInt(3), nil)
)

// PaillierKey is a session-scoped Paillier key used for the multiplicative to additive
// share conversion. It is never persisted.
type PaillierKey struct {
	sk *paillier.PrivateKey
}

func GeneratePaillierKey(r io.Reader, bits int) (*PaillierKey, error) {
	if bits < MinPaillierBits {
		return nil, errors.Errorf("paillier modulus of %d bits is too small", bits)
	}
	sk, err := paillier.GenerateKey(r, bits)
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate paillier key")
	}
	return &PaillierKey{sk: sk}, nil
}

// PublicBytes returns the modulus N.
func (k *PaillierKey) PublicBytes() []byte {
	return k.sk.PublicKey.N.Bytes()
}

func (k *PaillierKey) Public() *paillier.PublicKey {
	return &k.sk.PublicKey
}

// EncryptScalar returns Enc(s) under the own public key.
func (k *PaillierKey) EncryptScalar(s *Scalar) ([]byte, error) {
	ct, err := paillier.Encrypt(&k.sk.PublicKey, ScalarBytes(s))
	if err != nil {
		return nil, errors.Wrap(err, "failed to encrypt")
	}
	return ct, nil
}

// DecryptScalar decrypts a ciphertext and reduces the plaintext modulo q.
func (k *PaillierKey) DecryptScalar(ct []byte) (*Scalar, error) {
	if err := checkCiphertext(&k.sk.PublicKey, ct); err != nil {
		return nil, err
	}
	pt, err := paillier.Decrypt(k.sk, ct)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decrypt")
	}
	return scalarFromBig(new(big.Int).SetBytes(pt)), nil
}

// ParsePaillierPublicKey rebuilds a peer's public key from its modulus.
func ParsePaillierPublicKey(n []byte) (*paillier.PublicKey, error) {
	N := new(big.Int).SetBytes(n)
	if N.BitLen() < MinPaillierBits || N.Bit(0) == 0 {
		return nil, errors.Errorf("invalid paillier modulus of %d bits", N.BitLen())
	}
	return &paillier.PublicKey{
		N:        N,
		G:        new(big.Int).Add(N, big.NewInt(1)),
		NSquared: new(big.Int).Mul(N, N),
	}, nil
}

// MtARespond answers a peer's Enc(a) with Enc(a*b + beta') and returns the local additive
// share -beta' mod q. The peer decrypts its share alpha = a*b + beta' mod q, so that
// alpha + beta = a*b mod q.
func MtARespond(r io.Reader, pk *paillier.PublicKey, encA []byte, b *Scalar) ([]byte, *Scalar, error) {
	if err := checkCiphertext(pk, encA); err != nil {
		return nil, nil, err
	}
	mask, err := randInt(r, maskBound)
	if err != nil {
		return nil, nil, err
	}
	encMask, err := paillier.Encrypt(pk, mask.Bytes())
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to encrypt mask")
	}
	bBytes := ScalarBytes(b)
	prod := paillier.Mul(pk, encA, bBytes)
	ct := paillier.AddCipher(pk, prod, encMask)
	beta := scalarFromBig(mask)
	beta.Negate()
	return ct, beta, nil
}

func checkCiphertext(pk *paillier.PublicKey, ct []byte) error {
	c := new(big.Int).SetBytes(ct)
	if c.Sign() <= 0 || c.Cmp(pk.NSquared) >= 0 {
		return errors.New("paillier ciphertext out of range")
	}
	if new(big.Int).GCD(nil, nil, c, pk.N).Cmp(big.NewInt(1)) != 0 {
		return errors.New("paillier ciphertext not invertible")
	}
	return nil
}

func scalarFromBig(v *big.Int) *Scalar {
	m := new(big.Int).Mod(v, curveOrder)
	s := new(Scalar)
	s.SetByteSlice(m.Bytes())
	return s
}

func randInt(r io.Reader, max *big.Int) (*big.Int, error) {
	buf := make([]byte, (max.BitLen()+7)/8+16)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, errors.Wrap(err, "failed to read randomness")
	}
	return new(big.Int).Mod(new(big.Int).SetBytes(buf), max), nil
}
