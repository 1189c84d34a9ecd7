package eth

import (
	"bytes"
	"math/big"

	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/ssvlabs/eth-tss/pkgs/crypto"
	"github.com/ssvlabs/eth-tss/pkgs/wire"
)

// eip155Offset is added to the recovery id together with chainID*2
const eip155Offset = 35

// DecodedSignature is an EIP-155 message signature split into its parts.
type DecodedSignature struct {
	Signature wire.Signature
	ChainID   uint64
	V         *big.Int
}

// NewSignature builds a signature from big-endian r and s of any length up to 32
// significant bytes.
func NewSignature(r, s []byte, recid uint8) (*wire.Signature, error) {
	sig := &wire.Signature{RecoveryID: recid}
	for _, c := range []struct {
		dst  *[32]byte
		src  []byte
		name string
	}{{&sig.R, r, "r"}, {&sig.S, s, "s"}} {
		v := bytes.TrimLeft(c.src, "\x00")
		if len(v) == 0 {
			return nil, invalid(ErrInvalidSignatureEncoding, "%s is zero", c.name)
		}
		if len(v) > 32 {
			return nil, invalid(ErrInvalidSignatureEncoding, "%s has %d significant bytes", c.name, len(v))
		}
		copy(c.dst[32-len(v):], v)
	}
	if recid > 1 {
		return nil, invalid(ErrInvalidSignatureEncoding, "recovery id %d", recid)
	}
	return sig, nil
}

// SanitizeSignature returns sig with s in the lower half of the group order,
// flipping the recovery id when s is negated.
func SanitizeSignature(sig *wire.Signature) (*wire.Signature, error) {
	if sig == nil {
		return nil, invalid(ErrInvalidSignatureEncoding, "missing signature")
	}
	if sig.RecoveryID > 1 {
		return nil, invalid(ErrInvalidSignatureEncoding, "recovery id %d", sig.RecoveryID)
	}
	r, err := crypto.ScalarFromBytes(sig.R[:])
	if err != nil || r.IsZero() {
		return nil, invalid(ErrInvalidSignatureEncoding, "r out of range")
	}
	s, err := crypto.ScalarFromBytes(sig.S[:])
	if err != nil || s.IsZero() {
		return nil, invalid(ErrInvalidSignatureEncoding, "s out of range")
	}
	res := *sig
	if s.IsOverHalfOrder() {
		s.Negate()
		res.S = s.Bytes()
		res.RecoveryID ^= 1
	}
	return &res, nil
}

// compactSignature is the 65 byte [27+recid || r || s] form used for key recovery
func compactSignature(sig *wire.Signature) []byte {
	compact := make([]byte, 0, 65)
	compact = append(compact, 27+sig.RecoveryID)
	compact = append(compact, sig.R[:]...)
	return append(compact, sig.S[:]...)
}

// RecoverPublicKey returns the compressed public key that produced sig over hash.
func RecoverPublicKey(messageHash []byte, sig *wire.Signature) ([]byte, error) {
	if len(messageHash) != 32 {
		return nil, invalid(ErrInvalidSignatureEncoding, "message hash must be 32 bytes, got %d", len(messageHash))
	}
	sig, err := SanitizeSignature(sig)
	if err != nil {
		return nil, err
	}
	pub, _, err := ecdsa.RecoverCompact(compactSignature(sig), messageHash)
	if err != nil {
		return nil, invalid(ErrInvalidSignatureEncoding, "signature does not recover: %s", err.Error())
	}
	return pub.SerializeCompressed(), nil
}

// EncodeMessageSignature encodes sig as 0x-prefixed hex of r || s || v with
// v = recid + chainID*2 + 35 in its minimal big-endian form.
func EncodeMessageSignature(messageHash []byte, chainID uint64, sig *wire.Signature) (string, error) {
	if len(messageHash) != 32 {
		return "", invalid(ErrInvalidSignatureEncoding, "message hash must be 32 bytes, got %d", len(messageHash))
	}
	sig, err := SanitizeSignature(sig)
	if err != nil {
		return "", err
	}
	if _, err := RecoverPublicKey(messageHash, sig); err != nil {
		return "", err
	}
	v := new(big.Int).SetUint64(chainID)
	v.Lsh(v, 1)
	v.Add(v, big.NewInt(int64(sig.RecoveryID)+eip155Offset))

	out := make([]byte, 0, 64+9)
	out = append(out, sig.R[:]...)
	out = append(out, sig.S[:]...)
	out = append(out, v.Bytes()...)
	return hexutil.Encode(out), nil
}

// DecodeMessageSignature parses the output of EncodeMessageSignature.
func DecodeMessageSignature(encoded string) (*DecodedSignature, error) {
	raw, err := hexutil.Decode(encoded)
	if err != nil {
		return nil, invalid(ErrInvalidSignatureEncoding, "%s", err.Error())
	}
	if len(raw) < 65 || len(raw) > 64+9 {
		return nil, invalid(ErrInvalidSignatureEncoding, "unexpected length %d", len(raw))
	}
	if raw[64] == 0 {
		return nil, invalid(ErrInvalidSignatureEncoding, "v is not minimally encoded")
	}
	v := new(big.Int).SetBytes(raw[64:])
	if v.Cmp(big.NewInt(eip155Offset)) < 0 {
		return nil, invalid(ErrInvalidSignatureEncoding, "v %s is not chain bound", v)
	}
	rest := new(big.Int).Sub(v, big.NewInt(eip155Offset))
	recid := uint8(rest.Bit(0))
	chainID := rest.Rsh(rest, 1)
	if !chainID.IsUint64() {
		return nil, invalid(ErrInvalidSignatureEncoding, "chain id overflows")
	}
	res := &DecodedSignature{ChainID: chainID.Uint64(), V: v}
	res.Signature.RecoveryID = recid
	copy(res.Signature.R[:], raw[:32])
	copy(res.Signature.S[:], raw[32:64])
	return res, nil
}
