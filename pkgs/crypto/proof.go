package crypto

import (
	"crypto/subtle"
	"io"

	"github.com/pkg/errors"
)

// SchnorrProof is a non-interactive proof of knowledge of the discrete log of a point.
type SchnorrProof struct {
	R *Point
	Z *Scalar
}

// ProveKnowledge proves knowledge of secret such that public = secret*G, bound to context.
func ProveKnowledge(r io.Reader, secret *Scalar, public *Point, context []byte) (*SchnorrProof, error) {
	k, err := RandomScalar(r)
	if err != nil {
		return nil, err
	}
	R := BaseMul(k)
	c := HashToScalar(context, public.Bytes(), R.Bytes())
	z := new(Scalar).Mul2(c, secret).Add(k)
	k.Zero()
	return &SchnorrProof{R: R, Z: z}, nil
}

// Verify checks z*G == R + c*public.
func (p *SchnorrProof) Verify(public *Point, context []byte) bool {
	if p.R == nil || p.Z == nil || public.IsIdentity() {
		return false
	}
	c := HashToScalar(context, public.Bytes(), p.R.Bytes())
	return BaseMul(p.Z).Equal(p.R.Add(public.Mul(c)))
}

func (p *SchnorrProof) Bytes() []byte {
	return append(p.R.Bytes(), ScalarBytes(p.Z)...)
}

func ParseSchnorrProof(b []byte) (*SchnorrProof, error) {
	if len(b) != PointSize+ScalarSize {
		return nil, errors.Errorf("invalid proof length %d", len(b))
	}
	R, err := PointFromBytes(b[:PointSize])
	if err != nil {
		return nil, err
	}
	z, err := ScalarFromBytes(b[PointSize:])
	if err != nil {
		return nil, err
	}
	return &SchnorrProof{R: R, Z: z}, nil
}

// Commit binds the caller to parts with a fresh random blinding value.
// The commitment is opened by revealing blind together with parts.
func Commit(r io.Reader, parts ...[]byte) (commitment, blind []byte, err error) {
	blind = make([]byte, 32)
	if _, err := io.ReadFull(r, blind); err != nil {
		return nil, nil, errors.Wrap(err, "failed to read randomness")
	}
	return HashParts(append([][]byte{blind}, parts...)...), blind, nil
}

// VerifyCommitment opens a commitment created by Commit.
func VerifyCommitment(commitment, blind []byte, parts ...[]byte) bool {
	if len(blind) != 32 {
		return false
	}
	expected := HashParts(append([][]byte{blind}, parts...)...)
	return subtle.ConstantTimeCompare(commitment, expected) == 1
}
