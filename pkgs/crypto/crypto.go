package crypto

import (
	"encoding/binary"
	"encoding/hex"
	"io"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	eth_crypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

const (
	// ScalarSize is the encoded length of a scalar modulo the group order
	ScalarSize = 32
	// PointSize is the encoded length of a compressed curve point
	PointSize = 33
)

var (
	ErrInvalidScalar = errors.New("invalid scalar")
	ErrInvalidPoint  = errors.New("invalid curve point")
)

// Scalar is an element of Z_q where q is the secp256k1 group order.
type Scalar = secp256k1.ModNScalar

// RandomScalar samples a uniformly random non-zero scalar.
func RandomScalar(r io.Reader) (*Scalar, error) {
	var buf [ScalarSize]byte
	for {
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return nil, errors.Wrap(err, "failed to read randomness")
		}
		s := new(Scalar)
		if overflow := s.SetBytes(&buf); overflow == 0 && !s.IsZero() {
			return s, nil
		}
	}
}

// ScalarFromBytes parses a 32 byte big-endian scalar, rejecting values >= q.
func ScalarFromBytes(b []byte) (*Scalar, error) {
	if len(b) != ScalarSize {
		return nil, errors.Wrapf(ErrInvalidScalar, "wrong length %d", len(b))
	}
	var buf [ScalarSize]byte
	copy(buf[:], b)
	s := new(Scalar)
	if s.SetBytes(&buf) != 0 {
		return nil, errors.Wrap(ErrInvalidScalar, "value exceeds group order")
	}
	return s, nil
}

// ScalarBytes returns the 32 byte big-endian encoding of s.
func ScalarBytes(s *Scalar) []byte {
	b := s.Bytes()
	return b[:]
}

// ScalarFromIndex maps a participant index to its evaluation point.
func ScalarFromIndex(i uint16) *Scalar {
	return new(Scalar).SetInt(uint32(i))
}

// HashToScalar hashes the length-prefixed parts with keccak256 and reduces the digest mod q.
func HashToScalar(parts ...[]byte) *Scalar {
	s := new(Scalar)
	s.SetByteSlice(HashParts(parts...))
	return s
}

// HashParts is keccak256 over the length-prefixed concatenation of parts.
func HashParts(parts ...[]byte) []byte {
	size := 0
	for _, p := range parts {
		size += 4 + len(p)
	}
	buf := make([]byte, 0, size)
	for _, p := range parts {
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(p)))
		buf = append(buf, p...)
	}
	return eth_crypto.Keccak256(buf)
}

// Point is a secp256k1 group element kept in affine form. The zero value is the identity.
type Point struct {
	p secp256k1.JacobianPoint
}

// Identity returns the point at infinity.
func Identity() *Point {
	return &Point{}
}

// BaseMul returns k*G.
func BaseMul(k *Scalar) *Point {
	res := new(Point)
	if k.IsZero() {
		return res
	}
	secp256k1.ScalarBaseMultNonConst(k, &res.p)
	res.normalize()
	return res
}

// Mul returns k*p.
func (p *Point) Mul(k *Scalar) *Point {
	res := new(Point)
	if k.IsZero() || p.IsIdentity() {
		return res
	}
	secp256k1.ScalarMultNonConst(k, &p.p, &res.p)
	res.normalize()
	return res
}

// Add returns p+q.
func (p *Point) Add(q *Point) *Point {
	res := new(Point)
	secp256k1.AddNonConst(&p.p, &q.p, &res.p)
	res.normalize()
	return res
}

// Equal reports whether both points are the same group element.
func (p *Point) Equal(q *Point) bool {
	if p.IsIdentity() || q.IsIdentity() {
		return p.IsIdentity() && q.IsIdentity()
	}
	return p.p.X.Equals(&q.p.X) && p.p.Y.Equals(&q.p.Y)
}

func (p *Point) IsIdentity() bool {
	return (p.p.X.IsZero() && p.p.Y.IsZero()) || p.p.Z.IsZero()
}

func (p *Point) normalize() {
	p.p.Z.Normalize()
	if p.IsIdentity() {
		p.p = secp256k1.JacobianPoint{}
		return
	}
	p.p.ToAffine()
}

// XScalar returns the affine x coordinate reduced modulo the group order.
func (p *Point) XScalar() *Scalar {
	s := new(Scalar)
	s.SetBytes(p.p.X.Bytes())
	return s
}

// PublicKey converts p into a secp256k1 public key. Identity has no public key form.
func (p *Point) PublicKey() (*secp256k1.PublicKey, error) {
	if p.IsIdentity() {
		return nil, errors.Wrap(ErrInvalidPoint, "point at infinity")
	}
	x, y := p.p.X, p.p.Y
	return secp256k1.NewPublicKey(&x, &y), nil
}

// Bytes returns the 33 byte compressed encoding, or nil for the identity.
func (p *Point) Bytes() []byte {
	pk, err := p.PublicKey()
	if err != nil {
		return nil
	}
	return pk.SerializeCompressed()
}

func (p *Point) String() string {
	if p.IsIdentity() {
		return "identity"
	}
	return hex.EncodeToString(p.Bytes())
}

// PointFromBytes parses a compressed or uncompressed point and checks it lies on the curve.
func PointFromBytes(b []byte) (*Point, error) {
	pk, err := secp256k1.ParsePubKey(b)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidPoint, err.Error())
	}
	return PointFromPublicKey(pk), nil
}

// PointFromPublicKey wraps a parsed public key.
func PointFromPublicKey(pk *secp256k1.PublicKey) *Point {
	res := new(Point)
	pk.AsJacobian(&res.p)
	res.normalize()
	return res
}
