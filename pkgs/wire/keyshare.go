package wire

import (
	"sort"

	"github.com/hashicorp/go-version"
	"github.com/pkg/errors"

	"github.com/ssvlabs/eth-tss/pkgs/crypto"
)

// KeyShareVersion is the schema version written by this build
const KeyShareVersion = "1.0.0"

// key shares of any 1.x schema can be read
var supportedKeyShareVersions = version.MustConstraints(version.NewConstraint(">= 1.0, < 2.0"))

// KeyShare is the durable output of a keygen session: the participant's secret share,
// the verification shares of every participant and the group public key.
// It is sensitive material; persisting it is up to the caller.
type KeyShare struct {
	Version string
	RoomID  string
	Scheme  Scheme
	Index   uint16
	// Share is x_i, the evaluation of the joint polynomial at Index
	Share *crypto.Scalar
	// PublicShares maps every index j to x_j*G
	PublicShares map[uint16]*crypto.Point
	PublicKey    *crypto.Point
}

// Indexes returns the sorted participant indexes of the keygen session.
func (k *KeyShare) Indexes() []uint16 {
	ids := make([]uint16, 0, len(k.PublicShares))
	for id := range k.PublicShares {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Validate checks the schema version and the internal consistency of the share.
func (k *KeyShare) Validate() error {
	v, err := version.NewVersion(k.Version)
	if err != nil {
		return NewError(KindInvalidInput, errors.Wrap(err, "invalid key share version"))
	}
	if !supportedKeyShareVersions.Check(v) {
		return NewError(KindInvalidInput, errors.Errorf("unsupported key share version %s", k.Version))
	}
	if err := k.Scheme.Validate(); err != nil {
		return err
	}
	if k.Index < 1 || k.Index > k.Scheme.N {
		return NewError(KindInvalidInput, errors.Errorf("index %d out of range", k.Index))
	}
	if len(k.PublicShares) != int(k.Scheme.N) {
		return NewError(KindInvalidInput, errors.Errorf("expected %d public shares, got %d", k.Scheme.N, len(k.PublicShares)))
	}
	for _, id := range k.Scheme.Indexes() {
		p, ok := k.PublicShares[id]
		if !ok || p == nil || p.IsIdentity() {
			return NewError(KindInvalidInput, errors.Errorf("missing public share of %d", id))
		}
	}
	if k.Share == nil || k.Share.IsZero() {
		return NewError(KindInvalidInput, errors.New("missing secret share"))
	}
	if !crypto.BaseMul(k.Share).Equal(k.PublicShares[k.Index]) {
		return NewError(KindInvalidInput, errors.New("secret share does not match its public share"))
	}
	if k.PublicKey == nil || k.PublicKey.IsIdentity() {
		return NewError(KindInvalidInput, errors.New("missing public key"))
	}
	ids := k.Indexes()
	q := k.Scheme.Quorum()
	for _, subset := range [][]uint16{ids[:q], ids[len(ids)-q:]} {
		points := make(map[uint16]*crypto.Point, q)
		for _, id := range subset {
			points[id] = k.PublicShares[id]
		}
		pk, err := crypto.InterpolateAtZero(points)
		if err != nil {
			return NewError(KindInvalidInput, err)
		}
		if !pk.Equal(k.PublicKey) {
			return NewError(KindInvalidInput, errors.New("public shares do not interpolate to the public key"))
		}
	}
	return nil
}

// Signature is an ECDSA signature with the recovery id of the signing key.
type Signature struct {
	R          [32]byte
	S          [32]byte
	RecoveryID uint8
}
