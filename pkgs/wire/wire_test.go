package wire

import (
	"crypto/rand"
	"encoding/json"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/ssvlabs/eth-tss/pkgs/crypto"
)

func TestSchemeValidate(t *testing.T) {
	require.NoError(t, Scheme{N: 3, T: 1}.Validate())
	require.NoError(t, Scheme{N: 5, T: 4}.Validate())
	for _, s := range []Scheme{{N: 1, T: 1}, {N: 3, T: 0}, {N: 3, T: 3}, {N: 3, T: 4}} {
		err := s.Validate()
		require.ErrorIs(t, err, ErrInvalidInput, "%+v", s)
	}
	require.Equal(t, 2, Scheme{N: 3, T: 1}.Quorum())
	require.Equal(t, []uint16{1, 2, 3}, Scheme{N: 3, T: 1}.Indexes())
}

func TestErrorKinds(t *testing.T) {
	err := errors.Wrap(NewError(KindParticipantMissing, errors.New("deadline exceeded"), 3, 1), "round 2")
	require.ErrorIs(t, err, ErrParticipantMissing)
	require.NotErrorIs(t, err, ErrInvalidShare)

	var typed *Error
	require.True(t, errors.As(err, &typed))
	require.Equal(t, []uint16{1, 3}, typed.Parties)
	require.Equal(t, "ParticipantMissing [1 3]: deadline exceeded", typed.Error())

	require.Equal(t, KindProtocolFailure, AsError(errors.New("boom")).Kind)
	require.Nil(t, AsError(nil))

	b, err := json.Marshal(NewError(KindInvalidShare, errors.New("bad share"), 2))
	require.NoError(t, err)
	decoded := &Error{}
	require.NoError(t, json.Unmarshal(b, decoded))
	require.Equal(t, KindInvalidShare, decoded.Kind)
	require.Equal(t, []uint16{2}, decoded.Parties)
	require.EqualError(t, decoded.Err, "bad share")
}

func TestRelayErrorCodec(t *testing.T) {
	msg, err := ParseAsError(MakeErr(errors.New("room is full")))
	require.NoError(t, err)
	require.Equal(t, "room is full", msg)
	_, err = ParseAsError([]byte("not json"))
	require.Error(t, err)
}

// dealerKeyShares builds consistent key shares from a single dealer polynomial.
func dealerKeyShares(t *testing.T, n, th uint16) map[uint16]*KeyShare {
	poly, err := crypto.NewRandomPolynomial(rand.Reader, int(th))
	require.NoError(t, err)
	scheme := Scheme{N: n, T: th}
	pubs := make(map[uint16]*crypto.Point)
	for _, id := range scheme.Indexes() {
		pubs[id] = crypto.BaseMul(poly.Evaluate(id))
	}
	shares := make(map[uint16]*KeyShare)
	for _, id := range scheme.Indexes() {
		shares[id] = &KeyShare{
			Version:      KeyShareVersion,
			RoomID:       "room",
			Scheme:       scheme,
			Index:        id,
			Share:        poly.Evaluate(id),
			PublicShares: pubs,
			PublicKey:    crypto.BaseMul(poly.Secret()),
		}
	}
	return shares
}

func TestKeyShareJSON(t *testing.T) {
	ks := dealerKeyShares(t, 4, 2)[3]
	require.NoError(t, ks.Validate())

	b, err := json.Marshal(ks)
	require.NoError(t, err)
	decoded := &KeyShare{}
	require.NoError(t, json.Unmarshal(b, decoded))
	require.NoError(t, decoded.Validate())
	require.True(t, decoded.Share.Equals(ks.Share))
	require.True(t, decoded.PublicKey.Equal(ks.PublicKey))
	require.Equal(t, []uint16{1, 2, 3, 4}, decoded.Indexes())
}

func TestKeyShareValidate(t *testing.T) {
	shares := dealerKeyShares(t, 3, 1)

	ks := *shares[1]
	ks.Version = "2.0.0"
	require.ErrorIs(t, ks.Validate(), ErrInvalidInput)

	ks = *shares[1]
	ks.Version = "1.4.2"
	require.NoError(t, ks.Validate())

	ks = *shares[1]
	ks.Share = shares[2].Share
	require.ErrorIs(t, ks.Validate(), ErrInvalidInput)

	ks = *shares[1]
	ks.Scheme = Scheme{N: 4, T: 1}
	require.ErrorIs(t, ks.Validate(), ErrInvalidInput)

	ks = *shares[1]
	other, err := crypto.RandomScalar(rand.Reader)
	require.NoError(t, err)
	ks.PublicKey = crypto.BaseMul(other)
	require.ErrorIs(t, ks.Validate(), ErrInvalidInput)
}

func TestSignatureJSON(t *testing.T) {
	sig := &Signature{RecoveryID: 1}
	sig.R[0], sig.S[31] = 0xab, 0xcd
	b, err := json.Marshal(sig)
	require.NoError(t, err)
	decoded := &Signature{}
	require.NoError(t, json.Unmarshal(b, decoded))
	require.Equal(t, sig, decoded)

	require.Error(t, json.Unmarshal([]byte(`{"r":"0x01","s":"0x02","recid":0}`), decoded))
}
