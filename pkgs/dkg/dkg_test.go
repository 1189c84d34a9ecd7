package dkg

import (
	"context"
	"crypto/rand"
	"fmt"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/sourcegraph/conc"
	"github.com/stretchr/testify/require"

	"github.com/ssvlabs/eth-tss/pkgs/board"
	"github.com/ssvlabs/eth-tss/pkgs/crypto"
	"github.com/ssvlabs/eth-tss/pkgs/relay"
	"github.com/ssvlabs/eth-tss/pkgs/utils/test_utils"
	"github.com/ssvlabs/eth-tss/pkgs/wire"
)

func withShareTamper(f func(to uint16, share *crypto.Scalar) *crypto.Scalar) Option {
	return func(o *LocalParty) {
		o.tamperShare = f
	}
}

// runKeygen runs the listed participants of a (n, th) keygen concurrently
func runKeygen(dialer board.Dialer, room string, n, th uint16, timeout time.Duration, parties []uint16, custom map[uint16][]Option) (map[uint16]*wire.KeyShare, map[uint16]error) {
	shares := make([]*wire.KeyShare, n+1)
	errs := make([]error, n+1)
	var wg conc.WaitGroup
	for _, i := range parties {
		wg.Go(func() {
			shares[i], errs[i] = Run(context.Background(), dialer, Params{
				RoomID:  room,
				Index:   i,
				N:       n,
				T:       th,
				Timeout: timeout,
			}, custom[i]...)
		})
	}
	wg.Wait()
	resShares := make(map[uint16]*wire.KeyShare)
	resErrs := make(map[uint16]error)
	for _, i := range parties {
		resShares[i] = shares[i]
		resErrs[i] = errs[i]
	}
	return resShares, resErrs
}

func allParties(n uint16) []uint16 {
	return wire.Scheme{N: n, T: 1}.Indexes()
}

func requireAgreement(t *testing.T, shares map[uint16]*wire.KeyShare, errs map[uint16]error, n, th uint16) {
	for i := uint16(1); i <= n; i++ {
		require.NoError(t, errs[i], "participant %d", i)
		require.NoError(t, shares[i].Validate())
		require.Equal(t, i, shares[i].Index)
		require.Equal(t, wire.Scheme{N: n, T: th}, shares[i].Scheme)
	}
	first := shares[1]
	for i := uint16(2); i <= n; i++ {
		require.True(t, first.PublicKey.Equal(shares[i].PublicKey))
		for j := uint16(1); j <= n; j++ {
			require.True(t, first.PublicShares[j].Equal(shares[i].PublicShares[j]))
		}
	}
	// any t+1 secret shares reconstruct the private key of the public key
	for start := uint16(1); start+th <= n; start++ {
		set := make([]uint16, 0, th+1)
		for j := start; j <= start+th; j++ {
			set = append(set, j)
		}
		secret := new(crypto.Scalar)
		for _, j := range set {
			l, err := crypto.LagrangeCoefficient(j, set)
			require.NoError(t, err)
			secret.Add(new(crypto.Scalar).Mul2(l, shares[j].Share))
		}
		require.True(t, crypto.BaseMul(secret).Equal(first.PublicKey))
	}
}

func TestKeygenAgreement(t *testing.T) {
	for _, tc := range []struct{ n, t uint16 }{{3, 1}, {4, 2}, {5, 1}, {2, 1}} {
		t.Run(fmt.Sprintf("n=%d,t=%d", tc.n, tc.t), func(t *testing.T) {
			hub := relay.NewHub(nil)
			shares, errs := runKeygen(hub, "keygen", tc.n, tc.t, 30*time.Second, allParties(tc.n), nil)
			requireAgreement(t, shares, errs, tc.n, tc.t)
		})
	}
}

func TestKeygenOverHTTPRelay(t *testing.T) {
	srv := test_utils.CreateTestRelay(t)
	shares, errs := runKeygen(srv.Client, "http-keygen", 3, 1, 30*time.Second, allParties(3), nil)
	requireAgreement(t, shares, errs, 3, 1)
}

func TestKeygenInvalidParams(t *testing.T) {
	hub := relay.NewHub(nil)
	for _, params := range []Params{
		{RoomID: "room", Index: 1, N: 1, T: 0},
		{RoomID: "room", Index: 1, N: 3, T: 0},
		{RoomID: "room", Index: 1, N: 3, T: 3},
		{RoomID: "room", Index: 1, N: 3, T: 4},
		{RoomID: "room", Index: 0, N: 3, T: 1},
		{RoomID: "room", Index: 4, N: 3, T: 1},
		{RoomID: "", Index: 1, N: 3, T: 1},
	} {
		_, err := Run(context.Background(), hub, params)
		require.ErrorIs(t, err, wire.ErrInvalidInput, "%+v", params)
	}
	require.Zero(t, hub.Rooms())
}

func TestKeygenParticipantMissing(t *testing.T) {
	hub := relay.NewHub(nil)
	start := time.Now()
	_, errs := runKeygen(hub, "missing", 3, 1, time.Second, []uint16{1, 2}, nil)
	require.Less(t, time.Since(start), 10*time.Second)
	for _, i := range []uint16{1, 2} {
		require.ErrorIs(t, errs[i], wire.ErrParticipantMissing)
		var typed *wire.Error
		require.True(t, errors.As(errs[i], &typed))
		require.Equal(t, []uint16{3}, typed.Parties)
	}
}

func TestKeygenCheatingDealer(t *testing.T) {
	hub := relay.NewHub(nil)
	one := crypto.ScalarFromIndex(1)
	custom := map[uint16][]Option{
		3: {withShareTamper(func(to uint16, share *crypto.Scalar) *crypto.Scalar {
			if to == 1 {
				return new(crypto.Scalar).Add2(share, one)
			}
			return share
		})},
	}
	_, errs := runKeygen(hub, "cheat", 3, 1, 10*time.Second, allParties(3), custom)
	require.ErrorIs(t, errs[1], wire.ErrInvalidShare)
	var typed *wire.Error
	require.True(t, errors.As(errs[1], &typed))
	require.Equal(t, []uint16{3}, typed.Parties)
	require.NoError(t, errs[2])
	require.NoError(t, errs[3])
}

func TestKeygenInvalidCommitment(t *testing.T) {
	hub := relay.NewHub(nil)
	secret, err := crypto.RandomScalar(rand.Reader)
	require.NoError(t, err)
	commit := &wire.DKGCommit{
		Commitments:   encodePoints([]*crypto.Point{crypto.BaseMul(secret)}),
		Proof:         make([]byte, crypto.PointSize+crypto.ScalarSize),
		EncryptionKey: make([]byte, 65),
	}

	// participant 3 joins the session and publishes a commitment of the wrong degree
	var cheaterErr error
	var wg conc.WaitGroup
	wg.Go(func() {
		ctx := context.Background()
		b, err := board.Open(ctx, hub, board.Options{
			RoomID:    "bad-commit",
			Protocol:  wire.ProtocolKeygen,
			Self:      3,
			Peers:     []uint16{1, 2},
			Timeout:   10 * time.Second,
			Handshake: true,
		})
		if err != nil {
			cheaterErr = err
			return
		}
		defer b.Close()
		cheaterErr = b.Broadcast(ctx, roundCommit, wire.DKGCommitMessageType, commit)
	})
	_, errs := runKeygen(hub, "bad-commit", 3, 1, 10*time.Second, []uint16{1, 2}, nil)
	wg.Wait()
	require.NoError(t, cheaterErr)
	for _, i := range []uint16{1, 2} {
		require.ErrorIs(t, errs[i], wire.ErrInvalidShare)
		var typed *wire.Error
		require.True(t, errors.As(errs[i], &typed))
		require.Equal(t, []uint16{3}, typed.Parties)
	}
}

func TestKeygenRoomReuse(t *testing.T) {
	hub := relay.NewHub(nil)
	first, errs := runKeygen(hub, "default-keygen", 3, 1, 30*time.Second, allParties(3), nil)
	requireAgreement(t, first, errs, 3, 1)

	second, errs := runKeygen(hub, "default-keygen", 3, 1, 30*time.Second, allParties(3), nil)
	requireAgreement(t, second, errs, 3, 1)
	require.False(t, first[1].PublicKey.Equal(second[1].PublicKey))
}

func TestKeygenLateParticipant(t *testing.T) {
	hub := relay.NewHub(nil)
	_, errs := runKeygen(hub, "late", 3, 1, 30*time.Second, allParties(3), nil)
	for _, err := range errs {
		require.NoError(t, err)
	}

	// participant 3 joins the reused room after the others started
	var shares map[uint16]*wire.KeyShare
	var wg conc.WaitGroup
	wg.Go(func() {
		shares, errs = runKeygen(hub, "late", 3, 1, 30*time.Second, []uint16{1, 2}, nil)
	})
	time.Sleep(500 * time.Millisecond)
	late, lateErr := Run(context.Background(), hub, Params{RoomID: "late", Index: 3, N: 3, T: 1, Timeout: 30 * time.Second})
	wg.Wait()
	shares[3], errs[3] = late, lateErr
	requireAgreement(t, shares, errs, 3, 1)
}

func TestStateString(t *testing.T) {
	o := New(Params{RoomID: "room", Index: 1, N: 3, T: 1})
	require.Equal(t, StateCommit, o.State())
	require.Equal(t, "CollectShares", StateCollectShares.String())
}
