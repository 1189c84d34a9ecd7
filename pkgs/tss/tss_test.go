package tss_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	eth_crypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/sourcegraph/conc"
	"github.com/stretchr/testify/require"

	"github.com/ssvlabs/eth-tss/pkgs/crypto"
	"github.com/ssvlabs/eth-tss/pkgs/eth"
	"github.com/ssvlabs/eth-tss/pkgs/relay"
	"github.com/ssvlabs/eth-tss/pkgs/tss"
	"github.com/ssvlabs/eth-tss/pkgs/utils/test_utils"
	"github.com/ssvlabs/eth-tss/pkgs/wire"
)

func marshalKeys(t *testing.T, shares []*wire.KeyShare) map[uint16]string {
	keys := make(map[uint16]string, len(shares))
	for _, ks := range shares {
		b, err := json.Marshal(ks)
		require.NoError(t, err)
		keys[ks.Index] = string(b)
	}
	return keys
}

func TestLocalKeygenAndSign(t *testing.T) {
	shares, err := tss.LocalKeygen(context.Background(), 3, 1, 30)
	require.NoError(t, err)
	require.Len(t, shares, 3)
	for i, ks := range shares {
		require.Equal(t, uint16(i+1), ks.Index)
		require.True(t, shares[0].PublicKey.Equal(ks.PublicKey))
	}
	address, err := eth.KeyShareAddress(shares[0])
	require.NoError(t, err)

	keys := marshalKeys(t, shares)
	hub := relay.NewHub(nil)
	hash := eth.MessageToHash([]byte("hello"))
	quorum := []uint16{1, 3}
	sigs := make(map[uint16]*wire.Signature)
	errs := make(map[uint16]error)
	results := make([]*wire.Signature, 4)
	failures := make([]error, 4)
	var wg conc.WaitGroup
	for _, id := range quorum {
		wg.Go(func() {
			results[id], failures[id] = tss.Sign(context.Background(), tss.SignParams{
				RoomID:              "local-sign",
				ParticipantsIndexes: quorum,
				Data:                hexutil.Encode(hash),
				Key:                 keys[id],
				TimeoutSeconds:      30,
			}, tss.WithDialer(hub), tss.WithPaillierBits(crypto.MinPaillierBits))
		})
	}
	wg.Wait()
	for _, id := range quorum {
		sigs[id], errs[id] = results[id], failures[id]
	}

	for _, id := range quorum {
		require.NoError(t, errs[id])
		raw := append(append(sigs[id].R[:], sigs[id].S[:]...), sigs[id].RecoveryID)
		pub, err := eth_crypto.SigToPub(hash, raw)
		require.NoError(t, err)
		require.Equal(t, address, eth_crypto.PubkeyToAddress(*pub))
	}
	require.Equal(t, sigs[1], sigs[3])
}

func TestKeygenOverRelayAddress(t *testing.T) {
	srv := test_utils.CreateTestRelay(t)
	room := tss.NewRoomID()
	results := make([]*wire.KeyShare, 3)
	failures := make([]error, 3)
	var wg conc.WaitGroup
	for i := uint16(1); i <= 2; i++ {
		wg.Go(func() {
			results[i], failures[i] = tss.Keygen(context.Background(), tss.KeygenParams{
				RoomID:                room,
				ParticipantIndex:      i,
				ParticipantsCount:     2,
				ParticipantsThreshold: 1,
				RelayAddress:          srv.HttpSrv.URL,
				TimeoutSeconds:        30,
			})
		})
	}
	wg.Wait()
	require.NoError(t, failures[1])
	require.NoError(t, failures[2])
	require.True(t, results[1].PublicKey.Equal(results[2].PublicKey))
}

func TestLocalKeygenInvalidScheme(t *testing.T) {
	_, err := tss.LocalKeygen(context.Background(), 3, 3, 30)
	require.ErrorIs(t, err, wire.ErrInvalidInput)
	_, err = tss.LocalKeygen(context.Background(), 1, 0, 30)
	require.ErrorIs(t, err, wire.ErrInvalidInput)
}

func TestKeygenInvalidRelayAddress(t *testing.T) {
	_, err := tss.Keygen(context.Background(), tss.KeygenParams{
		RoomID:                "room",
		ParticipantIndex:      1,
		ParticipantsCount:     3,
		ParticipantsThreshold: 1,
		RelayAddress:          "ftp://relay",
		TimeoutSeconds:        1,
	})
	require.ErrorIs(t, err, wire.ErrInvalidInput)
}

func TestSignInvalidInput(t *testing.T) {
	shares, err := tss.LocalKeygen(context.Background(), 3, 1, 30)
	require.NoError(t, err)
	keys := marshalKeys(t, shares)
	hub := relay.NewHub(nil)
	hash := hexutil.Encode(eth.MessageToHash([]byte("invalid")))

	for name, params := range map[string]tss.SignParams{
		"bad hex":      {RoomID: "x", ParticipantsIndexes: []uint16{1, 2}, Data: "0xzz", Key: keys[1]},
		"short hash":   {RoomID: "x", ParticipantsIndexes: []uint16{1, 2}, Data: "0x0102", Key: keys[1]},
		"bad key":      {RoomID: "x", ParticipantsIndexes: []uint16{1, 2}, Data: hash, Key: "{"},
		"empty key":    {RoomID: "x", ParticipantsIndexes: []uint16{1, 2}, Data: hash, Key: "{}"},
		"not included": {RoomID: "x", ParticipantsIndexes: []uint16{2, 3}, Data: hash, Key: keys[1]},
	} {
		_, err := tss.Sign(context.Background(), params, tss.WithDialer(hub))
		require.ErrorIs(t, err, wire.ErrInvalidInput, name)
	}
	_, err = tss.Sign(context.Background(), tss.SignParams{
		RoomID: "x", ParticipantsIndexes: []uint16{1}, Data: hash, Key: keys[1],
	}, tss.WithDialer(hub))
	require.ErrorIs(t, err, wire.ErrInsufficientQuorum)
	require.Zero(t, hub.Rooms())
}

func TestOutcomeJSON(t *testing.T) {
	sig := &wire.Signature{RecoveryID: 1}
	sig.R[31] = 1
	sig.S[31] = 2
	b, err := json.Marshal(tss.NewOutcome(sig, nil))
	require.NoError(t, err)
	require.JSONEq(t, `{"result":{"r":"0x0000000000000000000000000000000000000000000000000000000000000001","s":"0x0000000000000000000000000000000000000000000000000000000000000002","recid":1}}`, string(b))

	failed := wire.NewError(wire.KindParticipantMissing, nil, 3, 2)
	b, err = json.Marshal(tss.NewOutcome[wire.Signature](nil, failed))
	require.NoError(t, err)
	require.JSONEq(t, `{"error":{"kind":"ParticipantMissing","parties":[2,3],"error":""}}`, string(b))

	var parsed tss.Outcome[wire.Signature]
	require.NoError(t, json.Unmarshal(b, &parsed))
	require.Nil(t, parsed.Result)
	require.ErrorIs(t, parsed.Error, wire.ErrParticipantMissing)
}
