package wire

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/ssvlabs/eth-tss/pkgs/crypto"
)

type keyShareJSON struct {
	Version      string                   `json:"version"`
	RoomID       string                   `json:"room_id"`
	N            uint16                   `json:"n"`
	T            uint16                   `json:"t"`
	Index        uint16                   `json:"index"`
	Share        hexutil.Bytes            `json:"share"`
	PublicShares map[uint16]hexutil.Bytes `json:"public_shares"`
	PublicKey    hexutil.Bytes            `json:"public_key"`
}

func (k *KeyShare) MarshalJSON() ([]byte, error) {
	if k.Share == nil || k.PublicKey == nil {
		return nil, fmt.Errorf("incomplete key share")
	}
	pubs := make(map[uint16]hexutil.Bytes, len(k.PublicShares))
	for id, p := range k.PublicShares {
		pubs[id] = p.Bytes()
	}
	return json.Marshal(keyShareJSON{
		Version:      k.Version,
		RoomID:       k.RoomID,
		N:            k.Scheme.N,
		T:            k.Scheme.T,
		Index:        k.Index,
		Share:        crypto.ScalarBytes(k.Share),
		PublicShares: pubs,
		PublicKey:    k.PublicKey.Bytes(),
	})
}

func (k *KeyShare) UnmarshalJSON(data []byte) error {
	var ks keyShareJSON
	if err := json.Unmarshal(data, &ks); err != nil {
		return fmt.Errorf("failed to unmarshal to keyShareJSON %s", err.Error())
	}
	share, err := crypto.ScalarFromBytes(ks.Share)
	if err != nil {
		return fmt.Errorf("invalid secret share: %w", err)
	}
	pk, err := crypto.PointFromBytes(ks.PublicKey)
	if err != nil {
		return fmt.Errorf("invalid public key: %w", err)
	}
	pubs := make(map[uint16]*crypto.Point, len(ks.PublicShares))
	for id, b := range ks.PublicShares {
		p, err := crypto.PointFromBytes(b)
		if err != nil {
			return fmt.Errorf("invalid public share of %d: %w", id, err)
		}
		pubs[id] = p
	}
	*k = KeyShare{
		Version:      ks.Version,
		RoomID:       ks.RoomID,
		Scheme:       Scheme{N: ks.N, T: ks.T},
		Index:        ks.Index,
		Share:        share,
		PublicShares: pubs,
		PublicKey:    pk,
	}
	return nil
}

type signatureJSON struct {
	R          hexutil.Bytes `json:"r"`
	S          hexutil.Bytes `json:"s"`
	RecoveryID uint8         `json:"recid"`
}

func (s *Signature) MarshalJSON() ([]byte, error) {
	return json.Marshal(signatureJSON{R: s.R[:], S: s.S[:], RecoveryID: s.RecoveryID})
}

func (s *Signature) UnmarshalJSON(data []byte) error {
	var sig signatureJSON
	if err := json.Unmarshal(data, &sig); err != nil {
		return fmt.Errorf("failed to unmarshal to signatureJSON %s", err.Error())
	}
	if len(sig.R) != 32 || len(sig.S) != 32 {
		return fmt.Errorf("invalid signature length: r %d, s %d", len(sig.R), len(sig.S))
	}
	copy(s.R[:], sig.R)
	copy(s.S[:], sig.S)
	s.RecoveryID = sig.RecoveryID
	return nil
}
