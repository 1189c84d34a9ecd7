package wire

import (
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Join announces a fresh nonce of the sender when a session starts
type Join struct {
	Nonce hexutil.Bytes `json:"nonce"`
}

// JoinAck lists the nonces of every participant as seen by the sender. The session
// id is derived from the nonces once every participant acknowledged the same set.
type JoinAck struct {
	Nonces map[uint16]hexutil.Bytes `json:"nonces"`
}

// DKGCommit is broadcast in the first keygen round
type DKGCommit struct {
	// Feldman commitments to the dealer polynomial coefficients, constant term first
	Commitments []hexutil.Bytes `json:"commitments"`
	// Schnorr proof of knowledge of the constant term
	Proof hexutil.Bytes `json:"proof"`
	// EncryptionKey receives the dealer shares of the other participants
	EncryptionKey hexutil.Bytes `json:"encryption_key"`
}

// DKGShare carries the encrypted evaluation of the dealer polynomial at the recipient index
type DKGShare struct {
	EncryptedShare hexutil.Bytes `json:"encrypted_share"`
}

// SignCommit is broadcast in the first signing round
type SignCommit struct {
	// NoncePoint is k_i*G
	NoncePoint hexutil.Bytes `json:"nonce_point"`
	// Commitment hides gamma_i*G until the reveal round
	Commitment hexutil.Bytes `json:"commitment"`
	// PaillierKey is the modulus of the session Paillier key
	PaillierKey hexutil.Bytes `json:"paillier_key"`
	// EncryptedNonce is Enc(k_i)
	EncryptedNonce hexutil.Bytes `json:"encrypted_nonce"`
	// Hash is the message hash the sender signs
	Hash hexutil.Bytes `json:"hash"`
}

// SignMtA is sent point to point as the answer to a peer's encrypted nonce
type SignMtA struct {
	GammaCiphertext hexutil.Bytes `json:"gamma_ciphertext"`
	KeyCiphertext   hexutil.Bytes `json:"key_ciphertext"`
}

// SignReveal opens the nonce commitment
type SignReveal struct {
	Delta      hexutil.Bytes `json:"delta"`
	GammaPoint hexutil.Bytes `json:"gamma_point"`
	Blind      hexutil.Bytes `json:"blind"`
	// SigmaPoint is sigma_i*G, used to verify the partial signature
	SigmaPoint hexutil.Bytes `json:"sigma_point"`
}

type SignPartial struct {
	S hexutil.Bytes `json:"s"`
}
