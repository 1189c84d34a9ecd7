package eth

import (
	"encoding/json"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	eth_crypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"

	"github.com/ssvlabs/eth-tss/pkgs/wire"
)

// MessageToHash returns keccak256(data).
func MessageToHash(data []byte) []byte {
	return eth_crypto.Keccak256(data)
}

// Transaction is the JSON transaction request accepted for hashing and encoding.
// Type 0 (or no type) is a legacy transaction, 1 an EIP-2930 access list transaction
// and 2 an EIP-1559 dynamic fee transaction.
type Transaction struct {
	ChainID  *hexutil.Big    `json:"chainId"`
	To       *common.Address `json:"to,omitempty"`
	Nonce    hexutil.Uint64  `json:"nonce"`
	Gas      hexutil.Uint64  `json:"gas"`
	GasPrice *hexutil.Big    `json:"gasPrice,omitempty"`
	Value    *hexutil.Big    `json:"value,omitempty"`
	Data     hexutil.Bytes   `json:"data,omitempty"`
	Type     *hexutil.Uint64 `json:"type,omitempty"`
	// AccessList is ignored for legacy transactions
	AccessList types.AccessList `json:"accessList,omitempty"`
	// MaxFeePerGas defaults to GasPrice for dynamic fee transactions
	MaxFeePerGas         *hexutil.Big `json:"maxFeePerGas,omitempty"`
	MaxPriorityFeePerGas *hexutil.Big `json:"maxPriorityFeePerGas,omitempty"`
}

// ParseTransaction decodes a JSON transaction request.
func ParseTransaction(data []byte) (*Transaction, error) {
	t := &Transaction{}
	if err := json.Unmarshal(data, t); err != nil {
		return nil, wire.NewError(wire.KindInvalidInput, errors.Wrap(err, "failed to parse transaction"))
	}
	return t, nil
}

func bigOrZero(v *hexutil.Big) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v.ToInt())
}

// ToTransaction converts the request into an unsigned go-ethereum transaction and the
// signer of its chain.
func (t *Transaction) ToTransaction() (*types.Transaction, types.Signer, error) {
	if t.ChainID == nil || t.ChainID.ToInt().Sign() <= 0 {
		return nil, nil, wire.NewError(wire.KindInvalidInput, errors.New("transaction chain id is missing"))
	}
	chainID := bigOrZero(t.ChainID)
	txType := uint64(types.LegacyTxType)
	if t.Type != nil {
		txType = uint64(*t.Type)
	}
	var inner types.TxData
	switch txType {
	case types.LegacyTxType:
		inner = &types.LegacyTx{
			Nonce:    uint64(t.Nonce),
			GasPrice: bigOrZero(t.GasPrice),
			Gas:      uint64(t.Gas),
			To:       t.To,
			Value:    bigOrZero(t.Value),
			Data:     t.Data,
		}
	case types.AccessListTxType:
		inner = &types.AccessListTx{
			ChainID:    chainID,
			Nonce:      uint64(t.Nonce),
			GasPrice:   bigOrZero(t.GasPrice),
			Gas:        uint64(t.Gas),
			To:         t.To,
			Value:      bigOrZero(t.Value),
			Data:       t.Data,
			AccessList: t.AccessList,
		}
	case types.DynamicFeeTxType:
		feeCap := t.MaxFeePerGas
		if feeCap == nil {
			feeCap = t.GasPrice
		}
		inner = &types.DynamicFeeTx{
			ChainID:    chainID,
			Nonce:      uint64(t.Nonce),
			GasTipCap:  bigOrZero(t.MaxPriorityFeePerGas),
			GasFeeCap:  bigOrZero(feeCap),
			Gas:        uint64(t.Gas),
			To:         t.To,
			Value:      bigOrZero(t.Value),
			Data:       t.Data,
			AccessList: t.AccessList,
		}
	default:
		return nil, nil, wire.NewError(wire.KindInvalidInput, errors.Errorf("unsupported transaction type %d", txType))
	}
	return types.NewTx(inner), types.LatestSignerForChainID(chainID), nil
}

// TransactionToMessageHash returns the hash a quorum signs to authorize the transaction.
func TransactionToMessageHash(t *Transaction) ([]byte, error) {
	tx, signer, err := t.ToTransaction()
	if err != nil {
		return nil, err
	}
	return signer.Hash(tx).Bytes(), nil
}

// EncodeTransaction returns the signed transaction in its network encoding, ready for
// eth_sendRawTransaction.
func EncodeTransaction(t *Transaction, sig *wire.Signature) ([]byte, error) {
	tx, signer, err := t.ToTransaction()
	if err != nil {
		return nil, err
	}
	sig, err = SanitizeSignature(sig)
	if err != nil {
		return nil, err
	}
	raw := make([]byte, 0, 65)
	raw = append(raw, sig.R[:]...)
	raw = append(raw, sig.S[:]...)
	raw = append(raw, sig.RecoveryID)
	signed, err := tx.WithSignature(signer, raw)
	if err != nil {
		return nil, invalid(ErrInvalidSignatureEncoding, "%s", err.Error())
	}
	return signed.MarshalBinary()
}
