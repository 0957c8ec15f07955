// Package txbuilder builds and signs the self-transfers submitted by the
// dispatch cycle.
package txbuilder

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// TransferGasLimit is the fixed gas limit of a plain value transfer.
const TransferGasLimit = 21000

// TransferParams holds the inputs for a self-transfer.
type TransferParams struct {
	ChainID  *big.Int
	Nonce    uint64
	From     common.Address
	Value    *big.Int
	GasPrice *big.Int
}

// NewSelfTransferTx creates an unsigned legacy transfer whose recipient is the sender.
func NewSelfTransferTx(p TransferParams) (*types.Transaction, error) {
	if p.ChainID == nil || p.ChainID.Sign() == 0 {
		return nil, fmt.Errorf("ChainID must be non-nil and non-zero")
	}
	if p.GasPrice == nil {
		return nil, fmt.Errorf("gas price is required")
	}
	value := p.Value
	if value == nil {
		value = new(big.Int)
	}
	to := p.From
	return types.NewTx(&types.LegacyTx{
		Nonce:    p.Nonce,
		GasPrice: p.GasPrice,
		Gas:      TransferGasLimit,
		To:       &to,
		Value:    value,
	}), nil
}

// SignSelfTransfer builds and signs a self-transfer with key.
func SignSelfTransfer(p TransferParams, key *ecdsa.PrivateKey) (*types.Transaction, error) {
	tx, err := NewSelfTransferTx(p)
	if err != nil {
		return nil, err
	}
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(p.ChainID), key)
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}
	return signed, nil
}
