package txbuilder

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
)

const testKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func TestSignSelfTransfer(t *testing.T) {
	key, err := crypto.HexToECDSA(testKey)
	if err != nil {
		t.Fatalf("HexToECDSA: %v", err)
	}
	from := crypto.PubkeyToAddress(key.PublicKey)

	tx, err := SignSelfTransfer(TransferParams{
		ChainID:  big.NewInt(42220),
		Nonce:    17,
		From:     from,
		Value:    big.NewInt(12345),
		GasPrice: big.NewInt(25_000_000_000),
	}, key)
	if err != nil {
		t.Fatalf("SignSelfTransfer() error = %v", err)
	}

	if tx.To() == nil || *tx.To() != from {
		t.Errorf("To = %v, want sender %s", tx.To(), from)
	}
	if tx.Gas() != TransferGasLimit {
		t.Errorf("Gas = %d, want %d", tx.Gas(), TransferGasLimit)
	}
	if tx.Nonce() != 17 {
		t.Errorf("Nonce = %d, want 17", tx.Nonce())
	}
	if tx.Value().Cmp(big.NewInt(12345)) != 0 {
		t.Errorf("Value = %s, want 12345", tx.Value())
	}

	sender, err := types.Sender(types.LatestSignerForChainID(big.NewInt(42220)), tx)
	if err != nil {
		t.Fatalf("recover sender: %v", err)
	}
	if sender != from {
		t.Errorf("recovered sender = %s, want %s", sender, from)
	}
}

func TestNewSelfTransferTxValidation(t *testing.T) {
	tests := []struct {
		name   string
		params TransferParams
	}{
		{name: "nil chain ID", params: TransferParams{GasPrice: big.NewInt(1)}},
		{name: "zero chain ID", params: TransferParams{ChainID: big.NewInt(0), GasPrice: big.NewInt(1)}},
		{name: "nil gas price", params: TransferParams{ChainID: big.NewInt(1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewSelfTransferTx(tt.params); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}

	// Nil value means a zero-value ping.
	tx, err := NewSelfTransferTx(TransferParams{ChainID: big.NewInt(1), GasPrice: big.NewInt(1)})
	if err != nil {
		t.Fatalf("NewSelfTransferTx() error = %v", err)
	}
	if tx.Value().Sign() != 0 {
		t.Errorf("Value = %s, want 0", tx.Value())
	}
}

func TestAmountConversions(t *testing.T) {
	tests := []struct {
		name    string
		amount  float64
		rounded string
		wei     string
	}{
		{name: "rounds down", amount: 0.0123454, rounded: "0.012345", wei: "12345000000000000"},
		{name: "rounds up", amount: 0.0123456, rounded: "0.012346", wei: "12346000000000000"},
		{name: "small minimum", amount: 0.00005, rounded: "0.00005", wei: "50000000000000"},
		{name: "zero", amount: 0, rounded: "0", wei: "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := RoundAmount(tt.amount)
			if r.String() != tt.rounded {
				t.Errorf("RoundAmount(%v) = %s, want %s", tt.amount, r, tt.rounded)
			}
			if got := NativeToWei(r).String(); got != tt.wei {
				t.Errorf("NativeToWei(%s) = %s, want %s", r, got, tt.wei)
			}
		})
	}
}

func TestFormatting(t *testing.T) {
	if got := NativeToWei(decimal.RequireFromString("0.01")).String(); got != "10000000000000000" {
		t.Errorf("NativeToWei(0.01) = %s", got)
	}
	if got := FormatGwei(big.NewInt(25_000_000_000)); got != "25" {
		t.Errorf("FormatGwei = %s, want 25", got)
	}
	if got := FormatGwei(big.NewInt(1_500_000_000)); got != "1.5" {
		t.Errorf("FormatGwei = %s, want 1.5", got)
	}
	fee := Fee(21000, big.NewInt(25_000_000_000))
	if got := FormatNative(fee); got != "0.000525" {
		t.Errorf("FormatNative(fee) = %s, want 0.000525", got)
	}
	if got := FormatNative(big.NewInt(1)); got != "0.000000000000000001" {
		t.Errorf("FormatNative(1 wei) = %s", got)
	}
	if got := FormatNative(nil); got != "" {
		t.Errorf("FormatNative(nil) = %q, want empty", got)
	}
	if !RoundAmount(0.1).Equal(decimal.RequireFromString("0.1")) {
		t.Error("RoundAmount(0.1) != 0.1")
	}
}
