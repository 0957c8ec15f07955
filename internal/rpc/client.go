// Package rpc resolves a working JSON-RPC endpoint from an ordered candidate
// list, optionally through a proxy, and exposes the chain calls the dispatch
// cycle needs.
package rpc

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
)

// Client is the chain capability used by a dispatch cycle.
// *ethclient.Client satisfies it.
type Client interface {
	// ChainID returns the remote chain identifier.
	ChainID(ctx context.Context) (*big.Int, error)

	// BalanceAt returns the balance of account at blockNumber (nil = latest).
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)

	// NonceAt returns the transaction count of account at blockNumber (nil = latest).
	NonceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error)

	// SuggestGasPrice returns the node's current gas price.
	SuggestGasPrice(ctx context.Context) (*big.Int, error)

	// SendTransaction broadcasts a signed transaction.
	SendTransaction(ctx context.Context, tx *types.Transaction) error

	// TransactionReceipt returns the receipt, or ethereum.NotFound while pending.
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)

	// Close releases the underlying connection.
	Close()
}

var _ Client = (*ethclient.Client)(nil)

// Endpoint pairs an RPC URL with the transport used to reach it.
// It is built fresh for every attempt and never mutated.
type Endpoint struct {
	URL       string
	Transport Transport
}

// DialFunc opens a Client for an endpoint. Dialing must not block on the
// network beyond ctx.
type DialFunc func(ctx context.Context, ep Endpoint) (Client, error)

// Dial opens an ethclient over the endpoint's HTTP transport.
func Dial(ctx context.Context, ep Endpoint) (Client, error) {
	httpClient, err := ep.Transport.HTTPClient()
	if err != nil {
		return nil, err
	}

	rpcClient, err := gethrpc.DialOptions(ctx, ep.URL, gethrpc.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize rpc client: %w", err)
	}
	return ethclient.NewClient(rpcClient), nil
}
