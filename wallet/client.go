package wallet

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// EthClient is the subset of chain reads the provider and fee estimator use
type EthClient interface {
	ChainID(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// EthClientWrapper wraps ethclient.Client to implement EthClient
type EthClientWrapper struct {
	*ethclient.Client
}

var _ EthClient = (*EthClientWrapper)(nil)

// Dial connects to an RPC endpoint
func Dial(ctx context.Context, rawurl string) (*EthClientWrapper, error) {
	client, err := ethclient.DialContext(ctx, rawurl)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", rawurl, err)
	}
	return &EthClientWrapper{Client: client}, nil
}
