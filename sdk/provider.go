package sdk

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// Provider confirms submitted transactions
type Provider interface {
	// WaitForTransaction blocks until hash is mined and returns an error if
	// it failed
	WaitForTransaction(ctx context.Context, hash common.Hash) error
	// WaitForTransactions fails if any hash fails; the returned error
	// combines every failure
	WaitForTransactions(ctx context.Context, hashes []common.Hash) error
}
