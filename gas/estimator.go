package gas

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	lltypes "github.com/michaelpento.lv/llamalend/types"
	"github.com/michaelpento.lv/llamalend/utils/math"
)

// nativeDecimals is the precision of the chain's fee token
const nativeDecimals = 18

// FeeReader reads the fee inputs of the latest block
type FeeReader interface {
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
}

// Estimator converts gas units into a fee at the current base fee plus tip
type Estimator struct {
	client      FeeReader
	logger      *zap.Logger
	mu          sync.RWMutex
	baseFee     *big.Int
	priorityFee *big.Int
	updatedAt   time.Time
	maxAge      time.Duration
}

// NewEstimator creates a new gas estimator. Fees older than maxAge are
// refreshed on demand.
func NewEstimator(client FeeReader, maxAge time.Duration, logger *zap.Logger) *Estimator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Estimator{client: client, logger: logger.Named("gas"), maxAge: maxAge}
}

// Start refreshes fees every interval until ctx is done
func (e *Estimator) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := e.Refresh(ctx); err != nil {
					e.logger.Error("Failed to update gas prices", zap.Error(err))
				}
			}
		}
	}()
}

// Refresh fetches the latest base fee and priority fee
func (e *Estimator) Refresh(ctx context.Context) error {
	header, err := e.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to get latest header: %w", err)
	}
	baseFee := header.BaseFee
	if baseFee == nil {
		baseFee = new(big.Int)
	}

	priorityFee, err := e.client.SuggestGasTipCap(ctx)
	if err != nil {
		return fmt.Errorf("failed to get priority fee: %w", err)
	}

	e.mu.Lock()
	e.baseFee = new(big.Int).Set(baseFee)
	e.priorityFee = new(big.Int).Set(priorityFee)
	e.updatedAt = time.Now()
	e.mu.Unlock()
	return nil
}

func (e *Estimator) fees(ctx context.Context) (*big.Int, *big.Int, error) {
	e.mu.RLock()
	stale := e.baseFee == nil || (e.maxAge > 0 && time.Since(e.updatedAt) > e.maxAge)
	e.mu.RUnlock()

	if stale {
		if err := e.Refresh(ctx); err != nil {
			return nil, nil, err
		}
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	return new(big.Int).Set(e.baseFee), new(big.Int).Set(e.priorityFee), nil
}

// Cost returns the fee in wei for an estimate covering one or more transactions
func (e *Estimator) Cost(ctx context.Context, gas lltypes.Gas) (*big.Int, error) {
	baseFee, priorityFee, err := e.fees(ctx)
	if err != nil {
		return nil, err
	}
	price := new(big.Int).Add(baseFee, priorityFee)
	return new(big.Int).Mul(price, new(big.Int).SetUint64(gas.Total())), nil
}

// CostNative returns Cost in whole units of the fee token
func (e *Estimator) CostNative(ctx context.Context, gas lltypes.Gas) (decimal.Decimal, error) {
	wei, err := e.Cost(ctx, gas)
	if err != nil {
		return decimal.Zero, err
	}
	return math.FromBaseUnits(wei, nativeDecimals), nil
}
