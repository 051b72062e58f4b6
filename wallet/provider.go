// Package wallet confirms submitted transactions against an Ethereum node.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/michaelpento.lv/llamalend/sdk"
)

var (
	ErrTransactionFailed   = errors.New("transaction failed")
	ErrConfirmationTimeout = errors.New("confirmation timed out")
)

type Config struct {
	PollInterval      time.Duration
	Timeout           time.Duration
	CacheSize         int
	RequestsPerSecond float64
	BurstSize         int
}

func DefaultConfig() Config {
	return Config{
		PollInterval:      2 * time.Second,
		Timeout:           5 * time.Minute,
		CacheSize:         1024,
		RequestsPerSecond: 10,
		BurstSize:         5,
	}
}

// Provider polls receipts until a transaction is mined. Successful
// confirmations are cached so repeated waits return immediately.
type Provider struct {
	client    EthClient
	cfg       Config
	limiter   *rate.Limiter
	confirmed *lru.Cache
	logger    *zap.Logger
}

var _ sdk.Provider = (*Provider)(nil)

func NewProvider(client EthClient, cfg Config, logger *zap.Logger) (*Provider, error) {
	if client == nil {
		return nil, fmt.Errorf("eth client is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	defaults := DefaultConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaults.PollInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = defaults.CacheSize
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = defaults.RequestsPerSecond
	}
	if cfg.BurstSize <= 0 {
		cfg.BurstSize = defaults.BurstSize
	}

	cache, err := lru.New(cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create receipt cache: %w", err)
	}

	return &Provider{
		client:    client,
		cfg:       cfg,
		limiter:   rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.BurstSize),
		confirmed: cache,
		logger:    logger.Named("provider"),
	}, nil
}

func (p *Provider) WaitForTransaction(ctx context.Context, hash common.Hash) error {
	if p.confirmed.Contains(hash) {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		done, err := p.poll(ctx, hash)
		if done {
			return err
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("%w: %s", ErrConfirmationTimeout, hash.Hex())
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// poll checks the receipt once. done is false while the transaction is pending.
func (p *Provider) poll(ctx context.Context, hash common.Hash) (done bool, err error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return false, nil
	}

	receipt, err := p.client.TransactionReceipt(ctx, hash)
	if err != nil {
		if !errors.Is(err, ethereum.NotFound) {
			p.logger.Debug("Receipt lookup failed", zap.String("hash", hash.Hex()), zap.Error(err))
		}
		return false, nil
	}

	if receipt.Status == types.ReceiptStatusFailed {
		return true, fmt.Errorf("%w: %s reverted in block %s", ErrTransactionFailed, hash.Hex(), receipt.BlockNumber)
	}

	p.confirmed.Add(hash, receipt.BlockNumber)
	p.logger.Debug("Transaction confirmed",
		zap.String("hash", hash.Hex()),
		zap.Stringer("block", receipt.BlockNumber),
		zap.Uint64("gasUsed", receipt.GasUsed))
	return true, nil
}

// WaitForTransactions waits for every hash concurrently. It returns nil only
// if all of them succeed; failures are combined with multierr.
func (p *Provider) WaitForTransactions(ctx context.Context, hashes []common.Hash) error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs error
	)
	for _, h := range hashes {
		h := h
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := p.WaitForTransaction(ctx, h); err != nil {
				mu.Lock()
				errs = multierr.Append(errs, err)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return errs
}
