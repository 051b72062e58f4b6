package fixture

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/multierr"
)

// ErrUnknownTransaction is returned when confirming a hash the chain never saw
var ErrUnknownTransaction = errors.New("unknown transaction")

// Chain records submitted transactions and which of them revert
type Chain struct {
	mu       sync.Mutex
	nonce    uint64
	sent     map[common.Hash]string
	reverted map[common.Hash]string
}

func NewChain() *Chain {
	return &Chain{
		sent:     make(map[common.Hash]string),
		reverted: make(map[common.Hash]string),
	}
}

// submit records a transaction; a non-empty revertMsg makes its confirmation fail
func (c *Chain) submit(label, revertMsg string) common.Hash {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nonce++
	hash := crypto.Keccak256Hash([]byte(label), []byte(strconv.FormatUint(c.nonce, 10)))
	c.sent[hash] = label
	if revertMsg != "" {
		c.reverted[hash] = revertMsg
	}
	return hash
}

// Sent returns the labels of every submitted transaction in no particular order
func (c *Chain) Sent() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.sent))
	for _, label := range c.sent {
		out = append(out, label)
	}
	return out
}

// Label returns the label a hash was submitted with
func (c *Chain) Label(hash common.Hash) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	label, ok := c.sent[hash]
	return label, ok
}

// Provider confirms transactions submitted to a Chain
type Provider struct {
	chain *Chain
	delay time.Duration
}

// NewProvider creates a provider that takes delay to confirm each transaction
func NewProvider(chain *Chain, delay time.Duration) *Provider {
	return &Provider{chain: chain, delay: delay}
}

func (p *Provider) WaitForTransaction(ctx context.Context, hash common.Hash) error {
	if p.delay > 0 {
		timer := time.NewTimer(p.delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	p.chain.mu.Lock()
	defer p.chain.mu.Unlock()
	if _, ok := p.chain.sent[hash]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTransaction, hash.Hex())
	}
	if msg, ok := p.chain.reverted[hash]; ok {
		return fmt.Errorf("transaction %s reverted: %s", hash.Hex(), msg)
	}
	return nil
}

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
