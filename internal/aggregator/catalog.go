package aggregator

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/aman-zulfiqar/crosschain-swap/internal/models"
)

type tokenSource interface {
	tokens(ctx context.Context, chainID int64) ([]models.Token, error)
}

// Catalog caches the priced token list per chain for the life of the
// process. Entries never expire; callers invalidate explicitly.
type Catalog struct {
	src tokenSource

	mu      sync.RWMutex
	byChain map[int64][]models.Token
}

func NewCatalog(c *Client) *Catalog {
	return &Catalog{src: c, byChain: map[int64][]models.Token{}}
}

// List returns tokens on chainID that carry a positive USD price.
// The returned slice is shared; callers must not modify it.
func (c *Catalog) List(ctx context.Context, chainID int64) ([]models.Token, error) {
	c.mu.RLock()
	cached, ok := c.byChain[chainID]
	c.mu.RUnlock()
	if ok {
		return cached, nil
	}

	all, err := c.src.tokens(ctx, chainID)
	if err != nil {
		return nil, err
	}
	priced := make([]models.Token, 0, len(all))
	for _, t := range all {
		if t.PriceUSD > 0 {
			priced = append(priced, t)
		}
	}
	sort.SliceStable(priced, func(i, j int) bool { return priced[i].Symbol < priced[j].Symbol })

	// Copy-on-write: readers holding the previous map keep a consistent view.
	c.mu.Lock()
	next := make(map[int64][]models.Token, len(c.byChain)+1)
	for k, v := range c.byChain {
		next[k] = v
	}
	next[chainID] = priced
	c.byChain = next
	c.mu.Unlock()

	return priced, nil
}

// Find resolves a token by symbol (case-insensitive) or address.
func (c *Catalog) Find(ctx context.Context, chainID int64, symbolOrAddress string) (models.Token, error) {
	tokens, err := c.List(ctx, chainID)
	if err != nil {
		return models.Token{}, err
	}
	ref := strings.TrimSpace(symbolOrAddress)
	for _, t := range tokens {
		if strings.EqualFold(t.Address, ref) {
			return t, nil
		}
	}
	for _, t := range tokens {
		if strings.EqualFold(t.Symbol, ref) {
			return t, nil
		}
	}
	return models.Token{}, fmt.Errorf("token %q not found on chain %d", symbolOrAddress, chainID)
}

// Invalidate drops the cached list for one chain.
func (c *Catalog) Invalidate(chainID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.byChain[chainID]; !ok {
		return
	}
	next := make(map[int64][]models.Token, len(c.byChain))
	for k, v := range c.byChain {
		if k != chainID {
			next[k] = v
		}
	}
	c.byChain = next
}

func (c *Catalog) InvalidateAll() {
	c.mu.Lock()
	c.byChain = map[int64][]models.Token{}
	c.mu.Unlock()
}
