package chain

import (
	"fmt"
	"sort"
	"strings"
)

// Kind distinguishes how transactions are built and submitted on a chain.
type Kind string

const (
	KindEVM          Kind = "evm"
	KindAccountModel Kind = "account_model"
)

const (
	// EVMNative is the sentinel address the aggregator uses for a chain's gas token.
	EVMNative = "0x0000000000000000000000000000000000000000"
	// EVMNativeAlt is the alternative sentinel some routes return.
	EVMNativeAlt = "0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE"
	// SolanaNative is the system program address, used as the SOL sentinel.
	SolanaNative = "11111111111111111111111111111111"

	// SolanaID is the aggregator's numeric id for Solana mainnet.
	SolanaID int64 = 1151111081099710
)

// Chain describes a supported network. Values are immutable once a Registry is built.
type Chain struct {
	Key           string `json:"key"`
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	Kind          Kind   `json:"kind"`
	NativeSymbol  string `json:"native_symbol"`
	NativeAddress string `json:"native_address"`
	IconURI       string `json:"icon_uri,omitempty"`
	RPCURL        string `json:"-"`
}

// IsEVM reports whether the chain uses the EVM transaction model.
func (c Chain) IsEVM() bool { return c.Kind == KindEVM }

// IsNative reports whether address is this chain's native-token sentinel.
func (c Chain) IsNative(address string) bool {
	a := strings.TrimSpace(address)
	switch c.Kind {
	case KindEVM:
		return strings.EqualFold(a, EVMNative) || strings.EqualFold(a, EVMNativeAlt)
	case KindAccountModel:
		return a == SolanaNative || a == c.NativeAddress
	}
	return false
}

// WalletKey is the vault slot holding this chain's signing key. All EVM chains share one.
func (c Chain) WalletKey() string {
	if c.Kind == KindEVM {
		return "evm"
	}
	return c.Key
}

// Defaults returns the built-in chain table.
func Defaults() []Chain {
	return []Chain{
		{Key: "ethereum", ID: 1, Name: "Ethereum", Kind: KindEVM, NativeSymbol: "ETH", NativeAddress: EVMNative, RPCURL: "https://eth.llamarpc.com"},
		{Key: "optimism", ID: 10, Name: "Optimism", Kind: KindEVM, NativeSymbol: "ETH", NativeAddress: EVMNative, RPCURL: "https://mainnet.optimism.io"},
		{Key: "bsc", ID: 56, Name: "BNB Smart Chain", Kind: KindEVM, NativeSymbol: "BNB", NativeAddress: EVMNative, RPCURL: "https://bsc-dataseed.binance.org"},
		{Key: "polygon", ID: 137, Name: "Polygon", Kind: KindEVM, NativeSymbol: "POL", NativeAddress: EVMNative, RPCURL: "https://polygon-rpc.com"},
		{Key: "base", ID: 8453, Name: "Base", Kind: KindEVM, NativeSymbol: "ETH", NativeAddress: EVMNative, RPCURL: "https://mainnet.base.org"},
		{Key: "arbitrum", ID: 42161, Name: "Arbitrum One", Kind: KindEVM, NativeSymbol: "ETH", NativeAddress: EVMNative, RPCURL: "https://arb1.arbitrum.io/rpc"},
		{Key: "solana", ID: SolanaID, Name: "Solana", Kind: KindAccountModel, NativeSymbol: "SOL", NativeAddress: SolanaNative, RPCURL: "https://api.mainnet-beta.solana.com"},
	}
}

// Registry is a read-only lookup of chains by key or numeric id.
type Registry struct {
	byKey map[string]Chain
	byID  map[int64]Chain
}

// NewRegistry builds a registry. rpcOverrides maps chain key to RPC URL.
func NewRegistry(chains []Chain, rpcOverrides map[string]string) (*Registry, error) {
	r := &Registry{
		byKey: make(map[string]Chain, len(chains)),
		byID:  make(map[int64]Chain, len(chains)),
	}
	for _, c := range chains {
		c.Key = strings.ToLower(strings.TrimSpace(c.Key))
		if c.Key == "" || c.ID <= 0 {
			return nil, fmt.Errorf("chain: invalid entry %q (id %d)", c.Key, c.ID)
		}
		if c.Kind != KindEVM && c.Kind != KindAccountModel {
			return nil, fmt.Errorf("chain: %s has unknown kind %q", c.Key, c.Kind)
		}
		if _, dup := r.byKey[c.Key]; dup {
			return nil, fmt.Errorf("chain: duplicate key %s", c.Key)
		}
		if _, dup := r.byID[c.ID]; dup {
			return nil, fmt.Errorf("chain: duplicate id %d", c.ID)
		}
		if u, ok := rpcOverrides[c.Key]; ok && strings.TrimSpace(u) != "" {
			c.RPCURL = strings.TrimSpace(u)
		}
		r.byKey[c.Key] = c
		r.byID[c.ID] = c
	}
	return r, nil
}

// MustDefaultRegistry returns the default table without overrides.
func MustDefaultRegistry() *Registry {
	r, err := NewRegistry(Defaults(), nil)
	if err != nil {
		panic(err)
	}
	return r
}

func (r *Registry) ByKey(key string) (Chain, bool) {
	c, ok := r.byKey[strings.ToLower(strings.TrimSpace(key))]
	return c, ok
}

func (r *Registry) ByID(id int64) (Chain, bool) {
	c, ok := r.byID[id]
	return c, ok
}

// Resolve accepts either a chain key ("polygon") or a numeric id ("137").
func (r *Registry) Resolve(ref string) (Chain, error) {
	if c, ok := r.ByKey(ref); ok {
		return c, nil
	}
	var id int64
	if _, err := fmt.Sscan(strings.TrimSpace(ref), &id); err == nil {
		if c, ok := r.ByID(id); ok {
			return c, nil
		}
	}
	return Chain{}, fmt.Errorf("chain: unknown chain %q", ref)
}

// All returns chains ordered by id.
func (r *Registry) All() []Chain {
	out := make([]Chain, 0, len(r.byID))
	for _, c := range r.byID {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
