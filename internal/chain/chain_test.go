package chain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Resolve(t *testing.T) {
	r := MustDefaultRegistry()

	c, err := r.Resolve("Polygon")
	require.NoError(t, err)
	assert.Equal(t, int64(137), c.ID)

	c, err = r.Resolve("1151111081099710")
	require.NoError(t, err)
	assert.Equal(t, "solana", c.Key)
	assert.Equal(t, KindAccountModel, c.Kind)

	_, err = r.Resolve("dogechain")
	assert.Error(t, err)
}

func TestRegistry_Overrides(t *testing.T) {
	r, err := NewRegistry(Defaults(), map[string]string{"base": "http://localhost:8545"})
	require.NoError(t, err)

	c, ok := r.ByKey("base")
	require.True(t, ok)
	assert.Equal(t, "http://localhost:8545", c.RPCURL)
}

func TestRegistry_RejectsDuplicates(t *testing.T) {
	chains := append(Defaults(), Chain{Key: "eth2", ID: 1, Kind: KindEVM})
	_, err := NewRegistry(chains, nil)
	assert.Error(t, err)
}

func TestChain_IsNative(t *testing.T) {
	r := MustDefaultRegistry()
	eth, _ := r.ByKey("ethereum")
	sol, _ := r.ByKey("solana")

	assert.True(t, eth.IsNative("0x0000000000000000000000000000000000000000"))
	assert.True(t, eth.IsNative("0xeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee"))
	assert.False(t, eth.IsNative("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"))

	assert.True(t, sol.IsNative("11111111111111111111111111111111"))
	assert.False(t, sol.IsNative("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"))

	assert.Equal(t, "evm", eth.WalletKey())
	assert.Equal(t, "solana", sol.WalletKey())
}

func TestRegistry_AllOrdered(t *testing.T) {
	all := MustDefaultRegistry().All()
	require.Len(t, all, 7)
	assert.Equal(t, int64(1), all[0].ID)
	assert.Equal(t, SolanaID, all[len(all)-1].ID)
}
