package ai

import (
	"context"
	"errors"
	"testing"

	"github.com/aman-zulfiqar/crosschain-swap/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeSQL(t *testing.T) {
	tests := []struct{ in, want string }{
		{"SELECT count() FROM swap_outcomes;", "SELECT count() FROM swap_outcomes"},
		{"```sql\nSELECT 1 FROM swap_outcomes\n```", "SELECT 1 FROM swap_outcomes"},
		{"```\nSELECT 1 FROM swap_outcomes\n```\nhope it helps", "SELECT 1 FROM swap_outcomes"},
		{"  SELECT 1 FROM swap_outcomes  ", "SELECT 1 FROM swap_outcomes"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, sanitizeSQL(tt.in), tt.in)
	}
}

func TestValidateSQL(t *testing.T) {
	ok := []string{
		"SELECT count() FROM swap_outcomes",
		"SELECT status, count() FROM crosschain.swap_outcomes FINAL GROUP BY status",
		"WITH d AS (SELECT * FROM swap_outcomes) SELECT count() FROM d",
		"select count() from swap_outcomes where created_at > now() - INTERVAL 1 DAY",
	}
	for _, q := range ok {
		assert.NoError(t, validateSQL(q, "crosschain"), q)
	}

	bad := []string{
		"",
		"DROP TABLE swap_outcomes",
		"SELECT 1 FROM swap_outcomes; DROP TABLE swap_outcomes",
		"SELECT * FROM system.tables",
		"SELECT * FROM other.swap_outcomes_copy",
		"SELECT * FROM swap_outcomes INTO OUTFILE 'x'",
		"SELECT * FROM swap_outcomes JOIN crosschain.secrets USING (tx_id)",
		"select 1 from swap_outcomes; select 2 from swap_outcomes",
	}
	for _, q := range bad {
		assert.Error(t, validateSQL(q, "crosschain"), q)
	}
}

func fakeAgent(gen generateFunc) *Agent {
	return &Agent{generate: gen, database: "crosschain", logger: logrus.New()}
}

func TestExplainFailure(t *testing.T) {
	var prompt string
	a := fakeAgent(func(_ context.Context, p string) (string, error) {
		prompt = p
		return "  The price moved past your slippage limit. Request a new quote.  ", nil
	})

	rec := &models.SwapRecord{
		TxID:             "0xfail",
		FromChain:        137,
		ToChain:          42161,
		FromToken:        models.Token{Symbol: "USDC", Decimals: 6},
		ToToken:          models.Token{Symbol: "USDC", Decimals: 6},
		FromAmount:       "1000000",
		ToAmount:         "998000",
		Status:           models.StatusFailed,
		SubstatusMessage: "slippage exceeded",
	}
	got, err := a.ExplainFailure(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, "The price moved past your slippage limit. Request a new quote.", got)
	assert.Contains(t, prompt, "slippage exceeded")
	assert.Contains(t, prompt, "1 USDC on chain 137")

	rec.Status = models.StatusDone
	_, err = a.ExplainFailure(context.Background(), rec)
	assert.Error(t, err)
}

func TestExplainFailure_LLMError(t *testing.T) {
	a := fakeAgent(func(context.Context, string) (string, error) { return "", errors.New("rate limited") })
	_, err := a.ExplainFailure(context.Background(), &models.SwapRecord{Status: models.StatusFailed})
	assert.ErrorContains(t, err, "rate limited")
}

func TestAsk_WithoutArchive(t *testing.T) {
	a := fakeAgent(func(context.Context, string) (string, error) {
		t.Fatal("LLM must not be called without an archive")
		return "", nil
	})
	_, err := a.Ask(context.Background(), "how many swaps failed today?")
	assert.ErrorIs(t, err, ErrAnalyticsDisabled)
}

func TestGenerateSQL_RejectsUnsafeOutput(t *testing.T) {
	a := fakeAgent(func(context.Context, string) (string, error) {
		return "```sql\nDELETE FROM swap_outcomes\n```", nil
	})
	_, err := a.generateSQL(context.Background(), "clear history")
	assert.Error(t, err)
}

func TestWithRowLimit(t *testing.T) {
	assert.Equal(t, "SELECT * FROM swap_outcomes LIMIT 200", withRowLimit("SELECT * FROM swap_outcomes"))
	assert.Equal(t, "SELECT * FROM swap_outcomes ORDER BY created_at DESC LIMIT 5",
		withRowLimit("SELECT * FROM swap_outcomes ORDER BY created_at DESC LIMIT 5"))
	assert.Equal(t, "SELECT * FROM swap_outcomes limit 10, 20", withRowLimit("SELECT * FROM swap_outcomes limit 10, 20"))
}

func TestGenerateSQL_AppliesRowLimit(t *testing.T) {
	a := fakeAgent(func(context.Context, string) (string, error) {
		return "```sql\nSELECT to_chain, count() FROM swap_outcomes GROUP BY to_chain;\n```", nil
	})
	got, err := a.generateSQL(context.Background(), "swaps per destination")
	require.NoError(t, err)
	assert.Equal(t, "SELECT to_chain, count() FROM swap_outcomes GROUP BY to_chain LIMIT 200", got)
}
