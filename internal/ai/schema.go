package ai

import "fmt"

// outcomesSchemaDescription describes the settlement archive for NL→SQL prompting.
// It must match the table created by cache.OutcomeArchive.
func outcomesSchemaDescription(database string) string {
	return fmt.Sprintf(`
Database: %[1]s
Table: swap_outcomes

Columns:
  - tx_id             String    -- origin-chain transaction id (unique)
  - status            String    -- terminal status: 'DONE' or 'FAILED'
  - substatus         String    -- aggregator substatus, e.g. 'COMPLETED', 'PARTIAL', 'REFUNDED'
  - substatus_message String    -- human readable reason, mostly set on failures
  - from_chain        Int64     -- numeric origin chain id (1 Ethereum, 10 Optimism, 56 BSC, 137 Polygon, 8453 Base, 42161 Arbitrum, 1151111081099710 Solana)
  - to_chain          Int64     -- numeric destination chain id
  - from_symbol       String    -- symbol of the token sold
  - to_symbol         String    -- symbol of the token received
  - from_amount       Float64   -- amount sold, in whole tokens
  - to_amount         Float64   -- amount received, in whole tokens
  - value_usd         Float64   -- USD value of the amount sold at quote time (0 if unpriced)
  - receiving_tx_id   String    -- destination-chain transaction id
  - duration_seconds  Int64     -- seconds from broadcast to settlement
  - created_at        DateTime  -- broadcast time (UTC)
  - completed_at      DateTime  -- settlement time (UTC)

Notes:
  - Use FINAL (SELECT ... FROM %[1]s.swap_outcomes FINAL) to read deduplicated rows.
  - Success rate is countIf(status = 'DONE') / count().
  - Time filters should use created_at, e.g. created_at >= now() - INTERVAL 24 HOUR.
`, database)
}
