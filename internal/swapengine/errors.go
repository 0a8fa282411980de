package swapengine

import (
	"errors"

	"github.com/aman-zulfiqar/crosschain-swap/internal/aggregator"
	"github.com/aman-zulfiqar/crosschain-swap/internal/broadcast"
	"github.com/aman-zulfiqar/crosschain-swap/internal/vault"
)

var (
	// ErrApprovalFailed: the token approval reverted or did not confirm in time.
	ErrApprovalFailed = errors.New("swapengine: approval failed")
	// ErrMissingTransactionData: the quote carries no usable transaction.
	ErrMissingTransactionData = &missingDataError{}
	// ErrInsufficientNative: the balance cannot cover value plus gas.
	ErrInsufficientNative = errors.New("swapengine: insufficient native balance for value and gas")
	// ErrUnresolvableLookupTable: an address lookup table could not be fetched or decoded.
	ErrUnresolvableLookupTable = errors.New("swapengine: unresolvable address lookup table")
	// ErrRecompileFailed: the rewritten transaction could not be built or signed.
	ErrRecompileFailed = errors.New("swapengine: transaction recompile failed")
	// ErrSignerMismatch: the vault key is not a required signer of the transaction.
	ErrSignerMismatch = errors.New("swapengine: key is not a signer of this transaction")
	// ErrUnsupportedChain: no builder or client is configured for the chain.
	ErrUnsupportedChain = errors.New("swapengine: unsupported chain")
	// ErrChainPaused: execution on the chain is switched off.
	ErrChainPaused = errors.New("swapengine: chain paused")
	// ErrQuoteRejected: the quote failed a pre-execution risk check.
	ErrQuoteRejected = errors.New("swapengine: quote rejected")
)

// missingDataError also matches aggregator.ErrNoRoute: a quote without a
// transaction is as unexecutable as no quote at all.
type missingDataError struct{}

func (*missingDataError) Error() string { return "swapengine: missing transaction data" }

func (*missingDataError) Is(target error) bool { return target == aggregator.ErrNoRoute }

// UserMessage maps an execution error to text safe to show an end user.
func UserMessage(err error) string {
	var rejected *broadcast.RejectedError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, vault.ErrInvalidPin):
		return "Incorrect PIN."
	case errors.Is(err, vault.ErrUnavailable):
		return "No wallet is set up for this network."
	case errors.Is(err, ErrChainPaused):
		return "Swaps on this network are temporarily disabled."
	case errors.Is(err, ErrQuoteRejected):
		return "This quote is no longer acceptable. Please request a new one."
	case errors.Is(err, ErrMissingTransactionData):
		return "The route did not include a transaction. Please request a new quote."
	case errors.Is(err, aggregator.ErrNoRoute):
		return "No route found for this pair and amount."
	case errors.Is(err, aggregator.ErrUnreachable):
		return "The routing service is unreachable. Please try again."
	case errors.Is(err, aggregator.ErrInvalidResponse):
		return "The routing service returned an unexpected response."
	case errors.Is(err, ErrInsufficientNative):
		return "Not enough native balance to cover the amount and network fees."
	case errors.Is(err, ErrApprovalFailed):
		return "Token approval failed. No swap was sent."
	case errors.Is(err, ErrUnresolvableLookupTable), errors.Is(err, ErrRecompileFailed):
		return "Could not prepare the destination token account. Please retry."
	case errors.Is(err, ErrSignerMismatch):
		return "The quote was built for a different wallet address."
	case errors.As(err, &rejected):
		return "The network rejected the transaction: " + rejected.Reason
	case errors.Is(err, broadcast.ErrSubmissionFailed):
		return "The transaction could not be submitted. Please try again."
	case errors.Is(err, ErrUnsupportedChain):
		return "This network is not supported."
	}
	return "Swap failed."
}
