package rpc

import (
	"errors"
	"fmt"
)

// ErrTransport wraps failures where no JSON-RPC response was obtained.
var ErrTransport = errors.New("rpc: transport failure")

// RPCError represents a JSON-RPC error response
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// AccountInfo is the decoded value of getAccountInfo.
type AccountInfo struct {
	Owner      string
	Lamports   uint64
	Executable bool
	Data       []byte
}

type accountInfoValue struct {
	Owner      string   `json:"owner"`
	Lamports   uint64   `json:"lamports"`
	Executable bool     `json:"executable"`
	Data       []string `json:"data"` // [payload, encoding]
}

// contextValue is the {context, value} wrapper most account-model
// methods return.
type contextValue[T any] struct {
	Context struct {
		Slot uint64 `json:"slot"`
	} `json:"context"`
	Value T `json:"value"`
}

type blockhashValue struct {
	Blockhash            string `json:"blockhash"`
	LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
}
