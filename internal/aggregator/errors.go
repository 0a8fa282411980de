package aggregator

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrNoRoute means the aggregator found no viable path. Retrying will not help.
	ErrNoRoute = errors.New("aggregator: no route")
	// ErrUnreachable covers transport failures, timeouts and 5xx/429 responses.
	ErrUnreachable = errors.New("aggregator: unreachable")
	// ErrInvalidResponse means the payload could not be normalized.
	ErrInvalidResponse = errors.New("aggregator: invalid response")
	// ErrInvalidRequest is returned before any network call for bad input.
	ErrInvalidRequest = errors.New("aggregator: invalid request")
)

// Aggregator error codes that mean "no route".
const (
	codeNoQuote          = 1002
	codeNoPossibleRoute  = 1011
	codeInvalidChainPair = 1009
)

type HTTPError struct {
	StatusCode int
	Body       []byte
}

func (e *HTTPError) Error() string {
	b := strings.TrimSpace(string(e.Body))
	if b == "" {
		return fmt.Sprintf("aggregator http %d", e.StatusCode)
	}
	return fmt.Sprintf("aggregator http %d: %s", e.StatusCode, b)
}

// classify maps a non-2xx response to one of the package sentinels.
func classify(e *HTTPError) error {
	switch {
	case e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500:
		return fmt.Errorf("%w: %w", ErrUnreachable, e)
	case e.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %w", ErrNoRoute, e)
	}

	var re rawError
	if json.Unmarshal(e.Body, &re) == nil {
		switch re.Code {
		case codeNoQuote, codeNoPossibleRoute, codeInvalidChainPair:
			return fmt.Errorf("%w: %w", ErrNoRoute, e)
		}
	}
	return fmt.Errorf("%w: %w", ErrInvalidResponse, e)
}
