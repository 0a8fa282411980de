package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/aman-zulfiqar/crosschain-swap/internal/aggregator"
	"github.com/aman-zulfiqar/crosschain-swap/internal/broadcast"
	"github.com/aman-zulfiqar/crosschain-swap/internal/swapengine"
	"github.com/aman-zulfiqar/crosschain-swap/internal/vault"
	"github.com/labstack/echo/v4"
)

// NotFoundJSON renders every unhandled error, 404s included, as an
// ErrorResponse. The message is the lower-cased status text.
func NotFoundJSON() echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		code := http.StatusInternalServerError
		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
		}
		_ = c.JSON(code, ErrorResponse{
			Error: strings.ToLower(http.StatusText(code)),
			Code:  code,
		})
	}
}

// executionStatus maps an execution error to an HTTP status code.
func executionStatus(err error) int {
	switch {
	case errors.Is(err, vault.ErrInvalidPin):
		return http.StatusUnauthorized
	case errors.Is(err, vault.ErrUnavailable), errors.Is(err, vault.ErrNotProvisioned):
		return http.StatusPreconditionFailed
	case errors.Is(err, swapengine.ErrChainPaused):
		return http.StatusServiceUnavailable
	case errors.Is(err, swapengine.ErrQuoteRejected),
		errors.Is(err, swapengine.ErrMissingTransactionData),
		errors.Is(err, swapengine.ErrSignerMismatch),
		errors.Is(err, swapengine.ErrUnsupportedChain),
		errors.Is(err, aggregator.ErrInvalidRequest):
		return http.StatusUnprocessableEntity
	case errors.Is(err, swapengine.ErrInsufficientNative):
		return http.StatusPaymentRequired
	case errors.Is(err, broadcast.ErrRejected):
		return http.StatusConflict
	case errors.Is(err, aggregator.ErrUnreachable),
		errors.Is(err, broadcast.ErrSubmissionFailed):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// quoteStatus maps an aggregator error to an HTTP status code.
func quoteStatus(err error) int {
	switch {
	case errors.Is(err, aggregator.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, aggregator.ErrNoRoute):
		return http.StatusNotFound
	case errors.Is(err, aggregator.ErrUnreachable), errors.Is(err, aggregator.ErrInvalidResponse):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
