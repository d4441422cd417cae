// Package base holds transport helpers shared by the Binance gateway adapters.
package base

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/adshao/go-binance/v2/common"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/shopspring/decimal"
)

const defaultHTTPTimeout = 10 * time.Second

// Binance error codes worth retrying: UNKNOWN, DISCONNECTED, TOO_MANY_REQUESTS,
// TIMEOUT. Everything else is a definitive answer from the exchange.
var retryableAPICodes = map[int64]bool{
	-1000: true,
	-1001: true,
	-1003: true,
	-1007: true,
}

// IsTransient reports whether an error is a transient transport failure that
// a bounded retry may resolve.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		return retryableAPICodes[apiErr.Code]
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	// Anything else that is not an exchange-level rejection is assumed to be
	// a transport hiccup.
	return true
}

// NewRetryPolicy builds the bounded retry policy applied to every REST call.
func NewRetryPolicy[T any]() retrypolicy.RetryPolicy[T] {
	return retrypolicy.NewBuilder[T]().
		HandleIf(func(_ T, err error) bool { return IsTransient(err) }).
		WithBackoff(100*time.Millisecond, 2*time.Second).
		WithMaxRetries(3).
		Build()
}

// NewHTTPClient builds the HTTP client for a gateway, optionally routed
// through a proxy.
func NewHTTPClient(proxyURL string) (*http.Client, error) {
	client := &http.Client{Timeout: defaultHTTPTimeout}
	if proxyURL == "" {
		return client, nil
	}
	u, err := url.Parse(proxyURL)
	if err != nil {
		return nil, err
	}
	client.Transport = &http.Transport{Proxy: http.ProxyURL(u)}
	return client, nil
}

// ParseSymbolFilters extracts tick size, step size and minimum notional from
// a raw exchange-info filter list. Binance spot reports the minimum notional
// under MIN_NOTIONAL or NOTIONAL depending on the endpoint generation.
func ParseSymbolFilters(filters []map[string]interface{}) (tickSize, stepSize, minNotional decimal.Decimal) {
	for _, f := range filters {
		filterType, _ := f["filterType"].(string)
		switch filterType {
		case "PRICE_FILTER":
			tickSize = decimalField(f, "tickSize")
		case "LOT_SIZE":
			stepSize = decimalField(f, "stepSize")
		case "MIN_NOTIONAL":
			minNotional = decimalField(f, "minNotional")
		case "NOTIONAL":
			if minNotional.IsZero() {
				minNotional = decimalField(f, "minNotional")
			}
		}
	}
	return tickSize, stepSize, minNotional
}

func decimalField(f map[string]interface{}, key string) decimal.Decimal {
	s, _ := f[key].(string)
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
