// Package oracle converts fiat prices into the payment network's native
// unit using a live exchange rate. Rates are never cached; every conversion
// hits the feed so callers always price against the current market.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/roastrush/game-server/pkg/logger"
)

// ErrUnavailable is returned when the rate feed cannot produce a usable
// rate. Callers must tolerate it on every conversion.
var ErrUnavailable = errors.New("price oracle unavailable")

// nativePerWhole is the number of native units in one whole coin.
const nativePerWhole = 1e9

// RateFetcher retrieves the current native-coin/fiat exchange rate.
type RateFetcher interface {
	Fetch(ctx context.Context) (float64, error)
}

// RateFetcherFunc adapts a function to the RateFetcher interface.
type RateFetcherFunc func(ctx context.Context) (float64, error)

func (f RateFetcherFunc) Fetch(ctx context.Context) (float64, error) {
	return f(ctx)
}

// HTTPFetcher reads {"solana":{"usd":<rate>}} style documents from a public
// price endpoint.
type HTTPFetcher struct {
	client   *http.Client
	endpoint string
	path     string
	log      *logger.Logger
}

// NewHTTPFetcher builds a fetcher for the endpoint. path is the gjson path
// of the rate inside the response document, e.g. "solana.usd".
func NewHTTPFetcher(client *http.Client, endpoint, path string, log *logger.Logger) (*HTTPFetcher, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("endpoint required")
	}
	if path == "" {
		path = "solana.usd"
	}
	if client == nil {
		client = http.DefaultClient
	}
	if log == nil {
		log = logger.NewDefault("oracle-fetcher")
	}
	return &HTTPFetcher{client: client, endpoint: endpoint, path: path, log: log}, nil
}

func (f *HTTPFetcher) Fetch(ctx context.Context) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("%w: feed returned %d", ErrUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	rate := gjson.GetBytes(body, f.path)
	if !rate.Exists() || rate.Float() <= 0 {
		return 0, fmt.Errorf("%w: no rate at %q", ErrUnavailable, f.path)
	}
	return rate.Float(), nil
}

// Client converts fiat amounts through an injected rate fetcher.
type Client struct {
	fetcher RateFetcher
	log     *logger.Logger
}

// New constructs an oracle client.
func New(fetcher RateFetcher, log *logger.Logger) *Client {
	if log == nil {
		log = logger.NewDefault("oracle")
	}
	return &Client{fetcher: fetcher, log: log}
}

// Convert turns a fiat amount into native units at the current rate.
func (c *Client) Convert(ctx context.Context, fiatAmount float64) (int64, error) {
	if c.fetcher == nil {
		return 0, ErrUnavailable
	}

	rate, err := c.fetcher.Fetch(ctx)
	if err != nil {
		c.log.WithError(err).Warn("rate fetch failed")
		if errors.Is(err, ErrUnavailable) {
			return 0, err
		}
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if rate <= 0 {
		return 0, ErrUnavailable
	}

	native := int64(math.Round(fiatAmount / rate * nativePerWhole))
	return native, nil
}
