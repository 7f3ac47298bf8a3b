package oracle

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"solana":{"usd":142.37}}`))
	}))
	defer srv.Close()

	f, err := NewHTTPFetcher(srv.Client(), srv.URL, "solana.usd", nil)
	if err != nil {
		t.Fatalf("new fetcher: %v", err)
	}

	rate, err := f.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if rate != 142.37 {
		t.Fatalf("rate = %v, want 142.37", rate)
	}
}

func TestHTTPFetcher_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			"http error status",
			func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusTooManyRequests) },
		},
		{
			"missing rate path",
			func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(`{"bitcoin":{"usd":50000}}`)) },
		},
		{
			"non-positive rate",
			func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(`{"solana":{"usd":0}}`)) },
		},
		{
			"not json",
			func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(`<html>`)) },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			f, err := NewHTTPFetcher(srv.Client(), srv.URL, "solana.usd", nil)
			if err != nil {
				t.Fatalf("new fetcher: %v", err)
			}
			if _, err := f.Fetch(context.Background()); !errors.Is(err, ErrUnavailable) {
				t.Fatalf("expected ErrUnavailable, got %v", err)
			}
		})
	}
}

func TestNewHTTPFetcher_RequiresEndpoint(t *testing.T) {
	if _, err := NewHTTPFetcher(nil, "  ", "solana.usd", nil); err == nil {
		t.Fatal("expected error for empty endpoint")
	}
}

func TestConvert(t *testing.T) {
	tests := []struct {
		name string
		rate float64
		fiat float64
		want int64
	}{
		{"one coin worth of fiat", 100, 100, 1_000_000_000},
		{"two dollars at a hundred", 100, 2, 20_000_000},
		{"rounds to nearest unit", 3, 1, 333_333_333},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(RateFetcherFunc(func(ctx context.Context) (float64, error) {
				return tt.rate, nil
			}), nil)

			got, err := c.Convert(context.Background(), tt.fiat)
			if err != nil {
				t.Fatalf("convert: %v", err)
			}
			if got != tt.want {
				t.Fatalf("convert(%v @ %v) = %d, want %d", tt.fiat, tt.rate, got, tt.want)
			}
		})
	}
}

func TestConvert_FetcherFailure(t *testing.T) {
	c := New(RateFetcherFunc(func(ctx context.Context) (float64, error) {
		return 0, errors.New("feed down")
	}), nil)

	if _, err := c.Convert(context.Background(), 10); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}

	c = New(RateFetcherFunc(func(ctx context.Context) (float64, error) {
		return -1, nil
	}), nil)
	if _, err := c.Convert(context.Background(), 10); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable for non-positive rate, got %v", err)
	}

	if _, err := New(nil, nil).Convert(context.Background(), 10); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable for nil fetcher, got %v", err)
	}
}
