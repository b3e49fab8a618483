package price

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestCoinGeckoGetBTCPrice(t *testing.T) {
	var gotPath, gotQuery, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotKey = r.Header.Get("x-cg-pro-api-key")
		w.Write([]byte(`{"bitcoin":{"eur":12345.67}}`))
	}))
	defer srv.Close()

	cg := NewCoinGecko(srv.URL, "k123", "", 2*time.Second)
	p, err := cg.GetBTCPrice(context.Background(), "EUR")
	if err != nil {
		t.Fatal(err)
	}
	if p.Currency != "EUR" || p.Value != 12345.67 {
		t.Errorf("price = %+v", p)
	}
	if gotPath != "/simple/price" {
		t.Errorf("path = %q", gotPath)
	}
	if gotQuery != "ids=bitcoin&vs_currencies=eur" {
		t.Errorf("query = %q", gotQuery)
	}
	if gotKey != "k123" {
		t.Errorf("api key header = %q", gotKey)
	}
}

func TestCoinGeckoMissingCurrency(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"bitcoin":{"usd":100}}`))
	}))
	defer srv.Close()

	cg := NewCoinGecko(srv.URL, "", "", 2*time.Second)
	if _, err := cg.GetBTCPrice(context.Background(), "EUR"); err == nil {
		t.Fatal("expected an error for a missing fiat entry")
	}
}

func TestCoinGeckoHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	cg := NewCoinGecko(srv.URL, "", "", 2*time.Second)
	if _, err := cg.GetBTCPrice(context.Background(), "EUR"); err == nil {
		t.Fatal("expected an error for http 429")
	}
}
