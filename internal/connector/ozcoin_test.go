package connector

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/galois26/walletwatch/internal/status"
)

func newTestOzCoin(sink status.Sink, srv *httptest.Server) *OzCoin {
	o := NewOzCoin("oz", map[string]string{"apiKey": "secret"}, testEnv(sink, srv.Client()))
	o.BaseURL = srv.URL
	return o
}

func TestOzCoinPoll(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantMining string
	}{
		{
			name:       "megahash rate",
			body:       `{"confirmed_rewards": "2.5", "hashrate": "500"}`,
			wantMining: "500.00 Mh/s",
		},
		{
			// OzCoin reports Mh/s; four digits read better as Gh/s.
			name:       "gigahash rate",
			body:       `{"confirmed_rewards": "2.5", "hashrate": "1250"}`,
			wantMining: "1.25 Gh/s",
		},
		{
			name:       "idle",
			body:       `{"confirmed_rewards": "2.5", "hashrate": "0"}`,
			wantMining: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			sink := status.NewMemory()
			o := newTestOzCoin(sink, srv)
			markConnected(&o.base)

			if got := o.step(context.Background()); got != o.env.LongDelay {
				t.Errorf("delay = %v, want %v", got, o.env.LongDelay)
			}
			balance, ok := o.Balance()
			if !ok || !balance.Equal(dec("2.5")) {
				t.Fatalf("balance = %s, %v; want 2.5, true", balance, ok)
			}
			if got := sink.Status("oz", ""); got != "฿ 2.50" {
				t.Errorf("status = %q, want %q", got, "฿ 2.50")
			}
			if got := sink.Status("oz", ChannelMining); got != tt.wantMining {
				t.Errorf("mining status = %q, want %q", got, tt.wantMining)
			}
		})
	}
}

func TestOzCoinInvalidAPIKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"confirmed_rewards": "0"}`))
	}))
	defer srv.Close()

	sink := status.NewMemory()
	o := newTestOzCoin(sink, srv)
	markConnected(&o.base)

	if got := o.step(context.Background()); got != o.env.LongDelay {
		t.Errorf("delay = %v, want %v", got, o.env.LongDelay)
	}
	if o.HasError() {
		t.Error("a rejected API key must not raise the error flag")
	}
	if got := sink.Status("oz", ""); got != msgInvalidAPIKey {
		t.Errorf("status = %q, want the invalid-key message", got)
	}
	if _, ok := o.Balance(); ok {
		t.Error("balance known despite a rejected key")
	}
}
