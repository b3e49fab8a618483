package connector

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/galois26/walletwatch/internal/status"
	"github.com/galois26/walletwatch/internal/store"
)

const explorerAddr = "1Watched"

// explorerServer serves a fixed history for the watched address plus the raw
// previous transaction, counting /rawtx lookups.
func explorerServer(t *testing.T, history string, rawtxLookups *int64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/q/mytransactions/"+explorerAddr:
			w.Write([]byte(history))
		case strings.HasPrefix(r.URL.Path, "/rawtx/"):
			atomic.AddInt64(rawtxLookups, 1)
			w.Write([]byte(`{"hash":"t1","out":[{"address":"` + explorerAddr + `","value":5}]}`))
		default:
			http.NotFound(w, r)
		}
	}))
}

const spendHistory = `[
	{"hash":"t1","time":100,"in":[{"address":"1Alice"}],
	 "out":[{"address":"` + explorerAddr + `","value":5}]},
	{"hash":"t2","time":200,
	 "in":[{"address":"` + explorerAddr + `","prev_out":{"hash":"t1","n":0}}],
	 "out":[{"address":"` + explorerAddr + `","value":3},{"address":"1Bob","value":1.9}]}
]`

func newTestExplorer(sink status.Sink, srv *httptest.Server, st store.Store) *Explorer {
	env := testEnv(sink, srv.Client())
	if st != nil {
		env.Store = st
	}
	e := NewExplorer("watch", map[string]string{"address": explorerAddr}, env)
	e.BaseURL = srv.URL
	return e
}

func TestExplorerResolvesFees(t *testing.T) {
	var lookups int64
	srv := explorerServer(t, spendHistory, &lookups)
	defer srv.Close()

	sink := status.NewMemory()
	e := newTestExplorer(sink, srv, nil)
	if _, ok := e.Balance(); ok {
		t.Fatal("balance known before the first poll")
	}
	markConnected(&e.base)

	if got := e.step(context.Background()); got != e.env.LongDelay {
		t.Errorf("delay after a full snapshot = %v, want %v", got, e.env.LongDelay)
	}

	// 5 received, 1.9 sent away plus the resolved 0.1 fee.
	balance, ok := e.Balance()
	if !ok || !balance.Equal(dec("3")) {
		t.Fatalf("balance = %s, %v; want 3, true", balance, ok)
	}
	if got := sink.Status("watch", ""); got != "฿ 3.00" {
		t.Errorf("status = %q, want %q", got, "฿ 3.00")
	}
	if atomic.LoadInt64(&lookups) != 1 {
		t.Errorf("rawtx lookups = %d, want 1", lookups)
	}

	ledger := e.Ledger()
	if len(ledger) != 2 {
		t.Fatalf("got %d ledger entries, want 2", len(ledger))
	}
	if !ledger[0].Debit.Valid || !ledger[0].Debit.Decimal.Equal(dec("2")) {
		t.Errorf("newest entry = %+v, want debit 2", ledger[0])
	}
	if !ledger[1].Credit.Valid || !ledger[1].Credit.Decimal.Equal(dec("5")) {
		t.Errorf("oldest entry = %+v, want credit 5", ledger[1])
	}
	if e.HasError() {
		t.Error("HasError after a successful poll")
	}
}

func TestExplorerFeeCachePersistsAcrossInstances(t *testing.T) {
	var lookups int64
	srv := explorerServer(t, spendHistory, &lookups)
	defer srv.Close()

	st := store.NewMemory()
	first := newTestExplorer(status.NewMemory(), srv, st)
	markConnected(&first.base)
	first.step(context.Background())
	if atomic.LoadInt64(&lookups) != 1 {
		t.Fatalf("rawtx lookups after first poll = %d, want 1", lookups)
	}

	second := newTestExplorer(status.NewMemory(), srv, st)
	markConnected(&second.base)
	second.step(context.Background())
	if atomic.LoadInt64(&lookups) != 1 {
		t.Errorf("rawtx lookups after second instance = %d, want still 1", lookups)
	}
	balance, ok := second.Balance()
	if !ok || !balance.Equal(dec("3")) {
		t.Errorf("balance with cached fee = %s, %v; want 3, true", balance, ok)
	}
}

// rejectingStore accepts reads but fails every write.
type rejectingStore struct{ store.Store }

func (rejectingStore) SetItem(string, any) error { return errors.New("disk full") }

func TestExplorerFeePersistFailureKeepsResolution(t *testing.T) {
	var lookups int64
	srv := explorerServer(t, spendHistory, &lookups)
	defer srv.Close()

	sink := status.NewMemory()
	e := newTestExplorer(sink, srv, rejectingStore{store.NewMemory()})
	markConnected(&e.base)
	ctx := context.Background()

	e.step(ctx)
	balance, ok := e.Balance()
	if !ok || !balance.Equal(dec("3")) {
		t.Fatalf("balance = %s, %v; want 3, true despite the failed cache write", balance, ok)
	}
	if atomic.LoadInt64(&lookups) != 1 {
		t.Fatalf("rawtx lookups = %d, want 1", lookups)
	}

	// Nothing was cached, so the next cycle resolves the fee again.
	e.step(ctx)
	if atomic.LoadInt64(&lookups) != 2 {
		t.Errorf("rawtx lookups = %d, want 2 after the cache write failed", lookups)
	}
	balance, _ = e.Balance()
	if !balance.Equal(dec("3")) {
		t.Errorf("balance after re-resolution = %s, want 3", balance)
	}
}

func TestExplorerErrorResponses(t *testing.T) {
	tests := []struct {
		name string
		body string
		code int
	}{
		{"html error page", "<html><body>oops</body></html>", http.StatusOK},
		{"error envelope", `{"error":"Address not found"}`, http.StatusOK},
		{"empty body", "", http.StatusOK},
		{"server error", "boom", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.code)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			sink := status.NewMemory()
			e := newTestExplorer(sink, srv, nil)
			markConnected(&e.base)

			if got := e.step(context.Background()); got != e.env.ShortDelay {
				t.Errorf("delay = %v, want short %v while no snapshot exists", got, e.env.ShortDelay)
			}
			if !e.HasError() {
				t.Error("HasError = false after a failed poll")
			}
			if got := sink.Status("watch", ""); got != "ERROR" {
				t.Errorf("status = %q, want ERROR", got)
			}
			if _, ok := e.Balance(); ok {
				t.Error("balance known after a failed poll")
			}
		})
	}
}

func TestExplorerDisconnectSuppressesLateResponse(t *testing.T) {
	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-release
		w.Write([]byte(spendHistory))
	}))
	defer srv.Close()
	defer close(release)

	sink := status.NewMemory()
	e := newTestExplorer(sink, srv, nil)
	e.Connect()
	<-entered
	e.Disconnect()

	// The in-flight request has been cancelled with the loop; nothing from
	// it may surface.
	waitFor(t, "loop shutdown", func() bool {
		e.mu.Lock()
		defer e.mu.Unlock()
		return !e.connected
	})
	if _, ok := e.Balance(); ok {
		t.Error("balance set by a response arriving after Disconnect")
	}
	if got := sink.Status("watch", ""); got != "" {
		t.Errorf("status = %q, want none after Disconnect", got)
	}
}

func TestExplorerConnectIdempotent(t *testing.T) {
	var lookups int64
	srv := explorerServer(t, `[]`, &lookups)
	defer srv.Close()

	e := newTestExplorer(status.NewMemory(), srv, nil)
	defer e.Disconnect()
	if !e.Connect() || !e.Connect() {
		t.Fatal("Connect must report success")
	}
	waitFor(t, "first poll", func() bool {
		_, ok := e.Balance()
		return ok
	})
	balance, _ := e.Balance()
	if !balance.IsZero() {
		t.Errorf("empty history balance = %s, want 0", balance)
	}
	if !e.Disconnect() || !e.Disconnect() {
		t.Fatal("Disconnect must report success")
	}
	if _, ok := e.Balance(); ok {
		t.Error("snapshot survives Disconnect")
	}
}

func TestParseHistory(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantTxs int
		wantErr bool
	}{
		{"transaction list", `[{"hash":"a"},{"hash":"b"}]`, 2, false},
		{"empty list", `[]`, 0, false},
		{"error envelope", `{"error":"Address not found"}`, 0, true},
		{"html page", `<html>error</html>`, 0, true},
		{"blank", "  ", 0, true},
		{"object without error", `{"foo":1}`, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			txs, err := parseHistory([]byte(tt.body))
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if len(txs) != tt.wantTxs {
				t.Errorf("got %d transactions, want %d", len(txs), tt.wantTxs)
			}
		})
	}
}
