package connector

import (
	"net/http"
	"testing"
	"time"

	"github.com/galois26/walletwatch/internal/status"
	"github.com/galois26/walletwatch/internal/store"
)

// testEnv keeps the long delay out of reach so a single-shot assertion never
// races a second poll.
func testEnv(sink status.Sink, client *http.Client) Env {
	return Env{
		Sink:       sink,
		Store:      store.NewMemory(),
		Client:     client,
		ShortDelay: time.Millisecond,
		LongDelay:  time.Hour,
	}
}

// markConnected puts a connector into the connected state without starting
// the polling loop, so tests can drive step by step deterministically.
func markConnected(b *base) {
	b.mu.Lock()
	b.connected = true
	b.cancel = func() {}
	b.mu.Unlock()
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

type countingRefresher struct {
	ch chan struct{}
}

func newCountingRefresher() *countingRefresher {
	return &countingRefresher{ch: make(chan struct{}, 64)}
}

func (r *countingRefresher) RefreshAggregateBalance() {
	select {
	case r.ch <- struct{}{}:
	default:
	}
}

func (r *countingRefresher) count() int { return len(r.ch) }
