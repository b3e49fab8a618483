package connector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// errEmptyBody marks a 200 response with nothing in it, which some of the
// remote APIs produce instead of a proper error status.
var errEmptyBody = errors.New("empty response body")

// base holds the lifecycle state shared by every connector variant. It is
// embedded, not exported; the variant's step function does the actual work.
type base struct {
	name string
	env  Env

	mu        sync.Mutex
	connected bool
	hasError  bool
	cancel    context.CancelFunc
}

func newBase(name string, env Env) base {
	return base{name: name, env: env.withDefaults()}
}

func (b *base) Name() string { return b.name }

func (b *base) HasError() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hasError
}

// start begins the polling loop if not already running. reset runs under the
// lock before the loop starts so the variant can initialize its request
// state.
func (b *base) start(step func(context.Context) time.Duration, reset func()) bool {
	b.mu.Lock()
	if b.connected {
		b.mu.Unlock()
		return true
	}
	b.connected = true
	b.hasError = false
	if reset != nil {
		reset()
	}
	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	b.mu.Unlock()
	go runLoop(ctx, step)
	return true
}

// stop cancels the loop and clears shared state. clear runs under the lock
// so the variant can drop its cached snapshot.
func (b *base) stop(clear func()) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.connected {
		return true
	}
	b.connected = false
	b.hasError = false
	b.cancel()
	b.cancel = nil
	if clear != nil {
		clear()
	}
	return true
}

// delay picks the gap before the next request: a short one while the
// connector is still filling its first snapshot, a long one afterwards to
// respect third-party rate limits. Errors do not change the cadence.
func (b *base) delay(hasSnapshot bool) time.Duration {
	if hasSnapshot {
		return b.env.LongDelay
	}
	return b.env.ShortDelay
}

// runLoop drives a connector: execute one step, sleep for the delay it
// returns, repeat. The first step runs immediately. Cancelling ctx (via
// Disconnect) ends the loop; an in-flight request is cancelled with it.
func runLoop(ctx context.Context, step func(context.Context) time.Duration) {
	var delay time.Duration
	for {
		if delay > 0 {
			t := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				t.Stop()
				return
			case <-t.C:
			}
		} else if ctx.Err() != nil {
			return
		}
		delay = step(ctx)
	}
}

// fetchBody performs one HTTP request and applies the shared error taxonomy:
// transport failures, non-200 statuses and empty bodies all come back as
// errors; the caller decides what a valid body means.
func fetchBody(client *http.Client, req *http.Request) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return nil, errEmptyBody
	}
	return body, nil
}

func getJSON(ctx context.Context, client *http.Client, url string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	body, err := fetchBody(client, req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
