package connector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/galois26/walletwatch/internal/metrics"
)

// Explorer watches a public address through the block explorer, replaying
// its full transaction history into a balance. No credentials are involved;
// only the address is configured.
type Explorer struct {
	base
	BaseURL string
	address string

	rec    reconciler
	result *reconcileResult
}

func NewExplorer(name string, params map[string]string, env Env) *Explorer {
	e := &Explorer{
		base:    newBase(name, env),
		BaseURL: "http://blockexplorer.com",
		address: params["address"],
	}
	e.rec = reconciler{address: e.address, fees: feeCache{store: e.env.Store}}
	return e
}

func (e *Explorer) Kind() Kind { return KindExplorer }

func (e *Explorer) Menu() []string { return []string{"Transactions"} }

func (e *Explorer) Connect() bool {
	return e.start(e.step, nil)
}

func (e *Explorer) Disconnect() bool {
	return e.stop(func() { e.result = nil })
}

func (e *Explorer) Balance() (decimal.Decimal, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.result == nil {
		return decimal.Decimal{}, false
	}
	return e.result.balance, true
}

func (e *Explorer) Ledger() []TransactionRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.result == nil {
		return nil
	}
	out := make([]TransactionRecord, len(e.result.entries))
	copy(out, e.result.entries)
	return out
}

// parseHistory distinguishes a real transaction list from the explorer's
// error pages: an HTML body fails to decode at all, and a JSON object with
// an error field is a reported failure, not history.
func parseHistory(body []byte) ([]rawTransaction, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, errEmptyBody
	}
	var txs []rawTransaction
	if err := json.Unmarshal(body, &txs); err == nil {
		return txs, nil
	}
	var envelope struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, errors.New("response is not transaction JSON")
	}
	if err := jsonError(envelope.Error); err != nil {
		return nil, err
	}
	return nil, errors.New("unexpected response shape")
}

func (e *Explorer) step(ctx context.Context) time.Duration {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.BaseURL+"/q/mytransactions/"+e.address, nil)
	var txs []rawTransaction
	if err == nil {
		var body []byte
		if body, err = fetchBody(e.env.Client, req); err == nil {
			txs, err = parseHistory(body)
		}
	}

	e.mu.Lock()
	if !e.connected {
		e.mu.Unlock()
		return 0
	}
	if err != nil {
		e.hasError = true
		hadResult := e.result != nil
		e.mu.Unlock()
		metrics.RecordPoll(e.name, false)
		e.env.Sink.SetStatus(e.name, "", "ERROR")
		return e.delay(hadResult)
	}
	e.hasError = false
	res := e.rec.reconcile(txs)
	e.result = &res
	balance := res.balance
	pending := res.pending
	e.mu.Unlock()

	metrics.RecordPoll(e.name, true)
	e.env.Sink.SetStatus(e.name, "", formatBTC(balance))
	e.env.Refresher.RefreshAggregateBalance()

	// Resolve unknown fees with secondary fetches of the previous
	// transactions, one at a time. Each resolution overwrites the
	// provisional debit, persists the fee and re-notifies. A failed fetch
	// leaves the provisional amount standing until the next cycle.
	for _, p := range pending {
		prevValue, err := e.fetchPrevOutValue(ctx, p)
		if err != nil {
			continue
		}
		e.mu.Lock()
		if !e.connected || e.result != &res {
			e.mu.Unlock()
			return 0
		}
		fee := res.applyFee(p, prevValue)
		balance = res.balance
		e.mu.Unlock()
		if err := e.rec.fees.put(p.prevHash, p.txHash, fee); err != nil {
			// The resolved entry stands; the fee is just looked up again on
			// the next cycle.
			log.Printf("account %q: persist fee for %s: %v", e.name, p.txHash, err)
		}
		e.env.Sink.SetStatus(e.name, "", formatBTC(balance))
		e.env.Refresher.RefreshAggregateBalance()
	}
	return e.env.LongDelay
}

// fetchPrevOutValue looks up the value of the spent output in the previous
// transaction.
func (e *Explorer) fetchPrevOutValue(ctx context.Context, p pendingFee) (decimal.Decimal, error) {
	var prev rawTransaction
	if err := getJSON(ctx, e.env.Client, e.BaseURL+"/rawtx/"+p.prevHash, &prev); err != nil {
		return decimal.Decimal{}, err
	}
	if p.prevIndex < 0 || p.prevIndex >= len(prev.Out) {
		return decimal.Decimal{}, fmt.Errorf("previous transaction %s has no output %d", p.prevHash, p.prevIndex)
	}
	return prev.Out[p.prevIndex].Value, nil
}

var _ Connector = (*Explorer)(nil)
