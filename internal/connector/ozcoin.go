package connector

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/galois26/walletwatch/internal/metrics"
)

// OzCoin polls the OzCoin mining pool API. Unlike BTCGuild the pool reports
// a single account-wide hash rate rather than per-worker figures.
type OzCoin struct {
	base
	BaseURL string
	apiKey  string

	snapshot *ozSnapshot
}

type ozSnapshot struct {
	ConfirmedRewards decimal.Decimal `json:"confirmed_rewards"`
	// Missing on a structurally valid response when the API key was
	// rejected.
	HashRate *decimal.Decimal `json:"hashrate"`
}

func NewOzCoin(name string, params map[string]string, env Env) *OzCoin {
	return &OzCoin{
		base:    newBase(name, env),
		BaseURL: "https://ozco.in/api.php",
		apiKey:  params["apiKey"],
	}
}

func (o *OzCoin) Kind() Kind { return KindOzCoin }

func (o *OzCoin) Menu() []string { return []string{ChannelMining} }

func (o *OzCoin) Ledger() []TransactionRecord { return nil }

func (o *OzCoin) Connect() bool {
	return o.start(o.step, nil)
}

func (o *OzCoin) Disconnect() bool {
	return o.stop(func() { o.snapshot = nil })
}

func (o *OzCoin) Balance() (decimal.Decimal, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.snapshot == nil {
		return decimal.Decimal{}, false
	}
	return o.snapshot.ConfirmedRewards, true
}

func (o *OzCoin) step(ctx context.Context) time.Duration {
	var snap ozSnapshot
	err := getJSON(ctx, o.env.Client, o.BaseURL+"?api_key="+url.QueryEscape(o.apiKey), &snap)

	o.mu.Lock()
	if !o.connected {
		o.mu.Unlock()
		return 0
	}
	if err != nil {
		o.hasError = true
		hadSnap := o.snapshot != nil
		o.mu.Unlock()
		metrics.RecordPoll(o.name, false)
		o.env.Sink.SetStatus(o.name, "", "ERROR")
		o.env.Sink.SetStatus(o.name, ChannelMining, "")
		return o.delay(hadSnap)
	}
	o.hasError = false
	if snap.HashRate == nil {
		o.snapshot = nil
		o.mu.Unlock()
		metrics.RecordPoll(o.name, true)
		o.env.Sink.SetStatus(o.name, "", msgInvalidAPIKey)
		o.env.Sink.SetStatus(o.name, ChannelMining, "")
		return o.env.LongDelay
	}
	o.snapshot = &snap
	balance := snap.ConfirmedRewards
	rate := snap.HashRate.InexactFloat64()
	o.mu.Unlock()

	metrics.RecordPoll(o.name, true)
	o.env.Sink.SetStatus(o.name, "", formatBTC(balance))
	switch {
	case rate <= 0:
		o.env.Sink.SetStatus(o.name, ChannelMining, "")
	case rate >= 1000:
		// The pool reports Mh/s directly.
		o.env.Sink.SetStatus(o.name, ChannelMining, fmt.Sprintf("%.2f Gh/s", rate/1000))
	default:
		o.env.Sink.SetStatus(o.name, ChannelMining, fmt.Sprintf("%.2f Mh/s", rate))
	}
	o.env.Refresher.RefreshAggregateBalance()
	return o.env.LongDelay
}

var _ Connector = (*OzCoin)(nil)
