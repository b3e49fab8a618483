// Package connector implements the account connectors: one per remote
// balance source, all satisfying the same lifecycle contract. A connector
// owns a single polling goroutine issuing strictly sequential requests; it
// publishes derived state through the status sink and asks the balance
// refresher to recompute the aggregate after every balance-bearing poll.
package connector

import (
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/galois26/walletwatch/internal/status"
	"github.com/galois26/walletwatch/internal/store"
)

// Kind identifies a connector variant. The string values double as the
// persisted "type" field of an account configuration.
type Kind string

const (
	KindLocalNode Kind = "RPC"
	KindBTCGuild  Kind = "BTCGuild"
	KindOzCoin    Kind = "OzCoin"
	KindMtGox     Kind = "MtGox"
	KindExplorer  Kind = "Explorer"
)

// TransactionRecord is one reconciled ledger entry. Exactly one of Debit and
// Credit is valid.
type TransactionRecord struct {
	Time        time.Time
	Description string
	Debit       decimal.NullDecimal
	Credit      decimal.NullDecimal
}

// Connector is the lifecycle contract every account variant implements.
type Connector interface {
	Name() string
	Kind() Kind

	// Connect is idempotent; it returns true immediately when already
	// connected, otherwise starts the polling loop. The first request fires
	// without delay.
	Connect() bool
	// Disconnect is idempotent; it stops the polling loop and clears all
	// cached state. Responses arriving afterwards are discarded. Persisted
	// configuration is untouched.
	Disconnect() bool

	// Balance reports the best-known balance; ok is false until the first
	// successful poll has completed.
	Balance() (decimal.Decimal, bool)
	// Menu lists the connector's sub-views; nil means only the default view.
	Menu() []string
	// Ledger returns reconciled transactions, most recent first, or nil
	// where the variant has no ledger.
	Ledger() []TransactionRecord
	// HasError reports whether the last poll attempt failed. It is distinct
	// from "no data yet".
	HasError() bool
}

// BalanceRefresher is how a connector asks its owner to recompute the
// aggregate balance.
type BalanceRefresher interface {
	RefreshAggregateBalance()
}

// Env carries the collaborators a connector needs. Zero fields are replaced
// with working defaults so tests can supply only what they observe.
type Env struct {
	Sink       status.Sink
	Refresher  BalanceRefresher
	Store      store.Store
	Client     *http.Client
	ShortDelay time.Duration
	LongDelay  time.Duration
}

func (e Env) withDefaults() Env {
	if e.Sink == nil {
		e.Sink = nopSink{}
	}
	if e.Refresher == nil {
		e.Refresher = nopRefresher{}
	}
	if e.Store == nil {
		e.Store = store.NewMemory()
	}
	if e.Client == nil {
		e.Client = &http.Client{Timeout: 30 * time.Second}
	}
	if e.ShortDelay == 0 {
		e.ShortDelay = 500 * time.Millisecond
	}
	if e.LongDelay == 0 {
		e.LongDelay = time.Minute
	}
	return e
}

type nopSink struct{}

func (nopSink) SetStatus(string, string, string) {}
func (nopSink) SetAggregate(string)              {}
func (nopSink) RefreshSidebar()                  {}

type nopRefresher struct{}

func (nopRefresher) RefreshAggregateBalance() {}

// New constructs a connector of the given kind. It fails on an unknown
// kind, a missing declared parameter or an undeclared one; the parameter
// keys of a persisted account are exactly the declared set.
func New(kind Kind, name string, params map[string]string, env Env) (Connector, error) {
	desc, ok := DescriptorFor(kind)
	if !ok {
		return nil, fmt.Errorf("unknown account type %q", kind)
	}
	for _, p := range desc.Parameters {
		if _, ok := params[p.Name]; !ok {
			return nil, fmt.Errorf("account type %q requires parameter %q", kind, p.Name)
		}
	}
	for key := range params {
		if !desc.hasParameter(key) {
			return nil, fmt.Errorf("account type %q has no parameter %q", kind, key)
		}
	}
	switch kind {
	case KindLocalNode:
		return NewLocalNode(name, params, env), nil
	case KindBTCGuild:
		return NewBTCGuild(name, params, env), nil
	case KindOzCoin:
		return NewOzCoin(name, params, env), nil
	case KindMtGox:
		return NewMtGox(name, params, env), nil
	case KindExplorer:
		return NewExplorer(name, params, env), nil
	}
	return nil, fmt.Errorf("unknown account type %q", kind)
}

// formatBTC renders a balance for the primary status channel.
func formatBTC(d decimal.Decimal) string {
	return "฿ " + d.StringFixed(2)
}
