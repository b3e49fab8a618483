// Package manager owns the configured account connectors: loading and
// persisting their configuration, replacing live instances on edit, and
// aggregating the total balance across all of them.
package manager

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/galois26/walletwatch/internal/connector"
	"github.com/galois26/walletwatch/internal/metrics"
	"github.com/galois26/walletwatch/internal/price"
	"github.com/galois26/walletwatch/internal/status"
	"github.com/galois26/walletwatch/internal/store"
)

// accountsKey is the storage key holding the ordered account configuration
// list.
const accountsKey = "global-accounts"

var (
	ErrEmptyName     = errors.New("account name must not be empty")
	ErrDuplicateName = errors.New("an account with this name already exists")
	ErrNotFound      = errors.New("no such account")
)

// AccountConfig is one persisted account. The JSON field names are part of
// the stored data format; do not rename them.
type AccountConfig struct {
	Name       string            `json:"name"`
	Kind       connector.Kind    `json:"type"`
	Parameters map[string]string `json:"parameters"`
}

type Manager struct {
	store store.Store
	sink  status.Sink
	env   connector.Env

	mu       sync.Mutex
	accounts map[string]connector.Connector
	order    []string

	// factory is a seam for tests; the default constructs real connectors.
	factory func(cfg AccountConfig) (connector.Connector, error)

	priceMu       sync.RWMutex
	priceProvider price.Provider
	priceCurrency string
	priceTTL      time.Duration
	priceVal      float64
	priceUntil    time.Time
}

// New builds a Manager. env supplies the HTTP client and poll delays shared
// by all connectors; the manager fills in the store, sink and itself as the
// balance refresher.
func New(st store.Store, sink status.Sink, env connector.Env) *Manager {
	m := &Manager{
		store:    st,
		sink:     sink,
		accounts: make(map[string]connector.Connector),
	}
	env.Store = st
	env.Sink = sink
	env.Refresher = m
	m.env = env
	m.factory = func(cfg AccountConfig) (connector.Connector, error) {
		return connector.New(cfg.Kind, cfg.Name, cfg.Parameters, m.env)
	}
	return m
}

// SetPriceProvider enables fiat conversion of the aggregate balance.
func (m *Manager) SetPriceProvider(p price.Provider, currency string, ttl time.Duration) {
	m.priceMu.Lock()
	m.priceProvider = p
	m.priceCurrency = currency
	m.priceTTL = ttl
	m.priceMu.Unlock()
}

func (m *Manager) loadConfigs() ([]AccountConfig, error) {
	var cfgs []AccountConfig
	if _, err := m.store.GetItem(accountsKey, &cfgs); err != nil {
		return nil, fmt.Errorf("load accounts: %w", err)
	}
	return cfgs, nil
}

// LoadAll reads the persisted account list, constructs and connects one
// connector per entry. An entry that fails to construct is logged and
// skipped; it never blocks the others.
func (m *Manager) LoadAll() error {
	cfgs, err := m.loadConfigs()
	if err != nil {
		return err
	}
	var started []connector.Connector
	m.mu.Lock()
	for _, cfg := range cfgs {
		c, err := m.factory(cfg)
		if err != nil {
			log.Printf("account %q: %v", cfg.Name, err)
			continue
		}
		m.accounts[cfg.Name] = c
		m.order = append(m.order, cfg.Name)
		started = append(started, c)
	}
	m.mu.Unlock()
	for _, c := range started {
		c.Connect()
	}
	m.sink.RefreshSidebar()
	return nil
}

// Create validates, persists and connects a new account. Nothing is
// persisted or instantiated when validation fails.
func (m *Manager) Create(kind connector.Kind, name string, params map[string]string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyName
	}
	cfgs, err := m.loadConfigs()
	if err != nil {
		return err
	}
	m.mu.Lock()
	if _, ok := m.accounts[name]; ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateName, name)
	}
	for _, cfg := range cfgs {
		if cfg.Name == name {
			m.mu.Unlock()
			return fmt.Errorf("%w: %s", ErrDuplicateName, name)
		}
	}
	cfg := AccountConfig{Name: name, Kind: kind, Parameters: params}
	c, err := m.factory(cfg)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	if err := m.store.SetItem(accountsKey, append(cfgs, cfg)); err != nil {
		m.mu.Unlock()
		return err
	}
	m.accounts[name] = c
	m.order = append(m.order, name)
	m.mu.Unlock()
	c.Connect()
	m.sink.RefreshSidebar()
	return nil
}

// Update persists new parameters and replaces the live connector with a
// freshly constructed one; a live instance is never mutated in place.
func (m *Manager) Update(name string, params map[string]string) error {
	cfgs, err := m.loadConfigs()
	if err != nil {
		return err
	}
	idx := -1
	for i, cfg := range cfgs {
		if cfg.Name == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	cfgs[idx].Parameters = params
	replacement, err := m.factory(cfgs[idx])
	if err != nil {
		return err
	}
	if err := m.store.SetItem(accountsKey, cfgs); err != nil {
		return err
	}
	m.mu.Lock()
	old, wasLive := m.accounts[name]
	m.accounts[name] = replacement
	if !wasLive {
		// The account was persisted but skipped at load time; it joins the
		// live set now.
		m.order = append(m.order, name)
	}
	m.mu.Unlock()
	if old != nil {
		old.Disconnect()
	}
	replacement.Connect()
	return nil
}

// Delete disconnects and removes an account from the persisted list and the
// live collection. Nothing of it remains except any fee-cache entries, which
// are keyed by transaction and stay valid.
func (m *Manager) Delete(name string) error {
	cfgs, err := m.loadConfigs()
	if err != nil {
		return err
	}
	kept := cfgs[:0]
	found := false
	for _, cfg := range cfgs {
		if cfg.Name == name {
			found = true
			continue
		}
		kept = append(kept, cfg)
	}
	m.mu.Lock()
	c, live := m.accounts[name]
	m.mu.Unlock()
	if !found && !live {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if live {
		c.Disconnect()
	}
	if err := m.store.SetItem(accountsKey, kept); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.accounts, name)
	for i, n := range m.order {
		if n == name {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	m.mu.Unlock()
	metrics.AccountBalance.DeleteLabelValues(name)
	m.sink.RefreshSidebar()
	return nil
}

// Get returns a live connector by account name.
func (m *Manager) Get(name string) (connector.Connector, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.accounts[name]
	return c, ok
}

// Names lists live accounts in configuration order.
func (m *Manager) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

// Balance sums every connector's balance, treating not-yet-known as zero,
// rounded to satoshi precision to avoid drift.
func (m *Manager) Balance() decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := decimal.Zero
	for _, name := range m.order {
		c := m.accounts[name]
		if c == nil {
			continue
		}
		if b, ok := c.Balance(); ok {
			total = total.Add(b)
			metrics.AccountBalance.WithLabelValues(name).Set(b.InexactFloat64())
		}
	}
	return total.Round(8)
}

// RefreshAggregateBalance recomputes the total, formats it for display and
// pushes it to the sink and the metrics gauges. Connectors call this after
// every balance-bearing poll.
func (m *Manager) RefreshAggregateBalance() {
	total := m.Balance()
	metrics.AggregateBalance.Set(total.InexactFloat64())
	m.sink.SetAggregate(FormatBadge(total))
	if p, currency := m.pricing(); p != nil {
		if val := m.priceCached(); val > 0 {
			metrics.SetFiat(currency, total.InexactFloat64()*val)
		}
	}
}

// DisconnectAll stops every connector; used at daemon shutdown.
func (m *Manager) DisconnectAll() {
	m.mu.Lock()
	conns := make([]connector.Connector, 0, len(m.accounts))
	for _, c := range m.accounts {
		conns = append(conns, c)
	}
	m.mu.Unlock()
	for _, c := range conns {
		c.Disconnect()
	}
}

func (m *Manager) pricing() (price.Provider, string) {
	m.priceMu.RLock()
	defer m.priceMu.RUnlock()
	return m.priceProvider, m.priceCurrency
}

// priceCached reads or refreshes the cached BTC price; a fetch failure
// yields 0 and the fiat gauge simply goes stale.
func (m *Manager) priceCached() float64 {
	m.priceMu.RLock()
	if time.Now().Before(m.priceUntil) && m.priceVal > 0 {
		val := m.priceVal
		m.priceMu.RUnlock()
		return val
	}
	provider := m.priceProvider
	currency := m.priceCurrency
	ttl := m.priceTTL
	m.priceMu.RUnlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	p, err := provider.GetBTCPrice(ctx, currency)
	if err != nil {
		return 0
	}
	m.priceMu.Lock()
	m.priceVal = p.Value
	m.priceUntil = time.Now().Add(ttl)
	m.priceMu.Unlock()
	return p.Value
}

// FormatBadge renders the aggregate for the badge: growing totals trade
// decimals for a k suffix.
func FormatBadge(total decimal.Decimal) string {
	switch {
	case total.LessThan(decimal.NewFromInt(10)):
		return total.StringFixed(2)
	case total.LessThan(decimal.NewFromInt(100)):
		return total.StringFixed(1)
	case total.LessThan(decimal.NewFromInt(1000)):
		return total.StringFixed(0)
	case total.LessThan(decimal.NewFromInt(10000)):
		return total.Div(decimal.NewFromInt(1000)).StringFixed(1) + "k"
	default:
		return total.Div(decimal.NewFromInt(1000)).StringFixed(0) + "k"
	}
}
