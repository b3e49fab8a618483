package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/galois26/walletwatch/internal/metrics"
)

// MtGox polls the MtGox exchange. Each cycle visits one of two endpoints in
// strict rotation, so funds and open orders each refresh every second
// polling period. Authentication is form-encoded username/password.
type MtGox struct {
	base
	BaseURL  string
	username string
	password string

	cursor  int
	balance *decimal.Decimal
	orders  []GoxOrder
}

var goxPages = []string{"getFunds.php", "getOrders.php"}

const (
	goxPageFunds = iota
	goxPageOrders
)

// GoxOrder is one open order on the exchange.
type GoxOrder struct {
	Type     int             `json:"type"` // 1 = sell, 2 = buy
	Amount   decimal.Decimal `json:"amount"`
	Price    decimal.Decimal `json:"price"`
	Item     string          `json:"item"`
	Currency string          `json:"currency"`
	Status   string          `json:"real_status"`
	Date     int64           `json:"date"`
}

// Side renders the order type for display.
func (o GoxOrder) Side() string {
	switch o.Type {
	case 1:
		return "Selling"
	case 2:
		return "Buying"
	}
	return "Unknown"
}

type goxFunds struct {
	Error json.RawMessage `json:"error"`
	BTCs  decimal.Decimal `json:"btcs"`
}

type goxOrders struct {
	Error  json.RawMessage `json:"error"`
	Orders []GoxOrder      `json:"orders"`
}

func NewMtGox(name string, params map[string]string, env Env) *MtGox {
	return &MtGox{
		base:     newBase(name, env),
		BaseURL:  "https://mtgox.com/code/",
		username: params["username"],
		password: params["password"],
	}
}

func (m *MtGox) Kind() Kind { return KindMtGox }

func (m *MtGox) Menu() []string { return []string{"Open Orders"} }

func (m *MtGox) Ledger() []TransactionRecord { return nil }

func (m *MtGox) Connect() bool {
	return m.start(m.step, func() { m.cursor = goxPageFunds })
}

func (m *MtGox) Disconnect() bool {
	return m.stop(func() {
		m.balance = nil
		m.orders = nil
	})
}

func (m *MtGox) Balance() (decimal.Decimal, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.balance == nil {
		return decimal.Decimal{}, false
	}
	return *m.balance, true
}

// Orders returns the last seen open orders.
func (m *MtGox) Orders() []GoxOrder {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]GoxOrder, len(m.orders))
	copy(out, m.orders)
	return out
}

// post sends the credential form to one exchange page.
func (m *MtGox) post(ctx context.Context, page string) ([]byte, error) {
	form := url.Values{}
	form.Set("name", m.username)
	form.Set("pass", m.password)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.BaseURL+page, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return fetchBody(m.env.Client, req)
}

func jsonError(raw json.RawMessage) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return fmt.Errorf("remote error: %s", raw)
}

func (m *MtGox) step(ctx context.Context) time.Duration {
	m.mu.Lock()
	page := m.cursor
	m.mu.Unlock()

	body, err := m.post(ctx, goxPages[page])

	var balance *decimal.Decimal
	var orders []GoxOrder
	if err == nil {
		switch page {
		case goxPageFunds:
			var funds goxFunds
			if err = json.Unmarshal(body, &funds); err == nil {
				err = jsonError(funds.Error)
			}
			if err == nil {
				balance = &funds.BTCs
			}
		case goxPageOrders:
			var resp goxOrders
			if err = json.Unmarshal(body, &resp); err == nil {
				err = jsonError(resp.Error)
			}
			if err == nil {
				orders = resp.Orders
			}
		}
	}

	m.mu.Lock()
	if !m.connected {
		m.mu.Unlock()
		return 0
	}
	// The rotation advances whether or not the request succeeded.
	m.cursor = (page + 1) % len(goxPages)
	if err != nil {
		m.hasError = true
		hadBalance := m.balance != nil
		m.mu.Unlock()
		metrics.RecordPoll(m.name, false)
		m.env.Sink.SetStatus(m.name, "", "ERROR")
		return m.delay(hadBalance)
	}
	m.hasError = false
	switch page {
	case goxPageFunds:
		m.balance = balance
	case goxPageOrders:
		m.orders = orders
	}
	notifyBalance := m.balance
	m.mu.Unlock()

	metrics.RecordPoll(m.name, true)
	if notifyBalance != nil {
		m.env.Sink.SetStatus(m.name, "", formatBTC(*notifyBalance))
	}
	if page == goxPageFunds {
		m.env.Refresher.RefreshAggregateBalance()
	}
	return m.delay(notifyBalance != nil)
}

var _ Connector = (*MtGox)(nil)
