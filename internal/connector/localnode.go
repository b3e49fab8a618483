package connector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/galois26/walletwatch/internal/metrics"
)

// LocalNode polls a bitcoin server over JSON-RPC with HTTP basic auth. One
// polling cycle issues getinfo, listtransactions, listaccounts and then
// getaddressesbyaccount once per discovered account before wrapping around.
type LocalNode struct {
	base
	BaseURL  string
	username string
	password string

	cursor    rpcCursor
	info      *nodeInfo
	ledger    []TransactionRecord
	accounts  []string
	addresses map[string][]string
}

// Outer cursor positions, in cycle order.
const (
	rpcGetInfo = iota
	rpcListTransactions
	rpcListAccounts
	rpcGetAddresses
	rpcPhases
)

// rpcCursor is the polling position: the outer request index plus the
// account sub-step inside the getaddressesbyaccount position.
type rpcCursor struct {
	phase int
	sub   int
}

// advance moves to the next position. Sub-stepping holds the outer cursor at
// getaddressesbyaccount until every discovered account has been visited; an
// empty account list skips the position entirely.
func (c rpcCursor) advance(accountCount int) rpcCursor {
	if c.phase == rpcGetAddresses {
		if c.sub+1 < accountCount {
			return rpcCursor{phase: rpcGetAddresses, sub: c.sub + 1}
		}
		return rpcCursor{}
	}
	if c.phase == rpcListAccounts && accountCount == 0 {
		return rpcCursor{}
	}
	return rpcCursor{phase: c.phase + 1}
}

type nodeInfo struct {
	Balance      decimal.Decimal `json:"balance"`
	Blocks       int64           `json:"blocks"`
	Connections  int64           `json:"connections"`
	Generate     bool            `json:"generate"`
	HashesPerSec float64         `json:"hashespersec"`
}

type walletTransaction struct {
	Account  string          `json:"account"`
	Address  string          `json:"address"`
	Category string          `json:"category"`
	Amount   decimal.Decimal `json:"amount"`
	Fee      decimal.Decimal `json:"fee"`
	Time     int64           `json:"time"`
}

type rpcRequest struct {
	Jsonrpc string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  json.RawMessage `json:"error"`
}

func NewLocalNode(name string, params map[string]string, env Env) *LocalNode {
	return &LocalNode{
		base:     newBase(name, env),
		BaseURL:  fmt.Sprintf("http://%s:%s/", params["host"], params["port"]),
		username: params["username"],
		password: params["password"],
	}
}

func (n *LocalNode) Kind() Kind { return KindLocalNode }

func (n *LocalNode) Menu() []string {
	return []string{"Transactions", ChannelMining}
}

func (n *LocalNode) Connect() bool {
	return n.start(n.step, func() { n.cursor = rpcCursor{} })
}

func (n *LocalNode) Disconnect() bool {
	return n.stop(func() {
		n.info = nil
		n.ledger = nil
		n.accounts = nil
		n.addresses = nil
	})
}

func (n *LocalNode) Balance() (decimal.Decimal, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.info == nil {
		return decimal.Decimal{}, false
	}
	return n.info.Balance, true
}

func (n *LocalNode) Ledger() []TransactionRecord {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]TransactionRecord, len(n.ledger))
	copy(out, n.ledger)
	return out
}

// Accounts lists the wallet accounts discovered by listaccounts, sorted.
func (n *LocalNode) Accounts() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.accounts))
	copy(out, n.accounts)
	return out
}

// AddressesFor returns the receiving addresses of one wallet account.
func (n *LocalNode) AddressesFor(account string) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.addresses[account]))
	copy(out, n.addresses[account])
	return out
}

// SetGenerate toggles mining on the server. It runs outside the polling
// loop; the new state shows up on the next getinfo poll.
func (n *LocalNode) SetGenerate(enable bool) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	_, err := n.call(ctx, "setgenerate", enable)
	return err
}

// call issues one JSON-RPC request.
func (n *LocalNode) call(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	reqBody, err := json.Marshal(rpcRequest{
		Jsonrpc: "1.0",
		ID:      1,
		Method:  method,
		Params:  append([]any{}, params...),
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.BaseURL, bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(n.username, n.password)
	req.Header.Set("Content-Type", "application/json")
	body, err := fetchBody(n.env.Client, req)
	if err != nil {
		return nil, err
	}
	var resp rpcResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if err := jsonError(resp.Error); err != nil {
		return nil, err
	}
	return resp.Result, nil
}

func (n *LocalNode) step(ctx context.Context) time.Duration {
	n.mu.Lock()
	cur := n.cursor
	var account string
	if cur.phase == rpcGetAddresses && cur.sub < len(n.accounts) {
		account = n.accounts[cur.sub]
	}
	n.mu.Unlock()

	// Execute and parse the request for the current position before taking
	// the lock back.
	var (
		err       error
		info      *nodeInfo
		ledger    []TransactionRecord
		accounts  []string
		addresses []string
	)
	switch cur.phase {
	case rpcGetInfo:
		var result json.RawMessage
		if result, err = n.call(ctx, "getinfo"); err == nil {
			info = &nodeInfo{}
			err = json.Unmarshal(result, info)
		}
	case rpcListTransactions:
		var result json.RawMessage
		if result, err = n.call(ctx, "listtransactions", "*", 100); err == nil {
			var txs []walletTransaction
			if err = json.Unmarshal(result, &txs); err == nil {
				ledger = ledgerFromWallet(txs)
			}
		}
	case rpcListAccounts:
		var result json.RawMessage
		if result, err = n.call(ctx, "listaccounts"); err == nil {
			var balances map[string]decimal.Decimal
			if err = json.Unmarshal(result, &balances); err == nil {
				for name := range balances {
					accounts = append(accounts, name)
				}
				sort.Strings(accounts)
			}
		}
	case rpcGetAddresses:
		var result json.RawMessage
		if result, err = n.call(ctx, "getaddressesbyaccount", account); err == nil {
			err = json.Unmarshal(result, &addresses)
		}
	}

	n.mu.Lock()
	if !n.connected {
		n.mu.Unlock()
		return 0
	}
	if err != nil {
		n.hasError = true
		n.cursor = cur.advance(len(n.accounts))
		delay := n.delayLocked()
		n.mu.Unlock()
		metrics.RecordPoll(n.name, false)
		n.env.Sink.SetStatus(n.name, "", "ERROR")
		return delay
	}
	n.hasError = false
	switch cur.phase {
	case rpcGetInfo:
		n.info = info
	case rpcListTransactions:
		n.ledger = ledger
	case rpcListAccounts:
		n.accounts = accounts
		if n.addresses == nil {
			n.addresses = make(map[string][]string)
		}
	case rpcGetAddresses:
		if n.addresses == nil {
			n.addresses = make(map[string][]string)
		}
		n.addresses[account] = addresses
	}
	n.cursor = cur.advance(len(n.accounts))
	notify := cur.phase == rpcGetInfo
	var balance decimal.Decimal
	var generating bool
	var hashRate float64
	if notify {
		balance = n.info.Balance
		generating = n.info.Generate
		hashRate = n.info.HashesPerSec
	}
	delay := n.delayLocked()
	n.mu.Unlock()

	metrics.RecordPoll(n.name, true)
	if notify {
		n.env.Sink.SetStatus(n.name, "", formatBTC(balance))
		if generating {
			n.env.Sink.SetStatus(n.name, ChannelMining, fmt.Sprintf("%.2f Mh/s", hashRate/1e6))
		} else {
			n.env.Sink.SetStatus(n.name, ChannelMining, "")
		}
		n.env.Refresher.RefreshAggregateBalance()
	}
	return delay
}

// delayLocked backs off to the long interval only when a full cycle has
// completed and a snapshot exists; intra-cycle requests stay on the short
// delay. Caller holds the mutex.
func (n *LocalNode) delayLocked() time.Duration {
	if n.cursor.phase == rpcGetInfo && n.cursor.sub == 0 && n.info != nil {
		return n.env.LongDelay
	}
	return n.env.ShortDelay
}

// ledgerFromWallet maps raw listtransactions entries to ledger records,
// most recent first. Sent amounts fold the fee into the debit.
func ledgerFromWallet(txs []walletTransaction) []TransactionRecord {
	out := make([]TransactionRecord, 0, len(txs))
	for _, tx := range txs {
		rec := TransactionRecord{Time: time.Unix(tx.Time, 0).UTC()}
		switch tx.Category {
		case "send":
			rec.Description = tx.Address
			rec.Debit = decimal.NewNullDecimal(tx.Amount.Add(tx.Fee).Abs())
		case "generate", "immature":
			rec.Description = "Generation"
			rec.Credit = decimal.NewNullDecimal(tx.Amount)
		default:
			rec.Description = tx.Address
			if rec.Description == "" {
				rec.Description = tx.Account
			}
			rec.Credit = decimal.NewNullDecimal(tx.Amount)
		}
		out = append(out, rec)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

var _ Connector = (*LocalNode)(nil)
