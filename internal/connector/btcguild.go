package connector

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/galois26/walletwatch/internal/metrics"
)

// ChannelMining is the status channel pool and node connectors use for hash
// rate information.
const ChannelMining = "Mining (Generation)"

const msgInvalidAPIKey = "The API key you specified is not valid. Edit this account to correct it."

// BTCGuild polls the BTCGuild mining pool API: a single authenticated GET
// per cycle returning user rewards and per-worker statistics.
type BTCGuild struct {
	base
	BaseURL string
	apiKey  string

	snapshot *guildSnapshot
}

// GuildWorker is the per-worker statistics row backing the "Individual
// Workers" sub-view.
type GuildWorker struct {
	HashRate    float64 `json:"hash_rate"`
	RoundShares int64   `json:"round_shares"`
	RoundStales int64   `json:"round_stales"`
	TotalShares int64   `json:"total_shares"`
	TotalStales int64   `json:"total_stales"`
	BlocksFound int64   `json:"blocks_found"`
	LastShare   int64   `json:"last_share"`
}

// GuildPool is the pool-wide statistics backing the "Global Pool" sub-view.
// Speeds are in Mh/s as the pool reports them.
type GuildPool struct {
	HashRate       float64 `json:"hash_rate"`
	USWestSpeed    float64 `json:"uswest_speed"`
	USEastSpeed    float64 `json:"useast_speed"`
	USCentralSpeed float64 `json:"uscentral_speed"`
	NLSpeed        float64 `json:"nl_speed"`
	UKSpeed        float64 `json:"uk_speed"`
	RoundTime      string  `json:"round_time"`
	RoundShares    int64   `json:"round_shares"`
}

type guildSnapshot struct {
	User struct {
		ConfirmedRewards decimal.Decimal `json:"confirmed_rewards"`
		// A structurally valid response without this field means the API key
		// was rejected.
		UnconfirmedRewards *decimal.Decimal `json:"unconfirmed_rewards"`
		EstimatedRewards   decimal.Decimal  `json:"estimated_rewards"`
		Payouts            decimal.Decimal  `json:"payouts"`
	} `json:"user"`
	Pool    GuildPool              `json:"pool"`
	Workers map[string]GuildWorker `json:"workers"`
}

func (s *guildSnapshot) totalHashRate() float64 {
	var total float64
	for _, w := range s.Workers {
		total += w.HashRate
	}
	return total
}

func NewBTCGuild(name string, params map[string]string, env Env) *BTCGuild {
	return &BTCGuild{
		base:    newBase(name, env),
		BaseURL: "https://www.btcguild.com/api.php",
		apiKey:  params["apiKey"],
	}
}

func (g *BTCGuild) Kind() Kind { return KindBTCGuild }

func (g *BTCGuild) Menu() []string {
	return []string{ChannelMining, "Individual Workers", "Global Pool"}
}

func (g *BTCGuild) Ledger() []TransactionRecord { return nil }

func (g *BTCGuild) Connect() bool {
	return g.start(g.step, nil)
}

func (g *BTCGuild) Disconnect() bool {
	return g.stop(func() { g.snapshot = nil })
}

func (g *BTCGuild) Balance() (decimal.Decimal, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.snapshot == nil {
		return decimal.Decimal{}, false
	}
	return g.snapshot.User.ConfirmedRewards, true
}

// HashRate reports the summed hash rate of all workers, in hashes/sec as the
// pool reports them.
func (g *BTCGuild) HashRate() (float64, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.snapshot == nil {
		return 0, false
	}
	return g.snapshot.totalHashRate(), true
}

// Workers lists worker names sorted; WorkerStats has the full rows.
func (g *BTCGuild) Workers() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.snapshot == nil {
		return nil
	}
	names := make([]string, 0, len(g.snapshot.Workers))
	for name := range g.snapshot.Workers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// WorkerStats returns per-worker statistics keyed by worker name, backing
// the "Individual Workers" sub-view.
func (g *BTCGuild) WorkerStats() map[string]GuildWorker {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.snapshot == nil {
		return nil
	}
	out := make(map[string]GuildWorker, len(g.snapshot.Workers))
	for name, w := range g.snapshot.Workers {
		out[name] = w
	}
	return out
}

// Pool reports pool-wide statistics; ok is false until the first successful
// poll has completed.
func (g *BTCGuild) Pool() (GuildPool, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.snapshot == nil {
		return GuildPool{}, false
	}
	return g.snapshot.Pool, true
}

func (g *BTCGuild) step(ctx context.Context) time.Duration {
	var snap guildSnapshot
	err := getJSON(ctx, g.env.Client, g.BaseURL+"?api_key="+url.QueryEscape(g.apiKey), &snap)

	g.mu.Lock()
	if !g.connected {
		g.mu.Unlock()
		return 0
	}
	if err != nil {
		g.hasError = true
		hadSnap := g.snapshot != nil
		g.mu.Unlock()
		metrics.RecordPoll(g.name, false)
		g.env.Sink.SetStatus(g.name, "", "ERROR")
		g.env.Sink.SetStatus(g.name, ChannelMining, "")
		return g.delay(hadSnap)
	}
	g.hasError = false
	if snap.User.UnconfirmedRewards == nil {
		g.snapshot = nil
		g.mu.Unlock()
		metrics.RecordPoll(g.name, true)
		g.env.Sink.SetStatus(g.name, "", msgInvalidAPIKey)
		g.env.Sink.SetStatus(g.name, ChannelMining, "")
		return g.env.LongDelay
	}
	g.snapshot = &snap
	balance := snap.User.ConfirmedRewards
	rate := snap.totalHashRate()
	g.mu.Unlock()

	metrics.RecordPoll(g.name, true)
	g.env.Sink.SetStatus(g.name, "", formatBTC(balance))
	if rate > 0 {
		g.env.Sink.SetStatus(g.name, ChannelMining, fmt.Sprintf("%.2f Mh/s", rate/1024/1024))
	} else {
		g.env.Sink.SetStatus(g.name, ChannelMining, "")
	}
	g.env.Refresher.RefreshAggregateBalance()
	return g.env.LongDelay
}

var _ Connector = (*BTCGuild)(nil)
