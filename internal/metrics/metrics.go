package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	AccountBalance = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "walletwatch",
		Name:      "account_balance_btc",
		Help:      "Last known balance of an account in BTC",
	}, []string{"account"})
	AggregateBalance = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "walletwatch",
		Name:      "aggregate_balance_btc",
		Help:      "Sum of all account balances in BTC",
	})
	AggregateBalanceFiat = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "walletwatch",
		Name:      "aggregate_balance_fiat",
		Help:      "Sum of all account balances in the configured fiat currency",
	}, []string{"currency"})
	PollsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "walletwatch",
		Name:      "polls_total",
		Help:      "Number of poll requests by account and status",
	}, []string{"account", "status"})
)

func init() {
	prometheus.MustRegister(
		AccountBalance, AggregateBalance, AggregateBalanceFiat, PollsTotal,
	)
}

// RecordPoll counts one completed poll request for an account.
func RecordPoll(account string, ok bool) {
	status := "ok"
	if !ok {
		status = "error"
	}
	PollsTotal.WithLabelValues(account, status).Inc()
}

// SetFiat publishes the fiat-denominated aggregate.
func SetFiat(currency string, value float64) {
	AggregateBalanceFiat.WithLabelValues(strings.ToUpper(currency)).Set(value)
}
