package connector

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/galois26/walletwatch/internal/store"
)

// Raw block explorer transaction shapes.
type rawTransaction struct {
	Hash string     `json:"hash"`
	Time int64      `json:"time"`
	In   []txInput  `json:"in"`
	Out  []txOutput `json:"out"`
}

type txInput struct {
	Address string      `json:"address"`
	PrevOut *prevOutRef `json:"prev_out"`
}

type prevOutRef struct {
	Hash string `json:"hash"`
	N    int    `json:"n"`
}

type txOutput struct {
	Address string          `json:"address"`
	Value   decimal.Decimal `json:"value"`
}

// feeCache persists resolved transaction fees so the secondary lookup of a
// spent output happens at most once per transaction ever observed.
type feeCache struct {
	store store.Store
}

func feeCacheKey(prevHash, txHash string) string {
	return "tx-fee:" + prevHash + ":" + txHash
}

func (c feeCache) get(prevHash, txHash string) (decimal.Decimal, bool) {
	var fee decimal.Decimal
	ok, err := c.store.GetItem(feeCacheKey(prevHash, txHash), &fee)
	if err != nil || !ok {
		return decimal.Decimal{}, false
	}
	return fee, true
}

func (c feeCache) put(prevHash, txHash string, fee decimal.Decimal) error {
	return c.store.SetItem(feeCacheKey(prevHash, txHash), fee)
}

// pendingFee is an outgoing entry whose fee was not in the cache; the
// connector resolves it with a secondary fetch of the previous transaction.
type pendingFee struct {
	entry     int // index into reconcileResult.entries
	prevHash  string
	prevIndex int
	txHash    string
	// outTotal sums every output of the spending transaction;
	// fee = previous output value - outTotal.
	outTotal decimal.Decimal
}

type reconcileResult struct {
	balance decimal.Decimal
	entries []TransactionRecord
	pending []pendingFee
}

// applyFee replaces an entry's provisional debit with the resolved total and
// adjusts the running balance by the fee delta. It returns the fee.
func (r *reconcileResult) applyFee(p pendingFee, prevValue decimal.Decimal) decimal.Decimal {
	fee := prevValue.Sub(p.outTotal)
	e := &r.entries[p.entry]
	e.Debit.Decimal = e.Debit.Decimal.Add(fee)
	r.balance = r.balance.Sub(fee)
	return fee
}

// reconciler replays a watched address's raw transaction history into a
// signed balance and a normalized ledger.
type reconciler struct {
	address string
	fees    feeCache
}

// reconcile classifies every transaction as outgoing, generation or
// incoming. An outgoing debit is the sum of outputs paid away from the
// watched address (change returned to it is not part of the amount sent)
// plus the transaction fee; when the fee is not yet cached the debit stays
// provisional and a pending lookup is recorded. The returned ledger is most
// recent first. For a fixed fee cache the result is deterministic.
func (r *reconciler) reconcile(txs []rawTransaction) reconcileResult {
	var res reconcileResult
	res.balance = decimal.Zero
	for _, tx := range txs {
		rec := TransactionRecord{Time: time.Unix(tx.Time, 0).UTC()}
		switch {
		case len(tx.In) > 0 && tx.In[0].Address == r.address:
			// Outgoing.
			sent := decimal.Zero
			outTotal := decimal.Zero
			for _, o := range tx.Out {
				outTotal = outTotal.Add(o.Value)
				if o.Address != r.address {
					sent = sent.Add(o.Value)
				}
			}
			debit := sent
			if prev := tx.In[0].PrevOut; prev != nil {
				if fee, ok := r.fees.get(prev.Hash, tx.Hash); ok {
					debit = debit.Add(fee)
				} else {
					res.pending = append(res.pending, pendingFee{
						entry:     len(res.entries),
						prevHash:  prev.Hash,
						prevIndex: prev.N,
						txHash:    tx.Hash,
						outTotal:  outTotal,
					})
				}
			}
			rec.Description = tx.In[0].Address
			rec.Debit = decimal.NewNullDecimal(debit)
			res.balance = res.balance.Sub(debit)
		case len(tx.In) == 0 || tx.In[0].Address == "":
			// Generation (coinbase); no defined input address.
			credit := decimal.Zero
			for _, o := range tx.Out {
				if o.Address == r.address {
					credit = credit.Add(o.Value)
				}
			}
			rec.Description = "Generation"
			rec.Credit = decimal.NewNullDecimal(credit)
			res.balance = res.balance.Add(credit)
		default:
			// Incoming from a third party.
			credit := decimal.Zero
			for _, o := range tx.Out {
				if o.Address == r.address {
					credit = credit.Add(o.Value)
				}
			}
			rec.Description = tx.In[0].Address
			rec.Credit = decimal.NewNullDecimal(credit)
			res.balance = res.balance.Add(credit)
		}
		res.entries = append(res.entries, rec)
	}
	// Most recent first.
	for i, j := 0, len(res.entries)-1; i < j; i, j = i+1, j-1 {
		res.entries[i], res.entries[j] = res.entries[j], res.entries[i]
	}
	for i := range res.pending {
		res.pending[i].entry = len(res.entries) - 1 - res.pending[i].entry
	}
	return res
}
