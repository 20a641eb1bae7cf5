// Package reconcile attributes the currency movements of a transaction to
// the fills it settled.
package reconcile

import (
	"math/big"
	"sort"
	"strings"

	"nftsync/internal/model"
)

// Assignment is the attribution of one fill. Fills of the same bundle share
// one RelatedPayments slice.
type Assignment struct {
	Fill            model.FillEvent
	RelatedPayments []model.Payment
	HasMultiple     bool
	IsReliable      bool
}

// Result holds one assignment per input fill, in input order.
type Result struct {
	Chunked     []Assignment
	HasMultiple bool
	IsReliable  bool
}

type group struct {
	fills    []int
	payments []model.Payment
	multiple bool
	reliable bool
}

// Reconcile splits the payments of a single transaction between its fills.
//
// Payments are matched only against fills of the same currency. A payment
// belongs to the closest fill logged before it. Fills with no payment of
// their own are bundled with the next paid fill, or with the previous group
// when its surplus pays for them exactly.
// A group whose payments do not add up to its fill values, or whose span
// holds a payment in the currency of another fill, is unreliable.
func Reconcile(fills []model.FillEvent, payments []model.Payment) Result {
	res := Result{
		Chunked:    make([]Assignment, len(fills)),
		IsReliable: true,
	}
	if len(fills) == 0 {
		return res
	}

	fillCurrencies := make(map[string][]int)
	var currencyOrder []string
	for i, fill := range fills {
		cur := currencyOf(fill.Currency)
		if _, ok := fillCurrencies[cur]; !ok {
			currencyOrder = append(currencyOrder, cur)
		}
		fillCurrencies[cur] = append(fillCurrencies[cur], i)
	}

	byCurrency := make(map[string][]model.Payment)
	for _, p := range payments {
		cur := currencyOf(p.Token)
		byCurrency[cur] = append(byCurrency[cur], p)
	}
	for cur := range byCurrency {
		ps := byCurrency[cur]
		sort.SliceStable(ps, func(i, j int) bool { return paymentPos(ps[i]) < paymentPos(ps[j]) })
	}

	for _, cur := range currencyOrder {
		idx := fillCurrencies[cur]
		sort.SliceStable(idx, func(a, b int) bool { return fills[idx[a]].LogIndex < fills[idx[b]].LogIndex })

		for _, g := range groupCurrency(fills, idx, byCurrency[cur]) {
			if g.reliable && len(g.payments) > 0 && interleaved(fills, g, cur, byCurrency, fillCurrencies) {
				g.reliable = false
			}
			for _, i := range g.fills {
				res.Chunked[i] = Assignment{
					Fill:            fills[i],
					RelatedPayments: g.payments,
					HasMultiple:     g.multiple,
					IsReliable:      g.reliable,
				}
			}
			res.HasMultiple = res.HasMultiple || g.multiple
			res.IsReliable = res.IsReliable && g.reliable
		}
	}
	return res
}

// groupCurrency windows the payments of one currency between consecutive
// fills (idx is sorted by log index).
func groupCurrency(fills []model.FillEvent, idx []int, payments []model.Payment) []*group {
	var groups []*group
	var pending []int

	for k, i := range idx {
		lo := fillPos(fills[i])
		hi := uint64(0)
		bounded := k+1 < len(idx)
		if bounded {
			hi = fillPos(fills[idx[k+1]])
		}
		window := make([]model.Payment, 0)
		for _, p := range payments {
			pos := paymentPos(p)
			if pos > lo && (!bounded || pos < hi) {
				window = append(window, p)
			}
		}

		if len(window) == 0 {
			pending = append(pending, i)
			continue
		}

		if len(groups) > 0 {
			pending = absorb(fills, groups[len(groups)-1], pending)
		}
		members := append(pending, i)
		pending = nil
		groups = append(groups, &group{fills: members, payments: window})
	}

	if len(pending) > 0 && len(groups) > 0 {
		pending = absorb(fills, groups[len(groups)-1], pending)
	}
	if len(pending) > 0 {
		groups = append(groups, &group{fills: pending, payments: []model.Payment{}})
	}

	for _, g := range groups {
		g.multiple = len(g.fills) > 1
		g.reliable = len(g.payments) == 0 || sumPayments(g.payments).Cmp(sumFills(fills, g.fills)) == 0
	}
	return groups
}

// absorb moves the leading fills of run into g when their values make g
// balance exactly, and returns the fills left over. A group with a surplus
// that no prefix of run settles keeps its fills, so an unrelated payment
// never pulls another fill into the group.
func absorb(fills []model.FillEvent, g *group, run []int) []int {
	ex := excess(fills, g)
	if ex.Sign() <= 0 {
		return run
	}
	sum := new(big.Int)
	for n, i := range run {
		sum.Add(sum, fills[i].Value())
		switch sum.Cmp(ex) {
		case 0:
			g.fills = append(g.fills, run[:n+1]...)
			return run[n+1:]
		case 1:
			return run
		}
	}
	return run
}

// interleaved reports whether a payment in another fill currency sits
// between the group's first fill and its last related payment.
func interleaved(fills []model.FillEvent, g *group, cur string, byCurrency map[string][]model.Payment, fillCurrencies map[string][]int) bool {
	lo := fillPos(fills[g.fills[0]])
	for _, i := range g.fills {
		if pos := fillPos(fills[i]); pos < lo {
			lo = pos
		}
	}
	hi := lo
	for _, p := range g.payments {
		if pos := paymentPos(p); pos > hi {
			hi = pos
		}
	}
	for other, ps := range byCurrency {
		if other == cur {
			continue
		}
		if _, ok := fillCurrencies[other]; !ok {
			continue
		}
		for _, p := range ps {
			if pos := paymentPos(p); pos > lo && pos < hi {
				return true
			}
		}
	}
	return false
}

// Log positions: a payment flagged AfterLog follows the log at its index,
// otherwise it precedes it. Fills sit on their log.
func fillPos(f model.FillEvent) uint64 { return f.LogIndex*3 + 1 }

func paymentPos(p model.Payment) uint64 {
	if p.AfterLog {
		return p.LogIndex*3 + 2
	}
	return p.LogIndex * 3
}

func excess(fills []model.FillEvent, g *group) *big.Int {
	return new(big.Int).Sub(sumPayments(g.payments), sumFills(fills, g.fills))
}

func sumPayments(ps []model.Payment) *big.Int {
	total := new(big.Int)
	for _, p := range ps {
		if p.Amount != nil {
			total.Add(total, p.Amount)
		}
	}
	return total
}

func sumFills(fills []model.FillEvent, idx []int) *big.Int {
	total := new(big.Int)
	for _, i := range idx {
		total.Add(total, fills[i].Value())
	}
	return total
}

func currencyOf(token string) string {
	if token == "" {
		return model.ZeroAddress
	}
	return strings.ToLower(token)
}
