package engine

import (
	"sort"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/kasira/internal/pricing/domain"
	rulesdomain "github.com/smallbiznis/kasira/internal/rules/domain"
)

// Engine computes receipts. It is pure: no I/O, no clock, no mutable state.
// The same lines, snapshot, and coupon always produce an identical Receipt.
type Engine struct{}

func New() *Engine { return &Engine{} }

var hundred = decimal.NewFromInt(100)

// round2 applies the 2-decimal half-up rounding every intermediate amount
// gets at the point of computation.
func round2(d decimal.Decimal) decimal.Decimal { return d.Round(2) }

type lineState struct {
	line      domain.CartLine
	qty       decimal.Decimal
	base      decimal.Decimal
	remaining decimal.Decimal // discount base left after line-scope rules
	discount  decimal.Decimal
	tax       decimal.Decimal
}

// ComputeReceipt prices a cart against a rule snapshot and an optional
// resolved coupon. The coupon's rule applies ahead of non-coupon rules
// regardless of its priority; a coupon whose min-subtotal gate fails is
// skipped silently.
func (e *Engine) ComputeReceipt(lines []domain.CartLine, snap *rulesdomain.Snapshot, coupon *rulesdomain.ResolvedCoupon) (*domain.Receipt, error) {
	if len(lines) == 0 {
		return nil, domain.ErrEmptyCart
	}

	states := make([]*lineState, 0, len(lines))
	subtotal := decimal.Zero
	for _, line := range lines {
		if line.Quantity <= 0 {
			return nil, domain.ErrInvalidQuantity
		}
		if line.UnitPrice.IsNegative() {
			return nil, domain.ErrInvalidUnitPrice
		}
		qty := decimal.NewFromInt(line.Quantity)
		base := round2(line.UnitPrice.Mul(qty))
		states = append(states, &lineState{
			line:      line,
			qty:       qty,
			base:      base,
			remaining: base,
		})
		subtotal = subtotal.Add(base)
	}

	receipt := &domain.Receipt{Subtotal: subtotal}

	discountRules := orderedRules(snap.DiscountRules)
	couponRule := applicableCouponRule(coupon, subtotal)
	var couponRuleID snowflake.ID
	if couponRule != nil {
		receipt.CouponApplied = true
		couponRuleID = couponRule.ID
		discountRules = append([]rulesdomain.Rule{*couponRule}, discountRules...)
	}

	discountTotal, discountEntries := e.applyDiscounts(states, discountRules, couponRuleID)
	taxTotal, taxEntries := e.applyTaxes(states, orderedRules(snap.TaxRules))
	receipt.DiscountByRule = sortedAmounts(discountEntries)
	receipt.TaxByRule = sortedAmounts(taxEntries)

	receipt.DiscountTotal = discountTotal
	receipt.TaxTotal = taxTotal
	receipt.GrandTotal = subtotal.Sub(discountTotal).Add(taxTotal)

	for _, st := range states {
		receipt.Lines = append(receipt.Lines, domain.LineDetail{
			VariantID: st.line.VariantID,
			Quantity:  st.line.Quantity,
			UnitPrice: st.line.UnitPrice,
			Base:      st.base,
			Discount:  st.discount,
			Net:       st.remaining,
			Tax:       st.tax,
		})
	}

	return receipt, nil
}

// applicableCouponRule returns the coupon's rule when the min-subtotal gate
// passes, nil otherwise.
func applicableCouponRule(coupon *rulesdomain.ResolvedCoupon, subtotal decimal.Decimal) *rulesdomain.Rule {
	if coupon == nil {
		return nil
	}
	if coupon.Coupon.MinSubtotal != nil && subtotal.LessThan(*coupon.Coupon.MinSubtotal) {
		return nil
	}
	rule := coupon.Rule
	return &rule
}

func (e *Engine) applyDiscounts(states []*lineState, rules []rulesdomain.Rule, couponRuleID snowflake.ID) (decimal.Decimal, []breakdownEntry) {
	total := decimal.Zero
	var entries []breakdownEntry

	// Line scope first. A non-stackable rule that produced a reduction
	// halts further line-scope rules; receipt-scope rules still run.
	for i := range rules {
		rule := rules[i]
		if rule.ApplyScope != rulesdomain.ApplyLine {
			continue
		}
		ruleTotal := decimal.Zero
		for _, st := range states {
			if !rule.Matches(st.line.CategoryCode, st.line.ProductID, st.line.VariantID) {
				continue
			}
			amt := lineRuleAmount(rule, st.remaining, st.qty)
			if amt.IsZero() {
				continue
			}
			st.remaining = st.remaining.Sub(amt)
			st.discount = st.discount.Add(amt)
			ruleTotal = ruleTotal.Add(amt)
		}
		if ruleTotal.IsZero() {
			continue
		}
		total = total.Add(ruleTotal)
		entries = append(entries, taggedEntry(rule, ruleTotal, couponRuleID != 0 && rule.ID == couponRuleID))
		if !rule.Stackable {
			break
		}
	}

	// Receipt scope against the sum of remaining matched bases. Amounts
	// are drawn down from matched lines so successive receipt rules see a
	// shrinking base, but line nets for tax stay untouched.
	receiptRemaining := make([]decimal.Decimal, len(states))
	for i, st := range states {
		receiptRemaining[i] = st.remaining
	}
	for i := range rules {
		rule := rules[i]
		if rule.ApplyScope != rulesdomain.ApplyReceipt {
			continue
		}
		matched := make([]int, 0, len(states))
		matchedBase := decimal.Zero
		for idx, st := range states {
			if rule.Matches(st.line.CategoryCode, st.line.ProductID, st.line.VariantID) {
				matched = append(matched, idx)
				matchedBase = matchedBase.Add(receiptRemaining[idx])
			}
		}
		if len(matched) == 0 || matchedBase.IsZero() {
			continue
		}

		var amt decimal.Decimal
		if rule.Basis == rulesdomain.BasisPercent {
			amt = round2(matchedBase.Mul(rule.Rate).Div(hundred))
		} else {
			amt = round2(rule.Amount)
		}
		if amt.GreaterThan(matchedBase) {
			amt = matchedBase
		}
		if amt.IsZero() {
			continue
		}

		drawdown := amt
		for _, idx := range matched {
			if drawdown.IsZero() {
				break
			}
			take := decimal.Min(receiptRemaining[idx], drawdown)
			receiptRemaining[idx] = receiptRemaining[idx].Sub(take)
			drawdown = drawdown.Sub(take)
		}

		total = total.Add(amt)
		entries = append(entries, taggedEntry(rule, amt, couponRuleID != 0 && rule.ID == couponRuleID))
		if !rule.Stackable {
			break
		}
	}

	return total, entries
}

// lineRuleAmount computes one rule's reduction against a single line,
// clamped so no line discount ever exceeds its remaining base.
func lineRuleAmount(rule rulesdomain.Rule, remaining, qty decimal.Decimal) decimal.Decimal {
	var amt decimal.Decimal
	if rule.Basis == rulesdomain.BasisPercent {
		amt = round2(remaining.Mul(rule.Rate).Div(hundred))
	} else {
		amt = round2(rule.Amount.Mul(qty))
	}
	if amt.GreaterThan(remaining) {
		amt = remaining
	}
	return amt
}

func (e *Engine) applyTaxes(states []*lineState, rules []rulesdomain.Rule) (decimal.Decimal, []breakdownEntry) {
	total := decimal.Zero
	var entries []breakdownEntry

	// Implicit base category tax, bucketed by category code. Represented
	// as pseudo-rules keyed "category:<code>" so the breakdown list stays
	// uniform with explicit rules.
	buckets := make(map[string]decimal.Decimal)
	var bucketOrder []string
	for _, st := range states {
		rate := categoryRate(st.line)
		if rate == nil || rate.IsZero() {
			continue
		}
		amt := round2(st.remaining.Mul(*rate).Div(hundred))
		if amt.IsZero() {
			continue
		}
		st.tax = st.tax.Add(amt)
		total = total.Add(amt)
		if _, seen := buckets[st.line.CategoryCode]; !seen {
			bucketOrder = append(bucketOrder, st.line.CategoryCode)
		}
		buckets[st.line.CategoryCode] = buckets[st.line.CategoryCode].Add(amt)
	}
	sort.Strings(bucketOrder)
	for _, code := range bucketOrder {
		entries = append(entries, breakdownEntry{
			amount: domain.RuleAmount{
				Key:    "category:" + code,
				Label:  code,
				Amount: buckets[code],
			},
			lead: true,
			code: code,
		})
	}

	// Explicit line-scope tax rules against each matched line's net.
	for i := range rules {
		rule := rules[i]
		if rule.ApplyScope != rulesdomain.ApplyLine {
			continue
		}
		ruleTotal := decimal.Zero
		for _, st := range states {
			if !rule.Matches(st.line.CategoryCode, st.line.ProductID, st.line.VariantID) {
				continue
			}
			var amt decimal.Decimal
			if rule.Basis == rulesdomain.BasisPercent {
				amt = round2(st.remaining.Mul(rule.Rate).Div(hundred))
			} else {
				amt = round2(rule.Amount.Mul(st.qty))
			}
			if amt.IsZero() {
				continue
			}
			st.tax = st.tax.Add(amt)
			ruleTotal = ruleTotal.Add(amt)
		}
		if ruleTotal.IsZero() {
			continue
		}
		total = total.Add(ruleTotal)
		entries = append(entries, taggedEntry(rule, ruleTotal, false))
	}

	// Receipt-scope tax rules against the summed net of matched lines.
	for i := range rules {
		rule := rules[i]
		if rule.ApplyScope != rulesdomain.ApplyReceipt {
			continue
		}
		matchedNet := decimal.Zero
		matchedAny := false
		for _, st := range states {
			if rule.Matches(st.line.CategoryCode, st.line.ProductID, st.line.VariantID) {
				matchedNet = matchedNet.Add(st.remaining)
				matchedAny = true
			}
		}
		if !matchedAny {
			continue
		}
		var amt decimal.Decimal
		if rule.Basis == rulesdomain.BasisPercent {
			amt = round2(matchedNet.Mul(rule.Rate).Div(hundred))
		} else {
			amt = round2(rule.Amount)
		}
		if amt.IsZero() {
			continue
		}
		total = total.Add(amt)
		entries = append(entries, taggedEntry(rule, amt, false))
	}

	return total, entries
}

// categoryRate resolves the implicit tax rate for a line: variant rate if
// present, else product rate, else none.
func categoryRate(line domain.CartLine) *decimal.Decimal {
	if line.VariantTaxRate != nil {
		return line.VariantTaxRate
	}
	return line.ProductTaxRate
}

func ruleEntry(rule rulesdomain.Rule, amount decimal.Decimal) domain.RuleAmount {
	id := rule.ID
	return domain.RuleAmount{
		Key:    "rule:" + id.String(),
		RuleID: &id,
		Label:  rule.Name,
		Amount: amount,
	}
}

// breakdownEntry pairs one RuleAmount with its ordering key. Application
// runs scope by scope, so entries are collected tagged and sorted once at
// the end into the same (priority, id) order rules evaluate in. Lead
// entries come first: the coupon-bound rule for discounts, the implicit
// category buckets (by code) for taxes.
type breakdownEntry struct {
	amount   domain.RuleAmount
	lead     bool
	code     string
	priority int32
	id       snowflake.ID
}

func taggedEntry(rule rulesdomain.Rule, amount decimal.Decimal, lead bool) breakdownEntry {
	return breakdownEntry{
		amount:   ruleEntry(rule, amount),
		lead:     lead,
		priority: rule.Priority,
		id:       rule.ID,
	}
}

func sortedAmounts(entries []breakdownEntry) []domain.RuleAmount {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.lead != b.lead {
			return a.lead
		}
		if a.lead {
			return a.code < b.code
		}
		if a.priority != b.priority {
			return a.priority < b.priority
		}
		return a.id < b.id
	})
	if len(entries) == 0 {
		return nil
	}
	out := make([]domain.RuleAmount, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.amount)
	}
	return out
}

// orderedRules returns rules sorted by (priority, id); the snapshot is not
// trusted to be pre-sorted so the computation stays deterministic for any
// caller.
func orderedRules(rules []rulesdomain.Rule) []rulesdomain.Rule {
	out := make([]rulesdomain.Rule, len(rules))
	copy(out, rules)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out
}
