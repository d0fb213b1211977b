package engine

import (
	"encoding/json"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/smallbiznis/kasira/internal/pricing/domain"
	rulesdomain "github.com/smallbiznis/kasira/internal/rules/domain"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func decp(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func targets(ids ...string) datatypes.JSON {
	b, _ := json.Marshal(ids)
	return datatypes.JSON(b)
}

func percentRule(id int64, kind rulesdomain.RuleKind, scope rulesdomain.ApplyScope, rate string, priority int32, stackable bool) rulesdomain.Rule {
	return rulesdomain.Rule{
		ID:         snowflake.ID(id),
		Name:       "rule-" + snowflake.ID(id).String(),
		Kind:       kind,
		Scope:      rulesdomain.ScopeGlobal,
		ApplyScope: scope,
		Basis:      rulesdomain.BasisPercent,
		Rate:       dec(rate),
		TargetType: rulesdomain.TargetAll,
		Priority:   priority,
		Stackable:  stackable,
		Active:     true,
	}
}

func fixedRule(id int64, kind rulesdomain.RuleKind, scope rulesdomain.ApplyScope, amount string, priority int32, stackable bool) rulesdomain.Rule {
	r := percentRule(id, kind, scope, "0", priority, stackable)
	r.Basis = rulesdomain.BasisFixed
	r.Amount = dec(amount)
	return r
}

func line(variantID int64, qty int64, unit string) domain.CartLine {
	return domain.CartLine{
		VariantID: snowflake.ID(variantID),
		ProductID: snowflake.ID(variantID * 10),
		Quantity:  qty,
		UnitPrice: dec(unit),
	}
}

func snap(rules ...rulesdomain.Rule) *rulesdomain.Snapshot {
	s := &rulesdomain.Snapshot{}
	for _, r := range rules {
		if r.Kind == rulesdomain.KindTax {
			s.TaxRules = append(s.TaxRules, r)
		} else {
			s.DiscountRules = append(s.DiscountRules, r)
		}
	}
	return s
}

func TestComputeReceipt_NoRules(t *testing.T) {
	e := New()

	receipt, err := e.ComputeReceipt([]domain.CartLine{line(1, 3, "4.50")}, snap(), nil)
	require.NoError(t, err)

	assert.True(t, receipt.Subtotal.Equal(dec("13.50")))
	assert.True(t, receipt.DiscountTotal.IsZero())
	assert.True(t, receipt.TaxTotal.IsZero())
	assert.True(t, receipt.GrandTotal.Equal(dec("13.50")))
	assert.Empty(t, receipt.DiscountByRule)
	assert.Empty(t, receipt.TaxByRule)
	assert.False(t, receipt.CouponApplied)
}

func TestComputeReceipt_DiscountThenCategoryTax(t *testing.T) {
	e := New()

	cartLine := line(1, 2, "10.00")
	cartLine.CategoryCode = "FOOD"
	cartLine.ProductTaxRate = decp("8")

	receipt, err := e.ComputeReceipt(
		[]domain.CartLine{cartLine},
		snap(percentRule(100, rulesdomain.KindDiscount, rulesdomain.ApplyLine, "10", 0, false)),
		nil,
	)
	require.NoError(t, err)

	assert.True(t, receipt.Subtotal.Equal(dec("20.00")))
	assert.True(t, receipt.DiscountTotal.Equal(dec("2.00")))
	// Tax base is the discounted net, 18.00 at 8%.
	assert.True(t, receipt.TaxTotal.Equal(dec("1.44")))
	assert.True(t, receipt.GrandTotal.Equal(dec("19.44")))

	require.Len(t, receipt.Lines, 1)
	assert.True(t, receipt.Lines[0].Net.Equal(dec("18.00")))
	assert.True(t, receipt.Lines[0].Tax.Equal(dec("1.44")))

	require.Len(t, receipt.TaxByRule, 1)
	assert.Equal(t, "category:FOOD", receipt.TaxByRule[0].Key)
}

func TestComputeReceipt_VariantRateOverridesProductRate(t *testing.T) {
	e := New()

	cartLine := line(1, 1, "100.00")
	cartLine.CategoryCode = "GEN"
	cartLine.ProductTaxRate = decp("10")
	cartLine.VariantTaxRate = decp("5")

	receipt, err := e.ComputeReceipt([]domain.CartLine{cartLine}, snap(), nil)
	require.NoError(t, err)

	assert.True(t, receipt.TaxTotal.Equal(dec("5.00")))
}

func TestComputeReceipt_StackableDiscountsCompound(t *testing.T) {
	e := New()

	// 10% then 5%, both stackable, on 100.00: 10.00 then 4.50.
	receipt, err := e.ComputeReceipt(
		[]domain.CartLine{line(1, 1, "100.00")},
		snap(
			percentRule(1, rulesdomain.KindDiscount, rulesdomain.ApplyLine, "10", 0, true),
			percentRule(2, rulesdomain.KindDiscount, rulesdomain.ApplyLine, "5", 1, true),
		),
		nil,
	)
	require.NoError(t, err)

	assert.True(t, receipt.DiscountTotal.Equal(dec("14.50")))
	require.Len(t, receipt.DiscountByRule, 2)
	assert.True(t, receipt.DiscountByRule[0].Amount.Equal(dec("10.00")))
	assert.True(t, receipt.DiscountByRule[1].Amount.Equal(dec("4.50")))
}

func TestComputeReceipt_NonStackableHaltsLineScope(t *testing.T) {
	e := New()

	receipt, err := e.ComputeReceipt(
		[]domain.CartLine{line(1, 1, "100.00")},
		snap(
			percentRule(1, rulesdomain.KindDiscount, rulesdomain.ApplyLine, "20", 0, false),
			percentRule(2, rulesdomain.KindDiscount, rulesdomain.ApplyLine, "5", 1, true),
			// Receipt scope still runs after a non-stackable line rule.
			percentRule(3, rulesdomain.KindDiscount, rulesdomain.ApplyReceipt, "10", 2, true),
		),
		nil,
	)
	require.NoError(t, err)

	// 20.00 line discount, then 10% of remaining 80.00 at receipt scope.
	assert.True(t, receipt.DiscountTotal.Equal(dec("28.00")))
	require.Len(t, receipt.DiscountByRule, 2)
	assert.True(t, receipt.DiscountByRule[1].Amount.Equal(dec("8.00")))
}

func TestComputeReceipt_PriorityOrdersRules(t *testing.T) {
	e := New()

	// The priority-0 rule wins the non-stackable race even though it is
	// listed second.
	receipt, err := e.ComputeReceipt(
		[]domain.CartLine{line(1, 1, "100.00")},
		snap(
			percentRule(2, rulesdomain.KindDiscount, rulesdomain.ApplyLine, "50", 5, false),
			percentRule(1, rulesdomain.KindDiscount, rulesdomain.ApplyLine, "10", 0, false),
		),
		nil,
	)
	require.NoError(t, err)

	assert.True(t, receipt.DiscountTotal.Equal(dec("10.00")))
	require.Len(t, receipt.DiscountByRule, 1)
	require.NotNil(t, receipt.DiscountByRule[0].RuleID)
	assert.Equal(t, snowflake.ID(1), *receipt.DiscountByRule[0].RuleID)
}

func TestComputeReceipt_FixedDiscountClampedAtLineBase(t *testing.T) {
	e := New()

	receipt, err := e.ComputeReceipt(
		[]domain.CartLine{line(1, 2, "3.00")},
		snap(fixedRule(1, rulesdomain.KindDiscount, rulesdomain.ApplyLine, "5.00", 0, true)),
		nil,
	)
	require.NoError(t, err)

	// 5.00 per unit × 2 would be 10.00; clamped to the 6.00 base.
	assert.True(t, receipt.DiscountTotal.Equal(dec("6.00")))
	assert.True(t, receipt.GrandTotal.IsZero())
	assert.True(t, receipt.Lines[0].Net.IsZero())
}

func TestComputeReceipt_ReceiptDiscountDoesNotShrinkTaxBase(t *testing.T) {
	e := New()

	cartLine := line(1, 1, "100.00")
	cartLine.CategoryCode = "GEN"
	cartLine.ProductTaxRate = decp("10")

	receipt, err := e.ComputeReceipt(
		[]domain.CartLine{cartLine},
		snap(percentRule(1, rulesdomain.KindDiscount, rulesdomain.ApplyReceipt, "20", 0, true)),
		nil,
	)
	require.NoError(t, err)

	assert.True(t, receipt.DiscountTotal.Equal(dec("20.00")))
	// Tax still computed on the full 100.00 line net.
	assert.True(t, receipt.TaxTotal.Equal(dec("10.00")))
	assert.True(t, receipt.GrandTotal.Equal(dec("90.00")))
}

func TestComputeReceipt_TargetedRuleMatchesOnlyItsLines(t *testing.T) {
	e := New()

	food := line(1, 1, "10.00")
	food.CategoryCode = "FOOD"
	drink := line(2, 1, "10.00")
	drink.CategoryCode = "DRINK"

	rule := percentRule(1, rulesdomain.KindDiscount, rulesdomain.ApplyLine, "10", 0, true)
	rule.TargetType = rulesdomain.TargetCategory
	rule.TargetIDs = targets("FOOD")

	receipt, err := e.ComputeReceipt([]domain.CartLine{food, drink}, snap(rule), nil)
	require.NoError(t, err)

	assert.True(t, receipt.DiscountTotal.Equal(dec("1.00")))
	assert.True(t, receipt.Lines[0].Discount.Equal(dec("1.00")))
	assert.True(t, receipt.Lines[1].Discount.IsZero())
}

func TestComputeReceipt_EmptyTargetSetMatchesNothing(t *testing.T) {
	e := New()

	rule := percentRule(1, rulesdomain.KindDiscount, rulesdomain.ApplyLine, "10", 0, true)
	rule.TargetType = rulesdomain.TargetCategory

	receipt, err := e.ComputeReceipt([]domain.CartLine{line(1, 1, "10.00")}, snap(rule), nil)
	require.NoError(t, err)

	assert.True(t, receipt.DiscountTotal.IsZero())
}

func TestComputeReceipt_CouponAppliesAheadOfHigherPriorityRules(t *testing.T) {
	e := New()

	couponRule := percentRule(50, rulesdomain.KindDiscount, rulesdomain.ApplyLine, "25", 99, false)
	couponRule.CouponOnly = true

	receipt, err := e.ComputeReceipt(
		[]domain.CartLine{line(1, 1, "100.00")},
		snap(percentRule(1, rulesdomain.KindDiscount, rulesdomain.ApplyLine, "10", 0, false)),
		&rulesdomain.ResolvedCoupon{
			Coupon: rulesdomain.Coupon{Code: "SAVE25", RuleID: couponRule.ID, Active: true},
			Rule:   couponRule,
		},
	)
	require.NoError(t, err)

	assert.True(t, receipt.CouponApplied)
	// Non-stackable coupon rule wins; the snapshot rule never runs.
	assert.True(t, receipt.DiscountTotal.Equal(dec("25.00")))
	require.Len(t, receipt.DiscountByRule, 1)
	assert.Equal(t, snowflake.ID(50), *receipt.DiscountByRule[0].RuleID)
}

func TestComputeReceipt_CouponBelowMinSubtotalSkipped(t *testing.T) {
	e := New()

	couponRule := percentRule(50, rulesdomain.KindDiscount, rulesdomain.ApplyLine, "25", 0, true)

	receipt, err := e.ComputeReceipt(
		[]domain.CartLine{line(1, 4, "10.00")},
		snap(),
		&rulesdomain.ResolvedCoupon{
			Coupon: rulesdomain.Coupon{Code: "SAVE25", RuleID: couponRule.ID, MinSubtotal: decp("50.00"), Active: true},
			Rule:   couponRule,
		},
	)
	require.NoError(t, err)

	assert.False(t, receipt.CouponApplied)
	assert.True(t, receipt.DiscountTotal.IsZero())
	assert.True(t, receipt.GrandTotal.Equal(dec("40.00")))
}

func TestComputeReceipt_ReceiptTaxOnSummedNets(t *testing.T) {
	e := New()

	receipt, err := e.ComputeReceipt(
		[]domain.CartLine{line(1, 1, "10.01"), line(2, 1, "10.01")},
		snap(percentRule(1, rulesdomain.KindTax, rulesdomain.ApplyReceipt, "7.5", 0, true)),
		nil,
	)
	require.NoError(t, err)

	// 7.5% of 20.02 summed, rounded once: 1.50 (per-line it would be 0.75 + 0.75).
	assert.True(t, receipt.TaxTotal.Equal(dec("1.50")))
	require.Len(t, receipt.TaxByRule, 1)
}

func TestComputeReceipt_CategoryBucketsSortedByCode(t *testing.T) {
	e := New()

	a := line(1, 1, "10.00")
	a.CategoryCode = "ZOO"
	a.ProductTaxRate = decp("10")
	b := line(2, 1, "10.00")
	b.CategoryCode = "ART"
	b.ProductTaxRate = decp("10")

	receipt, err := e.ComputeReceipt([]domain.CartLine{a, b}, snap(), nil)
	require.NoError(t, err)

	require.Len(t, receipt.TaxByRule, 2)
	assert.Equal(t, "category:ART", receipt.TaxByRule[0].Key)
	assert.Equal(t, "category:ZOO", receipt.TaxByRule[1].Key)
}

func TestComputeReceipt_Validation(t *testing.T) {
	e := New()

	_, err := e.ComputeReceipt(nil, snap(), nil)
	assert.ErrorIs(t, err, domain.ErrEmptyCart)

	_, err = e.ComputeReceipt([]domain.CartLine{line(1, 0, "1.00")}, snap(), nil)
	assert.ErrorIs(t, err, domain.ErrInvalidQuantity)

	_, err = e.ComputeReceipt([]domain.CartLine{line(1, 1, "-1.00")}, snap(), nil)
	assert.ErrorIs(t, err, domain.ErrInvalidUnitPrice)
}

func TestComputeReceipt_Deterministic(t *testing.T) {
	e := New()

	lines := []domain.CartLine{line(1, 3, "19.99"), line(2, 1, "5.25")}
	s := snap(
		percentRule(7, rulesdomain.KindDiscount, rulesdomain.ApplyLine, "12.5", 1, true),
		percentRule(3, rulesdomain.KindDiscount, rulesdomain.ApplyLine, "5", 0, true),
		percentRule(9, rulesdomain.KindTax, rulesdomain.ApplyReceipt, "11", 0, true),
	)

	first, err := e.ComputeReceipt(lines, s, nil)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := e.ComputeReceipt(lines, s, nil)
		require.NoError(t, err)
		assert.True(t, first.GrandTotal.Equal(again.GrandTotal))
		assert.Equal(t, len(first.DiscountByRule), len(again.DiscountByRule))
		for j := range first.DiscountByRule {
			assert.Equal(t, first.DiscountByRule[j].Key, again.DiscountByRule[j].Key)
		}
	}
}

func TestComputeReceipt_BreakdownSortedByPriorityAcrossScopes(t *testing.T) {
	e := New()

	// Line scope applies before receipt scope, but the breakdown list
	// still comes out in (priority, id) order.
	receipt, err := e.ComputeReceipt(
		[]domain.CartLine{line(1, 1, "100.00")},
		snap(
			percentRule(2, rulesdomain.KindDiscount, rulesdomain.ApplyLine, "10", 5, true),
			percentRule(1, rulesdomain.KindDiscount, rulesdomain.ApplyReceipt, "10", 0, true),
		),
		nil,
	)
	require.NoError(t, err)

	require.Len(t, receipt.DiscountByRule, 2)
	require.NotNil(t, receipt.DiscountByRule[0].RuleID)
	assert.Equal(t, snowflake.ID(1), *receipt.DiscountByRule[0].RuleID)
	assert.Equal(t, snowflake.ID(2), *receipt.DiscountByRule[1].RuleID)
	// Amounts reflect application order: 10.00 off the line first, then
	// 10% of the remaining 90.00 at receipt scope.
	assert.True(t, receipt.DiscountByRule[0].Amount.Equal(dec("9.00")))
	assert.True(t, receipt.DiscountByRule[1].Amount.Equal(dec("10.00")))
}

func TestComputeReceipt_TaxBreakdownSortedByPriorityAcrossScopes(t *testing.T) {
	e := New()

	cartLine := line(1, 1, "100.00")
	cartLine.CategoryCode = "FOOD"
	cartLine.ProductTaxRate = decp("5")

	receipt, err := e.ComputeReceipt(
		[]domain.CartLine{cartLine},
		snap(
			percentRule(2, rulesdomain.KindTax, rulesdomain.ApplyLine, "2", 9, true),
			percentRule(1, rulesdomain.KindTax, rulesdomain.ApplyReceipt, "1", 0, true),
		),
		nil,
	)
	require.NoError(t, err)

	// Implicit category bucket leads, then explicit rules by priority.
	require.Len(t, receipt.TaxByRule, 3)
	assert.Equal(t, "category:FOOD", receipt.TaxByRule[0].Key)
	assert.Equal(t, snowflake.ID(1), *receipt.TaxByRule[1].RuleID)
	assert.Equal(t, snowflake.ID(2), *receipt.TaxByRule[2].RuleID)
}
