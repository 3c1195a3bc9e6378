/*
stock.go - Stock Ledger

PURPOSE:
  Maintains each product's current stock scalar. Every change is expressed
  as a Movement; corrections are expressed as the inverse Movement rather
  than a recompute from scratch.

MOVEMENT KINDS (signed effect on stock, smallest unit):
  purchase             +q
  sale                 -q
  adjustment_increase  +q
  adjustment_decrease  -q
  adjustment_set       stock = |q|   (inverse: -(after - before) as recorded)
  settlement           -sold + returned + rejected   (one combined update)
  return_in            +q   (customer return with restock)
  return_out           -q   (supplier return with restock)
  release              +q   (unconsumed delivery-note earmark restored)

CLAMPING:
  The result is floored at zero. Over-selling is not rejected; the
  ledger reports 0 and flags the change as clamped.

SIDE EFFECTS (exactly once per Apply):
  1. Product record updated in the Record Store
  2. Product cache mirrored
  3. StockChanged published

SEE ALSO:
  - notify.go: StockChanged publish/subscribe
  - cache.go: product cache
*/
package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// =============================================================================
// MOVEMENT
// =============================================================================

// MovementKind enumerates the ways stock can change.
type MovementKind string

const (
	MovementPurchase           MovementKind = "purchase"
	MovementSale               MovementKind = "sale"
	MovementAdjustmentIncrease MovementKind = "adjustment_increase"
	MovementAdjustmentDecrease MovementKind = "adjustment_decrease"
	MovementAdjustmentSet      MovementKind = "adjustment_set"
	MovementSettlement         MovementKind = "settlement"
	MovementReturnIn           MovementKind = "return_in"
	MovementReturnOut          MovementKind = "return_out"
	MovementRelease            MovementKind = "release"
)

// IsIncrease reports whether the kind adds stock when applied forward.
func (k MovementKind) IsIncrease() bool {
	switch k {
	case MovementPurchase, MovementAdjustmentIncrease, MovementReturnIn, MovementRelease:
		return true
	}
	return false
}

// IsDecrease reports whether the kind removes stock when applied forward.
func (k MovementKind) IsDecrease() bool {
	switch k {
	case MovementSale, MovementAdjustmentDecrease, MovementReturnOut:
		return true
	}
	return false
}

// Movement is one stock change request.
// For settlement, Quantity is the sold quantity.
type Movement struct {
	Kind     MovementKind
	Quantity decimal.Decimal
	Returned decimal.Decimal
	Rejected decimal.Decimal
	Unit     Unit

	// Effect is the signed change (smallest unit) an adjustment_set made
	// when it was applied. A set carrying an Effect moves stock relative to
	// the current level; without one it overwrites and cannot be inverted.
	Effect *decimal.Decimal

	// Reversed flips the sign of the effect.
	Reversed bool

	Reference string
}

func Purchase(q decimal.Decimal, unit Unit) Movement {
	return Movement{Kind: MovementPurchase, Quantity: q, Unit: unit}
}

func Sale(q decimal.Decimal, unit Unit) Movement {
	return Movement{Kind: MovementSale, Quantity: q, Unit: unit}
}

func AdjustmentIncrease(q decimal.Decimal, unit Unit) Movement {
	return Movement{Kind: MovementAdjustmentIncrease, Quantity: q, Unit: unit}
}

func AdjustmentDecrease(q decimal.Decimal, unit Unit) Movement {
	return Movement{Kind: MovementAdjustmentDecrease, Quantity: q, Unit: unit}
}

func AdjustmentSet(q decimal.Decimal, unit Unit) Movement {
	return Movement{Kind: MovementAdjustmentSet, Quantity: q, Unit: unit}
}

// SettlementMovement combines the three settlement quantities into one update.
func SettlementMovement(sold, returned, rejected decimal.Decimal, unit Unit) Movement {
	return Movement{Kind: MovementSettlement, Quantity: sold, Returned: returned, Rejected: rejected, Unit: unit}
}

func ReturnIn(q decimal.Decimal, unit Unit) Movement {
	return Movement{Kind: MovementReturnIn, Quantity: q, Unit: unit}
}

func ReturnOut(q decimal.Decimal, unit Unit) Movement {
	return Movement{Kind: MovementReturnOut, Quantity: q, Unit: unit}
}

func Release(q decimal.Decimal, unit Unit) Movement {
	return Movement{Kind: MovementRelease, Quantity: q, Unit: unit}
}

// Delta returns the signed effect in the unit of the movement.
// An adjustment_set without a recorded Effect has no delta; its effect
// depends on the current stock.
func (m Movement) Delta() decimal.Decimal {
	var d decimal.Decimal
	switch {
	case m.Kind == MovementAdjustmentSet:
		if m.Effect != nil {
			d = *m.Effect
		}
	case m.Kind == MovementSettlement:
		d = m.Returned.Add(m.Rejected).Sub(m.Quantity)
	case m.Kind.IsIncrease():
		d = m.Quantity
	case m.Kind.IsDecrease():
		d = m.Quantity.Neg()
	}
	if m.Reversed {
		d = d.Neg()
	}
	return d
}

// Inverse returns the movement that undoes m by negating its signed effect.
// Movements posted after m are left intact.
func (m Movement) Inverse() (Movement, error) {
	if m.Kind == MovementAdjustmentSet {
		if m.Effect == nil {
			return Movement{}, ErrIrreversible
		}
		effect := *m.Effect
		return Movement{
			Kind:      MovementAdjustmentSet,
			Unit:      UnitSmallest,
			Effect:    &effect,
			Reversed:  !m.Reversed,
			Reference: m.Reference,
		}, nil
	}
	inv := m
	inv.Reversed = !m.Reversed
	return inv, nil
}

// validate rejects movements that cannot be applied.
func (m Movement) validate() error {
	switch m.Kind {
	case MovementPurchase, MovementSale, MovementAdjustmentIncrease, MovementAdjustmentDecrease,
		MovementAdjustmentSet, MovementSettlement, MovementReturnIn, MovementReturnOut, MovementRelease:
	default:
		return Invalid("kind", "unknown movement kind "+string(m.Kind))
	}
	if !m.Unit.Valid() {
		return Invalid("unit", "unknown unit "+string(m.Unit))
	}
	if m.Kind != MovementAdjustmentSet && m.Quantity.IsNegative() {
		return Invalid("quantity", "must not be negative")
	}
	if m.Returned.IsNegative() || m.Rejected.IsNegative() {
		return Invalid("quantity", "returned and rejected must not be negative")
	}
	return nil
}

// next computes the new stock for a product, before clamping.
func (m Movement) next(current, factor decimal.Decimal) decimal.Decimal {
	if m.Kind == MovementAdjustmentSet && m.Effect == nil {
		return ToSmallest(m.Quantity.Abs(), m.Unit, factor)
	}
	return current.Add(ToSmallest(m.Delta(), m.Unit, factor))
}

// =============================================================================
// STOCK LEDGER
// =============================================================================

// StockChange is the outcome of one Apply.
type StockChange struct {
	ProductID int64
	Movement  Movement
	Before    decimal.Decimal
	After     decimal.Decimal
	Clamped   bool
}

// Recorded returns the movement with its signed effect filled in, so an
// adjustment_set can be inverted later.
func (c StockChange) Recorded() Movement {
	m := c.Movement
	if m.Kind == MovementAdjustmentSet && m.Effect == nil {
		effect := c.Effect()
		m.Effect = &effect
	}
	return m
}

// Effect is the signed change the movement made after clamping.
func (c StockChange) Effect() decimal.Decimal {
	return c.After.Sub(c.Before)
}

// StockLedger applies movements to product stock.
type StockLedger struct {
	store    Store
	products *Cache[Product]
	notifier *Notifier
	logger   *zap.Logger
	now      func() time.Time

	// Read-modify-write on a product is serialized.
	mu sync.Mutex
}

// NewStockLedger creates a stock ledger. products and notifier may be nil.
func NewStockLedger(store Store, products *Cache[Product], notifier *Notifier, logger *zap.Logger) *StockLedger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StockLedger{
		store:    store,
		products: products,
		notifier: notifier,
		logger:   logger.Named("stock"),
		now:      time.Now,
	}
}

// Apply posts m against productID and returns the resulting change.
func (l *StockLedger) Apply(ctx context.Context, productID int64, m Movement) (StockChange, error) {
	if err := m.validate(); err != nil {
		return StockChange{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	product, err := MustGet[Product](ctx, l.store, TableProducts, productID)
	if err != nil {
		return StockChange{}, err
	}

	before := product.Stock
	computed := m.next(before, product.Factor())
	after := clampZero(computed)

	product.Stock = after
	if err := Update(ctx, l.store, TableProducts, productID, product); err != nil {
		return StockChange{}, err
	}
	if l.products != nil {
		l.products.Upsert(productID, *product)
	}

	change := StockChange{
		ProductID: productID,
		Movement:  m,
		Before:    before,
		After:     after,
		Clamped:   !computed.Equal(after),
	}

	l.logger.Debug("stock movement applied",
		zap.Int64("product_id", productID),
		zap.String("kind", string(m.Kind)),
		zap.Bool("reversed", m.Reversed),
		zap.String("before", before.String()),
		zap.String("after", after.String()),
	)
	if change.Clamped {
		l.logger.Warn("stock clamped at zero",
			zap.Int64("product_id", productID),
			zap.String("computed", computed.String()),
		)
	}

	if l.notifier != nil {
		l.notifier.Publish(ctx, NewStockChanged(productID, after, l.now()))
	}
	return change, nil
}

// Revert applies the inverse of a recorded movement.
func (l *StockLedger) Revert(ctx context.Context, productID int64, recorded Movement) (StockChange, error) {
	inv, err := recorded.Inverse()
	if err != nil {
		return StockChange{}, err
	}
	return l.Apply(ctx, productID, inv)
}

// Stock returns the current stock of a product from the Record Store.
func (l *StockLedger) Stock(ctx context.Context, productID int64) (decimal.Decimal, error) {
	product, err := MustGet[Product](ctx, l.store, TableProducts, productID)
	if err != nil {
		return decimal.Zero, err
	}
	return product.Stock, nil
}
