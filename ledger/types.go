/*
Package ledger provides the accounting and inventory core of the engine.

PURPOSE:
  This package owns the rules that compute running balances for product
  stock and for customer/supplier accounts. Document workflows (invoices,
  delivery notes, settlements) live in other packages and call into the
  ledgers defined here.

KEY CONCEPTS IN THIS FILE (types.go):
  - Unit: smallest vs largest counting unit of a product
  - Quantities: decimal.Decimal, always stored in the smallest unit
  - Dates: day-granularity time.Time values

DESIGN PRINCIPLES:
  1. Stock never goes negative: results are clamped at zero
  2. Precision: decimal.Decimal for every quantity and amount
  3. Reversal over rewrite: corrections apply the inverse movement
  4. Balances are replayed: account balances are always fully recomputed

SEE ALSO:
  - store.go: Record Store interface (the external collaborator)
  - stock.go: Stock Ledger
  - balance.go: Account Balance Ledger
  - statement.go: chronological account statement
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// UNITS
// =============================================================================

// Unit selects which counting unit a quantity is expressed in.
type Unit string

const (
	UnitSmallest Unit = "smallest"
	UnitLargest  Unit = "largest"
)

// Valid reports whether u is a known unit. The empty unit is treated as smallest.
func (u Unit) Valid() bool {
	return u == "" || u == UnitSmallest || u == UnitLargest
}

// Normalize returns the unit with the empty value mapped to UnitSmallest.
func (u Unit) Normalize() Unit {
	if u == "" {
		return UnitSmallest
	}
	return u
}

// ToSmallest converts qty expressed in unit into the smallest unit.
func ToSmallest(qty decimal.Decimal, unit Unit, factor decimal.Decimal) decimal.Decimal {
	if unit.Normalize() == UnitLargest {
		return qty.Mul(normalizeFactor(factor))
	}
	return qty
}

func normalizeFactor(f decimal.Decimal) decimal.Decimal {
	if f.IsPositive() {
		return f
	}
	return decimal.NewFromInt(1)
}

// =============================================================================
// DATES
// =============================================================================

// Day truncates t to midnight UTC. Ledger dates carry no time of day.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Date builds a day-granularity date.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// InWindow reports whether d falls inside [from, to]. Nil bounds are open.
func InWindow(d time.Time, from, to *time.Time) bool {
	d = Day(d)
	if from != nil && d.Before(Day(*from)) {
		return false
	}
	if to != nil && d.After(Day(*to)) {
		return false
	}
	return true
}

// clampZero floors v at zero.
func clampZero(v decimal.Decimal) decimal.Decimal {
	if v.IsNegative() {
		return decimal.Zero
	}
	return v
}
