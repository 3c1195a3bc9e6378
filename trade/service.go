/*
Package trade implements the document operations that drive the ledgers.

PURPOSE:
  Sales and purchase invoices, receipts, payments, returns and stock
  adjustments are written here. Each operation persists its documents,
  posts the matching stock movements, and recomputes the balance of the
  account it touches.

STOCK EFFECTS:
  purchase invoice           + quantity per line
  sales invoice (direct)     - quantity per line
  sales invoice (consigned)  none; the settlement of the note deducts
  return from customer       + quantity when restocked
  return to supplier         - quantity when restocked
  adjustment                 increase / decrease / set

  Deleting or rewriting a document applies the inverse movements of what
  it posted.

PARTIAL WRITES:
  Item inserts stop at the first store failure. The account balance is
  still recomputed so it reflects whatever was written.

SEE ALSO:
  - ledger/stock.go: movements
  - ledger/balance.go: RecomputeBalance
  - consignment: delivery notes referenced by sales invoices
*/
package trade

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/consignment-ledger/consignment"
	"github.com/warp/consignment-ledger/ledger"
	"github.com/warp/consignment-ledger/numbering"
)

// Service runs document operations.
type Service struct {
	store     ledger.Store
	stock     *ledger.StockLedger
	accounts  *ledger.AccountLedger
	notes     *consignment.Service
	numbers   *numbering.Service
	products  *ledger.Cache[ledger.Product]
	customers *ledger.Cache[ledger.Account]
	suppliers *ledger.Cache[ledger.Account]
	logger    *zap.Logger
	now       func() time.Time
}

// Deps groups the collaborators of a Service.
type Deps struct {
	Store     ledger.Store
	Stock     *ledger.StockLedger
	Accounts  *ledger.AccountLedger
	Notes     *consignment.Service
	Numbers   *numbering.Service
	Products  *ledger.Cache[ledger.Product]
	Customers *ledger.Cache[ledger.Account]
	Suppliers *ledger.Cache[ledger.Account]
	Logger    *zap.Logger
}

// NewService creates a trade service. Caches may be nil.
func NewService(d Deps) *Service {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:     d.Store,
		stock:     d.Stock,
		accounts:  d.Accounts,
		notes:     d.Notes,
		numbers:   d.Numbers,
		products:  d.Products,
		customers: d.Customers,
		suppliers: d.Suppliers,
		logger:    logger.Named("trade"),
		now:       time.Now,
	}
}

// SetClock overrides the time source.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

func (s *Service) dateOrToday(d time.Time) time.Time {
	if d.IsZero() {
		return ledger.Day(s.now())
	}
	return ledger.Day(d)
}

// =============================================================================
// PRODUCTS
// =============================================================================

// ProductInput creates a product. OpeningStock is in the smallest unit.
type ProductInput struct {
	Name             string          `json:"name"`
	OpeningStock     decimal.Decimal `json:"opening_stock"`
	ConversionFactor decimal.Decimal `json:"conversion_factor"`
	SmallestUnitName string          `json:"smallest_unit_name"`
	LargestUnitName  string          `json:"largest_unit_name"`
}

// CreateProduct registers a product with stock = opening stock.
func (s *Service) CreateProduct(ctx context.Context, in ProductInput) (*ledger.Product, error) {
	if in.Name == "" {
		return nil, ledger.Invalid("name", "is required")
	}
	if in.OpeningStock.IsNegative() {
		return nil, ledger.Invalid("opening_stock", "must not be negative")
	}
	if in.ConversionFactor.IsNegative() {
		return nil, ledger.Invalid("conversion_factor", "must not be negative")
	}
	factor := in.ConversionFactor
	if !factor.IsPositive() {
		factor = decimal.NewFromInt(1)
	}

	code, err := s.numbers.Next(ctx, numbering.Product, s.now())
	if err != nil {
		return nil, err
	}
	p := &ledger.Product{
		Code:             code,
		Name:             in.Name,
		Stock:            in.OpeningStock,
		OpeningStock:     in.OpeningStock,
		ConversionFactor: factor,
		SmallestUnitName: in.SmallestUnitName,
		LargestUnitName:  in.LargestUnitName,
		CreatedAt:        s.now(),
	}
	if _, err := ledger.Insert(ctx, s.store, ledger.TableProducts, p); err != nil {
		return nil, err
	}
	if s.products != nil {
		s.products.Upsert(p.ID, *p)
	}
	s.logger.Info("product created", zap.Int64("product_id", p.ID), zap.String("code", code))
	return p, nil
}

// GetProduct loads a product through the cache when one is configured.
func (s *Service) GetProduct(ctx context.Context, id int64) (*ledger.Product, error) {
	if s.products == nil {
		return ledger.MustGet[ledger.Product](ctx, s.store, ledger.TableProducts, id)
	}
	p, ok, err := s.products.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &ledger.NotFoundError{Table: ledger.TableProducts, ID: id}
	}
	return &p, nil
}

// ListProducts returns every product in creation order.
func (s *Service) ListProducts(ctx context.Context) ([]ledger.Product, error) {
	return ledger.List[ledger.Product](ctx, s.store, ledger.TableProducts, nil)
}

// =============================================================================
// ACCOUNTS
// =============================================================================

// AccountInput creates a customer or supplier.
type AccountInput struct {
	Name           string          `json:"name"`
	Phone          string          `json:"phone"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
}

func (s *Service) CreateCustomer(ctx context.Context, in AccountInput) (*ledger.Account, error) {
	return s.createAccount(ctx, ledger.AccountCustomer, in)
}

func (s *Service) CreateSupplier(ctx context.Context, in AccountInput) (*ledger.Account, error) {
	return s.createAccount(ctx, ledger.AccountSupplier, in)
}

func (s *Service) createAccount(ctx context.Context, kind ledger.AccountKind, in AccountInput) (*ledger.Account, error) {
	if in.Name == "" {
		return nil, ledger.Invalid("name", "is required")
	}
	a := &ledger.Account{
		Name:           in.Name,
		Phone:          in.Phone,
		OpeningBalance: in.OpeningBalance,
		Balance:        in.OpeningBalance,
		CreatedAt:      s.now(),
	}
	if _, err := ledger.Insert(ctx, s.store, kind.Table(), a); err != nil {
		return nil, err
	}
	if c := s.accountCache(kind); c != nil {
		c.Upsert(a.ID, *a)
	}
	s.logger.Info("account created", zap.String("kind", string(kind)), zap.Int64("account_id", a.ID))
	return a, nil
}

func (s *Service) accountCache(kind ledger.AccountKind) *ledger.Cache[ledger.Account] {
	if kind == ledger.AccountSupplier {
		return s.suppliers
	}
	return s.customers
}

// GetAccount loads a customer or supplier.
func (s *Service) GetAccount(ctx context.Context, kind ledger.AccountKind, id int64) (*ledger.Account, error) {
	return s.accounts.Account(ctx, kind, id)
}

// ListAccounts returns every account of kind in creation order.
func (s *Service) ListAccounts(ctx context.Context, kind ledger.AccountKind) ([]ledger.Account, error) {
	if !kind.Valid() {
		return nil, ledger.Invalid("kind", "must be customer or supplier")
	}
	return ledger.List[ledger.Account](ctx, s.store, kind.Table(), nil)
}

// =============================================================================
// SHARED HELPERS
// =============================================================================

// LineInput is one invoice line.
type LineInput struct {
	ProductID int64           `json:"product_id"`
	Quantity  decimal.Decimal `json:"quantity"`
	Unit      ledger.Unit     `json:"unit"`
	Price     decimal.Decimal `json:"price"`
}

// validateLines checks invoice lines and returns their total.
func (s *Service) validateLines(ctx context.Context, lines []LineInput) (decimal.Decimal, error) {
	if len(lines) == 0 {
		return decimal.Zero, ledger.Invalid("items", "at least one item is required")
	}
	total := decimal.Zero
	for i, l := range lines {
		field := fmt.Sprintf("items[%d]", i)
		if !l.Unit.Valid() {
			return decimal.Zero, ledger.Invalid(field+".unit", "must be smallest or largest")
		}
		if !l.Quantity.IsPositive() {
			return decimal.Zero, ledger.Invalid(field+".quantity", "must be positive")
		}
		if l.Price.IsNegative() {
			return decimal.Zero, ledger.Invalid(field+".price", "must not be negative")
		}
		if _, err := s.GetProduct(ctx, l.ProductID); err != nil {
			return decimal.Zero, err
		}
		total = total.Add(l.Quantity.Mul(l.Price))
	}
	return total, nil
}

func validatePaid(paid decimal.Decimal) error {
	if paid.IsNegative() {
		return ledger.Invalid("paid", "must not be negative")
	}
	return nil
}

// recompute refreshes an account balance after its transactions changed.
// A recompute failure is logged and returned alongside any earlier error.
func (s *Service) recompute(ctx context.Context, kind ledger.AccountKind, id int64, prior error) error {
	if _, err := s.accounts.RecomputeBalance(ctx, kind, id); err != nil {
		s.logger.Error("balance recompute failed",
			zap.String("kind", string(kind)), zap.Int64("account_id", id), zap.Error(err))
		if prior == nil {
			return err
		}
	}
	return prior
}

// postAll applies movements in order, stopping at the first failure.
func (s *Service) postAll(ctx context.Context, productIDs []int64, moves []ledger.Movement) error {
	for i, m := range moves {
		if _, err := s.stock.Apply(ctx, productIDs[i], m); err != nil {
			return err
		}
	}
	return nil
}
