package trade

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/consignment-ledger/ledger"
)

// =============================================================================
// RETURNS
// =============================================================================

// ReturnInput records goods going back. AccountID is the customer for
// from_customer returns and the supplier for to_supplier returns.
type ReturnInput struct {
	ReturnType ledger.ReturnType `json:"return_type"`
	AccountID  int64             `json:"account_id"`
	ProductID  int64             `json:"product_id"`
	Quantity   decimal.Decimal   `json:"quantity"`
	Unit       ledger.Unit       `json:"unit"`
	Amount     decimal.Decimal   `json:"amount"`
	Restock    bool              `json:"restock"`
	Date       time.Time         `json:"date"`
}

func returnAccount(t ledger.ReturnType) (ledger.AccountKind, bool) {
	switch t {
	case ledger.ReturnFromCustomer:
		return ledger.AccountCustomer, true
	case ledger.ReturnToSupplier:
		return ledger.AccountSupplier, true
	}
	return "", false
}

func returnAccountID(r *ledger.Return) int64 {
	if r.ReturnType == ledger.ReturnToSupplier {
		return r.SupplierID
	}
	return r.CustomerID
}

// returnMovement is the stock movement of a restocked return.
func returnMovement(r *ledger.Return) ledger.Movement {
	var m ledger.Movement
	if r.ReturnType == ledger.ReturnToSupplier {
		m = ledger.ReturnOut(r.Quantity, r.Unit)
	} else {
		m = ledger.ReturnIn(r.Quantity, r.Unit)
	}
	m.Reference = fmt.Sprintf("RET-%d", r.ID)
	return m
}

// CreateReturn records a return. The amount always reduces what is owed;
// with Restock the goods also move stock.
func (s *Service) CreateReturn(ctx context.Context, in ReturnInput) (*ledger.Return, error) {
	kind, ok := returnAccount(in.ReturnType)
	if !ok {
		return nil, ledger.Invalid("return_type", "must be from_customer or to_supplier")
	}
	if !in.Unit.Valid() {
		return nil, ledger.Invalid("unit", "must be smallest or largest")
	}
	if !in.Quantity.IsPositive() {
		return nil, ledger.Invalid("quantity", "must be positive")
	}
	if in.Amount.IsNegative() {
		return nil, ledger.Invalid("amount", "must not be negative")
	}
	if _, err := s.accounts.Account(ctx, kind, in.AccountID); err != nil {
		return nil, err
	}
	if _, err := s.GetProduct(ctx, in.ProductID); err != nil {
		return nil, err
	}

	r := &ledger.Return{
		ReturnType: in.ReturnType,
		ProductID:  in.ProductID,
		Quantity:   in.Quantity,
		Unit:       in.Unit.Normalize(),
		Amount:     in.Amount,
		Restock:    in.Restock,
		Date:       s.dateOrToday(in.Date),
		CreatedAt:  s.now(),
	}
	if kind == ledger.AccountSupplier {
		r.SupplierID = in.AccountID
	} else {
		r.CustomerID = in.AccountID
	}
	if _, err := ledger.Insert(ctx, s.store, ledger.TableReturns, r); err != nil {
		return nil, err
	}

	var err error
	if r.Restock {
		_, err = s.stock.Apply(ctx, r.ProductID, returnMovement(r))
	}
	if err = s.recompute(ctx, kind, in.AccountID, err); err != nil {
		return r, err
	}
	s.logger.Info("return recorded",
		zap.Int64("return_id", r.ID),
		zap.String("type", string(r.ReturnType)),
		zap.Bool("restock", r.Restock),
	)
	return r, nil
}

// DeleteReturn undoes the stock effect of a return and removes it.
func (s *Service) DeleteReturn(ctx context.Context, id int64) error {
	r, err := ledger.MustGet[ledger.Return](ctx, s.store, ledger.TableReturns, id)
	if err != nil {
		return err
	}
	if r.Restock {
		if _, err := s.stock.Revert(ctx, r.ProductID, returnMovement(r)); err != nil {
			return err
		}
	}
	kind, _ := returnAccount(r.ReturnType)
	err = ledger.Delete(ctx, s.store, ledger.TableReturns, id)
	return s.recompute(ctx, kind, returnAccountID(r), err)
}

// ListReturns returns every return of a type in creation order. An empty
// type lists both directions.
func (s *Service) ListReturns(ctx context.Context, t ledger.ReturnType) ([]ledger.Return, error) {
	var filter ledger.Filter
	if t != "" {
		filter = ledger.Filter{"return_type": t}
	}
	return ledger.List[ledger.Return](ctx, s.store, ledger.TableReturns, filter)
}
