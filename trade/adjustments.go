package trade

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/consignment-ledger/ledger"
	"github.com/warp/consignment-ledger/numbering"
)

// =============================================================================
// STOCK ADJUSTMENTS
// =============================================================================

// AdjustmentInput is a manual stock correction. For set, Quantity is the
// new stock level (its absolute value is used).
type AdjustmentInput struct {
	ProductID int64                 `json:"product_id"`
	Type      ledger.AdjustmentType `json:"type"`
	Quantity  decimal.Decimal       `json:"quantity"`
	Unit      ledger.Unit           `json:"unit"`
	Date      time.Time             `json:"date"`
	Reason    string                `json:"reason"`
}

// CreateAdjustment applies the correction and records the stock it replaced.
func (s *Service) CreateAdjustment(ctx context.Context, in AdjustmentInput) (*ledger.Adjustment, error) {
	switch in.Type {
	case ledger.AdjustIncrease, ledger.AdjustDecrease:
		if !in.Quantity.IsPositive() {
			return nil, ledger.Invalid("quantity", "must be positive")
		}
	case ledger.AdjustSet:
	default:
		return nil, ledger.Invalid("type", "must be increase, decrease or set")
	}
	if !in.Unit.Valid() {
		return nil, ledger.Invalid("unit", "must be smallest or largest")
	}
	if _, err := s.GetProduct(ctx, in.ProductID); err != nil {
		return nil, err
	}

	date := s.dateOrToday(in.Date)
	ref, err := s.numbers.Next(ctx, numbering.Adjustment, date)
	if err != nil {
		return nil, err
	}

	adj := &ledger.Adjustment{
		ReferenceNumber: ref,
		ProductID:       in.ProductID,
		Type:            in.Type,
		Quantity:        in.Quantity,
		Unit:            in.Unit.Normalize(),
		Date:            date,
		Reason:          in.Reason,
		CreatedAt:       s.now(),
	}
	change, err := s.stock.Apply(ctx, in.ProductID, adj.Movement())
	if err != nil {
		return nil, err
	}
	adj.PreviousStock = change.Before
	adj.StockEffect = change.Effect()
	if _, err := ledger.Insert(ctx, s.store, ledger.TableAdjustments, adj); err != nil {
		return nil, err
	}

	s.logger.Info("stock adjusted",
		zap.Int64("adjustment_id", adj.ID),
		zap.String("reference", ref),
		zap.String("type", string(adj.Type)),
		zap.String("before", change.Before.String()),
		zap.String("after", change.After.String()),
	)
	return adj, nil
}

// DeleteAdjustment applies the inverse correction and removes the record.
// A deleted set takes back the change it made, so later movements survive.
func (s *Service) DeleteAdjustment(ctx context.Context, id int64) error {
	adj, err := ledger.MustGet[ledger.Adjustment](ctx, s.store, ledger.TableAdjustments, id)
	if err != nil {
		return err
	}
	if _, err := s.stock.Revert(ctx, adj.ProductID, adj.Posted()); err != nil {
		return err
	}
	if err := ledger.Delete(ctx, s.store, ledger.TableAdjustments, id); err != nil {
		return err
	}
	s.logger.Info("stock adjustment deleted", zap.Int64("adjustment_id", id), zap.String("reference", adj.ReferenceNumber))
	return nil
}

// ListAdjustments returns adjustments in creation order. productID 0 lists all.
func (s *Service) ListAdjustments(ctx context.Context, productID int64) ([]ledger.Adjustment, error) {
	var filter ledger.Filter
	if productID != 0 {
		filter = ledger.Filter{"product_id": productID}
	}
	return ledger.List[ledger.Adjustment](ctx, s.store, ledger.TableAdjustments, filter)
}
