package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// =============================================================================
// STOCK CHANGED NOTIFICATIONS
// =============================================================================

// StockChanged tells subscribers that a product's stock was rewritten.
type StockChanged struct {
	EventID    uuid.UUID       `json:"event_id"`
	ProductID  int64           `json:"product_id"`
	Stock      decimal.Decimal `json:"stock"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// NewStockChanged stamps a new event.
func NewStockChanged(productID int64, stock decimal.Decimal, at time.Time) StockChanged {
	return StockChanged{EventID: uuid.New(), ProductID: productID, Stock: stock, OccurredAt: at}
}

// Subscriber receives events synchronously on the publishing goroutine.
type Subscriber func(ctx context.Context, ev StockChanged)

// Notifier is an in-process publish/subscribe channel.
// Delivery is fire-and-forget: a failing subscriber never affects the publisher.
type Notifier struct {
	mu     sync.RWMutex
	subs   map[int]Subscriber
	nextID int
	logger *zap.Logger
}

// NewNotifier creates a notifier.
func NewNotifier(logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{subs: make(map[int]Subscriber), logger: logger.Named("notify")}
}

// Subscribe registers fn and returns a function that removes it.
func (n *Notifier) Subscribe(fn Subscriber) (unsubscribe func()) {
	n.mu.Lock()
	id := n.nextID
	n.nextID++
	n.subs[id] = fn
	n.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.subs, id)
			n.mu.Unlock()
		})
	}
}

// Publish delivers ev to every subscriber.
func (n *Notifier) Publish(ctx context.Context, ev StockChanged) {
	n.mu.RLock()
	subs := make([]Subscriber, 0, len(n.subs))
	for _, s := range n.subs {
		subs = append(subs, s)
	}
	n.mu.RUnlock()

	for _, s := range subs {
		n.dispatch(ctx, s, ev)
	}
}

func (n *Notifier) dispatch(ctx context.Context, s Subscriber, ev StockChanged) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Error("subscriber panicked",
				zap.Int64("product_id", ev.ProductID),
				zap.Any("panic", r),
			)
		}
	}()
	s(ctx, ev)
}
