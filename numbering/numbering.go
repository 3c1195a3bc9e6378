// Package numbering provides document auto-numbering over the Record Store.
//
// Numbers look like PREFIX-YYYY-NNN (year-scoped) or PREFIX-NNNNN. The next
// number is one past the larger of the highest number already present in the
// document table and the high-water mark kept in the sequences table, so a
// number freed by a deletion is never handed out again.
package numbering

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warp/consignment-ledger/ledger"
)

// Config holds numbering configuration for one document type.
type Config struct {
	// Prefix added to all numbers (e.g., "DN", "STL")
	Prefix string

	// IncludeYear adds the document year to the number and resets the
	// sequence every year.
	IncludeYear bool

	// PadWidth is the minimum number width.
	PadWidth int

	// Table and Field locate existing numbers.
	Table ledger.Table
	Field string
}

var (
	DeliveryNote = Config{Prefix: "DN", IncludeYear: true, PadWidth: 3,
		Table: ledger.TableDeliveryNotes, Field: "delivery_note_number"}
	Settlement = Config{Prefix: "STL", IncludeYear: true, PadWidth: 3,
		Table: ledger.TableSettlements, Field: "settlement_number"}
	PurchaseInvoice = Config{Prefix: "PUR", IncludeYear: true, PadWidth: 3,
		Table: ledger.TablePurchaseInvoices, Field: "invoice_number"}
	SalesInvoice = Config{Prefix: "INV", IncludeYear: true, PadWidth: 3,
		Table: ledger.TableSalesInvoices, Field: "invoice_number"}
	Product = Config{Prefix: "PRD", PadWidth: 5,
		Table: ledger.TableProducts, Field: "code"}
	Adjustment = Config{Prefix: "ADJ", IncludeYear: true, PadWidth: 3,
		Table: ledger.TableAdjustments, Field: "reference_number"}
)

// key identifies one sequence, e.g. "DN-2026" or "PRD".
func (c Config) key(year int) string {
	if c.IncludeYear {
		return fmt.Sprintf("%s-%d", c.Prefix, year)
	}
	return c.Prefix
}

// Format renders seq for the given year.
func (c Config) Format(year int, seq int64) string {
	return fmt.Sprintf("%s-%0*d", c.key(year), c.PadWidth, seq)
}

// Parse extracts the sequence number of s when it belongs to the year's
// sequence. Malformed numbers report false.
func (c Config) Parse(year int, s string) (int64, bool) {
	rest, ok := strings.CutPrefix(s, c.key(year)+"-")
	if !ok || rest == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// sequence is the persisted high-water mark of one key.
type sequence struct {
	ID   int64  `json:"id"`
	Key  string `json:"key"`
	Last int64  `json:"last"`
}

// Service hands out document numbers.
type Service struct {
	store  ledger.Store
	logger *zap.Logger
	mu     sync.Mutex
}

// New creates a numbering service.
func New(store ledger.Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, logger: logger.Named("numbering")}
}

// Next reserves the next number of cfg for a document dated at.
func (s *Service) Next(ctx context.Context, cfg Config, at time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	year := at.Year()
	maxSeq, err := s.highestExisting(ctx, cfg, year)
	if err != nil {
		return "", err
	}

	key := cfg.key(year)
	seqs, err := ledger.List[sequence](ctx, s.store, ledger.TableSequences, ledger.Filter{"key": key})
	if err != nil {
		return "", err
	}
	var seq *sequence
	if len(seqs) > 0 {
		seq = &seqs[0]
		if seq.Last > maxSeq {
			maxSeq = seq.Last
		}
	}

	next := maxSeq + 1
	if seq == nil {
		seq = &sequence{Key: key, Last: next}
		if _, err := ledger.Insert(ctx, s.store, ledger.TableSequences, seq); err != nil {
			return "", err
		}
	} else {
		seq.Last = next
		if err := ledger.Update(ctx, s.store, ledger.TableSequences, seq.ID, seq); err != nil {
			return "", err
		}
	}

	number := cfg.Format(year, next)
	s.logger.Debug("number reserved", zap.String("key", key), zap.String("number", number))
	return number, nil
}

func (s *Service) highestExisting(ctx context.Context, cfg Config, year int) (int64, error) {
	docs, err := s.store.GetAll(ctx, cfg.Table, nil)
	if err != nil {
		return 0, &ledger.StoreError{Op: "getAll", Table: cfg.Table, Err: err}
	}
	var highest int64
	for _, doc := range docs {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(doc, &fields); err != nil {
			return 0, &ledger.StoreError{Op: "decode", Table: cfg.Table, Err: err}
		}
		var number string
		if raw, ok := fields[cfg.Field]; !ok || json.Unmarshal(raw, &number) != nil {
			continue
		}
		if n, ok := cfg.Parse(year, number); ok && n > highest {
			highest = n
		}
	}
	return highest, nil
}
