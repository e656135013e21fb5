package list

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pvieira/scanlist/internal/lookup"
)

// manualEntryName is the placeholder shown when no product was resolved
const manualEntryName = "New Product"

// IDGenerator generates unique IDs for line items
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// defaultIDGenerator generates random UUIDs
type defaultIDGenerator struct{}

func (g *defaultIDGenerator) Generate() string {
	return uuid.NewString()
}

// defaultTimeSource provides the current time
type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// ValidationError reports a rejected confirmation field. It is fully
// recoverable: the form stays open and the list is untouched.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ConfirmRequest carries the confirmation form fields. Quantity and unit
// price arrive as the raw form strings so that missing and non-numeric
// input share one failure path.
type ConfirmRequest struct {
	Name      string `json:"name"`
	Code      string `json:"code"`
	Quantity  string `json:"quantity"`
	UnitPrice string `json:"unit_price"`
}

// Summary is the rendered state of the list: the items and their total
type Summary struct {
	Items []LineItem      `json:"items"`
	Total decimal.Decimal `json:"total"`
}

// Service handles the confirm-persist workflow and list presentation
type Service struct {
	db          DB
	resolver    lookup.Resolver
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a new Service with default ID generator and time source
func NewService(db DB, resolver lookup.Resolver) *Service {
	return &Service{
		db:          db,
		resolver:    resolver,
		idGenerator: &defaultIDGenerator{},
		timeSource:  &defaultTimeSource{},
	}
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, resolver lookup.Resolver, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		db:          db,
		resolver:    resolver,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

// Seed resolves a validated code and builds the confirmation dialog seed.
// Lookup failures of either kind fall back to the manual-entry seed; the
// user still gets to add the item by hand.
func (s *Service) Seed(ctx context.Context, code string) (ConfirmationSeed, error) {
	res := s.resolver.Resolve(ctx, code)

	switch res.Kind {
	case lookup.KindFound:
		seed := ConfirmationSeed{
			Name: res.Name,
			Code: code,
		}
		history, err := s.db.LoadHistory()
		if err != nil {
			// History is advisory; the dialog opens without a prefill
			slog.Warn("Failed to load price history", "error", err)
			return seed, nil
		}
		if price, ok := history[code]; ok {
			seed.LastPrice = &price
		}
		return seed, nil
	case lookup.KindNotFound:
		seed := s.ManualSeed()
		seed.Status = fmt.Sprintf("Product %s not found", code)
		return seed, nil
	default:
		seed := s.ManualSeed()
		seed.Status = "Could not reach the product lookup service"
		return seed, nil
	}
}

// ManualSeed returns the seed for hand-entered items: placeholder name,
// sentinel code, no price prefill.
func (s *Service) ManualSeed() ConfirmationSeed {
	return ConfirmationSeed{
		Name:   manualEntryName,
		Code:   ManualEntryCode,
		Manual: true,
	}
}

// Confirm validates the form fields, appends the resulting item to the
// list, and records the unit price in the history. The subtotal is fixed
// at creation time and never recomputed.
func (s *Service) Confirm(req ConfirmRequest) (LineItem, error) {
	quantity, err := parsePositive("quantity", req.Quantity)
	if err != nil {
		return LineItem{}, err
	}
	unitPrice, err := parseNonNegative("unit price", req.UnitPrice)
	if err != nil {
		return LineItem{}, err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = manualEntryName
	}
	code := strings.TrimSpace(req.Code)
	if code == "" {
		code = ManualEntryCode
	}

	item := LineItem{
		ID:        s.idGenerator.Generate(),
		Name:      name,
		Code:      code,
		Quantity:  quantity,
		UnitPrice: unitPrice,
		Subtotal:  quantity.Mul(unitPrice),
		CreatedAt: s.timeSource.Now(),
	}

	items, err := s.db.LoadList()
	if err != nil {
		return LineItem{}, fmt.Errorf("loading list: %w", err)
	}
	items = append(items, item)
	if err := s.db.SaveList(items); err != nil {
		return LineItem{}, fmt.Errorf("saving list: %w", err)
	}

	// RecordPrice ignores the manual sentinel; a history write failure
	// never rolls back the confirmed item
	if err := s.db.RecordPrice(code, unitPrice); err != nil {
		slog.Warn("Failed to record price history", "code", code, "error", err)
	}

	return item, nil
}

// Summary reloads the list and recomputes the running total. It is
// idempotent and safe to call after every mutation.
func (s *Service) Summary() (Summary, error) {
	items, err := s.db.LoadList()
	if err != nil {
		return Summary{}, fmt.Errorf("loading list: %w", err)
	}

	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Subtotal)
	}

	return Summary{Items: items, Total: total}, nil
}

// RemoveAt removes the item at index. An out-of-bounds index is a no-op.
func (s *Service) RemoveAt(index int) error {
	items, err := s.db.LoadList()
	if err != nil {
		return fmt.Errorf("loading list: %w", err)
	}
	if index < 0 || index >= len(items) {
		return nil
	}

	items = append(items[:index], items[index+1:]...)
	if err := s.db.SaveList(items); err != nil {
		return fmt.Errorf("saving list: %w", err)
	}
	return nil
}

// ClearAll empties the list. Price history is kept.
func (s *Service) ClearAll() error {
	if err := s.db.SaveList([]LineItem{}); err != nil {
		return fmt.Errorf("saving list: %w", err)
	}
	return nil
}

// parsePositive parses a form string into a decimal that must be > 0
func parsePositive(field, raw string) (decimal.Decimal, error) {
	value, err := parseDecimal(field, raw)
	if err != nil {
		return decimal.Zero, err
	}
	if value.Sign() <= 0 {
		return decimal.Zero, &ValidationError{Field: field, Reason: "must be greater than zero"}
	}
	return value, nil
}

// parseNonNegative parses a form string into a decimal that must be >= 0
func parseNonNegative(field, raw string) (decimal.Decimal, error) {
	value, err := parseDecimal(field, raw)
	if err != nil {
		return decimal.Zero, err
	}
	if value.Sign() < 0 {
		return decimal.Zero, &ValidationError{Field: field, Reason: "must not be negative"}
	}
	return value, nil
}

func parseDecimal(field, raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, &ValidationError{Field: field, Reason: "is required"}
	}
	// Accept a decimal comma from locales that use it
	raw = strings.Replace(raw, ",", ".", 1)
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, &ValidationError{Field: field, Reason: "must be a number"}
	}
	return value, nil
}
