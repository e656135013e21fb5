package list

import (
	"time"

	"github.com/shopspring/decimal"
)

// ManualEntryCode is the sentinel code for items entered by hand when no
// barcode was resolved. It never identifies a real product, so it is
// excluded from price history.
const ManualEntryCode = "MANUAL"

// LineItem represents one confirmed purchase entry
type LineItem struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Code      string          `json:"code"` // EAN-13, EAN-8, or ManualEntryCode
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Subtotal  decimal.Decimal `json:"subtotal"` // quantity × unit price, fixed at creation
	CreatedAt time.Time       `json:"created_at"`
}

// ConfirmationSeed is the pre-filled state for the quantity/price dialog
type ConfirmationSeed struct {
	Name      string           `json:"name"`
	Code      string           `json:"code"`
	LastPrice *decimal.Decimal `json:"last_price,omitempty"` // most recent confirmed unit price for this code
	Manual    bool             `json:"manual"`
	Status    string           `json:"status,omitempty"`
}
