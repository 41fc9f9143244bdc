package inventory

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ShortageImpact grades how badly a shortage hurts fulfilment.
type ShortageImpact string

const (
	// ImpactLow marks gaps below a quarter of expected demand.
	ImpactLow ShortageImpact = "Low"
	// ImpactMedium marks gaps below three quarters of expected demand.
	ImpactMedium ShortageImpact = "Medium"
	// ImpactHigh marks gaps at or above three quarters of expected demand.
	ImpactHigh ShortageImpact = "High"
)

// Item is a stocked product owned by a single user.
type Item struct {
	ID            int64
	UserID        uuid.UUID
	SKU           string
	Name          string
	Quantity      int64
	UnitPrice     float64
	SupplierEmail string
	Shortage      *Shortage
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Shortage is a reporting snapshot taken when demand exceeded stock.
// It is informational only; Item.Quantity stays authoritative.
type Shortage struct {
	Expected   int64
	Actual     int64
	Gap        int64
	Impact     ShortageImpact
	RecordedAt time.Time
}

// Demand is one requested line during reconciliation.
type Demand struct {
	SKU      string
	Quantity int64
}

// Shortfall describes a line that could not be satisfied from stock.
type Shortfall struct {
	SKU       string
	Requested int64
	Available int64
}

// Verdict is the outcome of reconciling demands against stock.
// Unknown SKUs and shortfalls are kept apart because downstream
// notifications differ between the two.
type Verdict struct {
	UnknownSKUs []string
	Shortfalls  []Shortfall
}

// Sufficient reports whether every demand can be satisfied.
func (v Verdict) Sufficient() bool {
	return len(v.UnknownSKUs) == 0 && len(v.Shortfalls) == 0
}

// ShortageFor builds the reporting snapshot for a shortfall.
func ShortageFor(requested, available int64, at time.Time) Shortage {
	gap := requested - available
	impact := ImpactLow
	switch {
	case requested <= 0:
	case float64(gap)/float64(requested) >= 0.75:
		impact = ImpactHigh
	case float64(gap)/float64(requested) >= 0.25:
		impact = ImpactMedium
	}
	return Shortage{Expected: requested, Actual: available, Gap: gap, Impact: impact, RecordedAt: at}
}

// ErrItemNotFound indicates a missing inventory row.
var ErrItemNotFound = errors.New("inventory: item not found")

// ErrDuplicateSKU indicates the sku already exists for the user.
var ErrDuplicateSKU = errors.New("inventory: duplicate sku")

// ErrInvalidQuantity indicates a negative or zero quantity where a positive one is required.
var ErrInvalidQuantity = errors.New("inventory: quantity must be positive")

// ErrInsufficientStock is returned when a guarded decrement would go negative.
var ErrInsufficientStock = errors.New("inventory: insufficient stock")
