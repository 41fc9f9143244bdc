package invoices

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/paperflow/paperflow/internal/inventory"
)

// Status enumerates invoice workflow states.
type Status string

const (
	// StatusPending means the invoice awaits human review.
	StatusPending Status = "Pending"
	// StatusApproved means the invoice was accepted and stock reserved.
	StatusApproved Status = "Approved"
	// StatusFlagged means reconciliation found an inventory problem.
	StatusFlagged Status = "Flagged"
	// StatusRejected means an operator declined the invoice.
	StatusRejected Status = "Rejected"
)

// Valid reports whether the status is one of the workflow states.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusFlagged, StatusRejected:
		return true
	}
	return false
}

// ConfidenceLabel is the coarse extraction-confidence bucket.
type ConfidenceLabel string

const (
	ConfidenceHigh   ConfidenceLabel = "high"
	ConfidenceMedium ConfidenceLabel = "medium"
	ConfidenceLow    ConfidenceLabel = "low"
)

// The review threshold: scores below it park the invoice for a human,
// scores at or above it proceed to reconciliation.
const reviewThreshold = 50

// CustomerDetails holds the billed party as extracted.
type CustomerDetails struct {
	Name            string
	Email           string
	Phone           string
	ShippingAddress string
}

// LineItem is one ordered product line on an invoice.
type LineItem struct {
	SKU       string
	Name      string
	Quantity  int64
	UnitPrice float64
	Total     float64
}

// Invoice is a processed invoice document.
type Invoice struct {
	ID              uuid.UUID
	UserID          uuid.UUID
	Number          string
	Date            string
	Customer        CustomerDetails
	Amount          float64
	Tax             float64
	Total           float64
	NumberOfUnits   int64
	Confidence      ConfidenceLabel
	ConfidenceScore int
	LineItems       []LineItem
	PaymentMethod   string
	PaymentStatus   string
	Status          Status
	Notes           string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Demands maps the line items to reconciliation demands, preserving order.
func (inv *Invoice) Demands() []inventory.Demand {
	demands := make([]inventory.Demand, 0, len(inv.LineItems))
	for _, li := range inv.LineItems {
		demands = append(demands, inventory.Demand{SKU: li.SKU, Quantity: li.Quantity})
	}
	return demands
}

// NeedsReview reports whether the confidence score is below the review threshold.
func (inv *Invoice) NeedsReview() bool {
	return inv.ConfidenceScore < reviewThreshold
}

// Validate checks the shape of an extracted invoice before persistence.
func (inv *Invoice) Validate() error {
	if inv.Number == "" {
		return fmt.Errorf("%w: invoice number missing", ErrValidation)
	}
	if inv.ConfidenceScore < 0 || inv.ConfidenceScore > 100 {
		return fmt.Errorf("%w: confidence score %d out of range", ErrValidation, inv.ConfidenceScore)
	}
	for i, li := range inv.LineItems {
		if li.SKU == "" {
			return fmt.Errorf("%w: line %d has no sku", ErrValidation, i+1)
		}
		if li.Quantity <= 0 {
			return fmt.Errorf("%w: line %d quantity must be positive", ErrValidation, i+1)
		}
	}
	return nil
}

var (
	// ErrInvoiceNotFound indicates a missing invoice row.
	ErrInvoiceNotFound = errors.New("invoices: invoice not found")
	// ErrDuplicateInvoice indicates the invoice number was already processed.
	ErrDuplicateInvoice = errors.New("invoices: duplicate invoice number")
	// ErrValidation indicates a malformed invoice shape.
	ErrValidation = errors.New("invoices: validation failed")
	// ErrInvalidTarget indicates a manual transition to a system-assigned status.
	ErrInvalidTarget = errors.New("invoices: status not settable manually")
	// ErrInsufficientInventory rejects a manual approval that stock cannot cover.
	ErrInsufficientInventory = errors.New("invoices: insufficient inventory")
	// ErrStatusConflict means a concurrent request changed the status first.
	ErrStatusConflict = errors.New("invoices: invoice status changed concurrently")
)
