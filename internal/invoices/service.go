package invoices

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/paperflow/paperflow/internal/inventory"
	"github.com/paperflow/paperflow/internal/notify"
	"github.com/paperflow/paperflow/internal/shared"
)

// TextSource turns a document URL into plain text.
type TextSource interface {
	Text(ctx context.Context, url string) (string, error)
}

// Extractor turns plain text into a structured invoice candidate.
type Extractor interface {
	Extract(ctx context.Context, text string) (Invoice, error)
}

// InventoryPort is the slice of the inventory service the workflow uses.
type InventoryPort interface {
	Reconcile(ctx context.Context, userID uuid.UUID, demands []inventory.Demand) (inventory.Verdict, error)
	ApplyDecrements(ctx context.Context, userID uuid.UUID, demands []inventory.Demand) error
	RestoreStock(ctx context.Context, userID uuid.UUID, demands []inventory.Demand) error
	RecordShortages(ctx context.Context, userID uuid.UUID, verdict inventory.Verdict)
}

// Notifier dispatches workflow emails.
type Notifier interface {
	Dispatch(ctx context.Context, n notify.Notification) error
}

// Auditor records workflow actions and exposes the recorded trail.
type Auditor interface {
	Record(ctx context.Context, log shared.AuditLog) error
	List(ctx context.Context, entity, entityID string) ([]shared.AuditLog, error)
}

// MetricsPort counts processed invoices by final status.
type MetricsPort interface {
	ObserveInvoice(status string)
}

// Service runs the invoice workflow: extract, reconcile, route, persist,
// notify. Notification failures are reported in logs only; they never
// change the decision already persisted.
type Service struct {
	repo       Repository
	source     TextSource
	extraction Extractor
	stock      InventoryPort
	notifier   Notifier
	audit      Auditor
	metrics    MetricsPort
	logger     *slog.Logger
}

// NewService builds Service. notifier, audit and metrics may be nil.
func NewService(
	repo Repository,
	source TextSource,
	extraction Extractor,
	stock InventoryPort,
	notifier Notifier,
	audit Auditor,
	metrics MetricsPort,
	logger *slog.Logger,
) *Service {
	return &Service{
		repo:       repo,
		source:     source,
		extraction: extraction,
		stock:      stock,
		notifier:   notifier,
		audit:      audit,
		metrics:    metrics,
		logger:     logger,
	}
}

// ProcessResult is the outcome of one automatic processing run.
type ProcessResult struct {
	Invoice     Invoice
	UnknownSKUs []string
	Shortfalls  []inventory.Shortfall
}

// ProcessFromPDF runs the automatic pipeline for a remote invoice
// document and returns the persisted invoice with its assigned status.
func (s *Service) ProcessFromPDF(ctx context.Context, userID uuid.UUID, url string) (ProcessResult, error) {
	text, err := s.source.Text(ctx, url)
	if err != nil {
		return ProcessResult{}, err
	}

	inv, err := s.extraction.Extract(ctx, text)
	if err != nil {
		return ProcessResult{}, err
	}
	inv.UserID = userID

	if err := inv.Validate(); err != nil {
		return ProcessResult{}, err
	}

	// Reject reprocessing before touching stock.
	exists, err := s.repo.ExistsNumber(ctx, inv.Number)
	if err != nil {
		return ProcessResult{}, fmt.Errorf("invoices: duplicate check: %w", err)
	}
	if exists {
		return ProcessResult{}, fmt.Errorf("%w: %s", ErrDuplicateInvoice, inv.Number)
	}

	if inv.NeedsReview() {
		return s.parkPending(ctx, inv)
	}

	verdict, err := s.stock.Reconcile(ctx, userID, inv.Demands())
	if err != nil {
		return ProcessResult{}, err
	}
	if !verdict.Sufficient() {
		return s.flag(ctx, inv, verdict)
	}
	return s.approve(ctx, inv)
}

// parkPending stores a low-confidence invoice untouched by inventory and
// alerts the operator.
func (s *Service) parkPending(ctx context.Context, inv Invoice) (ProcessResult, error) {
	inv.Status = StatusPending
	saved, err := s.repo.Create(ctx, inv)
	if err != nil {
		return ProcessResult{}, err
	}

	s.dispatch(ctx, notify.Notification{Outcome: notify.OutcomePending, Invoice: s.mailContext(saved, nil, nil)})
	s.record(ctx, saved, "invoice.pending", map[string]any{"confidence_score": saved.ConfidenceScore})
	s.observe(saved.Status)
	return ProcessResult{Invoice: saved}, nil
}

// flag stores the invoice as Flagged without touching stock. Unknown skus
// take precedence over shortfalls in the customer-facing message.
func (s *Service) flag(ctx context.Context, inv Invoice, verdict inventory.Verdict) (ProcessResult, error) {
	inv.Status = StatusFlagged
	saved, err := s.repo.Create(ctx, inv)
	if err != nil {
		return ProcessResult{}, err
	}

	shortSKUs := make([]string, 0, len(verdict.Shortfalls))
	for _, sf := range verdict.Shortfalls {
		shortSKUs = append(shortSKUs, sf.SKU)
	}

	if len(verdict.UnknownSKUs) > 0 {
		s.dispatch(ctx, notify.Notification{
			Outcome: notify.OutcomeMissingSKU,
			Invoice: s.mailContext(saved, verdict.UnknownSKUs, shortSKUs),
		})
	} else {
		s.stock.RecordShortages(ctx, saved.UserID, verdict)
		s.dispatch(ctx, notify.Notification{
			Outcome: notify.OutcomeFlaggedInventory,
			Invoice: s.mailContext(saved, nil, shortSKUs),
		})
		s.dispatch(ctx, notify.Notification{
			Outcome: notify.OutcomeDelayedDelivery,
			Invoice: s.mailContext(saved, nil, shortSKUs),
		})
	}

	s.record(ctx, saved, "invoice.flagged", map[string]any{
		"unknown_skus": verdict.UnknownSKUs,
		"short_skus":   shortSKUs,
	})
	s.observe(saved.Status)
	return ProcessResult{Invoice: saved, UnknownSKUs: verdict.UnknownSKUs, Shortfalls: verdict.Shortfalls}, nil
}

// approve reserves stock and stores the invoice as Approved. The stock
// guard may still fail under concurrency; the invoice is then flagged
// with the fresh verdict instead. If the insert fails after the
// decrement, the decrement is compensated.
func (s *Service) approve(ctx context.Context, inv Invoice) (ProcessResult, error) {
	demands := inv.Demands()
	if err := s.stock.ApplyDecrements(ctx, inv.UserID, demands); err != nil {
		if errors.Is(err, inventory.ErrInsufficientStock) {
			verdict, rerr := s.stock.Reconcile(ctx, inv.UserID, demands)
			if rerr != nil {
				return ProcessResult{}, rerr
			}
			return s.flag(ctx, inv, verdict)
		}
		return ProcessResult{}, err
	}

	inv.Status = StatusApproved
	saved, err := s.repo.Create(ctx, inv)
	if err != nil {
		if rerr := s.stock.RestoreStock(ctx, inv.UserID, demands); rerr != nil && s.logger != nil {
			s.logger.Error("restore stock after failed insert",
				slog.String("invoice", inv.Number), slog.Any("error", rerr))
		}
		return ProcessResult{}, err
	}

	s.dispatch(ctx, notify.Notification{Outcome: notify.OutcomeApproved, Invoice: s.mailContext(saved, nil, nil)})
	s.record(ctx, saved, "invoice.approved", map[string]any{"auto": true})
	s.observe(saved.Status)
	return ProcessResult{Invoice: saved}, nil
}

// UpdateStatus applies a manual decision. Only Approved and Rejected can
// be set by hand; setting the current status again is a no-op so a retry
// never decrements stock twice. The persisted transition is a
// compare-and-swap against the status read here, so a racing request can
// pass the no-op check but only one of them keeps its decrement.
func (s *Service) UpdateStatus(ctx context.Context, userID, id uuid.UUID, target Status) (Invoice, error) {
	if target != StatusApproved && target != StatusRejected {
		return Invoice{}, fmt.Errorf("%w: %s", ErrInvalidTarget, target)
	}

	inv, err := s.repo.Get(ctx, userID, id)
	if err != nil {
		return Invoice{}, err
	}
	if inv.Status == target {
		return inv, nil
	}
	previous := inv.Status

	if target == StatusApproved {
		demands := inv.Demands()
		verdict, err := s.stock.Reconcile(ctx, userID, demands)
		if err != nil {
			return Invoice{}, err
		}
		if !verdict.Sufficient() {
			return Invoice{}, fmt.Errorf("%w: %s", ErrInsufficientInventory, describeVerdict(verdict))
		}
		if err := s.stock.ApplyDecrements(ctx, userID, demands); err != nil {
			if errors.Is(err, inventory.ErrInsufficientStock) {
				return Invoice{}, fmt.Errorf("%w: %v", ErrInsufficientInventory, err)
			}
			return Invoice{}, err
		}
	}

	if err := s.repo.UpdateStatus(ctx, userID, id, previous, target); err != nil {
		if target == StatusApproved {
			if rerr := s.stock.RestoreStock(ctx, userID, inv.Demands()); rerr != nil && s.logger != nil {
				s.logger.Error("restore stock after failed status update",
					slog.String("invoice", inv.Number), slog.Any("error", rerr))
			}
		}
		if errors.Is(err, ErrStatusConflict) {
			return s.settleLostRace(ctx, userID, id, target)
		}
		return Invoice{}, err
	}
	inv.Status = target

	s.dispatch(ctx, notify.Notification{Outcome: notify.OutcomeStatusChanged, Invoice: s.mailContext(inv, nil, nil)})
	s.record(ctx, inv, "invoice.status_changed", map[string]any{
		"from": string(previous),
		"to":   string(target),
	})
	s.observe(target)
	return inv, nil
}

// settleLostRace resolves a manual transition that lost the
// compare-and-swap. A retry racing its own original request lands on the
// target status and is treated as the usual no-op; any other concurrent
// decision surfaces as a conflict.
func (s *Service) settleLostRace(ctx context.Context, userID, id uuid.UUID, target Status) (Invoice, error) {
	current, err := s.repo.Get(ctx, userID, id)
	if err != nil {
		return Invoice{}, err
	}
	if current.Status == target {
		return current, nil
	}
	return Invoice{}, fmt.Errorf("%w: invoice is now %s", ErrStatusConflict, current.Status)
}

// AuditTrail returns the recorded workflow history of one invoice,
// oldest entry first.
func (s *Service) AuditTrail(ctx context.Context, userID, id uuid.UUID) ([]shared.AuditLog, error) {
	if _, err := s.repo.Get(ctx, userID, id); err != nil {
		return nil, err
	}
	if s.audit == nil {
		return nil, nil
	}
	return s.audit.List(ctx, "invoice", id.String())
}

// List returns the user's invoices, optionally filtered by status.
func (s *Service) List(ctx context.Context, userID uuid.UUID, filter ListFilter) ([]Invoice, int, error) {
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, 0, fmt.Errorf("%w: unknown status %q", ErrValidation, *filter.Status)
	}
	return s.repo.List(ctx, userID, filter)
}

// Get returns one invoice.
func (s *Service) Get(ctx context.Context, userID, id uuid.UUID) (Invoice, error) {
	return s.repo.Get(ctx, userID, id)
}

func (s *Service) mailContext(inv Invoice, unknown, short []string) notify.InvoiceContext {
	return notify.InvoiceContext{
		Number:        inv.Number,
		CustomerName:  inv.Customer.Name,
		CustomerEmail: inv.Customer.Email,
		Total:         inv.Total,
		Status:        string(inv.Status),
		MissingSKUs:   unknown,
		ShortSKUs:     short,
		Notes:         inv.Notes,
	}
}

func (s *Service) dispatch(ctx context.Context, n notify.Notification) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Dispatch(ctx, n); err != nil && s.logger != nil {
		s.logger.Warn("notification failed",
			slog.String("outcome", string(n.Outcome)),
			slog.String("invoice", n.Invoice.Number),
			slog.Any("error", err))
	}
}

func (s *Service) record(ctx context.Context, inv Invoice, action string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  inv.UserID,
		Action:   action,
		Entity:   "invoice",
		EntityID: inv.ID.String(),
		Meta:     meta,
	})
	if err != nil && s.logger != nil {
		s.logger.Warn("audit failed", slog.String("action", action), slog.Any("error", err))
	}
}

func (s *Service) observe(status Status) {
	if s.metrics != nil {
		s.metrics.ObserveInvoice(string(status))
	}
}

func describeVerdict(v inventory.Verdict) string {
	var parts []string
	if len(v.UnknownSKUs) > 0 {
		parts = append(parts, "unknown skus: "+strings.Join(v.UnknownSKUs, ", "))
	}
	if len(v.Shortfalls) > 0 {
		skus := make([]string, 0, len(v.Shortfalls))
		for _, sf := range v.Shortfalls {
			skus = append(skus, fmt.Sprintf("%s (requested %d, available %d)", sf.SKU, sf.Requested, sf.Available))
		}
		parts = append(parts, "short: "+strings.Join(skus, ", "))
	}
	return strings.Join(parts, "; ")
}
