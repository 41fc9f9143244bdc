// Package notify selects and delivers workflow emails.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Outcome selects which template a notification uses.
type Outcome string

const (
	// OutcomePending tells the operator an invoice awaits review.
	OutcomePending Outcome = "pending"
	// OutcomeApproved confirms the order to the customer.
	OutcomeApproved Outcome = "approved"
	// OutcomeFlaggedInventory alerts the operator to an inventory shortfall.
	OutcomeFlaggedInventory Outcome = "flagged-inventory"
	// OutcomeDelayedDelivery warns the customer their delivery is delayed.
	OutcomeDelayedDelivery Outcome = "delayed-delivery"
	// OutcomeMissingSKU tells the customer a product could not be matched.
	OutcomeMissingSKU Outcome = "missing-sku"
	// OutcomeStatusChanged reports a manual status change to the customer.
	OutcomeStatusChanged Outcome = "status-changed"
)

// InvoiceContext carries the invoice fields templates render.
type InvoiceContext struct {
	Number        string
	CustomerName  string
	CustomerEmail string
	Total         float64
	Status        string
	MissingSKUs   []string
	ShortSKUs     []string
	Notes         string
}

// Notification is one email to be rendered and delivered.
type Notification struct {
	Outcome Outcome
	Invoice InvoiceContext
}

// ErrNotify indicates the notification could not be handed to the mail
// transport. Callers report it but never roll back workflow state.
var ErrNotify = errors.New("notify: dispatch failed")

// Enqueuer hands a rendered email to the delivery queue.
type Enqueuer interface {
	EnqueueMail(ctx context.Context, to, subject, body string) error
}

// MetricsPort counts dispatch attempts.
type MetricsPort interface {
	ObserveNotification(result string)
}

// Dispatcher renders exactly one template per outcome and enqueues the
// result for asynchronous delivery.
type Dispatcher struct {
	queue        Enqueuer
	operatorMail string
	logger       *slog.Logger
	metrics      MetricsPort
}

// NewDispatcher constructs Dispatcher.
func NewDispatcher(queue Enqueuer, operatorMail string, logger *slog.Logger, metrics MetricsPort) *Dispatcher {
	return &Dispatcher{queue: queue, operatorMail: operatorMail, logger: logger, metrics: metrics}
}

// Dispatch renders the notification and enqueues it. Operator-facing
// outcomes go to the configured operator address, the rest to the
// customer email with a fallback when none was extracted.
func (d *Dispatcher) Dispatch(ctx context.Context, n Notification) error {
	subject, body, err := Render(n)
	if err != nil {
		d.observe("render-error")
		return fmt.Errorf("%w: render %s: %v", ErrNotify, n.Outcome, err)
	}

	to := d.recipient(n)
	if to == "" {
		d.observe("no-recipient")
		return fmt.Errorf("%w: no recipient for %s", ErrNotify, n.Outcome)
	}

	if err := d.queue.EnqueueMail(ctx, to, subject, body); err != nil {
		d.observe("enqueue-error")
		return fmt.Errorf("%w: enqueue %s: %v", ErrNotify, n.Outcome, err)
	}

	if d.logger != nil {
		d.logger.Info("notification enqueued",
			slog.String("outcome", string(n.Outcome)),
			slog.String("invoice", n.Invoice.Number),
			slog.String("to", to))
	}
	d.observe("enqueued")
	return nil
}

func (d *Dispatcher) recipient(n Notification) string {
	switch n.Outcome {
	case OutcomePending, OutcomeFlaggedInventory:
		return d.operatorMail
	default:
		return n.Invoice.CustomerEmail
	}
}

func (d *Dispatcher) observe(result string) {
	if d.metrics != nil {
		d.metrics.ObserveNotification(result)
	}
}
