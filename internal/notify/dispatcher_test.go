package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingQueue struct {
	to      []string
	subject []string
	body    []string
	err     error
}

func (q *recordingQueue) EnqueueMail(_ context.Context, to, subject, body string) error {
	if q.err != nil {
		return q.err
	}
	q.to = append(q.to, to)
	q.subject = append(q.subject, subject)
	q.body = append(q.body, body)
	return nil
}

func TestDispatchRoutesOperatorOutcomes(t *testing.T) {
	queue := &recordingQueue{}
	d := NewDispatcher(queue, "ops@paperflow.local", nil, nil)

	for _, outcome := range []Outcome{OutcomePending, OutcomeFlaggedInventory} {
		err := d.Dispatch(context.Background(), Notification{
			Outcome: outcome,
			Invoice: InvoiceContext{Number: "INV-1", CustomerEmail: "c@acme.example"},
		})
		require.NoError(t, err)
	}

	require.Len(t, queue.to, 2)
	assert.Equal(t, []string{"ops@paperflow.local", "ops@paperflow.local"}, queue.to)
}

func TestDispatchRoutesCustomerOutcomes(t *testing.T) {
	queue := &recordingQueue{}
	d := NewDispatcher(queue, "ops@paperflow.local", nil, nil)

	for _, outcome := range []Outcome{OutcomeApproved, OutcomeDelayedDelivery, OutcomeMissingSKU, OutcomeStatusChanged} {
		err := d.Dispatch(context.Background(), Notification{
			Outcome: outcome,
			Invoice: InvoiceContext{Number: "INV-1", CustomerEmail: "c@acme.example"},
		})
		require.NoError(t, err)
	}

	require.Len(t, queue.to, 4)
	for _, to := range queue.to {
		assert.Equal(t, "c@acme.example", to)
	}
}

func TestDispatchFailsWithoutRecipient(t *testing.T) {
	d := NewDispatcher(&recordingQueue{}, "", nil, nil)

	err := d.Dispatch(context.Background(), Notification{
		Outcome: OutcomeApproved,
		Invoice: InvoiceContext{Number: "INV-1"},
	})
	require.ErrorIs(t, err, ErrNotify)
}

func TestDispatchWrapsEnqueueErrors(t *testing.T) {
	queue := &recordingQueue{err: errors.New("redis down")}
	d := NewDispatcher(queue, "ops@paperflow.local", nil, nil)

	err := d.Dispatch(context.Background(), Notification{
		Outcome: OutcomePending,
		Invoice: InvoiceContext{Number: "INV-1"},
	})
	require.ErrorIs(t, err, ErrNotify)
	assert.Contains(t, err.Error(), "redis down")
}

func TestRenderSubstitutesInvoiceNumber(t *testing.T) {
	subject, body, err := Render(Notification{
		Outcome: OutcomeApproved,
		Invoice: InvoiceContext{Number: "INV-42", CustomerName: "Acme", Total: 119.5},
	})
	require.NoError(t, err)
	assert.Contains(t, subject, "INV-42")
	assert.Contains(t, body, "Acme")
	assert.Contains(t, body, "119.50")
}

func TestRenderFallsBackForMissingFields(t *testing.T) {
	subject, body, err := Render(Notification{
		Outcome: OutcomeStatusChanged,
		Invoice: InvoiceContext{},
	})
	require.NoError(t, err)
	assert.Contains(t, subject, "N/A")
	assert.Contains(t, body, "Valued Customer")
}

func TestRenderShortSKUList(t *testing.T) {
	_, body, err := Render(Notification{
		Outcome: OutcomeFlaggedInventory,
		Invoice: InvoiceContext{Number: "INV-7", ShortSKUs: []string{"A-1", "B-2"}},
	})
	require.NoError(t, err)
	assert.Contains(t, body, "A-1, B-2")
}

func TestRenderUnknownOutcome(t *testing.T) {
	_, _, err := Render(Notification{Outcome: Outcome("telegram")})
	require.Error(t, err)
}

func TestEveryOutcomeHasExactlyOneTemplate(t *testing.T) {
	outcomes := []Outcome{
		OutcomePending, OutcomeApproved, OutcomeFlaggedInventory,
		OutcomeDelayedDelivery, OutcomeMissingSKU, OutcomeStatusChanged,
	}
	assert.Len(t, templates, len(outcomes))
	for _, o := range outcomes {
		_, ok := templates[o]
		assert.True(t, ok, "missing template for %s", o)
	}
}
