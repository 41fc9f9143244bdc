package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubMailer struct {
	sent []SendEmailPayload
	err  error
}

func (m *stubMailer) Send(to, subject, body string) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, SendEmailPayload{To: to, Subject: subject, Body: body})
	return nil
}

func TestSendEmailTaskRoundTrip(t *testing.T) {
	task, err := NewSendEmailTask(SendEmailPayload{To: "a@b.test", Subject: "hi", Body: "<p>hi</p>"})
	require.NoError(t, err)
	assert.Equal(t, TaskTypeSendEmail, task.Type())

	var payload SendEmailPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	assert.Equal(t, "a@b.test", payload.To)
}

func TestSendEmailHandlerDelivers(t *testing.T) {
	mailer := &stubMailer{}
	handler := NewSendEmailHandler(mailer, slog.Default())

	task, err := NewSendEmailTask(SendEmailPayload{To: "a@b.test", Subject: "hi", Body: "body"})
	require.NoError(t, err)

	require.NoError(t, handler(context.Background(), task))
	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "hi", mailer.sent[0].Subject)
}

func TestSendEmailHandlerSkipsBadPayload(t *testing.T) {
	mailer := &stubMailer{}
	handler := NewSendEmailHandler(mailer, slog.Default())

	err := handler(context.Background(), asynq.NewTask(TaskTypeSendEmail, []byte("not json")))
	require.ErrorIs(t, err, asynq.SkipRetry)
	assert.Empty(t, mailer.sent)
}

func TestSendEmailHandlerPropagatesSMTPErrors(t *testing.T) {
	mailer := &stubMailer{err: errors.New("smtp down")}
	handler := NewSendEmailHandler(mailer, slog.Default())

	task, err := NewSendEmailTask(SendEmailPayload{To: "a@b.test"})
	require.NoError(t, err)
	require.Error(t, handler(context.Background(), task), "delivery errors must surface so asynq retries")
}

type stubCleaner struct {
	removed int64
	err     error
	before  time.Time
}

func (c *stubCleaner) DeleteExpiredMailTokens(_ context.Context, before time.Time) (int64, error) {
	c.before = before
	return c.removed, c.err
}

func TestTokenCleanupHandler(t *testing.T) {
	cleaner := &stubCleaner{removed: 3}
	handler := NewTokenCleanupHandler(cleaner, slog.Default())

	require.NoError(t, handler(context.Background(), NewTokenCleanupTask()))
	assert.WithinDuration(t, time.Now().UTC(), cleaner.before, time.Minute)
}

func TestTokenCleanupHandlerPropagatesErrors(t *testing.T) {
	cleaner := &stubCleaner{err: errors.New("db down")}
	handler := NewTokenCleanupHandler(cleaner, slog.Default())
	require.Error(t, handler(context.Background(), NewTokenCleanupTask()))
}
