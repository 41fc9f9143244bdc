package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeSendEmail is the task type for sending workflow emails.
	TaskTypeSendEmail = "mail:send"
	// TaskTypeTokenCleanup is the task type for pruning expired mail tokens.
	TaskTypeTokenCleanup = "auth:token_cleanup"
)

// SendEmailPayload describes the information required to send an email.
type SendEmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// NewSendEmailTask constructs an Asynq task.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data, asynq.MaxRetry(3), asynq.Timeout(30*time.Second)), nil
}

// MailSender delivers one rendered email.
type MailSender interface {
	Send(to, subject, body string) error
}

// NewSendEmailHandler builds the handler for TaskTypeSendEmail.
func NewSendEmailHandler(mailer MailSender, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload SendEmailPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		if err := mailer.Send(payload.To, payload.Subject, payload.Body); err != nil {
			logger.Warn("send email",
				slog.String("to", payload.To),
				slog.String("subject", payload.Subject),
				slog.Any("error", err))
			return err
		}
		logger.Info("email sent",
			slog.String("to", payload.To),
			slog.String("subject", payload.Subject))
		return nil
	}
}

// TokenCleaner prunes stale mail tokens.
type TokenCleaner interface {
	DeleteExpiredMailTokens(ctx context.Context, before time.Time) (int64, error)
}

// NewTokenCleanupTask constructs the cleanup task for the scheduler.
func NewTokenCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskTypeTokenCleanup, nil, asynq.Queue(QueueDefault))
}

// NewTokenCleanupHandler builds the handler for TaskTypeTokenCleanup.
func NewTokenCleanupHandler(cleaner TokenCleaner, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		removed, err := cleaner.DeleteExpiredMailTokens(ctx, time.Now().UTC())
		if err != nil {
			return err
		}
		if removed > 0 {
			logger.Info("expired mail tokens removed", slog.Int64("count", removed))
		}
		return nil
	}
}
