package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Mailer delivers queued emails over SMTP and records every attempt in
// email_log. The local relay (Mailpit in development) needs no auth.
type Mailer struct {
	addr   string
	from   string
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewMailer constructs a Mailer. pool may be nil to skip the email_log.
func NewMailer(host string, port int, from string, pool *pgxpool.Pool, logger *slog.Logger) *Mailer {
	return &Mailer{
		addr:   fmt.Sprintf("%s:%d", host, port),
		from:   from,
		pool:   pool,
		logger: logger,
	}
}

// HandleSendEmail processes mail:send tasks.
func (m *Mailer) HandleSendEmail(ctx context.Context, t *asynq.Task) error {
	var payload SendEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.To == "" {
		return asynq.SkipRetry
	}

	err := m.send(payload)
	status := "enviado"
	if err != nil {
		status = "fallido"
		m.logger.Error("send email", slog.Any("error", err), slog.String("to", payload.To))
	}
	m.logAttempt(ctx, payload, status)
	return err
}

func (m *Mailer) send(payload SendEmailPayload) error {
	msg := strings.Join([]string{
		"From: " + m.from,
		"To: " + payload.To,
		"Subject: " + payload.Subject,
		"MIME-Version: 1.0",
		`Content-Type: text/plain; charset="utf-8"`,
		"",
		payload.Body,
	}, "\r\n")
	return smtp.SendMail(m.addr, nil, m.from, []string{payload.To}, []byte(msg))
}

func (m *Mailer) logAttempt(ctx context.Context, payload SendEmailPayload, status string) {
	if m.pool == nil {
		return
	}
	_, err := m.pool.Exec(ctx, `
		INSERT INTO email_log (recipient, subject, body, status)
		VALUES ($1,$2,$3,$4)`,
		payload.To, payload.Subject, payload.Body, status)
	if err != nil {
		m.logger.Error("email log", slog.Any("error", err))
	}
}
