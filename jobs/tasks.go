package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"

	// TaskTypeSendEmail delivers one transactional email.
	TaskTypeSendEmail = "mail:send"
	// TaskTypeActivateScheduled sweeps programada requests whose window opened.
	TaskTypeActivateScheduled = "requests:activate_scheduled"
	// TaskTypeReconcileBudgets recomputes spent amounts from issued orders.
	TaskTypeReconcileBudgets = "budgets:reconcile"
)

// SendEmailPayload describes the information required to send an email.
type SendEmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// NewSendEmailTask constructs a mail:send task.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data), nil
}

// NewActivateScheduledTask constructs the scheduled-request sweep task.
// The payload is empty; the handler uses the wall clock.
func NewActivateScheduledTask() *asynq.Task {
	return asynq.NewTask(TaskTypeActivateScheduled, nil)
}

// ReconcileBudgetsPayload selects the fiscal year to reconcile.
// A zero year means the current one.
type ReconcileBudgetsPayload struct {
	Year int `json:"year"`
}

// NewReconcileBudgetsTask constructs the budget reconciliation task.
func NewReconcileBudgetsTask(payload ReconcileBudgetsPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeReconcileBudgets, data), nil
}
