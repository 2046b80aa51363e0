package tasks

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

// Task type constants
const (
	TypeSendVerificationEmail  = "email:verification"
	TypeSendPasswordResetEmail = "email:password-reset"
)

// VerificationEmailPayload carries what the mailer needs to build the link
type VerificationEmailPayload struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Link     string `json:"link"`
}

// NewSendVerificationEmailTask creates a task to deliver a verification link
func NewSendVerificationEmailTask(p VerificationEmailPayload) (*asynq.Task, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return asynq.NewTask(TypeSendVerificationEmail, payload, asynq.MaxRetry(5)), nil
}

// ParseVerificationEmailPayload parses task payload from Asynq task
func ParseVerificationEmailPayload(task *asynq.Task) (VerificationEmailPayload, error) {
	var payload VerificationEmailPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return payload, fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	return payload, nil
}

// PasswordResetEmailPayload carries the reset link for one account
type PasswordResetEmailPayload struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Link     string `json:"link"`
}

// NewSendPasswordResetEmailTask creates a task to deliver a password reset link.
// The link is only valid for an hour, so retries stop early.
func NewSendPasswordResetEmailTask(p PasswordResetEmailPayload) (*asynq.Task, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return asynq.NewTask(TypeSendPasswordResetEmail, payload, asynq.MaxRetry(3)), nil
}

// ParsePasswordResetEmailPayload parses task payload from Asynq task
func ParsePasswordResetEmailPayload(task *asynq.Task) (PasswordResetEmailPayload, error) {
	var payload PasswordResetEmailPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return payload, fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	return payload, nil
}
