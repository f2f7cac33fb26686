package domain

import (
	"errors"
	"time"
)

// Статусы State Machine
type ApprovalStatus string

const (
	StatusPending  ApprovalStatus = "PENDING"
	StatusApproved ApprovalStatus = "APPROVED"
	StatusRejected ApprovalStatus = "REJECTED"
	StatusExpired  ApprovalStatus = "EXPIRED"
)

var (
	ErrInvalidTransition = errors.New("invalid approval status transition")
	ErrAlreadyProcessed  = errors.New("approval request already processed")
	ErrApprovalNotFound  = errors.New("approval request not found")
)

// ApprovalRequest - заявка на подтверждение High-действия оператором.
type ApprovalRequest struct {
	ID          string         `json:"id"`
	ExecutionID string         `json:"execution_id"` // Ссылка на ожидающую команду в шлюзе
	Source      Source         `json:"source"`
	Action      string         `json:"action"`
	Params      string         `json:"params"` // Params.Summary()
	CommandLine string         `json:"command_line"`
	Status      ApprovalStatus `json:"status"`

	ReviewerID *string `json:"reviewer_id,omitempty"`
	Comment    *string `json:"comment,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CanTransitionTo проверяет правила конечного автомата
func (a *ApprovalRequest) CanTransitionTo(next ApprovalStatus) error {
	if a.Status != StatusPending {
		return ErrAlreadyProcessed
	}
	if next == StatusPending {
		return ErrInvalidTransition
	}
	return nil
}

// Decision - ответ коллаборатора подтверждения.
type Decision string

const (
	DecisionConfirmed Decision = "confirmed"
	DecisionDenied    Decision = "denied"
	DecisionTimedOut  Decision = "timed_out"
)

// DecisionFromStatus переводит финальный статус заявки в решение.
func DecisionFromStatus(s ApprovalStatus) Decision {
	switch s {
	case StatusApproved:
		return DecisionConfirmed
	case StatusExpired:
		return DecisionTimedOut
	default:
		return DecisionDenied
	}
}
