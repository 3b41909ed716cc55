package domain

import "strings"

// Action is an operator action applicable to one invoice or a selection.
type Action string

const (
	ActionSendReminder Action = "send-reminder"
	ActionMarkPaid     Action = "mark-paid"
	ActionCancel       Action = "cancel"
)

func ParseAction(raw string) (Action, error) {
	action := Action(strings.ToLower(strings.TrimSpace(raw)))
	switch action {
	case ActionSendReminder, ActionMarkPaid, ActionCancel:
		return action, nil
	default:
		return "", ErrInvalidAction
	}
}

// CheckTransition reports whether action may be applied to an invoice in status.
func CheckTransition(action Action, status InvoiceStatus) error {
	switch action {
	case ActionMarkPaid:
		switch status {
		case InvoiceStatusPending, InvoiceStatusOverdue:
			return nil
		case InvoiceStatusPaid:
			return ErrInvoiceAlreadyPaid
		case InvoiceStatusCancelled:
			return ErrInvoiceCancelled
		}
	case ActionCancel:
		switch status {
		case InvoiceStatusPending, InvoiceStatusOverdue, InvoiceStatusPaid:
			return nil
		case InvoiceStatusCancelled:
			return ErrInvoiceAlreadyCancelled
		}
	case ActionSendReminder:
		switch status {
		case InvoiceStatusPending, InvoiceStatusOverdue:
			return nil
		default:
			return ErrReminderNotAllowed
		}
	default:
		return ErrInvalidAction
	}
	return ErrInvalidStatus
}
