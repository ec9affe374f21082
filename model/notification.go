package model

// Notification severities. Success, info, and warning notifications dismiss
// on their own; errors stay until the user dismisses them.
const (
	SeveritySuccess = "success"
	SeverityInfo    = "info"
	SeverityWarning = "warning"
	SeverityError   = "error"
)

// Notification is one user-facing message produced by a builder operation.
type Notification struct {
	Severity string `json:"severity"`
	Message  string `json:"message"`
	Sticky   bool   `json:"sticky"`
}

// NewSuccess returns a transient success notification.
func NewSuccess(msg string) Notification {
	return Notification{Severity: SeveritySuccess, Message: msg}
}

// NewInfo returns a transient info notification.
func NewInfo(msg string) Notification {
	return Notification{Severity: SeverityInfo, Message: msg}
}

// NewWarning returns a transient warning notification.
func NewWarning(msg string) Notification {
	return Notification{Severity: SeverityWarning, Message: msg}
}

// NewError returns a sticky error notification.
func NewError(msg string) Notification {
	return Notification{Severity: SeverityError, Message: msg, Sticky: true}
}
