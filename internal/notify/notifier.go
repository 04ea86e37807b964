package notify

import "context"

type Template string

const (
	TemplateBookingConfirmed Template = "booking-confirmed"
	TemplateBookingCancelled Template = "booking-cancelled"
)

// Notification is one message for one recipient. Fields carry the template
// context (names, date, times); the downstream mailer renders them.
type Notification struct {
	Recipient string            `json:"recipient"`
	Template  Template          `json:"template"`
	Fields    map[string]string `json:"fields"`
}

// Dispatcher delivers notifications asynchronously. Callers fire and forget;
// delivery failure must never fail the operation that triggered it.
type Dispatcher interface {
	Dispatch(ctx context.Context, n Notification) error
}
