// Package notify delivers budget alerts to users.
package notify

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"spendyze/internal/ai"
	"spendyze/internal/core"
)

var (
	// ErrNoRecipient is returned when the user has no email address.
	ErrNoRecipient = errors.New("user has no email address")

	// ErrUnavailable is returned when sends are being refused without
	// reaching the mail server. The alert was not attempted.
	ErrUnavailable = errors.New("notification transport unavailable")
)

// Notification is one budget alert.
type Notification struct {
	User      core.User
	Threshold int
	Income    core.Money
	Expenses  core.Money
	// Summary is optional; the alert is sent without it when nil.
	Summary *ai.Summary
}

// UsagePercent returns expenses/income*100 rounded half up to an integer.
func (n Notification) UsagePercent() int64 {
	if n.Income.Cents <= 0 {
		return 0
	}
	return decimal.NewFromInt(n.Expenses.Cents).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(n.Income.Cents)).
		Round(0).
		IntPart()
}

// Dispatcher delivers a Notification.
type Dispatcher interface {
	Dispatch(ctx context.Context, n Notification) error
}

// Message is a rendered email.
type Message struct {
	From    string
	To      string
	Subject string
	HTML    string
}

// Mailer sends rendered messages.
type Mailer interface {
	Send(ctx context.Context, m Message) error
}
