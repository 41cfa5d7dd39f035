package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"spendyze/internal/log"
)

// EmailDispatcher renders alerts as HTML email and hands them to a Mailer.
type EmailDispatcher struct {
	mailer       Mailer
	from         string
	dashboardURL string
	cb           *gobreaker.CircuitBreaker
	logger       *log.Logger
	now          func() time.Time
}

// EmailConfig configures an EmailDispatcher.
type EmailConfig struct {
	FromName     string
	FromEmail    string
	DashboardURL string
}

func NewEmailDispatcher(mailer Mailer, cfg EmailConfig, logger *log.Logger) *EmailDispatcher {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	name := cfg.FromName
	if name == "" {
		name = "Spendyze"
	}
	return &EmailDispatcher{
		mailer:       mailer,
		from:         fmt.Sprintf("%q <%s>", name, cfg.FromEmail),
		dashboardURL: cfg.DashboardURL,
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "smtp",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= 5
			},
		}),
		logger: logger.WithComponent(log.ComponentNotify),
		now:    time.Now,
	}
}

func (d *EmailDispatcher) Dispatch(ctx context.Context, n Notification) error {
	if strings.TrimSpace(n.User.Email) == "" {
		return ErrNoRecipient
	}
	body, err := RenderHTML(n, d.dashboardURL, d.now())
	if err != nil {
		return err
	}
	msg := Message{From: d.from, To: n.User.Email, Subject: Subject(n), HTML: body}

	_, err = d.cb.Execute(func() (interface{}, error) {
		return nil, d.mailer.Send(ctx, msg)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err != nil {
		return fmt.Errorf("send alert email to %s: %w", n.User.Email, err)
	}

	d.logger.InfoContext(ctx, "Budget alert email sent",
		log.FieldUserID, n.User.ID,
		log.FieldThreshold, n.Threshold,
		log.FieldOperation, log.OpDispatch)
	return nil
}
