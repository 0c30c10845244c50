package mail

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/sony/gobreaker/v2"

	"github.com/ManuelReschke/MarketFox/internal/pkg/config"
)

// Sender delivers one HTML email.
type Sender interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// BreakerSettings tunes the circuit breaker around the sender.
type BreakerSettings struct {
	FailureThreshold uint32
	OpenTimeout      time.Duration
}

var DefaultBreakerSettings = BreakerSettings{FailureThreshold: 5, OpenTimeout: 30 * time.Second}

// Mailer guards a Sender with a circuit breaker so an unavailable provider
// fails fast instead of stalling every caller on its timeout.
type Mailer struct {
	sender  Sender
	breaker *gobreaker.CircuitBreaker[any]
}

func NewMailer(sender Sender, settings BreakerSettings) *Mailer {
	if settings.FailureThreshold == 0 {
		settings.FailureThreshold = DefaultBreakerSettings.FailureThreshold
	}
	if settings.OpenTimeout <= 0 {
		settings.OpenTimeout = DefaultBreakerSettings.OpenTimeout
	}
	breaker := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "mail",
		MaxRequests: 1,
		Timeout:     settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= settings.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warnf("[Mail] Circuit breaker %s: %s -> %s", name, from.String(), to.String())
		},
	})
	return &Mailer{sender: sender, breaker: breaker}
}

// NewFromConfig picks SendGrid when an API key is configured, SMTP when a
// host is configured and a logging sender otherwise.
func NewFromConfig(cfg *config.Config) *Mailer {
	var sender Sender
	switch {
	case cfg.SendGridAPIKey != "":
		sender = NewSendGridSender(cfg.SendGridAPIKey, cfg.MailSenderName, cfg.MailSender)
		log.Info("[Mail] Using SendGrid")
	case cfg.SMTPHost != "":
		sender = &SMTPSender{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUser,
			Password: cfg.SMTPPassword,
			From:     cfg.MailSender,
		}
		log.Infof("[Mail] Using SMTP %s:%s", cfg.SMTPHost, cfg.SMTPPort)
	default:
		sender = LogSender{}
		log.Warn("[Mail] No mail provider configured, emails are only logged")
	}
	return NewMailer(sender, DefaultBreakerSettings)
}

// Send delivers through the breaker. An open breaker returns
// gobreaker.ErrOpenState without calling the sender.
func (m *Mailer) Send(ctx context.Context, to, subject, htmlBody string) error {
	if to == "" {
		return fmt.Errorf("mail: empty recipient")
	}
	_, err := m.breaker.Execute(func() (any, error) {
		return nil, m.sender.Send(ctx, to, subject, htmlBody)
	})
	return err
}

func (m *Mailer) State() gobreaker.State {
	return m.breaker.State()
}

// LogSender only logs emails. Used in development.
type LogSender struct{}

func (LogSender) Send(_ context.Context, to, subject, _ string) error {
	log.Infof("[Mail] (not sent) to=%s subject=%q", to, subject)
	return nil
}
