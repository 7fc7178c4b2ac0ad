// Package alerting notifies operators when a subscription keeps failing.
package alerting

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	gomail "github.com/wneessen/go-mail"

	"zapflow_backend/internal/sequences/ports"
	"zapflow_backend/platform/config"
	"zapflow_backend/platform/logger"
)

const subjectSubscriptionFailing = "[zapflow] Sequence subscription failing"

// deliverFunc sends a fully built message. Tests replace it.
type deliverFunc func(ctx context.Context, msg *gomail.Msg) error

// SMTPAlerter emails operator alerts through a plain SMTP relay.
type SMTPAlerter struct {
	host       string
	port       int
	username   string
	password   string
	from       string
	recipients []string
	deliver    deliverFunc
	log        *logger.Logger
}

var _ ports.FailureAlerter = (*SMTPAlerter)(nil)

// NewSMTPAlerter returns nil when alerting is not configured.
func NewSMTPAlerter(cfg config.AlertConfig, log *logger.Logger) *SMTPAlerter {
	if !cfg.IsAlertingEnabled() {
		return nil
	}
	a := &SMTPAlerter{
		host:       cfg.GetSMTPHost(),
		port:       cfg.GetSMTPPort(),
		username:   cfg.GetSMTPUsername(),
		password:   cfg.GetSMTPPassword(),
		from:       cfg.GetAlertFromAddress(),
		recipients: cfg.GetAlertRecipients(),
		log:        log.WithComponent("alerting"),
	}
	a.deliver = a.dialAndSend
	return a
}

// SubscriptionFailing sends one alert mail to every configured recipient.
func (a *SMTPAlerter) SubscriptionFailing(ctx context.Context, alert ports.FailureAlert) error {
	msg, err := a.buildMessage(alert)
	if err != nil {
		return err
	}
	if err := a.deliver(ctx, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	a.log.Info("failure alert sent",
		"subscription_id", alert.SubscriptionID,
		"consecutive_failures", alert.ConsecutiveFailures,
	)
	return nil
}

func (a *SMTPAlerter) buildMessage(alert ports.FailureAlert) (*gomail.Msg, error) {
	msg := gomail.NewMsg()
	if err := msg.FromFormat("zapflow alerts", a.from); err != nil {
		return nil, fmt.Errorf("smtp from: %w", err)
	}
	if err := msg.To(a.recipients...); err != nil {
		return nil, fmt.Errorf("smtp to: %w", err)
	}
	msg.Subject(subjectSubscriptionFailing)
	msg.SetBodyString(gomail.TypeTextPlain, alertBody(alert))
	return msg, nil
}

func alertBody(alert ports.FailureAlert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "A sequence subscription failed %d times in a row.\n\n", alert.ConsecutiveFailures)
	fmt.Fprintf(&b, "Subscription: %s\n", alert.SubscriptionID)
	fmt.Fprintf(&b, "Sequence:     %s\n", alert.SequenceID)
	fmt.Fprintf(&b, "Connection:   %s\n", alert.ConnectionID)
	fmt.Fprintf(&b, "Contact:      %s\n", alert.ContactID)
	fmt.Fprintf(&b, "Step index:   %d\n", alert.CurrentStep)
	if alert.LastError != "" {
		fmt.Fprintf(&b, "\nLast error:\n%s\n", alert.LastError)
	}
	return b.String()
}

func (a *SMTPAlerter) dialAndSend(ctx context.Context, msg *gomail.Msg) error {
	opts := []gomail.Option{
		gomail.WithPort(a.port),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(15 * time.Second),
		gomail.WithDialContextFunc(func(dctx context.Context, _ string, addr string) (net.Conn, error) {
			return (&net.Dialer{}).DialContext(dctx, "tcp4", addr)
		}),
	}
	if a.username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(a.username),
			gomail.WithPassword(a.password),
		)
	}

	client, err := gomail.NewClient(a.host, opts...)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	return client.DialAndSendWithContext(ctx, msg)
}
