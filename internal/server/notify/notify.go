// Package notify delivers the consolidated failure notice produced by the
// outbound payment sync run.
package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
)

// Notifier dispatches a human-readable notice to the configured recipients.
type Notifier interface {
	Notify(ctx context.Context, subject, body string) error
}

// sendMail is a seam for testing smtp.SendMail.
var sendMail = smtp.SendMail

// SMTPNotifier sends plain-text mail through a relay that accepts
// unauthenticated submissions from this host.
type SMTPNotifier struct {
	addr string
	from string
	to   []string
}

// NewSMTPNotifier builds a notifier from the SMTP relay address, sender and
// a comma-separated recipient list.
func NewSMTPNotifier(addr, from, recipients string) *SMTPNotifier {
	var to []string
	for _, r := range strings.Split(recipients, ",") {
		if r = strings.TrimSpace(r); r != "" {
			to = append(to, r)
		}
	}
	return &SMTPNotifier{addr: addr, from: from, to: to}
}

func (n *SMTPNotifier) Notify(ctx context.Context, subject, body string) error {
	if len(n.to) == 0 {
		return nil
	}
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n",
		n.from, strings.Join(n.to, ", "), subject, body)

	// smtp.SendMail cannot be interrupted mid-dial; a done context abandons
	// the attempt and reports the context error while the dispatch goroutine
	// runs out on its own.
	errCh := make(chan error, 1)
	go func() {
		errCh <- sendMail(n.addr, nil, n.from, n.to, []byte(msg))
	}()
	select {
	case <-ctx.Done():
		return fmt.Errorf("smtp error: %w", ctx.Err())
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("smtp error: %w", err)
		}
		return nil
	}
}
