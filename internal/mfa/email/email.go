// Package email delivers one-time codes by e-mail.
package email

import (
	"context"
	"fmt"
	"log"
	"time"
)

// Message is one outbound e-mail.
type Message struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"text"`
}

// Sender delivers a message. Implementations must not log the body.
type Sender interface {
	Send(ctx context.Context, m Message) error
}

const defaultSendTimeout = 15 * time.Second

// Dispatcher formats OTP mails and hands them to a Sender in the background so the login
// request never waits on mail delivery. Delivery failures are logged only.
type Dispatcher struct {
	sender  Sender
	from    string
	subject string
	timeout time.Duration
	// done, when set, is called after each send attempt. Tests use it to wait for delivery.
	done func(error)
}

// NewDispatcher returns a Dispatcher sending from the given address with the given subject.
func NewDispatcher(sender Sender, from, subject string) *Dispatcher {
	return &Dispatcher{sender: sender, from: from, subject: subject, timeout: defaultSendTimeout}
}

// NotifyOTP sends the code to address. It returns immediately.
func (d *Dispatcher) NotifyOTP(_ context.Context, address, sessionID, code string, expiresAt time.Time) {
	if d == nil || d.sender == nil || address == "" {
		return
	}
	m := Message{
		From:    d.from,
		To:      address,
		Subject: d.subject,
		Body:    FormatOTPBody(code, expiresAt),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		err := d.sender.Send(ctx, m)
		if err != nil {
			log.Printf("email: otp delivery failed session=%s: %v", sessionID, err)
		}
		if d.done != nil {
			d.done(err)
		}
	}()
}

// FormatOTPBody renders the plain-text body of an OTP mail.
func FormatOTPBody(code string, expiresAt time.Time) string {
	return fmt.Sprintf("Your verification code is %s\n\nIt expires at %s.\n", code, expiresAt.UTC().Format(time.RFC1123))
}

// LogSender records that a mail would have been sent without contacting any server.
// Only the recipient and subject are logged.
type LogSender struct{}

func (LogSender) Send(_ context.Context, m Message) error {
	log.Printf("email: (log sender) to=%s subject=%q", m.To, m.Subject)
	return nil
}
