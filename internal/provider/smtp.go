package provider

import (
	"context"
	"errors"
	"net/textproto"

	"gopkg.in/gomail.v2"
)

// Dialer sends fully built messages. *gomail.Dialer satisfies it.
type Dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

type SMTPSender struct {
	dialer Dialer
}

func NewSMTPSender(host string, port int, username, password string) *SMTPSender {
	return &SMTPSender{dialer: gomail.NewDialer(host, port, username, password)}
}

func NewSMTPSenderWithDialer(d Dialer) *SMTPSender {
	return &SMTPSender{dialer: d}
}

func (s *SMTPSender) SendEmail(ctx context.Context, msg EmailMessage) Result {
	m := gomail.NewMessage()
	m.SetAddressHeader("From", msg.From.Email, msg.From.Name)
	m.SetAddressHeader("To", msg.To.Email, msg.To.Name)
	m.SetHeader("Subject", msg.Subject)
	m.SetHeader("X-Pulse-Job-Id", msg.JobID)
	m.SetBody("text/html", msg.Body)

	// gomail has no context support; the send is abandoned, not interrupted,
	// when ctx ends first.
	done := make(chan error, 1)
	go func() { done <- s.dialer.DialAndSend(m) }()

	select {
	case err := <-done:
		if err != nil {
			return classifySMTP(err)
		}
		return succeeded()
	case <-ctx.Done():
		return failed(true, "smtp: %v", ctx.Err())
	}
}

// classifySMTP treats permanent (5xx) replies as final.
func classifySMTP(err error) Result {
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) && tpErr.Code >= 500 {
		return failed(false, "smtp %d: %s", tpErr.Code, tpErr.Msg)
	}
	return failed(true, "smtp: %v", err)
}
