package mail

import (
	"fmt"
	"net/smtp"
	"strings"
)

// Sender is the mail transport boundary. Failures are reported to the
// caller, never retried here.
type Sender interface {
	Send(to, subject, textBody, htmlBody string) error
}

// SMTPSender sends multipart text+html mail over plain-auth SMTP.
type SMTPSender struct {
	Host     string
	Port     string
	Username string
	Password string
	FromAddr string
	FromName string
}

func (s *SMTPSender) Send(to, subject, textBody, htmlBody string) error {
	if s.Host == "" || s.Port == "" || s.FromAddr == "" {
		return fmt.Errorf("smtp transport not configured")
	}

	msg := s.buildMessage(to, subject, textBody, htmlBody)
	auth := smtp.PlainAuth("", s.Username, s.Password, s.Host)
	if err := smtp.SendMail(s.Host+":"+s.Port, auth, s.FromAddr, []string{to}, msg); err != nil {
		return fmt.Errorf("send mail to %s: %w", to, err)
	}
	return nil
}

func (s *SMTPSender) buildMessage(to, subject, textBody, htmlBody string) []byte {
	const boundary = "cpxtb-alt-boundary"

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s <%s>\r\n", s.FromName, s.FromAddr)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")

	if htmlBody == "" {
		b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
		b.WriteString(textBody)
		return []byte(b.String())
	}

	fmt.Fprintf(&b, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", boundary)
	fmt.Fprintf(&b, "--%s\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n%s\r\n", boundary, textBody)
	fmt.Fprintf(&b, "--%s\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n%s\r\n", boundary, htmlBody)
	fmt.Fprintf(&b, "--%s--\r\n", boundary)
	return []byte(b.String())
}
