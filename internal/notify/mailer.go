package notify

import (
	"fmt"
	"net/smtp"
	"strings"
)

// Mailer delivers rendered emails over SMTP. It runs inside the worker;
// the API process only enqueues.
type Mailer struct {
	addr string
	from string
}

// NewMailer constructs Mailer for the given SMTP endpoint.
func NewMailer(host string, port int, from string) *Mailer {
	return &Mailer{addr: fmt.Sprintf("%s:%d", host, port), from: from}
}

// Send delivers one HTML email.
func (m *Mailer) Send(to, subject, body string) error {
	var msg strings.Builder
	msg.WriteString("From: " + m.from + "\r\n")
	msg.WriteString("To: " + to + "\r\n")
	msg.WriteString("Subject: " + subject + "\r\n")
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)

	if err := smtp.SendMail(m.addr, nil, m.from, []string{to}, []byte(msg.String())); err != nil {
		return fmt.Errorf("notify: smtp send: %w", err)
	}
	return nil
}
