package notification

import (
	"fmt"
	"net/smtp"

	"cardsite-backend/internal/config"
	"cardsite-backend/internal/logging"
)

// SMTPMailer sends HTML mail through a plain-auth SMTP relay.
type SMTPMailer struct {
	host     string
	port     string
	user     string
	password string
	from     string

	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// LogMailer only logs. It is used when SMTP is not configured.
type LogMailer struct{}

func (LogMailer) Send(to, subject, _ string) error {
	logging.L.WithField("to", to).WithField("subject", subject).Info("smtp not configured, mail not sent")
	return nil
}

type Sender interface {
	Send(to, subject, htmlBody string) error
}

// NewMailer picks SMTP when the host is configured.
func NewMailer(cfg *config.Config) Sender {
	if cfg.SMTPHost == "" {
		return LogMailer{}
	}
	from := cfg.SMTPFrom
	if from == "" {
		from = cfg.SMTPUser
	}
	return &SMTPMailer{
		host:     cfg.SMTPHost,
		port:     cfg.SMTPPort,
		user:     cfg.SMTPUser,
		password: cfg.SMTPPassword,
		from:     from,
		send:     smtp.SendMail,
	}
}

func (m *SMTPMailer) Send(to, subject, htmlBody string) error {
	if m.host == "" || m.port == "" || m.from == "" {
		return fmt.Errorf("missing SMTP configuration")
	}

	msg := []byte(fmt.Sprintf(
		"From: %s\r\n"+
			"To: %s\r\n"+
			"Subject: %s\r\n"+
			"MIME-Version: 1.0\r\n"+
			"Content-Type: text/html; charset=\"utf-8\"\r\n"+
			"\r\n%s\r\n",
		m.from, to, subject, htmlBody,
	))

	var a smtp.Auth
	if m.user != "" {
		a = smtp.PlainAuth("", m.user, m.password, m.host)
	}
	return m.send(m.host+":"+m.port, a, m.from, []string{to}, msg)
}
