package smtp

import (
	"fmt"
	"net/smtp"
	"strings"

	"github.com/go-restaurant-api/internal/config"
	"github.com/go-restaurant-api/internal/domain"
)

// Mailer sends verification codes by email.
type Mailer interface {
	SendCode(to string, purpose domain.Purpose, code string) error
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type mailer struct {
	host     string
	port     string
	from     string
	username string
	password string
	send     sendFunc
}

func NewMailer(cfg *config.Config) Mailer {
	return &mailer{
		host:     cfg.SMTPHost,
		port:     cfg.SMTPPort,
		from:     cfg.SMTPFrom,
		username: cfg.SMTPUsername,
		password: cfg.SMTPPassword,
		send:     smtp.SendMail,
	}
}

func (m *mailer) SendCode(to string, purpose domain.Purpose, code string) error {
	subject, body := codeMessage(purpose, code)
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n%s",
		m.from, to, subject, body)
	addr := fmt.Sprintf("%s:%s", m.host, m.port)

	var auth smtp.Auth
	if m.username != "" {
		auth = smtp.PlainAuth("", m.username, m.password, m.host)
	}
	if err := m.send(addr, auth, m.from, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("send %s code to %s: %w", purpose, to, err)
	}
	return nil
}

func codeMessage(purpose domain.Purpose, code string) (subject, body string) {
	var b strings.Builder
	switch purpose {
	case domain.PurposePasswordReset:
		subject = "Your password reset code"
		b.WriteString("Use the code below to reset your password.\r\n\r\n")
	default:
		subject = "Confirm your email"
		b.WriteString("Use the code below to finish creating your account.\r\n\r\n")
	}
	b.WriteString(code)
	b.WriteString("\r\n\r\nThe code expires in 10 minutes. If you did not ask for it, ignore this email.\r\n")
	return subject, b.String()
}
