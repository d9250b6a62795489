package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"bank-transfer-reconciler/pkg/errors"
	"bank-transfer-reconciler/pkg/logger"
)

// SMTPConfig holds SMTP server settings
type SMTPConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	Sender   string        `mapstructure:"sender"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Enabled reports whether a server is configured
func (c SMTPConfig) Enabled() bool {
	return c.Host != ""
}

// SMTPMailer sends plain-text emails through an SMTP relay
type SMTPMailer struct {
	config SMTPConfig
	logger logger.Logger
}

// NewSMTPMailer creates a mailer. An empty sender defaults to no-reply@host.
func NewSMTPMailer(config SMTPConfig, log logger.Logger) *SMTPMailer {
	if config.Port == "" {
		config.Port = "587"
	}
	if config.Sender == "" {
		config.Sender = fmt.Sprintf("no-reply@%s", config.Host)
	}
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}
	return &SMTPMailer{config: config, logger: logger.OrGlobal(log).WithComponent("smtp")}
}

// SendEmail delivers one message. The connection is bounded by ctx and the
// configured timeout.
func (m *SMTPMailer) SendEmail(ctx context.Context, to, subject, body string) error {
	addr := net.JoinHostPort(m.config.Host, m.config.Port)

	ctx, cancel := context.WithTimeout(ctx, m.config.Timeout)
	defer cancel()

	if err := m.send(ctx, addr, to, buildMessage(m.config.Sender, to, subject, body)); err != nil {
		m.logger.WithError(err).WithField("to", to).Warn("SMTP send failed")
		return errors.NotificationError(errors.CodeEmailFailed, to, err)
	}
	m.logger.WithFields(logger.Fields{"to": to, "addr": addr}).Debug("Email sent")
	return nil
}

func (m *SMTPMailer) send(ctx context.Context, addr, to string, msg []byte) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c, err := smtp.NewClient(conn, m.config.Host)
	if err != nil {
		conn.Close()
		return err
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: m.config.Host}); err != nil {
			return err
		}
	}
	if m.config.Username != "" && m.config.Password != "" {
		auth := smtp.PlainAuth("", m.config.Username, m.config.Password, m.config.Host)
		if err := c.Auth(auth); err != nil {
			return err
		}
	}
	if err := c.Mail(m.config.Sender); err != nil {
		return err
	}
	if err := c.Rcpt(to); err != nil {
		return err
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}

// buildMessage renders RFC 5322 headers and a plain-text body. Header values
// are stripped of line breaks.
func buildMessage(from, to, subject, body string) []byte {
	clean := strings.NewReplacer("\r", "", "\n", " ")
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", clean.Replace(from))
	fmt.Fprintf(&b, "To: %s\r\n", clean.Replace(to))
	fmt.Fprintf(&b, "Subject: %s\r\n", clean.Replace(subject))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return []byte(b.String())
}
