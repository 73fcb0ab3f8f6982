// internal/transport/smtp.go
package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/smtp"
	"strings"

	"campaign-workers/internal/common/config"
	"campaign-workers/internal/common/errors"
	"campaign-workers/internal/common/logger"

	"github.com/google/uuid"
)

// SMTPTransport delivers mail through a plain or STARTTLS SMTP relay.
type SMTPTransport struct {
	cfg    config.TransportConfig
	logger logger.Logger
}

func NewSMTPTransport(cfg config.TransportConfig, log logger.Logger) *SMTPTransport {
	return &SMTPTransport{
		cfg:    cfg,
		logger: log.WithFields(map[string]interface{}{"transport": "smtp"}),
	}
}

func (t *SMTPTransport) SendEmail(ctx context.Context, to, subject, html string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled before sending email: %w", err)
	}
	if !isValidEmail(to) {
		return nil, errors.NewTransportFailedError("smtp", fmt.Errorf("invalid recipient address: %s", to))
	}

	from := t.cfg.FromEmail
	message := buildMessage(from, t.cfg.FromName, to, subject, html)

	addr := fmt.Sprintf("%s:%d", t.cfg.SMTP.Host, t.cfg.SMTP.Port)

	var auth smtp.Auth
	if t.cfg.SMTP.Username != "" && t.cfg.SMTP.Password != "" {
		auth = smtp.PlainAuth("", t.cfg.SMTP.Username, t.cfg.SMTP.Password, t.cfg.SMTP.Host)
	}

	var err error
	if t.cfg.SMTP.UseTLS {
		err = t.sendWithTLS(addr, auth, from, to, []byte(message))
	} else {
		err = smtp.SendMail(addr, auth, from, []string{to}, []byte(message))
	}
	if err != nil {
		return nil, errors.NewTransportFailedError("smtp", err)
	}

	messageID := uuid.NewString()
	t.logger.Debug("email sent", map[string]interface{}{
		"to":        to,
		"messageId": messageID,
	})
	return &Result{MessageID: messageID, Provider: "smtp"}, nil
}

func (t *SMTPTransport) sendWithTLS(addr string, auth smtp.Auth, from, to string, msg []byte) error {
	client, err := smtp.Dial(addr)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer client.Close()

	tlsConfig := &tls.Config{
		ServerName: t.cfg.SMTP.Host,
	}
	if err = client.StartTLS(tlsConfig); err != nil {
		return fmt.Errorf("failed to start TLS: %w", err)
	}

	if auth != nil {
		if err = client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP authentication failed: %w", err)
		}
	}

	if err = client.Mail(from); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}
	if err = client.Rcpt(to); err != nil {
		return fmt.Errorf("failed to set recipient: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to open data writer: %w", err)
	}
	if _, err = w.Write(msg); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err = w.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}

	return client.Quit()
}

func buildMessage(from, fromName, to, subject, html string) string {
	var builder strings.Builder

	if fromName != "" {
		builder.WriteString(fmt.Sprintf("From: %s <%s>\r\n", fromName, from))
	} else {
		builder.WriteString(fmt.Sprintf("From: %s\r\n", from))
	}
	builder.WriteString(fmt.Sprintf("To: %s\r\n", to))
	builder.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	builder.WriteString("MIME-Version: 1.0\r\n")
	builder.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	builder.WriteString("\r\n")
	builder.WriteString(html)

	return builder.String()
}

func isValidEmail(email string) bool {
	email = strings.TrimSpace(email)
	if email == "" {
		return false
	}
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return false
	}
	if len(parts[0]) == 0 || len(parts[1]) == 0 {
		return false
	}
	return strings.Contains(parts[1], ".")
}
