package notify

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strings"
	"time"

	"flatwatch/internal/logger"
)

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailConfig holds the SMTP relay settings and the fixed sender and recipient.
type EmailConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	To       string
}

func (c EmailConfig) Validate() error {
	if c.Host == "" || c.Port == "" {
		return errors.New("SMTP not configured: SMTP_HOST and SMTP_PORT are required")
	}
	if c.From == "" || c.To == "" {
		return errors.New("SMTP_FROM and MAIL_TO are required")
	}
	return nil
}

// EmailNotifier sends reports through an SMTP relay with PLAIN auth.
type EmailNotifier struct {
	cfg      EmailConfig
	logger   logger.Logger
	sendMail sendMailFunc
	now      func() time.Time
}

func NewEmailNotifier(cfg EmailConfig, logger logger.Logger) (*EmailNotifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &EmailNotifier{
		cfg:      cfg,
		logger:   logger,
		sendMail: smtp.SendMail,
		now:      time.Now,
	}, nil
}

func (e *EmailNotifier) Notify(ctx context.Context, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var auth smtp.Auth
	if e.cfg.Username != "" {
		auth = smtp.PlainAuth("", e.cfg.Username, e.cfg.Password, e.cfg.Host)
	}

	addr := net.JoinHostPort(e.cfg.Host, e.cfg.Port)
	msg := e.buildMessage(subject, body)
	if err := e.sendMail(addr, auth, e.cfg.From, []string{e.cfg.To}, msg); err != nil {
		e.logger.Errorf("Failed to send email to %s: %v", e.cfg.To, err)
		return fmt.Errorf("send email: %w", err)
	}

	e.logger.Infof("Email %q sent to %s", subject, e.cfg.To)
	return nil
}

func (e *EmailNotifier) buildMessage(subject, body string) []byte {
	var b strings.Builder
	b.WriteString("From: " + e.cfg.From + "\r\n")
	b.WriteString("To: " + e.cfg.To + "\r\n")
	b.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", subject) + "\r\n")
	b.WriteString("Date: " + e.now().Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	b.WriteString("Content-Transfer-Encoding: 8bit\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(strings.ReplaceAll(body, "\r\n", "\n"), "\n", "\r\n"))
	b.WriteString("\r\n")
	return []byte(b.String())
}
