// Package email is the boundary to the external mail collaborator. It takes
// a fully rendered message and recipient list and reports success or failure;
// delivery guarantees beyond that are out of scope.
package email

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"steward/internal/config"
)

// Config holds SMTP transport settings. From is the envelope sender (a raw
// mailbox address); FromName is an optional display name for the header only.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
	FromName string
}

// FromEnv builds the transport config from SMTP_* environment variables.
func FromEnv() Config {
	return Config{
		Host:     config.GetEnv("SMTP_HOST", ""),
		Port:     config.GetEnvInt("SMTP_PORT", 587),
		User:     config.GetEnv("SMTP_USER", ""),
		Password: config.GetEnv("SMTP_PASSWORD", ""),
		From:     config.GetEnv("FROM_EMAIL", ""),
		FromName: config.GetEnv("FROM_NAME", ""),
	}
}

// Sender sends HTML mail over SMTP.
type Sender struct {
	config Config
	auth   smtp.Auth
}

// NewSender creates a sender; PlainAuth is used when credentials are set.
func NewSender(cfg Config) *Sender {
	var auth smtp.Auth
	if cfg.User != "" && cfg.Password != "" {
		auth = smtp.PlainAuth("", cfg.User, cfg.Password, cfg.Host)
	}
	return &Sender{config: cfg, auth: auth}
}

// IsConfigured reports whether the transport has enough settings to send.
func (s *Sender) IsConfigured() bool {
	return s.config.Host != "" && s.config.From != ""
}

// SendMail delivers one message. The to argument may hold several addresses
// separated by commas; all become envelope recipients of a single message.
func (s *Sender) SendMail(ctx context.Context, to, subject, htmlBody string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	recipients := SplitAddresses(to)
	if len(recipients) == 0 {
		return fmt.Errorf("no recipient addresses in %q", to)
	}

	fromHeader := s.config.From
	if strings.TrimSpace(s.config.FromName) != "" {
		fromHeader = fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
	}

	msg := []string{
		fmt.Sprintf("From: %s", sanitizeHeader(fromHeader)),
		fmt.Sprintf("To: %s", sanitizeHeader(strings.Join(recipients, ", "))),
		fmt.Sprintf("Subject: %s", sanitizeHeader(subject)),
		"MIME-Version: 1.0",
		"Content-Type: text/html; charset=UTF-8",
		"",
		htmlBody,
	}

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	return smtp.SendMail(addr, s.auth, s.config.From, recipients, []byte(strings.Join(msg, "\r\n")))
}

// SplitAddresses splits a stored recipient string into individual addresses.
func SplitAddresses(to string) []string {
	parts := strings.Split(to, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func sanitizeHeader(s string) string {
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, "\n", "")
	return s
}
