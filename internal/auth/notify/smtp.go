package notify

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
)

var (
	ErrSMTPConfig     = errors.New("notify: incomplete smtp configuration")
	ErrHeaderInjected = errors.New("notify: header value contains a line break")
)

type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

// SMTPNotifier mails messages through a relay with optional PLAIN auth.
type SMTPNotifier struct {
	cfg  SMTPConfig
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPNotifier(cfg SMTPConfig) (*SMTPNotifier, error) {
	cfg.From = strings.TrimSpace(cfg.From)
	if cfg.Host == "" || cfg.Port <= 0 || cfg.From == "" {
		return nil, ErrSMTPConfig
	}
	return &SMTPNotifier{cfg: cfg, send: smtp.SendMail}, nil
}

// Send ignores ctx cancellation once the SMTP exchange has started;
// net/smtp has no context support.
func (n *SMTPNotifier) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, v := range []string{msg.To, msg.Subject} {
		if strings.ContainsAny(v, "\r\n") {
			return ErrHeaderInjected
		}
	}

	addr := net.JoinHostPort(n.cfg.Host, strconv.Itoa(n.cfg.Port))
	var auth smtp.Auth
	if n.cfg.Username != "" {
		auth = smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)
	}

	body := []byte("From: " + n.cfg.From + "\r\n" +
		"To: " + msg.To + "\r\n" +
		"Subject: " + msg.Subject + "\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: text/plain; charset=UTF-8\r\n" +
		"\r\n" + msg.Body)

	if err := n.send(addr, auth, n.cfg.From, []string{msg.To}, body); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}
