package notify

import (
	"context"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	cb "github.com/Astemirdum/silent-library/pkg/circuit_breaker"
)

type Config struct {
	Host     string `envconfig:"MAIL_HOST"`
	Port     int    `envconfig:"MAIL_PORT" default:"25"`
	Username string `envconfig:"MAIL_USERNAME"`
	Password string `envconfig:"MAIL_PASSWORD" json:"-"`
	From     string `envconfig:"MAIL_FROM" default:"noreply@silentlibrary.local"`
	BaseURL  string `envconfig:"PUBLIC_BASE_URL" default:"http://localhost:8080"`
}

func (c Config) LoginURL() string {
	return strings.TrimRight(c.BaseURL, "/") + "/api/v1/login"
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type SMTPMailer struct {
	cfg  Config
	cb   cb.CircuitBreaker
	send sendFunc
}

func NewSMTPMailer(cfg Config) *SMTPMailer {
	return &SMTPMailer{
		cfg:  cfg,
		cb:   cb.NewCircuitBreaker(10, 30*time.Second, 0.5, 2),
		send: smtp.SendMail,
	}
}

func (m *SMTPMailer) Send(ctx context.Context, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var a smtp.Auth
	if m.cfg.Username != "" {
		a = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}
	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
	return m.cb.Call(func() error {
		return m.send(addr, a, m.cfg.From, []string{ev.To}, message(m.cfg.From, ev))
	})
}

func message(from string, ev Event) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", headerValue(from))
	fmt.Fprintf(&b, "To: %s\r\n", headerValue(ev.To))
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", headerValue(ev.Subject)))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n\r\n")
	b.WriteString(strings.ReplaceAll(ev.Body, "\n", "\r\n"))
	return []byte(b.String())
}

var headerBreaks = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ")

// headerValue keeps user-controlled text on a single header line.
func headerValue(s string) string {
	return strings.TrimSpace(headerBreaks.Replace(s))
}

// LogMailer writes emails to the log, used when no SMTP host is configured.
type LogMailer struct {
	log *zap.Logger
}

func NewLogMailer(log *zap.Logger) *LogMailer {
	return &LogMailer{log: log.Named("mail")}
}

func (m *LogMailer) Send(_ context.Context, ev Event) error {
	m.log.Info("email",
		zap.String("to", ev.To),
		zap.String("subject", ev.Subject),
		zap.String("body", ev.Body))
	return nil
}

func NewSender(cfg Config, log *zap.Logger) Sender {
	if cfg.Host == "" {
		return NewLogMailer(log)
	}
	return NewSMTPMailer(cfg)
}
