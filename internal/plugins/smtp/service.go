package smtp

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/mail"
	gosmtp "net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/talentbridge/hrplatform/internal/config"
)

// defaultDialTimeout bounds connection setup when ctx has no deadline.
const defaultDialTimeout = 10 * time.Second

// MailService is the interface other plugins use to send email.
type MailService interface {
	SendMail(ctx context.Context, m Mail) error
	IsConfigured() bool
}

// smtpService implements MailService from static settings.
type smtpService struct {
	cfg  config.SMTPConfig
	now  func() time.Time
	dial func(ctx context.Context, network, addr string) (net.Conn, error)
}

// NewMailService creates a mail service from the SMTP settings.
func NewMailService(cfg config.SMTPConfig) MailService {
	if cfg.Encryption == "" {
		cfg.Encryption = EncryptionStartTLS
	}
	d := &net.Dialer{Timeout: defaultDialTimeout}
	return &smtpService{
		cfg:  cfg,
		now:  time.Now,
		dial: d.DialContext,
	}
}

// IsConfigured returns true if SMTP is enabled and has a host configured.
func (s *smtpService) IsConfigured() bool {
	return s.cfg.Enabled && s.cfg.Host != ""
}

// SendMail delivers m using the configured encryption mode.
func (s *smtpService) SendMail(ctx context.Context, m Mail) error {
	if !s.IsConfigured() {
		return ErrNotConfigured
	}
	if len(m.To) == 0 {
		return fmt.Errorf("sending mail: no recipients")
	}

	from := mail.Address{Name: s.cfg.FromName, Address: s.cfg.FromAddress}
	msg := buildMessage(from, m, s.now())
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))

	switch s.cfg.Encryption {
	case EncryptionSSL:
		return s.sendSSL(ctx, addr, from.Address, m.To, msg)
	case EncryptionNone:
		return s.sendPlain(ctx, addr, from.Address, m.To, msg)
	default:
		return s.sendStartTLS(ctx, addr, from.Address, m.To, msg)
	}
}

// buildMessage renders an RFC 5322 plain-text message.
func buildMessage(from mail.Address, m Mail, date time.Time) string {
	var msg strings.Builder
	msg.WriteString(fmt.Sprintf("From: %s\r\n", from.String()))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(m.To, ", ")))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", sanitizeHeader(m.Subject)))
	msg.WriteString(fmt.Sprintf("Date: %s\r\n", date.UTC().Format(time.RFC1123Z)))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(m.Body)
	return msg.String()
}

// sanitizeHeader strips line breaks so a value cannot inject headers.
func sanitizeHeader(v string) string {
	return strings.NewReplacer("\r", "", "\n", "").Replace(v)
}

func (s *smtpService) tlsConfig() *tls.Config {
	return &tls.Config{ServerName: s.cfg.Host, MinVersion: tls.VersionTLS12}
}

// connect dials addr and applies ctx's deadline to the whole session.
func (s *smtpService) connect(ctx context.Context, addr string) (net.Conn, error) {
	conn, err := s.dial(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	return conn, nil
}

// sendStartTLS sends email using STARTTLS (port 587 typical).
func (s *smtpService) sendStartTLS(ctx context.Context, addr, from string, to []string, msg string) error {
	conn, err := s.connect(ctx, addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	client, err := gosmtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		return fmt.Errorf("creating smtp client: %w", err)
	}
	defer client.Close()

	if err := client.StartTLS(s.tlsConfig()); err != nil {
		return fmt.Errorf("starting TLS: %w", err)
	}
	if err := s.authenticate(client); err != nil {
		return err
	}
	return sendMessage(client, from, to, msg)
}

// sendSSL sends email using implicit SSL/TLS (port 465 typical).
func (s *smtpService) sendSSL(ctx context.Context, addr, from string, to []string, msg string) error {
	raw, err := s.connect(ctx, addr)
	if err != nil {
		return err
	}
	conn := tls.Client(raw, s.tlsConfig())
	defer conn.Close()
	if err := conn.HandshakeContext(ctx); err != nil {
		return fmt.Errorf("connecting to %s (SSL): %w", addr, err)
	}

	client, err := gosmtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		return fmt.Errorf("creating smtp client: %w", err)
	}
	defer client.Close()

	if err := s.authenticate(client); err != nil {
		return err
	}
	return sendMessage(client, from, to, msg)
}

// sendPlain sends email without encryption. net/smtp refuses PLAIN auth
// over an unencrypted link unless the server is localhost.
func (s *smtpService) sendPlain(ctx context.Context, addr, from string, to []string, msg string) error {
	conn, err := s.connect(ctx, addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	client, err := gosmtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		return fmt.Errorf("creating smtp client: %w", err)
	}
	defer client.Close()

	if err := s.authenticate(client); err != nil {
		return err
	}
	return sendMessage(client, from, to, msg)
}

func (s *smtpService) authenticate(client *gosmtp.Client) error {
	if s.cfg.Username == "" {
		return nil
	}
	auth := gosmtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("authenticating: %w", err)
	}
	return nil
}

// sendMessage handles MAIL FROM, RCPT TO, DATA for an existing SMTP client.
func sendMessage(client *gosmtp.Client, from string, to []string, msg string) error {
	if err := client.Mail(from); err != nil {
		return fmt.Errorf("MAIL FROM: %w", err)
	}
	for _, recipient := range to {
		if err := client.Rcpt(recipient); err != nil {
			return fmt.Errorf("RCPT TO %s: %w", recipient, err)
		}
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("DATA: %w", err)
	}
	if _, err := w.Write([]byte(msg)); err != nil {
		return fmt.Errorf("writing message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("closing data: %w", err)
	}
	return client.Quit()
}
